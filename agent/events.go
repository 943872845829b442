package agent

// EventType classifies an outbound stream event.
type EventType string

const (
	EventStatus   EventType = "status"
	EventContent  EventType = "content"
	EventSources  EventType = "sources"
	EventMetadata EventType = "metadata"
	EventError    EventType = "error"
	EventDone     EventType = "done"
)

// Event is one element of the ordered stream a run emits. Exactly one done
// event terminates the stream; an error event may precede done but never
// replaces it.
type Event struct {
	Type EventType `json:"event"`
	Data any       `json:"data"`
}

// StatusData describes workflow progress.
type StatusData struct {
	Step    string         `json:"step"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ContentData carries one generated token.
type ContentData struct {
	Token string `json:"token"`
}

// ErrorData carries a fatal run error.
type ErrorData struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Emitter receives stream events in order. A nil Emitter is valid and drops
// everything, which is how non-streaming runs execute the same workflow.
type Emitter func(Event)

func (e Emitter) emit(event Event) {
	if e != nil {
		e(event)
	}
}

func (e Emitter) status(step, message string, details map[string]any) {
	e.emit(Event{Type: EventStatus, Data: StatusData{Step: step, Message: message, Details: details}})
}

func (e Emitter) token(token string) {
	e.emit(Event{Type: EventContent, Data: ContentData{Token: token}})
}

func (e Emitter) done() {
	e.emit(Event{Type: EventDone, Data: nil})
}

// Package store persists papers, chunks, and conversations with GORM, and
// implements the retrieval and conversation repositories on top of Postgres
// (pgvector for similarity, tsvector for full text).
package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StringSlice stores a []string as a JSON column.
type StringSlice []string

func (s StringSlice) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

func (s *StringSlice) Scan(value any) error {
	return scanJSON(value, s)
}

// JSONMap stores an arbitrary JSON object column.
type JSONMap map[string]any

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *JSONMap) Scan(value any) error {
	return scanJSON(value, m)
}

// JSONList stores a list of JSON objects (sections, sources, reasoning
// steps).
type JSONList []map[string]any

func (l JSONList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

func (l *JSONList) Scan(value any) error {
	return scanJSON(value, l)
}

func scanJSON(value, dest any) error {
	if value == nil {
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("cannot scan %T into JSON column", value)
	}
}

// Vector stores an embedding in pgvector's text representation
// ("[0.1,0.2,...]").
type Vector []float64

func (v Vector) Value() (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	return v.String(), nil
}

func (v Vector) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(f, 'f', -1, 64))
	}
	b.WriteByte(']')
	return b.String()
}

func (v *Vector) Scan(value any) error {
	if value == nil {
		*v = nil
		return nil
	}
	var s string
	switch raw := value.(type) {
	case []byte:
		s = string(raw)
	case string:
		s = raw
	default:
		return fmt.Errorf("cannot scan %T into Vector", value)
	}
	s = strings.Trim(strings.TrimSpace(s), "[]")
	if s == "" {
		*v = Vector{}
		return nil
	}
	parts := strings.Split(s, ",")
	out := make(Vector, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return fmt.Errorf("invalid vector element %q: %w", p, err)
		}
		out[i] = f
	}
	*v = out
	return nil
}

// Paper is an arXiv paper with its parsed content.
type Paper struct {
	ID            uuid.UUID   `gorm:"type:uuid;primaryKey"`
	ArxivID       string      `gorm:"size:50;uniqueIndex;not null"`
	Title         string      `gorm:"type:text;not null"`
	Authors       StringSlice `gorm:"type:jsonb;not null"`
	Abstract      string      `gorm:"type:text;not null"`
	Categories    StringSlice `gorm:"type:jsonb;not null"`
	PublishedDate time.Time   `gorm:"index;not null"`
	PDFURL        string      `gorm:"column:pdf_url;type:text;not null"`

	RawText    *string     `gorm:"type:text"`
	Sections   JSONList    `gorm:"type:jsonb"`
	References StringSlice `gorm:"type:jsonb"`

	PDFProcessed      bool `gorm:"index;default:false"`
	PDFProcessingDate *time.Time
	ParserUsed        *string `gorm:"size:50"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (p *Paper) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// Chunk is one embedded text chunk of a paper. SearchVector is a generated
// tsvector column maintained by the database; GORM never writes it.
type Chunk struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey"`
	PaperID uuid.UUID `gorm:"type:uuid;index;not null;uniqueIndex:idx_chunks_paper_chunk,priority:1"`
	ArxivID string    `gorm:"size:50;index;not null"`

	ChunkText  string `gorm:"type:text;not null"`
	ChunkIndex int    `gorm:"not null;uniqueIndex:idx_chunks_paper_chunk,priority:2"`

	SectionName *string `gorm:"size:255"`
	PageNumber  *int
	WordCount   *int

	Embedding Vector `gorm:"type:vector(1024);not null"`

	CreatedAt time.Time
}

func (c *Chunk) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// Conversation groups the turns of one session.
type Conversation struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	SessionID string    `gorm:"size:255;uniqueIndex;not null"`
	Metadata  JSONMap   `gorm:"type:jsonb"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Turns []ConversationTurn `gorm:"constraint:OnDelete:CASCADE"`
}

func (c *Conversation) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// ConversationTurn is one user query and the agent's answer. The unique index
// on (conversation_id, turn_number) is what keeps turn numbering gap-free
// under concurrent writers.
type ConversationTurn struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	ConversationID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_conversation_turn,priority:1"`
	TurnNumber     int       `gorm:"not null;uniqueIndex:uq_conversation_turn,priority:2"`

	UserQuery     string `gorm:"type:text;not null"`
	AgentResponse string `gorm:"type:text;not null"`

	GuardrailScore    *int
	RetrievalAttempts int         `gorm:"default:1"`
	RewrittenQuery    *string     `gorm:"type:text"`
	Sources           JSONList    `gorm:"type:jsonb"`
	ReasoningSteps    StringSlice `gorm:"type:jsonb"`

	Provider string `gorm:"size:50;not null"`
	Model    string `gorm:"size:100;not null"`

	CreatedAt time.Time
}

func (t *ConversationTurn) BeforeCreate(*gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// IngestionLog records one ingestion job for observability.
type IngestionLog struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	QueryParams JSONMap   `gorm:"type:jsonb;not null"`
	Status      string    `gorm:"size:20;index;not null"`

	PapersFetched   int `gorm:"default:0"`
	PapersProcessed int `gorm:"default:0"`
	ChunksCreated   int `gorm:"default:0"`

	StartedAt       time.Time `gorm:"index"`
	CompletedAt     *time.Time
	DurationSeconds *float64

	ErrorMessage *string `gorm:"type:text"`
}

func (l *IngestionLog) BeforeCreate(*gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// saveTurnMaxRetries bounds the retry loop on turn-number collisions.
const saveTurnMaxRetries = 3

// ErrTurnConflict is returned when a turn could not be numbered even after
// retrying; it indicates pathological write contention on one session.
var ErrTurnConflict = errors.New("store: turn number conflict persisted across retries")

// TurnData is everything recorded about one completed agent turn.
type TurnData struct {
	UserQuery         string
	AgentResponse     string
	GuardrailScore    *int
	RetrievalAttempts int
	RewrittenQuery    *string
	Sources           JSONList
	ReasoningSteps    StringSlice
	Provider          string
	Model             string
}

// ConversationRepository persists conversations and their turns.
type ConversationRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewConversationRepository creates a conversation repository.
func NewConversationRepository(db *gorm.DB, logger *zap.Logger) *ConversationRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConversationRepository{
		db:     db,
		logger: logger.With(zap.String("component", "conversation_repository")),
	}
}

// GetOrCreate returns the conversation for sessionID, creating it if absent.
func (r *ConversationRepository) GetOrCreate(ctx context.Context, sessionID string) (*Conversation, error) {
	var conv Conversation
	err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&conv).Error
	if err == nil {
		return &conv, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("load conversation: %w", err)
	}

	conv = Conversation{SessionID: sessionID}
	if err := r.db.WithContext(ctx).Create(&conv).Error; err != nil {
		// Lost a create race: someone else inserted this session first.
		if isDuplicateKey(err) {
			if err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&conv).Error; err != nil {
				return nil, fmt.Errorf("load conversation after create race: %w", err)
			}
			return &conv, nil
		}
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	r.logger.Debug("conversation created", zap.String("session_id", sessionID))
	return &conv, nil
}

// GetBySessionID returns the conversation or nil when it does not exist.
func (r *ConversationRepository) GetBySessionID(ctx context.Context, sessionID string) (*Conversation, error) {
	var conv Conversation
	err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	return &conv, nil
}

// GetHistory returns up to limit most recent turns in chronological order.
// An unknown session yields an empty history, not an error.
func (r *ConversationRepository) GetHistory(ctx context.Context, sessionID string, limit int) ([]ConversationTurn, error) {
	conv, err := r.GetBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, nil
	}

	var turns []ConversationTurn
	err = r.db.WithContext(ctx).
		Where("conversation_id = ?", conv.ID).
		Order("turn_number DESC").
		Limit(limit).
		Find(&turns).Error
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	// Reverse: the query selects the newest N, the caller wants oldest first.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// TurnCount returns the number of turns stored for a session.
func (r *ConversationRepository) TurnCount(ctx context.Context, sessionID string) (int64, error) {
	conv, err := r.GetBySessionID(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	if conv == nil {
		return 0, nil
	}
	var count int64
	if err := r.db.WithContext(ctx).Model(&ConversationTurn{}).
		Where("conversation_id = ?", conv.ID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count turns: %w", err)
	}
	return count, nil
}

// SaveTurn appends a turn with the next free turn number. The conversation
// row is locked for the transaction so concurrent writers line up; if two
// writers still race past each other, the unique (conversation_id,
// turn_number) index rejects the loser and the insert is retried with a fresh
// number. Numbers come out gap-free: 0, 1, 2, ...
func (r *ConversationRepository) SaveTurn(ctx context.Context, sessionID string, turn TurnData) (*ConversationTurn, error) {
	if turn.RetrievalAttempts <= 0 {
		turn.RetrievalAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= saveTurnMaxRetries; attempt++ {
		ct, err := r.trySaveTurn(ctx, sessionID, turn)
		if err == nil {
			r.logger.Debug("turn saved",
				zap.String("session_id", sessionID),
				zap.Int("turn_number", ct.TurnNumber),
			)
			return ct, nil
		}
		if !isDuplicateKey(err) {
			return nil, err
		}
		lastErr = err
		r.logger.Warn("turn number collision, retrying",
			zap.String("session_id", sessionID),
			zap.Int("attempt", attempt),
		)
	}
	return nil, fmt.Errorf("%w (last error: %v)", ErrTurnConflict, lastErr)
}

func (r *ConversationRepository) trySaveTurn(ctx context.Context, sessionID string, turn TurnData) (*ConversationTurn, error) {
	var saved ConversationTurn
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked := tx
		// SQLite serializes writers on its own and rejects FOR UPDATE.
		if tx.Dialector.Name() == "postgres" {
			locked = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var conv Conversation
		err := locked.Where("session_id = ?", sessionID).First(&conv).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			conv = Conversation{SessionID: sessionID}
			if err := tx.Create(&conv).Error; err != nil {
				return fmt.Errorf("create conversation: %w", err)
			}
		} else if err != nil {
			return fmt.Errorf("lock conversation: %w", err)
		}

		maxTurn := -1
		if err := tx.Model(&ConversationTurn{}).
			Where("conversation_id = ?", conv.ID).
			Select("COALESCE(MAX(turn_number), -1)").
			Scan(&maxTurn).Error; err != nil {
			return fmt.Errorf("read max turn number: %w", err)
		}
		next := maxTurn + 1

		saved = ConversationTurn{
			ConversationID:    conv.ID,
			TurnNumber:        next,
			UserQuery:         turn.UserQuery,
			AgentResponse:     turn.AgentResponse,
			GuardrailScore:    turn.GuardrailScore,
			RetrievalAttempts: turn.RetrievalAttempts,
			RewrittenQuery:    turn.RewrittenQuery,
			Sources:           turn.Sources,
			ReasoningSteps:    turn.ReasoningSteps,
			Provider:          turn.Provider,
			Model:             turn.Model,
		}
		return tx.Create(&saved).Error
	})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

// Delete removes a conversation and its turns. Returns false when the
// session does not exist.
func (r *ConversationRepository) Delete(ctx context.Context, sessionID string) (bool, error) {
	conv, err := r.GetBySessionID(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if conv == nil {
		return false, nil
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", conv.ID).Delete(&ConversationTurn{}).Error; err != nil {
			return err
		}
		return tx.Delete(conv).Error
	})
	if err != nil {
		return false, fmt.Errorf("delete conversation: %w", err)
	}

	r.logger.Info("conversation deleted", zap.String("session_id", sessionID))
	return true, nil
}

// List returns conversations newest first.
func (r *ConversationRepository) List(ctx context.Context, limit, offset int) ([]Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	var convs []Conversation
	err := r.db.WithContext(ctx).
		Order("updated_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&convs).Error
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return convs, nil
}

// isDuplicateKey reports whether err is a unique constraint violation. GORM
// translates driver errors when possible; the string checks cover drivers
// that bypass translation.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "constraint failed")
}

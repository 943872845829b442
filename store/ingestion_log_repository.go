package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// IngestionLogRepository records ingestion jobs.
type IngestionLogRepository struct {
	db *gorm.DB
}

func NewIngestionLogRepository(db *gorm.DB) *IngestionLogRepository {
	return &IngestionLogRepository{db: db}
}

// Start inserts a running log entry for a new job.
func (r *IngestionLogRepository) Start(ctx context.Context, queryParams JSONMap) (*IngestionLog, error) {
	entry := &IngestionLog{
		QueryParams: queryParams,
		Status:      "running",
		StartedAt:   time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

// Complete marks a job finished with its counters.
func (r *IngestionLogRepository) Complete(ctx context.Context, id uuid.UUID, fetched, processed, chunks int) error {
	return r.finish(ctx, id, "completed", fetched, processed, chunks, nil)
}

// Fail marks a job failed and records the error message.
func (r *IngestionLogRepository) Fail(ctx context.Context, id uuid.UUID, errMsg string) error {
	return r.finish(ctx, id, "failed", 0, 0, 0, &errMsg)
}

func (r *IngestionLogRepository) finish(ctx context.Context, id uuid.UUID, status string, fetched, processed, chunks int, errMsg *string) error {
	var entry IngestionLog
	if err := r.db.WithContext(ctx).First(&entry, "id = ?", id).Error; err != nil {
		return err
	}

	now := time.Now().UTC()
	duration := now.Sub(entry.StartedAt).Seconds()
	updates := map[string]any{
		"status":           status,
		"papers_fetched":   fetched,
		"papers_processed": processed,
		"chunks_created":   chunks,
		"completed_at":     now,
		"duration_seconds": duration,
	}
	if errMsg != nil {
		updates["error_message"] = *errMsg
	}
	return r.db.WithContext(ctx).Model(&IngestionLog{}).Where("id = ?", id).Updates(updates).Error
}

// Recent returns the latest job entries, newest first.
func (r *IngestionLogRepository) Recent(ctx context.Context, limit int) ([]IngestionLog, error) {
	if limit <= 0 {
		limit = 20
	}
	var entries []IngestionLog
	err := r.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PaperRepository persists papers and their chunks.
type PaperRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewPaperRepository creates a paper repository.
func NewPaperRepository(db *gorm.DB, logger *zap.Logger) *PaperRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaperRepository{
		db:     db,
		logger: logger.With(zap.String("component", "paper_repository")),
	}
}

// GetByID returns the paper or nil when not found.
func (r *PaperRepository) GetByID(ctx context.Context, id uuid.UUID) (*Paper, error) {
	var paper Paper
	err := r.db.WithContext(ctx).First(&paper, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load paper: %w", err)
	}
	return &paper, nil
}

// GetByArxivID returns the paper or nil when not found.
func (r *PaperRepository) GetByArxivID(ctx context.Context, arxivID string) (*Paper, error) {
	var paper Paper
	err := r.db.WithContext(ctx).First(&paper, "arxiv_id = ?", arxivID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load paper: %w", err)
	}
	return &paper, nil
}

// Exists reports whether the arXiv ID is already ingested.
func (r *PaperRepository) Exists(ctx context.Context, arxivID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&Paper{}).Where("arxiv_id = ?", arxivID).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check paper exists: %w", err)
	}
	return count > 0, nil
}

// Create inserts a new paper.
func (r *PaperRepository) Create(ctx context.Context, paper *Paper) error {
	if err := r.db.WithContext(ctx).Create(paper).Error; err != nil {
		return fmt.Errorf("create paper: %w", err)
	}
	r.logger.Debug("paper created", zap.String("arxiv_id", paper.ArxivID))
	return nil
}

// MarkProcessed records the parsed content for a paper.
func (r *PaperRepository) MarkProcessed(ctx context.Context, id uuid.UUID, rawText string, sections JSONList, parserUsed string) error {
	now := time.Now().UTC()
	err := r.db.WithContext(ctx).Model(&Paper{}).Where("id = ?", id).Updates(map[string]any{
		"raw_text":            rawText,
		"sections":            sections,
		"pdf_processed":       true,
		"pdf_processing_date": now,
		"parser_used":         parserUsed,
		"updated_at":          now,
	}).Error
	if err != nil {
		return fmt.Errorf("mark paper processed: %w", err)
	}
	return nil
}

// List returns papers newest first, with the total count for pagination.
func (r *PaperRepository) List(ctx context.Context, limit, offset int) ([]Paper, int64, error) {
	if limit <= 0 {
		limit = 20
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&Paper{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count papers: %w", err)
	}

	var papers []Paper
	err := r.db.WithContext(ctx).
		Order("published_date DESC").
		Limit(limit).
		Offset(offset).
		Find(&papers).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list papers: %w", err)
	}
	return papers, total, nil
}

// ReplaceChunks atomically swaps a paper's chunks for a freshly chunked set.
func (r *PaperRepository) ReplaceChunks(ctx context.Context, paperID uuid.UUID, chunks []Chunk) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("paper_id = ?", paperID).Delete(&Chunk{}).Error; err != nil {
			return fmt.Errorf("delete old chunks: %w", err)
		}
		if len(chunks) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(chunks, 100).Error; err != nil {
			return fmt.Errorf("insert chunks: %w", err)
		}
		return nil
	})
}

// GetChunks returns a paper's chunks in order.
func (r *PaperRepository) GetChunks(ctx context.Context, paperID uuid.UUID) ([]Chunk, error) {
	var chunks []Chunk
	err := r.db.WithContext(ctx).
		Where("paper_id = ?", paperID).
		Order("chunk_index ASC").
		Find(&chunks).Error
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}
	return chunks, nil
}

// ChunkCount returns the number of chunks stored for a paper.
func (r *PaperRepository) ChunkCount(ctx context.Context, paperID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&Chunk{}).Where("paper_id = ?", paperID).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return count, nil
}

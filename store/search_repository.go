package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/paperflow/search"
)

// SearchRepository runs retrieval queries against the chunks table. It
// implements search.Repository.
type SearchRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewSearchRepository creates a search repository.
func NewSearchRepository(db *gorm.DB, logger *zap.Logger) *SearchRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SearchRepository{
		db:     db,
		logger: logger.With(zap.String("component", "search_repository")),
	}
}

// searchRow is the scan target shared by both query shapes.
type searchRow struct {
	ChunkID       string `gorm:"column:chunk_id"`
	PaperID       string
	ArxivID       string
	Title         string
	Authors       StringSlice
	ChunkText     string
	SectionName   *string
	PageNumber    *int
	Score         float64
	PublishedDate *time.Time
	PDFURL        string `gorm:"column:pdf_url"`
}

func (r searchRow) toResult() search.Result {
	res := search.Result{
		ChunkID:   r.ChunkID,
		PaperID:   r.PaperID,
		ArxivID:   r.ArxivID,
		Title:     r.Title,
		Authors:   r.Authors,
		ChunkText: r.ChunkText,
		Score:     r.Score,
		PDFURL:    r.PDFURL,
	}
	if r.SectionName != nil {
		res.SectionName = *r.SectionName
	}
	if r.PageNumber != nil {
		res.PageNumber = *r.PageNumber
	}
	if r.PublishedDate != nil {
		res.PublishedDate = r.PublishedDate.Format(time.RFC3339)
	}
	return res
}

// VectorSearch returns the topK chunks nearest to the query embedding by
// cosine similarity, filtered to similarity >= minScore.
func (r *SearchRepository) VectorSearch(ctx context.Context, embedding []float64, topK int, minScore float64) ([]search.Result, error) {
	vec := Vector(embedding).String()

	const query = `
		SELECT
			c.id AS chunk_id,
			c.paper_id,
			c.arxiv_id,
			p.title,
			p.authors,
			c.chunk_text,
			c.section_name,
			c.page_number,
			1 - (c.embedding <=> ?::vector) AS score,
			p.published_date,
			p.pdf_url
		FROM chunks c
		JOIN papers p ON c.paper_id = p.id
		WHERE 1 - (c.embedding <=> ?::vector) >= ?
		ORDER BY c.embedding <=> ?::vector
		LIMIT ?`

	var rows []searchRow
	if err := r.db.WithContext(ctx).Raw(query, vec, vec, minScore, vec, topK).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	results := make([]search.Result, len(rows))
	for i, row := range rows {
		res := row.toResult()
		score := row.Score
		res.VectorScore = &score
		results[i] = res
	}

	r.logger.Debug("vector search",
		zap.Int("top_k", topK),
		zap.Float64("min_score", minScore),
		zap.Int("results", len(results)),
	)
	return results, nil
}

// FulltextSearch matches chunks whose tsvector satisfies all query terms,
// ranked by ts_rank. A query with no usable terms returns no results rather
// than an invalid tsquery error.
func (r *SearchRepository) FulltextSearch(ctx context.Context, query string, topK int) ([]search.Result, error) {
	tsQuery := PrepareTsQuery(query)
	if tsQuery == "" {
		return []search.Result{}, nil
	}

	const sqlQuery = `
		SELECT
			c.id AS chunk_id,
			c.paper_id,
			c.arxiv_id,
			p.title,
			p.authors,
			c.chunk_text,
			c.section_name,
			c.page_number,
			ts_rank(c.search_vector, to_tsquery('english', ?)) AS score,
			p.published_date,
			p.pdf_url
		FROM chunks c
		JOIN papers p ON c.paper_id = p.id
		WHERE c.search_vector @@ to_tsquery('english', ?)
		ORDER BY score DESC
		LIMIT ?`

	var rows []searchRow
	if err := r.db.WithContext(ctx).Raw(sqlQuery, tsQuery, tsQuery, topK).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("fulltext search: %w", err)
	}

	results := make([]search.Result, len(rows))
	for i, row := range rows {
		res := row.toResult()
		score := row.Score
		res.TextScore = &score
		results[i] = res
	}

	r.logger.Debug("fulltext search",
		zap.String("ts_query", tsQuery),
		zap.Int("results", len(results)),
	)
	return results, nil
}

// PrepareTsQuery turns free text into an AND-conjunction tsquery
// ("neural & networks"). Characters with tsquery syntax meaning are stripped
// from each term so user input cannot produce a malformed query.
func PrepareTsQuery(query string) string {
	terms := strings.Fields(query)
	cleaned := make([]string, 0, len(terms))
	for _, term := range terms {
		term = strings.Map(func(r rune) rune {
			switch r {
			case '&', '|', '!', '(', ')', ':', '*', '\'', '<', '>':
				return -1
			}
			return r
		}, term)
		if term != "" {
			cleaned = append(cleaned, term)
		}
	}
	return strings.Join(cleaned, " & ")
}

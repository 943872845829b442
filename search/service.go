package search

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/paperflow/llm/embedding"
)

// MetricsRecorder receives per-search outcomes. A nil recorder disables
// recording.
type MetricsRecorder interface {
	RecordSearch(mode, status string, duration time.Duration, resultCount int)
}

// ServiceConfig tunes the hybrid search service.
type ServiceConfig struct {
	// RRFK is the reciprocal rank fusion constant.
	RRFK int `yaml:"rrf_k" json:"rrf_k"`
	// DefaultTopK is used when a request passes topK <= 0.
	DefaultTopK int `yaml:"default_top_k" json:"default_top_k"`
}

// DefaultServiceConfig returns the defaults used by the agent workflow.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{RRFK: DefaultRRFK, DefaultTopK: 10}
}

// Service orchestrates vector search, full-text search, and rank fusion.
type Service struct {
	repo     Repository
	embedder embedding.Provider
	cfg      ServiceConfig
	metrics  MetricsRecorder
	logger   *zap.Logger
}

// NewService creates a hybrid search service.
func NewService(repo Repository, embedder embedding.Provider, cfg ServiceConfig, logger *zap.Logger) *Service {
	if cfg.RRFK <= 0 {
		cfg.RRFK = DefaultRRFK
	}
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:     repo,
		embedder: embedder,
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "search")),
	}
}

// SetMetrics attaches a search recorder; call before serving traffic.
func (s *Service) SetMetrics(m MetricsRecorder) {
	s.metrics = m
}

// Search runs a query in the given mode and returns up to topK results, best
// first. Storage or embedding failures surface as *Error; they are never
// silently degraded to partial results.
func (s *Service) Search(ctx context.Context, query string, topK int, mode Mode, minScore float64) ([]Result, error) {
	if topK <= 0 {
		topK = s.cfg.DefaultTopK
	}
	switch mode {
	case ModeVector, ModeFulltext:
	default:
		mode = ModeHybrid
	}

	start := time.Now()
	results, err := s.dispatch(ctx, query, topK, mode, minScore)
	if s.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		s.metrics.RecordSearch(string(mode), status, time.Since(start), len(results))
	}
	return results, err
}

func (s *Service) dispatch(ctx context.Context, query string, topK int, mode Mode, minScore float64) ([]Result, error) {
	switch mode {
	case ModeVector:
		return s.vectorSearch(ctx, query, topK, minScore)
	case ModeFulltext:
		return s.fulltextSearch(ctx, query, topK)
	default:
		return s.hybridSearch(ctx, query, topK, minScore)
	}
}

func (s *Service) vectorSearch(ctx context.Context, query string, topK int, minScore float64) ([]Result, error) {
	vec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, &Error{Mode: ModeVector, Stage: "embed", Err: err}
	}
	results, err := s.repo.VectorSearch(ctx, vec, topK, minScore)
	if err != nil {
		return nil, &Error{Mode: ModeVector, Stage: "vector", Err: err}
	}
	return results, nil
}

func (s *Service) fulltextSearch(ctx context.Context, query string, topK int) ([]Result, error) {
	results, err := s.repo.FulltextSearch(ctx, query, topK)
	if err != nil {
		return nil, &Error{Mode: ModeFulltext, Stage: "fulltext", Err: err}
	}
	return results, nil
}

// hybridSearch over-fetches 2*topK from each leg so fusion has headroom, then
// fuses and truncates to topK.
func (s *Service) hybridSearch(ctx context.Context, query string, topK int, minScore float64) ([]Result, error) {
	fetchK := topK * 2

	vec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, &Error{Mode: ModeHybrid, Stage: "embed", Err: err}
	}
	vectorResults, err := s.repo.VectorSearch(ctx, vec, fetchK, minScore)
	if err != nil {
		return nil, &Error{Mode: ModeHybrid, Stage: "vector", Err: err}
	}
	fulltextResults, err := s.repo.FulltextSearch(ctx, query, fetchK)
	if err != nil {
		return nil, &Error{Mode: ModeHybrid, Stage: "fulltext", Err: err}
	}

	fusedResults := FuseRanked(vectorResults, fulltextResults, topK, s.cfg.RRFK)

	s.logger.Debug("hybrid search complete",
		zap.String("query", query),
		zap.Int("vector_results", len(vectorResults)),
		zap.Int("fulltext_results", len(fulltextResults)),
		zap.Int("fused_results", len(fusedResults)),
	)
	return fusedResults, nil
}

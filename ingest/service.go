package ingest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/paperflow/arxiv"
	"github.com/BaSui01/paperflow/llm/embedding"
	"github.com/BaSui01/paperflow/store"
)

// Result summarizes one ingestion run.
type Result struct {
	PapersFetched   int      `json:"papers_fetched"`
	PapersProcessed int      `json:"papers_processed"`
	PapersSkipped   int      `json:"papers_skipped"`
	ChunksCreated   int      `json:"chunks_created"`
	ArxivIDs        []string `json:"arxiv_ids"`
}

// Service runs the fetch-chunk-embed-store pipeline.
type Service struct {
	arxiv    *arxiv.Client
	papers   *store.PaperRepository
	logs     *store.IngestionLogRepository
	embedder embedding.Provider
	chunker  *Chunker
	logger   *zap.Logger

	// concurrency bounds parallel per-paper processing.
	concurrency int
}

// NewService creates an ingestion service. logs may be nil, in which case
// runs are not recorded.
func NewService(arxivClient *arxiv.Client, papers *store.PaperRepository, logs *store.IngestionLogRepository, embedder embedding.Provider, chunker *Chunker, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		arxiv:       arxivClient,
		papers:      papers,
		logs:        logs,
		embedder:    embedder,
		chunker:     chunker,
		logger:      logger.With(zap.String("component", "ingest")),
		concurrency: 4,
	}
}

// IngestQuery searches arXiv and ingests every paper not already indexed.
func (s *Service) IngestQuery(ctx context.Context, query string, maxResults int) (*Result, error) {
	return s.run(ctx, store.JSONMap{"query": query, "max_results": maxResults}, func() ([]arxiv.Paper, error) {
		return s.arxiv.Search(ctx, query, maxResults)
	})
}

// IngestByID ingests specific arXiv IDs.
func (s *Service) IngestByID(ctx context.Context, arxivIDs []string) (*Result, error) {
	return s.run(ctx, store.JSONMap{"arxiv_ids": arxivIDs}, func() ([]arxiv.Paper, error) {
		return s.arxiv.GetByID(ctx, arxivIDs)
	})
}

// run fetches papers, ingests them, and records the job outcome.
func (s *Service) run(ctx context.Context, params store.JSONMap, fetch func() ([]arxiv.Paper, error)) (*Result, error) {
	var entry *store.IngestionLog
	if s.logs != nil {
		var err error
		if entry, err = s.logs.Start(ctx, params); err != nil {
			s.logger.Warn("failed to record ingestion start", zap.Error(err))
			entry = nil
		}
	}

	fetched, err := fetch()
	if err != nil {
		err = fmt.Errorf("fetch papers: %w", err)
		s.recordFailure(ctx, entry, err)
		return nil, err
	}

	result, err := s.ingestPapers(ctx, fetched)
	if err != nil {
		s.recordFailure(ctx, entry, err)
		return nil, err
	}
	if entry != nil {
		if logErr := s.logs.Complete(ctx, entry.ID, result.PapersFetched, result.PapersProcessed, result.ChunksCreated); logErr != nil {
			s.logger.Warn("failed to record ingestion completion", zap.Error(logErr))
		}
	}
	return result, nil
}

func (s *Service) recordFailure(ctx context.Context, entry *store.IngestionLog, cause error) {
	if entry == nil {
		return
	}
	// The run may have failed because ctx was cancelled; still record it.
	ctx = context.WithoutCancel(ctx)
	if logErr := s.logs.Fail(ctx, entry.ID, cause.Error()); logErr != nil {
		s.logger.Warn("failed to record ingestion failure", zap.Error(logErr))
	}
}

func (s *Service) ingestPapers(ctx context.Context, fetched []arxiv.Paper) (*Result, error) {
	result := &Result{PapersFetched: len(fetched)}

	type outcome struct {
		arxivID string
		chunks  int
		skipped bool
	}
	outcomes := make([]outcome, len(fetched))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, paper := range fetched {
		g.Go(func() error {
			exists, err := s.papers.Exists(ctx, paper.ArxivID)
			if err != nil {
				return err
			}
			if exists {
				outcomes[i] = outcome{arxivID: paper.ArxivID, skipped: true}
				return nil
			}

			chunks, err := s.ingestOne(ctx, paper)
			if err != nil {
				return fmt.Errorf("ingest %s: %w", paper.ArxivID, err)
			}
			outcomes[i] = outcome{arxivID: paper.ArxivID, chunks: chunks}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, o := range outcomes {
		if o.skipped {
			result.PapersSkipped++
			continue
		}
		result.PapersProcessed++
		result.ChunksCreated += o.chunks
		result.ArxivIDs = append(result.ArxivIDs, o.arxivID)
	}

	s.logger.Info("ingestion complete",
		zap.Int("fetched", result.PapersFetched),
		zap.Int("processed", result.PapersProcessed),
		zap.Int("skipped", result.PapersSkipped),
		zap.Int("chunks", result.ChunksCreated),
	)
	return result, nil
}

// ingestOne stores the paper record and its embedded abstract chunks.
func (s *Service) ingestOne(ctx context.Context, paper arxiv.Paper) (int, error) {
	record := &store.Paper{
		ArxivID:       paper.ArxivID,
		Title:         paper.Title,
		Authors:       store.StringSlice(paper.Authors),
		Abstract:      paper.Summary,
		Categories:    store.StringSlice(paper.Categories),
		PublishedDate: paper.Published,
		PDFURL:        paper.PDFURL,
	}
	if err := s.papers.Create(ctx, record); err != nil {
		return 0, err
	}

	sections := []Section{{Name: "Abstract", Text: paper.Summary}}
	chunks, err := s.chunker.ChunkSections(sections)
	if err != nil {
		return 0, fmt.Errorf("chunk paper: %w", err)
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	stored, err := s.embedAndConvert(ctx, record, chunks)
	if err != nil {
		return 0, err
	}
	if err := s.papers.ReplaceChunks(ctx, record.ID, stored); err != nil {
		return 0, err
	}
	return len(stored), nil
}

// IndexFullText chunks and indexes parsed full text for an already ingested
// paper, replacing its abstract-only chunks.
func (s *Service) IndexFullText(ctx context.Context, arxivID string, sections []Section, parserUsed string) (int, error) {
	record, err := s.papers.GetByArxivID(ctx, arxivID)
	if err != nil {
		return 0, err
	}
	if record == nil {
		return 0, fmt.Errorf("paper %s is not ingested", arxivID)
	}

	chunks, err := s.chunker.ChunkSections(sections)
	if err != nil {
		return 0, fmt.Errorf("chunk paper: %w", err)
	}

	stored, err := s.embedAndConvert(ctx, record, chunks)
	if err != nil {
		return 0, err
	}
	if err := s.papers.ReplaceChunks(ctx, record.ID, stored); err != nil {
		return 0, err
	}

	var rawText string
	sectionMeta := make(store.JSONList, 0, len(sections))
	for _, sec := range sections {
		rawText += sec.Text + "\n\n"
		sectionMeta = append(sectionMeta, map[string]any{
			"title":  sec.Name,
			"length": len(sec.Text),
		})
	}
	if err := s.papers.MarkProcessed(ctx, record.ID, rawText, sectionMeta, parserUsed); err != nil {
		return 0, err
	}
	return len(stored), nil
}

// embedAndConvert embeds chunk texts in provider-sized batches and builds the
// storage rows.
func (s *Service) embedAndConvert(ctx context.Context, paper *store.Paper, chunks []Chunk) ([]store.Chunk, error) {
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}

	batchSize := s.embedder.MaxBatchSize()
	if batchSize <= 0 {
		batchSize = len(texts)
	}

	var vectors [][]float64
	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))
		batch, err := s.embedder.EmbedDocuments(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed chunks: %w", err)
		}
		vectors = append(vectors, batch...)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedding count mismatch: %d chunks, %d vectors", len(chunks), len(vectors))
	}

	now := time.Now().UTC()
	stored := make([]store.Chunk, len(chunks))
	for i, ch := range chunks {
		wordCount := ch.WordCount
		row := store.Chunk{
			PaperID:    paper.ID,
			ArxivID:    paper.ArxivID,
			ChunkText:  ch.Text,
			ChunkIndex: ch.Index,
			WordCount:  &wordCount,
			Embedding:  store.Vector(vectors[i]),
			CreatedAt:  now,
		}
		if ch.SectionName != "" {
			name := ch.SectionName
			row.SectionName = &name
		}
		stored[i] = row
	}
	return stored, nil
}

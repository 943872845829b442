package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/paperflow/agent"
	"github.com/BaSui01/paperflow/agent/tools"
	"github.com/BaSui01/paperflow/api/handlers"
	"github.com/BaSui01/paperflow/arxiv"
	"github.com/BaSui01/paperflow/config"
	"github.com/BaSui01/paperflow/ingest"
	"github.com/BaSui01/paperflow/internal/cache"
	"github.com/BaSui01/paperflow/internal/database"
	"github.com/BaSui01/paperflow/internal/metrics"
	"github.com/BaSui01/paperflow/internal/telemetry"
	"github.com/BaSui01/paperflow/llm"
	"github.com/BaSui01/paperflow/llm/embedding"
	"github.com/BaSui01/paperflow/search"
	"github.com/BaSui01/paperflow/store"
)

// Server owns every long-lived component and the two HTTP listeners (API and
// metrics).
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	pool      *database.Pool
	cacheMgr  *cache.Manager
	otel      *telemetry.Providers
	collector *metrics.Collector

	httpServer    *http.Server
	metricsServer *http.Server

	shutdownCh chan struct{}
}

// NewServer creates the server; components are wired in Start.
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{cfg: cfg, logger: logger, shutdownCh: make(chan struct{})}
}

// Start wires all components and launches the listeners.
func (s *Server) Start() error {
	s.collector = metrics.NewCollector("paperflow", prometheus.DefaultRegisterer, s.logger)

	otelProviders, err := telemetry.Init(s.cfg.Telemetry, s.logger)
	if err != nil {
		s.logger.Warn("telemetry init failed, tracing disabled", zap.Error(err))
	}
	s.otel = otelProviders

	pool, err := database.Open(databaseConfig(s.cfg.Database), s.logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	s.pool = pool
	db := pool.DB()

	// Redis is optional: without it the service runs, history just skips
	// the cache.
	var historyCache *cache.HistoryCache
	cacheMgr, err := cache.NewManager(cacheConfig(s.cfg.Redis), s.logger)
	if err != nil {
		s.logger.Warn("redis unavailable, history cache disabled", zap.Error(err))
	} else {
		s.cacheMgr = cacheMgr
		historyCache = cache.NewHistoryCache(cacheMgr, s.cfg.Redis.HistoryTTL, s.logger)
		historyCache.SetMetrics(s.collector)
	}

	llmClient := llm.NewOpenAIClient(llmConfig(s.cfg.LLM), s.logger)
	llmClient.SetMetrics(s.collector)
	embedder := buildEmbedder(s.cfg.Embedding)

	papers := store.NewPaperRepository(db, s.logger)
	conversations := store.NewConversationRepository(db, s.logger)
	logs := store.NewIngestionLogRepository(db)

	searchService := search.NewService(
		store.NewSearchRepository(db, s.logger),
		embedder,
		search.ServiceConfig{RRFK: s.cfg.Search.RRFK, DefaultTopK: s.cfg.Search.DefaultTopK},
		s.logger,
	)
	searchService.SetMetrics(s.collector)

	arxivClient := arxiv.NewClient(arxivConfig(s.cfg.Arxiv), s.logger)
	chunker := ingest.NewChunker(
		chunkerConfig(s.cfg.Ingest),
		ingest.NewTiktokenTokenizer(s.cfg.Ingest.Encoding),
	)
	ingestService := ingest.NewService(arxivClient, papers, logs, embedder, chunker, s.logger)

	registry := tools.NewRegistry(s.cfg.Agent.ToolTimeout, s.logger)
	registry.SetMetrics(s.collector)
	registry.MustRegister(
		tools.NewRetrieveChunksTool(searchService, retrieveTopK(s.cfg.Agent), s.cfg.Search.MinScore),
		tools.NewListPapersTool(papers),
		tools.NewSummarizePaperTool(papers, llmClient),
		tools.NewExploreCitationsTool(papers),
		tools.NewArxivSearchTool(arxivClient),
		tools.NewIngestPapersTool(ingestService),
		tools.NewWebSearchTool(),
	)

	agentService := agent.NewService(
		llmClient, registry, conversations, historyCache, s.collector, s.cfg.Agent, s.logger,
	)

	healthHandler := handlers.NewHealthHandler(Version, s.logger)
	healthHandler.RegisterCheck(handlers.CheckFunc{CheckName: "database", Fn: pool.Ping})
	if s.cacheMgr != nil {
		healthHandler.RegisterCheck(handlers.CheckFunc{CheckName: "redis", Fn: s.cacheMgr.Ping})
	}

	mux := s.buildMux(
		handlers.NewAskHandler(agentService, s.logger),
		handlers.NewSearchHandler(searchService, s.logger),
		handlers.NewConversationHandler(conversations, s.logger),
		handlers.NewPaperHandler(papers, ingestService, s.logger),
		healthHandler,
	)

	s.startHTTPServer(mux)
	s.startMetricsServer()

	s.logger.Info("all servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.String("llm_provider", llmClient.Name()),
		zap.String("embedding_provider", embedder.Name()),
		zap.Strings("tools", registry.Names()),
	)
	return nil
}

func (s *Server) buildMux(
	ask *handlers.AskHandler,
	searchHandler *handlers.SearchHandler,
	conversations *handlers.ConversationHandler,
	papers *handlers.PaperHandler,
	health *handlers.HealthHandler,
) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", health.HandleHealth)
	mux.HandleFunc("GET /readyz", health.HandleReady)
	mux.HandleFunc("GET /version", health.HandleVersion(BuildTime, GitCommit))

	mux.HandleFunc("POST /api/v1/ask", ask.HandleAsk)
	mux.HandleFunc("POST /api/v1/ask/stream", ask.HandleAskStream)

	mux.HandleFunc("POST /api/v1/search", searchHandler.HandleSearch)

	mux.HandleFunc("GET /api/v1/conversations", conversations.HandleList)
	mux.HandleFunc("GET /api/v1/conversations/{session_id}", conversations.HandleGet)
	mux.HandleFunc("DELETE /api/v1/conversations/{session_id}", conversations.HandleDelete)

	mux.HandleFunc("GET /api/v1/papers", papers.HandleList)
	mux.HandleFunc("POST /api/v1/papers/ingest", papers.HandleIngest)
	mux.HandleFunc("GET /api/v1/papers/{arxiv_id}", papers.HandleGet)

	return Chain(mux,
		Recovery(s.logger),
		RequestLogger(s.logger),
		Metrics(s.collector),
	)
}

// retrieveTopK gives retrieve_chunks headroom over the answer-time chunk
// budget so grading can discard irrelevant hits without starving generation.
func retrieveTopK(cfg config.AgentConfig) int {
	return 2 * cfg.TopK
}

func (s *Server) buildAPIServer(handler http.Handler) *http.Server {
	return &http.Server{
		Addr:        fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		Handler:     handler,
		ReadTimeout: s.cfg.Server.ReadTimeout,
		// WriteTimeout stays unset: SSE responses outlive any fixed budget;
		// the agent's run timeout bounds them instead.
	}
}

func (s *Server) buildMetricsServer() *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		Handler:      mux,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}
}

func (s *Server) startHTTPServer(handler http.Handler) {
	s.httpServer = s.buildAPIServer(handler)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server failed", zap.Error(err))
		}
	}()
}

func (s *Server) startMetricsServer() {
	s.metricsServer = s.buildMetricsServer()
	go func() {
		if err := s.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("metrics server failed", zap.Error(err))
		}
	}()
}

// WaitForShutdown blocks until SIGINT/SIGTERM, then drains everything.
func (s *Server) WaitForShutdown() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	s.logger.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("http shutdown error", zap.Error(err))
		}
	}
	if s.metricsServer != nil {
		if err := s.metricsServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("metrics shutdown error", zap.Error(err))
		}
	}
	if s.otel != nil {
		if err := s.otel.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("telemetry shutdown error", zap.Error(err))
		}
	}
	if s.cacheMgr != nil {
		if err := s.cacheMgr.Close(); err != nil {
			s.logger.Warn("redis close error", zap.Error(err))
		}
	}
	if s.pool != nil {
		if err := s.pool.Close(); err != nil {
			s.logger.Warn("database close error", zap.Error(err))
		}
	}
	close(s.shutdownCh)
}

func databaseConfig(cfg config.DatabaseConfig) database.Config {
	out := database.DefaultConfig()
	out.DSN = cfg.DSN()
	if cfg.MaxOpenConns > 0 {
		out.MaxOpenConns = cfg.MaxOpenConns
	}
	if cfg.MaxIdleConns > 0 {
		out.MaxIdleConns = cfg.MaxIdleConns
	}
	if cfg.ConnMaxLifetime > 0 {
		out.ConnMaxLifetime = cfg.ConnMaxLifetime
	}
	return out
}

func cacheConfig(cfg config.RedisConfig) cache.Config {
	out := cache.DefaultConfig()
	if cfg.Addr != "" {
		out.Addr = cfg.Addr
	}
	out.Password = cfg.Password
	out.DB = cfg.DB
	if cfg.PoolSize > 0 {
		out.PoolSize = cfg.PoolSize
	}
	if cfg.MinIdleConns > 0 {
		out.MinIdleConns = cfg.MinIdleConns
	}
	if cfg.HistoryTTL > 0 {
		out.DefaultTTL = cfg.HistoryTTL
	}
	return out
}

func llmConfig(cfg config.LLMConfig) llm.OpenAIConfig {
	out := llm.DefaultOpenAIConfig()
	if cfg.Provider != "" {
		out.ProviderName = cfg.Provider
	}
	out.APIKey = cfg.APIKey
	if cfg.BaseURL != "" {
		out.BaseURL = cfg.BaseURL
	}
	if cfg.Model != "" {
		out.Model = cfg.Model
	}
	if cfg.Timeout > 0 {
		out.Timeout = cfg.Timeout
	}
	return out
}

func buildEmbedder(cfg config.EmbeddingConfig) embedding.Provider {
	embCfg := embedding.Config{
		Name:       cfg.Provider,
		BaseURL:    cfg.BaseURL,
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		Dimensions: cfg.Dimensions,
		Timeout:    cfg.Timeout,
	}
	if strings.EqualFold(cfg.Provider, "jina") {
		return embedding.NewJinaProvider(embCfg)
	}
	return embedding.NewOpenAIProvider(embCfg)
}

func arxivConfig(cfg config.ArxivConfig) arxiv.Config {
	out := arxiv.DefaultConfig()
	if cfg.BaseURL != "" {
		out.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		out.Timeout = cfg.Timeout
	}
	if cfg.RequestsPer > 0 {
		out.RequestsPer = cfg.RequestsPer
	}
	if cfg.MaxResults > 0 {
		out.MaxResults = cfg.MaxResults
	}
	return out
}

func chunkerConfig(cfg config.IngestConfig) ingest.ChunkerConfig {
	out := ingest.DefaultChunkerConfig()
	if cfg.ChunkTokens > 0 {
		out.ChunkTokens = cfg.ChunkTokens
	}
	if cfg.OverlapTokens > 0 {
		out.OverlapTokens = cfg.OverlapTokens
	}
	return out
}

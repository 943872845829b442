package config

import "time"

// DefaultConfig returns the full default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Database:  DefaultDatabaseConfig(),
		Redis:     DefaultRedisConfig(),
		LLM:       DefaultLLMConfig(),
		Embedding: DefaultEmbeddingConfig(),
		Agent:     DefaultAgentConfig(),
		Search:    DefaultSearchConfig(),
		Arxiv:     DefaultArxivConfig(),
		Ingest:    DefaultIngestConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig returns default HTTP server settings.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second, // metrics listener only; the API listener streams
		ShutdownTimeout: 15 * time.Second,
	}
}

// DefaultDatabaseConfig returns default Postgres settings.
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Host:            "localhost",
		Port:            5432,
		User:            "paperflow",
		Name:            "paperflow",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultRedisConfig returns default cache settings.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		PoolSize:     10,
		MinIdleConns: 2,
		HistoryTTL:   2 * time.Minute,
	}
}

// DefaultLLMConfig returns default completion provider settings.
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider: "openai",
		Model:    "gpt-4o-mini",
		Timeout:  60 * time.Second,
	}
}

// DefaultEmbeddingConfig returns default embedding provider settings.
func DefaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		Provider:   "jina",
		Model:      "jina-embeddings-v3",
		Dimensions: 1024,
		Timeout:    30 * time.Second,
	}
}

// DefaultAgentConfig returns default workflow settings.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		GuardrailThreshold:   75,
		MaxIterations:        5,
		MaxRetrievalAttempts: 3,
		TopK:                 3,
		HistoryTurns:         5,
		ToolTimeout:          30 * time.Second,
		RunTimeout:           5 * time.Minute,
	}
}

// DefaultSearchConfig returns default retrieval settings.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		RRFK:        60,
		DefaultTopK: 10,
		MinScore:    0.0,
	}
}

// DefaultArxivConfig returns defaults that respect arXiv's published rate
// guidance (one request every three seconds).
func DefaultArxivConfig() ArxivConfig {
	return ArxivConfig{
		BaseURL:     "https://export.arxiv.org/api/query",
		Timeout:     30 * time.Second,
		RequestsPer: 3 * time.Second,
		MaxResults:  25,
	}
}

// DefaultIngestConfig returns default chunking settings.
func DefaultIngestConfig() IngestConfig {
	return IngestConfig{
		ChunkTokens:   512,
		OverlapTokens: 64,
		Encoding:      "cl100k_base",
	}
}

// DefaultLogConfig returns default logger settings.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:        "info",
		Format:       "json",
		OutputPaths:  []string{"stdout"},
		EnableCaller: true,
	}
}

// DefaultTelemetryConfig returns default tracing settings (disabled).
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "paperflow",
		SampleRate:   1.0,
	}
}

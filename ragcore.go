// Package ragcore provides a top-level convenience entry point for assembling
// the hybrid retrieval stack with minimal boilerplate.
//
// Usage:
//
//	import "github.com/bwenge/ragcore"
//
//	cfg := config.DefaultConfig()
//	cfg.Embedding.APIKey = os.Getenv("GEMINI_API_KEY")
//
//	core, err := ragcore.New(cfg)
//	defer core.Close()
//
//	results, err := core.Engine.Retrieve(ctx, retrieval.NewQuery(text, tenantID, scopeID))
//
// Callers needing custom index or provider implementations can pass
// [WithVectorIndex], [WithKeywordIndex], or [WithProvider] and keep the rest
// of the wiring.
package ragcore

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/bwenge/ragcore/config"
	"github.com/bwenge/ragcore/embedding"
	"github.com/bwenge/ragcore/internal/cache"
	"github.com/bwenge/ragcore/internal/metrics"
	"github.com/bwenge/ragcore/retrieval"
	"github.com/bwenge/ragcore/tokenizer"
)

// Core bundles the assembled retrieval stack.
type Core struct {
	Engine   *retrieval.FusionEngine
	Chunker  *retrieval.TokenChunker
	Provider embedding.Provider
	Logger   *zap.Logger

	cacheManager *cache.Manager
}

// Option overrides a piece of the default wiring.
type Option func(*options)

type options struct {
	logger     *zap.Logger
	registerer prometheus.Registerer
	vector     retrieval.VectorIndex
	keyword    retrieval.KeywordIndex
	provider   embedding.Provider
}

// WithLogger sets a custom zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithRegisterer enables Prometheus metrics on the given registerer.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithVectorIndex overrides the Weaviate-backed vector channel.
func WithVectorIndex(idx retrieval.VectorIndex) Option {
	return func(o *options) { o.vector = idx }
}

// WithKeywordIndex overrides the configured keyword channel.
func WithKeywordIndex(idx retrieval.KeywordIndex) Option {
	return func(o *options) { o.keyword = idx }
}

// WithProvider overrides the configured embedding provider.
func WithProvider(p embedding.Provider) Option {
	return func(o *options) { o.provider = p }
}

// New assembles the retrieval stack from configuration.
func New(cfg *config.Config, opts ...Option) (*Core, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = BuildLogger(cfg.Log)
	}

	core := &Core{Logger: logger}

	provider := o.provider
	if provider == nil {
		p, mgr, err := buildProvider(cfg, logger, o.registerer)
		if err != nil {
			return nil, err
		}
		provider = p
		core.cacheManager = mgr
	}
	core.Provider = provider

	vector := o.vector
	keyword := o.keyword
	if vector == nil || keyword == nil {
		weaviate := retrieval.NewWeaviateIndex(retrieval.WeaviateConfig{
			BaseURL:   cfg.Weaviate.BaseURL,
			APIKey:    cfg.Weaviate.APIKey,
			ClassName: cfg.Weaviate.ClassName,
			Timeout:   cfg.Weaviate.Timeout,
		}, logger)

		if vector == nil {
			vector = weaviate
		}
		if keyword == nil {
			kw, err := buildKeywordIndex(cfg, weaviate, logger)
			if err != nil {
				return nil, err
			}
			keyword = kw
		}
	}

	core.Engine = retrieval.NewFusionEngine(provider, vector, keyword, retrieval.FusionConfig{
		SearchTimeout: cfg.Retrieval.SearchTimeout,
		Registerer:    o.registerer,
	}, logger)

	chunker, err := buildChunker(cfg, logger)
	if err != nil {
		return nil, err
	}
	core.Chunker = chunker

	return core, nil
}

// Close releases held connections.
func (c *Core) Close() error {
	if c.cacheManager != nil {
		return c.cacheManager.Close()
	}
	return nil
}

func buildProvider(cfg *config.Config, logger *zap.Logger, reg prometheus.Registerer) (embedding.Provider, *cache.Manager, error) {
	var provider embedding.Provider

	switch cfg.Embedding.Provider {
	case "gemini", "":
		provider = embedding.NewGeminiProvider(embedding.GeminiConfig{
			APIKey:  cfg.Embedding.APIKey,
			BaseURL: cfg.Embedding.BaseURL,
			Model:   cfg.Embedding.Model,
			Timeout: cfg.Embedding.Timeout,
		})
	case "openai":
		provider = embedding.NewOpenAIProvider(embedding.OpenAIConfig{
			APIKey:  cfg.Embedding.APIKey,
			BaseURL: cfg.Embedding.BaseURL,
			Model:   cfg.Embedding.Model,
			Timeout: cfg.Embedding.Timeout,
		})
	default:
		return nil, nil, fmt.Errorf("unsupported embedding provider: %s (supported: gemini, openai)", cfg.Embedding.Provider)
	}

	if !cfg.Embedding.CacheEnabled {
		return provider, nil, nil
	}

	manager, err := cache.NewManager(cache.Config{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		DefaultTTL:   cfg.Embedding.CacheTTL,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, logger)
	if err != nil {
		// 缓存不可用不阻断装配, 直连提供者
		logger.Warn("embedding cache unavailable, falling back to direct provider", zap.Error(err))
		return provider, nil, nil
	}

	cachedCfg := embedding.CachedConfig{TTL: cfg.Embedding.CacheTTL}
	if reg != nil {
		collector := metrics.NewCacheCollector("ragcore", reg)
		cachedCfg.OnHit = func() { collector.RecordHit("embedding") }
		cachedCfg.OnMiss = func() { collector.RecordMiss("embedding") }
	}

	return embedding.NewCachedProvider(provider, manager, cachedCfg, logger), manager, nil
}

func buildKeywordIndex(cfg *config.Config, weaviate *retrieval.WeaviateIndex, logger *zap.Logger) (retrieval.KeywordIndex, error) {
	switch cfg.Retrieval.KeywordBackend {
	case "weaviate", "":
		return weaviate.KeywordAdapter(), nil
	case "postgres":
		db, err := retrieval.OpenPostgres(cfg.Database.DSN())
		if err != nil {
			return nil, err
		}
		return retrieval.NewPostgresKeywordIndex(db, retrieval.PostgresKeywordConfig{
			TextSearchConfig: cfg.Database.TextSearchConfig,
		}, logger)
	case "memory":
		return retrieval.NewInMemoryIndex().KeywordAdapter(), nil
	default:
		return nil, fmt.Errorf("unsupported keyword backend: %s (supported: weaviate, postgres, memory)", cfg.Retrieval.KeywordBackend)
	}
}

func buildChunker(cfg *config.Config, logger *zap.Logger) (*retrieval.TokenChunker, error) {
	tok, err := tokenizer.NewTiktokenTokenizer(cfg.Chunker.TokenizerModel)
	if err != nil {
		return nil, err
	}
	return retrieval.NewTokenChunker(tok, retrieval.ChunkerConfig{
		MaxTokens: cfg.Chunker.MaxTokens,
		Overlap:   cfg.Chunker.Overlap,
	}, logger)
}

// BuildLogger constructs a zap logger from log configuration.
func BuildLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	if cfg.Format == "" {
		cfg.Format = "json"
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputPaths := cfg.OutputPaths
	if len(outputPaths) == 0 {
		outputPaths = []string{"stdout"}
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         cfg.Format,
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputPaths,
		ErrorOutputPaths: []string{"stderr"},
		DisableCaller:    !cfg.EnableCaller,
	}

	logger, err := zapConfig.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	return logger
}

// =============================================================================
// 📦 ragcore 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Retrieval: DefaultRetrievalConfig(),
		Chunker:   DefaultChunkerConfig(),
		Embedding: DefaultEmbeddingConfig(),
		Weaviate:  DefaultWeaviateConfig(),
		Database:  DefaultDatabaseConfig(),
		Redis:     DefaultRedisConfig(),
		Log:       DefaultLogConfig(),
	}
}

// DefaultRetrievalConfig 返回默认检索配置
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		TopK:           5,
		Alpha:          0.7,
		SearchTimeout:  10 * time.Second,
		KeywordBackend: "weaviate",
	}
}

// DefaultChunkerConfig 返回默认分块配置
func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{
		MaxTokens:      500,
		Overlap:        50,
		TokenizerModel: "text-embedding-3-small",
	}
}

// DefaultEmbeddingConfig 返回默认嵌入配置
func DefaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		Provider:     "gemini",
		APIKey:       "",
		BaseURL:      "",
		Model:        "",
		Timeout:      30 * time.Second,
		CacheEnabled: false,
		CacheTTL:     time.Hour,
	}
}

// DefaultWeaviateConfig 返回默认 Weaviate 配置
func DefaultWeaviateConfig() WeaviateConfig {
	return WeaviateConfig{
		BaseURL:   "http://localhost:8080",
		APIKey:    "",
		ClassName: "KnowledgeChunk",
		Timeout:   30 * time.Second,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Host:             "localhost",
		Port:             5432,
		User:             "ragcore",
		Password:         "",
		Name:             "ragcore",
		SSLMode:          "disable",
		TextSearchConfig: "english",
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:        "info",
		Format:       "json",
		OutputPaths:  []string{"stdout"},
		EnableCaller: true,
	}
}

package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/bwenge/ragcore/internal/cache"
)

// CachedProvider 用 Redis 缓存包装一个嵌入提供者。
// 缓存键由提供者名、模型维度、任务类型与文本摘要构成；
// 缓存失败只记录日志并回退到真实调用，绝不让检索因 Redis
// 不可用而失败。
type CachedProvider struct {
	inner  Provider
	cache  *cache.Manager
	cfg    CachedConfig
	logger *zap.Logger
}

// CachedConfig 配置嵌入缓存.
type CachedConfig struct {
	// 缓存条目过期时间（0 使用缓存管理器默认值）。
	TTL time.Duration `yaml:"ttl" json:"ttl"`

	// OnHit 在缓存命中时回调（可选，用于指标）。
	OnHit func()

	// OnMiss 在缓存未命中时回调（可选，用于指标）。
	OnMiss func()
}

// NewCachedProvider 创建带 Redis 缓存的嵌入提供者.
func NewCachedProvider(inner Provider, manager *cache.Manager, cfg CachedConfig, logger *zap.Logger) *CachedProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedProvider{
		inner:  inner,
		cache:  manager,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "embedding_cache")),
	}
}

func (p *CachedProvider) Name() string      { return p.inner.Name() }
func (p *CachedProvider) Dimensions() int   { return p.inner.Dimensions() }
func (p *CachedProvider) MaxBatchSize() int { return p.inner.MaxBatchSize() }

// Embed 直接透传到底层提供者（只有便捷方法走缓存）。
func (p *CachedProvider) Embed(ctx context.Context, req *EmbeddingRequest) (*EmbeddingResponse, error) {
	return p.inner.Embed(ctx, req)
}

// EmbedQuery 先查缓存，未命中时调用底层提供者并回填。
func (p *CachedProvider) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	key := p.cacheKey(InputTypeQuery, query)

	if vec, ok := p.lookup(ctx, key); ok {
		return vec, nil
	}

	vec, err := p.inner.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	p.store(ctx, key, vec)
	return vec, nil
}

// EmbedDocuments 批量嵌入，逐条查缓存，只把未命中的文本发给提供者。
func (p *CachedProvider) EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error) {
	result := make([][]float64, len(documents))
	missing := make([]int, 0, len(documents))
	keys := make([]string, len(documents))

	for i, doc := range documents {
		keys[i] = p.cacheKey(InputTypeDocument, doc)
		if vec, ok := p.lookup(ctx, keys[i]); ok {
			result[i] = vec
			continue
		}
		missing = append(missing, i)
	}

	if len(missing) == 0 {
		return result, nil
	}

	texts := make([]string, len(missing))
	for i, idx := range missing {
		texts[i] = documents[idx]
	}

	vecs, err := p.inner.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, err
	}

	for i, idx := range missing {
		result[idx] = vecs[i]
		p.store(ctx, keys[idx], vecs[i])
	}

	return result, nil
}

// lookup 查缓存。缓存后端错误按未命中处理。
func (p *CachedProvider) lookup(ctx context.Context, key string) ([]float64, bool) {
	var vec []float64
	err := p.cache.GetJSON(ctx, key, &vec)
	if err == nil {
		if p.cfg.OnHit != nil {
			p.cfg.OnHit()
		}
		return vec, true
	}

	if !errors.Is(err, cache.ErrCacheMiss) {
		p.logger.Warn("embedding cache lookup failed, falling through to provider",
			zap.Error(err))
	}
	if p.cfg.OnMiss != nil {
		p.cfg.OnMiss()
	}
	return nil, false
}

// store 回填缓存，失败只记录日志。
func (p *CachedProvider) store(ctx context.Context, key string, vec []float64) {
	if err := p.cache.SetJSON(ctx, key, vec, p.cfg.TTL); err != nil {
		p.logger.Warn("embedding cache store failed", zap.Error(err))
	}
}

// cacheKey 构造缓存键。包含维度以防同名提供者改变输出维度后
// 读到旧向量。
func (p *CachedProvider) cacheKey(inputType InputType, text string) string {
	digest := sha256.Sum256([]byte(text))
	return fmt.Sprintf("emb:%s:%d:%s:%s",
		p.inner.Name(), p.inner.Dimensions(), inputType, hex.EncodeToString(digest[:]))
}

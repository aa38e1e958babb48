package retrieval

import (
	"context"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bwenge/ragcore/embedding"
	"github.com/bwenge/ragcore/internal/metrics"
	"github.com/bwenge/ragcore/types"
)

// DefaultSearchTimeout 单次外部调用的默认超时
const DefaultSearchTimeout = 10 * time.Second

// FusionConfig 融合引擎配置
type FusionConfig struct {
	// 每次外部调用 (嵌入/检索) 的超时, 0 表示 DefaultSearchTimeout
	SearchTimeout time.Duration `json:"search_timeout" yaml:"search_timeout"`

	// Prometheus 注册器, nil 表示不上报指标
	Registerer prometheus.Registerer `json:"-" yaml:"-"`

	// 指标命名空间, 默认 ragcore
	MetricsNamespace string `json:"metrics_namespace" yaml:"metrics_namespace"`
}

// FusionEngine 混合检索融合引擎.
// 调用间无共享可变状态, 可被任意并发调用;
// 依赖的 Provider 与两个索引需自行保证并发安全.
type FusionEngine struct {
	embedder embedding.Provider
	vector   VectorIndex
	keyword  KeywordIndex

	searchTimeout time.Duration
	logger        *zap.Logger
	collector     *metrics.RetrievalCollector
}

// NewFusionEngine 创建融合引擎
func NewFusionEngine(
	embedder embedding.Provider,
	vector VectorIndex,
	keyword KeywordIndex,
	cfg FusionConfig,
	logger *zap.Logger,
) *FusionEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SearchTimeout == 0 {
		cfg.SearchTimeout = DefaultSearchTimeout
	}
	if cfg.MetricsNamespace == "" {
		cfg.MetricsNamespace = "ragcore"
	}

	var collector *metrics.RetrievalCollector
	if cfg.Registerer != nil {
		collector = metrics.NewRetrievalCollector(cfg.MetricsNamespace, cfg.Registerer, logger)
	}

	return &FusionEngine{
		embedder:      embedder,
		vector:        vector,
		keyword:       keyword,
		searchTimeout: cfg.SearchTimeout,
		logger:        logger.With(zap.String("component", "fusion_engine")),
		collector:     collector,
	}
}

// Retrieve 混合检索: 关键词通道与 (嵌入 → 向量检索) 并发执行,
// 合并去重后按 combined_score 降序返回 Top-K.
//
// 嵌入失败直接上抛; 单索引故障降级为该通道空结果;
// 双通道同时不可用返回 RetrievalUnavailable.
func (e *FusionEngine) Retrieve(ctx context.Context, query Query) ([]FusedResult, error) {
	start := time.Now()

	if err := query.Validate(); err != nil {
		e.recordRetrieval("hybrid", "invalid", 0, start)
		return nil, err
	}
	topK := query.effectiveTopK()

	var (
		vectorResults []ScoredChunk
		keywordHits   []KeywordHit
		vectorDown    bool
		keywordDown   bool
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		vec, err := e.embedQuery(gctx, query.Text)
		if err != nil {
			return err
		}

		hits, err := e.searchVector(gctx, vec, query, topK)
		if err != nil {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			e.degrade(ChannelVector, err)
			vectorDown = true
			return nil
		}
		vectorResults = scoreVectorHits(hits)
		return nil
	})

	g.Go(func() error {
		hits, err := e.searchKeyword(gctx, query, topK)
		if err != nil {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			e.degrade(ChannelKeyword, err)
			keywordDown = true
			return nil
		}
		keywordHits = hits
		return nil
	})

	if err := g.Wait(); err != nil {
		e.recordRetrieval("hybrid", "error", 0, start)
		return nil, err
	}

	if vectorDown && keywordDown {
		e.recordRetrieval("hybrid", "unavailable", 0, start)
		return nil, types.NewError(types.ErrRetrievalUnavailable, "both retrieval channels unavailable").
			WithRetryable(true)
	}

	results := fuse(vectorResults, keywordHits, query.Alpha, topK)

	outcome := "ok"
	if vectorDown || keywordDown {
		outcome = "degraded"
	}
	e.recordRetrieval("hybrid", outcome, len(results), start)

	e.logger.Debug("hybrid retrieval completed",
		zap.Int("vector_hits", len(vectorResults)),
		zap.Int("keyword_hits", len(keywordHits)),
		zap.Int("results", len(results)),
		zap.Bool("vector_down", vectorDown),
		zap.Bool("keyword_down", keywordDown))

	return results, nil
}

// RetrieveVector 纯向量检索路径.
// 索引不可用降级为空结果; 嵌入失败仍然上抛.
func (e *FusionEngine) RetrieveVector(ctx context.Context, query Query) ([]ScoredChunk, error) {
	start := time.Now()

	if err := query.Validate(); err != nil {
		e.recordRetrieval("vector", "invalid", 0, start)
		return nil, err
	}
	topK := query.effectiveTopK()

	vec, err := e.embedQuery(ctx, query.Text)
	if err != nil {
		e.recordRetrieval("vector", "error", 0, start)
		return nil, err
	}

	hits, err := e.searchVector(ctx, vec, query, topK)
	if err != nil {
		if ctx.Err() != nil {
			e.recordRetrieval("vector", "error", 0, start)
			return nil, ctx.Err()
		}
		e.degrade(ChannelVector, err)
		e.recordRetrieval("vector", "degraded", 0, start)
		return []ScoredChunk{}, nil
	}

	results := scoreVectorHits(hits)
	sortScored(results)
	if len(results) > topK {
		results = results[:topK]
	}

	e.recordRetrieval("vector", "ok", len(results), start)
	return results, nil
}

// RetrieveKeyword 纯关键词检索路径, 索引不可用降级为空结果.
func (e *FusionEngine) RetrieveKeyword(ctx context.Context, query Query) ([]ScoredChunk, error) {
	start := time.Now()

	if err := query.Validate(); err != nil {
		e.recordRetrieval("keyword", "invalid", 0, start)
		return nil, err
	}
	topK := query.effectiveTopK()

	hits, err := e.searchKeyword(ctx, query, topK)
	if err != nil {
		if ctx.Err() != nil {
			e.recordRetrieval("keyword", "error", 0, start)
			return nil, ctx.Err()
		}
		e.degrade(ChannelKeyword, err)
		e.recordRetrieval("keyword", "degraded", 0, start)
		return []ScoredChunk{}, nil
	}

	results := make([]ScoredChunk, 0, len(hits))
	for _, h := range hits {
		results = append(results, ScoredChunk{
			Chunk:   h.Chunk,
			Score:   h.Score,
			Channel: ChannelKeyword,
		})
	}
	sortScored(results)
	if len(results) > topK {
		results = results[:topK]
	}

	e.recordRetrieval("keyword", "ok", len(results), start)
	return results, nil
}

// embedQuery 计算查询向量, 按单次调用超时约束.
// 父上下文取消时返回取消错误, 其余失败归为 EmbeddingProviderError.
func (e *FusionEngine) embedQuery(ctx context.Context, text string) ([]float64, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.searchTimeout)
	defer cancel()

	start := time.Now()
	vec, err := e.embedder.EmbedQuery(callCtx, text)
	if err != nil {
		if ctx.Err() != nil {
			e.recordEmbedding("canceled", start)
			return nil, ctx.Err()
		}
		e.recordEmbedding("error", start)
		if types.IsEmbeddingProvider(err) || types.IsInvalidArgument(err) {
			return nil, err
		}
		return nil, types.NewError(types.ErrEmbeddingProvider, "embed query failed").
			WithBackend(e.embedder.Name()).
			WithCause(err)
	}

	e.recordEmbedding("ok", start)
	return vec, nil
}

func (e *FusionEngine) searchVector(ctx context.Context, vec []float64, query Query, topK int) ([]VectorHit, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.searchTimeout)
	defer cancel()
	return e.vector.Search(callCtx, vec, query.TenantID, query.ScopeID, topK)
}

func (e *FusionEngine) searchKeyword(ctx context.Context, query Query, topK int) ([]KeywordHit, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.searchTimeout)
	defer cancel()
	return e.keyword.Search(callCtx, query.Text, query.TenantID, query.ScopeID, topK)
}

func (e *FusionEngine) degrade(channel Channel, err error) {
	e.logger.Warn("retrieval channel degraded",
		zap.String("channel", string(channel)),
		zap.Error(err))
	if e.collector != nil {
		e.collector.RecordChannelDegradation(string(channel))
	}
}

func (e *FusionEngine) recordRetrieval(mode, outcome string, results int, start time.Time) {
	if e.collector != nil {
		e.collector.RecordRetrieval(mode, outcome, results, time.Since(start))
	}
}

func (e *FusionEngine) recordEmbedding(outcome string, start time.Time) {
	if e.collector != nil {
		e.collector.RecordEmbedding(e.embedder.Name(), outcome, time.Since(start))
	}
}

// scoreVectorHits 距离转相似度: score = 1 - distance.
// 假设归一化向量下的余弦距离, 无界度量需适配层自行归一化.
func scoreVectorHits(hits []VectorHit) []ScoredChunk {
	out := make([]ScoredChunk, 0, len(hits))
	for _, h := range hits {
		out = append(out, ScoredChunk{
			Chunk:   h.Chunk,
			Score:   1 - h.Distance,
			Channel: ChannelVector,
		})
	}
	return out
}

// fuse 按 chunk_id 合并两通道结果并线性加权排序.
// 两通道原始量纲不保证可比, 与上游设计保持一致, 不做跨通道归一化.
func fuse(vectorResults []ScoredChunk, keywordHits []KeywordHit, alpha float64, topK int) []FusedResult {
	type entry struct {
		chunk        Chunk
		vectorScore  float64
		keywordScore float64
	}

	merged := make(map[string]*entry, len(vectorResults)+len(keywordHits))
	order := make([]string, 0, len(vectorResults)+len(keywordHits))

	for _, sc := range vectorResults {
		if _, ok := merged[sc.Chunk.ChunkID]; ok {
			continue
		}
		merged[sc.Chunk.ChunkID] = &entry{chunk: sc.Chunk, vectorScore: sc.Score}
		order = append(order, sc.Chunk.ChunkID)
	}
	for _, h := range keywordHits {
		if ent, ok := merged[h.Chunk.ChunkID]; ok {
			if h.Score > ent.keywordScore {
				ent.keywordScore = h.Score
			}
			continue
		}
		merged[h.Chunk.ChunkID] = &entry{chunk: h.Chunk, keywordScore: h.Score}
		order = append(order, h.Chunk.ChunkID)
	}

	results := make([]FusedResult, 0, len(order))
	for _, id := range order {
		ent := merged[id]
		results = append(results, FusedResult{
			Chunk:         ent.chunk,
			CombinedScore: alpha*ent.vectorScore + (1-alpha)*ent.keywordScore,
			VectorScore:   ent.vectorScore,
			KeywordScore:  ent.keywordScore,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].CombinedScore != results[j].CombinedScore {
			return results[i].CombinedScore > results[j].CombinedScore
		}
		if results[i].VectorScore != results[j].VectorScore {
			return results[i].VectorScore > results[j].VectorScore
		}
		return results[i].Chunk.ChunkID < results[j].Chunk.ChunkID
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results
}

// sortScored 单通道结果排序: 分数降序, 同分按 chunk_id 升序保证确定性.
func sortScored(results []ScoredChunk) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.ChunkID < results[j].Chunk.ChunkID
	})
}

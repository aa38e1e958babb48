package retrieval

import "context"

// VectorHit 向量通道命中, Distance 非负且 0 表示完全相同
type VectorHit struct {
	Chunk    Chunk   `json:"chunk"`
	Distance float64 `json:"distance"`
}

// KeywordHit 关键词通道命中, Score 越大越相关, 量纲由实现决定
type KeywordHit struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// VectorIndex 向量最近邻检索.
// 实现方必须自行强制 tenant/scope 行级过滤, 并保证并发安全;
// 后端故障以 types.ErrIndexUnavailable 返回.
type VectorIndex interface {
	Search(ctx context.Context, vector []float64, tenantID, scopeID string, topK int) ([]VectorHit, error)
}

// KeywordIndex 关键词相关度检索 (BM25 类), 约束同 VectorIndex.
type KeywordIndex interface {
	Search(ctx context.Context, query, tenantID, scopeID string, topK int) ([]KeywordHit, error)
}

// IndexedChunk 写入路径的载荷: 块及其向量
type IndexedChunk struct {
	Chunk     Chunk     `json:"chunk"`
	Embedding []float64 `json:"embedding"`
}

// Inserter 可选的写入接口, 摄取流程使用
type Inserter interface {
	Insert(ctx context.Context, chunks []IndexedChunk) error
}

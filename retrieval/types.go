package retrieval

import (
	"strings"

	"github.com/bwenge/ragcore/types"
)

// Chunk 已索引的文本块, 摄取时创建后不可变
type Chunk struct {
	ChunkID    string `json:"chunk_id"`    // 全局唯一标识
	SourceID   string `json:"source_id"`   // 所属文档标识
	ChunkIndex int    `json:"chunk_index"` // 在文档内的序号, 从 0 开始
	Text       string `json:"text"`        // 文本内容
	TenantID   string `json:"tenant_id"`   // 租户隔离字段
	ScopeID    string `json:"scope_id"`    // 作用域隔离字段 (如 persona)
}

// Channel 检索通道标识
type Channel string

const (
	ChannelVector  Channel = "vector"
	ChannelKeyword Channel = "keyword"
)

// ScoredChunk 单通道检索结果, 仅在一次查询内存在
type ScoredChunk struct {
	Chunk   Chunk   `json:"chunk"`
	Score   float64 `json:"score"` // 越大越相关
	Channel Channel `json:"channel"`
}

// FusedResult 融合后的排序结果
type FusedResult struct {
	Chunk         Chunk   `json:"chunk"`
	CombinedScore float64 `json:"combined_score"`
	VectorScore   float64 `json:"vector_score"`
	KeywordScore  float64 `json:"keyword_score"`
}

const (
	// DefaultTopK 默认返回条数
	DefaultTopK = 5

	// DefaultAlpha 默认融合权重, 偏语义
	DefaultAlpha = 0.7
)

// Query 检索输入
type Query struct {
	Text     string  `json:"text"`
	TenantID string  `json:"tenant_id"`
	ScopeID  string  `json:"scope_id"`
	TopK     int     `json:"top_k"`
	Alpha    float64 `json:"alpha"` // [0,1], 向量通道权重
}

// NewQuery 以默认 TopK/Alpha 构造查询.
// 直接用字面量构造 Query 时 Alpha=0 表示纯关键词加权, 是合法取值.
func NewQuery(text, tenantID, scopeID string) Query {
	return Query{
		Text:     text,
		TenantID: tenantID,
		ScopeID:  scopeID,
		TopK:     DefaultTopK,
		Alpha:    DefaultAlpha,
	}
}

// Validate 校验查询参数
func (q Query) Validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return types.NewError(types.ErrInvalidArgument, "query text is empty")
	}
	if q.Alpha < 0 || q.Alpha > 1 {
		return types.NewError(types.ErrInvalidArgument, "alpha must be in [0,1]")
	}
	if q.TopK < 0 {
		return types.NewError(types.ErrInvalidArgument, "top_k must be non-negative")
	}
	return nil
}

// effectiveTopK 零值回落到默认值
func (q Query) effectiveTopK() int {
	if q.TopK == 0 {
		return DefaultTopK
	}
	return q.TopK
}

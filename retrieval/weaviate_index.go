package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bwenge/ragcore/types"
)

// WeaviateConfig Weaviate 索引适配器配置
type WeaviateConfig struct {
	// 完整地址, 如 http://localhost:8080
	BaseURL string `json:"base_url" yaml:"base_url"`

	// 认证
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// 类名, 默认 KnowledgeChunk
	ClassName string `json:"class_name,omitempty" yaml:"class_name,omitempty"`

	// 请求超时, 默认 30s
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// WeaviateIndex 基于 Weaviate REST/GraphQL 的索引适配器,
// 同时实现 VectorIndex (nearVector) 与 KeywordIndex (bm25).
// 租户/作用域过滤通过 where 子句在服务端强制执行.
type WeaviateIndex struct {
	cfg     WeaviateConfig
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewWeaviateIndex 创建 Weaviate 索引适配器
func NewWeaviateIndex(cfg WeaviateConfig, logger *zap.Logger) *WeaviateIndex {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ClassName == "" {
		cfg.ClassName = "KnowledgeChunk"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	return &WeaviateIndex{
		cfg:     cfg,
		baseURL: baseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger.With(zap.String("component", "weaviate_index")),
	}
}

// weaviateNamespace 从 chunk_id 生成确定性对象 UUID
var weaviateNamespace = uuid.MustParse("8f2d5c3a-91b4-4e07-b6d2-4a8c1e5f7d90")

func weaviateObjectID(chunkID string) string {
	return uuid.NewSHA1(weaviateNamespace, []byte(chunkID)).String()
}

// Search 向量最近邻检索 (nearVector)
func (w *WeaviateIndex) Search(ctx context.Context, vector []float64, tenantID, scopeID string, topK int) ([]VectorHit, error) {
	if topK <= 0 {
		return []VectorHit{}, nil
	}
	if len(vector) == 0 {
		return nil, types.NewError(types.ErrInvalidArgument, "query vector is empty")
	}

	query := w.buildNearVectorQuery(vector, tenantID, scopeID, topK)
	rows, err := w.executeGraphQL(ctx, query)
	if err != nil {
		return nil, err
	}

	hits := make([]VectorHit, 0, len(rows))
	for _, r := range rows {
		distance := 0.0
		if r.Additional.Distance != nil {
			distance = *r.Additional.Distance
		}
		hits = append(hits, VectorHit{Chunk: r.toChunk(), Distance: distance})
	}
	return hits, nil
}

// SearchKeyword BM25 关键词检索
func (w *WeaviateIndex) SearchKeyword(ctx context.Context, query, tenantID, scopeID string, topK int) ([]KeywordHit, error) {
	if topK <= 0 {
		return []KeywordHit{}, nil
	}
	if strings.TrimSpace(query) == "" {
		return nil, types.NewError(types.ErrInvalidArgument, "query text is empty")
	}

	graphql := w.buildBM25Query(query, tenantID, scopeID, topK)
	rows, err := w.executeGraphQL(ctx, graphql)
	if err != nil {
		return nil, err
	}

	hits := make([]KeywordHit, 0, len(rows))
	for _, r := range rows {
		score := 0.0
		if r.Additional.Score != nil {
			score = *r.Additional.Score
		}
		hits = append(hits, KeywordHit{Chunk: r.toChunk(), Score: score})
	}
	return hits, nil
}

// KeywordAdapter 将同一实例适配为 KeywordIndex 接口
func (w *WeaviateIndex) KeywordAdapter() KeywordIndex {
	return weaviateKeywordAdapter{w}
}

type weaviateKeywordAdapter struct {
	idx *WeaviateIndex
}

func (a weaviateKeywordAdapter) Search(ctx context.Context, query, tenantID, scopeID string, topK int) ([]KeywordHit, error) {
	return a.idx.SearchKeyword(ctx, query, tenantID, scopeID, topK)
}

// Insert 批量写入块及其向量
func (w *WeaviateIndex) Insert(ctx context.Context, chunks []IndexedChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	objects := make([]map[string]any, 0, len(chunks))
	for i, ic := range chunks {
		if ic.Chunk.ChunkID == "" {
			return types.NewError(types.ErrInvalidArgument, fmt.Sprintf("chunk[%d] has empty chunk_id", i))
		}
		if len(ic.Embedding) == 0 {
			return types.NewError(types.ErrInvalidArgument, fmt.Sprintf("chunk[%d] has no embedding", i))
		}

		objects = append(objects, map[string]any{
			"class": w.cfg.ClassName,
			"id":    weaviateObjectID(ic.Chunk.ChunkID),
			"properties": map[string]any{
				"chunkId":    ic.Chunk.ChunkID,
				"sourceId":   ic.Chunk.SourceID,
				"chunkIndex": ic.Chunk.ChunkIndex,
				"text":       ic.Chunk.Text,
				"tenantId":   ic.Chunk.TenantID,
				"scopeId":    ic.Chunk.ScopeID,
			},
			"vector": ic.Embedding,
		})
	}

	var batchResp struct {
		Results []struct {
			ID     string `json:"id"`
			Result struct {
				Errors *struct {
					Error []struct {
						Message string `json:"message"`
					} `json:"error"`
				} `json:"errors"`
			} `json:"result"`
		} `json:"results"`
	}

	if err := w.doJSON(ctx, http.MethodPost, "/v1/batch/objects", map[string]any{"objects": objects}, &batchResp); err != nil {
		return err
	}

	for _, r := range batchResp.Results {
		if r.Result.Errors != nil && len(r.Result.Errors.Error) > 0 {
			return types.NewError(types.ErrIndexUnavailable,
				fmt.Sprintf("weaviate batch error for object %s: %s", r.ID, r.Result.Errors.Error[0].Message)).
				WithBackend("weaviate")
		}
	}

	w.logger.Debug("weaviate batch upsert completed", zap.Int("count", len(chunks)))
	return nil
}

// DeleteBySource 按来源文档级联删除块
func (w *WeaviateIndex) DeleteBySource(ctx context.Context, sourceID string) error {
	if strings.TrimSpace(sourceID) == "" {
		return types.NewError(types.ErrInvalidArgument, "source_id is empty")
	}

	body := map[string]any{
		"match": map[string]any{
			"class": w.cfg.ClassName,
			"where": map[string]any{
				"path":      []string{"sourceId"},
				"operator":  "Equal",
				"valueText": sourceID,
			},
		},
	}
	return w.doJSON(ctx, http.MethodDelete, "/v1/batch/objects", body, nil)
}

func (w *WeaviateIndex) buildNearVectorQuery(vector []float64, tenantID, scopeID string, topK int) string {
	return fmt.Sprintf(`{
		Get {
			%s(
				nearVector: {
					vector: %s
				}
				where: %s
				limit: %d
			) {
				chunkId
				sourceId
				chunkIndex
				text
				tenantId
				scopeId
				_additional {
					distance
				}
			}
		}
	}`, w.cfg.ClassName, formatVector(vector), buildScopeFilter(tenantID, scopeID), topK)
}

func (w *WeaviateIndex) buildBM25Query(query, tenantID, scopeID string, topK int) string {
	return fmt.Sprintf(`{
		Get {
			%s(
				bm25: {
					query: "%s"
					properties: ["text"]
				}
				where: %s
				limit: %d
			) {
				chunkId
				sourceId
				chunkIndex
				text
				tenantId
				scopeId
				_additional {
					score
				}
			}
		}
	}`, w.cfg.ClassName, escapeGraphQLString(query), buildScopeFilter(tenantID, scopeID), topK)
}

// buildScopeFilter 租户+作用域的 And 过滤子句
func buildScopeFilter(tenantID, scopeID string) string {
	return fmt.Sprintf(`{
		operator: And
		operands: [
			{ path: ["tenantId"], operator: Equal, valueText: "%s" },
			{ path: ["scopeId"], operator: Equal, valueText: "%s" }
		]
	}`, escapeGraphQLString(tenantID), escapeGraphQLString(scopeID))
}

type weaviateRow struct {
	ChunkID    string `json:"chunkId"`
	SourceID   string `json:"sourceId"`
	ChunkIndex int    `json:"chunkIndex"`
	Text       string `json:"text"`
	TenantID   string `json:"tenantId"`
	ScopeID    string `json:"scopeId"`
	Additional struct {
		Distance *float64 `json:"distance"`
		Score    *float64 `json:"score"`
	} `json:"_additional"`
}

func (r weaviateRow) toChunk() Chunk {
	return Chunk{
		ChunkID:    r.ChunkID,
		SourceID:   r.SourceID,
		ChunkIndex: r.ChunkIndex,
		Text:       r.Text,
		TenantID:   r.TenantID,
		ScopeID:    r.ScopeID,
	}
}

func (w *WeaviateIndex) executeGraphQL(ctx context.Context, graphql string) ([]weaviateRow, error) {
	var resp struct {
		Data struct {
			Get map[string][]weaviateRow `json:"Get"`
		} `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}

	if err := w.doJSON(ctx, http.MethodPost, "/v1/graphql", map[string]any{"query": graphql}, &resp); err != nil {
		return nil, err
	}

	if len(resp.Errors) > 0 {
		return nil, types.NewError(types.ErrIndexUnavailable, "weaviate graphql error: "+resp.Errors[0].Message).
			WithBackend("weaviate")
	}

	return resp.Data.Get[w.cfg.ClassName], nil
}

// doJSON 向 Weaviate 发送 JSON 请求, 传输层/非 2xx 归为 IndexUnavailable
func (w *WeaviateIndex) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("weaviate marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, w.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("weaviate create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(w.cfg.APIKey) != "" {
		req.Header.Set("Authorization", "Bearer "+w.cfg.APIKey)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return types.NewError(types.ErrIndexUnavailable, "weaviate request failed").
			WithBackend("weaviate").
			WithRetryable(true).
			WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return types.NewError(types.ErrIndexUnavailable,
			fmt.Sprintf("weaviate request failed: method=%s path=%s status=%d body=%s",
				method, path, resp.StatusCode, string(raw))).
			WithBackend("weaviate").
			WithRetryable(resp.StatusCode >= 500)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return types.NewError(types.ErrIndexUnavailable, "weaviate decode response failed").
			WithBackend("weaviate").
			WithCause(err)
	}
	return nil
}

func formatVector(v []float64) string {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = fmt.Sprintf("%f", f)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func escapeGraphQLString(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	s = strings.ReplaceAll(s, "\r", "\\r")
	s = strings.ReplaceAll(s, "\t", "\\t")
	return s
}

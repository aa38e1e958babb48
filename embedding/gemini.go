package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bwenge/ragcore/tokenizer"
	"github.com/bwenge/ragcore/types"
)

// GeminiProvider 使用 Google Gemini API 执行嵌入.
// 注: Gemini 使用不同的端点格式: /models/{model}:embedContent
type GeminiProvider struct {
	cfg       GeminiConfig
	client    *http.Client
	estimator *tokenizer.EstimatorTokenizer
}

// GeminiConfig 配置 Gemini 嵌入提供者.
type GeminiConfig struct {
	APIKey  string        `json:"api_key" yaml:"api_key"`
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Model   string        `json:"model,omitempty" yaml:"model,omitempty"` // gemini-embedding-001
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// DefaultGeminiConfig 返回默认 Gemini 嵌入配置.
func DefaultGeminiConfig() GeminiConfig {
	return GeminiConfig{
		BaseURL: "https://generativelanguage.googleapis.com/v1beta",
		Model:   "gemini-embedding-001",
		Timeout: 30 * time.Second,
	}
}

// NewGeminiProvider 创建新的 Gemini 嵌入提供者.
func NewGeminiProvider(cfg GeminiConfig) *GeminiProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-embedding-001"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &GeminiProvider{
		cfg:       cfg,
		client:    &http.Client{Timeout: timeout},
		estimator: tokenizer.NewEstimatorTokenizer(cfg.Model, 0),
	}
}

func (p *GeminiProvider) Name() string      { return "gemini-embedding" }
func (p *GeminiProvider) Dimensions() int   { return 768 }
func (p *GeminiProvider) MaxBatchSize() int { return 100 }

// Gemini TaskType 映射
type geminiTaskType string

const (
	geminiTaskRetrievalQuery    geminiTaskType = "RETRIEVAL_QUERY"
	geminiTaskRetrievalDocument geminiTaskType = "RETRIEVAL_DOCUMENT"
)

type geminiEmbedRequest struct {
	Model    string         `json:"model"`
	Content  geminiContent  `json:"content"`
	TaskType geminiTaskType `json:"taskType,omitempty"`
}

type geminiBatchEmbedRequest struct {
	Requests []geminiEmbedRequest `json:"requests"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiEmbedResponse struct {
	Embedding geminiContentEmbedding `json:"embedding"`
}

type geminiBatchEmbedResponse struct {
	Embeddings []geminiContentEmbedding `json:"embeddings"`
}

type geminiContentEmbedding struct {
	Values []float64 `json:"values"`
}

// mapTaskType 将输入任务类型转换为 Gemini 任务类型.
func mapTaskType(inputType InputType) geminiTaskType {
	switch inputType {
	case InputTypeQuery:
		return geminiTaskRetrievalQuery
	default:
		return geminiTaskRetrievalDocument
	}
}

// Embed 使用 Gemini API 生成嵌入.
func (p *GeminiProvider) Embed(ctx context.Context, req *EmbeddingRequest) (*EmbeddingResponse, error) {
	if len(req.Input) == 0 {
		return nil, types.NewError(types.ErrInvalidArgument, "embedding input is empty")
	}

	model := ChooseModel(req.Model, p.cfg.Model, "gemini-embedding-001")
	taskType := mapTaskType(req.InputType)

	// 对多个输入使用批量端点
	if len(req.Input) > 1 {
		return p.batchEmbed(ctx, req, model, taskType)
	}

	// 单嵌入
	body := geminiEmbedRequest{
		Model: fmt.Sprintf("models/%s", model),
		Content: geminiContent{
			Parts: []geminiPart{{Text: req.Input[0]}},
		},
		TaskType: taskType,
	}

	endpoint := fmt.Sprintf("%s/models/%s:embedContent", strings.TrimRight(p.cfg.BaseURL, "/"), model)
	respBody, err := p.doRequest(ctx, endpoint, body)
	if err != nil {
		return nil, err
	}

	var gResp geminiEmbedResponse
	if err := json.Unmarshal(respBody, &gResp); err != nil {
		return nil, types.NewError(types.ErrEmbeddingProvider, "failed to decode gemini response").
			WithCause(err).WithBackend(p.Name())
	}

	return &EmbeddingResponse{
		Provider: p.Name(),
		Model:    model,
		Embeddings: []EmbeddingData{{
			Index:     0,
			Embedding: gResp.Embedding.Values,
		}},
		Usage:     p.approximateUsage(req.Input),
		CreatedAt: time.Now(),
	}, nil
}

// batchEmbed 处理批量嵌入请求。
func (p *GeminiProvider) batchEmbed(ctx context.Context, req *EmbeddingRequest, model string, taskType geminiTaskType) (*EmbeddingResponse, error) {
	requests := make([]geminiEmbedRequest, len(req.Input))
	for i, text := range req.Input {
		requests[i] = geminiEmbedRequest{
			Model: fmt.Sprintf("models/%s", model),
			Content: geminiContent{
				Parts: []geminiPart{{Text: text}},
			},
			TaskType: taskType,
		}
	}

	body := geminiBatchEmbedRequest{Requests: requests}
	endpoint := fmt.Sprintf("%s/models/%s:batchEmbedContents", strings.TrimRight(p.cfg.BaseURL, "/"), model)

	respBody, err := p.doRequest(ctx, endpoint, body)
	if err != nil {
		return nil, err
	}

	var gResp geminiBatchEmbedResponse
	if err := json.Unmarshal(respBody, &gResp); err != nil {
		return nil, types.NewError(types.ErrEmbeddingProvider, "failed to decode gemini batch response").
			WithCause(err).WithBackend(p.Name())
	}

	embeddings := make([]EmbeddingData, len(gResp.Embeddings))
	for i, emb := range gResp.Embeddings {
		embeddings[i] = EmbeddingData{
			Index:     i,
			Embedding: emb.Values,
		}
	}

	return &EmbeddingResponse{
		Provider:   p.Name(),
		Model:      model,
		Embeddings: embeddings,
		Usage:      p.approximateUsage(req.Input),
		CreatedAt:  time.Now(),
	}, nil
}

// approximateUsage 估算 Token 用量。
// Gemini 嵌入端点不返回用量，按估算器近似。
func (p *GeminiProvider) approximateUsage(inputs []string) EmbeddingUsage {
	total := 0
	for _, text := range inputs {
		n, err := p.estimator.CountTokens(text)
		if err != nil {
			continue
		}
		total += n
	}
	return EmbeddingUsage{PromptTokens: total, TotalTokens: total}
}

// doRequest 使用 Gemini 特定认证执行 HTTP 请求.
func (p *GeminiProvider) doRequest(ctx context.Context, endpoint string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Gemini 使用 x-goog-api-key 头（不是 Bearer 令牌）
	httpReq.Header.Set("x-goog-api-key", p.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, types.NewError(types.ErrEmbeddingProvider, "gemini request failed").
			WithCause(err).
			WithRetryable(true).
			WithBackend(p.Name())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, mapHTTPError(resp.StatusCode, string(respBody), p.Name())
	}

	return respBody, nil
}

// EmbedQuery 嵌入单个查询.
func (p *GeminiProvider) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	resp, err := p.Embed(ctx, &EmbeddingRequest{
		Input:     []string{query},
		InputType: InputTypeQuery,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 {
		return nil, types.NewError(types.ErrEmbeddingProvider, "no embeddings returned").
			WithBackend(p.Name())
	}
	return resp.Embeddings[0].Embedding, nil
}

// EmbedDocuments 批量嵌入多个文档.
func (p *GeminiProvider) EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error) {
	resp, err := p.Embed(ctx, &EmbeddingRequest{
		Input:     documents,
		InputType: InputTypeDocument,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(documents) {
		return nil, types.NewError(types.ErrEmbeddingProvider,
			fmt.Sprintf("gemini returned %d embeddings for %d inputs", len(resp.Embeddings), len(documents))).
			WithBackend(p.Name())
	}
	result := make([][]float64, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		result[i] = emb.Embedding
	}
	return result, nil
}

package retrieval

import (
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bwenge/ragcore/tokenizer"
	"github.com/bwenge/ragcore/types"
)

const (
	// DefaultMaxTokens 默认分块窗口大小
	DefaultMaxTokens = 500

	// DefaultOverlap 相邻块重叠 token 数
	DefaultOverlap = 50
)

// ChunkerConfig 分块配置
type ChunkerConfig struct {
	MaxTokens int `json:"max_tokens" yaml:"max_tokens"` // 必须 > 0
	Overlap   int `json:"overlap" yaml:"overlap"`       // 0 <= overlap < max_tokens
}

// DefaultChunkerConfig 返回默认分块配置
func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{
		MaxTokens: DefaultMaxTokens,
		Overlap:   DefaultOverlap,
	}
}

// TokenChunker 按 token 窗口切分文本, 窗口每次前进 max_tokens-overlap,
// 保证每个输入 token 至少落在一个输出块内. 纯函数, 无副作用.
type TokenChunker struct {
	tok    tokenizer.Tokenizer
	cfg    ChunkerConfig
	logger *zap.Logger
}

// NewTokenChunker 创建分块器. tokenizer 必须支持 Decode.
func NewTokenChunker(tok tokenizer.Tokenizer, cfg ChunkerConfig, logger *zap.Logger) (*TokenChunker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if err := validateWindow(cfg.MaxTokens, cfg.Overlap); err != nil {
		return nil, err
	}

	return &TokenChunker{
		tok:    tok,
		cfg:    cfg,
		logger: logger,
	}, nil
}

func validateWindow(maxTokens, overlap int) error {
	if maxTokens <= 0 {
		return types.NewError(types.ErrInvalidArgument, "max_tokens must be positive")
	}
	if overlap < 0 || overlap >= maxTokens {
		return types.NewError(types.ErrInvalidArgument, "overlap must satisfy 0 <= overlap < max_tokens")
	}
	return nil
}

// Split 切分文本, 返回解码后的各窗口文本.
// 空文本返回 InvalidArgument.
func (c *TokenChunker) Split(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, types.NewError(types.ErrInvalidArgument, "text is empty")
	}

	ids, err := c.tok.Encode(text)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidArgument, "tokenize failed").WithCause(err)
	}
	if len(ids) == 0 {
		return nil, types.NewError(types.ErrInvalidArgument, "text produced no tokens")
	}

	step := c.cfg.MaxTokens - c.cfg.Overlap
	chunks := make([]string, 0, (len(ids)+step-1)/step)

	for start := 0; ; start += step {
		end := start + c.cfg.MaxTokens
		if end > len(ids) {
			end = len(ids)
		}

		segment, err := c.tok.Decode(ids[start:end])
		if err != nil {
			return nil, types.NewError(types.ErrInvalidArgument, "decode window failed").WithCause(err)
		}
		chunks = append(chunks, segment)

		// 窗口触底即停, 末尾 token 已覆盖
		if end == len(ids) {
			break
		}
	}

	c.logger.Debug("text split",
		zap.Int("tokens", len(ids)),
		zap.Int("chunks", len(chunks)))

	return chunks, nil
}

// ChunkDocument 切分并铸造带标识的 Chunk, 供摄取写入索引.
func (c *TokenChunker) ChunkDocument(sourceID, tenantID, scopeID, text string) ([]Chunk, error) {
	segments, err := c.Split(text)
	if err != nil {
		return nil, err
	}

	chunks := make([]Chunk, 0, len(segments))
	for i, seg := range segments {
		chunks = append(chunks, Chunk{
			ChunkID:    uuid.NewString(),
			SourceID:   sourceID,
			ChunkIndex: i,
			Text:       seg,
			TenantID:   tenantID,
			ScopeID:    scopeID,
		})
	}

	return chunks, nil
}

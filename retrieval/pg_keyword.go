package retrieval

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/bwenge/ragcore/types"
)

// KnowledgeChunk knowledge_chunks 表的行模型
type KnowledgeChunk struct {
	ChunkID    string `gorm:"column:chunk_id;primaryKey"`
	SourceID   string `gorm:"column:source_id;index"`
	ChunkIndex int    `gorm:"column:chunk_index"`
	Text       string `gorm:"column:text"`
	TenantID   string `gorm:"column:tenant_id;index:idx_chunk_scope"`
	ScopeID    string `gorm:"column:scope_id;index:idx_chunk_scope"`
}

// TableName 指定表名
func (KnowledgeChunk) TableName() string {
	return "knowledge_chunks"
}

// PostgresKeywordConfig Postgres 全文检索适配器配置
type PostgresKeywordConfig struct {
	// 全文检索配置名, 默认 english
	TextSearchConfig string `json:"text_search_config" yaml:"text_search_config"`
}

// PostgresKeywordIndex 基于 Postgres 全文检索的 KeywordIndex 实现.
// ts_rank_cd 给出 BM25 风格的相关度分值, 租户/作用域在 WHERE 中强制过滤.
type PostgresKeywordIndex struct {
	db     *gorm.DB
	cfg    PostgresKeywordConfig
	logger *zap.Logger
}

// NewPostgresKeywordIndex 创建 Postgres 关键词索引适配器
func NewPostgresKeywordIndex(db *gorm.DB, cfg PostgresKeywordConfig, logger *zap.Logger) (*PostgresKeywordIndex, error) {
	if db == nil {
		return nil, types.NewError(types.ErrInvalidArgument, "db cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TextSearchConfig == "" {
		cfg.TextSearchConfig = "english"
	}

	return &PostgresKeywordIndex{
		db:     db,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "pg_keyword_index")),
	}, nil
}

// OpenPostgres 按 DSN 打开 Postgres 连接, 摄取端与检索端共用
func OpenPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return db, nil
}

type scoredChunkRow struct {
	KnowledgeChunk
	Score float64 `gorm:"column:score"`
}

// Search 全文相关度检索
func (p *PostgresKeywordIndex) Search(ctx context.Context, query, tenantID, scopeID string, topK int) ([]KeywordHit, error) {
	if topK <= 0 {
		return []KeywordHit{}, nil
	}

	sql := fmt.Sprintf(`
		SELECT chunk_id, source_id, chunk_index, text, tenant_id, scope_id,
		       ts_rank_cd(to_tsvector('%[1]s', text), plainto_tsquery('%[1]s', ?)) AS score
		FROM knowledge_chunks
		WHERE tenant_id = ? AND scope_id = ?
		  AND to_tsvector('%[1]s', text) @@ plainto_tsquery('%[1]s', ?)
		ORDER BY score DESC, chunk_id ASC
		LIMIT ?`, p.cfg.TextSearchConfig)

	var rows []scoredChunkRow
	if err := p.db.WithContext(ctx).Raw(sql, query, tenantID, scopeID, query, topK).Scan(&rows).Error; err != nil {
		return nil, types.NewError(types.ErrIndexUnavailable, "postgres keyword search failed").
			WithBackend("postgres").
			WithRetryable(true).
			WithCause(err)
	}

	hits := make([]KeywordHit, 0, len(rows))
	for _, r := range rows {
		hits = append(hits, KeywordHit{
			Chunk: Chunk{
				ChunkID:    r.ChunkID,
				SourceID:   r.SourceID,
				ChunkIndex: r.ChunkIndex,
				Text:       r.Text,
				TenantID:   r.TenantID,
				ScopeID:    r.ScopeID,
			},
			Score: r.Score,
		})
	}

	p.logger.Debug("postgres keyword search completed",
		zap.String("tenant_id", tenantID),
		zap.Int("hits", len(hits)))

	return hits, nil
}

// Insert 写入块行, 忽略向量 (向量由 VectorIndex 持有)
func (p *PostgresKeywordIndex) Insert(ctx context.Context, chunks []IndexedChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	rows := make([]KnowledgeChunk, 0, len(chunks))
	for i, ic := range chunks {
		if ic.Chunk.ChunkID == "" {
			return types.NewError(types.ErrInvalidArgument, fmt.Sprintf("chunk[%d] has empty chunk_id", i))
		}
		rows = append(rows, KnowledgeChunk{
			ChunkID:    ic.Chunk.ChunkID,
			SourceID:   ic.Chunk.SourceID,
			ChunkIndex: ic.Chunk.ChunkIndex,
			Text:       ic.Chunk.Text,
			TenantID:   ic.Chunk.TenantID,
			ScopeID:    ic.Chunk.ScopeID,
		})
	}

	if err := p.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return types.NewError(types.ErrIndexUnavailable, "postgres insert failed").
			WithBackend("postgres").
			WithRetryable(true).
			WithCause(err)
	}
	return nil
}

// DeleteBySource 按来源文档级联删除
func (p *PostgresKeywordIndex) DeleteBySource(ctx context.Context, sourceID string) error {
	if err := p.db.WithContext(ctx).Where("source_id = ?", sourceID).Delete(&KnowledgeChunk{}).Error; err != nil {
		return types.NewError(types.ErrIndexUnavailable, "postgres delete failed").
			WithBackend("postgres").
			WithRetryable(true).
			WithCause(err)
	}
	return nil
}

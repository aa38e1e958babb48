package retrieval

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/bwenge/ragcore/types"
)

func setupPgIndex(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PostgresKeywordIndex) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: mockDB,
	}), &gorm.Config{})
	require.NoError(t, err)

	idx, err := NewPostgresKeywordIndex(gormDB, PostgresKeywordConfig{}, nil)
	require.NoError(t, err)

	return mockDB, mock, idx
}

func TestPostgresKeywordIndex_Search(t *testing.T) {
	mockDB, mock, idx := setupPgIndex(t)
	defer mockDB.Close()

	rows := sqlmock.NewRows([]string{
		"chunk_id", "source_id", "chunk_index", "text", "tenant_id", "scope_id", "score",
	}).
		AddRow("c1", "d1", 0, "hybrid retrieval fuses channels", "t1", "p1", 0.61).
		AddRow("c2", "d1", 1, "keyword search via tsquery", "t1", "p1", 0.34)

	mock.ExpectQuery("ts_rank_cd").
		WithArgs("hybrid retrieval", "t1", "p1", "hybrid retrieval", 5).
		WillReturnRows(rows)

	hits, err := idx.Search(context.Background(), "hybrid retrieval", "t1", "p1", 5)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	assert.Equal(t, "c1", hits[0].Chunk.ChunkID)
	assert.Equal(t, 0.61, hits[0].Score)
	assert.Equal(t, "t1", hits[0].Chunk.TenantID)
	assert.Equal(t, "p1", hits[0].Chunk.ScopeID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresKeywordIndex_SearchNoMatches(t *testing.T) {
	mockDB, mock, idx := setupPgIndex(t)
	defer mockDB.Close()

	mock.ExpectQuery("ts_rank_cd").
		WillReturnRows(sqlmock.NewRows([]string{
			"chunk_id", "source_id", "chunk_index", "text", "tenant_id", "scope_id", "score",
		}))

	hits, err := idx.Search(context.Background(), "nothing matches", "t1", "p1", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestPostgresKeywordIndex_SearchDBErrorIsIndexUnavailable(t *testing.T) {
	mockDB, mock, idx := setupPgIndex(t)
	defer mockDB.Close()

	mock.ExpectQuery("ts_rank_cd").
		WillReturnError(errors.New("connection refused"))

	_, err := idx.Search(context.Background(), "q", "t1", "p1", 5)
	require.Error(t, err)
	assert.True(t, types.IsIndexUnavailable(err))
	assert.True(t, types.IsRetryable(err))
}

func TestPostgresKeywordIndex_ZeroTopK(t *testing.T) {
	mockDB, mock, idx := setupPgIndex(t)
	defer mockDB.Close()

	// 不应触达数据库
	hits, err := idx.Search(context.Background(), "q", "t1", "p1", 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresKeywordIndex_Insert(t *testing.T) {
	mockDB, mock, idx := setupPgIndex(t)
	defer mockDB.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "knowledge_chunks"`).
		WithArgs("c1", "d1", 0, "chunk text", "t1", "p1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := idx.Insert(context.Background(), []IndexedChunk{{
		Chunk: Chunk{ChunkID: "c1", SourceID: "d1", ChunkIndex: 0, Text: "chunk text", TenantID: "t1", ScopeID: "p1"},
	}})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresKeywordIndex_InsertEmptyChunkID(t *testing.T) {
	mockDB, _, idx := setupPgIndex(t)
	defer mockDB.Close()

	err := idx.Insert(context.Background(), []IndexedChunk{{Chunk: Chunk{Text: "no id"}}})
	require.Error(t, err)
	assert.True(t, types.IsInvalidArgument(err))
}

func TestPostgresKeywordIndex_DeleteBySource(t *testing.T) {
	mockDB, mock, idx := setupPgIndex(t)
	defer mockDB.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "knowledge_chunks"`).
		WithArgs("d1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	err := idx.DeleteBySource(context.Background(), "d1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresKeywordIndex_NilDB(t *testing.T) {
	_, err := NewPostgresKeywordIndex(nil, PostgresKeywordConfig{}, nil)
	require.Error(t, err)
	assert.True(t, types.IsInvalidArgument(err))
}

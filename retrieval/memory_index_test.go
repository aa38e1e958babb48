package retrieval

import (
	"context"
	"sync"
	"testing"
)

func seedIndex(t *testing.T) *InMemoryIndex {
	t.Helper()

	idx := NewInMemoryIndex()
	err := idx.Insert(context.Background(), []IndexedChunk{
		{
			Chunk:     Chunk{ChunkID: "c1", SourceID: "d1", Text: "the quick brown fox", TenantID: "t1", ScopeID: "p1"},
			Embedding: []float64{1, 0, 0},
		},
		{
			Chunk:     Chunk{ChunkID: "c2", SourceID: "d1", Text: "a lazy dog sleeps", TenantID: "t1", ScopeID: "p1"},
			Embedding: []float64{0, 1, 0},
		},
		{
			Chunk:     Chunk{ChunkID: "c3", SourceID: "d2", Text: "quick quick quick fox", TenantID: "t1", ScopeID: "p1"},
			Embedding: []float64{0.9, 0.1, 0},
		},
		{
			Chunk:     Chunk{ChunkID: "other-tenant", SourceID: "d3", Text: "quick fox elsewhere", TenantID: "t2", ScopeID: "p1"},
			Embedding: []float64{1, 0, 0},
		},
		{
			Chunk:     Chunk{ChunkID: "other-scope", SourceID: "d4", Text: "quick fox other persona", TenantID: "t1", ScopeID: "p2"},
			Embedding: []float64{1, 0, 0},
		},
	})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	return idx
}

func TestInMemoryIndex_VectorSearch(t *testing.T) {
	t.Parallel()

	idx := seedIndex(t)

	hits, err := idx.Search(context.Background(), []float64{1, 0, 0}, "t1", "p1", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if len(hits) != 3 {
		t.Fatalf("hit count = %d, want 3 (tenant/scope filtered)", len(hits))
	}
	if hits[0].Chunk.ChunkID != "c1" {
		t.Fatalf("nearest = %s, want c1", hits[0].Chunk.ChunkID)
	}
	if hits[0].Distance > hits[1].Distance || hits[1].Distance > hits[2].Distance {
		t.Fatalf("hits not sorted by distance: %+v", hits)
	}
	// 完全匹配的向量距离应为 0
	if hits[0].Distance > 1e-9 {
		t.Fatalf("identical vector distance = %f, want 0", hits[0].Distance)
	}
}

func TestInMemoryIndex_VectorSearchTopK(t *testing.T) {
	t.Parallel()

	idx := seedIndex(t)

	hits, err := idx.Search(context.Background(), []float64{1, 0, 0}, "t1", "p1", 1)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 1 || hits[0].Chunk.ChunkID != "c1" {
		t.Fatalf("hits = %+v, want single c1", hits)
	}
}

func TestInMemoryIndex_KeywordSearch(t *testing.T) {
	t.Parallel()

	idx := seedIndex(t)

	hits, err := idx.KeywordSearch(context.Background(), "quick fox", "t1", "p1", 10)
	if err != nil {
		t.Fatalf("KeywordSearch failed: %v", err)
	}

	if len(hits) == 0 {
		t.Fatal("expected keyword hits")
	}
	for _, h := range hits {
		if h.Chunk.TenantID != "t1" || h.Chunk.ScopeID != "p1" {
			t.Fatalf("isolation violated: %+v", h.Chunk)
		}
		if h.Score <= 0 {
			t.Fatalf("score = %f, want > 0", h.Score)
		}
	}
	// 无关文本不应命中
	for _, h := range hits {
		if h.Chunk.ChunkID == "c2" {
			t.Fatalf("c2 has no query terms but scored %f", h.Score)
		}
	}
}

func TestInMemoryIndex_KeywordAdapterImplementsInterface(t *testing.T) {
	t.Parallel()

	idx := seedIndex(t)
	var kw KeywordIndex = idx.KeywordAdapter()

	hits, err := kw.Search(context.Background(), "lazy dog", "t1", "p1", 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 1 || hits[0].Chunk.ChunkID != "c2" {
		t.Fatalf("hits = %+v, want single c2", hits)
	}
}

func TestInMemoryIndex_EmptyScope(t *testing.T) {
	t.Parallel()

	idx := seedIndex(t)

	hits, err := idx.Search(context.Background(), []float64{1, 0, 0}, "missing", "p1", 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("hit count = %d, want 0 for unknown tenant", len(hits))
	}
}

func TestInMemoryIndex_ConcurrentInsertAndSearch(t *testing.T) {
	t.Parallel()

	idx := seedIndex(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = idx.Insert(context.Background(), []IndexedChunk{{
				Chunk:     Chunk{ChunkID: "conc", SourceID: "d9", Text: "concurrent insert", TenantID: "t1", ScopeID: "p1"},
				Embedding: []float64{0.5, 0.5, 0},
			}})
		}(i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := idx.Search(context.Background(), []float64{1, 0, 0}, "t1", "p1", 5); err != nil {
				t.Errorf("concurrent Search failed: %v", err)
			}
			if _, err := idx.KeywordSearch(context.Background(), "quick", "t1", "p1", 5); err != nil {
				t.Errorf("concurrent KeywordSearch failed: %v", err)
			}
		}()
	}
	wg.Wait()
}

func TestInMemoryIndex_EndToEndWithEngine(t *testing.T) {
	t.Parallel()

	idx := seedIndex(t)
	emb := &stubEmbedder{vector: []float64{1, 0, 0}}
	e := newTestEngine(emb, idx, idx.KeywordAdapter())

	q := NewQuery("quick fox", "t1", "p1")
	results, err := e.Retrieve(context.Background(), q)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected fused results")
	}

	for i := 1; i < len(results); i++ {
		if results[i].CombinedScore > results[i-1].CombinedScore {
			t.Fatalf("combined_score not non-increasing: %+v", results)
		}
	}
	for _, r := range results {
		if r.Chunk.TenantID != "t1" || r.Chunk.ScopeID != "p1" {
			t.Fatalf("isolation violated in fused output: %+v", r.Chunk)
		}
	}
}

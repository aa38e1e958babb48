package retrieval

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
)

// BM25 参数, k1 控制词频饱和, b 控制长度归一
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// InMemoryIndex 同时实现 VectorIndex 与 KeywordIndex 的内存索引,
// 向量通道用余弦距离, 关键词通道用 BM25. 适合测试与小规模部署.
type InMemoryIndex struct {
	mu     sync.RWMutex
	chunks []IndexedChunk

	// BM25 统计, Insert 时重建
	docLens   []int
	avgDocLen float64
	idf       map[string]float64
}

// NewInMemoryIndex 创建空的内存索引
func NewInMemoryIndex() *InMemoryIndex {
	return &InMemoryIndex{
		idf: make(map[string]float64),
	}
}

// Insert 追加块并重建 BM25 统计
func (idx *InMemoryIndex) Insert(ctx context.Context, chunks []IndexedChunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.chunks = append(idx.chunks, chunks...)
	idx.rebuildStats()
	return nil
}

// Len 返回已索引块数
func (idx *InMemoryIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.chunks)
}

// Search 余弦相似度最近邻, 返回 distance = 1 - cosine
func (idx *InMemoryIndex) Search(ctx context.Context, vector []float64, tenantID, scopeID string, topK int) ([]VectorHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return []VectorHit{}, nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	hits := make([]VectorHit, 0, topK)
	for _, ic := range idx.chunks {
		if !matchScope(ic.Chunk, tenantID, scopeID) || len(ic.Embedding) == 0 {
			continue
		}
		hits = append(hits, VectorHit{
			Chunk:    ic.Chunk,
			Distance: 1 - cosineSimilarity(vector, ic.Embedding),
		})
	}

	sortVectorHits(hits)
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// KeywordSearch BM25 相关度检索.
// 单独命名以便一个实例同时充当两个通道; 见 KeywordAdapter.
func (idx *InMemoryIndex) KeywordSearch(ctx context.Context, query, tenantID, scopeID string, topK int) ([]KeywordHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return []KeywordHit{}, nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	queryTerms := tokenizeTerms(query)
	hits := make([]KeywordHit, 0, topK)

	for i, ic := range idx.chunks {
		if !matchScope(ic.Chunk, tenantID, scopeID) {
			continue
		}

		score := idx.bm25Score(queryTerms, i)
		if score <= 0 {
			continue
		}
		hits = append(hits, KeywordHit{Chunk: ic.Chunk, Score: score})
	}

	sortKeywordHits(hits)
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// KeywordAdapter 将内存索引适配为 KeywordIndex 接口
func (idx *InMemoryIndex) KeywordAdapter() KeywordIndex {
	return keywordAdapter{idx}
}

type keywordAdapter struct {
	idx *InMemoryIndex
}

func (a keywordAdapter) Search(ctx context.Context, query, tenantID, scopeID string, topK int) ([]KeywordHit, error) {
	return a.idx.KeywordSearch(ctx, query, tenantID, scopeID, topK)
}

// rebuildStats 重算文档长度/平均长度/IDF, 调用方持有写锁
func (idx *InMemoryIndex) rebuildStats() {
	idx.docLens = make([]int, len(idx.chunks))
	termDocCount := make(map[string]int)
	totalLen := 0

	for i, ic := range idx.chunks {
		terms := tokenizeTerms(ic.Chunk.Text)
		idx.docLens[i] = len(terms)
		totalLen += len(terms)

		seen := make(map[string]bool)
		for _, term := range terms {
			if !seen[term] {
				termDocCount[term]++
				seen[term] = true
			}
		}
	}

	idx.avgDocLen = 0
	if len(idx.chunks) > 0 {
		idx.avgDocLen = float64(totalLen) / float64(len(idx.chunks))
	}

	idx.idf = make(map[string]float64, len(termDocCount))
	n := float64(len(idx.chunks))
	for term, df := range termDocCount {
		idx.idf[term] = math.Log((n-float64(df)+0.5)/(float64(df)+0.5) + 1.0)
	}
}

// bm25Score 计算第 i 个块对查询词的 BM25 得分, 调用方持有读锁
func (idx *InMemoryIndex) bm25Score(queryTerms []string, i int) float64 {
	docTerms := tokenizeTerms(idx.chunks[i].Chunk.Text)
	termFreq := make(map[string]int, len(docTerms))
	for _, term := range docTerms {
		termFreq[term]++
	}

	docLen := float64(idx.docLens[i])
	score := 0.0

	for _, qTerm := range queryTerms {
		tf, ok := termFreq[qTerm]
		if !ok {
			continue
		}
		idf := idx.idf[qTerm]

		numerator := float64(tf) * (bm25K1 + 1.0)
		denominator := float64(tf) + bm25K1*(1.0-bm25B+bm25B*(docLen/idx.avgDocLen))
		score += idf * (numerator / denominator)
	}

	return score
}

func matchScope(c Chunk, tenantID, scopeID string) bool {
	return c.TenantID == tenantID && c.ScopeID == scopeID
}

// tokenizeTerms 简化分词: 转小写按空白切分
func tokenizeTerms(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0.0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0.0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func sortVectorHits(hits []VectorHit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].Chunk.ChunkID < hits[j].Chunk.ChunkID
	})
}

func sortKeywordHits(hits []KeywordHit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Chunk.ChunkID < hits[j].Chunk.ChunkID
	})
}

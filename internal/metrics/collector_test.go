package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
)

func TestRetrievalCollector_RecordRetrieval(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := NewRetrievalCollector("ragcore", reg, zap.NewNop())

	c.RecordRetrieval("hybrid", "ok", 5, 20*time.Millisecond)
	c.RecordRetrieval("hybrid", "ok", 3, 10*time.Millisecond)
	c.RecordRetrieval("vector", "error", 0, time.Millisecond)

	if got := testutil.ToFloat64(c.retrievalsTotal.WithLabelValues("hybrid", "ok")); got != 2 {
		t.Errorf("hybrid/ok retrievals = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.retrievalsTotal.WithLabelValues("vector", "error")); got != 1 {
		t.Errorf("vector/error retrievals = %v, want 1", got)
	}
}

func TestRetrievalCollector_RecordChannelDegradation(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := NewRetrievalCollector("ragcore", reg, zap.NewNop())

	c.RecordChannelDegradation("keyword")
	c.RecordChannelDegradation("keyword")
	c.RecordChannelDegradation("vector")

	if got := testutil.ToFloat64(c.channelDegradations.WithLabelValues("keyword")); got != 2 {
		t.Errorf("keyword degradations = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.channelDegradations.WithLabelValues("vector")); got != 1 {
		t.Errorf("vector degradations = %v, want 1", got)
	}
}

func TestCacheCollector_Counters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := NewCacheCollector("ragcore", reg)

	c.RecordHit("embedding")
	c.RecordMiss("embedding")
	c.RecordMiss("embedding")

	if got := testutil.ToFloat64(c.cacheHits.WithLabelValues("embedding")); got != 1 {
		t.Errorf("cache hits = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.cacheMisses.WithLabelValues("embedding")); got != 2 {
		t.Errorf("cache misses = %v, want 2", got)
	}
}

func TestCollectors_ShareRegistryWithoutCollision(t *testing.T) {
	t.Parallel()

	// Retrieval and cache collectors register disjoint metric names,
	// so both may use the same registry.
	reg := prometheus.NewRegistry()
	rc := NewRetrievalCollector("ragcore", reg, zap.NewNop())
	cc := NewCacheCollector("ragcore", reg)

	rc.RecordEmbedding("gemini-embedding", "ok", time.Millisecond)
	cc.RecordHit("embedding")

	if got := testutil.ToFloat64(rc.embeddingRequests.WithLabelValues("gemini-embedding", "ok")); got != 1 {
		t.Errorf("embedding requests = %v, want 1", got)
	}
}

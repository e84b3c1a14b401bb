package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircularBuffer_FIFOEviction(t *testing.T) {
	buf := NewCircularBuffer[string](3)

	buf.Add("q1")
	buf.Add("q2")
	buf.Add("q3")
	buf.Add("q4")

	assert.Equal(t, []string{"q2", "q3", "q4"}, buf.Items())
	assert.Equal(t, 3, buf.Size())
}

func TestCircularBuffer_Clear(t *testing.T) {
	buf := NewCircularBuffer[string](3)
	buf.Add("q1")

	buf.Clear()

	assert.Zero(t, buf.Size())
	assert.Empty(t, buf.Items())
}

func TestLatencyToBucket(t *testing.T) {
	assert.Equal(t, BucketP10, LatencyToBucket(5*time.Millisecond))
	assert.Equal(t, BucketP50, LatencyToBucket(30*time.Millisecond))
	assert.Equal(t, BucketP100, LatencyToBucket(80*time.Millisecond))
	assert.Equal(t, BucketP500, LatencyToBucket(300*time.Millisecond))
	assert.Equal(t, BucketP1500, LatencyToBucket(1200*time.Millisecond))
}

func TestExtractTerms(t *testing.T) {
	assert.Equal(t, []string{"climate", "policy"}, ExtractTerms("Climate in Policy"))
	assert.Nil(t, ExtractTerms("a of"))
	assert.Nil(t, ExtractTerms("  "))
}

func TestCollector_RecordAggregates(t *testing.T) {
	c := NewCollectorWithConfig(nil, CollectorConfig{FlushInterval: 0})
	defer c.Close()

	c.Record(SearchEvent{
		Query:       "solar panels",
		ResultCount: 10,
		CacheHit:    false,
		RerankPath:  "cross_encoder",
		Latency:     40 * time.Millisecond,
	})
	c.Record(SearchEvent{
		Query:        "solar panels",
		ResultCount:  10,
		CacheHit:     true,
		RerankPath:   "heuristic",
		Degradations: []string{"ERR_302_DENSE_FAILED"},
		Latency:      2 * time.Millisecond,
	})
	c.Record(SearchEvent{
		Query:       "nothing found here",
		ResultCount: 0,
		Latency:     600 * time.Millisecond,
	})

	snap := c.Snapshot()

	assert.Equal(t, int64(3), snap.TotalQueries)
	assert.Equal(t, int64(1), snap.CacheHits)
	assert.Equal(t, int64(1), snap.ZeroResultCount)
	assert.Equal(t, []string{"nothing found here"}, snap.ZeroResultQueries)
	assert.Equal(t, int64(1), snap.LatencyDistribution[BucketP50])
	assert.Equal(t, int64(1), snap.LatencyDistribution[BucketP10])
	assert.Equal(t, int64(1), snap.LatencyDistribution[BucketP1500])
	assert.Equal(t, int64(1), snap.DegradationCounts["ERR_302_DENSE_FAILED"])
	assert.Equal(t, int64(1), snap.RerankPathCounts["cross_encoder"])
	assert.Equal(t, int64(1), snap.RerankPathCounts["heuristic"])
	assert.InDelta(t, 1.0/3.0, snap.CacheHitRate(), 1e-9)
}

func TestCollector_TermFrequencies(t *testing.T) {
	c := NewCollectorWithConfig(nil, CollectorConfig{FlushInterval: 0})
	defer c.Close()

	c.Record(SearchEvent{Query: "solar energy", ResultCount: 1})
	c.Record(SearchEvent{Query: "solar storage", ResultCount: 1})

	snap := c.Snapshot()
	counts := make(map[string]int64)
	for _, tc := range snap.TopTerms {
		counts[tc.Term] = tc.Count
	}

	assert.Equal(t, int64(2), counts["solar"])
	assert.Equal(t, int64(1), counts["energy"])
}

func TestCollector_RecordAfterCloseIsNoop(t *testing.T) {
	c := NewCollectorWithConfig(nil, CollectorConfig{FlushInterval: 0})
	require.NoError(t, c.Close())

	c.Record(SearchEvent{Query: "late", ResultCount: 1})

	assert.Zero(t, c.Snapshot().TotalQueries)
}

func TestCollector_EmptySnapshotRates(t *testing.T) {
	c := NewCollectorWithConfig(nil, CollectorConfig{FlushInterval: 0})
	defer c.Close()

	snap := c.Snapshot()
	assert.Zero(t, snap.CacheHitRate())
	assert.Zero(t, snap.ZeroResultPercentage())
}

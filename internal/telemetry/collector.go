// Package telemetry aggregates per-request search metrics for local
// analysis. All data stays on the host - no external reporting.
package telemetry

import (
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// =============================================================================
// Latency Buckets
// =============================================================================

// LatencyBucket represents a latency histogram bucket.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1500 LatencyBucket = "p1500" // >=500ms
)

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1500
	}
}

// =============================================================================
// Search Event
// =============================================================================

// SearchEvent is the per-request record handed to a Sink after each
// search completes.
type SearchEvent struct {
	Query        string
	ResultCount  int
	CacheHit     bool
	Degradations []string
	RerankPath   string
	Latency      time.Duration
	Timestamp    time.Time
}

// IsZeroResult returns true if this search returned no results.
func (e SearchEvent) IsZeroResult() bool {
	return e.ResultCount == 0
}

// Sink accepts search metrics records. Implementations must be safe for
// concurrent use; Record must never block the search path.
type Sink interface {
	Record(event SearchEvent)
}

// =============================================================================
// Circular Buffer
// =============================================================================

// CircularBuffer is a fixed-capacity FIFO buffer.
type CircularBuffer[T any] struct {
	items    []T
	head     int // Next write position
	size     int // Current number of items
	capacity int
	mu       sync.RWMutex
}

// NewCircularBuffer creates a new circular buffer with the given capacity.
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &CircularBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Add adds an item to the buffer. If full, the oldest item is evicted.
func (b *CircularBuffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items[b.head] = item
	b.head = (b.head + 1) % b.capacity

	if b.size < b.capacity {
		b.size++
	}
}

// Items returns all items in the buffer in FIFO order (oldest first).
func (b *CircularBuffer[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.size == 0 {
		return []T{}
	}

	result := make([]T, b.size)
	if b.size < b.capacity {
		copy(result, b.items[:b.size])
	} else {
		copy(result, b.items[b.head:])
		copy(result[b.capacity-b.head:], b.items[:b.head])
	}
	return result
}

// Size returns the current number of items in the buffer.
func (b *CircularBuffer[T]) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Clear removes all items from the buffer.
func (b *CircularBuffer[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.head = 0
	b.size = 0
}

// =============================================================================
// Term Extraction
// =============================================================================

// ExtractTerms extracts searchable terms from a query string.
// Terms are lowercased and filtered to minimum length 3.
func ExtractTerms(query string) []string {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}

	words := strings.Fields(query)
	var terms []string
	for _, w := range words {
		if len(w) >= 3 {
			terms = append(terms, w)
		}
	}

	if len(terms) == 0 {
		return nil
	}
	return terms
}

// TermCount represents a term and its frequency count.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// =============================================================================
// Snapshot
// =============================================================================

// Snapshot is an immutable view of the collector's aggregates.
type Snapshot struct {
	TotalQueries        int64                   `json:"total_queries"`
	CacheHits           int64                   `json:"cache_hits"`
	ZeroResultCount     int64                   `json:"zero_result_count"`
	ZeroResultQueries   []string                `json:"zero_result_queries"`
	TopTerms            []TermCount             `json:"top_terms"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	DegradationCounts   map[string]int64        `json:"degradation_counts"`
	RerankPathCounts    map[string]int64        `json:"rerank_path_counts"`
	Since               time.Time               `json:"since"`
}

// CacheHitRate returns the fraction of queries served from cache.
func (s *Snapshot) CacheHitRate() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(s.TotalQueries)
}

// ZeroResultPercentage returns the percentage of zero-result queries.
func (s *Snapshot) ZeroResultPercentage() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ZeroResultCount) / float64(s.TotalQueries) * 100
}

// =============================================================================
// Collector
// =============================================================================

// CollectorConfig configures the metrics collector.
type CollectorConfig struct {
	TopTermsCapacity    int           // Max terms to track (default: 100)
	ZeroResultsCapacity int           // Max zero-result queries to track (default: 100)
	FlushInterval       time.Duration // How often to flush to store (default: 60s, 0 = no auto-flush)
}

// DefaultCollectorConfig returns sensible defaults.
func DefaultCollectorConfig() CollectorConfig {
	return CollectorConfig{
		TopTermsCapacity:    100,
		ZeroResultsCapacity: 100,
		FlushInterval:       60 * time.Second,
	}
}

// Collector aggregates search events in memory and periodically flushes
// daily aggregates to an optional store. Thread-safe.
type Collector struct {
	mu sync.RWMutex

	totalQueries    int64
	cacheHits       int64
	zeroResultCount int64
	zeroResults     *CircularBuffer[string]
	topTerms        *lru.Cache[string, int64]
	latencies       map[LatencyBucket]int64
	degradations    map[string]int64
	rerankPaths     map[string]int64
	startTime       time.Time

	store       MetricsStore
	config      CollectorConfig
	flushTicker *time.Ticker
	stopCh      chan struct{}
	closed      bool
}

// Verify interface implementation at compile time
var _ Sink = (*Collector)(nil)

// NewCollector creates a collector with default configuration.
// If store is nil, metrics are only kept in memory.
func NewCollector(store MetricsStore) *Collector {
	return NewCollectorWithConfig(store, DefaultCollectorConfig())
}

// NewCollectorWithConfig creates a collector with custom configuration.
func NewCollectorWithConfig(store MetricsStore, cfg CollectorConfig) *Collector {
	if cfg.TopTermsCapacity <= 0 {
		cfg.TopTermsCapacity = 100
	}
	if cfg.ZeroResultsCapacity <= 0 {
		cfg.ZeroResultsCapacity = 100
	}

	topTerms, _ := lru.New[string, int64](cfg.TopTermsCapacity)

	c := &Collector{
		zeroResults:  NewCircularBuffer[string](cfg.ZeroResultsCapacity),
		topTerms:     topTerms,
		latencies:    make(map[LatencyBucket]int64),
		degradations: make(map[string]int64),
		rerankPaths:  make(map[string]int64),
		startTime:    time.Now(),
		store:        store,
		config:       cfg,
		stopCh:       make(chan struct{}),
	}

	if store != nil && cfg.FlushInterval > 0 {
		c.flushTicker = time.NewTicker(cfg.FlushInterval)
		go c.flushLoop()
	}

	return c
}

// Record aggregates a search event.
func (c *Collector) Record(event SearchEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.totalQueries++
	if event.CacheHit {
		c.cacheHits++
	}
	if event.IsZeroResult() {
		c.zeroResultCount++
		c.zeroResults.Add(event.Query)
	}

	c.latencies[LatencyToBucket(event.Latency)]++

	for _, d := range event.Degradations {
		c.degradations[d]++
	}
	if event.RerankPath != "" {
		c.rerankPaths[event.RerankPath]++
	}

	for _, term := range ExtractTerms(event.Query) {
		count, _ := c.topTerms.Get(term)
		c.topTerms.Add(term, count+1)
	}
}

// Snapshot returns a copy of the current aggregates.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := Snapshot{
		TotalQueries:        c.totalQueries,
		CacheHits:           c.cacheHits,
		ZeroResultCount:     c.zeroResultCount,
		ZeroResultQueries:   c.zeroResults.Items(),
		LatencyDistribution: make(map[LatencyBucket]int64, len(c.latencies)),
		DegradationCounts:   make(map[string]int64, len(c.degradations)),
		RerankPathCounts:    make(map[string]int64, len(c.rerankPaths)),
		Since:               c.startTime,
	}
	for k, v := range c.latencies {
		snap.LatencyDistribution[k] = v
	}
	for k, v := range c.degradations {
		snap.DegradationCounts[k] = v
	}
	for k, v := range c.rerankPaths {
		snap.RerankPathCounts[k] = v
	}

	for _, term := range c.topTerms.Keys() {
		if count, ok := c.topTerms.Peek(term); ok {
			snap.TopTerms = append(snap.TopTerms, TermCount{Term: term, Count: count})
		}
	}

	return snap
}

func (c *Collector) flushLoop() {
	for {
		select {
		case <-c.flushTicker.C:
			_ = c.Flush()
		case <-c.stopCh:
			return
		}
	}
}

// Flush persists the in-memory aggregates to the store and resets the
// flushed counters. No-op without a store.
func (c *Collector) Flush() error {
	if c.store == nil {
		return nil
	}

	c.mu.Lock()
	latencies := c.latencies
	degradations := c.degradations
	terms := make(map[string]int64)
	for _, term := range c.topTerms.Keys() {
		if count, ok := c.topTerms.Peek(term); ok {
			terms[term] = count
		}
	}
	zeroQueries := c.zeroResults.Items()
	c.latencies = make(map[LatencyBucket]int64)
	c.degradations = make(map[string]int64)
	c.topTerms.Purge()
	c.zeroResults.Clear()
	c.mu.Unlock()

	date := time.Now().UTC().Format("2006-01-02")

	if err := c.store.SaveLatencyCounts(date, latencies); err != nil {
		return err
	}
	if err := c.store.SaveDegradationCounts(date, degradations); err != nil {
		return err
	}
	if err := c.store.UpsertTermCounts(terms); err != nil {
		return err
	}
	for _, q := range zeroQueries {
		if err := c.store.AddZeroResultQuery(q, time.Now().UTC()); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes pending aggregates and stops the flush loop.
func (c *Collector) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	if c.flushTicker != nil {
		c.flushTicker.Stop()
		close(c.stopCh)
	}

	return c.Flush()
}

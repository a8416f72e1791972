package monitoring

import (
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

const maxResponseSamples = 1000

// Metrics holds application metrics
type Metrics struct {
	RequestCount        int64
	ErrorCount          int64
	CacheHits           int64
	CacheMisses         int64
	AverageResponseTime int64 // in nanoseconds
	StartTime           time.Time

	// Scoring
	PredictionCount      int64
	SchemaErrorCount     int64
	ValidationErrorCount int64
	PredictionsByTier    map[string]int64
	PredictionsBySource  map[string]int64
	PredictionMutex      sync.RWMutex

	// Audit log
	AuditWrites   int64
	AuditFailures int64

	// Message transport
	NatsRequests int64
	NatsErrors   int64

	ResponseTimes      []time.Duration
	ResponseTimesMutex sync.RWMutex

	RequestCountByStatus map[int]int64
	StatusMutex          sync.RWMutex

	// Runtime
	GCCount        int64
	GCPauseTotalNs int64
	HeapAlloc      int64
	HeapSys        int64
	Goroutines     int64

	// Rate limit metrics
	RateLimitIPBlocks      int64
	RateLimitRedisErrors   int64
	RateLimitFallbackCount int64
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		StartTime:            time.Now(),
		ResponseTimes:        make([]time.Duration, 0, maxResponseSamples),
		RequestCountByStatus: make(map[int]int64),
		PredictionsByTier:    make(map[string]int64),
		PredictionsBySource:  make(map[string]int64),
	}
}

func (m *Metrics) IncrementRequest() {
	atomic.AddInt64(&m.RequestCount, 1)
}

func (m *Metrics) IncrementError() {
	atomic.AddInt64(&m.ErrorCount, 1)
}

func (m *Metrics) IncrementCacheHit() {
	atomic.AddInt64(&m.CacheHits, 1)
}

func (m *Metrics) IncrementCacheMiss() {
	atomic.AddInt64(&m.CacheMisses, 1)
}

// RecordPrediction counts a successful scoring call by tier and source
func (m *Metrics) RecordPrediction(source, tier string) {
	atomic.AddInt64(&m.PredictionCount, 1)

	m.PredictionMutex.Lock()
	defer m.PredictionMutex.Unlock()
	m.PredictionsByTier[tier]++
	m.PredictionsBySource[source]++
}

func (m *Metrics) IncrementSchemaError() {
	atomic.AddInt64(&m.SchemaErrorCount, 1)
}

func (m *Metrics) IncrementValidationError() {
	atomic.AddInt64(&m.ValidationErrorCount, 1)
}

// RecordAuditWrite counts an audit log insert
func (m *Metrics) RecordAuditWrite(success bool) {
	if success {
		atomic.AddInt64(&m.AuditWrites, 1)
		return
	}
	atomic.AddInt64(&m.AuditFailures, 1)
}

// RecordNatsRequest counts a request served over the message transport
func (m *Metrics) RecordNatsRequest(success bool) {
	atomic.AddInt64(&m.NatsRequests, 1)
	if !success {
		atomic.AddInt64(&m.NatsErrors, 1)
	}
}

// RecordResponseTime records response time for averaging and percentiles
func (m *Metrics) RecordResponseTime(duration time.Duration) {
	current := atomic.LoadInt64(&m.AverageResponseTime)
	newAverage := (current + duration.Nanoseconds()) / 2
	atomic.StoreInt64(&m.AverageResponseTime, newAverage)

	m.ResponseTimesMutex.Lock()
	m.ResponseTimes = append(m.ResponseTimes, duration)
	if len(m.ResponseTimes) > maxResponseSamples {
		m.ResponseTimes = m.ResponseTimes[1:]
	}
	m.ResponseTimesMutex.Unlock()
}

// RecordRequestByStatus records request count by HTTP status code
func (m *Metrics) RecordRequestByStatus(statusCode int) {
	m.StatusMutex.Lock()
	defer m.StatusMutex.Unlock()
	m.RequestCountByStatus[statusCode]++
}

// RecordRuntime samples the Go runtime
func (m *Metrics) RecordRuntime() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	atomic.StoreInt64(&m.GCCount, int64(ms.NumGC))
	atomic.StoreInt64(&m.GCPauseTotalNs, int64(ms.PauseTotalNs))
	atomic.StoreInt64(&m.HeapAlloc, int64(ms.HeapAlloc))
	atomic.StoreInt64(&m.HeapSys, int64(ms.HeapSys))
	atomic.StoreInt64(&m.Goroutines, int64(runtime.NumGoroutine()))
}

// GetPercentileResponseTime calculates percentile response time
func (m *Metrics) GetPercentileResponseTime(percentile float64) time.Duration {
	m.ResponseTimesMutex.RLock()
	defer m.ResponseTimesMutex.RUnlock()

	if len(m.ResponseTimes) == 0 {
		return 0
	}

	times := make([]time.Duration, len(m.ResponseTimes))
	copy(times, m.ResponseTimes)

	sort.Slice(times, func(i, j int) bool {
		return times[i] < times[j]
	})

	index := int(float64(len(times)-1) * percentile / 100.0)
	if index >= len(times) {
		index = len(times) - 1
	}

	return times[index]
}

// GetStatusCodeDistribution returns request count by status code
func (m *Metrics) GetStatusCodeDistribution() map[int]int64 {
	m.StatusMutex.RLock()
	defer m.StatusMutex.RUnlock()

	distribution := make(map[int]int64, len(m.RequestCountByStatus))
	for code, count := range m.RequestCountByStatus {
		distribution[code] = count
	}
	return distribution
}

// GetPredictionStats returns scoring counters
func (m *Metrics) GetPredictionStats() map[string]interface{} {
	m.PredictionMutex.RLock()
	byTier := make(map[string]int64, len(m.PredictionsByTier))
	for k, v := range m.PredictionsByTier {
		byTier[k] = v
	}
	bySource := make(map[string]int64, len(m.PredictionsBySource))
	for k, v := range m.PredictionsBySource {
		bySource[k] = v
	}
	m.PredictionMutex.RUnlock()

	return map[string]interface{}{
		"total":             atomic.LoadInt64(&m.PredictionCount),
		"by_tier":           byTier,
		"by_source":         bySource,
		"schema_errors":     atomic.LoadInt64(&m.SchemaErrorCount),
		"validation_errors": atomic.LoadInt64(&m.ValidationErrorCount),
		"audit_writes":      atomic.LoadInt64(&m.AuditWrites),
		"audit_failures":    atomic.LoadInt64(&m.AuditFailures),
		"nats_requests":     atomic.LoadInt64(&m.NatsRequests),
		"nats_errors":       atomic.LoadInt64(&m.NatsErrors),
	}
}

// GetRateLimitStats returns rate limiting statistics
func (m *Metrics) GetRateLimitStats() map[string]interface{} {
	return map[string]interface{}{
		"ip_blocks":      atomic.LoadInt64(&m.RateLimitIPBlocks),
		"redis_errors":   atomic.LoadInt64(&m.RateLimitRedisErrors),
		"fallback_count": atomic.LoadInt64(&m.RateLimitFallbackCount),
	}
}

// GetStats returns current metrics statistics
func (m *Metrics) GetStats() map[string]interface{} {
	requests := atomic.LoadInt64(&m.RequestCount)
	errors := atomic.LoadInt64(&m.ErrorCount)
	cacheHits := atomic.LoadInt64(&m.CacheHits)
	cacheMisses := atomic.LoadInt64(&m.CacheMisses)
	avgResponseTime := atomic.LoadInt64(&m.AverageResponseTime)

	errorRate := float64(0)
	if requests > 0 {
		errorRate = float64(errors) / float64(requests) * 100
	}

	cacheHitRate := float64(0)
	totalCacheRequests := cacheHits + cacheMisses
	if totalCacheRequests > 0 {
		cacheHitRate = float64(cacheHits) / float64(totalCacheRequests) * 100
	}

	heapAlloc := atomic.LoadInt64(&m.HeapAlloc)
	heapSys := atomic.LoadInt64(&m.HeapSys)
	heapUsage := float64(0)
	if heapSys > 0 {
		heapUsage = float64(heapAlloc) / float64(heapSys) * 100
	}

	return map[string]interface{}{
		"uptime_seconds":         time.Since(m.StartTime).Seconds(),
		"total_requests":         requests,
		"error_count":            errors,
		"error_rate_percent":     errorRate,
		"cache_hits":             cacheHits,
		"cache_misses":           cacheMisses,
		"cache_hit_rate_percent": cacheHitRate,
		"avg_response_time_ms":   float64(avgResponseTime) / 1000000,
		"start_time":             m.StartTime.Format(time.RFC3339),

		"p50_response_time_ms":     float64(m.GetPercentileResponseTime(50)) / 1000000,
		"p95_response_time_ms":     float64(m.GetPercentileResponseTime(95)) / 1000000,
		"p99_response_time_ms":     float64(m.GetPercentileResponseTime(99)) / 1000000,
		"status_code_distribution": m.GetStatusCodeDistribution(),

		"predictions": m.GetPredictionStats(),
		"rate_limit":  m.GetRateLimitStats(),

		"go_gc_count":           atomic.LoadInt64(&m.GCCount),
		"go_gc_pause_total_ns":  atomic.LoadInt64(&m.GCPauseTotalNs),
		"go_heap_alloc_bytes":   heapAlloc,
		"go_heap_sys_bytes":     heapSys,
		"go_heap_usage_percent": heapUsage,
		"go_goroutines":         atomic.LoadInt64(&m.Goroutines),
	}
}

// Reset resets all metrics (useful for testing)
func (m *Metrics) Reset() {
	for _, p := range []*int64{
		&m.RequestCount, &m.ErrorCount, &m.CacheHits, &m.CacheMisses, &m.AverageResponseTime,
		&m.PredictionCount, &m.SchemaErrorCount, &m.ValidationErrorCount,
		&m.AuditWrites, &m.AuditFailures, &m.NatsRequests, &m.NatsErrors,
		&m.GCCount, &m.GCPauseTotalNs, &m.HeapAlloc, &m.HeapSys, &m.Goroutines,
		&m.RateLimitIPBlocks, &m.RateLimitRedisErrors, &m.RateLimitFallbackCount,
	} {
		atomic.StoreInt64(p, 0)
	}

	m.ResponseTimesMutex.Lock()
	m.ResponseTimes = m.ResponseTimes[:0]
	m.ResponseTimesMutex.Unlock()

	m.StatusMutex.Lock()
	m.RequestCountByStatus = make(map[int]int64)
	m.StatusMutex.Unlock()

	m.PredictionMutex.Lock()
	m.PredictionsByTier = make(map[string]int64)
	m.PredictionsBySource = make(map[string]int64)
	m.PredictionMutex.Unlock()

	m.StartTime = time.Now()
}

func (m *Metrics) IncrementRateLimitIPBlock() {
	atomic.AddInt64(&m.RateLimitIPBlocks, 1)
}

func (m *Metrics) IncrementRateLimitRedisError() {
	atomic.AddInt64(&m.RateLimitRedisErrors, 1)
}

func (m *Metrics) IncrementRateLimitFallback() {
	atomic.AddInt64(&m.RateLimitFallbackCount, 1)
}

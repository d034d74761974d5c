package worker

import (
	"sync"
	"time"

	"github.com/conneroisu/tsxlive/internal/types"
)

// Metrics tracks compile performance
type Metrics struct {
	TotalCompiles      int64         `json:"total_compiles"`
	SuccessfulCompiles int64         `json:"successful_compiles"`
	FailedCompiles     int64         `json:"failed_compiles"`
	DroppedRequests    int64         `json:"dropped_requests"`
	CacheHits          int64         `json:"cache_hits"`
	AverageDuration    time.Duration `json:"average_duration"`
	TotalDuration      time.Duration `json:"total_duration"`
	mutex              sync.RWMutex
}

// NewMetrics creates a new metrics tracker
func NewMetrics() *Metrics {
	return &Metrics{}
}

// Record records one processed request.
func (m *Metrics) Record(result types.CompileResult, cacheHit bool, d time.Duration) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.TotalCompiles++
	m.TotalDuration += d

	if cacheHit {
		m.CacheHits++
	}

	if result.OK() {
		m.SuccessfulCompiles++
	} else {
		m.FailedCompiles++
	}

	m.AverageDuration = m.TotalDuration / time.Duration(m.TotalCompiles)
}

// RecordDropped counts a request rejected because the queue was full.
func (m *Metrics) RecordDropped() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.DroppedRequests++
}

// Snapshot returns a copy of the current metrics
func (m *Metrics) Snapshot() Metrics {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return Metrics{
		TotalCompiles:      m.TotalCompiles,
		SuccessfulCompiles: m.SuccessfulCompiles,
		FailedCompiles:     m.FailedCompiles,
		DroppedRequests:    m.DroppedRequests,
		CacheHits:          m.CacheHits,
		AverageDuration:    m.AverageDuration,
		TotalDuration:      m.TotalDuration,
	}
}

// CacheHitRate returns the cache hit rate as a percentage
func (m *Metrics) CacheHitRate() float64 {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if m.TotalCompiles == 0 {
		return 0.0
	}

	return float64(m.CacheHits) / float64(m.TotalCompiles) * 100.0
}

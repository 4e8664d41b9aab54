// Package monitoring tracks adjudication outcomes: claims per status,
// rejections by reason code, and matcher anomalies (a matched product with no
// currently valid policy), for the status server and the alert checker.
package monitoring

import (
	"sync"
	"time"
)

// MetricsSnapshot holds a point-in-time view of adjudication activity since
// process start.
type MetricsSnapshot struct {
	ClaimsSubmitted int `json:"claims_submitted"`
	ClaimsProcessed int `json:"claims_processed"`
	ClaimsRelative  int `json:"claims_relative"`
	ClaimsRejected  int `json:"claims_rejected"`

	RejectionsByCode map[int]int `json:"rejections_by_code"`

	// MatcherAnomalies counts lines whose matched product had no valid
	// policy; these are never surfaced as rule errors.
	MatcherAnomalies int `json:"matcher_anomalies"`

	CollectedAt time.Time `json:"collected_at"`
}

// RejectionRate is the share of rejected claims among all finished ones.
func (s *MetricsSnapshot) RejectionRate() float64 {
	finished := s.ClaimsProcessed + s.ClaimsRejected
	if finished == 0 {
		return 0
	}
	return float64(s.ClaimsRejected) / float64(finished)
}

// Collector accumulates adjudication counters. All methods are safe for
// concurrent use.
type Collector struct {
	mu sync.Mutex

	submitted int
	processed int
	relative  int
	rejected  int
	byCode    map[int]int
	anomalies int
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{byCode: make(map[int]int)}
}

// ClaimSubmitted records a claim reaching CHECKED.
func (c *Collector) ClaimSubmitted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.submitted++
}

// ClaimProcessed records a claim reaching PROCESSED or VALUATED.
func (c *Collector) ClaimProcessed(relative bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.processed++
	if relative {
		c.relative++
	}
}

// ClaimRejected records a whole-claim rejection with its reason code.
func (c *Collector) ClaimRejected(code int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rejected++
	c.byCode[code]++
}

// MatcherAnomaly records a matched product without a valid policy.
func (c *Collector) MatcherAnomaly() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.anomalies++
}

// Snapshot copies the current counters.
func (c *Collector) Snapshot() *MetricsSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	byCode := make(map[int]int, len(c.byCode))
	for k, v := range c.byCode {
		byCode[k] = v
	}
	return &MetricsSnapshot{
		ClaimsSubmitted:  c.submitted,
		ClaimsProcessed:  c.processed,
		ClaimsRelative:   c.relative,
		ClaimsRejected:   c.rejected,
		RejectionsByCode: byCode,
		MatcherAnomalies: c.anomalies,
		CollectedAt:      time.Now().UTC(),
	}
}

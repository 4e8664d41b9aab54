package monitoring

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollector_Counters(t *testing.T) {
	c := NewCollector()

	c.ClaimSubmitted()
	c.ClaimSubmitted()
	c.ClaimProcessed(false)
	c.ClaimProcessed(true)
	c.ClaimRejected(8)
	c.ClaimRejected(8)
	c.ClaimRejected(3)
	c.MatcherAnomaly()

	snap := c.Snapshot()
	assert.Equal(t, 2, snap.ClaimsSubmitted)
	assert.Equal(t, 2, snap.ClaimsProcessed)
	assert.Equal(t, 1, snap.ClaimsRelative)
	assert.Equal(t, 3, snap.ClaimsRejected)
	assert.Equal(t, 2, snap.RejectionsByCode[8])
	assert.Equal(t, 1, snap.RejectionsByCode[3])
	assert.Equal(t, 1, snap.MatcherAnomalies)
	assert.False(t, snap.CollectedAt.IsZero())
}

func TestCollector_SnapshotIsACopy(t *testing.T) {
	c := NewCollector()
	c.ClaimRejected(6)

	snap := c.Snapshot()
	snap.RejectionsByCode[6] = 99

	assert.Equal(t, 1, c.Snapshot().RejectionsByCode[6])
}

func TestCollector_ConcurrentUse(t *testing.T) {
	c := NewCollector()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.ClaimSubmitted()
			c.ClaimProcessed(false)
			c.ClaimRejected(2)
		}()
	}
	wg.Wait()

	snap := c.Snapshot()
	assert.Equal(t, 50, snap.ClaimsSubmitted)
	assert.Equal(t, 50, snap.ClaimsProcessed)
	assert.Equal(t, 50, snap.ClaimsRejected)
	assert.Equal(t, 50, snap.RejectionsByCode[2])
}

func TestRejectionRate(t *testing.T) {
	tests := []struct {
		name      string
		processed int
		rejected  int
		want      float64
	}{
		{"no finished claims", 0, 0, 0},
		{"all pass", 10, 0, 0},
		{"half rejected", 5, 5, 0.5},
		{"all rejected", 0, 4, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &MetricsSnapshot{ClaimsProcessed: tt.processed, ClaimsRejected: tt.rejected}
			assert.InDelta(t, tt.want, s.RejectionRate(), 1e-9)
		})
	}
}

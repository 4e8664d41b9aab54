package adjudicate

import (
	"github.com/meridianhealth/claims-cli/internal/config"
	"github.com/meridianhealth/claims-cli/internal/monitoring"
	"github.com/meridianhealth/claims-cli/internal/store"
)

// Engine runs the adjudication pipeline over claims held in the store.
// It is safe to share across sequential claim runs; the configuration it
// carries is immutable.
type Engine struct {
	cfg     *config.Adjudication
	store   store.Store
	metrics *monitoring.Collector
}

// New creates an Engine. The metrics collector may be nil.
func New(cfg *config.Adjudication, st store.Store, metrics *monitoring.Collector) *Engine {
	if metrics == nil {
		metrics = monitoring.NewCollector()
	}
	return &Engine{cfg: cfg, store: st, metrics: metrics}
}

// Metrics exposes the engine's collector for the status server.
func (e *Engine) Metrics() *monitoring.Collector {
	return e.metrics
}

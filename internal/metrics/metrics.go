// Package metrics exposes prometheus collectors for vault workflows.
package metrics

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ammvault"

// Workflows counts vault workflows by kind and outcome. A nil *Workflows is
// valid and records nothing.
type Workflows struct {
	started     *prometheus.CounterVec
	completed   *prometheus.CounterVec
	compensated *prometheus.CounterVec
	reserves    *prometheus.GaugeVec
	registry    *prometheus.Registry
}

// NewWorkflows registers the collectors on a fresh registry.
func NewWorkflows() *Workflows {
	reg := prometheus.NewRegistry()
	w := &Workflows{
		started: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflows_started_total",
			Help:      "Vault workflows started, by kind.",
		}, []string{"kind"}),
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflows_completed_total",
			Help:      "Vault workflows that committed reserves, by kind.",
		}, []string{"kind"}),
		compensated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflows_compensated_total",
			Help:      "Vault workflows that failed and ran compensation, by kind and error kind.",
		}, []string{"kind", "error_kind"}),
		reserves: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_reserve",
			Help:      "Committed pool reserves (approximate).",
		}, []string{"pool", "side"}),
		registry: reg,
	}
	reg.MustRegister(w.started, w.completed, w.compensated, w.reserves)
	return w
}

func (w *Workflows) Started(kind string) {
	if w == nil {
		return
	}
	w.started.WithLabelValues(kind).Inc()
}

func (w *Workflows) Completed(kind string) {
	if w == nil {
		return
	}
	w.completed.WithLabelValues(kind).Inc()
}

func (w *Workflows) Compensated(kind, errorKind string) {
	if w == nil {
		return
	}
	w.compensated.WithLabelValues(kind, errorKind).Inc()
}

// Reserves records the committed reserves of a pool.
func (w *Workflows) Reserves(pool string, reserve0, reserve1 *uint256.Int) {
	if w == nil {
		return
	}
	w.reserves.WithLabelValues(pool, "0").Set(toFloat(reserve0))
	w.reserves.WithLabelValues(pool, "1").Set(toFloat(reserve1))
}

// Registry returns the registry holding the collectors.
func (w *Workflows) Registry() *prometheus.Registry {
	if w == nil {
		return nil
	}
	return w.registry
}

// WriteTextfile writes the current values in the text exposition format.
func (w *Workflows) WriteTextfile(path string) error {
	if w == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, w.registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}

func toFloat(v *uint256.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v.ToBig()).Float64()
	return f
}

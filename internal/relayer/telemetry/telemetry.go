// Package telemetry provides the relayer's logging and metrics ambient
// stack: a bracketed-prefix *log.Logger per component, matching
// pkg/database/client.go's own logging convention, plus the Prometheus
// counters/gauges scraped from the health server.
package telemetry

import (
	"log"
	"os"

	"github.com/prometheus/client_golang/prometheus"
)

// NewLogger returns a *log.Logger prefixed the way the teacher prefixes its
// component loggers (`[Database] `, `[Includer] `, ...).
func NewLogger(component string) *log.Logger {
	return log.New(os.Stderr, "["+component+"] ", log.LstdFlags)
}

// Metrics bundles every Prometheus collector the relayer exposes. All are
// registered against a private registry so tests can construct a fresh
// Metrics without colliding with prometheus.DefaultRegisterer.
type Metrics struct {
	Registry *prometheus.Registry

	BatchesApplied       prometheus.Counter
	VerifySubmissions    *prometheus.CounterVec
	AxelarCheckpointLag  prometheus.Gauge
	SolanaCheckpointLag  prometheus.Gauge
	SentinelEventsPolled prometheus.Counter
	FatalErrors          *prometheus.CounterVec
}

// New constructs and registers every collector.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		BatchesApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gmp_relayer",
			Name:      "batches_applied_total",
			Help:      "Number of Axelar approval batches fully applied to the Gateway.",
		}),
		VerifySubmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gmp_relayer",
			Name:      "verify_signature_submissions_total",
			Help:      "verify_signature submissions, labeled by outcome.",
		}, []string{"outcome"}),
		AxelarCheckpointLag: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gmp_relayer",
			Name:      "axelar_checkpoint_lag_blocks",
			Help:      "Difference between the latest observed Axelar block and the stored checkpoint.",
		}),
		SolanaCheckpointLag: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gmp_relayer",
			Name:      "solana_checkpoint_lag_signatures",
			Help:      "Number of unprocessed signatures since the stored Solana checkpoint.",
		}),
		SentinelEventsPolled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gmp_relayer",
			Name:      "sentinel_events_polled_total",
			Help:      "CallContract-family events observed by the Sentinel.",
		}),
		FatalErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gmp_relayer",
			Name:      "fatal_errors_total",
			Help:      "Fatal errors, labeled by originating component.",
		}, []string{"component"}),
	}

	reg.MustRegister(
		m.BatchesApplied,
		m.VerifySubmissions,
		m.AxelarCheckpointLag,
		m.SolanaCheckpointLag,
		m.SentinelEventsPolled,
		m.FatalErrors,
	)
	return m
}

// Package metrics exposes prometheus collectors for the ledger and the peer transport.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "vitabit"

var (
	mineTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "mine_total",
		Help:      "Count of mining attempts.",
	}, []string{"status"})

	mineDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "mine_duration_seconds",
		Help:      "Duration of assembling and mining a block.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms..~80s
	}, []string{"status"})

	acceptTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "accept_total",
		Help:      "Count of blocks received from peers, by outcome.",
	}, []string{"status"})

	chainHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "chain_height",
		Help:      "Number of blocks in the chain, genesis included.",
	})

	chainDifficulty = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "difficulty",
		Help:      "Leading zero hex digits required of the next block.",
	})

	circulation = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "circulation_base_units",
		Help:      "Total issued rewards in base units.",
	})
)

type Ledger struct{}

func NewLedger() *Ledger {
	return &Ledger{}
}

func (Ledger) ObserveMine(err error, started time.Time) {
	status := statusOf(err)
	mineTotal.WithLabelValues(status).Inc()
	mineDuration.WithLabelValues(status).Observe(time.Since(started).Seconds())
}

func (Ledger) ObserveAccept(err error) {
	acceptTotal.WithLabelValues(statusOf(err)).Inc()
}

func (Ledger) ObserveChain(height uint64, difficulty int, circulating uint64) {
	chainHeight.Set(float64(height))
	chainDifficulty.Set(float64(difficulty))
	circulation.Set(float64(circulating))
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

package glee

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts exploration progress. A nil *Metrics records nothing.
type Metrics struct {
	Programs     prometheus.Counter
	Forks        prometheus.Counter
	Instructions prometheus.Counter

	// Labels: status (exited, failed, pruned)
	Paths *prometheus.CounterVec
}

// NewMetrics registers exploration metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Programs: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "glee",
			Name:      "programs_total",
			Help:      "Total programs taken from the pool",
		}),
		Forks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "glee",
			Name:      "forks_total",
			Help:      "Total forks with both branches feasible",
		}),
		Instructions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "glee",
			Name:      "instructions_total",
			Help:      "Total instructions executed",
		}),
		Paths: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "glee",
			Name:      "paths_total",
			Help:      "Total completed paths by status",
		}, []string{"status"}),
	}
}

// RegisterSpaceStats exposes solver query counters of stats with reg.
func RegisterSpaceStats(reg prometheus.Registerer, stats *SpaceStats) {
	factory := promauto.With(reg)
	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "glee",
		Subsystem: "solver",
		Name:      "queries_total",
		Help:      "Total satisfiability queries",
	}, func() float64 { return float64(stats.QueryN.Load()) })
	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "glee",
		Subsystem: "solver",
		Name:      "cache_hits_total",
		Help:      "Total queries answered from the cache",
	}, func() float64 { return float64(stats.CacheHitN.Load()) })
}

func (m *Metrics) program() {
	if m != nil {
		m.Programs.Inc()
	}
}

func (m *Metrics) fork() {
	if m != nil {
		m.Forks.Inc()
	}
}

func (m *Metrics) instruction() {
	if m != nil {
		m.Instructions.Inc()
	}
}

func (m *Metrics) path(status ExecutionStatus) {
	if m != nil {
		m.Paths.WithLabelValues(string(status)).Inc()
	}
}

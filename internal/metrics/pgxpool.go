package metrics

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// RegisterPgxPoolMetrics exposes the core database pool statistics.
func RegisterPgxPoolMetrics(pool *pgxpool.Pool) {
	gauge := func(name, help string, value func(*pgxpool.Stat) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "safehouse",
			Subsystem: "db_pool",
			Name:      name,
			Help:      help,
		}, func() float64 {
			return value(pool.Stat())
		})
	}

	prometheus.MustRegister(
		gauge("acquired_conns", "Connections currently checked out.", func(s *pgxpool.Stat) float64 {
			return float64(s.AcquiredConns())
		}),
		gauge("idle_conns", "Idle connections in the pool.", func(s *pgxpool.Stat) float64 {
			return float64(s.IdleConns())
		}),
		gauge("total_conns", "Total connections in the pool.", func(s *pgxpool.Stat) float64 {
			return float64(s.TotalConns())
		}),
		gauge("max_conns", "Configured pool size.", func(s *pgxpool.Stat) float64 {
			return float64(s.MaxConns())
		}),
		gauge("empty_acquire_total", "Acquires that had to wait for a connection.", func(s *pgxpool.Stat) float64 {
			return float64(s.EmptyAcquireCount())
		}),
		gauge("acquire_wait_seconds_total", "Time spent waiting for a connection.", func(s *pgxpool.Stat) float64 {
			return s.AcquireDuration().Seconds()
		}),
	)
}

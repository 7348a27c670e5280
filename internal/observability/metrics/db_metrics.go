package metrics

import (
	"database/sql"
	"log"

	"github.com/prometheus/client_golang/prometheus"
)

func registerDBMetrics(db *sql.DB, logger *log.Logger) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "db_open_connections",
			Help: "Open connections in the database pool",
		},
		func() float64 {
			return float64(db.Stats().OpenConnections)
		},
	))

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "db_in_use_connections",
			Help: "Database pool connections currently in use",
		},
		func() float64 {
			return float64(db.Stats().InUse)
		},
	))

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "telemetry_row_count",
			Help: "Approximate telemetry rows on disk",
		},
		func() float64 {
			return queryCount(db, logger,
				"SELECT COALESCE(reltuples, 0)::BIGINT FROM pg_class WHERE relname = 'telemetry'")
		},
	))
}

func queryCount(db *sql.DB, logger *log.Logger, query string) float64 {
	if db == nil {
		return 0
	}
	var count int64
	if err := db.QueryRow(query).Scan(&count); err != nil {
		if logger != nil {
			logger.Printf("metrics query failed: %v", err)
		}
		return 0
	}
	if count < 0 {
		return 0
	}
	return float64(count)
}

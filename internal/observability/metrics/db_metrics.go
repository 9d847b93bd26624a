package metrics

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

func registerDBMetrics(db *sql.DB, logger zerolog.Logger) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "event_outbox_pending",
			Help: "Pending outbox records",
		},
		func() float64 {
			return queryCount(db, logger, "SELECT COUNT(*) FROM event_outbox WHERE status = 'pending'")
		},
	))

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "cash_registers_open",
			Help: "Cash registers currently open (expected 0 or 1)",
		},
		func() float64 {
			return queryCount(db, logger, "SELECT COUNT(*) FROM cash_registers WHERE status = 'open'")
		},
	))

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "db_open_connections",
			Help: "Open connections in the database pool",
		},
		func() float64 {
			return float64(db.Stats().OpenConnections)
		},
	))
}

func queryCount(db *sql.DB, logger zerolog.Logger, query string) float64 {
	if db == nil {
		return 0
	}
	var count int64
	if err := db.QueryRow(query).Scan(&count); err != nil {
		logger.Warn().Err(err).Msg("metrics query failed")
		return 0
	}
	if count < 0 {
		return 0
	}
	return float64(count)
}

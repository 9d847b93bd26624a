package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

const (
	metricPrefix = "backoffice_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	referenceIssuedTotal   *prometheus.CounterVec
	referenceIssueLatency  *prometheus.HistogramVec
	referenceRetriesTotal  *prometheus.CounterVec
	referenceFallbackTotal *prometheus.CounterVec

	registerOpsTotal    *prometheus.CounterVec
	registerOpsLatency  *prometheus.HistogramVec
	transactionsTotal   *prometheus.CounterVec
	registerExportTotal *prometheus.CounterVec

	outboxDispatchTotal   *prometheus.CounterVec
	outboxDispatchLatency prometheus.Histogram
	outboxEventsTotal     *prometheus.CounterVec
)

// Init registers service metrics and DB-backed gauges.
func Init(db *sql.DB, logger zerolog.Logger) {
	registerOnce.Do(func() {
		referenceIssuedTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "reference_issued_total",
				Help: "Total reference issuance attempts by kind and result",
			},
			[]string{"kind", "result"},
		)
		referenceIssueLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "reference_issue_latency_seconds",
				Help:    "Reference issuance latency in seconds, retries included",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		)
		referenceRetriesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "reference_retries_total",
				Help: "Transient failures retried on the reference sequence",
			},
			[]string{"kind"},
		)
		referenceFallbackTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "reference_fallback_total",
				Help: "Malformed last references that restarted a yearly sequence",
			},
			[]string{"kind"},
		)

		registerOpsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "register_ops_total",
				Help: "Cash register open/close operations by result",
			},
			[]string{"op", "result"},
		)
		registerOpsLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "register_ops_latency_seconds",
				Help:    "Cash register operation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		)
		transactionsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "cash_transactions_total",
				Help: "Recorded cash transactions by direction",
			},
			[]string{"direction"},
		)
		registerExportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "register_export_total",
				Help: "Register statement exports by format and result",
			},
			[]string{"format", "result"},
		)

		outboxDispatchTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "outbox_dispatch_total",
				Help: "Outbox dispatch runs by result",
			},
			[]string{"result"},
		)
		outboxDispatchLatency = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "outbox_dispatch_latency_seconds",
				Help:    "Outbox dispatch run latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
		)
		outboxEventsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "outbox_events_total",
				Help: "Outbox events handled by outcome",
			},
			[]string{"outcome"},
		)

		prometheus.MustRegister(
			referenceIssuedTotal,
			referenceIssueLatency,
			referenceRetriesTotal,
			referenceFallbackTotal,
			registerOpsTotal,
			registerOpsLatency,
			transactionsTotal,
			registerExportTotal,
			outboxDispatchTotal,
			outboxDispatchLatency,
			outboxEventsTotal,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveReferenceIssue records an issuance outcome and its latency.
func ObserveReferenceIssue(kind, result string, duration time.Duration) {
	if kind == "" {
		kind = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if referenceIssuedTotal != nil {
		referenceIssuedTotal.WithLabelValues(kind, result).Inc()
	}
	if referenceIssueLatency != nil {
		referenceIssueLatency.WithLabelValues(kind).Observe(duration.Seconds())
	}
}

// IncReferenceRetry counts one retried transient failure.
func IncReferenceRetry(kind string) {
	if referenceRetriesTotal != nil {
		referenceRetriesTotal.WithLabelValues(kind).Inc()
	}
}

// IncReferenceFallback counts one malformed-history restart.
func IncReferenceFallback(kind string) {
	if referenceFallbackTotal != nil {
		referenceFallbackTotal.WithLabelValues(kind).Inc()
	}
}

// ObserveRegisterOp records an open/close outcome.
func ObserveRegisterOp(op, result string, duration time.Duration) {
	if op == "" {
		op = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if registerOpsTotal != nil {
		registerOpsTotal.WithLabelValues(op, result).Inc()
	}
	if registerOpsLatency != nil {
		registerOpsLatency.WithLabelValues(op).Observe(duration.Seconds())
	}
}

// IncTransaction counts a recorded ledger movement.
func IncTransaction(direction string) {
	if transactionsTotal != nil {
		transactionsTotal.WithLabelValues(direction).Inc()
	}
}

// IncRegisterExport counts a statement export.
func IncRegisterExport(format, result string) {
	if format == "" {
		format = "unknown"
	}
	if registerExportTotal != nil {
		registerExportTotal.WithLabelValues(format, result).Inc()
	}
}

// ObserveOutboxDispatch records one dispatch run.
func ObserveOutboxDispatch(result string, duration time.Duration, sent, failed, dlq int) {
	if outboxDispatchTotal != nil {
		outboxDispatchTotal.WithLabelValues(result).Inc()
	}
	if outboxDispatchLatency != nil {
		outboxDispatchLatency.Observe(duration.Seconds())
	}
	if outboxEventsTotal == nil {
		return
	}
	if sent > 0 {
		outboxEventsTotal.WithLabelValues("sent").Add(float64(sent))
	}
	if failed > 0 {
		outboxEventsTotal.WithLabelValues("failed").Add(float64(failed))
	}
	if dlq > 0 {
		outboxEventsTotal.WithLabelValues("dlq").Add(float64(dlq))
	}
}

// ResultOf maps an error to a result label.
func ResultOf(err error) string {
	if err != nil {
		return resultError
	}
	return resultSuccess
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)

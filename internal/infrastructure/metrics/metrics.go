package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Posting metrics
	Postings        *prometheus.CounterVec
	PostingDuration *prometheus.HistogramVec
	PostingAmount   *prometheus.HistogramVec
	PostingErrors   *prometheus.CounterVec
	PostingReplays  prometheus.Counter
	PostingLegs     prometheus.Histogram

	// Account metrics
	AccountsCreated   prometheus.Counter
	AccountOperations *prometheus.CounterVec
	BucketOperations  *prometheus.CounterVec

	// API metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Outbox metrics
	OutboxPublished prometheus.Counter
	OutboxFailures  *prometheus.CounterVec
	BreakerState    *prometheus.GaugeVec

	// Redis metrics
	RedisErrors  *prometheus.CounterVec
	ReportCache  *prometheus.CounterVec
	ReconcileRun *prometheus.CounterVec

	// Audit metrics
	AuditLogsCreated *prometheus.CounterVec
}

// New creates all metrics and registers them with reg.
// A nil reg uses the default Prometheus registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		Postings: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swiftpay_ledger_postings_total",
				Help: "Total postings by kind and result",
			},
			[]string{"kind", "result"},
		),
		PostingDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "swiftpay_ledger_posting_duration_seconds",
				Help:    "Duration of posting units of work",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		PostingAmount: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "swiftpay_ledger_posting_amount",
				Help:    "Total debit amount per posting",
				Buckets: []float64{0.0001, 0.01, 1, 10, 100, 1000, 10000, 100000, 1000000},
			},
			[]string{"currency"},
		),
		PostingErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swiftpay_ledger_posting_errors_total",
				Help: "Total posting errors by error kind",
			},
			[]string{"error_type"},
		),
		PostingReplays: f.NewCounter(prometheus.CounterOpts{
			Name: "swiftpay_ledger_posting_replays_total",
			Help: "Postings answered from an earlier identical request",
		}),
		PostingLegs: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "swiftpay_ledger_posting_legs",
			Help:    "Number of legs per committed journal entry",
			Buckets: []float64{2, 3, 4, 6, 8, 16, 32},
		}),

		AccountsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "swiftpay_ledger_accounts_created_total",
			Help: "Total number of accounts created",
		}),
		AccountOperations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swiftpay_ledger_account_operations_total",
				Help: "Total account lifecycle operations by type",
			},
			[]string{"operation"},
		),
		BucketOperations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swiftpay_ledger_bucket_operations_total",
				Help: "Total bucket moves by operation and result",
			},
			[]string{"operation", "result"},
		),

		HTTPRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swiftpay_ledger_http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "swiftpay_ledger_http_duration_seconds",
				Help:    "HTTP request duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		OutboxPublished: f.NewCounter(prometheus.CounterOpts{
			Name: "swiftpay_ledger_outbox_published_total",
			Help: "Outbox events delivered to the event stream",
		}),
		OutboxFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swiftpay_ledger_outbox_failures_total",
				Help: "Outbox delivery failures by reason",
			},
			[]string{"reason"},
		),
		BreakerState: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "swiftpay_ledger_circuit_breaker_state",
				Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
			},
			[]string{"name"},
		),

		RedisErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swiftpay_ledger_redis_errors_total",
				Help: "Total Redis errors",
			},
			[]string{"operation"},
		),
		ReportCache: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swiftpay_ledger_report_cache_total",
				Help: "Trial balance cache lookups by result",
			},
			[]string{"result"},
		),
		ReconcileRun: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swiftpay_ledger_reconciliations_total",
				Help: "Reconciliation runs by outcome",
			},
			[]string{"outcome"},
		),

		AuditLogsCreated: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swiftpay_ledger_audit_logs_total",
				Help: "Total audit logs created",
			},
			[]string{"action", "status"},
		),
	}
}

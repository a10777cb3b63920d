package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "weather_hedge"

// Metrics holds the Prometheus counters, histograms, and gauges for the
// settlement engine and the fulfillment pipeline.
type Metrics struct {
	// Fulfillment pipeline metrics.
	FulfillmentsConsumed    prometheus.Counter
	EventsProduced          prometheus.Counter
	FulfillmentErrors       *prometheus.CounterVec // labels: kind={validation,correlation,decoding,resource,internal}
	PipelineRunning         prometheus.Gauge
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram

	// Engine metrics.
	PoliciesRegistered *prometheus.CounterVec // labels: condition={FROST,DROUGHT}
	OperationErrors    *prometheus.CounterVec // labels: operation={register,request,fulfill}, kind
	Payouts            prometheus.Counter
	PayoutAmount       prometheus.Counter
	FundBalance        prometheus.Gauge
	PendingRequests    prometheus.Gauge

	// Oracle client metrics.
	OracleDispatches   *prometheus.CounterVec // labels: outcome={success,error}
	OracleAPIDuration  prometheus.Histogram
	FundingAPIDuration prometheus.Histogram
}

func newMetrics() *Metrics {
	return &Metrics{
		FulfillmentsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fulfillments_consumed_total",
			Help:      "Total fulfillment messages read from the fulfillment topic.",
		}),
		EventsProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_produced_total",
			Help:      "Total domain events written to the event sinks.",
		}),
		FulfillmentErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fulfillment_errors_total",
			Help:      "Fulfillment messages that failed, by error kind.",
		}, []string{"kind"}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the fulfillment pipeline is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of fulfillment messages per batch extracted from Kafka.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of a complete extract-fulfill-load cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		PoliciesRegistered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "policies_registered_total",
			Help:      "Policies registered, by weather condition.",
		}, []string{"condition"}),
		OperationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_errors_total",
			Help:      "Rejected engine operations by operation and error kind.",
		}, []string{"operation", "kind"}),
		Payouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payouts_total",
			Help:      "Number of non-zero policy payouts.",
		}),
		PayoutAmount: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payout_amount_total",
			Help:      "Sum of all payouts in fund currency units.",
		}),
		FundBalance: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fund_balance",
			Help:      "Current insurance fund balance.",
		}),
		PendingRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_requests",
			Help:      "Oracle requests issued but not yet fulfilled.",
		}),
		OracleDispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oracle_dispatches_total",
			Help:      "Oracle job submissions by outcome.",
		}, []string{"outcome"}),
		OracleAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "oracle_api_duration_seconds",
			Help:      "Oracle node API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		FundingAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "funding_api_duration_seconds",
			Help:      "Funding gateway transfer duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.FulfillmentsConsumed,
		m.EventsProduced,
		m.FulfillmentErrors,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
		m.PoliciesRegistered,
		m.OperationErrors,
		m.Payouts,
		m.PayoutAmount,
		m.FundBalance,
		m.PendingRequests,
		m.OracleDispatches,
		m.OracleAPIDuration,
		m.FundingAPIDuration,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

// Package metrics registers the Prometheus gauges/counters/summaries for
// submitting, dispatching, copying, probing and rendering compilation jobs.
// Only the HTTP API builds them, and it increments only Version (once, at
// startup); no component updates the other metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ClientMetrics is the retry/failure/duration triple every outbound
// collaborator (warehouse DB, broker, transcoder) reports.
type ClientMetrics struct {
	RetryCount      *prometheus.GaugeVec
	FailureCount    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// Metrics is the full set of metrics this service exposes on /metrics.
type Metrics struct {
	Version *prometheus.CounterVec

	JobsInFlight         prometheus.Gauge
	HTTPRequestsInFlight prometheus.Gauge

	JobsSubmitted   *prometheus.CounterVec
	JobsCompleted   *prometheus.CounterVec
	DispatchFailure prometheus.Counter

	StaleJobsRedispatched prometheus.Counter
	StaleScanErrors       prometheus.Counter

	ProbeDurationSec prometheus.Summary
	CopyDurationSec  *prometheus.SummaryVec
	JobDurationSec   *prometheus.SummaryVec

	WarehouseClient ClientMetrics
	BrokerClient    ClientMetrics
}

var buckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// NewMetrics registers every metric with the default Prometheus registry
// and returns the handle used to update them.
func NewMetrics() *Metrics {
	m := &Metrics{
		Version: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "version",
			Help: "Current version that's running. Incremented once on app startup.",
		}, []string{"app", "version"}),

		JobsInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "jobs_in_flight",
			Help: "Count of jobs currently queued or processing",
		}),
		HTTPRequestsInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Count of HTTP requests currently being served",
		}),

		JobsSubmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "jobs_submitted_total",
			Help: "Number of jobs submitted, broken down by the queue they were classified into",
		}, []string{"queue"}),
		JobsCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "jobs_completed_total",
			Help: "Number of jobs that reached a terminal state, broken down by outcome",
		}, []string{"status"}),
		DispatchFailure: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_failure_total",
			Help: "Number of jobs that failed to dispatch onto the broker after exhausting retries",
		}),

		StaleJobsRedispatched: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stale_jobs_redispatched_total",
			Help: "Number of jobs the stale-job detector found abandoned by the broker and re-queued",
		}),
		StaleScanErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stale_scan_errors_total",
			Help: "Number of stale-job detector scan cycles that failed to complete",
		}),

		ProbeDurationSec: promauto.NewSummary(prometheus.SummaryOpts{
			Name: "probe_duration_seconds",
			Help: "Time taken to ffprobe one media item",
		}),
		CopyDurationSec: promauto.NewSummaryVec(prometheus.SummaryOpts{
			Name: "copy_duration_seconds",
			Help: "Time taken to copy one item onto local scratch, broken down by fallback tier used",
		}, []string{"tier"}),
		JobDurationSec: promauto.NewSummaryVec(prometheus.SummaryOpts{
			Name: "job_duration_seconds",
			Help: "Wall-clock time from dispatch to terminal state, broken down by queue",
		}, []string{"queue"}),

		WarehouseClient: ClientMetrics{
			RetryCount: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Name: "warehouse_client_retry_count",
				Help: "Number of retried warehouse queries in flight",
			}, []string{"operation"}),
			FailureCount: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "warehouse_client_failure_count",
				Help: "Total number of failed warehouse queries",
			}, []string{"operation"}),
			RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "warehouse_client_request_duration",
				Help:    "Time taken to run a warehouse query",
				Buckets: buckets,
			}, []string{"operation"}),
		},

		BrokerClient: ClientMetrics{
			RetryCount: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Name: "broker_client_retry_count",
				Help: "Number of retried broker calls in flight",
			}, []string{"operation"}),
			FailureCount: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "broker_client_failure_count",
				Help: "Total number of failed broker calls",
			}, []string{"operation"}),
			RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "broker_client_request_duration",
				Help:    "Time taken to complete a broker call",
				Buckets: buckets,
			}, []string{"operation"}),
		},
	}

	return m
}

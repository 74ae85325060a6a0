package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "api_http_requests_total", Help: "HTTP requests"},
		[]string{"method", "path", "status"},
	)
	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
	PublishedTriggersTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "trigger_jobs_published_total", Help: "Bot trigger jobs published to queue"},
	)

	DispatchRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dispatch_runs_total", Help: "Dispatch runs by outcome"},
		[]string{"outcome"},
	)
	DispatchSendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dispatch_sends_total", Help: "Per-recipient sends"},
		[]string{"result", "kind"},
	)
	DispatchSendDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dispatch_send_duration_seconds",
			Help:    "Time spent in one send call",
			Buckets: prometheus.DefBuckets,
		},
	)
	ResolveErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "resolve_errors_total", Help: "Target resolutions refused"},
		[]string{"reason"},
	)

	WorkerJobsConsumed = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "worker_trigger_jobs_consumed_total", Help: "Trigger jobs consumed"},
	)
	WorkerJobRetries = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "worker_trigger_job_retries_total", Help: "Retries performed"},
	)
	WorkerProcessDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "worker_trigger_job_process_duration_seconds",
			Help:    "Time spent processing a trigger job",
			Buckets: prometheus.DefBuckets,
		},
	)

	SchedulerEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "scheduler_entries", Help: "Bots registered with the scheduler"},
	)
	SchedulerFiresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "scheduler_fires_total", Help: "Scheduled bot firings"},
	)
)

func init() {
	prometheus.MustRegister(
		APIRequestsTotal, APIRequestDuration, PublishedTriggersTotal,
		DispatchRunsTotal, DispatchSendsTotal, DispatchSendDuration, ResolveErrorsTotal,
		WorkerJobsConsumed, WorkerJobRetries, WorkerProcessDuration,
		SchedulerEntries, SchedulerFiresTotal,
	)
}

func Handler() http.Handler { return promhttp.Handler() }

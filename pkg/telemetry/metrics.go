package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tokenlens"

var Metrics = struct {
	RPCRequestsTotal *prometheus.CounterVec
	RPCDuration      *prometheus.HistogramVec
	TasksTotal       *prometheus.CounterVec
	SkillExecutions  *prometheus.CounterVec
	SkillDuration    *prometheus.HistogramVec
	MarketRequests   *prometheus.CounterVec
	MarketLatency    prometheus.Histogram
	LLMRequestsTotal *prometheus.CounterVec
	LLMLatency       *prometheus.HistogramVec
	Notifications    *prometheus.CounterVec
	NotifyQueueDepth prometheus.Gauge
	ErrorsTotal      *prometheus.CounterVec
}{
	RPCRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rpc_requests_total",
		Help:      "Total JSON-RPC requests by method and outcome.",
	}, []string{"method", "outcome"}),

	RPCDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "rpc_duration_seconds",
		Help:      "JSON-RPC request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"}),

	TasksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_total",
		Help:      "Tasks reaching a terminal state, by state.",
	}, []string{"state"}),

	SkillExecutions: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "skill_executions_total",
		Help:      "Total skill executions by skill and status.",
	}, []string{"skill", "status"}),

	SkillDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "skill_duration_seconds",
		Help:      "Skill execution duration in seconds.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"skill"}),

	MarketRequests: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "market_requests_total",
		Help:      "Market data lookups by status.",
	}, []string{"status"}),

	MarketLatency: promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "market_latency_seconds",
		Help:      "Market data lookup latency in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}),

	LLMRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "llm_requests_total",
		Help:      "Total LLM API requests by provider, model and status.",
	}, []string{"provider", "model", "status"}),

	LLMLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "llm_latency_seconds",
		Help:      "LLM API call latency in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"provider", "model"}),

	Notifications: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Outbound notifications by status (sent, failed, dropped, filtered).",
	}, []string{"status"}),

	NotifyQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "notify_queue_depth",
		Help:      "Completed tasks waiting to be published.",
	}),

	ErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "errors_total",
		Help:      "Total errors by component.",
	}, []string{"component"}),
}

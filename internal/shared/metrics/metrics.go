package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry = prometheus.NewRegistry()
	factory  = promauto.With(registry)

	generationStarted = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "generation_started_total",
		Help: "Total generations started",
	}, []string{"engine"})
	generationCompleted = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "generation_completed_total",
		Help: "Total generations completed",
	}, []string{"engine"})
	generationFailed = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "generation_failed_total",
		Help: "Total generations failed",
	}, []string{"engine", "code"})
	generationDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "generation_duration_ms",
		Help:    "Generation duration in milliseconds",
		Buckets: []float64{500, 1000, 2500, 5000, 10000, 30000, 60000, 180000, 600000},
	}, []string{"engine"})
	proxyRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "proxy_requests_total",
		Help: "Vendor proxy requests by route and upstream status",
	}, []string{"route", "status"})
	creditsConsumed = factory.NewCounter(prometheus.CounterOpts{
		Name: "credits_consumed_total",
		Help: "Credits consumed by completed generations",
	})
	pollAttempts = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "task_poll_attempts_total",
		Help: "Vendor task status checks",
	}, []string{"engine"})
	workerJobs = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_jobs_total",
		Help: "Queue jobs handled by the worker by outcome",
	}, []string{"outcome"})
)

func init() {
	registry.MustRegister(collectors.NewGoCollector())
}

// IncGenerationStarted increments the started counter.
func IncGenerationStarted(engine string) {
	generationStarted.WithLabelValues(engine).Inc()
}

// IncGenerationCompleted increments the completed counter.
func IncGenerationCompleted(engine string) {
	generationCompleted.WithLabelValues(engine).Inc()
}

// IncGenerationFailed increments the failed counter.
func IncGenerationFailed(engine, code string) {
	generationFailed.WithLabelValues(engine, code).Inc()
}

// ObserveGenerationDurationMs records a generation duration in milliseconds.
func ObserveGenerationDurationMs(engine string, value float64) {
	if value < 0 {
		value = 0
	}
	generationDuration.WithLabelValues(engine).Observe(value)
}

// IncProxyRequest counts a proxied vendor call.
func IncProxyRequest(route string, status int) {
	proxyRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

// AddCreditsConsumed records consumed credits.
func AddCreditsConsumed(n int) {
	if n <= 0 {
		return
	}
	creditsConsumed.Add(float64(n))
}

// IncPollAttempt counts one task status check.
func IncPollAttempt(engine string) {
	pollAttempts.WithLabelValues(engine).Inc()
}

// Worker job outcomes.
const (
	JobReceived      = "received"
	JobCompleted     = "completed"
	JobFailed        = "failed"
	JobUnrecoverable = "deleted_unrecoverable"
)

// IncWorkerJob counts a worker job outcome.
func IncWorkerJob(outcome string) {
	workerJobs.WithLabelValues(outcome).Inc()
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// Gatherer exposes the registry for tests and embedding.
func Gatherer() prometheus.Gatherer {
	return registry
}

// NowMillis returns current time in milliseconds.
func NowMillis() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Millisecond)
}


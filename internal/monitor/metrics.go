package monitor

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"shopchat/pkg/breaker"
)

// Delivery outcomes recorded per consumed event
const (
	OutcomeAck     = "ack"
	OutcomeDrop    = "drop"    // acked without processing: undecodable, invalid or unknown
	OutcomeNack    = "nack"    // rejected without requeue after a handler failure
	OutcomeRequeue = "requeue" // rejected with requeue, another instance holds the message
)

// MetricsCollector pipeline and ops metrics on a private registry
type MetricsCollector struct {
	registry *prometheus.Registry

	// pipeline
	eventsTotal      *prometheus.CounterVec
	pipelineDuration *prometheus.HistogramVec
	stageDuration    *prometheus.HistogramVec
	branchTotal      *prometheus.CounterVec
	publishedTotal   *prometheus.CounterVec
	deadLetterTotal  prometheus.Counter
	reconnectTotal   *prometheus.CounterVec

	// llm
	llmRequestTotal    *prometheus.CounterVec
	llmRequestDuration *prometheus.HistogramVec
	llmFallbackTotal   prometheus.Counter
	breakerState       *prometheus.GaugeVec

	// http
	httpRequestTotal    *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// runtime
	memoryUsage    prometheus.Gauge
	goroutineCount prometheus.Gauge
	gcDuration     prometheus.Gauge
}

// NewMetricsCollector creates a collector whose metric names carry namespace
func NewMetricsCollector(namespace string) *MetricsCollector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	mc := &MetricsCollector{registry: reg}

	mc.eventsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_consumed_total",
			Help:      "Total number of consumed bus events by queue, event type and outcome",
		},
		[]string{"queue", "event_type", "outcome"},
	)

	mc.pipelineDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_duration_seconds",
			Help:      "Duration of new_message handling from receipt to settlement",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"outcome"},
	)

	mc.stageDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Duration of each new_message pipeline stage",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	mc.branchTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "response_branch_total",
			Help:      "Total number of drafted replies by branch",
		},
		[]string{"branch", "from_memory"},
	)

	mc.publishedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "responses_published_total",
			Help:      "Total number of ai_response_ready events published",
		},
		[]string{"source"},
	)

	mc.deadLetterTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dead_letter_total",
			Help:      "Total number of failed deliveries copied to the dead-letter exchange",
		},
	)

	mc.reconnectTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_reconnect_total",
			Help:      "Total number of consumer resubscribe attempts",
		},
		[]string{"queue"},
	)

	mc.llmRequestTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_request_total",
			Help:      "Total number of language model calls by provider and status",
		},
		[]string{"provider", "status"},
	)

	mc.llmRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Duration of language model calls",
			Buckets:   []float64{.1, .25, .5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"provider"},
	)

	mc.llmFallbackTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_fallback_total",
			Help:      "Total number of replies drafted by the secondary provider",
		},
	)

	mc.breakerState = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "llm_breaker_state",
			Help:      "Circuit breaker state per provider (0 closed, 1 open, 2 half-open)",
		},
		[]string{"provider"},
	)

	mc.httpRequestTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_request_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	mc.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	mc.memoryUsage = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memory_usage_bytes",
			Help:      "Allocated heap bytes",
		},
	)

	mc.goroutineCount = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "goroutine_count",
			Help:      "Number of goroutines",
		},
	)

	mc.gcDuration = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gc_pause_seconds_total",
			Help:      "Cumulative GC pause duration",
		},
	)

	return mc
}

// RecordEvent records the settlement of one consumed event
func (mc *MetricsCollector) RecordEvent(queue, eventType, outcome string) {
	mc.eventsTotal.WithLabelValues(queue, eventType, outcome).Inc()
}

// RecordPipeline records the end-to-end duration of a new_message delivery
func (mc *MetricsCollector) RecordPipeline(outcome string, duration time.Duration) {
	mc.pipelineDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordStage records the duration of one pipeline stage
func (mc *MetricsCollector) RecordStage(stage string, duration time.Duration) {
	mc.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordBranch records which reply branch was drafted
func (mc *MetricsCollector) RecordBranch(branch string, fromMemory bool) {
	label := "false"
	if fromMemory {
		label = "true"
	}
	mc.branchTotal.WithLabelValues(branch, label).Inc()
}

// RecordPublished records an outbound reply. source is generated, redelivery or resync.
func (mc *MetricsCollector) RecordPublished(source string) {
	mc.publishedTotal.WithLabelValues(source).Inc()
}

// RecordDeadLetter records a copy to the dead-letter exchange
func (mc *MetricsCollector) RecordDeadLetter() {
	mc.deadLetterTotal.Inc()
}

// RecordReconnect records a consumer resubscribe on queue
func (mc *MetricsCollector) RecordReconnect(queue string) {
	mc.reconnectTotal.WithLabelValues(queue).Inc()
}

// ObserveLLM records one provider call. Its signature matches llm.Observer.
func (mc *MetricsCollector) ObserveLLM(provider string, ok bool, elapsed time.Duration) {
	status := "success"
	if !ok {
		status = "unavailable"
	}
	mc.llmRequestTotal.WithLabelValues(provider, status).Inc()
	mc.llmRequestDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// RecordFallback records a reply drafted by the secondary provider
func (mc *MetricsCollector) RecordFallback() {
	mc.llmFallbackTotal.Inc()
}

// SetBreakerState records the current state of a provider breaker. Its
// signature matches breaker.Config.OnStateChange.
func (mc *MetricsCollector) SetBreakerState(name string, from, to breaker.State) {
	mc.breakerState.WithLabelValues(name).Set(float64(to))
}

// RecordHTTPRequest records an HTTP request
func (mc *MetricsCollector) RecordHTTPRequest(method, path, status string) {
	mc.httpRequestTotal.WithLabelValues(method, path, status).Inc()
}

// RecordHTTPDuration records an HTTP request duration
func (mc *MetricsCollector) RecordHTTPDuration(method, path string, duration time.Duration) {
	mc.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// UpdateSystemMetrics samples runtime memory and goroutine counts
func (mc *MetricsCollector) UpdateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	mc.memoryUsage.Set(float64(m.Alloc))
	mc.goroutineCount.Set(float64(runtime.NumGoroutine()))
	mc.gcDuration.Set(float64(m.PauseTotalNs) / 1e9)
}

// StartSystemMetricsCollection samples runtime metrics every interval until ctx is done
func (mc *MetricsCollector) StartSystemMetricsCollection(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	mc.UpdateSystemMetrics()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mc.UpdateSystemMetrics()
		}
	}
}

// Registry returns the collector's registry
func (mc *MetricsCollector) Registry() *prometheus.Registry {
	return mc.registry
}

// Handler serves the registry in the Prometheus exposition format
func (mc *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(mc.registry, promhttp.HandlerOpts{Registry: mc.registry})
}

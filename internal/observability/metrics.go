// Package observability wires Prometheus metrics and OpenTelemetry
// tracing for the runtime. Metrics families are registered once and
// recorded from the executor, the hook pipeline and the kernel.
package observability

import (
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	toolInvocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmspell_tool_invocations_total",
			Help: "Total number of tool invocations",
		},
		[]string{"tool", "status"},
	)

	toolDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llmspell_tool_duration_seconds",
			Help:    "Tool invocation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tool"},
	)

	hookExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmspell_hook_executions_total",
			Help: "Total number of hook executions",
		},
		[]string{"phase", "result"},
	)

	hookDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llmspell_hook_duration_seconds",
			Help:    "Hook execution duration in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		},
		[]string{"phase"},
	)

	kernelMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmspell_kernel_messages_total",
			Help: "Total number of kernel messages by channel and type",
		},
		[]string{"channel", "type"},
	)

	eventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmspell_events_published_total",
			Help: "Total number of events published on the bus",
		},
		[]string{"type"},
	)

	vectorInsertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmspell_vector_inserts_total",
			Help: "Total number of vector entries inserted",
		},
		[]string{"tenant"},
	)

	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "llmspell_sessions_active",
			Help: "Number of active sessions",
		},
	)

	clientsConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "llmspell_clients_connected",
			Help: "Number of connected kernel clients",
		},
	)

	memoryUsage = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "llmspell_memory_usage_bytes",
			Help: "Heap memory in use",
		},
	)

	goroutines = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "llmspell_goroutines",
			Help: "Number of goroutines",
		},
	)

	initOnce sync.Once
)

// InitMetrics registers every metric family exactly once.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			toolInvocationsTotal,
			toolDuration,
			hookExecutionsTotal,
			hookDuration,
			kernelMessagesTotal,
			eventsPublishedTotal,
			vectorInsertsTotal,
			sessionsActive,
			clientsConnected,
			memoryUsage,
			goroutines,
		)
	})
}

// MetricsHandler serves the Prometheus scrape endpoint.
func MetricsHandler() http.Handler { return promhttp.Handler() }

// RecordToolInvocation records one tool call.
func RecordToolInvocation(tool, status string, duration time.Duration) {
	toolInvocationsTotal.WithLabelValues(tool, status).Inc()
	toolDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordHookExecution records one hook run.
func RecordHookExecution(phase, result string, duration time.Duration) {
	hookExecutionsTotal.WithLabelValues(phase, result).Inc()
	hookDuration.WithLabelValues(phase).Observe(duration.Seconds())
}

// RecordKernelMessage counts one dispatched kernel message.
func RecordKernelMessage(channel, msgType string) {
	kernelMessagesTotal.WithLabelValues(channel, msgType).Inc()
}

// RecordEventPublished counts one bus publication.
func RecordEventPublished(eventType string) {
	eventsPublishedTotal.WithLabelValues(eventType).Inc()
}

// RecordVectorInserts counts inserted vector entries for a tenant.
func RecordVectorInserts(tenant string, count int) {
	vectorInsertsTotal.WithLabelValues(tenant).Add(float64(count))
}

// SetSessionsActive sets the active-session gauge.
func SetSessionsActive(count int) { sessionsActive.Set(float64(count)) }

// SetClientsConnected sets the connected-client gauge.
func SetClientsConnected(count int) { clientsConnected.Set(float64(count)) }

// SampleRuntime refreshes the process gauges.
func SampleRuntime() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	memoryUsage.Set(float64(ms.HeapAlloc))
	goroutines.Set(float64(runtime.NumGoroutine()))
}

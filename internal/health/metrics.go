package health

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every Prometheus collector the broker exposes, kept on
// a private registry so nothing leaks into prometheus' global default.
type Metrics struct {
	Registry *prometheus.Registry

	HTTPRequestsTotal       *prometheus.CounterVec
	SessionOperationsTotal  *prometheus.CounterVec
	ContainerOperationsTotal *prometheus.CounterVec
	DatabaseOperationsTotal *prometheus.CounterVec

	SystemMemoryBytes  *prometheus.GaugeVec
	ProcessMemoryBytes *prometheus.GaugeVec
	CPUPercent         prometheus.Gauge
	LoadAverage        *prometheus.GaugeVec
	ActiveConnections  prometheus.Gauge

	ExecutionDurationMs *prometheus.HistogramVec
	SessionDurationMs   *prometheus.HistogramVec
	DatabaseDurationMs  *prometheus.HistogramVec
}

// quantileBucketsMs covers the latency range the broker cares about:
// sub-millisecond admission checks up to the 300s execution ceiling.
var quantileBucketsMs = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000, 300000}

// NewMetrics builds and registers every collector on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "broker",
			Name:      "http_requests_total",
			Help:      "Total tool-surface requests handled.",
		}, []string{"tool", "status"}),

		SessionOperationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "broker",
			Name:      "session_operations_total",
			Help:      "Total session lifecycle operations.",
		}, []string{"operation", "kind", "status"}),

		ContainerOperationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "broker",
			Name:      "container_operations_total",
			Help:      "Total workspace/process isolation operations.",
		}, []string{"operation", "status"}),

		DatabaseOperationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "broker",
			Name:      "database_operations_total",
			Help:      "Total metadata store operations, by tier.",
		}, []string{"tier", "operation", "status"}),

		SystemMemoryBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "broker",
			Name:      "system_memory_bytes",
			Help:      "System memory, by kind.",
		}, []string{"kind"}),

		ProcessMemoryBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "broker",
			Name:      "process_memory_bytes",
			Help:      "Broker process memory, by kind (rss, heap_used, heap_total, external).",
		}, []string{"kind"}),

		CPUPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "broker",
			Name:      "cpu_percent",
			Help:      "Broker process CPU utilization percent.",
		}),

		LoadAverage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "broker",
			Name:      "load_average",
			Help:      "System load average, by window.",
		}, []string{"window"}),

		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "broker",
			Name:      "active_connections",
			Help:      "Currently open tool-surface connections.",
		}),

		ExecutionDurationMs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "broker",
			Name:      "execution_duration_ms",
			Help:      "execute_code wall-clock duration in milliseconds.",
			Buckets:   quantileBucketsMs,
		}, []string{"language", "status"}),

		SessionDurationMs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "broker",
			Name:      "session_duration_ms",
			Help:      "Session lifetime, creation to destruction, in milliseconds.",
			Buckets:   quantileBucketsMs,
		}, []string{"kind"}),

		DatabaseDurationMs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "broker",
			Name:      "database_duration_ms",
			Help:      "Metadata store call duration in milliseconds, by tier.",
			Buckets:   quantileBucketsMs,
		}, []string{"tier", "operation"}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.SessionOperationsTotal,
		m.ContainerOperationsTotal,
		m.DatabaseOperationsTotal,
		m.SystemMemoryBytes,
		m.ProcessMemoryBytes,
		m.CPUPercent,
		m.LoadAverage,
		m.ActiveConnections,
		m.ExecutionDurationMs,
		m.SessionDurationMs,
		m.DatabaseDurationMs,
	)

	return m
}

package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Request metrics
	inFlightRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voice_reply_in_flight_requests",
		Help: "Number of pipeline invocations currently running",
	})

	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_reply_requests_total",
		Help: "Total number of pipeline invocations",
	}, []string{"status"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voice_reply_request_duration_seconds",
		Help:    "End-to-end pipeline duration in seconds",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	})

	// Stage metrics: stage is transcribe, chat, synthesize or store
	stageRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_reply_stage_requests_total",
		Help: "Total number of collaborator calls per pipeline stage",
	}, []string{"stage", "status"})

	stageLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "voice_reply_stage_latency_seconds",
		Help:    "Collaborator latency per pipeline stage in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
	}, []string{"stage"})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_reply_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "voice_reply_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_reply_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})

	// Audio metrics
	audioBytesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_reply_audio_bytes_total",
		Help: "Total audio bytes processed",
	}, []string{"direction"}) // direction: "in" or "out"

	audioInputSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voice_reply_audio_input_seconds",
		Help:    "Duration of uploaded WAV audio in seconds",
		Buckets: []float64{1, 2, 5, 10, 30, 60, 120, 300},
	})

	// Retention metrics
	artifactsSwept = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_reply_artifacts_swept_total",
		Help: "Generated audio files removed by the retention janitor",
	}, []string{"reason"}) // reason: "stale_temp", "expired" or "overflow"
)

// Metrics tracks metrics for a single pipeline invocation
type Metrics struct {
	startTime time.Time
}

// NewRequestMetrics creates a new metrics tracker and marks the request in flight
func NewRequestMetrics() *Metrics {
	inFlightRequests.Inc()
	return &Metrics{startTime: time.Now()}
}

// RecordRequestEnd records the end of a pipeline invocation
func (m *Metrics) RecordRequestEnd(success bool) {
	inFlightRequests.Dec()
	requestDuration.Observe(time.Since(m.startTime).Seconds())
	requestsTotal.WithLabelValues(statusLabel(success)).Inc()
}

// StartStage returns a function that records the stage outcome and latency
// when called.
func (m *Metrics) StartStage(stage string) func(success bool) {
	start := time.Now()
	return func(success bool) {
		stageLatency.WithLabelValues(stage).Observe(time.Since(start).Seconds())
		stageRequests.WithLabelValues(stage, statusLabel(success)).Inc()
	}
}

// RecordError records an error
func (m *Metrics) RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordAudioBytes records audio bytes processed
func (m *Metrics) RecordAudioBytes(direction string, bytes int64) {
	audioBytesProcessed.WithLabelValues(direction).Add(float64(bytes))
}

// RecordUploadBytes records the size of an accepted upload
func RecordUploadBytes(bytes int64) {
	audioBytesProcessed.WithLabelValues("input").Add(float64(bytes))
}

// RecordInputDuration records the duration of an uploaded recording
func RecordInputDuration(d time.Duration) {
	audioInputSeconds.Observe(d.Seconds())
}

// RecordArtifactsSwept records files removed by the retention janitor
func RecordArtifactsSwept(reason string, n int) {
	artifactsSwept.WithLabelValues(reason).Add(float64(n))
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

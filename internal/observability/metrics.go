package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tts_gateway_active_sessions",
		Help: "Number of open streaming sessions",
	})

	totalSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tts_gateway_sessions_total",
		Help: "Total number of streaming sessions accepted",
	})

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tts_gateway_session_duration_seconds",
		Help:    "Duration of streaming sessions in seconds",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})

	// Utterance metrics
	utterances = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tts_gateway_utterances_total",
		Help: "Total number of utterances by outcome",
	}, []string{"status"})

	utteranceLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tts_gateway_utterance_latency_seconds",
		Help:    "Time from text receipt to end of utterance",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
	})

	// Sentence metrics
	sentences = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tts_gateway_sentences_total",
		Help: "Total number of synthesized sentences by outcome",
	}, []string{"status"})

	sentenceLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tts_gateway_sentence_latency_seconds",
		Help:    "Per-sentence synthesis latency in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
	})

	// Engine metrics
	inferenceLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tts_gateway_inference_latency_seconds",
		Help:    "Inference engine call latency in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
	}, []string{"backend"})

	inferenceWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tts_gateway_inference_wait_seconds",
		Help:    "Time spent waiting for an engine slot",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
	})

	featureCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tts_gateway_feature_cache_total",
		Help: "Linguistic feature cache lookups",
	}, []string{"result"}) // result: "hit" or "miss"

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tts_gateway_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tts_gateway_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tts_gateway_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})

	// Audio metrics
	audioBytesOut = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tts_gateway_audio_bytes_total",
		Help: "Total PCM bytes streamed to clients",
	})

	clampedSamples = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tts_gateway_clamped_samples_total",
		Help: "Samples outside [-1, 1] clamped before PCM encoding",
	})

	rejectedConnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tts_gateway_rejected_connections_total",
		Help: "Websocket upgrades rejected by the connection rate limiter",
	})
)

// Metrics tracks metrics for a single streaming session
type Metrics struct {
	sessionID      string
	startTime      time.Time
	utteranceStart time.Time
	mu             sync.Mutex
}

// NewSessionMetrics creates a new metrics tracker for a session
func NewSessionMetrics(sessionID string) *Metrics {
	return &Metrics{
		sessionID: sessionID,
		startTime: time.Now(),
	}
}

// RecordSessionStart records the start of a session
func (m *Metrics) RecordSessionStart() {
	activeSessions.Inc()
	totalSessions.Inc()
}

// RecordSessionEnd records the end of a session
func (m *Metrics) RecordSessionEnd() {
	activeSessions.Dec()
	sessionDuration.Observe(time.Since(m.startTime).Seconds())
}

// RecordUtteranceStart records receipt of a text message
func (m *Metrics) RecordUtteranceStart() {
	m.mu.Lock()
	m.utteranceStart = time.Now()
	m.mu.Unlock()
}

// RecordUtteranceEnd records the outcome of an utterance
func (m *Metrics) RecordUtteranceEnd(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.utteranceStart.IsZero() {
		utteranceLatency.Observe(time.Since(m.utteranceStart).Seconds())
	}
	utterances.WithLabelValues(status).Inc()
}

// RecordError records an error
func (m *Metrics) RecordError(errorType, component string) {
	RecordError(errorType, component)
}

// RecordAudioBytes records PCM bytes sent to the client
func (m *Metrics) RecordAudioBytes(bytes int64) {
	audioBytesOut.Add(float64(bytes))
}

// RecordClampedSamples records out-of-range samples clamped before encoding
func (m *Metrics) RecordClampedSamples(n int) {
	if n > 0 {
		clampedSamples.Add(float64(n))
	}
}

// RecordSentence records the outcome and latency of one sentence
func RecordSentence(d time.Duration, success bool) {
	sentenceLatency.Observe(d.Seconds())
	sentences.WithLabelValues(statusLabel(success)).Inc()
}

// RecordInference records one inference engine call
func RecordInference(backend string, d time.Duration) {
	inferenceLatency.WithLabelValues(backend).Observe(d.Seconds())
}

// RecordInferenceWait records time spent waiting for an engine slot
func RecordInferenceWait(d time.Duration) {
	inferenceWait.Observe(d.Seconds())
}

// RecordFeatureCache records a feature cache hit or miss
func RecordFeatureCache(hit bool) {
	if hit {
		featureCache.WithLabelValues("hit").Inc()
		return
	}
	featureCache.WithLabelValues("miss").Inc()
}

// RecordError records an error outside a session
func RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordRejectedConnection records a rate-limited websocket upgrade
func RecordRejectedConnection() {
	rejectedConnections.Inc()
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

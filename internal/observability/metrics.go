package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lexiqai/misa/internal/resilience"
)

var (
	// Dialogue metrics
	turnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "misa_turns_total",
		Help: "Dialogue turns by outcome",
	}, []string{"outcome"}) // completed, interrupted, elaborate, reprompt, apology

	interruptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "misa_interrupts_total",
		Help: "Number of barge-in interruptions that cancelled playback",
	})

	speakingGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "misa_speaking",
		Help: "1 while the assistant is speaking",
	})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "misa_turn_queue_depth",
		Help: "Utterances waiting in the turn queue",
	})

	// Listener metrics
	captureCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "misa_capture_cycles_total",
		Help: "Completed capture cycles by result",
	}, []string{"result"}) // utterance, empty, error

	echoDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "misa_echo_guard_decisions_total",
		Help: "Echo guard decisions on recognized phrases",
	}, []string{"decision"})

	// Collaborator latency
	generationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "misa_generation_latency_seconds",
		Help:    "Response generation latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
	})

	synthesisLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "misa_synthesis_latency_seconds",
		Help:    "TTS synthesis latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
	})

	playbackDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "misa_playback_duration_seconds",
		Help:    "Playback duration in seconds",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 60},
	}, []string{"status"}) // finished, cancelled, error

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "misa_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "misa_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailureRate = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "misa_circuit_breaker_failure_rate_percent",
		Help: "Share of requests through the circuit breaker that failed",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "misa_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})

	// Audio metrics
	audioBytesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "misa_audio_bytes_total",
		Help: "Total audio bytes processed",
	}, []string{"direction"}) // direction: "in" or "out"
)

// RecordTurn records the outcome of a dialogue turn
func RecordTurn(outcome string) {
	turnsTotal.WithLabelValues(outcome).Inc()
}

// RecordInterrupt records a barge-in that cancelled playback
func RecordInterrupt() {
	interruptsTotal.Inc()
}

// SetSpeaking updates the speaking gauge
func SetSpeaking(on bool) {
	if on {
		speakingGauge.Set(1)
		return
	}
	speakingGauge.Set(0)
}

// SetQueueDepth updates the turn queue depth gauge
func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}

// RecordCaptureCycle records the result of one listener capture cycle
func RecordCaptureCycle(result string) {
	captureCycles.WithLabelValues(result).Inc()
}

// RecordEchoDecision records an echo guard decision
func RecordEchoDecision(decision string) {
	echoDecisions.WithLabelValues(decision).Inc()
}

// ObserveGeneration records generation latency since start
func ObserveGeneration(start time.Time) {
	generationLatency.Observe(time.Since(start).Seconds())
}

// ObserveSynthesis records synthesis latency since start
func ObserveSynthesis(start time.Time) {
	synthesisLatency.Observe(time.Since(start).Seconds())
}

// ObservePlayback records how long a playback lasted and how it ended
func ObservePlayback(start time.Time, status string) {
	playbackDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
}

// RecordError records an error
func RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordAudioBytes records audio bytes processed
func RecordAudioBytes(direction string, bytes int64) {
	audioBytesProcessed.WithLabelValues(direction).Add(float64(bytes))
}

// ObserveCircuitBreaker exports a breaker's state and failure rate, labelled
// with the breaker's name
func ObserveCircuitBreaker(cb *resilience.CircuitBreaker) {
	state, _, _, failureRate := cb.GetStats()
	circuitBreakerState.WithLabelValues(cb.Name()).Set(float64(state))
	circuitBreakerFailureRate.WithLabelValues(cb.Name()).Set(failureRate)
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}

package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Episode metrics
	activeRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "podcast_studio_active_runs",
		Help: "Number of pipeline runs in progress",
	})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "podcast_studio_runs_total",
		Help: "Total number of pipeline runs by kind and status",
	}, []string{"kind", "status"}) // kind: "full" or "resynthesize"

	stageLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "podcast_studio_stage_duration_seconds",
		Help:    "Duration of each pipeline stage in seconds",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"stage"})

	// Generation metrics
	generationRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "podcast_studio_generation_requests_total",
		Help: "Total number of text generation requests",
	}, []string{"stage", "status"})

	// Synthesis metrics
	turnLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "podcast_studio_turn_synthesis_seconds",
		Help:    "Per-turn synthesis latency (descriptor + render) in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	})

	turnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "podcast_studio_turns_synthesized_total",
		Help: "Total number of turns synthesized",
	}, []string{"status"})

	// Remote collaborator metrics
	speechRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "podcast_studio_speech_requests_total",
		Help: "Total number of speech engine requests",
	}, []string{"op", "status"})

	documentFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "podcast_studio_document_fetches_total",
		Help: "Total number of documents fetched by detected kind",
	}, []string{"kind", "status"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "podcast_studio_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "podcast_studio_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})

	// Audio metrics
	audioBytesProduced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "podcast_studio_audio_bytes_total",
		Help: "Total bytes of joined podcast audio produced",
	})
)

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RunStarted records the start of a pipeline run
func RunStarted() {
	activeRuns.Inc()
}

// RunFinished records the end of a pipeline run
func RunFinished(kind string, success bool) {
	activeRuns.Dec()
	runsTotal.WithLabelValues(kind, statusLabel(success)).Inc()
}

// ObserveStage records how long a pipeline stage took
func ObserveStage(stage string, started time.Time) {
	stageLatency.WithLabelValues(stage).Observe(time.Since(started).Seconds())
}

// RecordGeneration records the outcome of a generation request
func RecordGeneration(stage string, success bool) {
	generationRequests.WithLabelValues(stage, statusLabel(success)).Inc()
}

// RecordTurn records one synthesized turn
func RecordTurn(started time.Time, success bool) {
	turnLatency.Observe(time.Since(started).Seconds())
	turnsTotal.WithLabelValues(statusLabel(success)).Inc()
}

// RecordSpeechRequest records a speech engine request
func RecordSpeechRequest(op string, success bool) {
	speechRequests.WithLabelValues(op, statusLabel(success)).Inc()
}

// RecordDocumentFetch records a document fetch
func RecordDocumentFetch(kind string, success bool) {
	documentFetches.WithLabelValues(kind, statusLabel(success)).Inc()
}

// RecordAudioBytes records bytes of final audio produced
func RecordAudioBytes(n int) {
	audioBytesProduced.Add(float64(n))
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}

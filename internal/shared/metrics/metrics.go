package metrics

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry = prometheus.NewRegistry()

	scansStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scout_scans_started_total",
		Help: "Total scan runs started, including resumed runs",
	})
	scansCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scout_scans_completed_total",
		Help: "Total scan runs completed",
	})
	scansFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scout_scans_failed_total",
		Help: "Total scan runs failed",
	})
	scansCancelled = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scout_scans_cancelled_total",
		Help: "Total scan runs cancelled",
	})
	filesScanned = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scout_files_scanned_total",
		Help: "Files fetched and scanned for signals",
	})
	fileErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scout_file_errors_total",
		Help: "Files skipped because fetching or decoding failed",
	})
	signalsFound = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scout_signals_found_total",
		Help: "Signals persisted during file scanning",
	})
	llmCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scout_llm_calls_total",
		Help: "LLM calls by phase and outcome",
	}, []string{"phase", "outcome"})
	candidatesDrafted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scout_candidates_drafted_total",
		Help: "Issue candidates created by the drafting pipeline",
	})
	panics = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scout_panics_total",
		Help: "Recovered panics by origin (http or scan)",
	}, []string{"origin"})
	scanDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "scout_scan_duration_seconds",
		Help:    "Wall time of a single scan run",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	})
)

func init() {
	registry.MustRegister(
		scansStarted,
		scansCompleted,
		scansFailed,
		scansCancelled,
		filesScanned,
		fileErrors,
		signalsFound,
		llmCalls,
		candidatesDrafted,
		panics,
		scanDuration,
	)
}

// Registry exposes the collector registry, mainly for tests.
func Registry() *prometheus.Registry {
	return registry
}

// IncScanStarted increments the started counter.
func IncScanStarted() {
	scansStarted.Inc()
}

// IncScanCompleted increments the completed counter.
func IncScanCompleted() {
	scansCompleted.Inc()
}

// IncScanFailed increments the failed counter.
func IncScanFailed() {
	scansFailed.Inc()
}

// IncScanCancelled increments the cancelled counter.
func IncScanCancelled() {
	scansCancelled.Inc()
}

// IncFilesScanned counts one scanned file.
func IncFilesScanned() {
	filesScanned.Inc()
}

// IncFileErrors counts one skipped file.
func IncFileErrors() {
	fileErrors.Inc()
}

// AddSignalsFound adds n persisted signals.
func AddSignalsFound(n int) {
	if n > 0 {
		signalsFound.Add(float64(n))
	}
}

// ObserveLLMCall records one provider call; outcome is ok, error or skipped.
func ObserveLLMCall(phase, outcome string) {
	llmCalls.WithLabelValues(phase, outcome).Inc()
}

// IncCandidatesDrafted counts one created candidate.
func IncCandidatesDrafted() {
	candidatesDrafted.Inc()
}

// IncPanic counts one recovered panic.
func IncPanic(origin string) {
	panics.WithLabelValues(origin).Inc()
}

// ObserveScanDuration records a run duration.
func ObserveScanDuration(d time.Duration) {
	if d < 0 {
		d = 0
	}
	scanDuration.Observe(d.Seconds())
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

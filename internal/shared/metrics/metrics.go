package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

var (
	analysisStartedTotal atomic.Uint64
	analysisFailedTotal  atomic.Uint64

	summarizationStartedTotal   atomic.Uint64
	summarizationCompletedTotal atomic.Uint64
	summarizationAbortedTotal   atomic.Uint64
	retryStartedTotal           atomic.Uint64

	summaryOKTotal    atomic.Uint64
	summaryErrorTotal atomic.Uint64

	summarizationDuration = newHistogram([]float64{250, 500, 1000, 2500, 5000, 10000, 30000, 60000, 300000})
)

// IncAnalysisStarted counts analyses that passed the sentiment stage.
func IncAnalysisStarted() {
	analysisStartedTotal.Add(1)
}

// IncAnalysisFailed counts analyses that died in the sentiment stage.
func IncAnalysisFailed() {
	analysisFailedTotal.Add(1)
}

// IncSummarizationStarted counts summarization passes started.
func IncSummarizationStarted() {
	summarizationStartedTotal.Add(1)
}

// IncSummarizationCompleted counts passes that reached done.
func IncSummarizationCompleted() {
	summarizationCompletedTotal.Add(1)
}

// IncSummarizationAborted counts passes aborted on a store failure.
func IncSummarizationAborted() {
	summarizationAbortedTotal.Add(1)
}

// IncRetryStarted counts retry passes started.
func IncRetryStarted() {
	retryStartedTotal.Add(1)
}

// IncSummaryOK counts per-comment summaries that settled ok.
func IncSummaryOK() {
	summaryOKTotal.Add(1)
}

// IncSummaryError counts per-comment summaries that settled as errors.
func IncSummaryError() {
	summaryErrorTotal.Add(1)
}

// ObserveSummarizationDurationMs records one full pass duration.
func ObserveSummarizationDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	summarizationDuration.Observe(value)
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "analysis_started_total", "Total analyses that passed the sentiment stage", analysisStartedTotal.Load())
	writeCounter(&buf, "analysis_failed_total", "Total analyses failed in the sentiment stage", analysisFailedTotal.Load())
	writeCounter(&buf, "summarization_started_total", "Total summarization passes started", summarizationStartedTotal.Load())
	writeCounter(&buf, "summarization_completed_total", "Total summarization passes completed", summarizationCompletedTotal.Load())
	writeCounter(&buf, "summarization_aborted_total", "Total summarization passes aborted on store failures", summarizationAbortedTotal.Load())
	writeCounter(&buf, "retry_started_total", "Total retry passes started", retryStartedTotal.Load())
	writeCounter(&buf, "summary_ok_total", "Total comment summaries succeeded", summaryOKTotal.Load())
	writeCounter(&buf, "summary_error_total", "Total comment summaries failed", summaryErrorTotal.Load())
	writeHistogram(&buf, "summarization_duration_ms", "Summarization pass duration in milliseconds", summarizationDuration.Snapshot())
	return buf.String()
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
			break
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}

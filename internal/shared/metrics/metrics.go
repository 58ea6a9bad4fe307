package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

var (
	verificationStartedTotal     atomic.Uint64
	verificationVerifiedTotal    atomic.Uint64
	verificationFailedTotal      atomic.Uint64
	verificationUnavailableTotal atomic.Uint64
	verificationLegacyTotal      atomic.Uint64

	chatAnsweredTotal    atomic.Uint64
	chatUngroundedTotal  atomic.Uint64
	chatUnavailableTotal atomic.Uint64

	gatewayErrors = newLabeledCounter()

	verificationDuration = newHistogram([]float64{100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000})
	chatDuration         = newHistogram([]float64{100, 250, 500, 1000, 2000, 5000, 10000, 30000})
)

func IncVerificationStarted()     { verificationStartedTotal.Add(1) }
func IncVerificationVerified()    { verificationVerifiedTotal.Add(1) }
func IncVerificationFailed()      { verificationFailedTotal.Add(1) }
func IncVerificationUnavailable() { verificationUnavailableTotal.Add(1) }
func IncVerificationLegacy()      { verificationLegacyTotal.Add(1) }

func IncChatAnswered()    { chatAnsweredTotal.Add(1) }
func IncChatUngrounded()  { chatUngroundedTotal.Add(1) }
func IncChatUnavailable() { chatUnavailableTotal.Add(1) }

// IncGatewayError counts a failed outbound call by gateway and error kind.
func IncGatewayError(gateway, kind string) {
	gatewayErrors.Inc(gateway + "|" + kind)
}

// ObserveVerificationDurationMs records a verification round trip in milliseconds.
func ObserveVerificationDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	verificationDuration.Observe(value)
}

// ObserveChatDurationMs records a chat answer latency in milliseconds.
func ObserveChatDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	chatDuration.Observe(value)
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
	writeCounter(&buf, "verification_started_total", "Total AI verifications started", verificationStartedTotal.Load())
	writeCounter(&buf, "verification_verified_total", "Total documents verified", verificationVerifiedTotal.Load())
	writeCounter(&buf, "verification_failed_total", "Total documents rejected", verificationFailedTotal.Load())
	writeCounter(&buf, "verification_unavailable_total", "Total verifications failed because the gateway was unavailable", verificationUnavailableTotal.Load())
	writeCounter(&buf, "verification_legacy_total", "Total documents accepted without AI verification", verificationLegacyTotal.Load())
	writeCounter(&buf, "chat_answered_total", "Total chat answers returned", chatAnsweredTotal.Load())
	writeCounter(&buf, "chat_ungrounded_total", "Total chat answers produced without search context", chatUngroundedTotal.Load())
	writeCounter(&buf, "chat_unavailable_total", "Total chat requests failed by the conversation gateway", chatUnavailableTotal.Load())
	writeLabeledCounter(&buf, "gateway_errors_total", "Outbound gateway failures", gatewayErrors.Snapshot())
	writeHistogram(&buf, "verification_duration_ms", "Verification duration in milliseconds", verificationDuration.Snapshot())
	writeHistogram(&buf, "chat_duration_ms", "Chat answer duration in milliseconds", chatDuration.Snapshot())
	return buf.String()
}

type labeledCounter struct {
	mu     sync.Mutex
	values map[string]uint64
}

func newLabeledCounter() *labeledCounter {
	return &labeledCounter{values: make(map[string]uint64)}
}

func (l *labeledCounter) Inc(key string) {
	l.mu.Lock()
	l.values[key]++
	l.mu.Unlock()
}

func (l *labeledCounter) Snapshot() map[string]uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]uint64, len(l.values))
	for k, v := range l.values {
		out[k] = v
	}
	return out
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

// writeLabeledCounter expects keys of the form "gateway|kind".
func writeLabeledCounter(buf *bytes.Buffer, name, help string, values map[string]uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		gw, kind := splitLabel(k)
		fmt.Fprintf(buf, "%s{gateway=%q,kind=%q} %d\n", name, gw, kind, values[k])
	}
}

func splitLabel(key string) (string, string) {
	for i := 0; i < len(key); i++ {
		if key[i] == '|' {
			return key[:i], key[i+1:]
		}
	}
	return key, ""
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

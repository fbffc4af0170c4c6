package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type requestLabel struct {
	method string
	path   string
	status string
}

// Recorder aggregates in-memory metrics counters and gauges for HTTP
// requests, transcode job outcomes, and live proxy session lifecycle. It
// coordinates concurrent writers via a RWMutex while exposing thread-safe
// gauges for in-flight work.
type Recorder struct {
	mu               sync.RWMutex
	requestCount     map[requestLabel]uint64
	requestDuration  map[requestLabel]time.Duration
	transcodeEvents  map[string]uint64
	liveEvents       map[string]uint64
	activeTranscodes atomic.Int64
	activeSessions   atomic.Int64
}

var defaultRecorder = New()

// New constructs an empty Recorder with initialized backing maps so callers
// can immediately record metrics without additional setup.
func New() *Recorder {
	return &Recorder{
		requestCount:    make(map[requestLabel]uint64),
		requestDuration: make(map[requestLabel]time.Duration),
		transcodeEvents: make(map[string]uint64),
		liveEvents:      make(map[string]uint64),
	}
}

// Default returns the singleton Recorder instance shared across helper
// functions for packages that do not require custom instrumentation pipelines.
func Default() *Recorder {
	return defaultRecorder
}

// ObserveRequest normalizes the request label set and accumulates totals for
// request count and cumulative duration by HTTP method, normalized path, and
// status code.
func (r *Recorder) ObserveRequest(method, path string, status int, duration time.Duration) {
	label := requestLabel{
		method: strings.ToUpper(method),
		path:   normalizePath(path),
		status: fmt.Sprintf("%d", status),
	}
	r.mu.Lock()
	r.requestCount[label]++
	r.requestDuration[label] += duration
	r.mu.Unlock()
}

// TranscodeStarted records the start of a transcode job and increments the
// active job gauge.
func (r *Recorder) TranscodeStarted() {
	r.recordTranscodeEvent("started")
	r.activeTranscodes.Add(1)
}

// TranscodeCompleted records a successful transcode and decrements the active
// job gauge.
func (r *Recorder) TranscodeCompleted() {
	r.recordTranscodeEvent("completed")
	r.decrementGauge(&r.activeTranscodes)
}

// TranscodeFailed records a failed transcode and decrements the active job
// gauge, guarding against negative counts.
func (r *Recorder) TranscodeFailed() {
	r.recordTranscodeEvent("failed")
	r.decrementGauge(&r.activeTranscodes)
}

func (r *Recorder) recordTranscodeEvent(status string) {
	normalized := normalizeName(status)
	r.mu.Lock()
	r.transcodeEvents[normalized]++
	r.mu.Unlock()
}

// LiveSessionStarted records a live proxy session spawn and increments the
// active session gauge.
func (r *Recorder) LiveSessionStarted() {
	r.recordLiveEvent("started")
	r.activeSessions.Add(1)
}

// LiveSessionStartFailed records a session that never produced a manifest.
// The gauge is untouched because the session was never registered.
func (r *Recorder) LiveSessionStartFailed() {
	r.recordLiveEvent("start_failed")
}

// LiveSessionReaped records an idle session teardown and decrements the
// active session gauge.
func (r *Recorder) LiveSessionReaped() {
	r.recordLiveEvent("reaped")
	r.decrementGauge(&r.activeSessions)
}

// LiveSessionStopped records a deliberate session teardown, such as a stale
// restart or process shutdown, and decrements the active session gauge.
func (r *Recorder) LiveSessionStopped() {
	r.recordLiveEvent("stopped")
	r.decrementGauge(&r.activeSessions)
}

func (r *Recorder) recordLiveEvent(event string) {
	normalized := normalizeName(event)
	r.mu.Lock()
	r.liveEvents[normalized]++
	r.mu.Unlock()
}

// ActiveTranscodes exposes the current number of in-flight transcode jobs.
func (r *Recorder) ActiveTranscodes() int64 {
	return r.activeTranscodes.Load()
}

// ActiveLiveSessions exposes the current number of supervised live sessions.
func (r *Recorder) ActiveLiveSessions() int64 {
	return r.activeSessions.Load()
}

// TranscodeCounts returns a copy of the transcode event counters for testing
// and reporting purposes.
func (r *Recorder) TranscodeCounts() map[string]uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	events := make(map[string]uint64, len(r.transcodeEvents))
	for k, v := range r.transcodeEvents {
		events[k] = v
	}
	return events
}

// Reset clears all counters and gauges on the recorder. It is intended for
// test setups.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requestCount = make(map[requestLabel]uint64)
	r.requestDuration = make(map[requestLabel]time.Duration)
	r.transcodeEvents = make(map[string]uint64)
	r.liveEvents = make(map[string]uint64)
	r.activeTranscodes.Store(0)
	r.activeSessions.Store(0)
}

// Handler exposes the Recorder as an http.Handler that writes Prometheus text
// exposition data with the appropriate content type.
func (r *Recorder) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		r.Write(w)
	})
}

// Write renders the Recorder's metrics in Prometheus text format, sorting
// label sets to provide stable output for scrapes and tests.
func (r *Recorder) Write(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	requestLabels := r.sortedRequestLabels()
	transcodeEvents := sortedKeys(r.transcodeEvents)
	liveEvents := sortedKeys(r.liveEvents)

	fmt.Fprintln(w, "# HELP streamcove_http_requests_total Total number of HTTP requests processed by the service")
	fmt.Fprintln(w, "# TYPE streamcove_http_requests_total counter")
	for _, label := range requestLabels {
		count := r.requestCount[label]
		fmt.Fprintf(w, "streamcove_http_requests_total{method=\"%s\",path=\"%s\",status=\"%s\"} %d\n", label.method, label.path, label.status, count)
	}

	fmt.Fprintln(w, "# HELP streamcove_http_request_duration_seconds_sum Cumulative duration of HTTP requests in seconds")
	fmt.Fprintln(w, "# TYPE streamcove_http_request_duration_seconds_sum counter")
	for _, label := range requestLabels {
		duration := r.requestDuration[label].Seconds()
		fmt.Fprintf(w, "streamcove_http_request_duration_seconds_sum{method=\"%s\",path=\"%s\",status=\"%s\"} %f\n", label.method, label.path, label.status, duration)
	}

	fmt.Fprintln(w, "# HELP streamcove_transcode_jobs_total Transcode job events by status")
	fmt.Fprintln(w, "# TYPE streamcove_transcode_jobs_total counter")
	for _, event := range transcodeEvents {
		fmt.Fprintf(w, "streamcove_transcode_jobs_total{status=\"%s\"} %d\n", event, r.transcodeEvents[event])
	}

	fmt.Fprintln(w, "# HELP streamcove_transcode_active_jobs Current number of in-flight transcode jobs")
	fmt.Fprintln(w, "# TYPE streamcove_transcode_active_jobs gauge")
	fmt.Fprintf(w, "streamcove_transcode_active_jobs %d\n", r.activeTranscodes.Load())

	fmt.Fprintln(w, "# HELP streamcove_live_sessions_total Live proxy session lifecycle events by type")
	fmt.Fprintln(w, "# TYPE streamcove_live_sessions_total counter")
	for _, event := range liveEvents {
		fmt.Fprintf(w, "streamcove_live_sessions_total{event=\"%s\"} %d\n", event, r.liveEvents[event])
	}

	fmt.Fprintln(w, "# HELP streamcove_live_active_sessions Current number of supervised live proxy sessions")
	fmt.Fprintln(w, "# TYPE streamcove_live_active_sessions gauge")
	fmt.Fprintf(w, "streamcove_live_active_sessions %d\n", r.activeSessions.Load())
}

func (r *Recorder) sortedRequestLabels() []requestLabel {
	labels := make([]requestLabel, 0, len(r.requestCount))
	for label := range r.requestCount {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].method != labels[j].method {
			return labels[i].method < labels[j].method
		}
		if labels[i].path != labels[j].path {
			return labels[i].path < labels[j].path
		}
		return labels[i].status < labels[j].status
	})
	return labels
}

func sortedKeys(m map[string]uint64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func normalizeName(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}

func normalizePath(path string) string {
	if path == "" || path == "/" {
		return "/"
	}
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if part == "" {
			continue
		}
		if looksLikeIdentifier(part) {
			parts[i] = ":id"
		}
	}
	normalized := strings.Join(parts, "/")
	if !strings.HasPrefix(normalized, "/") {
		normalized = "/" + normalized
	}
	if strings.HasSuffix(normalized, "/") && len(normalized) > 1 {
		normalized = strings.TrimSuffix(normalized, "/")
	}
	return normalized
}

func looksLikeIdentifier(segment string) bool {
	if strings.ContainsRune(segment, '.') {
		// Keeps file names such as playlist.m3u8 readable in labels.
		return false
	}
	digitCount := 0
	for _, r := range segment {
		if r >= '0' && r <= '9' {
			digitCount++
		}
	}
	if digitCount == len(segment) && digitCount > 0 {
		return true
	}
	return len(segment) >= 16
}

func (r *Recorder) decrementGauge(gauge *atomic.Int64) {
	for {
		current := gauge.Load()
		if current <= 0 {
			return
		}
		if gauge.CompareAndSwap(current, current-1) {
			return
		}
	}
}

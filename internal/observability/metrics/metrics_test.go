package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestObserveRequestNormalizesIdentifiers(t *testing.T) {
	recorder := New()
	recorder.ObserveRequest(http.MethodGet, "/progress/42", http.StatusOK, 10*time.Millisecond)
	recorder.ObserveRequest(http.MethodGet, "/progress/87", http.StatusOK, 20*time.Millisecond)
	recorder.ObserveRequest(http.MethodGet, "/stream/proxy/7/playlist.m3u8", http.StatusOK, time.Millisecond)

	var out strings.Builder
	recorder.Write(&out)
	rendered := out.String()

	if !strings.Contains(rendered, `streamcove_http_requests_total{method="GET",path="/progress/:id",status="200"} 2`) {
		t.Fatalf("expected collapsed progress paths, got:\n%s", rendered)
	}
	if !strings.Contains(rendered, `path="/stream/proxy/:id/playlist.m3u8"`) {
		t.Fatalf("expected playlist file name to survive normalization, got:\n%s", rendered)
	}
}

func TestTranscodeLifecycleCounters(t *testing.T) {
	recorder := New()

	recorder.TranscodeStarted()
	recorder.TranscodeStarted()
	if got := recorder.ActiveTranscodes(); got != 2 {
		t.Fatalf("expected 2 active transcodes, got %d", got)
	}

	recorder.TranscodeCompleted()
	recorder.TranscodeFailed()
	if got := recorder.ActiveTranscodes(); got != 0 {
		t.Fatalf("expected 0 active transcodes, got %d", got)
	}

	counts := recorder.TranscodeCounts()
	if counts["started"] != 2 || counts["completed"] != 1 || counts["failed"] != 1 {
		t.Fatalf("unexpected counts: %v", counts)
	}
}

func TestLiveSessionGaugeNeverGoesNegative(t *testing.T) {
	recorder := New()

	recorder.LiveSessionReaped()
	if got := recorder.ActiveLiveSessions(); got != 0 {
		t.Fatalf("expected gauge to stay at 0, got %d", got)
	}

	recorder.LiveSessionStarted()
	recorder.LiveSessionStopped()
	recorder.LiveSessionStartFailed()
	if got := recorder.ActiveLiveSessions(); got != 0 {
		t.Fatalf("expected gauge back at 0, got %d", got)
	}
}

func TestHandlerServesPrometheusText(t *testing.T) {
	recorder := New()
	recorder.LiveSessionStarted()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	recorder.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/plain") {
		t.Fatalf("unexpected content type %q", got)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `streamcove_live_sessions_total{event="started"} 1`) {
		t.Fatalf("expected live session counter, got:\n%s", body)
	}
	if !strings.Contains(body, "streamcove_live_active_sessions 1") {
		t.Fatalf("expected active session gauge, got:\n%s", body)
	}
}

func TestNormalizePath(t *testing.T) {
	testCases := []struct {
		input string
		want  string
	}{
		{input: "", want: "/"},
		{input: "/", want: "/"},
		{input: "/healthz", want: "/healthz"},
		{input: "/progress/42", want: "/progress/:id"},
		{input: "/stream/proxy/7/segment_3.ts", want: "/stream/proxy/:id/segment_3.ts"},
		{input: "/progress/3f29ab8c90d1e4f5a6b7", want: "/progress/:id"},
		{input: "/process-video/", want: "/process-video"},
	}

	for _, tc := range testCases {
		if got := normalizePath(tc.input); got != tc.want {
			t.Fatalf("normalizePath(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

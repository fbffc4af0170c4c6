package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"streamcove/internal/encode"
	"streamcove/internal/live"
	"streamcove/internal/observability/metrics"
	"streamcove/internal/probe"
	"streamcove/internal/progress"
)

type stubQueue struct {
	jobs []encode.Job
}

func (q *stubQueue) Enqueue(job encode.Job) {
	q.jobs = append(q.jobs, job)
}

type stubStreams struct {
	playlist    string
	manifestErr error
	segment     string
	segmentErr  error
	lastSource  string
}

func (s *stubStreams) GetOrCreateManifest(ctx context.Context, streamID, sourceURL string) (string, error) {
	s.lastSource = sourceURL
	if s.manifestErr != nil {
		return "", s.manifestErr
	}
	return s.playlist, nil
}

func (s *stubStreams) GetSegment(streamID, name string) (string, error) {
	if s.segmentErr != nil {
		return "", s.segmentErr
	}
	return s.segment, nil
}

func newTestRouter(t *testing.T, queue *stubQueue, streams *stubStreams, token string) (http.Handler, progress.Store) {
	t.Helper()
	store := progress.NewMemoryStore(time.Hour)
	handler := &Handler{
		Jobs:     queue,
		Progress: store,
		Prober: probe.ProberFunc(func(ctx context.Context, path string) probe.Metadata {
			return probe.Metadata{DurationSeconds: 42, Title: "Sample", Description: "A clip"}
		}),
		Streams: streams,
	}
	router := NewRouter(RouterConfig{
		Handler: handler,
		Token:   token,
		Metrics: metrics.New(),
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return router, store
}

func TestProcessVideoEnqueuesJob(t *testing.T) {
	queue := &stubQueue{}
	router, _ := newTestRouter(t, queue, &stubStreams{}, "")

	body := `{"video_path":"clip.mp4","video_id":"42","skip_thumbnail":true}`
	req := httptest.NewRequest(http.MethodPost, "/process-video", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(queue.jobs) != 1 {
		t.Fatalf("expected 1 enqueued job, got %d", len(queue.jobs))
	}
	job := queue.jobs[0]
	if job.ID != "42" || job.SourcePath != "clip.mp4" {
		t.Fatalf("unexpected job: %+v", job)
	}
	if !job.SkipThumbnail {
		t.Fatalf("expected skip_thumbnail to carry through")
	}
	if !job.DeleteSource {
		t.Fatalf("expected delete to default to true")
	}
}

func TestProcessVideoHonorsDeleteOptOut(t *testing.T) {
	queue := &stubQueue{}
	router, _ := newTestRouter(t, queue, &stubStreams{}, "")

	body := `{"video_path":"clip.mp4","video_id":"42","delete_original":false}`
	req := httptest.NewRequest(http.MethodPost, "/process-video", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if queue.jobs[0].DeleteSource {
		t.Fatalf("expected delete_original=false to carry through")
	}
}

func TestProcessVideoValidation(t *testing.T) {
	testCases := []struct {
		name string
		body string
	}{
		{name: "missing video_id", body: `{"video_path":"clip.mp4"}`},
		{name: "missing video_path", body: `{"video_id":"42"}`},
		{name: "malformed body", body: `{"video_path":`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			queue := &stubQueue{}
			router, _ := newTestRouter(t, queue, &stubStreams{}, "")

			req := httptest.NewRequest(http.MethodPost, "/process-video", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			if len(queue.jobs) != 0 {
				t.Fatalf("expected no enqueued jobs, got %d", len(queue.jobs))
			}
		})
	}
}

func TestProcessVideoRejectsGet(t *testing.T) {
	router, _ := newTestRouter(t, &stubQueue{}, &stubStreams{}, "")

	req := httptest.NewRequest(http.MethodGet, "/process-video", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestProgressEndpoint(t *testing.T) {
	router, store := newTestRouter(t, &stubQueue{}, &stubStreams{}, "")

	if err := store.Set(context.Background(), "42", 45, progress.StatusProcessing); err != nil {
		t.Fatalf("failed to seed progress: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/progress/42", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp progressResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.VideoID != "42" || resp.Progress != 45 || resp.Status != "processing" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestProgressEndpointUnknownJob(t *testing.T) {
	router, _ := newTestRouter(t, &stubQueue{}, &stubStreams{}, "")

	req := httptest.NewRequest(http.MethodGet, "/progress/missing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp progressResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Progress != 0 || resp.Status != "unknown" {
		t.Fatalf("expected unknown record, got %+v", resp)
	}
}

func TestExtractMetadata(t *testing.T) {
	router, _ := newTestRouter(t, &stubQueue{}, &stubStreams{}, "")

	req := httptest.NewRequest(http.MethodPost, "/extract-metadata?video_path=clip.mp4", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["duration"] != float64(42) || resp["title"] != "Sample" || resp["description"] != "A clip" {
		t.Fatalf("unexpected metadata: %v", resp)
	}
}

func TestExtractMetadataRequiresPath(t *testing.T) {
	router, _ := newTestRouter(t, &stubQueue{}, &stubStreams{}, "")

	req := httptest.NewRequest(http.MethodPost, "/extract-metadata", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestStreamPlaylist(t *testing.T) {
	dir := t.TempDir()
	playlist := filepath.Join(dir, "playlist.m3u8")
	if err := os.WriteFile(playlist, []byte("#EXTM3U\n"), 0o644); err != nil {
		t.Fatalf("failed to write playlist: %v", err)
	}
	streams := &stubStreams{playlist: playlist}
	router, _ := newTestRouter(t, &stubQueue{}, streams, "")

	req := httptest.NewRequest(http.MethodGet, "/stream/proxy/7/playlist.m3u8?src=rtsp://cam/feed", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != playlistMediaType {
		t.Fatalf("expected playlist media type, got %q", got)
	}
	if streams.lastSource != "rtsp://cam/feed" {
		t.Fatalf("expected src to reach the manager, got %q", streams.lastSource)
	}
	if !strings.Contains(rec.Body.String(), "#EXTM3U") {
		t.Fatalf("expected playlist body, got %q", rec.Body.String())
	}
}

func TestStreamPlaylistRequiresSource(t *testing.T) {
	router, _ := newTestRouter(t, &stubQueue{}, &stubStreams{}, "")

	req := httptest.NewRequest(http.MethodGet, "/stream/proxy/7/playlist.m3u8", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestStreamPlaylistStartFailure(t *testing.T) {
	streams := &stubStreams{manifestErr: live.ErrStartFailed}
	router, _ := newTestRouter(t, &stubQueue{}, streams, "")

	req := httptest.NewRequest(http.MethodGet, "/stream/proxy/7/playlist.m3u8?src=rtsp://cam/feed", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestStreamSegment(t *testing.T) {
	dir := t.TempDir()
	segment := filepath.Join(dir, "segment_1.ts")
	if err := os.WriteFile(segment, []byte("payload"), 0o644); err != nil {
		t.Fatalf("failed to write segment: %v", err)
	}
	streams := &stubStreams{segment: segment}
	router, _ := newTestRouter(t, &stubQueue{}, streams, "")

	req := httptest.NewRequest(http.MethodGet, "/stream/proxy/7/segment_1.ts", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != segmentMediaType {
		t.Fatalf("expected segment media type, got %q", got)
	}
}

func TestStreamSegmentNotFound(t *testing.T) {
	streams := &stubStreams{segmentErr: live.ErrSegmentNotFound}
	router, _ := newTestRouter(t, &stubQueue{}, streams, "")

	req := httptest.NewRequest(http.MethodGet, "/stream/proxy/7/segment_9.ts", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestBearerTokenGuardsSubmission(t *testing.T) {
	queue := &stubQueue{}
	router, _ := newTestRouter(t, queue, &stubStreams{}, "secret")

	body := `{"video_path":"clip.mp4","video_id":"42"}`

	req := httptest.NewRequest(http.MethodPost, "/process-video", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/process-video", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/process-video", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202 with valid token, got %d", rec.Code)
	}

	// Health stays open for load balancer checks.
	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected open healthz, got %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	router, _ := newTestRouter(t, &stubQueue{}, &stubStreams{}, "")

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Fatalf("unexpected health payload: %v", resp)
	}
}

package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTTPMiddlewareRecordsStatus(t *testing.T) {
	recorder := New()
	handler := HTTPMiddleware(recorder, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	req := httptest.NewRequest(http.MethodPost, "/process-video", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var out strings.Builder
	recorder.Write(&out)
	if !strings.Contains(out.String(), `streamcove_http_requests_total{method="POST",path="/process-video",status="202"} 1`) {
		t.Fatalf("expected request counter, got:\n%s", out.String())
	}
}

func TestResponseRecorderDefaultsToOK(t *testing.T) {
	rec := httptest.NewRecorder()
	recorder := NewResponseRecorder(rec)

	if _, err := recorder.Write([]byte("ok")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if recorder.Status() != http.StatusOK {
		t.Fatalf("expected implicit 200, got %d", recorder.Status())
	}
}

func TestResponseRecorderCapturesExplicitStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	recorder := NewResponseRecorder(rec)

	recorder.WriteHeader(http.StatusNotFound)
	if recorder.Status() != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", recorder.Status())
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status to propagate, got %d", rec.Code)
	}
}

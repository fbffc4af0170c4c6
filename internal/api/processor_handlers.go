package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"streamcove/internal/encode"
	"streamcove/internal/live"
	"streamcove/internal/observability/logging"
	"streamcove/internal/probe"
	"streamcove/internal/progress"
)

// JobQueue accepts background processing jobs.
type JobQueue interface {
	Enqueue(job encode.Job)
}

// StreamManager resolves live proxy playlists and segments.
type StreamManager interface {
	GetOrCreateManifest(ctx context.Context, streamID, sourceURL string) (string, error)
	GetSegment(streamID, name string) (string, error)
}

// Handler carries the dependencies behind the processor HTTP surface.
type Handler struct {
	Jobs     JobQueue
	Progress progress.Store
	Prober   probe.Prober
	Streams  StreamManager
}

type processVideoRequest struct {
	VideoPath      string `json:"video_path"`
	VideoID        string `json:"video_id"`
	SkipThumbnail  bool   `json:"skip_thumbnail"`
	DeleteOriginal *bool  `json:"delete_original"`
}

func (h *Handler) handleProcessVideo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	var req processVideoRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.VideoID) == "" {
		writeError(w, http.StatusBadRequest, errors.New("video_id is required"))
		return
	}
	if strings.TrimSpace(req.VideoPath) == "" {
		writeError(w, http.StatusBadRequest, errors.New("video_path is required"))
		return
	}

	// Originals are deleted after a successful run unless the caller opts out.
	deleteSource := true
	if req.DeleteOriginal != nil {
		deleteSource = *req.DeleteOriginal
	}

	h.Jobs.Enqueue(encode.Job{
		ID:            strings.TrimSpace(req.VideoID),
		SourcePath:    strings.TrimSpace(req.VideoPath),
		SkipThumbnail: req.SkipThumbnail,
		DeleteSource:  deleteSource,
	})

	if logger := logging.LoggerFromContext(r.Context()); logger != nil {
		logger.Info("video processing accepted", "job_id", req.VideoID, "source", req.VideoPath)
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"message": "Video processing started in background"})
}

type progressResponse struct {
	VideoID  string `json:"video_id"`
	Progress int    `json:"progress"`
	Status   string `json:"status"`
}

func (h *Handler) handleProgress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	jobID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/progress/"), "/")
	if jobID == "" || strings.Contains(jobID, "/") {
		writeError(w, http.StatusNotFound, errors.New("not found"))
		return
	}

	record, err := h.Progress.Get(r.Context(), jobID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errors.New("progress lookup failed"))
		return
	}
	writeJSON(w, http.StatusOK, progressResponse{
		VideoID:  jobID,
		Progress: record.Percent,
		Status:   string(record.Status),
	})
}

func (h *Handler) handleExtractMetadata(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	path := strings.TrimSpace(r.URL.Query().Get("video_path"))
	if path == "" {
		writeError(w, http.StatusBadRequest, errors.New("video_path is required"))
		return
	}

	metadata := h.Prober.Probe(r.Context(), path)
	writeJSON(w, http.StatusOK, map[string]any{
		"duration":    metadata.DurationSeconds,
		"title":       metadata.Title,
		"description": metadata.Description,
	})
}

const (
	playlistFile      = "playlist.m3u8"
	playlistMediaType = "application/vnd.apple.mpegurl"
	segmentMediaType  = "video/mp2t"
)

func (h *Handler) handleStreamProxy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/stream/proxy/")
	streamID, file, found := strings.Cut(rest, "/")
	if !found || strings.TrimSpace(streamID) == "" || strings.TrimSpace(file) == "" {
		writeError(w, http.StatusNotFound, errors.New("not found"))
		return
	}

	if file == playlistFile {
		h.servePlaylist(w, r, streamID)
		return
	}
	h.serveSegment(w, r, streamID, file)
}

func (h *Handler) servePlaylist(w http.ResponseWriter, r *http.Request, streamID string) {
	source := strings.TrimSpace(r.URL.Query().Get("src"))
	if source == "" {
		writeError(w, http.StatusBadRequest, errors.New("src query parameter is required"))
		return
	}

	playlist, err := h.Streams.GetOrCreateManifest(r.Context(), streamID, source)
	if err != nil {
		if logger := logging.LoggerFromContext(r.Context()); logger != nil {
			logger.Error("failed to start stream", "stream_id", streamID, "error", err)
		}
		if errors.Is(err, live.ErrStartFailed) {
			writeError(w, http.StatusServiceUnavailable, errors.New("failed to start stream"))
			return
		}
		writeError(w, http.StatusBadRequest, err)
		return
	}

	w.Header().Set("Content-Type", playlistMediaType)
	w.Header().Set("Cache-Control", "no-store")
	http.ServeFile(w, r, playlist)
}

func (h *Handler) serveSegment(w http.ResponseWriter, r *http.Request, streamID, name string) {
	path, err := h.Streams.GetSegment(streamID, name)
	if err != nil {
		writeError(w, http.StatusNotFound, errors.New("segment not found"))
		return
	}
	w.Header().Set("Content-Type", segmentMediaType)
	w.Header().Set("Cache-Control", "no-store")
	http.ServeFile(w, r, path)
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

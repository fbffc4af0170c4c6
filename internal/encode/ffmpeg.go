package encode

import (
	"bytes"
	"fmt"
	"log/slog"
	"path/filepath"
)

// scaleFilter caps output at 720p while forcing even dimensions so the
// H.264 encoder accepts the result regardless of source aspect ratio.
const scaleFilter = "scale=w='min(1280,iw)':h='min(720,ih)':force_original_aspect_ratio=decrease," +
	"scale=trunc(iw/2)*2:trunc(ih/2)*2"

type encodePlan struct {
	args     []string
	manifest string
}

func buildEncodePlan(input, outputDir, baseName string) encodePlan {
	manifest := filepath.Join(outputDir, baseName+".m3u8")
	segments := filepath.Join(outputDir, baseName+"_%03d.ts")
	args := []string{
		"-y",
		"-i", input,
		"-vf", scaleFilter,
		"-c:a", "aac", "-ar", "48000", "-b:a", "128k",
		"-c:v", "h264", "-profile:v", "main", "-crf", "20", "-g", "48", "-keyint_min", "48",
		"-sc_threshold", "0", "-b:v", "2500k", "-maxrate", "2675k", "-bufsize", "3750k",
		"-hls_time", "10", "-hls_playlist_type", "vod",
		"-hls_segment_filename", segments,
		"-progress", "pipe:1",
		manifest,
	}
	return encodePlan{args: args, manifest: manifest}
}

func buildThumbnailArgs(input, output string) []string {
	return []string{
		"-y",
		"-i", input,
		"-ss", "00:00:01",
		"-vframes", "1",
		output,
	}
}

// logWriter forwards subprocess output line by line to the structured logger.
type logWriter struct {
	logger *slog.Logger
	jobID  string
	stream string
}

func newLogWriter(logger *slog.Logger, jobID, stream string) *logWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &logWriter{logger: logger, jobID: jobID, stream: stream}
}

func (w *logWriter) Write(p []byte) (int, error) {
	total := len(p)
	for len(p) > 0 {
		idx := bytes.IndexByte(p, '\n')
		var line []byte
		if idx == -1 {
			line = p
			p = nil
		} else {
			line = p[:idx]
			p = p[idx+1:]
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		w.logger.Debug(fmt.Sprintf("ffmpeg %s", w.stream), "job_id", w.jobID, "line", string(line))
	}
	return total, nil
}

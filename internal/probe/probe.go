// Package probe extracts technical metadata from local media files by
// shelling out to ffprobe.
//
// Probing is best-effort enrichment: every failure mode (missing binary,
// non-zero exit, malformed JSON, absent fields) collapses to the zero-value
// Metadata so callers never treat a probe problem as a hard dependency.
package probe

import (
	"context"
	"encoding/json"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Metadata captures the fields the catalog can be enriched with.
type Metadata struct {
	DurationSeconds int    `json:"duration"`
	Title           string `json:"title"`
	Description     string `json:"description"`
}

// Prober inspects a local media file.
type Prober interface {
	Probe(ctx context.Context, path string) Metadata
}

// DefaultTimeout bounds a single ffprobe invocation.
const DefaultTimeout = 15 * time.Second

// FFprobe runs the ffprobe binary to extract duration and descriptive tags.
type FFprobe struct {
	binary  string
	timeout time.Duration
	logger  *slog.Logger
}

// NewFFprobe constructs a prober around the given binary path. Empty values
// fall back to "ffprobe" on PATH and DefaultTimeout.
func NewFFprobe(binary string, timeout time.Duration, logger *slog.Logger) *FFprobe {
	if strings.TrimSpace(binary) == "" {
		binary = "ffprobe"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FFprobe{binary: binary, timeout: timeout, logger: logger}
}

type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
		Tags     struct {
			Title       string `json:"title"`
			Comment     string `json:"comment"`
			Description string `json:"description"`
		} `json:"tags"`
	} `json:"format"`
}

// Probe inspects the file at path. It never returns an error; failures are
// logged and reported as zero-value Metadata.
func (p *FFprobe) Probe(ctx context.Context, path string) Metadata {
	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(probeCtx, p.binary,
		"-v", "error",
		"-show_entries", "format=duration:format_tags=title,comment,description",
		"-of", "json",
		path,
	)
	output, err := cmd.Output()
	if err != nil {
		p.logger.Warn("ffprobe failed", "path", path, "error", err)
		return Metadata{}
	}
	return parseFFprobeOutput(output, p.logger, path)
}

func parseFFprobeOutput(output []byte, logger *slog.Logger, path string) Metadata {
	var decoded ffprobeOutput
	if err := json.Unmarshal(output, &decoded); err != nil {
		if logger != nil {
			logger.Warn("ffprobe output malformed", "path", path, "error", err)
		}
		return Metadata{}
	}
	meta := Metadata{
		Title:       decoded.Format.Tags.Title,
		Description: decoded.Format.Tags.Comment,
	}
	if meta.Description == "" {
		meta.Description = decoded.Format.Tags.Description
	}
	if raw := strings.TrimSpace(decoded.Format.Duration); raw != "" {
		if seconds, err := strconv.ParseFloat(raw, 64); err == nil && seconds > 0 {
			meta.DurationSeconds = int(seconds)
		}
	}
	return meta
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context, path string) Metadata

func (f ProberFunc) Probe(ctx context.Context, path string) Metadata {
	return f(ctx, path)
}

package encode

import (
	"strconv"
	"strings"
)

const (
	encodeStartPercent = 10
	encodeSpanPercent  = 70
	encodeCapPercent   = 80
)

// progressTracker converts ffmpeg -progress output into pipeline percentages.
// Encoding occupies the 10 to 80 band; the tracker never moves backwards even
// when ffmpeg re-reports earlier timestamps after a seek.
type progressTracker struct {
	durationSeconds int
	lastPercent     int
}

func newProgressTracker(durationSeconds int) *progressTracker {
	return &progressTracker{durationSeconds: durationSeconds, lastPercent: -1}
}

// Observe parses a single ffmpeg progress line. It returns the percentage to
// report and whether the line advanced the pipeline. Malformed lines and
// lines other than out_time_ms are skipped.
func (t *progressTracker) Observe(line string) (int, bool) {
	if t.durationSeconds <= 0 {
		return 0, false
	}
	_, value, found := strings.Cut(line, "out_time_ms=")
	if !found {
		return 0, false
	}
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return 0, false
	}
	micros, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, false
	}
	elapsed := float64(micros) / 1e6
	percent := encodeStartPercent + int(elapsed/float64(t.durationSeconds)*encodeSpanPercent)
	if percent > encodeCapPercent {
		percent = encodeCapPercent
	}
	if percent <= t.lastPercent {
		return 0, false
	}
	t.lastPercent = percent
	return percent, true
}

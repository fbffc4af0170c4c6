package progress

import (
	"context"
	"time"
)

// Status describes where a transcode job sits in its lifecycle.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	// StatusUnknown is the query-time default for a missing or expired
	// record; it is never written to a store.
	StatusUnknown Status = "unknown"
)

// Record is the durable per-job progress snapshot read by pollers.
type Record struct {
	Percent int    `json:"progress"`
	Status  Status `json:"status"`
}

// Store persists per-job progress records with a bounded lifetime.
//
// Implementations must return a zero Record with StatusUnknown (and a nil
// error) when no record exists for a job, so pollers always observe a
// well-formed shape.
type Store interface {
	Set(ctx context.Context, jobID string, percent int, status Status) error
	Get(ctx context.Context, jobID string) (Record, error)
}

// DefaultTTL bounds how long an abandoned job's record survives.
const DefaultTTL = time.Hour

const keyPrefix = "video_progress:"

func recordKey(jobID string) string {
	return keyPrefix + jobID
}

func unknownRecord() Record {
	return Record{Percent: 0, Status: StatusUnknown}
}

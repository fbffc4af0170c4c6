package catalog

import "context"

// Update carries the delta pushed to the catalog when a job finishes.
// Nil pointer fields are omitted from the payload entirely; the catalog
// applies only the fields that are present.
type Update struct {
	ThumbnailPath *string `json:"thumbnail_path,omitempty"`
	ManifestPath  *string `json:"hls_path,omitempty"`
	Duration      *int    `json:"duration,omitempty"`
	Status        string  `json:"processing_status,omitempty"`
}

// Notifier delivers partial metadata updates for a job to the catalog.
//
// Implementations should be safe for concurrent use.
type Notifier interface {
	PushUpdate(ctx context.Context, jobID string, update Update) error
}

// NoopNotifier is a Notifier used in tests and in deployments where no
// catalog endpoint is configured. It performs no external calls.
type NoopNotifier struct{}

// PushUpdate implements Notifier by discarding the update.
func (NoopNotifier) PushUpdate(ctx context.Context, jobID string, update Update) error {
	return nil
}

// String helpers for building Update values at call sites.

// StringPtr returns a pointer to s.
func StringPtr(s string) *string { return &s }

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }

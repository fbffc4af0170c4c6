// Package encode runs the background VOD processing pipeline. A bounded
// worker pool drains a job queue and drives each job through metadata
// probing, HLS transcoding with live progress reporting, thumbnail capture,
// catalog notification, and optional source cleanup. Progress snapshots are
// written to a progress.Store after every stage so callers can poll the
// pipeline from outside the process.
package encode

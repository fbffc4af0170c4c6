// Package catalog pushes transcode outcomes to the external video catalog.
//
// The catalog is the system of record for video rows; this package only ever
// sends partial updates (thumbnail path, manifest path, duration, processing
// status) for a single job and never reads catalog state. Fields left nil in
// an Update are omitted so the receiving side applies only the delta.
//
// Three drivers implement the Notifier interface:
//
//   - HTTPNotifier issues PATCH requests against the catalog API.
//   - PostgresNotifier updates the catalog row directly through a pgx pool,
//     for deployments that colocate the processor with the catalog database.
//   - NoopNotifier for tests and deployments without a catalog.
//
// Push failures are expected to be logged and discarded by callers: the
// progress store, not the catalog push, is authoritative for poll-based
// progress, so a failed push never rolls a job back.
package catalog

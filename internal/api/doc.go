// Package api hosts the HTTP surface of the video processor.
//
// The handlers accept transcode jobs, report per-job progress, probe file
// metadata on demand, and front the live RTSP proxy, delegating the actual
// work to the encode, progress, probe, and live packages injected at
// construction time.
package api

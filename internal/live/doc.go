// Package live supervises the RTSP to HLS proxy sessions that make camera
// feeds playable in browsers. Each stream gets one ffmpeg remux process
// writing a rolling playlist into a per-stream directory. Sessions are
// created on first playlist request, refreshed on every access, and torn
// down by a periodic reaper once viewers stop polling.
package live

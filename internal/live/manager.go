package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/singleflight"

	"streamcove/internal/observability/metrics"
)

var (
	// ErrStartFailed reports an ffmpeg process that never produced a
	// playlist within the startup window.
	ErrStartFailed = errors.New("live: stream failed to start")
	// ErrSegmentNotFound reports a segment request for a file that does
	// not exist in the stream directory.
	ErrSegmentNotFound = errors.New("live: segment not found")
)

const (
	playlistName = "playlist.m3u8"

	// DefaultIdleTimeout matches how long a stream survives without any
	// playlist or segment access before the reaper stops it.
	DefaultIdleTimeout = 5 * time.Minute

	defaultStartPollInterval = 100 * time.Millisecond
	defaultStartPollAttempts = 20
	defaultStopGrace         = 5 * time.Second
)

type processState struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	done   chan struct{}
}

type session struct {
	proc       *processState
	sourceURL  string
	lastAccess time.Time
}

type ManagerConfig struct {
	Root         string
	FFmpegBinary string
	IdleTimeout  time.Duration
	StopGrace    time.Duration
	Metrics      *metrics.Recorder
	Logger       *slog.Logger

	// Startup polling knobs, overridable in tests.
	StartPollInterval time.Duration
	StartPollAttempts int
}

// Manager owns the live proxy sessions. All session state lives behind one
// mutex; concurrent playlist requests for the same stream collapse onto a
// single spawn via singleflight.
type Manager struct {
	root              string
	binary            string
	idleTimeout       time.Duration
	stopGrace         time.Duration
	startPollInterval time.Duration
	startPollAttempts int
	metrics           *metrics.Recorder
	logger            *slog.Logger

	now func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
	group    singleflight.Group
}

func NewManager(cfg ManagerConfig) (*Manager, error) {
	root := strings.TrimSpace(cfg.Root)
	if root == "" {
		return nil, fmt.Errorf("live: stream root is required")
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("live: resolve stream root: %w", err)
	}
	if err := os.MkdirAll(absRoot, 0o755); err != nil {
		return nil, fmt.Errorf("live: prepare stream root: %w", err)
	}
	binary := strings.TrimSpace(cfg.FFmpegBinary)
	if binary == "" {
		binary = "ffmpeg"
	}
	idleTimeout := cfg.IdleTimeout
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	stopGrace := cfg.StopGrace
	if stopGrace <= 0 {
		stopGrace = defaultStopGrace
	}
	pollInterval := cfg.StartPollInterval
	if pollInterval <= 0 {
		pollInterval = defaultStartPollInterval
	}
	pollAttempts := cfg.StartPollAttempts
	if pollAttempts <= 0 {
		pollAttempts = defaultStartPollAttempts
	}
	recorder := cfg.Metrics
	if recorder == nil {
		recorder = metrics.Default()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		root:              absRoot,
		binary:            binary,
		idleTimeout:       idleTimeout,
		stopGrace:         stopGrace,
		startPollInterval: pollInterval,
		startPollAttempts: pollAttempts,
		metrics:           recorder,
		logger:            logger,
		now:               time.Now,
		sessions:          make(map[string]*session),
	}, nil
}

func (m *Manager) streamDir(streamID string) string {
	return filepath.Join(m.root, streamID)
}

func (m *Manager) playlistPath(streamID string) string {
	return filepath.Join(m.streamDir(streamID), playlistName)
}

// GetOrCreateManifest returns the playlist path for the stream, spawning a
// proxy process when none is running. A registered session whose playlist
// has vanished is restarted. Concurrent callers for the same stream share a
// single spawn attempt.
func (m *Manager) GetOrCreateManifest(ctx context.Context, streamID, sourceURL string) (string, error) {
	if strings.TrimSpace(streamID) == "" {
		return "", fmt.Errorf("live: stream ID is required")
	}
	if strings.TrimSpace(sourceURL) == "" {
		return "", fmt.Errorf("live: source URL is required")
	}

	playlist := m.playlistPath(streamID)

	m.mu.Lock()
	if sess, ok := m.sessions[streamID]; ok {
		sess.lastAccess = m.now()
		if _, err := os.Stat(playlist); err == nil {
			m.mu.Unlock()
			return playlist, nil
		}
		// Playlist vanished underneath a live process; tear it down and
		// fall through to a fresh spawn.
		delete(m.sessions, streamID)
		proc := sess.proc
		m.mu.Unlock()
		m.logger.Warn("playlist missing for active stream, restarting", "stream_id", streamID)
		m.stopProcess(proc)
		m.metrics.LiveSessionStopped()
	} else {
		m.mu.Unlock()
	}

	result, err, _ := m.group.Do(streamID, func() (any, error) {
		return m.startSession(ctx, streamID, sourceURL)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (m *Manager) startSession(ctx context.Context, streamID, sourceURL string) (string, error) {
	// A concurrent caller may have won the singleflight slot and finished
	// already; reuse its session instead of spawning twice.
	playlist := m.playlistPath(streamID)
	m.mu.Lock()
	if sess, ok := m.sessions[streamID]; ok {
		sess.lastAccess = m.now()
		m.mu.Unlock()
		if _, err := os.Stat(playlist); err == nil {
			return playlist, nil
		}
		return "", ErrStartFailed
	}
	m.mu.Unlock()

	dir := m.streamDir(streamID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("live: prepare stream directory: %w", err)
	}
	m.clearStreamDir(dir)

	proc, err := m.spawn(streamID, sourceURL, dir)
	if err != nil {
		m.metrics.LiveSessionStartFailed()
		return "", fmt.Errorf("%w: %v", ErrStartFailed, err)
	}

	if !m.awaitPlaylist(ctx, playlist, proc) {
		m.stopProcess(proc)
		m.metrics.LiveSessionStartFailed()
		m.logger.Error("stream produced no playlist", "stream_id", streamID, "source", sourceURL)
		return "", ErrStartFailed
	}

	m.mu.Lock()
	m.sessions[streamID] = &session{proc: proc, sourceURL: sourceURL, lastAccess: m.now()}
	m.mu.Unlock()
	m.metrics.LiveSessionStarted()
	m.logger.Info("stream started", "stream_id", streamID, "source", sourceURL)
	return playlist, nil
}

func (m *Manager) clearStreamDir(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			m.logger.Warn("failed to remove stale stream file", "path", entry.Name(), "error", err)
		}
	}
}

func proxyArgs(sourceURL, dir string) []string {
	return []string{
		"-rtsp_transport", "tcp",
		"-i", sourceURL,
		"-c:v", "copy",
		"-c:a", "aac",
		"-f", "hls",
		"-hls_time", "2",
		"-hls_list_size", "3",
		"-hls_flags", "delete_segments+append_list",
		"-hls_segment_filename", filepath.Join(dir, "segment_%d.ts"),
		"-hls_start_number_source", "epoch",
		filepath.Join(dir, playlistName),
	}
}

func (m *Manager) spawn(streamID, sourceURL, dir string) (*processState, error) {
	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, m.binary, proxyArgs(sourceURL, dir)...)
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, err
	}
	proc := &processState{cmd: cmd, cancel: cancel, done: make(chan struct{})}
	go func() {
		err := cmd.Wait()
		if err != nil {
			m.logger.Debug("stream process exited", "stream_id", streamID, "error", err)
		}
		cancel()
		close(proc.done)
	}()
	return proc, nil
}

func (m *Manager) awaitPlaylist(ctx context.Context, playlist string, proc *processState) bool {
	for i := 0; i < m.startPollAttempts; i++ {
		if _, err := os.Stat(playlist); err == nil {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-proc.done:
			// No point waiting once ffmpeg is gone, but it may have
			// written the playlist just before exiting.
			_, err := os.Stat(playlist)
			return err == nil
		case <-time.After(m.startPollInterval):
		}
	}
	_, err := os.Stat(playlist)
	return err == nil
}

// GetSegment resolves a segment request to a file path, refreshing the
// session access time. Names with path separators or parent references are
// rejected outright.
func (m *Manager) GetSegment(streamID, name string) (string, error) {
	if !validSegmentName(name) {
		return "", ErrSegmentNotFound
	}

	m.mu.Lock()
	if sess, ok := m.sessions[streamID]; ok {
		sess.lastAccess = m.now()
	}
	m.mu.Unlock()

	path := filepath.Join(m.streamDir(streamID), name)
	if _, err := os.Stat(path); err != nil {
		return "", ErrSegmentNotFound
	}
	return path, nil
}

func validSegmentName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, "/\\") {
		return false
	}
	if strings.Contains(name, "..") {
		return false
	}
	return true
}

// Touch refreshes the session access time without serving anything.
func (m *Manager) Touch(streamID string) {
	m.mu.Lock()
	if sess, ok := m.sessions[streamID]; ok {
		sess.lastAccess = m.now()
	}
	m.mu.Unlock()
}

// ActiveSessions reports how many streams currently have a supervised process.
func (m *Manager) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// ReapIdle stops every session that has been idle longer than the configured
// timeout, removes its stream directory, and reports how many were reaped.
func (m *Manager) ReapIdle() int {
	cutoff := m.now().Add(-m.idleTimeout)

	m.mu.Lock()
	expired := make(map[string]*session)
	for id, sess := range m.sessions {
		if sess.lastAccess.Before(cutoff) {
			expired[id] = sess
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for id, sess := range expired {
		m.stopProcess(sess.proc)
		if err := os.RemoveAll(m.streamDir(id)); err != nil {
			m.logger.Warn("failed to remove stream directory", "stream_id", id, "error", err)
		}
		m.metrics.LiveSessionReaped()
		m.logger.Info("stopped inactive stream", "stream_id", id)
	}
	return len(expired)
}

// Shutdown stops every remaining session. Stream directories are left in
// place so a restarted process can serve stale-but-valid playlists while
// sessions respawn.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	remaining := make(map[string]*session, len(m.sessions))
	for id, sess := range m.sessions {
		remaining[id] = sess
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for id, sess := range remaining {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		m.stopProcess(sess.proc)
		m.metrics.LiveSessionStopped()
		m.logger.Info("stream stopped", "stream_id", id)
	}
	return nil
}

// stopProcess asks ffmpeg to exit cleanly and kills it after the grace
// period.
func (m *Manager) stopProcess(proc *processState) {
	if proc == nil || proc.cmd == nil || proc.cmd.Process == nil {
		return
	}
	select {
	case <-proc.done:
		return
	default:
	}
	if err := proc.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		proc.cancel()
		<-proc.done
		return
	}
	select {
	case <-proc.done:
	case <-time.After(m.stopGrace):
		proc.cancel()
		<-proc.done
	}
}

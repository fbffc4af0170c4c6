package encode

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"streamcove/internal/catalog"
	"streamcove/internal/observability/metrics"
	"streamcove/internal/probe"
	"streamcove/internal/progress"
)

// Job describes one queued VOD processing request.
type Job struct {
	ID            string
	SourcePath    string
	SkipThumbnail bool
	DeleteSource  bool
}

type RunnerConfig struct {
	Store    progress.Store
	Notifier catalog.Notifier
	Prober   probe.Prober
	Metrics  *metrics.Recorder
	Logger   *slog.Logger

	FFmpegBinary string
	UploadDir    string
	OutputRoot   string
	PublicBase   string

	Workers   int
	QueueSize int
	Timeout   time.Duration
}

// Runner drains queued jobs through the processing pipeline with a bounded
// worker pool. Jobs already in flight are dropped on re-enqueue.
type Runner struct {
	store    progress.Store
	notifier catalog.Notifier
	prober   probe.Prober
	metrics  *metrics.Recorder
	logger   *slog.Logger

	binary     string
	uploadDir  string
	outputRoot string
	publicBase string

	workers int
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	queue chan Job
	wg    sync.WaitGroup

	mu       sync.Mutex
	inFlight map[string]struct{}
	started  bool
}

const (
	defaultWorkers    = 2
	defaultQueueSize  = 64
	defaultJobTimeout = 30 * time.Minute
	defaultPublicBase = "/processed"
)

func NewRunner(cfg RunnerConfig) *Runner {
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultJobTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	binary := strings.TrimSpace(cfg.FFmpegBinary)
	if binary == "" {
		binary = "ffmpeg"
	}
	publicBase := strings.TrimSpace(cfg.PublicBase)
	if publicBase == "" {
		publicBase = defaultPublicBase
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = catalog.NoopNotifier{}
	}
	recorder := cfg.Metrics
	if recorder == nil {
		recorder = metrics.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		store:      cfg.Store,
		notifier:   notifier,
		prober:     cfg.Prober,
		metrics:    recorder,
		logger:     logger,
		binary:     binary,
		uploadDir:  cfg.UploadDir,
		outputRoot: cfg.OutputRoot,
		publicBase: publicBase,
		workers:    workers,
		timeout:    timeout,
		ctx:        ctx,
		cancel:     cancel,
		queue:      make(chan Job, queueSize),
		inFlight:   make(map[string]struct{}),
	}
}

func (r *Runner) Start() {
	if r == nil {
		return
	}
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.mu.Unlock()

	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}
}

func (r *Runner) Shutdown(ctx context.Context) error {
	if r == nil {
		return nil
	}
	r.cancel()
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Enqueue submits a job for background processing. It blocks while the queue
// is full and returns immediately once the runner is shutting down.
func (r *Runner) Enqueue(job Job) {
	if r == nil || strings.TrimSpace(job.ID) == "" {
		return
	}
	select {
	case <-r.ctx.Done():
		return
	default:
	}
	select {
	case r.queue <- job:
	case <-r.ctx.Done():
	}
}

func (r *Runner) worker() {
	defer r.wg.Done()
	for {
		select {
		case <-r.ctx.Done():
			return
		case job := <-r.queue:
			if strings.TrimSpace(job.ID) == "" {
				continue
			}
			if !r.beginWork(job.ID) {
				continue
			}
			r.process(job)
			r.finishWork(job.ID)
		}
	}
}

func (r *Runner) beginWork(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.inFlight[id]; exists {
		return false
	}
	r.inFlight[id] = struct{}{}
	return true
}

func (r *Runner) finishWork(id string) {
	r.mu.Lock()
	delete(r.inFlight, id)
	r.mu.Unlock()
}

func (r *Runner) process(job Job) {
	ctx, cancel := context.WithTimeout(r.ctx, r.timeout)
	defer cancel()

	logger := r.logger.With("job_id", job.ID)
	logger.Info("processing started", "source", job.SourcePath)
	r.metrics.TranscodeStarted()

	r.setProgress(ctx, job.ID, 0, progress.StatusProcessing)

	source := job.SourcePath
	if !filepath.IsAbs(source) {
		source = filepath.Join(r.uploadDir, source)
	}
	baseName := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))

	outputDir := filepath.Join(r.outputRoot, job.ID)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		logger.Error("failed to prepare output directory", "dir", outputDir, "error", err)
		r.fail(ctx, job.ID, logger)
		return
	}

	r.setProgress(ctx, job.ID, 5, progress.StatusProcessing)
	var duration int
	if r.prober != nil {
		duration = r.prober.Probe(ctx, source).DurationSeconds
	}

	r.setProgress(ctx, job.ID, 10, progress.StatusProcessing)
	plan := buildEncodePlan(source, outputDir, baseName)
	if err := r.runEncode(ctx, job.ID, plan, duration); err != nil {
		logger.Error("hls transcoding failed", "error", err)
		r.fail(ctx, job.ID, logger)
		return
	}
	r.setProgress(ctx, job.ID, 80, progress.StatusProcessing)
	logger.Info("hls transcoding complete")

	var thumbnailPath *string
	if !job.SkipThumbnail {
		r.setProgress(ctx, job.ID, 85, progress.StatusProcessing)
		thumbnail := filepath.Join(outputDir, baseName+".jpg")
		if err := r.runThumbnail(ctx, job.ID, source, thumbnail); err != nil {
			// A missing thumbnail is not fatal; the catalog keeps whatever
			// it already has.
			logger.Warn("thumbnail capture failed", "error", err)
		} else {
			thumbnailPath = catalog.StringPtr(r.publicPath(job.ID, filepath.Base(thumbnail)))
		}
	}
	r.setProgress(ctx, job.ID, 90, progress.StatusProcessing)

	r.setProgress(ctx, job.ID, 95, progress.StatusProcessing)
	update := catalog.Update{
		ThumbnailPath: thumbnailPath,
		ManifestPath:  catalog.StringPtr(r.publicPath(job.ID, filepath.Base(plan.manifest))),
		Duration:      catalog.IntPtr(duration),
		Status:        string(progress.StatusCompleted),
	}
	if err := r.notifier.PushUpdate(ctx, job.ID, update); err != nil {
		logger.Error("catalog update failed", "error", err)
	}

	if job.DeleteSource {
		if err := os.Remove(source); err != nil && !os.IsNotExist(err) {
			logger.Warn("failed to delete source file", "path", source, "error", err)
		}
	}

	r.setProgress(ctx, job.ID, 100, progress.StatusCompleted)
	r.metrics.TranscodeCompleted()
	logger.Info("processing finished", "duration_seconds", duration)
}

// fail resets progress to the failed state and tells the catalog the job
// went bad. The pipeline context may already be cancelled, so bookkeeping
// runs on a fresh short-lived context.
func (r *Runner) fail(_ context.Context, jobID string, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	r.setProgress(ctx, jobID, 0, progress.StatusFailed)
	update := catalog.Update{
		Duration: catalog.IntPtr(0),
		Status:   string(progress.StatusFailed),
	}
	if err := r.notifier.PushUpdate(ctx, jobID, update); err != nil {
		logger.Error("catalog failure update failed", "error", err)
	}
	r.metrics.TranscodeFailed()
}

func (r *Runner) runEncode(ctx context.Context, jobID string, plan encodePlan, duration int) error {
	cmd := exec.CommandContext(ctx, r.binary, plan.args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("attach progress pipe: %w", err)
	}
	cmd.Stderr = newLogWriter(r.logger, jobID, "stderr")
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	tracker := newProgressTracker(duration)
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		percent, ok := tracker.Observe(scanner.Text())
		if !ok {
			continue
		}
		r.setProgress(ctx, jobID, percent, progress.StatusProcessing)
	}

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg: %w", err)
	}
	return nil
}

func (r *Runner) runThumbnail(ctx context.Context, jobID, source, output string) error {
	cmd := exec.CommandContext(ctx, r.binary, buildThumbnailArgs(source, output)...)
	cmd.Stdout = newLogWriter(r.logger, jobID, "stdout")
	cmd.Stderr = newLogWriter(r.logger, jobID, "stderr")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg thumbnail: %w", err)
	}
	return nil
}

func (r *Runner) publicPath(jobID, name string) string {
	return path.Join(r.publicBase, jobID, name)
}

func (r *Runner) setProgress(ctx context.Context, jobID string, percent int, status progress.Status) {
	if r.store == nil {
		return
	}
	if err := r.store.Set(ctx, jobID, percent, status); err != nil {
		r.logger.Warn("failed to persist progress", "job_id", jobID, "percent", percent, "error", err)
	}
}

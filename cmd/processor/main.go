// Command processor starts the StreamCove video processing service: the
// background HLS transcode pipeline and the live RTSP proxy, fronted by one
// HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"streamcove/internal/api"
	"streamcove/internal/catalog"
	"streamcove/internal/encode"
	"streamcove/internal/live"
	"streamcove/internal/observability/logging"
	"streamcove/internal/observability/metrics"
	"streamcove/internal/probe"
	"streamcove/internal/progress"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address")
	token := flag.String("token", "", "bearer token required for job submission")
	uploadDir := flag.String("upload-dir", "", "directory holding uploaded source files")
	outputDir := flag.String("output-dir", "", "directory for processed HLS output")
	streamDir := flag.String("stream-dir", "", "directory for live proxy playlists and segments")
	publicBase := flag.String("public-base", "", "public path prefix reported to the catalog")
	ffmpegBinary := flag.String("ffmpeg", "", "ffmpeg binary")
	ffprobeBinary := flag.String("ffprobe", "", "ffprobe binary")
	workers := flag.Int("workers", 0, "number of concurrent transcode workers")
	queueSize := flag.Int("queue-size", 0, "transcode queue capacity")
	jobTimeout := flag.Duration("job-timeout", 0, "per-job processing timeout")
	streamIdleTimeout := flag.Duration("stream-idle-timeout", 0, "idle time before a live stream is stopped")
	reapInterval := flag.Duration("reap-interval", 0, "interval between idle stream sweeps")
	progressDriver := flag.String("progress-driver", "", "progress store driver (memory or redis)")
	redisAddr := flag.String("progress-redis-addr", "", "Redis address for the progress store")
	redisAddrs := flag.String("progress-redis-addrs", "", "comma separated Redis addresses for the progress store")
	redisUsername := flag.String("progress-redis-username", "", "Redis username for the progress store")
	redisPassword := flag.String("progress-redis-password", "", "Redis password for the progress store")
	redisMasterName := flag.String("progress-redis-sentinel-master", "", "Redis sentinel master name for the progress store")
	redisPoolSize := flag.Int("progress-redis-pool-size", 0, "maximum Redis connections for the progress store")
	redisTimeout := flag.Duration("progress-redis-timeout", 0, "timeout for Redis operations")
	redisTLSCA := flag.String("progress-redis-tls-ca", "", "path to Redis TLS CA certificate")
	redisTLSCert := flag.String("progress-redis-tls-cert", "", "path to Redis TLS client certificate")
	redisTLSKey := flag.String("progress-redis-tls-key", "", "path to Redis TLS client key")
	redisTLSServerName := flag.String("progress-redis-tls-server-name", "", "override Redis TLS server name")
	redisTLSSkipVerify := flag.Bool("progress-redis-tls-skip-verify", false, "skip Redis TLS verification")
	progressTTL := flag.Duration("progress-ttl", 0, "lifetime of per-job progress records")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "log format (json or text)")
	flag.Parse()

	logger := logging.Init(logging.Config{
		Level:  firstNonEmpty(*logLevel, os.Getenv("STREAMCOVE_LOG_LEVEL")),
		Format: firstNonEmpty(*logFormat, os.Getenv("STREAMCOVE_LOG_FORMAT")),
	})
	recorder := metrics.Default()

	listenAddr := firstNonEmpty(*addr, os.Getenv("STREAMCOVE_ADDR"), ":8002")
	authToken := firstNonEmpty(*token, os.Getenv("STREAMCOVE_TOKEN"))
	uploads := firstNonEmpty(*uploadDir, os.Getenv("STREAMCOVE_UPLOAD_DIR"), "./uploads")
	outputs := firstNonEmpty(*outputDir, os.Getenv("STREAMCOVE_OUTPUT_DIR"), "./processed_videos")
	streams := firstNonEmpty(*streamDir, os.Getenv("STREAMCOVE_STREAM_DIR"), "./streams")
	public := firstNonEmpty(*publicBase, os.Getenv("STREAMCOVE_PUBLIC_BASE"), "/processed")
	ffmpeg := firstNonEmpty(*ffmpegBinary, os.Getenv("STREAMCOVE_FFMPEG"), "ffmpeg")
	ffprobe := firstNonEmpty(*ffprobeBinary, os.Getenv("STREAMCOVE_FFPROBE"), "ffprobe")

	if err := os.MkdirAll(outputs, 0o755); err != nil {
		logger.Error("failed to prepare output directory", "dir", outputs, "error", err)
		os.Exit(1)
	}

	store, cleanup, err := buildProgressStore(progressStoreOptions{
		driver:        firstNonEmpty(*progressDriver, os.Getenv("STREAMCOVE_PROGRESS_DRIVER")),
		addr:          firstNonEmpty(*redisAddr, os.Getenv("STREAMCOVE_PROGRESS_REDIS_ADDR")),
		addrs:         firstNonEmpty(*redisAddrs, os.Getenv("STREAMCOVE_PROGRESS_REDIS_ADDRS")),
		username:      firstNonEmpty(*redisUsername, os.Getenv("STREAMCOVE_PROGRESS_REDIS_USERNAME")),
		password:      firstNonEmpty(*redisPassword, os.Getenv("STREAMCOVE_PROGRESS_REDIS_PASSWORD")),
		masterName:    firstNonEmpty(*redisMasterName, os.Getenv("STREAMCOVE_PROGRESS_REDIS_SENTINEL_MASTER")),
		poolSize:      intOrEnv(*redisPoolSize, "STREAMCOVE_PROGRESS_REDIS_POOL_SIZE", logger),
		timeout:       *redisTimeout,
		ttl:           *progressTTL,
		tlsCA:         firstNonEmpty(*redisTLSCA, os.Getenv("STREAMCOVE_PROGRESS_REDIS_TLS_CA")),
		tlsCert:       firstNonEmpty(*redisTLSCert, os.Getenv("STREAMCOVE_PROGRESS_REDIS_TLS_CERT")),
		tlsKey:        firstNonEmpty(*redisTLSKey, os.Getenv("STREAMCOVE_PROGRESS_REDIS_TLS_KEY")),
		tlsServerName: firstNonEmpty(*redisTLSServerName, os.Getenv("STREAMCOVE_PROGRESS_REDIS_TLS_SERVER_NAME")),
		tlsSkipVerify: *redisTLSSkipVerify || boolEnv("STREAMCOVE_PROGRESS_REDIS_TLS_SKIP_VERIFY", logger),
	})
	if err != nil {
		logger.Error("failed to initialise progress store", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	catalogConfig, err := catalog.LoadConfigFromEnv()
	if err != nil {
		logger.Error("invalid catalog configuration", "error", err)
		os.Exit(1)
	}
	notifier, err := catalogConfig.NewNotifier(ctx)
	if err != nil {
		logger.Error("failed to connect to catalog", "driver", catalogConfig.Driver, "error", err)
		os.Exit(1)
	}
	if closer, ok := notifier.(interface{ Close() }); ok {
		defer closer.Close()
	}
	if catalogConfig.Enabled() {
		logger.Info("catalog notifier configured", "driver", catalogConfig.Driver)
	} else {
		logger.Warn("catalog notifier disabled, processing results stay local")
	}

	prober := probe.NewFFprobe(ffprobe, 0, logging.WithComponent(logger, "probe"))

	runner := encode.NewRunner(encode.RunnerConfig{
		Store:        store,
		Notifier:     notifier,
		Prober:       prober,
		Metrics:      recorder,
		Logger:       logging.WithComponent(logger, "encode"),
		FFmpegBinary: ffmpeg,
		UploadDir:    uploads,
		OutputRoot:   outputs,
		PublicBase:   public,
		Workers:      *workers,
		QueueSize:    *queueSize,
		Timeout:      *jobTimeout,
	})
	runner.Start()

	manager, err := live.NewManager(live.ManagerConfig{
		Root:         streams,
		FFmpegBinary: ffmpeg,
		IdleTimeout:  *streamIdleTimeout,
		Metrics:      recorder,
		Logger:       logging.WithComponent(logger, "live"),
	})
	if err != nil {
		logger.Error("failed to initialise live manager", "error", err)
		os.Exit(1)
	}

	interval := *reapInterval
	if interval <= 0 {
		interval = live.DefaultReapInterval
	}
	stopReaper := live.StartReapWorker(ctx, logging.WithComponent(logger, "live"), manager, interval)
	defer stopReaper()

	router := api.NewRouter(api.RouterConfig{
		Handler: &api.Handler{
			Jobs:     runner,
			Progress: store,
			Prober:   prober,
			Streams:  manager,
		},
		Token:   authToken,
		Metrics: recorder,
		Logger:  logging.WithComponent(logger, "http"),
	})

	httpServer := &http.Server{
		Addr:              listenAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("video processor listening", "addr", listenAddr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listen failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	if err := runner.Shutdown(shutdownCtx); err != nil {
		logger.Error("worker shutdown failed", "error", err)
	}
	if err := manager.Shutdown(shutdownCtx); err != nil {
		logger.Error("stream shutdown failed", "error", err)
	}
	logger.Info("video processor stopped")
}

type progressStoreOptions struct {
	driver        string
	addr          string
	addrs         string
	username      string
	password      string
	masterName    string
	poolSize      int
	timeout       time.Duration
	ttl           time.Duration
	tlsCA         string
	tlsCert       string
	tlsKey        string
	tlsServerName string
	tlsSkipVerify bool
}

func buildProgressStore(opts progressStoreOptions) (progress.Store, func(), error) {
	driver := strings.ToLower(strings.TrimSpace(opts.driver))
	if driver == "" {
		if opts.addr != "" || opts.addrs != "" {
			driver = "redis"
		} else {
			driver = "memory"
		}
	}
	switch driver {
	case "memory":
		return progress.NewMemoryStore(opts.ttl), func() {}, nil
	case "redis":
		store, err := progress.NewRedisStore(progress.RedisConfig{
			Addr:         opts.addr,
			Addrs:        splitList(opts.addrs),
			Username:     opts.username,
			Password:     opts.password,
			MasterName:   opts.masterName,
			DialTimeout:  opts.timeout,
			ReadTimeout:  opts.timeout,
			WriteTimeout: opts.timeout,
			PoolSize:     opts.poolSize,
			TTL:          opts.ttl,
			TLS: progress.RedisTLSConfig{
				CAFile:             opts.tlsCA,
				CertFile:           opts.tlsCert,
				KeyFile:            opts.tlsKey,
				ServerName:         opts.tlsServerName,
				InsecureSkipVerify: opts.tlsSkipVerify,
			},
		})
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return nil, nil, errors.New("unknown progress driver " + strconv.Quote(driver))
	}
}

func splitList(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func intOrEnv(value int, env string, logger *slog.Logger) int {
	if value > 0 {
		return value
	}
	raw := strings.TrimSpace(os.Getenv(env))
	if raw == "" {
		return 0
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		logger.Warn("invalid integer environment value", "name", env, "value", raw, "error", err)
		return 0
	}
	return parsed
}

func boolEnv(env string, logger *slog.Logger) bool {
	raw := strings.TrimSpace(os.Getenv(env))
	if raw == "" {
		return false
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		logger.Warn("invalid boolean environment value", "name", env, "value", raw, "error", err)
		return false
	}
	return parsed
}

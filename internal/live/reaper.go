package live

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultReapInterval is how often idle sessions are checked.
const DefaultReapInterval = 10 * time.Second

type idleReaper interface {
	ReapIdle() int
}

type reapTicker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	ticker *time.Ticker
}

func (t timeTicker) C() <-chan time.Time {
	return t.ticker.C
}

func (t timeTicker) Stop() {
	t.ticker.Stop()
}

type tickerFactory func(time.Duration) reapTicker

// StartReapWorker reaps idle sessions on a fixed interval until the returned
// stop function is called or the context is cancelled.
func StartReapWorker(ctx context.Context, logger *slog.Logger, sessions idleReaper, interval time.Duration) func() {
	return startReapWorkerWithTicker(ctx, logger, sessions, interval, func(d time.Duration) reapTicker {
		return timeTicker{ticker: time.NewTicker(d)}
	})
}

func startReapWorkerWithTicker(
	ctx context.Context,
	logger *slog.Logger,
	sessions idleReaper,
	interval time.Duration,
	newTicker tickerFactory,
) func() {
	if sessions == nil || interval <= 0 {
		return func() {}
	}
	workerCtx, cancel := context.WithCancel(ctx)
	ticker := newTicker(interval)
	done := make(chan struct{})
	go func() {
		defer func() {
			ticker.Stop()
			close(done)
		}()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C():
				if reaped := sessions.ReapIdle(); reaped > 0 && logger != nil {
					logger.Info("reaped idle streams", "count", reaped)
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}

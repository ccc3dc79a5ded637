package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sakif/bookshelf/internal/metrics"
	"github.com/sakif/bookshelf/internal/repository"
)

// Janitor periodically removes sessions nobody has touched for idleTimeout.
type Janitor struct {
	sessions    repository.SessionRepository
	idleTimeout time.Duration
	interval    time.Duration
	logger      *slog.Logger
	now         func() time.Time

	once sync.Once
	done chan struct{}
	wg   sync.WaitGroup
}

func NewJanitor(sessions repository.SessionRepository, idleTimeout, interval time.Duration, logger *slog.Logger) *Janitor {
	return &Janitor{
		sessions:    sessions,
		idleTimeout: idleTimeout,
		interval:    interval,
		logger:      logger,
		now:         time.Now,
		done:        make(chan struct{}),
	}
}

// Start launches the sweep loop. Call Stop to end it.
func (j *Janitor) Start() {
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()

		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()

		for {
			select {
			case <-j.done:
				return
			case <-ticker.C:
				j.Sweep(context.Background())
			}
		}
	}()
}

// Sweep runs one pass and returns the number of sessions removed.
func (j *Janitor) Sweep(ctx context.Context) int {
	n, err := j.sessions.Sweep(ctx, j.now().Add(-j.idleTimeout))
	if err != nil {
		j.logger.Error("sweeping idle sessions", slog.String("error", err.Error()))
		return 0
	}
	if n > 0 {
		metrics.SessionsSwept.Add(float64(n))
		j.logger.Debug("swept idle sessions", slog.Int("count", n))
	}
	return n
}

// Stop ends the sweep loop and waits for it to exit. Safe to call twice.
func (j *Janitor) Stop() {
	j.once.Do(func() { close(j.done) })
	j.wg.Wait()
}

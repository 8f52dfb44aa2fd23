// Package poll runs the tender refresh on an in-process schedule, for
// deployments without an external cron hitting /cron/auto-refresh.
package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"tender-notifier/refresh"
)

// Runner runs one refresh.
type Runner interface {
	Run(ctx context.Context) (*refresh.Result, error)
}

// Monitor triggers refreshes on a cron schedule. A run that is still going
// when the next tick fires causes that tick to be skipped, including the
// immediate run Start can trigger.
type Monitor struct {
	cron     *cron.Cron
	chain    cron.Chain
	runner   Runner
	logger   *slog.Logger
	schedule string
	wg       sync.WaitGroup
	job      cron.Job

	mu      sync.Mutex
	last    *refresh.Result
	lastErr error
	lastRun time.Time
}

// New creates a monitor for schedule, e.g. "@every 6h" or "0 */4 * * *".
func New(runner Runner, schedule string, logger *slog.Logger) *Monitor {
	l := cronLogger{logger: logger}
	return &Monitor{
		cron:     cron.New(cron.WithLogger(l)),
		chain:    cron.NewChain(cron.Recover(l), cron.SkipIfStillRunning(l)),
		runner:   runner,
		logger:   logger,
		schedule: schedule,
	}
}

// Start registers the job and starts the scheduler. If runNow is set one
// refresh runs immediately so the cache is warm without waiting for a tick.
func (m *Monitor) Start(ctx context.Context, runNow bool) error {
	if m.schedule == "" {
		return errors.New("empty refresh schedule")
	}
	m.job = m.chain.Then(cron.FuncJob(func() { m.runOnce(ctx) }))
	if _, err := m.cron.AddJob(m.schedule, m.job); err != nil {
		return fmt.Errorf("add refresh schedule %q: %w", m.schedule, err)
	}
	m.cron.Start()
	m.logger.Info("Refresh scheduler started", "schedule", m.schedule)

	if runNow {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.job.Run()
		}()
	}
	return nil
}

// Stop halts the scheduler and waits for a running refresh to finish.
func (m *Monitor) Stop() {
	<-m.cron.Stop().Done()
	m.wg.Wait()
	m.logger.Info("Refresh scheduler stopped")
}

func (m *Monitor) lastOutcome() (*refresh.Result, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last, m.lastRun, m.lastErr
}

func (m *Monitor) runOnce(ctx context.Context) {
	// Check for context cancellation
	select {
	case <-ctx.Done():
		m.logger.Info("Context cancelled, skipping scheduled refresh", "error", ctx.Err())
		return
	default:
	}

	start := time.Now()
	res, err := m.runner.Run(ctx)

	m.mu.Lock()
	m.last, m.lastErr, m.lastRun = res, err, start
	m.mu.Unlock()

	if err != nil {
		m.logger.Error("Scheduled refresh failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
		return
	}
	m.logger.Info("Scheduled refresh completed",
		"tenders", res.TendersCount,
		"cache_updated", res.CacheUpdated,
		"stats_updated", res.StatsUpdated,
		"duration_ms", time.Since(start).Milliseconds())
}

// cronLogger routes cron's own logging through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append([]any{"error", err}, keysAndValues...)...)
}

package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"orderflow/internal/api"
	"orderflow/internal/config"
	"orderflow/internal/logging"
	"orderflow/internal/orders"
)

// Daemon coordinates the scheduler loops and the HTTP API and enforces
// single-instance execution.
type Daemon struct {
	cfg    *config.Config
	svc    *api.Service
	logger *slog.Logger

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	running atomic.Bool
	cancel  context.CancelFunc
	group   *errgroup.Group
}

// New constructs a daemon around svc.
func New(cfg *config.Config, svc *api.Service, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || svc == nil {
		return nil, errors.New("daemon requires config and service")
	}
	logger = logging.NewComponentLogger(logger, "daemon")
	d := &Daemon{
		cfg:      cfg,
		svc:      svc,
		logger:   logger,
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, starts the HTTP API and launches the
// scheduler loops. It returns once everything is running.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another orderflow daemon instance is already running")
	}

	if err := d.api.listen(); err != nil {
		_ = d.lock.Unlock()
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)
	wf := d.cfg.Workflow
	g.Go(func() error {
		return d.every(gctx, "timeout sweep", seconds(wf.ReaperIntervalSeconds), func(ctx context.Context) error {
			summary, err := d.svc.RunTimeoutSweep(ctx)
			if err == nil && len(summary.TimedOut)+len(summary.Warned)+len(summary.Failed) > 0 {
				d.logger.Info("timeout sweep",
					logging.Int("timed_out", len(summary.TimedOut)),
					logging.Int("warned", len(summary.Warned)),
					logging.Int("failed", len(summary.Failed)),
				)
			}
			return err
		})
	})
	g.Go(func() error {
		return d.every(gctx, "escalation", seconds(wf.EscalationIntervalSeconds), func(ctx context.Context) error {
			_, err := d.svc.RunEscalation(ctx)
			return err
		})
	})
	g.Go(func() error {
		return d.every(gctx, "outbox dispatch", seconds(wf.OutboxIntervalSeconds), func(ctx context.Context) error {
			_, err := d.svc.DispatchOutbox(ctx)
			return err
		})
	})
	g.Go(func() error {
		return d.api.serve(gctx)
	})

	d.cancel = cancel
	d.group = g
	d.running.Store(true)
	d.logger.Info("orderflow daemon started",
		logging.String("lock", d.lockPath),
		logging.String("address", d.api.addr()),
	)
	return nil
}

// Wait blocks until the loops exit and returns the first fatal error.
func (d *Daemon) Wait() error {
	if d.group == nil {
		return nil
	}
	return d.group.Wait()
}

// Stop stops the loops and the API and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.Wait(); err != nil {
		d.logger.Warn("daemon loop exited with error", logging.Error(err))
	}
	d.group = nil
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("orderflow daemon stopped")
}

// Running reports whether the daemon holds its lock and runs its loops.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Addr returns the address the API listens on, or "" before Start.
func (d *Daemon) Addr() string {
	return d.api.addr()
}

// Status returns engine state with daemon runtime details.
func (d *Daemon) Status(ctx context.Context) (api.StatusResponse, error) {
	status, err := d.svc.Status(ctx)
	if err != nil {
		return api.StatusResponse{}, err
	}
	status.Running = d.running.Load()
	if status.Running {
		status.PID = os.Getpid()
	}
	return status, nil
}

// every runs fn immediately and then on each tick until ctx ends. Failures
// are logged and never stop the loop.
func (d *Daemon) every(ctx context.Context, name string, interval time.Duration, fn func(context.Context) error) error {
	if interval <= 0 {
		d.logger.Info("scheduler loop disabled", logging.String("loop", name))
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := fn(ctx); err != nil && ctx.Err() == nil {
			if errors.Is(err, orders.ErrSweepInProgress) {
				d.logger.Debug("loop skipped, another sweep holds the lock", logging.String("loop", name))
			} else {
				logging.WarnWithContext(d.logger, name+" failed", "scheduler_loop_failed",
					logging.String("loop", name),
					logging.Error(err),
					logging.String(logging.FieldImpact, "retried on the next tick"),
				)
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

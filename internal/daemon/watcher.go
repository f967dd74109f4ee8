// Package daemon implements the foreground watcher daemon.
package daemon

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
)

// WatcherConfig holds watcher daemon configuration.
type WatcherConfig struct {
	HeartbeatInterval time.Duration // How often to update heartbeat
}

// DefaultWatcherConfig returns default watcher configuration.
func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{
		HeartbeatInterval: 30 * time.Second,
	}
}

// Watcher consumes foreground events and enforces lock rules.
// Each admitted event is evaluated on its own goroutine; evaluations may
// overlap and carry no ordering guarantee between them.
type Watcher struct {
	config   WatcherConfig
	source   domain.EventSource
	enforcer domain.Enforcer
	registry domain.DaemonRegistry
	logger   *zap.Logger
	daemon   domain.Daemon

	inflight sync.WaitGroup
}

// NewWatcher creates a new watcher daemon. registry may be nil for
// foreground runs that should not show up in status.
func NewWatcher(
	config WatcherConfig,
	source domain.EventSource,
	enforcer domain.Enforcer,
	registry domain.DaemonRegistry,
	daemon domain.Daemon,
	logger *zap.Logger,
) *Watcher {
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = DefaultWatcherConfig().HeartbeatInterval
	}
	return &Watcher{
		config:   config,
		source:   source,
		enforcer: enforcer,
		registry: registry,
		daemon:   daemon,
		logger:   logger,
	}
}

// Run starts the watcher loop. It returns ctx.Err() when ctx is canceled,
// or nil when the event source is exhausted. In-flight evaluations are
// waited for before returning.
func (w *Watcher) Run(ctx context.Context) error {
	if w.registry != nil {
		if err := w.registry.Register(w.daemon); err != nil {
			w.logger.Error("failed to register watcher", zap.Error(err))
			return err
		}
	}

	events, err := w.source.Events(ctx)
	if err != nil {
		w.logger.Error("failed to open event source", zap.Error(err))
		return err
	}

	w.logger.Info("watcher daemon started",
		zap.Int("pid", w.daemon.PID),
		zap.String("version", w.daemon.AppVersion))

	heartbeatTicker := time.NewTicker(w.config.HeartbeatInterval)
	defer heartbeatTicker.Stop()
	defer w.wait()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher daemon stopping")
			return ctx.Err()

		case ev, ok := <-events:
			if !ok {
				w.logger.Info("event source closed, watcher stopping")
				return nil
			}
			w.dispatch(ctx, ev)

		case <-heartbeatTicker.C:
			if w.registry == nil {
				continue
			}
			if err := w.registry.UpdateHeartbeat(domain.RoleWatcher); err != nil {
				w.logger.Warn("failed to update heartbeat", zap.Error(err))
			}
		}
	}
}

// dispatch gates ev on the loop goroutine so throttle decisions follow
// arrival order, then evaluates it concurrently.
func (w *Watcher) dispatch(ctx context.Context, ev domain.ForegroundEvent) {
	if !w.enforcer.Admit(ev) {
		return
	}

	w.inflight.Add(1)
	go func() {
		defer w.inflight.Done()
		w.evaluate(ctx, ev)
	}()
}

func (w *Watcher) evaluate(ctx context.Context, ev domain.ForegroundEvent) {
	result, err := w.enforcer.Enforce(ctx, ev)
	if err != nil {
		w.logger.Error("enforcement failed",
			zap.String("package", ev.PackageName),
			zap.Error(err))
		return
	}
	if result == nil || !result.RuleFound {
		return
	}

	if result.Outcome.Action.IsBlock() {
		w.logger.Info("enforcement completed",
			zap.String("package", result.PackageName),
			zap.String("action", string(result.Outcome.Action)),
			zap.Strings("criteria", result.Outcome.MatchedCriteria),
			zap.Bool("log_queued", result.LogQueued),
			zap.Int64("duration_ms", result.DurationMs))
		return
	}
	w.logger.Debug("enforcement completed",
		zap.String("package", result.PackageName),
		zap.String("action", string(result.Outcome.Action)))
}

// wait blocks until in-flight evaluations and their activity reports finish.
func (w *Watcher) wait() {
	w.inflight.Wait()
	if waiter, ok := w.enforcer.(interface{ Wait() }); ok {
		waiter.Wait()
	}
}

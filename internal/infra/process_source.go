package infra

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
)

// ProcessSourceConfig configures process polling.
type ProcessSourceConfig struct {
	PollInterval time.Duration
	BufferSize   int
}

// DefaultProcessSourceConfig returns the default polling configuration.
func DefaultProcessSourceConfig() ProcessSourceConfig {
	return ProcessSourceConfig{
		PollInterval: 2 * time.Second,
		BufferSize:   64,
	}
}

// ProcessEventSource turns running processes into foreground events.
// A tracked process that appears since the last poll yields a primary
// event; one that is still running yields a secondary event.
type ProcessEventSource struct {
	config         ProcessSourceConfig
	processManager domain.ProcessManager
	rules          domain.RuleRepository
	logger         *zap.Logger
	now            func() time.Time
}

// NewProcessEventSource creates a polling event source.
func NewProcessEventSource(
	config ProcessSourceConfig,
	pm domain.ProcessManager,
	rules domain.RuleRepository,
	logger *zap.Logger,
) *ProcessEventSource {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultProcessSourceConfig().PollInterval
	}
	return &ProcessEventSource{
		config:         config,
		processManager: pm,
		rules:          rules,
		logger:         logger,
		now:            time.Now,
	}
}

// Events starts polling and returns the event channel. The channel is
// closed when ctx is canceled.
func (s *ProcessEventSource) Events(ctx context.Context) (<-chan domain.ForegroundEvent, error) {
	out := make(chan domain.ForegroundEvent, s.config.BufferSize)

	go func() {
		defer close(out)

		ticker := time.NewTicker(s.config.PollInterval)
		defer ticker.Stop()

		running := make(map[string]bool)
		for {
			running = s.poll(ctx, running, out)

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return out, nil
}

// poll emits events for tracked processes and returns the new running set.
func (s *ProcessEventSource) poll(ctx context.Context, previous map[string]bool, out chan<- domain.ForegroundEvent) map[string]bool {
	tracked, err := s.trackedNames(ctx)
	if err != nil {
		s.logger.Warn("failed to list tracked apps", zap.Error(err))
		return previous
	}
	if len(tracked) == 0 {
		return map[string]bool{}
	}

	names, err := s.processManager.ListNames()
	if err != nil {
		s.logger.Warn("failed to list processes", zap.Error(err))
		return previous
	}

	current := make(map[string]bool)
	at := s.now()
	for _, name := range names {
		pkg, ok := tracked[strings.ToLower(name)]
		if !ok || current[pkg] {
			continue
		}
		current[pkg] = true

		kind := domain.EventPrimary
		if previous[pkg] {
			kind = domain.EventSecondary
		}

		select {
		case out <- domain.ForegroundEvent{Kind: kind, PackageName: pkg, At: at}:
		case <-ctx.Done():
			return current
		}
	}
	return current
}

// trackedNames maps lowercased process names to rule package names.
func (s *ProcessEventSource) trackedNames(ctx context.Context) (map[string]string, error) {
	rules, err := s.rules.ListRules(ctx)
	if err != nil {
		return nil, err
	}
	tracked := make(map[string]string, len(rules))
	for _, r := range rules {
		tracked[strings.ToLower(r.PackageName)] = r.PackageName
	}
	return tracked, nil
}

// Ensure ProcessEventSource implements domain.EventSource.
var _ domain.EventSource = (*ProcessEventSource)(nil)

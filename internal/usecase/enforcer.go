// Package usecase contains application business logic.
package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
	"github.com/eliteGoblin/focusd/app_lock/internal/policy"
)

// EnforcerImpl implements domain.Enforcer.
// Pipeline: throttle gate -> rule lookup -> resolve -> dispatch.
type EnforcerImpl struct {
	gate       *ThrottleGate
	ruleStore  domain.RuleStore
	dispatcher *Dispatcher
	logger     *zap.Logger
}

// NewEnforcer creates a new enforcement pipeline.
func NewEnforcer(
	gate *ThrottleGate,
	rs domain.RuleStore,
	dispatcher *Dispatcher,
	logger *zap.Logger,
) *EnforcerImpl {
	return &EnforcerImpl{
		gate:       gate,
		ruleStore:  rs,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Admit applies the throttle policy to event.
func (e *EnforcerImpl) Admit(event domain.ForegroundEvent) bool {
	if event.PackageName == "" {
		return false
	}
	return e.gate.Admit(event.Kind, event.At)
}

// Enforce evaluates an admitted event against the stored rule and acts on
// the outcome. An untracked package produces no action and no report.
// A malformed rule fails open and is only logged.
func (e *EnforcerImpl) Enforce(ctx context.Context, event domain.ForegroundEvent) (*domain.EnforcementResult, error) {
	start := time.Now()

	result := &domain.EnforcementResult{
		PackageName: event.PackageName,
		Outcome:     domain.DecisionOutcome{Action: domain.ActionNone},
		ExecutedAt:  start,
	}

	rule, err := e.ruleStore.GetRule(ctx, event.PackageName)
	if err != nil {
		result.DurationMs = time.Since(start).Milliseconds()
		return result, fmt.Errorf("failed to load rule for %s: %w", event.PackageName, err)
	}
	if rule == nil {
		result.DurationMs = time.Since(start).Milliseconds()
		return result, nil
	}
	result.RuleFound = true

	outcome, err := policy.Resolve(*rule, event.At)
	if err != nil {
		e.logger.Warn("malformed lock rule, treating as unlocked",
			zap.String("package", rule.PackageName),
			zap.Error(err))
	}
	outcome.ShouldLog = event.Kind == domain.EventPrimary

	result.Outcome = outcome
	result.Dispatched, result.LogQueued = e.dispatcher.Dispatch(ctx, outcome, rule.Identity())
	result.DurationMs = time.Since(start).Milliseconds()

	e.logger.Debug("evaluated foreground event",
		zap.String("package", event.PackageName),
		zap.String("kind", string(event.Kind)),
		zap.String("action", string(outcome.Action)),
		zap.Bool("log", outcome.ShouldLog))

	return result, nil
}

// Handle runs the throttle gate and, if admitted, the pipeline.
// It returns nil, nil for dropped events.
func (e *EnforcerImpl) Handle(ctx context.Context, event domain.ForegroundEvent) (*domain.EnforcementResult, error) {
	if !e.Admit(event) {
		return nil, nil
	}
	return e.Enforce(ctx, event)
}

// Wait blocks until pending activity reports are done.
func (e *EnforcerImpl) Wait() {
	e.dispatcher.Wait()
}

// Ensure EnforcerImpl implements domain.Enforcer.
var _ domain.Enforcer = (*EnforcerImpl)(nil)

package usecase

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
)

// Dispatcher turns a decision outcome into collaborator calls.
// Activity reports run on their own goroutine and are never retried;
// their failures are only logged.
type Dispatcher struct {
	lockScreen  domain.LockScreen
	activityLog domain.ActivityLogger
	session     domain.SessionStore
	selfPackage string
	logger      *zap.Logger

	reports sync.WaitGroup
}

// NewDispatcher creates a dispatcher.
// selfPackage is this monitor's own identifier; its activity is never reported.
// activityLog and session may be nil, which disables reporting.
func NewDispatcher(
	lockScreen domain.LockScreen,
	activityLog domain.ActivityLogger,
	session domain.SessionStore,
	selfPackage string,
	logger *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		lockScreen:  lockScreen,
		activityLog: activityLog,
		session:     session,
		selfPackage: selfPackage,
		logger:      logger,
	}
}

// Dispatch acts on outcome for target. It returns whether a lock screen was
// shown and whether an activity report was queued.
func (d *Dispatcher) Dispatch(ctx context.Context, outcome domain.DecisionOutcome, target domain.ApplicationIdentity) (dispatched, logQueued bool) {
	if outcome.ShouldLog && target.PackageName != d.selfPackage {
		logQueued = d.report(ctx, target, outcome.LogMessage)
	}

	var err error
	switch outcome.Action {
	case domain.ActionBlockPermanent:
		err = d.lockScreen.ShowPermanentLock(ctx, target)
		dispatched = true
	case domain.ActionBlockScheduled:
		err = d.lockScreen.ShowScheduledLock(ctx, target, outcome.MatchedCriteria)
		dispatched = true
	}

	if err != nil {
		d.logger.Warn("failed to show lock screen",
			zap.String("package", target.PackageName),
			zap.String("action", string(outcome.Action)),
			zap.Error(err))
	} else if dispatched {
		d.logger.Info("locked application",
			zap.String("package", target.PackageName),
			zap.String("action", string(outcome.Action)),
			zap.Strings("criteria", outcome.MatchedCriteria))
	}

	return dispatched, logQueued
}

// Wait blocks until all queued activity reports have finished.
func (d *Dispatcher) Wait() {
	d.reports.Wait()
}

func (d *Dispatcher) report(ctx context.Context, target domain.ApplicationIdentity, message string) bool {
	if d.activityLog == nil || d.session == nil {
		return false
	}

	token, err := d.session.AuthToken()
	if err != nil || token == "" {
		// Not logged in: reporting is skipped without noise.
		return false
	}

	deviceID, err := d.session.DeviceID()
	if err != nil {
		d.logger.Debug("device id unavailable, skipping activity report", zap.Error(err))
		return false
	}

	entry := domain.ActivityEntry{
		DeviceID:    deviceID,
		Name:        target.DisplayName,
		PackageName: target.PackageName,
		Description: message,
	}

	reportCtx := context.WithoutCancel(ctx)
	d.reports.Add(1)
	go func() {
		defer d.reports.Done()

		status, err := d.activityLog.LogActivity(reportCtx, token, entry)
		if err != nil {
			d.logger.Warn("activity sync failed",
				zap.String("package", entry.PackageName),
				zap.Error(err))
			return
		}
		statusText := ""
		if status != nil {
			statusText = status.Status
		}
		d.logger.Debug("activity synced",
			zap.String("device_id", entry.DeviceID),
			zap.String("package", entry.PackageName),
			zap.String("status", statusText))
	}()

	return true
}

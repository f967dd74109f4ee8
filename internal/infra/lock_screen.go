package infra

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
)

// ProcessLockScreen is the desktop lock collaborator. There is no overlay
// window to show, so a lock terminates the target's processes and logs
// the message the overlay would have displayed.
type ProcessLockScreen struct {
	processManager domain.ProcessManager
	logger         *zap.Logger
}

// NewProcessLockScreen creates a lock screen backed by process termination.
func NewProcessLockScreen(pm domain.ProcessManager, logger *zap.Logger) *ProcessLockScreen {
	return &ProcessLockScreen{processManager: pm, logger: logger}
}

// ShowPermanentLock blocks target indefinitely.
func (l *ProcessLockScreen) ShowPermanentLock(ctx context.Context, target domain.ApplicationIdentity) error {
	killed, err := l.terminate(target)
	l.logger.Info("app locked",
		zap.String("package", target.PackageName),
		zap.String("name", target.DisplayName),
		zap.String("lock", "permanent"),
		zap.Ints("killed_pids", killed))
	return err
}

// ShowScheduledLock blocks target and reports the matching criteria.
func (l *ProcessLockScreen) ShowScheduledLock(ctx context.Context, target domain.ApplicationIdentity, criteria []string) error {
	killed, err := l.terminate(target)
	l.logger.Info("app locked",
		zap.String("package", target.PackageName),
		zap.String("name", target.DisplayName),
		zap.String("lock", "scheduled"),
		zap.String("locked_during", strings.Join(criteria, domain.LockDatesSeparator)),
		zap.Ints("killed_pids", killed))
	return err
}

func (l *ProcessLockScreen) terminate(target domain.ApplicationIdentity) ([]int, error) {
	pids, err := l.processManager.FindByName(target.PackageName)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", target.PackageName, err)
	}

	self := l.processManager.GetCurrentPID()
	var killed []int
	var firstErr error
	for _, pid := range pids {
		if pid == self {
			continue
		}
		if err := l.processManager.Kill(pid); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("kill %d: %w", pid, err)
			}
			continue
		}
		killed = append(killed, pid)
	}
	return killed, firstErr
}

// Ensure ProcessLockScreen implements domain.LockScreen.
var _ domain.LockScreen = (*ProcessLockScreen)(nil)

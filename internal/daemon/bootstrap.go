package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
)

// StaleHeartbeat is how old a heartbeat may get before the watcher is
// reported as unresponsive.
const StaleHeartbeat = 2 * time.Minute

// StartDaemon spawns the watcher daemon from the current executable.
func StartDaemon(extraArgs ...string) error {
	executable, err := os.Executable()
	if err != nil {
		return err
	}
	return StartDaemonWithPath(executable, extraArgs...)
}

// StartDaemonWithPath spawns "<executable> daemon [extraArgs...]" detached
// from the parent process (runs independently).
func StartDaemonWithPath(executable string, extraArgs ...string) error {
	cmd := daemonCommand(executable, extraArgs...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	// Do not wait; the child outlives us.
	return cmd.Process.Release()
}

func daemonCommand(executable string, extraArgs ...string) *exec.Cmd {
	args := append([]string{"daemon"}, extraArgs...)
	cmd := exec.Command(executable, args...)

	// Create new session (detach from terminal)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}

	// No stdin/stdout/stderr - fully detached
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	return cmd
}

// WatcherStatus describes the registered watcher.
type WatcherStatus struct {
	Entry   *domain.RegistryEntry
	Running bool
	Stale   bool
}

// GetWatcherStatus reads the registry and checks the watcher's PID.
func GetWatcherStatus(registry domain.DaemonRegistry, pm domain.ProcessManager, now time.Time) (WatcherStatus, error) {
	entry, err := registry.GetAll()
	if err != nil {
		return WatcherStatus{}, err
	}
	if entry == nil {
		return WatcherStatus{}, nil
	}

	status := WatcherStatus{
		Entry:   entry,
		Running: pm.IsRunning(entry.WatcherPID),
	}
	if status.Running {
		status.Stale = now.Sub(time.Unix(entry.LastHeartbeat, 0)) > StaleHeartbeat
	}
	return status, nil
}

package domain

import "context"

// RuleStore is the read side of rule persistence used by enforcement.
type RuleStore interface {
	// GetRule returns the rule for a package, or nil when none is tracked.
	GetRule(ctx context.Context, packageName string) (*TrackedAppRule, error)
}

// RuleRepository adds the write side used by the scheduling commands.
// Enforcement never writes rules.
type RuleRepository interface {
	RuleStore

	// SaveRule inserts or replaces the rule for rule.PackageName.
	SaveRule(ctx context.Context, rule TrackedAppRule) error

	// DeleteRule stops tracking a package.
	DeleteRule(ctx context.Context, packageName string) error

	// ListRules returns all tracked rules ordered by package name.
	ListRules(ctx context.Context) ([]TrackedAppRule, error)
}

// LockScreen is the collaborator that takes the user away from a blocked app.
type LockScreen interface {
	// ShowPermanentLock shows the unconditional lock screen.
	ShowPermanentLock(ctx context.Context, target ApplicationIdentity) error

	// ShowScheduledLock shows the scheduled lock screen with the criteria
	// that matched (dates, weekdays, or start/end times).
	ShowScheduledLock(ctx context.Context, target ApplicationIdentity, criteria []string) error
}

// ActivityLogger reports activity to the remote server.
type ActivityLogger interface {
	LogActivity(ctx context.Context, token string, entry ActivityEntry) (*ActivityStatus, error)
}

// SessionStore exposes the credentials of the guardian session.
type SessionStore interface {
	// AuthToken returns the bearer token, or "" when nobody is logged in.
	AuthToken() (string, error)

	// DeviceID returns the stable identifier of this device.
	DeviceID() (string, error)
}

// EventSource produces foreground events until ctx is canceled.
type EventSource interface {
	Events(ctx context.Context) (<-chan ForegroundEvent, error)
}

// ProcessManager handles OS process operations.
// Implementation: uses gopsutil for cross-platform support.
type ProcessManager interface {
	// ListNames returns the names of all running processes.
	ListNames() ([]string, error)

	// FindByName returns PIDs of processes matching the pattern.
	FindByName(pattern string) ([]int, error)

	// Kill terminates a process by PID (SIGKILL).
	Kill(pid int) error

	// IsRunning checks if a PID exists and is running.
	IsRunning(pid int) bool

	// GetCurrentPID returns the current process PID.
	GetCurrentPID() int
}

// DaemonRegistry records the running watcher for the status command.
type DaemonRegistry interface {
	Register(daemon Daemon) error
	UpdateHeartbeat(role DaemonRole) error
	GetAll() (*RegistryEntry, error)
	Clear() error
}

// KeyProvider abstracts the source of the store encryption key.
type KeyProvider interface {
	GetKey() ([]byte, error)
	StoreKey(key []byte) error
	KeyExists() bool
}

// SecretStore provides encrypted persistent storage for secrets.
type SecretStore interface {
	GetSecret(key string) (string, error)
	SetSecret(key, value string) error
	GetAllSecrets() (map[string]string, error)
	Close() error
}

// Enforcer runs the decision pipeline for foreground events.
type Enforcer interface {
	// Admit applies the throttle policy to an event.
	Admit(event ForegroundEvent) bool

	// Enforce evaluates an admitted event and dispatches the outcome.
	Enforce(ctx context.Context, event ForegroundEvent) (*EnforcementResult, error)
}

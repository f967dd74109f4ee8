// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import (
	"strings"
	"time"
)

const (
	// DateLayout is the storage format of every lock date entry.
	DateLayout = "2006-01-02"

	// LockDatesSeparator joins lock dates in storage ("2024-03-15, 2024-03-20").
	LockDatesSeparator = ", "

	// DefaultThrottleDelay bounds how often secondary events are evaluated.
	DefaultThrottleDelay = 3 * time.Second
)

// Activity log messages sent to the remote server.
const (
	LogMessageBlocked = "[Warning] Attempt to open locked application"
	LogMessageOpened  = "[Info] Opening application"
)

// RecurrenceMode decides how the entries of TrackedAppRule.LockDates are read.
type RecurrenceMode string

const (
	// RecurrenceOneShot compares each entry literally with today's date.
	RecurrenceOneShot RecurrenceMode = "one_shot"
	// RecurrenceByDate repeats every month on the entry's day-of-month.
	RecurrenceByDate RecurrenceMode = "repeat_by_date"
	// RecurrenceByWeekday repeats every week on the entry's weekday.
	RecurrenceByWeekday RecurrenceMode = "repeat_by_weekday"
)

// ParseRecurrenceMode maps a stored mode to a RecurrenceMode.
// The labels written by the mobile scheduling screen (TIME_ONLY, DATE, DAY)
// are accepted as aliases. An empty value means one-shot.
func ParseRecurrenceMode(s string) (RecurrenceMode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "one_shot", "time_only":
		return RecurrenceOneShot, true
	case "repeat_by_date", "date":
		return RecurrenceByDate, true
	case "repeat_by_weekday", "day":
		return RecurrenceByWeekday, true
	default:
		return RecurrenceMode(s), false
	}
}

// TrackedAppRule is the lock configuration of one monitored application.
// It is written by the scheduling side and only read by enforcement.
type TrackedAppRule struct {
	PackageName   string         `json:"package_name" yaml:"package_name"`
	DisplayName   string         `json:"display_name" yaml:"display_name,omitempty"`
	PermanentLock bool           `json:"permanent_lock" yaml:"permanent_lock,omitempty"`
	LockDates     []string       `json:"lock_dates,omitempty" yaml:"lock_dates,omitempty"`
	LockStartTime string         `json:"lock_start_time,omitempty" yaml:"lock_start_time,omitempty"` // HH:MM, 24h
	LockEndTime   string         `json:"lock_end_time,omitempty" yaml:"lock_end_time,omitempty"`     // HH:MM, 24h
	Recurrence    RecurrenceMode `json:"recurrence,omitempty" yaml:"recurrence,omitempty"`
	UpdatedAt     time.Time      `json:"updated_at,omitempty" yaml:"-"`
}

// HasDateRule reports whether the date list is the active rule.
func (r TrackedAppRule) HasDateRule() bool {
	return len(r.LockDates) > 0
}

// HasTimeRule reports whether both window bounds are set.
func (r TrackedAppRule) HasTimeRule() bool {
	return r.LockStartTime != "" && r.LockEndTime != ""
}

// Identity returns the application identity used by collaborators.
func (r TrackedAppRule) Identity() ApplicationIdentity {
	return ApplicationIdentity{PackageName: r.PackageName, DisplayName: r.DisplayName}
}

// SplitLockDates decodes the stored comma-space delimited date list.
func SplitLockDates(stored string) []string {
	if stored == "" {
		return nil
	}
	return strings.Split(stored, LockDatesSeparator)
}

// JoinLockDates encodes a date list for storage.
func JoinLockDates(dates []string) string {
	return strings.Join(dates, LockDatesSeparator)
}

// ApplicationIdentity identifies the application an action targets.
type ApplicationIdentity struct {
	PackageName string
	DisplayName string
}

// DecisionAction is what enforcement should do with the foreground app.
type DecisionAction string

const (
	ActionNone           DecisionAction = "none"
	ActionBlockPermanent DecisionAction = "block_permanent"
	ActionBlockScheduled DecisionAction = "block_scheduled"
)

// IsBlock reports whether the action redirects to a lock screen.
func (a DecisionAction) IsBlock() bool {
	return a == ActionBlockPermanent || a == ActionBlockScheduled
}

// DecisionOutcome is the result of evaluating one rule at one instant.
// It is never persisted.
type DecisionOutcome struct {
	Action          DecisionAction
	MatchedCriteria []string
	ShouldLog       bool
	LogMessage      string
}

// EventKind classifies an OS foreground signal.
type EventKind string

const (
	// EventPrimary is a window/foreground state change.
	EventPrimary EventKind = "primary"
	// EventSecondary is a content change inside the current window.
	EventSecondary EventKind = "secondary"
	// EventOther is anything else; it is ignored.
	EventOther EventKind = "other"
)

// ForegroundEvent is one signal from the event source.
type ForegroundEvent struct {
	Kind        EventKind
	PackageName string
	At          time.Time
}

// ActivityEntry is the payload reported to the activity server.
type ActivityEntry struct {
	DeviceID    string `json:"deviceId"`
	Name        string `json:"name"`
	PackageName string `json:"packageName"`
	Description string `json:"description"`
}

// ActivityStatus is the server's reply to an activity report.
type ActivityStatus struct {
	Status string `json:"status"`
}

// EnforcementResult captures what happened for a single evaluated event.
type EnforcementResult struct {
	PackageName string
	Outcome     DecisionOutcome
	RuleFound   bool
	Dispatched  bool // a lock collaborator was invoked
	LogQueued   bool // an activity report was handed to the logger
	ExecutedAt  time.Time
	DurationMs  int64
}

// DaemonRole identifies the type of daemon process.
type DaemonRole string

const (
	RoleWatcher DaemonRole = "watcher"
)

// Daemon represents a running daemon process.
type Daemon struct {
	PID        int
	Role       DaemonRole
	StartedAt  time.Time
	AppVersion string
}

// RegistryEntry is the persisted state of the running watcher.
type RegistryEntry struct {
	WatcherPID    int    `json:"watcher_pid"`
	LastHeartbeat int64  `json:"last_heartbeat"`
	StartedAt     int64  `json:"started_at"`
	Mode          string `json:"mode,omitempty"`
	AppVersion    string `json:"app_version,omitempty"`
}

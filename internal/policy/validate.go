package policy

import (
	"fmt"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
)

// ValidateRule rejects rules the resolver would fail open on. Enforcement
// tolerates malformed stored data; the scheduling side should not write it.
func ValidateRule(rule domain.TrackedAppRule) error {
	if rule.PackageName == "" {
		return fmt.Errorf("package name is required")
	}

	if (rule.LockStartTime == "") != (rule.LockEndTime == "") {
		return fmt.Errorf("lock start and end time must be set together")
	}
	if rule.HasTimeRule() {
		if _, err := ParseTimeOfDay(rule.LockStartTime); err != nil {
			return err
		}
		if _, err := ParseTimeOfDay(rule.LockEndTime); err != nil {
			return err
		}
	}

	if _, ok := domain.ParseRecurrenceMode(string(rule.Recurrence)); !ok {
		return &domain.ParseError{Field: "recurrence", Value: string(rule.Recurrence)}
	}
	for _, entry := range rule.LockDates {
		if _, err := parseLockDate(entry); err != nil {
			return err
		}
	}
	return nil
}

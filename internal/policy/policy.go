// Package policy decides whether a tracked application is locked right now.
// Rules are evaluated in a fixed priority: date list, then time window,
// then the permanent flag. The first variant that is configured decides;
// a configured variant that does not match does not fall through.
package policy

import (
	"time"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
)

// Resolve evaluates rule at now.
//
// A non-empty date list is the active rule even when today is not one of
// its dates, which silences a time window or permanent lock set on the
// same app. This mirrors how the scheduling screen stores rules.
//
// A malformed time or date fails open: the outcome is ActionNone and the
// parse error is returned for the caller to log.
func Resolve(rule domain.TrackedAppRule, now time.Time) (domain.DecisionOutcome, error) {
	switch {
	case rule.HasDateRule():
		matched, display, err := EvaluateRecurrence(rule.Recurrence, rule.LockDates, now)
		if err != nil {
			return unlocked(), err
		}
		if matched {
			return blocked(domain.ActionBlockScheduled, display), nil
		}
		return unlocked(), nil

	case rule.HasTimeRule():
		matched, err := WithinTimeRange(rule.LockStartTime, rule.LockEndTime, now)
		if err != nil {
			return unlocked(), err
		}
		if matched {
			return blocked(domain.ActionBlockScheduled, []string{rule.LockStartTime, rule.LockEndTime}), nil
		}
		return unlocked(), nil

	case rule.PermanentLock:
		return blocked(domain.ActionBlockPermanent, nil), nil

	default:
		return unlocked(), nil
	}
}

func blocked(action domain.DecisionAction, criteria []string) domain.DecisionOutcome {
	return domain.DecisionOutcome{
		Action:          action,
		MatchedCriteria: criteria,
		LogMessage:      domain.LogMessageBlocked,
	}
}

func unlocked() domain.DecisionOutcome {
	return domain.DecisionOutcome{
		Action:     domain.ActionNone,
		LogMessage: domain.LogMessageOpened,
	}
}

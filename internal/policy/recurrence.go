package policy

import (
	"fmt"
	"time"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
)

// EvaluateRecurrence decides whether today matches a stored date list.
// It also returns the list the scheduled lock screen displays.
//
//   - one-shot: literal string comparison with today's date, no parsing
//   - by date: every entry is parsed; day-of-month must match
//   - by weekday: every entry is parsed; weekday must match
//
// Modes are normalized with domain.ParseRecurrenceMode first, so an empty
// mode is one-shot and the scheduling screen's labels are accepted.
// Unknown modes never match. Any unparsable entry in a repeating mode
// fails the whole evaluation.
func EvaluateRecurrence(mode domain.RecurrenceMode, storedDates []string, today time.Time) (bool, []string, error) {
	if len(storedDates) == 0 {
		return false, []string{}, nil
	}
	if parsed, ok := domain.ParseRecurrenceMode(string(mode)); ok {
		mode = parsed
	}

	switch mode {
	case domain.RecurrenceOneShot:
		formatted := today.Format(domain.DateLayout)
		matched := false
		for _, entry := range storedDates {
			if entry == formatted {
				matched = true
			}
		}
		display := make([]string, len(storedDates))
		copy(display, storedDates)
		return matched, display, nil

	case domain.RecurrenceByDate:
		matched := false
		display := make([]string, 0, len(storedDates))
		for _, entry := range storedDates {
			date, err := parseLockDate(entry)
			if err != nil {
				return false, nil, err
			}
			if date.Day() == today.Day() {
				matched = true
			}
			display = append(display, fmt.Sprintf("%s %d", today.Month(), date.Day()))
		}
		return matched, display, nil

	case domain.RecurrenceByWeekday:
		matched := false
		display := make([]string, 0, len(storedDates))
		for _, entry := range storedDates {
			date, err := parseLockDate(entry)
			if err != nil {
				return false, nil, err
			}
			weekday := date.Weekday().String()
			if weekday == today.Weekday().String() {
				matched = true
			}
			display = append(display, weekday)
		}
		return matched, display, nil

	default:
		return false, []string{}, nil
	}
}

func parseLockDate(entry string) (time.Time, error) {
	date, err := time.Parse(domain.DateLayout, entry)
	if err != nil {
		return time.Time{}, &domain.ParseError{Field: "date", Value: entry, Err: err}
	}
	return date, nil
}

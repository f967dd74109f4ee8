package policy

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
)

// MinutesPerDay is the size of the time-of-day clock.
const MinutesPerDay = 24 * 60

// IsWithinWindow reports whether now lies in the circular interval
// [start, end) on a 1440-minute clock. All values are minutes of day.
// A window with start > end wraps past midnight.
func IsWithinWindow(start, end, now int) bool {
	if start <= end {
		return now >= start && now < end
	}
	return now >= start || now < end
}

// ParseTimeOfDay converts "HH:MM" (24h, two digits each) into minutes
// since midnight.
func ParseTimeOfDay(s string) (int, error) {
	hh, mm, ok := strings.Cut(s, ":")
	if !ok || !isTwoDigits(hh) || !isTwoDigits(mm) {
		return 0, &domain.ParseError{Field: "time", Value: s, Err: errors.New("expected HH:MM")}
	}

	hour, err := strconv.Atoi(hh)
	if err != nil {
		return 0, &domain.ParseError{Field: "time", Value: s, Err: err}
	}
	minute, err := strconv.Atoi(mm)
	if err != nil {
		return 0, &domain.ParseError{Field: "time", Value: s, Err: err}
	}

	if hour < 0 || hour > 23 {
		return 0, &domain.ParseError{Field: "time", Value: s, Err: errors.New("hour out of range")}
	}
	if minute < 0 || minute > 59 {
		return 0, &domain.ParseError{Field: "time", Value: s, Err: errors.New("minute out of range")}
	}

	return hour*60 + minute, nil
}

func isTwoDigits(s string) bool {
	return len(s) == 2 && s[0] >= '0' && s[0] <= '9' && s[1] >= '0' && s[1] <= '9'
}

// MinuteOfDay returns the wall-clock minute of t in its own location.
func MinuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// WithinTimeRange parses both bounds and checks now against them.
func WithinTimeRange(start, end string, now time.Time) (bool, error) {
	startMin, err := ParseTimeOfDay(start)
	if err != nil {
		return false, err
	}
	endMin, err := ParseTimeOfDay(end)
	if err != nil {
		return false, err
	}
	return IsWithinWindow(startMin, endMin, MinuteOfDay(now)), nil
}

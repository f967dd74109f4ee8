package usecase

import (
	"sync"
	"time"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
)

// ThrottleGate bounds how often secondary (content change) events reach the
// decision pipeline. Primary (window change) events always pass and leave
// the secondary timer alone. State lives as long as the gate.
type ThrottleGate struct {
	delay time.Duration

	mu             sync.Mutex
	lastAdmittedAt time.Time
}

// NewThrottleGate creates a gate. A non-positive delay uses the default.
func NewThrottleGate(delay time.Duration) *ThrottleGate {
	if delay <= 0 {
		delay = domain.DefaultThrottleDelay
	}
	return &ThrottleGate{delay: delay}
}

// Admit reports whether an event of kind observed at now should be evaluated.
func (g *ThrottleGate) Admit(kind domain.EventKind, now time.Time) bool {
	switch kind {
	case domain.EventPrimary:
		return true
	case domain.EventSecondary:
		g.mu.Lock()
		defer g.mu.Unlock()
		if !g.lastAdmittedAt.IsZero() && now.Sub(g.lastAdmittedAt) < g.delay {
			return false
		}
		g.lastAdmittedAt = now
		return true
	default:
		return false
	}
}

// LastAdmittedAt returns when the last secondary event was admitted.
func (g *ThrottleGate) LastAdmittedAt() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastAdmittedAt
}

// Delay returns the configured minimum spacing of secondary events.
func (g *ThrottleGate) Delay() time.Duration {
	return g.delay
}

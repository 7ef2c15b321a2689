// Package health tracks the liveness of the platform's write API as an
// explicit state machine, and runs the cheap read-path check that gates
// each cycle.
package health

import (
	"context"
	"log"
	"time"
)

// Status is the write-API liveness state.
type Status string

const (
	StatusUnknown Status = "unknown"
	StatusUp      Status = "up"
	StatusDown    Status = "down"
)

// FailureKind classifies a recorded failure.
type FailureKind string

const (
	// FailureAuth is a 401/403 from the platform. Always counts toward an
	// outage.
	FailureAuth FailureKind = "auth"
	// FailureTransient covers timeouts, 5xx, and malformed responses. Logged
	// but never counted, so a slow API is not mistaken for a dead one.
	FailureTransient FailureKind = "transient"
)

// APIState is the persisted slice of cycle state the monitor owns.
type APIState struct {
	Status              Status     `json:"status"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastProbe           time.Time  `json:"last_probe_time"`
	OutageStart         *time.Time `json:"outage_start,omitempty"`
}

// Monitor applies failure accumulation and probe scheduling to an APIState.
type Monitor struct {
	FailureThreshold int
	ProbeInterval    time.Duration
	now              func() time.Time
}

// NewMonitor builds a monitor with the given thresholds.
func NewMonitor(failureThreshold int, probeInterval time.Duration) *Monitor {
	return &Monitor{
		FailureThreshold: failureThreshold,
		ProbeInterval:    probeInterval,
		now:              time.Now,
	}
}

// SetClock overrides the time source (used by tests).
func (m *Monitor) SetClock(now func() time.Time) { m.now = now }

// RecordFailure notes a write failure. Auth failures accumulate toward the
// outage threshold; transient ones only log.
func (m *Monitor) RecordFailure(s *APIState, kind FailureKind, detail string) {
	if kind == FailureTransient {
		log.Printf("[health] transient failure (not counted): %s", detail)
		return
	}

	s.ConsecutiveFailures++
	log.Printf("[health] API failure #%d: %s", s.ConsecutiveFailures, detail)

	if s.ConsecutiveFailures >= m.FailureThreshold && s.Status != StatusDown {
		s.Status = StatusDown
		start := m.now()
		s.OutageStart = &start
		log.Printf("[health] outage detected, write API marked DOWN")
	}
}

// RecordSuccess notes a write success, clearing any outage.
func (m *Monitor) RecordSuccess(s *APIState) {
	wasDown := s.Status == StatusDown

	s.ConsecutiveFailures = 0
	s.Status = StatusUp

	if wasDown {
		if s.OutageStart != nil {
			log.Printf("[health] write API recovered after %s outage",
				m.now().Sub(*s.OutageStart).Round(time.Minute))
		}
		s.OutageStart = nil
	}
}

// IsDown reports whether the write API is currently marked down.
func (m *Monitor) IsDown(s *APIState) bool {
	return s.Status == StatusDown
}

// ShouldProbe reports whether a down API should be probed this cycle.
// Probing is suppressed while down except once per ProbeInterval.
func (m *Monitor) ShouldProbe(s *APIState) bool {
	if s.Status != StatusDown {
		return false
	}
	if s.LastProbe.IsZero() {
		return true
	}
	return m.now().Sub(s.LastProbe) >= m.ProbeInterval
}

// MarkProbed records that a probe was attempted.
func (m *Monitor) MarkProbed(s *APIState) {
	s.LastProbe = m.now()
}

// Reset returns the state machine to unknown, clearing failure history.
// Used by the operator reset-api command.
func (m *Monitor) Reset(s *APIState) {
	s.Status = StatusUnknown
	s.ConsecutiveFailures = 0
	s.OutageStart = nil
}

// ForceDown marks the API down immediately. Used by the operator mark-down
// command when an outage is known out-of-band.
func (m *Monitor) ForceDown(s *APIState) {
	if s.Status != StatusDown {
		s.Status = StatusDown
		start := m.now()
		s.OutageStart = &start
	}
}

// Reader is the read surface used by the cheap health check.
type Reader interface {
	FeedOK(ctx context.Context, sort string) (bool, error)
	ProfileOK(ctx context.Context) (bool, error)
}

// CheckRead runs the cheap read-path health check: try the feed under each
// fallback sort, then the profile as a last resort. Returns whether the
// platform is reachable at all, plus a status message for logging.
func CheckRead(ctx context.Context, r Reader) (bool, string) {
	for _, sort := range []string{"hot", "new", "top"} {
		ok, err := r.FeedOK(ctx, sort)
		if err != nil {
			if isAuthMessage(err) {
				return false, "authentication failed (platform issue)"
			}
			continue
		}
		if ok {
			if sort != "hot" {
				return true, "API responding (via '" + sort + "' sort, 'hot' may be degraded)"
			}
			return true, "API responding"
		}
	}

	if ok, err := r.ProfileOK(ctx); err == nil && ok {
		return true, "API responding (feed degraded, profile OK)"
	}

	return false, "API down: all endpoints failed"
}

// authError lets the reader surface 401/403 without this package importing
// the client.
type authError interface {
	IsAuth() bool
}

func isAuthMessage(err error) bool {
	for e := err; e != nil; {
		if ae, ok := e.(authError); ok && ae.IsAuth() {
			return true
		}
		type unwrapper interface{ Unwrap() error }
		u, ok := e.(unwrapper)
		if !ok {
			return false
		}
		e = u.Unwrap()
	}
	return false
}

package clm

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTick is the wake-up period of the per-connection rotation loop.
const DefaultTick = 200 * time.Millisecond

// Manager owns the rotation schedule of a single connection.
//
// Ownership contract:
//   - The mutable schedule (nextDeadline, lastRotate) belongs to the
//     connection's own task; Manager is not safe for concurrent use.
//   - Only the EventLog behind it may be shared across connections.
//   - The forced path (ForceRotate) never reads or writes the schedule, so
//     an operator task may call it while the timer task ticks.
type Manager struct {
	policy   Policy
	log      *EventLog
	role     Role
	resolver *Resolver
	logger   zerolog.Logger

	now          func() time.Time
	nextDeadline time.Time
	deadlineSet  bool
	lastRotate   time.Time
}

// NewManager builds a manager with an armed deadline. policy is normalized
// (negative fields clamped to zero).
func NewManager(policy Policy, log *EventLog, role Role) *Manager {
	m := &Manager{
		policy:   policy.normalized(),
		log:      log,
		role:     role,
		resolver: &Resolver{},
		logger:   zerolog.Nop(),
		now:      time.Now,
	}
	m.rearm(m.now())
	return m
}

// SetLogger attaches a process logger for debug traces. The rotation event
// log is separate and unaffected.
func (m *Manager) SetLogger(l zerolog.Logger) { m.logger = l }

// Policy returns the effective (normalized) policy.
func (m *Manager) Policy() Policy { return m.policy }

func (m *Manager) rearm(now time.Time) {
	m.nextDeadline, m.deadlineSet = m.policy.NextDeadline(now)
}

// MaybeRotate applies policy gating and, when a rotation is due, attempts
// it and appends exactly one event. Cheap when not due, so it is safe to
// call at a sub-second tick.
//
// The returned error is only ever a log-sink failure; rotation failures
// are recorded in the event log, never returned.
func (m *Manager) MaybeRotate(ep Endpoint, reason Reason) error {
	now := m.now()
	if !m.deadlineSet || now.Before(m.nextDeadline) {
		return nil
	}
	if now.Sub(m.lastRotate) < m.policy.MinGap {
		// Due, but inside the anti-churn floor. Advance the deadline so
		// the tick loop does not re-check every wakeup; no attempt, no
		// log entry.
		m.rearm(now)
		return nil
	}

	ok, detail := m.resolver.AttemptRotation(ep)
	if ok || !m.policy.RetryOnFailure {
		// A failed attempt also resets the cadence to the policy
		// interval, to avoid hammering a non-rotatable endpoint.
		m.lastRotate = now
	}
	m.rearm(now)

	m.logger.Debug().
		Bool("ok", ok).
		Str("strategy", detail.Strategy).
		Str("reason", string(reason)).
		Msg("rotation attempt")

	return m.append(ok, reason, detail)
}

// ForceRotate attempts a rotation immediately, bypassing policy gating.
// It does not touch nextDeadline or lastRotate; the timer schedule stays
// owned by the per-connection task.
func (m *Manager) ForceRotate(ep Endpoint, reason Reason) (bool, error) {
	ok, detail := m.resolver.AttemptRotation(ep)
	m.logger.Debug().
		Bool("ok", ok).
		Str("strategy", detail.Strategy).
		Str("reason", string(reason)).
		Msg("forced rotation attempt")
	return ok, m.append(ok, reason, detail)
}

func (m *Manager) append(ok bool, reason Reason, detail Detail) error {
	kind := KindRotateFailed
	if ok {
		kind = KindRotateOK
	}
	return m.log.Append(&Event{Kind: kind, Role: m.role, Reason: reason, Detail: detail})
}

// Run drives MaybeRotate on a fixed wake-up period until ctx is canceled.
// Cancellation is observed at the next select, so tearing down a
// connection stops its rotation task promptly.
//
// A log-sink failure stops the loop and is returned; the caller decides
// whether that is fatal to the connection.
func (m *Manager) Run(ctx context.Context, ep Endpoint, tick time.Duration) error {
	if tick <= 0 {
		tick = DefaultTick
	}
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if err := m.MaybeRotate(ep, ReasonTimer); err != nil {
				return fmt.Errorf("rotation log append: %w", err)
			}
		}
	}
}

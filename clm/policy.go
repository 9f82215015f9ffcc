package clm

import "time"

// Policy controls when timer-driven rotations happen. The zero value
// disables the timer path entirely.
type Policy struct {
	// Interval is the base period between rotations. <= 0 disables
	// timer-driven rotation.
	Interval time.Duration

	// Jitter is a bounded addition on top of Interval, in [0, Jitter).
	Jitter time.Duration

	// MinGap is the anti-churn floor: the minimum time between two
	// rotation attempts, even when the timer says one is due.
	MinGap time.Duration

	// RetryOnFailure keeps the retry cadence of a failed attempt at the
	// next due tick instead of resetting it to the full interval. The
	// default (false) avoids hammering an endpoint that cannot rotate.
	RetryOnFailure bool
}

// DefaultPolicy returns the stock rotation schedule.
func DefaultPolicy() Policy {
	return Policy{
		Interval: 30 * time.Second,
		Jitter:   3 * time.Second,
		MinGap:   10 * time.Second,
	}
}

// normalized clamps negative fields to zero.
func (p Policy) normalized() Policy {
	if p.Interval < 0 {
		p.Interval = 0
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.MinGap < 0 {
		p.MinGap = 0
	}
	return p
}

// NextDeadline computes the next rotation deadline after now.
// ok is false when timer-driven rotation is disabled (Interval <= 0).
//
// The jitter is derived from the fractional second of now, so the result
// lies in [now+Interval, now+Interval+Jitter). This is reproducible across
// runs with similar start times on purpose; it is a scheduling spread, not
// a randomness property.
func (p Policy) NextDeadline(now time.Time) (deadline time.Time, ok bool) {
	if p.Interval <= 0 {
		return time.Time{}, false
	}
	var jitter time.Duration
	if p.Jitter > 0 {
		frac := float64(now.Nanosecond()) / float64(time.Second)
		jitter = time.Duration(frac * float64(p.Jitter))
	}
	return now.Add(p.Interval + jitter), true
}

package clm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextDeadlineDisabled(t *testing.T) {
	p := Policy{Interval: 0, Jitter: 3 * time.Second}
	_, ok := p.NextDeadline(time.Now())
	assert.False(t, ok)

	p = Policy{Interval: -5 * time.Second}
	_, ok = p.NextDeadline(time.Now())
	assert.False(t, ok)
}

func TestNextDeadlineBounds(t *testing.T) {
	p := Policy{Interval: 10 * time.Second, Jitter: 3 * time.Second}

	for _, nanos := range []int{0, 1, 123456789, 500000000, 999999999} {
		now := time.Unix(1700000000, int64(nanos))
		deadline, ok := p.NextDeadline(now)
		require.True(t, ok)

		delta := deadline.Sub(now)
		assert.GreaterOrEqual(t, delta, p.Interval, "nanos=%d", nanos)
		assert.Less(t, delta, p.Interval+p.Jitter, "nanos=%d", nanos)
	}
}

func TestNextDeadlineDeterministicJitter(t *testing.T) {
	p := Policy{Interval: 10 * time.Second, Jitter: 2 * time.Second}
	now := time.Unix(1700000000, 500000000) // frac = 0.5

	d1, ok := p.NextDeadline(now)
	require.True(t, ok)
	d2, _ := p.NextDeadline(now)
	assert.Equal(t, d1, d2)
	assert.Equal(t, 11*time.Second, d1.Sub(now))
}

func TestNextDeadlineZeroJitter(t *testing.T) {
	p := Policy{Interval: 10 * time.Second}
	now := time.Unix(1700000000, 987654321)
	deadline, ok := p.NextDeadline(now)
	require.True(t, ok)
	assert.Equal(t, now.Add(10*time.Second), deadline)
}

func TestPolicyNormalized(t *testing.T) {
	p := Policy{Interval: -1, Jitter: -1, MinGap: -1}.normalized()
	assert.Equal(t, time.Duration(0), p.Interval)
	assert.Equal(t, time.Duration(0), p.Jitter)
	assert.Equal(t, time.Duration(0), p.MinGap)
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 30*time.Second, p.Interval)
	assert.Equal(t, 3*time.Second, p.Jitter)
	assert.Equal(t, 10*time.Second, p.MinGap)
	assert.False(t, p.RetryOnFailure)
}

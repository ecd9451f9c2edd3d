package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestLimiter(anonymous string) (*connLimiter, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	l := newConnLimiter(RateLimitConfig{Ceiling: 10, Window: time.Minute, Anonymous: anonymous})
	l.now = clock.Now
	return l, clock
}

func TestConnLimiter_CeilingWithinWindow(t *testing.T) {
	l, clock := newTestLimiter(AnonymousBypass)

	for i := 0; i < 10; i++ {
		require.True(t, l.admit("10.0.0.1"), "attempt %d should be admitted", i+1)
		clock.Advance(time.Second)
	}
	assert.False(t, l.admit("10.0.0.1"), "11th attempt inside the window must be denied")
}

func TestConnLimiter_AdmitsAgainAfterWindow(t *testing.T) {
	l, clock := newTestLimiter(AnonymousBypass)

	for i := 0; i < 10; i++ {
		require.True(t, l.admit("10.0.0.1"))
	}
	require.False(t, l.admit("10.0.0.1"))

	clock.Advance(time.Minute)
	assert.True(t, l.admit("10.0.0.1"))
}

func TestConnLimiter_DeniedAttemptsAreNotRecorded(t *testing.T) {
	l, clock := newTestLimiter(AnonymousBypass)

	for i := 0; i < 10; i++ {
		require.True(t, l.admit("10.0.0.1"))
	}
	for i := 0; i < 5; i++ {
		clock.Advance(10 * time.Second)
		require.False(t, l.admit("10.0.0.1"))
	}

	// Only the ten admitted attempts occupy the window.
	clock.Advance(10 * time.Second)
	assert.True(t, l.admit("10.0.0.1"))
}

func TestConnLimiter_AddressesAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(AnonymousBypass)

	for i := 0; i < 10; i++ {
		require.True(t, l.admit("10.0.0.1"))
	}
	assert.False(t, l.admit("10.0.0.1"))
	assert.True(t, l.admit("10.0.0.2"))
}

func TestConnLimiter_AnonymousPolicies(t *testing.T) {
	t.Run("bypass", func(t *testing.T) {
		l, _ := newTestLimiter(AnonymousBypass)
		for i := 0; i < 50; i++ {
			require.True(t, l.admit(""))
		}
		assert.Zero(t, l.size())
	})

	t.Run("shared", func(t *testing.T) {
		l, _ := newTestLimiter(AnonymousShared)
		for i := 0; i < 10; i++ {
			require.True(t, l.admit(""))
		}
		assert.False(t, l.admit(""))
		assert.True(t, l.admit("10.0.0.1"))
	})

	t.Run("deny", func(t *testing.T) {
		l, _ := newTestLimiter(AnonymousDeny)
		assert.False(t, l.admit(""))
		assert.True(t, l.admit("10.0.0.1"))
	})
}

func TestConnLimiter_Sweep(t *testing.T) {
	l, clock := newTestLimiter(AnonymousBypass)

	require.True(t, l.admit("10.0.0.1"))
	clock.Advance(30 * time.Second)
	require.True(t, l.admit("10.0.0.2"))

	clock.Advance(45 * time.Second)
	assert.Equal(t, 1, l.sweep())
	assert.Equal(t, 1, l.size())

	clock.Advance(time.Minute)
	assert.Equal(t, 1, l.sweep())
	assert.Zero(t, l.size())
}

func TestConnLimiter_Defaults(t *testing.T) {
	l := newConnLimiter(RateLimitConfig{})

	assert.Equal(t, 10, l.ceiling)
	assert.Equal(t, time.Minute, l.window)
	assert.Equal(t, AnonymousBypass, l.anonymous)
}

package ratelimit

import (
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/require"
)

func TestLimiterBurstThenRefill(t *testing.T) {
	mock := quartz.NewMock(t)
	l := newLimiter(10, 3, mock)

	require.True(t, l.Allow())
	require.True(t, l.Allow())
	require.True(t, l.Allow())
	require.False(t, l.Allow())

	// 10 tokens/s means one token every 100ms.
	mock.Advance(100 * time.Millisecond)
	require.True(t, l.Allow())
	require.False(t, l.Allow())
}

func TestLimiterCapsAtBurst(t *testing.T) {
	mock := quartz.NewMock(t)
	l := newLimiter(10, 2, mock)

	mock.Advance(time.Hour)
	require.True(t, l.AllowN(2))
	require.False(t, l.Allow())
}

func TestAllowNAllOrNothing(t *testing.T) {
	mock := quartz.NewMock(t)
	l := newLimiter(1, 5, mock)

	require.False(t, l.AllowN(6))
	require.True(t, l.AllowN(5))
	require.False(t, l.Allow())
}

func TestClientLimitersSharePerUser(t *testing.T) {
	mock := quartz.NewMock(t)
	cl := newClientLimiters(1, 1, mock)
	defer cl.Stop()

	a := cl.Get("alice")
	require.Same(t, a, cl.Get("alice"))
	require.NotSame(t, a, cl.Get("bob"))
	require.Equal(t, 2, cl.Len())

	// Two connections of the same user drain one bucket.
	require.True(t, cl.Get("alice").Allow())
	require.False(t, cl.Get("alice").Allow())
	require.True(t, cl.Get("bob").Allow())
}

func TestClientLimitersRemove(t *testing.T) {
	mock := quartz.NewMock(t)
	cl := newClientLimiters(1, 1, mock)
	defer cl.Stop()

	require.True(t, cl.Get("alice").Allow())
	cl.Remove("alice")
	require.Equal(t, 0, cl.Len())

	// A fresh bucket arrives with a full burst.
	require.True(t, cl.Get("alice").Allow())
}

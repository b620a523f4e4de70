package session

import (
	"context"
	"testing"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
)

func TestBackoffRetryRecoversFromTransientFailures(t *testing.T) {
	ctx := context.Background()
	mock := quartz.NewMock(t)
	trap := mock.Trap().NewTimer()
	defer trap.Close()

	attempts := 0
	errc := make(chan error, 1)
	go func() {
		errc <- backoffRetry(mock, emitRetries, emitBackoff, func() (bool, error) {
			attempts++
			if attempts < 3 {
				return true, xerrors.New("transient")
			}
			return true, nil
		})
	}()

	// Each failed attempt arms a doubled timer before the next try.
	trap.MustWait(ctx).Release()
	mock.Advance(emitBackoff).MustWait(ctx)
	trap.MustWait(ctx).Release()
	mock.Advance(2 * emitBackoff).MustWait(ctx)

	require.NoError(t, <-errc)
	require.Equal(t, 3, attempts)
}

func TestBackoffRetryStopsOnPermanentFailure(t *testing.T) {
	mock := quartz.NewMock(t)

	attempts := 0
	err := backoffRetry(mock, emitRetries, emitBackoff, func() (bool, error) {
		attempts++
		return false, xerrors.New("transport closed")
	})

	require.Error(t, err)
	require.Equal(t, 1, attempts)
}

func TestBackoffRetryExhaustsAttempts(t *testing.T) {
	ctx := context.Background()
	mock := quartz.NewMock(t)
	trap := mock.Trap().NewTimer()
	defer trap.Close()

	attempts := 0
	errc := make(chan error, 1)
	go func() {
		errc <- backoffRetry(mock, emitRetries, emitBackoff, func() (bool, error) {
			attempts++
			return true, xerrors.New("transient")
		})
	}()

	trap.MustWait(ctx).Release()
	mock.Advance(emitBackoff).MustWait(ctx)
	trap.MustWait(ctx).Release()
	mock.Advance(2 * emitBackoff).MustWait(ctx)

	require.Error(t, <-errc)
	require.Equal(t, emitRetries, attempts)
}

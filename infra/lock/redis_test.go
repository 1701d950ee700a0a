package lock

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/require"

	"github.com/homefixr/dispatch/infra/logger"
)

func TestRedisLockerAcquire(t *testing.T) {
	db, mock := redismock.NewClientMock()
	l := NewRedisLocker(db, logger.NopLogger{}, WithTTL(10*time.Second))

	mock.Regexp().ExpectSetNX("dispatch:lock:bkg-1", `.+`, 10*time.Second).SetVal(true)

	release, err := l.Acquire(context.Background(), "bkg-1")
	require.NoError(t, err)
	require.NotNil(t, release)
	release()

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisLockerAcquireContended(t *testing.T) {
	db, mock := redismock.NewClientMock()
	l := NewRedisLocker(db, logger.NopLogger{}, WithRetryWait(time.Millisecond))

	mock.Regexp().ExpectSetNX("dispatch:lock:bkg-1", `.+`, defaultTTL).SetVal(false)
	mock.Regexp().ExpectSetNX("dispatch:lock:bkg-1", `.+`, defaultTTL).SetVal(true)

	release, err := l.Acquire(context.Background(), "bkg-1")
	require.NoError(t, err)
	release()

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisLockerAcquireContextExpired(t *testing.T) {
	db, mock := redismock.NewClientMock()
	l := NewRedisLocker(db, logger.NopLogger{}, WithRetryWait(50*time.Millisecond))

	mock.Regexp().ExpectSetNX("dispatch:lock:bkg-1", `.+`, defaultTTL).SetVal(false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := l.Acquire(ctx, "bkg-1")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

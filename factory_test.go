package ygggo_pool

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFactory(connector Connector, addrs []Address, retry RetryConfig) *connectionFactory {
	if retry.ReconnectInterval <= 0 {
		retry.ReconnectInterval = 10 * time.Millisecond
	}
	return newConnectionFactory(connector, addrs, retry, nil)
}

func TestFactory_FirstAddressSucceeds_ShortCircuits(t *testing.T) {
	fc := &fakeConnector{}
	f := newTestFactory(fc, testAddresses(3), RetryConfig{ReconnectAttempts: 2})

	server, addr, err := f.connect(context.Background())
	require.NoError(t, err)
	require.NotNil(t, server)
	assert.Equal(t, 1, fc.dialCount(), "remaining addresses in the cycle must not be tried")
	assert.Equal(t, fc.dialedAddrs()[0], addr)
}

func TestFactory_FailsOverWithinCycle(t *testing.T) {
	addrs := testAddresses(3)
	errDown := errors.New("connection refused")
	fc := &fakeConnector{}
	fc.hook = func(ctx context.Context, addr Address) (ServerConn, error) {
		if addr == addrs[0] {
			return nil, errDown
		}
		return fc.newServerConn(addr), nil
	}
	f := newTestFactory(fc, addrs, RetryConfig{ReconnectAttempts: 0})

	start := time.Now()
	_, addr, err := f.connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, addrs[1], addr)
	assert.Equal(t, 2, fc.dialCount())
	assert.Less(t, time.Since(start), 5*time.Millisecond, "failover within a cycle must not back off")
}

func TestFactory_RetryCyclesExhausted(t *testing.T) {
	addrs := testAddresses(2)
	errDown := errors.New("connection refused")
	fc := &fakeConnector{hook: func(ctx context.Context, addr Address) (ServerConn, error) {
		return nil, errDown
	}}
	interval := 30 * time.Millisecond
	f := newTestFactory(fc, addrs, RetryConfig{ReconnectAttempts: 2, ReconnectInterval: interval})

	start := time.Now()
	_, _, err := f.connect(context.Background())
	elapsed := time.Since(start)
	require.Error(t, err)

	// Initial cycle plus two retries: every address tried exactly three times.
	assert.Equal(t, 3*len(addrs), fc.dialCount())
	assert.GreaterOrEqual(t, elapsed, 2*interval, "the fixed interval must be observed between cycles")
	assert.Less(t, elapsed, 2*interval+50*time.Millisecond)

	var exhausted *RetriesExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Cycles)
	var unreachable *AllAddressesUnreachableError
	require.ErrorAs(t, err, &unreachable)
	assert.ErrorIs(t, err, errDown, "the last underlying cause must be preserved")
}

func TestFactory_ZeroAttempts_NoRetry(t *testing.T) {
	addrs := testAddresses(3)
	fc := &fakeConnector{hook: func(ctx context.Context, addr Address) (ServerConn, error) {
		return nil, fmt.Errorf("dial %s: down", addr)
	}}
	f := newTestFactory(fc, addrs, RetryConfig{ReconnectAttempts: 0})

	_, _, err := f.connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, len(addrs), fc.dialCount(), "every address tried once, no retry")

	var unreachable *AllAddressesUnreachableError
	require.ErrorAs(t, err, &unreachable)
	var exhausted *RetriesExhaustedError
	assert.False(t, errors.As(err, &exhausted))
}

func TestFactory_InfiniteRetries_CancelledByContext(t *testing.T) {
	fc := &fakeConnector{hook: func(ctx context.Context, addr Address) (ServerConn, error) {
		return nil, errors.New("down")
	}}
	f := newTestFactory(fc, testAddresses(1), RetryConfig{ReconnectAttempts: -1, ReconnectInterval: 5 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()

	_, _, err := f.connect(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Greater(t, fc.dialCount(), 2, "should have kept cycling until cancelled")
}

func TestFactory_FreshRotationEachCycle(t *testing.T) {
	addrs := testAddresses(2)
	fc := &fakeConnector{hook: func(ctx context.Context, addr Address) (ServerConn, error) {
		return nil, errors.New("down")
	}}
	f := newTestFactory(fc, addrs, RetryConfig{ReconnectAttempts: 1, ReconnectInterval: time.Millisecond})

	_, _, _ = f.connect(context.Background())
	dialed := fc.dialedAddrs()
	require.Len(t, dialed, 4)
	// The retry cycle is re-rotated, not replayed: it starts one past the
	// first cycle's start.
	assert.Equal(t, addrs[0], dialed[0])
	assert.Equal(t, addrs[1], dialed[2])
}

func TestFactory_AuthFailureStillRetried(t *testing.T) {
	fc := &fakeConnector{hook: func(ctx context.Context, addr Address) (ServerConn, error) {
		return nil, errAccessDenied()
	}}
	f := newTestFactory(fc, testAddresses(1), RetryConfig{ReconnectAttempts: 2, ReconnectInterval: time.Millisecond})

	_, _, err := f.connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, 3, fc.dialCount(), "auth rejections go through the full retry budget")
	assert.Equal(t, ErrClassAuth, Classify(err))
}

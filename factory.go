package ygggo_pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-multierror"
)

// connectionFactory establishes one usable server session per connect call.
// Each attempt walks a fresh round-robin ordering of the configured
// addresses and short-circuits on the first successful handshake. When a
// whole cycle fails the factory waits the fixed reconnect interval and tries
// again with a re-rotated ordering, up to the configured number of cycles.
type connectionFactory struct {
	connector Connector
	rotation  *addressRotation
	attempts  int // retry cycles after the initial one; -1 retries forever
	interval  time.Duration
	logger    *slog.Logger
}

func newConnectionFactory(connector Connector, addrs []Address, retry RetryConfig, logger *slog.Logger) *connectionFactory {
	return &connectionFactory{
		connector: connector,
		rotation:  newAddressRotation(addrs),
		attempts:  retry.ReconnectAttempts,
		interval:  retry.ReconnectInterval,
		logger:    logger,
	}
}

// connect blocks until a session is established, the retry budget runs out,
// or ctx is cancelled. Backoff between cycles suspends only this call.
func (f *connectionFactory) connect(ctx context.Context) (ServerConn, Address, error) {
	var (
		server ServerConn
		addr   Address
		cycles int
	)
	op := func() error {
		cycles++
		s, a, err := f.connectCycle(ctx)
		if err != nil {
			if f.logger != nil {
				f.logger.LogAttrs(ctx, slog.LevelWarn, "connect cycle failed",
					slog.Int("cycle", cycles),
					slog.String("error", err.Error()),
				)
			}
			return err
		}
		server, addr = s, a
		return nil
	}

	// Fixed pause between cycles, no exponential growth.
	pol := backoff.BackOff(backoff.NewConstantBackOff(f.interval))
	if f.attempts >= 0 {
		pol = backoff.WithMaxRetries(pol, uint64(f.attempts))
	}
	if err := backoff.Retry(op, backoff.WithContext(pol, ctx)); err != nil {
		var unreachable *AllAddressesUnreachableError
		if f.attempts > 0 && errors.As(err, &unreachable) {
			return nil, Address{}, &RetriesExhaustedError{Cycles: cycles, Cause: err}
		}
		return nil, Address{}, err
	}
	return server, addr, nil
}

// connectCycle tries every address in the next rotation exactly once.
// Transport and handshake failures are treated uniformly: the address is
// unavailable, move on. All per-address causes are kept for the terminal error.
func (f *connectionFactory) connectCycle(ctx context.Context) (ServerConn, Address, error) {
	var attempts *multierror.Error
	for _, addr := range f.rotation.order() {
		if err := ctx.Err(); err != nil {
			return nil, Address{}, err
		}
		server, err := f.connector.Connect(ctx, addr)
		if err != nil {
			attempts = multierror.Append(attempts, fmt.Errorf("%s: %w", addr, err))
			continue
		}
		if f.logger != nil {
			f.logger.LogAttrs(ctx, slog.LevelDebug, "connected",
				slog.String("address", addr.String()),
			)
		}
		return server, addr, nil
	}
	return nil, Address{}, &AllAddressesUnreachableError{Attempts: attempts}
}

package ygggo_pool

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"

	mysql "github.com/go-sql-driver/mysql"
	"github.com/hashicorp/go-multierror"
)

// Sentinel errors surfaced by the pool.
var (
	// ErrPoolClosed is returned for every acquire, pending or future, once
	// the pool has been closed.
	ErrPoolClosed = errors.New("ygggo_pool: pool is closed")

	// ErrNoAddresses is returned when a Config carries an empty address list.
	ErrNoAddresses = errors.New("ygggo_pool: at least one server address is required")

	// ErrConnReleased is returned when a connection is released more than
	// once for the same lease.
	ErrConnReleased = errors.New("ygggo_pool: connection already released")
)

// AllAddressesUnreachableError reports that one full cycle through the
// configured addresses produced no usable connection. It carries every
// per-address cause.
type AllAddressesUnreachableError struct {
	Attempts *multierror.Error
}

func (e *AllAddressesUnreachableError) Error() string {
	return fmt.Sprintf("ygggo_pool: all server addresses unreachable: %v", e.Attempts)
}

func (e *AllAddressesUnreachableError) Unwrap() error { return e.Attempts }

// RetriesExhaustedError reports that every retry cycle failed.
// Cause is the last cycle's AllAddressesUnreachableError.
type RetriesExhaustedError struct {
	Cycles int
	Cause  error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("ygggo_pool: connect retries exhausted after %d cycles: %v", e.Cycles, e.Cause)
}

func (e *RetriesExhaustedError) Unwrap() error { return e.Cause }

// ErrorClass groups errors by how a caller should react to them.
type ErrorClass int

const (
	ErrClassUnknown ErrorClass = iota
	ErrClassRetryable
	ErrClassAuth
	ErrClassPoolClosed
	ErrClassCancelled
)

// Classify maps an error from Acquire, WithConn or a connection operation
// onto its ErrorClass.
func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return ErrClassUnknown
	case errors.Is(err, ErrPoolClosed):
		return ErrClassPoolClosed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrClassCancelled
	case isAuthError(err):
		return ErrClassAuth
	case errors.Is(err, driver.ErrBadConn), errors.Is(err, mysql.ErrInvalidConn):
		return ErrClassRetryable
	}
	var unreachable *AllAddressesUnreachableError
	var exhausted *RetriesExhaustedError
	if errors.As(err, &exhausted) || errors.As(err, &unreachable) {
		return ErrClassRetryable
	}
	return ErrClassUnknown
}

// isAuthError reports whether the server rejected the credentials somewhere
// in err's chain. Auth failures still go through the normal retry cycles
// (retry is handled uniformly at the protocol level); classification only
// helps callers report them.
func isAuthError(err error) bool {
	for _, e := range allErrors(err) {
		var myErr *mysql.MySQLError
		if errors.As(e, &myErr) {
			switch myErr.Number {
			case 1044, 1045, 1698: // ER_DBACCESS_DENIED, ER_ACCESS_DENIED, ER_ACCESS_DENIED_NO_PASSWORD
				return true
			}
		}
	}
	return false
}

// allErrors flattens a multierror chain into its leaves.
func allErrors(err error) []error {
	var merr *multierror.Error
	if errors.As(err, &merr) {
		return merr.WrappedErrors()
	}
	return []error{err}
}

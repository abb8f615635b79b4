// Package apperrors defines the standardized error taxonomy for exchange
// interactions. Callers wrap these sentinels with context and classify with
// the helpers below.
package apperrors

import (
	"context"
	"errors"
	"net"
)

var (
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrOrderRejected         = errors.New("order rejected")
	ErrRateLimitExceeded     = errors.New("rate limit exceeded")
	ErrNetwork               = errors.New("network error")
	ErrInvalidSymbol         = errors.New("invalid symbol")
	ErrAuthenticationFailed  = errors.New("authentication failed")
	ErrExchangeMaintenance   = errors.New("exchange maintenance")
	ErrOrderNotFound         = errors.New("order not found")
	ErrDuplicateOrder        = errors.New("duplicate order")
	ErrInvalidOrderParameter = errors.New("invalid order parameter")
	ErrNoPrice               = errors.New("no reference price available")
)

// IsTransient reports whether the error should be retried on a later attempt
// or tick. Policy rejections and exchange order rejections are permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimitExceeded) ||
		errors.Is(err, ErrNetwork) ||
		errors.Is(err, ErrExchangeMaintenance) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

// IsRateLimit reports whether the exchange signalled request throttling.
func IsRateLimit(err error) bool {
	return errors.Is(err, ErrRateLimitExceeded)
}

// IsNotFound reports whether a looked-up order has already been consumed by
// the exchange. Callers treat this as a stale-cache signal, not a failure.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrOrderNotFound)
}

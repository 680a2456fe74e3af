package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")
)

// Verification flow errors. Each maps 1:1 to a user-visible reason string;
// internal fields (hashes, counters) never travel with them.
var (
	ErrNoActiveChallenge = errors.New("no active verification code")
	ErrChallengeExpired  = errors.New("verification code expired")
	ErrChallengeLocked   = errors.New("too many failed attempts")
	ErrCodeMismatch      = errors.New("verification code is incorrect")
	ErrNoActiveToken     = errors.New("no active verification token")
	ErrTokenInvalid      = errors.New("verification token is invalid")
	ErrRateLimited       = errors.New("rate limited")
	ErrDeliveryFailed    = errors.New("delivery failed")
)

// RateLimitedError carries the exact number of seconds the caller has to wait
// before the next issuance is allowed. Unwraps to ErrRateLimited.
type RateLimitedError struct {
	RetryAfterSeconds int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: retry after %d seconds", e.RetryAfterSeconds)
}

func (e *RateLimitedError) Unwrap() error { return ErrRateLimited }

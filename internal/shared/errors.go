package shared

import (
	"errors"

	"github.com/bensupplier/catalog/internal/platform/httpx"
)

var (
	// ErrInvalidCredentials indicates a failed operator login.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCSRFTokenMissing occurs when the CSRF token is missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
	// ErrIdempotencyInFlight reports a replay of a request still being processed.
	ErrIdempotencyInFlight = httpx.NewError(httpx.ErrConflict, "a request with this Idempotency-Key is still in progress")
	// ErrIdempotencyKeyInvalid reports an unusable Idempotency-Key header.
	ErrIdempotencyKeyInvalid = httpx.NewError(httpx.ErrValidation, "Idempotency-Key must be 1-128 printable characters")
)

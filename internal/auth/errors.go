package auth

import "errors"

var (
	ErrNotFound           = errors.New("auth: not found")
	ErrConflict           = errors.New("auth: resource conflict")
	ErrInvalidInput       = errors.New("auth: invalid input")
	ErrUnauthenticated    = errors.New("auth: authentication required")
	ErrForbidden          = errors.New("auth: insufficient rights")
	ErrInvalidToken       = errors.New("auth: invalid or expired token")
	ErrInvalidCredentials = errors.New("auth: invalid email or password")
	ErrIPNotAllowed       = errors.New("auth: login not allowed from this address")
	ErrImmutableRole      = errors.New("auth: administrative role cannot be modified")
	ErrHasDependents      = errors.New("auth: record still has dependent records")
	ErrSessionNotFound    = errors.New("auth: session not found or expired")

	// ErrNoCredential is returned by a Method when its credential is absent
	// from the request; the chain moves on without recording a failure.
	ErrNoCredential = errors.New("auth: credential not present")
)

package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrProfileNotFound means the identity was verified but no profile document matches it.
	ErrProfileNotFound = errors.New("user data not found")
	// ErrNoChallenge means there is no pending phone verification to confirm.
	ErrNoChallenge = errors.New("no phone verification in progress")
	// ErrChallengeSuperseded means a newer phone verification replaced the one being confirmed.
	ErrChallengeSuperseded = errors.New("phone verification superseded by a newer request")
	// ErrRoleNotPermitted means the requested role cannot be self-assigned.
	ErrRoleNotPermitted = errors.New("role not permitted")
)

// ValidationError reports malformed input. It is raised before any call to
// the identity provider.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// AuthenticationError wraps a provider rejection of a credential or OTP.
type AuthenticationError struct {
	Detail string
	Err    error
}

func (e *AuthenticationError) Error() string {
	return "authentication failed: " + e.Detail
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// StoreWriteError means signup created an identity but the profile write failed.
// RolledBack reports whether the identity was deleted again.
type StoreWriteError struct {
	Err        error
	RolledBack bool
}

func (e *StoreWriteError) Error() string {
	if e.RolledBack {
		return fmt.Sprintf("write profile: %v (identity rolled back)", e.Err)
	}
	return fmt.Sprintf("write profile: %v", e.Err)
}

func (e *StoreWriteError) Unwrap() error {
	return e.Err
}

func authError(err error) error {
	return &AuthenticationError{Detail: err.Error(), Err: err}
}

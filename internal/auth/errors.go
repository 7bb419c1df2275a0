package auth

import (
	"context"
	"errors"
	"fmt"
)

// Reason names why a request was denied. Reasons are written to audit logs only;
// clients always see a generic "unauthorized".
type Reason string

const (
	ReasonInvalidCredentials Reason = "invalid_credentials"
	ReasonInactiveAccount    Reason = "inactive_account"
	ReasonExpiredToken       Reason = "expired_token"
	ReasonMalformedToken     Reason = "malformed_token"
	ReasonTokenRevoked       Reason = "token_revoked"
	ReasonSubjectNotFound    Reason = "subject_not_found"
	ReasonMissingCredentials Reason = "missing_credentials"
	ReasonRefreshNotFound    Reason = "refresh_not_found"
	ReasonRefreshRevoked     Reason = "refresh_revoked"
	ReasonRefreshExpired     Reason = "refresh_expired"
	ReasonPermissionDenied   Reason = "permission_denied"
)

// DenialError is a terminal authentication or authorization failure.
type DenialError struct {
	Reason Reason
}

func (e *DenialError) Error() string {
	return "auth: denied: " + string(e.Reason)
}

var (
	ErrInvalidCredentials error = &DenialError{Reason: ReasonInvalidCredentials}
	ErrInactiveAccount    error = &DenialError{Reason: ReasonInactiveAccount}
	ErrExpiredToken       error = &DenialError{Reason: ReasonExpiredToken}
	ErrMalformedToken     error = &DenialError{Reason: ReasonMalformedToken}
	ErrTokenRevoked       error = &DenialError{Reason: ReasonTokenRevoked}
	ErrSubjectNotFound    error = &DenialError{Reason: ReasonSubjectNotFound}
	ErrMissingCredentials error = &DenialError{Reason: ReasonMissingCredentials}
	ErrRefreshNotFound    error = &DenialError{Reason: ReasonRefreshNotFound}
	ErrRefreshRevoked     error = &DenialError{Reason: ReasonRefreshRevoked}
	ErrRefreshExpired     error = &DenialError{Reason: ReasonRefreshExpired}
	ErrPermissionDenied   error = &DenialError{Reason: ReasonPermissionDenied}
)

var denials = map[Reason]error{
	ReasonInvalidCredentials: ErrInvalidCredentials,
	ReasonInactiveAccount:    ErrInactiveAccount,
	ReasonExpiredToken:       ErrExpiredToken,
	ReasonMalformedToken:     ErrMalformedToken,
	ReasonTokenRevoked:       ErrTokenRevoked,
	ReasonSubjectNotFound:    ErrSubjectNotFound,
	ReasonMissingCredentials: ErrMissingCredentials,
	ReasonRefreshNotFound:    ErrRefreshNotFound,
	ReasonRefreshRevoked:     ErrRefreshRevoked,
	ReasonRefreshExpired:     ErrRefreshExpired,
	ReasonPermissionDenied:   ErrPermissionDenied,
}

// Err returns the sentinel error for the reason.
func (r Reason) Err() error {
	if err, ok := denials[r]; ok {
		return err
	}
	return &DenialError{Reason: r}
}

// Collaborator errors returned by stores.
var (
	ErrNotFound     = errors.New("auth: not found")
	ErrConflict     = errors.New("auth: resource conflict")
	ErrInvalidInput = errors.New("auth: invalid input")
	ErrEmailTaken   = fmt.Errorf("%w: email already registered", ErrConflict)
)

// ErrInfrastructureTimeout marks a store call that hit its deadline. It is retryable
// and must never be reported to a client as a denial.
var ErrInfrastructureTimeout = errors.New("auth: infrastructure timeout")

// InfraError wraps a failure of an external store.
type InfraError struct {
	Op  string
	Err error
}

func (e *InfraError) Error() string {
	return fmt.Sprintf("auth: %s: %v", e.Op, e.Err)
}

func (e *InfraError) Unwrap() error { return e.Err }

// Timeout reports whether the store call ran out of time.
func (e *InfraError) Timeout() bool {
	return errors.Is(e.Err, ErrInfrastructureTimeout)
}

// IsDenial reports whether err is a terminal auth denial.
func IsDenial(err error) bool {
	var d *DenialError
	return errors.As(err, &d)
}

// ReasonOf extracts the denial reason carried by err.
func ReasonOf(err error) (Reason, bool) {
	var d *DenialError
	if errors.As(err, &d) {
		return d.Reason, true
	}
	return "", false
}

// IsRetryable reports whether the caller may retry with backoff.
func IsRetryable(err error) bool {
	var infra *InfraError
	return errors.As(err, &infra)
}

func classifyStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsDenial(err) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) || errors.Is(err, ErrInvalidInput) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &InfraError{Op: op, Err: fmt.Errorf("%w: %w", ErrInfrastructureTimeout, err)}
	}
	return &InfraError{Op: op, Err: err}
}

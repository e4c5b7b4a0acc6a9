package keyturn

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned when a session token is absent, expired,
	// or bound to no principal. Sensitive handlers treat it as a hard
	// rejection, never as a default-guest identity.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidCredentials is returned when secret verification fails.
	// It is always paired with a recorded failed attempt and an audit entry.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrPrincipalNotFound is returned by credential stores when the
	// principal does not exist.
	ErrPrincipalNotFound = errors.New("principal not found")
	// ErrRateLimited is returned when the sliding-window failure count for
	// the caller's origin or the targeted principal meets the configured
	// threshold. No store write accompanies it.
	ErrRateLimited = errors.New("rate limited")

	// ErrValidation is the parent of all input-shape rejections. Callers can
	// branch on it with errors.Is to map the whole family to one response.
	ErrValidation = errors.New("validation failed")
	// ErrMissingInput is returned when a required field is empty.
	ErrMissingInput = fmt.Errorf("%w: missing required input", ErrValidation)
	// ErrConfirmMismatch is returned when the new secret and its
	// confirmation differ.
	ErrConfirmMismatch = fmt.Errorf("%w: confirmation does not match", ErrValidation)
	// ErrSecretPolicy is returned when a new secret violates the configured
	// policy (length, character classes).
	ErrSecretPolicy = fmt.Errorf("%w: secret policy violation", ErrValidation)
	// ErrUnknownOperation is returned by Dispatch for an op outside the
	// closed set {Login, Logout, ChangeSecret}.
	ErrUnknownOperation = fmt.Errorf("%w: unknown operation", ErrValidation)

	// ErrStoreUnavailable wraps connectivity failures and timeouts from the
	// durable stores. Fatal for the request; the core never retries.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrAuditUnavailable marks a failed durable audit append. Audit is a
	// security control, so the failure surfaces instead of being swallowed.
	ErrAuditUnavailable = fmt.Errorf("%w: audit append failed", ErrStoreUnavailable)
	// ErrSessionCreationFailed is returned when a session cannot be saved
	// after successful verification.
	ErrSessionCreationFailed = errors.New("session creation failed")
	// ErrSessionInvalidationFailed is returned when sessions could not be
	// ended after a committed rotation.
	ErrSessionInvalidationFailed = errors.New("session invalidation failed")
	// ErrWorkflowNotReady is returned when a Workflow is used before all
	// required collaborators were wired through the Builder.
	ErrWorkflowNotReady = errors.New("workflow not initialized")
)

package keyturn

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	auditEventLoginSuccess             = "login_success"
	auditEventLoginFailure             = "login_failure"
	auditEventLoginRateLimited         = "login_rate_limited"
	auditEventLogout                   = "logout"
	auditEventSecretChanged            = "password_changed"
	auditEventSecretChangeMissingInput = "password_change_failed_missing_fields"
	auditEventSecretChangeMismatch     = "password_change_failed_mismatch"
	auditEventSecretChangePolicy       = "password_change_failed_policy"
	auditEventSecretChangeInvalidOld   = "password_change_failed_invalid_old"
	auditEventSecretChangeRateLimited  = "password_change_rate_limited"
	auditEventRateLimitTriggered       = "rate_limit_triggered"
)

// AuditErrorCode is the short machine-readable error tag carried on sink
// events.
type AuditErrorCode string

const (
	auditErrUnauthorized          AuditErrorCode = "unauthorized"
	auditErrInvalidCredentials    AuditErrorCode = "invalid_credentials"
	auditErrRateLimited           AuditErrorCode = "rate_limited"
	auditErrPrincipalNotFound     AuditErrorCode = "principal_not_found"
	auditErrMissingInput          AuditErrorCode = "missing_input"
	auditErrConfirmMismatch       AuditErrorCode = "confirm_mismatch"
	auditErrSecretPolicy          AuditErrorCode = "secret_policy"
	auditErrValidation            AuditErrorCode = "validation_failed"
	auditErrSessionCreationFailed AuditErrorCode = "session_creation_failed"
	auditErrSessionInvalidation   AuditErrorCode = "session_invalidation_failed"
	auditErrUnavailable           AuditErrorCode = "backend_unavailable"
	auditErrInternal              AuditErrorCode = "internal_error"
)

// emitAudit fans an event out to the in-process sink. Sink delivery is
// telemetry: it never blocks the request and never substitutes for the
// durable trail written through appendAudit.
func (w *Workflow) emitAudit(
	ctx context.Context,
	eventKind string,
	success bool,
	principalID string,
	origin string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if w == nil || w.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp:   time.Now().UTC(),
		EventKind:   eventKind,
		PrincipalID: principalID,
		Origin:      origin,
		UserAgent:   userAgentFromContext(ctx),
		Success:     success,
		Metadata:    metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	w.audit.Emit(ctx, event)
}

func (w *Workflow) emitRateLimit(
	ctx context.Context,
	scope string,
	origin string,
	metadataBuilder func() map[string]string,
) {
	w.metricInc(MetricRateLimitHit)
	w.emitAudit(ctx, auditEventRateLimitTriggered, false, "", origin, nil, func() map[string]string {
		base := map[string]string{
			"scope": scope,
		}
		if metadataBuilder == nil {
			return base
		}
		for k, v := range metadataBuilder() {
			base[k] = v
		}
		return base
	})
}

// appendAudit writes one entry to the durable trail. Audit is a security
// control, so a failed append surfaces as [ErrAuditUnavailable] instead of
// being swallowed.
func (w *Workflow) appendAudit(ctx context.Context, principalID, eventKind, origin string) error {
	sctx, cancel := w.storeContext(ctx)
	defer cancel()

	entry := AuditEntry{
		PrincipalID: principalID,
		EventKind:   eventKind,
		Origin:      origin,
		UserAgent:   userAgentFromContext(ctx),
		CreatedAt:   time.Now().UTC(),
	}
	if err := w.auditLog.Append(sctx, entry); err != nil {
		return fmt.Errorf("%w: %v", ErrAuditUnavailable, err)
	}

	return nil
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return auditErrUnauthorized
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrPrincipalNotFound):
		return auditErrPrincipalNotFound
	case errors.Is(err, ErrMissingInput):
		return auditErrMissingInput
	case errors.Is(err, ErrConfirmMismatch):
		return auditErrConfirmMismatch
	case errors.Is(err, ErrSecretPolicy):
		return auditErrSecretPolicy
	case errors.Is(err, ErrValidation):
		return auditErrValidation
	case errors.Is(err, ErrSessionCreationFailed):
		return auditErrSessionCreationFailed
	case errors.Is(err, ErrSessionInvalidationFailed):
		return auditErrSessionInvalidation
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}

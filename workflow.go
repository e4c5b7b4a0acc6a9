package keyturn

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
	"unicode"

	"github.com/redis/go-redis/v9"

	"github.com/keyturnlabs/keyturn/internal"
	"github.com/keyturnlabs/keyturn/internal/window"
	"github.com/keyturnlabs/keyturn/secret"
	"github.com/keyturnlabs/keyturn/session"
)

// Workflow orchestrates login, logout, and secret rotation over the wired
// credential store, audit log, rate limiter, and session store. Build one
// with [New] and treat it as immutable afterwards.
type Workflow struct {
	config       Config
	credentials  CredentialStore
	auditLog     AuditLog
	limiter      *window.Limiter
	sessionStore *session.Store
	hasher       *secret.Hasher
	audit        *auditDispatcher
	metrics      *Metrics
}

// Close shuts down the audit dispatcher, draining buffered sink events.
func (w *Workflow) Close() {
	if w == nil {
		return
	}
	if w.audit != nil {
		w.audit.Close()
	}
}

// AuditDropped reports sink events lost to dispatcher backpressure.
func (w *Workflow) AuditDropped() uint64 {
	if w == nil || w.audit == nil {
		return 0
	}
	return w.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of all metric values.
func (w *Workflow) MetricsSnapshot() MetricsSnapshot {
	if w == nil || w.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return w.metrics.Snapshot()
}

func (w *Workflow) metricInc(id MetricID) {
	if w == nil || w.metrics == nil {
		return
	}
	w.metrics.Inc(id)
}

// storeContext bounds a durable-store call. A deadline hit is reported by
// the store as a connectivity failure.
func (w *Workflow) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, w.config.Store.Timeout)
}

// Login verifies the principal's login secret and starts a session.
//
// The rate limiter gates first: a blocked origin or principal is rejected
// with [ErrRateLimited] before any store access, and the rejection itself
// never writes the durable trail. A prior session token attached via
// [WithPriorSessionToken] is invalidated before the fresh token is issued.
func (w *Workflow) Login(ctx context.Context, principalID, loginSecret, origin string) (*LoginResult, error) {
	if w == nil || w.hasher == nil {
		return nil, ErrWorkflowNotReady
	}
	if w.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() { w.metrics.Observe(MetricLoginLatency, time.Since(start)) }()
	}

	blocked, err := w.limiter.IsBlocked(ctx, origin, principalID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if blocked {
		w.metricInc(MetricLoginRateLimited)
		w.emitAudit(ctx, auditEventLoginRateLimited, false, principalID, origin, ErrRateLimited, nil)
		w.emitRateLimit(ctx, "login", origin, func() map[string]string {
			return map[string]string{
				"principal": principalID,
			}
		})
		return nil, ErrRateLimited
	}

	if principalID == "" || loginSecret == "" {
		return nil, w.failLogin(ctx, principalID, origin, "empty_input")
	}

	sctx, cancel := w.storeContext(ctx)
	cred, err := w.credentials.Get(sctx, principalID, KindLogin)
	cancel()
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			// Indistinguishable from a wrong secret on the wire.
			return nil, w.failLogin(ctx, principalID, origin, "principal_not_found")
		}
		return nil, storeFailure(err)
	}

	ok, err := w.hasher.Verify(loginSecret, cred.SecretHash)
	if err != nil || !ok {
		return nil, w.failLogin(ctx, principalID, origin, "secret_mismatch")
	}

	if w.config.Secret.RehashOnLogin {
		if needs, err := w.hasher.NeedsRehash(cred.SecretHash); err == nil && needs {
			if upgraded, err := w.hasher.Hash(loginSecret); err == nil {
				sctx, cancel := w.storeContext(ctx)
				// Rehash update is best-effort and must not block successful login.
				if err := w.credentials.Replace(sctx, principalID, KindLogin, upgraded); err != nil {
					log.Print("keyturn: login secret rehash update failed")
				}
				cancel()
			} else {
				log.Print("keyturn: login secret rehash generation failed")
			}
		}
	}
	loginSecret = ""

	// Invalidate the caller's pre-login token so it cannot survive
	// authentication.
	if prior := priorSessionTokenFromContext(ctx); prior != "" {
		if err := w.sessionStore.Delete(ctx, prior); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSessionCreationFailed, err)
		}
		w.metricInc(MetricSessionInvalidated)
	}

	tok, err := internal.NewSessionToken()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionCreationFailed, err)
	}
	token := tok.String()

	now := time.Now()
	sess := &session.Session{
		Token:       token,
		PrincipalID: principalID,
		Origin:      origin,
		UserAgent:   userAgentFromContext(ctx),
		CreatedAt:   now.Unix(),
		ExpiresAt:   now.Add(w.config.Session.TTL).Unix(),
	}
	if err := w.sessionStore.Save(ctx, sess, w.config.Session.TTL); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionCreationFailed, err)
	}

	if err := w.appendAudit(ctx, principalID, auditEventLoginSuccess, origin); err != nil {
		// The session exists but the trail is incomplete; fail the request
		// and tear the session back down.
		if delErr := w.sessionStore.Delete(ctx, token); delErr != nil {
			log.Print("keyturn: session teardown after audit failure failed")
		}
		return nil, err
	}

	w.metricInc(MetricSessionCreated)
	w.metricInc(MetricLoginSuccess)
	w.emitAudit(ctx, auditEventLoginSuccess, true, principalID, origin, nil, nil)

	return &LoginResult{
		PrincipalID:  principalID,
		SessionToken: token,
	}, nil
}

// failLogin records the failed attempt under both limiter keys, appends the
// durable login_failure entry, and returns [ErrInvalidCredentials].
func (w *Workflow) failLogin(ctx context.Context, principalID, origin, reason string) error {
	if err := w.limiter.RecordFailure(ctx, origin, principalID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := w.appendAudit(ctx, principalID, auditEventLoginFailure, origin); err != nil {
		return err
	}

	w.metricInc(MetricLoginFailure)
	w.emitAudit(ctx, auditEventLoginFailure, false, principalID, origin, ErrInvalidCredentials, func() map[string]string {
		return map[string]string{
			"reason": reason,
		}
	})

	return ErrInvalidCredentials
}

// Logout ends the session bound to token. An absent or already-expired
// token is a no-op, not an error.
func (w *Workflow) Logout(ctx context.Context, token string) error {
	if w == nil || w.sessionStore == nil {
		return ErrWorkflowNotReady
	}
	if token == "" {
		return nil
	}

	sess, err := w.sessionStore.Get(ctx, token)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return storeFailure(err)
	}

	if err := w.sessionStore.Delete(ctx, token); err != nil {
		return storeFailure(err)
	}

	if err := w.appendAudit(ctx, sess.PrincipalID, auditEventLogout, sess.Origin); err != nil {
		return err
	}

	w.metricInc(MetricLogout)
	w.metricInc(MetricSessionInvalidated)
	w.emitAudit(ctx, auditEventLogout, true, sess.PrincipalID, sess.Origin, nil, nil)

	return nil
}

// CurrentPrincipal resolves a session token to its principal. An absent or
// expired token yields [ErrUnauthorized]; callers must treat that as a hard
// rejection, never as a default identity.
func (w *Workflow) CurrentPrincipal(ctx context.Context, token string) (string, error) {
	if w == nil || w.sessionStore == nil {
		return "", ErrWorkflowNotReady
	}
	if token == "" {
		return "", ErrUnauthorized
	}

	sess, err := w.sessionStore.Get(ctx, token)
	if err != nil {
		if errors.Is(err, session.ErrRedisUnavailable) {
			return "", storeFailure(err)
		}
		return "", ErrUnauthorized
	}

	return sess.PrincipalID, nil
}

// ChangeSecret rotates the principal's rotating secret after proving
// ownership with the login secret.
//
// The check order is fixed: rate limit, required fields, confirmation
// match, policy, then old-secret verification. Policy runs before the old
// secret is verified so a malformed new secret never reveals whether the
// old one was correct. Every rejection at those steps records one failed
// attempt and exactly one durable audit entry.
//
// On commit the rotating secret is replaced, every session of the
// principal is invalidated, the principal's limiter bucket is cleared, and
// a password_changed entry is appended. The limiter reset is best-effort;
// the replace and the audit append are separate writes, so a crash between
// them can leave a rotated secret without its success entry.
func (w *Workflow) ChangeSecret(ctx context.Context, token, oldSecret, newSecret, confirmSecret, origin string) error {
	if w == nil || w.hasher == nil {
		return ErrWorkflowNotReady
	}

	principalID, err := w.CurrentPrincipal(ctx, token)
	if err != nil {
		return err
	}

	blocked, err := w.limiter.IsBlocked(ctx, origin, principalID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if blocked {
		w.metricInc(MetricRotationRateLimited)
		w.emitAudit(ctx, auditEventSecretChangeRateLimited, false, principalID, origin, ErrRateLimited, nil)
		w.emitRateLimit(ctx, "change_secret", origin, func() map[string]string {
			return map[string]string{
				"principal": principalID,
			}
		})
		return ErrRateLimited
	}

	if oldSecret == "" || newSecret == "" || confirmSecret == "" {
		return w.failRotation(ctx, principalID, origin, auditEventSecretChangeMissingInput, ErrMissingInput)
	}
	if newSecret != confirmSecret {
		return w.failRotation(ctx, principalID, origin, auditEventSecretChangeMismatch, ErrConfirmMismatch)
	}
	if err := w.checkSecretPolicy(newSecret); err != nil {
		return w.failRotation(ctx, principalID, origin, auditEventSecretChangePolicy, err)
	}

	sctx, cancel := w.storeContext(ctx)
	cred, err := w.credentials.Get(sctx, principalID, KindLogin)
	cancel()
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return w.failRotation(ctx, principalID, origin, auditEventSecretChangeInvalidOld, ErrInvalidCredentials)
		}
		return storeFailure(err)
	}

	ok, err := w.hasher.Verify(oldSecret, cred.SecretHash)
	if err != nil || !ok {
		return w.failRotation(ctx, principalID, origin, auditEventSecretChangeInvalidOld, ErrInvalidCredentials)
	}
	oldSecret = ""

	newHash, err := w.hasher.Hash(newSecret)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	newSecret = ""
	confirmSecret = ""

	sctx, cancel = w.storeContext(ctx)
	err = w.credentials.Replace(sctx, principalID, KindRotating, newHash)
	cancel()
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return w.failRotation(ctx, principalID, origin, auditEventSecretChangeInvalidOld, ErrInvalidCredentials)
		}
		return storeFailure(err)
	}

	if err := w.sessionStore.DeleteAllForPrincipal(ctx, principalID); err != nil {
		log.Print("keyturn: session invalidation failed after secret rotation")
		return errors.Join(ErrSessionInvalidationFailed, err)
	}

	// Limiter reset is best-effort and must not block a committed rotation.
	if err := w.limiter.Reset(ctx, principalID); err != nil {
		log.Print("keyturn: limiter reset failed after secret rotation")
	}

	if err := w.appendAudit(ctx, principalID, auditEventSecretChanged, origin); err != nil {
		return err
	}

	w.metricInc(MetricRotationSuccess)
	w.metricInc(MetricSessionInvalidated)
	w.emitAudit(ctx, auditEventSecretChanged, true, principalID, origin, nil, nil)

	return nil
}

// failRotation records the failed attempt, appends exactly one durable
// entry of the given kind, and returns cause unchanged.
func (w *Workflow) failRotation(ctx context.Context, principalID, origin, eventKind string, cause error) error {
	if err := w.limiter.RecordFailure(ctx, origin, principalID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := w.appendAudit(ctx, principalID, eventKind, origin); err != nil {
		return err
	}

	w.metricInc(MetricRotationRejected)
	w.emitAudit(ctx, eventKind, false, principalID, origin, cause, nil)

	return cause
}

func (w *Workflow) checkSecretPolicy(candidate string) error {
	p := w.config.Policy

	if len(candidate) < p.MinLength {
		return fmt.Errorf("%w: need at least %d characters", ErrSecretPolicy, p.MinLength)
	}

	var hasUpper, hasLower, hasDigit bool
	for _, r := range candidate {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}

	if p.RequireUpper && !hasUpper {
		return fmt.Errorf("%w: need an upper-case letter", ErrSecretPolicy)
	}
	if p.RequireLower && !hasLower {
		return fmt.Errorf("%w: need a lower-case letter", ErrSecretPolicy)
	}
	if p.RequireDigit && !hasDigit {
		return fmt.Errorf("%w: need a digit", ErrSecretPolicy)
	}

	return nil
}

// storeFailure wraps a store error once. Errors already tagged as store
// failures pass through unchanged.
func storeFailure(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

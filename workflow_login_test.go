package keyturn

import (
	"context"
	"errors"
	"testing"

	"github.com/keyturnlabs/keyturn/secret"
)

func TestLoginSuccessIssuesSession(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	store := newMockCredentialStore()
	auditLog := newMockAuditLog()
	seedPrincipal(t, store, "demo", "1234", "Rotat1ngSecret")

	w := newTestWorkflow(t, workflowTestConfig(), rdb, store, auditLog, nil)

	result, err := w.Login(ctx, "demo", "1234", "203.0.113.1")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if result.PrincipalID != "demo" {
		t.Fatalf("expected principal demo, got %q", result.PrincipalID)
	}
	if result.SessionToken == "" {
		t.Fatal("expected a session token")
	}

	principalID, err := w.CurrentPrincipal(ctx, result.SessionToken)
	if err != nil {
		t.Fatalf("CurrentPrincipal failed: %v", err)
	}
	if principalID != "demo" {
		t.Fatalf("expected token to resolve to demo, got %q", principalID)
	}

	if auditLog.countKind("login_success") != 1 {
		t.Fatalf("expected one login_success entry, got %d", auditLog.countKind("login_success"))
	}
	if got := auditLog.last(); got.Origin != "203.0.113.1" {
		t.Fatalf("expected origin on audit entry, got %q", got.Origin)
	}
}

func TestLoginWrongSecretIsInvalidCredentials(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	store := newMockCredentialStore()
	auditLog := newMockAuditLog()
	seedPrincipal(t, store, "demo", "1234", "Rotat1ngSecret")

	w := newTestWorkflow(t, workflowTestConfig(), rdb, store, auditLog, nil)

	_, err := w.Login(ctx, "demo", "9999", "203.0.113.1")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	if auditLog.countKind("login_failure") != 1 {
		t.Fatalf("expected one login_failure entry, got %d", auditLog.countKind("login_failure"))
	}
	if !mr.Exists("rw:p:demo") {
		t.Fatal("expected failure to be recorded under the principal key")
	}
	if !mr.Exists("rw:o:203.0.113.1") {
		t.Fatal("expected failure to be recorded under the origin key")
	}
}

func TestLoginUnknownPrincipalIndistinguishableFromWrongSecret(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	store := newMockCredentialStore()
	auditLog := newMockAuditLog()
	seedPrincipal(t, store, "demo", "1234", "Rotat1ngSecret")

	w := newTestWorkflow(t, workflowTestConfig(), rdb, store, auditLog, nil)

	_, unknownErr := w.Login(ctx, "ghost", "1234", "203.0.113.1")
	_, wrongErr := w.Login(ctx, "demo", "9999", "203.0.113.1")

	if !errors.Is(unknownErr, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown principal, got %v", unknownErr)
	}
	if unknownErr.Error() != wrongErr.Error() {
		t.Fatalf("expected identical errors, got %q vs %q", unknownErr, wrongErr)
	}
}

func TestLoginEmptyInputCountsAsFailure(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	store := newMockCredentialStore()
	auditLog := newMockAuditLog()

	w := newTestWorkflow(t, workflowTestConfig(), rdb, store, auditLog, nil)

	_, err := w.Login(ctx, "", "", "203.0.113.1")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if store.getCalls != 0 {
		t.Fatal("expected no store access for empty input")
	}
	if !mr.Exists("rw:o:203.0.113.1") {
		t.Fatal("expected empty-input failure to count against the origin")
	}
}

func TestLoginRateLimitedAfterMaxFailures(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	store := newMockCredentialStore()
	auditLog := newMockAuditLog()
	seedPrincipal(t, store, "demo", "1234", "Rotat1ngSecret")

	w := newTestWorkflow(t, workflowTestConfig(), rdb, store, auditLog, nil)

	for i := 0; i < 5; i++ {
		_, err := w.Login(ctx, "demo", "9999", "203.0.113.1")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}

	before := auditLog.count()

	// Correct secret, but the window is saturated.
	_, err := w.Login(ctx, "demo", "1234", "203.0.113.1")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	if auditLog.count() != before {
		t.Fatal("expected no durable audit entry for a rate-limited attempt")
	}

	snapshot := w.MetricsSnapshot()
	if snapshot.Counters[MetricLoginRateLimited] != 1 {
		t.Fatalf("expected one rate-limited login, got %d", snapshot.Counters[MetricLoginRateLimited])
	}
}

func TestLoginSuccessDoesNotResetLimiter(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	store := newMockCredentialStore()
	auditLog := newMockAuditLog()
	seedPrincipal(t, store, "demo", "1234", "Rotat1ngSecret")

	w := newTestWorkflow(t, workflowTestConfig(), rdb, store, auditLog, nil)

	for i := 0; i < 4; i++ {
		if _, err := w.Login(ctx, "demo", "9999", "203.0.113.1"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}

	if _, err := w.Login(ctx, "demo", "1234", "203.0.113.1"); err != nil {
		t.Fatalf("Login failed below the threshold: %v", err)
	}

	// The earlier failures still count; one more saturates the window.
	if _, err := w.Login(ctx, "demo", "9999", "203.0.113.1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := w.Login(ctx, "demo", "1234", "203.0.113.1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited after the window filled, got %v", err)
	}
}

func TestLoginInvalidatesPriorSessionToken(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	store := newMockCredentialStore()
	auditLog := newMockAuditLog()
	seedPrincipal(t, store, "demo", "1234", "Rotat1ngSecret")

	w := newTestWorkflow(t, workflowTestConfig(), rdb, store, auditLog, nil)

	first, err := w.Login(ctx, "demo", "1234", "203.0.113.1")
	if err != nil {
		t.Fatalf("first login failed: %v", err)
	}

	second, err := w.Login(WithPriorSessionToken(ctx, first.SessionToken), "demo", "1234", "203.0.113.1")
	if err != nil {
		t.Fatalf("second login failed: %v", err)
	}
	if second.SessionToken == first.SessionToken {
		t.Fatal("expected a fresh token")
	}

	if _, err := w.CurrentPrincipal(ctx, first.SessionToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected prior token to be invalidated, got %v", err)
	}
	if _, err := w.CurrentPrincipal(ctx, second.SessionToken); err != nil {
		t.Fatalf("expected fresh token to resolve, got %v", err)
	}
}

func TestLoginAuditAppendFailureTearsDownSession(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	store := newMockCredentialStore()
	auditLog := newMockAuditLog()
	auditLog.failKinds = map[string]bool{"login_success": true}
	seedPrincipal(t, store, "demo", "1234", "Rotat1ngSecret")

	w := newTestWorkflow(t, workflowTestConfig(), rdb, store, auditLog, nil)

	_, err := w.Login(ctx, "demo", "1234", "203.0.113.1")
	if !errors.Is(err, ErrAuditUnavailable) {
		t.Fatalf("expected ErrAuditUnavailable, got %v", err)
	}

	for _, key := range mr.Keys() {
		if len(key) > 5 && key[:5] == "kt:s:" {
			t.Fatalf("expected no session to survive an audit failure, found %q", key)
		}
	}
}

func TestLoginRecordsUserAgentOnAuditEntry(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	store := newMockCredentialStore()
	auditLog := newMockAuditLog()
	seedPrincipal(t, store, "demo", "1234", "Rotat1ngSecret")

	w := newTestWorkflow(t, workflowTestConfig(), rdb, store, auditLog, nil)

	ctx := WithUserAgent(context.Background(), "curl/8.5.0")
	if _, err := w.Login(ctx, "demo", "1234", "203.0.113.1"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if got := auditLog.last(); got.UserAgent != "curl/8.5.0" {
		t.Fatalf("expected user agent on audit entry, got %q", got.UserAgent)
	}
}

func TestLoginRehashesWeakHashWhenEnabled(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	store := newMockCredentialStore()
	auditLog := newMockAuditLog()

	// Hash seeded with parameters below the configured ones.
	weakHasher, err := secret.NewHasher(secret.Config{
		Memory:      8192,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("NewHasher failed: %v", err)
	}
	weakHash, err := weakHasher.Hash("1234")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	store.seed("demo", KindLogin, weakHash)

	cfg := workflowTestConfig()
	cfg.Secret.RehashOnLogin = true
	w := newTestWorkflow(t, cfg, rdb, store, auditLog, nil)

	if _, err := w.Login(ctx, "demo", "1234", "203.0.113.1"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	upgraded := store.hash("demo", KindLogin)
	if upgraded == weakHash {
		t.Fatal("expected the stored hash to be upgraded")
	}

	strongHasher := newTestHasher(t)
	ok, err := strongHasher.Verify("1234", upgraded)
	if err != nil || !ok {
		t.Fatalf("upgraded hash verify failed, ok=%v err=%v", ok, err)
	}
	needs, err := strongHasher.NeedsRehash(upgraded)
	if err != nil {
		t.Fatalf("NeedsRehash failed: %v", err)
	}
	if needs {
		t.Fatal("expected upgraded hash to match the configured parameters")
	}
}

func TestLogoutIdempotent(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	store := newMockCredentialStore()
	auditLog := newMockAuditLog()
	seedPrincipal(t, store, "demo", "1234", "Rotat1ngSecret")

	w := newTestWorkflow(t, workflowTestConfig(), rdb, store, auditLog, nil)

	result, err := w.Login(ctx, "demo", "1234", "203.0.113.1")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if err := w.Logout(ctx, result.SessionToken); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if _, err := w.CurrentPrincipal(ctx, result.SessionToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized after logout, got %v", err)
	}

	// Second logout of the same token is a no-op.
	if err := w.Logout(ctx, result.SessionToken); err != nil {
		t.Fatalf("repeated Logout failed: %v", err)
	}
	if err := w.Logout(ctx, ""); err != nil {
		t.Fatalf("empty-token Logout failed: %v", err)
	}

	if auditLog.countKind("logout") != 1 {
		t.Fatalf("expected one logout entry, got %d", auditLog.countKind("logout"))
	}
}

func TestCurrentPrincipalRejectsEmptyAndUnknownTokens(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	w := newTestWorkflow(t, workflowTestConfig(), rdb, newMockCredentialStore(), newMockAuditLog(), nil)

	if _, err := w.CurrentPrincipal(ctx, ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for empty token, got %v", err)
	}
	if _, err := w.CurrentPrincipal(ctx, "bogus"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for unknown token, got %v", err)
	}
}

func TestLoginMetricsCountOutcomes(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	store := newMockCredentialStore()
	auditLog := newMockAuditLog()
	seedPrincipal(t, store, "demo", "1234", "Rotat1ngSecret")

	w := newTestWorkflow(t, workflowTestConfig(), rdb, store, auditLog, nil)

	if _, err := w.Login(ctx, "demo", "1234", "203.0.113.1"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if _, err := w.Login(ctx, "demo", "9999", "203.0.113.1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	snapshot := w.MetricsSnapshot()
	if snapshot.Counters[MetricLoginSuccess] != 1 {
		t.Fatalf("expected one login success, got %d", snapshot.Counters[MetricLoginSuccess])
	}
	if snapshot.Counters[MetricLoginFailure] != 1 {
		t.Fatalf("expected one login failure, got %d", snapshot.Counters[MetricLoginFailure])
	}
	if snapshot.Counters[MetricSessionCreated] != 1 {
		t.Fatalf("expected one session created, got %d", snapshot.Counters[MetricSessionCreated])
	}
}

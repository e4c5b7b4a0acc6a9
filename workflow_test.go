package keyturn

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/keyturnlabs/keyturn/secret"
)

type mockCredentialStore struct {
	mu    sync.Mutex
	creds map[string]map[CredentialKind]string

	getErr     error
	replaceErr error

	getCalls     int
	replaceCalls int
}

func newMockCredentialStore() *mockCredentialStore {
	return &mockCredentialStore{
		creds: make(map[string]map[CredentialKind]string),
	}
}

func (m *mockCredentialStore) seed(principalID string, kind CredentialKind, hash string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.creds[principalID] == nil {
		m.creds[principalID] = make(map[CredentialKind]string)
	}
	m.creds[principalID][kind] = hash
}

func (m *mockCredentialStore) hash(principalID string, kind CredentialKind) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creds[principalID][kind]
}

func (m *mockCredentialStore) Get(ctx context.Context, principalID string, kind CredentialKind) (Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++

	if m.getErr != nil {
		return Credential{}, m.getErr
	}

	hash, ok := m.creds[principalID][kind]
	if !ok {
		return Credential{}, ErrPrincipalNotFound
	}

	return Credential{
		PrincipalID: principalID,
		Kind:        kind,
		SecretHash:  hash,
	}, nil
}

func (m *mockCredentialStore) Replace(ctx context.Context, principalID string, kind CredentialKind, newHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replaceCalls++

	if m.replaceErr != nil {
		return m.replaceErr
	}

	if _, ok := m.creds[principalID][kind]; !ok {
		return ErrPrincipalNotFound
	}
	m.creds[principalID][kind] = newHash
	return nil
}

type mockAuditLog struct {
	mu      sync.Mutex
	entries []AuditEntry

	appendErr error
	failKinds map[string]bool

	appendCalls int
}

func newMockAuditLog() *mockAuditLog {
	return &mockAuditLog{}
}

func (m *mockAuditLog) Append(ctx context.Context, entry AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendCalls++

	if m.appendErr != nil {
		return m.appendErr
	}
	if m.failKinds[entry.EventKind] {
		return errors.New("append rejected")
	}

	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockAuditLog) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *mockAuditLog) countKind(eventKind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, e := range m.entries {
		if e.EventKind == eventKind {
			n++
		}
	}
	return n
}

func (m *mockAuditLog) last() AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.entries) == 0 {
		return AuditEntry{}
	}
	return m.entries[len(m.entries)-1]
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func newTestHasher(t *testing.T) *secret.Hasher {
	t.Helper()

	h, err := secret.NewHasher(secret.Config{
		Memory:      65536,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("NewHasher failed: %v", err)
	}
	return h
}

func workflowTestConfig() Config {
	return DefaultConfig()
}

func newTestWorkflow(t *testing.T, cfg Config, rdb *redis.Client, creds CredentialStore, auditLog AuditLog, sink AuditSink) *Workflow {
	t.Helper()

	builder := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialStore(creds).
		WithAuditLog(auditLog)
	if sink != nil {
		builder = builder.WithAuditSink(sink)
	}

	workflow, err := builder.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(workflow.Close)

	return workflow
}

// seedPrincipal provisions both credential kinds with hashes the workflow's
// default hasher can verify.
func seedPrincipal(t *testing.T, store *mockCredentialStore, principalID, loginSecret, rotatingSecret string) {
	t.Helper()

	hasher := newTestHasher(t)
	loginHash, err := hasher.Hash(loginSecret)
	if err != nil {
		t.Fatalf("Hash login secret failed: %v", err)
	}
	rotatingHash, err := hasher.Hash(rotatingSecret)
	if err != nil {
		t.Fatalf("Hash rotating secret failed: %v", err)
	}

	store.seed(principalID, KindLogin, loginHash)
	store.seed(principalID, KindRotating, rotatingHash)
}

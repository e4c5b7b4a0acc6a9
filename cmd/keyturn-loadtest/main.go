package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	keyturn "github.com/keyturnlabs/keyturn"
	"github.com/keyturnlabs/keyturn/internal"
	"github.com/keyturnlabs/keyturn/secret"
	"github.com/keyturnlabs/keyturn/session"
)

func main() {
	var (
		sessions    = flag.Int("sessions", 100000, "number of sessions to seed")
		principals  = flag.Int("principals", 256, "number of principals for the login phase")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations per phase (resolve + login)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "kt", "session key prefix")
	)
	flag.Parse()

	if *sessions <= 0 || *principals <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "sessions, principals, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  *redis.Client
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewClient(&redis.Options{Addr: addr})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewClient(&redis.Options{Addr: addr})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	store := session.NewStore(client, *prefix)

	tokens := make([]string, *sessions)
	fmt.Printf("seeding %d sessions...\n", *sessions)
	startSeed := time.Now()
	for i := 0; i < *sessions; i++ {
		tok, err := internal.NewSessionToken()
		if err != nil {
			fmt.Fprintf(os.Stderr, "token generation failed: %v\n", err)
			os.Exit(1)
		}
		tokens[i] = tok.String()
		if err := store.Save(ctx, buildSession(tokens[i], i), 24*time.Hour); err != nil {
			fmt.Fprintf(os.Stderr, "save failed: %v\n", err)
			os.Exit(1)
		}
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	resolveStats := runResolvePhase(ctx, store, tokens, *ops, *concurrency)

	workflow, principalIDs := buildLoginWorkflow(client, *principals)
	defer workflow.Close()
	loginStats := runLoginPhase(ctx, workflow, principalIDs, *ops, *concurrency)

	fmt.Println("---- results ----")
	printStats("resolve", resolveStats)
	printStats("login", loginStats)
}

// buildLoginWorkflow assembles a workflow with in-memory durable stores and a
// deliberately cheap argon2 profile, so the run measures orchestration and
// Redis throughput rather than hash hardness.
func buildLoginWorkflow(client *redis.Client, principals int) (*keyturn.Workflow, []string) {
	cfg := keyturn.DefaultConfig()
	cfg.Secret.Memory = 8192
	cfg.Secret.Time = 1
	cfg.Secret.Parallelism = 1
	cfg.RateLimit.MaxAttempts = 1 << 30
	cfg.Session.RedisPrefix = "ktl"

	hasher, err := secret.NewHasher(secret.Config{
		Memory:      cfg.Secret.Memory,
		Time:        cfg.Secret.Time,
		Parallelism: cfg.Secret.Parallelism,
		SaltLength:  cfg.Secret.SaltLength,
		KeyLength:   cfg.Secret.KeyLength,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "hasher init failed: %v\n", err)
		os.Exit(1)
	}

	store := newMemCredentialStore()
	principalIDs := make([]string, principals)
	for i := range principalIDs {
		principalIDs[i] = fmt.Sprintf("p%d", i)
		hash, err := hasher.Hash("1234")
		if err != nil {
			fmt.Fprintf(os.Stderr, "seed hash failed: %v\n", err)
			os.Exit(1)
		}
		store.seed(principalIDs[i], keyturn.KindLogin, hash)
	}

	workflow, err := keyturn.New().
		WithConfig(cfg).
		WithRedis(client).
		WithCredentialStore(store).
		WithAuditLog(discardAuditLog{}).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "workflow build failed: %v\n", err)
		os.Exit(1)
	}

	return workflow, principalIDs
}

func runResolvePhase(ctx context.Context, store *session.Store, tokens []string, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				idx := r.Intn(len(tokens))
				t0 := time.Now()
				_, err := store.Get(ctx, tokens[idx])
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

func runLoginPhase(ctx context.Context, workflow *keyturn.Workflow, principalIDs []string, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*6151))
			origin := fmt.Sprintf("10.0.%d.%d", worker/256, worker%256)
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				idx := r.Intn(len(principalIDs))
				t0 := time.Now()
				result, err := workflow.Login(ctx, principalIDs[idx], "1234", origin)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				} else {
					_ = workflow.Logout(ctx, result.SessionToken)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

func buildSession(token string, i int) *session.Session {
	now := time.Now()
	return &session.Session{
		Token:       token,
		PrincipalID: fmt.Sprintf("p%d", i%1024),
		Origin:      "10.0.0.1",
		CreatedAt:   now.Unix(),
		ExpiresAt:   now.Add(24 * time.Hour).Unix(),
	}
}

type memCredentialStore struct {
	mu    sync.RWMutex
	creds map[string]map[keyturn.CredentialKind]keyturn.Credential
}

func newMemCredentialStore() *memCredentialStore {
	return &memCredentialStore{
		creds: make(map[string]map[keyturn.CredentialKind]keyturn.Credential),
	}
}

func (s *memCredentialStore) seed(principalID string, kind keyturn.CredentialKind, hash string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.creds[principalID] == nil {
		s.creds[principalID] = make(map[keyturn.CredentialKind]keyturn.Credential)
	}
	s.creds[principalID][kind] = keyturn.Credential{
		PrincipalID: principalID,
		Kind:        kind,
		SecretHash:  hash,
		UpdatedAt:   time.Now().UTC(),
	}
}

func (s *memCredentialStore) Get(_ context.Context, principalID string, kind keyturn.CredentialKind) (keyturn.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, ok := s.creds[principalID][kind]
	if !ok {
		return keyturn.Credential{}, keyturn.ErrPrincipalNotFound
	}
	return cred, nil
}

func (s *memCredentialStore) Replace(_ context.Context, principalID string, kind keyturn.CredentialKind, newHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.creds[principalID][kind]
	if !ok {
		return keyturn.ErrPrincipalNotFound
	}
	cred.SecretHash = newHash
	s.creds[principalID][kind] = cred
	return nil
}

type discardAuditLog struct{}

func (discardAuditLog) Append(context.Context, keyturn.AuditEntry) error { return nil }

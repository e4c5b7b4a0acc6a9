package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newStoreTest(t *testing.T) (*Store, *redis.Client, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewStore(rdb, "kt")
	return store, rdb, func() {
		rdb.Close()
		mr.Close()
	}
}

func testSession(token string) *Session {
	now := time.Now()
	return &Session{
		Token:       token,
		PrincipalID: "demo",
		Origin:      "10.0.0.1",
		UserAgent:   "test-agent/1.0",
		CreatedAt:   now.Unix(),
		ExpiresAt:   now.Add(time.Hour).Unix(),
	}
}

func TestSaveAndGetRoundTrip(t *testing.T) {
	store, _, done := newStoreTest(t)
	defer done()
	ctx := context.Background()

	sess := testSession("tok-1")
	if err := store.Save(ctx, sess, time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.Get(ctx, "tok-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.PrincipalID != sess.PrincipalID {
		t.Fatalf("principal mismatch: got %q want %q", got.PrincipalID, sess.PrincipalID)
	}
	if got.Origin != sess.Origin || got.UserAgent != sess.UserAgent {
		t.Fatalf("metadata mismatch: got %+v", got)
	}
	if got.CreatedAt != sess.CreatedAt || got.ExpiresAt != sess.ExpiresAt {
		t.Fatalf("timestamp mismatch: got %+v", got)
	}
}

func TestGetMissingToken(t *testing.T) {
	store, _, done := newStoreTest(t)
	defer done()

	_, err := store.Get(context.Background(), "no-such-token")
	if !errors.Is(err, redis.Nil) {
		t.Fatalf("expected redis.Nil, got %v", err)
	}
}

func TestGetExpiredSessionDeleted(t *testing.T) {
	store, rdb, done := newStoreTest(t)
	defer done()
	ctx := context.Background()

	sess := testSession("tok-expired")
	sess.ExpiresAt = time.Now().Add(-time.Minute).Unix()
	if err := store.Save(ctx, sess, time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}

	_, err := store.Get(ctx, "tok-expired")
	if !errors.Is(err, redis.Nil) {
		t.Fatalf("expected redis.Nil for expired session, got %v", err)
	}

	members, err := rdb.SMembers(ctx, store.principalKey(sess.PrincipalID)).Result()
	if err != nil {
		t.Fatalf("smembers: %v", err)
	}
	if len(members) != 0 {
		t.Fatalf("expected expired token removed from index, got %v", members)
	}
}

func TestDeleteIdempotent(t *testing.T) {
	store, rdb, done := newStoreTest(t)
	defer done()
	ctx := context.Background()

	sess := testSession("tok-del")
	if err := store.Save(ctx, sess, time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Delete(ctx, "tok-del"); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := store.Delete(ctx, "tok-del"); err != nil {
		t.Fatalf("second delete: %v", err)
	}

	members, err := rdb.SMembers(ctx, store.principalKey(sess.PrincipalID)).Result()
	if err != nil {
		t.Fatalf("smembers: %v", err)
	}
	if len(members) != 0 {
		t.Fatalf("expected empty principal index, got %v", members)
	}
}

func TestDeleteAllForPrincipal(t *testing.T) {
	store, _, done := newStoreTest(t)
	defer done()
	ctx := context.Background()

	for _, token := range []string{"tok-a", "tok-b", "tok-c"} {
		sess := testSession(token)
		if err := store.Save(ctx, sess, time.Hour); err != nil {
			t.Fatalf("save %s: %v", token, err)
		}
	}

	other := testSession("tok-other")
	other.PrincipalID = "someone-else"
	if err := store.Save(ctx, other, time.Hour); err != nil {
		t.Fatalf("save other: %v", err)
	}

	if err := store.DeleteAllForPrincipal(ctx, "demo"); err != nil {
		t.Fatalf("delete all: %v", err)
	}

	for _, token := range []string{"tok-a", "tok-b", "tok-c"} {
		if _, err := store.Get(ctx, token); !errors.Is(err, redis.Nil) {
			t.Fatalf("expected %s gone, got %v", token, err)
		}
	}

	if _, err := store.Get(ctx, "tok-other"); err != nil {
		t.Fatalf("expected unrelated principal session untouched: %v", err)
	}
}

func TestEncodeRejectsOversizedFields(t *testing.T) {
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'x'
	}

	sess := testSession("tok-long")
	sess.UserAgent = string(long)
	if _, err := Encode(sess); err == nil {
		t.Fatal("expected oversized user agent to be rejected")
	}
}

func TestDecodeRejectsUnknownVersion(t *testing.T) {
	sess := testSession("tok-v")
	data, err := Encode(sess)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	data[0] = 9

	if _, err := Decode(data); err == nil {
		t.Fatal("expected unknown version to be rejected")
	}
}

func TestDecodeRejectsTruncatedBlob(t *testing.T) {
	sess := testSession("tok-t")
	data, err := Encode(sess)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	if _, err := Decode(data[:len(data)-4]); err == nil {
		t.Fatal("expected truncated blob to be rejected")
	}
}

package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := NewRedisStore("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestNewRedisStoreRejectsBadURL(t *testing.T) {
	if _, err := NewRedisStore("not a url"); err == nil {
		t.Fatal("expected error for invalid url")
	}
}

func TestRefreshSessionLifecycle(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	if err := store.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := store.SaveRefreshSession(ctx, "hash-1", "acc-1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("SaveRefreshSession: %v", err)
	}
	if ttl := mr.TTL("resumekit:refresh:hash-1"); ttl <= 0 || ttl > time.Hour {
		t.Fatalf("unexpected ttl %v", ttl)
	}

	accountID, err := store.LookupRefreshSession(ctx, "hash-1")
	if err != nil {
		t.Fatalf("LookupRefreshSession: %v", err)
	}
	if accountID != "acc-1" {
		t.Fatalf("expected acc-1, got %q", accountID)
	}

	if err := store.RevokeRefreshSession(ctx, "hash-1"); err != nil {
		t.Fatalf("RevokeRefreshSession: %v", err)
	}
	if _, err := store.LookupRefreshSession(ctx, "hash-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after revoke, got %v", err)
	}
	if err := store.RevokeRefreshSession(ctx, "never-saved"); err != nil {
		t.Fatalf("revoking an unknown session should not fail: %v", err)
	}
}

func TestRefreshSessionExpires(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	if err := store.SaveRefreshSession(ctx, "short", "acc-2", time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("SaveRefreshSession: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	if _, err := store.LookupRefreshSession(ctx, "short"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestRefreshSessionPastExpiryUsesDefaultTTL(t *testing.T) {
	store, mr := setupTestRedis(t)
	if err := store.SaveRefreshSession(context.Background(), "stale", "acc-3", time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("SaveRefreshSession: %v", err)
	}
	if ttl := mr.TTL("resumekit:refresh:stale"); ttl != defaultRefreshTTL {
		t.Fatalf("expected default ttl, got %v", ttl)
	}
}

func TestAccessTokenDenylist(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	revoked, err := store.IsAccessTokenRevoked(ctx, "jti-1")
	if err != nil || revoked {
		t.Fatalf("fresh token: revoked=%v err=%v", revoked, err)
	}

	if err := store.RevokeAccessToken(ctx, "jti-1", time.Now().Add(10*time.Minute)); err != nil {
		t.Fatalf("RevokeAccessToken: %v", err)
	}
	revoked, err = store.IsAccessTokenRevoked(ctx, "jti-1")
	if err != nil || !revoked {
		t.Fatalf("revoked token: revoked=%v err=%v", revoked, err)
	}

	// The entry disappears once the token would have expired anyway.
	mr.FastForward(11 * time.Minute)
	revoked, _ = store.IsAccessTokenRevoked(ctx, "jti-1")
	if revoked {
		t.Fatal("denylist entry should expire with the token")
	}

	if err := store.RevokeAccessToken(ctx, "jti-old", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("RevokeAccessToken for expired token: %v", err)
	}
	if mr.Exists("resumekit:revoked:jti-old") {
		t.Fatal("already expired tokens should not be stored")
	}
}

func TestSessionIsolation(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()
	expiresAt := time.Now().Add(24 * time.Hour)

	for _, pair := range [][2]string{{"token-1", "acc-1"}, {"token-2", "acc-2"}} {
		if err := store.SaveRefreshSession(ctx, pair[0], pair[1], expiresAt); err != nil {
			t.Fatalf("SaveRefreshSession %s: %v", pair[0], err)
		}
	}
	if err := store.RevokeRefreshSession(ctx, "token-1"); err != nil {
		t.Fatalf("RevokeRefreshSession: %v", err)
	}
	if _, err := store.LookupRefreshSession(ctx, "token-1"); err == nil {
		t.Fatal("token-1 should be revoked")
	}
	accountID, err := store.LookupRefreshSession(ctx, "token-2")
	if err != nil || accountID != "acc-2" {
		t.Fatalf("token-2: account=%q err=%v", accountID, err)
	}
}

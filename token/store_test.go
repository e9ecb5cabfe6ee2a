package token

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, "lmtok"), mr
}

func testRecord() *Record {
	return &Record{
		Token: "tok-abc",
		User: &User{
			ID:       "u-1",
			Username: "amara",
			Email:    "amara@example.com",
			FullName: "Amara Okafor",
			Role:     "Buyer",
		},
	}
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, "dev-1", testRecord(), time.Hour); err != nil {
		t.Fatalf("Save: %v", err)
	}

	rec, err := store.Load(ctx, "dev-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if rec.Token != "tok-abc" {
		t.Errorf("Token = %q, want tok-abc", rec.Token)
	}
	if rec.User == nil || rec.User.Username != "amara" {
		t.Errorf("User = %+v, want username amara", rec.User)
	}
	if rec.UserID != "u-1" {
		t.Errorf("UserID = %q, want u-1 (mirror of User.ID)", rec.UserID)
	}
}

func TestRedisStoreLoadMissing(t *testing.T) {
	store, _ := newTestRedisStore(t)

	if _, err := store.Load(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load missing = %v, want ErrNotFound", err)
	}
}

func TestRedisStoreCorruptBlobIsDropped(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()
	mr.Set("lmtok:dev-1", "{not json")

	if _, err := store.Load(ctx, "dev-1"); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("Load corrupt = %v, want ErrCorrupt", err)
	}
	// The bad blob must be gone so the next load is a clean miss.
	if _, err := store.Load(ctx, "dev-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load after corrupt = %v, want ErrNotFound", err)
	}
}

func TestRedisStoreDesyncedRecord(t *testing.T) {
	store, mr := newTestRedisStore(t)
	mr.Set("lmtok:dev-1", `{"token":"tok-abc"}`)

	if _, err := store.Load(context.Background(), "dev-1"); !errors.Is(err, ErrDesynced) {
		t.Fatalf("Load token-only = %v, want ErrDesynced", err)
	}
}

func TestRedisStoreRepairsMissingUserID(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()
	mr.Set("lmtok:dev-1", `{"token":"tok-abc","user":{"id":"u-9","username":"amara","role":"Seller"}}`)
	mr.SetTTL("lmtok:dev-1", time.Hour)

	rec, err := store.Load(ctx, "dev-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if rec.UserID != "u-9" {
		t.Errorf("UserID = %q, want repaired u-9", rec.UserID)
	}

	// The repair is written back and must not reset the key's TTL.
	if ttl := mr.TTL("lmtok:dev-1"); ttl != time.Hour {
		t.Errorf("TTL after repair = %v, want %v", ttl, time.Hour)
	}
	rec2, err := store.Load(ctx, "dev-1")
	if err != nil {
		t.Fatalf("Load after repair: %v", err)
	}
	if rec2.UserID != "u-9" {
		t.Errorf("persisted UserID = %q, want u-9", rec2.UserID)
	}
}

func TestRedisStoreExpiry(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, "dev-1", testRecord(), time.Minute); err != nil {
		t.Fatalf("Save: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	if _, err := store.Load(ctx, "dev-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load after TTL = %v, want ErrNotFound", err)
	}
}

func TestRedisStoreClearIdempotent(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, "dev-1", testRecord(), 0); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Clear(ctx, "dev-1"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if err := store.Clear(ctx, "dev-1"); err != nil {
		t.Fatalf("Clear absent: %v", err)
	}
	if _, err := store.Load(ctx, "dev-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load after Clear = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.Load(ctx, "dev-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load empty = %v, want ErrNotFound", err)
	}
	if err := store.Save(ctx, "dev-1", testRecord(), 0); err != nil {
		t.Fatalf("Save: %v", err)
	}
	rec, err := store.Load(ctx, "dev-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if rec.UserID != "u-1" {
		t.Errorf("UserID = %q, want u-1", rec.UserID)
	}
	if err := store.Clear(ctx, "dev-1"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, err := store.Load(ctx, "dev-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load after Clear = %v, want ErrNotFound", err)
	}
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   "u-1",
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

func TestParseExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)

	got, err := ParseExpiry(signedToken(t, exp))
	if err != nil {
		t.Fatalf("ParseExpiry: %v", err)
	}
	if !got.Equal(exp) {
		t.Errorf("expiry = %v, want %v", got, exp)
	}
}

func TestParseExpiryMalformed(t *testing.T) {
	for _, tok := range []string{"", "garbage", "a.b.c"} {
		if _, err := ParseExpiry(tok); !errors.Is(err, ErrTokenMalformed) {
			t.Errorf("ParseExpiry(%q) = %v, want ErrTokenMalformed", tok, err)
		}
	}
}

func TestParseExpiryNoClaim(t *testing.T) {
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "u-1"}).
		SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := ParseExpiry(tok); !errors.Is(err, ErrNoExpiry) {
		t.Fatalf("ParseExpiry = %v, want ErrNoExpiry", err)
	}
}

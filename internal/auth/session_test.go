package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcRedis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestPasswordHashing(t *testing.T) {
	if _, err := HashPassword("short"); err == nil {
		t.Fatalf("expected short password to be rejected")
	}
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := CheckPassword(hash, "correct horse"); err != nil {
		t.Fatalf("expected match: %v", err)
	}
	if err := CheckPassword(hash, "wrong horse"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if err := CheckPassword("", "anything"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("empty hash must disable login")
	}
}

func TestSessionLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	redisC, err := tcRedis.RunContainer(ctx, testcontainers.WithWaitStrategy(wait.ForListeningPort("6379/tcp")))
	if err != nil {
		t.Fatalf("redis container: %v", err)
	}
	t.Cleanup(func() { _ = redisC.Terminate(ctx) })
	host, _ := redisC.Host(ctx)
	port, _ := redisC.MappedPort(ctx, "6379")
	rdb := redis.NewClient(&redis.Options{Addr: host + ":" + port.Port()})
	t.Cleanup(func() { _ = rdb.Close() })

	st := NewSessionStore(rdb, time.Hour)
	sess, err := st.Create(ctx)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if ok, err := st.Valid(ctx, sess.ID); err != nil || !ok {
		t.Fatalf("expected live session, ok=%v err=%v", ok, err)
	}
	ttl, err := rdb.TTL(ctx, sessionKeyPrefix+sess.ID).Result()
	if err != nil || ttl <= 0 || ttl > time.Hour {
		t.Fatalf("unexpected ttl %v err=%v", ttl, err)
	}
	if err := st.Revoke(ctx, sess.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if ok, _ := st.Valid(ctx, sess.ID); ok {
		t.Fatalf("revoked session still valid")
	}
	if ok, _ := st.Valid(ctx, ""); ok {
		t.Fatalf("empty id must be invalid")
	}
}

func TestSessionExpiresWithTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	ctx := context.Background()

	store := NewSessionStore(rdb, time.Hour)
	sess, err := store.Create(ctx)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if ok, err := store.Valid(ctx, sess.ID); err != nil || !ok {
		t.Fatalf("expected fresh session valid, got %v %v", ok, err)
	}
	mr.FastForward(time.Hour + time.Second)
	if ok, err := store.Valid(ctx, sess.ID); err != nil || ok {
		t.Fatalf("expected session expired, got %v %v", ok, err)
	}
	if ok, _ := store.Valid(ctx, "  "); ok {
		t.Fatalf("blank id must never be valid")
	}
}

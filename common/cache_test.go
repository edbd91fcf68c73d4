package common_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/guarzo/authpipe/common"
)

func exerciseStorage(t *testing.T, s common.Storage) {
	t.Helper()
	ctx := context.Background()

	// 1) Set + Get
	if err := s.Set(ctx, "foo", []byte("bar"), time.Hour); err != nil {
		t.Fatalf("set: %v", err)
	}
	val, found, err := s.Get(ctx, "foo")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !found {
		t.Fatal("expected 'foo' to be in storage, not found")
	}
	if string(val) != "bar" {
		t.Errorf("expected 'bar', got %s", string(val))
	}

	// 2) Delete
	if err := s.Delete(ctx, "foo"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, found, err = s.Get(ctx, "foo")
	if err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	if found {
		t.Error("expected 'foo' to be deleted, but still found")
	}

	// 3) deleting a missing key is not an error
	if err := s.Delete(ctx, "missing"); err != nil {
		t.Errorf("delete missing: %v", err)
	}
}

func TestMemoryStorage(t *testing.T) {
	exerciseStorage(t, common.NewMemoryStorage())
}

func TestMemoryStorage_CopiesValues(t *testing.T) {
	s := common.NewMemoryStorage()
	ctx := context.Background()
	in := []byte("abc")
	_ = s.Set(ctx, "k", in, 0)
	in[0] = 'x'

	out, _, _ := s.Get(ctx, "k")
	if string(out) != "abc" {
		t.Errorf("stored value aliased caller slice: %s", out)
	}
}

func TestRedisStorage(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	s := common.NewRedisStorage(rdb, "test")
	exerciseStorage(t, s)

	_ = s.Set(context.Background(), "ns", []byte("v"), 0)
	if !mr.Exists("test:ns") {
		t.Error("expected key to be prefixed")
	}
	if ttl := mr.TTL("test:ns"); ttl != 0 {
		t.Errorf("expected no ttl, got %v", ttl)
	}
}

func TestRedisStorage_Unavailable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	s := common.NewRedisStorage(rdb, "")
	if _, _, err := s.Get(context.Background(), "k"); err == nil {
		t.Error("expected error from closed redis")
	}
}

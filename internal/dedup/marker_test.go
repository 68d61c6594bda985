package dedup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func TestDigestKey(t *testing.T) {
	t.Parallel()

	id := uuid.MustParse("0b0c7a66-0d3f-4d8e-9e37-3c8f2f6f7a11")
	loc, err := time.LoadLocation("Asia/Karachi")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}
	day := time.Date(2024, 3, 11, 0, 0, 0, 0, loc)

	got := DigestKey(id, day)
	want := "digest:0b0c7a66-0d3f-4d8e-9e37-3c8f2f6f7a11:2024-03-11"
	if got != want {
		t.Errorf("DigestKey() = %q, want %q", got, want)
	}
}

func TestNewRedisMarker_InvalidURL(t *testing.T) {
	t.Parallel()

	if _, err := NewRedisMarker("not-a-redis-url"); err == nil {
		t.Error("Expected error for invalid URL")
	}
}

func TestRedisMarker_UnreachableServer(t *testing.T) {
	t.Parallel()

	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	marker := NewRedisMarkerFromClient(client)
	defer func() {
		_ = marker.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	seen, err := marker.Seen(ctx, "digest:x")
	if err == nil {
		t.Fatal("Expected error from unreachable Redis")
	}
	if seen {
		t.Error("Seen must be false on error")
	}
	if err := marker.Mark(ctx, "digest:x", time.Minute); err == nil || errors.Is(err, context.Canceled) {
		t.Errorf("Expected connection error from Mark, got %v", err)
	}
}

package drafts

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/shliew97/frappe-whatsapp/internal/booking"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client), mr
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	if got, err := store.Get(ctx, "6011"); err != nil || got != nil {
		t.Fatalf("expected miss, got %v, %v", got, err)
	}

	draft := sampleDraft("6011")
	draft.MarkConfirmationShown()
	if err := store.Set(ctx, "6011", draft, 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	if !mr.Exists("pending_booking:6011") {
		t.Fatalf("expected pending_booking key")
	}
	if ttl := mr.TTL("pending_booking:6011"); ttl != DefaultTTL {
		t.Fatalf("expected default ttl, got %s", ttl)
	}

	got, err := store.Get(ctx, "6011")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State() != booking.StateAwaitingConfirmation {
		t.Fatalf("expected awaiting confirmation, got %s", got.State())
	}
	if got.Fields.Value(booking.FieldPax) != "2" {
		t.Fatalf("unexpected pax %q", got.Fields.Value(booking.FieldPax))
	}

	if err := store.Delete(ctx, "6011"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if mr.Exists("pending_booking:6011") {
		t.Fatalf("expected key deleted")
	}
}

func TestRedisStoreHonoursTTL(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "6011", sampleDraft("6011"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	mr.FastForward(2 * time.Minute)
	if got, err := store.Get(ctx, "6011"); err != nil || got != nil {
		t.Fatalf("expected expired draft, got %v, %v", got, err)
	}
}

func TestRedisStoreCorruptValue(t *testing.T) {
	store, mr := newTestRedisStore(t)
	if err := mr.Set("pending_booking:6011", "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := store.Get(context.Background(), "6011"); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestRedisStoreGetError(t *testing.T) {
	store, mr := newTestRedisStore(t)
	mr.Close()
	if _, err := store.Get(context.Background(), "6011"); err == nil {
		t.Fatalf("expected error when redis is down")
	}
}

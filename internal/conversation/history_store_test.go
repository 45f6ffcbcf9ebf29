package conversation

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestHistoryStore_AppendAndRecent(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewHistoryStore(client, nil)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "601", ChatMessage{Role: ChatRoleUser, Content: "hi"}))
	require.NoError(t, store.Append(ctx, "601", ChatMessage{Role: ChatRoleAssistant, Content: "hello!"}))
	require.NoError(t, store.Append(ctx, "601", ChatMessage{Role: ChatRoleUser, Content: "book please"}))

	recent, err := store.Recent(ctx, "601", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, "hello!", recent[0].Content)
	require.Equal(t, "book please", recent[1].Content)

	require.True(t, mr.TTL(historyKey("601")) > 0)

	empty, err := store.Recent(ctx, "602", 5)
	require.NoError(t, err)
	require.Empty(t, empty)

	require.NoError(t, store.Clear(ctx, "601"))
	cleared, err := store.Recent(ctx, "601", 5)
	require.NoError(t, err)
	require.Empty(t, cleared)
}

func TestHistoryStore_TrimsToLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewHistoryStore(client, nil)
	store.limit = 3
	ctx := context.Background()

	for _, text := range []string{"1", "2", "3", "4", "5"} {
		require.NoError(t, store.Append(ctx, "601", ChatMessage{Role: ChatRoleUser, Content: text}))
	}
	all, err := store.Recent(ctx, "601", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "3", all[0].Content)
}

func TestMemoryHistoryStoreKeepsNewest(t *testing.T) {
	store := NewMemoryHistoryStore(3)
	ctx := context.Background()
	for _, content := range []string{"one", "two", "three", "four"} {
		if err := store.Append(ctx, "60111", ChatMessage{Role: ChatRoleUser, Content: content}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	history, err := store.Recent(ctx, "60111", 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(history) != 2 || history[0].Content != "three" || history[1].Content != "four" {
		t.Fatalf("unexpected history %+v", history)
	}
	all, _ := store.Recent(ctx, "60111", 0)
	if len(all) != 3 || all[0].Content != "two" {
		t.Fatalf("expected the newest three, got %+v", all)
	}
	if err := store.Clear(ctx, "60111"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if empty, _ := store.Recent(ctx, "60111", 5); len(empty) != 0 {
		t.Fatalf("expected empty history after clear")
	}
}

package conversation

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/lifelink/copilot/internal/db"
	"github.com/lifelink/copilot/internal/fault"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return NewStore(database)
}

func TestAppendAssignsSequence(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		msg, err := store.Append(ctx, Message{
			TenantID:  "t1",
			UserID:    "alice",
			SessionID: "s1",
			Role:      RoleUser,
			Content:   fmt.Sprintf("message %d", i),
		})
		if err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
		if msg.Seq != int64(i) {
			t.Errorf("Seq = %d, want %d", msg.Seq, i)
		}
	}
}

func TestAppendValidation(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	cases := []Message{
		{UserID: "alice", SessionID: "s1", Role: RoleUser, Content: "hi"},
		{TenantID: "t1", UserID: "alice", Role: RoleUser, Content: "hi"},
		{TenantID: "t1", UserID: "alice", SessionID: "s1", Role: RoleUser},
	}
	for i, msg := range cases {
		_, err := store.Append(ctx, msg)
		if fault.KindOf(err) != fault.KindValidation {
			t.Errorf("case %d: kind = %s, want validation", i, fault.KindOf(err))
		}
	}
}

func TestConcurrentAppendsKeepDistinctSequences(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			store.Append(ctx, Message{
				TenantID:  "t1",
				UserID:    "alice",
				SessionID: "s1",
				Role:      RoleUser,
				Content:   fmt.Sprintf("concurrent %d", i),
			})
		}(i)
	}
	wg.Wait()

	messages, err := store.Recent(ctx, "t1", "s1", n)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}

	seen := make(map[int64]bool)
	for _, msg := range messages {
		if seen[msg.Seq] {
			t.Errorf("duplicate sequence %d", msg.Seq)
		}
		seen[msg.Seq] = true
	}
}

func TestRecentReturnsAscendingTail(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		store.Append(ctx, Message{
			TenantID: "t1", UserID: "alice", SessionID: "s1",
			Role: RoleUser, Content: fmt.Sprintf("m%d", i),
		})
	}

	messages, err := store.Recent(ctx, "t1", "s1", 3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("got %d messages, want 3", len(messages))
	}
	if messages[0].Content != "m3" || messages[2].Content != "m5" {
		t.Errorf("wrong tail: %s .. %s", messages[0].Content, messages[2].Content)
	}
	for i := 1; i < len(messages); i++ {
		if messages[i].Seq <= messages[i-1].Seq {
			t.Errorf("sequence not ascending at %d", i)
		}
	}
}

func TestRecentIsTenantScoped(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	store.Append(ctx, Message{TenantID: "t1", UserID: "alice", SessionID: "s1", Role: RoleUser, Content: "tenant one"})
	store.Append(ctx, Message{TenantID: "t2", UserID: "bob", SessionID: "s1", Role: RoleUser, Content: "tenant two"})

	messages, err := store.Recent(ctx, "t1", "s1", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(messages) != 1 || messages[0].Content != "tenant one" {
		t.Errorf("tenant isolation broken: %+v", messages)
	}
}

func TestSessionsAndClear(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	store.Append(ctx, Message{TenantID: "t1", UserID: "alice", SessionID: "s1", Role: RoleUser, Content: "a"})
	store.Append(ctx, Message{TenantID: "t1", UserID: "alice", SessionID: "s1", Role: RoleAssistant, Content: "b"})
	store.Append(ctx, Message{TenantID: "t1", UserID: "alice", SessionID: "s2", Role: RoleUser, Content: "c"})

	sessions, err := store.Sessions(ctx, "t1", "alice", 10, 0)
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("got %d sessions, want 2", len(sessions))
	}

	deleted, err := store.Clear(ctx, "t1", "s1")
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}

	remaining, _ := store.Recent(ctx, "t1", "s1", 10)
	if len(remaining) != 0 {
		t.Errorf("session not cleared: %d messages remain", len(remaining))
	}
}

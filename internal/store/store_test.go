package store

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/urman-dev/leadbot/internal/models"
)

func TestMutateCreatesStateLazily(t *testing.T) {
	s := NewInMemoryStore()

	if _, ok := s.Snapshot("42"); ok {
		t.Fatal("snapshot of an unseen user must report absence")
	}

	err := s.Mutate(context.Background(), "42", func(state *models.ConversationState) error {
		if state.Stage != models.StageGreeting {
			t.Errorf("fresh state stage = %s, want %s", state.Stage, models.StageGreeting)
		}
		if len(state.History) != 0 {
			t.Errorf("fresh state has %d history turns", len(state.History))
		}
		if state.HandOffFired {
			t.Error("fresh state has hand-off fired")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}

	state, ok := s.Snapshot("42")
	if !ok {
		t.Fatal("state should exist after first mutation")
	}
	if state.UserID != "42" {
		t.Errorf("userID = %q", state.UserID)
	}
}

func TestMutateSerializesSameUser(t *testing.T) {
	s := NewInMemoryStore()
	const workers = 50

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Mutate(context.Background(), "42", func(state *models.ConversationState) error {
				counter++ // safe only if mutations are serialized
				state.AppendTurn(models.RoleUser, "сообщение")
				return nil
			})
		}()
	}
	wg.Wait()

	if counter != workers {
		t.Errorf("counter = %d, want %d (mutations interleaved)", counter, workers)
	}
	state, _ := s.Snapshot("42")
	if len(state.History) != models.HistoryLimit {
		t.Errorf("history length = %d, want %d", len(state.History), models.HistoryLimit)
	}
}

func TestMutateConcurrentDistinctUsers(t *testing.T) {
	s := NewInMemoryStore()
	const users = 20

	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.Mutate(context.Background(), fmt.Sprintf("user-%d", i), func(state *models.ConversationState) error {
				state.AppendTurn(models.RoleUser, "привет")
				return nil
			})
		}(i)
	}
	wg.Wait()

	if s.Len() != users {
		t.Errorf("store tracks %d users, want %d", s.Len(), users)
	}
}

func TestMutateHonoursCancelledContext(t *testing.T) {
	s := NewInMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Mutate(ctx, "42", func(state *models.ConversationState) error {
		t.Error("mutation must not run under a cancelled context")
		return nil
	})
	if err == nil {
		t.Fatal("expected a context error")
	}
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	s := NewInMemoryStore()
	_ = s.Mutate(context.Background(), "42", func(state *models.ConversationState) error {
		state.AppendTurn(models.RoleUser, "оригинал")
		return nil
	})

	snap, _ := s.Snapshot("42")
	snap.History[0].Content = "изменено"
	snap.Fields.Name = "изменено"

	fresh, _ := s.Snapshot("42")
	if fresh.History[0].Content != "оригинал" {
		t.Errorf("snapshot mutation leaked into the store: %q", fresh.History[0].Content)
	}
	if fresh.Fields.Name != "" {
		t.Errorf("snapshot field mutation leaked into the store: %q", fresh.Fields.Name)
	}
}

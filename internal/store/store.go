// Package store provides the in-memory dialog state store for leadbot.
//
// Conversation state is memory-resident only: a process restart loses all
// state, and there is no eviction across distinct users. Both are accepted
// limitations of the core.
package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/urman-dev/leadbot/internal/models"
)

// ConversationStore owns all conversation state mutation. Mutate serializes
// turns per user identifier: two concurrent turns for the same user never
// interleave, while different users proceed in parallel.
type ConversationStore interface {
	// Mutate runs fn against the user's state under that user's lock,
	// creating the state lazily on first contact.
	Mutate(ctx context.Context, userID string, fn func(state *models.ConversationState) error) error

	// Snapshot returns a deep copy of the user's state, or false if the
	// user has never been seen.
	Snapshot(userID string) (models.ConversationState, bool)
}

// InMemoryStore implements ConversationStore with a mutex-guarded map of
// per-user entries, each carrying its own lock.
type InMemoryStore struct {
	mu            sync.Mutex
	conversations map[string]*entry
}

type entry struct {
	mu    sync.Mutex
	state *models.ConversationState
}

// NewInMemoryStore creates an empty conversation store.
func NewInMemoryStore() *InMemoryStore {
	slog.Debug("store.NewInMemoryStore: creating conversation store")
	return &InMemoryStore{conversations: make(map[string]*entry)}
}

// getOrCreate returns the entry for userID, creating a fresh greeting-stage
// state if the user has not been seen before. Safe for concurrent insertion.
func (s *InMemoryStore) getOrCreate(userID string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.conversations[userID]; ok {
		return e
	}

	now := time.Now()
	e := &entry{state: &models.ConversationState{
		UserID:    userID,
		Stage:     models.StageGreeting,
		History:   []models.Turn{},
		CreatedAt: now,
		UpdatedAt: now,
	}}
	s.conversations[userID] = e
	slog.Debug("store.getOrCreate: created conversation state", "userID", userID)
	return e
}

// Mutate implements ConversationStore.
func (s *InMemoryStore) Mutate(ctx context.Context, userID string, fn func(state *models.ConversationState) error) error {
	e := s.getOrCreate(userID)

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	err := fn(e.state)
	e.state.UpdatedAt = time.Now()
	if err != nil {
		slog.Error("store.Mutate: mutation returned error", "error", err, "userID", userID)
		return err
	}
	return nil
}

// Snapshot implements ConversationStore.
func (s *InMemoryStore) Snapshot(userID string) (models.ConversationState, bool) {
	s.mu.Lock()
	e, ok := s.conversations[userID]
	s.mu.Unlock()
	if !ok {
		return models.ConversationState{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone(), true
}

// Len reports the number of tracked conversations.
func (s *InMemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conversations)
}

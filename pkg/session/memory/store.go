// Package memory is the in-process session store.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"fortuneteller/pkg/session"
)

// Store keeps snapshots in a map. Values are copied in and out.
type Store struct {
	data map[string][]byte
	mu   sync.RWMutex
}

// New creates an empty store.
func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

// Save stores snap under id.
func (s *Store) Save(_ context.Context, id string, snap session.Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[id] = raw
	return nil
}

// Load returns the snapshot of id or session.ErrNotFound.
func (s *Store) Load(_ context.Context, id string) (session.Snapshot, error) {
	s.mu.RLock()
	raw, ok := s.data[id]
	s.mu.RUnlock()
	if !ok {
		return session.Snapshot{}, session.ErrNotFound
	}
	var snap session.Snapshot
	err := json.Unmarshal(raw, &snap)
	return snap, err
}

// Delete removes id. Unknown ids are not an error.
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, id)
	return nil
}

// List returns the stored ids, sorted.
func (s *Store) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

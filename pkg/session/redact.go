package session

import (
	"context"

	"fortuneteller/pkg/redact"
)

// Redacting wraps a Store so chat turns are masked before they are saved. Snapshots are
// copied first; the caller's Chat slice is never modified.
func Redacting(next Store, scanner redact.Scanner) Store {
	return &redactingStore{next: next, scanner: scanner}
}

type redactingStore struct {
	next    Store
	scanner redact.Scanner
}

func (s *redactingStore) Save(ctx context.Context, id string, snap Snapshot) error {
	if len(snap.Chat) > 0 {
		chat := make([]string, len(snap.Chat))
		for i, turn := range snap.Chat {
			chat[i] = redact.Text(ctx, s.scanner, turn)
		}
		snap.Chat = chat
	}
	return s.next.Save(ctx, id, snap) //nolint:wrapcheck // pass-through
}

func (s *redactingStore) Load(ctx context.Context, id string) (Snapshot, error) {
	return s.next.Load(ctx, id) //nolint:wrapcheck // pass-through
}

func (s *redactingStore) Delete(ctx context.Context, id string) error {
	return s.next.Delete(ctx, id) //nolint:wrapcheck // pass-through
}

func (s *redactingStore) List(ctx context.Context) ([]string, error) {
	return s.next.List(ctx) //nolint:wrapcheck // pass-through
}

// Package session persists orchestrator sessions so a stateless surface (the HTTP API)
// can serve many users: each session id maps to the snapshot of its last reading.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fortuneteller/pkg/apperrors"
	"fortuneteller/pkg/fortune"
	"fortuneteller/pkg/orchestrator"
)

// ErrNotFound is returned by Load for unknown or expired sessions.
var ErrNotFound = errors.New("session not found")

// Snapshot is the persisted form of orchestrator.SessionState.
type Snapshot struct {
	UpdatedAt  time.Time              `json:"updated_at"`
	Inputs     fortune.ValidatedInput `json:"inputs"`
	SystemName string                 `json:"system_name"`
	Processed  json.RawMessage        `json:"processed"`
	Chat       []string               `json:"chat,omitempty"`
	ReadingID  string                 `json:"reading_id,omitempty"`
}

// Store keeps snapshots by session id.
type Store interface {
	Save(ctx context.Context, id string, snap Snapshot) error
	Load(ctx context.Context, id string) (Snapshot, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]string, error)
}

// Registry resolves the system that owns a snapshot.
type Registry interface {
	Get(name string) (fortune.System, bool)
}

// FromState encodes a session for storage.
func FromState(s orchestrator.SessionState, now time.Time) (Snapshot, error) {
	processed, err := json.Marshal(s.Processed)
	if err != nil {
		return Snapshot{}, fmt.Errorf("encode processed data: %w", err)
	}
	return Snapshot{
		SystemName: s.SystemName,
		Inputs:     s.Inputs.Clone(),
		Processed:  processed,
		UpdatedAt:  now,
	}, nil
}

// ToState decodes a snapshot through its owning system. Systems without a Restorer get
// their processed data back as a ValidatedInput. A chat-only snapshot yields an empty state.
func ToState(snap Snapshot, reg Registry) (orchestrator.SessionState, error) {
	if snap.SystemName == "" {
		return orchestrator.SessionState{}, nil
	}
	sys, ok := reg.Get(snap.SystemName)
	if !ok {
		return orchestrator.SessionState{}, apperrors.UnknownSystem(snap.SystemName)
	}

	var processed fortune.ProcessedData
	if r, ok := sys.(fortune.Restorer); ok {
		pd, err := r.RestoreProcessedData(snap.Processed)
		if err != nil {
			return orchestrator.SessionState{}, apperrors.Wrap(apperrors.KindProcessing, err, "restore session")
		}
		processed = pd
	} else {
		var in fortune.ValidatedInput
		if err := json.Unmarshal(snap.Processed, &in); err != nil {
			return orchestrator.SessionState{}, apperrors.Wrap(apperrors.KindProcessing, err, "restore session")
		}
		processed = in
	}

	return orchestrator.SessionState{
		SystemName: snap.SystemName,
		Inputs:     snap.Inputs.Clone(),
		Processed:  processed,
	}, nil
}

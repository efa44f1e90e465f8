package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"fortuneteller/pkg/fortune"
	"fortuneteller/pkg/llm/connector"
	"fortuneteller/pkg/orchestrator"
)

// Reading kinds.
const (
	KindReading  = "reading"
	KindFollowup = "followup"
)

// ErrNotFound is returned when no reading matches an id.
var ErrNotFound = errors.New("reading not found")

// Record is one archived reading.
type Record struct {
	CreatedAt        time.Time           `json:"created_at"`
	LLM              *connector.Metadata `json:"llm_metadata,omitempty"`
	Inputs           map[string]string   `json:"inputs,omitempty"`
	ID               string              `json:"id"`
	SessionID        string              `json:"session_id,omitempty"`
	ParentID         string              `json:"parent_id,omitempty"`
	SystemName       string              `json:"system_name"`
	Kind             string              `json:"kind"`
	Topic            string              `json:"topic,omitempty"`
	FullText         string              `json:"full_text"`
	FormatVersion    string              `json:"format_version"`
	Provider         string              `json:"provider,omitempty"`
	Model            string              `json:"model,omitempty"`
	Content          fortune.Sections    `json:"reading"`
	PromptTokens     int                 `json:"prompt_tokens"`
	CompletionTokens int                 `json:"completion_tokens"`
	RetryCount       int                 `json:"retry_count"`
	LatencyMS        int64               `json:"latency_ms"`
}

// Result rebuilds the orchestrator view of the record.
func (r *Record) Result() *orchestrator.ReadingResult {
	return &orchestrator.ReadingResult{
		Content:       r.Content,
		FullText:      r.FullText,
		FormatVersion: r.FormatVersion,
		Metadata: orchestrator.Metadata{
			Timestamp:  r.CreatedAt,
			LLM:        r.LLM,
			Inputs:     r.Inputs,
			SystemName: r.SystemName,
			Topic:      r.Topic,
		},
	}
}

// NewRecord flattens a reading result. Results with a topic are follow-ups.
func NewRecord(sessionID, parentID string, res *orchestrator.ReadingResult) *Record {
	rec := &Record{
		ID:            uuid.NewString(),
		SessionID:     sessionID,
		ParentID:      parentID,
		SystemName:    res.Metadata.SystemName,
		Kind:          KindReading,
		Topic:         res.Metadata.Topic,
		Inputs:        res.Metadata.Inputs,
		Content:       res.Content,
		FullText:      res.FullText,
		FormatVersion: res.FormatVersion,
		LLM:           res.Metadata.LLM,
		CreatedAt:     res.Metadata.Timestamp,
	}
	if rec.Topic != "" {
		rec.Kind = KindFollowup
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	if md := res.Metadata.LLM; md != nil {
		rec.Provider = md.Provider
		rec.Model = md.Model
		rec.PromptTokens = md.TokenUsage.Prompt
		rec.CompletionTokens = md.TokenUsage.Completion
		rec.RetryCount = md.RetryCount
		rec.LatencyMS = md.Latency.Milliseconds()
	}
	return rec
}

// SaveReading archives res and returns the new record id.
func (a *Archive) SaveReading(ctx context.Context, sessionID, parentID string, res *orchestrator.ReadingResult) (string, error) {
	if res == nil {
		return "", fmt.Errorf("cannot save nil reading")
	}
	rec := NewRecord(sessionID, parentID, res)
	if err := a.Insert(ctx, rec); err != nil {
		return "", err
	}
	return rec.ID, nil
}

// Insert writes rec as a new row.
func (a *Archive) Insert(ctx context.Context, rec *Record) error {
	inputs, err := json.Marshal(rec.Inputs)
	if err != nil {
		return fmt.Errorf("failed to encode inputs: %w", err)
	}
	content, err := json.Marshal(rec.Content)
	if err != nil {
		return fmt.Errorf("failed to encode content: %w", err)
	}
	var llmJSON []byte
	if rec.LLM != nil {
		if llmJSON, err = json.Marshal(rec.LLM); err != nil {
			return fmt.Errorf("failed to encode llm metadata: %w", err)
		}
	}

	query := `
		INSERT INTO readings (
			id, session_id, parent_id, system_name, kind, topic,
			inputs_json, content_json, full_text, format_version,
			provider, model, prompt_tokens, completion_tokens, retry_count, latency_ms,
			llm_metadata_json, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = a.db.ExecContext(ctx, query,
		rec.ID, rec.SessionID, rec.ParentID, rec.SystemName, rec.Kind, rec.Topic,
		string(inputs), string(content), rec.FullText, rec.FormatVersion,
		rec.Provider, rec.Model, rec.PromptTokens, rec.CompletionTokens, rec.RetryCount, rec.LatencyMS,
		string(llmJSON), rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert reading %s: %w", rec.ID, err)
	}
	a.logger.Debug("archived %s %s for session %q", rec.Kind, rec.ID, rec.SessionID)
	return nil
}

const selectColumns = `id, session_id, parent_id, system_name, kind, topic,
	inputs_json, content_json, full_text, format_version,
	provider, model, prompt_tokens, completion_tokens, retry_count, latency_ms,
	llm_metadata_json, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec                      Record
		inputs, content, llmJSON string
	)
	err := row.Scan(
		&rec.ID, &rec.SessionID, &rec.ParentID, &rec.SystemName, &rec.Kind, &rec.Topic,
		&inputs, &content, &rec.FullText, &rec.FormatVersion,
		&rec.Provider, &rec.Model, &rec.PromptTokens, &rec.CompletionTokens, &rec.RetryCount, &rec.LatencyMS,
		&llmJSON, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(inputs), &rec.Inputs); err != nil {
		return nil, fmt.Errorf("failed to decode inputs of %s: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(content), &rec.Content); err != nil {
		return nil, fmt.Errorf("failed to decode content of %s: %w", rec.ID, err)
	}
	if llmJSON != "" {
		rec.LLM = &connector.Metadata{}
		if err := json.Unmarshal([]byte(llmJSON), rec.LLM); err != nil {
			return nil, fmt.Errorf("failed to decode llm metadata of %s: %w", rec.ID, err)
		}
	}
	return &rec, nil
}

// GetReading loads one record by id.
func (a *Archive) GetReading(ctx context.Context, id string) (*Record, error) {
	row := a.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM readings WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load reading %s: %w", id, err)
	}
	return rec, nil
}

// Filter narrows ListReadings. Zero fields match everything.
type Filter struct {
	Since      time.Time
	SessionID  string
	SystemName string
	Kind       string
	Limit      int
}

// ListReadings returns matching records, newest first.
func (a *Archive) ListReadings(ctx context.Context, f Filter) ([]*Record, error) {
	var (
		where []string
		args  []any
	)
	if f.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, f.SessionID)
	}
	if f.SystemName != "" {
		where = append(where, "system_name = ?")
		args = append(args, f.SystemName)
	}
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, f.Kind)
	}
	if !f.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, f.Since.UTC())
	}

	query := `SELECT ` + selectColumns + ` FROM readings`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating readings: %w", err)
	}
	return out, nil
}

// DeleteSession removes every record of a session and returns the number removed.
func (a *Archive) DeleteSession(ctx context.Context, sessionID string) (int64, error) {
	res, err := a.db.ExecContext(ctx, `DELETE FROM readings WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete session %s: %w", sessionID, err)
	}
	return res.RowsAffected()
}

// SystemStats aggregates usage for one divination system.
type SystemStats struct {
	SystemName       string `json:"system_name"`
	Readings         int    `json:"readings"`
	Followups        int    `json:"followups"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
}

// Stats summarizes the archive per system, ordered by name.
func (a *Archive) Stats(ctx context.Context) ([]SystemStats, error) {
	query := `
		SELECT system_name,
			SUM(CASE WHEN kind = 'reading' THEN 1 ELSE 0 END),
			SUM(CASE WHEN kind = 'followup' THEN 1 ELSE 0 END),
			SUM(prompt_tokens), SUM(completion_tokens)
		FROM readings
		GROUP BY system_name
		ORDER BY system_name
	`
	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []SystemStats
	for rows.Next() {
		var s SystemStats
		if err := rows.Scan(&s.SystemName, &s.Readings, &s.Followups, &s.PromptTokens, &s.CompletionTokens); err != nil {
			return nil, fmt.Errorf("failed to scan stats: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ExportFileName is the file a result is exported under: reading_{system}_{YYYYMMDD_HHMMSS}.json.
func ExportFileName(res *orchestrator.ReadingResult) string {
	ts := res.Metadata.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return fmt.Sprintf("reading_%s_%s.json", res.Metadata.SystemName, ts.Format("20060102_150405"))
}

// ExportJSON writes res as indented JSON into dir and returns the file path.
func ExportJSON(dir string, res *orchestrator.ReadingResult) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode reading: %w", err)
	}
	path := filepath.Join(dir, ExportFileName(res))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write export: %w", err)
	}
	return path, nil
}

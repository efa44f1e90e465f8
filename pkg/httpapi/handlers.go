package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"fortuneteller/pkg/apperrors"
	"fortuneteller/pkg/eventlog"
	"fortuneteller/pkg/fortune"
	"fortuneteller/pkg/orchestrator"
	"fortuneteller/pkg/persistence"
	"fortuneteller/pkg/session"
)

type systemInfo struct {
	fortune.Descriptor
	Inputs []fortune.InputField `json:"inputs,omitempty"`
}

type readingRequest struct {
	Inputs map[string]string `json:"inputs"`
	System string            `json:"system"`
}

type followupRequest struct {
	Topic string `json:"topic"`
}

type chatRequest struct {
	Message string `json:"message"`
}

type readingResponse struct {
	Result    *orchestrator.ReadingResult `json:"result"`
	Display   *fortune.Display            `json:"display,omitempty"`
	ReadingID string                      `json:"reading_id,omitempty"`
	Topics    []string                    `json:"topics,omitempty"`
}

type sessionResponse struct {
	UpdatedAt  time.Time              `json:"updated_at"`
	Inputs     fortune.ValidatedInput `json:"inputs,omitempty"`
	ID         string                 `json:"id"`
	SystemName string                 `json:"system_name,omitempty"`
	ReadingID  string                 `json:"reading_id,omitempty"`
	Topics     []string               `json:"topics,omitempty"`
	Chat       []string               `json:"chat,omitempty"`
}

type chatResponse struct {
	Reply   string   `json:"reply"`
	History []string `json:"history"`
	Closed  bool     `json:"closed,omitempty"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": s.version})
}

func (s *Server) listSystems(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.InfoList())
}

func (s *Server) getSystem(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	sys, ok := s.registry.Get(name)
	if !ok {
		s.writeError(w, r, apperrors.UnknownSystem(name))
		return
	}
	writeJSON(w, http.StatusOK, systemInfo{Descriptor: fortune.Describe(sys), Inputs: sys.RequiredInputs()})
}

// restore builds an orchestrator seeded with the stored session. A missing session
// yields an empty orchestrator and a zero snapshot.
func (s *Server) restore(ctx context.Context, id string) (*orchestrator.Orchestrator, session.Snapshot, error) {
	orch := orchestrator.New(s.registry, s.generator, orchestrator.WithClock(s.now))
	snap, err := s.sessions.Load(ctx, id)
	if errors.Is(err, session.ErrNotFound) {
		return orch, session.Snapshot{}, nil
	}
	if err != nil {
		return nil, session.Snapshot{}, err
	}
	state, err := session.ToState(snap, s.registry)
	if err != nil {
		return nil, session.Snapshot{}, err
	}
	if !state.Empty() {
		orch.Restore(state)
	}
	return orch, snap, nil
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, err := s.sessions.Load(r.Context(), id)
	if errors.Is(err, session.ErrNotFound) {
		s.writeError(w, r, apperrors.ErrNoActiveSession)
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := sessionResponse{
		ID:         id,
		SystemName: snap.SystemName,
		Inputs:     snap.Inputs,
		ReadingID:  snap.ReadingID,
		Chat:       snap.Chat,
		UpdatedAt:  snap.UpdatedAt,
	}
	if snap.SystemName != "" {
		orch, _, err := s.restore(r.Context(), id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		resp.Topics = orch.Topics()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	unlock, ok := s.lock(id)
	if !ok {
		s.writeError(w, r, errSessionBusy)
		return
	}
	defer unlock()

	if err := s.sessions.Delete(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listTopics(w http.ResponseWriter, r *http.Request) {
	orch, snap, err := s.restore(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if snap.SystemName == "" {
		s.writeError(w, r, apperrors.ErrNoActiveSession)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"topics": orch.Topics()})
}

func (s *Server) createReading(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req readingRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	unlock, ok := s.lock(id)
	if !ok {
		s.writeError(w, r, errSessionBusy)
		return
	}
	defer unlock()

	resp, err := s.perform(r.Context(), id, req.System, fortune.RawInput(req.Inputs))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// perform runs a reading in session id and stores the new snapshot. Chat history of a
// chat-only session survives its first reading. The caller holds the session lock.
func (s *Server) perform(ctx context.Context, id, system string, raw fortune.RawInput) (readingResponse, error) {
	orch, prev, err := s.restore(ctx, id)
	if err != nil {
		return readingResponse{}, err
	}
	res, err := orch.PerformReading(ctx, system, raw)
	if err != nil {
		return readingResponse{}, err
	}

	state, _ := orch.Session()
	readingID := s.record(ctx, id, "", res)

	snap, err := session.FromState(state, s.now())
	if err != nil {
		return readingResponse{}, err
	}
	snap.ReadingID = readingID
	if prev.SystemName == "" {
		snap.Chat = prev.Chat
	}
	if err := s.sessions.Save(ctx, id, snap); err != nil {
		return readingResponse{}, err
	}

	s.logEvent(eventlog.Event{
		Type: eventlog.TypeReading, SessionID: id, SystemName: system, ReadingID: readingID, Text: res.FullText,
	})

	resp := readingResponse{Result: res, ReadingID: readingID, Topics: orch.Topics()}
	if sys, ok := s.registry.Get(state.SystemName); ok {
		display := sys.DisplayProcessedData(state.Processed)
		resp.Display = &display
	}
	return resp, nil
}

func (s *Server) createFollowup(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req followupRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	unlock, ok := s.lock(id)
	if !ok {
		s.writeError(w, r, errSessionBusy)
		return
	}
	defer unlock()

	orch, snap, err := s.restore(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := orch.PerformFollowupReading(r.Context(), req.Topic)
	if errors.Is(err, orchestrator.ErrChatTopic) {
		s.openChat(w, r, id, orch, snap)
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	readingID := s.record(r.Context(), id, snap.ReadingID, res)
	s.logEvent(eventlog.Event{
		Type: eventlog.TypeFollowup, SessionID: id, SystemName: snap.SystemName,
		Topic: req.Topic, ReadingID: readingID, Text: res.FullText,
	})
	writeJSON(w, http.StatusCreated, readingResponse{Result: res, ReadingID: readingID})
}

// chat sends one message in the session's chat. An empty message on a session without
// history opens the chat with a greeting; an exit word ends it and clears the history.
func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req chatRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	unlock, ok := s.lock(id)
	if !ok {
		s.writeError(w, r, errSessionBusy)
		return
	}
	defer unlock()

	orch, snap, err := s.restore(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	msg := strings.TrimSpace(req.Message)
	if orchestrator.IsExitWord(msg) {
		snap.Chat = nil
		if err := s.saveChat(r.Context(), id, snap); err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, chatResponse{Reply: orchestrator.ChatFarewell, History: []string{}, Closed: true})
		return
	}

	var (
		c     *orchestrator.Chat
		reply string
	)
	if msg == "" && len(snap.Chat) == 0 {
		c, reply, err = orch.StartChat(r.Context())
	} else {
		c, err = orch.ResumeChat(r.Context(), snap.Chat)
		if err == nil {
			reply, err = c.Send(r.Context(), msg)
		}
	}
	if c != nil {
		defer c.Close()
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if msg != "" {
		s.logEvent(eventlog.Event{Type: eventlog.TypeChatUser, SessionID: id, SystemName: snap.SystemName, Text: msg})
	}
	s.logEvent(eventlog.Event{Type: eventlog.TypeChatReply, SessionID: id, SystemName: snap.SystemName, Text: reply})

	snap.Chat = c.History()
	if err := s.saveChat(r.Context(), id, snap); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Reply: reply, History: snap.Chat})
}

// openChat starts a fresh chat in the session and answers with its greeting. The caller
// holds the session lock.
func (s *Server) openChat(w http.ResponseWriter, r *http.Request, id string, orch *orchestrator.Orchestrator, snap session.Snapshot) {
	c, reply, err := orch.StartChat(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer c.Close()

	s.logEvent(eventlog.Event{Type: eventlog.TypeChatReply, SessionID: id, SystemName: snap.SystemName, Text: reply})
	snap.Chat = c.History()
	if err := s.saveChat(r.Context(), id, snap); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Reply: reply, History: snap.Chat})
}

func (s *Server) saveChat(ctx context.Context, id string, snap session.Snapshot) error {
	if snap.Processed == nil {
		snap.Processed = []byte("null")
	}
	snap.UpdatedAt = s.now()
	return s.sessions.Save(ctx, id, snap)
}

func (s *Server) logEvent(ev eventlog.Event) {
	if s.events == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = s.now()
	}
	if err := s.events.Write(ev); err != nil {
		s.logger.Warn("failed to log %s event for session %s: %v", ev.Type, ev.SessionID, err)
	}
}

func (s *Server) sessionEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeJSON(w, http.StatusOK, []eventlog.Event{})
		return
	}
	events, err := eventlog.SessionEvents(s.events.Dir(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if events == nil {
		events = []eventlog.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// record archives res and returns its id, or "" when no archive is configured.
func (s *Server) record(ctx context.Context, sessionID, parentID string, res *orchestrator.ReadingResult) string {
	if s.archive == nil {
		return ""
	}
	rec := persistence.NewRecord(sessionID, parentID, res)
	if s.writer != nil {
		if !s.writer.Submit(rec) {
			return ""
		}
		return rec.ID
	}
	if err := s.archive.Insert(ctx, rec); err != nil {
		s.logger.Warn("failed to archive reading for session %s: %v", sessionID, err)
		return ""
	}
	return rec.ID
}

func (s *Server) listReadings(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeJSON(w, http.StatusOK, []*persistence.Record{})
		return
	}
	q := r.URL.Query()
	f := persistence.Filter{
		SessionID:  q.Get("session"),
		SystemName: q.Get("system"),
		Kind:       q.Get("kind"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, r, apperrors.InvalidInput("limit 必须是非负整数"))
			return
		}
		f.Limit = n
	}
	recs, err := s.archive.ListReadings(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if recs == nil {
		recs = []*persistence.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) getReading(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		http.NotFound(w, r)
		return
	}
	rec, err := s.archive.GetReading(r.Context(), chi.URLParam(r, "readingID"))
	if errors.Is(err, persistence.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error(), Kind: "not_found"})
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

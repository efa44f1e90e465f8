package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"fortuneteller/pkg/apperrors"
	"fortuneteller/pkg/fortune"
)

// Routes kept for clients of the original web front end: one-shot readings addressed by
// system, camelCase field names, and a health document listing the systems.

// camelFields maps front-end field names onto input names.
//
//nolint:gochecknoglobals // static lookup table
var camelFields = map[string]string{
	"birthDate":    "birth_date",
	"birthTime":    "birth_time",
	"birthPlace":   "birth_place",
	"focusArea":    "focus_area",
	"questionArea": "question_area",
}

//nolint:gochecknoglobals // static lookup table
var genderValues = map[string]string{"male": "男", "female": "女"}

type fortuneResponse struct {
	readingResponse
	SessionID string `json:"sessionId"`
	ResultID  string `json:"resultId,omitempty"`
}

func (s *Server) compatHealth(w http.ResponseWriter, _ *http.Request) {
	names := make([]string, 0)
	for _, d := range s.registry.InfoList() {
		names = append(names, d.Name)
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "availableSystems": names})
}

func (s *Server) systemInputs(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	sys, ok := s.registry.Get(name)
	if !ok {
		s.writeError(w, r, apperrors.UnknownSystem(name))
		return
	}
	writeJSON(w, http.StatusOK, sys.RequiredInputs())
}

// compatInputs flattens a front-end body into raw input. Non-string values are dropped.
func compatInputs(body map[string]any) (fortune.RawInput, string) {
	raw := fortune.RawInput{}
	sessionID := ""
	for k, v := range body {
		str, ok := v.(string)
		if !ok {
			continue
		}
		if k == "sessionId" {
			sessionID = str
			continue
		}
		if mapped, ok := camelFields[k]; ok {
			k = mapped
		}
		if k == "gender" {
			if g, ok := genderValues[str]; ok {
				str = g
			}
		}
		raw[k] = str
	}
	return raw, sessionID
}

func (s *Server) fortune(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := decodeError(json.NewDecoder(r.Body).Decode(&body)); err != nil {
		s.writeError(w, r, err)
		return
	}
	raw, id := compatInputs(body)
	if id == "" {
		id = uuid.NewString()
	}

	unlock, ok := s.lock(id)
	if !ok {
		s.writeError(w, r, errSessionBusy)
		return
	}
	defer unlock()

	resp, err := s.perform(r.Context(), id, chi.URLParam(r, "system"), raw)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fortuneResponse{readingResponse: resp, SessionID: id, ResultID: resp.ReadingID})
}

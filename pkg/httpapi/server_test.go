package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fortuneteller/pkg/apperrors"
	"fortuneteller/pkg/config"
	"fortuneteller/pkg/eventlog"
	"fortuneteller/pkg/llm/connector"
	"fortuneteller/pkg/llm/middleware/metrics"
	"fortuneteller/pkg/orchestrator"
	"fortuneteller/pkg/persistence"
	"fortuneteller/pkg/plugin"
	"fortuneteller/pkg/plugins"
	"fortuneteller/pkg/session/memory"
)

var fixedNow = time.Date(2024, 3, 25, 10, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

type zeroRNG struct{}

func (zeroRNG) Intn(int) int { return 0 }

type testEnv struct {
	server  *Server
	handler http.Handler
	archive *persistence.Archive
	store   *memory.Store
}

func newEnv(t *testing.T, extra ...Option) *testEnv {
	t.Helper()

	m := plugin.NewManager()
	m.LoadAll(plugins.Builtin(plugins.Options{Clock: clock, RNG: zeroRNG{}}))
	m.Seal()

	reg := prometheus.NewRegistry()
	conn, err := connector.New(
		config.LLMSettings{Provider: config.ProviderMock, Model: "mock-1", MaxRetries: 1, Timeout: time.Minute},
		connector.WithRecorder(metrics.NewPrometheusRecorder(reg)),
	)
	require.NoError(t, err)

	archive, err := persistence.Open(persistence.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = archive.Close() })

	store := memory.New()
	opts := append([]Option{
		WithArchive(archive, nil),
		WithMetrics(reg),
		WithClock(clock),
		WithVersion("test"),
	}, extra...)
	s := New(m, conn, store, opts...)
	return &testEnv{server: s, handler: s.Handler(), archive: archive, store: store}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealthAndSystems(t *testing.T) {
	env := newEnv(t)

	w := env.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","version":"test"}`, w.Body.String())

	w = env.do(t, http.MethodGet, "/api/systems", nil)
	require.Equal(t, http.StatusOK, w.Code)
	systems := decode[[]map[string]string](t, w)
	require.Len(t, systems, 3)
	assert.Equal(t, "bazi", systems[0]["name"])

	w = env.do(t, http.MethodGet, "/api/systems/tarot", nil)
	require.Equal(t, http.StatusOK, w.Code)
	info := decode[systemInfo](t, w)
	assert.Equal(t, "tarot", info.Name)
	assert.Len(t, info.Inputs, 4)

	w = env.do(t, http.MethodGet, "/api/systems/runes", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "unknown_system", decode[errorBody](t, w).Kind)
}

func TestReadingFollowupFlow(t *testing.T) {
	env := newEnv(t)

	w := env.do(t, http.MethodPost, "/api/sessions/s1/readings", readingRequest{
		System: "tarot",
		Inputs: map[string]string{"question": "前途如何", "spread": "three_card"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	reading := decode[readingResponse](t, w)
	assert.Equal(t, []string{"总体解读", "建议"}, reading.Result.Content.Titles())
	assert.NotEmpty(t, reading.ReadingID)
	require.NotNil(t, reading.Display)
	assert.NotEmpty(t, reading.Display.Groups)
	require.NotEmpty(t, reading.Topics)

	w = env.do(t, http.MethodGet, "/api/sessions/s1/topics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, reading.Topics, decode[map[string][]string](t, w)["topics"])

	topic := reading.Topics[0]
	w = env.do(t, http.MethodPost, "/api/sessions/s1/followups", followupRequest{Topic: topic})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	followup := decode[readingResponse](t, w)
	assert.Equal(t, topic, followup.Result.Metadata.Topic)
	assert.Len(t, followup.Result.Content, 1)

	chatTopic := reading.Topics[len(reading.Topics)-1]
	require.True(t, orchestrator.IsChatTopic(chatTopic))
	w = env.do(t, http.MethodPost, "/api/sessions/s1/followups", followupRequest{Topic: chatTopic})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, decode[chatResponse](t, w).Reply, "the chat entry opens a chat")

	recs, err := env.archive.ListReadings(context.Background(), persistence.Filter{SessionID: "s1"})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, reading.ReadingID, recs[0].ParentID, "follow-up links to its reading")

	w = env.do(t, http.MethodGet, "/api/readings?session=s1&kind=followup", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]persistence.Record](t, w), 1)

	w = env.do(t, http.MethodGet, "/api/readings/"+reading.ReadingID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "tarot", decode[persistence.Record](t, w).SystemName)

	w = env.do(t, http.MethodGet, "/api/sessions/s1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	sess := decode[sessionResponse](t, w)
	assert.Equal(t, "tarot", sess.SystemName)
	assert.Equal(t, reading.ReadingID, sess.ReadingID)
}

func TestErrorStatuses(t *testing.T) {
	env := newEnv(t)

	w := env.do(t, http.MethodPost, "/api/sessions/s1/followups", followupRequest{Topic: "💼 事业运势"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "no_active_session", decode[errorBody](t, w).Kind)

	w = env.do(t, http.MethodPost, "/api/sessions/s1/readings", readingRequest{System: "runes"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, "/api/sessions/s1/readings", readingRequest{System: "tarot", Inputs: map[string]string{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_input", decode[errorBody](t, w).Kind)

	w = env.do(t, http.MethodPost, "/api/sessions/s1/readings", map[string]string{"bogus": "field"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/sessions/s1/readings", readingRequest{
		System: "tarot",
		Inputs: map[string]string{"question": "前途如何", "spread": "single"},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do(t, http.MethodPost, "/api/sessions/s1/followups", followupRequest{Topic: "不存在"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decode[errorBody](t, w)
	assert.Equal(t, "invalid_topic", body.Kind)
	assert.NotEmpty(t, body.Valid)

	w = env.do(t, http.MethodGet, "/api/sessions/nobody/topics", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodGet, "/api/readings/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/api/readings?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBusySessionFailsFast(t *testing.T) {
	env := newEnv(t)

	unlock, ok := env.server.lock("s1")
	require.True(t, ok)

	w := env.do(t, http.MethodPost, "/api/sessions/s1/readings", readingRequest{
		System: "tarot",
		Inputs: map[string]string{"question": "前途如何", "spread": "single"},
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "busy", decode[errorBody](t, w).Kind)

	w = env.do(t, http.MethodPost, "/api/sessions/other/readings", readingRequest{
		System: "tarot",
		Inputs: map[string]string{"question": "前途如何", "spread": "single"},
	})
	assert.Equal(t, http.StatusCreated, w.Code, "other sessions are unaffected")
	assert.Equal(t, 1, env.server.inFlight(), "finished requests release their session")

	unlock()
	unlock()
	assert.Zero(t, env.server.inFlight())

	w = env.do(t, http.MethodDelete, "/api/sessions/s1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = env.do(t, http.MethodDelete, "/api/sessions/other", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Zero(t, env.server.inFlight())
}

func TestCORS(t *testing.T) {
	env := newEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/fortune/bazi", nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Content-Type")

	w = env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestBodyLimit(t *testing.T) {
	env := newEnv(t, WithMaxBodyBytes(64))

	big := map[string]string{"question": string(bytes.Repeat([]byte("问"), 64)), "spread": "single"}
	w := env.do(t, http.MethodPost, "/api/sessions/s1/readings", readingRequest{System: "tarot", Inputs: big})
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "too_large", decode[errorBody](t, w).Kind)

	w = env.do(t, http.MethodPost, "/api/fortune/tarot", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = env.do(t, http.MethodGet, "/api/sessions/s1", nil)
	assert.NotEqual(t, http.StatusOK, w.Code, "a rejected body starts no reading")
	assert.Zero(t, env.server.inFlight())
}

func TestChatFlow(t *testing.T) {
	env := newEnv(t)

	w := env.do(t, http.MethodPost, "/api/sessions/c1/chat", chatRequest{})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	greeting := decode[chatResponse](t, w)
	assert.NotEmpty(t, greeting.Reply)
	assert.Empty(t, greeting.History)

	for i := 1; i <= 3; i++ {
		w = env.do(t, http.MethodPost, "/api/sessions/c1/chat", chatRequest{Message: fmt.Sprintf("问题%d", i)})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}
	resp := decode[chatResponse](t, w)
	require.Len(t, resp.History, 6, "the window applies before the reply is appended")
	assert.Equal(t, "用户: 问题3", resp.History[4])

	w = env.do(t, http.MethodPost, "/api/sessions/c1/chat", chatRequest{Message: "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/sessions/c1/readings", readingRequest{
		System: "tarot",
		Inputs: map[string]string{"question": "前途如何", "spread": "single"},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	snap, err := env.store.Load(context.Background(), "c1")
	require.NoError(t, err)
	assert.Len(t, snap.Chat, 6, "chat history survives the first reading")

	w = env.do(t, http.MethodPost, "/api/sessions/c1/chat", chatRequest{Message: "退出"})
	require.Equal(t, http.StatusOK, w.Code)
	bye := decode[chatResponse](t, w)
	assert.True(t, bye.Closed)
	assert.Equal(t, orchestrator.ChatFarewell, bye.Reply)

	snap, err = env.store.Load(context.Background(), "c1")
	require.NoError(t, err)
	assert.Empty(t, snap.Chat)
	assert.Equal(t, "tarot", snap.SystemName, "leaving chat keeps the reading")
}

func TestMetricsEndpoint(t *testing.T) {
	env := newEnv(t)

	w := env.do(t, http.MethodPost, "/api/sessions/m1/readings", readingRequest{
		System: "tarot",
		Inputs: map[string]string{"question": "前途如何", "spread": "single"},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `llm_requests_total{error_type="",model="mock-1",provider="mock",status="success",system="tarot"} 1`)
}

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		apperrors.InvalidInput("x"):                                    http.StatusBadRequest,
		&apperrors.InvalidTopicError{Topic: "x"}:                       http.StatusBadRequest,
		apperrors.UnknownSystem("x"):                                   http.StatusNotFound,
		apperrors.ErrNoActiveSession:                                   http.StatusConflict,
		apperrors.New(apperrors.KindFatalLLM, "auth"):                  http.StatusBadGateway,
		apperrors.New(apperrors.KindRetryExhausted, "down"):            http.StatusServiceUnavailable,
		apperrors.New(apperrors.KindCanceled, "gone"):                  StatusClientClosedRequest,
		fmt.Errorf("wrapped: %w", orchestrator.ErrInvalidTransition):   http.StatusConflict,
		errSessionBusy:                                                 http.StatusConflict,
		errors.New("boom"):                                             http.StatusInternalServerError,
		&apperrors.ReadingError{Err: errors.New("x"), System: "tarot"}: http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, StatusFor(err), err.Error())
	}
	assert.Equal(t, http.StatusRequestEntityTooLarge, StatusFor(fmt.Errorf("%w: limit", errBodyTooLarge)))
}

func TestCompatRoutes(t *testing.T) {
	env := newEnv(t)

	w := env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","availableSystems":["bazi","tarot","zodiac"]}`, w.Body.String())

	w = env.do(t, http.MethodGet, "/api/systems/bazi/inputs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	fields := decode[[]map[string]any](t, w)
	require.NotEmpty(t, fields)
	assert.Equal(t, "birth_date", fields[0]["name"])

	w = env.do(t, http.MethodGet, "/api/systems/runes/inputs", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, "/api/fortune/bazi", map[string]any{
		"birthDate": "1990-05-15",
		"birthTime": "08:30",
		"gender":    "female",
		"extra":     42,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[fortuneResponse](t, w)
	assert.NotEmpty(t, resp.SessionID)
	assert.NotEmpty(t, resp.ReadingID)
	assert.Equal(t, resp.ReadingID, resp.ResultID)
	assert.Equal(t, "女", resp.Result.Metadata.Inputs["gender"])
	require.NotEmpty(t, resp.Topics)

	w = env.do(t, http.MethodGet, "/api/result/"+resp.ReadingID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "bazi", decode[persistence.Record](t, w).SystemName)

	w = env.do(t, http.MethodPost, "/api/sessions/"+resp.SessionID+"/followup", followupRequest{Topic: resp.Topics[0]})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.do(t, http.MethodPost, "/api/fortune/bazi", map[string]any{"sessionId": "fixed", "gender": "male"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "birth date is required")

	w = env.do(t, http.MethodPost, "/api/fortune/runes", map[string]any{"sessionId": "fixed"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCompatInputs(t *testing.T) {
	raw, id := compatInputs(map[string]any{
		"sessionId":  "abc",
		"birthDate":  "2000-01-01",
		"birthPlace": "杭州",
		"gender":     "male",
		"spread":     "single",
		"count":      3,
	})
	assert.Equal(t, "abc", id)
	assert.Equal(t, "2000-01-01", raw["birth_date"])
	assert.Equal(t, "杭州", raw["birth_place"])
	assert.Equal(t, "男", raw["gender"])
	assert.Equal(t, "single", raw["spread"])
	assert.NotContains(t, raw, "count")
	assert.NotContains(t, raw, "sessionId")
}

func TestEventLogRecordsSession(t *testing.T) {
	events, err := eventlog.NewWriter(t.TempDir(), eventlog.WithClock(clock))
	require.NoError(t, err)
	t.Cleanup(func() { _ = events.Close() })
	env := newEnv(t, WithEventLog(events))

	w := env.do(t, http.MethodPost, "/api/sessions/e1/readings", readingRequest{
		System: "tarot",
		Inputs: map[string]string{"question": "前途如何", "spread": "single"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	reading := decode[readingResponse](t, w)

	w = env.do(t, http.MethodPost, "/api/sessions/e1/chat", chatRequest{})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = env.do(t, http.MethodPost, "/api/sessions/e1/chat", chatRequest{Message: "感情如何"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodGet, "/api/sessions/e1/events", nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[[]eventlog.Event](t, w)
	require.Len(t, got, 4)
	assert.Equal(t, eventlog.TypeReading, got[0].Type)
	assert.Equal(t, reading.ReadingID, got[0].ReadingID)
	assert.Equal(t, eventlog.TypeChatReply, got[1].Type, "opening greeting")
	assert.Equal(t, eventlog.TypeChatUser, got[2].Type)
	assert.Equal(t, "感情如何", got[2].Text)
	assert.Equal(t, eventlog.TypeChatReply, got[3].Type)

	w = env.do(t, http.MethodGet, "/api/sessions/other/events", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

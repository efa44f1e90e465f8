package metrics

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fortuneteller/pkg/llm"
	llmmetrics "fortuneteller/pkg/llm/middleware/metrics"
)

// fakePrometheus answers instant queries from a table keyed by substrings of the query.
func fakePrometheus(t *testing.T, answers map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		query := r.Form.Get("query")

		result := "[]"
		for needle, body := range answers {
			if strings.Contains(query, needle) {
				result = body
				break
			}
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"success","data":{"resultType":"vector","result":%s}}`, result)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func sample(value string) string {
	return fmt.Sprintf(`[{"metric":{},"value":[1711360800,%q]}]`, value)
}

func TestGetSystemUsage(t *testing.T) {
	srv := fakePrometheus(t, map[string]string{
		`type="prompt"`:      sample("1200"),
		`type="completion"`:  sample("800"),
		`llm_requests_total`: sample("4"),
	})
	q, err := NewQueryService(srv.URL)
	require.NoError(t, err)
	q.now = func() time.Time { return time.Unix(1711360800, 0) }

	usage, err := q.GetSystemUsage(context.Background(), "bazi")
	require.NoError(t, err)
	assert.Equal(t, &SystemUsage{
		System:           "bazi",
		PromptTokens:     1200,
		CompletionTokens: 800,
		TotalTokens:      2000,
		Requests:         4,
	}, usage)
}

func TestGetSystemUsageByModel(t *testing.T) {
	srv := fakePrometheus(t, map[string]string{
		`group by (model)`: `[{"metric":{"model":"gpt-4"},"value":[1711360800,"1"]}]`,
		`type="prompt"`:    sample("10"),
	})
	q, err := NewQueryService(srv.URL)
	require.NoError(t, err)

	byModel, err := q.GetSystemUsageByModel(context.Background(), "tarot")
	require.NoError(t, err)
	require.Contains(t, byModel, "gpt-4")
	assert.Equal(t, int64(10), byModel["gpt-4"].PromptTokens)
	assert.Equal(t, int64(0), byModel["gpt-4"].CompletionTokens)
}

func TestQueryServiceUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	srv.Close()

	q, err := NewQueryService(srv.URL)
	require.NoError(t, err)
	_, err = q.GetSystemUsage(context.Background(), "bazi")
	assert.Error(t, err)
}

func TestGatherFromRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := llmmetrics.NewPrometheusRecorder(reg)

	rec.ObserveRequest(llmmetrics.Request{
		Provider: "mock", Model: "m", System: "tarot", Success: true,
		Usage: llm.Usage{PromptTokens: 100, CompletionTokens: 50},
	})
	rec.ObserveRequest(llmmetrics.Request{
		Provider: "mock", Model: "m", System: "tarot", Success: true,
		Usage: llm.Usage{PromptTokens: 20, CompletionTokens: 5},
	})
	rec.ObserveRequest(llmmetrics.Request{Provider: "mock", Model: "m", System: "bazi", ErrorType: "timeout"})

	usage, err := Gather(reg)
	require.NoError(t, err)
	require.Len(t, usage, 2)
	assert.Equal(t, SystemUsage{System: "bazi"}, usage[0])
	assert.Equal(t, SystemUsage{System: "tarot", PromptTokens: 120, CompletionTokens: 55, TotalTokens: 175, Requests: 2}, usage[1])

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, reg))
	assert.Contains(t, buf.String(), "# TYPE llm_tokens_total counter")
	assert.Contains(t, buf.String(), `system="tarot"`)
}

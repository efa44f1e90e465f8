// Package metrics reports LLM token usage per divination system, either from a
// Prometheus server or from the in-process registry.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// SystemUsage is the aggregated token usage of one divination system.
type SystemUsage struct {
	System           string `json:"system"`
	Model            string `json:"model,omitempty"`
	PromptTokens     int64  `json:"prompt_tokens"`
	CompletionTokens int64  `json:"completion_tokens"`
	TotalTokens      int64  `json:"total_tokens"`
	Requests         int64  `json:"requests"`
}

// QueryService queries a Prometheus server scraping the /metrics endpoint.
type QueryService struct {
	client   api.Client
	queryAPI v1.API
	now      func() time.Time
}

// NewQueryService creates a new metrics query service.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{
		Address: prometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	return &QueryService{
		client:   client,
		queryAPI: v1.NewAPI(client),
		now:      time.Now,
	}, nil
}

func (q *QueryService) scalar(ctx context.Context, query string) (int64, error) {
	result, _, err := q.queryAPI.Query(ctx, query, q.now())
	if err != nil {
		return 0, err
	}
	if vector, ok := result.(model.Vector); ok && len(vector) > 0 {
		return int64(vector[0].Value), nil
	}
	return 0, nil
}

// GetSystemUsage retrieves aggregated token usage for one system across all models.
func (q *QueryService) GetSystemUsage(ctx context.Context, system string) (*SystemUsage, error) {
	return q.usage(ctx, system, "")
}

func (q *QueryService) usage(ctx context.Context, system, modelName string) (*SystemUsage, error) {
	usage := &SystemUsage{System: system, Model: modelName}

	selector := fmt.Sprintf(`system=%q`, system)
	if modelName != "" {
		selector += fmt.Sprintf(`, model=%q`, modelName)
	}

	var err error
	usage.PromptTokens, err = q.scalar(ctx, fmt.Sprintf(`sum(llm_tokens_total{%s, type="prompt"})`, selector))
	if err != nil {
		return nil, fmt.Errorf("failed to query prompt tokens: %w", err)
	}
	usage.CompletionTokens, err = q.scalar(ctx, fmt.Sprintf(`sum(llm_tokens_total{%s, type="completion"})`, selector))
	if err != nil {
		return nil, fmt.Errorf("failed to query completion tokens: %w", err)
	}
	usage.Requests, err = q.scalar(ctx, fmt.Sprintf(`sum(llm_requests_total{%s, status="success"})`, selector))
	if err != nil {
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	return usage, nil
}

// GetSystemUsageByModel breaks a system's usage down by model.
func (q *QueryService) GetSystemUsageByModel(ctx context.Context, system string) (map[string]*SystemUsage, error) {
	modelsResult, _, err := q.queryAPI.Query(ctx, fmt.Sprintf(`group by (model) (llm_tokens_total{system=%q})`, system), q.now())
	if err != nil {
		return nil, fmt.Errorf("failed to query models: %w", err)
	}

	var models []string
	if vector, ok := modelsResult.(model.Vector); ok {
		for _, sample := range vector {
			if modelName, ok := sample.Metric["model"]; ok {
				models = append(models, string(modelName))
			}
		}
	}

	result := make(map[string]*SystemUsage, len(models))
	for _, modelName := range models {
		usage, err := q.usage(ctx, system, modelName)
		if err != nil {
			return nil, fmt.Errorf("model %s: %w", modelName, err)
		}
		result[modelName] = usage
	}
	return result, nil
}

package metrics

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// Gather aggregates llm_tokens_total and llm_requests_total from g, one entry per system,
// sorted by system name.
func Gather(g prometheus.Gatherer) ([]SystemUsage, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, fmt.Errorf("failed to gather metrics: %w", err)
	}

	bySystem := map[string]*SystemUsage{}
	get := func(system string) *SystemUsage {
		u, ok := bySystem[system]
		if !ok {
			u = &SystemUsage{System: system}
			bySystem[system] = u
		}
		return u
	}

	for _, mf := range families {
		switch mf.GetName() {
		case "llm_tokens_total":
			for _, m := range mf.GetMetric() {
				labels := labelMap(m)
				u := get(labels["system"])
				v := int64(m.GetCounter().GetValue())
				switch labels["type"] {
				case "prompt":
					u.PromptTokens += v
				case "completion":
					u.CompletionTokens += v
				}
			}
		case "llm_requests_total":
			for _, m := range mf.GetMetric() {
				labels := labelMap(m)
				u := get(labels["system"])
				if labels["status"] == "success" {
					u.Requests += int64(m.GetCounter().GetValue())
				}
			}
		}
	}

	out := make([]SystemUsage, 0, len(bySystem))
	for _, u := range bySystem {
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].System < out[j].System })
	return out, nil
}

func labelMap(m *dto.Metric) map[string]string {
	labels := make(map[string]string, len(m.GetLabel()))
	for _, lp := range m.GetLabel() {
		labels[lp.GetName()] = lp.GetValue()
	}
	return labels
}

// WriteText dumps every llm_* family of g in the Prometheus text format.
func WriteText(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), "llm_") {
			continue
		}
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("failed to encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

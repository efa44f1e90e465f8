// Package mock provides LLM clients that never leave the process: a canned client
// for offline runs and a scripted client for tests.
package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"fortuneteller/pkg/llm"
)

// Step is one scripted outcome. Err takes precedence over Response.
type Step struct {
	Err      error
	Response llm.CompletionResponse
}

// Reply is a successful step with text content.
func Reply(content string) Step {
	return Step{Response: llm.CompletionResponse{Content: content, StopReason: llm.StopEndTurn}}
}

// Fail is a failing step.
func Fail(err error) Step {
	return Step{Err: err}
}

// Client replays steps in order and records every request it receives.
// When the script runs out the last step repeats.
type Client struct {
	model    string
	steps    []Step
	requests []llm.CompletionRequest
	next     int
	mu       sync.Mutex
}

// NewClient creates a scripted client.
func NewClient(model string, steps ...Step) *Client {
	return &Client{model: model, steps: steps}
}

// Complete returns the next scripted outcome.
func (c *Client) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	if len(c.steps) == 0 {
		c.mu.Unlock()
		return llm.CompletionResponse{}, fmt.Errorf("mock client %s: no scripted responses", c.model)
	}
	idx := c.next
	if idx >= len(c.steps) {
		idx = len(c.steps) - 1
	} else {
		c.next++
	}
	step := c.steps[idx]
	c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return llm.CompletionResponse{}, err
	}
	if step.Err != nil {
		return llm.CompletionResponse{}, step.Err
	}
	return step.Response, nil
}

// GetModelName returns the model name given at construction.
func (c *Client) GetModelName() string {
	return c.model
}

// Calls returns the number of requests received.
func (c *Client) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

// Requests returns a copy of the received requests.
func (c *Client) Requests() []llm.CompletionRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]llm.CompletionRequest(nil), c.requests...)
}

// LastUserPrompt returns the final user message of the latest request.
func (c *Client) LastUserPrompt() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.requests) == 0 {
		return ""
	}
	msgs := c.requests[len(c.requests)-1].Messages
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == llm.RoleUser {
			return msgs[i].Content
		}
	}
	return ""
}

// Canned answers every request with a fixed markdown reading that echoes the
// first line of the user prompt. It lets the CLI and server run without credentials.
type Canned struct {
	model string
}

// NewCanned creates an offline client.
func NewCanned(model string) *Canned {
	if model == "" {
		model = "mock"
	}
	return &Canned{model: model}
}

// Complete builds the canned reading.
func (c *Canned) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return llm.CompletionResponse{}, err
	}
	var user string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == llm.RoleUser {
			user = req.Messages[i].Content
			break
		}
	}
	first, _, _ := strings.Cut(strings.TrimSpace(user), "\n")

	var b strings.Builder
	b.WriteString("# 总体解读\n")
	fmt.Fprintf(&b, "霄占掐指一算：%s\n\n", first)
	b.WriteString("# 建议\n")
	b.WriteString("天机不可尽泄，心态放宽，好运自来。\n")
	content := b.String()

	return llm.CompletionResponse{
		Content:    content,
		StopReason: llm.StopEndTurn,
		Usage:      llm.EstimateUsage(req, content),
	}, nil
}

// GetModelName returns the configured model name.
func (c *Canned) GetModelName() string {
	return c.model
}

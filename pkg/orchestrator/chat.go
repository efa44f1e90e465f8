package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"fortuneteller/pkg/apperrors"
	"fortuneteller/pkg/fortune"
)

// GreetingPrompt asks the model to open a chat.
const GreetingPrompt = "请向用户打招呼，自我介绍，并询问他们想了解什么。"

// ChatFarewell is shown when the user leaves a chat.
const ChatFarewell = "霄占命理师向您挥手告别，欢迎随时回来继续聊天！"

// chatWindow is the number of recent exchanges folded into each chat prompt.
const chatWindow = 5

// ErrChatClosed is returned by Send after Close.
var ErrChatClosed = errors.New("chat closed")

// Chat is a free-form conversation. It holds the orchestrator in the Chatting state until
// Close and never touches the session.
type Chat struct {
	o       *Orchestrator
	persona string
	history []string
	mu      sync.Mutex
	closed  bool
}

func (o *Orchestrator) chatPersona() string {
	o.mu.Lock()
	name := o.session.SystemName
	o.mu.Unlock()
	if name != "" {
		if sys, ok := o.registry.Get(name); ok {
			return sys.ChatSystemPrompt()
		}
	}
	return fortune.DefaultChatPrompt
}

// StartChat opens a chat in the active system's persona and returns the model's greeting.
func (o *Orchestrator) StartChat(ctx context.Context) (*Chat, string, error) {
	c, err := o.ResumeChat(ctx, nil)
	if err != nil {
		return nil, "", err
	}
	res, err := o.generator.GenerateResponse(ctx, fortune.PromptPair{System: c.persona, User: GreetingPrompt})
	if err != nil {
		c.Close()
		return nil, "", err
	}
	return c, strings.TrimSpace(res.Text), nil
}

// ResumeChat opens a chat seeded with earlier history entries, without a greeting.
func (o *Orchestrator) ResumeChat(ctx context.Context, history []string) (*Chat, error) {
	persona := o.chatPersona()
	if err := o.begin(ctx, StateChatting); err != nil {
		return nil, err
	}
	return &Chat{o: o, persona: persona, history: trimWindow(append([]string(nil), history...))}, nil
}

func trimWindow(h []string) []string {
	if len(h) > chatWindow {
		return h[len(h)-chatWindow:]
	}
	return h
}

// Send posts a message and returns the reply. A failed reply leaves the message in the history.
func (c *Chat) Send(ctx context.Context, msg string) (string, error) {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return "", apperrors.InvalidInput("消息不能为空")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", ErrChatClosed
	}

	c.history = trimWindow(append(c.history, "用户: "+msg))
	prompt := fmt.Sprintf("求测者刚刚说: \"%s\"\n\n基于以前的对话内容（如果有）：\n%s\n\n请以霄占命理师的身份回应。记得保持幽默风趣，并控制回复在200字以内。",
		msg, strings.Join(c.history, "\n"))

	res, err := c.o.generator.GenerateResponse(ctx, fortune.PromptPair{System: c.persona, User: prompt})
	if err != nil {
		return "", err
	}
	reply := strings.TrimSpace(res.Text)
	c.history = append(c.history, "霄占: "+reply)
	return reply, nil
}

// History returns the rolling window of recent entries.
func (c *Chat) History() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.history...)
}

// Persona returns the system prompt the chat runs under.
func (c *Chat) Persona() string {
	return c.persona
}

// Close ends the chat and returns the orchestrator to Idle. Safe to call twice.
func (c *Chat) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.o.finish(context.Background())
}

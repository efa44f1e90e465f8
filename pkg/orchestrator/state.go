package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"fortuneteller/pkg/apperrors"
	"fortuneteller/pkg/logx"
)

// State is the orchestrator's position in its reading workflow.
type State string

const (
	StateIdle               State = "IDLE"
	StateReadingInProgress  State = "READING_IN_PROGRESS"
	StateFollowupInProgress State = "FOLLOWUP_IN_PROGRESS"
	StateChatting           State = "CHATTING"
)

func (s State) String() string { return string(s) }

// ErrInvalidTransition is wrapped by transition failures.
var ErrInvalidTransition = errors.New("invalid state transition")

// ErrChatTopic is returned when a follow-up topic is the menu's chat entry. The caller
// opens a chat instead.
var ErrChatTopic = errors.New("topic opens the chat")

// TransitionTable lists the states reachable from each state.
type TransitionTable map[State][]State

// ValidTransitions is the workflow: every operation starts and ends in Idle.
//
//nolint:gochecknoglobals // static transition table
var ValidTransitions = TransitionTable{
	StateIdle:               {StateReadingInProgress, StateFollowupInProgress, StateChatting},
	StateReadingInProgress:  {StateIdle},
	StateFollowupInProgress: {StateIdle},
	StateChatting:           {StateIdle},
}

// IsValidTransition reports whether from -> to is allowed.
func IsValidTransition(from, to State) bool {
	for _, s := range ValidTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// transitionTo moves to next. Caller holds o.mu.
func (o *Orchestrator) transitionTo(ctx context.Context, next State) error {
	prev := o.state
	if !IsValidTransition(prev, next) {
		return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidTransition, prev, next)
	}
	o.state = next
	logx.DebugState(ctx, "orchestrator", prev.String(), next.String())
	return nil
}

// begin claims the orchestrator for an operation, failing fast when another one is active.
func (o *Orchestrator) begin(ctx context.Context, next State) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.transitionTo(ctx, next); err != nil {
		return apperrors.Wrap(apperrors.KindInternal, err, fmt.Sprintf("orchestrator busy (%s)", o.state))
	}
	return nil
}

// finish returns to Idle.
func (o *Orchestrator) finish(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.transitionTo(ctx, StateIdle); err != nil {
		o.logger.Warn("finish: %v", err)
	}
}

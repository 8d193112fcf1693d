// Package agent defines the Agent domain entity and its availability state
// machine.
package agent

import (
	"fmt"
	"time"

	"github.com/routegrid/routegrid/internal/domain"
	"github.com/routegrid/routegrid/internal/domain/attribute"
)

// State represents an agent's availability.
type State string

const (
	StateOffline     State = "offline"
	StateReady       State = "ready"
	StateBusy        State = "busy"
	StateUnavailable State = "unavailable"
)

// Settable reports whether the state may be requested through an external
// update. Only the dispatcher drives an agent into busy, and only automatic
// availability logic drives it to unavailable.
func (s State) Settable() bool {
	return s == StateOffline || s == StateReady
}

// DeleteAllowed reports whether an agent in this state may be deleted or
// replaced. A busy agent must drain through task completion first.
func (s State) DeleteAllowed() bool {
	switch s {
	case StateOffline, StateReady, StateUnavailable:
		return true
	}
	return false
}

// Transition applies a requested external state change to the current state.
// It returns the resulting state and whether the agent became ready, which is
// the dispatch trigger. An empty requested state means no change.
func Transition(old, requested State) (State, bool, error) {
	if requested == "" || requested == old {
		return old, false, nil
	}
	switch old {
	case StateBusy:
		return old, false, fmt.Errorf(
			"%w: changing state of a busy agent is not allowed, complete the corresponding task", domain.ErrInvalidState)
	case StateOffline, StateUnavailable:
		return requested, requested == StateReady, nil
	case StateReady:
		return requested, false, nil
	default:
		return old, false, fmt.Errorf("%w: unexpected agent state %q", domain.ErrInternal, old)
	}
}

// Agent is a capability holder that receives tasks from the queues it is
// bound to.
type Agent struct {
	Ref          string          `json:"ref"`
	RouterRef    string          `json:"router_ref"`
	Address      string          `json:"address,omitempty"`
	Capabilities attribute.Group `json:"-"`
	State        State           `json:"state"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// CreateRequest holds the fields needed to create or replace an agent.
type CreateRequest struct {
	Address      string         `json:"address"`
	Capabilities map[string]any `json:"capabilities"`
}

// UpdateRequest holds the mutable agent fields. Zero values mean no change:
// an empty state requests no transition and nil capabilities keep the current
// set.
type UpdateRequest struct {
	State        State          `json:"state"`
	Address      *string        `json:"address"`
	Capabilities map[string]any `json:"capabilities"`
}

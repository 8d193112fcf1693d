// Package queue defines the Queue domain entity.
package queue

import "time"

// Queue holds waiting tasks and selects eligible agents through its
// capability predicate. Membership itself lives in agent/queue bindings
// maintained by the binding reconciler, never set directly.
type Queue struct {
	Ref         string    `json:"ref"`
	RouterRef   string    `json:"router_ref"`
	Predicate   string    `json:"predicate"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Binding is the join entity linking one agent to one queue within a router.
// Its existence is the sole source of truth for dispatch eligibility.
type Binding struct {
	RouterRef string `json:"router_ref"`
	AgentRef  string `json:"agent_ref"`
	QueueRef  string `json:"queue_ref"`
}

// CreateRequest holds the fields needed to create a queue.
type CreateRequest struct {
	Predicate   string `json:"predicate"`
	Description string `json:"description"`
}

// UpdateRequest holds the mutable queue fields. Nil fields are unchanged.
// A predicate change re-binds every agent of the router.
type UpdateRequest struct {
	Predicate   *string `json:"predicate"`
	Description *string `json:"description"`
}

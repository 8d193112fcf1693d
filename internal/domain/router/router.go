// Package router defines the Router domain entity, the tenant boundary that
// owns queues, agents, plans and tasks.
package router

import "time"

// Router is a routing namespace. All owned entities are identified by the
// composite key (router ref, local ref).
type Router struct {
	Ref         string    `json:"ref"`
	Name        string    `json:"name,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreateRequest holds the fields needed to create a router.
type CreateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// UpdateRequest holds the mutable router fields. Nil fields are unchanged.
type UpdateRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

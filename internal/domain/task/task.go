// Package task defines the Task domain entity.
package task

import (
	"time"

	"github.com/routegrid/routegrid/internal/domain/attribute"
	"github.com/routegrid/routegrid/internal/domain/plan"
)

// State represents the dispatch state of a task.
type State string

const (
	// StateWaiting means the task sits in a queue, unassigned.
	StateWaiting State = "waiting"
	// StateAssigned means exactly one agent holds the task.
	StateAssigned State = "assigned"
	// StateCompleted means the assigned agent finished the task.
	StateCompleted State = "completed"
	// StateFailed means the task exhausted its route list unserved.
	StateFailed State = "failed"
	// StateCanceled means the caller canceled the task before assignment.
	StateCanceled State = "canceled"
)

// IsTerminal reports whether the task reached a final state.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCanceled
}

// Task is a unit of work routed through queues to an agent. Routes holds the
// ordered candidate list resolved from the plan at creation time; RouteIndex
// points at the route currently being tried and QueueRef mirrors that route's
// queue.
type Task struct {
	Ref          string          `json:"ref"`
	RouterRef    string          `json:"router_ref"`
	Requirements attribute.Group `json:"-"`
	Callback     string          `json:"callback,omitempty"`
	PlanRef      string          `json:"plan_ref,omitempty"`
	QueueRef     string          `json:"queue_ref"`
	Routes       []plan.Route    `json:"routes,omitempty"`
	RouteIndex   int             `json:"route_index"`
	State        State           `json:"state"`
	AgentRef     string          `json:"agent_ref,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// CurrentRoute returns the route the task is waiting on, or nil when the
// route list is exhausted or the task was enqueued directly.
func (t *Task) CurrentRoute() *plan.Route {
	if t.RouteIndex < 0 || t.RouteIndex >= len(t.Routes) {
		return nil
	}
	return &t.Routes[t.RouteIndex]
}

// CreateRequest holds the fields needed to create a task. Exactly one of
// PlanRef and QueueRef must be set.
type CreateRequest struct {
	PlanRef      string         `json:"plan_ref"`
	QueueRef     string         `json:"queue_ref"`
	Requirements map[string]any `json:"requirements"`
	Callback     string         `json:"callback"`
}

// UpdateRequest holds the externally settable task fields. The only state a
// caller may request is completed or canceled.
type UpdateRequest struct {
	State State `json:"state"`
}

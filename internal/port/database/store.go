// Package database defines the persistence port. All entity identity is the
// composite (router ref, local ref) pair; implementations must never match on
// local refs alone.
package database

import (
	"context"

	"github.com/routegrid/routegrid/internal/domain/agent"
	"github.com/routegrid/routegrid/internal/domain/plan"
	"github.com/routegrid/routegrid/internal/domain/queue"
	"github.com/routegrid/routegrid/internal/domain/router"
	"github.com/routegrid/routegrid/internal/domain/task"
)

// Tx is the entity access surface. It is implemented both by the plain store
// (auto-commit) and by the transactional view handed to InRouterTx callbacks.
// Lookups fail with domain.ErrNotFound when the entity does not exist.
type Tx interface {
	// Routers
	CreateRouter(ctx context.Context, r router.Router) error
	GetRouter(ctx context.Context, ref string) (*router.Router, error)
	ListRouters(ctx context.Context) ([]router.Router, error)
	UpdateRouter(ctx context.Context, r router.Router) error
	// RouterHasDependents reports whether any queue, agent, plan or task
	// still references the router.
	RouterHasDependents(ctx context.Context, ref string) (bool, error)
	DeleteRouter(ctx context.Context, ref string) error

	// Queues, listed in creation order.
	CreateQueue(ctx context.Context, q queue.Queue) error
	GetQueue(ctx context.Context, routerRef, ref string) (*queue.Queue, error)
	ListQueues(ctx context.Context, routerRef string) ([]queue.Queue, error)
	UpdateQueue(ctx context.Context, q queue.Queue) error
	DeleteQueue(ctx context.Context, routerRef, ref string) error
	CountWaitingTasks(ctx context.Context, routerRef, queueRef string) (int, error)

	// Agent/queue bindings. Created and removed only by binding
	// reconciliation, never directly by callers.
	AddBinding(ctx context.Context, b queue.Binding) error
	RemoveBinding(ctx context.Context, b queue.Binding) error
	HasBinding(ctx context.Context, b queue.Binding) (bool, error)
	// ListAgentBindings returns the queues an agent is bound to, in queue
	// creation order.
	ListAgentBindings(ctx context.Context, routerRef, agentRef string) ([]queue.Binding, error)
	// ListQueueBindings returns the agents bound to a queue, in agent
	// creation order.
	ListQueueBindings(ctx context.Context, routerRef, queueRef string) ([]queue.Binding, error)

	// Agents
	CreateAgent(ctx context.Context, a agent.Agent) error
	GetAgent(ctx context.Context, routerRef, ref string) (*agent.Agent, error)
	ListAgents(ctx context.Context, routerRef string) ([]agent.Agent, error)
	UpdateAgent(ctx context.Context, a agent.Agent) error
	// DeleteAgent removes the agent and all of its bindings.
	DeleteAgent(ctx context.Context, routerRef, ref string) error
	// ReadyAgentForQueue returns the oldest-created ready agent bound to the
	// queue, or nil when none is available.
	ReadyAgentForQueue(ctx context.Context, routerRef, queueRef string) (*agent.Agent, error)

	// Plans
	CreatePlan(ctx context.Context, p plan.Plan) error
	GetPlan(ctx context.Context, routerRef, ref string) (*plan.Plan, error)
	ListPlans(ctx context.Context, routerRef string) ([]plan.Plan, error)
	UpdatePlan(ctx context.Context, p plan.Plan) error
	DeletePlan(ctx context.Context, routerRef, ref string) error

	// Tasks
	CreateTask(ctx context.Context, t task.Task) error
	GetTask(ctx context.Context, routerRef, ref string) (*task.Task, error)
	ListTasks(ctx context.Context, routerRef string) ([]task.Task, error)
	UpdateTask(ctx context.Context, t task.Task) error
	DeleteTask(ctx context.Context, routerRef, ref string) error
	// OldestWaitingTask returns the earliest-created waiting task currently
	// parked on the queue, or nil when the queue is empty.
	OldestWaitingTask(ctx context.Context, routerRef, queueRef string) (*task.Task, error)
}

// Store is the persistence port. InRouterTx runs fn inside one atomic
// transaction while holding the router-scoped configuration lock, so binding
// and dispatch mutations commit fully or not at all.
type Store interface {
	Tx

	InRouterTx(ctx context.Context, routerRef string, fn func(ctx context.Context, tx Tx) error) error
}

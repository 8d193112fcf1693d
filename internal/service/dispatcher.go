package service

import (
	"context"
	"log/slog"
	"time"

	oteladapter "github.com/routegrid/routegrid/internal/adapter/otel"
	"github.com/routegrid/routegrid/internal/domain/agent"
	"github.com/routegrid/routegrid/internal/domain/task"
	"github.com/routegrid/routegrid/internal/port/database"
	"github.com/routegrid/routegrid/internal/port/messagequeue"
)

// Dispatcher assigns waiting tasks to ready agents. Every assignment happens
// inside one transaction under the router-scoped lock, which makes it
// at-most-one: a task is never handed to two agents and an agent never holds
// two tasks.
type Dispatcher struct {
	store   database.Store
	events  *Events
	timers  *RouteTimers
	metrics *oteladapter.Metrics
}

// NewDispatcher creates a Dispatcher. timers and metrics may be nil.
func NewDispatcher(store database.Store, events *Events, timers *RouteTimers, metrics *oteladapter.Metrics) *Dispatcher {
	return &Dispatcher{store: store, events: events, timers: timers, metrics: metrics}
}

// DispatchAgent searches the queues the agent is bound to, in queue creation
// order, for the oldest waiting task and assigns it. Invoked after an agent's
// state commit signaled that it became ready. When no candidate is found the
// agent simply stays ready.
func (d *Dispatcher) DispatchAgent(ctx context.Context, routerRef, agentRef string) error {
	var (
		assigned *task.Task
		holder   *agent.Agent
	)
	err := d.store.InRouterTx(ctx, routerRef, func(ctx context.Context, tx database.Tx) error {
		a, err := tx.GetAgent(ctx, routerRef, agentRef)
		if err != nil {
			if isNotFound(err) {
				return nil
			}
			return err
		}
		if a.State != agent.StateReady {
			// Another dispatch got here first; nothing to do.
			return nil
		}

		bindings, err := tx.ListAgentBindings(ctx, routerRef, agentRef)
		if err != nil {
			return err
		}
		for _, b := range bindings {
			t, err := tx.OldestWaitingTask(ctx, routerRef, b.QueueRef)
			if err != nil {
				return err
			}
			if t == nil {
				continue
			}
			if err := assign(ctx, tx, t, a); err != nil {
				return err
			}
			assigned, holder = t, a
			return nil
		}
		return nil
	})
	if err != nil {
		return err
	}
	if assigned != nil {
		d.finishAssignment(ctx, assigned, holder)
	}
	return nil
}

// TryAssignTask attempts to hand the waiting task to a ready agent bound to
// its current queue. It runs inside the caller's transaction; the caller must
// hold the router lock. Returns the agent, or nil when none is ready.
func (d *Dispatcher) TryAssignTask(ctx context.Context, tx database.Tx, t *task.Task) (*agent.Agent, error) {
	a, err := tx.ReadyAgentForQueue(ctx, t.RouterRef, t.QueueRef)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, nil
	}
	if err := assign(ctx, tx, t, a); err != nil {
		return nil, err
	}
	return a, nil
}

// assign atomically marks the task assigned and the agent busy.
func assign(ctx context.Context, tx database.Tx, t *task.Task, a *agent.Agent) error {
	now := time.Now().UTC()
	t.State = task.StateAssigned
	t.AgentRef = a.Ref
	t.UpdatedAt = now
	if err := tx.UpdateTask(ctx, *t); err != nil {
		return err
	}
	a.State = agent.StateBusy
	a.UpdatedAt = now
	return tx.UpdateAgent(ctx, *a)
}

// finishAssignment runs the post-commit side effects of an assignment:
// pending route timer cancellation, lifecycle events and metrics.
func (d *Dispatcher) finishAssignment(ctx context.Context, t *task.Task, a *agent.Agent) {
	slog.Info("task assigned",
		"router", t.RouterRef, "task", t.Ref, "queue", t.QueueRef, "agent", a.Ref)

	if d.timers != nil {
		d.timers.Cancel(t.RouterRef, t.Ref)
	}
	d.events.taskEvent(ctx, messagequeue.SubjectTaskAssigned, t)
	d.events.agentState(ctx, a)
	if d.metrics != nil {
		d.metrics.TasksAssigned.Add(ctx, 1)
		d.metrics.WaitDuration.Record(ctx, time.Since(t.CreatedAt).Seconds())
	}
}

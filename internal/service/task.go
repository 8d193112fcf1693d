package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	oteladapter "github.com/routegrid/routegrid/internal/adapter/otel"
	"github.com/routegrid/routegrid/internal/domain"
	"github.com/routegrid/routegrid/internal/domain/agent"
	"github.com/routegrid/routegrid/internal/domain/attribute"
	"github.com/routegrid/routegrid/internal/domain/task"
	"github.com/routegrid/routegrid/internal/port/database"
	"github.com/routegrid/routegrid/internal/port/messagequeue"
)

// TaskService manages the task lifecycle: creation against a plan or a queue,
// completion, cancellation and route timeout advancement.
type TaskService struct {
	store      database.Store
	plans      *PlanService
	dispatcher *Dispatcher
	events     *Events
	timers     *RouteTimers
	metrics    *oteladapter.Metrics
}

// NewTaskService creates a TaskService and binds the route timers to its
// advance entry point. timers and metrics may be nil.
func NewTaskService(store database.Store, plans *PlanService, dispatcher *Dispatcher,
	events *Events, timers *RouteTimers, metrics *oteladapter.Metrics) *TaskService {

	s := &TaskService{
		store:      store,
		plans:      plans,
		dispatcher: dispatcher,
		events:     events,
		timers:     timers,
		metrics:    metrics,
	}
	if timers != nil {
		timers.Bind(s.AdvanceRoute)
	}
	return s
}

// Create creates a task and enqueues it on its first route's queue. Exactly
// one of plan_ref and queue_ref must be given. If a ready agent is bound to
// the queue the task is assigned within the same transaction.
func (s *TaskService) Create(ctx context.Context, routerRef string, req task.CreateRequest) (*task.Task, error) {
	return s.create(ctx, routerRef, uuid.NewString(), req)
}

// Replace creates a task under a caller-supplied ref, replacing any existing
// non-assigned task with that ref.
func (s *TaskService) Replace(ctx context.Context, routerRef, ref string, req task.CreateRequest) (*task.Task, error) {
	if err := s.Delete(ctx, routerRef, ref); err != nil && !isNotFound(err) {
		return nil, err
	}
	return s.create(ctx, routerRef, ref, req)
}

func (s *TaskService) create(ctx context.Context, routerRef, ref string, req task.CreateRequest) (*task.Task, error) {
	if (req.PlanRef == "") == (req.QueueRef == "") {
		return nil, fmt.Errorf("%w: exactly one of plan_ref and queue_ref is required", domain.ErrBadValue)
	}
	requirements, err := attribute.FromDTO(req.Requirements)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	t := task.Task{
		Ref:          ref,
		RouterRef:    routerRef,
		Requirements: requirements,
		Callback:     req.Callback,
		PlanRef:      req.PlanRef,
		State:        task.StateWaiting,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var (
		assignee *agent.Agent
		// tasks.created reports the pre-assignment snapshot; an
		// in-transaction assignment publishes its own tasks.assigned event.
		created task.Task
	)
	err = s.store.InRouterTx(ctx, routerRef, func(ctx context.Context, tx database.Tx) error {
		if _, err := tx.GetRouter(ctx, routerRef); err != nil {
			return err
		}

		if req.PlanRef != "" {
			p, err := tx.GetPlan(ctx, routerRef, req.PlanRef)
			if err != nil {
				return err
			}
			routes, err := s.plans.Resolve(p, requirements)
			if err != nil {
				return err
			}
			if len(routes) == 0 {
				return fmt.Errorf("%w: no plan rule matched and plan has no default route", domain.ErrBadValue)
			}
			t.Routes = routes
			t.RouteIndex = 0
			t.QueueRef = routes[0].QueueRef
		} else {
			t.QueueRef = req.QueueRef
		}

		if _, err := tx.GetQueue(ctx, routerRef, t.QueueRef); err != nil {
			return err
		}
		if err := tx.CreateTask(ctx, t); err != nil {
			return err
		}
		created = t

		assignee, err = s.dispatcher.TryAssignTask(ctx, tx, &t)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.events.taskEvent(ctx, messagequeue.SubjectTaskCreated, &created)
	if s.metrics != nil {
		s.metrics.TasksCreated.Add(ctx, 1)
	}

	if assignee != nil {
		s.dispatcher.finishAssignment(ctx, &t, assignee)
	} else {
		s.armRouteTimer(&t)
	}
	return &t, nil
}

// Get returns a task by composite ref.
func (s *TaskService) Get(ctx context.Context, routerRef, ref string) (*task.Task, error) {
	return s.store.GetTask(ctx, routerRef, ref)
}

// List returns all tasks of a router.
func (s *TaskService) List(ctx context.Context, routerRef string) ([]task.Task, error) {
	return s.store.ListTasks(ctx, routerRef)
}

// Update applies an externally requested task state change. Completing an
// assigned task frees its agent (busy to ready) and immediately re-dispatches
// it; canceling is allowed only while the task is still waiting.
func (s *TaskService) Update(ctx context.Context, routerRef, ref string, req task.UpdateRequest) (*task.Task, error) {
	switch req.State {
	case task.StateCompleted:
		return s.complete(ctx, routerRef, ref)
	case task.StateCanceled:
		return s.cancel(ctx, routerRef, ref)
	default:
		return nil, fmt.Errorf("%w: setting task state to %q not allowed", domain.ErrBadValue, req.State)
	}
}

func (s *TaskService) complete(ctx context.Context, routerRef, ref string) (*task.Task, error) {
	var (
		t     *task.Task
		freed *agent.Agent
	)
	err := s.store.InRouterTx(ctx, routerRef, func(ctx context.Context, tx database.Tx) error {
		var err error
		t, err = tx.GetTask(ctx, routerRef, ref)
		if err != nil {
			return err
		}
		if t.State != task.StateAssigned {
			return fmt.Errorf("%w: completing task in state %s not allowed", domain.ErrInvalidState, t.State)
		}

		now := time.Now().UTC()
		t.State = task.StateCompleted
		t.UpdatedAt = now
		if err := tx.UpdateTask(ctx, *t); err != nil {
			return err
		}

		freed, err = tx.GetAgent(ctx, routerRef, t.AgentRef)
		if err != nil {
			return err
		}
		freed.State = agent.StateReady
		freed.UpdatedAt = now
		return tx.UpdateAgent(ctx, *freed)
	})
	if err != nil {
		return nil, err
	}

	s.timers.Cancel(routerRef, ref)
	s.events.taskEvent(ctx, messagequeue.SubjectTaskCompleted, t)
	s.events.agentState(ctx, freed)
	if s.metrics != nil {
		s.metrics.TasksDone.Add(ctx, 1)
	}

	// The freed agent became ready; give it the next waiting task. The
	// completion already committed, so a dispatch failure is logged instead
	// of failing the request; the agent stays ready for the next dispatch.
	if err := s.dispatcher.DispatchAgent(ctx, routerRef, freed.Ref); err != nil {
		slog.Error("dispatch after task completion failed",
			"router", routerRef, "agent", freed.Ref, "error", err)
	}
	return t, nil
}

func (s *TaskService) cancel(ctx context.Context, routerRef, ref string) (*task.Task, error) {
	var t *task.Task
	err := s.store.InRouterTx(ctx, routerRef, func(ctx context.Context, tx database.Tx) error {
		var err error
		t, err = tx.GetTask(ctx, routerRef, ref)
		if err != nil {
			return err
		}
		if t.State != task.StateWaiting {
			return fmt.Errorf("%w: canceling task in state %s not allowed", domain.ErrInvalidState, t.State)
		}
		t.State = task.StateCanceled
		t.UpdatedAt = time.Now().UTC()
		return tx.UpdateTask(ctx, *t)
	})
	if err != nil {
		return nil, err
	}

	s.timers.Cancel(routerRef, ref)
	s.events.taskEvent(ctx, messagequeue.SubjectTaskCanceled, t)
	if s.metrics != nil {
		s.metrics.TasksDone.Add(ctx, 1)
	}
	return t, nil
}

// Delete removes a task. An assigned task cannot be deleted: its agent must
// complete it first, otherwise the agent would be left busy with no task.
func (s *TaskService) Delete(ctx context.Context, routerRef, ref string) error {
	err := s.store.InRouterTx(ctx, routerRef, func(ctx context.Context, tx database.Tx) error {
		t, err := tx.GetTask(ctx, routerRef, ref)
		if err != nil {
			return err
		}
		if t.State == task.StateAssigned {
			return fmt.Errorf("%w: deleting assigned task not allowed", domain.ErrInvalidState)
		}
		return tx.DeleteTask(ctx, routerRef, ref)
	})
	if err != nil {
		return err
	}
	s.timers.Cancel(routerRef, ref)
	return nil
}

// AdvanceRoute is the timer entry point: the task's current route timed out
// unserved, so the task moves to the next route (or fails when the list is
// exhausted). The check that the task is still waiting on the given route
// runs under the router lock, so a timer racing a concurrent assignment is a
// harmless no-op.
func (s *TaskService) AdvanceRoute(ctx context.Context, routerRef, taskRef string, routeIndex int) error {
	var (
		t        *task.Task
		assignee *agent.Agent
		advanced bool
		failed   bool
	)
	err := s.store.InRouterTx(ctx, routerRef, func(ctx context.Context, tx database.Tx) error {
		var err error
		t, err = tx.GetTask(ctx, routerRef, taskRef)
		if err != nil {
			if isNotFound(err) {
				return nil
			}
			return err
		}
		if t.State != task.StateWaiting || t.RouteIndex != routeIndex {
			// The task already left this route.
			t = nil
			return nil
		}

		now := time.Now().UTC()
		next := routeIndex + 1
		if next >= len(t.Routes) {
			t.State = task.StateFailed
			t.UpdatedAt = now
			failed = true
			return tx.UpdateTask(ctx, *t)
		}

		t.RouteIndex = next
		t.QueueRef = t.Routes[next].QueueRef
		t.UpdatedAt = now
		if err := tx.UpdateTask(ctx, *t); err != nil {
			return err
		}
		advanced = true

		assignee, err = s.dispatcher.TryAssignTask(ctx, tx, t)
		return err
	})
	if err != nil {
		return err
	}
	if t == nil {
		return nil
	}

	if s.metrics != nil {
		s.metrics.RouteTimeouts.Add(ctx, 1)
	}

	switch {
	case failed:
		slog.Warn("task exhausted its route list", "router", routerRef, "task", taskRef)
		s.events.taskEvent(ctx, messagequeue.SubjectTaskFailed, t)
		if s.metrics != nil {
			s.metrics.TasksDone.Add(ctx, 1)
		}
	case assignee != nil:
		s.dispatcher.finishAssignment(ctx, t, assignee)
	case advanced:
		s.armRouteTimer(t)
	}
	return nil
}

// armRouteTimer schedules the timeout for the task's current route, if any.
func (s *TaskService) armRouteTimer(t *task.Task) {
	if s.timers == nil || t.State != task.StateWaiting {
		return
	}
	route := t.CurrentRoute()
	if route == nil || route.TimeoutSeconds == nil {
		return
	}
	s.timers.Schedule(t.RouterRef, t.Ref, t.RouteIndex, time.Duration(*route.TimeoutSeconds)*time.Second)
}

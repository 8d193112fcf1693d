package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/routegrid/routegrid/internal/domain"
	"github.com/routegrid/routegrid/internal/domain/queue"
	"github.com/routegrid/routegrid/internal/eval"
	"github.com/routegrid/routegrid/internal/port/database"
)

// QueueService manages queues and keeps their agent bindings consistent with
// the queue predicate.
type QueueService struct {
	store     database.Store
	evaluator *eval.Evaluator
}

// NewQueueService creates a new QueueService.
func NewQueueService(store database.Store, evaluator *eval.Evaluator) *QueueService {
	return &QueueService{store: store, evaluator: evaluator}
}

// Create creates a queue with a generated ref and binds every agent of the
// router whose capabilities satisfy the new predicate.
func (s *QueueService) Create(ctx context.Context, routerRef string, req queue.CreateRequest) (*queue.Queue, error) {
	return s.create(ctx, routerRef, uuid.NewString(), req)
}

// Replace creates a queue under a caller-supplied ref, replacing any existing
// queue with that ref.
func (s *QueueService) Replace(ctx context.Context, routerRef, ref string, req queue.CreateRequest) (*queue.Queue, error) {
	if err := s.Delete(ctx, routerRef, ref); err != nil && !isNotFound(err) {
		return nil, err
	}
	return s.create(ctx, routerRef, ref, req)
}

func (s *QueueService) create(ctx context.Context, routerRef, ref string, req queue.CreateRequest) (*queue.Queue, error) {
	if req.Predicate == "" {
		return nil, fmt.Errorf("%w: queue predicate is required", domain.ErrBadValue)
	}
	if err := s.evaluator.Validate(req.Predicate); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	q := queue.Queue{
		Ref:         ref,
		RouterRef:   routerRef,
		Predicate:   req.Predicate,
		Description: req.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.store.InRouterTx(ctx, routerRef, func(ctx context.Context, tx database.Tx) error {
		if _, err := tx.GetRouter(ctx, routerRef); err != nil {
			return err
		}
		if err := tx.CreateQueue(ctx, q); err != nil {
			return err
		}
		return s.bindAgents(ctx, tx, &q)
	})
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// Get returns a queue by composite ref.
func (s *QueueService) Get(ctx context.Context, routerRef, ref string) (*queue.Queue, error) {
	return s.store.GetQueue(ctx, routerRef, ref)
}

// List returns all queues of a router in creation order.
func (s *QueueService) List(ctx context.Context, routerRef string) ([]queue.Queue, error) {
	return s.store.ListQueues(ctx, routerRef)
}

// Size returns the number of waiting tasks parked on the queue.
func (s *QueueService) Size(ctx context.Context, routerRef, ref string) (int, error) {
	if _, err := s.store.GetQueue(ctx, routerRef, ref); err != nil {
		return 0, err
	}
	return s.store.CountWaitingTasks(ctx, routerRef, ref)
}

// Agents returns the refs of agents currently bound to the queue, in agent
// creation order.
func (s *QueueService) Agents(ctx context.Context, routerRef, ref string) ([]string, error) {
	if _, err := s.store.GetQueue(ctx, routerRef, ref); err != nil {
		return nil, err
	}
	bindings, err := s.store.ListQueueBindings(ctx, routerRef, ref)
	if err != nil {
		return nil, err
	}
	refs := make([]string, 0, len(bindings))
	for _, b := range bindings {
		refs = append(refs, b.AgentRef)
	}
	return refs, nil
}

// Update updates the queue. A predicate change re-evaluates every agent of
// the router against the new predicate under the router lock.
func (s *QueueService) Update(ctx context.Context, routerRef, ref string, req queue.UpdateRequest) (*queue.Queue, error) {
	if req.Predicate != nil {
		if err := s.evaluator.Validate(*req.Predicate); err != nil {
			return nil, err
		}
	}

	var updated *queue.Queue
	err := s.store.InRouterTx(ctx, routerRef, func(ctx context.Context, tx database.Tx) error {
		q, err := tx.GetQueue(ctx, routerRef, ref)
		if err != nil {
			return err
		}
		predicateChanged := req.Predicate != nil && *req.Predicate != q.Predicate
		if req.Predicate != nil {
			q.Predicate = *req.Predicate
		}
		if req.Description != nil {
			q.Description = *req.Description
		}
		q.UpdatedAt = time.Now().UTC()
		if err := tx.UpdateQueue(ctx, *q); err != nil {
			return err
		}
		updated = q
		if predicateChanged {
			return s.rebindAgents(ctx, tx, q)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes a queue. It fails while waiting tasks are still parked on
// the queue.
func (s *QueueService) Delete(ctx context.Context, routerRef, ref string) error {
	return s.store.InRouterTx(ctx, routerRef, func(ctx context.Context, tx database.Tx) error {
		if _, err := tx.GetQueue(ctx, routerRef, ref); err != nil {
			return err
		}
		waiting, err := tx.CountWaitingTasks(ctx, routerRef, ref)
		if err != nil {
			return err
		}
		if waiting > 0 {
			return fmt.Errorf("%w: queue %s still has %d waiting tasks", domain.ErrInvalidState, ref, waiting)
		}
		return tx.DeleteQueue(ctx, routerRef, ref)
	})
}

// bindAgents creates bindings for every agent matching a newly created
// queue's predicate. There are no stale bindings to remove for a new queue.
func (s *QueueService) bindAgents(ctx context.Context, tx database.Tx, q *queue.Queue) error {
	agents, err := tx.ListAgents(ctx, q.RouterRef)
	if err != nil {
		return err
	}
	for i := range agents {
		a := &agents[i]
		matched, err := s.evaluator.Evaluate(q.Predicate, a.Capabilities)
		if err != nil {
			slog.Error("queue predicate evaluation failed",
				"router", q.RouterRef, "queue", q.Ref, "agent", a.Ref, "error", err)
			return err
		}
		if matched {
			if err := tx.AddBinding(ctx, queue.Binding{RouterRef: q.RouterRef, AgentRef: a.Ref, QueueRef: q.Ref}); err != nil {
				return err
			}
		}
	}
	return nil
}

// rebindAgents re-establishes the binding invariant for one queue after its
// predicate changed: a binding exists iff the predicate matches the agent's
// current capabilities.
func (s *QueueService) rebindAgents(ctx context.Context, tx database.Tx, q *queue.Queue) error {
	agents, err := tx.ListAgents(ctx, q.RouterRef)
	if err != nil {
		return err
	}
	for i := range agents {
		a := &agents[i]
		matched, err := s.evaluator.Evaluate(q.Predicate, a.Capabilities)
		if err != nil {
			slog.Error("queue predicate evaluation failed",
				"router", q.RouterRef, "queue", q.Ref, "agent", a.Ref, "error", err)
			return err
		}
		b := queue.Binding{RouterRef: q.RouterRef, AgentRef: a.Ref, QueueRef: q.Ref}
		bound, err := tx.HasBinding(ctx, b)
		if err != nil {
			return err
		}
		switch {
		case matched && !bound:
			if err := tx.AddBinding(ctx, b); err != nil {
				return err
			}
		case !matched && bound:
			if err := tx.RemoveBinding(ctx, b); err != nil {
				return err
			}
		}
	}
	return nil
}

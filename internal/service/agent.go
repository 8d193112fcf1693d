package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/routegrid/routegrid/internal/domain"
	"github.com/routegrid/routegrid/internal/domain/agent"
	"github.com/routegrid/routegrid/internal/domain/attribute"
	"github.com/routegrid/routegrid/internal/domain/queue"
	"github.com/routegrid/routegrid/internal/eval"
	"github.com/routegrid/routegrid/internal/port/database"
)

// AgentService manages agents: lifecycle, the availability state machine and
// the capability-driven queue binding reconciliation.
type AgentService struct {
	store      database.Store
	evaluator  *eval.Evaluator
	dispatcher *Dispatcher
	events     *Events
}

// NewAgentService creates a new AgentService.
func NewAgentService(store database.Store, evaluator *eval.Evaluator, dispatcher *Dispatcher, events *Events) *AgentService {
	return &AgentService{store: store, evaluator: evaluator, dispatcher: dispatcher, events: events}
}

// Create creates an agent in state offline and binds it to every queue whose
// predicate matches its capabilities.
func (s *AgentService) Create(ctx context.Context, routerRef string, req agent.CreateRequest) (*agent.Agent, error) {
	return s.create(ctx, routerRef, uuid.NewString(), req)
}

// Replace creates an agent under a caller-supplied ref. An existing agent
// with that ref is deleted first; a busy agent cannot be replaced.
func (s *AgentService) Replace(ctx context.Context, routerRef, ref string, req agent.CreateRequest) (*agent.Agent, error) {
	capabilities, err := attribute.FromDTO(req.Capabilities)
	if err != nil {
		return nil, err
	}

	var created *agent.Agent
	err = s.store.InRouterTx(ctx, routerRef, func(ctx context.Context, tx database.Tx) error {
		existing, err := tx.GetAgent(ctx, routerRef, ref)
		if err != nil && !isNotFound(err) {
			return err
		}
		if existing != nil {
			if !existing.State.DeleteAllowed() {
				return fmt.Errorf("%w: replacing agent in state %s not allowed", domain.ErrInvalidState, existing.State)
			}
			if err := tx.DeleteAgent(ctx, routerRef, ref); err != nil {
				return err
			}
		}
		created, err = s.doCreate(ctx, tx, routerRef, ref, req.Address, capabilities)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *AgentService) create(ctx context.Context, routerRef, ref string, req agent.CreateRequest) (*agent.Agent, error) {
	capabilities, err := attribute.FromDTO(req.Capabilities)
	if err != nil {
		return nil, err
	}

	var created *agent.Agent
	err = s.store.InRouterTx(ctx, routerRef, func(ctx context.Context, tx database.Tx) error {
		created, err = s.doCreate(ctx, tx, routerRef, ref, req.Address, capabilities)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *AgentService) doCreate(ctx context.Context, tx database.Tx, routerRef, ref, address string,
	capabilities attribute.Group) (*agent.Agent, error) {

	if _, err := tx.GetRouter(ctx, routerRef); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	a := agent.Agent{
		Ref:          ref,
		RouterRef:    routerRef,
		Address:      address,
		Capabilities: capabilities,
		State:        agent.StateOffline,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := tx.CreateAgent(ctx, a); err != nil {
		return nil, err
	}
	if _, err := s.reconcile(ctx, tx, &a, capabilities, true); err != nil {
		return nil, err
	}
	return &a, nil
}

// Get returns an agent by composite ref.
func (s *AgentService) Get(ctx context.Context, routerRef, ref string) (*agent.Agent, error) {
	return s.store.GetAgent(ctx, routerRef, ref)
}

// List returns all agents of a router in creation order.
func (s *AgentService) List(ctx context.Context, routerRef string) ([]agent.Agent, error) {
	return s.store.ListAgents(ctx, routerRef)
}

// Queues returns the refs of queues the agent is bound to, in queue creation
// order.
func (s *AgentService) Queues(ctx context.Context, routerRef, ref string) ([]string, error) {
	if _, err := s.store.GetAgent(ctx, routerRef, ref); err != nil {
		return nil, err
	}
	bindings, err := s.store.ListAgentBindings(ctx, routerRef, ref)
	if err != nil {
		return nil, err
	}
	refs := make([]string, 0, len(bindings))
	for _, b := range bindings {
		refs = append(refs, b.QueueRef)
	}
	return refs, nil
}

// updateResult carries the outcome of the update transaction to the dispatch
// trigger that runs after commit.
type updateResult struct {
	agent       *agent.Agent
	becameReady bool
}

// Update applies a state transition, capability change and address change to
// an agent. States busy and unavailable are not settable externally: only the
// dispatcher drives busy and only availability logic drives unavailable. When
// the agent becomes ready, dispatch runs once after the transaction commits.
func (s *AgentService) Update(ctx context.Context, routerRef, ref string, req agent.UpdateRequest) (*agent.Agent, error) {
	if req.State != "" && !req.State.Settable() {
		return nil, fmt.Errorf("%w: setting agent state to %q not allowed", domain.ErrBadValue, req.State)
	}

	newCapabilities, err := attribute.FromDTO(req.Capabilities)
	if err != nil {
		return nil, err
	}

	var result updateResult
	err = s.store.InRouterTx(ctx, routerRef, func(ctx context.Context, tx database.Tx) error {
		a, err := tx.GetAgent(ctx, routerRef, ref)
		if err != nil {
			return err
		}

		newState, becameReady, err := agent.Transition(a.State, req.State)
		if err != nil {
			return err
		}
		a.State = newState

		if err := s.updateCapabilities(ctx, tx, a, req.Capabilities, newCapabilities); err != nil {
			return err
		}

		if req.Address != nil {
			a.Address = *req.Address
		}
		a.UpdatedAt = time.Now().UTC()
		if err := tx.UpdateAgent(ctx, *a); err != nil {
			return err
		}
		result = updateResult{agent: a, becameReady: becameReady}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.events.agentState(ctx, result.agent)

	// The state change already committed; a dispatch failure must not turn
	// the succeeded update into an error. The agent stays ready and is
	// picked up by the next dispatch.
	if result.becameReady {
		if err := s.dispatcher.DispatchAgent(ctx, routerRef, ref); err != nil {
			slog.Error("dispatch after agent update failed",
				"router", routerRef, "agent", ref, "error", err)
		}
	}
	return result.agent, nil
}

// updateCapabilities replaces the agent's capability set and re-reconciles
// its queue bindings. A semantically unchanged set (weak key-set equality)
// keeps the current bindings untouched to avoid queue churn.
func (s *AgentService) updateCapabilities(ctx context.Context, tx database.Tx, a *agent.Agent,
	dto map[string]any, newCapabilities attribute.Group) error {

	if dto == nil {
		// no capabilities change requested
		return nil
	}
	if attribute.WeakEqual(newCapabilities, a.Capabilities) {
		slog.Info("agent capabilities unchanged, keeping current queues",
			"router", a.RouterRef, "agent", a.Ref)
		return nil
	}

	slog.Info("agent capabilities changed, re-binding queues",
		"router", a.RouterRef, "agent", a.Ref)
	a.Capabilities = newCapabilities
	_, err := s.reconcile(ctx, tx, a, newCapabilities, false)
	return err
}

// Delete removes an agent together with its bindings. A busy agent must
// drain through task completion first.
func (s *AgentService) Delete(ctx context.Context, routerRef, ref string) error {
	return s.store.InRouterTx(ctx, routerRef, func(ctx context.Context, tx database.Tx) error {
		a, err := tx.GetAgent(ctx, routerRef, ref)
		if err != nil {
			return err
		}
		if !a.State.DeleteAllowed() {
			return fmt.Errorf("%w: deleting agent in state %s not allowed", domain.ErrInvalidState, a.State)
		}
		return tx.DeleteAgent(ctx, routerRef, ref)
	})
}

// reconcile walks every queue of the agent's router and re-establishes the
// binding invariant: a binding exists iff the queue predicate matches the
// given capabilities. A new agent cannot have stale bindings, so removal is
// skipped for isNewAgent. Any evaluation failure aborts the surrounding
// transaction; partial binding sets are never committed. Returns the number
// of active bindings.
func (s *AgentService) reconcile(ctx context.Context, tx database.Tx, a *agent.Agent,
	capabilities attribute.Group, isNewAgent bool) (int, error) {

	slog.Info("agent binding reconciliation started", "router", a.RouterRef, "agent", a.Ref)

	queues, err := tx.ListQueues(ctx, a.RouterRef)
	if err != nil {
		return 0, err
	}

	bound := 0
	for i := range queues {
		q := &queues[i]
		matched, err := s.evaluator.Evaluate(q.Predicate, capabilities)
		if err != nil {
			slog.Error("queue predicate evaluation failed",
				"router", a.RouterRef, "queue", q.Ref, "agent", a.Ref, "error", err)
			return 0, err
		}

		b := queue.Binding{RouterRef: a.RouterRef, AgentRef: a.Ref, QueueRef: q.Ref}
		switch {
		case matched:
			bound++
			exists := false
			if !isNewAgent {
				exists, err = tx.HasBinding(ctx, b)
				if err != nil {
					return 0, err
				}
			}
			if !exists {
				if err := tx.AddBinding(ctx, b); err != nil {
					return 0, err
				}
			}
		case !isNewAgent:
			exists, err := tx.HasBinding(ctx, b)
			if err != nil {
				return 0, err
			}
			if exists {
				if err := tx.RemoveBinding(ctx, b); err != nil {
					return 0, err
				}
			}
		}
	}

	slog.Info("agent binding reconciliation finished",
		"router", a.RouterRef, "agent", a.Ref, "bound_queues", bound)
	return bound, nil
}

package service

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/routegrid/routegrid/internal/domain"
	"github.com/routegrid/routegrid/internal/domain/agent"
	"github.com/routegrid/routegrid/internal/domain/task"
	"github.com/routegrid/routegrid/internal/port/messagequeue"
)

func TestAgentCreateStartsOffline(t *testing.T) {
	env := newTestEnv(t)
	routerRef := env.createRouter(t)

	a, err := env.agents.Create(context.Background(), routerRef, agent.CreateRequest{
		Capabilities: map[string]any{"language": "en"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if a.State != agent.StateOffline {
		t.Errorf("state = %s, want offline", a.State)
	}
}

func TestAgentCreateBindsMatchingQueues(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	routerRef := env.createRouter(t)

	enQueue := env.createQueue(t, routerRef, "language==en")
	env.createQueue(t, routerRef, "language==fr")

	agentRef := env.createAgent(t, routerRef, map[string]any{"language": "en"})

	queues, err := env.agents.Queues(ctx, routerRef, agentRef)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(queues, []string{enQueue}) {
		t.Errorf("bound queues = %v, want %v", queues, []string{enQueue})
	}
}

func TestAgentQueuesInQueueCreationOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	routerRef := env.createRouter(t)

	q1 := env.createQueue(t, routerRef, "tier=gt=0")
	q2 := env.createQueue(t, routerRef, "tier=gt=1")
	agentRef := env.createAgent(t, routerRef, map[string]any{"tier": 5})

	queues, err := env.agents.Queues(ctx, routerRef, agentRef)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(queues, []string{q1, q2}) {
		t.Errorf("bound queues = %v, want %v", queues, []string{q1, q2})
	}
}

func TestAgentUpdateRejectsUnsettableStates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	routerRef := env.createRouter(t)
	agentRef := env.createAgent(t, routerRef, nil)

	for _, state := range []agent.State{agent.StateBusy, agent.StateUnavailable} {
		_, err := env.agents.Update(ctx, routerRef, agentRef, agent.UpdateRequest{State: state})
		if !errors.Is(err, domain.ErrBadValue) {
			t.Errorf("Update to %s = %v, want ErrBadValue", state, err)
		}
	}
}

func TestAgentBusyRejectsStateChange(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	routerRef := env.createRouter(t)
	queueRef := env.createQueue(t, routerRef, "language==en")
	agentRef := env.createAgent(t, routerRef, map[string]any{"language": "en"})
	env.setAgentReady(t, routerRef, agentRef)
	env.createQueuedTask(t, routerRef, queueRef)

	if got := env.getAgent(t, routerRef, agentRef); got.State != agent.StateBusy {
		t.Fatalf("agent state = %s, want busy", got.State)
	}

	_, err := env.agents.Update(ctx, routerRef, agentRef, agent.UpdateRequest{State: agent.StateOffline})
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("Update of busy agent = %v, want ErrInvalidState", err)
	}
}

func TestAgentBusyRejectsDeleteAndReplace(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	routerRef := env.createRouter(t)
	queueRef := env.createQueue(t, routerRef, "language==en")
	agentRef := env.createAgent(t, routerRef, map[string]any{"language": "en"})
	env.setAgentReady(t, routerRef, agentRef)
	env.createQueuedTask(t, routerRef, queueRef)

	if err := env.agents.Delete(ctx, routerRef, agentRef); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("Delete of busy agent = %v, want ErrInvalidState", err)
	}

	_, err := env.agents.Replace(ctx, routerRef, agentRef, agent.CreateRequest{})
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("Replace of busy agent = %v, want ErrInvalidState", err)
	}
}

func TestAgentWeakEqualCapabilitiesKeepBindings(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	routerRef := env.createRouter(t)
	queueRef := env.createQueue(t, routerRef, "language==en")
	agentRef := env.createAgent(t, routerRef, map[string]any{"language": "en"})

	// Same key set, different value: weak equality keeps the binding even
	// though the predicate no longer matches.
	_, err := env.agents.Update(ctx, routerRef, agentRef, agent.UpdateRequest{
		Capabilities: map[string]any{"language": "fr"},
	})
	if err != nil {
		t.Fatal(err)
	}

	queues, err := env.agents.Queues(ctx, routerRef, agentRef)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(queues, []string{queueRef}) {
		t.Errorf("bound queues = %v, want binding kept to %s", queues, queueRef)
	}
}

func TestAgentChangedCapabilitiesRebind(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	routerRef := env.createRouter(t)
	enQueue := env.createQueue(t, routerRef, "language==en")
	frQueue := env.createQueue(t, routerRef, "language==fr")
	agentRef := env.createAgent(t, routerRef, map[string]any{"language": "en"})

	// Adding a key changes the key set, so bindings are re-reconciled.
	_, err := env.agents.Update(ctx, routerRef, agentRef, agent.UpdateRequest{
		Capabilities: map[string]any{"language": "fr", "tier": 2},
	})
	if err != nil {
		t.Fatal(err)
	}

	queues, err := env.agents.Queues(ctx, routerRef, agentRef)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(queues, []string{frQueue}) {
		t.Errorf("bound queues = %v, want moved from %s to %s", queues, enQueue, frQueue)
	}
}

func TestAgentNilCapabilitiesKeepCurrentSet(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	routerRef := env.createRouter(t)
	queueRef := env.createQueue(t, routerRef, "language==en")
	agentRef := env.createAgent(t, routerRef, map[string]any{"language": "en"})

	_, err := env.agents.Update(ctx, routerRef, agentRef, agent.UpdateRequest{State: agent.StateReady})
	if err != nil {
		t.Fatal(err)
	}

	queues, err := env.agents.Queues(ctx, routerRef, agentRef)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(queues, []string{queueRef}) {
		t.Errorf("bound queues = %v, want unchanged", queues)
	}
}

func TestAgentBecameReadyTakesWaitingTask(t *testing.T) {
	env := newTestEnv(t)
	routerRef := env.createRouter(t)
	queueRef := env.createQueue(t, routerRef, "language==en")
	created := env.createQueuedTask(t, routerRef, queueRef)

	agentRef := env.createAgent(t, routerRef, map[string]any{"language": "en"})
	env.setAgentReady(t, routerRef, agentRef)

	got := env.getTask(t, routerRef, created.Ref)
	if got.State != task.StateAssigned || got.AgentRef != agentRef {
		t.Errorf("task = %s/%s, want assigned to %s", got.State, got.AgentRef, agentRef)
	}
	if a := env.getAgent(t, routerRef, agentRef); a.State != agent.StateBusy {
		t.Errorf("agent state = %s, want busy", a.State)
	}
}

func TestAgentOfflineReceivesNoTasks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	routerRef := env.createRouter(t)
	queueRef := env.createQueue(t, routerRef, "language==en")
	agentRef := env.createAgent(t, routerRef, map[string]any{"language": "en"})
	env.setAgentReady(t, routerRef, agentRef)

	if _, err := env.agents.Update(ctx, routerRef, agentRef, agent.UpdateRequest{State: agent.StateOffline}); err != nil {
		t.Fatal(err)
	}

	created := env.createQueuedTask(t, routerRef, queueRef)
	if got := env.getTask(t, routerRef, created.Ref); got.State != task.StateWaiting {
		t.Errorf("task state = %s, want waiting while bound agent is offline", got.State)
	}
}

func TestAgentEvaluationFailureAbortsCreate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	routerRef := env.createRouter(t)
	// Valid predicate, but ordering against a multi-valued selector fails at
	// evaluation time.
	env.createQueue(t, routerRef, "tier=gt=1")

	created, err := env.agents.Create(ctx, routerRef, agent.CreateRequest{
		Capabilities: map[string]any{"tier": []any{1, 2}},
	})
	if err == nil {
		t.Fatal("Create succeeded, want evaluation error")
	}
	if created != nil {
		t.Errorf("created = %+v, want nil", created)
	}

	// The transaction rolled back; no half-created agent remains.
	agents, listErr := env.agents.List(ctx, routerRef)
	if listErr != nil {
		t.Fatal(listErr)
	}
	if len(agents) != 0 {
		t.Errorf("agents after failed create = %d, want 0", len(agents))
	}
}

func TestAgentStateChangePublishesEvent(t *testing.T) {
	env := newTestEnv(t)
	routerRef := env.createRouter(t)
	agentRef := env.createAgent(t, routerRef, nil)
	env.setAgentReady(t, routerRef, agentRef)

	for _, eventType := range env.hub.recorded() {
		if eventType == messagequeue.SubjectAgentState {
			return
		}
	}
	t.Errorf("no %s event broadcast, got %v", messagequeue.SubjectAgentState, env.hub.recorded())
}

func TestAgentSameRefAcrossRouters(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	routerA := env.createRouter(t)
	routerB := env.createRouter(t)

	if _, err := env.agents.Replace(ctx, routerA, "alice", agent.CreateRequest{Address: "sip:alice@a"}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.agents.Replace(ctx, routerB, "alice", agent.CreateRequest{Address: "sip:alice@b"}); err != nil {
		t.Fatal(err)
	}

	aa, err := env.agents.Get(ctx, routerA, "alice")
	if err != nil {
		t.Fatal(err)
	}
	ab, err := env.agents.Get(ctx, routerB, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if aa.Address != "sip:alice@a" || ab.Address != "sip:alice@b" {
		t.Errorf("addresses = %q, %q; same local ref must stay independent per router", aa.Address, ab.Address)
	}

	// Deleting one router's agent must not touch the other's.
	if err := env.agents.Delete(ctx, routerA, "alice"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.agents.Get(ctx, routerB, "alice"); err != nil {
		t.Errorf("router B agent gone after deleting router A's: %v", err)
	}
}

func TestAgentUpdateSucceedsWhenDispatchFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	routerRef := env.createRouter(t)
	env.createQueue(t, routerRef, "language==en")
	agentRef := env.createAgent(t, routerRef, map[string]any{"language": "en"})

	// The state change commits before dispatch runs; a dispatch failure must
	// not surface as the update's error.
	env.store.listAgentBindingsErr = errors.New("bindings unavailable")
	a, err := env.agents.Update(ctx, routerRef, agentRef, agent.UpdateRequest{State: agent.StateReady})
	if err != nil {
		t.Fatalf("Update = %v, want nil despite dispatch failure", err)
	}
	if a.State != agent.StateReady {
		t.Errorf("returned state = %s, want ready", a.State)
	}

	env.store.listAgentBindingsErr = nil
	if got := env.getAgent(t, routerRef, agentRef); got.State != agent.StateReady {
		t.Errorf("stored state = %s, want ready", got.State)
	}
}

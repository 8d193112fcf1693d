package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/routegrid/routegrid/internal/domain"
	"github.com/routegrid/routegrid/internal/domain/agent"
	"github.com/routegrid/routegrid/internal/domain/plan"
	"github.com/routegrid/routegrid/internal/domain/queue"
	"github.com/routegrid/routegrid/internal/domain/router"
	"github.com/routegrid/routegrid/internal/domain/task"
	"github.com/routegrid/routegrid/internal/eval"
	"github.com/routegrid/routegrid/internal/port/database"
	"github.com/routegrid/routegrid/internal/port/messagequeue"
)

// mockStore is an in-memory database.Store for the service tests. Slices keep
// entities in creation order, matching the ordering guarantees of the SQL
// store. InRouterTx emulates rollback by snapshotting all state before the
// callback and restoring it on error.
type mockStore struct {
	mu   sync.Mutex
	txMu sync.Mutex

	routers  []router.Router
	queues   []queue.Queue
	agents   []agent.Agent
	plans    []plan.Plan
	tasks    []task.Task
	bindings []queue.Binding

	// listAgentBindingsErr, when set, makes ListAgentBindings fail. Used to
	// drive dispatch failures without touching entity state.
	listAgentBindingsErr error
}

var _ database.Store = (*mockStore)(nil)

func newMockStore() *mockStore { return &mockStore{} }

type storeSnapshot struct {
	routers  []router.Router
	queues   []queue.Queue
	agents   []agent.Agent
	plans    []plan.Plan
	tasks    []task.Task
	bindings []queue.Binding
}

func (s *mockStore) snapshot() storeSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return storeSnapshot{
		routers:  append([]router.Router(nil), s.routers...),
		queues:   append([]queue.Queue(nil), s.queues...),
		agents:   append([]agent.Agent(nil), s.agents...),
		plans:    append([]plan.Plan(nil), s.plans...),
		tasks:    append([]task.Task(nil), s.tasks...),
		bindings: append([]queue.Binding(nil), s.bindings...),
	}
}

func (s *mockStore) restore(snap storeSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routers = snap.routers
	s.queues = snap.queues
	s.agents = snap.agents
	s.plans = snap.plans
	s.tasks = snap.tasks
	s.bindings = snap.bindings
}

func (s *mockStore) InRouterTx(ctx context.Context, routerRef string, fn func(ctx context.Context, tx database.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	if err := fn(ctx, s); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// --- Routers ---

func (s *mockStore) CreateRouter(ctx context.Context, r router.Router) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.routerIndex(r.Ref) >= 0 {
		return fmt.Errorf("unique constraint: router %s", r.Ref)
	}
	s.routers = append(s.routers, r)
	return nil
}

func (s *mockStore) GetRouter(ctx context.Context, ref string) (*router.Router, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.routerIndex(ref)
	if i < 0 {
		return nil, fmt.Errorf("%w: router %s", domain.ErrNotFound, ref)
	}
	r := s.routers[i]
	return &r, nil
}

func (s *mockStore) ListRouters(ctx context.Context) ([]router.Router, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]router.Router(nil), s.routers...), nil
}

func (s *mockStore) UpdateRouter(ctx context.Context, r router.Router) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.routerIndex(r.Ref)
	if i < 0 {
		return fmt.Errorf("%w: router %s", domain.ErrNotFound, r.Ref)
	}
	s.routers[i] = r
	return nil
}

func (s *mockStore) RouterHasDependents(ctx context.Context, ref string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range s.queues {
		if q.RouterRef == ref {
			return true, nil
		}
	}
	for _, a := range s.agents {
		if a.RouterRef == ref {
			return true, nil
		}
	}
	for _, p := range s.plans {
		if p.RouterRef == ref {
			return true, nil
		}
	}
	for _, t := range s.tasks {
		if t.RouterRef == ref {
			return true, nil
		}
	}
	return false, nil
}

func (s *mockStore) DeleteRouter(ctx context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.routerIndex(ref)
	if i < 0 {
		return fmt.Errorf("%w: router %s", domain.ErrNotFound, ref)
	}
	s.routers = append(s.routers[:i], s.routers[i+1:]...)
	return nil
}

func (s *mockStore) routerIndex(ref string) int {
	for i := range s.routers {
		if s.routers[i].Ref == ref {
			return i
		}
	}
	return -1
}

// --- Queues ---

func (s *mockStore) CreateQueue(ctx context.Context, q queue.Queue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queueIndex(q.RouterRef, q.Ref) >= 0 {
		return fmt.Errorf("unique constraint: queue %s/%s", q.RouterRef, q.Ref)
	}
	s.queues = append(s.queues, q)
	return nil
}

func (s *mockStore) GetQueue(ctx context.Context, routerRef, ref string) (*queue.Queue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.queueIndex(routerRef, ref)
	if i < 0 {
		return nil, fmt.Errorf("%w: queue %s/%s", domain.ErrNotFound, routerRef, ref)
	}
	q := s.queues[i]
	return &q, nil
}

func (s *mockStore) ListQueues(ctx context.Context, routerRef string) ([]queue.Queue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []queue.Queue
	for _, q := range s.queues {
		if q.RouterRef == routerRef {
			out = append(out, q)
		}
	}
	return out, nil
}

func (s *mockStore) UpdateQueue(ctx context.Context, q queue.Queue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.queueIndex(q.RouterRef, q.Ref)
	if i < 0 {
		return fmt.Errorf("%w: queue %s/%s", domain.ErrNotFound, q.RouterRef, q.Ref)
	}
	s.queues[i] = q
	return nil
}

func (s *mockStore) DeleteQueue(ctx context.Context, routerRef, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.queueIndex(routerRef, ref)
	if i < 0 {
		return fmt.Errorf("%w: queue %s/%s", domain.ErrNotFound, routerRef, ref)
	}
	s.queues = append(s.queues[:i], s.queues[i+1:]...)
	s.bindings = filterBindings(s.bindings, func(b queue.Binding) bool {
		return !(b.RouterRef == routerRef && b.QueueRef == ref)
	})
	return nil
}

func (s *mockStore) CountWaitingTasks(ctx context.Context, routerRef, queueRef string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tasks {
		if t.RouterRef == routerRef && t.QueueRef == queueRef && t.State == task.StateWaiting {
			n++
		}
	}
	return n, nil
}

func (s *mockStore) queueIndex(routerRef, ref string) int {
	for i := range s.queues {
		if s.queues[i].RouterRef == routerRef && s.queues[i].Ref == ref {
			return i
		}
	}
	return -1
}

// --- Bindings ---

func (s *mockStore) AddBinding(ctx context.Context, b queue.Binding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.bindings {
		if existing == b {
			return nil
		}
	}
	s.bindings = append(s.bindings, b)
	return nil
}

func (s *mockStore) RemoveBinding(ctx context.Context, b queue.Binding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bindings = filterBindings(s.bindings, func(existing queue.Binding) bool {
		return existing != b
	})
	return nil
}

func (s *mockStore) HasBinding(ctx context.Context, b queue.Binding) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.bindings {
		if existing == b {
			return true, nil
		}
	}
	return false, nil
}

func (s *mockStore) ListAgentBindings(ctx context.Context, routerRef, agentRef string) ([]queue.Binding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listAgentBindingsErr != nil {
		return nil, s.listAgentBindingsErr
	}
	var out []queue.Binding
	for _, q := range s.queues { // queue creation order
		if q.RouterRef != routerRef {
			continue
		}
		b := queue.Binding{RouterRef: routerRef, AgentRef: agentRef, QueueRef: q.Ref}
		for _, existing := range s.bindings {
			if existing == b {
				out = append(out, b)
				break
			}
		}
	}
	return out, nil
}

func (s *mockStore) ListQueueBindings(ctx context.Context, routerRef, queueRef string) ([]queue.Binding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []queue.Binding
	for _, a := range s.agents { // agent creation order
		if a.RouterRef != routerRef {
			continue
		}
		b := queue.Binding{RouterRef: routerRef, AgentRef: a.Ref, QueueRef: queueRef}
		for _, existing := range s.bindings {
			if existing == b {
				out = append(out, b)
				break
			}
		}
	}
	return out, nil
}

func filterBindings(bindings []queue.Binding, keep func(queue.Binding) bool) []queue.Binding {
	out := bindings[:0]
	for _, b := range bindings {
		if keep(b) {
			out = append(out, b)
		}
	}
	return out
}

// --- Agents ---

func (s *mockStore) CreateAgent(ctx context.Context, a agent.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.agentIndex(a.RouterRef, a.Ref) >= 0 {
		return fmt.Errorf("unique constraint: agent %s/%s", a.RouterRef, a.Ref)
	}
	s.agents = append(s.agents, a)
	return nil
}

func (s *mockStore) GetAgent(ctx context.Context, routerRef, ref string) (*agent.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.agentIndex(routerRef, ref)
	if i < 0 {
		return nil, fmt.Errorf("%w: agent %s/%s", domain.ErrNotFound, routerRef, ref)
	}
	a := s.agents[i]
	return &a, nil
}

func (s *mockStore) ListAgents(ctx context.Context, routerRef string) ([]agent.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []agent.Agent
	for _, a := range s.agents {
		if a.RouterRef == routerRef {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *mockStore) UpdateAgent(ctx context.Context, a agent.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.agentIndex(a.RouterRef, a.Ref)
	if i < 0 {
		return fmt.Errorf("%w: agent %s/%s", domain.ErrNotFound, a.RouterRef, a.Ref)
	}
	s.agents[i] = a
	return nil
}

func (s *mockStore) DeleteAgent(ctx context.Context, routerRef, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.agentIndex(routerRef, ref)
	if i < 0 {
		return fmt.Errorf("%w: agent %s/%s", domain.ErrNotFound, routerRef, ref)
	}
	s.agents = append(s.agents[:i], s.agents[i+1:]...)
	s.bindings = filterBindings(s.bindings, func(b queue.Binding) bool {
		return !(b.RouterRef == routerRef && b.AgentRef == ref)
	})
	return nil
}

func (s *mockStore) ReadyAgentForQueue(ctx context.Context, routerRef, queueRef string) (*agent.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.agents { // agent creation order
		a := s.agents[i]
		if a.RouterRef != routerRef || a.State != agent.StateReady {
			continue
		}
		b := queue.Binding{RouterRef: routerRef, AgentRef: a.Ref, QueueRef: queueRef}
		for _, existing := range s.bindings {
			if existing == b {
				return &a, nil
			}
		}
	}
	return nil, nil
}

func (s *mockStore) agentIndex(routerRef, ref string) int {
	for i := range s.agents {
		if s.agents[i].RouterRef == routerRef && s.agents[i].Ref == ref {
			return i
		}
	}
	return -1
}

// --- Plans ---

func (s *mockStore) CreatePlan(ctx context.Context, p plan.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.planIndex(p.RouterRef, p.Ref) >= 0 {
		return fmt.Errorf("unique constraint: plan %s/%s", p.RouterRef, p.Ref)
	}
	s.plans = append(s.plans, p)
	return nil
}

func (s *mockStore) GetPlan(ctx context.Context, routerRef, ref string) (*plan.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.planIndex(routerRef, ref)
	if i < 0 {
		return nil, fmt.Errorf("%w: plan %s/%s", domain.ErrNotFound, routerRef, ref)
	}
	p := s.plans[i]
	return &p, nil
}

func (s *mockStore) ListPlans(ctx context.Context, routerRef string) ([]plan.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []plan.Plan
	for _, p := range s.plans {
		if p.RouterRef == routerRef {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *mockStore) UpdatePlan(ctx context.Context, p plan.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.planIndex(p.RouterRef, p.Ref)
	if i < 0 {
		return fmt.Errorf("%w: plan %s/%s", domain.ErrNotFound, p.RouterRef, p.Ref)
	}
	s.plans[i] = p
	return nil
}

func (s *mockStore) DeletePlan(ctx context.Context, routerRef, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.planIndex(routerRef, ref)
	if i < 0 {
		return fmt.Errorf("%w: plan %s/%s", domain.ErrNotFound, routerRef, ref)
	}
	s.plans = append(s.plans[:i], s.plans[i+1:]...)
	return nil
}

func (s *mockStore) planIndex(routerRef, ref string) int {
	for i := range s.plans {
		if s.plans[i].RouterRef == routerRef && s.plans[i].Ref == ref {
			return i
		}
	}
	return -1
}

// --- Tasks ---

func (s *mockStore) CreateTask(ctx context.Context, t task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.taskIndex(t.RouterRef, t.Ref) >= 0 {
		return fmt.Errorf("unique constraint: task %s/%s", t.RouterRef, t.Ref)
	}
	s.tasks = append(s.tasks, t)
	return nil
}

func (s *mockStore) GetTask(ctx context.Context, routerRef, ref string) (*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.taskIndex(routerRef, ref)
	if i < 0 {
		return nil, fmt.Errorf("%w: task %s/%s", domain.ErrNotFound, routerRef, ref)
	}
	t := s.tasks[i]
	return &t, nil
}

func (s *mockStore) ListTasks(ctx context.Context, routerRef string) ([]task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []task.Task
	for _, t := range s.tasks {
		if t.RouterRef == routerRef {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *mockStore) UpdateTask(ctx context.Context, t task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.taskIndex(t.RouterRef, t.Ref)
	if i < 0 {
		return fmt.Errorf("%w: task %s/%s", domain.ErrNotFound, t.RouterRef, t.Ref)
	}
	s.tasks[i] = t
	return nil
}

func (s *mockStore) DeleteTask(ctx context.Context, routerRef, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.taskIndex(routerRef, ref)
	if i < 0 {
		return fmt.Errorf("%w: task %s/%s", domain.ErrNotFound, routerRef, ref)
	}
	s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
	return nil
}

func (s *mockStore) OldestWaitingTask(ctx context.Context, routerRef, queueRef string) (*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.tasks { // task creation order
		t := s.tasks[i]
		if t.RouterRef == routerRef && t.QueueRef == queueRef && t.State == task.StateWaiting {
			return &t, nil
		}
	}
	return nil, nil
}

func (s *mockStore) taskIndex(routerRef, ref string) int {
	for i := range s.tasks {
		if s.tasks[i].RouterRef == routerRef && s.tasks[i].Ref == ref {
			return i
		}
	}
	return -1
}

// recordingHub captures broadcast events so tests can assert on the fan-out.
type recordedEvent struct {
	eventType string
	payload   any
}

type recordingHub struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (h *recordingHub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, recordedEvent{eventType: eventType, payload: payload})
}

func (h *recordingHub) recorded() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	types := make([]string, 0, len(h.events))
	for _, e := range h.events {
		types = append(types, e.eventType)
	}
	return types
}

// taskPayload returns the payload of the first recorded event of the given
// type.
func (h *recordingHub) taskPayload(t *testing.T, eventType string) messagequeue.TaskEventPayload {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, e := range h.events {
		if e.eventType != eventType {
			continue
		}
		payload, ok := e.payload.(messagequeue.TaskEventPayload)
		if !ok {
			t.Fatalf("event %s carries %T, want TaskEventPayload", eventType, e.payload)
		}
		return payload
	}
	t.Fatalf("no %s event recorded", eventType)
	return messagequeue.TaskEventPayload{}
}

// testEnv wires all services over a mockStore with a no-op event fan-out and
// no timers or metrics.
type testEnv struct {
	store      *mockStore
	hub        *recordingHub
	routers    *RouterService
	queues     *QueueService
	agents     *AgentService
	plans      *PlanService
	tasks      *TaskService
	dispatcher *Dispatcher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := newMockStore()
	hub := &recordingHub{}
	evaluator := eval.New(nil)
	events := NewEvents(nil, hub)
	dispatcher := NewDispatcher(store, events, nil, nil)
	plans := NewPlanService(store, evaluator)
	return &testEnv{
		store:      store,
		hub:        hub,
		routers:    NewRouterService(store),
		queues:     NewQueueService(store, evaluator),
		agents:     NewAgentService(store, evaluator, dispatcher, events),
		plans:      plans,
		tasks:      NewTaskService(store, plans, dispatcher, events, nil, nil),
		dispatcher: dispatcher,
	}
}

func (e *testEnv) createRouter(t *testing.T) string {
	t.Helper()
	r, err := e.routers.Create(context.Background(), router.CreateRequest{Name: "test"})
	if err != nil {
		t.Fatalf("create router: %v", err)
	}
	return r.Ref
}

func (e *testEnv) createQueue(t *testing.T, routerRef, predicate string) string {
	t.Helper()
	q, err := e.queues.Create(context.Background(), routerRef, queue.CreateRequest{Predicate: predicate})
	if err != nil {
		t.Fatalf("create queue: %v", err)
	}
	return q.Ref
}

func (e *testEnv) createAgent(t *testing.T, routerRef string, capabilities map[string]any) string {
	t.Helper()
	a, err := e.agents.Create(context.Background(), routerRef, agent.CreateRequest{Capabilities: capabilities})
	if err != nil {
		t.Fatalf("create agent: %v", err)
	}
	return a.Ref
}

func (e *testEnv) setAgentReady(t *testing.T, routerRef, ref string) {
	t.Helper()
	if _, err := e.agents.Update(context.Background(), routerRef, ref, agent.UpdateRequest{State: agent.StateReady}); err != nil {
		t.Fatalf("set agent ready: %v", err)
	}
}

func (e *testEnv) createQueuedTask(t *testing.T, routerRef, queueRef string) *task.Task {
	t.Helper()
	created, err := e.tasks.Create(context.Background(), routerRef, task.CreateRequest{QueueRef: queueRef})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return created
}

func (e *testEnv) getAgent(t *testing.T, routerRef, ref string) *agent.Agent {
	t.Helper()
	a, err := e.store.GetAgent(context.Background(), routerRef, ref)
	if err != nil {
		t.Fatalf("get agent: %v", err)
	}
	return a
}

func (e *testEnv) getTask(t *testing.T, routerRef, ref string) *task.Task {
	t.Helper()
	tk, err := e.store.GetTask(context.Background(), routerRef, ref)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	return tk
}

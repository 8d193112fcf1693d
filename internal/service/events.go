package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/routegrid/routegrid/internal/domain/agent"
	"github.com/routegrid/routegrid/internal/domain/task"
	"github.com/routegrid/routegrid/internal/port/messagequeue"
)

// Broadcaster pushes events to connected live consumers (WebSocket consoles).
// The ws adapter satisfies this interface.
type Broadcaster interface {
	BroadcastEvent(ctx context.Context, eventType string, payload any)
}

// Events fans task and agent lifecycle notifications out to the message queue
// and the live hub. Both sinks are optional; publish failures are logged, not
// propagated, because the entity mutation has already committed.
type Events struct {
	queue messagequeue.Queue
	hub   Broadcaster
}

// NewEvents creates an event fan-out. Either sink may be nil.
func NewEvents(queue messagequeue.Queue, hub Broadcaster) *Events {
	return &Events{queue: queue, hub: hub}
}

func (e *Events) taskEvent(ctx context.Context, subject string, t *task.Task) {
	if e == nil {
		return
	}
	payload := messagequeue.TaskEventPayload{
		RouterRef: t.RouterRef,
		TaskRef:   t.Ref,
		QueueRef:  t.QueueRef,
		AgentRef:  t.AgentRef,
		State:     string(t.State),
		Callback:  t.Callback,
	}
	e.publish(ctx, subject, payload)
	if e.hub != nil {
		e.hub.BroadcastEvent(ctx, subject, payload)
	}
}

func (e *Events) agentState(ctx context.Context, a *agent.Agent) {
	if e == nil {
		return
	}
	payload := messagequeue.AgentStatePayload{
		RouterRef: a.RouterRef,
		AgentRef:  a.Ref,
		State:     string(a.State),
	}
	e.publish(ctx, messagequeue.SubjectAgentState, payload)
	if e.hub != nil {
		e.hub.BroadcastEvent(ctx, messagequeue.SubjectAgentState, payload)
	}
}

func (e *Events) publish(ctx context.Context, subject string, payload any) {
	if e.queue == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal event payload", "subject", subject, "error", err)
		return
	}
	if err := e.queue.Publish(ctx, subject, data); err != nil {
		slog.Error("publish event", "subject", subject, "error", err)
	}
}

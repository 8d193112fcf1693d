package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/routegrid/routegrid/internal/port/messagequeue"
)

// CallbackNotifier consumes terminal task events from the message queue and
// POSTs them to the task's caller-supplied callback address. Running the
// delivery off the queue instead of in the request path means a slow or
// down callback endpoint never stalls task completion, and failed
// deliveries are retried through redelivery.
type CallbackNotifier struct {
	queue   messagequeue.Queue
	client  *http.Client
	cancels []func()
}

// NewCallbackNotifier creates a notifier over the given queue.
func NewCallbackNotifier(queue messagequeue.Queue) *CallbackNotifier {
	return &CallbackNotifier{
		queue:  queue,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Start subscribes to the terminal task subjects. On a subscription error
// any subscriptions already made are canceled.
func (n *CallbackNotifier) Start(ctx context.Context) error {
	subjects := []string{
		messagequeue.SubjectTaskCompleted,
		messagequeue.SubjectTaskFailed,
		messagequeue.SubjectTaskCanceled,
	}
	for _, subject := range subjects {
		cancel, err := n.queue.Subscribe(ctx, subject, n.handle)
		if err != nil {
			n.Stop()
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		n.cancels = append(n.cancels, cancel)
	}
	return nil
}

// Stop cancels all subscriptions.
func (n *CallbackNotifier) Stop() {
	for _, cancel := range n.cancels {
		cancel()
	}
	n.cancels = nil
}

// handle validates the event payload and delivers it to the callback
// address. Malformed payloads are dropped (acked) so they are not
// redelivered forever; delivery failures return an error so the queue
// redelivers.
func (n *CallbackNotifier) handle(ctx context.Context, subject string, data []byte) error {
	if err := messagequeue.Validate(subject, data); err != nil {
		slog.Error("dropping malformed task event", "subject", subject, "error", err)
		return nil
	}

	var payload messagequeue.TaskEventPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		slog.Error("dropping undecodable task event", "subject", subject, "error", err)
		return nil
	}
	if payload.Callback == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, payload.Callback, bytes.NewReader(data))
	if err != nil {
		slog.Error("dropping task event with bad callback address",
			"subject", subject, "callback", payload.Callback, "error", err)
		return nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("callback delivery to %s: %w", payload.Callback, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("callback %s answered %s", payload.Callback, resp.Status)
	}

	slog.Info("callback delivered",
		"subject", subject, "router", payload.RouterRef, "task", payload.TaskRef,
		"callback", payload.Callback)
	return nil
}

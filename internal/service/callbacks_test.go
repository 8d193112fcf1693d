package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/routegrid/routegrid/internal/port/messagequeue"
)

// fakeQueue records subscriptions and lets tests push messages straight to
// the registered handlers.
type fakeQueue struct {
	mu       sync.Mutex
	handlers map[string]messagequeue.Handler
	canceled []string
}

var _ messagequeue.Queue = (*fakeQueue)(nil)

func newFakeQueue() *fakeQueue {
	return &fakeQueue{handlers: make(map[string]messagequeue.Handler)}
}

func (q *fakeQueue) Publish(ctx context.Context, subject string, data []byte) error {
	return nil
}

func (q *fakeQueue) Subscribe(ctx context.Context, subject string, handler messagequeue.Handler) (func(), error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[subject] = handler
	return func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		q.canceled = append(q.canceled, subject)
	}, nil
}

func (q *fakeQueue) Drain() error { return nil }

func (q *fakeQueue) Close() error { return nil }

func (q *fakeQueue) IsConnected() bool { return true }

func (q *fakeQueue) deliver(t *testing.T, subject string, data []byte) error {
	t.Helper()
	q.mu.Lock()
	handler, ok := q.handlers[subject]
	q.mu.Unlock()
	if !ok {
		t.Fatalf("no handler subscribed on %s", subject)
	}
	return handler(context.Background(), subject, data)
}

func (q *fakeQueue) subscribedSubjects() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	subjects := make([]string, 0, len(q.handlers))
	for s := range q.handlers {
		subjects = append(subjects, s)
	}
	return subjects
}

func taskEventJSON(t *testing.T, payload messagequeue.TaskEventPayload) []byte {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestCallbackNotifierSubscribesTerminalSubjects(t *testing.T) {
	queue := newFakeQueue()
	notifier := NewCallbackNotifier(queue)
	if err := notifier.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer notifier.Stop()

	want := map[string]bool{
		messagequeue.SubjectTaskCompleted: true,
		messagequeue.SubjectTaskFailed:    true,
		messagequeue.SubjectTaskCanceled:  true,
	}
	got := queue.subscribedSubjects()
	if len(got) != len(want) {
		t.Fatalf("subscribed to %v, want %d terminal subjects", got, len(want))
	}
	for _, s := range got {
		if !want[s] {
			t.Errorf("unexpected subscription on %s", s)
		}
	}
}

func TestCallbackNotifierDeliversToCallbackAddress(t *testing.T) {
	type received struct {
		contentType string
		payload     messagequeue.TaskEventPayload
	}
	got := make(chan received, 1)
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload messagequeue.TaskEventPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode callback body: %v", err)
		}
		got <- received{contentType: r.Header.Get("Content-Type"), payload: payload}
	}))
	defer target.Close()

	queue := newFakeQueue()
	notifier := NewCallbackNotifier(queue)
	if err := notifier.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer notifier.Stop()

	data := taskEventJSON(t, messagequeue.TaskEventPayload{
		RouterRef: "r1",
		TaskRef:   "t1",
		State:     "completed",
		Callback:  target.URL,
	})
	if err := queue.deliver(t, messagequeue.SubjectTaskCompleted, data); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	select {
	case r := <-got:
		if r.contentType != "application/json" {
			t.Errorf("content type = %q", r.contentType)
		}
		if r.payload.TaskRef != "t1" || r.payload.State != "completed" {
			t.Errorf("callback payload = %+v", r.payload)
		}
	default:
		t.Fatal("callback endpoint never called")
	}
}

func TestCallbackNotifierSkipsTasksWithoutCallback(t *testing.T) {
	calls := make(chan struct{}, 1)
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls <- struct{}{}
	}))
	defer target.Close()

	queue := newFakeQueue()
	notifier := NewCallbackNotifier(queue)
	if err := notifier.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer notifier.Stop()

	data := taskEventJSON(t, messagequeue.TaskEventPayload{
		RouterRef: "r1",
		TaskRef:   "t1",
		State:     "failed",
	})
	if err := queue.deliver(t, messagequeue.SubjectTaskFailed, data); err != nil {
		t.Fatalf("deliver without callback = %v, want nil", err)
	}
	select {
	case <-calls:
		t.Error("callback endpoint called for a task without a callback address")
	default:
	}
}

func TestCallbackNotifierDropsMalformedPayload(t *testing.T) {
	queue := newFakeQueue()
	notifier := NewCallbackNotifier(queue)
	if err := notifier.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer notifier.Stop()

	// Malformed events must be acked (nil), not redelivered forever.
	if err := queue.deliver(t, messagequeue.SubjectTaskCompleted, []byte(`{broken`)); err != nil {
		t.Errorf("deliver malformed = %v, want nil", err)
	}
	if err := queue.deliver(t, messagequeue.SubjectTaskCompleted, []byte(`{"state":7}`)); err != nil {
		t.Errorf("deliver schema-violating = %v, want nil", err)
	}
}

func TestCallbackNotifierReturnsErrorOnDeliveryFailure(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer target.Close()

	queue := newFakeQueue()
	notifier := NewCallbackNotifier(queue)
	if err := notifier.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer notifier.Stop()

	data := taskEventJSON(t, messagequeue.TaskEventPayload{
		RouterRef: "r1",
		TaskRef:   "t1",
		State:     "completed",
		Callback:  target.URL,
	})
	if err := queue.deliver(t, messagequeue.SubjectTaskCompleted, data); err == nil {
		t.Error("deliver to failing endpoint = nil, want error for redelivery")
	}
}

func TestCallbackNotifierStopCancelsSubscriptions(t *testing.T) {
	queue := newFakeQueue()
	notifier := NewCallbackNotifier(queue)
	if err := notifier.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	notifier.Stop()

	queue.mu.Lock()
	canceled := len(queue.canceled)
	queue.mu.Unlock()
	if canceled != 3 {
		t.Errorf("canceled %d subscriptions, want 3", canceled)
	}
}

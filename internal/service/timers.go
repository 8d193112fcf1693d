package service

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// AdvanceFunc is the route-advance entry point the timers call into. It must
// itself verify, under the router lock, that the task is still waiting on the
// given route index.
type AdvanceFunc func(ctx context.Context, routerRef, taskRef string, routeIndex int) error

// RouteTimers is the scheduled-timer collaborator driving route timeout
// advancement. Its contract: call advance for a task no earlier than the
// route timeout after the task entered the route, at most once per
// route-entry, and skip the call once the task left that route.
type RouteTimers struct {
	mu      sync.Mutex
	timers  map[string]*time.Timer
	advance AdvanceFunc
	stopped bool
}

// NewRouteTimers creates an empty timer set.
func NewRouteTimers() *RouteTimers {
	return &RouteTimers{timers: make(map[string]*time.Timer)}
}

// Bind installs the advance callback. Must be called before Schedule.
func (rt *RouteTimers) Bind(advance AdvanceFunc) {
	if rt == nil {
		return
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.advance = advance
}

func timerKey(routerRef, taskRef string) string {
	return routerRef + "/" + taskRef
}

// Schedule arms a one-shot timer for the task's current route. Any previously
// armed timer for the same task is replaced.
func (rt *RouteTimers) Schedule(routerRef, taskRef string, routeIndex int, timeout time.Duration) {
	if rt == nil {
		return
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.stopped || rt.advance == nil {
		return
	}

	key := timerKey(routerRef, taskRef)
	if old, ok := rt.timers[key]; ok {
		old.Stop()
	}
	rt.timers[key] = time.AfterFunc(timeout, func() {
		rt.mu.Lock()
		delete(rt.timers, key)
		stopped := rt.stopped
		rt.mu.Unlock()
		if stopped {
			return
		}
		if err := rt.advance(context.Background(), routerRef, taskRef, routeIndex); err != nil {
			slog.Error("route timeout advance failed",
				"router", routerRef, "task", taskRef, "route_index", routeIndex, "error", err)
		}
	})
}

// Cancel disarms any pending timer for the task.
func (rt *RouteTimers) Cancel(routerRef, taskRef string) {
	if rt == nil {
		return
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	key := timerKey(routerRef, taskRef)
	if t, ok := rt.timers[key]; ok {
		t.Stop()
		delete(rt.timers, key)
	}
}

// Stop disarms all timers and rejects further scheduling. Used at shutdown.
func (rt *RouteTimers) Stop() {
	if rt == nil {
		return
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.stopped = true
	for key, t := range rt.timers {
		t.Stop()
		delete(rt.timers, key)
	}
}

package http

import (
	"net/http"

	"github.com/routegrid/routegrid/internal/port/messagequeue"
	"github.com/routegrid/routegrid/internal/service"
)

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Routers *service.RouterService
	Queues  *service.QueueService
	Agents  *service.AgentService
	Plans   *service.PlanService
	Tasks   *service.TaskService
	Queue   messagequeue.Queue
}

// Version handles GET /api/v1
func (h *Handlers) Version(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
}

// Health handles GET /api/v1/health
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	status := http.StatusOK
	natsOK := h.Queue != nil && h.Queue.IsConnected()
	if !natsOK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"nats": natsOK,
	})
}

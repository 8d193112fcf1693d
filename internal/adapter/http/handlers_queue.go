package http

import (
	"net/http"

	"github.com/routegrid/routegrid/internal/domain/queue"
)

// ListQueues handles GET /api/v1/routers/{routerRef}/queues
func (h *Handlers) ListQueues(w http.ResponseWriter, r *http.Request) {
	queues, err := h.Queues.List(r.Context(), urlParam(r, "routerRef"))
	if err != nil {
		writeDomainError(w, err, "router not found")
		return
	}
	if queues == nil {
		queues = []queue.Queue{}
	}
	writeJSON(w, http.StatusOK, queues)
}

// CreateQueue handles POST /api/v1/routers/{routerRef}/queues
func (h *Handlers) CreateQueue(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[queue.CreateRequest](w, r)
	if !ok {
		return
	}
	created, err := h.Queues.Create(r.Context(), urlParam(r, "routerRef"), req)
	if err != nil {
		writeDomainError(w, err, "router not found")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// GetQueue handles GET /api/v1/routers/{routerRef}/queues/{ref}
func (h *Handlers) GetQueue(w http.ResponseWriter, r *http.Request) {
	q, err := h.Queues.Get(r.Context(), urlParam(r, "routerRef"), urlParam(r, "ref"))
	if err != nil {
		writeDomainError(w, err, "queue not found")
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// ReplaceQueue handles PUT /api/v1/routers/{routerRef}/queues/{ref}
func (h *Handlers) ReplaceQueue(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[queue.CreateRequest](w, r)
	if !ok {
		return
	}
	replaced, err := h.Queues.Replace(r.Context(), urlParam(r, "routerRef"), urlParam(r, "ref"), req)
	if err != nil {
		writeDomainError(w, err, "queue not found")
		return
	}
	writeJSON(w, http.StatusCreated, replaced)
}

// UpdateQueue handles POST /api/v1/routers/{routerRef}/queues/{ref}
func (h *Handlers) UpdateQueue(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[queue.UpdateRequest](w, r)
	if !ok {
		return
	}
	updated, err := h.Queues.Update(r.Context(), urlParam(r, "routerRef"), urlParam(r, "ref"), req)
	if err != nil {
		writeDomainError(w, err, "queue not found")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// DeleteQueue handles DELETE /api/v1/routers/{routerRef}/queues/{ref}
func (h *Handlers) DeleteQueue(w http.ResponseWriter, r *http.Request) {
	if err := h.Queues.Delete(r.Context(), urlParam(r, "routerRef"), urlParam(r, "ref")); err != nil {
		writeDomainError(w, err, "queue not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// QueueSize handles GET /api/v1/routers/{routerRef}/queues/{ref}/size
func (h *Handlers) QueueSize(w http.ResponseWriter, r *http.Request) {
	size, err := h.Queues.Size(r.Context(), urlParam(r, "routerRef"), urlParam(r, "ref"))
	if err != nil {
		writeDomainError(w, err, "queue not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"size": size})
}

// QueueAgents handles GET /api/v1/routers/{routerRef}/queues/{ref}/agents
func (h *Handlers) QueueAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.Queues.Agents(r.Context(), urlParam(r, "routerRef"), urlParam(r, "ref"))
	if err != nil {
		writeDomainError(w, err, "queue not found")
		return
	}
	if agents == nil {
		agents = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"agents": agents})
}

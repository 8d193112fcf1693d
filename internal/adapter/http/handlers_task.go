package http

import (
	"net/http"

	"github.com/routegrid/routegrid/internal/domain/task"
)

// taskResponse carries the task entity plus its requirements in wire form.
type taskResponse struct {
	task.Task
	Requirements map[string]any `json:"requirements,omitempty"`
}

func toTaskResponse(t *task.Task) taskResponse {
	return taskResponse{Task: *t, Requirements: t.Requirements.ToDTO()}
}

// ListTasks handles GET /api/v1/routers/{routerRef}/tasks
func (h *Handlers) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.Tasks.List(r.Context(), urlParam(r, "routerRef"))
	if err != nil {
		writeDomainError(w, err, "router not found")
		return
	}
	out := make([]taskResponse, 0, len(tasks))
	for i := range tasks {
		out = append(out, toTaskResponse(&tasks[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

// CreateTask handles POST /api/v1/routers/{routerRef}/tasks
func (h *Handlers) CreateTask(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[task.CreateRequest](w, r)
	if !ok {
		return
	}
	created, err := h.Tasks.Create(r.Context(), urlParam(r, "routerRef"), req)
	if err != nil {
		writeDomainError(w, err, "router not found")
		return
	}
	writeJSON(w, http.StatusCreated, toTaskResponse(created))
}

// GetTask handles GET /api/v1/routers/{routerRef}/tasks/{ref}
func (h *Handlers) GetTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.Tasks.Get(r.Context(), urlParam(r, "routerRef"), urlParam(r, "ref"))
	if err != nil {
		writeDomainError(w, err, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, toTaskResponse(t))
}

// ReplaceTask handles PUT /api/v1/routers/{routerRef}/tasks/{ref}
func (h *Handlers) ReplaceTask(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[task.CreateRequest](w, r)
	if !ok {
		return
	}
	replaced, err := h.Tasks.Replace(r.Context(), urlParam(r, "routerRef"), urlParam(r, "ref"), req)
	if err != nil {
		writeDomainError(w, err, "task not found")
		return
	}
	writeJSON(w, http.StatusCreated, toTaskResponse(replaced))
}

// UpdateTask handles POST /api/v1/routers/{routerRef}/tasks/{ref}
func (h *Handlers) UpdateTask(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[task.UpdateRequest](w, r)
	if !ok {
		return
	}
	updated, err := h.Tasks.Update(r.Context(), urlParam(r, "routerRef"), urlParam(r, "ref"), req)
	if err != nil {
		writeDomainError(w, err, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, toTaskResponse(updated))
}

// DeleteTask handles DELETE /api/v1/routers/{routerRef}/tasks/{ref}
func (h *Handlers) DeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := h.Tasks.Delete(r.Context(), urlParam(r, "routerRef"), urlParam(r, "ref")); err != nil {
		writeDomainError(w, err, "task not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

package http

import (
	"net/http"

	"github.com/routegrid/routegrid/internal/domain/router"
)

// ListRouters handles GET /api/v1/routers
func (h *Handlers) ListRouters(w http.ResponseWriter, r *http.Request) {
	routers, err := h.Routers.List(r.Context())
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if routers == nil {
		routers = []router.Router{}
	}
	writeJSON(w, http.StatusOK, routers)
}

// CreateRouter handles POST /api/v1/routers
func (h *Handlers) CreateRouter(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[router.CreateRequest](w, r)
	if !ok {
		return
	}
	created, err := h.Routers.Create(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "router not found")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// GetRouter handles GET /api/v1/routers/{routerRef}
func (h *Handlers) GetRouter(w http.ResponseWriter, r *http.Request) {
	rt, err := h.Routers.Get(r.Context(), urlParam(r, "routerRef"))
	if err != nil {
		writeDomainError(w, err, "router not found")
		return
	}
	writeJSON(w, http.StatusOK, rt)
}

// ReplaceRouter handles PUT /api/v1/routers/{routerRef}
func (h *Handlers) ReplaceRouter(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[router.CreateRequest](w, r)
	if !ok {
		return
	}
	replaced, err := h.Routers.Replace(r.Context(), urlParam(r, "routerRef"), req)
	if err != nil {
		writeDomainError(w, err, "router not found")
		return
	}
	writeJSON(w, http.StatusCreated, replaced)
}

// UpdateRouter handles POST /api/v1/routers/{routerRef}
func (h *Handlers) UpdateRouter(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[router.UpdateRequest](w, r)
	if !ok {
		return
	}
	updated, err := h.Routers.Update(r.Context(), urlParam(r, "routerRef"), req)
	if err != nil {
		writeDomainError(w, err, "router not found")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// DeleteRouter handles DELETE /api/v1/routers/{routerRef}
func (h *Handlers) DeleteRouter(w http.ResponseWriter, r *http.Request) {
	if err := h.Routers.Delete(r.Context(), urlParam(r, "routerRef")); err != nil {
		writeDomainError(w, err, "router not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

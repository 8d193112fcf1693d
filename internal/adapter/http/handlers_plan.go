package http

import (
	"net/http"

	"github.com/routegrid/routegrid/internal/domain/plan"
)

// ListPlans handles GET /api/v1/routers/{routerRef}/plans
func (h *Handlers) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.Plans.List(r.Context(), urlParam(r, "routerRef"))
	if err != nil {
		writeDomainError(w, err, "router not found")
		return
	}
	if plans == nil {
		plans = []plan.Plan{}
	}
	writeJSON(w, http.StatusOK, plans)
}

// CreatePlan handles POST /api/v1/routers/{routerRef}/plans
func (h *Handlers) CreatePlan(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[plan.CreateRequest](w, r)
	if !ok {
		return
	}
	created, err := h.Plans.Create(r.Context(), urlParam(r, "routerRef"), req)
	if err != nil {
		writeDomainError(w, err, "router not found")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// GetPlan handles GET /api/v1/routers/{routerRef}/plans/{ref}
func (h *Handlers) GetPlan(w http.ResponseWriter, r *http.Request) {
	p, err := h.Plans.Get(r.Context(), urlParam(r, "routerRef"), urlParam(r, "ref"))
	if err != nil {
		writeDomainError(w, err, "plan not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ReplacePlan handles PUT /api/v1/routers/{routerRef}/plans/{ref}
func (h *Handlers) ReplacePlan(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[plan.CreateRequest](w, r)
	if !ok {
		return
	}
	replaced, err := h.Plans.Replace(r.Context(), urlParam(r, "routerRef"), urlParam(r, "ref"), req)
	if err != nil {
		writeDomainError(w, err, "plan not found")
		return
	}
	writeJSON(w, http.StatusCreated, replaced)
}

// UpdatePlan handles POST /api/v1/routers/{routerRef}/plans/{ref}
func (h *Handlers) UpdatePlan(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[plan.UpdateRequest](w, r)
	if !ok {
		return
	}
	updated, err := h.Plans.Update(r.Context(), urlParam(r, "routerRef"), urlParam(r, "ref"), req)
	if err != nil {
		writeDomainError(w, err, "plan not found")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// DeletePlan handles DELETE /api/v1/routers/{routerRef}/plans/{ref}
func (h *Handlers) DeletePlan(w http.ResponseWriter, r *http.Request) {
	if err := h.Plans.Delete(r.Context(), urlParam(r, "routerRef"), urlParam(r, "ref")); err != nil {
		writeDomainError(w, err, "plan not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

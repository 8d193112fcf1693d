package http

import (
	"net/http"

	"github.com/routegrid/routegrid/internal/domain/agent"
)

// agentResponse carries the agent entity plus its capabilities in wire form.
type agentResponse struct {
	agent.Agent
	Capabilities map[string]any `json:"capabilities,omitempty"`
}

func toAgentResponse(a *agent.Agent) agentResponse {
	return agentResponse{Agent: *a, Capabilities: a.Capabilities.ToDTO()}
}

// ListAgents handles GET /api/v1/routers/{routerRef}/agents
func (h *Handlers) ListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.Agents.List(r.Context(), urlParam(r, "routerRef"))
	if err != nil {
		writeDomainError(w, err, "router not found")
		return
	}
	out := make([]agentResponse, 0, len(agents))
	for i := range agents {
		out = append(out, toAgentResponse(&agents[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

// CreateAgent handles POST /api/v1/routers/{routerRef}/agents
func (h *Handlers) CreateAgent(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[agent.CreateRequest](w, r)
	if !ok {
		return
	}
	created, err := h.Agents.Create(r.Context(), urlParam(r, "routerRef"), req)
	if err != nil {
		writeDomainError(w, err, "router not found")
		return
	}
	writeJSON(w, http.StatusCreated, toAgentResponse(created))
}

// GetAgent handles GET /api/v1/routers/{routerRef}/agents/{ref}
func (h *Handlers) GetAgent(w http.ResponseWriter, r *http.Request) {
	a, err := h.Agents.Get(r.Context(), urlParam(r, "routerRef"), urlParam(r, "ref"))
	if err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, toAgentResponse(a))
}

// ReplaceAgent handles PUT /api/v1/routers/{routerRef}/agents/{ref}
func (h *Handlers) ReplaceAgent(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[agent.CreateRequest](w, r)
	if !ok {
		return
	}
	replaced, err := h.Agents.Replace(r.Context(), urlParam(r, "routerRef"), urlParam(r, "ref"), req)
	if err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}
	writeJSON(w, http.StatusCreated, toAgentResponse(replaced))
}

// UpdateAgent handles POST /api/v1/routers/{routerRef}/agents/{ref}
func (h *Handlers) UpdateAgent(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[agent.UpdateRequest](w, r)
	if !ok {
		return
	}
	updated, err := h.Agents.Update(r.Context(), urlParam(r, "routerRef"), urlParam(r, "ref"), req)
	if err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, toAgentResponse(updated))
}

// DeleteAgent handles DELETE /api/v1/routers/{routerRef}/agents/{ref}
func (h *Handlers) DeleteAgent(w http.ResponseWriter, r *http.Request) {
	if err := h.Agents.Delete(r.Context(), urlParam(r, "routerRef"), urlParam(r, "ref")); err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AgentQueues handles GET /api/v1/routers/{routerRef}/agents/{ref}/queues
func (h *Handlers) AgentQueues(w http.ResponseWriter, r *http.Request) {
	queues, err := h.Agents.Queues(r.Context(), urlParam(r, "routerRef"), urlParam(r, "ref"))
	if err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}
	if queues == nil {
		queues = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"queues": queues})
}

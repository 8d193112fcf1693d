package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router. ws is the
// WebSocket upgrade endpoint, mounted at /ws when non-nil.
func MountRoutes(r chi.Router, h *Handlers, ws http.HandlerFunc) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", h.Version)
		r.Get("/health", h.Health)

		r.Route("/routers", func(r chi.Router) {
			r.Get("/", h.ListRouters)
			r.Post("/", h.CreateRouter)

			r.Route("/{routerRef}", func(r chi.Router) {
				r.Get("/", h.GetRouter)
				r.Put("/", h.ReplaceRouter)
				r.Post("/", h.UpdateRouter)
				r.Delete("/", h.DeleteRouter)

				r.Route("/queues", func(r chi.Router) {
					r.Get("/", h.ListQueues)
					r.Post("/", h.CreateQueue)
					r.Get("/{ref}", h.GetQueue)
					r.Put("/{ref}", h.ReplaceQueue)
					r.Post("/{ref}", h.UpdateQueue)
					r.Delete("/{ref}", h.DeleteQueue)
					r.Get("/{ref}/size", h.QueueSize)
					r.Get("/{ref}/agents", h.QueueAgents)
				})

				r.Route("/agents", func(r chi.Router) {
					r.Get("/", h.ListAgents)
					r.Post("/", h.CreateAgent)
					r.Get("/{ref}", h.GetAgent)
					r.Put("/{ref}", h.ReplaceAgent)
					r.Post("/{ref}", h.UpdateAgent)
					r.Delete("/{ref}", h.DeleteAgent)
					r.Get("/{ref}/queues", h.AgentQueues)
				})

				r.Route("/plans", func(r chi.Router) {
					r.Get("/", h.ListPlans)
					r.Post("/", h.CreatePlan)
					r.Get("/{ref}", h.GetPlan)
					r.Put("/{ref}", h.ReplacePlan)
					r.Post("/{ref}", h.UpdatePlan)
					r.Delete("/{ref}", h.DeletePlan)
				})

				r.Route("/tasks", func(r chi.Router) {
					r.Get("/", h.ListTasks)
					r.Post("/", h.CreateTask)
					r.Get("/{ref}", h.GetTask)
					r.Put("/{ref}", h.ReplaceTask)
					r.Post("/{ref}", h.UpdateTask)
					r.Delete("/{ref}", h.DeleteTask)
				})
			})
		})
	})

	if ws != nil {
		r.Get("/ws", ws)
	}
}

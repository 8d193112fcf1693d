package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/routegrid/routegrid/internal/domain"
	"github.com/routegrid/routegrid/internal/domain/router"
	"github.com/routegrid/routegrid/internal/port/database"
)

// RouterService manages routers, the tenant boundary for all other entities.
type RouterService struct {
	store database.Store
}

// NewRouterService creates a new RouterService.
func NewRouterService(store database.Store) *RouterService {
	return &RouterService{store: store}
}

// Create creates a router with a generated ref.
func (s *RouterService) Create(ctx context.Context, req router.CreateRequest) (*router.Router, error) {
	now := time.Now().UTC()
	r := router.Router{
		Ref:         uuid.NewString(),
		Name:        req.Name,
		Description: req.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateRouter(ctx, r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Replace creates a router under a caller-supplied ref, deleting any existing
// router with that ref first. Deletion applies the same dependent guard as
// Delete.
func (s *RouterService) Replace(ctx context.Context, ref string, req router.CreateRequest) (*router.Router, error) {
	if err := s.Delete(ctx, ref); err != nil && !isNotFound(err) {
		return nil, err
	}
	now := time.Now().UTC()
	r := router.Router{
		Ref:         ref,
		Name:        req.Name,
		Description: req.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateRouter(ctx, r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Get returns a router by ref.
func (s *RouterService) Get(ctx context.Context, ref string) (*router.Router, error) {
	return s.store.GetRouter(ctx, ref)
}

// List returns all routers.
func (s *RouterService) List(ctx context.Context) ([]router.Router, error) {
	return s.store.ListRouters(ctx)
}

// Update updates the router's mutable fields.
func (s *RouterService) Update(ctx context.Context, ref string, req router.UpdateRequest) (*router.Router, error) {
	r, err := s.store.GetRouter(ctx, ref)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		r.Name = *req.Name
	}
	if req.Description != nil {
		r.Description = *req.Description
	}
	r.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateRouter(ctx, *r); err != nil {
		return nil, err
	}
	return r, nil
}

// Delete removes a router. It fails while any queue, agent, plan or task
// still references the router.
func (s *RouterService) Delete(ctx context.Context, ref string) error {
	if _, err := s.store.GetRouter(ctx, ref); err != nil {
		return err
	}
	hasDependents, err := s.store.RouterHasDependents(ctx, ref)
	if err != nil {
		return err
	}
	if hasDependents {
		return fmt.Errorf("%w: router %s still has dependent resources", domain.ErrInvalidState, ref)
	}
	return s.store.DeleteRouter(ctx, ref)
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}

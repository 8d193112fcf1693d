package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/routegrid/routegrid/internal/domain/attribute"
	"github.com/routegrid/routegrid/internal/domain/plan"
	"github.com/routegrid/routegrid/internal/eval"
	"github.com/routegrid/routegrid/internal/port/database"
)

// PlanService manages routing plans and resolves task requirements to route
// lists.
type PlanService struct {
	store     database.Store
	evaluator *eval.Evaluator
}

// NewPlanService creates a new PlanService.
func NewPlanService(store database.Store, evaluator *eval.Evaluator) *PlanService {
	return &PlanService{store: store, evaluator: evaluator}
}

// Create creates a plan with a generated ref. Rule predicates are validated
// and every referenced queue must exist, so misconfiguration surfaces at
// creation time rather than at dispatch time.
func (s *PlanService) Create(ctx context.Context, routerRef string, req plan.CreateRequest) (*plan.Plan, error) {
	return s.create(ctx, routerRef, uuid.NewString(), req)
}

// Replace creates a plan under a caller-supplied ref, replacing any existing
// plan with that ref.
func (s *PlanService) Replace(ctx context.Context, routerRef, ref string, req plan.CreateRequest) (*plan.Plan, error) {
	if err := s.Delete(ctx, routerRef, ref); err != nil && !isNotFound(err) {
		return nil, err
	}
	return s.create(ctx, routerRef, ref, req)
}

func (s *PlanService) create(ctx context.Context, routerRef, ref string, req plan.CreateRequest) (*plan.Plan, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	for _, rule := range req.Rules {
		if err := s.evaluator.Validate(rule.Predicate); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	p := plan.Plan{
		Ref:          ref,
		RouterRef:    routerRef,
		Description:  req.Description,
		Rules:        req.Rules,
		DefaultRoute: req.DefaultRoute,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := s.store.InRouterTx(ctx, routerRef, func(ctx context.Context, tx database.Tx) error {
		if _, err := tx.GetRouter(ctx, routerRef); err != nil {
			return err
		}
		for _, queueRef := range req.QueueRefs() {
			if _, err := tx.GetQueue(ctx, routerRef, queueRef); err != nil {
				return err
			}
		}
		return tx.CreatePlan(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Get returns a plan by composite ref.
func (s *PlanService) Get(ctx context.Context, routerRef, ref string) (*plan.Plan, error) {
	return s.store.GetPlan(ctx, routerRef, ref)
}

// List returns all plans of a router.
func (s *PlanService) List(ctx context.Context, routerRef string) ([]plan.Plan, error) {
	return s.store.ListPlans(ctx, routerRef)
}

// Update updates the plan description. Rules are immutable after creation.
func (s *PlanService) Update(ctx context.Context, routerRef, ref string, req plan.UpdateRequest) (*plan.Plan, error) {
	p, err := s.store.GetPlan(ctx, routerRef, ref)
	if err != nil {
		return nil, err
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	p.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdatePlan(ctx, *p); err != nil {
		return nil, err
	}
	return p, nil
}

// Delete removes a plan.
func (s *PlanService) Delete(ctx context.Context, routerRef, ref string) error {
	if _, err := s.store.GetPlan(ctx, routerRef, ref); err != nil {
		return err
	}
	return s.store.DeletePlan(ctx, routerRef, ref)
}

// Resolve evaluates the plan's rules in declaration order against the task
// requirements and returns the route list of the first matching rule. When no
// rule matches, the default route is returned as a one-element list.
func (s *PlanService) Resolve(p *plan.Plan, requirements attribute.Group) ([]plan.Route, error) {
	for _, rule := range p.Rules {
		matched, err := s.evaluator.Evaluate(rule.Predicate, requirements)
		if err != nil {
			return nil, err
		}
		if matched {
			return rule.Routes, nil
		}
	}
	if p.DefaultRoute != nil {
		return []plan.Route{*p.DefaultRoute}, nil
	}
	return nil, nil
}

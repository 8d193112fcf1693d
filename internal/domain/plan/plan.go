// Package plan defines routing plans: ordered, predicate-guarded rules that
// resolve a task's requirements to an ordered list of candidate routes.
package plan

import (
	"fmt"
	"time"

	"github.com/routegrid/routegrid/internal/domain"
)

// Route is one step in a plan's fallback chain: try the queue, and if the
// task is still unserved after the timeout, fall through to the next route.
// A nil timeout waits forever.
type Route struct {
	QueueRef       string `json:"queue_ref"`
	TimeoutSeconds *int64 `json:"timeout_seconds,omitempty"`
}

// Rule pairs a predicate over task requirements with an ordered route list.
type Rule struct {
	Predicate string  `json:"predicate"`
	Routes    []Route `json:"routes"`
}

// Plan is an ordered rule set with a default fallback route.
type Plan struct {
	Ref          string    `json:"ref"`
	RouterRef    string    `json:"router_ref"`
	Description  string    `json:"description,omitempty"`
	Rules        []Rule    `json:"rules"`
	DefaultRoute *Route    `json:"default_route,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CreateRequest holds the fields needed to create a plan.
type CreateRequest struct {
	Description  string  `json:"description"`
	Rules        []Rule  `json:"rules"`
	DefaultRoute *Route  `json:"default_route"`
}

// UpdateRequest holds the mutable plan fields. Rules are immutable after
// creation; only the description may change.
type UpdateRequest struct {
	Description *string `json:"description"`
}

// Validate checks structural plan constraints. Predicate syntax is validated
// separately by the evaluator. A plan with no rules and no default route can
// never resolve and is rejected at creation time.
func (r CreateRequest) Validate() error {
	if len(r.Rules) == 0 && r.DefaultRoute == nil {
		return fmt.Errorf("%w: plan needs at least one rule or a default route", domain.ErrBadValue)
	}
	for i, rule := range r.Rules {
		if rule.Predicate == "" {
			return fmt.Errorf("%w: rule %d has no predicate", domain.ErrBadValue, i)
		}
		if len(rule.Routes) == 0 {
			return fmt.Errorf("%w: rule %d has no routes", domain.ErrBadValue, i)
		}
		for j, route := range rule.Routes {
			if err := validateRoute(route); err != nil {
				return fmt.Errorf("rule %d route %d: %w", i, j, err)
			}
		}
	}
	if r.DefaultRoute != nil {
		if err := validateRoute(*r.DefaultRoute); err != nil {
			return fmt.Errorf("default route: %w", err)
		}
	}
	return nil
}

func validateRoute(route Route) error {
	if route.QueueRef == "" {
		return fmt.Errorf("%w: route has no queue_ref", domain.ErrBadValue)
	}
	if route.TimeoutSeconds != nil && *route.TimeoutSeconds <= 0 {
		return fmt.Errorf("%w: route timeout must be positive", domain.ErrBadValue)
	}
	return nil
}

// QueueRefs returns every queue referenced by the plan, in declaration order.
func (r CreateRequest) QueueRefs() []string {
	var refs []string
	for _, rule := range r.Rules {
		for _, route := range rule.Routes {
			refs = append(refs, route.QueueRef)
		}
	}
	if r.DefaultRoute != nil {
		refs = append(refs, r.DefaultRoute.QueueRef)
	}
	return refs
}

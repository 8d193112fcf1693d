package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/routegrid/routegrid/internal/domain/plan"
)

func (q *queries) CreatePlan(ctx context.Context, p plan.Plan) error {
	rules, defaultRoute, err := marshalPlanParts(p)
	if err != nil {
		return err
	}
	_, err = q.db.Exec(ctx,
		`INSERT INTO plans (router_ref, ref, description, rules, default_route, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.RouterRef, p.Ref, p.Description, rules, defaultRoute, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create plan %s/%s: %w", p.RouterRef, p.Ref, err)
	}
	return nil
}

func (q *queries) GetPlan(ctx context.Context, routerRef, ref string) (*plan.Plan, error) {
	row := q.db.QueryRow(ctx,
		`SELECT router_ref, ref, description, rules, default_route, created_at, updated_at
		 FROM plans WHERE router_ref = $1 AND ref = $2`, routerRef, ref)

	p, err := scanPlan(row)
	if err != nil {
		return nil, notFoundWrap(err, "get plan %s/%s", routerRef, ref)
	}
	return &p, nil
}

func (q *queries) ListPlans(ctx context.Context, routerRef string) ([]plan.Plan, error) {
	rows, err := q.db.Query(ctx,
		`SELECT router_ref, ref, description, rules, default_route, created_at, updated_at
		 FROM plans WHERE router_ref = $1 ORDER BY created_at ASC`, routerRef)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var plans []plan.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

func (q *queries) UpdatePlan(ctx context.Context, p plan.Plan) error {
	rules, defaultRoute, err := marshalPlanParts(p)
	if err != nil {
		return err
	}
	tag, err := q.db.Exec(ctx,
		`UPDATE plans SET description = $3, rules = $4, default_route = $5, updated_at = $6
		 WHERE router_ref = $1 AND ref = $2`,
		p.RouterRef, p.Ref, p.Description, rules, defaultRoute, p.UpdatedAt)
	return execExpectOne(tag, err, "update plan %s/%s", p.RouterRef, p.Ref)
}

func (q *queries) DeletePlan(ctx context.Context, routerRef, ref string) error {
	tag, err := q.db.Exec(ctx,
		`DELETE FROM plans WHERE router_ref = $1 AND ref = $2`, routerRef, ref)
	return execExpectOne(tag, err, "delete plan %s/%s", routerRef, ref)
}

func marshalPlanParts(p plan.Plan) (rules, defaultRoute []byte, err error) {
	if p.Rules != nil {
		rules, err = json.Marshal(p.Rules)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal rules: %w", err)
		}
	}
	if p.DefaultRoute != nil {
		defaultRoute, err = json.Marshal(p.DefaultRoute)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal default route: %w", err)
		}
	}
	return rules, defaultRoute, nil
}

func scanPlan(row scannable) (plan.Plan, error) {
	var p plan.Plan
	var rules, defaultRoute []byte
	err := row.Scan(&p.RouterRef, &p.Ref, &p.Description, &rules, &defaultRoute, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return p, err
	}
	if rules != nil {
		if err := json.Unmarshal(rules, &p.Rules); err != nil {
			return p, fmt.Errorf("unmarshal rules: %w", err)
		}
	}
	if defaultRoute != nil {
		var r plan.Route
		if err := json.Unmarshal(defaultRoute, &r); err != nil {
			return p, fmt.Errorf("unmarshal default route: %w", err)
		}
		p.DefaultRoute = &r
	}
	return p, nil
}

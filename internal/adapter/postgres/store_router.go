package postgres

import (
	"context"
	"fmt"

	"github.com/routegrid/routegrid/internal/domain/router"
)

func (q *queries) CreateRouter(ctx context.Context, r router.Router) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO routers (ref, name, description, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		r.Ref, r.Name, r.Description, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create router %s: %w", r.Ref, err)
	}
	return nil
}

func (q *queries) GetRouter(ctx context.Context, ref string) (*router.Router, error) {
	row := q.db.QueryRow(ctx,
		`SELECT ref, name, description, created_at, updated_at
		 FROM routers WHERE ref = $1`, ref)

	r, err := scanRouter(row)
	if err != nil {
		return nil, notFoundWrap(err, "get router %s", ref)
	}
	return &r, nil
}

func (q *queries) ListRouters(ctx context.Context) ([]router.Router, error) {
	rows, err := q.db.Query(ctx,
		`SELECT ref, name, description, created_at, updated_at
		 FROM routers ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list routers: %w", err)
	}
	defer rows.Close()

	var routers []router.Router
	for rows.Next() {
		r, err := scanRouter(rows)
		if err != nil {
			return nil, fmt.Errorf("scan router: %w", err)
		}
		routers = append(routers, r)
	}
	return routers, rows.Err()
}

func (q *queries) UpdateRouter(ctx context.Context, r router.Router) error {
	tag, err := q.db.Exec(ctx,
		`UPDATE routers SET name = $2, description = $3, updated_at = $4 WHERE ref = $1`,
		r.Ref, r.Name, r.Description, r.UpdatedAt)
	return execExpectOne(tag, err, "update router %s", r.Ref)
}

func (q *queries) RouterHasDependents(ctx context.Context, ref string) (bool, error) {
	var hasAny bool
	err := q.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM queues WHERE router_ref = $1)
		     OR EXISTS (SELECT 1 FROM agents WHERE router_ref = $1)
		     OR EXISTS (SELECT 1 FROM plans WHERE router_ref = $1)
		     OR EXISTS (SELECT 1 FROM tasks WHERE router_ref = $1)`, ref).Scan(&hasAny)
	if err != nil {
		return false, fmt.Errorf("router dependents %s: %w", ref, err)
	}
	return hasAny, nil
}

func (q *queries) DeleteRouter(ctx context.Context, ref string) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM routers WHERE ref = $1`, ref)
	return execExpectOne(tag, err, "delete router %s", ref)
}

func scanRouter(row scannable) (router.Router, error) {
	var r router.Router
	err := row.Scan(&r.Ref, &r.Name, &r.Description, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

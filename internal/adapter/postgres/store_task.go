package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/routegrid/routegrid/internal/domain/task"
)

func (q *queries) CreateTask(ctx context.Context, t task.Task) error {
	requirements, routes, err := marshalTaskParts(t)
	if err != nil {
		return err
	}
	_, err = q.db.Exec(ctx,
		`INSERT INTO tasks (router_ref, ref, requirements, callback, plan_ref, queue_ref,
		                    routes, route_index, state, agent_ref, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		t.RouterRef, t.Ref, requirements, t.Callback, t.PlanRef, t.QueueRef,
		routes, t.RouteIndex, string(t.State), t.AgentRef, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create task %s/%s: %w", t.RouterRef, t.Ref, err)
	}
	return nil
}

func (q *queries) GetTask(ctx context.Context, routerRef, ref string) (*task.Task, error) {
	row := q.db.QueryRow(ctx,
		`SELECT router_ref, ref, requirements, callback, plan_ref, queue_ref,
		        routes, route_index, state, agent_ref, created_at, updated_at
		 FROM tasks WHERE router_ref = $1 AND ref = $2`, routerRef, ref)

	t, err := scanTask(row)
	if err != nil {
		return nil, notFoundWrap(err, "get task %s/%s", routerRef, ref)
	}
	return &t, nil
}

func (q *queries) ListTasks(ctx context.Context, routerRef string) ([]task.Task, error) {
	rows, err := q.db.Query(ctx,
		`SELECT router_ref, ref, requirements, callback, plan_ref, queue_ref,
		        routes, route_index, state, agent_ref, created_at, updated_at
		 FROM tasks WHERE router_ref = $1 ORDER BY created_at ASC`, routerRef)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (q *queries) UpdateTask(ctx context.Context, t task.Task) error {
	requirements, routes, err := marshalTaskParts(t)
	if err != nil {
		return err
	}
	tag, err := q.db.Exec(ctx,
		`UPDATE tasks SET requirements = $3, callback = $4, plan_ref = $5, queue_ref = $6,
		        routes = $7, route_index = $8, state = $9, agent_ref = $10, updated_at = $11
		 WHERE router_ref = $1 AND ref = $2`,
		t.RouterRef, t.Ref, requirements, t.Callback, t.PlanRef, t.QueueRef,
		routes, t.RouteIndex, string(t.State), t.AgentRef, t.UpdatedAt)
	return execExpectOne(tag, err, "update task %s/%s", t.RouterRef, t.Ref)
}

func (q *queries) DeleteTask(ctx context.Context, routerRef, ref string) error {
	tag, err := q.db.Exec(ctx,
		`DELETE FROM tasks WHERE router_ref = $1 AND ref = $2`, routerRef, ref)
	return execExpectOne(tag, err, "delete task %s/%s", routerRef, ref)
}

func (q *queries) OldestWaitingTask(ctx context.Context, routerRef, queueRef string) (*task.Task, error) {
	row := q.db.QueryRow(ctx,
		`SELECT router_ref, ref, requirements, callback, plan_ref, queue_ref,
		        routes, route_index, state, agent_ref, created_at, updated_at
		 FROM tasks
		 WHERE router_ref = $1 AND queue_ref = $2 AND state = 'waiting'
		 ORDER BY created_at ASC
		 LIMIT 1`, routerRef, queueRef)

	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("oldest waiting task %s/%s: %w", routerRef, queueRef, err)
	}
	return &t, nil
}

func marshalTaskParts(t task.Task) (requirements, routes []byte, err error) {
	requirements, err = marshalGroup(t.Requirements)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal requirements: %w", err)
	}
	if t.Routes != nil {
		routes, err = json.Marshal(t.Routes)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal routes: %w", err)
		}
	}
	return requirements, routes, nil
}

func scanTask(row scannable) (task.Task, error) {
	var t task.Task
	var requirements, routes []byte
	err := row.Scan(&t.RouterRef, &t.Ref, &requirements, &t.Callback, &t.PlanRef, &t.QueueRef,
		&routes, &t.RouteIndex, &t.State, &t.AgentRef, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return t, err
	}
	if requirements != nil {
		if err := json.Unmarshal(requirements, &t.Requirements); err != nil {
			return t, fmt.Errorf("unmarshal requirements: %w", err)
		}
	}
	if routes != nil {
		if err := json.Unmarshal(routes, &t.Routes); err != nil {
			return t, fmt.Errorf("unmarshal routes: %w", err)
		}
	}
	return t, nil
}

package postgres

import (
	"context"
	"fmt"

	"github.com/routegrid/routegrid/internal/domain/queue"
)

func (q *queries) CreateQueue(ctx context.Context, qu queue.Queue) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO queues (router_ref, ref, predicate, description, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		qu.RouterRef, qu.Ref, qu.Predicate, qu.Description, qu.CreatedAt, qu.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create queue %s/%s: %w", qu.RouterRef, qu.Ref, err)
	}
	return nil
}

func (q *queries) GetQueue(ctx context.Context, routerRef, ref string) (*queue.Queue, error) {
	row := q.db.QueryRow(ctx,
		`SELECT router_ref, ref, predicate, description, created_at, updated_at
		 FROM queues WHERE router_ref = $1 AND ref = $2`, routerRef, ref)

	qu, err := scanQueue(row)
	if err != nil {
		return nil, notFoundWrap(err, "get queue %s/%s", routerRef, ref)
	}
	return &qu, nil
}

func (q *queries) ListQueues(ctx context.Context, routerRef string) ([]queue.Queue, error) {
	rows, err := q.db.Query(ctx,
		`SELECT router_ref, ref, predicate, description, created_at, updated_at
		 FROM queues WHERE router_ref = $1 ORDER BY created_at ASC`, routerRef)
	if err != nil {
		return nil, fmt.Errorf("list queues: %w", err)
	}
	defer rows.Close()

	var queues []queue.Queue
	for rows.Next() {
		qu, err := scanQueue(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue: %w", err)
		}
		queues = append(queues, qu)
	}
	return queues, rows.Err()
}

func (q *queries) UpdateQueue(ctx context.Context, qu queue.Queue) error {
	tag, err := q.db.Exec(ctx,
		`UPDATE queues SET predicate = $3, description = $4, updated_at = $5
		 WHERE router_ref = $1 AND ref = $2`,
		qu.RouterRef, qu.Ref, qu.Predicate, qu.Description, qu.UpdatedAt)
	return execExpectOne(tag, err, "update queue %s/%s", qu.RouterRef, qu.Ref)
}

func (q *queries) DeleteQueue(ctx context.Context, routerRef, ref string) error {
	tag, err := q.db.Exec(ctx,
		`DELETE FROM queues WHERE router_ref = $1 AND ref = $2`, routerRef, ref)
	return execExpectOne(tag, err, "delete queue %s/%s", routerRef, ref)
}

func (q *queries) CountWaitingTasks(ctx context.Context, routerRef, queueRef string) (int, error) {
	var n int
	err := q.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM tasks
		 WHERE router_ref = $1 AND queue_ref = $2 AND state = 'waiting'`,
		routerRef, queueRef).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count waiting tasks %s/%s: %w", routerRef, queueRef, err)
	}
	return n, nil
}

// --- Bindings ---

func (q *queries) AddBinding(ctx context.Context, b queue.Binding) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO bindings (router_ref, agent_ref, queue_ref)
		 VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
		b.RouterRef, b.AgentRef, b.QueueRef)
	if err != nil {
		return fmt.Errorf("add binding %s/%s->%s: %w", b.RouterRef, b.AgentRef, b.QueueRef, err)
	}
	return nil
}

func (q *queries) RemoveBinding(ctx context.Context, b queue.Binding) error {
	_, err := q.db.Exec(ctx,
		`DELETE FROM bindings WHERE router_ref = $1 AND agent_ref = $2 AND queue_ref = $3`,
		b.RouterRef, b.AgentRef, b.QueueRef)
	if err != nil {
		return fmt.Errorf("remove binding %s/%s->%s: %w", b.RouterRef, b.AgentRef, b.QueueRef, err)
	}
	return nil
}

func (q *queries) HasBinding(ctx context.Context, b queue.Binding) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM bindings
		 WHERE router_ref = $1 AND agent_ref = $2 AND queue_ref = $3)`,
		b.RouterRef, b.AgentRef, b.QueueRef).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("has binding %s/%s->%s: %w", b.RouterRef, b.AgentRef, b.QueueRef, err)
	}
	return exists, nil
}

func (q *queries) ListAgentBindings(ctx context.Context, routerRef, agentRef string) ([]queue.Binding, error) {
	rows, err := q.db.Query(ctx,
		`SELECT b.router_ref, b.agent_ref, b.queue_ref
		 FROM bindings b
		 JOIN queues qu ON qu.router_ref = b.router_ref AND qu.ref = b.queue_ref
		 WHERE b.router_ref = $1 AND b.agent_ref = $2
		 ORDER BY qu.created_at ASC`, routerRef, agentRef)
	if err != nil {
		return nil, fmt.Errorf("list agent bindings %s/%s: %w", routerRef, agentRef, err)
	}
	defer rows.Close()

	return collectBindings(rows)
}

func (q *queries) ListQueueBindings(ctx context.Context, routerRef, queueRef string) ([]queue.Binding, error) {
	rows, err := q.db.Query(ctx,
		`SELECT b.router_ref, b.agent_ref, b.queue_ref
		 FROM bindings b
		 JOIN agents a ON a.router_ref = b.router_ref AND a.ref = b.agent_ref
		 WHERE b.router_ref = $1 AND b.queue_ref = $2
		 ORDER BY a.created_at ASC`, routerRef, queueRef)
	if err != nil {
		return nil, fmt.Errorf("list queue bindings %s/%s: %w", routerRef, queueRef, err)
	}
	defer rows.Close()

	return collectBindings(rows)
}

func collectBindings(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]queue.Binding, error) {
	var bindings []queue.Binding
	for rows.Next() {
		var b queue.Binding
		if err := rows.Scan(&b.RouterRef, &b.AgentRef, &b.QueueRef); err != nil {
			return nil, fmt.Errorf("scan binding: %w", err)
		}
		bindings = append(bindings, b)
	}
	return bindings, rows.Err()
}

func scanQueue(row scannable) (queue.Queue, error) {
	var qu queue.Queue
	err := row.Scan(&qu.RouterRef, &qu.Ref, &qu.Predicate, &qu.Description, &qu.CreatedAt, &qu.UpdatedAt)
	return qu, err
}

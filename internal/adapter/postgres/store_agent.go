package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/routegrid/routegrid/internal/domain/agent"
	"github.com/routegrid/routegrid/internal/domain/attribute"
)

func (q *queries) CreateAgent(ctx context.Context, a agent.Agent) error {
	caps, err := marshalGroup(a.Capabilities)
	if err != nil {
		return fmt.Errorf("marshal capabilities: %w", err)
	}
	_, err = q.db.Exec(ctx,
		`INSERT INTO agents (router_ref, ref, address, capabilities, state, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.RouterRef, a.Ref, a.Address, caps, string(a.State), a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create agent %s/%s: %w", a.RouterRef, a.Ref, err)
	}
	return nil
}

func (q *queries) GetAgent(ctx context.Context, routerRef, ref string) (*agent.Agent, error) {
	row := q.db.QueryRow(ctx,
		`SELECT router_ref, ref, address, capabilities, state, created_at, updated_at
		 FROM agents WHERE router_ref = $1 AND ref = $2`, routerRef, ref)

	a, err := scanAgent(row)
	if err != nil {
		return nil, notFoundWrap(err, "get agent %s/%s", routerRef, ref)
	}
	return &a, nil
}

func (q *queries) ListAgents(ctx context.Context, routerRef string) ([]agent.Agent, error) {
	rows, err := q.db.Query(ctx,
		`SELECT router_ref, ref, address, capabilities, state, created_at, updated_at
		 FROM agents WHERE router_ref = $1 ORDER BY created_at ASC`, routerRef)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var agents []agent.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

func (q *queries) UpdateAgent(ctx context.Context, a agent.Agent) error {
	caps, err := marshalGroup(a.Capabilities)
	if err != nil {
		return fmt.Errorf("marshal capabilities: %w", err)
	}
	tag, err := q.db.Exec(ctx,
		`UPDATE agents SET address = $3, capabilities = $4, state = $5, updated_at = $6
		 WHERE router_ref = $1 AND ref = $2`,
		a.RouterRef, a.Ref, a.Address, caps, string(a.State), a.UpdatedAt)
	return execExpectOne(tag, err, "update agent %s/%s", a.RouterRef, a.Ref)
}

func (q *queries) DeleteAgent(ctx context.Context, routerRef, ref string) error {
	// Bindings go with the agent (ON DELETE CASCADE).
	tag, err := q.db.Exec(ctx,
		`DELETE FROM agents WHERE router_ref = $1 AND ref = $2`, routerRef, ref)
	return execExpectOne(tag, err, "delete agent %s/%s", routerRef, ref)
}

func (q *queries) ReadyAgentForQueue(ctx context.Context, routerRef, queueRef string) (*agent.Agent, error) {
	row := q.db.QueryRow(ctx,
		`SELECT a.router_ref, a.ref, a.address, a.capabilities, a.state, a.created_at, a.updated_at
		 FROM agents a
		 JOIN bindings b ON b.router_ref = a.router_ref AND b.agent_ref = a.ref
		 WHERE a.router_ref = $1 AND b.queue_ref = $2 AND a.state = 'ready'
		 ORDER BY a.created_at ASC
		 LIMIT 1`, routerRef, queueRef)

	a, err := scanAgent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("ready agent for queue %s/%s: %w", routerRef, queueRef, err)
	}
	return &a, nil
}

func scanAgent(row scannable) (agent.Agent, error) {
	var a agent.Agent
	var caps []byte
	err := row.Scan(&a.RouterRef, &a.Ref, &a.Address, &caps, &a.State, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return a, err
	}
	if caps != nil {
		if err := json.Unmarshal(caps, &a.Capabilities); err != nil {
			return a, fmt.Errorf("unmarshal capabilities: %w", err)
		}
	}
	return a, nil
}

// marshalGroup serializes an attribute group, keeping nil groups as SQL NULL.
func marshalGroup(g attribute.Group) ([]byte, error) {
	if g == nil {
		return nil, nil
	}
	return json.Marshal(g)
}

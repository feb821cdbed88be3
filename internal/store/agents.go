package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/symbiote-ai/symbiote/internal/domain"
)

// AgentRepo provides persistence operations for agent descriptors.
type AgentRepo struct{}

const agentColumns = `id, agent_type, name, model_name, capabilities_json, created_at`

// GetOrCreate resolves the agent record for an agent type, creating it on
// first use. The insert is ON CONFLICT DO NOTHING, so repeated or
// concurrent calls with the same type return the existing row instead of
// duplicating it.
func (r AgentRepo) GetOrCreate(ctx context.Context, q Querier, agentType domain.AgentType, modelName string) (*domain.Agent, error) {
	_, err := q.ExecContext(ctx, `
		INSERT INTO agents (agent_type, name, model_name, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(agent_type) DO NOTHING`,
		string(agentType), string(agentType)+"-agent", modelName, time.Now().Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert agent: %w", err)
	}

	agent, err := r.GetByType(ctx, q, agentType)
	if err != nil {
		return nil, err
	}
	if agent == nil {
		return nil, fmt.Errorf("agent %q missing after insert", agentType)
	}
	return agent, nil
}

// GetByID retrieves an agent by its internal row key. Returns (nil, nil)
// when no agent matches.
func (AgentRepo) GetByID(ctx context.Context, q Querier, id int64) (*domain.Agent, error) {
	row := q.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = ?`, id)
	return scanAgent(row)
}

// GetByType retrieves an agent by its type key. Returns (nil, nil) when no
// agent matches.
func (AgentRepo) GetByType(ctx context.Context, q Querier, agentType domain.AgentType) (*domain.Agent, error) {
	row := q.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE agent_type = ?`, string(agentType))
	return scanAgent(row)
}

// ListByTask returns the distinct agents that produced assistant messages
// in any of the task's chats, in order of first appearance.
func (AgentRepo) ListByTask(ctx context.Context, q Querier, taskID int64) ([]*domain.Agent, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+qualifiedAgentColumns+`
		FROM agents a
		JOIN messages m ON m.agent_id = a.id
		JOIN chats c ON c.id = m.chat_id
		WHERE c.task_id = ?
		GROUP BY a.id
		ORDER BY MIN(m.id)`, taskID)
	if err != nil {
		return nil, fmt.Errorf("query task agents: %w", err)
	}
	defer closeRows(rows, "agents")

	var agents []*domain.Agent
	for rows.Next() {
		agent, err := scanAgentRow(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, agent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task agents: %w", err)
	}
	return agents, nil
}

const qualifiedAgentColumns = `a.id, a.agent_type, a.name, a.model_name, a.capabilities_json, a.created_at`

func scanAgent(row *sql.Row) (*domain.Agent, error) {
	agent, err := scanAgentRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return agent, err
}

func scanAgentRow(row rowScanner) (*domain.Agent, error) {
	var agent domain.Agent
	var agentType string
	var capabilities sql.NullString
	var createdAt int64

	err := row.Scan(&agent.ID, &agentType, &agent.Name, &agent.ModelName, &capabilities, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan agent row: %w", err)
	}

	agent.AgentType = domain.AgentType(agentType)
	agent.CreatedAt = time.Unix(createdAt, 0)

	agent.Capabilities, err = unmarshalJSON(capabilities)
	if err != nil {
		return nil, err
	}
	return &agent, nil
}

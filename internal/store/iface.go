package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/ankittk/missioncontrol/internal/mission"
)

// Store persists mission history. Saves are upserts keyed by entity id.
// Implementations: *sqlite.Store (SQLite) and *postgres.Store (PostgreSQL).
type Store interface {
	// Agents
	SaveAgent(ctx context.Context, a mission.Agent) error
	DeleteAgent(ctx context.Context, id uuid.UUID) error
	LoadAgents(ctx context.Context) ([]mission.Agent, error)

	// Tasks
	SaveTask(ctx context.Context, t mission.Task) error
	DeleteTask(ctx context.Context, id uuid.UUID) error
	LoadTasks(ctx context.Context) ([]mission.Task, error)

	// Messages, newest first. The store keeps at most MessageRetention.
	SaveMessage(ctx context.Context, m mission.AgentMessage) error
	LoadRecentMessages(ctx context.Context, limit int) ([]mission.AgentMessage, error)
	LoadMessagesForAgent(ctx context.Context, agentID uuid.UUID, limit int) ([]mission.AgentMessage, error)

	// Whole-mission history
	LoadHistory(ctx context.Context) (mission.Snapshot, error)
	SaveHistory(ctx context.Context, snap mission.Snapshot) error
	ClearAll(ctx context.Context) error
	Statistics(ctx context.Context) (Stats, error)

	Close() error
}

// Stats counts what the store holds.
type Stats struct {
	TotalTasks    int `json:"total_tasks"`
	TotalAgents   int `json:"total_agents"`
	TotalMessages int `json:"total_messages"`
}

const (
	// MessageRetention bounds the persisted message log; older rows are pruned on save.
	MessageRetention = 1000
	// DefaultRecentMessages is used when LoadRecentMessages gets limit <= 0.
	DefaultRecentMessages = 100
	// DefaultAgentMessages is used when LoadMessagesForAgent gets limit <= 0.
	DefaultAgentMessages = 50
)

// RecentLimit normalises a message limit.
func RecentLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > MessageRetention {
		return MessageRetention
	}
	return limit
}

package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ankittk/missioncontrol/internal/mission"
	"github.com/ankittk/missioncontrol/internal/store"
)

// execer is satisfied by *pgxpool.Pool and pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const (
	agentColumns   = `id, name, role, session_key, status, current_task, capabilities, created_at, last_activity, model, total_tasks_completed`
	taskColumns    = `id, title, description, status, assigned_agent, created_at, updated_at, planning_qa, deliverables, priority, tags`
	messageColumns = `id, from_agent, to_agent, message, timestamp, message_type`
)

func saveAgent(ctx context.Context, db execer, a mission.Agent) error {
	r, err := store.AgentToRow(a)
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx, `INSERT INTO agents(`+agentColumns+`) VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT(id) DO UPDATE SET name=EXCLUDED.name, role=EXCLUDED.role, session_key=EXCLUDED.session_key,
  status=EXCLUDED.status, current_task=EXCLUDED.current_task, capabilities=EXCLUDED.capabilities,
  last_activity=EXCLUDED.last_activity, model=EXCLUDED.model, total_tasks_completed=EXCLUDED.total_tasks_completed`,
		r.ID, r.Name, r.Role, r.SessionKey, r.Status, r.CurrentTask, r.Capabilities, r.CreatedAt, r.LastActivity, r.Model, r.TotalTasksCompleted)
	return err
}

func saveTask(ctx context.Context, db execer, t mission.Task) error {
	r, err := store.TaskToRow(t)
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx, `INSERT INTO tasks(`+taskColumns+`) VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT(id) DO UPDATE SET title=EXCLUDED.title, description=EXCLUDED.description, status=EXCLUDED.status,
  assigned_agent=EXCLUDED.assigned_agent, updated_at=EXCLUDED.updated_at, planning_qa=EXCLUDED.planning_qa,
  deliverables=EXCLUDED.deliverables, priority=EXCLUDED.priority, tags=EXCLUDED.tags`,
		r.ID, r.Title, r.Description, r.Status, r.AssignedAgent, r.CreatedAt, r.UpdatedAt, r.PlanningQA, r.Deliverables, r.Priority, r.Tags)
	return err
}

func saveMessage(ctx context.Context, db execer, m mission.AgentMessage) error {
	r := store.MessageToRow(m)
	_, err := db.Exec(ctx, `INSERT INTO messages(`+messageColumns+`) VALUES($1,$2,$3,$4,$5,$6)
ON CONFLICT(id) DO NOTHING`,
		r.ID, r.FromAgent, r.ToAgent, r.Message, r.Timestamp, r.Type)
	return err
}

func (s *Store) SaveAgent(ctx context.Context, a mission.Agent) error {
	if err := saveAgent(ctx, s.Pool, a); err != nil {
		return fmt.Errorf("save agent %s: %w", a.ID, err)
	}
	return nil
}

func (s *Store) DeleteAgent(ctx context.Context, id uuid.UUID) error {
	_, err := s.Pool.Exec(ctx, `DELETE FROM agents WHERE id = $1`, id.String())
	return err
}

func (s *Store) LoadAgents(ctx context.Context) ([]mission.Agent, error) {
	rows, err := s.Pool.Query(ctx, `SELECT `+agentColumns+` FROM agents ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []mission.Agent
	for rows.Next() {
		var r store.AgentRow
		if err := rows.Scan(&r.ID, &r.Name, &r.Role, &r.SessionKey, &r.Status, &r.CurrentTask, &r.Capabilities, &r.CreatedAt, &r.LastActivity, &r.Model, &r.TotalTasksCompleted); err != nil {
			return nil, err
		}
		a, err := r.Agent()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) SaveTask(ctx context.Context, t mission.Task) error {
	if err := saveTask(ctx, s.Pool, t); err != nil {
		return fmt.Errorf("save task %s: %w", t.ID, err)
	}
	return nil
}

func (s *Store) DeleteTask(ctx context.Context, id uuid.UUID) error {
	_, err := s.Pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id.String())
	return err
}

func (s *Store) LoadTasks(ctx context.Context) ([]mission.Task, error) {
	rows, err := s.Pool.Query(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []mission.Task
	for rows.Next() {
		var r store.TaskRow
		if err := rows.Scan(&r.ID, &r.Title, &r.Description, &r.Status, &r.AssignedAgent, &r.CreatedAt, &r.UpdatedAt, &r.PlanningQA, &r.Deliverables, &r.Priority, &r.Tags); err != nil {
			return nil, err
		}
		t, err := r.Task()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SaveMessage stores m and prunes the log to store.MessageRetention rows.
func (s *Store) SaveMessage(ctx context.Context, m mission.AgentMessage) error {
	if err := saveMessage(ctx, s.Pool, m); err != nil {
		return fmt.Errorf("save message %s: %w", m.ID, err)
	}
	_, err := s.Pool.Exec(ctx, `DELETE FROM messages WHERE id NOT IN (
  SELECT id FROM messages ORDER BY timestamp DESC, id DESC LIMIT $1)`, store.MessageRetention)
	return err
}

func (s *Store) LoadRecentMessages(ctx context.Context, limit int) ([]mission.AgentMessage, error) {
	return s.queryMessages(ctx, `SELECT `+messageColumns+` FROM messages ORDER BY timestamp DESC, id DESC LIMIT $1`,
		store.RecentLimit(limit, store.DefaultRecentMessages))
}

// LoadMessagesForAgent returns messages sent by or addressed to agentID, broadcasts included.
func (s *Store) LoadMessagesForAgent(ctx context.Context, agentID uuid.UUID, limit int) ([]mission.AgentMessage, error) {
	return s.queryMessages(ctx, `SELECT `+messageColumns+` FROM messages
WHERE from_agent = $1 OR to_agent = $1 OR to_agent IS NULL
ORDER BY timestamp DESC, id DESC LIMIT $2`,
		agentID.String(), store.RecentLimit(limit, store.DefaultAgentMessages))
}

func (s *Store) queryMessages(ctx context.Context, q string, args ...any) ([]mission.AgentMessage, error) {
	rows, err := s.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []mission.AgentMessage
	for rows.Next() {
		var r store.MessageRow
		if err := rows.Scan(&r.ID, &r.FromAgent, &r.ToAgent, &r.Message, &r.Timestamp, &r.Type); err != nil {
			return nil, err
		}
		m, err := r.AgentMessage()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) LoadHistory(ctx context.Context) (mission.Snapshot, error) {
	agents, err := s.LoadAgents(ctx)
	if err != nil {
		return mission.Snapshot{}, fmt.Errorf("load agents: %w", err)
	}
	tasks, err := s.LoadTasks(ctx)
	if err != nil {
		return mission.Snapshot{}, fmt.Errorf("load tasks: %w", err)
	}
	msgs, err := s.LoadRecentMessages(ctx, mission.RecentMessageLimit)
	if err != nil {
		return mission.Snapshot{}, fmt.Errorf("load messages: %w", err)
	}
	return mission.Snapshot{Agents: agents, Tasks: tasks, Messages: msgs}, nil
}

// SaveHistory replaces the stored mission with snap in one transaction.
func (s *Store) SaveHistory(ctx context.Context, snap mission.Snapshot) error {
	return pgx.BeginFunc(ctx, s.Pool, func(tx pgx.Tx) error {
		if err := clearAll(ctx, tx); err != nil {
			return err
		}
		for _, a := range snap.Agents {
			if err := saveAgent(ctx, tx, a); err != nil {
				return fmt.Errorf("save agent %s: %w", a.ID, err)
			}
		}
		for _, t := range snap.Tasks {
			if err := saveTask(ctx, tx, t); err != nil {
				return fmt.Errorf("save task %s: %w", t.ID, err)
			}
		}
		for _, m := range snap.Messages {
			if err := saveMessage(ctx, tx, m); err != nil {
				return fmt.Errorf("save message %s: %w", m.ID, err)
			}
		}
		return nil
	})
}

func clearAll(ctx context.Context, db execer) error {
	_, err := db.Exec(ctx, `TRUNCATE messages, tasks, agents`)
	return err
}

func (s *Store) ClearAll(ctx context.Context) error {
	return clearAll(ctx, s.Pool)
}

func (s *Store) Statistics(ctx context.Context) (store.Stats, error) {
	var st store.Stats
	err := s.Pool.QueryRow(ctx, `SELECT
  (SELECT COUNT(*) FROM tasks),
  (SELECT COUNT(*) FROM agents),
  (SELECT COUNT(*) FROM messages)`).Scan(&st.TotalTasks, &st.TotalAgents, &st.TotalMessages)
	return st, err
}

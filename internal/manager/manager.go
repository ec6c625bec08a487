// Package manager coordinates the mission with the agent gateway: it spawns
// agents for planned tasks, reacts to their session events, keeps agent
// status in line with gateway sessions, and persists every change.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ankittk/missioncontrol/internal/gateway"
	"github.com/ankittk/missioncontrol/internal/mission"
	"github.com/ankittk/missioncontrol/internal/otel"
	"github.com/ankittk/missioncontrol/internal/store"
)

// DefaultRefreshInterval is how often Run reconciles agents with gateway sessions.
const DefaultRefreshInterval = 30 * time.Second

// Manager owns the running mission. Store may be nil for an in-memory mission.
type Manager struct {
	Mission *mission.Mission
	Store   store.Store
	Gateway gateway.Gateway

	// RefreshInterval is the Run loop period; 0 means DefaultRefreshInterval.
	RefreshInterval time.Duration
	// SessionKinds filters RefreshSessions; nil means gateway.DefaultSessionKinds.
	SessionKinds []string

	mu      sync.Mutex
	baseCtx context.Context
	cancel  context.CancelFunc
	subs    map[uuid.UUID]*subscription
	wg      sync.WaitGroup
}

func New(m *mission.Mission, st store.Store, gw gateway.Gateway) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		Mission: m,
		Store:   st,
		Gateway: gw,
		baseCtx: ctx,
		cancel:  cancel,
		subs:    make(map[uuid.UUID]*subscription),
	}
}

// Load replaces the mission with the persisted history.
func (m *Manager) Load(ctx context.Context) error {
	if m.Store == nil {
		return nil
	}
	snap, err := m.Store.LoadHistory(ctx)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	m.Mission.Restore(snap)
	slog.Info("mission loaded", "agents", len(snap.Agents), "tasks", len(snap.Tasks), "messages", len(snap.Messages))
	return nil
}

func (m *Manager) saveAgent(ctx context.Context, a mission.Agent) error {
	if m.Store == nil {
		return nil
	}
	if err := m.Store.SaveAgent(ctx, a); err != nil {
		return fmt.Errorf("persist agent %s: %w", a.Name, err)
	}
	return nil
}

func (m *Manager) saveTask(ctx context.Context, t mission.Task) error {
	if m.Store == nil {
		return nil
	}
	if err := m.Store.SaveTask(ctx, t); err != nil {
		return fmt.Errorf("persist task %q: %w", t.Title, err)
	}
	return nil
}

// CreateTask adds a task in PLANNING.
func (m *Manager) CreateTask(ctx context.Context, title, description string, priority mission.TaskPriority, tags []string) (mission.Task, error) {
	t := m.Mission.CreateTask(title, description, priority)
	if len(tags) > 0 {
		var err error
		t, err = m.Mission.UpdateTask(t.ID, func(t *mission.Task) {
			t.Tags = append([]string(nil), tags...)
			t.Touch()
		})
		if err != nil {
			return mission.Task{}, err
		}
	}
	otel.RecordTaskOp(ctx, "create", string(t.Status))
	return t, m.saveTask(ctx, t)
}

// CreateAgent registers an agent that was not spawned through the gateway.
func (m *Manager) CreateAgent(ctx context.Context, name, role string, capabilities []string, model string) (mission.Agent, error) {
	a := m.Mission.Spawn(name, role, capabilities, model)
	slog.Info("agent created", "agent", a.Name, "role", a.Role)
	return a, m.saveAgent(ctx, a)
}

// UpdateTask applies fn to the task and persists the result.
func (m *Manager) UpdateTask(ctx context.Context, taskID uuid.UUID, fn func(*mission.Task)) (mission.Task, error) {
	t, err := m.Mission.UpdateTask(taskID, fn)
	if err != nil {
		return mission.Task{}, err
	}
	otel.RecordTaskOp(ctx, "update", string(t.Status))
	return t, m.saveTask(ctx, t)
}

// CompletePlanning attaches the planning dialogue to the task and moves it to INBOX.
func (m *Manager) CompletePlanning(ctx context.Context, taskID uuid.UUID, pairs []mission.QAPair) (mission.Task, error) {
	t, err := m.Mission.UpdateTask(taskID, func(t *mission.Task) {
		for _, qa := range pairs {
			t.AddQA(qa)
		}
		t.MoveTo(mission.TaskInbox)
	})
	if err != nil {
		return mission.Task{}, err
	}
	otel.RecordTaskOp(ctx, "plan", string(t.Status))
	slog.Info("planning complete", "task_id", t.ID, "title", t.Title, "answers", len(pairs))
	return t, m.saveTask(ctx, t)
}

// MoveTask sets a task's status; any transition is allowed.
func (m *Manager) MoveTask(ctx context.Context, taskID uuid.UUID, status mission.TaskStatus) (mission.Task, error) {
	t, err := m.Mission.UpdateTask(taskID, func(t *mission.Task) { t.MoveTo(status) })
	if err != nil {
		return mission.Task{}, err
	}
	otel.RecordTaskOp(ctx, "move", string(status))
	return t, m.saveTask(ctx, t)
}

// AddDeliverable appends d to the task.
func (m *Manager) AddDeliverable(ctx context.Context, taskID uuid.UUID, d mission.Deliverable) (mission.Task, error) {
	t, err := m.Mission.UpdateTask(taskID, func(t *mission.Task) { t.AddDeliverable(d) })
	if err != nil {
		return mission.Task{}, err
	}
	otel.RecordTaskOp(ctx, "deliverable", string(t.Status))
	return t, m.saveTask(ctx, t)
}

// AssignTask links an existing agent and task.
func (m *Manager) AssignTask(ctx context.Context, taskID, agentID uuid.UUID) (mission.Task, mission.Agent, error) {
	t, a, err := m.Mission.AssignTask(taskID, agentID)
	if err != nil {
		return mission.Task{}, mission.Agent{}, err
	}
	otel.RecordTaskOp(ctx, "assign", string(t.Status))
	return t, a, errors.Join(m.saveTask(ctx, t), m.saveAgent(ctx, a))
}

func (m *Manager) DeleteTask(ctx context.Context, id uuid.UUID) error {
	if err := m.Mission.DeleteTask(id); err != nil {
		return err
	}
	otel.RecordTaskOp(ctx, "delete", "")
	if m.Store == nil {
		return nil
	}
	return m.Store.DeleteTask(ctx, id)
}

func (m *Manager) DeleteAgent(ctx context.Context, id uuid.UUID) error {
	if err := m.Mission.DeleteAgent(id); err != nil {
		return err
	}
	m.unwatch(id)
	if m.Store == nil {
		return nil
	}
	return m.Store.DeleteAgent(ctx, id)
}

// SendMessage records an inter-agent message. A nil to broadcasts.
func (m *Manager) SendMessage(ctx context.Context, from uuid.UUID, to *uuid.UUID, text string, typ mission.MessageType) (mission.AgentMessage, error) {
	msg := m.Mission.SendMessage(from, to, text, typ)
	if m.Store == nil {
		return msg, nil
	}
	if err := m.Store.SaveMessage(ctx, msg); err != nil {
		return msg, fmt.Errorf("persist message: %w", err)
	}
	return msg, nil
}

// RecentMessages returns up to limit messages, newest first. The store keeps
// a longer log than the mission, so it is preferred when present.
func (m *Manager) RecentMessages(ctx context.Context, limit int) ([]mission.AgentMessage, error) {
	if m.Store == nil {
		return m.Mission.Messages(store.RecentLimit(limit, store.DefaultRecentMessages)), nil
	}
	return m.Store.LoadRecentMessages(ctx, limit)
}

// AgentMessages returns messages sent by or to the agent, broadcasts included.
func (m *Manager) AgentMessages(ctx context.Context, agentID uuid.UUID, limit int) ([]mission.AgentMessage, error) {
	if _, err := m.Mission.Agent(agentID); err != nil {
		return nil, err
	}
	if m.Store == nil {
		return m.Mission.MessagesFor(agentID, store.RecentLimit(limit, store.DefaultAgentMessages)), nil
	}
	return m.Store.LoadMessagesForAgent(ctx, agentID, limit)
}

// Stats combines the live mission statistics with persisted totals.
type Stats struct {
	mission.Statistics
	CompletionRate float64      `json:"completion_rate"`
	Stored         *store.Stats `json:"stored,omitempty"`
}

func (m *Manager) Stats(ctx context.Context) (Stats, error) {
	s := m.Mission.Statistics()
	out := Stats{Statistics: s, CompletionRate: s.CompletionRate()}
	if m.Store == nil {
		return out, nil
	}
	stored, err := m.Store.Statistics(ctx)
	if err != nil {
		return out, fmt.Errorf("store statistics: %w", err)
	}
	out.Stored = &stored
	return out, nil
}

// SpawnAgent starts a gateway session for the task and records the agent as
// WORKING on it. A nil cfg uses mission.NewSpawnConfig. The agent's session
// events are followed until the agent is stopped or the manager closes.
func (m *Manager) SpawnAgent(ctx context.Context, taskID uuid.UUID, cfg *mission.SpawnConfig) (mission.Agent, error) {
	task, err := m.Mission.Task(taskID)
	if err != nil {
		return mission.Agent{}, err
	}
	c := mission.NewSpawnConfig(task)
	if cfg != nil {
		c = *cfg
	}

	start := time.Now()
	resp, err := m.Gateway.Spawn(ctx, gateway.NewSpawnRequest(task, c))
	otel.RecordAgentSpawn(ctx, c.Role, err, time.Since(start))
	if err != nil {
		slog.Error("spawn agent failed", "task_id", taskID, "agent", c.Name, "err", err)
		return mission.Agent{}, fmt.Errorf("spawn %s: %w", c.Name, err)
	}

	a := m.Mission.Spawn(c.Name, c.Role, c.Capabilities, c.Model)
	if _, err := m.Mission.UpdateAgent(a.ID, func(a *mission.Agent) {
		key := resp.SessionKey
		a.SessionKey = &key
		a.Touch()
	}); err != nil {
		return mission.Agent{}, err
	}
	task, a, err = m.AssignTask(ctx, taskID, a.ID)
	if err != nil {
		return a, err
	}
	slog.Info("agent spawned", "agent", a.Name, "session_key", resp.SessionKey, "task_id", task.ID)
	m.watch(a.ID, resp.SessionKey)
	return a, nil
}

// subscription is one running session watcher.
type subscription struct {
	cancel context.CancelFunc
}

// watch follows the agent's session events in the background. The watcher
// drops its own entry when the session stream ends.
func (m *Manager) watch(agentID uuid.UUID, sessionKey string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.baseCtx.Err() != nil {
		return
	}
	if prev, ok := m.subs[agentID]; ok {
		prev.cancel()
	}
	ctx, cancel := context.WithCancel(m.baseCtx)
	sub := &subscription{cancel: cancel}
	m.subs[agentID] = sub
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		err := m.Gateway.Subscribe(ctx, sessionKey, func(ev gateway.SessionEvent) {
			if err := m.HandleSessionEvent(ctx, agentID, ev); err != nil {
				slog.Warn("session event not applied", "agent_id", agentID, "event", ev.Type, "err", err)
			}
		})
		if err != nil && ctx.Err() == nil {
			slog.Warn("session subscription ended", "agent_id", agentID, "session_key", sessionKey, "err", err)
		}
		m.forget(agentID, sub)
	}()
}

// forget removes sub if it is still the agent's current watcher.
func (m *Manager) forget(agentID uuid.UUID, sub *subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub.cancel()
	if m.subs[agentID] == sub {
		delete(m.subs, agentID)
	}
}

func (m *Manager) unwatch(agentID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sub, ok := m.subs[agentID]; ok {
		sub.cancel()
		delete(m.subs, agentID)
	}
}

// watching reports how many session watchers are registered.
func (m *Manager) watching() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// HandleSessionEvent applies one gateway event for the agent:
// progress broadcasts an UPDATE message, complete finishes the agent's task
// and sends it to REVIEW, error marks the agent ERROR. Other types are ignored.
func (m *Manager) HandleSessionEvent(ctx context.Context, agentID uuid.UUID, ev gateway.SessionEvent) error {
	otel.RecordSessionEvent(ctx, ev.Type)
	switch ev.Type {
	case gateway.EventProgress:
		text, ok := ev.ProgressMessage()
		if !ok {
			return nil
		}
		_, err := m.SendMessage(ctx, agentID, nil, text, mission.MessageUpdate)
		return err
	case gateway.EventComplete:
		a, task, err := m.Mission.CompleteAgentTask(agentID, mission.TaskReview)
		if err != nil {
			return err
		}
		slog.Info("agent completed task", "agent", a.Name, "tasks_completed", a.TotalTasksCompleted)
		if task == nil {
			return m.saveAgent(ctx, a)
		}
		otel.RecordTaskOp(ctx, "complete", string(task.Status))
		return errors.Join(m.saveAgent(ctx, a), m.saveTask(ctx, *task))
	case gateway.EventError:
		a, err := m.Mission.UpdateAgent(agentID, func(a *mission.Agent) { a.UpdateStatus(mission.AgentError) })
		if err != nil {
			return err
		}
		slog.Warn("agent reported error", "agent", a.Name, "data", ev.Data)
		return m.saveAgent(ctx, a)
	}
	return nil
}

// RefreshSessions maps gateway sessions onto agents by session key: active
// sessions make their agent WORKING, any other status makes it IDLE. Agents
// persisted by another process are merged in.
func (m *Manager) RefreshSessions(ctx context.Context) error {
	if err := m.Gateway.Health(ctx); err != nil {
		return err
	}
	kinds := m.SessionKinds
	if kinds == nil {
		kinds = gateway.DefaultSessionKinds
	}
	sessions, err := m.Gateway.ListSessions(ctx, kinds, 0)
	if err != nil {
		return err
	}
	var errs []error
	for _, s := range sessions {
		a, ok := m.Mission.AgentBySessionKey(s.Key)
		if !ok {
			continue
		}
		status := mission.AgentIdle
		if s.Active() {
			status = mission.AgentWorking
		}
		updated, err := m.Mission.UpdateAgent(a.ID, func(a *mission.Agent) { a.UpdateStatus(status) })
		if err != nil {
			errs = append(errs, err)
			continue
		}
		errs = append(errs, m.saveAgent(ctx, updated))
	}
	if m.Store != nil {
		stored, err := m.Store.LoadAgents(ctx)
		if err != nil {
			errs = append(errs, err)
		}
		for _, a := range stored {
			if _, err := m.Mission.Agent(a.ID); errors.Is(err, mission.ErrAgentNotFound) {
				m.Mission.AddAgent(a)
			}
		}
	}
	return errors.Join(errs...)
}

// StopAgent stops the agent's gateway session, completes its task and leaves
// it OFFLINE. A failing gateway is logged and local cleanup continues.
func (m *Manager) StopAgent(ctx context.Context, agentID uuid.UUID) (mission.Agent, error) {
	a, err := m.Mission.Agent(agentID)
	if err != nil {
		return mission.Agent{}, err
	}
	m.unwatch(agentID)
	if a.SessionKey != nil {
		if err := m.Gateway.Stop(ctx, *a.SessionKey); err != nil {
			slog.Warn("gateway stop failed, continuing local cleanup", "agent", a.Name, "session_key", *a.SessionKey, "err", err)
		}
	}
	if _, _, err := m.Mission.CompleteAgentTask(agentID, ""); err != nil {
		return mission.Agent{}, err
	}
	a, err = m.Mission.UpdateAgent(agentID, func(a *mission.Agent) { a.UpdateStatus(mission.AgentOffline) })
	if err != nil {
		return mission.Agent{}, err
	}
	slog.Info("agent stopped", "agent", a.Name)
	return a, m.saveAgent(ctx, a)
}

// Run refreshes sessions every RefreshInterval until ctx is done, then
// closes the manager.
func (m *Manager) Run(ctx context.Context) error {
	interval := m.RefreshInterval
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	defer m.Close()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := m.RefreshSessions(ctx); err != nil {
				slog.Warn("refresh sessions failed", "err", err)
			}
		}
	}
}

// Close stops every session subscription and waits for them to return.
func (m *Manager) Close() {
	m.mu.Lock()
	m.cancel()
	m.subs = make(map[uuid.UUID]*subscription)
	m.mu.Unlock()
	m.wg.Wait()
}

// Wait blocks until every running session subscription has returned.
func (m *Manager) Wait() { m.wg.Wait() }

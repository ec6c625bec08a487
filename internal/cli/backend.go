package cli

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ankittk/missioncontrol/internal/daemon"
	"github.com/ankittk/missioncontrol/internal/manager"
	"github.com/ankittk/missioncontrol/internal/mission"
	"github.com/ankittk/missioncontrol/pkg/client"
)

// backend is what the agent, task and message commands need. It is served
// either by a local manager over the configured store or by a running server.
type backend interface {
	ListAgents(ctx context.Context, filter string) ([]mission.Agent, error)
	CreateAgent(ctx context.Context, name, role string, capabilities []string, model string) (mission.Agent, error)
	StopAgent(ctx context.Context, id uuid.UUID) (mission.Agent, error)
	DeleteAgent(ctx context.Context, id uuid.UUID) error
	AgentMessages(ctx context.Context, id uuid.UUID, limit int) ([]mission.AgentMessage, error)
	SpawnAgent(ctx context.Context, taskID uuid.UUID, override mission.SpawnConfig) (mission.Agent, error)

	ListTasks(ctx context.Context, status mission.TaskStatus) ([]mission.Task, error)
	GetTask(ctx context.Context, id uuid.UUID) (mission.Task, error)
	CreateTask(ctx context.Context, title, description string, priority mission.TaskPriority, tags []string) (mission.Task, error)
	MoveTask(ctx context.Context, id uuid.UUID, status mission.TaskStatus) (mission.Task, error)
	AssignTask(ctx context.Context, taskID, agentID uuid.UUID) (mission.Task, error)
	PlanTask(ctx context.Context, id uuid.UUID, answers []string) (mission.Task, error)
	DeleteTask(ctx context.Context, id uuid.UUID) error
	AddDeliverable(ctx context.Context, taskID uuid.UUID, d mission.Deliverable) (mission.Task, error)
	TaskPrompt(ctx context.Context, id uuid.UUID) (client.Prompt, error)

	ListMessages(ctx context.Context, limit int) ([]mission.AgentMessage, error)
	SendMessage(ctx context.Context, from uuid.UUID, to *uuid.UUID, text string, typ mission.MessageType) (mission.AgentMessage, error)
	Stats(ctx context.Context) (client.Stats, error)
}

var (
	_ backend = (*client.Client)(nil)
	_ backend = (*localBackend)(nil)
)

// openBackend returns the HTTP client when --server is set, otherwise a
// local manager loaded from the store. The returned func must be called when
// done.
func openBackend(ctx context.Context) (backend, func() error, error) {
	s := settingsFrom(ctx)
	if s.Server != "" {
		return client.New(s.Server, s.APIKey), func() error { return nil }, nil
	}
	mgr, closeFn, err := daemon.OpenManager(ctx, s.Home, s.Config, nil)
	if err != nil {
		return nil, nil, err
	}
	return &localBackend{mgr: mgr}, closeFn, nil
}

// localBackend adapts the manager to backend.
type localBackend struct {
	mgr *manager.Manager
	// wait makes SpawnAgent block until the agent's session events end.
	wait bool
}

func (b *localBackend) ListAgents(_ context.Context, filter string) ([]mission.Agent, error) {
	switch filter {
	case "":
		return b.mgr.Mission.Agents(), nil
	case "available":
		return b.mgr.Mission.AvailableAgents(), nil
	case "working":
		return b.mgr.Mission.WorkingAgents(), nil
	}
	return nil, fmt.Errorf("unknown filter %q (want available or working)", filter)
}

func (b *localBackend) CreateAgent(ctx context.Context, name, role string, capabilities []string, model string) (mission.Agent, error) {
	return b.mgr.CreateAgent(ctx, name, role, capabilities, model)
}

func (b *localBackend) StopAgent(ctx context.Context, id uuid.UUID) (mission.Agent, error) {
	return b.mgr.StopAgent(ctx, id)
}

func (b *localBackend) DeleteAgent(ctx context.Context, id uuid.UUID) error {
	return b.mgr.DeleteAgent(ctx, id)
}

func (b *localBackend) AgentMessages(ctx context.Context, id uuid.UUID, limit int) ([]mission.AgentMessage, error) {
	return b.mgr.AgentMessages(ctx, id, limit)
}

func (b *localBackend) SpawnAgent(ctx context.Context, taskID uuid.UUID, override mission.SpawnConfig) (mission.Agent, error) {
	t, err := b.mgr.Mission.Task(taskID)
	if err != nil {
		return mission.Agent{}, err
	}
	cfg := mission.NewSpawnConfig(t)
	if override.Name != "" {
		cfg.Name = override.Name
	}
	if override.Role != "" {
		cfg.Role = override.Role
	}
	if override.Model != "" {
		cfg.Model = override.Model
	}
	if override.Capabilities != nil {
		cfg.Capabilities = override.Capabilities
	}
	a, err := b.mgr.SpawnAgent(ctx, taskID, &cfg)
	if err != nil {
		return a, err
	}
	if b.wait {
		b.mgr.Wait()
		return b.mgr.Mission.Agent(a.ID)
	}
	return a, nil
}

func (b *localBackend) ListTasks(_ context.Context, status mission.TaskStatus) ([]mission.Task, error) {
	if status == "" {
		return b.mgr.Mission.Tasks(), nil
	}
	return b.mgr.Mission.TasksByStatus(status), nil
}

func (b *localBackend) GetTask(_ context.Context, id uuid.UUID) (mission.Task, error) {
	return b.mgr.Mission.Task(id)
}

func (b *localBackend) CreateTask(ctx context.Context, title, description string, priority mission.TaskPriority, tags []string) (mission.Task, error) {
	if priority == "" {
		priority = mission.PriorityMedium
	}
	return b.mgr.CreateTask(ctx, title, description, priority, tags)
}

func (b *localBackend) MoveTask(ctx context.Context, id uuid.UUID, status mission.TaskStatus) (mission.Task, error) {
	return b.mgr.MoveTask(ctx, id, status)
}

func (b *localBackend) AssignTask(ctx context.Context, taskID, agentID uuid.UUID) (mission.Task, error) {
	t, _, err := b.mgr.AssignTask(ctx, taskID, agentID)
	return t, err
}

func (b *localBackend) PlanTask(ctx context.Context, id uuid.UUID, answers []string) (mission.Task, error) {
	if len(answers) > len(mission.DefaultPlanningQuestions) {
		return mission.Task{}, fmt.Errorf("at most %d answers", len(mission.DefaultPlanningQuestions))
	}
	p := mission.NewPlanner(nil)
	for _, a := range answers {
		p.Answer(a)
	}
	return b.mgr.CompletePlanning(ctx, id, p.Pairs())
}

func (b *localBackend) DeleteTask(ctx context.Context, id uuid.UUID) error {
	return b.mgr.DeleteTask(ctx, id)
}

func (b *localBackend) AddDeliverable(ctx context.Context, taskID uuid.UUID, d mission.Deliverable) (mission.Task, error) {
	return b.mgr.AddDeliverable(ctx, taskID, d)
}

func (b *localBackend) TaskPrompt(_ context.Context, id uuid.UUID) (client.Prompt, error) {
	t, err := b.mgr.Mission.Task(id)
	if err != nil {
		return client.Prompt{}, err
	}
	cfg := mission.NewSpawnConfig(t)
	return client.Prompt{Config: cfg, Prompt: cfg.Prompt(), SystemPrompt: cfg.SystemPrompt()}, nil
}

func (b *localBackend) ListMessages(ctx context.Context, limit int) ([]mission.AgentMessage, error) {
	return b.mgr.RecentMessages(ctx, limit)
}

func (b *localBackend) SendMessage(ctx context.Context, from uuid.UUID, to *uuid.UUID, text string, typ mission.MessageType) (mission.AgentMessage, error) {
	return b.mgr.SendMessage(ctx, from, to, text, typ)
}

func (b *localBackend) Stats(ctx context.Context) (client.Stats, error) {
	s, err := b.mgr.Stats(ctx)
	return client.Stats{Statistics: s.Statistics, CompletionRate: s.CompletionRate}, err
}

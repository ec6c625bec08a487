package manager

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ankittk/missioncontrol/internal/gateway"
	"github.com/ankittk/missioncontrol/internal/mission"
	"github.com/ankittk/missioncontrol/internal/store/sqlite"
)

func testManager(t *testing.T, gw gateway.Gateway) (*Manager, *sqlite.Store) {
	t.Helper()
	st, err := sqlite.Open(filepath.Join(t.TempDir(), "home"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	m := New(mission.New(), st, gw)
	t.Cleanup(m.Close)
	return m, st
}

func plannedTask(t *testing.T, m *Manager) mission.Task {
	t.Helper()
	ctx := context.Background()
	task, err := m.CreateTask(ctx, "Fix login", "Develop a fix for the login page", mission.PriorityHigh, []string{"web"})
	require.NoError(t, err)
	task, err = m.CompletePlanning(ctx, task.ID, []mission.QAPair{mission.NewQAPair("Scope?", "Login form only")})
	require.NoError(t, err)
	return task
}

func TestCompletePlanning(t *testing.T) {
	t.Parallel()
	m, st := testManager(t, gateway.NewStub())
	task := plannedTask(t, m)

	assert.Equal(t, mission.TaskInbox, task.Status)
	require.Len(t, task.PlanningQA, 1)
	assert.Equal(t, []string{"web"}, task.Tags)

	tasks, err := st.LoadTasks(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, mission.TaskInbox, tasks[0].Status)
	assert.Equal(t, "Login form only", tasks[0].PlanningQA[0].Answer)
}

func TestSpawnAgent_followsSessionToReview(t *testing.T) {
	t.Parallel()
	m, st := testManager(t, gateway.NewStub())
	task := plannedTask(t, m)
	ctx := context.Background()

	a, err := m.SpawnAgent(ctx, task.ID, nil)
	require.NoError(t, err)
	require.NotNil(t, a.SessionKey)
	assert.Equal(t, "stub:0001", *a.SessionKey)
	assert.Equal(t, mission.AgentWorking, a.Status)
	assert.Equal(t, mission.NewSpawnConfig(task).Name, a.Name)
	assert.Equal(t, "Developer", a.Role)

	// DefaultScript: one progress update, then complete.
	m.Wait()
	assert.Zero(t, m.watching(), "finished watcher should unregister itself")
	got, err := m.Mission.Task(task.ID)
	require.NoError(t, err)
	assert.Equal(t, mission.TaskReview, got.Status)
	assert.Equal(t, a.Name, *got.AssignedAgent)

	agent, err := m.Mission.Agent(a.ID)
	require.NoError(t, err)
	assert.Equal(t, mission.AgentIdle, agent.Status)
	assert.Nil(t, agent.CurrentTask)
	assert.Equal(t, 1, agent.TotalTasksCompleted)

	msgs := m.Mission.MessagesFor(a.ID, 0)
	require.Len(t, msgs, 1)
	assert.Equal(t, mission.MessageUpdate, msgs[0].Type)
	assert.Equal(t, "Stub agent started working", msgs[0].Message)

	snap, err := st.LoadHistory(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Agents, 1)
	assert.Equal(t, mission.AgentIdle, snap.Agents[0].Status)
	require.Len(t, snap.Tasks, 1)
	assert.Equal(t, mission.TaskReview, snap.Tasks[0].Status)
	assert.Len(t, snap.Messages, 1)
}

type failingSpawn struct{ *gateway.Stub }

func (failingSpawn) Spawn(context.Context, gateway.SpawnRequest) (gateway.SpawnResponse, error) {
	return gateway.SpawnResponse{}, gateway.ErrSpawnFailed
}

func TestSpawnAgent_gatewayFailure(t *testing.T) {
	t.Parallel()
	m, _ := testManager(t, failingSpawn{gateway.NewStub()})
	task := plannedTask(t, m)

	_, err := m.SpawnAgent(context.Background(), task.ID, nil)
	require.ErrorIs(t, err, gateway.ErrSpawnFailed)
	assert.Empty(t, m.Mission.Agents())
	got, _ := m.Mission.Task(task.ID)
	assert.Equal(t, mission.TaskInbox, got.Status)
}

func TestSpawnAgent_unknownTask(t *testing.T) {
	t.Parallel()
	m, _ := testManager(t, gateway.NewStub())
	_, err := m.SpawnAgent(context.Background(), uuid.New(), nil)
	require.ErrorIs(t, err, mission.ErrTaskNotFound)
}

func TestHandleSessionEvent(t *testing.T) {
	t.Parallel()
	m, _ := testManager(t, gateway.NewStub())
	ctx := context.Background()
	a := m.Mission.Spawn("dev", "developer", nil, "")

	require.NoError(t, m.HandleSessionEvent(ctx, a.ID, gateway.ProgressEvent("halfway")))
	require.NoError(t, m.HandleSessionEvent(ctx, a.ID, gateway.SessionEvent{Type: gateway.EventProgress, Data: "not json"}))
	require.NoError(t, m.HandleSessionEvent(ctx, a.ID, gateway.SessionEvent{Type: "heartbeat"}))
	msgs := m.Mission.Messages(0)
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].IsBroadcast())
	assert.Equal(t, "halfway", msgs[0].Message)

	require.NoError(t, m.HandleSessionEvent(ctx, a.ID, gateway.SessionEvent{Type: gateway.EventError, Data: `{"error":"boom"}`}))
	got, _ := m.Mission.Agent(a.ID)
	assert.Equal(t, mission.AgentError, got.Status)

	// complete without a task still counts and leaves the agent idle
	require.NoError(t, m.HandleSessionEvent(ctx, a.ID, gateway.SessionEvent{Type: gateway.EventComplete}))
	got, _ = m.Mission.Agent(a.ID)
	assert.Equal(t, mission.AgentIdle, got.Status)
	assert.Equal(t, 1, got.TotalTasksCompleted)

	err := m.HandleSessionEvent(ctx, uuid.New(), gateway.SessionEvent{Type: gateway.EventComplete})
	require.ErrorIs(t, err, mission.ErrAgentNotFound)
}

func TestRefreshSessions(t *testing.T) {
	t.Parallel()
	stub := &gateway.Stub{Script: []gateway.SessionEvent{}}
	m, st := testManager(t, stub)
	ctx := context.Background()
	task := plannedTask(t, m)

	a, err := m.SpawnAgent(ctx, task.ID, nil)
	require.NoError(t, err)
	require.NoError(t, stub.SetStatus(*a.SessionKey, "idle"))
	require.NoError(t, m.RefreshSessions(ctx))
	got, _ := m.Mission.Agent(a.ID)
	assert.Equal(t, mission.AgentIdle, got.Status)

	require.NoError(t, stub.SetStatus(*a.SessionKey, "active"))
	require.NoError(t, m.RefreshSessions(ctx))
	got, _ = m.Mission.Agent(a.ID)
	assert.Equal(t, mission.AgentWorking, got.Status)

	// agents written by another process are merged in
	other := mission.NewAgent("reviewer-1", "reviewer", nil, "")
	require.NoError(t, st.SaveAgent(ctx, *other))
	require.NoError(t, m.RefreshSessions(ctx))
	_, err = m.Mission.Agent(other.ID)
	require.NoError(t, err)
}

type failingStop struct{ *gateway.Stub }

func (failingStop) Stop(context.Context, string) error {
	return errors.Join(gateway.ErrStopFailed, gateway.ErrNotConnected)
}

func TestStopAgent(t *testing.T) {
	t.Parallel()
	for name, gw := range map[string]gateway.Gateway{
		"ok":            &gateway.Stub{Script: []gateway.SessionEvent{}},
		"gateway fails": failingStop{&gateway.Stub{Script: []gateway.SessionEvent{}}},
	} {
		t.Run(name, func(t *testing.T) {
			m, st := testManager(t, gw)
			ctx := context.Background()
			task := plannedTask(t, m)
			a, err := m.SpawnAgent(ctx, task.ID, nil)
			require.NoError(t, err)

			stopped, err := m.StopAgent(ctx, a.ID)
			require.NoError(t, err)
			assert.Equal(t, mission.AgentOffline, stopped.Status)
			assert.Nil(t, stopped.CurrentTask)
			assert.Equal(t, 1, stopped.TotalTasksCompleted)

			// the task is left where it was
			got, _ := m.Mission.Task(task.ID)
			assert.Equal(t, mission.TaskAssigned, got.Status)

			agents, err := st.LoadAgents(ctx)
			require.NoError(t, err)
			require.Len(t, agents, 1)
			assert.Equal(t, mission.AgentOffline, agents[0].Status)
		})
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()
	m, st := testManager(t, gateway.NewStub())
	ctx := context.Background()
	task := plannedTask(t, m)
	_, err := m.SendMessage(ctx, uuid.New(), nil, "hello", "")
	require.NoError(t, err)

	fresh := New(mission.New(), st, gateway.NewStub())
	defer fresh.Close()
	require.NoError(t, fresh.Load(ctx))
	got, err := fresh.Mission.Task(task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.Title, got.Title)
	assert.Len(t, fresh.Mission.Messages(0), 1)
}

func TestRun_stopsOnCancel(t *testing.T) {
	t.Parallel()
	m, _ := testManager(t, gateway.NewStub())
	m.RefreshInterval = 10 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

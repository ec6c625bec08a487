package mission

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stepClock advances by one second on every call.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type recorder struct {
	events []Event
}

func (r *recorder) Publish(ev Event) { r.events = append(r.events, ev) }

func (r *recorder) types() []string {
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

func TestMission_AssignThenComplete(t *testing.T) {
	t.Parallel()
	clk := newStepClock()
	rec := &recorder{}
	m := New(WithClock(clk.Now), WithPublisher(rec))

	a := m.Spawn("Rex", "Researcher", []string{"web_search"}, "")
	task := m.CreateTask("Survey", "Find prior art", "")
	assert.Equal(t, DefaultModel, a.Model)
	assert.Equal(t, PriorityMedium, task.Priority)
	assert.Equal(t, TaskPlanning, task.Status)

	gotTask, gotAgent, err := m.AssignTask(task.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, TaskAssigned, gotTask.Status)
	require.NotNil(t, gotTask.AssignedAgent)
	assert.Equal(t, "Rex", *gotTask.AssignedAgent)
	assert.Equal(t, AgentWorking, gotAgent.Status)
	require.NotNil(t, gotAgent.CurrentTask)
	assert.Equal(t, task.ID, *gotAgent.CurrentTask)
	assert.False(t, gotAgent.IsAvailable())
	assert.True(t, gotAgent.LastActivity.After(a.LastActivity))

	done, moved, err := m.CompleteAgentTask(a.ID, TaskReview)
	require.NoError(t, err)
	assert.Equal(t, AgentIdle, done.Status)
	assert.Nil(t, done.CurrentTask)
	assert.Equal(t, 1, done.TotalTasksCompleted)
	assert.True(t, done.IsAvailable())
	require.NotNil(t, moved)
	assert.Equal(t, TaskReview, moved.Status)

	assert.Equal(t, []string{
		EventAgentUpdate, EventTaskUpdate,
		EventTaskUpdate, EventAgentUpdate,
		EventTaskUpdate, EventAgentUpdate,
	}, rec.types())
}

func TestMission_CompleteWithoutTask(t *testing.T) {
	t.Parallel()
	m := New()
	a := m.Spawn("Idle", "Writer", nil, "opus")

	done, moved, err := m.CompleteAgentTask(a.ID, TaskReview)
	require.NoError(t, err)
	assert.Nil(t, moved)
	assert.Equal(t, 1, done.TotalTasksCompleted)
	assert.Equal(t, "opus", done.Model)
}

func TestMission_NotFound(t *testing.T) {
	t.Parallel()
	m := New()
	task := m.CreateTask("t", "d", PriorityHigh)
	missing := uuid.New()

	_, _, err := m.AssignTask(task.ID, missing)
	assert.ErrorIs(t, err, ErrAgentNotFound)
	_, _, err = m.AssignTask(missing, missing)
	assert.ErrorIs(t, err, ErrTaskNotFound)

	// A failed assignment leaves the task untouched.
	got, err := m.Task(task.ID)
	require.NoError(t, err)
	assert.Equal(t, TaskPlanning, got.Status)
	assert.Nil(t, got.AssignedAgent)

	_, err = m.Agent(missing)
	assert.ErrorIs(t, err, ErrAgentNotFound)
	assert.ErrorIs(t, m.DeleteTask(missing), ErrTaskNotFound)
	assert.ErrorIs(t, m.DeleteAgent(missing), ErrAgentNotFound)
	_, err = m.UpdateTask(missing, func(*Task) {})
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestMission_CopiesAreDetached(t *testing.T) {
	t.Parallel()
	m := New()
	a := m.Spawn("Rex", "Researcher", []string{"read"}, "")
	a.Capabilities[0] = "mutated"
	a.Name = "Other"

	got, err := m.Agent(a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Rex", got.Name)
	assert.Equal(t, []string{"read"}, got.Capabilities)
}

func TestMission_UpdateTaskTouches(t *testing.T) {
	t.Parallel()
	clk := newStepClock()
	m := New(WithClock(clk.Now))
	task := m.CreateTask("t", "d", PriorityLow)

	prev := task.UpdatedAt
	for _, s := range []TaskStatus{TaskInbox, TaskDone, TaskPlanning} {
		got, err := m.UpdateTask(task.ID, func(t *Task) { t.MoveTo(s) })
		require.NoError(t, err)
		assert.Equal(t, s, got.Status)
		assert.True(t, got.UpdatedAt.After(prev), "UpdatedAt must advance on %s", s)
		prev = got.UpdatedAt
	}
}

func TestMission_TasksByStatusNewestFirst(t *testing.T) {
	t.Parallel()
	clk := newStepClock()
	m := New(WithClock(clk.Now))
	first := m.CreateTask("first", "", "")
	second := m.CreateTask("second", "", "")
	_ = m.CreateTask("third", "", "")
	_, err := m.UpdateTask(third(m).ID, func(t *Task) { t.MoveTo(TaskInbox) })
	require.NoError(t, err)
	_, err = m.UpdateTask(first.ID, func(t *Task) { t.Touch() })
	require.NoError(t, err)

	planning := m.TasksByStatus(TaskPlanning)
	require.Len(t, planning, 2)
	assert.Equal(t, first.ID, planning[0].ID)
	assert.Equal(t, second.ID, planning[1].ID)
	assert.Len(t, m.TasksByStatus(TaskInbox), 1)
	assert.Empty(t, m.TasksByStatus(TaskDone))
}

func third(m *Mission) Task {
	for _, t := range m.Tasks() {
		if t.Title == "third" {
			return t
		}
	}
	panic("third task missing")
}

func TestMission_AvailableAndWorking(t *testing.T) {
	t.Parallel()
	m := New()
	idle := m.Spawn("idle", "r", nil, "")
	busy := m.Spawn("busy", "r", nil, "")
	stale := m.Spawn("stale", "r", nil, "")
	task := m.CreateTask("t", "d", "")
	_, _, err := m.AssignTask(task.ID, busy.ID)
	require.NoError(t, err)
	// Idle but still holding a task id is not available.
	_, err = m.UpdateAgent(stale.ID, func(a *Agent) {
		id := task.ID
		a.CurrentTask = &id
		a.UpdateStatus(AgentIdle)
	})
	require.NoError(t, err)

	avail := m.AvailableAgents()
	require.Len(t, avail, 1)
	assert.Equal(t, idle.ID, avail[0].ID)
	working := m.WorkingAgents()
	require.Len(t, working, 1)
	assert.Equal(t, busy.ID, working[0].ID)
}

func TestMission_SessionKeyLookup(t *testing.T) {
	t.Parallel()
	m := New()
	a := m.Spawn("Rex", "r", nil, "")
	_, ok := m.AgentBySessionKey("sess-1")
	assert.False(t, ok)

	_, err := m.UpdateAgent(a.ID, func(a *Agent) {
		k := "sess-1"
		a.SessionKey = &k
		a.Touch()
	})
	require.NoError(t, err)
	got, ok := m.AgentBySessionKey("sess-1")
	require.True(t, ok)
	assert.Equal(t, a.ID, got.ID)
}

func TestMission_Messages(t *testing.T) {
	t.Parallel()
	clk := newStepClock()
	rec := &recorder{}
	m := New(WithClock(clk.Now), WithPublisher(rec))
	alice, bob, carol := uuid.New(), uuid.New(), uuid.New()

	m.SendMessage(alice, &bob, "hi bob", MessageQuestion)
	m.SendMessage(carol, nil, "all hands", "")
	m.SendMessage(carol, &alice, "hi alice", MessagePraise)

	all := m.Messages(0)
	require.Len(t, all, 3)
	assert.Equal(t, "hi alice", all[0].Message)
	assert.Equal(t, MessageCommunication, all[1].Type)
	assert.True(t, all[1].IsBroadcast())

	forBob := m.MessagesFor(bob, 0)
	require.Len(t, forBob, 2)
	assert.Equal(t, "all hands", forBob[0].Message)
	assert.Equal(t, "hi bob", forBob[1].Message)

	assert.Len(t, m.Messages(2), 2)
	assert.Len(t, m.MessagesFor(alice, 1), 1)
	assert.Equal(t, []string{EventMessage, EventMessage, EventMessage}, rec.types())
	require.NotNil(t, rec.events[0].Message)
	assert.Equal(t, "hi bob", rec.events[0].Message.Message)
}

func TestMission_MessageLogIsCapped(t *testing.T) {
	t.Parallel()
	m := New()
	from := uuid.New()
	for i := 0; i < RecentMessageLimit+5; i++ {
		m.SendMessage(from, nil, fmt.Sprintf("m%d", i), MessageUpdate)
	}
	all := m.Messages(0)
	require.Len(t, all, RecentMessageLimit)
	assert.Equal(t, fmt.Sprintf("m%d", RecentMessageLimit+4), all[0].Message)
}

func TestMission_Statistics(t *testing.T) {
	t.Parallel()
	m := New()
	a := m.Spawn("a", "r", nil, "")
	m.Spawn("b", "r", nil, "")
	t1 := m.CreateTask("1", "", "")
	t2 := m.CreateTask("2", "", "")
	m.CreateTask("3", "", "")
	_, _, err := m.AssignTask(t1.ID, a.ID)
	require.NoError(t, err)
	_, err = m.UpdateTask(t2.ID, func(t *Task) { t.MoveTo(TaskDone) })
	require.NoError(t, err)

	s := m.Statistics()
	assert.Equal(t, Statistics{
		Total: 3, Planning: 1, Assigned: 1, Done: 1,
		ActiveAgents: 1, TotalAgents: 2,
	}, s)
	assert.InDelta(t, 1.0/3.0, s.CompletionRate(), 1e-9)
	assert.Zero(t, Statistics{}.CompletionRate())
}

func TestMission_DeletePublishes(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	m := New(WithPublisher(rec))
	a := m.Spawn("a", "r", nil, "")
	task := m.CreateTask("t", "", "")
	require.NoError(t, m.DeleteTask(task.ID))
	require.NoError(t, m.DeleteAgent(a.ID))
	assert.Equal(t, []string{EventAgentUpdate, EventTaskUpdate, EventTaskDeleted, EventAgentDeleted}, rec.types())
	assert.Empty(t, m.Agents())
	assert.Empty(t, m.Tasks())
}

func TestMission_SnapshotRestore(t *testing.T) {
	t.Parallel()
	src := New()
	a := src.Spawn("Rex", "Researcher", []string{"read"}, "")
	task := src.CreateTask("t", "d", PriorityUrgent)
	_, _, err := src.AssignTask(task.ID, a.ID)
	require.NoError(t, err)
	src.SendMessage(a.ID, nil, "hello", MessageUpdate)

	raw, err := json.Marshal(src.Snapshot())
	require.NoError(t, err)
	var snap Snapshot
	require.NoError(t, json.Unmarshal(raw, &snap))

	clk := newStepClock()
	dst := New(WithClock(clk.Now))
	dst.Restore(snap)
	assert.Equal(t, src.Statistics(), dst.Statistics())
	got, err := dst.Agent(a.ID)
	require.NoError(t, err)
	assert.Equal(t, AgentWorking, got.Status)
	require.Len(t, dst.Messages(0), 1)

	// Restored entities use the destination clock.
	updated, err := dst.UpdateAgent(a.ID, func(a *Agent) { a.Touch() })
	require.NoError(t, err)
	assert.Equal(t, 2025, updated.LastActivity.Year())
}

func TestMission_ConcurrentMutations(t *testing.T) {
	t.Parallel()
	m := New()
	a := m.Spawn("a", "r", nil, "")
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			task := m.CreateTask("t", "", "")
			if _, _, err := m.AssignTask(task.ID, a.ID); err != nil {
				t.Error(err)
			}
			if _, _, err := m.CompleteAgentTask(a.ID, TaskDone); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	got, err := m.Agent(a.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, got.TotalTasksCompleted)
	assert.Equal(t, AgentIdle, got.Status)
}

func TestMission_SnapshotIsConsistent(t *testing.T) {
	t.Parallel()
	m := New()
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			a := m.Spawn(fmt.Sprintf("agent-%d", i), "r", nil, "")
			task := m.CreateTask("t", "", PriorityLow)
			if _, _, err := m.AssignTask(task.ID, a.ID); err != nil {
				t.Error(err)
				return
			}
		}
	}()

	for i := 0; i < 200; i++ {
		snap := m.Snapshot()
		names := make(map[string]bool, len(snap.Agents))
		for _, a := range snap.Agents {
			names[a.Name] = true
		}
		for _, task := range snap.Tasks {
			if task.AssignedAgent != nil && !names[*task.AssignedAgent] {
				close(stop)
				wg.Wait()
				t.Fatalf("snapshot has task assigned to %q but no such agent", *task.AssignedAgent)
			}
		}
	}
	close(stop)
	wg.Wait()
}

func TestMission_ErrorsWrapID(t *testing.T) {
	t.Parallel()
	id := uuid.New()
	_, err := New().Task(id)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTaskNotFound))
	assert.Contains(t, err.Error(), id.String())
}

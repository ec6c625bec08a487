// Package storetest is the behavioural suite every store.Store implementation runs.
package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ankittk/missioncontrol/internal/mission"
	"github.com/ankittk/missioncontrol/internal/store"
)

// Run exercises st. The store must start empty; Run clears it when done.
func Run(t *testing.T, st store.Store) {
	t.Helper()
	ctx := context.Background()
	t.Cleanup(func() { _ = st.ClearAll(ctx) })

	t.Run("AgentRoundTrip", func(t *testing.T) { agentRoundTrip(t, ctx, st) })
	t.Run("TaskRoundTrip", func(t *testing.T) { taskRoundTrip(t, ctx, st) })
	t.Run("Messages", func(t *testing.T) { messages(t, ctx, st) })
	t.Run("History", func(t *testing.T) { history(t, ctx, st) })
}

var base = time.Date(2025, 6, 1, 9, 0, 0, 123456789, time.UTC)

func clockAt(t time.Time) mission.Clock { return func() time.Time { return t } }

func agentRoundTrip(t *testing.T, ctx context.Context, st store.Store) {
	require.NoError(t, st.ClearAll(ctx))
	m := mission.New(mission.WithClock(clockAt(base)))
	a := m.Spawn("Rex", "Researcher", []string{"web_search", "read"}, "")
	a, err := m.UpdateAgent(a.ID, func(a *mission.Agent) {
		k := "sess-1"
		a.SessionKey = &k
		a.AssignTask(uuid.New())
	})
	require.NoError(t, err)

	require.NoError(t, st.SaveAgent(ctx, a))
	a.TotalTasksCompleted = 3
	require.NoError(t, st.SaveAgent(ctx, a), "save must upsert")

	got, err := st.LoadAgents(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, a.ID, got[0].ID)
	assert.Equal(t, 3, got[0].TotalTasksCompleted)
	assert.Equal(t, a.Capabilities, got[0].Capabilities)
	assert.Equal(t, *a.SessionKey, *got[0].SessionKey)
	assert.Equal(t, *a.CurrentTask, *got[0].CurrentTask)
	assert.True(t, a.CreatedAt.Equal(got[0].CreatedAt))
	assert.Equal(t, mission.AgentWorking, got[0].Status)

	require.NoError(t, st.DeleteAgent(ctx, a.ID))
	got, err = st.LoadAgents(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func taskRoundTrip(t *testing.T, ctx context.Context, st store.Store) {
	require.NoError(t, st.ClearAll(ctx))
	m := mission.New(mission.WithClock(clockAt(base)))
	tk := m.CreateTask("Survey", "Find prior art", mission.PriorityHigh)
	path := "/tmp/out.md"
	tk, err := m.UpdateTask(tk.ID, func(t *mission.Task) {
		t.AddQA(mission.NewQAPair("Goal?", "Facts"))
		t.AddQA(mission.NewQAPair("Audience?", ""))
		t.AddDeliverable(mission.NewDeliverable("report", mission.DeliverableReport, "", &path))
		t.Tags = []string{"q3"}
		t.Assign("Rex")
	})
	require.NoError(t, err)

	require.NoError(t, st.SaveTask(ctx, tk))
	got, err := st.LoadTasks(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	g := got[0]
	assert.Equal(t, tk.Title, g.Title)
	assert.Equal(t, mission.TaskAssigned, g.Status)
	assert.Equal(t, mission.PriorityHigh, g.Priority)
	require.Len(t, g.PlanningQA, 2)
	assert.Equal(t, "Goal?", g.PlanningQA[0].Question)
	assert.Equal(t, "Audience?", g.PlanningQA[1].Question)
	require.Len(t, g.Deliverables, 1)
	assert.Equal(t, path, *g.Deliverables[0].FilePath)
	assert.Equal(t, []string{"q3"}, g.Tags)
	assert.True(t, tk.UpdatedAt.Equal(g.UpdatedAt))

	require.NoError(t, st.DeleteTask(ctx, tk.ID))
	got, err = st.LoadTasks(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func messages(t *testing.T, ctx context.Context, st store.Store) {
	require.NoError(t, st.ClearAll(ctx))
	alice, bob := uuid.New(), uuid.New()
	for i := 0; i < 5; i++ {
		msg := mission.AgentMessage{
			ID:        uuid.New(),
			FromAgent: alice,
			Message:   fmt.Sprintf("m%d", i),
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Type:      mission.MessageUpdate,
		}
		if i%2 == 0 {
			msg.ToAgent = &bob
		}
		require.NoError(t, st.SaveMessage(ctx, msg))
	}
	other := uuid.New()
	require.NoError(t, st.SaveMessage(ctx, mission.AgentMessage{
		ID: uuid.New(), FromAgent: other, ToAgent: &alice, Message: "direct",
		Timestamp: base.Add(time.Hour), Type: mission.MessageQuestion,
	}))

	recent, err := st.LoadRecentMessages(ctx, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "direct", recent[0].Message)
	assert.Equal(t, "m4", recent[1].Message)

	forBob, err := st.LoadMessagesForAgent(ctx, bob, 0)
	require.NoError(t, err)
	// Direct messages plus broadcasts, none of the message to alice.
	require.Len(t, forBob, 5)
	for _, m := range forBob {
		assert.NotEqual(t, "direct", m.Message)
	}

	forOther, err := st.LoadMessagesForAgent(ctx, other, 1)
	require.NoError(t, err)
	require.Len(t, forOther, 1)
	assert.Equal(t, "direct", forOther[0].Message)

	stats, err := st.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.Stats{TotalMessages: 6}, stats)
}

func history(t *testing.T, ctx context.Context, st store.Store) {
	require.NoError(t, st.ClearAll(ctx))
	m := mission.New(mission.WithClock(clockAt(base)))
	a := m.Spawn("Rex", "Researcher", nil, "")
	m.Spawn("Ada", "Developer", []string{"write"}, "opus")
	tk := m.CreateTask("t", "d", "")
	_, _, err := m.AssignTask(tk.ID, a.ID)
	require.NoError(t, err)
	m.SendMessage(a.ID, nil, "started", mission.MessageUpdate)

	require.NoError(t, st.SaveHistory(ctx, m.Snapshot()))
	snap, err := st.LoadHistory(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Agents, 2)
	assert.Len(t, snap.Tasks, 1)
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, "started", snap.Messages[0].Message)

	restored := mission.New()
	restored.Restore(snap)
	assert.Equal(t, m.Statistics(), restored.Statistics())

	// SaveHistory replaces rather than merges.
	require.NoError(t, st.SaveHistory(ctx, mission.Snapshot{}))
	stats, err := st.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.Stats{}, stats)
}

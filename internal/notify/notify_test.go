package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ankittk/missioncontrol/internal/mission"
	"github.com/ankittk/missioncontrol/internal/retry"
)

func noSleep(context.Context, time.Duration) error { return nil }

type recorder struct {
	mu   sync.Mutex
	msgs []string
	err  error
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) Notify(_ context.Context, msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return r.err
}

func (r *recorder) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.msgs...)
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	rec := &recorder{}
	reg.Register(rec)
	require.Equal(t, rec, reg.Get("recorder"))
	require.Nil(t, reg.Get("nonexistent"))
	require.Equal(t, 1, reg.Len())

	require.NoError(t, reg.NotifyAll(context.Background(), "hi"))
	rec.err = errors.New("down")
	require.ErrorContains(t, reg.NotifyAll(context.Background(), "again"), "recorder: down")
	require.Equal(t, []string{"hi", "again"}, rec.messages())
}

func TestSlackWebhook_Notify(t *testing.T) {
	var calls atomic.Int32
	var payload map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := SlackWebhook{
		WebhookURL: srv.URL,
		Channel:    "#mission",
		Exec:       retry.NewExecutor(retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}, retry.WithSleep(noSleep)),
	}
	require.NoError(t, s.Notify(context.Background(), "hello"))
	require.EqualValues(t, 2, calls.Load())
	require.Equal(t, map[string]string{"text": "hello", "channel": "#mission"}, payload)
}

func TestSlackWebhook_Notify_emptyURL(t *testing.T) {
	require.Error(t, SlackWebhook{}.Notify(context.Background(), "msg"))
}

func TestForwarder(t *testing.T) {
	rec := &recorder{}
	reg := NewRegistry()
	reg.Register(rec)
	fwd := NewForwarder(reg)
	m := mission.New(mission.WithPublisher(fwd))
	fwd.Lookup = m

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fwd.Run(ctx) }()

	a := m.Spawn("dev-1", "Developer", nil, "default")
	task := m.CreateTask("Fix login", "Develop a fix", mission.PriorityHigh)
	_, _, err := m.AssignTask(task.ID, a.ID)
	require.NoError(t, err)
	_, _, err = m.CompleteAgentTask(a.ID, mission.TaskReview)
	require.NoError(t, err)
	// A second update while still in REVIEW is not repeated.
	_, err = m.UpdateTask(task.ID, func(t *mission.Task) { t.Touch() })
	require.NoError(t, err)
	_, err = m.UpdateAgent(a.ID, func(a *mission.Agent) { a.UpdateStatus(mission.AgentError) })
	require.NoError(t, err)
	_, err = m.UpdateTask(task.ID, func(t *mission.Task) { t.MoveTo(mission.TaskDone) })
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(rec.messages()) == 3 }, 2*time.Second, 10*time.Millisecond)
	msgs := rec.messages()
	require.Contains(t, msgs[0], "Fix login is ready for review (dev-1)")
	require.Contains(t, msgs[1], "dev-1 (Developer) hit an error")
	require.Contains(t, msgs[2], "Fix login is done")

	cancel()
	require.NoError(t, <-done)
	require.Zero(t, fwd.Dropped())
}

func TestForwarder_reentryNotifiesAgain(t *testing.T) {
	rec := &recorder{}
	reg := NewRegistry()
	reg.Register(rec)
	fwd := NewForwarder(reg)
	m := mission.New(mission.WithPublisher(fwd))
	fwd.Lookup = m

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = fwd.Run(ctx) }()

	a := m.Spawn("dev-1", "Developer", nil, "default")
	task := m.CreateTask("Fix login", "Develop a fix", mission.PriorityHigh)
	for _, st := range []mission.TaskStatus{mission.TaskReview, mission.TaskInProgress, mission.TaskReview} {
		_, err := m.UpdateTask(task.ID, func(t *mission.Task) { t.MoveTo(st) })
		require.NoError(t, err)
	}
	for _, st := range []mission.AgentStatus{mission.AgentError, mission.AgentIdle, mission.AgentError} {
		_, err := m.UpdateAgent(a.ID, func(a *mission.Agent) { a.UpdateStatus(st) })
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool { return len(rec.messages()) == 4 }, 2*time.Second, 10*time.Millisecond)
	msgs := rec.messages()
	require.Equal(t, "[Review] Fix login is ready for review", msgs[0])
	require.Equal(t, "[Review] Fix login is ready for review", msgs[1])
	require.Equal(t, "[Error] dev-1 (Developer) hit an error", msgs[2])
	require.Equal(t, "[Error] dev-1 (Developer) hit an error", msgs[3])
}

func TestForwarder_forgetsDeleted(t *testing.T) {
	fwd := NewForwarder(NewRegistry())
	m := mission.New(mission.WithPublisher(fwd))
	a := m.Spawn("dev-1", "Developer", nil, "default")
	task := m.CreateTask("Fix login", "", mission.PriorityLow)

	fwd.mu.Lock()
	require.Len(t, fwd.last, 2)
	fwd.mu.Unlock()

	require.NoError(t, m.DeleteTask(task.ID))
	require.NoError(t, m.DeleteAgent(a.ID))

	fwd.mu.Lock()
	defer fwd.mu.Unlock()
	require.Empty(t, fwd.last)
}

func TestForwarder_dropsWhenFull(t *testing.T) {
	fwd := NewForwarder(NewRegistry())
	for i := 0; i < forwardBuffer+5; i++ {
		id := mission.NewTask("t", "", mission.PriorityLow).ID
		fwd.Publish(mission.Event{Type: mission.EventTaskUpdate, TaskID: &id, Status: string(mission.TaskDone)})
	}
	fwd.Publish(mission.Event{Type: mission.EventMessage})
	require.EqualValues(t, 5, fwd.Dropped())
}

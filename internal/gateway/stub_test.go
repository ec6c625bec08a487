package gateway

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestStub_lifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewStub()

	if _, err := s.Spawn(ctx, SpawnRequest{}); !errors.Is(err, ErrSpawnFailed) {
		t.Fatalf("empty task: err = %v", err)
	}
	resp, err := s.Spawn(ctx, SpawnRequest{Task: "work", SystemPrompt: "sys", Label: "mission-control:1"})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	sessions, _ := s.ListSessions(ctx, DefaultSessionKinds, 0)
	if len(sessions) != 1 || !sessions[0].Active() || sessions[0].Key != resp.SessionKey {
		t.Fatalf("sessions = %+v", sessions)
	}
	if other, _ := s.ListSessions(ctx, []string{"main"}, 0); len(other) != 0 {
		t.Fatalf("kind filter ignored: %+v", other)
	}

	if _, err := s.SendMessage(ctx, resp.SessionKey, "status?"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	hist, _ := s.History(ctx, resp.SessionKey, 1)
	if len(hist) != 1 || hist[0].Content != "status?" {
		t.Fatalf("History = %+v", hist)
	}

	if err := s.Stop(ctx, resp.SessionKey); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	sessions, _ = s.ListSessions(ctx, nil, 0)
	if sessions[0].Active() {
		t.Fatal("stopped session still active")
	}
	if err := s.Stop(ctx, "nope"); !errors.Is(err, ErrStopFailed) || !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Stop unknown: %v", err)
	}
}

func TestStub_SubscribeReplaysScript(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := &Stub{Script: []SessionEvent{ProgressEvent("one"), {Type: EventError, Data: `{"error":"boom"}`}}}
	resp, _ := s.Spawn(ctx, SpawnRequest{Task: "work"})

	var types []string
	if err := s.Subscribe(ctx, resp.SessionKey, func(ev SessionEvent) { types = append(types, ev.Type) }); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if len(types) != 2 || types[0] != EventProgress || types[1] != EventError {
		t.Fatalf("types = %v", types)
	}
	sessions, _ := s.ListSessions(ctx, nil, 0)
	if sessions[0].Status != "idle" {
		t.Fatalf("status after error = %q", sessions[0].Status)
	}
}

func TestStub_SubscribeStopsOnCancel(t *testing.T) {
	t.Parallel()
	s := &Stub{Delay: time.Hour}
	resp, _ := s.Spawn(context.Background(), SpawnRequest{Task: "work"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	if err := s.Subscribe(ctx, resp.SessionKey, func(SessionEvent) { called = true }); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if called {
		t.Fatal("event delivered after cancel")
	}
}

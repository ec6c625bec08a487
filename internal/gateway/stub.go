package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Stub is a deterministic in-process gateway. Spawned sessions are active
// until stopped; Subscribe replays Script with Delay between events.
type Stub struct {
	// Script is replayed to every subscriber; nil means DefaultScript.
	Script []SessionEvent
	// Delay is waited before each scripted event.
	Delay time.Duration

	mu       sync.Mutex
	seq      int
	sessions map[string]*stubSession
}

type stubSession struct {
	info    SessionInfo
	history []HistoryMessage
}

var _ Gateway = (*Stub)(nil)

// DefaultScript reports one progress update and then completes.
func DefaultScript() []SessionEvent {
	return []SessionEvent{
		{Type: EventProgress, Data: `{"message":"Stub agent started working"}`},
		{Type: EventComplete, Data: `{"message":"Stub agent finished"}`},
	}
}

func NewStub() *Stub { return &Stub{} }

func (s *Stub) Health(context.Context) error { return nil }

func (s *Stub) ListSessions(_ context.Context, kinds []string, limit int) ([]SessionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}
	var out []SessionInfo
	for _, sess := range s.sessions {
		if len(want) > 0 && !want[sess.info.Kind] {
			continue
		}
		out = append(out, sess.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Stub) Spawn(_ context.Context, req SpawnRequest) (SpawnResponse, error) {
	if req.Task == "" {
		return SpawnResponse{}, fmt.Errorf("%w: empty task", ErrSpawnFailed)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions == nil {
		s.sessions = make(map[string]*stubSession)
	}
	s.seq++
	now := time.Now().UTC()
	key := fmt.Sprintf("stub:%04d", s.seq)
	s.sessions[key] = &stubSession{
		info: SessionInfo{
			ID: fmt.Sprintf("sess-%04d", s.seq), Key: key, Kind: "subagent",
			Label: req.Label, Model: req.Model, CreatedAt: &now, LastActivity: &now, Status: "active",
		},
		history: []HistoryMessage{{ID: "h1", Role: "system", Content: req.SystemPrompt, Timestamp: &now}},
	}
	return SpawnResponse{SessionKey: key, SessionID: s.sessions[key].info.ID, Status: "active"}, nil
}

func (s *Stub) session(key string) (*stubSession, error) {
	sess, ok := s.sessions[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, key)
	}
	return sess, nil
}

func (s *Stub) SendMessage(_ context.Context, sessionKey, message string) (MessageResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.session(sessionKey)
	if err != nil {
		return MessageResponse{}, fmt.Errorf("%w: %w", ErrMessageFailed, err)
	}
	now := time.Now().UTC()
	id := fmt.Sprintf("h%d", len(sess.history)+1)
	sess.history = append(sess.history, HistoryMessage{ID: id, Role: "user", Content: message, Timestamp: &now})
	sess.info.LastActivity = &now
	return MessageResponse{Success: true, MessageID: id}, nil
}

func (s *Stub) History(_ context.Context, sessionKey string, limit int) ([]HistoryMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.session(sessionKey)
	if err != nil {
		return nil, err
	}
	h := sess.history
	if limit > 0 && len(h) > limit {
		h = h[len(h)-limit:]
	}
	return append([]HistoryMessage(nil), h...), nil
}

func (s *Stub) Stop(_ context.Context, sessionKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.session(sessionKey)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStopFailed, err)
	}
	sess.info.Status = "stopped"
	return nil
}

// SetStatus overrides a session's status, e.g. to simulate an idle agent.
func (s *Stub) SetStatus(sessionKey, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.session(sessionKey)
	if err != nil {
		return err
	}
	sess.info.Status = status
	return nil
}

func (s *Stub) Subscribe(ctx context.Context, sessionKey string, fn func(SessionEvent)) error {
	s.mu.Lock()
	_, err := s.session(sessionKey)
	script := s.Script
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	if script == nil {
		script = DefaultScript()
	}
	for _, ev := range script {
		if s.Delay > 0 {
			t := time.NewTimer(s.Delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil
			case <-t.C:
			}
		} else if ctx.Err() != nil {
			return nil
		}
		ev.Timestamp = time.Now().UTC()
		fn(ev)
		if ev.Type == EventComplete || ev.Type == EventError {
			_ = s.SetStatus(sessionKey, "idle")
		}
	}
	return nil
}

// ProgressEvent builds a progress event carrying message.
func ProgressEvent(message string) SessionEvent {
	b, _ := json.Marshal(map[string]string{"message": message})
	return SessionEvent{Type: EventProgress, Data: string(b), Timestamp: time.Now().UTC()}
}

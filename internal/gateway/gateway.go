// Package gateway talks to the agent gateway that hosts spawned agent sessions.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/ankittk/missioncontrol/internal/mission"
)

// DefaultURL is where a locally running gateway listens.
const DefaultURL = "http://localhost:18789"

// Session kinds the coordinator refreshes.
var DefaultSessionKinds = []string{"isolated", "subagent"}

var (
	ErrNotConnected    = errors.New("not connected to gateway")
	ErrInvalidResponse = errors.New("invalid response from gateway")
	ErrSpawnFailed     = errors.New("failed to spawn agent")
	ErrMessageFailed   = errors.New("failed to send message")
	ErrStopFailed      = errors.New("failed to stop session")
	ErrSessionNotFound = errors.New("session not found")
	ErrSubscribeFailed = errors.New("failed to subscribe to session events")
)

// Gateway is the agent-hosting collaborator. Implementations: *HTTPClient,
// the gRPC client in gateway/grpc, and *Stub.
type Gateway interface {
	Health(ctx context.Context) error
	ListSessions(ctx context.Context, kinds []string, limit int) ([]SessionInfo, error)
	Spawn(ctx context.Context, req SpawnRequest) (SpawnResponse, error)
	SendMessage(ctx context.Context, sessionKey, message string) (MessageResponse, error)
	History(ctx context.Context, sessionKey string, limit int) ([]HistoryMessage, error)
	Stop(ctx context.Context, sessionKey string) error
	// Subscribe delivers session events to fn until the stream ends or ctx is done.
	Subscribe(ctx context.Context, sessionKey string, fn func(SessionEvent)) error
}

// SessionInfo describes one gateway session.
type SessionInfo struct {
	ID           string     `json:"id"`
	Key          string     `json:"key"`
	Kind         string     `json:"kind"`
	Label        string     `json:"label,omitempty"`
	Model        string     `json:"model,omitempty"`
	CreatedAt    *time.Time `json:"created_at,omitempty"`
	LastActivity *time.Time `json:"last_activity,omitempty"`
	Status       string     `json:"status,omitempty"`
}

// Active reports whether the gateway considers the session running.
func (s SessionInfo) Active() bool { return s.Status == "active" }

// SpawnRequest asks the gateway to start an agent session.
type SpawnRequest struct {
	Task         string   `json:"task"`
	AgentID      string   `json:"agent_id,omitempty"`
	Model        string   `json:"model,omitempty"`
	Label        string   `json:"label,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
	SystemPrompt string   `json:"system_prompt,omitempty"`
}

// NewSpawnRequest builds the request for spawning cfg to work on task.
func NewSpawnRequest(task mission.Task, cfg mission.SpawnConfig) SpawnRequest {
	model := cfg.Model
	if model == "" {
		model = mission.DefaultModel
	}
	return SpawnRequest{
		Task:         cfg.Prompt(),
		AgentID:      cfg.Name,
		Model:        model,
		Label:        "mission-control:" + strings.ToUpper(task.ID.String()[:8]),
		Capabilities: append([]string(nil), cfg.Capabilities...),
		SystemPrompt: cfg.SystemPrompt(),
	}
}

type SpawnResponse struct {
	SessionKey string `json:"session_key"`
	SessionID  string `json:"session_id"`
	Status     string `json:"status"`
}

type MessageResponse struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
}

type HistoryMessage struct {
	ID        string     `json:"id"`
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// Session event types the coordinator reacts to.
const (
	EventProgress = "progress"
	EventComplete = "complete"
	EventError    = "error"
)

// SessionEvent is one server-sent event from a session. Data is the raw payload.
type SessionEvent struct {
	Type      string    `json:"type"`
	Data      string    `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// ProgressMessage extracts the "message" field of a progress payload.
func (e SessionEvent) ProgressMessage() (string, bool) {
	var body struct {
		Message *string `json:"message"`
	}
	if err := json.Unmarshal([]byte(e.Data), &body); err != nil || body.Message == nil {
		return "", false
	}
	return *body.Message, true
}

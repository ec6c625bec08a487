package mission

import (
	"time"

	"github.com/google/uuid"
)

// AgentMessage is an immutable entry on the inter-agent bus. A nil ToAgent is a broadcast.
type AgentMessage struct {
	ID        uuid.UUID   `json:"id"`
	FromAgent uuid.UUID   `json:"from_agent"`
	ToAgent   *uuid.UUID  `json:"to_agent,omitempty"`
	Message   string      `json:"message"`
	Timestamp time.Time   `json:"timestamp"`
	Type      MessageType `json:"message_type"`
}

// IsBroadcast reports whether the message has no recipient.
func (m AgentMessage) IsBroadcast() bool { return m.ToAgent == nil }

// Involves reports whether agentID sent or received m. Broadcasts involve everyone.
func (m AgentMessage) Involves(agentID uuid.UUID) bool {
	return m.FromAgent == agentID || m.ToAgent == nil || *m.ToAgent == agentID
}

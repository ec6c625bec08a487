package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ankittk/missioncontrol/internal/mission"
)

// Rows keep list-valued fields as JSON text and timestamps as Unix nanoseconds
// so both drivers share one column layout.

// AgentRow is the column form of mission.Agent.
type AgentRow struct {
	ID                  string
	Name                string
	Role                string
	SessionKey          *string
	Status              string
	CurrentTask         *string
	Capabilities        string
	CreatedAt           int64
	LastActivity        int64
	Model               string
	TotalTasksCompleted int
}

// TaskRow is the column form of mission.Task.
type TaskRow struct {
	ID            string
	Title         string
	Description   string
	Status        string
	AssignedAgent *string
	CreatedAt     int64
	UpdatedAt     int64
	PlanningQA    string
	Deliverables  string
	Priority      string
	Tags          string
}

// MessageRow is the column form of mission.AgentMessage.
type MessageRow struct {
	ID        string
	FromAgent string
	ToAgent   *string
	Message   string
	Timestamp int64
	Type      string
}

func Nanos(t time.Time) int64 { return t.UTC().UnixNano() }

func FromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

func encodeList(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeList(s string, v any) error {
	if s == "" || s == "null" {
		return nil
	}
	return json.Unmarshal([]byte(s), v)
}

func uuidPtrString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

func parseUUIDPtr(s *string) (*uuid.UUID, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(*s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func AgentToRow(a mission.Agent) (AgentRow, error) {
	caps, err := encodeList(a.Capabilities)
	if err != nil {
		return AgentRow{}, fmt.Errorf("encode capabilities: %w", err)
	}
	return AgentRow{
		ID:                  a.ID.String(),
		Name:                a.Name,
		Role:                a.Role,
		SessionKey:          a.SessionKey,
		Status:              string(a.Status),
		CurrentTask:         uuidPtrString(a.CurrentTask),
		Capabilities:        caps,
		CreatedAt:           Nanos(a.CreatedAt),
		LastActivity:        Nanos(a.LastActivity),
		Model:               a.Model,
		TotalTasksCompleted: a.TotalTasksCompleted,
	}, nil
}

func (r AgentRow) Agent() (mission.Agent, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return mission.Agent{}, fmt.Errorf("agent id %q: %w", r.ID, err)
	}
	status, err := mission.ParseAgentStatus(r.Status)
	if err != nil {
		return mission.Agent{}, err
	}
	cur, err := parseUUIDPtr(r.CurrentTask)
	if err != nil {
		return mission.Agent{}, fmt.Errorf("agent %s current task: %w", r.ID, err)
	}
	a := mission.Agent{
		ID:                  id,
		Name:                r.Name,
		Role:                r.Role,
		SessionKey:          r.SessionKey,
		Status:              status,
		CurrentTask:         cur,
		CreatedAt:           FromNanos(r.CreatedAt),
		LastActivity:        FromNanos(r.LastActivity),
		Model:               r.Model,
		TotalTasksCompleted: r.TotalTasksCompleted,
	}
	if err := decodeList(r.Capabilities, &a.Capabilities); err != nil {
		return mission.Agent{}, fmt.Errorf("agent %s capabilities: %w", r.ID, err)
	}
	return a, nil
}

func TaskToRow(t mission.Task) (TaskRow, error) {
	qa, err := encodeList(t.PlanningQA)
	if err != nil {
		return TaskRow{}, fmt.Errorf("encode planning qa: %w", err)
	}
	dl, err := encodeList(t.Deliverables)
	if err != nil {
		return TaskRow{}, fmt.Errorf("encode deliverables: %w", err)
	}
	tags, err := encodeList(t.Tags)
	if err != nil {
		return TaskRow{}, fmt.Errorf("encode tags: %w", err)
	}
	return TaskRow{
		ID:            t.ID.String(),
		Title:         t.Title,
		Description:   t.Description,
		Status:        string(t.Status),
		AssignedAgent: t.AssignedAgent,
		CreatedAt:     Nanos(t.CreatedAt),
		UpdatedAt:     Nanos(t.UpdatedAt),
		PlanningQA:    qa,
		Deliverables:  dl,
		Priority:      string(t.Priority),
		Tags:          tags,
	}, nil
}

func (r TaskRow) Task() (mission.Task, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return mission.Task{}, fmt.Errorf("task id %q: %w", r.ID, err)
	}
	status, err := mission.ParseTaskStatus(r.Status)
	if err != nil {
		return mission.Task{}, err
	}
	prio, err := mission.ParseTaskPriority(r.Priority)
	if err != nil {
		return mission.Task{}, err
	}
	t := mission.Task{
		ID:            id,
		Title:         r.Title,
		Description:   r.Description,
		Status:        status,
		AssignedAgent: r.AssignedAgent,
		CreatedAt:     FromNanos(r.CreatedAt),
		UpdatedAt:     FromNanos(r.UpdatedAt),
		Priority:      prio,
	}
	if err := decodeList(r.PlanningQA, &t.PlanningQA); err != nil {
		return mission.Task{}, fmt.Errorf("task %s planning qa: %w", r.ID, err)
	}
	if err := decodeList(r.Deliverables, &t.Deliverables); err != nil {
		return mission.Task{}, fmt.Errorf("task %s deliverables: %w", r.ID, err)
	}
	if err := decodeList(r.Tags, &t.Tags); err != nil {
		return mission.Task{}, fmt.Errorf("task %s tags: %w", r.ID, err)
	}
	return t, nil
}

func MessageToRow(m mission.AgentMessage) MessageRow {
	return MessageRow{
		ID:        m.ID.String(),
		FromAgent: m.FromAgent.String(),
		ToAgent:   uuidPtrString(m.ToAgent),
		Message:   m.Message,
		Timestamp: Nanos(m.Timestamp),
		Type:      string(m.Type),
	}
}

func (r MessageRow) AgentMessage() (mission.AgentMessage, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return mission.AgentMessage{}, fmt.Errorf("message id %q: %w", r.ID, err)
	}
	from, err := uuid.Parse(r.FromAgent)
	if err != nil {
		return mission.AgentMessage{}, fmt.Errorf("message %s sender: %w", r.ID, err)
	}
	to, err := parseUUIDPtr(r.ToAgent)
	if err != nil {
		return mission.AgentMessage{}, fmt.Errorf("message %s recipient: %w", r.ID, err)
	}
	typ, err := mission.ParseMessageType(r.Type)
	if err != nil {
		return mission.AgentMessage{}, err
	}
	return mission.AgentMessage{
		ID:        id,
		FromAgent: from,
		ToAgent:   to,
		Message:   r.Message,
		Timestamp: FromNanos(r.Timestamp),
		Type:      typ,
	}, nil
}

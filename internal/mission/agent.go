package mission

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultModel is the model identifier used when a spawn request does not name one.
const DefaultModel = "sonnet"

// Clock returns the current time. Entities and missions use it for every timestamp.
type Clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }

// Agent is one AI worker. CurrentTask refers to a task by id only.
type Agent struct {
	ID                  uuid.UUID   `json:"id"`
	Name                string      `json:"name"`
	Role                string      `json:"role"`
	SessionKey          *string     `json:"session_key,omitempty"`
	Status              AgentStatus `json:"status"`
	CurrentTask         *uuid.UUID  `json:"current_task,omitempty"`
	Capabilities        []string    `json:"capabilities"`
	CreatedAt           time.Time   `json:"created_at"`
	LastActivity        time.Time   `json:"last_activity"`
	Model               string      `json:"model"`
	TotalTasksCompleted int         `json:"total_tasks_completed"`

	clock Clock
}

// NewAgent returns an idle agent with a fresh id.
func NewAgent(name, role string, capabilities []string, model string) *Agent {
	return newAgent(systemClock, name, role, capabilities, model)
}

func newAgent(clock Clock, name, role string, capabilities []string, model string) *Agent {
	if model == "" {
		model = DefaultModel
	}
	now := clock()
	return &Agent{
		ID:           uuid.New(),
		Name:         name,
		Role:         role,
		Status:       AgentIdle,
		Capabilities: append([]string(nil), capabilities...),
		CreatedAt:    now,
		LastActivity: now,
		Model:        model,
		clock:        clock,
	}
}

// SetClock replaces the time source used by Touch.
func (a *Agent) SetClock(c Clock) { a.clock = c }

func (a *Agent) now() time.Time {
	if a.clock != nil {
		return a.clock()
	}
	return systemClock()
}

// mutate applies fn and stamps LastActivity. Every mutator goes through here.
func (a *Agent) mutate(fn func()) {
	if fn != nil {
		fn()
	}
	a.LastActivity = a.now()
}

// Touch bumps LastActivity and nothing else.
func (a *Agent) Touch() { a.mutate(nil) }

// UpdateStatus sets any status from any other.
func (a *Agent) UpdateStatus(s AgentStatus) {
	a.mutate(func() { a.Status = s })
}

// AssignTask makes the agent WORKING on taskID regardless of its previous status.
func (a *Agent) AssignTask(taskID uuid.UUID) {
	a.mutate(func() {
		id := taskID
		a.CurrentTask = &id
		a.Status = AgentWorking
	})
}

// CompleteTask clears the current task, returns the agent to IDLE and counts the completion.
func (a *Agent) CompleteTask() {
	a.mutate(func() {
		a.CurrentTask = nil
		a.Status = AgentIdle
		a.TotalTasksCompleted++
	})
}

// IsAvailable is true only for an idle agent without a current task.
func (a *Agent) IsAvailable() bool {
	return a.Status == AgentIdle && a.CurrentTask == nil
}

func (a *Agent) ActivityDescription() string {
	switch a.Status {
	case AgentIdle:
		return "Waiting for tasks"
	case AgentWorking:
		return "Working on task"
	case AgentWaiting:
		return "Waiting for input"
	case AgentError:
		return "Encountered an error"
	case AgentOffline:
		return "Offline"
	}
	panic(unknownEnum("agent status", string(a.Status)))
}

func (a *Agent) StatusColor() string { return a.Status.Color() }

func (a *Agent) RoleIcon() string { return RoleIcon(a.Role) }

// RoleIcon maps a free-text role onto an icon name by keyword.
func RoleIcon(role string) string {
	r := strings.ToLower(role)
	switch {
	case strings.Contains(r, "research"):
		return "magnifyingglass"
	case strings.Contains(r, "code"), strings.Contains(r, "developer"):
		return "chevron.left.forwardslash.chevron.right"
	case strings.Contains(r, "writ"):
		return "pencil"
	case strings.Contains(r, "design"):
		return "paintbrush"
	case strings.Contains(r, "data"), strings.Contains(r, "analyst"):
		return "chart.bar"
	case strings.Contains(r, "test"), strings.Contains(r, "qa"):
		return "checkmark.seal"
	case strings.Contains(r, "coordinat"), strings.Contains(r, "manager"):
		return "person.2"
	default:
		return "cpu"
	}
}

// clone returns a deep copy that shares no slices or pointers with a.
func (a *Agent) clone() Agent {
	c := *a
	c.Capabilities = append([]string(nil), a.Capabilities...)
	if a.SessionKey != nil {
		k := *a.SessionKey
		c.SessionKey = &k
	}
	if a.CurrentTask != nil {
		id := *a.CurrentTask
		c.CurrentTask = &id
	}
	return c
}

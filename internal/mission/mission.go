// Package mission holds the Mission Control state model: agents, tasks and
// the inter-agent message log, owned by a Mission and cross-referenced by id.
package mission

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrAgentNotFound = errors.New("agent not found")
	ErrTaskNotFound  = errors.New("task not found")
)

// RecentMessageLimit caps the in-memory message log.
const RecentMessageLimit = 100

// Event types published on every mission mutation.
const (
	EventAgentUpdate  = "agent_update"
	EventAgentDeleted = "agent_deleted"
	EventTaskUpdate   = "task_update"
	EventTaskDeleted  = "task_deleted"
	EventMessage      = "message"
)

// Event describes one mission mutation for subscribers (SSE, metrics).
type Event struct {
	Type    string        `json:"type"`
	AgentID *uuid.UUID    `json:"agent_id,omitempty"`
	TaskID  *uuid.UUID    `json:"task_id,omitempty"`
	Status  string        `json:"status,omitempty"`
	Message *AgentMessage `json:"message,omitempty"`
}

// Publisher receives mission events. It is called with the mission lock held
// and must not call back into the mission.
type Publisher interface {
	Publish(Event)
}

// Publishers fans each event out to every publisher in order.
type Publishers []Publisher

func (ps Publishers) Publish(ev Event) {
	for _, p := range ps {
		p.Publish(ev)
	}
}

// Snapshot is the persisted form of a mission.
type Snapshot struct {
	Agents   []Agent        `json:"agents"`
	Tasks    []Task         `json:"tasks"`
	Messages []AgentMessage `json:"messages"`
}

// Statistics summarises the mission for dashboards.
type Statistics struct {
	Total        int `json:"total"`
	Planning     int `json:"planning"`
	Inbox        int `json:"inbox"`
	Assigned     int `json:"assigned"`
	InProgress   int `json:"in_progress"`
	Testing      int `json:"testing"`
	Review       int `json:"review"`
	Done         int `json:"done"`
	ActiveAgents int `json:"active_agents"`
	TotalAgents  int `json:"total_agents"`
}

// CompletionRate is Done/Total, 0 for an empty mission.
func (s Statistics) CompletionRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Done) / float64(s.Total)
}

// Mission owns agents, tasks and messages. One mutex serialises every
// mutation so the touch that follows each change is never interleaved.
type Mission struct {
	mu       sync.Mutex
	clock    Clock
	pub      Publisher
	agents   map[uuid.UUID]*Agent
	tasks    map[uuid.UUID]*Task
	messages []AgentMessage // newest first
}

// Option configures a Mission.
type Option func(*Mission)

func WithClock(c Clock) Option {
	return func(m *Mission) {
		if c != nil {
			m.clock = c
		}
	}
}

func WithPublisher(p Publisher) Option {
	return func(m *Mission) { m.pub = p }
}

func New(opts ...Option) *Mission {
	m := &Mission{
		clock:  systemClock,
		agents: make(map[uuid.UUID]*Agent),
		tasks:  make(map[uuid.UUID]*Task),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Mission) publish(ev Event) {
	if m.pub != nil {
		m.pub.Publish(ev)
	}
}

func agentEvent(typ string, a *Agent) Event {
	id := a.ID
	return Event{Type: typ, AgentID: &id, Status: string(a.Status)}
}

func taskEvent(typ string, t *Task) Event {
	id := t.ID
	return Event{Type: typ, TaskID: &id, Status: string(t.Status)}
}

// Spawn creates an idle agent owned by the mission.
func (m *Mission) Spawn(name, role string, capabilities []string, model string) Agent {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := newAgent(m.clock, name, role, capabilities, model)
	m.agents[a.ID] = a
	m.publish(agentEvent(EventAgentUpdate, a))
	return a.clone()
}

// AddAgent stores a copy of a (replacing any agent with the same id).
func (m *Mission) AddAgent(a Agent) Agent {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := a.clone()
	c.clock = m.clock
	m.agents[c.ID] = &c
	m.publish(agentEvent(EventAgentUpdate, &c))
	return c.clone()
}

// CreateTask adds a new task in PLANNING.
func (m *Mission) CreateTask(title, description string, priority TaskPriority) Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := newTask(m.clock, title, description, priority)
	m.tasks[t.ID] = t
	m.publish(taskEvent(EventTaskUpdate, t))
	return t.clone()
}

// AddTask stores a copy of t (replacing any task with the same id).
func (m *Mission) AddTask(t Task) Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := t.clone()
	c.clock = m.clock
	m.tasks[c.ID] = &c
	m.publish(taskEvent(EventTaskUpdate, &c))
	return c.clone()
}

func (m *Mission) Agent(id uuid.UUID) (Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
	if !ok {
		return Agent{}, fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}
	return a.clone(), nil
}

func (m *Mission) Task(id uuid.UUID) (Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return t.clone(), nil
}

// AgentBySessionKey finds the agent bound to a gateway session.
func (m *Mission) AgentBySessionKey(key string) (Agent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.agents {
		if a.SessionKey != nil && *a.SessionKey == key {
			return a.clone(), true
		}
	}
	return Agent{}, false
}

// Agents returns every agent ordered by creation time.
func (m *Mission) Agents() []Agent {
	return m.filterAgents(func(*Agent) bool { return true })
}

func (m *Mission) AvailableAgents() []Agent {
	return m.filterAgents((*Agent).IsAvailable)
}

func (m *Mission) WorkingAgents() []Agent {
	return m.filterAgents(func(a *Agent) bool { return a.Status == AgentWorking })
}

func (m *Mission) filterAgents(keep func(*Agent) bool) []Agent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.agentsLocked(keep)
}

func (m *Mission) agentsLocked(keep func(*Agent) bool) []Agent {
	out := make([]Agent, 0, len(m.agents))
	for _, a := range m.agents {
		if keep(a) {
			out = append(out, a.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Tasks returns every task ordered by creation time.
func (m *Mission) Tasks() []Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tasksLocked()
}

func (m *Mission) tasksLocked() []Task {
	out := make([]Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// TasksByStatus returns the tasks in status s, most recently updated first.
func (m *Mission) TasksByStatus(s TaskStatus) []Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Task
	for _, t := range m.tasks {
		if t.Status == s {
			out = append(out, t.clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out
}

// UpdateAgent applies fn to the stored agent under the mission lock. fn
// should use the Agent mutators so LastActivity is stamped.
func (m *Mission) UpdateAgent(id uuid.UUID, fn func(*Agent)) (Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
	if !ok {
		return Agent{}, fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}
	fn(a)
	m.publish(agentEvent(EventAgentUpdate, a))
	return a.clone(), nil
}

// UpdateTask applies fn to the stored task under the mission lock.
func (m *Mission) UpdateTask(id uuid.UUID, fn func(*Task)) (Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	fn(t)
	m.publish(taskEvent(EventTaskUpdate, t))
	return t.clone(), nil
}

// AssignTask assigns the task to the agent on both sides: the task records
// the agent's name and becomes ASSIGNED, the agent records the task id and
// becomes WORKING. Nothing changes unless both exist.
func (m *Mission) AssignTask(taskID, agentID uuid.UUID) (Task, Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return Task{}, Agent{}, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	a, ok := m.agents[agentID]
	if !ok {
		return Task{}, Agent{}, fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}
	t.Assign(a.Name)
	a.AssignTask(t.ID)
	m.publish(taskEvent(EventTaskUpdate, t))
	m.publish(agentEvent(EventAgentUpdate, a))
	return t.clone(), a.clone(), nil
}

// CompleteAgentTask completes the agent's current task. If the agent had a
// task that still exists and next is non-empty, the task moves to next.
// The returned task is nil when no task was moved.
func (m *Mission) CompleteAgentTask(agentID uuid.UUID, next TaskStatus) (Agent, *Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[agentID]
	if !ok {
		return Agent{}, nil, fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}
	var moved *Task
	if a.CurrentTask != nil && next != "" {
		if t, ok := m.tasks[*a.CurrentTask]; ok {
			t.MoveTo(next)
			m.publish(taskEvent(EventTaskUpdate, t))
			c := t.clone()
			moved = &c
		}
	}
	a.CompleteTask()
	m.publish(agentEvent(EventAgentUpdate, a))
	return a.clone(), moved, nil
}

func (m *Mission) DeleteAgent(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}
	delete(m.agents, id)
	m.publish(agentEvent(EventAgentDeleted, a))
	return nil
}

func (m *Mission) DeleteTask(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	delete(m.tasks, id)
	m.publish(taskEvent(EventTaskDeleted, t))
	return nil
}

// SendMessage appends a message to the log. A nil to broadcasts. Sender and
// recipient are not required to exist in the mission.
func (m *Mission) SendMessage(from uuid.UUID, to *uuid.UUID, text string, typ MessageType) AgentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if typ == "" {
		typ = MessageCommunication
	}
	msg := AgentMessage{
		ID:        uuid.New(),
		FromAgent: from,
		Message:   text,
		Timestamp: m.clock(),
		Type:      typ,
	}
	if to != nil {
		id := *to
		msg.ToAgent = &id
	}
	m.appendMessage(msg)
	m.publish(Event{Type: EventMessage, AgentID: &msg.FromAgent, Message: &msg})
	return msg
}

func (m *Mission) appendMessage(msg AgentMessage) {
	m.messages = append([]AgentMessage{msg}, m.messages...)
	if len(m.messages) > RecentMessageLimit {
		m.messages = m.messages[:RecentMessageLimit]
	}
}

// Messages returns up to limit messages, newest first. limit <= 0 means all retained.
func (m *Mission) Messages(limit int) []AgentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.messages)
	if limit > 0 && limit < n {
		n = limit
	}
	return append([]AgentMessage(nil), m.messages[:n]...)
}

// MessagesFor returns messages sent by or to agentID (broadcasts included), newest first.
func (m *Mission) MessagesFor(agentID uuid.UUID, limit int) []AgentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []AgentMessage
	for _, msg := range m.messages {
		if limit > 0 && len(out) >= limit {
			break
		}
		if msg.Involves(agentID) {
			out = append(out, msg)
		}
	}
	return out
}

func (m *Mission) Statistics() Statistics {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Statistics{Total: len(m.tasks), TotalAgents: len(m.agents)}
	for _, t := range m.tasks {
		switch t.Status {
		case TaskPlanning:
			s.Planning++
		case TaskInbox:
			s.Inbox++
		case TaskAssigned:
			s.Assigned++
		case TaskInProgress:
			s.InProgress++
		case TaskTesting:
			s.Testing++
		case TaskReview:
			s.Review++
		case TaskDone:
			s.Done++
		}
	}
	for _, a := range m.agents {
		if a.Status == AgentWorking {
			s.ActiveAgents++
		}
	}
	return s
}

// Snapshot copies the whole mission for persistence.
// The copy is taken under one lock so agents and tasks agree.
func (m *Mission) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Agents:   m.agentsLocked(func(*Agent) bool { return true }),
		Tasks:    m.tasksLocked(),
		Messages: append([]AgentMessage(nil), m.messages...),
	}
}

// Restore replaces the mission contents with snap. Messages are expected newest first.
func (m *Mission) Restore(snap Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agents = make(map[uuid.UUID]*Agent, len(snap.Agents))
	for _, a := range snap.Agents {
		c := a.clone()
		c.clock = m.clock
		m.agents[c.ID] = &c
	}
	m.tasks = make(map[uuid.UUID]*Task, len(snap.Tasks))
	for _, t := range snap.Tasks {
		c := t.clone()
		c.clock = m.clock
		m.tasks[c.ID] = &c
	}
	m.messages = append([]AgentMessage(nil), snap.Messages...)
	if len(m.messages) > RecentMessageLimit {
		m.messages = m.messages[:RecentMessageLimit]
	}
}

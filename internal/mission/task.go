package mission

import (
	"time"

	"github.com/google/uuid"
)

// Task is a unit of work moving through the pipeline. Q&A pairs and
// deliverables are append-only.
type Task struct {
	ID            uuid.UUID     `json:"id"`
	Title         string        `json:"title"`
	Description   string        `json:"description"`
	Status        TaskStatus    `json:"status"`
	AssignedAgent *string       `json:"assigned_agent,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	PlanningQA    []QAPair      `json:"planning_qa"`
	Deliverables  []Deliverable `json:"deliverables"`
	Priority      TaskPriority  `json:"priority"`
	Tags          []string      `json:"tags"`

	clock Clock
}

// NewTask returns a task in PLANNING.
func NewTask(title, description string, priority TaskPriority) *Task {
	return newTask(systemClock, title, description, priority)
}

func newTask(clock Clock, title, description string, priority TaskPriority) *Task {
	if priority == "" {
		priority = PriorityMedium
	}
	now := clock()
	return &Task{
		ID:          uuid.New(),
		Title:       title,
		Description: description,
		Status:      TaskPlanning,
		CreatedAt:   now,
		UpdatedAt:   now,
		Priority:    priority,
		clock:       clock,
	}
}

func (t *Task) SetClock(c Clock) { t.clock = c }

func (t *Task) now() time.Time {
	if t.clock != nil {
		return t.clock()
	}
	return systemClock()
}

// mutate applies fn and refreshes UpdatedAt.
func (t *Task) mutate(fn func()) {
	if fn != nil {
		fn()
	}
	t.UpdatedAt = t.now()
}

func (t *Task) Touch() { t.mutate(nil) }

// MoveTo sets the status unconditionally; backwards and skipping moves are allowed.
func (t *Task) MoveTo(s TaskStatus) {
	t.mutate(func() { t.Status = s })
}

// Assign records the agent name and forces the task to ASSIGNED.
func (t *Task) Assign(agentName string) {
	t.mutate(func() {
		name := agentName
		t.AssignedAgent = &name
		t.Status = TaskAssigned
	})
}

func (t *Task) AddQA(qa QAPair) {
	t.mutate(func() { t.PlanningQA = append(t.PlanningQA, qa) })
}

func (t *Task) AddDeliverable(d Deliverable) {
	t.mutate(func() { t.Deliverables = append(t.Deliverables, d) })
}

func (t *Task) StatusColor() string { return t.Status.Color() }

func (t *Task) PriorityIcon() string { return t.Priority.Icon() }

func (t *Task) clone() Task {
	c := *t
	if t.AssignedAgent != nil {
		n := *t.AssignedAgent
		c.AssignedAgent = &n
	}
	c.PlanningQA = append([]QAPair(nil), t.PlanningQA...)
	c.Deliverables = make([]Deliverable, len(t.Deliverables))
	for i, d := range t.Deliverables {
		c.Deliverables[i] = d.clone()
	}
	if t.Deliverables == nil {
		c.Deliverables = nil
	}
	c.Tags = append([]string(nil), t.Tags...)
	return c
}

// QAPair is a planning question and its (possibly empty) answer.
type QAPair struct {
	ID        uuid.UUID `json:"id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Timestamp time.Time `json:"timestamp"`
}

// NewQAPair returns a pair stamped with the current time.
func NewQAPair(question, answer string) QAPair {
	return QAPair{ID: uuid.New(), Question: question, Answer: answer, Timestamp: systemClock()}
}

func (q QAPair) IsAnswered() bool { return q.Answer != "" }

// Deliverable is an artifact produced for a task: inline content or a file path.
type Deliverable struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	Type      DeliverableType `json:"type"`
	Content   string          `json:"content"`
	FilePath  *string         `json:"file_path,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func NewDeliverable(name string, typ DeliverableType, content string, filePath *string) Deliverable {
	d := Deliverable{ID: uuid.New(), Name: name, Type: typ, Content: content, CreatedAt: systemClock()}
	if filePath != nil {
		p := *filePath
		d.FilePath = &p
	}
	return d
}

func (d Deliverable) clone() Deliverable {
	if d.FilePath != nil {
		p := *d.FilePath
		d.FilePath = &p
	}
	return d
}

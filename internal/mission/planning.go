package mission

import "strings"

// DefaultPlanningQuestions are asked, in order, for every new task.
var DefaultPlanningQuestions = []string{
	"What is the primary goal of this task?",
	"Who is the target audience or beneficiary?",
	"What are the key requirements or constraints?",
	"What deliverables are expected?",
	"What skills or capabilities are needed?",
}

// DefaultCapabilities are granted to agents spawned from NewSpawnConfig.
var DefaultCapabilities = []string{"web_search", "web_fetch", "read", "write"}

// Planner walks a fixed list of planning questions one answer at a time.
type Planner struct {
	pairs   []QAPair
	current int
}

// NewPlanner starts a planning dialogue; nil questions means DefaultPlanningQuestions.
func NewPlanner(questions []string) *Planner {
	if questions == nil {
		questions = DefaultPlanningQuestions
	}
	p := &Planner{pairs: make([]QAPair, len(questions))}
	for i, q := range questions {
		p.pairs[i] = NewQAPair(q, "")
	}
	return p
}

// Current returns the question awaiting an answer, or "" when planning is done.
func (p *Planner) Current() string {
	if p.Done() {
		return ""
	}
	return p.pairs[p.current].Question
}

// Answer records the answer to the current question and advances. It
// reports whether planning is complete afterwards.
func (p *Planner) Answer(answer string) bool {
	if p.Done() {
		return true
	}
	q := p.pairs[p.current]
	p.pairs[p.current] = QAPair{ID: q.ID, Question: q.Question, Answer: answer, Timestamp: systemClock()}
	p.current++
	return p.Done()
}

func (p *Planner) Done() bool { return p.current >= len(p.pairs) }

// Pairs returns the dialogue so far, answered or not.
func (p *Planner) Pairs() []QAPair {
	return append([]QAPair(nil), p.pairs...)
}

// DetermineRole guesses an agent role from keywords in a task description.
func DetermineRole(description string) string {
	d := strings.ToLower(description)
	switch {
	case strings.Contains(d, "research"), strings.Contains(d, "find"):
		return "Researcher"
	case strings.Contains(d, "code"), strings.Contains(d, "develop"):
		return "Developer"
	case strings.Contains(d, "write"), strings.Contains(d, "document"):
		return "Writer"
	case strings.Contains(d, "design"):
		return "Designer"
	case strings.Contains(d, "test"), strings.Contains(d, "qa"):
		return "Tester"
	default:
		return "Generalist"
	}
}

// NewSpawnConfig builds the default spawn configuration for a planned task.
func NewSpawnConfig(t Task) SpawnConfig {
	role := DetermineRole(t.Description)
	return SpawnConfig{
		Name:            role + "-" + strings.ToUpper(t.ID.String()[:8]),
		Role:            role,
		Model:           DefaultModel,
		Capabilities:    append([]string(nil), DefaultCapabilities...),
		TaskDescription: t.Description,
		PlanningContext: append([]QAPair(nil), t.PlanningQA...),
	}
}

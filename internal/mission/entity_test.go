package mission

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func frozen(t time.Time) Clock { return func() time.Time { return t } }

func TestAgent_IsAvailable(t *testing.T) {
	t.Parallel()
	taskID := uuid.New()
	for _, st := range AgentStatuses {
		for _, withTask := range []bool{false, true} {
			a := NewAgent("a", "r", nil, "")
			a.Status = st
			if withTask {
				a.CurrentTask = &taskID
			}
			want := st == AgentIdle && !withTask
			if got := a.IsAvailable(); got != want {
				t.Errorf("status=%s task=%v: IsAvailable=%v, want %v", st, withTask, got, want)
			}
		}
	}
}

func TestAgent_MutatorsStampActivity(t *testing.T) {
	t.Parallel()
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	a := newAgent(frozen(start), "a", "r", nil, "")
	later := start.Add(time.Minute)
	a.SetClock(frozen(later))

	a.UpdateStatus(AgentWaiting)
	if !a.LastActivity.Equal(later) {
		t.Fatalf("LastActivity = %v, want %v", a.LastActivity, later)
	}
	if !a.CreatedAt.Equal(start) {
		t.Fatalf("CreatedAt changed to %v", a.CreatedAt)
	}

	// Assigning overrides any prior status.
	a.UpdateStatus(AgentOffline)
	a.AssignTask(uuid.New())
	if a.Status != AgentWorking {
		t.Fatalf("status after assign = %s", a.Status)
	}
	a.CompleteTask()
	a.CompleteTask()
	if a.TotalTasksCompleted != 2 || a.Status != AgentIdle || a.CurrentTask != nil {
		t.Fatalf("after two completes: %+v", a)
	}
}

func TestAgent_Presentation(t *testing.T) {
	t.Parallel()
	for _, st := range AgentStatuses {
		a := NewAgent("a", "r", nil, "")
		a.Status = st
		if a.ActivityDescription() == "" || a.StatusColor() == "" {
			t.Errorf("%s: empty presentation", st)
		}
	}
	cases := map[string]string{
		"Senior Researcher": "magnifyingglass",
		"Developer":         "chevron.left.forwardslash.chevron.right",
		"Tech writer":       "pencil",
		"QA":                "checkmark.seal",
		"Data Analyst":      "chart.bar",
		"Coordinator":       "person.2",
		"Pilot":             "cpu",
	}
	for role, want := range cases {
		if got := RoleIcon(role); got != want {
			t.Errorf("RoleIcon(%q) = %q, want %q", role, got, want)
		}
	}
}

func TestTask_AppendOrderAndTouch(t *testing.T) {
	t.Parallel()
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	tk := newTask(frozen(start), "t", "d", "")
	if tk.Status != TaskPlanning || tk.Priority != PriorityMedium {
		t.Fatalf("defaults: status=%s priority=%s", tk.Status, tk.Priority)
	}

	for i, q := range []string{"one", "two", "three"} {
		tk.SetClock(frozen(start.Add(time.Duration(i+1) * time.Second)))
		tk.AddQA(NewQAPair(q, ""))
	}
	if len(tk.PlanningQA) != 3 || tk.PlanningQA[0].Question != "one" || tk.PlanningQA[2].Question != "three" {
		t.Fatalf("QA order: %+v", tk.PlanningQA)
	}
	if want := start.Add(3 * time.Second); !tk.UpdatedAt.Equal(want) {
		t.Fatalf("UpdatedAt = %v, want %v", tk.UpdatedAt, want)
	}

	path := "/tmp/report.md"
	tk.AddDeliverable(NewDeliverable("notes", DeliverableDocument, "x", nil))
	tk.AddDeliverable(NewDeliverable("report", DeliverableReport, "", &path))
	if tk.Deliverables[0].Name != "notes" || tk.Deliverables[1].Name != "report" {
		t.Fatalf("deliverable order: %+v", tk.Deliverables)
	}
	path = "changed"
	if *tk.Deliverables[1].FilePath != "/tmp/report.md" {
		t.Fatal("deliverable aliases caller's path")
	}

	tk.Assign("Rex")
	if tk.Status != TaskAssigned || tk.AssignedAgent == nil || *tk.AssignedAgent != "Rex" {
		t.Fatalf("after Assign: %+v", tk)
	}
	tk.MoveTo(TaskPlanning)
	if tk.Status != TaskPlanning {
		t.Fatal("backwards move rejected")
	}
}

func TestQAPair_IsAnswered(t *testing.T) {
	t.Parallel()
	if NewQAPair("q", "").IsAnswered() {
		t.Fatal("empty answer reported answered")
	}
	if !NewQAPair("q", "a").IsAnswered() {
		t.Fatal("answer not reported")
	}
}

func TestEnums_PresentationIsTotal(t *testing.T) {
	t.Parallel()
	for _, s := range AgentStatuses {
		if s.DisplayName() == "" || s.Color() == "" || s.Icon() == "" {
			t.Errorf("agent status %s", s)
		}
	}
	for _, s := range TaskStatuses {
		if s.DisplayName() == "" || s.Color() == "" || s.Icon() == "" {
			t.Errorf("task status %s", s)
		}
	}
	for _, p := range TaskPriorities {
		if p.DisplayName() == "" || p.Color() == "" || p.Icon() == "" {
			t.Errorf("priority %s", p)
		}
	}
	for _, d := range DeliverableTypes {
		if d.Icon() == "" {
			t.Errorf("deliverable type %s", d)
		}
	}
	for _, m := range MessageTypes {
		if m.Color() == "" || m.Icon() == "" {
			t.Errorf("message type %s", m)
		}
	}
}

func TestEnums_RejectUnknown(t *testing.T) {
	t.Parallel()
	var a Agent
	if err := json.Unmarshal([]byte(`{"status":"SLEEPING"}`), &a); err == nil {
		t.Fatal("expected error for unknown agent status")
	}
	var tk Task
	if err := json.Unmarshal([]byte(`{"status":"IN_PROGRESS","priority":"CRITICAL"}`), &tk); err == nil {
		t.Fatal("expected error for unknown priority")
	}
	var m AgentMessage
	if err := json.Unmarshal([]byte(`{"message_type":"GOSSIP"}`), &m); err == nil {
		t.Fatal("expected error for unknown message type")
	}
	if _, err := ParseTaskStatus("in_progress"); err == nil {
		t.Fatal("raw values are case sensitive")
	}
	if st, err := ParseTaskStatus("IN_PROGRESS"); err != nil || st != TaskInProgress {
		t.Fatalf("ParseTaskStatus: %v %v", st, err)
	}
}

func TestEnums_PanicOnHandBuiltValue(t *testing.T) {
	t.Parallel()
	defer func() {
		r := recover()
		if r == nil || !strings.Contains(r.(string), "GHOST") {
			t.Fatalf("recover = %v", r)
		}
	}()
	_ = AgentStatus("GHOST").DisplayName()
}

func TestPrompt_MinimalLayout(t *testing.T) {
	t.Parallel()
	c := SpawnConfig{Name: "Rex", Role: "researcher", TaskDescription: "Find facts"}
	want := "You are Rex, a specialized AI agent with the role: researcher.\n\n" +
		"Your task:\nFind facts\n\n" +
		"Please work autonomously and report your progress. When complete, provide a clear deliverable."
	if got := c.Prompt(); got != want {
		t.Fatalf("Prompt() =\n%q\nwant\n%q", got, want)
	}
}

func TestPrompt_Sections(t *testing.T) {
	t.Parallel()
	c := SpawnConfig{
		Name:            "Rex",
		Role:            "researcher",
		TaskDescription: "Find facts",
		Capabilities:    []string{"web-search"},
		PlanningContext: []QAPair{{Question: "Goal?", Answer: "Truth"}},
	}
	got := c.Prompt()
	for _, want := range []string{
		"\nPlanning Context:\nQ: Goal?\nA: Truth\n\n",
		"\nYour capabilities:\n- web-search\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q:\n%s", want, got)
		}
	}
	if strings.Index(got, "Planning Context") > strings.Index(got, "Your capabilities") {
		t.Error("planning context must precede capabilities")
	}
	if !strings.HasSuffix(got, "provide a clear deliverable.") {
		t.Error("closing line missing")
	}
	if sp := c.SystemPrompt(); strings.Count(sp, "\n") != 2 || !strings.Contains(sp, "Mission Control") {
		t.Errorf("SystemPrompt() = %q", sp)
	}
}

func TestPlanner(t *testing.T) {
	t.Parallel()
	p := NewPlanner(nil)
	if p.Current() != DefaultPlanningQuestions[0] {
		t.Fatalf("Current = %q", p.Current())
	}
	for i := range DefaultPlanningQuestions {
		done := p.Answer("a")
		if want := i == len(DefaultPlanningQuestions)-1; done != want {
			t.Fatalf("answer %d: done=%v", i, done)
		}
	}
	if p.Current() != "" || !p.Done() {
		t.Fatal("planner should be done")
	}
	for _, qa := range p.Pairs() {
		if !qa.IsAnswered() {
			t.Fatalf("unanswered pair %+v", qa)
		}
	}
}

func TestDetermineRoleAndSpawnConfig(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"Research the market":   "Researcher",
		"Develop a CLI":         "Developer",
		"Write the launch blog": "Writer",
		"Design a logo":         "Designer",
		"QA the release":        "Tester",
		"Plan the offsite":      "Generalist",
	}
	for desc, want := range cases {
		if got := DetermineRole(desc); got != want {
			t.Errorf("DetermineRole(%q) = %q, want %q", desc, got, want)
		}
	}

	tk := NewTask("t", "Research competitors", PriorityHigh)
	tk.AddQA(NewQAPair("Goal?", "Win"))
	cfg := NewSpawnConfig(*tk)
	if !strings.HasPrefix(cfg.Name, "Researcher-") || len(cfg.Name) != len("Researcher-")+8 {
		t.Fatalf("Name = %q", cfg.Name)
	}
	if suffix := strings.TrimPrefix(cfg.Name, "Researcher-"); suffix != strings.ToUpper(suffix) {
		t.Fatalf("suffix not upper case: %q", cfg.Name)
	}
	if cfg.Model != DefaultModel || len(cfg.Capabilities) != len(DefaultCapabilities) || len(cfg.PlanningContext) != 1 {
		t.Fatalf("cfg = %+v", cfg)
	}
}

package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/ankittk/missioncontrol/internal/gateway"
	"github.com/ankittk/missioncontrol/internal/mission"
)

// call sends body (if non-nil) as JSON and decodes the response into out.
func call(t *testing.T, method, url string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if out != nil && resp.StatusCode < 300 && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, url, err)
		}
	}
	return resp.StatusCode
}

func TestHandlers_tasks(t *testing.T) {
	t.Parallel()
	_, ts := newTestApp(t, nil, ServerOptions{})
	api := ts.URL + "/api"

	if code := call(t, http.MethodPost, api+"/tasks", map[string]string{"title": ""}, nil); code != http.StatusBadRequest {
		t.Fatalf("empty title: %d", code)
	}
	if code := call(t, http.MethodPost, api+"/tasks", map[string]string{"title": "x", "priority": "SOON"}, nil); code != http.StatusBadRequest {
		t.Fatalf("bad priority: %d", code)
	}

	var task mission.Task
	code := call(t, http.MethodPost, api+"/tasks", map[string]any{
		"title": "Write docs", "description": "Write the user guide", "tags": []string{"docs"},
	}, &task)
	if code != http.StatusCreated || task.Status != mission.TaskPlanning || task.Priority != mission.PriorityMedium {
		t.Fatalf("create: %d %+v", code, task)
	}
	taskURL := api + "/tasks/" + task.ID.String()

	var got mission.Task
	if code := call(t, http.MethodGet, taskURL, nil, &got); code != http.StatusOK || got.Title != "Write docs" {
		t.Fatalf("get: %d %+v", code, got)
	}
	if code := call(t, http.MethodGet, api+"/tasks/not-a-uuid", nil, nil); code != http.StatusBadRequest {
		t.Fatalf("bad id: %d", code)
	}
	if code := call(t, http.MethodGet, api+"/tasks/"+uuid.NewString(), nil, nil); code != http.StatusNotFound {
		t.Fatalf("missing: %d", code)
	}

	var planned mission.Task
	code = call(t, http.MethodPost, taskURL+"/plan", map[string]any{"answers": []string{"Document the CLI", "New users"}}, &planned)
	if code != http.StatusOK || planned.Status != mission.TaskInbox || len(planned.PlanningQA) != len(mission.DefaultPlanningQuestions) {
		t.Fatalf("plan: %d %+v", code, planned)
	}
	if planned.PlanningQA[0].Answer != "Document the CLI" || planned.PlanningQA[2].IsAnswered() {
		t.Fatalf("plan answers: %+v", planned.PlanningQA)
	}
	tooMany := make([]string, len(mission.DefaultPlanningQuestions)+1)
	if code := call(t, http.MethodPost, taskURL+"/plan", map[string]any{"answers": tooMany}, nil); code != http.StatusBadRequest {
		t.Fatalf("too many answers: %d", code)
	}

	var patched mission.Task
	code = call(t, http.MethodPatch, taskURL, map[string]any{"status": "TESTING", "priority": "URGENT"}, &patched)
	if code != http.StatusOK || patched.Status != mission.TaskTesting || patched.Priority != mission.PriorityUrgent {
		t.Fatalf("patch: %d %+v", code, patched)
	}

	var withDeliverable mission.Task
	code = call(t, http.MethodPost, taskURL+"/deliverables", map[string]any{"name": "guide.md", "type": "DOCUMENT", "content": "# Guide"}, &withDeliverable)
	if code != http.StatusCreated || len(withDeliverable.Deliverables) != 1 {
		t.Fatalf("deliverable: %d %+v", code, withDeliverable)
	}
	if code := call(t, http.MethodPost, taskURL+"/deliverables", map[string]any{"name": "x"}, nil); code != http.StatusBadRequest {
		t.Fatalf("deliverable without type: %d", code)
	}

	var inTesting []mission.Task
	if code := call(t, http.MethodGet, api+"/tasks?status=TESTING", nil, &inTesting); code != http.StatusOK || len(inTesting) != 1 {
		t.Fatalf("filter: %d %d", code, len(inTesting))
	}
	var none []mission.Task
	if code := call(t, http.MethodGet, api+"/tasks?status=DONE", nil, &none); code != http.StatusOK || none == nil || len(none) != 0 {
		t.Fatalf("empty filter should be []: %d %v", code, none)
	}
	if code := call(t, http.MethodGet, api+"/tasks?status=later", nil, nil); code != http.StatusBadRequest {
		t.Fatalf("bad filter: %d", code)
	}

	var prompt struct {
		Prompt       string `json:"prompt"`
		SystemPrompt string `json:"system_prompt"`
	}
	if code := call(t, http.MethodGet, taskURL+"/prompt", nil, &prompt); code != http.StatusOK {
		t.Fatalf("prompt: %d", code)
	}
	if !strings.Contains(prompt.Prompt, "Write the user guide") || !strings.Contains(prompt.Prompt, "Document the CLI") {
		t.Fatalf("prompt = %q", prompt.Prompt)
	}

	if code := call(t, http.MethodDelete, taskURL, nil, nil); code != http.StatusNoContent {
		t.Fatalf("delete: %d", code)
	}
	if code := call(t, http.MethodDelete, taskURL, nil, nil); code != http.StatusNotFound {
		t.Fatalf("delete twice: %d", code)
	}
}

func TestHandlers_agentsAndMessages(t *testing.T) {
	t.Parallel()
	_, ts := newTestApp(t, nil, ServerOptions{})
	api := ts.URL + "/api"

	if code := call(t, http.MethodPost, api+"/agents", map[string]string{"name": "a1"}, nil); code != http.StatusBadRequest {
		t.Fatalf("agent without role: %d", code)
	}
	var a1, a2 mission.Agent
	call(t, http.MethodPost, api+"/agents", map[string]any{"name": "a1", "role": "Developer"}, &a1)
	call(t, http.MethodPost, api+"/agents", map[string]any{"name": "a2", "role": "Tester", "model": "opus"}, &a2)
	if a1.Model != mission.DefaultModel || a2.Model != "opus" || a1.Status != mission.AgentIdle {
		t.Fatalf("agents: %+v %+v", a1, a2)
	}

	var task mission.Task
	call(t, http.MethodPost, api+"/tasks", map[string]string{"title": "t"}, &task)
	var assigned struct {
		Task  mission.Task  `json:"task"`
		Agent mission.Agent `json:"agent"`
	}
	code := call(t, http.MethodPost, api+"/tasks/"+task.ID.String()+"/assign", map[string]any{"agent_id": a1.ID}, &assigned)
	if code != http.StatusOK || assigned.Task.Status != mission.TaskAssigned || *assigned.Task.AssignedAgent != "a1" {
		t.Fatalf("assign: %d %+v", code, assigned)
	}
	if code := call(t, http.MethodPost, api+"/tasks/"+task.ID.String()+"/assign", map[string]any{"agent_id": uuid.New()}, nil); code != http.StatusNotFound {
		t.Fatalf("assign unknown agent: %d", code)
	}

	var available []mission.Agent
	call(t, http.MethodGet, api+"/agents?filter=available", nil, &available)
	if len(available) != 1 || available[0].ID != a2.ID {
		t.Fatalf("available = %+v", available)
	}
	if code := call(t, http.MethodGet, api+"/agents?filter=sleeping", nil, nil); code != http.StatusBadRequest {
		t.Fatalf("bad filter: %d", code)
	}

	call(t, http.MethodPost, api+"/messages", map[string]any{"from_agent": a1.ID, "to_agent": a2.ID, "message": "ready?", "message_type": "QUESTION"}, nil)
	call(t, http.MethodPost, api+"/messages", map[string]any{"from_agent": a2.ID, "message": "all hands"}, nil)
	call(t, http.MethodPost, api+"/messages", map[string]any{"from_agent": a2.ID, "to_agent": uuid.New(), "message": "elsewhere"}, nil)
	if code := call(t, http.MethodPost, api+"/messages", map[string]any{"from_agent": a2.ID}, nil); code != http.StatusBadRequest {
		t.Fatalf("empty message: %d", code)
	}

	var all []mission.AgentMessage
	call(t, http.MethodGet, api+"/messages?limit=2", nil, &all)
	if len(all) != 2 || all[0].Message != "elsewhere" {
		t.Fatalf("recent = %+v", all)
	}
	var forA1 []mission.AgentMessage
	call(t, http.MethodGet, api+"/agents/"+a1.ID.String()+"/messages", nil, &forA1)
	if len(forA1) != 2 || forA1[0].Message != "all hands" || forA1[0].Type != mission.MessageCommunication {
		t.Fatalf("a1 messages = %+v", forA1)
	}
	if code := call(t, http.MethodGet, api+"/messages?limit=-1", nil, nil); code != http.StatusBadRequest {
		t.Fatalf("bad limit: %d", code)
	}

	var stopped mission.Agent
	if code := call(t, http.MethodPost, api+"/agents/"+a1.ID.String()+"/stop", nil, &stopped); code != http.StatusOK {
		t.Fatalf("stop: %d", code)
	}
	if stopped.Status != mission.AgentOffline || stopped.CurrentTask != nil {
		t.Fatalf("stopped = %+v", stopped)
	}

	var stats struct {
		Total          int     `json:"total"`
		Assigned       int     `json:"assigned"`
		TotalAgents    int     `json:"total_agents"`
		CompletionRate float64 `json:"completion_rate"`
		Stored         struct {
			TotalMessages int `json:"total_messages"`
		} `json:"stored"`
	}
	call(t, http.MethodGet, api+"/stats", nil, &stats)
	if stats.Total != 1 || stats.Assigned != 1 || stats.TotalAgents != 2 || stats.Stored.TotalMessages != 3 {
		t.Fatalf("stats = %+v", stats)
	}

	if code := call(t, http.MethodDelete, api+"/agents/"+a2.ID.String(), nil, nil); code != http.StatusNoContent {
		t.Fatalf("delete agent: %d", code)
	}
	if code := call(t, http.MethodGet, api+"/agents/"+a2.ID.String(), nil, nil); code != http.StatusNotFound {
		t.Fatalf("deleted agent: %d", code)
	}

	var questions []string
	call(t, http.MethodGet, api+"/planning/questions", nil, &questions)
	if len(questions) != len(mission.DefaultPlanningQuestions) {
		t.Fatalf("questions = %v", questions)
	}
}

type downGateway struct{ *gateway.Stub }

func (downGateway) Spawn(context.Context, gateway.SpawnRequest) (gateway.SpawnResponse, error) {
	return gateway.SpawnResponse{}, gateway.ErrNotConnected
}

func TestHandlers_spawnGatewayDown(t *testing.T) {
	t.Parallel()
	_, ts := newTestApp(t, downGateway{gateway.NewStub()}, ServerOptions{})
	var task mission.Task
	call(t, http.MethodPost, ts.URL+"/api/tasks", map[string]string{"title": "t"}, &task)
	if code := call(t, http.MethodPost, ts.URL+"/api/tasks/"+task.ID.String()+"/spawn", nil, nil); code != http.StatusBadGateway {
		t.Fatalf("spawn with gateway down: %d", code)
	}
}

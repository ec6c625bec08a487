package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/ankittk/missioncontrol/internal/mission"
)

func (a *App) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/agents", a.listAgents)
	mux.HandleFunc("POST /api/agents", a.createAgent)
	mux.HandleFunc("GET /api/agents/{id}", a.getAgent)
	mux.HandleFunc("DELETE /api/agents/{id}", a.deleteAgent)
	mux.HandleFunc("POST /api/agents/{id}/stop", a.stopAgent)
	mux.HandleFunc("GET /api/agents/{id}/messages", a.agentMessages)

	mux.HandleFunc("GET /api/tasks", a.listTasks)
	mux.HandleFunc("POST /api/tasks", a.createTask)
	mux.HandleFunc("GET /api/tasks/{id}", a.getTask)
	mux.HandleFunc("PATCH /api/tasks/{id}", a.patchTask)
	mux.HandleFunc("DELETE /api/tasks/{id}", a.deleteTask)
	mux.HandleFunc("POST /api/tasks/{id}/assign", a.assignTask)
	mux.HandleFunc("POST /api/tasks/{id}/plan", a.planTask)
	mux.HandleFunc("POST /api/tasks/{id}/deliverables", a.addDeliverable)
	mux.HandleFunc("POST /api/tasks/{id}/spawn", a.spawnForTask)
	mux.HandleFunc("GET /api/tasks/{id}/prompt", a.taskPrompt)

	mux.HandleFunc("GET /api/messages", a.listMessages)
	mux.HandleFunc("POST /api/messages", a.sendMessage)

	mux.HandleFunc("GET /api/stats", a.stats)
	mux.HandleFunc("GET /api/planning/questions", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, mission.DefaultPlanningQuestions)
	})
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid json: %v", err))
		return false
	}
	return true
}

func queryLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return 0, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		writeJSONError(w, http.StatusBadRequest, "invalid limit")
		return 0, false
	}
	return n, true
}

// --- Agents ---

func (a *App) listAgents(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Query().Get("filter") {
	case "":
		writeJSON(w, nonNil(a.Manager.Mission.Agents()))
	case "available":
		writeJSON(w, nonNil(a.Manager.Mission.AvailableAgents()))
	case "working":
		writeJSON(w, nonNil(a.Manager.Mission.WorkingAgents()))
	default:
		writeJSONError(w, http.StatusBadRequest, "filter must be available or working")
	}
}

func (a *App) createAgent(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name         string   `json:"name"`
		Role         string   `json:"role"`
		Capabilities []string `json:"capabilities"`
		Model        string   `json:"model"`
	}
	if !decode(w, r, &body) {
		return
	}
	if body.Name == "" || body.Role == "" {
		writeJSONError(w, http.StatusBadRequest, "name and role required")
		return
	}
	ag, err := a.Manager.CreateAgent(r.Context(), body.Name, body.Role, body.Capabilities, body.Model)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, ag)
}

func (a *App) getAgent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ag, err := a.Manager.Mission.Agent(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, ag)
}

func (a *App) deleteAgent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := a.Manager.DeleteAgent(r.Context(), id); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) stopAgent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ag, err := a.Manager.StopAgent(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, ag)
}

func (a *App) agentMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	msgs, err := a.Manager.AgentMessages(r.Context(), id, limit)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, nonNil(msgs))
}

// --- Tasks ---

func (a *App) listTasks(w http.ResponseWriter, r *http.Request) {
	s := r.URL.Query().Get("status")
	if s == "" {
		writeJSON(w, nonNil(a.Manager.Mission.Tasks()))
		return
	}
	status, err := mission.ParseTaskStatus(s)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, nonNil(a.Manager.Mission.TasksByStatus(status)))
}

func (a *App) createTask(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title       string               `json:"title"`
		Description string               `json:"description"`
		Priority    mission.TaskPriority `json:"priority"`
		Tags        []string             `json:"tags"`
	}
	if !decode(w, r, &body) {
		return
	}
	if body.Title == "" {
		writeJSONError(w, http.StatusBadRequest, "title required")
		return
	}
	if body.Priority == "" {
		body.Priority = mission.PriorityMedium
	}
	t, err := a.Manager.CreateTask(r.Context(), body.Title, body.Description, body.Priority, body.Tags)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, t)
}

func (a *App) getTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	t, err := a.Manager.Mission.Task(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, t)
}

func (a *App) patchTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body struct {
		Title       *string               `json:"title"`
		Description *string               `json:"description"`
		Status      *mission.TaskStatus   `json:"status"`
		Priority    *mission.TaskPriority `json:"priority"`
		Tags        []string              `json:"tags"`
	}
	if !decode(w, r, &body) {
		return
	}
	t, err := a.Manager.UpdateTask(r.Context(), id, func(t *mission.Task) {
		if body.Title != nil {
			t.Title = *body.Title
		}
		if body.Description != nil {
			t.Description = *body.Description
		}
		if body.Priority != nil {
			t.Priority = *body.Priority
		}
		if body.Tags != nil {
			t.Tags = body.Tags
		}
		if body.Status != nil {
			t.MoveTo(*body.Status)
		} else {
			t.Touch()
		}
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, t)
}

func (a *App) deleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := a.Manager.DeleteTask(r.Context(), id); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) assignTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body struct {
		AgentID uuid.UUID `json:"agent_id"`
	}
	if !decode(w, r, &body) {
		return
	}
	t, ag, err := a.Manager.AssignTask(r.Context(), id, body.AgentID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, map[string]any{"task": t, "agent": ag})
}

// planTask completes planning. Answers are matched in order with the default
// planning questions; explicit pairs are used as given.
func (a *App) planTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body struct {
		Answers []string         `json:"answers"`
		Pairs   []mission.QAPair `json:"pairs"`
	}
	if !decode(w, r, &body) {
		return
	}
	pairs := body.Pairs
	if pairs == nil {
		p := mission.NewPlanner(nil)
		if len(body.Answers) > len(mission.DefaultPlanningQuestions) {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("at most %d answers", len(mission.DefaultPlanningQuestions)))
			return
		}
		for _, ans := range body.Answers {
			p.Answer(ans)
		}
		pairs = p.Pairs()
	}
	for i := range pairs {
		if pairs[i].ID == uuid.Nil {
			pairs[i] = mission.NewQAPair(pairs[i].Question, pairs[i].Answer)
		}
	}
	t, err := a.Manager.CompletePlanning(r.Context(), id, pairs)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, t)
}

func (a *App) addDeliverable(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body struct {
		Name     string                  `json:"name"`
		Type     mission.DeliverableType `json:"type"`
		Content  string                  `json:"content"`
		FilePath *string                 `json:"file_path"`
	}
	if !decode(w, r, &body) {
		return
	}
	if body.Name == "" || body.Type == "" {
		writeJSONError(w, http.StatusBadRequest, "name and type required")
		return
	}
	t, err := a.Manager.AddDeliverable(r.Context(), id, mission.NewDeliverable(body.Name, body.Type, body.Content, body.FilePath))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, t)
}

// spawnForTask spawns an agent for the task. An empty body uses the default
// spawn configuration; given fields override it.
func (a *App) spawnForTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	t, err := a.Manager.Mission.Task(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	cfg := mission.NewSpawnConfig(t)
	var body struct {
		Name         string   `json:"name"`
		Role         string   `json:"role"`
		Model        string   `json:"model"`
		Capabilities []string `json:"capabilities"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid json: %v", err))
			return
		}
	}
	if body.Name != "" {
		cfg.Name = body.Name
	}
	if body.Role != "" {
		cfg.Role = body.Role
	}
	if body.Model != "" {
		cfg.Model = body.Model
	}
	if body.Capabilities != nil {
		cfg.Capabilities = body.Capabilities
	}
	ag, err := a.Manager.SpawnAgent(r.Context(), id, &cfg)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, ag)
}

func (a *App) taskPrompt(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	t, err := a.Manager.Mission.Task(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	cfg := mission.NewSpawnConfig(t)
	writeJSON(w, map[string]any{
		"config":        cfg,
		"prompt":        cfg.Prompt(),
		"system_prompt": cfg.SystemPrompt(),
	})
}

// --- Messages ---

func (a *App) listMessages(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	msgs, err := a.Manager.RecentMessages(r.Context(), limit)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, nonNil(msgs))
}

func (a *App) sendMessage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		FromAgent uuid.UUID           `json:"from_agent"`
		ToAgent   *uuid.UUID          `json:"to_agent"`
		Message   string              `json:"message"`
		Type      mission.MessageType `json:"message_type"`
	}
	if !decode(w, r, &body) {
		return
	}
	if body.Message == "" {
		writeJSONError(w, http.StatusBadRequest, "message required")
		return
	}
	msg, err := a.Manager.SendMessage(r.Context(), body.FromAgent, body.ToAgent, body.Message, body.Type)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, msg)
}

func (a *App) stats(w http.ResponseWriter, r *http.Request) {
	s, err := a.Manager.Stats(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, s)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

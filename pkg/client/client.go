// Package client provides a Go SDK for the missioncontrol HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/uuid"

	"github.com/ankittk/missioncontrol/internal/mission"
)

// DefaultURL is where `missionctl serve` listens by default.
const DefaultURL = "http://localhost:3548"

// Client calls the missioncontrol HTTP API. It is safe for concurrent use.
type Client struct {
	BaseURL    string       // e.g. "http://localhost:3548"
	APIKey     string       // optional; sent as X-API-Key
	HTTPClient *http.Client // optional; nil uses http.DefaultClient
}

// New returns a client for the given base URL. APIKey is optional.
func New(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &Client{BaseURL: baseURL, APIKey: apiKey}
}

// APIError is a non-2xx response.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api %s %s: %s", e.Method, e.Path, e.Message)
	}
	return fmt.Sprintf("api %s %s: status %d", e.Method, e.Path, e.StatusCode)
}

func (c *Client) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("X-API-Key", c.APIKey)
	}
	return c.client().Do(req)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errBody struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		return &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Message: errBody.Error}
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func withLimit(path string, limit int) string {
	if limit > 0 {
		return path + "?limit=" + strconv.Itoa(limit)
	}
	return path
}

// Health returns the /health response (ok: true).
func (c *Client) Health(ctx context.Context) (ok bool, err error) {
	var out struct {
		OK bool `json:"ok"`
	}
	err = c.doJSON(ctx, http.MethodGet, "/health", nil, &out)
	return out.OK, err
}

// ListAgents returns agents; filter is "", "available" or "working".
func (c *Client) ListAgents(ctx context.Context, filter string) ([]mission.Agent, error) {
	path := "/api/agents"
	if filter != "" {
		path += "?filter=" + url.QueryEscape(filter)
	}
	var out []mission.Agent
	err := c.doJSON(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// CreateAgent registers an agent without a gateway session.
func (c *Client) CreateAgent(ctx context.Context, name, role string, capabilities []string, model string) (mission.Agent, error) {
	var out mission.Agent
	err := c.doJSON(ctx, http.MethodPost, "/api/agents", map[string]any{
		"name": name, "role": role, "capabilities": capabilities, "model": model,
	}, &out)
	return out, err
}

func (c *Client) GetAgent(ctx context.Context, id uuid.UUID) (mission.Agent, error) {
	var out mission.Agent
	err := c.doJSON(ctx, http.MethodGet, "/api/agents/"+id.String(), nil, &out)
	return out, err
}

func (c *Client) DeleteAgent(ctx context.Context, id uuid.UUID) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/agents/"+id.String(), nil, nil)
}

// StopAgent stops the agent's session; the agent ends OFFLINE.
func (c *Client) StopAgent(ctx context.Context, id uuid.UUID) (mission.Agent, error) {
	var out mission.Agent
	err := c.doJSON(ctx, http.MethodPost, "/api/agents/"+id.String()+"/stop", nil, &out)
	return out, err
}

func (c *Client) AgentMessages(ctx context.Context, id uuid.UUID, limit int) ([]mission.AgentMessage, error) {
	var out []mission.AgentMessage
	err := c.doJSON(ctx, http.MethodGet, withLimit("/api/agents/"+id.String()+"/messages", limit), nil, &out)
	return out, err
}

// ListTasks returns tasks; an empty status returns every task.
func (c *Client) ListTasks(ctx context.Context, status mission.TaskStatus) ([]mission.Task, error) {
	path := "/api/tasks"
	if status != "" {
		path += "?status=" + url.QueryEscape(string(status))
	}
	var out []mission.Task
	err := c.doJSON(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// CreateTask creates a task in PLANNING. An empty priority means MEDIUM.
func (c *Client) CreateTask(ctx context.Context, title, description string, priority mission.TaskPriority, tags []string) (mission.Task, error) {
	body := map[string]any{"title": title, "description": description, "tags": tags}
	if priority != "" {
		body["priority"] = priority
	}
	var out mission.Task
	err := c.doJSON(ctx, http.MethodPost, "/api/tasks", body, &out)
	return out, err
}

func (c *Client) GetTask(ctx context.Context, id uuid.UUID) (mission.Task, error) {
	var out mission.Task
	err := c.doJSON(ctx, http.MethodGet, "/api/tasks/"+id.String(), nil, &out)
	return out, err
}

// MoveTask sets the task status.
func (c *Client) MoveTask(ctx context.Context, id uuid.UUID, status mission.TaskStatus) (mission.Task, error) {
	var out mission.Task
	err := c.doJSON(ctx, http.MethodPatch, "/api/tasks/"+id.String(), map[string]any{"status": status}, &out)
	return out, err
}

func (c *Client) DeleteTask(ctx context.Context, id uuid.UUID) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/tasks/"+id.String(), nil, nil)
}

func (c *Client) AssignTask(ctx context.Context, taskID, agentID uuid.UUID) (mission.Task, error) {
	var out struct {
		Task mission.Task `json:"task"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/api/tasks/"+taskID.String()+"/assign", map[string]any{"agent_id": agentID}, &out)
	return out.Task, err
}

// PlanTask answers the default planning questions in order and moves the task to INBOX.
func (c *Client) PlanTask(ctx context.Context, id uuid.UUID, answers []string) (mission.Task, error) {
	var out mission.Task
	err := c.doJSON(ctx, http.MethodPost, "/api/tasks/"+id.String()+"/plan", map[string]any{"answers": answers}, &out)
	return out, err
}

// AddDeliverable attaches a deliverable to the task.
func (c *Client) AddDeliverable(ctx context.Context, taskID uuid.UUID, d mission.Deliverable) (mission.Task, error) {
	body := map[string]any{"name": d.Name, "type": d.Type, "content": d.Content}
	if d.FilePath != nil {
		body["file_path"] = *d.FilePath
	}
	var out mission.Task
	err := c.doJSON(ctx, http.MethodPost, "/api/tasks/"+taskID.String()+"/deliverables", body, &out)
	return out, err
}

// SpawnAgent spawns an agent for the task; zero-valued fields of override
// keep the server's defaults.
func (c *Client) SpawnAgent(ctx context.Context, taskID uuid.UUID, override mission.SpawnConfig) (mission.Agent, error) {
	body := map[string]any{}
	if override.Name != "" {
		body["name"] = override.Name
	}
	if override.Role != "" {
		body["role"] = override.Role
	}
	if override.Model != "" {
		body["model"] = override.Model
	}
	if override.Capabilities != nil {
		body["capabilities"] = override.Capabilities
	}
	var out mission.Agent
	err := c.doJSON(ctx, http.MethodPost, "/api/tasks/"+taskID.String()+"/spawn", body, &out)
	return out, err
}

// Prompt is the spawn prompt the server would send for a task.
type Prompt struct {
	Config       mission.SpawnConfig `json:"config"`
	Prompt       string              `json:"prompt"`
	SystemPrompt string              `json:"system_prompt"`
}

func (c *Client) TaskPrompt(ctx context.Context, id uuid.UUID) (Prompt, error) {
	var out Prompt
	err := c.doJSON(ctx, http.MethodGet, "/api/tasks/"+id.String()+"/prompt", nil, &out)
	return out, err
}

// ListMessages returns the most recent messages, newest first.
func (c *Client) ListMessages(ctx context.Context, limit int) ([]mission.AgentMessage, error) {
	var out []mission.AgentMessage
	err := c.doJSON(ctx, http.MethodGet, withLimit("/api/messages", limit), nil, &out)
	return out, err
}

// SendMessage posts a message; a nil to broadcasts.
func (c *Client) SendMessage(ctx context.Context, from uuid.UUID, to *uuid.UUID, text string, typ mission.MessageType) (mission.AgentMessage, error) {
	body := map[string]any{"from_agent": from, "message": text}
	if to != nil {
		body["to_agent"] = *to
	}
	if typ != "" {
		body["message_type"] = typ
	}
	var out mission.AgentMessage
	err := c.doJSON(ctx, http.MethodPost, "/api/messages", body, &out)
	return out, err
}

// Stats mirrors GET /api/stats.
type Stats struct {
	mission.Statistics
	CompletionRate float64 `json:"completion_rate"`
}

func (c *Client) Stats(ctx context.Context) (Stats, error) {
	var out Stats
	err := c.doJSON(ctx, http.MethodGet, "/api/stats", nil, &out)
	return out, err
}

package gateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ankittk/missioncontrol/internal/retry"
)

// HTTPClient calls the gateway's HTTP API. Every request goes through Retry.
// It is safe for concurrent use.
type HTTPClient struct {
	BaseURL    string          // e.g. "http://localhost:18789"
	HTTPClient *http.Client    // optional; nil uses a client with a 30s timeout
	Retry      *retry.Executor // optional; nil uses retry.DefaultPolicy
}

var _ Gateway = (*HTTPClient)(nil)

var defaultHTTPClient = &http.Client{Timeout: 30 * time.Second}

// NewHTTPClient returns a client for baseURL ("" means DefaultURL).
func NewHTTPClient(baseURL string, exec *retry.Executor) *HTTPClient {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &HTTPClient{BaseURL: strings.TrimRight(baseURL, "/"), Retry: exec}
}

func (c *HTTPClient) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return defaultHTTPClient
}

// statusError is a non-2xx gateway response.
type statusError struct {
	Method, Path string
	Code         int
	Message      string
}

func (e *statusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("gateway %s %s: %d %s", e.Method, e.Path, e.Code, e.Message)
	}
	return fmt.Sprintf("gateway %s %s: status %d", e.Method, e.Path, e.Code)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
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
	req.Header.Set("Accept", "application/json")
	return c.client().Do(req)
}

// doJSON performs one request; out may be nil.
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body, out any) error {
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
		return &statusError{Method: method, Path: path, Code: resp.StatusCode, Message: errBody.Error}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
		return nil
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// call retries doJSON and tags exhaustion with sentinel.
func (c *HTTPClient) call(ctx context.Context, sentinel error, method, path string, body, out any) error {
	err := c.Retry.Run(ctx, func(ctx context.Context) error {
		return c.doJSON(ctx, method, path, body, out)
	})
	if err != nil {
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	return nil
}

func (c *HTTPClient) Health(ctx context.Context) error {
	return c.call(ctx, ErrNotConnected, http.MethodGet, "/health", nil, nil)
}

func (c *HTTPClient) ListSessions(ctx context.Context, kinds []string, limit int) ([]SessionInfo, error) {
	if limit <= 0 {
		limit = 50
	}
	q := url.Values{"limit": {strconv.Itoa(limit)}}
	for _, k := range kinds {
		q.Add("kinds", k)
	}
	var out struct {
		Sessions []SessionInfo `json:"sessions"`
	}
	if err := c.call(ctx, ErrInvalidResponse, http.MethodGet, "/v1/sessions?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

func (c *HTTPClient) Spawn(ctx context.Context, req SpawnRequest) (SpawnResponse, error) {
	var out SpawnResponse
	if err := c.call(ctx, ErrSpawnFailed, http.MethodPost, "/v1/sessions/spawn", req, &out); err != nil {
		return SpawnResponse{}, err
	}
	if out.SessionKey == "" {
		return SpawnResponse{}, fmt.Errorf("%w: %w: empty session key", ErrSpawnFailed, ErrInvalidResponse)
	}
	return out, nil
}

func sessionPath(key, suffix string) string {
	return "/v1/sessions/" + url.PathEscape(key) + "/" + suffix
}

func (c *HTTPClient) SendMessage(ctx context.Context, sessionKey, message string) (MessageResponse, error) {
	var out MessageResponse
	body := map[string]string{"message": message}
	if err := c.call(ctx, ErrMessageFailed, http.MethodPost, sessionPath(sessionKey, "messages"), body, &out); err != nil {
		return MessageResponse{}, err
	}
	return out, nil
}

func (c *HTTPClient) History(ctx context.Context, sessionKey string, limit int) ([]HistoryMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	var out struct {
		Messages []HistoryMessage `json:"messages"`
	}
	path := sessionPath(sessionKey, "history") + "?limit=" + strconv.Itoa(limit)
	if err := c.call(ctx, ErrInvalidResponse, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func (c *HTTPClient) Stop(ctx context.Context, sessionKey string) error {
	return c.call(ctx, ErrStopFailed, http.MethodPost, sessionPath(sessionKey, "stop"), nil, nil)
}

// Subscribe opens the session's event stream (retried until connected) and
// feeds parsed events to fn until the server closes it or ctx is done.
func (c *HTTPClient) Subscribe(ctx context.Context, sessionKey string, fn func(SessionEvent)) error {
	path := sessionPath(sessionKey, "events")
	resp, err := retry.Call(ctx, c.Retry, func(ctx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "text/event-stream")
		// Streams outlive the request timeout of the default client.
		hc := c.HTTPClient
		if hc == nil {
			hc = http.DefaultClient
		}
		resp, err := hc.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			_ = resp.Body.Close()
			return nil, &statusError{Method: http.MethodGet, Path: path, Code: resp.StatusCode}
		}
		return resp, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()
	err = ReadEvents(resp.Body, fn)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// ReadEvents parses a text/event-stream body. Each blank-line terminated
// block with a non-empty data field becomes one event; a block without an
// event field has type "message".
func ReadEvents(r io.Reader, fn func(SessionEvent)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	typ, data := "message", ""
	flush := func() {
		if data != "" {
			fn(SessionEvent{Type: typ, Data: data, Timestamp: time.Now().UTC()})
		}
		typ, data = "message", ""
	}
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "event:"):
			typ = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			d := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data != "" {
				data += "\n" + d
			} else {
				data = d
			}
		}
	}
	flush()
	return sc.Err()
}

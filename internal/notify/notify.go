// Package notify forwards mission milestones to external chat channels.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ankittk/missioncontrol/internal/retry"
)

// Notifier delivers a message to an external channel (e.g. Slack).
type Notifier interface {
	Name() string
	Notify(ctx context.Context, message string) error
}

// Registry holds notifiers by name.
type Registry struct {
	mu    sync.RWMutex
	items map[string]Notifier
}

func NewRegistry() *Registry {
	return &Registry{items: make(map[string]Notifier)}
}

func (r *Registry) Register(n Notifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[n.Name()] = n
}

func (r *Registry) Get(name string) Notifier {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.items[name]
}

// Len reports how many notifiers are registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// NotifyAll sends message to every notifier and joins their errors.
func (r *Registry) NotifyAll(ctx context.Context, message string) error {
	r.mu.RLock()
	items := make([]Notifier, 0, len(r.items))
	for _, n := range r.items {
		items = append(items, n)
	}
	r.mu.RUnlock()
	var errs []error
	for _, n := range items {
		if err := n.Notify(ctx, message); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// SlackWebhook posts messages to a Slack incoming webhook.
type SlackWebhook struct {
	WebhookURL string
	Channel    string // optional override
	Username   string // optional
	HTTPClient *http.Client
	// Exec retries failed posts; nil uses retry.DefaultPolicy.
	Exec *retry.Executor
}

func (s SlackWebhook) Name() string { return "slack" }

func (s SlackWebhook) Notify(ctx context.Context, message string) error {
	if s.WebhookURL == "" {
		return errors.New("slack webhook URL not set")
	}
	payload := map[string]any{"text": message}
	if s.Channel != "" {
		payload["channel"] = s.Channel
	}
	if s.Username != "" {
		payload["username"] = s.Username
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	hc := s.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return s.Exec.Run(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.WebhookURL, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := hc.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("slack webhook returned %d", resp.StatusCode)
		}
		return nil
	})
}

package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ankittk/missioncontrol/internal/gateway"
	"github.com/ankittk/missioncontrol/internal/manager"
	"github.com/ankittk/missioncontrol/internal/mission"
	"github.com/ankittk/missioncontrol/internal/store/sqlite"
)

// newTestApp wires a mission, sqlite store, stub gateway and hub the same way
// the serve command does.
func newTestApp(t *testing.T, gw gateway.Gateway, opts ServerOptions) (*App, *httptest.Server) {
	t.Helper()
	st, err := sqlite.Open(filepath.Join(t.TempDir(), "home"))
	if err != nil {
		t.Fatalf("sqlite.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	if gw == nil {
		gw = gateway.NewStub()
	}
	hub := NewSSEHub()
	mgr := manager.New(mission.New(mission.WithPublisher(hub)), st, gw)
	t.Cleanup(mgr.Close)
	app := NewApp(mgr, hub, opts)
	ts := httptest.NewServer(app.Server.Handler)
	t.Cleanup(ts.Close)
	return app, ts
}

func TestServerSmoke(t *testing.T) {
	t.Parallel()
	_, ts := newTestApp(t, nil, ServerOptions{Addr: "127.0.0.1:0"})

	r1, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	_ = r1.Body.Close()
	if r1.StatusCode != 200 {
		t.Fatalf("/health status=%d", r1.StatusCode)
	}

	// no metrics handler configured
	r2, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	_ = r2.Body.Close()
	if r2.StatusCode != http.StatusNotFound {
		t.Fatalf("/metrics status=%d", r2.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/events", nil)
	sseResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /events: %v", err)
	}
	defer func() { _ = sseResp.Body.Close() }()

	sc := bufio.NewScanner(sseResp.Body)
	var connected bool
	for sc.Scan() {
		if strings.Contains(sc.Text(), `"type":"connected"`) {
			connected = true
			break
		}
	}
	if !connected {
		t.Fatal("did not see connected event")
	}

	// a mutation reaches the stream
	resp, err := http.Post(ts.URL+"/api/tasks", "application/json", strings.NewReader(`{"title":"streamed"}`))
	if err != nil {
		t.Fatalf("POST /api/tasks: %v", err)
	}
	_ = resp.Body.Close()
	var sawEvent, sawData bool
	for sc.Scan() {
		line := sc.Text()
		if line == "event: "+mission.EventTaskUpdate {
			sawEvent = true
			continue
		}
		if sawEvent && strings.HasPrefix(line, "data: ") {
			sawData = strings.Contains(line, `"status":"PLANNING"`)
			break
		}
	}
	if !sawEvent || !sawData {
		t.Fatalf("task_update frame not streamed (event=%v data=%v)", sawEvent, sawData)
	}
}

func TestServer_metricsAndAPIKey(t *testing.T) {
	t.Parallel()
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "missioncontrol_tasks 0\n")
	})
	_, ts := newTestApp(t, nil, ServerOptions{APIKey: "secret", MetricsHandler: metrics, Dev: true})

	for _, path := range []string{"/health", "/metrics"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s without key: status=%d", path, resp.StatusCode)
		}
	}

	resp, err := http.Get(ts.URL + "/api/tasks")
	if err != nil {
		t.Fatal(err)
	}
	var errBody struct{ Error string }
	_ = json.NewDecoder(resp.Body).Decode(&errBody)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized || errBody.Error == "" {
		t.Fatalf("no key: status=%d body=%+v", resp.StatusCode, errBody)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/tasks", nil)
	req.Header.Set("X-API-Key", "secret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("header key: status=%d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("dev mode should set CORS headers")
	}

	resp, err = http.Get(ts.URL + "/api/tasks?api_key=secret")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("query key: status=%d", resp.StatusCode)
	}
}

func TestServer_bodyLimit(t *testing.T) {
	t.Parallel()
	_, ts := newTestApp(t, nil, ServerOptions{MaxBodyBytes: 16})
	resp, err := http.Post(ts.URL+"/api/tasks", "application/json",
		strings.NewReader(`{"title":"`+strings.Repeat("x", 64)+`"}`))
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("oversized body: status=%d", resp.StatusCode)
	}
}

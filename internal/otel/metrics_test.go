package otel

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestInitMetrics_record(t *testing.T) {
	ctx := context.Background()
	_, err := InitMeterProvider(ctx, "metrics-test")
	if err != nil {
		t.Fatalf("InitMeterProvider: %v", err)
	}
	if err := InitMetrics(ctx); err != nil {
		t.Fatalf("InitMetrics: %v", err)
	}
	RecordTaskOp(ctx, "create", "PLANNING")
	RecordTaskOp(ctx, "assign", "ASSIGNED")
	RecordAgentSpawn(ctx, "Researcher", nil, 120*time.Millisecond)
	RecordAgentSpawn(ctx, "Writer", errors.New("gateway down"), time.Second)
	RecordSessionEvent(ctx, "progress")
	RetryObserver("spawn")(1, errors.New("boom"))
	RecordSSEEvent(ctx)
}

func TestAddSSEConnection_RemoveSSEConnection(t *testing.T) {
	AddSSEConnection()
	AddSSEConnection()
	RemoveSSEConnection()
	RemoveSSEConnection()
	RemoveSSEConnection() // should not go negative
	sseConnectionsMu.Lock()
	defer sseConnectionsMu.Unlock()
	if sseConnections != 0 {
		t.Fatalf("sseConnections = %d", sseConnections)
	}
}

func TestInitMetricsWithTaskCount_exportsGauge(t *testing.T) {
	ctx := context.Background()
	handler, err := InitMeterProvider(ctx, "taskcount-test")
	if err != nil {
		t.Fatalf("InitMeterProvider: %v", err)
	}
	err = InitMetricsWithTaskCount(ctx, func() map[string]int64 {
		return map[string]int64{"INBOX": 2, "DONE": 5}
	})
	if err != nil {
		t.Fatalf("InitMetricsWithTaskCount: %v", err)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	if !strings.Contains(body, "missioncontrol_tasks") || !strings.Contains(body, `status="INBOX"`) {
		t.Fatalf("gauge missing from /metrics:\n%s", body)
	}
}

func TestInitMetricsWithTaskCount_nilFunc(t *testing.T) {
	ctx := context.Background()
	_, _ = InitMeterProvider(ctx, "taskcount-nil-test")
	err := InitMetricsWithTaskCount(ctx, nil)
	if err != nil {
		t.Fatalf("InitMetricsWithTaskCount(nil): %v", err)
	}
}

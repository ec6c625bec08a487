package otel

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
)

var (
	initMetricsOnce     sync.Once
	taskOpsCounter      metric.Int64Counter
	agentSpawnsCounter  metric.Int64Counter
	agentSpawnDuration  metric.Float64Histogram
	sessionEventCounter metric.Int64Counter
	retryCounter        metric.Int64Counter
	sseEventsCounter    metric.Int64Counter
	sseConnectionsGauge metric.Int64ObservableGauge
	sseConnections      int64
	sseConnectionsMu    sync.Mutex
)

// InitMetrics creates the meter instruments. Safe to call multiple times; only runs once.
// Call after InitMeterProvider.
func InitMetrics(ctx context.Context) error {
	var err error
	initMetricsOnce.Do(func() {
		m := Meter()
		taskOpsCounter, err = m.Int64Counter("missioncontrol_task_operations_total", metric.WithDescription("Task mutations by operation and resulting status"))
		if err != nil {
			return
		}
		agentSpawnsCounter, err = m.Int64Counter("missioncontrol_agent_spawns_total", metric.WithDescription("Agent spawn attempts by role and result"))
		if err != nil {
			return
		}
		agentSpawnDuration, err = m.Float64Histogram("missioncontrol_agent_spawn_duration_seconds", metric.WithDescription("Gateway spawn latency including retries"))
		if err != nil {
			return
		}
		sessionEventCounter, err = m.Int64Counter("missioncontrol_session_events_total", metric.WithDescription("Gateway session events handled"))
		if err != nil {
			return
		}
		retryCounter, err = m.Int64Counter("missioncontrol_retry_attempts_total", metric.WithDescription("Failed attempts that were retried"))
		if err != nil {
			return
		}
		sseEventsCounter, err = m.Int64Counter("missioncontrol_sse_events_total", metric.WithDescription("Total SSE events published"))
		if err != nil {
			return
		}
		sseConnectionsGauge, err = m.Int64ObservableGauge("missioncontrol_sse_connections", metric.WithDescription("Current SSE subscriber count"))
		if err != nil {
			return
		}
		_, err = m.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
			sseConnectionsMu.Lock()
			n := sseConnections
			sseConnectionsMu.Unlock()
			o.ObserveInt64(sseConnectionsGauge, n)
			return nil
		}, sseConnectionsGauge)
	})
	return err
}

// RecordTaskOp records a task operation (create, assign, move, delete, ...).
func RecordTaskOp(ctx context.Context, op, status string) {
	if taskOpsCounter == nil {
		return
	}
	taskOpsCounter.Add(ctx, 1, metric.WithAttributes(AttrOperation.String(op), AttrStatus.String(status)))
}

// RecordAgentSpawn records one spawn and how long the gateway took.
func RecordAgentSpawn(ctx context.Context, role string, err error, duration time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	if agentSpawnsCounter != nil {
		agentSpawnsCounter.Add(ctx, 1, metric.WithAttributes(AttrRole.String(role), AttrResult.String(result)))
	}
	if agentSpawnDuration != nil {
		agentSpawnDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(AttrResult.String(result)))
	}
}

// RecordSessionEvent counts a gateway session event by type.
func RecordSessionEvent(ctx context.Context, eventType string) {
	if sessionEventCounter != nil {
		sessionEventCounter.Add(ctx, 1, metric.WithAttributes(AttrEventType.String(eventType)))
	}
}

// RetryObserver returns a retry observer that counts failed attempts for op.
func RetryObserver(op string) func(attempt int, err error) {
	return func(int, error) {
		if retryCounter != nil {
			retryCounter.Add(context.Background(), 1, metric.WithAttributes(AttrOperation.String(op)))
		}
	}
}

// RecordSSEEvent records one SSE event published.
func RecordSSEEvent(ctx context.Context) {
	if sseEventsCounter != nil {
		sseEventsCounter.Add(ctx, 1)
	}
}

// AddSSEConnection adds 1 to the SSE connection gauge (call on subscribe).
func AddSSEConnection() {
	sseConnectionsMu.Lock()
	sseConnections++
	sseConnectionsMu.Unlock()
}

// RemoveSSEConnection subtracts 1 from the SSE connection gauge (call on unsubscribe).
func RemoveSSEConnection() {
	sseConnectionsMu.Lock()
	sseConnections--
	if sseConnections < 0 {
		sseConnections = 0
	}
	sseConnectionsMu.Unlock()
}

// StatusCountFunc returns the number of tasks per raw status value.
type StatusCountFunc func() map[string]int64

// InitMetricsWithTaskCount creates instruments and registers the tasks-by-status gauge.
// Call after InitMeterProvider. If taskCount is nil, task gauges are not reported.
func InitMetricsWithTaskCount(ctx context.Context, taskCount StatusCountFunc) error {
	if err := InitMetrics(ctx); err != nil {
		return err
	}
	if taskCount == nil {
		return nil
	}
	m := Meter()
	tasksGauge, err := m.Int64ObservableGauge("missioncontrol_tasks", metric.WithDescription("Number of tasks by status"))
	if err != nil {
		return err
	}
	_, err = m.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		for status, n := range taskCount() {
			o.ObserveInt64(tasksGauge, n, metric.WithAttributes(AttrStatus.String(status)))
		}
		return nil
	}, tasksGauge)
	return err
}

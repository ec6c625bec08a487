package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ankittk/missioncontrol/internal/mission"
	"github.com/ankittk/missioncontrol/internal/otel"
)

// SSEHub fans mission events out to Server-Sent Events subscribers. Each
// frame is "event: <type>\ndata: <json>\n\n".
type SSEHub struct {
	mu   sync.RWMutex
	subs map[chan []byte]struct{}
}

var _ mission.Publisher = (*SSEHub)(nil)

func NewSSEHub() *SSEHub {
	return &SSEHub{subs: make(map[chan []byte]struct{})}
}

func (h *SSEHub) Subscribe() chan []byte {
	ch := make(chan []byte, 256)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	otel.AddSSEConnection()
	return ch
}

func (h *SSEHub) Unsubscribe(ch chan []byte) {
	h.mu.Lock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
		otel.RemoveSSEConnection()
	}
	h.mu.Unlock()
}

// Publish implements mission.Publisher. It never blocks.
func (h *SSEHub) Publish(ev mission.Event) {
	h.PublishJSON(ev.Type, ev)
}

// PublishJSON sends v as an event of type typ to every subscriber.
func (h *SSEHub) PublishJSON(typ string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	frame := []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", typ, b))
	otel.RecordSSEEvent(context.Background())
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- frame:
		default:
			// Slow subscriber: drop.
		}
	}
}

// Subscribers returns the number of connected subscribers.
func (h *SSEHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *SSEHub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		ch := h.Subscribe()
		defer h.Unsubscribe(ch)

		_, _ = fmt.Fprint(w, "event: connected\ndata: {\"type\":\"connected\"}\n\n")
		flusher.Flush()

		keepalive := time.NewTicker(30 * time.Second)
		defer keepalive.Stop()

		ctx := r.Context()
		for {
			select {
			case <-ctx.Done():
				return
			case <-keepalive.C:
				_, _ = fmt.Fprint(w, ": keepalive\n\n")
				flusher.Flush()
			case frame, ok := <-ch:
				if !ok {
					return
				}
				_, _ = w.Write(frame)
				flusher.Flush()
			}
		}
	}
}

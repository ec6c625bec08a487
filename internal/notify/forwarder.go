package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/ankittk/missioncontrol/internal/mission"
)

const forwardBuffer = 64

// Lookup resolves ids carried by mission events.
type Lookup interface {
	Agent(id uuid.UUID) (mission.Agent, error)
	Task(id uuid.UUID) (mission.Task, error)
}

// Forwarder is a mission.Publisher that sends a notification when a task
// enters REVIEW or DONE and when an agent enters ERROR. Publish never blocks:
// events are queued and Run delivers them. A full queue drops the event.
type Forwarder struct {
	// Lookup is consulted from Run, outside the mission lock. It may be set
	// after the forwarder is handed to mission.WithPublisher.
	Lookup   Lookup
	Registry *Registry

	events  chan mission.Event
	dropped atomic.Int64

	mu sync.Mutex
	// last status seen per task or agent id, forwarded or not
	last map[uuid.UUID]string
}

var _ mission.Publisher = (*Forwarder)(nil)

func NewForwarder(reg *Registry) *Forwarder {
	return &Forwarder{
		Registry: reg,
		events:   make(chan mission.Event, forwardBuffer),
		last:     make(map[uuid.UUID]string),
	}
}

func (f *Forwarder) Publish(ev mission.Event) {
	if !f.entered(ev) || !interesting(ev) {
		return
	}
	select {
	case f.events <- ev:
	default:
		f.dropped.Add(1)
	}
}

// entered records ev's status and reports whether the entity changed status.
// Deletions forget the entity.
func (f *Forwarder) entered(ev mission.Event) bool {
	id, ok := eventID(ev)
	if !ok {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	switch ev.Type {
	case mission.EventTaskDeleted, mission.EventAgentDeleted:
		delete(f.last, id)
		return false
	case mission.EventTaskUpdate, mission.EventAgentUpdate:
		if prev, seen := f.last[id]; seen && prev == ev.Status {
			return false
		}
		f.last[id] = ev.Status
		return true
	}
	return false
}

func eventID(ev mission.Event) (uuid.UUID, bool) {
	switch {
	case ev.TaskID != nil:
		return *ev.TaskID, true
	case ev.AgentID != nil:
		return *ev.AgentID, true
	}
	return uuid.Nil, false
}

// Dropped reports events discarded because the queue was full.
func (f *Forwarder) Dropped() int64 { return f.dropped.Load() }

func interesting(ev mission.Event) bool {
	switch ev.Type {
	case mission.EventTaskUpdate:
		return ev.Status == string(mission.TaskReview) || ev.Status == string(mission.TaskDone)
	case mission.EventAgentUpdate:
		return ev.Status == string(mission.AgentError)
	}
	return false
}

// Run delivers queued events until ctx is done.
func (f *Forwarder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-f.events:
			f.deliver(ctx, ev)
		}
	}
}

func (f *Forwarder) deliver(ctx context.Context, ev mission.Event) {
	msg, ok := f.format(ev)
	if !ok {
		return
	}
	if err := f.Registry.NotifyAll(ctx, msg); err != nil {
		id, _ := eventID(ev)
		slog.Warn("notification failed", "event", ev.Type, "id", id, "err", err)
	}
}

// format describes ev. Status comes from the event since the entity may
// have moved on by the time Run gets to it.
func (f *Forwarder) format(ev mission.Event) (string, bool) {
	if f.Lookup == nil {
		return "", false
	}
	if ev.TaskID != nil {
		t, err := f.Lookup.Task(*ev.TaskID)
		if err != nil {
			return "", false
		}
		status := mission.TaskStatus(ev.Status)
		if status == mission.TaskDone {
			return fmt.Sprintf("[%s] %s is done", status.DisplayName(), t.Title), true
		}
		by := ""
		if t.AssignedAgent != nil {
			by = " (" + *t.AssignedAgent + ")"
		}
		return fmt.Sprintf("[%s] %s is ready for review%s", status.DisplayName(), t.Title, by), true
	}
	a, err := f.Lookup.Agent(*ev.AgentID)
	if err != nil {
		return "", false
	}
	return fmt.Sprintf("[%s] %s (%s) hit an error", mission.AgentStatus(ev.Status).DisplayName(), a.Name, a.Role), true
}

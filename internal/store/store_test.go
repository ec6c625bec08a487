package store

import (
	"testing"
	"testing/fstest"
	"time"

	"github.com/google/uuid"

	"github.com/ankittk/missioncontrol/internal/mission"
)

func TestLoadMigrations_sortedAndFiltered(t *testing.T) {
	t.Parallel()
	fsys := fstest.MapFS{
		"migrations/010_late.sql":  {Data: []byte("SELECT 10;")},
		"migrations/002_next.sql":  {Data: []byte("SELECT 2;")},
		"migrations/001_init.sql":  {Data: []byte("SELECT 1;")},
		"migrations/README.md":     {Data: []byte("ignored")},
		"migrations/sub/003_x.sql": {Data: []byte("nested")},
	}
	migs, err := LoadMigrations(fsys, "migrations")
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}
	if len(migs) != 3 {
		t.Fatalf("got %d migrations, want 3", len(migs))
	}
	for i, want := range []int{1, 2, 10} {
		if migs[i].Version != want {
			t.Fatalf("migs[%d].Version = %d, want %d", i, migs[i].Version, want)
		}
	}
	pending := Pending(migs, map[int]bool{1: true, 10: true})
	if len(pending) != 1 || pending[0].Name != "002_next.sql" {
		t.Fatalf("Pending = %+v", pending)
	}
}

func TestParseMigrationVersion(t *testing.T) {
	t.Parallel()
	if v, err := ParseMigrationVersion("007_add_tags.sql"); err != nil || v != 7 {
		t.Fatalf("got %d, %v", v, err)
	}
	if v, err := ParseMigrationVersion("42.sql"); err != nil || v != 42 {
		t.Fatalf("got %d, %v", v, err)
	}
	if _, err := ParseMigrationVersion("init.sql"); err == nil {
		t.Fatal("expected error for non-numeric version")
	}
}

func TestRows_roundTrip(t *testing.T) {
	t.Parallel()
	at := time.Date(2025, 2, 3, 4, 5, 6, 789, time.UTC)
	clock := func() time.Time { return at }

	m := mission.New(mission.WithClock(clock))
	a := m.Spawn("Rex", "Researcher", nil, "")
	row, err := AgentToRow(a)
	if err != nil {
		t.Fatal(err)
	}
	if row.CurrentTask != nil || row.Capabilities != "null" {
		t.Fatalf("row = %+v", row)
	}
	back, err := row.Agent()
	if err != nil {
		t.Fatal(err)
	}
	if !back.CreatedAt.Equal(at) || back.Status != mission.AgentIdle || back.Capabilities != nil {
		t.Fatalf("agent = %+v", back)
	}

	to := uuid.New()
	msg := mission.AgentMessage{ID: uuid.New(), FromAgent: a.ID, ToAgent: &to, Message: "hi", Timestamp: at, Type: mission.MessageAgreement}
	gotMsg, err := MessageToRow(msg).AgentMessage()
	if err != nil {
		t.Fatal(err)
	}
	if *gotMsg.ToAgent != to || gotMsg.Type != mission.MessageAgreement || !gotMsg.Timestamp.Equal(at) {
		t.Fatalf("message = %+v", gotMsg)
	}

	bad := TaskRow{ID: uuid.NewString(), Status: "INBOX", Priority: "SOMEDAY"}
	if _, err := bad.Task(); err == nil {
		t.Fatal("expected error for unknown priority")
	}
}

func TestRecentLimit(t *testing.T) {
	t.Parallel()
	cases := []struct{ in, def, want int }{
		{0, DefaultRecentMessages, DefaultRecentMessages},
		{-1, DefaultAgentMessages, DefaultAgentMessages},
		{7, DefaultRecentMessages, 7},
		{MessageRetention * 2, DefaultRecentMessages, MessageRetention},
	}
	for _, c := range cases {
		if got := RecentLimit(c.in, c.def); got != c.want {
			t.Errorf("RecentLimit(%d, %d) = %d, want %d", c.in, c.def, got, c.want)
		}
	}
}

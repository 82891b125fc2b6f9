package schedule

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"remindbot/internal/storage"
	"remindbot/pkg/logx"
)

type capture struct {
	mu    sync.Mutex
	texts []string
}

func (c *capture) deliver(_ context.Context, text string) {
	c.mu.Lock()
	c.texts = append(c.texts, text)
	c.mu.Unlock()
}

func (c *capture) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.texts...)
}

func newService(t *testing.T) (*Service, *capture, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	mock.Set(time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC))
	cap := &capture{}
	return New(mock, cap.deliver, logx.Nop()), cap, mock
}

func TestScheduleAllTimerCounts(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		until time.Duration
		want  int
	}{
		{name: "far future", until: 3 * time.Hour, want: 5},
		{name: "exactly 2h", until: 2 * time.Hour, want: 4},
		{name: "within 30m", until: 20 * time.Minute, want: 2},
		{name: "within 15m", until: 10 * time.Minute, want: 1},
		{name: "already past", until: -time.Minute, want: 0},
		{name: "now", until: 0, want: 0},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc, _, mock := newService(t)
			svc.ScheduleAll("r1", mock.Now().Add(tt.until), "msg")
			if got := svc.Pending("r1"); got != tt.want {
				t.Fatalf("Pending = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestScheduleAllIsIdempotentPerKey(t *testing.T) {
	svc, cap, mock := newService(t)
	at := mock.Now().Add(3 * time.Hour)

	svc.ScheduleAll("r1", at, "first")
	svc.ScheduleAll("r1", at, "second")
	if got := svc.Pending("r1"); got != 5 {
		t.Fatalf("Pending after re-register = %d, want 5", got)
	}

	mock.Add(4 * time.Hour)
	for _, text := range cap.all() {
		if text == "⏰ Reminder in 2 hours: first" {
			t.Fatal("replaced timer still fired the old message")
		}
	}
	if got := len(cap.all()); got != 5 {
		t.Fatalf("fired %d, want 5", got)
	}
}

func TestLadderFiresInOffsetOrder(t *testing.T) {
	svc, cap, mock := newService(t)
	svc.ScheduleAll("r1", mock.Now().Add(3*time.Hour), "Submit resume")

	mock.Add(4 * time.Hour)

	want := []string{
		"⏰ Reminder in 2 hours: Submit resume",
		"⏰ Reminder in 1 hour: Submit resume",
		"⏰ Reminder in 30 minutes: Submit resume",
		"⏰ Reminder in 15 minutes: Submit resume",
		"🔔 It's time! Submit resume",
	}
	got := cap.all()
	if len(got) != len(want) {
		t.Fatalf("fired %d, want %d: %q", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("fire %d = %q, want %q", i, got[i], want[i])
		}
	}
	if svc.Pending("r1") != 0 {
		t.Fatalf("Pending after all fires = %d", svc.Pending("r1"))
	}
}

func TestCancelAllIsIdempotent(t *testing.T) {
	svc, cap, mock := newService(t)
	svc.ScheduleAll("r1", mock.Now().Add(3*time.Hour), "msg")
	svc.ScheduleAll("r2", mock.Now().Add(3*time.Hour), "other")

	if n := svc.CancelAll("r1"); n != 5 {
		t.Fatalf("CancelAll = %d, want 5", n)
	}
	if n := svc.CancelAll("r1"); n != 0 {
		t.Fatalf("repeated CancelAll = %d, want 0", n)
	}
	if n := svc.CancelAll("missing"); n != 0 {
		t.Fatalf("CancelAll of unknown id = %d, want 0", n)
	}

	mock.Add(4 * time.Hour)
	for _, text := range cap.all() {
		if text == "🔔 It's time! msg" {
			t.Fatal("cancelled timer fired")
		}
	}
	// The untouched reminder still fires its full ladder.
	if got := len(cap.all()); got != 5 {
		t.Fatalf("fired %d, want 5", got)
	}
}

func TestReloadRebuildsFromStore(t *testing.T) {
	svc, _, mock := newService(t)
	st, err := storage.Open(storage.Config{Path: filepath.Join(t.TempDir(), "test.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	now := mock.Now()
	seed := []struct {
		id    string
		until time.Duration
		want  int
	}{
		{id: "far", until: 5 * time.Hour, want: 5},
		{id: "soon", until: 20 * time.Minute, want: 2},
		{id: "past", until: -time.Hour, want: 0},
	}
	wantTotal := 0
	for _, s := range seed {
		r := storage.Reminder{ID: s.id, At: now.Add(s.until), Message: "m", CreatedBy: 1, CreatedAt: now}
		if err := st.InsertReminder(ctx, r); err != nil {
			t.Fatalf("InsertReminder: %v", err)
		}
		wantTotal += s.want
	}

	scheduled, err := svc.Reload(ctx, st, now)
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if scheduled != 2 {
		t.Fatalf("scheduled = %d, want 2 (past reminder skipped)", scheduled)
	}
	if got := svc.PendingTotal(); got != wantTotal {
		t.Fatalf("PendingTotal = %d, want %d", got, wantTotal)
	}
	for _, s := range seed {
		if got := svc.Pending(s.id); got != s.want {
			t.Fatalf("Pending(%s) = %d, want %d", s.id, got, s.want)
		}
	}
}

func TestFirePanicDoesNotCorruptRegistry(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC))

	fired := 0
	svc := New(mock, func(context.Context, string) {
		fired++
		panic("transport exploded")
	}, logx.Nop())

	svc.ScheduleAll("r1", mock.Now().Add(20*time.Minute), "msg")
	mock.Add(time.Hour)

	if fired != 2 {
		t.Fatalf("fired = %d, want 2 (panic must not stop later timers)", fired)
	}
	if svc.PendingTotal() != 0 {
		t.Fatalf("PendingTotal = %d", svc.PendingTotal())
	}
	// Registry still usable after panics.
	svc.ScheduleAll("r2", mock.Now().Add(10*time.Minute), "again")
	if svc.Pending("r2") != 1 {
		t.Fatalf("Pending(r2) = %d", svc.Pending("r2"))
	}
}

package approval

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"remindbot/internal/notify"
	"remindbot/internal/reminder"
	"remindbot/internal/roles"
	"remindbot/internal/schedule"
	"remindbot/internal/storage"
	"remindbot/internal/transport"
	"remindbot/pkg/logx"
)

type fakeAdapter struct {
	mu    sync.Mutex
	sends []sentMessage
}

type sentMessage struct {
	to   int64
	text string
}

func (f *fakeAdapter) Start(context.Context, chan<- transport.Message) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                            { return nil }

func (f *fakeAdapter) SendText(_ context.Context, to transport.ChatTarget, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, sentMessage{to: to.ChatID, text: text})
	return nil
}

func (f *fakeAdapter) sentTo(id int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, s := range f.sends {
		if s.to == id {
			out = append(out, s.text)
		}
	}
	return out
}

type fixture struct {
	approvals *Service
	reminders *reminder.Service
	sched     *schedule.Service
	store     storage.Store
	adapter   *fakeAdapter
	mock      *clock.Mock
}

const superadminID = int64(1)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := storage.Open(storage.Config{Path: filepath.Join(t.TempDir(), "test.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	mock := clock.NewMock()
	mock.Set(time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC))

	roleSvc := roles.New(st, logx.Nop())
	if err := roleSvc.EnsureSuperadmin(context.Background(), superadminID); err != nil {
		t.Fatalf("seed superadmin: %v", err)
	}

	sched := schedule.New(mock, func(context.Context, string) {}, logx.Nop())
	rems := reminder.New(st, sched, mock, logx.Nop())

	adapter := &fakeAdapter{}
	dispatcher := notify.New(notify.Config{RatePerSec: 100}, adapter, -100, logx.Nop())

	return &fixture{
		approvals: New(st, rems, roleSvc, dispatcher, mock, logx.Nop()),
		reminders: rems,
		sched:     sched,
		store:     st,
		adapter:   adapter,
		mock:      mock,
	}
}

func (f *fixture) createReminder(t *testing.T) storage.Reminder {
	t.Helper()
	r, err := f.reminders.Create(context.Background(), f.mock.Now().Add(3*time.Hour), "ship release", 7, "@admin")
	if err != nil {
		t.Fatalf("create reminder: %v", err)
	}
	return r
}

func TestRequestCreatesSinglePendingAndNotifiesSuperadmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.createReminder(t)

	if err := f.approvals.Request(ctx, r.ID, 7); err != nil {
		t.Fatalf("Request: %v", err)
	}
	// A second request from another admin replaces the first.
	if err := f.approvals.Request(ctx, r.ID, 8); err != nil {
		t.Fatalf("Request again: %v", err)
	}

	p, err := f.store.GetPendingDelete(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetPendingDelete: %v", err)
	}
	if p.RequestedBy != 8 {
		t.Fatalf("RequestedBy = %d, want 8", p.RequestedBy)
	}
	if got := f.adapter.sentTo(superadminID); len(got) != 2 {
		t.Fatalf("superadmin notifications = %d, want 2", len(got))
	}
}

func TestRequestUnknownReminderFails(t *testing.T) {
	f := newFixture(t)
	if err := f.approvals.Request(context.Background(), "nope", 7); !errors.Is(err, reminder.ErrNotFound) {
		t.Fatalf("Request = %v, want ErrNotFound", err)
	}
}

func TestApproveDeletesReminderAndClearsPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.createReminder(t)

	if err := f.approvals.Request(ctx, r.ID, 7); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if err := f.approvals.Approve(ctx, r.ID); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	if _, err := f.reminders.Get(ctx, r.ID); !errors.Is(err, reminder.ErrNotFound) {
		t.Fatalf("reminder after approve = %v, want ErrNotFound", err)
	}
	if f.sched.Pending(r.ID) != 0 {
		t.Fatalf("timers after approve = %d, want 0", f.sched.Pending(r.ID))
	}
	if _, err := f.store.GetPendingDelete(ctx, r.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("pending after approve = %v, want ErrNotFound", err)
	}
	if got := f.adapter.sentTo(7); len(got) != 1 {
		t.Fatalf("requester notifications = %d, want 1", len(got))
	}

	if err := f.approvals.Approve(ctx, r.ID); !errors.Is(err, ErrNoPendingRequest) {
		t.Fatalf("Approve twice = %v, want ErrNoPendingRequest", err)
	}
}

func TestRejectKeepsReminderAndTimers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.createReminder(t)

	if err := f.approvals.Request(ctx, r.ID, 7); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if err := f.approvals.Reject(ctx, r.ID); err != nil {
		t.Fatalf("Reject: %v", err)
	}

	if _, err := f.reminders.Get(ctx, r.ID); err != nil {
		t.Fatalf("reminder after reject = %v, want intact", err)
	}
	if f.sched.Pending(r.ID) != 5 {
		t.Fatalf("timers after reject = %d, want 5", f.sched.Pending(r.ID))
	}
	if _, err := f.store.GetPendingDelete(ctx, r.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("pending after reject = %v, want ErrNotFound", err)
	}

	if err := f.approvals.Reject(ctx, r.ID); !errors.Is(err, ErrNoPendingRequest) {
		t.Fatalf("Reject twice = %v, want ErrNoPendingRequest", err)
	}
}

func TestDirectDeleteLeavesNoPendingRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.createReminder(t)

	if err := f.reminders.Delete(ctx, r.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := f.store.GetPendingDelete(ctx, r.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("pending after direct delete = %v, want ErrNotFound", err)
	}
}

package schedule

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"remindbot/internal/storage"
	"remindbot/pkg/logx"
)

// Step is one rung of the lead-time ladder.
type Step struct {
	Offset time.Duration
	Prefix string
}

// Ladder is the fixed, ordered list of lead times before a reminder's target
// time at which a notification fires. Not configurable at runtime: the timer
// set must stay derivable from stored reminders alone across code versions.
var Ladder = []Step{
	{Offset: 2 * time.Hour, Prefix: "⏰ Reminder in 2 hours:"},
	{Offset: time.Hour, Prefix: "⏰ Reminder in 1 hour:"},
	{Offset: 30 * time.Minute, Prefix: "⏰ Reminder in 30 minutes:"},
	{Offset: 15 * time.Minute, Prefix: "⏰ Reminder in 15 minutes:"},
	{Offset: 0, Prefix: "🔔 It's time!"},
}

// DeliverFunc emits one lead-time message. Implementations must swallow
// transport failures; the scheduler additionally guards every callback so a
// panic can never corrupt the timer registry.
type DeliverFunc func(ctx context.Context, text string)

// timerKey identifies one live timer. It is reconstructible purely from the
// reminder, so timers can be cancelled by reminder id without a persisted
// timer table.
type timerKey struct {
	reminderID string
	step       int
}

type timerEntry struct {
	timer *clock.Timer
	ver   uint64
}

// Service owns the ephemeral timer registry. The reminder store is the only
// source of truth; Reload rebuilds the registry from it at startup.
type Service struct {
	clk     clock.Clock
	deliver DeliverFunc
	log     logx.Logger

	baseCtx context.Context

	mu     sync.Mutex
	timers map[timerKey]timerEntry
	ver    uint64
}

func New(clk clock.Clock, deliver DeliverFunc, log logx.Logger) *Service {
	if clk == nil {
		clk = clock.New()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		clk:     clk,
		deliver: deliver,
		log:     log,
		baseCtx: context.Background(),
		timers:  map[timerKey]timerEntry{},
	}
}

// Start installs the context passed to fire callbacks. Optional; callbacks
// use context.Background() until it is called.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()
}

// ScheduleAll registers one timer per still-future ladder step for the
// reminder. Registration is idempotent per (reminder, step): an existing
// timer is replaced. Past-due steps are silently skipped — no catch-up
// firing for offsets already elapsed at registration time.
func (s *Service) ScheduleAll(reminderID string, at time.Time, message string) {
	now := s.clk.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	registered := 0
	for i, step := range Ladder {
		fireAt := at.Add(-step.Offset)
		if !fireAt.After(now) {
			continue
		}

		key := timerKey{reminderID: reminderID, step: i}
		if old, ok := s.timers[key]; ok {
			old.timer.Stop()
		}
		s.ver++
		ver := s.ver
		text := step.Prefix + " " + message
		entry := timerEntry{ver: ver}
		entry.timer = s.clk.AfterFunc(fireAt.Sub(now), func() {
			s.fire(key, ver, text)
		})
		s.timers[key] = entry
		registered++
	}

	if registered > 0 {
		s.log.Debug("timers registered",
			logx.String("reminder_id", reminderID),
			logx.Int("count", registered),
			logx.Time("target", at))
	}
}

func (s *Service) fire(key timerKey, ver uint64, text string) {
	s.mu.Lock()
	cur, ok := s.timers[key]
	if !ok || cur.ver != ver {
		// Cancelled or replaced after this timer was armed; drop it.
		s.mu.Unlock()
		return
	}
	delete(s.timers, key)
	ctx := s.baseCtx
	s.mu.Unlock()

	// Error boundary: a bad delivery must never crash the process or block
	// subsequent timers.
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in fire callback",
				logx.String("reminder_id", key.reminderID),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())))
		}
	}()
	s.deliver(ctx, text)
}

// CancelAll stops every timer for the reminder across all ladder steps.
// Cancelling fired or nonexistent timers is a no-op, never an error.
func (s *Service) CancelAll(reminderID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cancelled := 0
	for key, entry := range s.timers {
		if key.reminderID != reminderID {
			continue
		}
		entry.timer.Stop()
		delete(s.timers, key)
		cancelled++
	}
	if cancelled > 0 {
		s.log.Debug("timers cancelled",
			logx.String("reminder_id", reminderID),
			logx.Int("count", cancelled))
	}
	return cancelled
}

// Reload rebuilds the timer registry from the store. Invoked exactly once at
// process start, before the command surface opens. Reminders whose target
// time has fully elapsed are left un-scheduled; they remain listed until an
// operator deletes them.
func (s *Service) Reload(ctx context.Context, store storage.Store, now time.Time) (int, error) {
	all, err := store.ListReminders(ctx)
	if err != nil {
		return 0, err
	}

	scheduled := 0
	for _, r := range all {
		if r.At.Before(now) {
			continue
		}
		s.ScheduleAll(r.ID, r.At, r.Message)
		scheduled++
	}
	s.log.Info("reminders reloaded",
		logx.Int("stored", len(all)),
		logx.Int("scheduled", scheduled),
		logx.Int("timers", s.PendingTotal()))
	return scheduled, nil
}

// Pending reports the number of live timers for one reminder.
func (s *Service) Pending(reminderID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key := range s.timers {
		if key.reminderID == reminderID {
			n++
		}
	}
	return n
}

// PendingTotal reports the number of live timers across all reminders.
func (s *Service) PendingTotal() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels every live timer. Shutdown only; the registry is rebuilt by
// Reload on the next start.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, entry := range s.timers {
		entry.timer.Stop()
		delete(s.timers, key)
	}
}

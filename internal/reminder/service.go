package reminder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"remindbot/internal/schedule"
	"remindbot/internal/storage"
	"remindbot/pkg/logx"
)

var (
	// ErrEmptyMessage rejects reminders whose message is empty after trimming.
	ErrEmptyMessage = errors.New("reminder message is empty")

	// ErrNotFound aliases the store sentinel for callers that only import
	// this package.
	ErrNotFound = storage.ErrNotFound
)

// Service owns the reminder lifecycle: durable record plus derived timers.
// Mutations keep the two consistent — create persists before scheduling,
// delete cancels timers before removing the record, so a crash mid-operation
// can orphan a record but never leave timers without a backing reminder.
type Service struct {
	store storage.Store
	sched *schedule.Service
	clk   clock.Clock
	log   logx.Logger
}

func New(store storage.Store, sched *schedule.Service, clk clock.Clock, log logx.Logger) *Service {
	if clk == nil {
		clk = clock.New()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{store: store, sched: sched, clk: clk, log: log}
}

// Create validates, persists, and schedules a new reminder. The target time
// may already be in the past; past ladder steps are simply never registered.
func (s *Service) Create(ctx context.Context, at time.Time, message string, createdBy int64, createdByName string) (storage.Reminder, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return storage.Reminder{}, ErrEmptyMessage
	}

	r := storage.Reminder{
		ID:            uuid.NewString(),
		At:            at.UTC(),
		Message:       message,
		CreatedBy:     createdBy,
		CreatedByName: createdByName,
		CreatedAt:     s.clk.Now().UTC(),
	}
	if err := s.store.InsertReminder(ctx, r); err != nil {
		return storage.Reminder{}, fmt.Errorf("insert reminder: %w", err)
	}
	s.sched.ScheduleAll(r.ID, r.At, r.Message)

	s.log.Info("reminder created",
		logx.String("reminder_id", r.ID),
		logx.Time("target", r.At),
		logx.Int64("created_by", createdBy))
	return r, nil
}

func (s *Service) Get(ctx context.Context, id string) (storage.Reminder, error) {
	return s.store.GetReminder(ctx, id)
}

// Delete cancels all timers for the reminder, then removes the record.
// Returns ErrNotFound when no record existed (the cancel was a no-op then).
func (s *Service) Delete(ctx context.Context, id string) error {
	s.sched.CancelAll(id)
	deleted, err := s.store.DeleteReminder(ctx, id)
	if err != nil {
		return fmt.Errorf("delete reminder: %w", err)
	}
	if !deleted {
		return ErrNotFound
	}
	s.log.Info("reminder deleted", logx.String("reminder_id", id))
	return nil
}

// List returns every stored reminder ordered by target time ascending,
// including fully elapsed ones (they remain until explicitly deleted).
func (s *Service) List(ctx context.Context) ([]storage.Reminder, error) {
	return s.store.ListReminders(ctx)
}

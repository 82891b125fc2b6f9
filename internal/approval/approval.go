package approval

import (
	"context"
	"errors"
	"fmt"

	"github.com/benbjohnson/clock"

	"remindbot/internal/notify"
	"remindbot/internal/reminder"
	"remindbot/internal/roles"
	"remindbot/internal/storage"
	"remindbot/pkg/logx"
)

// ErrNoPendingRequest is returned by Approve/Reject when no request exists
// for the reminder id.
var ErrNoPendingRequest = errors.New("no pending delete request")

// Service is the two-party deletion workflow. Superadmins delete directly
// through reminder.Service; admins go through Request → Approve/Reject.
// Each pending request is keyed by reminder id; a re-request replaces the
// requester of record rather than erroring.
type Service struct {
	store     storage.Store
	reminders *reminder.Service
	roles     *roles.Service
	notify    *notify.Dispatcher
	clk       clock.Clock
	log       logx.Logger
}

func New(store storage.Store, reminders *reminder.Service, roleSvc *roles.Service, dispatcher *notify.Dispatcher, clk clock.Clock, log logx.Logger) *Service {
	if clk == nil {
		clk = clock.New()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		store:     store,
		reminders: reminders,
		roles:     roleSvc,
		notify:    dispatcher,
		clk:       clk,
		log:       log,
	}
}

// Request records an admin's delete request and notifies the superadmin.
// The reminder must exist; the request is upserted so only one is ever
// outstanding per reminder id.
func (s *Service) Request(ctx context.Context, reminderID string, requestedBy int64) error {
	if _, err := s.reminders.Get(ctx, reminderID); err != nil {
		return err
	}

	p := storage.PendingDelete{
		ReminderID:  reminderID,
		RequestedBy: requestedBy,
		RequestedAt: s.clk.Now().UTC(),
	}
	if err := s.store.UpsertPendingDelete(ctx, p); err != nil {
		return fmt.Errorf("record pending delete: %w", err)
	}

	superadmin, err := s.roles.SuperadminID(ctx)
	if err != nil {
		return err
	}
	s.notify.Direct(ctx, superadmin, fmt.Sprintf(
		"⚠️ Admin %d requested deletion of reminder %s.\nUse /approve %s or /reject %s.",
		requestedBy, reminderID, reminderID, reminderID))

	s.log.Info("delete requested",
		logx.String("reminder_id", reminderID),
		logx.Int64("requested_by", requestedBy))
	return nil
}

// Approve resolves a pending request by deleting the reminder (timers
// cancelled first) and notifying the requester. Fails with
// ErrNoPendingRequest when nothing is pending for the id.
func (s *Service) Approve(ctx context.Context, reminderID string) error {
	p, err := s.store.GetPendingDelete(ctx, reminderID)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNoPendingRequest
	}
	if err != nil {
		return err
	}

	if err := s.reminders.Delete(ctx, reminderID); err != nil && !errors.Is(err, reminder.ErrNotFound) {
		return err
	}
	if _, err := s.store.DeletePendingDelete(ctx, reminderID); err != nil {
		return fmt.Errorf("clear pending delete: %w", err)
	}

	s.notify.Direct(ctx, p.RequestedBy, fmt.Sprintf(
		"✅ Your deletion request for %s was approved.", reminderID))
	s.log.Info("delete approved",
		logx.String("reminder_id", reminderID),
		logx.Int64("requested_by", p.RequestedBy))
	return nil
}

// Reject removes the pending request, leaving the reminder and its timers
// intact, and notifies the requester.
func (s *Service) Reject(ctx context.Context, reminderID string) error {
	p, err := s.store.GetPendingDelete(ctx, reminderID)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNoPendingRequest
	}
	if err != nil {
		return err
	}

	if _, err := s.store.DeletePendingDelete(ctx, reminderID); err != nil {
		return fmt.Errorf("clear pending delete: %w", err)
	}

	s.notify.Direct(ctx, p.RequestedBy, fmt.Sprintf(
		"🚫 Your deletion request for %s was rejected.", reminderID))
	s.log.Info("delete rejected",
		logx.String("reminder_id", reminderID),
		logx.Int64("requested_by", p.RequestedBy))
	return nil
}

package storage

import (
	"context"
)

// Store is the persistence API used by the services. Four independent
// collections: roles, reminders, blocked users, pending deletes.
type Store interface {
	// roles
	InsertRole(ctx context.Context, userID int64, role string) (inserted bool, err error)
	GetRole(ctx context.Context, userID int64) (role string, ok bool, err error)
	DeleteAdmin(ctx context.Context, userID int64) (deleted bool, err error)
	ListRoles(ctx context.Context) ([]RoleEntry, error)
	SuperadminID(ctx context.Context) (int64, bool, error)

	// reminders
	InsertReminder(ctx context.Context, r Reminder) error
	GetReminder(ctx context.Context, id string) (Reminder, error)
	DeleteReminder(ctx context.Context, id string) (deleted bool, err error)
	// ListReminders returns all reminders ordered by target time ascending.
	// Callers filter by At when only future reminders are wanted.
	ListReminders(ctx context.Context) ([]Reminder, error)

	// blocked users
	UpsertBlock(ctx context.Context, b BlockEntry) error
	DeleteBlock(ctx context.Context, userID int64) (deleted bool, err error)
	IsBlocked(ctx context.Context, userID int64) (bool, error)
	ListBlocks(ctx context.Context) ([]BlockEntry, error)

	// pending deletes
	UpsertPendingDelete(ctx context.Context, p PendingDelete) error
	GetPendingDelete(ctx context.Context, reminderID string) (PendingDelete, error)
	DeletePendingDelete(ctx context.Context, reminderID string) (deleted bool, err error)

	Close() error
}

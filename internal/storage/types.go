package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned by lookups for records that do not exist.
var ErrNotFound = errors.New("not found")

// Role values for role entries.
const (
	RoleSuperadmin = "superadmin"
	RoleAdmin      = "admin"
)

// Config configures the sqlite store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// RoleEntry maps a caller id to its role. Exactly one superadmin row exists.
type RoleEntry struct {
	UserID int64
	Role   string
}

// Reminder is the durable record timers are derived from. Timers themselves
// are never persisted; everything the scheduler needs must live here.
type Reminder struct {
	ID            string
	At            time.Time // target time, UTC
	Message       string
	CreatedBy     int64
	CreatedByName string // display label cached at creation, never re-resolved
	CreatedAt     time.Time
}

// BlockEntry marks a caller as blocked. Presence = blocked.
type BlockEntry struct {
	UserID    int64
	Reason    string
	BlockedAt time.Time
}

// PendingDelete gates a non-superadmin deletion behind superadmin approval.
// At most one row exists per reminder id.
type PendingDelete struct {
	ReminderID  string
	RequestedBy int64
	RequestedAt time.Time
}

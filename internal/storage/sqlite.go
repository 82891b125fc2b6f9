package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"remindbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

// Open initializes the sqlite store, running migrations.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if dir := filepath.Dir(cfg.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- roles ----

func (s *sqliteStore) InsertRole(ctx context.Context, userID int64, role string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO roles(user_id, role) VALUES(?, ?)
		 ON CONFLICT(user_id) DO NOTHING`,
		userID, role,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *sqliteStore) GetRole(ctx context.Context, userID int64) (string, bool, error) {
	var role string
	err := s.db.QueryRowContext(ctx, `SELECT role FROM roles WHERE user_id = ?`, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return role, true, nil
}

func (s *sqliteStore) DeleteAdmin(ctx context.Context, userID int64) (bool, error) {
	// Only plain admins are removable; the superadmin row is untouchable here.
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM roles WHERE user_id = ? AND role = ?`, userID, RoleAdmin)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *sqliteStore) ListRoles(ctx context.Context) ([]RoleEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id, role FROM roles ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RoleEntry
	for rows.Next() {
		var e RoleEntry
		if err := rows.Scan(&e.UserID, &e.Role); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *sqliteStore) SuperadminID(ctx context.Context) (int64, bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id FROM roles WHERE role = ? LIMIT 1`, RoleSuperadmin).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// ---- reminders ----

func (s *sqliteStore) InsertReminder(ctx context.Context, r Reminder) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reminders(id, at, message, created_by, created_by_name, created_at)
		 VALUES(?,?,?,?,?,?)`,
		r.ID, r.At.UnixMilli(), r.Message, r.CreatedBy, nullStr(r.CreatedByName), r.CreatedAt.UnixMilli(),
	)
	return err
}

func (s *sqliteStore) GetReminder(ctx context.Context, id string) (Reminder, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, at, message, created_by, created_by_name, created_at
		 FROM reminders WHERE id = ?`, id)
	r, err := scanReminder(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return Reminder{}, ErrNotFound
	}
	return r, err
}

func (s *sqliteStore) DeleteReminder(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reminders WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *sqliteStore) ListReminders(ctx context.Context) ([]Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, at, message, created_by, created_by_name, created_at
		 FROM reminders ORDER BY at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Reminder
	for rows.Next() {
		r, err := scanReminder(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanReminder(scan func(dest ...any) error) (Reminder, error) {
	var (
		r        Reminder
		atMS     int64
		createMS int64
		name     sql.NullString
	)
	if err := scan(&r.ID, &atMS, &r.Message, &r.CreatedBy, &name, &createMS); err != nil {
		return Reminder{}, err
	}
	r.At = fromMillis(atMS)
	r.CreatedAt = fromMillis(createMS)
	r.CreatedByName = name.String
	return r, nil
}

// ---- blocked users ----

func (s *sqliteStore) UpsertBlock(ctx context.Context, b BlockEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO blocked_users(user_id, reason, blocked_at) VALUES(?,?,?)
		 ON CONFLICT(user_id) DO UPDATE SET reason=excluded.reason, blocked_at=excluded.blocked_at`,
		b.UserID, nullStr(b.Reason), b.BlockedAt.UnixMilli(),
	)
	return err
}

func (s *sqliteStore) DeleteBlock(ctx context.Context, userID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM blocked_users WHERE user_id = ?`, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *sqliteStore) IsBlocked(ctx context.Context, userID int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM blocked_users WHERE user_id = ?`, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *sqliteStore) ListBlocks(ctx context.Context) ([]BlockEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, reason, blocked_at FROM blocked_users ORDER BY blocked_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BlockEntry
	for rows.Next() {
		var (
			b      BlockEntry
			reason sql.NullString
			ms     int64
		)
		if err := rows.Scan(&b.UserID, &reason, &ms); err != nil {
			return nil, err
		}
		b.Reason = reason.String
		b.BlockedAt = fromMillis(ms)
		out = append(out, b)
	}
	return out, rows.Err()
}

// ---- pending deletes ----

func (s *sqliteStore) UpsertPendingDelete(ctx context.Context, p PendingDelete) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pending_deletes(reminder_id, requested_by, requested_at) VALUES(?,?,?)
		 ON CONFLICT(reminder_id) DO UPDATE SET requested_by=excluded.requested_by, requested_at=excluded.requested_at`,
		p.ReminderID, p.RequestedBy, p.RequestedAt.UnixMilli(),
	)
	return err
}

func (s *sqliteStore) GetPendingDelete(ctx context.Context, reminderID string) (PendingDelete, error) {
	var (
		p  PendingDelete
		ms int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT reminder_id, requested_by, requested_at FROM pending_deletes WHERE reminder_id = ?`,
		reminderID).Scan(&p.ReminderID, &p.RequestedBy, &ms)
	if errors.Is(err, sql.ErrNoRows) {
		return PendingDelete{}, ErrNotFound
	}
	if err != nil {
		return PendingDelete{}, err
	}
	p.RequestedAt = fromMillis(ms)
	return p, nil
}

func (s *sqliteStore) DeletePendingDelete(ctx context.Context, reminderID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM pending_deletes WHERE reminder_id = ?`, reminderID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

package roles

import (
	"context"
	"errors"
	"fmt"

	"remindbot/internal/storage"
	"remindbot/pkg/logx"
)

var (
	// ErrAlreadyAssigned is returned by AddAdmin when the id already holds
	// any role (admin or superadmin).
	ErrAlreadyAssigned = errors.New("user already has a role")

	// ErrNotAdmin is returned by RemoveAdmin when the id holds no admin
	// role. The superadmin row is never removable and also reports this.
	ErrNotAdmin = errors.New("user is not an admin")
)

// Service is a pure role lookup over the store; no scheduling logic.
type Service struct {
	store storage.Store
	log   logx.Logger
}

func New(store storage.Store, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{store: store, log: log}
}

// EnsureSuperadmin seeds the superadmin row at startup if absent.
// Exactly one superadmin exists at all times.
func (s *Service) EnsureSuperadmin(ctx context.Context, userID int64) error {
	_, ok, err := s.store.SuperadminID(ctx)
	if err != nil {
		return fmt.Errorf("lookup superadmin: %w", err)
	}
	if ok {
		return nil
	}
	if _, err := s.store.InsertRole(ctx, userID, storage.RoleSuperadmin); err != nil {
		return fmt.Errorf("seed superadmin: %w", err)
	}
	s.log.Info("superadmin seeded", logx.Int64("user_id", userID))
	return nil
}

func (s *Service) IsSuperadmin(ctx context.Context, userID int64) (bool, error) {
	role, ok, err := s.store.GetRole(ctx, userID)
	if err != nil {
		return false, err
	}
	return ok && role == storage.RoleSuperadmin, nil
}

// IsOperator reports whether the id holds any role (admin or superadmin).
func (s *Service) IsOperator(ctx context.Context, userID int64) (bool, error) {
	_, ok, err := s.store.GetRole(ctx, userID)
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (s *Service) AddAdmin(ctx context.Context, userID int64) error {
	inserted, err := s.store.InsertRole(ctx, userID, storage.RoleAdmin)
	if err != nil {
		return err
	}
	if !inserted {
		return ErrAlreadyAssigned
	}
	s.log.Info("admin added", logx.Int64("user_id", userID))
	return nil
}

func (s *Service) RemoveAdmin(ctx context.Context, userID int64) error {
	deleted, err := s.store.DeleteAdmin(ctx, userID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNotAdmin
	}
	s.log.Info("admin removed", logx.Int64("user_id", userID))
	return nil
}

func (s *Service) List(ctx context.Context) ([]storage.RoleEntry, error) {
	return s.store.ListRoles(ctx)
}

// SuperadminID returns the seeded superadmin's id, used for workflow DMs.
func (s *Service) SuperadminID(ctx context.Context) (int64, error) {
	id, ok, err := s.store.SuperadminID(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, errors.New("superadmin not seeded")
	}
	return id, nil
}

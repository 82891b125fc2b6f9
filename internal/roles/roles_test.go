package roles

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"remindbot/internal/storage"
	"remindbot/pkg/logx"
)

func newService(t *testing.T) *Service {
	t.Helper()
	st, err := storage.Open(storage.Config{Path: filepath.Join(t.TempDir(), "test.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return New(st, logx.Nop())
}

func TestEnsureSuperadminIsIdempotent(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	if err := svc.EnsureSuperadmin(ctx, 100); err != nil {
		t.Fatalf("EnsureSuperadmin: %v", err)
	}
	// A second call (e.g. restart) must not add another superadmin.
	if err := svc.EnsureSuperadmin(ctx, 999); err != nil {
		t.Fatalf("EnsureSuperadmin again: %v", err)
	}

	id, err := svc.SuperadminID(ctx)
	if err != nil {
		t.Fatalf("SuperadminID: %v", err)
	}
	if id != 100 {
		t.Fatalf("SuperadminID = %d, want 100", id)
	}

	ok, err := svc.IsSuperadmin(ctx, 100)
	if err != nil || !ok {
		t.Fatalf("IsSuperadmin(100) = %v, %v", ok, err)
	}
	ok, err = svc.IsSuperadmin(ctx, 999)
	if err != nil || ok {
		t.Fatalf("IsSuperadmin(999) = %v, %v", ok, err)
	}
}

func TestAddRemoveAdmin(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	if err := svc.EnsureSuperadmin(ctx, 100); err != nil {
		t.Fatalf("EnsureSuperadmin: %v", err)
	}

	if err := svc.AddAdmin(ctx, 200); err != nil {
		t.Fatalf("AddAdmin: %v", err)
	}
	if err := svc.AddAdmin(ctx, 200); !errors.Is(err, ErrAlreadyAssigned) {
		t.Fatalf("AddAdmin dup = %v, want ErrAlreadyAssigned", err)
	}
	// The superadmin already holds a role; AddAdmin must not demote it.
	if err := svc.AddAdmin(ctx, 100); !errors.Is(err, ErrAlreadyAssigned) {
		t.Fatalf("AddAdmin superadmin = %v, want ErrAlreadyAssigned", err)
	}

	op, err := svc.IsOperator(ctx, 200)
	if err != nil || !op {
		t.Fatalf("IsOperator(200) = %v, %v", op, err)
	}
	op, err = svc.IsOperator(ctx, 100)
	if err != nil || !op {
		t.Fatalf("IsOperator(100) = %v, %v", op, err)
	}
	op, err = svc.IsOperator(ctx, 300)
	if err != nil || op {
		t.Fatalf("IsOperator(300) = %v, %v", op, err)
	}

	if err := svc.RemoveAdmin(ctx, 200); err != nil {
		t.Fatalf("RemoveAdmin: %v", err)
	}
	if err := svc.RemoveAdmin(ctx, 200); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("RemoveAdmin absent = %v, want ErrNotAdmin", err)
	}
	// RemoveAdmin never touches the superadmin row.
	if err := svc.RemoveAdmin(ctx, 100); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("RemoveAdmin superadmin = %v, want ErrNotAdmin", err)
	}

	list, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].Role != storage.RoleSuperadmin {
		t.Fatalf("List = %+v", list)
	}
}

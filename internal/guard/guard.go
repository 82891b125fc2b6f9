package guard

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"remindbot/internal/roles"
	"remindbot/internal/storage"
	"remindbot/pkg/logx"
)

var (
	// ErrBlocked means the caller was already on the block list.
	ErrBlocked = errors.New("caller is blocked")

	// ErrRateLimited means the caller exceeded the window on this request
	// and has just been added to the block list.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrNotBlocked is returned by Unblock for callers not on the list.
	ErrNotBlocked = errors.New("caller is not blocked")
)

const blockReason = "rate limit exceeded"

// Config bounds the sliding window. Zero values fall back to the original
// deployment's limits: 5 requests per 10 second window.
type Config struct {
	Limit  int
	Window time.Duration
}

func (c Config) withDefaults() Config {
	if c.Limit <= 0 {
		c.Limit = 5
	}
	if c.Window <= 0 {
		c.Window = 10 * time.Second
	}
	return c
}

// Service is the per-caller abuse guard: an in-memory sliding window plus
// the durable block list. Operators bypass both checks entirely.
//
// The window state is process-local; a restart resets it (but never the
// block list). That trade-off is deliberate.
type Service struct {
	store storage.Store
	roles *roles.Service
	clk   clock.Clock
	log   logx.Logger

	mu      sync.Mutex
	cfg     Config
	windows map[int64][]time.Time
}

func New(cfg Config, store storage.Store, roleSvc *roles.Service, clk clock.Clock, log logx.Logger) *Service {
	if clk == nil {
		clk = clock.New()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		store:   store,
		roles:   roleSvc,
		clk:     clk,
		log:     log,
		cfg:     cfg.withDefaults(),
		windows: map[int64][]time.Time{},
	}
}

// Apply swaps the limits at runtime (config reload).
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg.withDefaults()
	s.mu.Unlock()
}

// Allow runs before any other authorization or mutation. It returns nil for
// allowed callers, ErrBlocked for previously blocked callers, and
// ErrRateLimited when this request tripped the limit.
func (s *Service) Allow(ctx context.Context, userID int64) error {
	// Operators bypass both the rate limit and the block list.
	op, err := s.roles.IsOperator(ctx, userID)
	if err != nil {
		return err
	}
	if op {
		return nil
	}

	blocked, err := s.store.IsBlocked(ctx, userID)
	if err != nil {
		return err
	}
	if blocked {
		return ErrBlocked
	}

	if s.overLimit(userID) {
		now := s.clk.Now().UTC()
		if err := s.store.UpsertBlock(ctx, storage.BlockEntry{
			UserID:    userID,
			Reason:    blockReason,
			BlockedAt: now,
		}); err != nil {
			return err
		}
		s.log.Warn("caller blocked", logx.Int64("user_id", userID), logx.String("reason", blockReason))
		return ErrRateLimited
	}
	return nil
}

// overLimit prunes the caller's window, records this request, and reports
// whether the window now exceeds the limit.
func (s *Service) overLimit(userID int64) bool {
	now := s.clk.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-s.cfg.Window)
	win := s.windows[userID]
	n := 0
	for _, ts := range win {
		if ts.After(cutoff) {
			win[n] = ts
			n++
		}
	}
	win = append(win[:n], now)
	s.windows[userID] = win
	return len(win) > s.cfg.Limit
}

// Unblock removes the caller from the block list and clears its window so
// the next request starts fresh.
func (s *Service) Unblock(ctx context.Context, userID int64) error {
	deleted, err := s.store.DeleteBlock(ctx, userID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNotBlocked
	}
	s.mu.Lock()
	delete(s.windows, userID)
	s.mu.Unlock()
	s.log.Info("caller unblocked", logx.Int64("user_id", userID))
	return nil
}

func (s *Service) ListBlocked(ctx context.Context) ([]storage.BlockEntry, error) {
	return s.store.ListBlocks(ctx)
}

// PruneIdle drops window entries for callers with no requests inside the
// current window. Run periodically so the map cannot grow without bound
// under sustained distinct-caller load.
func (s *Service) PruneIdle() int {
	now := s.clk.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-s.cfg.Window)
	removed := 0
	for id, win := range s.windows {
		live := false
		for _, ts := range win {
			if ts.After(cutoff) {
				live = true
				break
			}
		}
		if !live {
			delete(s.windows, id)
			removed++
		}
	}
	return removed
}

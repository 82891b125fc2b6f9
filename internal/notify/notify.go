package notify

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"remindbot/internal/transport"
	"remindbot/pkg/logx"
)

// Config controls the outbound throttle. RatePerSec defaults to 3, a safe
// margin under Telegram's per-chat limits.
type Config struct {
	RatePerSec int
}

// Dispatcher formats nothing and retries nothing: it forwards text to the
// transport, throttled, and swallows failures. A transport error must never
// propagate into the scheduler's timer-firing path.
type Dispatcher struct {
	adapter transport.Adapter
	channel transport.ChatTarget
	limiter *rate.Limiter
	log     logx.Logger
}

func New(cfg Config, adapter transport.Adapter, channelID int64, log logx.Logger) *Dispatcher {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{
		adapter: adapter,
		channel: transport.ChatTarget{ChatID: channelID},
		// Token bucket: burst = rate per sec, so short spikes don't block.
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		log:     log,
	}
}

// Broadcast sends to the fixed channel. Fire-and-forget.
func (d *Dispatcher) Broadcast(ctx context.Context, text string) {
	d.send(ctx, d.channel, text)
}

// Direct sends a DM to one user (approval-workflow notifications).
func (d *Dispatcher) Direct(ctx context.Context, userID int64, text string) {
	d.send(ctx, transport.User(userID), text)
}

func (d *Dispatcher) send(ctx context.Context, to transport.ChatTarget, text string) {
	if text == "" {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if err := d.limiter.Wait(ctx); err != nil {
		d.log.Warn("send abandoned", logx.Int64("chat_id", to.ChatID), logx.Err(err))
		return
	}

	// Bound per-send call so a wedged transport cannot hang a timer callback.
	callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := d.adapter.SendText(callCtx, to, text); err != nil {
		d.log.Warn("send failed", logx.Int64("chat_id", to.ChatID), logx.Err(err))
		return
	}
	d.log.Debug("sent", logx.Int64("chat_id", to.ChatID))
}

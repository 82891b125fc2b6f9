package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	"remindbot/internal/transport"
	"remindbot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

// Adapter bridges telebot long polling to the transport API.
type Adapter struct {
	cfg Config
	log logx.Logger

	bot     *tele.Bot
	out     atomic.Value // stores (chan<- transport.Message)
	runMu   sync.Mutex
	running bool
	done    chan struct{}

	// stopOnce collapses the ctx-cancel path and Stop() into a single
	// telebot Stop call; telebot blocks when stopped twice. Reset per Start.
	stopOnce *sync.Once

	// droppedUpdates counts messages dropped because the consumer was slower
	// than the poll loop. Logged periodically to avoid per-update spam.
	droppedUpdates uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{cfg: cfg, log: log, bot: b}
	// Ensure atomic.Value is initialized with a stable dynamic type.
	var nilOut chan<- transport.Message
	a.out.Store(nilOut)
	a.registerHandlers()
	return a, nil
}

func (a *Adapter) registerHandlers() {
	// Handlers forward to the CURRENT output channel. Start() may swap it.
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Sender == nil {
			return nil
		}
		a.forward(transport.Message{
			ID:           m.ID,
			ChatID:       m.Chat.ID,
			FromID:       m.Sender.ID,
			FromUsername: m.Sender.Username,
			Text:         m.Text,
		})
		return nil
	})
}

func (a *Adapter) forward(m transport.Message) {
	v := a.out.Load()
	out, _ := v.(chan<- transport.Message)
	if out == nil {
		return
	}
	select {
	case out <- m:
	default:
		atomic.AddUint64(&a.droppedUpdates, 1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- transport.Message) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out.Store(out)
	a.done = make(chan struct{})
	a.stopOnce = &sync.Once{}
	done := a.done
	stopOnce := a.stopOnce
	a.runMu.Unlock()

	// Periodic summary for dropped updates.
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if n := atomic.SwapUint64(&a.droppedUpdates, 0); n > 0 {
					a.log.Warn("inbound messages dropped (channel full)", logx.Any("count", n))
				}
			}
		}
	}()

	// Stop telebot when the context is cancelled.
	go func() {
		select {
		case <-ctx.Done():
			stopOnce.Do(a.bot.Stop)
		case <-done:
		}
	}()

	go func() {
		a.log.Info("polling started")
		a.bot.Start() // blocks until Stop()
		a.log.Info("polling stopped")
	}()

	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	wasRunning := a.running
	a.running = false
	done := a.done
	a.done = nil
	stopOnce := a.stopOnce
	a.stopOnce = nil
	var nilOut chan<- transport.Message
	a.out.Store(nilOut)
	a.runMu.Unlock()

	if !wasRunning {
		return nil
	}
	if done != nil {
		close(done)
	}
	// telebot Stop is expected to be fast; run it async just in case so a
	// wedged long-poll cannot stall shutdown.
	stopped := make(chan struct{})
	go func() {
		stopOnce.Do(a.bot.Stop)
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		a.log.Warn("telegram stop timed out", logx.Err(ctx.Err()))
	case <-time.After(2 * time.Second):
		a.log.Warn("telegram stop timed out")
	}
	return nil
}

const telegramTextLimit = 4000

func (a *Adapter) SendText(ctx context.Context, to transport.ChatTarget, text string) error {
	chat := &tele.Chat{ID: to.ChatID}
	for _, chunk := range splitText(text, telegramTextLimit) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if _, err := a.bot.Send(chat, chunk, &tele.SendOptions{DisableWebPagePreview: true}); err != nil {
			return err
		}
	}
	return nil
}

// splitText splits long messages into chunks Telegram will accept,
// preferring newline boundaries.
func splitText(s string, limit int) []string {
	if limit <= 0 {
		limit = telegramTextLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := start + limit
		if end > len(rs) {
			end = len(rs)
		}

		// Prefer splitting on a newline near the end of the window.
		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				if rs[i] == '\n' {
					// Avoid extremely small chunks.
					if i-start >= limit/3 {
						end = i + 1
					}
					break
				}
			}
		}

		chunk := strings.TrimRight(string(rs[start:end]), "\n")
		out = append(out, chunk)

		start = end
		// Skip leading newlines to avoid empty chunks.
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}

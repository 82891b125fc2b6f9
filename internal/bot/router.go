package bot

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"remindbot/internal/guard"
	"remindbot/internal/roles"
	"remindbot/internal/transport"
	"remindbot/pkg/logx"
)

// Access is the minimum role required to run a command. The guard runs
// before the access check; role holders bypass the guard inside
// guard.Allow itself.
type Access int

const (
	AccessEveryone Access = iota
	AccessOperator
	AccessSuperadmin
)

type HandlerFunc func(ctx context.Context, req *Request) error

type Middleware func(next HandlerFunc) HandlerFunc

func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

type Command struct {
	Name        string
	Description string
	Usage       string
	Access      Access

	// BypassGuard skips the abuse guard. Only liveness probes should
	// set this.
	BypassGuard bool

	Handle HandlerFunc
}

type Request struct {
	Msg      transport.Message
	Chat     transport.ChatTarget
	FromID   int64
	FromName string
	Command  string
	Args     []string
	Rest     string // text after the command word, original spacing kept
	Log      logx.Logger

	adapter transport.Adapter
}

// Reply sends text back to the chat the request came from.
func (r *Request) Reply(ctx context.Context, text string) error {
	return r.adapter.SendText(ctx, r.Chat, text)
}

func MWPanicRecover(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				if rec := recover(); rec != nil {
					logger := log
					if req != nil && !req.Log.IsZero() {
						logger = req.Log
					}
					logger.Error("panic recovered",
						logx.Any("panic", rec),
						logx.String("stack", string(debug.Stack())))
					err = fmt.Errorf("panic: %v", rec)
				}
			}()
			return next(ctx, req)
		}
	}
}

func MWRequestLog(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			logger := log
			if req != nil && !req.Log.IsZero() {
				logger = req.Log
			}
			err := next(ctx, req)
			fields := []logx.Field{
				logx.String("cmd", req.Command),
				logx.Int64("from_id", req.FromID),
				logx.Duration("dur", time.Since(start)),
			}
			if err != nil {
				logger.Warn("request failed", append(fields, logx.Err(err))...)
			} else {
				logger.Info("request ok", fields...)
			}
			return err
		}
	}
}

// Router owns the command registry and turns incoming messages into
// guarded, access-checked handler calls.
type Router struct {
	adapter transport.Adapter
	guard   *guard.Service
	roles   *roles.Service
	log     logx.Logger

	mu    sync.RWMutex
	cmds  map[string]Command
	order []string
}

func NewRouter(adapter transport.Adapter, guardSvc *guard.Service, roleSvc *roles.Service, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Router{
		adapter: adapter,
		guard:   guardSvc,
		roles:   roleSvc,
		log:     log,
		cmds:    map[string]Command{},
	}
	r.register(Command{
		Name:        "help",
		Description: "show this help",
		Usage:       "/help",
		Access:      AccessEveryone,
		Handle: func(ctx context.Context, req *Request) error {
			return req.Reply(ctx, r.helpText())
		},
	})
	return r
}

// Register adds commands to the registry. Later registrations with the
// same name replace earlier ones.
func (r *Router) Register(cmds ...Command) {
	for _, c := range cmds {
		r.register(c)
	}
}

func (r *Router) register(c Command) {
	name := strings.ToLower(strings.TrimSpace(c.Name))
	if name == "" || c.Handle == nil {
		return
	}
	r.mu.Lock()
	if _, exists := r.cmds[name]; !exists {
		r.order = append(r.order, name)
	}
	r.cmds[name] = c
	r.mu.Unlock()
}

func (r *Router) helpText() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var b strings.Builder
	b.WriteString("📖 Commands:\n")
	for _, name := range r.order {
		c := r.cmds[name]
		b.WriteString(c.Usage)
		if c.Description != "" {
			b.WriteString(" — ")
			b.WriteString(c.Description)
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// Run consumes messages until ctx is cancelled or the channel closes.
// Each message is dispatched on its own goroutine; Run returns after
// in-flight handlers finish.
func (r *Router) Run(ctx context.Context, updates <-chan transport.Message) {
	var wg sync.WaitGroup
	defer wg.Wait()

	r.log.Info("command router started")
	for {
		select {
		case <-ctx.Done():
			r.log.Info("command router stopped")
			return
		case msg, ok := <-updates:
			if !ok {
				r.log.Info("command router stopped (updates channel closed)")
				return
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				r.Dispatch(ctx, msg)
			}()
		}
	}
}

// Dispatch routes one message. Non-command text is ignored.
func (r *Router) Dispatch(ctx context.Context, msg transport.Message) {
	name, args, rest, ok := ParseCommand(msg.Text)
	if !ok {
		return
	}

	chat := transport.ChatTarget{ChatID: msg.ChatID}

	r.mu.RLock()
	cmd, found := r.cmds[name]
	r.mu.RUnlock()
	if !found {
		_ = r.adapter.SendText(ctx, chat, "Unknown command. Try /help.")
		return
	}

	req := &Request{
		Msg:      msg,
		Chat:     chat,
		FromID:   msg.FromID,
		FromName: msg.FromUsername,
		Command:  name,
		Args:     args,
		Rest:     rest,
		Log: r.log.With(
			logx.String("cmd", name),
			logx.Int64("from_id", msg.FromID),
			logx.Int64("chat_id", msg.ChatID)),
		adapter: r.adapter,
	}

	if !cmd.BypassGuard {
		switch err := r.guard.Allow(ctx, req.FromID); {
		case errors.Is(err, guard.ErrRateLimited):
			_ = req.Reply(ctx, "⛔ You have been blocked for sending too many requests.")
			return
		case errors.Is(err, guard.ErrBlocked):
			_ = req.Reply(ctx, "⛔ You are blocked from using this bot.")
			return
		case err != nil:
			req.Log.Error("guard check failed", logx.Err(err))
			return
		}
	}

	if allowed, err := r.authorized(ctx, cmd.Access, req.FromID); err != nil {
		req.Log.Error("role lookup failed", logx.Err(err))
		return
	} else if !allowed {
		_ = req.Reply(ctx, "⛔ You are not allowed to use this command.")
		return
	}

	final := Chain(cmd.Handle, MWPanicRecover(r.log), MWRequestLog(r.log))
	if err := final(ctx, req); err != nil {
		_ = req.Reply(ctx, "❗ Internal error. Please try again.")
	}
}

func (r *Router) authorized(ctx context.Context, access Access, userID int64) (bool, error) {
	switch access {
	case AccessOperator:
		return r.roles.IsOperator(ctx, userID)
	case AccessSuperadmin:
		return r.roles.IsSuperadmin(ctx, userID)
	default:
		return true, nil
	}
}

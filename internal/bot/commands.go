package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/benbjohnson/clock"

	"remindbot/internal/approval"
	"remindbot/internal/guard"
	"remindbot/internal/notify"
	"remindbot/internal/reminder"
	"remindbot/internal/roles"
	"remindbot/pkg/logx"
)

// Handlers binds the domain services to the command surface.
type Handlers struct {
	reminders *reminder.Service
	approvals *approval.Service
	roles     *roles.Service
	guard     *guard.Service
	notify    *notify.Dispatcher
	clk       clock.Clock
	loc       func() *time.Location
	log       logx.Logger
}

func NewHandlers(
	reminders *reminder.Service,
	approvals *approval.Service,
	roleSvc *roles.Service,
	guardSvc *guard.Service,
	dispatcher *notify.Dispatcher,
	clk clock.Clock,
	loc func() *time.Location,
	log logx.Logger,
) *Handlers {
	if clk == nil {
		clk = clock.New()
	}
	if loc == nil {
		loc = func() *time.Location { return time.UTC }
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Handlers{
		reminders: reminders,
		approvals: approvals,
		roles:     roleSvc,
		guard:     guardSvc,
		notify:    dispatcher,
		clk:       clk,
		loc:       loc,
		log:       log,
	}
}

func (h *Handlers) Commands() []Command {
	return []Command{
		{
			Name:        "start",
			Description: "introduce the bot",
			Usage:       "/start",
			Access:      AccessEveryone,
			Handle:      h.start,
		},
		{
			Name:        "ping",
			Description: "liveness check",
			Usage:       "/ping",
			Access:      AccessEveryone,
			BypassGuard: true,
			Handle:      h.ping,
		},
		{
			Name:        "remind",
			Description: "schedule a reminder",
			Usage:       "/remind <YYYY-MM-DD> <HH:MM> <message>",
			Access:      AccessOperator,
			Handle:      h.remind,
		},
		{
			Name:        "listreminders",
			Description: "list scheduled reminders",
			Usage:       "/listreminders",
			Access:      AccessEveryone,
			Handle:      h.listReminders,
		},
		{
			Name:        "deletereminder",
			Description: "delete a reminder (admins need superadmin approval)",
			Usage:       "/deletereminder <id>",
			Access:      AccessOperator,
			Handle:      h.deleteReminder,
		},
		{
			Name:        "approve",
			Description: "approve a pending deletion",
			Usage:       "/approve <id>",
			Access:      AccessSuperadmin,
			Handle:      h.approve,
		},
		{
			Name:        "reject",
			Description: "reject a pending deletion",
			Usage:       "/reject <id>",
			Access:      AccessSuperadmin,
			Handle:      h.reject,
		},
		{
			Name:        "addadmin",
			Description: "grant admin rights",
			Usage:       "/addadmin <user_id>",
			Access:      AccessSuperadmin,
			Handle:      h.addAdmin,
		},
		{
			Name:        "removeadmin",
			Description: "revoke admin rights",
			Usage:       "/removeadmin <user_id>",
			Access:      AccessSuperadmin,
			Handle:      h.removeAdmin,
		},
		{
			Name:        "listadmins",
			Description: "list role holders",
			Usage:       "/listadmins",
			Access:      AccessSuperadmin,
			Handle:      h.listAdmins,
		},
		{
			Name:        "broadcast",
			Description: "send a message to the channel",
			Usage:       "/broadcast <message>",
			Access:      AccessSuperadmin,
			Handle:      h.broadcast,
		},
		{
			Name:        "unblock",
			Description: "lift a spam block",
			Usage:       "/unblock <user_id>",
			Access:      AccessSuperadmin,
			Handle:      h.unblock,
		},
		{
			Name:        "listblocked",
			Description: "list blocked users",
			Usage:       "/listblocked",
			Access:      AccessSuperadmin,
			Handle:      h.listBlocked,
		},
	}
}

func (h *Handlers) start(ctx context.Context, req *Request) error {
	return req.Reply(ctx, "👋 Hi! I am the placement reminder bot.\nUse /help to see what I can do.")
}

func (h *Handlers) ping(ctx context.Context, req *Request) error {
	return req.Reply(ctx, "🏓 pong")
}

func (h *Handlers) remind(ctx context.Context, req *Request) error {
	if len(req.Args) < 3 {
		return req.Reply(ctx, "Usage: /remind <YYYY-MM-DD> <HH:MM> <message>")
	}
	when, err := ParseWhen(req.Args[0], req.Args[1], h.loc())
	if err != nil {
		return req.Reply(ctx, "❌ Could not parse that date and time.\nUsage: /remind <YYYY-MM-DD> <HH:MM> <message>")
	}
	if !when.After(h.clk.Now()) {
		return req.Reply(ctx, "❌ That time is already in the past.")
	}

	message := strings.Join(req.Args[2:], " ")
	r, err := h.reminders.Create(ctx, when, message, req.FromID, req.FromName)
	if errors.Is(err, reminder.ErrEmptyMessage) {
		return req.Reply(ctx, "❌ The reminder message cannot be empty.")
	}
	if err != nil {
		return fmt.Errorf("create reminder: %w", err)
	}

	creator := r.CreatedByName
	if creator == "" {
		creator = strconv.FormatInt(r.CreatedBy, 10)
	}
	h.notify.Broadcast(ctx, fmt.Sprintf("📌 New reminder!\n🆔 %s\n⏰ %s\n📌 %s\n👤 %s",
		r.ID, FormatWhen(r.At, h.loc()), r.Message, creator))

	return req.Reply(ctx, fmt.Sprintf("✅ Reminder %s set for %s.", r.ID, FormatWhen(r.At, h.loc())))
}

func (h *Handlers) listReminders(ctx context.Context, req *Request) error {
	list, err := h.reminders.List(ctx)
	if err != nil {
		return fmt.Errorf("list reminders: %w", err)
	}
	if len(list) == 0 {
		return req.Reply(ctx, "No reminders scheduled.")
	}

	loc := h.loc()
	var b strings.Builder
	b.WriteString("📋 Scheduled reminders:\n")
	for _, r := range list {
		b.WriteString("• ")
		b.WriteString(r.ID)
		b.WriteString(" — ")
		b.WriteString(FormatWhen(r.At, loc))
		b.WriteString(" — ")
		b.WriteString(r.Message)
		if r.CreatedByName != "" {
			fmt.Fprintf(&b, " (by %s)", r.CreatedByName)
		}
		b.WriteByte('\n')
	}
	return req.Reply(ctx, strings.TrimRight(b.String(), "\n"))
}

func (h *Handlers) deleteReminder(ctx context.Context, req *Request) error {
	if len(req.Args) != 1 {
		return req.Reply(ctx, "Usage: /deletereminder <id>")
	}
	id := req.Args[0]

	super, err := h.roles.IsSuperadmin(ctx, req.FromID)
	if err != nil {
		return fmt.Errorf("role lookup: %w", err)
	}

	if super {
		switch err := h.reminders.Delete(ctx, id); {
		case errors.Is(err, reminder.ErrNotFound):
			return req.Reply(ctx, "❌ Reminder not found.")
		case err != nil:
			return fmt.Errorf("delete reminder: %w", err)
		}
		return req.Reply(ctx, fmt.Sprintf("🗑 Reminder %s deleted.", id))
	}

	switch err := h.approvals.Request(ctx, id, req.FromID); {
	case errors.Is(err, reminder.ErrNotFound):
		return req.Reply(ctx, "❌ Reminder not found.")
	case err != nil:
		return fmt.Errorf("request deletion: %w", err)
	}
	return req.Reply(ctx, "📨 Deletion request sent to the superadmin for approval.")
}

func (h *Handlers) approve(ctx context.Context, req *Request) error {
	if len(req.Args) != 1 {
		return req.Reply(ctx, "Usage: /approve <id>")
	}
	id := req.Args[0]
	switch err := h.approvals.Approve(ctx, id); {
	case errors.Is(err, approval.ErrNoPendingRequest):
		return req.Reply(ctx, fmt.Sprintf("❌ No pending deletion request for %s.", id))
	case err != nil:
		return fmt.Errorf("approve deletion: %w", err)
	}
	return req.Reply(ctx, fmt.Sprintf("✅ Approved. Reminder %s deleted.", id))
}

func (h *Handlers) reject(ctx context.Context, req *Request) error {
	if len(req.Args) != 1 {
		return req.Reply(ctx, "Usage: /reject <id>")
	}
	id := req.Args[0]
	switch err := h.approvals.Reject(ctx, id); {
	case errors.Is(err, approval.ErrNoPendingRequest):
		return req.Reply(ctx, fmt.Sprintf("❌ No pending deletion request for %s.", id))
	case err != nil:
		return fmt.Errorf("reject deletion: %w", err)
	}
	return req.Reply(ctx, fmt.Sprintf("🚫 Rejected deletion request for %s.", id))
}

func (h *Handlers) addAdmin(ctx context.Context, req *Request) error {
	userID, ok := parseUserID(req.Args)
	if !ok {
		return req.Reply(ctx, "Usage: /addadmin <user_id>")
	}
	switch err := h.roles.AddAdmin(ctx, userID); {
	case errors.Is(err, roles.ErrAlreadyAssigned):
		return req.Reply(ctx, fmt.Sprintf("User %d already has a role.", userID))
	case err != nil:
		return fmt.Errorf("add admin: %w", err)
	}
	return req.Reply(ctx, fmt.Sprintf("✅ User %d is now an admin.", userID))
}

func (h *Handlers) removeAdmin(ctx context.Context, req *Request) error {
	userID, ok := parseUserID(req.Args)
	if !ok {
		return req.Reply(ctx, "Usage: /removeadmin <user_id>")
	}
	switch err := h.roles.RemoveAdmin(ctx, userID); {
	case errors.Is(err, roles.ErrNotAdmin):
		return req.Reply(ctx, fmt.Sprintf("❌ User %d is not an admin.", userID))
	case err != nil:
		return fmt.Errorf("remove admin: %w", err)
	}
	return req.Reply(ctx, fmt.Sprintf("✅ User %d is no longer an admin.", userID))
}

func (h *Handlers) listAdmins(ctx context.Context, req *Request) error {
	entries, err := h.roles.List(ctx)
	if err != nil {
		return fmt.Errorf("list roles: %w", err)
	}
	if len(entries) == 0 {
		return req.Reply(ctx, "No role holders.")
	}
	var b strings.Builder
	b.WriteString("👥 Role holders:\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "• %d (%s)\n", e.UserID, e.Role)
	}
	return req.Reply(ctx, strings.TrimRight(b.String(), "\n"))
}

func (h *Handlers) broadcast(ctx context.Context, req *Request) error {
	text := strings.TrimSpace(req.Rest)
	if text == "" {
		return req.Reply(ctx, "Usage: /broadcast <message>")
	}
	h.notify.Broadcast(ctx, text)
	return req.Reply(ctx, "📢 Broadcast sent.")
}

func (h *Handlers) unblock(ctx context.Context, req *Request) error {
	userID, ok := parseUserID(req.Args)
	if !ok {
		return req.Reply(ctx, "Usage: /unblock <user_id>")
	}
	switch err := h.guard.Unblock(ctx, userID); {
	case errors.Is(err, guard.ErrNotBlocked):
		return req.Reply(ctx, fmt.Sprintf("❌ User %d is not blocked.", userID))
	case err != nil:
		return fmt.Errorf("unblock: %w", err)
	}
	return req.Reply(ctx, fmt.Sprintf("✅ User %d unblocked.", userID))
}

func (h *Handlers) listBlocked(ctx context.Context, req *Request) error {
	entries, err := h.guard.ListBlocked(ctx)
	if err != nil {
		return fmt.Errorf("list blocked: %w", err)
	}
	if len(entries) == 0 {
		return req.Reply(ctx, "No blocked users.")
	}
	loc := h.loc()
	var b strings.Builder
	b.WriteString("🚫 Blocked users:\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "• %d — %s (since %s)\n", e.UserID, e.Reason, FormatWhen(e.BlockedAt, loc))
	}
	return req.Reply(ctx, strings.TrimRight(b.String(), "\n"))
}

func parseUserID(args []string) (int64, bool) {
	if len(args) != 1 {
		return 0, false
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// Package dispatch routes inbound messages to command handlers and
// drives the interactive group-selection flow.
//
// Each message is interpreted in one of two modes: if the sender has an
// active picker session the text is a navigation token or a selection;
// otherwise it is matched against the fixed command keywords. Unmatched
// text outside a session is ignored so the bot stays silent in normal
// conversation.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/tagclaw/tagclaw/internal/gateway"
	"github.com/tagclaw/tagclaw/internal/security"
	"github.com/tagclaw/tagclaw/internal/session"
	"github.com/tagclaw/tagclaw/internal/settings"
)

// Command keywords, matched case-insensitively against the trimmed
// message text.
const (
	cmdSetOwner  = "!setowner"
	cmdSetAdmin  = "!setadmin"
	cmdDelAdmin  = "!deladmin"
	cmdTag       = "!tag"
	cmdHiddenTag = "!htag"
)

// User-facing notices. Kept as constants so tests assert against the
// same strings the handlers send.
const (
	noticeOwnerAlreadySet = "An owner has already been set."
	noticeOwnerClaimed    = "✅ Success! You are now the bot owner."
	noticeOwnerOnly       = "❌ Only the owner can use this command."
	noticePromoteHint     = "ℹ️ Please reply to a user's message to make them an admin."
	noticeDemoteHint      = "ℹ️ Please reply to a user's message to remove them."
	noticeAlreadyAdmin    = "⚠️ This user is already an admin."
	noticeNotAdmin        = "⚠️ This user is not an admin."
	noticePromoted        = "✅ User has been promoted to admin."
	noticeDemoted         = "✅ User has been demoted from admin."
	noticeNotAuthorized   = "❌ You are not authorized to use this command."
	noticeGroupOnly       = "This command can only be used in a group."
	noticeSelfChatOnly    = "ℹ️ Please use `!htag` in your private chat with me ('Message yourself')."
	noticeFetchingGroups  = "Fetching your group list, this may take a moment..."
	noticeNoGroups        = "I am not a member of any groups."
	noticeGroupListFailed = "❌ A fatal error occurred while fetching your group list."
	noticeRosterFailed    = "❌ Could not fetch the member list for this group."
	noticeSaveFailed      = "❌ Failed to save settings, please try again."
	noticeInvalidChoice   = "⚠️ Invalid selection. Please reply with a number from the list, or use 'n', 'p', 'c'."
	noticeCancelled       = "Process cancelled successfully."
	noticeAlreadyLast     = "You are already on the last page."
	noticeAlreadyFirst    = "You are already on the first page."
	noticeHiddenFailed    = "❌ An error occurred. I might not be an admin in that group."
)

// Dispatcher is the message-handling core. It is driven by a single
// goroutine (Run), so handlers never interleave for the same sender.
type Dispatcher struct {
	gw       gateway.Gateway
	settings *settings.Store
	sessions *session.Manager
	limiter  *security.SlidingWindowLimiter
	logger   *slog.Logger
}

// New creates a dispatcher. commandRate limits keyword commands per
// sender per minute; zero disables the limit.
func New(gw gateway.Gateway, st *settings.Store, sm *session.Manager, commandRate int, logger *slog.Logger) *Dispatcher {
	var limiter *security.SlidingWindowLimiter
	if commandRate > 0 {
		limiter = security.NewSlidingWindowLimiter(commandRate, time.Minute)
	}
	return &Dispatcher{
		gw:       gw,
		settings: st,
		sessions: sm,
		limiter:  limiter,
		logger:   logger.With("component", "dispatch"),
	}
}

// Run drains the gateway's inbound stream until the context is
// cancelled or the stream closes. Messages are handled strictly one at
// a time.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-d.gw.Messages():
			if !ok {
				d.logger.Info("inbound stream closed")
				return
			}
			d.HandleMessage(ctx, msg)
		}
	}
}

// HandleMessage processes one inbound message to completion.
func (d *Dispatcher) HandleMessage(ctx context.Context, msg gateway.Message) {
	text := strings.ToLower(strings.TrimSpace(msg.Text))
	if text == "" {
		return
	}

	// An active session claims every message from its owner, even text
	// that looks like a command.
	if _, ok := d.sessions.Get(msg.Sender); ok {
		d.handleChoice(ctx, msg, text)
		return
	}

	switch text {
	case cmdSetOwner, cmdSetAdmin, cmdDelAdmin, cmdTag, cmdHiddenTag:
		if !d.limiter.Allow(msg.Sender) {
			d.logger.Warn("command rate limit hit", "sender", msg.Sender, "command", text)
			return
		}
	default:
		// Not a command and no session: stay silent.
		return
	}

	switch text {
	case cmdSetOwner:
		d.handleSetOwner(ctx, msg)
	case cmdSetAdmin:
		d.handleSetAdmin(ctx, msg)
	case cmdDelAdmin:
		d.handleDelAdmin(ctx, msg)
	case cmdTag:
		d.handleTag(ctx, msg)
	case cmdHiddenTag:
		d.handleHiddenTag(ctx, msg)
	}
}

// handleChoice interprets a message as picker input: navigation token,
// cancellation, or a numeric selection.
func (d *Dispatcher) handleChoice(ctx context.Context, msg gateway.Message, text string) {
	switch text {
	case "n", "next":
		sess, err := d.sessions.Advance(msg.Sender)
		if err != nil {
			d.notify(ctx, msg.Sender, noticeAlreadyLast)
			return
		}
		d.notify(ctx, msg.Sender, session.RenderPage(sess))
		return
	case "p", "prev":
		sess, err := d.sessions.Retreat(msg.Sender)
		if err != nil {
			d.notify(ctx, msg.Sender, noticeAlreadyFirst)
			return
		}
		d.notify(ctx, msg.Sender, session.RenderPage(sess))
		return
	case "c", "cancel":
		d.sessions.Cancel(msg.Sender)
		d.notify(ctx, msg.Sender, noticeCancelled)
		return
	}

	number, err := strconv.Atoi(text)
	if err != nil {
		d.notify(ctx, msg.Sender, noticeInvalidChoice)
		return
	}
	item, err := d.sessions.Select(msg.Sender, number)
	if err != nil {
		d.notify(ctx, msg.Sender, noticeInvalidChoice)
		return
	}

	d.logger.Info("group selected", "sender", msg.Sender, "group", item.Label)
	d.sendHiddenMention(ctx, msg.Sender, item)
}

// sendHiddenMention delivers the alert glyph to the chosen group with
// every member attached as a silent mention. The session is consumed
// exactly once: it is removed whether the send succeeds or not.
func (d *Dispatcher) sendHiddenMention(ctx context.Context, sender string, item session.Item) {
	defer d.sessions.Cancel(sender)

	info, err := d.gw.GroupMetadata(ctx, item.ID)
	if err != nil {
		d.logger.Error("hidden mention roster fetch failed", "group", item.ID, "error", err)
		d.notify(ctx, sender, noticeHiddenFailed)
		return
	}

	opts := &gateway.SendOptions{Mentions: info.Members}
	if err := d.gw.SendText(ctx, item.ID, "🚨", opts); err != nil {
		d.logger.Error("hidden mention send failed", "group", item.ID, "error", err)
		d.notify(ctx, sender, noticeHiddenFailed)
		return
	}

	d.notify(ctx, sender, fmt.Sprintf("✅ Hidden mention sent successfully to %q.", item.Label))
}

func (d *Dispatcher) handleSetOwner(ctx context.Context, msg gateway.Message) {
	switch err := d.settings.ClaimOwner(msg.Sender); {
	case err == nil:
		d.reply(ctx, msg, noticeOwnerClaimed)
	case errors.Is(err, settings.ErrOwnerAlreadySet):
		d.reply(ctx, msg, noticeOwnerAlreadySet)
	default:
		d.logger.Error("claim owner failed", "sender", msg.Sender, "error", err)
		d.reply(ctx, msg, noticeSaveFailed)
	}
}

func (d *Dispatcher) handleSetAdmin(ctx context.Context, msg gateway.Message) {
	access := AccessFor(msg.Sender, d.settings.Snapshot())
	if !access.IsOwner {
		d.reply(ctx, msg, noticeOwnerOnly)
		return
	}
	if msg.ReplyTo == "" {
		d.reply(ctx, msg, noticePromoteHint)
		return
	}

	switch err := d.settings.AddAdmin(msg.ReplyTo); {
	case err == nil:
		d.reply(ctx, msg, noticePromoted)
	case errors.Is(err, settings.ErrAlreadyAdmin):
		d.reply(ctx, msg, noticeAlreadyAdmin)
	default:
		d.logger.Error("promote failed", "target", msg.ReplyTo, "error", err)
		d.reply(ctx, msg, noticeSaveFailed)
	}
}

func (d *Dispatcher) handleDelAdmin(ctx context.Context, msg gateway.Message) {
	access := AccessFor(msg.Sender, d.settings.Snapshot())
	if !access.IsOwner {
		d.reply(ctx, msg, noticeOwnerOnly)
		return
	}
	if msg.ReplyTo == "" {
		d.reply(ctx, msg, noticeDemoteHint)
		return
	}

	switch err := d.settings.RemoveAdmin(msg.ReplyTo); {
	case err == nil:
		d.reply(ctx, msg, noticeDemoted)
	case errors.Is(err, settings.ErrNotAdmin):
		d.reply(ctx, msg, noticeNotAdmin)
	default:
		d.logger.Error("demote failed", "target", msg.ReplyTo, "error", err)
		d.reply(ctx, msg, noticeSaveFailed)
	}
}

// handleTag mentions every member of the current group visibly.
func (d *Dispatcher) handleTag(ctx context.Context, msg gateway.Message) {
	access := AccessFor(msg.Sender, d.settings.Snapshot())
	if !access.IsAuthorized() {
		d.reply(ctx, msg, noticeNotAuthorized)
		return
	}
	if !msg.IsGroup {
		d.reply(ctx, msg, noticeGroupOnly)
		return
	}

	d.logger.Info("tag-all requested", "sender", msg.Sender, "group", msg.Chat)

	info, err := d.gw.GroupMetadata(ctx, msg.Chat)
	if err != nil {
		d.logger.Error("tag-all roster fetch failed", "group", msg.Chat, "error", err)
		d.reply(ctx, msg, noticeRosterFailed)
		return
	}

	var b strings.Builder
	b.WriteString("👥 Tagging all members:\n")
	for _, member := range info.Members {
		b.WriteString("\n@" + mentionTag(member))
	}

	opts := &gateway.SendOptions{Mentions: info.Members, EditID: msg.ID}
	if err := d.gw.SendText(ctx, msg.Chat, b.String(), opts); err != nil {
		d.logger.Error("tag-all send failed", "group", msg.Chat, "error", err)
	}
}

// handleHiddenTag starts the group picker. Silent for unauthorized
// senders so the command's existence is not advertised.
func (d *Dispatcher) handleHiddenTag(ctx context.Context, msg gateway.Message) {
	access := AccessFor(msg.Sender, d.settings.Snapshot())
	if !access.IsAuthorized() {
		return
	}
	if msg.Chat != msg.Sender {
		d.reply(ctx, msg, noticeSelfChatOnly)
		return
	}

	d.notify(ctx, msg.Sender, noticeFetchingGroups)

	groups, err := d.gw.JoinedGroups(ctx)
	if err != nil {
		d.logger.Error("group list fetch failed", "sender", msg.Sender, "error", err)
		d.notify(ctx, msg.Sender, noticeGroupListFailed)
		return
	}

	items := lo.Map(groups, func(g gateway.GroupInfo, _ int) session.Item {
		return session.Item{ID: g.ID, Label: g.Name}
	})
	sort.Slice(items, func(i, j int) bool { return items[i].Label < items[j].Label })

	sess, err := d.sessions.Start(msg.Sender, items)
	if err != nil {
		d.notify(ctx, msg.Sender, noticeNoGroups)
		return
	}

	d.logger.Info("picker started", "sender", msg.Sender, "groups", len(items))
	d.notify(ctx, msg.Sender, session.RenderPage(sess))
}

// reply sends text into the chat the message came from, quoting it.
func (d *Dispatcher) reply(ctx context.Context, msg gateway.Message, text string) {
	opts := &gateway.SendOptions{QuoteID: msg.ID, QuoteSender: msg.Sender}
	if err := d.gw.SendText(ctx, msg.Chat, text, opts); err != nil {
		d.logger.Error("reply failed", "chat", msg.Chat, "error", err)
	}
}

// notify sends plain text directly to an identity.
func (d *Dispatcher) notify(ctx context.Context, to, text string) {
	if err := d.gw.SendText(ctx, to, text, nil); err != nil {
		d.logger.Error("notify failed", "to", to, "error", err)
	}
}

// mentionTag strips the server part of an identity for display in a
// visible mention ("123@s.whatsapp.net" -> "123").
func mentionTag(identity string) string {
	if i := strings.IndexByte(identity, '@'); i >= 0 {
		return identity[:i]
	}
	return identity
}

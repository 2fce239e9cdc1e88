package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tagclaw/tagclaw/internal/gateway"
	"github.com/tagclaw/tagclaw/internal/session"
	"github.com/tagclaw/tagclaw/internal/settings"
)

const (
	owner    = "owner@s.whatsapp.net"
	admin    = "admin@s.whatsapp.net"
	stranger = "stranger@s.whatsapp.net"
	groupA   = "111@g.us"
)

type sent struct {
	To   string
	Text string
	Opts *gateway.SendOptions
}

// fakeGateway records sends and serves scripted rosters.
type fakeGateway struct {
	sends       []sent
	sendErr     error
	groups      []gateway.GroupInfo
	groupsErr   error
	metadata    map[string]*gateway.GroupInfo
	metadataErr error
}

func (f *fakeGateway) SendText(_ context.Context, to, text string, opts *gateway.SendOptions) error {
	f.sends = append(f.sends, sent{To: to, Text: text, Opts: opts})
	return f.sendErr
}

func (f *fakeGateway) GroupMetadata(_ context.Context, groupID string) (*gateway.GroupInfo, error) {
	if f.metadataErr != nil {
		return nil, f.metadataErr
	}
	info, ok := f.metadata[groupID]
	if !ok {
		return nil, fmt.Errorf("unknown group %s", groupID)
	}
	return info, nil
}

func (f *fakeGateway) JoinedGroups(context.Context) ([]gateway.GroupInfo, error) {
	return f.groups, f.groupsErr
}

func (f *fakeGateway) Messages() <-chan gateway.Message { return nil }

func (f *fakeGateway) lastSend(t *testing.T) sent {
	t.Helper()
	if len(f.sends) == 0 {
		t.Fatal("no messages sent")
	}
	return f.sends[len(f.sends)-1]
}

type fixture struct {
	gw       *fakeGateway
	store    *settings.Store
	sessions *session.Manager
	d        *Dispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gw := &fakeGateway{metadata: map[string]*gateway.GroupInfo{}}
	store := settings.NewStore(filepath.Join(t.TempDir(), "settings.json"), logger)
	sessions := session.NewManager()
	return &fixture{
		gw:       gw,
		store:    store,
		sessions: sessions,
		d:        New(gw, store, sessions, 0, logger),
	}
}

// dm builds a direct message to the bot from sender.
func dm(sender, text string) gateway.Message {
	return gateway.Message{ID: "msg-1", Sender: sender, Chat: sender, Text: text}
}

// groupMsg builds a message sent in a group chat.
func groupMsg(sender, chat, text string) gateway.Message {
	return gateway.Message{ID: "msg-1", Sender: sender, Chat: chat, IsGroup: true, Text: text}
}

func (fx *fixture) seedOwner(t *testing.T) {
	t.Helper()
	if err := fx.store.ClaimOwner(owner); err != nil {
		t.Fatal(err)
	}
}

func (fx *fixture) seedAdmin(t *testing.T) {
	t.Helper()
	if err := fx.store.AddAdmin(admin); err != nil {
		t.Fatal(err)
	}
}

func TestClaimOwner(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.d.HandleMessage(ctx, dm(owner, "!setowner"))
	if got := fx.gw.lastSend(t).Text; got != noticeOwnerClaimed {
		t.Errorf("first claim reply = %q", got)
	}

	fx.d.HandleMessage(ctx, dm(stranger, "!setowner"))
	if got := fx.gw.lastSend(t).Text; got != noticeOwnerAlreadySet {
		t.Errorf("second claim reply = %q", got)
	}
	if got := fx.store.Snapshot().Owner; got != owner {
		t.Errorf("owner = %q; want first claimant", got)
	}
}

func TestCaseInsensitiveKeywords(t *testing.T) {
	fx := newFixture(t)
	fx.d.HandleMessage(context.Background(), dm(owner, "  !SetOwner  "))
	if got := fx.gw.lastSend(t).Text; got != noticeOwnerClaimed {
		t.Errorf("reply = %q; keyword matching should trim and lowercase", got)
	}
}

func TestPromote(t *testing.T) {
	fx := newFixture(t)
	fx.seedOwner(t)
	fx.seedAdmin(t)
	ctx := context.Background()

	// Non-owner admins may not promote.
	fx.d.HandleMessage(ctx, dm(admin, "!setadmin"))
	if got := fx.gw.lastSend(t).Text; got != noticeOwnerOnly {
		t.Errorf("admin promote reply = %q", got)
	}

	// Owner without a quoted target gets a usage hint, no mutation.
	fx.d.HandleMessage(ctx, dm(owner, "!setadmin"))
	if got := fx.gw.lastSend(t).Text; got != noticePromoteHint {
		t.Errorf("promote without target reply = %q", got)
	}
	if n := len(fx.store.Snapshot().Admins); n != 1 {
		t.Errorf("admin count = %d after hint; want 1", n)
	}

	msg := dm(owner, "!setadmin")
	msg.ReplyTo = stranger
	fx.d.HandleMessage(ctx, msg)
	if got := fx.gw.lastSend(t).Text; got != noticePromoted {
		t.Errorf("promote reply = %q", got)
	}

	// Promoting the same target again reports it without mutation.
	fx.d.HandleMessage(ctx, msg)
	if got := fx.gw.lastSend(t).Text; got != noticeAlreadyAdmin {
		t.Errorf("duplicate promote reply = %q", got)
	}
	if n := len(fx.store.Snapshot().Admins); n != 2 {
		t.Errorf("admin count = %d; want 2", n)
	}
}

func TestDemote(t *testing.T) {
	fx := newFixture(t)
	fx.seedOwner(t)
	fx.seedAdmin(t)
	ctx := context.Background()

	fx.d.HandleMessage(ctx, dm(owner, "!deladmin"))
	if got := fx.gw.lastSend(t).Text; got != noticeDemoteHint {
		t.Errorf("demote without target reply = %q", got)
	}

	msg := dm(owner, "!deladmin")
	msg.ReplyTo = admin
	fx.d.HandleMessage(ctx, msg)
	if got := fx.gw.lastSend(t).Text; got != noticeDemoted {
		t.Errorf("demote reply = %q", got)
	}

	fx.d.HandleMessage(ctx, msg)
	if got := fx.gw.lastSend(t).Text; got != noticeNotAdmin {
		t.Errorf("demote of non-admin reply = %q", got)
	}
}

func TestTagAll(t *testing.T) {
	fx := newFixture(t)
	fx.seedOwner(t)
	fx.seedAdmin(t)
	ctx := context.Background()
	members := []string{"1@s.whatsapp.net", "2@s.whatsapp.net", "3@s.whatsapp.net"}
	fx.gw.metadata[groupA] = &gateway.GroupInfo{ID: groupA, Name: "Friends", Members: members}

	fx.d.HandleMessage(ctx, groupMsg(stranger, groupA, "!tag"))
	if got := fx.gw.lastSend(t).Text; got != noticeNotAuthorized {
		t.Errorf("unauthorized tag reply = %q", got)
	}

	fx.d.HandleMessage(ctx, dm(admin, "!tag"))
	if got := fx.gw.lastSend(t).Text; got != noticeGroupOnly {
		t.Errorf("tag outside group reply = %q", got)
	}

	fx.d.HandleMessage(ctx, groupMsg(admin, groupA, "!tag"))
	last := fx.gw.lastSend(t)
	if last.To != groupA {
		t.Errorf("tag sent to %q; want the group", last.To)
	}
	if !strings.Contains(last.Text, "👥 Tagging all members:") || !strings.Contains(last.Text, "@2") {
		t.Errorf("tag text = %q", last.Text)
	}
	if last.Opts == nil || len(last.Opts.Mentions) != len(members) {
		t.Errorf("tag mentions = %+v; want all %d members", last.Opts, len(members))
	}
	if last.Opts.EditID != "msg-1" {
		t.Errorf("tag EditID = %q; want the triggering message", last.Opts.EditID)
	}
}

func TestTagRosterFailure(t *testing.T) {
	fx := newFixture(t)
	fx.seedOwner(t)
	ctx := context.Background()
	fx.gw.metadataErr = errors.New("rate limited")

	fx.d.HandleMessage(ctx, groupMsg(owner, groupA, "!tag"))
	if got := fx.gw.lastSend(t).Text; got != noticeRosterFailed {
		t.Errorf("roster failure reply = %q", got)
	}
}

func seedSeventeenGroups(fx *fixture) {
	// Deliberately unsorted; the picker must sort by label.
	for i := 17; i >= 1; i-- {
		id := fmt.Sprintf("%d@g.us", i)
		name := fmt.Sprintf("Group %c", 'A'+i-1)
		members := []string{"1@s.whatsapp.net", "2@s.whatsapp.net"}
		fx.gw.groups = append(fx.gw.groups, gateway.GroupInfo{ID: id, Name: name, Members: members})
		fx.gw.metadata[id] = &gateway.GroupInfo{ID: id, Name: name, Members: members}
	}
}

func TestHiddenTagGate(t *testing.T) {
	fx := newFixture(t)
	fx.seedOwner(t)
	ctx := context.Background()

	// Unauthorized senders get silence, not a refusal.
	fx.d.HandleMessage(ctx, dm(stranger, "!htag"))
	if len(fx.gw.sends) != 0 {
		t.Errorf("unauthorized !htag produced %d sends", len(fx.gw.sends))
	}

	// Authorized, but not in the self chat.
	fx.d.HandleMessage(ctx, groupMsg(owner, groupA, "!htag"))
	if got := fx.gw.lastSend(t).Text; got != noticeSelfChatOnly {
		t.Errorf("!htag in group reply = %q", got)
	}
}

func TestHiddenTagNoGroups(t *testing.T) {
	fx := newFixture(t)
	fx.seedOwner(t)
	ctx := context.Background()

	fx.d.HandleMessage(ctx, dm(owner, "!htag"))
	if got := fx.gw.lastSend(t).Text; got != noticeNoGroups {
		t.Errorf("empty membership reply = %q", got)
	}
	if _, ok := fx.sessions.Get(owner); ok {
		t.Error("session created despite empty group list")
	}

	// With no session, navigation tokens are unmatched idle input.
	before := len(fx.gw.sends)
	for _, tok := range []string{"n", "p", "c"} {
		fx.d.HandleMessage(ctx, dm(owner, tok))
	}
	if len(fx.gw.sends) != before {
		t.Errorf("idle navigation tokens produced %d sends", len(fx.gw.sends)-before)
	}
}

func TestHiddenTagFlow(t *testing.T) {
	fx := newFixture(t)
	fx.seedOwner(t)
	ctx := context.Background()
	seedSeventeenGroups(fx)

	fx.d.HandleMessage(ctx, dm(owner, "!htag"))
	page := fx.gw.lastSend(t).Text
	if !strings.Contains(page, "Page 1/2") || !strings.Contains(page, "1. Group A") || !strings.Contains(page, "15. Group O") {
		t.Fatalf("page 1 = %q", page)
	}

	fx.d.HandleMessage(ctx, dm(owner, "n"))
	page = fx.gw.lastSend(t).Text
	if !strings.Contains(page, "Page 2/2") || !strings.Contains(page, "17. Group Q") {
		t.Fatalf("page 2 = %q", page)
	}

	fx.d.HandleMessage(ctx, dm(owner, "next"))
	if got := fx.gw.lastSend(t).Text; got != noticeAlreadyLast {
		t.Errorf("advance past last page reply = %q", got)
	}

	// Select group 9 ("Group I", id 9@g.us) by its global number.
	fx.d.HandleMessage(ctx, dm(owner, "9"))

	if len(fx.gw.sends) < 2 {
		t.Fatal("selection produced too few sends")
	}
	hidden := fx.gw.sends[len(fx.gw.sends)-2]
	if hidden.To != "9@g.us" || hidden.Text != "🚨" {
		t.Errorf("hidden mention send = %+v", hidden)
	}
	if hidden.Opts == nil || len(hidden.Opts.Mentions) != 2 {
		t.Errorf("hidden mention opts = %+v; want all members mentioned", hidden.Opts)
	}
	confirm := fx.gw.lastSend(t)
	if confirm.To != owner || !strings.Contains(confirm.Text, "Hidden mention sent successfully") {
		t.Errorf("confirmation = %+v", confirm)
	}

	if _, ok := fx.sessions.Get(owner); ok {
		t.Error("session survived a successful selection")
	}

	// The flow is over; a number is idle input now.
	before := len(fx.gw.sends)
	fx.d.HandleMessage(ctx, dm(owner, "5"))
	if len(fx.gw.sends) != before {
		t.Error("number after completed flow produced a send")
	}
}

func TestInvalidSelectionRetainsSession(t *testing.T) {
	fx := newFixture(t)
	fx.seedOwner(t)
	ctx := context.Background()
	seedSeventeenGroups(fx)

	fx.d.HandleMessage(ctx, dm(owner, "!htag"))

	for _, input := range []string{"abc", "0", "18", "-2"} {
		fx.d.HandleMessage(ctx, dm(owner, input))
		if got := fx.gw.lastSend(t).Text; got != noticeInvalidChoice {
			t.Errorf("input %q reply = %q", input, got)
		}
		sess, ok := fx.sessions.Get(owner)
		if !ok {
			t.Fatalf("session gone after invalid input %q", input)
		}
		if sess.Page != 1 || len(sess.Items) != 17 {
			t.Errorf("session mutated by invalid input %q: page=%d items=%d", input, sess.Page, len(sess.Items))
		}
	}
}

func TestCancelSession(t *testing.T) {
	fx := newFixture(t)
	fx.seedOwner(t)
	ctx := context.Background()
	seedSeventeenGroups(fx)

	fx.d.HandleMessage(ctx, dm(owner, "!htag"))
	fx.d.HandleMessage(ctx, dm(owner, "c"))
	if got := fx.gw.lastSend(t).Text; got != noticeCancelled {
		t.Errorf("cancel reply = %q", got)
	}
	if _, ok := fx.sessions.Get(owner); ok {
		t.Error("session survived cancellation")
	}
}

// A failed bound action still consumes the session.
func TestSelectionFailureConsumesSession(t *testing.T) {
	fx := newFixture(t)
	fx.seedOwner(t)
	ctx := context.Background()
	seedSeventeenGroups(fx)

	fx.d.HandleMessage(ctx, dm(owner, "!htag"))
	fx.gw.metadataErr = errors.New("not a participant")

	fx.d.HandleMessage(ctx, dm(owner, "3"))
	if got := fx.gw.lastSend(t).Text; got != noticeHiddenFailed {
		t.Errorf("failed selection reply = %q", got)
	}
	if _, ok := fx.sessions.Get(owner); ok {
		t.Error("session survived a failed selection")
	}
}

// While a session is active, even command keywords are session input.
func TestSessionInputPrecedence(t *testing.T) {
	fx := newFixture(t)
	fx.seedOwner(t)
	ctx := context.Background()
	seedSeventeenGroups(fx)

	fx.d.HandleMessage(ctx, dm(owner, "!htag"))
	fx.d.HandleMessage(ctx, dm(owner, "n"))

	sess, _ := fx.sessions.Get(owner)
	if sess.Page != 2 {
		t.Fatalf("page = %d before restart", sess.Page)
	}

	// "!htag" while a session is active is session input, not a command.
	fx.d.HandleMessage(ctx, dm(owner, "!htag"))
	if got := fx.gw.lastSend(t).Text; got != noticeInvalidChoice {
		t.Errorf("!htag inside session reply = %q", got)
	}
	sess, _ = fx.sessions.Get(owner)
	if sess.Page != 2 {
		t.Errorf("session page changed by in-session command text: %d", sess.Page)
	}
}

func TestCommandRateLimit(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gw := &fakeGateway{metadata: map[string]*gateway.GroupInfo{}}
	store := settings.NewStore(filepath.Join(t.TempDir(), "settings.json"), logger)
	d := New(gw, store, session.NewManager(), 2, logger)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d.HandleMessage(ctx, groupMsg(stranger, groupA, "!tag"))
	}
	// Two refusals delivered, third command dropped by the limiter.
	if len(gw.sends) != 2 {
		t.Errorf("sends = %d; want 2", len(gw.sends))
	}

	// Non-command chatter is never throttled or answered.
	d.HandleMessage(ctx, groupMsg(stranger, groupA, "hello there"))
	if len(gw.sends) != 2 {
		t.Errorf("chatter produced a send")
	}
}

func TestSendFailureDoesNotPanic(t *testing.T) {
	fx := newFixture(t)
	fx.gw.sendErr = errors.New("socket closed")
	fx.d.HandleMessage(context.Background(), dm(owner, "!setowner"))
	// The reply failed but the mutation persisted; nothing to assert
	// beyond "no panic" and the owner being set.
	if got := fx.store.Snapshot().Owner; got != owner {
		t.Errorf("owner = %q", got)
	}
}

// Package whatsapp implements the WhatsApp gateway using whatsmeow.
// It owns the connection lifecycle (QR pairing, credential storage,
// reconnects handled by the library) and converts between whatsmeow
// events and the gateway types the dispatcher consumes.
package whatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/mdp/qrterminal/v3"
	"github.com/samber/lo"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"
	_ "modernc.org/sqlite"

	"github.com/tagclaw/tagclaw/internal/gateway"
)

// Config represents WhatsApp channel configuration.
type Config struct {
	// CredentialDB is the SQLite file holding pairing credentials and
	// encryption state.
	CredentialDB string

	// DeviceName appears in the phone's linked-devices list.
	DeviceName string
}

// Channel connects tagclaw to WhatsApp. It implements gateway.Gateway.
type Channel struct {
	cfg    Config
	logger *slog.Logger

	mu        sync.RWMutex
	container *sqlstore.Container
	client    *whatsmeow.Client

	messages chan gateway.Message
}

// NewChannel creates a new WhatsApp channel.
func NewChannel(cfg Config, logger *slog.Logger) *Channel {
	return &Channel{
		cfg:      cfg,
		logger:   logger.With("channel", "whatsapp"),
		messages: make(chan gateway.Message, 100),
	}
}

// Start opens the credential store and connects. If the store holds no
// device, a QR code is rendered to stdout for pairing.
func (c *Channel) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return fmt.Errorf("whatsapp channel already started")
	}
	if c.cfg.CredentialDB == "" {
		return fmt.Errorf("whatsapp credentialDb is required")
	}

	addr := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)", c.cfg.CredentialDB)
	container, err := sqlstore.New(ctx, "sqlite", addr, newWALogger(c.logger.With("component", "store")))
	if err != nil {
		return fmt.Errorf("open credential store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return fmt.Errorf("load device: %w", err)
	}
	if c.cfg.DeviceName != "" {
		store.DeviceProps.Os = proto.String(c.cfg.DeviceName)
	}

	client := whatsmeow.NewClient(device, newWALogger(c.logger.With("component", "client")))
	client.AddEventHandler(c.handleEvent)

	if client.Store.ID == nil {
		// Fresh install: pairing flow. The QR channel must be opened
		// before connecting.
		qrChan, err := client.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("open qr channel: %w", err)
		}
		if err := client.Connect(); err != nil {
			return fmt.Errorf("connect: %w", err)
		}
		go c.runPairing(qrChan)
	} else {
		if err := client.Connect(); err != nil {
			return fmt.Errorf("connect: %w", err)
		}
	}

	c.container = container
	c.client = client
	return nil
}

// runPairing renders QR codes until the pairing flow finishes.
func (c *Channel) runPairing(qrChan <-chan whatsmeow.QRChannelItem) {
	for evt := range qrChan {
		if evt.Event == "code" {
			fmt.Println("Scan this QR code with WhatsApp (Linked devices > Link a device):")
			qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, os.Stdout)
			continue
		}
		c.logger.Info("pairing event", "event", evt.Event)
	}
}

// Stop disconnects and closes the credential store.
func (c *Channel) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		c.client.Disconnect()
		c.client = nil
	}
	if c.container != nil {
		if err := c.container.Close(); err != nil {
			return fmt.Errorf("close credential store: %w", err)
		}
		c.container = nil
	}
	close(c.messages)
	return nil
}

// IsConnected returns whether the channel is connected.
func (c *Channel) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client != nil && c.client.IsConnected()
}

// Messages returns the inbound message stream.
func (c *Channel) Messages() <-chan gateway.Message {
	return c.messages
}

// SendText delivers text to a chat. opts may carry mention, quote and
// edit metadata; see gateway.SendOptions.
func (c *Channel) SendText(ctx context.Context, to, text string, opts *gateway.SendOptions) error {
	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()
	if client == nil {
		return fmt.Errorf("whatsapp channel not connected")
	}

	jid, err := types.ParseJID(to)
	if err != nil {
		return fmt.Errorf("parse recipient %q: %w", to, err)
	}

	msg := buildMessage(text, opts)
	if opts != nil && opts.EditID != "" {
		msg = client.BuildEdit(jid, types.MessageID(opts.EditID), msg)
	}

	if _, err := client.SendMessage(ctx, jid, msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// buildMessage assembles the wire message. Mentions and quotes need an
// extended text message with context info; plain text goes out as a
// simple conversation message.
func buildMessage(text string, opts *gateway.SendOptions) *waE2E.Message {
	if opts == nil || (len(opts.Mentions) == 0 && opts.QuoteID == "") {
		return &waE2E.Message{Conversation: proto.String(text)}
	}

	ctxInfo := &waE2E.ContextInfo{}
	if len(opts.Mentions) > 0 {
		ctxInfo.MentionedJID = opts.Mentions
	}
	if opts.QuoteID != "" {
		ctxInfo.StanzaID = proto.String(opts.QuoteID)
		ctxInfo.Participant = proto.String(opts.QuoteSender)
		ctxInfo.QuotedMessage = &waE2E.Message{Conversation: proto.String("")}
	}

	return &waE2E.Message{
		ExtendedTextMessage: &waE2E.ExtendedTextMessage{
			Text:        proto.String(text),
			ContextInfo: ctxInfo,
		},
	}
}

// GroupMetadata fetches the member roster of a group.
func (c *Channel) GroupMetadata(ctx context.Context, groupID string) (*gateway.GroupInfo, error) {
	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()
	if client == nil {
		return nil, fmt.Errorf("whatsapp channel not connected")
	}

	jid, err := types.ParseJID(groupID)
	if err != nil {
		return nil, fmt.Errorf("parse group %q: %w", groupID, err)
	}

	info, err := client.GetGroupInfo(ctx, jid)
	if err != nil {
		return nil, fmt.Errorf("fetch group info: %w", err)
	}
	return convertGroup(info), nil
}

// JoinedGroups fetches every group the account participates in.
func (c *Channel) JoinedGroups(ctx context.Context) ([]gateway.GroupInfo, error) {
	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()
	if client == nil {
		return nil, fmt.Errorf("whatsapp channel not connected")
	}

	groups, err := client.GetJoinedGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch joined groups: %w", err)
	}
	return lo.Map(groups, func(g *types.GroupInfo, _ int) gateway.GroupInfo {
		return *convertGroup(g)
	}), nil
}

func convertGroup(info *types.GroupInfo) *gateway.GroupInfo {
	return &gateway.GroupInfo{
		ID:   info.JID.String(),
		Name: info.GroupName.Name,
		Members: lo.Map(info.Participants, func(p types.GroupParticipant, _ int) string {
			return p.JID.ToNonAD().String()
		}),
	}
}

// handleEvent converts whatsmeow events into gateway messages. Only
// text-bearing message events reach the dispatcher.
func (c *Channel) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Message:
		c.handleMessage(v)
	case *events.Connected:
		c.logger.Info("whatsapp connected")
	case *events.Disconnected:
		c.logger.Warn("whatsapp disconnected")
	case *events.LoggedOut:
		c.logger.Error("whatsapp logged out, delete the credential database and pair again")
	}
}

func (c *Channel) handleMessage(evt *events.Message) {
	text, replyTo := extractText(evt.Message)
	if text == "" {
		return
	}

	msg := gateway.Message{
		ID:        string(evt.Info.ID),
		Sender:    evt.Info.Sender.ToNonAD().String(),
		Chat:      evt.Info.Chat.ToNonAD().String(),
		IsGroup:   evt.Info.IsGroup,
		Text:      text,
		ReplyTo:   replyTo,
		Timestamp: evt.Info.Timestamp.UnixMilli(),
	}

	select {
	case c.messages <- msg:
	default:
		// The dispatcher has fallen behind; shedding chatter beats
		// blocking the event handler.
		c.logger.Warn("inbound queue full, dropping message", "chat", msg.Chat)
	}
}

// extractText pulls the text body out of a message, along with the
// identity of the quoted participant when the message is a reply.
func extractText(msg *waE2E.Message) (text, replyTo string) {
	if msg == nil {
		return "", ""
	}
	if conv := msg.GetConversation(); conv != "" {
		return conv, ""
	}
	ext := msg.GetExtendedTextMessage()
	if ext == nil {
		return "", ""
	}
	ctxInfo := ext.GetContextInfo()
	if ctxInfo.GetQuotedMessage() != nil {
		replyTo = ctxInfo.GetParticipant()
	}
	return ext.GetText(), replyTo
}

// Package gateway defines the contract between the bot core and the
// messaging network adapter. The core only ever talks to these types;
// the WhatsApp specifics live in internal/infrastructure/whatsapp.
package gateway

import "context"

// Message represents a message received from the network.
type Message struct {
	// ID is the network message ID, usable in SendOptions for quoting
	// or editing.
	ID string

	// Sender is the identity of the participant who wrote the message.
	Sender string

	// Chat is the conversation the message arrived in. For a direct
	// chat with the bot's own account Chat equals Sender.
	Chat string

	// IsGroup reports whether Chat is a group conversation.
	IsGroup bool

	// Text is the raw message text, not yet normalized.
	Text string

	// ReplyTo is the identity of the participant whose message was
	// quoted, if the sender replied to someone. Empty otherwise.
	ReplyTo string

	Timestamp int64
}

// SendOptions carries optional delivery metadata for SendText.
type SendOptions struct {
	// Mentions lists identities whose clients should be notified.
	// The identities need not appear in the message text; mentioning
	// without visible text is how hidden mentions work.
	Mentions []string

	// QuoteID and QuoteSender attach the outgoing message as a reply
	// to an earlier message.
	QuoteID     string
	QuoteSender string

	// EditID replaces an earlier message instead of sending a new one.
	EditID string
}

// GroupInfo describes a group the account participates in.
type GroupInfo struct {
	ID      string
	Name    string
	Members []string
}

// Sender is the minimal outbound surface. Split out so handlers that
// only reply can be tested against a tiny fake.
type Sender interface {
	// SendText delivers text to a chat or participant. opts may be nil.
	SendText(ctx context.Context, to string, text string, opts *SendOptions) error
}

// Gateway is the full collaborator contract the dispatcher consumes.
type Gateway interface {
	Sender

	// GroupMetadata fetches the current member roster of a group.
	GroupMetadata(ctx context.Context, groupID string) (*GroupInfo, error)

	// JoinedGroups fetches every group the account is a member of.
	JoinedGroups(ctx context.Context) ([]GroupInfo, error)

	// Messages returns the inbound message stream. The adapter closes
	// it when the connection shuts down for good.
	Messages() <-chan Message
}

package mail

import (
	"context"
	"time"
)

// Message represents a normalized email message across providers.
// A Message is immutable once fetched; the processing pipeline owns
// it for the duration of one run.
type Message struct {
	ID        string
	ThreadID  string
	Subject   string
	Sender    string
	Recipient string
	SentAt    time.Time
	Body      string
	Snippet   string
	LabelIDs  []string
}

// DraftReceipt identifies a reply draft created by a provider.
type DraftReceipt struct {
	DraftID   string
	MessageID string
}

// Mailbox is the provider-agnostic mailbox interface consumed by the
// sync controller and the processing pipeline.
type Mailbox interface {
	// ListUnread returns up to maxResults unread messages, newest first.
	ListUnread(ctx context.Context, maxResults int) ([]Message, error)

	// GetMessage fetches a single message by provider id.
	GetMessage(ctx context.Context, id string) (*Message, error)

	// ApplyLabel attaches the named label to a message, creating the
	// label on the provider side if it does not exist yet.
	ApplyLabel(ctx context.Context, messageID, labelName string) error

	// CreateReplyDraft creates (but does not send) a reply draft on the
	// message's thread.
	CreateReplyDraft(ctx context.Context, threadID, to, subject, body string) (*DraftReceipt, error)
}

// Package gmail implements the Mailbox interface over the Gmail API.
package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/gordonmeng2021/Email-AI/internal/auth"
	"github.com/gordonmeng2021/Email-AI/internal/mail"
)

// Adapter implements mail.Mailbox for Gmail.
type Adapter struct {
	svc  *gmailapi.Service
	user string

	labelMu sync.Mutex
	labels  map[string]string // name -> label id
}

// New creates a Gmail adapter for the given OAuth token. The adapter
// acts on the token owner's own mailbox.
func New(ctx context.Context, tok *auth.Token) (*Adapter, error) {
	oauth2Token := &oauth2.Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}

	config := &oauth2.Config{
		Scopes: []string{gmailapi.GmailModifyScope, gmailapi.GmailComposeScope},
	}

	httpClient := config.Client(ctx, oauth2Token)

	svc, err := gmailapi.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	return &Adapter{svc: svc, user: "me", labels: make(map[string]string)}, nil
}

// ListUnread returns up to maxResults unread inbox messages.
func (a *Adapter) ListUnread(ctx context.Context, maxResults int) ([]mail.Message, error) {
	list, err := a.svc.Users.Messages.List(a.user).
		Q("is:unread in:inbox").
		MaxResults(int64(maxResults)).
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	messages := make([]mail.Message, 0, len(list.Messages))
	for _, ref := range list.Messages {
		full, err := a.svc.Users.Messages.Get(a.user, ref.Id).Format("full").Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("failed to get message %s: %w", ref.Id, err)
		}
		messages = append(messages, normalize(full))
	}
	return messages, nil
}

// GetMessage fetches a single message by id.
func (a *Adapter) GetMessage(ctx context.Context, id string) (*mail.Message, error) {
	full, err := a.svc.Users.Messages.Get(a.user, id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get message %s: %w", id, err)
	}
	msg := normalize(full)
	return &msg, nil
}

// ApplyLabel attaches the named label, creating it first if needed.
func (a *Adapter) ApplyLabel(ctx context.Context, messageID, labelName string) error {
	labelID, err := a.labelID(ctx, labelName)
	if err != nil {
		return err
	}

	req := &gmailapi.ModifyMessageRequest{AddLabelIds: []string{labelID}}
	if _, err := a.svc.Users.Messages.Modify(a.user, messageID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to apply label %q to %s: %w", labelName, messageID, err)
	}
	return nil
}

// CreateReplyDraft creates (not sends) a reply draft on the thread.
func (a *Adapter) CreateReplyDraft(ctx context.Context, threadID, to, subject, body string) (*mail.DraftReceipt, error) {
	raw := fmt.Sprintf("To: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s", to, subject, body)

	draft := &gmailapi.Draft{
		Message: &gmailapi.Message{
			ThreadId: threadID,
			Raw:      base64.URLEncoding.EncodeToString([]byte(raw)),
		},
	}

	created, err := a.svc.Users.Drafts.Create(a.user, draft).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to create draft: %w", err)
	}

	receipt := &mail.DraftReceipt{DraftID: created.Id}
	if created.Message != nil {
		receipt.MessageID = created.Message.Id
	}
	return receipt, nil
}

// labelID resolves a label name to its id, creating the label when it
// does not exist. Resolutions are cached for the adapter's lifetime.
func (a *Adapter) labelID(ctx context.Context, name string) (string, error) {
	a.labelMu.Lock()
	defer a.labelMu.Unlock()

	if id, ok := a.labels[name]; ok {
		return id, nil
	}

	list, err := a.svc.Users.Labels.List(a.user).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to list labels: %w", err)
	}
	for _, l := range list.Labels {
		a.labels[l.Name] = l.Id
	}
	if id, ok := a.labels[name]; ok {
		return id, nil
	}

	created, err := a.svc.Users.Labels.Create(a.user, &gmailapi.Label{
		Name:                  name,
		LabelListVisibility:   "labelShow",
		MessageListVisibility: "show",
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to create label %q: %w", name, err)
	}
	a.labels[name] = created.Id
	return created.Id, nil
}

// normalize converts a Gmail message to the provider-agnostic form.
func normalize(m *gmailapi.Message) mail.Message {
	msg := mail.Message{
		ID:       m.Id,
		ThreadID: m.ThreadId,
		Snippet:  m.Snippet,
		LabelIDs: m.LabelIds,
		SentAt:   time.UnixMilli(m.InternalDate),
	}

	if m.Payload != nil {
		for _, h := range m.Payload.Headers {
			switch h.Name {
			case "Subject":
				msg.Subject = h.Value
			case "From":
				msg.Sender = h.Value
			case "To":
				msg.Recipient = h.Value
			}
		}
		msg.Body = plainTextBody(m.Payload)
	}
	if msg.Body == "" {
		msg.Body = m.Snippet
	}
	return msg
}

// plainTextBody walks the MIME tree for the first text/plain part.
func plainTextBody(part *gmailapi.MessagePart) string {
	if part.MimeType == "text/plain" && part.Body != nil && part.Body.Data != "" {
		data, err := base64.URLEncoding.DecodeString(part.Body.Data)
		if err != nil {
			return ""
		}
		return string(data)
	}
	for _, p := range part.Parts {
		if body := plainTextBody(p); body != "" {
			return body
		}
	}
	if part.Body != nil && part.Body.Data != "" && strings.HasPrefix(part.MimeType, "text/") {
		data, err := base64.URLEncoding.DecodeString(part.Body.Data)
		if err != nil {
			return ""
		}
		return string(data)
	}
	return ""
}

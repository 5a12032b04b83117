// Package outlook implements the Mailbox interface over Microsoft
// Graph. Graph has no Gmail-style labels; the adapter maps label
// application onto message categories.
package outlook

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	msgraphsdk "github.com/microsoftgraph/msgraph-sdk-go"
	"github.com/microsoftgraph/msgraph-sdk-go/models"
	"github.com/microsoftgraph/msgraph-sdk-go/users"

	"github.com/gordonmeng2021/Email-AI/internal/auth"
	"github.com/gordonmeng2021/Email-AI/internal/mail"
)

// Adapter implements mail.Mailbox for Outlook/Microsoft Graph.
type Adapter struct {
	client *msgraphsdk.GraphServiceClient
	userID string
}

// New creates an Outlook adapter for the given token and Graph user.
func New(ctx context.Context, tok *auth.Token, userID string) (*Adapter, error) {
	cred := &staticTokenCredential{token: tok.AccessToken}

	client, err := msgraphsdk.NewGraphServiceClientWithCredentials(cred, []string{})
	if err != nil {
		return nil, fmt.Errorf("failed to create Graph client: %w", err)
	}

	return &Adapter{client: client, userID: userID}, nil
}

// ListUnread returns up to maxResults unread messages.
func (a *Adapter) ListUnread(ctx context.Context, maxResults int) ([]mail.Message, error) {
	requestConfig := &users.ItemMessagesRequestBuilderGetRequestConfiguration{
		QueryParameters: &users.ItemMessagesRequestBuilderGetQueryParameters{
			Top:    int32Ptr(int32(maxResults)),
			Filter: strPtr("isRead eq false"),
			Select: []string{"id", "conversationId", "subject", "from", "toRecipients", "body", "bodyPreview", "receivedDateTime", "categories"},
		},
	}

	result, err := a.client.Users().ByUserId(a.userID).Messages().Get(ctx, requestConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	var messages []mail.Message
	for _, m := range result.GetValue() {
		messages = append(messages, normalize(m))
	}
	return messages, nil
}

// GetMessage fetches a single message by id.
func (a *Adapter) GetMessage(ctx context.Context, id string) (*mail.Message, error) {
	m, err := a.client.Users().ByUserId(a.userID).Messages().ByMessageId(id).Get(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get message %s: %w", id, err)
	}
	msg := normalize(m)
	return &msg, nil
}

// ApplyLabel adds the label name to the message's categories.
func (a *Adapter) ApplyLabel(ctx context.Context, messageID, labelName string) error {
	current, err := a.client.Users().ByUserId(a.userID).Messages().ByMessageId(messageID).Get(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to get message %s: %w", messageID, err)
	}

	categories := current.GetCategories()
	for _, c := range categories {
		if c == labelName {
			return nil
		}
	}
	categories = append(categories, labelName)

	patch := models.NewMessage()
	patch.SetCategories(categories)

	if _, err := a.client.Users().ByUserId(a.userID).Messages().ByMessageId(messageID).Patch(ctx, patch, nil); err != nil {
		return fmt.Errorf("failed to apply category %q to %s: %w", labelName, messageID, err)
	}
	return nil
}

// CreateReplyDraft creates an unsent draft reply message.
func (a *Adapter) CreateReplyDraft(ctx context.Context, threadID, to, subject, body string) (*mail.DraftReceipt, error) {
	draft := models.NewMessage()
	draft.SetSubject(strPtr(subject))

	content := models.NewItemBody()
	contentType := models.TEXT_BODYTYPE
	content.SetContentType(&contentType)
	content.SetContent(strPtr(body))
	draft.SetBody(content)

	recipient := models.NewRecipient()
	emailAddr := models.NewEmailAddress()
	emailAddr.SetAddress(strPtr(to))
	recipient.SetEmailAddress(emailAddr)
	draft.SetToRecipients([]models.Recipientable{recipient})

	created, err := a.client.Users().ByUserId(a.userID).Messages().Post(ctx, draft, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create draft: %w", err)
	}

	receipt := &mail.DraftReceipt{}
	if id := created.GetId(); id != nil {
		receipt.DraftID = *id
		receipt.MessageID = *id
	}
	return receipt, nil
}

// normalize converts a Graph message to the provider-agnostic form.
func normalize(m models.Messageable) mail.Message {
	msg := mail.Message{}

	if id := m.GetId(); id != nil {
		msg.ID = *id
	}
	if convID := m.GetConversationId(); convID != nil {
		msg.ThreadID = *convID
	}
	if subject := m.GetSubject(); subject != nil {
		msg.Subject = *subject
	}
	if from := m.GetFrom(); from != nil {
		if emailAddr := from.GetEmailAddress(); emailAddr != nil {
			if addr := emailAddr.GetAddress(); addr != nil {
				msg.Sender = *addr
			}
		}
	}
	if to := m.GetToRecipients(); len(to) > 0 {
		if emailAddr := to[0].GetEmailAddress(); emailAddr != nil {
			if addr := emailAddr.GetAddress(); addr != nil {
				msg.Recipient = *addr
			}
		}
	}
	if body := m.GetBody(); body != nil {
		if content := body.GetContent(); content != nil {
			msg.Body = *content
		}
	}
	if preview := m.GetBodyPreview(); preview != nil {
		msg.Snippet = *preview
		if msg.Body == "" {
			msg.Body = *preview
		}
	}
	if rcvd := m.GetReceivedDateTime(); rcvd != nil {
		msg.SentAt = *rcvd
	}
	msg.LabelIDs = m.GetCategories()

	return msg
}

// staticTokenCredential implements the Azure credential interface over
// a token fetched from the auth service.
type staticTokenCredential struct {
	token string
}

func (c *staticTokenCredential) GetToken(ctx context.Context, options policy.TokenRequestOptions) (azcore.AccessToken, error) {
	return azcore.AccessToken{
		Token:     c.token,
		ExpiresOn: time.Now().Add(1 * time.Hour),
	}, nil
}

func int32Ptr(i int32) *int32 { return &i }

func strPtr(s string) *string { return &s }

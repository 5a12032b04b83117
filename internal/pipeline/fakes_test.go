package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/gordonmeng2021/Email-AI/internal/ai"
	"github.com/gordonmeng2021/Email-AI/internal/mail"
)

// fakeAI implements every stage interface with canned responses.
type fakeAI struct {
	summary      string
	summarizeErr error
	gotSummary   string

	category    string
	classifyErr error

	matches  map[string]bool
	matchErr error

	draft       string
	generateErr error

	rewritten  string
	rewriteErr error

	lang      string
	detectErr error

	translated   string
	translateErr error

	proofed  string
	proofErr error
}

func (f *fakeAI) Summarize(ctx context.Context, text string) (string, error) {
	if f.summarizeErr != nil {
		return "", f.summarizeErr
	}
	return f.summary, nil
}

func (f *fakeAI) Classify(ctx context.Context, summary string, meta ai.Metadata) (ai.Classification, error) {
	f.gotSummary = summary
	if f.classifyErr != nil {
		return ai.Classification{}, f.classifyErr
	}
	return ai.Classification{Category: f.category, Summary: summary}, nil
}

func (f *fakeAI) Match(ctx context.Context, summary string, meta ai.Metadata, label ai.CustomLabel) (bool, error) {
	if f.matchErr != nil {
		return false, f.matchErr
	}
	return f.matches[label.Name], nil
}

func (f *fakeAI) Generate(ctx context.Context, subject, sender, body, tone string) (string, error) {
	if f.generateErr != nil {
		return "", f.generateErr
	}
	return f.draft, nil
}

func (f *fakeAI) Rewrite(ctx context.Context, text string) (string, error) {
	if f.rewriteErr != nil {
		return "", f.rewriteErr
	}
	if f.rewritten == "" {
		return text, nil
	}
	return f.rewritten, nil
}

func (f *fakeAI) DetectLanguage(ctx context.Context, text string) (string, error) {
	if f.detectErr != nil {
		return "", f.detectErr
	}
	if f.lang == "" {
		return "en", nil
	}
	return f.lang, nil
}

func (f *fakeAI) Translate(ctx context.Context, text, from, to string) (string, error) {
	if f.translateErr != nil {
		return "", f.translateErr
	}
	if f.translated == "" {
		return text, nil
	}
	return f.translated, nil
}

func (f *fakeAI) Proofread(ctx context.Context, text string) (string, error) {
	if f.proofErr != nil {
		return "", f.proofErr
	}
	if f.proofed == "" {
		return text, nil
	}
	return f.proofed, nil
}

// fakeMailbox records label and draft side effects.
type fakeMailbox struct {
	mu       sync.Mutex
	messages []mail.Message
	listErr  error

	applied  []string // message id + ":" + label
	applyErr error

	drafts   []string // draft bodies
	draftErr error
}

func (f *fakeMailbox) ListUnread(ctx context.Context, maxResults int) ([]mail.Message, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	if len(f.messages) > maxResults {
		return f.messages[:maxResults], nil
	}
	return f.messages, nil
}

func (f *fakeMailbox) GetMessage(ctx context.Context, id string) (*mail.Message, error) {
	for i := range f.messages {
		if f.messages[i].ID == id {
			return &f.messages[i], nil
		}
	}
	return nil, fmt.Errorf("no message %s", id)
}

func (f *fakeMailbox) ApplyLabel(ctx context.Context, messageID, labelName string) error {
	if f.applyErr != nil {
		return f.applyErr
	}
	f.mu.Lock()
	f.applied = append(f.applied, messageID+":"+labelName)
	f.mu.Unlock()
	return nil
}

func (f *fakeMailbox) CreateReplyDraft(ctx context.Context, threadID, to, subject, body string) (*mail.DraftReceipt, error) {
	if f.draftErr != nil {
		return nil, f.draftErr
	}
	f.mu.Lock()
	f.drafts = append(f.drafts, body)
	f.mu.Unlock()
	return &mail.DraftReceipt{DraftID: "draft-1"}, nil
}

func (f *fakeMailbox) appliedLabels() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.applied...)
}

func (f *fakeMailbox) draftCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.drafts)
}

// fakeLabels is an in-memory LabelSource.
type fakeLabels struct {
	mu      sync.Mutex
	labels  []ai.CustomLabel
	listErr error
	touched []string
}

func (f *fakeLabels) ListCustomLabels(ctx context.Context) ([]ai.CustomLabel, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.labels, nil
}

func (f *fakeLabels) TouchCustomLabel(ctx context.Context, id string) error {
	f.mu.Lock()
	f.touched = append(f.touched, id)
	f.mu.Unlock()
	return nil
}

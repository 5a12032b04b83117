package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gordonmeng2021/Email-AI/internal/ai"
	"github.com/gordonmeng2021/Email-AI/internal/dedup"
	"github.com/gordonmeng2021/Email-AI/internal/mail"
	"github.com/gordonmeng2021/Email-AI/internal/pipeline"
	"github.com/gordonmeng2021/Email-AI/internal/state"
	"github.com/gordonmeng2021/Email-AI/internal/stats"
)

// stubMailbox serves a fixed message list. listGate, when set, blocks
// the first ListUnread call until the gate closes or the context ends,
// which lets tests hold a cycle open mid-flight.
type stubMailbox struct {
	mu        sync.Mutex
	messages  []mail.Message
	listErr   error
	listGate  chan struct{}
	listBegan chan struct{}
	listCalls int
}

func (m *stubMailbox) ListUnread(ctx context.Context, maxResults int) ([]mail.Message, error) {
	m.mu.Lock()
	m.listCalls++
	first := m.listCalls == 1
	gate := m.listGate
	began := m.listBegan
	err := m.listErr
	m.mu.Unlock()

	if began != nil && first {
		close(began)
	}
	if gate != nil && first {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if maxResults < len(m.messages) {
		return m.messages[:maxResults], nil
	}
	return m.messages, nil
}

func (m *stubMailbox) GetMessage(ctx context.Context, id string) (*mail.Message, error) {
	for i := range m.messages {
		if m.messages[i].ID == id {
			return &m.messages[i], nil
		}
	}
	return nil, fmt.Errorf("message %s not found", id)
}

func (m *stubMailbox) ApplyLabel(ctx context.Context, messageID, labelName string) error {
	return nil
}

func (m *stubMailbox) CreateReplyDraft(ctx context.Context, threadID, to, subject, body string) (*mail.DraftReceipt, error) {
	return &mail.DraftReceipt{DraftID: "draft-" + threadID, MessageID: threadID}, nil
}

func (m *stubMailbox) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listCalls
}

// stubAI answers every stage with canned values and a fixed category.
type stubAI struct {
	category string
}

func (a *stubAI) Summarize(ctx context.Context, text string) (string, error) {
	return "summary", nil
}

func (a *stubAI) Classify(ctx context.Context, summary string, meta ai.Metadata) (ai.Classification, error) {
	return ai.Classification{Category: a.category, Summary: summary}, nil
}

func (a *stubAI) Match(ctx context.Context, summary string, meta ai.Metadata, label ai.CustomLabel) (bool, error) {
	return false, nil
}

func (a *stubAI) Generate(ctx context.Context, subject, sender, body, tone string) (string, error) {
	return "drafted reply", nil
}

func (a *stubAI) Rewrite(ctx context.Context, text string) (string, error) { return text, nil }

func (a *stubAI) DetectLanguage(ctx context.Context, text string) (string, error) {
	return "en", nil
}

func (a *stubAI) Translate(ctx context.Context, text, from, to string) (string, error) {
	return text, nil
}

func (a *stubAI) Proofread(ctx context.Context, text string) (string, error) { return text, nil }

// memState is an in-memory stand-in for the sqlite store covering the
// slices the controller, the dedup set and the aggregator persist to.
type memState struct {
	mu       sync.Mutex
	ids      []string
	stats    state.StatsRecord
	lastSync time.Time
	outbox   []string
}

func (m *memState) AddProcessedID(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids = append(m.ids, id)
	return nil
}

func (m *memState) TrimProcessed(ctx context.Context, capacity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.ids) > capacity {
		m.ids = m.ids[len(m.ids)-capacity:]
	}
	return nil
}

func (m *memState) LoadStats(ctx context.Context) (state.StatsRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats, nil
}

func (m *memState) SaveStats(ctx context.Context, rec state.StatsRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats = rec
	return nil
}

func (m *memState) SetLastSyncAt(ctx context.Context, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSync = t
	return nil
}

func (m *memState) AppendOutbox(ctx context.Context, subject, eventType string, payload []byte, msgID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.outbox {
		if existing == msgID {
			return nil
		}
	}
	m.outbox = append(m.outbox, msgID)
	return nil
}

func (m *memState) outboxIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.outbox...)
}

func (m *memState) snapshot() state.StatsRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

func testMessages(n int) []mail.Message {
	msgs := make([]mail.Message, n)
	for i := range msgs {
		msgs[i] = mail.Message{
			ID:       fmt.Sprintf("msg-%d", i),
			ThreadID: fmt.Sprintf("thread-%d", i),
			Subject:  fmt.Sprintf("Subject %d", i),
			Sender:   "a@example.com",
			Body:     "please send over the contract when you can",
		}
	}
	return msgs
}

// newTestController wires a controller over in-memory fakes. The
// category steers the classifier so tests choose whether drafts fire.
func newTestController(mailbox *stubMailbox, store *memState, category string) *Controller {
	model := &stubAI{category: category}
	processor := &pipeline.Processor{
		Summarizer: model,
		Classifier: model,
		Matcher:    model,
		Mailbox:    mailbox,
		Drafts: &pipeline.DraftPipeline{
			Generator:   model,
			Rewriter:    model,
			Translator:  model,
			Proofreader: model,
			Mailbox:     mailbox,
		},
		AutoDraft: true,
	}
	return &Controller{
		Mailbox:   mailbox,
		Processor: processor,
		Dedup:     dedup.New(1000, store),
		Stats:     stats.New(store),
		Store:     store,
		AutoSync:  true,
	}
}

// Package sync owns the single-flight sync cycle: list unread
// messages, skip already-processed ones, run each through the pipeline
// and fold outcomes into statistics.
package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/gordonmeng2021/Email-AI/internal/dedup"
	"github.com/gordonmeng2021/Email-AI/internal/mail"
	"github.com/gordonmeng2021/Email-AI/internal/pipeline"
	"github.com/gordonmeng2021/Email-AI/internal/stats"
)

// Skip reasons reported by a cycle that did not run.
const (
	SkipAlreadyRunning = "already_running"
	SkipDisabled       = "disabled"
)

// CycleReport is the outcome of one sync cycle.
type CycleReport struct {
	CycleID    string                      `json:"cycle_id"`
	Skipped    string                      `json:"skipped,omitempty"`
	Listed     int                         `json:"listed"`
	Deduped    int                         `json:"deduped"`
	Processed  int                         `json:"processed"`
	Failed     int                         `json:"failed"`
	Results    []pipeline.ProcessingResult `json:"results,omitempty"`
	Err        string                      `json:"error,omitempty"`
	StartedAt  time.Time                   `json:"started_at"`
	FinishedAt time.Time                   `json:"finished_at"`
}

// Status is the controller's externally visible state.
type Status struct {
	InProgress   bool `json:"in_progress"`
	PendingCount int  `json:"pending_count"`
}

// StatePersistence is the slice of the state store the controller
// writes: the last-sync timestamp and the event outbox.
type StatePersistence interface {
	SetLastSyncAt(ctx context.Context, t time.Time) error
	AppendOutbox(ctx context.Context, subject, eventType string, payload []byte, msgID string) error
}

// Controller schedules and runs sync cycles. At most one cycle is
// active at any instant; concurrent callers are turned away, not
// queued.
type Controller struct {
	Mailbox   mail.Mailbox
	Processor *pipeline.Processor
	Dedup     *dedup.Set
	Stats     *stats.Aggregator
	Store     StatePersistence

	AutoSync    bool
	MaxMessages int

	inProgress  atomic.Bool
	cancelMu    sync.Mutex
	cancelCycle context.CancelFunc
}

// RunCycle runs one sync cycle. Preconditions are checked in order
// and exit fast with no side effects: a cycle already in progress is
// normal backpressure, a disabled auto-sync setting is a user choice.
func (c *Controller) RunCycle(ctx context.Context) CycleReport {
	report := CycleReport{CycleID: uuid.NewString(), StartedAt: time.Now()}

	if c.inProgress.Load() {
		report.Skipped = SkipAlreadyRunning
		report.FinishedAt = time.Now()
		return report
	}
	if !c.AutoSync {
		report.Skipped = SkipDisabled
		report.FinishedAt = time.Now()
		return report
	}
	if !c.inProgress.CompareAndSwap(false, true) {
		report.Skipped = SkipAlreadyRunning
		report.FinishedAt = time.Now()
		return report
	}
	// Released on every exit path, including listing failures and
	// panics inside the loop.
	defer c.inProgress.Store(false)

	cycleCtx, cancel := context.WithCancel(ctx)
	c.setCancel(cancel)
	defer func() {
		c.setCancel(nil)
		cancel()
	}()

	max := c.MaxMessages
	if max <= 0 {
		max = 10
	}

	messages, err := c.Mailbox.ListUnread(cycleCtx, max)
	if err != nil {
		report.Err = fmt.Sprintf("list unread: %v", err)
		report.FinishedAt = time.Now()
		log.Printf("cycle %s: %s", report.CycleID, report.Err)
		return report
	}
	report.Listed = len(messages)

	drafts := 0
	for i := range messages {
		msg := &messages[i]
		if c.Dedup.Has(msg.ID) {
			report.Deduped++
			continue
		}

		// Each message's outcome is isolated; a failure never aborts
		// the remaining messages.
		result := c.Processor.Process(cycleCtx, msg)
		report.Results = append(report.Results, result)

		if !result.Succeeded {
			report.Failed++
			continue
		}
		report.Processed++
		if result.DraftCreated {
			drafts++
		}
		c.Dedup.Add(cycleCtx, msg.ID)
		c.emitProcessed(cycleCtx, report.CycleID, result)
	}

	if report.Processed > 0 {
		if err := c.Stats.Record(ctx, report.Processed, drafts); err != nil {
			log.Printf("cycle %s: record stats: %v", report.CycleID, err)
		}
	}
	if err := c.Store.SetLastSyncAt(ctx, time.Now()); err != nil {
		log.Printf("cycle %s: save last sync: %v", report.CycleID, err)
	}

	report.FinishedAt = time.Now()
	log.Printf("cycle %s: listed=%d deduped=%d processed=%d failed=%d",
		report.CycleID, report.Listed, report.Deduped, report.Processed, report.Failed)
	return report
}

// ForceSync recovers from a stuck in-progress flag: it cancels any
// outstanding cycle context, clears the flag and runs a fresh cycle.
// This is an escape hatch, not a correctness guarantee.
func (c *Controller) ForceSync(ctx context.Context) CycleReport {
	c.cancelMu.Lock()
	if c.cancelCycle != nil {
		c.cancelCycle()
		c.cancelCycle = nil
	}
	c.cancelMu.Unlock()
	c.inProgress.Store(false)
	return c.RunCycle(ctx)
}

// ProcessOne runs the pipeline on a single named message, bypassing
// listing but still honoring the dedup store. The second return value
// reports whether the message was skipped as already processed.
func (c *Controller) ProcessOne(ctx context.Context, messageID string) (pipeline.ProcessingResult, bool, error) {
	if c.Dedup.Has(messageID) {
		return pipeline.ProcessingResult{MessageID: messageID}, true, nil
	}

	msg, err := c.Mailbox.GetMessage(ctx, messageID)
	if err != nil {
		return pipeline.ProcessingResult{}, false, fmt.Errorf("get message %s: %w", messageID, err)
	}

	result := c.Processor.Process(ctx, msg)
	if result.Succeeded {
		c.Dedup.Add(ctx, messageID)
		drafts := 0
		if result.DraftCreated {
			drafts = 1
		}
		if err := c.Stats.Record(ctx, 1, drafts); err != nil {
			log.Printf("process one %s: record stats: %v", messageID, err)
		}
		c.emitProcessed(ctx, "", result)
	}
	return result, false, nil
}

// CurrentStatus reports whether a cycle is running and how many unread
// messages are still pending processing.
func (c *Controller) CurrentStatus(ctx context.Context) (Status, error) {
	st := Status{InProgress: c.inProgress.Load()}

	max := c.MaxMessages
	if max <= 0 {
		max = 10
	}
	messages, err := c.Mailbox.ListUnread(ctx, max)
	if err != nil {
		return st, fmt.Errorf("list unread: %w", err)
	}
	for _, msg := range messages {
		if !c.Dedup.Has(msg.ID) {
			st.PendingCount++
		}
	}
	return st, nil
}

func (c *Controller) setCancel(cancel context.CancelFunc) {
	c.cancelMu.Lock()
	c.cancelCycle = cancel
	c.cancelMu.Unlock()
}

// emitProcessed appends a processed-message event to the outbox for
// asynchronous delivery. Delivery failures never affect processing.
func (c *Controller) emitProcessed(ctx context.Context, cycleID string, result pipeline.ProcessingResult) {
	event := map[string]interface{}{
		"event_id":   uuid.NewString(),
		"ts":         time.Now().Unix(),
		"cycle_id":   cycleID,
		"message_id": result.MessageID,
		"category":   result.Category,
		"labels":     result.MatchedLabels,
		"draft":      result.DraftCreated,
	}
	payload, _ := json.Marshal(event)
	msgID := fmt.Sprintf("mail.processed|%s", result.MessageID)

	if err := c.Store.AppendOutbox(ctx, "mail.processed", "mail.processed", payload, msgID); err != nil {
		log.Printf("emit %s: %v", result.MessageID, err)
	}
}

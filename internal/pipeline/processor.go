// Package pipeline runs each message through the enrichment stages:
// summarize, classify, label, custom-label match and, for messages
// that warrant a reply, the draft sub-pipeline. Failures are isolated
// per stage; a message only fails when a draft cannot be published.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gordonmeng2021/Email-AI/internal/ai"
	"github.com/gordonmeng2021/Email-AI/internal/mail"
)

// collaboratorTimeout bounds every external collaborator call. A
// timeout counts as that stage's failure and follows the stage's
// fallback policy.
const collaboratorTimeout = 30 * time.Second

// ProcessingResult is the terminal record for one message.
type ProcessingResult struct {
	MessageID     string   `json:"message_id"`
	Succeeded     bool     `json:"succeeded"`
	Category      Category `json:"category,omitempty"`
	MatchedLabels []string `json:"matched_labels,omitempty"`
	DraftCreated  bool     `json:"draft_created"`
	ErrReason     string   `json:"error,omitempty"`
}

// LabelSource provides the custom label definitions to match against.
type LabelSource interface {
	ListCustomLabels(ctx context.Context) ([]ai.CustomLabel, error)
	TouchCustomLabel(ctx context.Context, id string) error
}

// Processor runs the full per-message pipeline.
type Processor struct {
	Summarizer ai.Summarizer
	Classifier ai.Classifier
	Matcher    ai.LabelMatcher
	Labels     LabelSource
	Mailbox    mail.Mailbox
	Drafts     *DraftPipeline

	AutoApplyLabels bool
	AutoDraft       bool
}

// Process runs every stage for one message and never returns an error:
// all failures are folded into the result. Summarize and classify
// failures are recoverable via deterministic fallbacks; only a failed
// draft publish (or a panic before classification completes) marks the
// message failed.
func (p *Processor) Process(ctx context.Context, msg *mail.Message) (result ProcessingResult) {
	result = ProcessingResult{MessageID: msg.ID}

	defer func() {
		if r := recover(); r != nil {
			log.Printf("process %s: panic: %v", msg.ID, r)
			result = ProcessingResult{MessageID: msg.ID, ErrReason: fmt.Sprintf("panic: %v", r)}
		}
	}()

	summary := p.summarize(ctx, msg)
	category := p.classify(ctx, msg, &summary)
	result.Category = category

	p.applyLabel(ctx, msg.ID, string(category))

	result.MatchedLabels = p.matchCustomLabels(ctx, msg, summary)

	if category == CategoryRespond && p.AutoDraft && p.Drafts != nil {
		if _, err := p.Drafts.BuildReply(ctx, msg); err != nil {
			log.Printf("process %s: draft pipeline failed: %v", msg.ID, err)
			result.ErrReason = err.Error()
			return result
		}
		result.DraftCreated = true
	}

	result.Succeeded = true
	return result
}

func (p *Processor) summarize(ctx context.Context, msg *mail.Message) string {
	summary, err := callWithTimeout(ctx, func(ctx context.Context) (string, error) {
		return p.Summarizer.Summarize(ctx, msg.Body)
	})
	if err != nil {
		log.Printf("process %s: summarize failed, using truncated body: %v", msg.ID, err)
		return truncateSummary(msg.Body)
	}
	return summary
}

// classify returns the message category, falling back to the keyword
// rule when the classifier is unavailable or unparsable. The summary
// is replaced when the classifier returned a better one.
func (p *Processor) classify(ctx context.Context, msg *mail.Message, summary *string) Category {
	cls, err := callWithTimeout(ctx, func(ctx context.Context) (ai.Classification, error) {
		return p.Classifier.Classify(ctx, *summary, ai.Metadata{Subject: msg.Subject, Sender: msg.Sender})
	})
	if err != nil {
		log.Printf("process %s: classify failed, using keyword rule: %v", msg.ID, err)
		return classifyByKeywords(msg.Subject, msg.Sender, msg.Body)
	}
	if cls.Summary != "" {
		*summary = cls.Summary
	}
	return ParseCategory(cls.Category)
}

// applyLabel is recoverable-skippable: a failure is logged and does not
// change the message's outcome.
func (p *Processor) applyLabel(ctx context.Context, messageID, labelName string) {
	if !p.AutoApplyLabels {
		return
	}
	_, err := callWithTimeout(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, p.Mailbox.ApplyLabel(ctx, messageID, labelName)
	})
	if err != nil {
		log.Printf("process %s: apply label %q failed: %v", messageID, labelName, err)
	}
}

// matchCustomLabels evaluates every enabled custom label against the
// message. The stage is best-effort end to end: any failure yields no
// matches rather than aborting the pipeline. Matching fans out across
// labels concurrently and fans in before the pipeline proceeds.
func (p *Processor) matchCustomLabels(ctx context.Context, msg *mail.Message, summary string) []string {
	if p.Labels == nil || p.Matcher == nil {
		return nil
	}

	labels, err := p.Labels.ListCustomLabels(ctx)
	if err != nil {
		log.Printf("process %s: list custom labels failed: %v", msg.ID, err)
		return nil
	}

	meta := ai.Metadata{Subject: msg.Subject, Sender: msg.Sender}

	var (
		mu      sync.Mutex
		matched []ai.CustomLabel
		wg      sync.WaitGroup
	)
	for _, label := range labels {
		if !label.Enabled {
			continue
		}
		wg.Add(1)
		go func(label ai.CustomLabel) {
			defer wg.Done()
			ok, err := callWithTimeout(ctx, func(ctx context.Context) (bool, error) {
				return p.Matcher.Match(ctx, summary, meta, label)
			})
			if err != nil {
				log.Printf("process %s: match label %q failed: %v", msg.ID, label.Name, err)
				return
			}
			if ok {
				mu.Lock()
				matched = append(matched, label)
				mu.Unlock()
			}
		}(label)
	}
	wg.Wait()

	names := make([]string, 0, len(matched))
	for _, label := range matched {
		names = append(names, label.Name)
		if err := p.Labels.TouchCustomLabel(ctx, label.ID); err != nil {
			log.Printf("process %s: touch label %q failed: %v", msg.ID, label.Name, err)
		}
		p.applyLabel(ctx, msg.ID, label.Name)
	}
	return names
}

// callWithTimeout runs one external collaborator call under the fixed
// per-call deadline, cancelling the in-flight request on expiry.
func callWithTimeout[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	callCtx, cancel := context.WithTimeout(ctx, collaboratorTimeout)
	defer cancel()
	return fn(callCtx)
}

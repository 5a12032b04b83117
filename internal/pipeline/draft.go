package pipeline

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/gordonmeng2021/Email-AI/internal/ai"
	"github.com/gordonmeng2021/Email-AI/internal/mail"
)

// baseLanguage is the language drafts are generated in before any
// translation step.
const baseLanguage = "en"

// Draft is the reply text as it moves through the polish stages.
type Draft struct {
	Text       string
	OriginLang string
	TargetLang string
	Receipt    *mail.DraftReceipt
}

// DraftPipeline composes generate, rewrite, translate-if-needed,
// proofread and publish into one ordered sequence. Each polish stage
// falls back to the previous stage's text on failure; only a publish
// failure surfaces, because it has an externally visible side effect.
type DraftPipeline struct {
	Generator   ai.DraftGenerator
	Rewriter    ai.Rewriter
	Translator  ai.Translator
	Proofreader ai.Proofreader
	Mailbox     mail.Mailbox

	Tone              string
	EnableTranslation bool
}

// BuildReply runs the sub-pipeline for one message and creates a reply
// draft on its thread. The draft is created, never sent.
func (p *DraftPipeline) BuildReply(ctx context.Context, msg *mail.Message) (*Draft, error) {
	tone := p.Tone
	if tone == "" {
		tone = "professional"
	}

	// Generate seeds the draft; with nothing to fall back to, its
	// failure fails the sub-pipeline.
	text, err := callWithTimeout(ctx, func(ctx context.Context) (string, error) {
		return p.Generator.Generate(ctx, msg.Subject, msg.Sender, msg.Body, tone)
	})
	if err != nil {
		return nil, fmt.Errorf("generate draft: %w", err)
	}

	draft := &Draft{Text: text, OriginLang: baseLanguage, TargetLang: baseLanguage}

	if polished, err := callWithTimeout(ctx, func(ctx context.Context) (string, error) {
		return p.Rewriter.Rewrite(ctx, draft.Text)
	}); err != nil {
		log.Printf("draft %s: rewrite failed, keeping previous text: %v", msg.ID, err)
	} else {
		draft.Text = polished
	}

	p.translateIfNeeded(ctx, msg, draft)

	if corrected, err := callWithTimeout(ctx, func(ctx context.Context) (string, error) {
		return p.Proofreader.Proofread(ctx, draft.Text)
	}); err != nil {
		log.Printf("draft %s: proofread failed, keeping previous text: %v", msg.ID, err)
	} else {
		draft.Text = corrected
	}

	receipt, err := p.Mailbox.CreateReplyDraft(ctx, msg.ThreadID, msg.Sender, replySubject(msg.Subject), draft.Text)
	if err != nil {
		return nil, fmt.Errorf("publish draft: %w", err)
	}
	draft.Receipt = receipt
	return draft, nil
}

// translateIfNeeded detects the original message's language and, when
// translation is enabled and the language differs from the generation
// base, translates the draft into it. Any failure leaves the draft
// unchanged.
func (p *DraftPipeline) translateIfNeeded(ctx context.Context, msg *mail.Message, draft *Draft) {
	if !p.EnableTranslation {
		return
	}

	lang, err := callWithTimeout(ctx, func(ctx context.Context) (string, error) {
		return p.Translator.DetectLanguage(ctx, msg.Body)
	})
	if err != nil {
		log.Printf("draft %s: language detection failed: %v", msg.ID, err)
		return
	}
	if lang == baseLanguage {
		return
	}

	translated, err := callWithTimeout(ctx, func(ctx context.Context) (string, error) {
		return p.Translator.Translate(ctx, draft.Text, baseLanguage, lang)
	})
	if err != nil {
		log.Printf("draft %s: translate to %s failed, keeping previous text: %v", msg.ID, lang, err)
		return
	}
	draft.Text = translated
	draft.TargetLang = lang
}

func replySubject(subject string) string {
	if strings.HasPrefix(strings.ToLower(subject), "re:") {
		return subject
	}
	return "Re: " + subject
}

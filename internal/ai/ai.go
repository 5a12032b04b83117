package ai

import (
	"context"
)

// Metadata carries the message fields the classification stages see in
// addition to the summary.
type Metadata struct {
	Subject string
	Sender  string
}

// Classification is the raw classifier output. Category is whatever
// string the model produced; callers are responsible for coercing it
// into a closed set.
type Classification struct {
	Category string `json:"category"`
	Summary  string `json:"summary"`
}

// CustomLabel is a user-defined label with a matching prompt.
type CustomLabel struct {
	ID      string
	Name    string
	Prompt  string
	Enabled bool
}

// Summarizer produces a short summary of an email body.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// Classifier assigns a category to a summarized message.
type Classifier interface {
	Classify(ctx context.Context, summary string, meta Metadata) (Classification, error)
}

// LabelMatcher decides whether one custom label applies to a message.
// Matching across multiple labels is fanned out by the caller.
type LabelMatcher interface {
	Match(ctx context.Context, summary string, meta Metadata, label CustomLabel) (bool, error)
}

// DraftGenerator writes a first-draft reply in the requested tone.
type DraftGenerator interface {
	Generate(ctx context.Context, subject, sender, body, tone string) (string, error)
}

// Rewriter polishes tone and fluency while preserving meaning.
type Rewriter interface {
	Rewrite(ctx context.Context, text string) (string, error)
}

// Translator detects languages and translates text between them.
type Translator interface {
	DetectLanguage(ctx context.Context, text string) (string, error)
	Translate(ctx context.Context, text, from, to string) (string, error)
}

// Proofreader fixes grammar, spelling and punctuation.
type Proofreader interface {
	Proofread(ctx context.Context, text string) (string, error)
}

// Capabilities bundles every AI stage the pipeline consumes. The
// concrete implementation is selected at startup by probing for a
// local model server and falling back to the remote API.
type Capabilities interface {
	Summarizer
	Classifier
	LabelMatcher
	DraftGenerator
	Rewriter
	Translator
	Proofreader
}

package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
)

// backend is one way of getting a completion out of a model.
type backend interface {
	complete(ctx context.Context, system, prompt string) (string, error)
	name() string
}

// Client implements every AI capability on top of a single text
// completion backend.
type Client struct {
	backend backend
}

// Options configures backend selection.
type Options struct {
	RemoteBaseURL string
	APIKey        string
	Model         string
	MaxTokens     int
	LocalBaseURL  string
	LocalModel    string
}

// NewClient probes for a local model server and uses it when it
// responds; otherwise it falls back to the remote API.
func NewClient(ctx context.Context, opts Options) *Client {
	if opts.LocalBaseURL != "" {
		local := newLocalBackend(opts.LocalBaseURL, opts.LocalModel)
		if local.available(ctx) {
			log.Printf("ai: using local backend at %s", opts.LocalBaseURL)
			return &Client{backend: local}
		}
	}
	log.Printf("ai: using remote backend at %s", opts.RemoteBaseURL)
	return &Client{backend: newRemoteBackend(opts.RemoteBaseURL, opts.APIKey, opts.Model, opts.MaxTokens)}
}

// Backend reports which backend was selected ("local" or "remote").
func (c *Client) Backend() string {
	return c.backend.name()
}

func (c *Client) Summarize(ctx context.Context, text string) (string, error) {
	out, err := c.backend.complete(ctx,
		"You summarize emails. Reply with a 1-2 sentence summary only, no preamble.",
		text)
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	return strings.TrimSpace(out), nil
}

func (c *Client) Classify(ctx context.Context, summary string, meta Metadata) (Classification, error) {
	prompt := fmt.Sprintf("Subject: %s\nFrom: %s\nSummary: %s", meta.Subject, meta.Sender, summary)
	out, err := c.backend.complete(ctx,
		`Classify the email as exactly one of: Notification, Respond, Advertisement. `+
			`Reply with JSON only: {"category": "...", "summary": "..."}`,
		prompt)
	if err != nil {
		return Classification{}, fmt.Errorf("classify: %w", err)
	}

	var cls Classification
	if err := json.Unmarshal([]byte(stripFences(out)), &cls); err != nil {
		return Classification{}, fmt.Errorf("classify: unparsable response: %w", err)
	}
	if cls.Summary == "" {
		cls.Summary = summary
	}
	return cls, nil
}

func (c *Client) Match(ctx context.Context, summary string, meta Metadata, label CustomLabel) (bool, error) {
	prompt := fmt.Sprintf("Rule: %s\n\nSubject: %s\nFrom: %s\nSummary: %s",
		label.Prompt, meta.Subject, meta.Sender, summary)
	out, err := c.backend.complete(ctx,
		"Decide whether the email matches the rule. Reply with exactly YES or NO.",
		prompt)
	if err != nil {
		return false, fmt.Errorf("match %s: %w", label.Name, err)
	}
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(out)), "YES"), nil
}

func (c *Client) Generate(ctx context.Context, subject, sender, body, tone string) (string, error) {
	prompt := fmt.Sprintf("Subject: %s\nFrom: %s\n\n%s", subject, sender, body)
	out, err := c.backend.complete(ctx,
		fmt.Sprintf("Write a %s reply to this email. Reply with the email body only.", tone),
		prompt)
	if err != nil {
		return "", fmt.Errorf("generate draft: %w", err)
	}
	return strings.TrimSpace(out), nil
}

func (c *Client) Rewrite(ctx context.Context, text string) (string, error) {
	out, err := c.backend.complete(ctx,
		"Polish the tone and fluency of this email draft without changing its meaning. Reply with the revised text only.",
		text)
	if err != nil {
		return "", fmt.Errorf("rewrite: %w", err)
	}
	return strings.TrimSpace(out), nil
}

func (c *Client) DetectLanguage(ctx context.Context, text string) (string, error) {
	out, err := c.backend.complete(ctx,
		"Identify the language of the text. Reply with a two-letter ISO 639-1 code only, e.g. en.",
		text)
	if err != nil {
		return "", fmt.Errorf("detect language: %w", err)
	}
	code := strings.ToLower(strings.TrimSpace(out))
	if len(code) != 2 {
		return "", fmt.Errorf("detect language: unexpected code %q", code)
	}
	return code, nil
}

func (c *Client) Translate(ctx context.Context, text, from, to string) (string, error) {
	out, err := c.backend.complete(ctx,
		fmt.Sprintf("Translate the text from %s to %s. Reply with the translation only.", from, to),
		text)
	if err != nil {
		return "", fmt.Errorf("translate: %w", err)
	}
	return strings.TrimSpace(out), nil
}

func (c *Client) Proofread(ctx context.Context, text string) (string, error) {
	out, err := c.backend.complete(ctx,
		"Correct grammar, spelling and punctuation. Reply with the corrected text only.",
		text)
	if err != nil {
		return "", fmt.Errorf("proofread: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// stripFences removes a markdown code fence around a model response so
// the JSON inside can be parsed.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

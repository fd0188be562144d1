// Package classifier calls the Anthropic API to classify one issue at a
// time: suggested labels, clarification needs, related-work hints, and an
// overall confidence. Malformed model output degrades to a neutral result
// instead of surfacing a parse failure.
package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/sync/semaphore"

	"github.com/stewardbot/steward/internal/types"
)

const (
	// DefaultModel balances quality and cost for triage classification.
	DefaultModel = "claude-sonnet-4-5-20250929"

	maxResponseTokens = 2048
	requestTimeout    = 60 * time.Second

	// maxConcurrentCalls bounds in-flight API requests. The agent processes
	// issues sequentially today; the guard keeps that an implementation
	// detail of the caller rather than a requirement of this client.
	maxConcurrentCalls = 2
)

// completer is the slice of the Anthropic client the classifier uses.
type completer interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// Classifier produces one ClassificationResult per analyzed issue.
type Classifier struct {
	messages completer
	model    string
	labels   []string
	logger   *slog.Logger
	sem      *semaphore.Weighted
}

// Config holds classifier construction parameters.
type Config struct {
	// APIKey authenticates against the Anthropic API.
	APIKey string
	// Model overrides DefaultModel when non-empty.
	Model string
	// Labels is the taxonomy the model may suggest from.
	Labels []string
	Logger *slog.Logger
}

// New creates a classifier.
func New(cfg Config) (*Classifier, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client := anthropic.NewClient(option.WithAPIKey(cfg.APIKey))
	return &Classifier{
		messages: &client.Messages,
		model:    model,
		labels:   cfg.Labels,
		logger:   logger,
		sem:      semaphore.NewWeighted(maxConcurrentCalls),
	}, nil
}

// Classify analyzes the issue with the given similar-issue context and
// returns the parsed classification. An API failure is returned as an error.
// A response that cannot be parsed is not: it becomes a neutral result so
// the issue is still marked analyzed.
func (c *Classifier) Classify(ctx context.Context, snap types.IssueSnapshot, similar []types.SimilarityMatch) (types.ClassificationResult, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return types.NeutralResult(snap.Number), err
	}
	defer c.sem.Release(1)

	callCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	prompt := buildClassificationPrompt(snap, similar, c.labels)

	resp, err := c.messages.New(callCtx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   maxResponseTokens,
		Temperature: anthropic.Float(0.3),
		System: []anthropic.TextBlockParam{
			{Text: classificationSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return types.NeutralResult(snap.Number), fmt.Errorf("classify issue #%d: %w", snap.Number, err)
	}

	var responseText string
	for _, block := range resp.Content {
		if block.Type == "text" {
			responseText += block.Text
		}
	}

	result, ok := parseClassification(responseText, snap.Number)
	if !ok {
		c.logger.Warn("classifier response was not parseable, using neutral result",
			"issue", snap.Number, "response_bytes", len(responseText))
		return types.NeutralResult(snap.Number), nil
	}

	// The model occasionally invents labels; only the configured taxonomy
	// reaches the action engine.
	if len(c.labels) > 0 {
		result.SuggestedLabels = filterToTaxonomy(result.SuggestedLabels, c.labels)
	}
	return result, nil
}

func filterToTaxonomy(suggested, allowed []string) []string {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, l := range allowed {
		allowedSet[l] = struct{}{}
	}
	var out []string
	for _, l := range suggested {
		if _, ok := allowedSet[l]; ok {
			out = append(out, l)
		}
	}
	return out
}

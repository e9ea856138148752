package analyzer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sirupsen/logrus"

	"github.com/leadscout/leadscout/internal/models"
)

const classifierSystemPrompt = `You classify social media posts for a lead discovery tool.

A LEAD is someone who wants to hire, buy, partner or collaborate: they are
looking for a person, a service or a product. Someone advertising their own
services, asking for work or promoting a product is NOT a lead.

Opportunity types: hiring, consulting, security, sales, marketing,
partnership, investment, other.

Reply with a single JSON object and nothing else:
{"is_lead": bool, "opportunity_type": string, "opportunity_subtype": string,
 "confidence": number between 0 and 1, "reasoning": string}`

const maxClassifyChars = 4000

// ClaudeClassifier asks an Anthropic model whether a post is a lead
type ClaudeClassifier struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewClaudeClassifier creates a classifier backed by the Messages API.
// Extra request options are appended after the API key.
func NewClaudeClassifier(apiKey, model string, opts ...option.RequestOption) *ClaudeClassifier {
	if model == "" {
		model = "claude-3-5-haiku-latest"
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &ClaudeClassifier{
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: 512,
	}
}

// Ensure ClaudeClassifier implements ClassifierInterface
var _ ClassifierInterface = (*ClaudeClassifier)(nil)

func (c *ClaudeClassifier) Name() string { return "claude" }

// Classify sends the text to the model. A reply that cannot be parsed is
// returned as an "unknown" classification rather than an error.
func (c *ClaudeClassifier) Classify(ctx context.Context, text string, keywords []string) (*Classification, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: classifierSystemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildPrompt(text, keywords))),
		},
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, classifyAPIError(err)
	}

	var reply strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			reply.WriteString(block.Text)
		}
	}

	result, err := parseClassification(reply.String())
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"model": c.model,
			"error": err,
		}).Warn("Could not parse classifier reply")
	}
	return result, nil
}

// classifyAPIError marks transport failures, 429 and 5xx as retryable. Any
// other API error will fail the same way again.
func classifyAPIError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) &&
		apiErr.StatusCode != http.StatusTooManyRequests &&
		apiErr.StatusCode < http.StatusInternalServerError {
		return fmt.Errorf("%w: claude returned %d: %v", models.ErrAnalyzerRejected, apiErr.StatusCode, err)
	}
	return fmt.Errorf("%w: claude request failed: %v", models.ErrAnalyzerUnavailable, err)
}

func buildPrompt(text string, keywords []string) string {
	if len(text) > maxClassifyChars {
		text = text[:maxClassifyChars]
	}

	var b strings.Builder
	if len(keywords) > 0 {
		fmt.Fprintf(&b, "Search keywords: %s\n\n", strings.Join(keywords, ", "))
	}
	if looksLikeProvider(text) {
		b.WriteString("Note: this post contains phrases typical of someone offering services. Check carefully whether the author is buying or selling.\n\n")
	}
	b.WriteString("Post:\n")
	b.WriteString(text)
	return b.String()
}

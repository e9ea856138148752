package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Opportunity types a classifier may return
const (
	TypeHiring      = "hiring"
	TypeConsulting  = "consulting"
	TypeSecurity    = "security"
	TypeSales       = "sales"
	TypeMarketing   = "marketing"
	TypePartnership = "partnership"
	TypeInvestment  = "investment"
	TypeOther       = "other"
	TypeUnknown     = "unknown"
)

// Classification is a classifier's verdict on one piece of text
type Classification struct {
	IsLead     bool    `json:"is_lead"`
	Type       string  `json:"opportunity_type"`
	Subtype    string  `json:"opportunity_subtype"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// IsValidLead reports whether the verdict is strong enough to keep
func (c *Classification) IsValidLead(minConfidence float64) bool {
	if c == nil || !c.IsLead {
		return false
	}
	if c.Type == "" || c.Type == TypeUnknown || c.Type == "error" {
		return false
	}
	return c.Confidence > minConfidence
}

// ClassifierInterface decides whether text describes a business opportunity.
// An error means the classifier could not reach a verdict and the item
// should be retried later.
type ClassifierInterface interface {
	Classify(ctx context.Context, text string, keywords []string) (*Classification, error)
	Name() string
}

// phrases that suggest the author is selling rather than buying
var providerIndicators = []string{
	"i'm a", "i am a", "i provide", "i offer", "my services",
	"portfolio", "rates:", "hire me", "available for", "looking for clients",
	"looking for work", "years of experience", "check out my", "dm me for",
	"we offer", "our services", "our agency",
}

// looksLikeProvider reports whether the text reads like a service advert
func looksLikeProvider(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range providerIndicators {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

var typeSignals = []struct {
	kind  string
	words []string
}{
	{TypeSecurity, []string{"security", "pentest", "penetration test", "vulnerability", "soc 2", "soc2", "audit", "compliance"}},
	{TypeHiring, []string{"hiring", "hire", "recruiting", "developer", "engineer", "freelancer", "contractor", "full-time", "part-time"}},
	{TypeConsulting, []string{"consultant", "consulting", "advisor", "expert", "agency", "help with"}},
	{TypeMarketing, []string{"marketing", "seo", "ads", "growth", "social media", "content writer"}},
	{TypeSales, []string{"software", "tool", "platform", "vendor", "solution", "service", "buy", "purchase"}},
	{TypePartnership, []string{"partner", "partnership", "collaborate", "co-founder", "cofounder"}},
	{TypeInvestment, []string{"investor", "investment", "funding", "angel", "seed round"}},
}

// RuleClassifier is a local heuristic classifier used when no LLM is configured
type RuleClassifier struct {
	detector *PatternDetector
}

// NewRuleClassifier creates a heuristic classifier
func NewRuleClassifier() *RuleClassifier {
	d, _ := NewPatternDetector(nil)
	return &RuleClassifier{detector: d}
}

// Ensure RuleClassifier implements ClassifierInterface
var _ ClassifierInterface = (*RuleClassifier)(nil)

func (r *RuleClassifier) Name() string { return "rules" }

// Classify scores text from intent phrases, urgency and budget cues
func (r *RuleClassifier) Classify(ctx context.Context, text string, keywords []string) (*Classification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pattern := r.detector.Detect(text)
	if pattern == "" {
		return &Classification{Type: TypeOther, Reasoning: "no buying intent found"}, nil
	}
	if looksLikeProvider(text) {
		return &Classification{Type: TypeOther, Confidence: 0.2, Reasoning: "author appears to offer services"}, nil
	}

	confidence := 0.6
	if HasUrgency(text) {
		confidence += 0.1
	}
	if HasBudgetSignal(text) {
		confidence += 0.15
	}
	if len(NewKeywordMatcher(keywords).Match(text)) > 0 {
		confidence += 0.1
	}
	if confidence > 0.95 {
		confidence = 0.95
	}

	return &Classification{
		IsLead:     true,
		Type:       guessType(text),
		Confidence: round3(confidence),
		Reasoning:  fmt.Sprintf("matched intent phrase %q", pattern),
	}, nil
}

func guessType(text string) string {
	lower := strings.ToLower(text)
	for _, sig := range typeSignals {
		for _, w := range sig.words {
			if containsWord(lower, w) {
				return sig.kind
			}
		}
	}
	return TypeOther
}

// parseClassification decodes a model reply, tolerating markdown code fences
// around the JSON object
func parseClassification(reply string) (*Classification, error) {
	body := strings.TrimSpace(reply)
	if strings.HasPrefix(body, "```") {
		body = strings.TrimPrefix(body, "```json")
		body = strings.TrimPrefix(body, "```")
		body = strings.TrimSuffix(strings.TrimSpace(body), "```")
	}
	if start, end := strings.Index(body, "{"), strings.LastIndex(body, "}"); start >= 0 && end > start {
		body = body[start : end+1]
	}

	var c Classification
	if err := json.Unmarshal([]byte(body), &c); err != nil {
		return &Classification{Type: TypeUnknown, Reasoning: "unparseable classifier reply"}, err
	}
	c.Type = strings.ToLower(strings.TrimSpace(c.Type))
	if c.Type == "" {
		c.Type = TypeUnknown
	}
	if c.Confidence < 0 {
		c.Confidence = 0
	}
	if c.Confidence > 1 {
		c.Confidence = 1
	}
	return &c, nil
}

// Package analyzer decides whether a fetched item is a business lead and, if
// so, scores it.
//
// An item must match at least one of the search's keywords or an intent
// pattern before it is sent to the classifier. Items that fail either check
// are rejected with a nil candidate and no error: the verdict is final and the
// item need not be looked at again. Errors wrap models.ErrAnalyzerUnavailable
// when the classifier could not be reached and the call may be retried, and
// models.ErrAnalyzerRejected or models.ErrValidation when retrying cannot
// help.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/leadscout/leadscout/internal/models"
)

// Analyzer turns a raw item into a lead candidate, or nil when the item is
// not a lead
type Analyzer interface {
	Analyze(ctx context.Context, spec *models.KeywordSearchSpec, item models.RawItem) (*models.LeadCandidate, error)
}

// LeadAnalyzer runs matching, classification, contact extraction and scoring
type LeadAnalyzer struct {
	classifier    ClassifierInterface
	minConfidence float64

	mu    sync.Mutex
	rules map[string]*searchRules // by search ID
}

// searchRules are the compiled keywords and patterns of one search
type searchRules struct {
	fingerprint string
	detector    *PatternDetector

	mu      sync.Mutex // KeywordMatcher is not safe for concurrent use
	matcher *KeywordMatcher
}

func (r *searchRules) match(text string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.matcher.Match(text)
}

// NewLeadAnalyzer creates an analyzer using the given classifier
func NewLeadAnalyzer(classifier ClassifierInterface, minConfidence float64) *LeadAnalyzer {
	return &LeadAnalyzer{
		classifier:    classifier,
		minConfidence: minConfidence,
		rules:         make(map[string]*searchRules),
	}
}

// Ensure LeadAnalyzer implements Analyzer
var _ Analyzer = (*LeadAnalyzer)(nil)

// Analyze evaluates one item against a search
func (a *LeadAnalyzer) Analyze(ctx context.Context, spec *models.KeywordSearchSpec, item models.RawItem) (*models.LeadCandidate, error) {
	content := item.Content()
	if content == "" {
		return nil, nil
	}

	rules, err := a.rulesFor(spec)
	if err != nil {
		return nil, err
	}
	matched := rules.match(content)
	pattern := rules.detector.Detect(content)

	if len(matched) == 0 && pattern == "" {
		return nil, nil
	}

	verdict, err := a.classifier.Classify(ctx, content, spec.Keywords)
	if err != nil {
		// Only the classifier knows which of its failures are transient
		if errors.Is(err, models.ErrAnalyzerUnavailable) || errors.Is(err, models.ErrAnalyzerRejected) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s classifier: %v", models.ErrAnalyzerRejected, a.classifier.Name(), err)
	}
	if !verdict.IsValidLead(a.minConfidence) {
		logrus.WithFields(logrus.Fields{
			"source_id":  item.SourceID,
			"is_lead":    verdict.IsLead,
			"type":       verdict.Type,
			"confidence": verdict.Confidence,
		}).Debug("Item rejected by classifier")
		return nil, nil
	}

	contact := ExtractContacts(content)
	contact.AuthorProfileURL = profileURL(item.Platform, item.Author)

	urgent := HasUrgency(content)
	scores := Score(ScoreInput{
		MatchedKeywords: len(matched),
		TotalKeywords:   rules.matcher.Len(),
		Confidence:      verdict.Confidence,
		Urgent:          urgent,
		Budget:          HasBudgetSignal(content),
		Contact:         contact.HasAny(),
	})

	if matched == nil {
		matched = []string{}
	}

	return &models.LeadCandidate{
		Platform:           item.Platform,
		Kind:               item.Kind,
		ParentID:           item.ParentID,
		Title:              item.Title,
		Content:            item.Text,
		Author:             item.Author,
		URL:                item.URL,
		MatchedKeywords:    matched,
		DetectedPattern:    pattern,
		OpportunityType:    verdict.Type,
		OpportunitySubtype: verdict.Subtype,
		Confidence:         verdict.Confidence,
		RelevanceScore:     scores.Relevance,
		UrgencyScore:       scores.Urgency,
		TotalScore:         scores.Total,
		Tier:               Tier(scores.Total),
		Summary:            verdict.Reasoning,
		Contact:            contact,
		PostedAt:           item.CreatedAt,
	}, nil
}

// rulesFor returns the compiled rules of a search, rebuilding them when its
// keywords or patterns changed. A pattern that does not compile is a
// validation error: dropping it would reject items it was meant to catch.
func (a *LeadAnalyzer) rulesFor(spec *models.KeywordSearchSpec) (*searchRules, error) {
	fingerprint := strings.Join(spec.Keywords, "\x00") + "\x01" + strings.Join(spec.Patterns, "\x00")

	a.mu.Lock()
	defer a.mu.Unlock()

	if r, ok := a.rules[spec.ID]; ok && r.fingerprint == fingerprint {
		return r, nil
	}

	detector, err := NewPatternDetector(spec.Patterns)
	if err != nil {
		return nil, fmt.Errorf("%w: search %s: %v", models.ErrValidation, spec.ID, err)
	}

	r := &searchRules{
		fingerprint: fingerprint,
		detector:    detector,
		matcher:     NewKeywordMatcher(spec.Keywords),
	}
	a.rules[spec.ID] = r
	return r, nil
}

func profileURL(platform, author string) string {
	if author == "" || author == "[deleted]" {
		return ""
	}
	switch platform {
	case models.PlatformReddit:
		return "https://www.reddit.com/user/" + url.PathEscape(author)
	case models.PlatformHackerNews:
		return "https://news.ycombinator.com/user?id=" + url.QueryEscape(author)
	}
	return ""
}

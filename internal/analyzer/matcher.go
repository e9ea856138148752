package analyzer

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/cloudflare/ahocorasick"
)

// KeywordMatcher finds which search keywords occur in a text as whole words,
// ignoring case. The Aho-Corasick pass narrows candidates in one scan of the
// text; each hit is then checked for word boundaries.
type KeywordMatcher struct {
	keywords   []string // original spelling, reported back to callers
	normalized []string
	matcher    *ahocorasick.Matcher
}

// NewKeywordMatcher builds a matcher for the given keywords. A Matcher is not
// safe for concurrent use.
func NewKeywordMatcher(keywords []string) *KeywordMatcher {
	km := &KeywordMatcher{}
	for _, kw := range keywords {
		n := strings.ToLower(strings.TrimSpace(kw))
		if n == "" {
			continue
		}
		km.keywords = append(km.keywords, strings.TrimSpace(kw))
		km.normalized = append(km.normalized, n)
	}
	if len(km.normalized) > 0 {
		km.matcher = ahocorasick.NewStringMatcher(km.normalized)
	}
	return km
}

// Len is the number of usable keywords
func (km *KeywordMatcher) Len() int {
	return len(km.keywords)
}

// Match returns the keywords found in text, in keyword order
func (km *KeywordMatcher) Match(text string) []string {
	if km.matcher == nil || text == "" {
		return nil
	}

	lower := strings.ToLower(text)
	hits := km.matcher.Match([]byte(lower))
	if len(hits) == 0 {
		return nil
	}

	found := make(map[int]bool, len(hits))
	for _, idx := range hits {
		if idx < len(km.normalized) && containsWord(lower, km.normalized[idx]) {
			found[idx] = true
		}
	}

	var matched []string
	for i, kw := range km.keywords {
		if found[i] {
			matched = append(matched, kw)
		}
	}
	return matched
}

// containsWord reports whether word occurs in text with no letter or digit
// directly before or after it
func containsWord(text, word string) bool {
	for offset := 0; offset <= len(text)-len(word); {
		i := strings.Index(text[offset:], word)
		if i < 0 {
			return false
		}
		start := offset + i
		end := start + len(word)

		before, _ := utf8.DecodeLastRuneInString(text[:start])
		after, _ := utf8.DecodeRuneInString(text[end:])
		if (start == 0 || !isWordRune(before)) && (end == len(text) || !isWordRune(after)) {
			return true
		}
		offset = start + 1
	}
	return false
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

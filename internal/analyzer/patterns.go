package analyzer

import (
	"fmt"
	"regexp"
)

// DefaultIntentPatterns signal that the author is looking for something
var DefaultIntentPatterns = []string{
	`\blooking\s+for\b`,
	`\bneed\s+(?:a|an|some)?\b`,
	`\bsearching\s+for\b`,
	`\bseeking\s+(?:a|an)?\b`,
	`\bwant\s+(?:a|an|to\s+hire)?\b`,
	`\bhiring\b`,
	`\brecruiting\b`,
	`\b(?:anyone|does\s+anyone)\s+know\s+(?:a|an|of)?\b`,
	`\brecommendations?\s+for\b`,
	`\bcan\s+(?:anyone|someone)\s+recommend\b`,
	`\bwhere\s+(?:can\s+i|to)\s+find\b`,
	`\bwho\s+(?:can|should)\s+i\s+(?:hire|contact)\b`,
	`\bneed\s+(?:urgently|asap|immediately)\b`,
	`\burgent(?:ly)?\s+need\b`,
	`\basap\b`,
	`\btrying\s+to\s+find\b`,
	`\bin\s+(?:need|search)\s+of\b`,
	`\brequire\s+(?:a|an)?\b`,
	`\bmust\s+(?:find|hire)\b`,
}

var defaultPatterns = compileAll(DefaultIntentPatterns)

var urgencyPatterns = compileAll([]string{
	`\burgent(?:ly)?\b`,
	`\basap\b`,
	`\bimmediately\b`,
	`\bquickly\b`,
	`\bsoon\b`,
	`\bdeadline\b`,
	`\btime[-\s]sensitive\b`,
})

// PatternDetector finds intent phrases in text
type PatternDetector struct {
	patterns []*regexp.Regexp
}

// NewPatternDetector compiles the default intent patterns plus any extra
// patterns a search defines. Extra patterns are plain phrases or regular
// expressions and match case-insensitively.
func NewPatternDetector(extra []string) (*PatternDetector, error) {
	d := &PatternDetector{patterns: append([]*regexp.Regexp(nil), defaultPatterns...)}
	for _, p := range extra {
		re, err := CompilePattern(p)
		if err != nil {
			return nil, err
		}
		d.patterns = append(d.patterns, re)
	}
	return d, nil
}

// CompilePattern compiles a search's custom pattern the way the detector
// matches it
func CompilePattern(p string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(`(?i)` + p)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
	}
	return re, nil
}

// Detect returns the first matched phrase, or "" when nothing matches
func (d *PatternDetector) Detect(text string) string {
	for _, re := range d.patterns {
		if m := re.FindString(text); m != "" {
			return m
		}
	}
	return ""
}

// HasUrgency reports whether the text signals time pressure
func HasUrgency(text string) bool {
	for _, re := range urgencyPatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func compileAll(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(`(?i)`+p))
	}
	return out
}

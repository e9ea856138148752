// Package searches manages keyword search definitions.
package searches

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/leadscout/leadscout/internal/analyzer"
	"github.com/leadscout/leadscout/internal/models"
)

// Reddit defaults applied when a search leaves them unset
const (
	DefaultRedditLimit        = 100
	DefaultRedditSort         = "new"
	DefaultRedditTimeFilter   = "day"
	DefaultRedditCommentLimit = 50
)

var validate = validator.New()

// ApplyDefaults fills optional fields and normalizes keyword lists
func ApplyDefaults(spec *models.KeywordSearchSpec) {
	spec.Name = strings.TrimSpace(spec.Name)
	spec.Keywords = cleanList(spec.Keywords)
	spec.Patterns = cleanList(spec.Patterns)
	spec.Platforms = cleanList(spec.Platforms)
	spec.RedditConfig.Subreddits = cleanSubreddits(spec.RedditConfig.Subreddits)

	if len(spec.Platforms) == 0 {
		spec.Platforms = []string{models.PlatformReddit}
	}

	rc := &spec.RedditConfig
	if rc.Limit == 0 {
		rc.Limit = DefaultRedditLimit
	}
	if rc.Sort == "" {
		rc.Sort = DefaultRedditSort
	}
	if rc.TimeFilter == "" {
		rc.TimeFilter = DefaultRedditTimeFilter
	}
	if rc.IncludeComments && rc.CommentLimit == 0 {
		rc.CommentLimit = DefaultRedditCommentLimit
	}
}

// Validate checks a search definition. Failures wrap models.ErrValidation.
func Validate(spec *models.KeywordSearchSpec) error {
	if err := validate.Struct(spec); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: invalid fields: %s", models.ErrValidation, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", models.ErrValidation, err)
	}

	switch spec.Mode {
	case models.ModeScheduled:
		if spec.Interval == "" {
			return fmt.Errorf("%w: interval is required for scheduled searches", models.ErrValidation)
		}
	case models.ModeOneTime:
		if spec.Interval != "" {
			return fmt.Errorf("%w: interval must be empty for one-time searches", models.ErrValidation)
		}
	}

	for _, p := range spec.Patterns {
		if _, err := analyzer.CompilePattern(p); err != nil {
			return fmt.Errorf("%w: %v", models.ErrValidation, err)
		}
	}

	return nil
}

func cleanList(values []string) []string {
	if len(values) == 0 {
		return values
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}

func cleanSubreddits(values []string) []string {
	out := cleanList(values)
	for i, v := range out {
		v = strings.TrimPrefix(v, "/")
		v = strings.TrimPrefix(v, "r/")
		out[i] = v
	}
	return out
}

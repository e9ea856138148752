package sources

import (
	"html"
	"regexp"
	"strings"
)

var (
	paragraphTags = regexp.MustCompile(`(?i)<\s*(p|br|/p)\s*/?>`)
	codeTags      = regexp.MustCompile(`(?i)<\s*/?\s*code\s*>`)
	anyTag        = regexp.MustCompile(`<[^>]*>`)
	blankLines    = regexp.MustCompile(`\n{3,}`)
)

// stripHTML turns the HTML fragments some APIs return into plain text
func stripHTML(content string) string {
	content = paragraphTags.ReplaceAllString(content, "\n")
	content = codeTags.ReplaceAllString(content, "`")
	content = anyTag.ReplaceAllString(content, "")
	content = html.UnescapeString(content)
	content = blankLines.ReplaceAllString(content, "\n\n")
	return strings.TrimSpace(content)
}

package analyzer

import (
	"regexp"
	"strings"

	"github.com/leadscout/leadscout/internal/models"
)

var (
	emailPattern    = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	urlPattern      = regexp.MustCompile(`https?://[^\s<>()"']+`)
	twitterPattern  = regexp.MustCompile(`(?i)(?:twitter\.com|x\.com)/@?([A-Za-z0-9_]+)`)
	linkedinPattern = regexp.MustCompile(`(?i)linkedin\.com/(?:in|company)/([A-Za-z0-9\-]+)`)
	githubPattern   = regexp.MustCompile(`(?i)github\.com/([A-Za-z0-9\-]+)`)
	companyPattern  = regexp.MustCompile(`\b([A-Z][A-Za-z0-9&]*(?:\s+[A-Z][A-Za-z0-9&]*)*\s+(?:Inc|LLC|Ltd|Corp|Corporation|GmbH))\b\.?`)
	amountPattern   = regexp.MustCompile(`\$\s?[\d,]+(?:\.\d{2})?(?:\s?[kK])?`)
)

var budgetWords = []string{
	"budget", "paid", "contract", "rfp", "proposal",
	"compensation", "salary", "rate", "hourly", "project",
}

// domains that say nothing about the author's company
var commonDomains = map[string]bool{
	"reddit.com": true, "redd.it": true, "imgur.com": true, "youtube.com": true, "youtu.be": true,
	"twitter.com": true, "x.com": true, "linkedin.com": true, "github.com": true,
	"google.com": true, "ycombinator.com": true, "gmail.com": true, "yahoo.com": true,
	"outlook.com": true, "hotmail.com": true,
}

// ExtractContacts pulls emails, company hints and social profiles from text
func ExtractContacts(text string) models.ContactInfo {
	var info models.ContactInfo

	if email := emailPattern.FindString(text); email != "" {
		info.Email = strings.ToLower(email)
		if at := strings.LastIndex(info.Email, "@"); at >= 0 {
			if d := info.Email[at+1:]; !commonDomains[d] {
				info.Domain = d
			}
		}
	}

	if info.Domain == "" {
		for _, u := range urlPattern.FindAllString(text, -1) {
			if d := hostOf(u); d != "" && !commonDomains[d] {
				info.Domain = d
				break
			}
		}
	}

	if m := companyPattern.FindStringSubmatch(text); m != nil {
		info.Company = strings.TrimSpace(m[1])
	}

	seen := map[string]bool{}
	addProfile := func(url string) {
		if !seen[url] {
			seen[url] = true
			info.SocialProfiles = append(info.SocialProfiles, url)
		}
	}
	for _, m := range twitterPattern.FindAllStringSubmatch(text, -1) {
		addProfile("https://x.com/" + m[1])
	}
	for _, m := range linkedinPattern.FindAllStringSubmatch(text, -1) {
		addProfile("https://www.linkedin.com/in/" + m[1])
	}
	for _, m := range githubPattern.FindAllStringSubmatch(text, -1) {
		addProfile("https://github.com/" + m[1])
	}

	return info
}

// HasBudgetSignal reports whether the text mentions money or paid work
func HasBudgetSignal(text string) bool {
	if amountPattern.MatchString(text) {
		return true
	}
	lower := strings.ToLower(text)
	for _, w := range budgetWords {
		if containsWord(lower, w) {
			return true
		}
	}
	return false
}

func hostOf(rawURL string) string {
	host := rawURL
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	if i := strings.IndexAny(host, "/?#:"); i >= 0 {
		host = host[:i]
	}
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	// Collapse subdomains of the common hosts (old.reddit.com, m.youtube.com)
	parts := strings.Split(host, ".")
	if len(parts) > 2 {
		if base := strings.Join(parts[len(parts)-2:], "."); commonDomains[base] {
			return base
		}
	}
	return host
}

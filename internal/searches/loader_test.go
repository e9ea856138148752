package searches

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/leadscout/leadscout/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "searches.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeSeed(t, `
searches:
  - name: crm buyers
    keywords: [crm, "sales pipeline"]
    patterns: ["switching from"]
    platforms: [reddit, hackernews]
    reddit_config:
      subreddits: [smallbusiness, sales]
      include_comments: true
      comment_limit: 20
    mode: scheduled
    interval: 6h
    enabled: true
    webhook_url: https://hooks.example.com/leads
  - name: launch scan
    keywords: [bookkeeping]
    mode: one_time
    enabled: true
`)

	specs, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, specs, 2)

	crm := specs[0]
	assert.Equal(t, "crm buyers", crm.Name)
	assert.Equal(t, []string{"crm", "sales pipeline"}, crm.Keywords)
	assert.Equal(t, models.ModeScheduled, crm.Mode)
	assert.Equal(t, "6h", crm.Interval)
	assert.Equal(t, []string{"smallbusiness", "sales"}, crm.RedditConfig.Subreddits)
	assert.Equal(t, 20, crm.RedditConfig.CommentLimit)
	assert.Equal(t, "https://hooks.example.com/leads", crm.WebhookURL)

	launch := specs[1]
	assert.Equal(t, models.ModeOneTime, launch.Mode)
	assert.Equal(t, []string{models.PlatformReddit}, launch.Platforms)
	assert.Empty(t, launch.RedditConfig.Subreddits, "empty subreddit list searches all of reddit")
}

func TestLoadFile_InvalidSearch(t *testing.T) {
	path := writeSeed(t, `
searches:
  - name: broken
    keywords: [crm]
    mode: scheduled
`)

	_, err := LoadFile(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.Contains(t, err.Error(), "broken")
}

func TestLoadFile_InvalidPattern(t *testing.T) {
	path := writeSeed(t, `
searches:
  - name: bad regex
    keywords: [crm]
    patterns: ["looking for (a|an crm"]
    mode: one_time
`)

	_, err := LoadFile(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.Contains(t, err.Error(), "invalid pattern")
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/leadscout/leadscout/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	hackerNewsSearchURL = "https://hn.algolia.com/api/v1/search_by_date"
	hackerNewsItemURL   = "https://news.ycombinator.com/item?id="

	// window used when a search has never run
	hackerNewsDefaultWindow = 24 * time.Hour
)

// HackerNewsConnector searches stories and comments through the Algolia HN API
type HackerNewsConnector struct {
	client    *resty.Client
	searchURL string
	pageSize  int
	now       func() time.Time
}

// Ensure HackerNewsConnector implements Connector
var _ Connector = (*HackerNewsConnector)(nil)

type hackerNewsResponse struct {
	Hits []hackerNewsHit `json:"hits"`
}

type hackerNewsHit struct {
	ObjectID    string `json:"objectID"`
	Title       string `json:"title"`
	StoryTitle  string `json:"story_title"`
	StoryText   string `json:"story_text"`
	CommentText string `json:"comment_text"`
	Author      string `json:"author"`
	URL         string `json:"url"`
	Points      int    `json:"points"`
	StoryID     int    `json:"story_id"`
	CreatedAtI  int64  `json:"created_at_i"`
}

// NewHackerNewsConnector creates a new Hacker News connector. An empty
// searchURL uses the public Algolia endpoint.
func NewHackerNewsConnector(searchURL string) *HackerNewsConnector {
	if searchURL == "" {
		searchURL = hackerNewsSearchURL
	}
	return &HackerNewsConnector{
		client: resty.New().
			SetTimeout(30 * time.Second).
			SetHeader("User-Agent", "leadscout/1.0"),
		searchURL: searchURL,
		pageSize:  100,
		now:       time.Now,
	}
}

func (h *HackerNewsConnector) Name() string {
	return models.PlatformHackerNews
}

func (h *HackerNewsConnector) IsEnabled() bool {
	return true // the Algolia HN API needs no credentials
}

// Fetch runs one query per keyword for items newer than the last run
func (h *HackerNewsConnector) Fetch(ctx context.Context, spec *models.KeywordSearchSpec) ([]models.RawItem, error) {
	since := h.now().Add(-hackerNewsDefaultWindow)
	if spec.LastRunAt != nil {
		since = *spec.LastRunAt
	}

	var all []models.RawItem
	for _, keyword := range spec.Keywords {
		items, err := h.searchKeyword(ctx, spec.ID, keyword, since)
		if err != nil {
			return nil, fmt.Errorf("keyword %q: %w", keyword, err)
		}
		all = append(all, items...)
	}

	logrus.Debugf("Hacker News returned %d items for search %s", len(all), spec.ID)
	return dedupeItems(all), nil
}

func (h *HackerNewsConnector) searchKeyword(ctx context.Context, searchID, keyword string, since time.Time) ([]models.RawItem, error) {
	resp, err := h.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"query":          keyword,
			"tags":           "(story,comment)",
			"numericFilters": "created_at_i>" + strconv.FormatInt(since.Unix(), 10),
			"hitsPerPage":    strconv.Itoa(h.pageSize),
		}).
		Get(h.searchURL)
	if err := classifyResponse("hackernews", resp, err); err != nil {
		return nil, err
	}

	var result hackerNewsResponse
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, fmt.Errorf("%w: decode hacker news search: %v", models.ErrConnectorUnavailable, err)
	}

	items := make([]models.RawItem, 0, len(result.Hits))
	for _, hit := range result.Hits {
		items = append(items, hitItem(searchID, hit))
	}

	return items, nil
}

func hitItem(searchID string, hit hackerNewsHit) models.RawItem {
	item := models.RawItem{
		SourceID:  "hackernews:" + hit.ObjectID,
		Platform:  models.PlatformHackerNews,
		SearchID:  searchID,
		Kind:      models.ItemKindPost,
		Title:     hit.Title,
		Text:      stripHTML(hit.StoryText),
		Author:    hit.Author,
		URL:       hackerNewsItemURL + hit.ObjectID,
		Score:     hit.Points,
		CreatedAt: time.Unix(hit.CreatedAtI, 0).UTC(),
	}

	if hit.CommentText != "" {
		item.Kind = models.ItemKindComment
		item.Title = hit.StoryTitle
		item.Text = stripHTML(hit.CommentText)
		if hit.StoryID != 0 {
			item.ParentID = "hackernews:" + strconv.Itoa(hit.StoryID)
		}
	}

	return item
}

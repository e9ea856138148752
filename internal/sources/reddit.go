package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/leadscout/leadscout/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	redditAuthURL  = "https://www.reddit.com/api/v1/access_token"
	redditAPIURL   = "https://oauth.reddit.com"
	redditPageSize = 100
)

// RedditOptions configures the Reddit connector
type RedditOptions struct {
	ClientID           string
	ClientSecret       string
	UserAgent          string
	RequestsPerMinute  int
	MaxPostsPerSearch  int
	MaxCommentsPerPost int
	Concurrency        int

	// Overridable endpoints
	AuthURL string
	APIURL  string
}

// RedditConnector searches Reddit through the OAuth API
type RedditConnector struct {
	opts    RedditOptions
	client  *resty.Client
	limiter *rate.Limiter

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// Ensure RedditConnector implements Connector
var _ Connector = (*RedditConnector)(nil)

type redditAuthResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type redditListing struct {
	Data struct {
		After    string `json:"after"`
		Children []struct {
			Kind string      `json:"kind"`
			Data redditThing `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditThing struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Title       string  `json:"title"`
	Selftext    string  `json:"selftext"`
	Body        string  `json:"body"`
	Author      string  `json:"author"`
	Subreddit   string  `json:"subreddit"`
	Permalink   string  `json:"permalink"`
	Created     float64 `json:"created_utc"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
}

// NewRedditConnector creates a new Reddit connector
func NewRedditConnector(opts RedditOptions) *RedditConnector {
	if opts.AuthURL == "" {
		opts.AuthURL = redditAuthURL
	}
	if opts.APIURL == "" {
		opts.APIURL = redditAPIURL
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "leadscout/1.0"
	}
	if opts.RequestsPerMinute <= 0 {
		opts.RequestsPerMinute = 60
	}
	if opts.MaxPostsPerSearch <= 0 {
		opts.MaxPostsPerSearch = 1000
	}
	if opts.MaxCommentsPerPost <= 0 {
		opts.MaxCommentsPerPost = 500
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 3
	}

	return &RedditConnector{
		opts: opts,
		client: resty.New().
			SetTimeout(30*time.Second).
			SetHeader("User-Agent", opts.UserAgent),
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), 1),
	}
}

func (r *RedditConnector) Name() string {
	return models.PlatformReddit
}

func (r *RedditConnector) IsEnabled() bool {
	return r.opts.ClientID != "" && r.opts.ClientSecret != ""
}

// Fetch searches each configured subreddit (all of Reddit when none are
// configured) and optionally pulls top-level comments of every post found.
func (r *RedditConnector) Fetch(ctx context.Context, spec *models.KeywordSearchSpec) ([]models.RawItem, error) {
	if !r.IsEnabled() {
		return nil, fmt.Errorf("%w: reddit credentials are not configured", models.ErrConnectorUnavailable)
	}

	token, err := r.token(ctx)
	if err != nil {
		return nil, err
	}

	subreddits := spec.RedditConfig.Subreddits
	if len(subreddits) == 0 {
		subreddits = []string{"all"}
	}

	perSubreddit := r.postsPerSubreddit(spec.RedditConfig.Limit, len(subreddits))
	query := buildRedditQuery(spec.Keywords)

	results := make([][]models.RawItem, len(subreddits))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)

	for i, subreddit := range subreddits {
		i, subreddit := i, subreddit
		g.Go(func() error {
			items, err := r.searchSubreddit(gctx, token, spec, subreddit, query, perSubreddit)
			if err != nil {
				return fmt.Errorf("subreddit %s: %w", subreddit, err)
			}
			results[i] = items
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []models.RawItem
	for _, items := range results {
		all = append(all, items...)
	}

	logrus.WithFields(logrus.Fields{
		"search_id":  spec.ID,
		"subreddits": len(subreddits),
		"items":      len(all),
	}).Debug("Reddit fetch finished")

	return dedupeItems(all), nil
}

// postsPerSubreddit splits the per-search post cap across subreddits
func (r *RedditConnector) postsPerSubreddit(limit, subreddits int) int {
	if limit <= 0 {
		limit = redditPageSize
	}
	if limit*subreddits > r.opts.MaxPostsPerSearch {
		limit = r.opts.MaxPostsPerSearch / subreddits
	}
	if limit < 1 {
		limit = 1
	}
	return limit
}

func buildRedditQuery(keywords []string) string {
	terms := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if strings.ContainsAny(k, " \t") {
			k = `"` + k + `"`
		}
		terms = append(terms, k)
	}
	return strings.Join(terms, " OR ")
}

func (r *RedditConnector) token(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.accessToken != "" && time.Now().Before(r.tokenExpiry) {
		return r.accessToken, nil
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}

	resp, err := r.client.R().
		SetContext(ctx).
		SetBasicAuth(r.opts.ClientID, r.opts.ClientSecret).
		SetFormData(map[string]string{
			"grant_type": "client_credentials",
		}).
		Post(r.opts.AuthURL)
	if err := classifyResponse("reddit auth", resp, err); err != nil {
		return "", err
	}

	var authResp redditAuthResponse
	if err := json.Unmarshal(resp.Body(), &authResp); err != nil {
		return "", fmt.Errorf("%w: decode reddit token: %v", models.ErrConnectorUnavailable, err)
	}
	if authResp.AccessToken == "" {
		return "", fmt.Errorf("%w: reddit returned an empty access token", models.ErrConnectorUnavailable)
	}

	// Refresh a minute early so in-flight requests never carry an expired token
	ttl := time.Duration(authResp.ExpiresIn)*time.Second - time.Minute
	if ttl <= 0 {
		ttl = time.Minute
	}
	r.accessToken = authResp.AccessToken
	r.tokenExpiry = time.Now().Add(ttl)

	return r.accessToken, nil
}

func (r *RedditConnector) invalidateToken() {
	r.mu.Lock()
	r.accessToken = ""
	r.mu.Unlock()
}

func (r *RedditConnector) get(ctx context.Context, token, path string, params map[string]string) (*resty.Response, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := r.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+token).
		SetQueryParams(params).
		Get(r.opts.APIURL + path)
	if classified := classifyResponse("reddit", resp, err); classified != nil {
		if resp != nil && resp.StatusCode() == 401 {
			r.invalidateToken()
		}
		return nil, classified
	}

	return resp, nil
}

func (r *RedditConnector) searchSubreddit(
	ctx context.Context,
	token string,
	spec *models.KeywordSearchSpec,
	subreddit, query string,
	limit int,
) ([]models.RawItem, error) {
	rc := spec.RedditConfig
	var items []models.RawItem
	after := ""
	posts := 0

	for posts < limit {
		pageSize := limit - posts
		if pageSize > redditPageSize {
			pageSize = redditPageSize
		}

		params := map[string]string{
			"q":     query,
			"sort":  rc.Sort,
			"t":     rc.TimeFilter,
			"limit": strconv.Itoa(pageSize),
			"type":  "link",
		}
		if subreddit != "all" {
			params["restrict_sr"] = "1"
		}
		if after != "" {
			params["after"] = after
		}

		resp, err := r.get(ctx, token, fmt.Sprintf("/r/%s/search.json", subreddit), params)
		if err != nil {
			return nil, err
		}

		var listing redditListing
		if err := json.Unmarshal(resp.Body(), &listing); err != nil {
			return nil, fmt.Errorf("%w: decode reddit search: %v", models.ErrConnectorUnavailable, err)
		}

		for _, child := range listing.Data.Children {
			if child.Kind != "t3" || posts >= limit {
				continue
			}
			post := child.Data
			item := postItem(spec.ID, post)
			items = append(items, item)
			posts++

			if rc.IncludeComments && post.NumComments > 0 {
				comments, err := r.fetchComments(ctx, token, spec, post, item.SourceID)
				if err != nil {
					return nil, err
				}
				items = append(items, comments...)
			}
		}

		after = listing.Data.After
		if after == "" || len(listing.Data.Children) == 0 {
			break
		}
	}

	return items, nil
}

func (r *RedditConnector) fetchComments(
	ctx context.Context,
	token string,
	spec *models.KeywordSearchSpec,
	post redditThing,
	parentID string,
) ([]models.RawItem, error) {
	limit := spec.RedditConfig.CommentLimit
	if limit <= 0 || limit > r.opts.MaxCommentsPerPost {
		limit = r.opts.MaxCommentsPerPost
	}

	resp, err := r.get(ctx, token, fmt.Sprintf("/r/%s/comments/%s.json", post.Subreddit, post.ID), map[string]string{
		"limit": strconv.Itoa(limit),
		"depth": "1",
		"sort":  "new",
	})
	if err != nil {
		return nil, err
	}

	// The response is [post listing, comment listing]
	var listings []redditListing
	if err := json.Unmarshal(resp.Body(), &listings); err != nil {
		return nil, fmt.Errorf("%w: decode reddit comments: %v", models.ErrConnectorUnavailable, err)
	}
	if len(listings) < 2 {
		return nil, nil
	}

	var comments []models.RawItem
	for _, child := range listings[1].Data.Children {
		if child.Kind != "t1" || len(comments) >= limit {
			continue
		}
		c := child.Data
		if c.Body == "" || c.Body == "[deleted]" || c.Body == "[removed]" {
			continue
		}
		comments = append(comments, models.RawItem{
			SourceID:  "reddit:" + thingName(c, "t1_"),
			Platform:  models.PlatformReddit,
			SearchID:  spec.ID,
			Kind:      models.ItemKindComment,
			Community: c.Subreddit,
			ParentID:  parentID,
			Title:     post.Title,
			Text:      c.Body,
			Author:    c.Author,
			URL:       "https://reddit.com" + c.Permalink,
			Score:     c.Score,
			CreatedAt: time.Unix(int64(c.Created), 0).UTC(),
		})
	}

	return comments, nil
}

func postItem(searchID string, post redditThing) models.RawItem {
	return models.RawItem{
		SourceID:  "reddit:" + thingName(post, "t3_"),
		Platform:  models.PlatformReddit,
		SearchID:  searchID,
		Kind:      models.ItemKindPost,
		Community: post.Subreddit,
		Title:     post.Title,
		Text:      post.Selftext,
		Author:    post.Author,
		URL:       "https://reddit.com" + post.Permalink,
		Score:     post.Score,
		CreatedAt: time.Unix(int64(post.Created), 0).UTC(),
	}
}

func thingName(t redditThing, prefix string) string {
	if t.Name != "" {
		return t.Name
	}
	return prefix + t.ID
}

// Package forum implements the Forum Client (C2): fetching posts from
// named channels in hot/new/top modes via an authenticated API.
package forum

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"sentimentpipe/internal/httpclient"
	"sentimentpipe/internal/ratelimit"
	"sentimentpipe/internal/types"
)

// TimeFilter selects the window for fetch_top.
type TimeFilter string

const (
	TimeHour  TimeFilter = "hour"
	TimeDay   TimeFilter = "day"
	TimeWeek  TimeFilter = "week"
	TimeMonth TimeFilter = "month"
	TimeYear  TimeFilter = "year"
	TimeAll   TimeFilter = "all"
)

// DefaultChannels is used when the caller passes none.
var DefaultChannels = []string{"wallstreetbets", "stocks", "investing", "options", "Economics", "finance"}

// Config configures the Client.
type Config struct {
	BaseURL        string
	TokenURL       string
	ClientID       string
	ClientSecret   string
	RequestsPerMin int
	RequestTimeout time.Duration
}

// Client fetches posts from forum channels, honoring the forum's
// per-minute rate budget and authenticating with pre-provisioned OAuth
// client credentials. Each channel gets its own token bucket - a burst
// of requests against "wallstreetbets" never starves "stocks" of its
// own budget - registered lazily the first time a channel is fetched.
type Client struct {
	http    *httpclient.Client
	cfg     Config
	limiter *ratelimit.MultiLimiter

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// New builds a Client.
func New(cfg Config) *Client {
	perMin := cfg.RequestsPerMin
	if perMin <= 0 {
		perMin = 30
	}
	cfg.RequestsPerMin = perMin
	return &Client{
		http: httpclient.New(
			httpclient.WithBaseURL(cfg.BaseURL),
			httpclient.WithTimeout(cfg.RequestTimeout),
			httpclient.WithLogging(true),
		),
		cfg:     cfg,
		limiter: ratelimit.NewMulti(),
	}
}

// ensureChannelLimiter registers a per-channel token bucket the first time
// channel is seen; subsequent calls reuse the same bucket so its budget
// persists across fetches instead of resetting every call.
func (c *Client) ensureChannelLimiter(channel string) {
	if !c.limiter.Has(channel) {
		refillRate := time.Minute / time.Duration(c.cfg.RequestsPerMin)
		c.limiter.Add(channel, c.cfg.RequestsPerMin, refillRate)
	}
}

// FetchHot returns posts from channels sorted by "hot", capped at limit
// per channel.
func (c *Client) FetchHot(ctx context.Context, channels []string, limit int) ([]types.ForumPost, error) {
	return c.fetchListing(ctx, channels, "hot", "", limit)
}

// FetchNew returns posts from channels sorted by newest first.
func (c *Client) FetchNew(ctx context.Context, channels []string, limit int) ([]types.ForumPost, error) {
	return c.fetchListing(ctx, channels, "new", "", limit)
}

// FetchTop returns posts from channels sorted by score within timeFilter.
func (c *Client) FetchTop(ctx context.Context, channels []string, timeFilter TimeFilter, limit int) ([]types.ForumPost, error) {
	return c.fetchListing(ctx, channels, "top", string(timeFilter), limit)
}

func (c *Client) fetchListing(ctx context.Context, channels []string, sort string, timeFilter string, limit int) ([]types.ForumPost, error) {
	if len(channels) == 0 {
		channels = DefaultChannels
	}
	if limit <= 0 {
		limit = 25
	}

	token, err := c.ensureToken(ctx)
	if err != nil {
		return nil, types.NewError(types.KindConfig, "forum.fetchListing", err)
	}

	var all []types.ForumPost
	for _, channel := range channels {
		c.ensureChannelLimiter(channel)
		if err := c.limiter.Wait(ctx, channel); err != nil {
			return all, types.NewError(types.KindCancelled, "forum.fetchListing", err)
		}

		posts, err := c.fetchChannel(ctx, channel, sort, timeFilter, limit, token)
		if err != nil {
			return all, err
		}
		all = append(all, posts...)
	}
	return all, nil
}

func (c *Client) fetchChannel(ctx context.Context, channel, sort, timeFilter string, limit int, token string) ([]types.ForumPost, error) {
	path := fmt.Sprintf("/r/%s/%s.json?limit=%d", url.PathEscape(channel), sort, limit)
	if timeFilter != "" {
		path += "&t=" + url.QueryEscape(timeFilter)
	}

	headers := map[string]string{"Authorization": "Bearer " + token}
	resp, err := c.http.GET(ctx, path, headers)
	if err != nil {
		return nil, classifyError(err, "forum.fetchChannel")
	}

	var body listingResponse
	if err := resp.ParseJSON(&body); err != nil {
		return nil, types.NewError(types.KindParse, "forum.fetchChannel", err)
	}

	posts := make([]types.ForumPost, 0, len(body.Data.Children))
	now := time.Now().UTC()
	for _, child := range body.Data.Children {
		d := child.Data
		posts = append(posts, types.ForumPost{
			ExternalID:  truncate(d.ID, 20),
			Channel:     channel,
			Title:       d.Title,
			Body:        nonEmptyPtr(d.Selftext),
			URL:         nonEmptyPtr(d.URL),
			Score:       d.Score,
			NumComments: d.NumComments,
			Flair:       nonEmptyPtr(d.LinkFlairText),
			Timestamp:   time.Unix(int64(d.CreatedUTC), 0).UTC(),
			FetchedAt:   now,
		})
	}
	return posts, nil
}

// ensureToken returns a cached bearer token, refreshing it via the
// client_credentials grant if expired or absent.
func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	form := strings.NewReader(url.Values{
		"grant_type": {"client_credentials"},
	}.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, form)
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	client := &http.Client{Timeout: c.cfg.RequestTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", fmt.Errorf("forum authentication rejected: status %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("token endpoint error: status %d", resp.StatusCode)
	}

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read token response: %w", err)
	}
	var tok tokenResponse
	if err := json.Unmarshal(rawBody, &tok); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}

	c.accessToken = tok.AccessToken
	expiresIn := tok.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 3600
	}
	c.tokenExpiry = time.Now().Add(time.Duration(expiresIn-30) * time.Second)
	return c.accessToken, nil
}

func classifyError(err error, op string) error {
	if se, ok := err.(*httpclient.StatusError); ok {
		if se.StatusCode == http.StatusUnauthorized || se.StatusCode == http.StatusForbidden {
			return types.NewError(types.KindConfig, op, err)
		}
		if se.Retriable() {
			return types.NewError(types.KindTransientNetwork, op, err)
		}
		return types.NewError(types.KindPermanentNetwork, op, err)
	}
	return types.NewError(types.KindTransientNetwork, op, err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func nonEmptyPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

type listingResponse struct {
	Data struct {
		Children []struct {
			Data postData `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type postData struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	Selftext      string  `json:"selftext"`
	URL           string  `json:"url"`
	Score         int     `json:"score"`
	NumComments   int     `json:"num_comments"`
	LinkFlairText string  `json:"link_flair_text"`
	CreatedUTC    float64 `json:"created_utc"`
}

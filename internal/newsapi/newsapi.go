// Package newsapi is the News Source client: an HTTP JSON feed returning
// raw story records. One category fetch is one GET; pagination follows
// the response's nextPage token.
package newsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"subvertnews/internal/core"
)

// Client is the News Source capability: {country, language, apikey,
// category?, q?, prioritydomain?, page?} in, {status, results[], nextPage?}
// out. A rate limiter paces category-fetch bursts so a multi-category run
// does not exceed the upstream API's request budget.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	endpoint   string
	apiKey     string
	country    string
	language   string
}

// New builds a News Source client. endpoint, apiKey, country, and
// language are fixed per process; ratePerSecond paces outgoing requests.
func New(endpoint, apiKey, country, language string, ratePerSecond float64) *Client {
	if ratePerSecond <= 0 {
		ratePerSecond = 1
	}
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(ratePerSecond), 1),
		endpoint:   endpoint,
		apiKey:     apiKey,
		country:    country,
		language:   language,
	}
}

// Query is one category fetch request.
type Query struct {
	Category       string // empty = wildcard, no category filter
	Search         string // q
	PriorityDomain bool
	Page           string // nextPage token from a prior response, empty for page 1
}

// Response mirrors the upstream JSON feed's envelope.
type Response struct {
	Status   string       `json:"status"`
	Results  []RawStory   `json:"results"`
	NextPage string       `json:"nextPage"`
}

// RawStory is one upstream story record, before it is normalized into
// core.Story by the ingestor (which also assigns YearMonthDay/StoryId).
type RawStory struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Link        string   `json:"link"`
	PubDate     string   `json:"pubDate"` // ISO 8601
	ImageURL    string   `json:"image_url"`
	SourceID    string   `json:"source_id"`
	Keywords    []string `json:"keywords"`
	Language    string   `json:"language"`
	Country     []string `json:"country"`
}

// PublishedAt parses PubDate, returning the zero time if it is malformed
// or absent rather than failing the whole story.
func (r RawStory) PublishedAt() time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05Z"} {
		if t, err := time.Parse(layout, r.PubDate); err == nil {
			return t
		}
	}
	return time.Time{}
}

// CountryCode returns the first reported country, for Story.Country.
func (r RawStory) CountryCode() string {
	if len(r.Country) == 0 {
		return ""
	}
	return r.Country[0]
}

// Fetch issues one paginated GET and returns the raw results plus the
// next page token (empty when exhausted). status != "success" is a
// fatal error per the contract — it signals misconfiguration (bad key,
// bad params), not a transient upstream hiccup.
func (c *Client) Fetch(ctx context.Context, q Query) (Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Response{}, fmt.Errorf("%w: rate limiter: %v", core.ErrTransient, err)
	}

	params := url.Values{}
	params.Set("apikey", c.apiKey)
	params.Set("country", c.country)
	params.Set("language", c.language)
	if q.Category != "" {
		params.Set("category", q.Category)
	}
	if q.Search != "" {
		params.Set("q", q.Search)
	}
	if q.PriorityDomain {
		params.Set("prioritydomain", "top")
	}
	if q.Page != "" {
		params.Set("page", q.Page)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return Response{}, fmt.Errorf("%w: build news source request: %v", core.ErrFatal, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("%w: news source request: %v", core.ErrTransient, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return Response{}, fmt.Errorf("%w: news source returned status %d", core.ErrTransient, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return Response{}, fmt.Errorf("%w: news source returned status %d", core.ErrFatal, resp.StatusCode)
	}

	var body Response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Response{}, fmt.Errorf("%w: decode news source response: %v", core.ErrParse, err)
	}
	if body.Status != "success" {
		return Response{}, fmt.Errorf("%w: news source status %q", core.ErrFatal, body.Status)
	}
	return body, nil
}

// FetchAll pages through up to maxCalls requests for q, stopping early
// once stop(results-so-far) reports true or the upstream has no more
// pages.
func (c *Client) FetchAll(ctx context.Context, q Query, maxCalls int, stop func(collected int) bool) ([]RawStory, error) {
	var all []RawStory
	page := q.Page
	for call := 0; call < maxCalls; call++ {
		q.Page = page
		resp, err := c.Fetch(ctx, q)
		if err != nil {
			return all, err
		}
		all = append(all, resp.Results...)
		if stop(len(all)) || resp.NextPage == "" {
			break
		}
		page = resp.NextPage
	}
	return all, nil
}

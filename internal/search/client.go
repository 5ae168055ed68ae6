// Package search wraps the Jina web search API with an HTML scraping
// fallback for hosts that only serve markup.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	searchEndpoint = "https://s.jina.ai/"
	apiKeyEnv      = "JINA_API_KEY"

	maxAttempts = 3
	retryDelay  = 2 * time.Second
)

// Result is one search hit.
type Result struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
	Content     string `json:"content,omitempty"`
}

type searchResponse struct {
	Code int      `json:"code"`
	Data []Result `json:"data"`
}

// Client queries Jina search. A missing API key error surfaces at call
// time, not construction, so read-only commands never need the key.
type Client struct {
	http     *resty.Client
	endpoint string
	apiKey   string
	log      *zap.Logger
	sleep    func(time.Duration)
}

func NewClient(log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	c := resty.New()
	c.SetTimeout(30 * time.Second)
	c.SetHeader("User-Agent", "Mozilla/5.0 (compatible; ai-trader/1.0)")

	return &Client{
		http:     c,
		endpoint: searchEndpoint,
		apiKey:   os.Getenv(apiKeyEnv),
		log:      log,
		sleep:    time.Sleep,
	}
}

// Search runs a web search for query and returns up to maxResults hits.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("search query cannot be empty")
	}
	if c.apiKey == "" {
		return nil, fmt.Errorf("%s is not set", apiKeyEnv)
	}
	if maxResults <= 0 {
		maxResults = 5
	}

	target := strings.TrimSuffix(c.endpoint, "/") + "/?q=" + url.QueryEscape(query)

	var results []Result
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := c.http.R().
			SetContext(ctx).
			SetHeader("Authorization", "Bearer "+c.apiKey).
			SetHeader("Accept", "application/json").
			SetHeader("X-Respond-With", "no-content").
			Get(target)
		if err != nil {
			lastErr = fmt.Errorf("search request: %w", err)
		} else if resp.StatusCode() != 200 {
			lastErr = fmt.Errorf("search returned HTTP %d", resp.StatusCode())
		} else {
			var parsed searchResponse
			if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
				return nil, fmt.Errorf("decode search response: %w", err)
			}
			results = parsed.Data
			lastErr = nil
			break
		}

		if attempt < maxAttempts {
			c.log.Warn("search attempt failed, retrying",
				zap.Int("attempt", attempt), zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
			c.sleep(retryDelay)
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}

	if len(results) > maxResults {
		results = results[:maxResults]
	}

	// The no-content search mode leaves hits without body text; scrape
	// those pages directly. A failed scrape keeps the bare hit.
	for i := range results {
		if results[i].Content != "" || results[i].URL == "" {
			continue
		}
		page, err := c.FetchPage(ctx, results[i].URL)
		if err != nil {
			c.log.Debug("page scrape failed",
				zap.String("url", results[i].URL), zap.Error(err))
			continue
		}
		results[i].Content = page.Content
		if results[i].Description == "" {
			results[i].Description = page.Description
		}
	}
	return results, nil
}

// FetchPage downloads a URL and scrapes title and body text from its
// HTML. Used to expand a search hit that came back without content.
func (c *Client) FetchPage(ctx context.Context, pageURL string) (Result, error) {
	if strings.TrimSpace(pageURL) == "" {
		return Result{}, fmt.Errorf("page URL cannot be empty")
	}

	resp, err := c.http.R().SetContext(ctx).Get(pageURL)
	if err != nil {
		return Result{}, fmt.Errorf("fetch page: %w", err)
	}
	if resp.StatusCode() != 200 {
		return Result{}, fmt.Errorf("HTTP %d fetching %s", resp.StatusCode(), pageURL)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(resp.String()))
	if err != nil {
		return Result{}, fmt.Errorf("parse page: %w", err)
	}
	return extractPage(doc, pageURL), nil
}

func extractPage(doc *goquery.Document, pageURL string) Result {
	result := Result{URL: pageURL}

	for _, sel := range []string{"h1", "title", ".headline", ".article-title"} {
		if t := strings.TrimSpace(doc.Find(sel).First().Text()); t != "" {
			result.Title = t
			break
		}
	}

	for _, sel := range []string{
		".article-content", ".entry-content", ".post-content",
		"article p", ".article-body", ".story-body",
	} {
		if c := strings.TrimSpace(doc.Find(sel).Text()); c != "" {
			result.Content = c
			break
		}
	}
	if result.Content == "" {
		result.Content = strings.TrimSpace(doc.Find("p").Text())
	}

	if meta := doc.Find("meta[name='description']"); meta.Length() > 0 {
		result.Description, _ = meta.Attr("content")
	}
	return result
}

package calendar

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
)

// Renderer fetches a URL and yields the rendered DOM. The core scraper
// requires only this contract; how the page's JavaScript gets executed
// (headless Chrome, a stealth-patched driver, or — for static fixtures — a
// plain HTTP fetch) is an implementation detail behind the interface.
type Renderer interface {
	// Render fetches url and returns a parsed document plus the raw status
	// code observed, so the caller can distinguish bot-challenge responses
	// from genuine content.
	Render(ctx context.Context, url string) (doc *goquery.Document, statusCode int, err error)
	Close() error
}

// CollyRenderer is the default Renderer: a colly collector configured with
// a desktop user agent and a single-page visit per Render call. It executes
// no JavaScript — real deployments needing JS execution plug in a headless
// browser adapter behind the same interface; this implementation is the
// substitutable default and the one exercised by tests against static HTML
// fixtures.
type CollyRenderer struct {
	userAgent string
	timeout   time.Duration
}

// NewCollyRenderer builds a CollyRenderer with the given request timeout.
func NewCollyRenderer(timeout time.Duration) *CollyRenderer {
	return &CollyRenderer{
		userAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		timeout:   timeout,
	}
}

func (r *CollyRenderer) Render(ctx context.Context, url string) (*goquery.Document, int, error) {
	c := colly.NewCollector(colly.MaxDepth(1))
	c.SetRequestTimeout(r.timeout)

	var (
		body       []byte
		statusCode int
		visitErr   error
	)

	c.OnRequest(func(req *colly.Request) {
		req.Headers.Set("User-Agent", r.userAgent)
		req.Headers.Set("Accept-Language", "en-US,en;q=0.9")
	})

	c.OnResponse(func(resp *colly.Response) {
		statusCode = resp.StatusCode
		body = resp.Body
	})

	c.OnError(func(resp *colly.Response, err error) {
		visitErr = err
		if resp != nil {
			statusCode = resp.StatusCode
		}
	})

	if err := c.Visit(url); err != nil {
		return nil, statusCode, fmt.Errorf("visit %s: %w", url, err)
	}
	c.Wait()

	if visitErr != nil {
		return nil, statusCode, visitErr
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, statusCode, fmt.Errorf("parse rendered document: %w", err)
	}
	return doc, statusCode, nil
}

func (r *CollyRenderer) Close() error { return nil }

// StaticRenderer serves a pre-fetched document for a fixed URL, used by
// tests that exercise the row-walking parser without network access.
type StaticRenderer struct {
	Pages map[string]StaticPage
}

// StaticPage is a canned Renderer response.
type StaticPage struct {
	HTML       string
	StatusCode int
}

func (r *StaticRenderer) Render(ctx context.Context, url string) (*goquery.Document, int, error) {
	page, ok := r.Pages[url]
	if !ok {
		return nil, 0, fmt.Errorf("no static page registered for %s", url)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return nil, page.StatusCode, err
	}
	return doc, page.StatusCode, nil
}

func (r *StaticRenderer) Close() error { return nil }

var _ io.Closer = (*CollyRenderer)(nil)

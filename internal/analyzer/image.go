package analyzer

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}

// looksLikeImage reports whether u's path suggests image content by
// extension. Only the extension is checked; media-host URLs without an
// image extension are not recognized.
func looksLikeImage(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	lower := strings.ToLower(u.Path)
	for _, ext := range imageExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// imageFetcher downloads image bytes, retrying transient errors and giving
// up immediately on permanent ones.
type imageFetcher struct {
	client  *http.Client
	timeout time.Duration
}

func newImageFetcher(timeout time.Duration) *imageFetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &imageFetcher{client: &http.Client{Timeout: timeout}, timeout: timeout}
}

// fetch downloads imageURL, retrying timeouts/connection resets/5xx up to
// 3 attempts with exponential backoff. 404/403 are permanent and return
// immediately with a descriptive reason.
func (f *imageFetcher) fetch(ctx context.Context, imageURL string) ([]byte, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond

	operation := func() ([]byte, error) {
		ctx, cancel := context.WithTimeout(ctx, f.timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("build image request: %w", err))
		}

		resp, err := f.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch image: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden {
			return nil, backoff.Permanent(fmt.Errorf("image unavailable: status %d", resp.StatusCode))
		}
		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("image server error: status %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return nil, backoff.Permanent(fmt.Errorf("image request rejected: status %d", resp.StatusCode))
		}

		buf := make([]byte, 0, 64*1024)
		chunk := make([]byte, 32*1024)
		for {
			n, readErr := resp.Body.Read(chunk)
			if n > 0 {
				buf = append(buf, chunk[:n]...)
			}
			if readErr != nil {
				break
			}
		}
		return buf, nil
	}

	return backoff.Retry(ctx, operation, backoff.WithBackOff(b), backoff.WithMaxTries(3))
}

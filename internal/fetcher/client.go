package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrMalformedBody marks a 2xx response whose body is not valid JSON.
// Treated as retryable: truncated bodies show up this way.
var ErrMalformedBody = errors.New("response body is not valid JSON")

// HTTPError represents a non-2xx response from the submissions API.
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d fetching %s", e.StatusCode, e.URL)
}

// Client fetches submissions documents from the SEC data API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
}

// NewClient builds a submissions client. userAgent must carry contact
// info; requests without it violate the SEC fair-access policy, so an
// empty value is rejected here rather than at the upstream.
func NewClient(baseURL, userAgent string, timeout time.Duration) (*Client, error) {
	if userAgent == "" {
		return nil, errors.New("user agent with contact info is required")
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		userAgent:  userAgent,
	}, nil
}

// FetchSubmissions performs one GET for the CIK's filing history and
// returns the raw body. Non-2xx responses are returned as *HTTPError;
// a 2xx body that is not valid JSON is returned as ErrMalformedBody.
func (c *Client) FetchSubmissions(ctx context.Context, cik string) ([]byte, error) {
	url := fmt.Sprintf("%s/CIK%s.json", c.baseURL, cik)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &HTTPError{StatusCode: resp.StatusCode, URL: url}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading body from %s: %w", url, err)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("%w: %s", ErrMalformedBody, url)
	}
	return body, nil
}

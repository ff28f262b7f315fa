// Package shortener is an HTTP client for ShrinkMe-compatible link
// shortening APIs.
//
// The API is a single GET endpoint taking the account key and the long URL
// as query parameters and answering with JSON:
//
//	GET {base}?api=KEY&url=URL
//	{"status":"success","shortenedUrl":"https://shrinkme.io/abc"}
//
// Callers treat every failure as an expected outcome and fall back to the
// long URL; this package only reports what went wrong.
package shortener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the ShrinkMe API endpoint.
const DefaultBaseURL = "https://shrinkme.io/api"

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 64 << 10

// ErrShortenFailed is wrapped by every error returned from Shorten.
var ErrShortenFailed = errors.New("shorten failed")

type response struct {
	Status       string `json:"status"`
	ShortenedURL string `json:"shortenedUrl"`
	Message      any    `json:"message,omitempty"`
}

// Client calls the shortening API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New returns a Client for baseURL (DefaultBaseURL when empty). timeout is a
// hard cap on each request in addition to the caller's context.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// WithHTTPClient replaces the underlying HTTP client. Tests use it to talk
// to an httptest server.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// Shorten returns the short form of longURL.
func (c *Client) Shorten(ctx context.Context, longURL string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("%w: base url: %v", ErrShortenFailed, err)
	}
	q := u.Query()
	q.Set("api", c.apiKey)
	q.Set("url", longURL)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", ErrShortenFailed, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrShortenFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: status %d", ErrShortenFailed, resp.StatusCode)
	}

	var body response
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: decode: %v", ErrShortenFailed, err)
	}
	if !strings.EqualFold(body.Status, "success") {
		return "", fmt.Errorf("%w: status %q: %v", ErrShortenFailed, body.Status, body.Message)
	}
	short := strings.TrimSpace(body.ShortenedURL)
	if short == "" {
		return "", fmt.Errorf("%w: empty shortenedUrl", ErrShortenFailed)
	}
	return short, nil
}

package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2"
)

// Reader is the read-only view of the remote data source.
type Reader interface {
	// Get fetches path with the given query and returns the raw response body.
	// Failures are *Error values.
	Get(ctx context.Context, path string, query url.Values) ([]byte, error)
}

// Config holds configuration for Client.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	Tokens    TokenProvider // optional
}

// Client implements Reader over HTTP.
type Client struct {
	client *resty.Client
	tokens TokenProvider
}

// NewClient creates a new remote client.
func NewClient(cfg *Config) *Client {
	client := resty.New()
	client.SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/"))
	client.SetHeader("Accept", "application/json")
	if cfg.UserAgent != "" {
		client.SetHeader("User-Agent", cfg.UserAgent)
	}
	// Per-call bound; retries are handled by the caller, not resty.
	client.SetTimeout(cfg.Timeout)

	return &Client{
		client: client,
		tokens: cfg.Tokens,
	}
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	req := c.client.R().SetContext(ctx)
	if len(query) > 0 {
		req.SetQueryParamsFromValues(query)
	}
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			var re *oauth2.RetrieveError
			if errors.As(err, &re) && re.Response != nil {
				// Rejected credentials keep their status so 4xx stays terminal.
				return nil, &Error{
					Method:     http.MethodGet,
					Path:       path,
					StatusCode: re.Response.StatusCode,
					Body:       string(re.Body),
					Err:        err,
				}
			}
			return nil, fmt.Errorf("failed to obtain access token: %w", err)
		}
		req.SetAuthToken(token)
	}

	resp, err := req.Get(path)
	if err != nil {
		return nil, &Error{Method: http.MethodGet, Path: path, NoResponse: true, Err: err}
	}

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, &Error{
			Method:     http.MethodGet,
			Path:       path,
			StatusCode: resp.StatusCode(),
			Body:       string(resp.Body()),
		}
	}

	return resp.Body(), nil
}

// Package spotify provides a wrapper around the Spotify Web API.
package spotify

import (
	"context"
	"fmt"

	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// Default request budget against the Web API. Spotify throttles per
// rolling 30-second window; staying under 10 req/s keeps bulk playlist
// fetches clear of 429s.
const defaultRequestsPerSecond = 10

// Client wraps the Spotify API client with convenience methods and
// client-side rate limiting.
type Client struct {
	api     *spotify.Client
	limiter *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithRateLimit sets the maximum API requests per second.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		if perSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// New creates a new Spotify client wrapper.
// The underlying client should already be authenticated.
func New(api *spotify.Client, opts ...Option) *Client {
	c := &Client{
		api:     api,
		limiter: rate.NewLimiter(rate.Limit(defaultRequestsPerSecond), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// wait blocks until the rate limiter permits the next request.
func (c *Client) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for rate limiter: %w", err)
	}
	return nil
}

// Token returns the OAuth token currently held by the underlying
// transport, including any refresh performed during earlier calls.
func (c *Client) Token() (*oauth2.Token, error) {
	return c.api.Token()
}

// UserID returns the current user's Spotify ID.
func (c *Client) UserID(ctx context.Context) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	user, err := c.api.CurrentUser(ctx)
	if err != nil {
		return "", fmt.Errorf("getting current user: %w", err)
	}
	return user.ID, nil
}

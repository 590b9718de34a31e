// Package lastfm provides Last.fm API integration for fetching track
// listening statistics.
package lastfm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"
)

const (
	baseURL   = "http://ws.audioscrobbler.com/2.0/"
	userAgent = "blendfm/1.0"
)

// Last.fm API error codes.
const (
	errCodeTrackNotFound = 6
	errCodeInvalidAPIKey = 10
	errCodeRateLimited   = 29
)

// Sentinel errors.
var (
	// ErrRateLimited is returned when the API rate limit is exceeded after retries.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrInvalidAPIKey is returned when the API key is invalid.
	ErrInvalidAPIKey = errors.New("invalid API key")

	// ErrTrackNotFound is returned when Last.fm does not know the track.
	ErrTrackNotFound = errors.New("track not found")
)

// Client is a Last.fm API client with caching and retry on rate limits.
type Client struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string

	// In-memory cache: key = "{artist}\x00{track}"
	cache   map[string]*TrackInfo
	cacheMu sync.RWMutex
}

// NewClient creates a new Last.fm API client using the given API key.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL: baseURL,
		cache:   make(map[string]*TrackInfo),
	}
}

// GetTrackInfo fetches listening statistics for a track. Results are
// cached in memory for the lifetime of the client.
func (c *Client) GetTrackInfo(ctx context.Context, artist, track string) (*TrackInfo, error) {
	cacheKey := artist + "\x00" + track

	c.cacheMu.RLock()
	cached, ok := c.cache[cacheKey]
	c.cacheMu.RUnlock()
	if ok {
		return cached, nil
	}

	params := url.Values{
		"method":      {"track.getInfo"},
		"artist":      {artist},
		"track":       {track},
		"autocorrect": {"1"},
		"format":      {"json"},
		"api_key":     {c.apiKey},
	}

	body, err := c.doRequest(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("fetching track info: %w", err)
	}

	var resp trackInfoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing track info response: %w", err)
	}

	info := resp.toTrackInfo()

	c.cacheMu.Lock()
	c.cache[cacheKey] = info
	c.cacheMu.Unlock()

	return info, nil
}

// doRequest performs an HTTP GET request with retry on rate limit.
// Retries up to 3 times with exponential backoff (1s, 2s, 4s).
func (c *Client) doRequest(ctx context.Context, params url.Values) ([]byte, error) {
	reqURL := c.baseURL + "?" + params.Encode()

	var lastErr error
	backoff := 1 * time.Second
	for attempt := 0; attempt < 4; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		body, err := c.doSingleRequest(ctx, reqURL)
		if err == nil {
			return body, nil
		}
		if !errors.Is(err, ErrRateLimited) {
			return nil, err
		}
		lastErr = err
	}

	return nil, lastErr
}

// doSingleRequest performs a single HTTP request and maps API error codes
// to sentinel errors.
func (c *Client) doSingleRequest(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error != 0 {
		switch apiErr.Error {
		case errCodeRateLimited:
			return nil, ErrRateLimited
		case errCodeInvalidAPIKey:
			return nil, ErrInvalidAPIKey
		case errCodeTrackNotFound:
			return nil, ErrTrackNotFound
		default:
			return nil, fmt.Errorf("API error %d: %s", apiErr.Error, apiErr.Message)
		}
	}

	return body, nil
}

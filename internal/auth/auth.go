// Package auth implements the terminal OAuth flow used by the blendfm
// CLI: a local callback server collects the authorization code and the
// resulting token is cached on disk for later runs.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
)

// cliRedirectURL must be registered for the Spotify app. Spotify requires
// the explicit IPv4 loopback form for local redirect URIs.
const cliRedirectURL = "http://127.0.0.1:8080/callback"

// callbackTimeout bounds how long a run waits for the browser redirect.
const callbackTimeout = 2 * time.Minute

var (
	// ErrMissingCredentials is returned when no Spotify client ID or
	// secret was configured.
	ErrMissingCredentials = errors.New("spotify client ID and secret are required")

	// ErrAuthTimeout is returned when the OAuth callback never arrives.
	ErrAuthTimeout = errors.New("timed out waiting for the OAuth callback")

	// ErrStateMismatch is returned when the callback carries a state
	// value this run did not issue.
	ErrStateMismatch = errors.New("OAuth state mismatch")
)

// Authenticator drives the CLI login flow. It requests the playlist
// scopes blendfm needs: reading private and collaborative playlists and
// creating the mixed playlist.
type Authenticator struct {
	oauth *spotifyauth.Authenticator
	cache *TokenCache
}

// New creates an Authenticator for the given Spotify app credentials,
// backed by the default on-disk token cache.
func New(clientID, clientSecret string) (*Authenticator, error) {
	if clientID == "" || clientSecret == "" {
		return nil, ErrMissingCredentials
	}

	cache, err := DefaultCache()
	if err != nil {
		return nil, fmt.Errorf("opening token cache: %w", err)
	}

	return &Authenticator{
		oauth: spotifyauth.New(
			spotifyauth.WithClientID(clientID),
			spotifyauth.WithClientSecret(clientSecret),
			spotifyauth.WithRedirectURL(cliRedirectURL),
			spotifyauth.WithScopes(
				spotifyauth.ScopePlaylistReadPrivate,
				spotifyauth.ScopePlaylistReadCollaborative,
				spotifyauth.ScopePlaylistModifyPublic,
				spotifyauth.ScopePlaylistModifyPrivate,
			),
		),
		cache: cache,
	}, nil
}

// AuthURL returns the Spotify consent URL for the given state value.
func (a *Authenticator) AuthURL(state string) string {
	return a.oauth.AuthURL(state)
}

// Authenticate returns an authenticated Spotify client, reusing the
// cached token when it is still valid or refreshable and falling back to
// a fresh browser login otherwise.
func (a *Authenticator) Authenticate(ctx context.Context) (*spotify.Client, error) {
	token, err := a.cache.Load()
	if err != nil {
		return nil, fmt.Errorf("loading cached token: %w", err)
	}

	if token != nil {
		if client, ok := a.tryCachedToken(ctx, token); ok {
			return client, nil
		}
		fmt.Fprintln(os.Stderr, "Cached Spotify token no longer works, starting a new login...")
	}

	token, err = a.browserLogin(ctx)
	if err != nil {
		return nil, err
	}
	if err := a.cache.Save(token); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not cache token: %v\n", err)
	}
	return a.client(ctx, token), nil
}

// Logout discards the cached token so the next run starts a fresh login.
func (a *Authenticator) Logout() error {
	return a.cache.Delete()
}

func (a *Authenticator) client(ctx context.Context, token *oauth2.Token) *spotify.Client {
	return spotify.New(a.oauth.Client(ctx, token), spotify.WithRetry(true))
}

// tryCachedToken probes a cached token with a cheap API call. The oauth2
// transport refreshes expired tokens transparently, so a refreshed token
// is written back to the cache on success.
func (a *Authenticator) tryCachedToken(ctx context.Context, cached *oauth2.Token) (*spotify.Client, bool) {
	client := a.client(ctx, cached)
	if _, err := client.CurrentUser(ctx); err != nil {
		return nil, false
	}

	if fresh, err := client.Token(); err == nil && fresh.AccessToken != cached.AccessToken {
		_ = a.cache.Save(fresh)
	}
	return client, true
}

// browserLogin runs the authorization-code flow: it serves the loopback
// callback, sends the user to the consent URL, and waits for the
// redirect, the timeout, or cancellation, whichever comes first.
func (a *Authenticator) browserLogin(ctx context.Context) (*oauth2.Token, error) {
	state, err := generateState()
	if err != nil {
		return nil, fmt.Errorf("generating state: %w", err)
	}

	tokenCh := make(chan *oauth2.Token, 1)
	errCh := make(chan error, 1)

	server, err := a.startCallbackServer(state, tokenCh, errCh)
	if err != nil {
		return nil, err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	fmt.Fprintln(os.Stderr, "\nblendfm needs access to your Spotify playlists.")
	fmt.Fprintln(os.Stderr, "Open this URL in your browser to continue:")
	fmt.Fprintf(os.Stderr, "\n  %s\n\n", a.oauth.AuthURL(state))
	fmt.Fprintln(os.Stderr, "Waiting for the browser redirect...")

	select {
	case token := <-tokenCh:
		return token, nil
	case err := <-errCh:
		return nil, err
	case <-time.After(callbackTimeout):
		return nil, ErrAuthTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (a *Authenticator) startCallbackServer(state string, tokenCh chan<- *oauth2.Token, errCh chan<- error) (*http.Server, error) {
	redirect, err := url.Parse(cliRedirectURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redirect URL: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(redirect.Path, func(w http.ResponseWriter, r *http.Request) {
		a.handleCallback(w, r, state, tokenCh, errCh)
	})

	server := &http.Server{Addr: redirect.Host, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("callback server: %w", err)
		}
	}()
	return server, nil
}

func (a *Authenticator) handleCallback(w http.ResponseWriter, r *http.Request, expectedState string, tokenCh chan<- *oauth2.Token, errCh chan<- error) {
	if r.URL.Query().Get("state") != expectedState {
		http.Error(w, "state mismatch", http.StatusBadRequest)
		errCh <- ErrStateMismatch
		return
	}
	if errMsg := r.URL.Query().Get("error"); errMsg != "" {
		http.Error(w, "authorization failed: "+errMsg, http.StatusBadRequest)
		errCh <- fmt.Errorf("spotify authorization error: %s", errMsg)
		return
	}

	token, err := a.oauth.Token(r.Context(), expectedState, r)
	if err != nil {
		http.Error(w, "token exchange failed", http.StatusInternalServerError)
		errCh <- fmt.Errorf("exchanging authorization code: %w", err)
		return
	}

	w.Header().Set("Content-Type", "text/html")
	fmt.Fprint(w, `<!DOCTYPE html>
<html>
<head><title>blendfm</title></head>
<body>
<h1>blendfm is connected to Spotify</h1>
<p>You can close this tab and return to the terminal.</p>
</body>
</html>`)

	tokenCh <- token
}

// generateState creates a random state value for the OAuth round trip.
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

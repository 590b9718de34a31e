// Package web provides the HTTP JSON API consumed by the blendfm UI.
package web

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/blendfm/blendfm/internal/db"
)

const (
	sessionCookieName = "session_id"
	sessionTTL        = 24 * time.Hour
)

// Session is one authenticated browser session. The Spotify token it
// carries is what the mix endpoints use to fetch and publish playlists on
// the user's behalf.
type Session struct {
	ID        string
	Token     *oauth2.Token
	UserID    string
	UserName  string
	CreatedAt time.Time
}

// SessionManager is the session backend the handlers talk to.
type SessionManager interface {
	Create(ctx context.Context, token *oauth2.Token, userID, userName string) (*Session, error)
	Get(ctx context.Context, id string) *Session
	Delete(ctx context.Context, id string)
	UpdateToken(ctx context.Context, id string, token *oauth2.Token)
	GetFromRequest(r *http.Request) *Session
	SetCookie(w http.ResponseWriter, session *Session)
	ClearCookie(w http.ResponseWriter)
}

// SessionPruner is implemented by backends that accumulate expired
// sessions and need periodic cleanup.
type SessionPruner interface {
	PruneExpired(ctx context.Context) (int64, error)
}

// MemorySessionStore keeps sessions in process memory. It is the backend
// used when blendfm runs without a database; sessions do not survive a
// restart.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*memorySession
}

type memorySession struct {
	session *Session
	expires time.Time
}

// NewMemorySessionStore creates an empty in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]*memorySession)}
}

// Create registers a new session for the user. Expired entries are
// dropped on the way, so the map never outgrows the set of live logins.
func (s *MemorySessionStore) Create(_ context.Context, token *oauth2.Token, userID, userName string) (*Session, error) {
	id, err := generateSessionID()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	session := &Session{
		ID:        id,
		Token:     token,
		UserID:    userID,
		UserName:  userName,
		CreatedAt: now,
	}

	s.mu.Lock()
	for k, e := range s.sessions {
		if now.After(e.expires) {
			delete(s.sessions, k)
		}
	}
	s.sessions[id] = &memorySession{session: session, expires: now.Add(sessionTTL)}
	s.mu.Unlock()

	return session, nil
}

// Get returns the session, or nil when it is unknown or expired.
func (s *MemorySessionStore) Get(_ context.Context, id string) *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.sessions[id]
	if !ok || time.Now().After(entry.expires) {
		return nil
	}
	return entry.session
}

// Delete removes a session.
func (s *MemorySessionStore) Delete(_ context.Context, id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// UpdateToken swaps in a refreshed Spotify token.
func (s *MemorySessionStore) UpdateToken(_ context.Context, id string, token *oauth2.Token) {
	s.mu.Lock()
	if entry, ok := s.sessions[id]; ok {
		entry.session.Token = token
	}
	s.mu.Unlock()
}

// GetFromRequest resolves the session named by the request cookie.
func (s *MemorySessionStore) GetFromRequest(r *http.Request) *Session {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return nil
	}
	return s.Get(r.Context(), cookie.Value)
}

// SetCookie attaches the session cookie to the response.
func (s *MemorySessionStore) SetCookie(w http.ResponseWriter, session *Session) {
	setSessionCookie(w, session.ID)
}

// ClearCookie expires the session cookie.
func (s *MemorySessionStore) ClearCookie(w http.ResponseWriter) {
	clearSessionCookie(w)
}

// PGSessionStore keeps sessions in PostgreSQL so logins survive restarts
// and multiple instances can share them.
type PGSessionStore struct {
	database *db.DB
}

// NewPGSessionStore creates a session store backed by the given database.
func NewPGSessionStore(database *db.DB) *PGSessionStore {
	return &PGSessionStore{database: database}
}

// Create registers a new session row for the user.
func (s *PGSessionStore) Create(ctx context.Context, token *oauth2.Token, userID, userName string) (*Session, error) {
	id, err := generateSessionID()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	err = s.database.Sessions().Create(ctx, &db.Session{
		ID:           id,
		UserID:       userID,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenExpiry:  token.Expiry,
		CreatedAt:    now,
		ExpiresAt:    now.Add(sessionTTL),
	})
	if err != nil {
		return nil, err
	}

	return &Session{
		ID:        id,
		Token:     token,
		UserID:    userID,
		UserName:  userName,
		CreatedAt: now,
	}, nil
}

// Get loads a live session and its owner's display name in one query, or
// nil when the session is unknown or expired.
func (s *PGSessionStore) Get(ctx context.Context, id string) *Session {
	stored, displayName, err := s.database.Sessions().GetWithUser(ctx, id)
	if err != nil {
		return nil
	}

	return &Session{
		ID: stored.ID,
		Token: &oauth2.Token{
			AccessToken:  stored.AccessToken,
			RefreshToken: stored.RefreshToken,
			Expiry:       stored.TokenExpiry,
			TokenType:    "Bearer",
		},
		UserID:    stored.UserID,
		UserName:  displayName,
		CreatedAt: stored.CreatedAt,
	}
}

// Delete removes a session row.
func (s *PGSessionStore) Delete(ctx context.Context, id string) {
	_ = s.database.Sessions().Delete(ctx, id)
}

// UpdateToken persists a refreshed Spotify token.
func (s *PGSessionStore) UpdateToken(ctx context.Context, id string, token *oauth2.Token) {
	_ = s.database.Sessions().UpdateToken(ctx, id, token.AccessToken, token.RefreshToken, token.Expiry)
}

// PruneExpired drops expired session rows.
func (s *PGSessionStore) PruneExpired(ctx context.Context) (int64, error) {
	return s.database.Sessions().DeleteExpired(ctx)
}

// GetFromRequest resolves the session named by the request cookie.
func (s *PGSessionStore) GetFromRequest(r *http.Request) *Session {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return nil
	}
	return s.Get(r.Context(), cookie.Value)
}

// SetCookie attaches the session cookie to the response.
func (s *PGSessionStore) SetCookie(w http.ResponseWriter, session *Session) {
	setSessionCookie(w, session.ID)
}

// ClearCookie expires the session cookie.
func (s *PGSessionStore) ClearCookie(w http.ResponseWriter) {
	clearSessionCookie(w)
}

func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func setSessionCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(sessionTTL.Seconds()),
	})
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

var (
	_ SessionManager = (*MemorySessionStore)(nil)
	_ SessionManager = (*PGSessionStore)(nil)
	_ SessionPruner  = (*PGSessionStore)(nil)
)

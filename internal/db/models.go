package db

import (
	"time"

	"github.com/google/uuid"
)

// User represents a Spotify user profile.
type User struct {
	ID          string
	DisplayName string
	Email       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastMixAt   *time.Time // nullable
}

// Session represents an authenticated web session.
type Session struct {
	ID           string
	UserID       string
	AccessToken  string
	RefreshToken string
	TokenExpiry  time.Time
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// Mix represents a generated mix and its run metadata.
type Mix struct {
	ID          uuid.UUID
	UserID      string
	Name        string
	Strategy    string
	TotalTracks int
	DurationMs  int
	StopReason  string
	PlaylistID  *string // nullable - Spotify playlist ID once saved
	CreatedAt   time.Time
}

// MixTrack represents a track at a position in a mix.
type MixTrack struct {
	MixID            uuid.UUID
	Position         int
	TrackID          string
	Name             string
	Artist           string
	URI              string
	SourcePlaylistID string
	DurationMs       int
	Popularity       int
}

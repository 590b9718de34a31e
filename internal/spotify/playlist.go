package spotify

import (
	"context"
	"errors"
	"fmt"

	"github.com/zmb3/spotify/v2"

	"github.com/blendfm/blendfm/internal/mixer"
)

const maxTracksPerRequest = 100

// Playlist summarizes a playlist the user can mix from.
type Playlist struct {
	ID         string
	Name       string
	Owner      string
	TrackCount int
}

// ListUserPlaylists retrieves all playlists in the current user's library.
func (c *Client) ListUserPlaylists(ctx context.Context) ([]Playlist, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	page, err := c.api.CurrentUsersPlaylists(ctx, spotify.Limit(50))
	if err != nil {
		return nil, fmt.Errorf("fetching playlists: %w", err)
	}

	var playlists []Playlist
	for {
		for _, p := range page.Playlists {
			playlists = append(playlists, Playlist{
				ID:         p.ID.String(),
				Name:       p.Name,
				Owner:      p.Owner.DisplayName,
				TrackCount: int(p.Tracks.Total),
			})
		}

		if err := c.wait(ctx); err != nil {
			return nil, err
		}
		err = c.api.NextPage(ctx, page)
		if errors.Is(err, spotify.ErrNoMorePages) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("fetching next playlist page: %w", err)
		}
	}
	return playlists, nil
}

// FetchPlaylistTracks retrieves all tracks from a playlist, following
// pagination. Episodes and local files are skipped.
func (c *Client) FetchPlaylistTracks(ctx context.Context, playlistID string) ([]mixer.Track, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	page, err := c.api.GetPlaylistItems(ctx, spotify.ID(playlistID), spotify.Limit(100))
	if err != nil {
		return nil, fmt.Errorf("fetching playlist %s: %w", playlistID, err)
	}

	var tracks []mixer.Track
	for {
		for _, item := range page.Items {
			if item.Track.Track == nil || item.IsLocal {
				continue
			}
			tracks = append(tracks, convertTrack(item.Track.Track))
		}

		if err := c.wait(ctx); err != nil {
			return nil, err
		}
		err = c.api.NextPage(ctx, page)
		if errors.Is(err, spotify.ErrNoMorePages) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("fetching next page of playlist %s: %w", playlistID, err)
		}
	}
	return tracks, nil
}

// convertTrack maps a Spotify track onto the mixing engine's track type.
func convertTrack(ft *spotify.FullTrack) mixer.Track {
	artists := make([]string, len(ft.Artists))
	for i, a := range ft.Artists {
		artists[i] = a.Name
	}

	return mixer.Track{
		ID:          ft.ID.String(),
		URI:         string(ft.URI),
		Name:        ft.Name,
		Artists:     artists,
		Album:       ft.Album.Name,
		ReleaseDate: ft.Album.ReleaseDate,
		DurationMs:  int(ft.Duration),
		Popularity:  int(ft.Popularity),
	}
}

// CreatePlaylist creates a new playlist for the current user.
// Returns the playlist ID.
func (c *Client) CreatePlaylist(ctx context.Context, name, description string, public bool) (string, error) {
	userID, err := c.UserID(ctx)
	if err != nil {
		return "", err
	}

	if err := c.wait(ctx); err != nil {
		return "", err
	}
	playlist, err := c.api.CreatePlaylistForUser(ctx, userID, name, description, public, false)
	if err != nil {
		return "", fmt.Errorf("creating playlist: %w", err)
	}

	return playlist.ID.String(), nil
}

// AddTracksToPlaylist adds tracks to a playlist, handling batching for large sets.
// Spotify allows max 100 tracks per request.
func (c *Client) AddTracksToPlaylist(ctx context.Context, playlistID string, trackIDs []string) error {
	if len(trackIDs) == 0 {
		return nil
	}

	ids := make([]spotify.ID, len(trackIDs))
	for i, id := range trackIDs {
		ids[i] = spotify.ID(id)
	}

	for i := 0; i < len(ids); i += maxTracksPerRequest {
		end := min(i+maxTracksPerRequest, len(ids))
		batch := ids[i:end]

		if err := c.wait(ctx); err != nil {
			return err
		}
		_, err := c.api.AddTracksToPlaylist(ctx, spotify.ID(playlistID), batch...)
		if err != nil {
			return fmt.Errorf("adding tracks (batch %d-%d): %w", i+1, end, err)
		}
	}

	return nil
}

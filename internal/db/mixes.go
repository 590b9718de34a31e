package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MixRepository handles mix database operations.
type MixRepository struct {
	pool *pgxpool.Pool
}

// Create inserts a new mix with its ordered tracks.
func (r *MixRepository) Create(ctx context.Context, mix *Mix, tracks []MixTrack) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	mixQuery := `
		INSERT INTO mixes (id, user_id, name, strategy, total_tracks, duration_ms, stop_reason, playlist_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		RETURNING created_at
	`
	if mix.ID == uuid.Nil {
		mix.ID = uuid.New()
	}
	err = tx.QueryRow(ctx, mixQuery,
		mix.ID,
		mix.UserID,
		mix.Name,
		mix.Strategy,
		mix.TotalTracks,
		mix.DurationMs,
		mix.StopReason,
		mix.PlaylistID,
	).Scan(&mix.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting mix: %w", err)
	}

	if len(tracks) > 0 {
		tracksQuery := `
			INSERT INTO mix_tracks (mix_id, position, track_id, name, artist, uri, source_playlist_id, duration_ms, popularity)
			SELECT $1, * FROM unnest($2::int[], $3::text[], $4::text[], $5::text[], $6::text[], $7::text[], $8::int[], $9::int[])
		`

		positions := make([]int, len(tracks))
		trackIDs := make([]string, len(tracks))
		names := make([]string, len(tracks))
		artists := make([]string, len(tracks))
		uris := make([]string, len(tracks))
		sourceIDs := make([]string, len(tracks))
		durations := make([]int, len(tracks))
		popularities := make([]int, len(tracks))

		for i, t := range tracks {
			positions[i] = i
			trackIDs[i] = t.TrackID
			names[i] = t.Name
			artists[i] = t.Artist
			uris[i] = t.URI
			sourceIDs[i] = t.SourcePlaylistID
			durations[i] = t.DurationMs
			popularities[i] = t.Popularity
		}

		_, err = tx.Exec(ctx, tracksQuery, mix.ID,
			positions, trackIDs, names, artists, uris, sourceIDs, durations, popularities)
		if err != nil {
			return fmt.Errorf("inserting mix tracks: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Get retrieves a mix by ID.
func (r *MixRepository) Get(ctx context.Context, id uuid.UUID) (*Mix, error) {
	query := `
		SELECT id, user_id, name, strategy, total_tracks, duration_ms, stop_reason, playlist_id, created_at
		FROM mixes
		WHERE id = $1
	`
	var mix Mix
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&mix.ID,
		&mix.UserID,
		&mix.Name,
		&mix.Strategy,
		&mix.TotalTracks,
		&mix.DurationMs,
		&mix.StopReason,
		&mix.PlaylistID,
		&mix.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying mix: %w", err)
	}
	return &mix, nil
}

// GetForUser retrieves all mixes for a user, newest first.
func (r *MixRepository) GetForUser(ctx context.Context, userID string) ([]Mix, error) {
	query := `
		SELECT id, user_id, name, strategy, total_tracks, duration_ms, stop_reason, playlist_id, created_at
		FROM mixes
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("querying user mixes: %w", err)
	}
	defer rows.Close()

	var mixes []Mix
	for rows.Next() {
		var mix Mix
		if err := rows.Scan(
			&mix.ID,
			&mix.UserID,
			&mix.Name,
			&mix.Strategy,
			&mix.TotalTracks,
			&mix.DurationMs,
			&mix.StopReason,
			&mix.PlaylistID,
			&mix.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning mix: %w", err)
		}
		mixes = append(mixes, mix)
	}
	return mixes, rows.Err()
}

// GetTracks retrieves the tracks of a mix in playlist order.
func (r *MixRepository) GetTracks(ctx context.Context, mixID uuid.UUID) ([]MixTrack, error) {
	query := `
		SELECT mix_id, position, track_id, name, artist, uri, source_playlist_id, duration_ms, popularity
		FROM mix_tracks
		WHERE mix_id = $1
		ORDER BY position
	`
	rows, err := r.pool.Query(ctx, query, mixID)
	if err != nil {
		return nil, fmt.Errorf("querying mix tracks: %w", err)
	}
	defer rows.Close()

	var tracks []MixTrack
	for rows.Next() {
		var track MixTrack
		if err := rows.Scan(
			&track.MixID,
			&track.Position,
			&track.TrackID,
			&track.Name,
			&track.Artist,
			&track.URI,
			&track.SourcePlaylistID,
			&track.DurationMs,
			&track.Popularity,
		); err != nil {
			return nil, fmt.Errorf("scanning mix track: %w", err)
		}
		tracks = append(tracks, track)
	}
	return tracks, rows.Err()
}

// SetPlaylistID records the Spotify playlist ID a mix was saved to.
func (r *MixRepository) SetPlaylistID(ctx context.Context, mixID uuid.UUID, playlistID string) error {
	query := `UPDATE mixes SET playlist_id = $2 WHERE id = $1`
	result, err := r.pool.Exec(ctx, query, mixID, playlistID)
	if err != nil {
		return fmt.Errorf("updating playlist ID: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a mix by ID.
func (r *MixRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM mixes WHERE id = $1`
	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("deleting mix: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

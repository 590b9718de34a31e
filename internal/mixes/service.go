// Package mixes provides the service that turns source playlists into
// persisted mixes.
package mixes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/blendfm/blendfm/internal/analysis"
	"github.com/blendfm/blendfm/internal/db"
	"github.com/blendfm/blendfm/internal/mixer"
	"github.com/blendfm/blendfm/internal/popularity"
)

// Common errors.
var (
	// ErrNoSources is returned when a request names no source playlists.
	ErrNoSources = errors.New("no source playlists configured")

	// ErrAlreadySaved is returned when a mix already has a Spotify playlist.
	ErrAlreadySaved = errors.New("mix already saved to Spotify")

	// ErrNotOwner is returned when a mix belongs to a different user.
	ErrNotOwner = errors.New("mix belongs to another user")

	// ErrNoDatabase is returned by persistence operations when the
	// service was created without a database.
	ErrNoDatabase = errors.New("persistence is not configured")
)

// SourceFetcher loads the tracks of a source playlist.
type SourceFetcher interface {
	FetchPlaylistTracks(ctx context.Context, playlistID string) ([]mixer.Track, error)
}

// Enricher fills in missing popularity scores before mixing.
type Enricher interface {
	Enrich(ctx context.Context, tracks []mixer.Track) ([]mixer.Track, []popularity.Enrichment, error)
}

// Publisher writes a finished mix back to Spotify.
type Publisher interface {
	CreatePlaylist(ctx context.Context, name, description string, public bool) (string, error)
	AddTracksToPlaylist(ctx context.Context, playlistID string, trackIDs []string) error
}

// Service generates, persists and publishes mixes.
type Service struct {
	db       *db.DB // nil disables persistence
	enricher Enricher
	logger   *log.Logger
	mixOpts  []mixer.Option
}

// Option configures a Service.
type Option func(*Service)

// WithEnricher sets the popularity enricher applied before mixing.
func WithEnricher(e Enricher) Option {
	return func(s *Service) {
		s.enricher = e
	}
}

// WithLogger sets the service logger, which is also passed to the mixer.
func WithLogger(logger *log.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMixerOptions forwards additional options to every mixer run.
func WithMixerOptions(opts ...mixer.Option) Option {
	return func(s *Service) {
		s.mixOpts = append(s.mixOpts, opts...)
	}
}

// New creates a new mix service. A nil database is allowed; results are
// then returned without being persisted.
func New(database *db.DB, opts ...Option) *Service {
	s := &Service{
		db:     database,
		logger: log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Request describes one mix run.
type Request struct {
	Name    string
	Ratios  map[string]mixer.SourceRatio
	Options mixer.Options
}

// RunResult contains the outcome of a mix run.
type RunResult struct {
	Mix      *db.Mix // nil when persistence is disabled
	Result   mixer.Result
	Stats    mixer.Statistics
	Segments []analysis.Segment
}

// Run fetches the configured sources, enriches them, runs the mixer and
// persists the result for the user.
func (s *Service) Run(ctx context.Context, fetcher SourceFetcher, userID string, req Request) (*RunResult, error) {
	sources, err := s.fetchSources(ctx, fetcher, req.Ratios)
	if err != nil {
		return nil, err
	}

	result := mixer.Mix(sources, req.Ratios, req.Options, s.mixerOptions()...)
	stats := mixer.CalculateStatistics(result.Tracks, sources, req.Ratios)

	segments, err := analysis.ProfileShape(result.Tracks, analysis.DefaultSegments)
	if err != nil {
		s.logger.Warn("profiling mix shape failed", "err", err)
		segments = nil
	}

	run := &RunResult{
		Result:   result,
		Stats:    stats,
		Segments: segments,
	}

	if s.db == nil || result.Reason == mixer.StopInvalidConfig {
		return run, nil
	}

	mix := &db.Mix{
		UserID:      userID,
		Name:        mixName(req.Name),
		Strategy:    req.Options.PopularityStrategy,
		TotalTracks: len(result.Tracks),
		DurationMs:  totalDurationMs(result.Tracks),
		StopReason:  string(result.Reason),
	}
	if err := s.db.Mixes().Create(ctx, mix, toMixTracks(result.Tracks)); err != nil {
		return nil, fmt.Errorf("persisting mix: %w", err)
	}
	if err := s.db.Users().UpdateLastMix(ctx, userID, time.Now()); err != nil && !errors.Is(err, db.ErrNotFound) {
		s.logger.Warn("updating last mix time failed", "user", userID, "err", err)
	}

	run.Mix = mix
	return run, nil
}

// Preview runs the mixer against the first tracks of a would-be mix
// without persisting anything.
func (s *Service) Preview(ctx context.Context, fetcher SourceFetcher, req Request) (*RunResult, error) {
	sources, err := s.fetchSources(ctx, fetcher, req.Ratios)
	if err != nil {
		return nil, err
	}

	result := mixer.Preview(sources, req.Ratios, req.Options, s.mixerOptions()...)
	return &RunResult{
		Result: result,
		Stats:  mixer.CalculateStatistics(result.Tracks, sources, req.Ratios),
	}, nil
}

// Validate fetches the sources and checks the configuration without
// producing a mix.
func (s *Service) Validate(ctx context.Context, fetcher SourceFetcher, req Request) (*mixer.ValidationResult, error) {
	sources, err := s.fetchSources(ctx, fetcher, req.Ratios)
	if err != nil {
		return nil, err
	}

	result := mixer.ValidateConfig(sources, req.Ratios, req.Options)
	return &result, nil
}

// SaveToSpotify publishes a persisted mix as a new Spotify playlist and
// records the playlist ID. Returns the playlist ID.
func (s *Service) SaveToSpotify(ctx context.Context, publisher Publisher, userID string, mixID uuid.UUID) (string, error) {
	if s.db == nil {
		return "", ErrNoDatabase
	}
	mix, err := s.db.Mixes().Get(ctx, mixID)
	if err != nil {
		return "", fmt.Errorf("loading mix: %w", err)
	}
	if mix.UserID != userID {
		return "", ErrNotOwner
	}
	if mix.PlaylistID != nil {
		return "", ErrAlreadySaved
	}

	tracks, err := s.db.Mixes().GetTracks(ctx, mixID)
	if err != nil {
		return "", fmt.Errorf("loading mix tracks: %w", err)
	}

	description := fmt.Sprintf("Mixed by blendfm on %s", mix.CreatedAt.Format("Jan 2, 2006"))
	playlistID, err := publisher.CreatePlaylist(ctx, mix.Name, description, false)
	if err != nil {
		return "", fmt.Errorf("creating playlist: %w", err)
	}

	trackIDs := make([]string, len(tracks))
	for i, t := range tracks {
		trackIDs[i] = t.TrackID
	}
	if err := publisher.AddTracksToPlaylist(ctx, playlistID, trackIDs); err != nil {
		return "", fmt.Errorf("adding tracks to playlist: %w", err)
	}

	if err := s.db.Mixes().SetPlaylistID(ctx, mixID, playlistID); err != nil {
		return "", fmt.Errorf("recording playlist ID: %w", err)
	}

	s.logger.Info("mix saved to Spotify", "mix", mixID, "playlist", playlistID, "tracks", len(trackIDs))
	return playlistID, nil
}

// GetUserMixes retrieves all persisted mixes for a user.
func (s *Service) GetUserMixes(ctx context.Context, userID string) ([]db.Mix, error) {
	if s.db == nil {
		return nil, ErrNoDatabase
	}
	mixes, err := s.db.Mixes().GetForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("getting user mixes: %w", err)
	}
	return mixes, nil
}

// DeleteMix removes a persisted mix and its tracks. The Spotify playlist,
// if the mix was saved, is left alone.
func (s *Service) DeleteMix(ctx context.Context, userID string, mixID uuid.UUID) error {
	if s.db == nil {
		return ErrNoDatabase
	}
	mix, err := s.db.Mixes().Get(ctx, mixID)
	if err != nil {
		return fmt.Errorf("loading mix: %w", err)
	}
	if mix.UserID != userID {
		return ErrNotOwner
	}
	if err := s.db.Mixes().Delete(ctx, mixID); err != nil {
		return fmt.Errorf("deleting mix: %w", err)
	}
	s.logger.Info("mix deleted", "mix", mixID, "user", userID)
	return nil
}

// GetMixTracks retrieves the ordered tracks of a persisted mix.
func (s *Service) GetMixTracks(ctx context.Context, mixID uuid.UUID) ([]db.MixTrack, error) {
	if s.db == nil {
		return nil, ErrNoDatabase
	}
	tracks, err := s.db.Mixes().GetTracks(ctx, mixID)
	if err != nil {
		return nil, fmt.Errorf("getting mix tracks: %w", err)
	}
	return tracks, nil
}

// fetchSources loads every configured source playlist in a stable order
// and applies popularity enrichment when configured.
func (s *Service) fetchSources(ctx context.Context, fetcher SourceFetcher, ratios map[string]mixer.SourceRatio) (map[string][]mixer.Track, error) {
	if len(ratios) == 0 {
		return nil, ErrNoSources
	}

	ids := make([]string, 0, len(ratios))
	for id := range ratios {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	sources := make(map[string][]mixer.Track, len(ids))
	for _, id := range ids {
		tracks, err := fetcher.FetchPlaylistTracks(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("fetching source %s: %w", id, err)
		}
		s.logger.Debug("fetched source playlist", "playlist", id, "tracks", len(tracks))

		if s.enricher != nil {
			enriched, results, err := s.enricher.Enrich(ctx, tracks)
			if err != nil {
				return nil, fmt.Errorf("enriching source %s: %w", id, err)
			}
			for _, r := range results {
				if r.Error != nil {
					s.logger.Debug("popularity lookup failed", "track", r.TrackID, "err", r.Error)
				}
			}
			tracks = enriched
		}

		sources[id] = tracks
	}
	return sources, nil
}

func (s *Service) mixerOptions() []mixer.Option {
	return append([]mixer.Option{mixer.WithLogger(s.logger)}, s.mixOpts...)
}

func mixName(name string) string {
	if name != "" {
		return name
	}
	return "Blend " + time.Now().Format("Jan 2, 2006")
}

func totalDurationMs(tracks []mixer.MixedTrack) int {
	var total int
	for _, t := range tracks {
		total += t.DurationMs
	}
	return total
}

func toMixTracks(tracks []mixer.MixedTrack) []db.MixTrack {
	out := make([]db.MixTrack, len(tracks))
	for i, t := range tracks {
		out[i] = db.MixTrack{
			Position:         i,
			TrackID:          t.ID,
			Name:             t.Name,
			Artist:           t.Artist(),
			URI:              t.URI,
			SourcePlaylistID: t.SourcePlaylistID,
			DurationMs:       t.DurationMs,
			Popularity:       t.Popularity,
		}
	}
	return out
}

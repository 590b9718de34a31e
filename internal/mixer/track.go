// Package mixer implements the playlist mixing engine: a deterministic,
// weighted, multi-source interleaving of tracks into a single playlist,
// shaped by a position-dependent popularity strategy.
package mixer

import (
	"math"
	"strings"
	"time"
)

// Track is a single song as delivered by a source playlist.
type Track struct {
	ID          string
	URI         string
	Name        string
	Artists     []string
	Album       string
	ReleaseDate string // "2006-01-02", "2006-01" or "2006"; empty when unknown
	DurationMs  int
	Popularity  int // 0-100 as reported by the source, 0 when absent
}

// Artist joins the track's artist names for display.
func (t Track) Artist() string {
	return strings.Join(t.Artists, ", ")
}

// AnnotatedTrack is a Track with derived popularity fields. Computed once
// per mixing run and never mutated afterwards.
type AnnotatedTrack struct {
	Track
	BasePopularity     int
	RecencyBonus       float64 // rounded to one decimal place
	AdjustedPopularity float64
	ReleaseYear        int // 0 when the release date is unknown
}

// MixedTrack is one element of the mixer output, tagged with the source
// playlist it was drawn from. The order of MixedTracks in a result is the
// playlist order and is never re-sorted.
type MixedTrack struct {
	Track
	SourcePlaylistID string
}

const (
	// recencyWindowDays is how long after release a track earns a bonus.
	recencyWindowDays = 730

	// maxRecencyBonus is the bonus for a track released today.
	maxRecencyBonus = 20.0
)

// Annotate computes the derived popularity fields for a track. Missing or
// unparseable fields degrade to zero values; Annotate never fails.
//
// The exposed RecencyBonus is rounded to one decimal place, but the
// adjusted popularity sum uses the unrounded bonus.
func Annotate(t Track, recencyBoost bool, now time.Time) AnnotatedTrack {
	at := AnnotatedTrack{
		Track:          t,
		BasePopularity: t.Popularity,
	}

	released, ok := parseReleaseDate(t.ReleaseDate)
	if ok {
		at.ReleaseYear = released.Year()
	}

	if !recencyBoost || !ok {
		at.AdjustedPopularity = float64(at.BasePopularity)
		return at
	}

	// Pre-release dates (days < 0) clamp to the maximum bonus.
	days := now.Sub(released).Hours() / 24
	var bonus float64
	if days < recencyWindowDays {
		bonus = math.Min(maxRecencyBonus, math.Max(0, maxRecencyBonus*(1-days/recencyWindowDays)))
	}

	at.RecencyBonus = math.Round(bonus*10) / 10
	at.AdjustedPopularity = math.Min(100, float64(at.BasePopularity)+bonus)
	return at
}

// parseReleaseDate handles the date precisions Spotify reports: full date,
// year-month, or bare year.
func parseReleaseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{"2006-01-02", "2006-01", "2006"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

package mixer

import (
	"fmt"
	"math"
	"slices"
)

// WeightType selects how a source's contribution is accounted.
type WeightType string

const (
	// WeightFrequency weights by number of tracks drawn.
	WeightFrequency WeightType = "frequency"
	// WeightTime weights by accumulated playback duration.
	WeightTime WeightType = "time"
)

// SourceRatio controls how much of the output one source contributes.
type SourceRatio struct {
	Min        int
	Max        int
	Weight     float64
	WeightType WeightType
}

// Options configures a mixing run.
type Options struct {
	// TotalSongs is the requested output length when neither UseTimeLimit
	// nor UseAllSongs is set.
	TotalSongs int

	// TargetDurationMinutes is the output length target when UseTimeLimit
	// is set.
	TargetDurationMinutes int
	UseTimeLimit          bool

	// UseAllSongs drains every source to exhaustion, ignoring TotalSongs
	// and the duration target as hard caps.
	UseAllSongs bool

	ShuffleWithinGroups bool
	PopularityStrategy  string
	RecencyBoost        bool

	// ContinueWhenPlaylistEmpty keeps drawing from the remaining sources
	// after one runs out. When false the whole run stops as soon as any
	// source is exhausted, guaranteeing the configured ratio balance for
	// the entire output at the cost of possibly stopping early.
	ContinueWhenPlaylistEmpty bool
}

// ValidationResult is the outcome of ValidateConfig.
type ValidationResult struct {
	IsValid bool
	Errors  []string
}

// ValidateConfig checks a mixing configuration without running it. All
// problems are reported together so a form UI can surface them inline.
func ValidateConfig(sources map[string][]Track, ratios map[string]SourceRatio, opts Options) ValidationResult {
	var errs []string

	if len(ratios) == 0 {
		errs = append(errs, "ratio configuration is empty")
	}

	if opts.UseTimeLimit && opts.TargetDurationMinutes <= 0 {
		errs = append(errs, fmt.Sprintf("target duration must be positive, got %d", opts.TargetDurationMinutes))
	}
	if !opts.UseTimeLimit && !opts.UseAllSongs && opts.TotalSongs <= 0 {
		errs = append(errs, fmt.Sprintf("total songs must be positive, got %d", opts.TotalSongs))
	}

	for _, id := range sortedIDs(ratios) {
		r := ratios[id]
		if r.Min < 0 {
			errs = append(errs, fmt.Sprintf("source %s: min must not be negative, got %d", id, r.Min))
		}
		if r.Max < r.Min {
			errs = append(errs, fmt.Sprintf("source %s: max (%d) must not be below min (%d)", id, r.Max, r.Min))
		}
		if r.Weight <= 0 {
			errs = append(errs, fmt.Sprintf("source %s: weight must be positive, got %g", id, r.Weight))
		}
		if r.WeightType != "" && r.WeightType != WeightFrequency && r.WeightType != WeightTime {
			errs = append(errs, fmt.Sprintf("source %s: unknown weight type %q", id, r.WeightType))
		}
	}

	if len(ratios) > 0 && len(activeSources(cleanSources(sources), ratios)) == 0 {
		errs = append(errs, "no configured source has any usable tracks")
	}

	return ValidationResult{IsValid: len(errs) == 0, Errors: errs}
}

// sourceTarget is one source's computed quota.
type sourceTarget struct {
	count      int
	durationMs int // duration-equivalent of count, for time accounting
	avgMs      int // observed average track duration for the source
}

// quotas holds the result of computeTargets.
type quotas struct {
	estimatedTotal int
	totalWeight    float64
	perSource      map[string]sourceTarget
}

// fallbackAvgTrackMs stands in for the observed average when a source
// reports no durations at all.
const fallbackAvgTrackMs = 210_000

// computeTargets converts the ratio configuration and the global target
// into per-source target counts and an estimated output length. The
// sources map must already be cleaned.
func computeTargets(sources map[string][]Track, ratios map[string]SourceRatio, opts Options) quotas {
	active := activeSources(sources, ratios)

	q := quotas{perSource: make(map[string]sourceTarget, len(active))}
	for _, id := range active {
		q.totalWeight += ratios[id].Weight
	}
	if q.totalWeight <= 0 {
		return q
	}

	for _, id := range active {
		tracks := sources[id]
		ratio := ratios[id]
		avg := averageDurationMs(tracks)

		var count int
		switch {
		case opts.UseAllSongs:
			count = len(tracks)
		case opts.UseTimeLimit:
			shareMinutes := ratio.Weight / q.totalWeight * float64(opts.TargetDurationMinutes)
			// Round down so the duration cap is not overshot.
			count = int(shareMinutes * 60_000 / float64(avg))
			count = clamp(count, ratio.Min, ratio.Max)
		default:
			count = int(math.Round(float64(opts.TotalSongs) * ratio.Weight / q.totalWeight))
			count = clamp(count, ratio.Min, ratio.Max)
		}

		q.perSource[id] = sourceTarget{
			count:      count,
			durationMs: count * avg,
			avgMs:      avg,
		}
	}

	switch {
	case opts.UseAllSongs, opts.UseTimeLimit:
		for _, t := range q.perSource {
			q.estimatedTotal += t.count
		}
	default:
		q.estimatedTotal = opts.TotalSongs
	}
	return q
}

// activeSources returns, in canonical order, the ids present in both the
// ratio configuration and the cleaned track map with at least one track.
func activeSources(sources map[string][]Track, ratios map[string]SourceRatio) []string {
	var active []string
	for _, id := range sortedIDs(ratios) {
		if len(sources[id]) > 0 {
			active = append(active, id)
		}
	}
	return active
}

// sortedIDs gives map iteration a stable, canonical order.
func sortedIDs[V any](m map[string]V) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func averageDurationMs(tracks []Track) int {
	var sum, n int
	for _, t := range tracks {
		if t.DurationMs > 0 {
			sum += t.DurationMs
			n++
		}
	}
	if n == 0 {
		return fallbackAvgTrackMs
	}
	return sum / n
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if hi >= lo && v > hi {
		return hi
	}
	return v
}

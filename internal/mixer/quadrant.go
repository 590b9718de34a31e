package mixer

import (
	"math/rand/v2"
	"time"
)

// Tier is one of the four popularity bands a source's tracks are
// partitioned into.
type Tier int

const (
	TierTopHits  Tier = iota // adjusted popularity >= 80
	TierPopular              // [60, 80)
	TierModerate             // [40, 60)
	TierDeepCuts             // < 40
)

// String returns the tier name used in logs and statistics.
func (t Tier) String() string {
	switch t {
	case TierTopHits:
		return "top-hits"
	case TierPopular:
		return "popular"
	case TierModerate:
		return "moderate"
	case TierDeepCuts:
		return "deep-cuts"
	default:
		return "unknown"
	}
}

// Tier thresholds on adjusted popularity.
const (
	topHitsThreshold  = 80
	popularThreshold  = 60
	moderateThreshold = 40
)

// Quadrants holds a source's annotated tracks partitioned into the four
// popularity tiers. The partition is total and disjoint.
type Quadrants struct {
	TopHits  []AnnotatedTrack
	Popular  []AnnotatedTrack
	Moderate []AnnotatedTrack
	DeepCuts []AnnotatedTrack
}

// Tier returns the tracks in a single tier.
func (q Quadrants) Tier(t Tier) []AnnotatedTrack {
	switch t {
	case TierTopHits:
		return q.TopHits
	case TierPopular:
		return q.Popular
	case TierModerate:
		return q.Moderate
	case TierDeepCuts:
		return q.DeepCuts
	default:
		return nil
	}
}

// All returns every track across the four tiers, top hits first.
func (q Quadrants) All() []AnnotatedTrack {
	all := make([]AnnotatedTrack, 0, q.Len())
	all = append(all, q.TopHits...)
	all = append(all, q.Popular...)
	all = append(all, q.Moderate...)
	all = append(all, q.DeepCuts...)
	return all
}

// Len returns the total number of tracks across all tiers.
func (q Quadrants) Len() int {
	return len(q.TopHits) + len(q.Popular) + len(q.Moderate) + len(q.DeepCuts)
}

// PoolConfig holds the inputs BuildPools needs besides the tracks.
type PoolConfig struct {
	RecencyBoost        bool
	ShuffleWithinGroups bool
	Rand                *rand.Rand // required when ShuffleWithinGroups is set
	Now                 time.Time  // zero value means time.Now()
}

// BuildPools annotates each source's tracks and partitions them into
// popularity quadrants. Insertion order is preserved within each tier
// unless ShuffleWithinGroups is set, in which case each tier is shuffled
// independently. Sources left with zero tracks are dropped from the
// result; callers treat a missing source id as fully exhausted.
func BuildPools(sources map[string][]Track, cfg PoolConfig) map[string]Quadrants {
	now := cfg.Now
	if now.IsZero() {
		now = time.Now()
	}

	pools := make(map[string]Quadrants, len(sources))
	for id, tracks := range sources {
		if len(tracks) == 0 {
			continue
		}

		var q Quadrants
		for _, t := range tracks {
			at := Annotate(t, cfg.RecencyBoost, now)
			switch {
			case at.AdjustedPopularity >= topHitsThreshold:
				q.TopHits = append(q.TopHits, at)
			case at.AdjustedPopularity >= popularThreshold:
				q.Popular = append(q.Popular, at)
			case at.AdjustedPopularity >= moderateThreshold:
				q.Moderate = append(q.Moderate, at)
			default:
				q.DeepCuts = append(q.DeepCuts, at)
			}
		}

		if cfg.ShuffleWithinGroups && cfg.Rand != nil {
			q.TopHits = Shuffle(cfg.Rand, q.TopHits)
			q.Popular = Shuffle(cfg.Rand, q.Popular)
			q.Moderate = Shuffle(cfg.Rand, q.Moderate)
			q.DeepCuts = Shuffle(cfg.Rand, q.DeepCuts)
		}

		pools[id] = q
	}
	return pools
}

// cleanSources drops tracks missing the fields the mixer requires and
// sources left empty after cleaning. Data-quality problems are absorbed
// here rather than surfaced as errors.
func cleanSources(sources map[string][]Track) map[string][]Track {
	cleaned := make(map[string][]Track, len(sources))
	for id, tracks := range sources {
		var kept []Track
		for _, t := range tracks {
			if t.ID == "" || t.URI == "" || t.Name == "" {
				continue
			}
			if t.DurationMs < 0 {
				t.DurationMs = 0
			}
			kept = append(kept, t)
		}
		if len(kept) > 0 {
			cleaned[id] = kept
		}
	}
	return cleaned
}

package mixer

import "github.com/charmbracelet/log"

// Strategy names accepted in MixOptions.PopularityStrategy.
const (
	StrategyMixed       = "mixed"
	StrategyFrontLoaded = "front-loaded"
	StrategyMidPeak     = "mid-peak"
	StrategyCrescendo   = "crescendo"
)

// Strategy decides which popularity tiers are preferred at a given point
// in the output playlist. The position ratio runs from 0.0 (start) to 1.0
// (end).
type Strategy interface {
	Name() string
	Tiers(positionRatio float64) []Tier
}

// StrategyFor resolves a strategy by name. Unknown names are not an
// error: a warning is logged and the mixed strategy is returned.
func StrategyFor(name string, logger *log.Logger) Strategy {
	switch name {
	case StrategyMixed, "":
		return mixedStrategy{}
	case StrategyFrontLoaded:
		return frontLoadedStrategy{}
	case StrategyMidPeak:
		return midPeakStrategy{}
	case StrategyCrescendo:
		return crescendoStrategy{}
	default:
		if logger != nil {
			logger.Warn("unknown popularity strategy, using mixed", "strategy", name)
		}
		return mixedStrategy{}
	}
}

// mixedStrategy treats every tier as eligible regardless of position.
type mixedStrategy struct{}

func (mixedStrategy) Name() string { return StrategyMixed }

func (mixedStrategy) Tiers(float64) []Tier {
	return []Tier{TierTopHits, TierPopular, TierModerate, TierDeepCuts}
}

// frontLoadedStrategy puts the hits first and winds down into deep cuts.
type frontLoadedStrategy struct{}

func (frontLoadedStrategy) Name() string { return StrategyFrontLoaded }

func (frontLoadedStrategy) Tiers(r float64) []Tier {
	switch {
	case r < 0.3:
		return []Tier{TierTopHits, TierPopular}
	case r < 0.6:
		return []Tier{TierModerate, TierPopular}
	default:
		return []Tier{TierDeepCuts, TierModerate}
	}
}

// midPeakStrategy builds toward the hits in the middle and tapers off on
// both ends.
type midPeakStrategy struct{}

func (midPeakStrategy) Name() string { return StrategyMidPeak }

func (midPeakStrategy) Tiers(r float64) []Tier {
	switch {
	case r < 0.2:
		return []Tier{TierModerate, TierDeepCuts}
	case r < 0.4:
		return []Tier{TierPopular, TierModerate}
	case r < 0.6:
		return []Tier{TierTopHits, TierPopular}
	case r < 0.8:
		return []Tier{TierPopular, TierModerate}
	default:
		return []Tier{TierModerate, TierDeepCuts}
	}
}

// crescendoStrategy starts in the deep cuts and climbs to the hits.
type crescendoStrategy struct{}

func (crescendoStrategy) Name() string { return StrategyCrescendo }

func (crescendoStrategy) Tiers(r float64) []Tier {
	switch {
	case r < 0.3:
		return []Tier{TierDeepCuts, TierModerate}
	case r < 0.6:
		return []Tier{TierModerate, TierPopular}
	default:
		return []Tier{TierPopular, TierTopHits}
	}
}

// eligibleTracks returns the tracks a strategy prefers for one source at
// the given output position, plus the remaining tracks as a fallback. The
// fallback carries the union of all tiers minus the preferred tracks,
// de-duplicated by id, so a source never comes up empty while it still
// has tracks at all.
func eligibleTracks(q Quadrants, s Strategy, position, totalLength int) (preferred, fallback []AnnotatedTrack) {
	ratio := 0.0
	if totalLength > 0 {
		ratio = float64(position) / float64(totalLength)
	}

	seen := make(map[string]bool)
	for _, tier := range s.Tiers(ratio) {
		for _, t := range q.Tier(tier) {
			if seen[t.ID] {
				continue
			}
			seen[t.ID] = true
			preferred = append(preferred, t)
		}
	}

	for _, t := range q.All() {
		if seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		fallback = append(fallback, t)
	}
	return preferred, fallback
}

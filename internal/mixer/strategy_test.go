package mixer

import (
	"io"
	"slices"
	"testing"

	"github.com/charmbracelet/log"
)

func TestStrategyFor(t *testing.T) {
	tests := []struct {
		name     string
		strategy string
		want     string
	}{
		{name: "mixed", strategy: StrategyMixed, want: StrategyMixed},
		{name: "front-loaded", strategy: StrategyFrontLoaded, want: StrategyFrontLoaded},
		{name: "mid-peak", strategy: StrategyMidPeak, want: StrategyMidPeak},
		{name: "crescendo", strategy: StrategyCrescendo, want: StrategyCrescendo},
		{name: "empty defaults to mixed", strategy: "", want: StrategyMixed},
		{name: "unknown falls back to mixed", strategy: "nonexistent", want: StrategyMixed},
	}

	logger := log.New(io.Discard)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StrategyFor(tt.strategy, logger).Name(); got != tt.want {
				t.Errorf("StrategyFor(%q).Name() = %q, want %q", tt.strategy, got, tt.want)
			}
		})
	}
}

func TestStrategyTiers(t *testing.T) {
	tests := []struct {
		strategy string
		ratio    float64
		want     []Tier
	}{
		{StrategyMixed, 0.0, []Tier{TierTopHits, TierPopular, TierModerate, TierDeepCuts}},
		{StrategyMixed, 0.9, []Tier{TierTopHits, TierPopular, TierModerate, TierDeepCuts}},

		{StrategyFrontLoaded, 0.0, []Tier{TierTopHits, TierPopular}},
		{StrategyFrontLoaded, 0.29, []Tier{TierTopHits, TierPopular}},
		{StrategyFrontLoaded, 0.3, []Tier{TierModerate, TierPopular}},
		{StrategyFrontLoaded, 0.59, []Tier{TierModerate, TierPopular}},
		{StrategyFrontLoaded, 0.6, []Tier{TierDeepCuts, TierModerate}},
		{StrategyFrontLoaded, 1.0, []Tier{TierDeepCuts, TierModerate}},

		{StrategyMidPeak, 0.0, []Tier{TierModerate, TierDeepCuts}},
		{StrategyMidPeak, 0.2, []Tier{TierPopular, TierModerate}},
		{StrategyMidPeak, 0.4, []Tier{TierTopHits, TierPopular}},
		{StrategyMidPeak, 0.59, []Tier{TierTopHits, TierPopular}},
		{StrategyMidPeak, 0.6, []Tier{TierPopular, TierModerate}},
		{StrategyMidPeak, 0.8, []Tier{TierModerate, TierDeepCuts}},

		{StrategyCrescendo, 0.0, []Tier{TierDeepCuts, TierModerate}},
		{StrategyCrescendo, 0.3, []Tier{TierModerate, TierPopular}},
		{StrategyCrescendo, 0.6, []Tier{TierPopular, TierTopHits}},
		{StrategyCrescendo, 1.0, []Tier{TierPopular, TierTopHits}},
	}

	for _, tt := range tests {
		s := StrategyFor(tt.strategy, nil)
		got := s.Tiers(tt.ratio)
		if !slices.Equal(got, tt.want) {
			t.Errorf("%s at %.2f: tiers = %v, want %v", tt.strategy, tt.ratio, got, tt.want)
		}
	}
}

func TestEligibleTracksFallback(t *testing.T) {
	// Source has only deep cuts; at the start of a front-loaded mix the
	// preferred tiers are empty, so everything lands in the fallback.
	q := BuildPools(map[string][]Track{
		"a": {testTrack("1", 10), testTrack("2", 20)},
	}, PoolConfig{})["a"]

	preferred, fallback := eligibleTracks(q, frontLoadedStrategy{}, 0, 10)

	if len(preferred) != 0 {
		t.Errorf("preferred = %d tracks, want 0", len(preferred))
	}
	if len(fallback) != 2 {
		t.Errorf("fallback = %d tracks, want 2", len(fallback))
	}
}

func TestEligibleTracksPreferredFirst(t *testing.T) {
	q := BuildPools(map[string][]Track{
		"a": {testTrack("hit", 95), testTrack("deep", 10)},
	}, PoolConfig{})["a"]

	// Position 0 of a front-loaded mix prefers the hit tiers.
	preferred, fallback := eligibleTracks(q, frontLoadedStrategy{}, 0, 10)

	if len(preferred) != 1 || preferred[0].ID != "hit" {
		t.Fatalf("preferred = %v, want just the hit", trackIDs(preferred))
	}
	if len(fallback) != 1 || fallback[0].ID != "deep" {
		t.Fatalf("fallback = %v, want just the deep cut", trackIDs(fallback))
	}
}

func TestEligibleTracksZeroTotalLength(t *testing.T) {
	q := BuildPools(map[string][]Track{"a": {testTrack("1", 95)}}, PoolConfig{})["a"]

	// Degenerate total length must not divide by zero; ratio is treated as 0.
	preferred, _ := eligibleTracks(q, frontLoadedStrategy{}, 0, 0)
	if len(preferred) != 1 {
		t.Errorf("preferred = %d tracks, want 1", len(preferred))
	}
}

func trackIDs(tracks []AnnotatedTrack) []string {
	ids := make([]string, len(tracks))
	for i, at := range tracks {
		ids[i] = at.ID
	}
	return ids
}

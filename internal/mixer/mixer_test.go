package mixer

import (
	"math/rand/v2"
	"testing"
)

func seeded() Option {
	return WithRand(rand.New(rand.NewPCG(1, 2)))
}

// twoSources builds the scenario used across the orchestrator tests: one
// source full of hits, one full of deep cuts.
func twoSources() (map[string][]Track, map[string]SourceRatio) {
	sources := map[string][]Track{
		"a": manyTracks("a", 5, 90, 180_000),
		"b": manyTracks("b", 5, 10, 180_000),
	}
	ratios := map[string]SourceRatio{
		"a": {Min: 0, Max: 10, Weight: 1},
		"b": {Min: 0, Max: 10, Weight: 1},
	}
	return sources, ratios
}

func countBySource(tracks []MixedTrack) map[string]int {
	counts := make(map[string]int)
	for _, t := range tracks {
		counts[t.SourcePlaylistID]++
	}
	return counts
}

func TestMixBalancedSplit(t *testing.T) {
	sources, ratios := twoSources()

	res := Mix(sources, ratios, Options{
		TotalSongs:         6,
		PopularityStrategy: StrategyMixed,
	}, seeded())

	if res.Reason != StopTargetReached {
		t.Fatalf("Reason = %s, want %s", res.Reason, StopTargetReached)
	}
	if len(res.Tracks) != 6 {
		t.Fatalf("got %d tracks, want 6", len(res.Tracks))
	}

	counts := countBySource(res.Tracks)
	if counts["a"] != 3 || counts["b"] != 3 {
		t.Errorf("split = %v, want 3/3", counts)
	}
}

func TestMixFrontLoadedPositions(t *testing.T) {
	sources, ratios := twoSources()

	res := Mix(sources, ratios, Options{
		TotalSongs:         4,
		PopularityStrategy: StrategyFrontLoaded,
	}, seeded())

	if len(res.Tracks) != 4 {
		t.Fatalf("got %d tracks, want 4", len(res.Tracks))
	}

	// Early positions draw from the hit-heavy source, late positions from
	// the deep-cut source.
	for i := 0; i < 2; i++ {
		if got := res.Tracks[i].SourcePlaylistID; got != "a" {
			t.Errorf("position %d from %s, want a", i, got)
		}
	}
	for i := 2; i < 4; i++ {
		if got := res.Tracks[i].SourcePlaylistID; got != "b" {
			t.Errorf("position %d from %s, want b", i, got)
		}
	}
}

func TestMixUseAllSongs(t *testing.T) {
	sources := map[string][]Track{
		"a": manyTracks("a", 3, 80, 180_000),
		"b": manyTracks("b", 7, 30, 180_000),
	}
	ratios := map[string]SourceRatio{
		"a": {Max: 10, Weight: 1},
		"b": {Max: 10, Weight: 1},
	}

	res := Mix(sources, ratios, Options{
		UseAllSongs:        true,
		PopularityStrategy: StrategyMixed,
	}, seeded())

	if len(res.Tracks) != 10 {
		t.Fatalf("got %d tracks, want all 10", len(res.Tracks))
	}

	seen := make(map[string]bool)
	for _, tr := range res.Tracks {
		if seen[tr.ID] {
			t.Errorf("track %s appears twice", tr.ID)
		}
		seen[tr.ID] = true
	}
}

func TestMixStopsWhenSourceEmptyAndNoContinue(t *testing.T) {
	sources := map[string][]Track{
		"a": {},
		"b": manyTracks("b", 3, 50, 180_000),
	}
	ratios := map[string]SourceRatio{
		"a": {Max: 10, Weight: 1},
		"b": {Max: 10, Weight: 1},
	}

	res := Mix(sources, ratios, Options{
		TotalSongs:                4,
		PopularityStrategy:        StrategyMixed,
		ContinueWhenPlaylistEmpty: false,
	}, seeded())

	if res.Reason != StopSourceExhausted {
		t.Fatalf("Reason = %s, want %s", res.Reason, StopSourceExhausted)
	}
	if len(res.Tracks) != 0 {
		t.Errorf("got %d tracks, want 0", len(res.Tracks))
	}
}

func TestMixContinuesPastEmptySourceWhenAsked(t *testing.T) {
	sources := map[string][]Track{
		"a": {},
		"b": manyTracks("b", 5, 50, 180_000),
	}
	ratios := map[string]SourceRatio{
		"a": {Max: 10, Weight: 1},
		"b": {Max: 10, Weight: 1},
	}

	res := Mix(sources, ratios, Options{
		TotalSongs:                3,
		PopularityStrategy:        StrategyMixed,
		ContinueWhenPlaylistEmpty: true,
	}, seeded())

	if res.Reason != StopTargetReached {
		t.Fatalf("Reason = %s, want %s", res.Reason, StopTargetReached)
	}
	if len(res.Tracks) != 3 {
		t.Errorf("got %d tracks, want 3", len(res.Tracks))
	}
	for _, tr := range res.Tracks {
		if tr.SourcePlaylistID != "b" {
			t.Errorf("track %s tagged %s, want b", tr.ID, tr.SourcePlaylistID)
		}
	}
}

func TestMixUnknownStrategyBehavesAsMixed(t *testing.T) {
	sources, ratios := twoSources()
	opts := Options{TotalSongs: 6}

	opts.PopularityStrategy = "nonexistent"
	unknown := Mix(sources, ratios, opts, seeded())

	opts.PopularityStrategy = StrategyMixed
	mixed := Mix(sources, ratios, opts, seeded())

	if len(unknown.Tracks) != len(mixed.Tracks) {
		t.Fatalf("lengths differ: %d vs %d", len(unknown.Tracks), len(mixed.Tracks))
	}
	for i := range unknown.Tracks {
		if unknown.Tracks[i].ID != mixed.Tracks[i].ID {
			t.Errorf("position %d: %s vs %s", i, unknown.Tracks[i].ID, mixed.Tracks[i].ID)
		}
	}
}

func TestMixNoDuplicateTracksAcrossSources(t *testing.T) {
	shared := testTrack("dup", 50)
	sources := map[string][]Track{
		"a": {shared, testTrack("a1", 50)},
		"b": {shared, testTrack("b1", 50)},
	}
	ratios := map[string]SourceRatio{
		"a": {Max: 10, Weight: 1},
		"b": {Max: 10, Weight: 1},
	}

	res := Mix(sources, ratios, Options{
		TotalSongs:                4,
		PopularityStrategy:        StrategyMixed,
		ContinueWhenPlaylistEmpty: true,
	}, seeded())

	seen := make(map[string]bool)
	for _, tr := range res.Tracks {
		if seen[tr.ID] {
			t.Fatalf("track %s appears twice", tr.ID)
		}
		seen[tr.ID] = true
	}
	// Only three distinct tracks exist across both sources.
	if len(res.Tracks) != 3 {
		t.Errorf("got %d tracks, want 3", len(res.Tracks))
	}
}

func TestMixRespectsRatioBounds(t *testing.T) {
	sources, _ := twoSources()
	ratios := map[string]SourceRatio{
		"a": {Min: 2, Max: 4, Weight: 1},
		"b": {Min: 2, Max: 4, Weight: 1},
	}

	res := Mix(sources, ratios, Options{
		TotalSongs:         6,
		PopularityStrategy: StrategyMixed,
	}, seeded())

	if res.Reason != StopTargetReached {
		t.Fatalf("run stopped early: %s", res.Reason)
	}
	for id, count := range countBySource(res.Tracks) {
		r := ratios[id]
		if count < r.Min || count > r.Max {
			t.Errorf("source %s drew %d tracks, want within [%d, %d]", id, count, r.Min, r.Max)
		}
	}
}

func TestMixStopsWhenEverySourceIsCapped(t *testing.T) {
	// Both sources have plenty of tracks, but their caps together cannot
	// fill the requested total. The run must stop at the caps instead of
	// overdrawing one source.
	sources := map[string][]Track{
		"a": manyTracks("a", 10, 90, 180_000),
		"b": manyTracks("b", 10, 10, 180_000),
	}
	ratios := map[string]SourceRatio{
		"a": {Max: 3, Weight: 1},
		"b": {Max: 3, Weight: 1},
	}

	res := Mix(sources, ratios, Options{
		TotalSongs:         10,
		PopularityStrategy: StrategyMixed,
	}, seeded())

	if res.Reason != StopAllSourcesExhausted {
		t.Fatalf("Reason = %s, want %s", res.Reason, StopAllSourcesExhausted)
	}
	if len(res.Tracks) != 6 {
		t.Fatalf("got %d tracks, want 6", len(res.Tracks))
	}
	for id, count := range countBySource(res.Tracks) {
		if count > ratios[id].Max {
			t.Errorf("source %s drew %d tracks, max is %d", id, count, ratios[id].Max)
		}
	}
}

func TestMixInvalidConfigReturnsEmptyResult(t *testing.T) {
	sources, ratios := twoSources()

	res := Mix(sources, ratios, Options{TotalSongs: 0}, seeded())

	if res.Reason != StopInvalidConfig {
		t.Fatalf("Reason = %s, want %s", res.Reason, StopInvalidConfig)
	}
	if len(res.Tracks) != 0 {
		t.Errorf("got %d tracks, want 0", len(res.Tracks))
	}
	if len(res.Errors) == 0 {
		t.Error("want validation errors in result")
	}
}

func TestMixAllSourcesEmptyTerminatesPromptly(t *testing.T) {
	sources := map[string][]Track{"a": {}, "b": {}}
	ratios := map[string]SourceRatio{
		"a": {Max: 10, Weight: 1},
		"b": {Max: 10, Weight: 1},
	}

	res := Mix(sources, ratios, Options{TotalSongs: 100, PopularityStrategy: StrategyMixed}, seeded())

	if len(res.Tracks) != 0 {
		t.Errorf("got %d tracks, want 0", len(res.Tracks))
	}
}

func TestMixTimeLimit(t *testing.T) {
	// Minute-long tracks against a ten-minute target.
	sources := map[string][]Track{
		"a": manyTracks("a", 10, 90, 60_000),
		"b": manyTracks("b", 10, 10, 60_000),
	}
	ratios := map[string]SourceRatio{
		"a": {Max: 20, Weight: 1, WeightType: WeightTime},
		"b": {Max: 20, Weight: 1, WeightType: WeightTime},
	}

	res := Mix(sources, ratios, Options{
		UseTimeLimit:          true,
		TargetDurationMinutes: 10,
		PopularityStrategy:    StrategyMixed,
	}, seeded())

	if res.Reason != StopTargetReached {
		t.Fatalf("Reason = %s, want %s", res.Reason, StopTargetReached)
	}

	var totalMs int
	for _, tr := range res.Tracks {
		totalMs += tr.DurationMs
	}
	if totalMs < 10*60_000 {
		t.Errorf("total duration %dms short of the 10 minute target", totalMs)
	}
	if totalMs > 11*60_000 {
		t.Errorf("total duration %dms overshoots the target by more than one track", totalMs)
	}
}

func TestMixDeterministicWithSeed(t *testing.T) {
	sources, ratios := twoSources()
	opts := Options{TotalSongs: 6, PopularityStrategy: StrategyCrescendo, ShuffleWithinGroups: true}

	first := Mix(sources, ratios, opts, seeded())
	second := Mix(sources, ratios, opts, seeded())

	if len(first.Tracks) != len(second.Tracks) {
		t.Fatalf("lengths differ: %d vs %d", len(first.Tracks), len(second.Tracks))
	}
	for i := range first.Tracks {
		if first.Tracks[i].ID != second.Tracks[i].ID {
			t.Errorf("position %d differs: %s vs %s", i, first.Tracks[i].ID, second.Tracks[i].ID)
		}
	}
}

func TestPreview(t *testing.T) {
	sources := map[string][]Track{
		"a": manyTracks("a", 30, 90, 180_000),
		"b": manyTracks("b", 30, 10, 180_000),
	}
	ratios := map[string]SourceRatio{
		"a": {Max: 100, Weight: 1},
		"b": {Max: 100, Weight: 1},
	}

	res := Preview(sources, ratios, Options{TotalSongs: 50, PopularityStrategy: StrategyMixed}, seeded())

	if !res.IsPreview {
		t.Error("IsPreview not set")
	}
	if len(res.Tracks) != PreviewSize {
		t.Errorf("got %d tracks, want %d", len(res.Tracks), PreviewSize)
	}
}

func TestPreviewOfUseAllSongsConfig(t *testing.T) {
	sources := map[string][]Track{"a": manyTracks("a", 40, 50, 180_000)}
	ratios := map[string]SourceRatio{"a": {Max: 100, Weight: 1}}

	res := Preview(sources, ratios, Options{UseAllSongs: true, PopularityStrategy: StrategyMixed}, seeded())

	if len(res.Tracks) != PreviewSize {
		t.Errorf("got %d tracks, want %d", len(res.Tracks), PreviewSize)
	}
}

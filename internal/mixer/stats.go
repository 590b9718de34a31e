package mixer

import "math"

// Statistics summarizes a finished mix for display.
type Statistics struct {
	TotalTracks          int
	PerSourceCounts      map[string]int
	RatioCompliance      float64 // 0..1, how closely the output matches the configured weights
	AveragePopularity    float64
	TotalDurationMinutes float64
}

// CalculateStatistics derives display statistics from a mix output. It is
// a pure function of the output plus the configuration that produced it.
func CalculateStatistics(tracks []MixedTrack, sources map[string][]Track, ratios map[string]SourceRatio) Statistics {
	stats := Statistics{
		TotalTracks:     len(tracks),
		PerSourceCounts: make(map[string]int),
	}

	var popularitySum, durationSum int
	for _, t := range tracks {
		stats.PerSourceCounts[t.SourcePlaylistID]++
		popularitySum += t.Popularity
		durationSum += t.DurationMs
	}
	stats.TotalDurationMinutes = float64(durationSum) / 60_000

	if len(tracks) == 0 {
		stats.RatioCompliance = 1
		return stats
	}

	stats.AveragePopularity = float64(popularitySum) / float64(len(tracks))
	stats.RatioCompliance = ratioCompliance(stats.PerSourceCounts, len(tracks), cleanSources(sources), ratios)
	return stats
}

// ratioCompliance compares the realized per-source shares against the
// shares implied by the configured weights: 1 means a perfect match, 0
// means the output came entirely from sources it should not have.
func ratioCompliance(counts map[string]int, total int, sources map[string][]Track, ratios map[string]SourceRatio) float64 {
	active := activeSources(sources, ratios)
	if len(active) == 0 {
		return 1
	}

	var totalWeight float64
	for _, id := range active {
		totalWeight += ratios[id].Weight
	}
	if totalWeight <= 0 {
		return 1
	}

	var divergence float64
	for _, id := range active {
		expected := ratios[id].Weight / totalWeight
		actual := float64(counts[id]) / float64(total)
		divergence += math.Abs(expected - actual)
	}
	// Count output from unconfigured sources against compliance too.
	var configured int
	for _, id := range active {
		configured += counts[id]
	}
	divergence += float64(total-configured) / float64(total)

	compliance := 1 - divergence/2
	return math.Max(0, math.Min(1, compliance))
}

package mixer

import "math/rand/v2"

// Shuffle returns a uniformly shuffled copy of items using Fisher-Yates.
// The input slice is not mutated.
func Shuffle[T any](rng *rand.Rand, items []T) []T {
	out := make([]T, len(items))
	copy(out, items)
	for i := len(out) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// SampleTracks returns up to k tracks drawn at random from tracks, skipping
// any whose ID is in excluding. Fewer than k are returned when not enough
// remain; an empty slice is returned when none remain.
func SampleTracks(rng *rand.Rand, tracks []AnnotatedTrack, k int, excluding map[string]bool) []AnnotatedTrack {
	if k <= 0 {
		return nil
	}

	eligible := make([]AnnotatedTrack, 0, len(tracks))
	for _, t := range tracks {
		if excluding[t.ID] {
			continue
		}
		eligible = append(eligible, t)
	}
	if len(eligible) == 0 {
		return nil
	}

	shuffled := Shuffle(rng, eligible)
	if k > len(shuffled) {
		k = len(shuffled)
	}
	return shuffled[:k]
}

// Package analysis profiles the popularity shape of a generated mix.
package analysis

import (
	"fmt"
	"slices"

	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"

	"github.com/blendfm/blendfm/internal/mixer"
)

// DefaultSegments is the number of regions a mix is profiled into.
const DefaultSegments = 3

// Segment describes a region of the mix with a similar popularity level.
type Segment struct {
	Label         string  // Popularity band: "top hits", "popular", "moderate", "deep cuts"
	Start         float64 // Position ratio of the earliest track in the segment
	End           float64 // Position ratio of the latest track in the segment
	AvgPopularity float64
	TrackIDs      []string
}

// trackObservation wraps a mix position to implement clusters.Observation.
type trackObservation struct {
	index  int
	coords clusters.Coordinates
}

func (o trackObservation) Coordinates() clusters.Coordinates {
	return o.coords
}

func (o trackObservation) Distance(point clusters.Coordinates) float64 {
	return o.coords.Distance(point)
}

// ProfileShape groups the tracks of a mix into segments of similar
// playlist position and popularity using k-means. It reveals whether
// the realized mix actually follows the arc its strategy promised.
// Returns nil when the mix has fewer tracks than requested segments.
func ProfileShape(tracks []mixer.MixedTrack, numSegments int) ([]Segment, error) {
	if numSegments <= 0 {
		numSegments = DefaultSegments
	}
	if len(tracks) < numSegments {
		return nil, nil
	}

	var obs clusters.Observations
	for i, t := range tracks {
		obs = append(obs, trackObservation{
			index: i,
			coords: clusters.Coordinates{
				positionRatio(i, len(tracks)),
				float64(t.Popularity) / 100,
			},
		})
	}

	km := kmeans.New()
	result, err := km.Partition(obs, numSegments)
	if err != nil {
		return nil, fmt.Errorf("partitioning mix: %w", err)
	}

	var segments []Segment
	for _, cluster := range result {
		var indices []int
		for _, o := range cluster.Observations {
			if to, ok := o.(trackObservation); ok {
				indices = append(indices, to.index)
			}
		}
		if len(indices) == 0 {
			continue
		}
		slices.Sort(indices)

		var popSum float64
		ids := make([]string, len(indices))
		for i, idx := range indices {
			ids[i] = tracks[idx].ID
			popSum += float64(tracks[idx].Popularity)
		}
		avgPop := popSum / float64(len(indices))

		segments = append(segments, Segment{
			Label:         labelForPopularity(avgPop),
			Start:         positionRatio(indices[0], len(tracks)),
			End:           positionRatio(indices[len(indices)-1], len(tracks)),
			AvgPopularity: avgPop,
			TrackIDs:      ids,
		})
	}

	slices.SortFunc(segments, func(a, b Segment) int {
		switch {
		case a.Start < b.Start:
			return -1
		case a.Start > b.Start:
			return 1
		default:
			return 0
		}
	})

	return segments, nil
}

// positionRatio maps a playlist index to [0, 1].
func positionRatio(i, total int) float64 {
	if total <= 1 {
		return 0
	}
	return float64(i) / float64(total-1)
}

// labelForPopularity names the popularity band a segment sits in.
func labelForPopularity(avg float64) string {
	switch {
	case avg >= 80:
		return "top hits"
	case avg >= 60:
		return "popular"
	case avg >= 40:
		return "moderate"
	default:
		return "deep cuts"
	}
}

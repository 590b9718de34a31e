// Package popularity fills in missing popularity scores using Last.fm
// listening statistics.
package popularity

import (
	"context"
	"math"
	"sync"

	"github.com/blendfm/blendfm/internal/lastfm"
	"github.com/blendfm/blendfm/internal/mixer"
)

// Default concurrency for batch enrichment.
const DefaultConcurrency = 5

// Listener counts at or above this map to a popularity of 100.
const referenceListeners = 10_000_000

// InfoFetcher abstracts the Last.fm client for testing.
type InfoFetcher interface {
	GetTrackInfo(ctx context.Context, artist, track string) (*lastfm.TrackInfo, error)
}

// Enrichment records the outcome of a single track lookup.
type Enrichment struct {
	TrackID    string
	Popularity int
	Error      error // Non-nil if the lookup failed
}

// Service derives popularity scores from Last.fm listener counts for
// tracks whose source left the score unset.
type Service struct {
	fetcher     InfoFetcher
	concurrency int
}

// Option configures a Service.
type Option func(*Service)

// WithConcurrency sets the number of concurrent lookups.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// NewService creates a new popularity service.
func NewService(fetcher InfoFetcher, opts ...Option) *Service {
	s := &Service{
		fetcher:     fetcher,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enrich fills in Popularity for tracks where it is zero, leaving scored
// tracks untouched. Lookups run concurrently; individual failures are
// captured per track rather than failing the batch. The returned slice
// preserves input order.
func (s *Service) Enrich(ctx context.Context, tracks []mixer.Track) ([]mixer.Track, []Enrichment, error) {
	if len(tracks) == 0 {
		return []mixer.Track{}, []Enrichment{}, nil
	}

	out := make([]mixer.Track, len(tracks))
	copy(out, tracks)

	var pending []int
	for i, t := range tracks {
		if t.Popularity == 0 && t.Name != "" && len(t.Artists) > 0 {
			pending = append(pending, i)
		}
	}
	if len(pending) == 0 {
		return out, []Enrichment{}, nil
	}

	results := make([]Enrichment, len(pending))

	workCh := make(chan int, len(pending))
	for i := range pending {
		workCh <- i
	}
	close(workCh)

	var wg sync.WaitGroup
	for i := 0; i < s.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for w := range workCh {
				track := tracks[pending[w]]

				select {
				case <-ctx.Done():
					results[w] = Enrichment{TrackID: track.ID, Error: ctx.Err()}
					continue
				default:
				}

				info, err := s.fetcher.GetTrackInfo(ctx, track.Artists[0], track.Name)
				if err != nil {
					results[w] = Enrichment{TrackID: track.ID, Error: err}
					continue
				}
				results[w] = Enrichment{
					TrackID:    track.ID,
					Popularity: ScoreFromListeners(info.Listeners),
				}
			}
		}()
	}

	wg.Wait()

	for w, r := range results {
		if r.Error == nil {
			out[pending[w]].Popularity = r.Popularity
		}
	}

	if ctx.Err() != nil {
		return out, results, ctx.Err()
	}
	return out, results, nil
}

// ScoreFromListeners maps a Last.fm listener count onto the 0-100
// popularity scale. The mapping is logarithmic so that the jump from a
// thousand to ten thousand listeners matters as much as the jump from a
// million to ten million.
func ScoreFromListeners(listeners int64) int {
	if listeners <= 0 {
		return 0
	}
	score := 100 * math.Log10(1+float64(listeners)) / math.Log10(1+referenceListeners)
	if score > 100 {
		return 100
	}
	return int(math.Round(score))
}

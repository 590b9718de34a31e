package mixer

import (
	"math"
	"reflect"
	"testing"
	"time"
)

func TestAnnotate(t *testing.T) {
	now := time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		track        Track
		recencyBoost bool
		wantBonus    float64
		wantAdjusted float64
		wantYear     int
	}{
		{
			name:         "boost disabled keeps base popularity",
			track:        Track{Popularity: 50, ReleaseDate: "2024-01-01"},
			recencyBoost: false,
			wantBonus:    0,
			wantAdjusted: 50,
			wantYear:     2024,
		},
		{
			name:         "missing release date degrades to unknown year",
			track:        Track{Popularity: 50},
			recencyBoost: true,
			wantBonus:    0,
			wantAdjusted: 50,
			wantYear:     0,
		},
		{
			name:         "unparseable release date degrades to unknown year",
			track:        Track{Popularity: 30, ReleaseDate: "not-a-date"},
			recencyBoost: true,
			wantBonus:    0,
			wantAdjusted: 30,
			wantYear:     0,
		},
		{
			// 100 days since release: bonus = 20 * (1 - 100/730).
			name:         "recent release earns a bonus",
			track:        Track{Popularity: 50, ReleaseDate: "2024-01-01"},
			recencyBoost: true,
			wantBonus:    17.3,
			wantAdjusted: 50 + 20*(1-100.0/730),
			wantYear:     2024,
		},
		{
			name:         "release today earns the maximum bonus",
			track:        Track{Popularity: 40, ReleaseDate: "2024-04-10"},
			recencyBoost: true,
			wantBonus:    20,
			wantAdjusted: 60,
			wantYear:     2024,
		},
		{
			name:         "adjusted popularity is capped at 100",
			track:        Track{Popularity: 95, ReleaseDate: "2024-04-10"},
			recencyBoost: true,
			wantBonus:    20,
			wantAdjusted: 100,
			wantYear:     2024,
		},
		{
			// Spotify reports future dates for pre-release albums.
			name:         "future release date clamps to the maximum bonus",
			track:        Track{Popularity: 50, ReleaseDate: "2024-12-01"},
			recencyBoost: true,
			wantBonus:    20,
			wantAdjusted: 70,
			wantYear:     2024,
		},
		{
			name:         "old release earns no bonus",
			track:        Track{Popularity: 70, ReleaseDate: "1999"},
			recencyBoost: true,
			wantBonus:    0,
			wantAdjusted: 70,
			wantYear:     1999,
		},
		{
			name:         "year-month date parses",
			track:        Track{Popularity: 10, ReleaseDate: "2010-06"},
			recencyBoost: true,
			wantBonus:    0,
			wantAdjusted: 10,
			wantYear:     2010,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			at := Annotate(tt.track, tt.recencyBoost, now)

			if at.BasePopularity != tt.track.Popularity {
				t.Errorf("BasePopularity = %d, want %d", at.BasePopularity, tt.track.Popularity)
			}
			if at.RecencyBonus != tt.wantBonus {
				t.Errorf("RecencyBonus = %g, want %g", at.RecencyBonus, tt.wantBonus)
			}
			if math.Abs(at.AdjustedPopularity-tt.wantAdjusted) > 1e-9 {
				t.Errorf("AdjustedPopularity = %g, want %g", at.AdjustedPopularity, tt.wantAdjusted)
			}
			if at.ReleaseYear != tt.wantYear {
				t.Errorf("ReleaseYear = %d, want %d", at.ReleaseYear, tt.wantYear)
			}
		})
	}
}

func TestAnnotateBonusBounds(t *testing.T) {
	now := time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)

	// Sweep release dates from the future across and beyond the
	// recency window.
	for days := -400; days <= 1000; days += 13 {
		release := now.AddDate(0, 0, -days).Format("2006-01-02")
		at := Annotate(Track{Popularity: 50, ReleaseDate: release}, true, now)

		if at.RecencyBonus < 0 || at.RecencyBonus > maxRecencyBonus {
			t.Fatalf("days=%d: RecencyBonus %g out of [0, %g]", days, at.RecencyBonus, maxRecencyBonus)
		}
		if days >= recencyWindowDays && at.RecencyBonus != 0 {
			t.Fatalf("days=%d: want zero bonus outside window, got %g", days, at.RecencyBonus)
		}
		if at.AdjustedPopularity > 100 {
			t.Fatalf("days=%d: AdjustedPopularity %g exceeds 100", days, at.AdjustedPopularity)
		}
	}
}

func TestAnnotateDeterminism(t *testing.T) {
	now := time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)
	track := Track{Popularity: 50, ReleaseDate: "2023-11-02"}

	first := Annotate(track, true, now)
	for i := 0; i < 5; i++ {
		if got := Annotate(track, true, now); !reflect.DeepEqual(got, first) {
			t.Fatalf("Annotate not deterministic: %+v vs %+v", got, first)
		}
	}
}

package mixer

import (
	"math/rand/v2"
	"testing"
)

func testTrack(id string, popularity int) Track {
	return Track{
		ID:         id,
		URI:        "spotify:track:" + id,
		Name:       "Track " + id,
		DurationMs: 200_000,
		Popularity: popularity,
	}
}

func TestBuildPoolsPartition(t *testing.T) {
	sources := map[string][]Track{
		"a": {
			testTrack("1", 95), // top hits
			testTrack("2", 80), // top hits (boundary)
			testTrack("3", 79), // popular
			testTrack("4", 60), // popular (boundary)
			testTrack("5", 59), // moderate
			testTrack("6", 40), // moderate (boundary)
			testTrack("7", 39), // deep cuts
			testTrack("8", 0),  // deep cuts
		},
	}

	pools := BuildPools(sources, PoolConfig{})
	q, ok := pools["a"]
	if !ok {
		t.Fatal("source a missing from pools")
	}

	if got := len(q.TopHits); got != 2 {
		t.Errorf("TopHits = %d, want 2", got)
	}
	if got := len(q.Popular); got != 2 {
		t.Errorf("Popular = %d, want 2", got)
	}
	if got := len(q.Moderate); got != 2 {
		t.Errorf("Moderate = %d, want 2", got)
	}
	if got := len(q.DeepCuts); got != 2 {
		t.Errorf("DeepCuts = %d, want 2", got)
	}

	// Partition is total and disjoint.
	if q.Len() != len(sources["a"]) {
		t.Errorf("pool size = %d, want %d", q.Len(), len(sources["a"]))
	}
	seen := make(map[string]bool)
	for _, at := range q.All() {
		if seen[at.ID] {
			t.Errorf("track %s appears in more than one tier", at.ID)
		}
		seen[at.ID] = true
	}
}

func TestBuildPoolsPreservesOrder(t *testing.T) {
	sources := map[string][]Track{
		"a": {testTrack("1", 90), testTrack("2", 91), testTrack("3", 92)},
	}

	q := BuildPools(sources, PoolConfig{})["a"]
	for i, want := range []string{"1", "2", "3"} {
		if q.TopHits[i].ID != want {
			t.Errorf("TopHits[%d] = %s, want %s", i, q.TopHits[i].ID, want)
		}
	}
}

func TestBuildPoolsShuffleKeepsMembership(t *testing.T) {
	var tracks []Track
	for _, id := range []string{"1", "2", "3", "4", "5", "6"} {
		tracks = append(tracks, testTrack(id, 90))
	}
	sources := map[string][]Track{"a": tracks}

	q := BuildPools(sources, PoolConfig{
		ShuffleWithinGroups: true,
		Rand:                rand.New(rand.NewPCG(7, 7)),
	})["a"]

	if len(q.TopHits) != len(tracks) {
		t.Fatalf("TopHits = %d, want %d", len(q.TopHits), len(tracks))
	}
	seen := make(map[string]bool)
	for _, at := range q.TopHits {
		seen[at.ID] = true
	}
	for _, tr := range tracks {
		if !seen[tr.ID] {
			t.Errorf("track %s lost during shuffle", tr.ID)
		}
	}
}

func TestBuildPoolsDropsEmptySources(t *testing.T) {
	sources := map[string][]Track{
		"a": {testTrack("1", 50)},
		"b": {},
	}

	pools := BuildPools(sources, PoolConfig{})
	if _, ok := pools["b"]; ok {
		t.Error("empty source b should be dropped")
	}
	if _, ok := pools["a"]; !ok {
		t.Error("source a missing")
	}
}

func TestCleanSources(t *testing.T) {
	sources := map[string][]Track{
		"a": {
			testTrack("1", 50),
			{ID: "", URI: "u", Name: "n"},   // missing id
			{ID: "2", URI: "", Name: "n"},   // missing uri
			{ID: "3", URI: "u", Name: ""},   // missing name
			{ID: "4", URI: "u", Name: "ok"}, // valid
		},
		"b": {
			{ID: "", URI: "", Name: ""},
		},
	}

	cleaned := cleanSources(sources)

	if got := len(cleaned["a"]); got != 2 {
		t.Errorf("source a kept %d tracks, want 2", got)
	}
	if _, ok := cleaned["b"]; ok {
		t.Error("source b should be dropped entirely")
	}
}

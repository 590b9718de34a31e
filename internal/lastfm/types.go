package lastfm

import "strconv"

// TrackInfo holds the listening statistics Last.fm reports for a track.
type TrackInfo struct {
	Name      string
	Artist    string
	Listeners int64
	Playcount int64
}

// trackInfoResponse is the JSON response for track.getInfo. Last.fm
// reports the numeric fields as strings.
type trackInfoResponse struct {
	Track struct {
		Name      string `json:"name"`
		Listeners string `json:"listeners"`
		Playcount string `json:"playcount"`
		Artist    struct {
			Name string `json:"name"`
		} `json:"artist"`
	} `json:"track"`
}

func (r trackInfoResponse) toTrackInfo() *TrackInfo {
	return &TrackInfo{
		Name:      r.Track.Name,
		Artist:    r.Track.Artist.Name,
		Listeners: parseCount(r.Track.Listeners),
		Playcount: parseCount(r.Track.Playcount),
	}
}

// parseCount tolerates the empty and malformed counts Last.fm
// occasionally returns.
func parseCount(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// apiError represents a Last.fm API error response.
type apiError struct {
	Error   int    `json:"error"`
	Message string `json:"message"`
}

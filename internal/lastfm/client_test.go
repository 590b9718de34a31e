package lastfm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(serverURL string) *Client {
	c := NewClient("test-key")
	c.baseURL = serverURL
	return c
}

func TestGetTrackInfo(t *testing.T) {
	tests := []struct {
		name     string
		response any
		want     *TrackInfo
		wantErr  error
	}{
		{
			name: "known track",
			response: map[string]any{
				"track": map[string]any{
					"name":      "Paranoid Android",
					"listeners": "1234567",
					"playcount": "9876543",
					"artist":    map[string]any{"name": "Radiohead"},
				},
			},
			want: &TrackInfo{
				Name:      "Paranoid Android",
				Artist:    "Radiohead",
				Listeners: 1234567,
				Playcount: 9876543,
			},
		},
		{
			name: "malformed counts tolerated",
			response: map[string]any{
				"track": map[string]any{
					"name":      "Obscure Song",
					"listeners": "",
					"playcount": "not-a-number",
					"artist":    map[string]any{"name": "Nobody"},
				},
			},
			want: &TrackInfo{
				Name:   "Obscure Song",
				Artist: "Nobody",
			},
		},
		{
			name:     "track not found",
			response: apiError{Error: 6, Message: "Track not found"},
			wantErr:  ErrTrackNotFound,
		},
		{
			name:     "invalid API key",
			response: apiError{Error: 10, Message: "Invalid API key"},
			wantErr:  ErrInvalidAPIKey,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if got := r.URL.Query().Get("method"); got != "track.getInfo" {
					t.Errorf("method = %q, want track.getInfo", got)
				}
				json.NewEncoder(w).Encode(tt.response)
			}))
			defer server.Close()

			client := newTestClient(server.URL)
			got, err := client.GetTrackInfo(context.Background(), "artist", "track")

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("GetTrackInfo() error = %v", err)
			}
			if *got != *tt.want {
				t.Errorf("GetTrackInfo() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestGetTrackInfoCaching(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		json.NewEncoder(w).Encode(map[string]any{
			"track": map[string]any{
				"name":      "Song",
				"listeners": "100",
				"playcount": "200",
				"artist":    map[string]any{"name": "Artist"},
			},
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := client.GetTrackInfo(ctx, "Artist", "Song"); err != nil {
			t.Fatalf("GetTrackInfo() error = %v", err)
		}
	}

	if got := calls.Load(); got != 1 {
		t.Errorf("server called %d times, want 1 (cache miss only on first call)", got)
	}
}

func TestGetTrackInfoRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			json.NewEncoder(w).Encode(apiError{Error: 29, Message: "Rate limit exceeded"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"track": map[string]any{
				"name":      "Song",
				"listeners": "100",
				"playcount": "200",
				"artist":    map[string]any{"name": "Artist"},
			},
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	info, err := client.GetTrackInfo(ctx, "Artist", "Song")
	if err != nil {
		t.Fatalf("GetTrackInfo() error = %v", err)
	}
	if info.Listeners != 100 {
		t.Errorf("Listeners = %d, want 100", info.Listeners)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("server called %d times, want 2 (one rate-limited, one retry)", got)
	}
}

func TestGetTrackInfoContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(apiError{Error: 29, Message: "Rate limit exceeded"})
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.GetTrackInfo(ctx, "Artist", "Song")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

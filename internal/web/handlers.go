package web

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	spotifyapi "github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"

	"github.com/blendfm/blendfm/internal/db"
	"github.com/blendfm/blendfm/internal/mixer"
	"github.com/blendfm/blendfm/internal/mixes"
	"github.com/blendfm/blendfm/internal/spotify"
)

// Handlers contains the HTTP handlers for the JSON API.
type Handlers struct {
	auth     *spotifyauth.Authenticator
	sessions SessionManager
	mixes    *mixes.Service
	database *db.DB
	logger   *log.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(auth *spotifyauth.Authenticator, sessions SessionManager, mixSvc *mixes.Service, database *db.DB, logger *log.Logger) *Handlers {
	return &Handlers{
		auth:     auth,
		sessions: sessions,
		mixes:    mixSvc,
		database: database,
		logger:   logger,
	}
}

// ============================================================================
// Auth
// ============================================================================

// Login initiates the Spotify OAuth flow (GET /auth/login).
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	state, err := generateOAuthState()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to generate state")
		return
	}

	// Store state in cookie for validation on callback
	http.SetCookie(w, &http.Cookie{
		Name:     "oauth_state",
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   300, // 5 minutes
	})

	http.Redirect(w, r, h.auth.AuthURL(state), http.StatusTemporaryRedirect)
}

// Callback handles the OAuth callback from Spotify (GET /callback).
func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie("oauth_state")
	if err != nil {
		respondError(w, http.StatusBadRequest, "missing state cookie")
		return
	}

	state := r.URL.Query().Get("state")
	if state != stateCookie.Value {
		respondError(w, http.StatusBadRequest, "state mismatch")
		return
	}

	// Clear state cookie
	http.SetCookie(w, &http.Cookie{
		Name:     "oauth_state",
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})

	if errMsg := r.URL.Query().Get("error"); errMsg != "" {
		respondError(w, http.StatusBadRequest, "spotify auth error: "+errMsg)
		return
	}

	token, err := h.auth.Token(r.Context(), state, r)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get token")
		return
	}

	client := spotifyapi.New(h.auth.Client(r.Context(), token))
	user, err := client.CurrentUser(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get user info")
		return
	}

	if h.database != nil {
		dbUser := &db.User{
			ID:          string(user.ID),
			DisplayName: user.DisplayName,
			Email:       user.Email,
		}
		if err := h.database.Users().Upsert(r.Context(), dbUser); err != nil {
			h.logger.Error("upserting user failed", "user", user.ID, "err", err)
			respondError(w, http.StatusInternalServerError, "failed to store user")
			return
		}
	}

	session, err := h.sessions.Create(r.Context(), token, string(user.ID), user.DisplayName)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	h.sessions.SetCookie(w, session)

	http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
}

// Logout clears the session (POST /auth/logout).
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if session := h.sessions.GetFromRequest(r); session != nil {
		h.sessions.Delete(r.Context(), session.ID)
	}
	h.sessions.ClearCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the authenticated user (GET /api/me). With a database the
// stored profile is included; without one only the session identity is
// known.
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	session, ok := h.requireSession(w, r)
	if !ok {
		return
	}

	resp := meResponse{ID: session.UserID, Name: session.UserName}
	if h.database != nil {
		if user, err := h.database.Users().Get(r.Context(), session.UserID); err == nil {
			resp.Email = user.Email
			resp.LastMixAt = user.LastMixAt
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

// ============================================================================
// Playlists
// ============================================================================

// Playlists lists the user's playlists (GET /api/playlists).
func (h *Handlers) Playlists(w http.ResponseWriter, r *http.Request) {
	session, ok := h.requireSession(w, r)
	if !ok {
		return
	}

	client := h.spotifyClient(r, session)
	playlists, err := client.ListUserPlaylists(r.Context())
	if err != nil {
		h.logger.Error("listing playlists failed", "user", session.UserID, "err", err)
		respondError(w, http.StatusBadGateway, "failed to list playlists")
		return
	}
	h.saveRefreshedToken(r.Context(), session, client)

	out := make([]playlistResponse, len(playlists))
	for i, p := range playlists {
		out[i] = playlistResponse{
			ID:         p.ID,
			Name:       p.Name,
			Owner:      p.Owner,
			TrackCount: p.TrackCount,
		}
	}
	respondJSON(w, http.StatusOK, out)
}

// ============================================================================
// Mixing
// ============================================================================

// Mix generates and persists a mix (POST /api/mix).
func (h *Handlers) Mix(w http.ResponseWriter, r *http.Request) {
	session, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	req, ok := decodeMixRequest(w, r)
	if !ok {
		return
	}

	client := h.spotifyClient(r, session)
	run, err := h.mixes.Run(r.Context(), client, session.UserID, req)
	if err != nil {
		h.respondRunError(w, session.UserID, err)
		return
	}
	h.saveRefreshedToken(r.Context(), session, client)
	respondJSON(w, http.StatusOK, toMixResponse(run))
}

// MixPreview generates the first tracks of a would-be mix (POST /api/mix/preview).
func (h *Handlers) MixPreview(w http.ResponseWriter, r *http.Request) {
	session, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	req, ok := decodeMixRequest(w, r)
	if !ok {
		return
	}

	client := h.spotifyClient(r, session)
	run, err := h.mixes.Preview(r.Context(), client, req)
	if err != nil {
		h.respondRunError(w, session.UserID, err)
		return
	}
	h.saveRefreshedToken(r.Context(), session, client)
	respondJSON(w, http.StatusOK, toMixResponse(run))
}

// MixValidate checks a mix configuration (POST /api/mix/validate).
func (h *Handlers) MixValidate(w http.ResponseWriter, r *http.Request) {
	session, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	req, ok := decodeMixRequest(w, r)
	if !ok {
		return
	}

	client := h.spotifyClient(r, session)
	result, err := h.mixes.Validate(r.Context(), client, req)
	if err != nil {
		h.respondRunError(w, session.UserID, err)
		return
	}
	h.saveRefreshedToken(r.Context(), session, client)
	respondJSON(w, http.StatusOK, validationResponse{
		IsValid: result.IsValid,
		Errors:  result.Errors,
	})
}

// Mixes lists the user's persisted mixes (GET /api/mixes).
func (h *Handlers) Mixes(w http.ResponseWriter, r *http.Request) {
	session, ok := h.requireSession(w, r)
	if !ok {
		return
	}

	userMixes, err := h.mixes.GetUserMixes(r.Context(), session.UserID)
	if errors.Is(err, mixes.ErrNoDatabase) {
		respondError(w, http.StatusNotImplemented, mixes.ErrNoDatabase.Error())
		return
	}
	if err != nil {
		h.logger.Error("listing mixes failed", "user", session.UserID, "err", err)
		respondError(w, http.StatusInternalServerError, "failed to list mixes")
		return
	}

	out := make([]persistedMixResponse, len(userMixes))
	for i, m := range userMixes {
		out[i] = toPersistedMixResponse(m)
	}
	respondJSON(w, http.StatusOK, out)
}

// MixSave publishes a persisted mix to Spotify (POST /api/mixes/{id}/save).
func (h *Handlers) MixSave(w http.ResponseWriter, r *http.Request) {
	session, ok := h.requireSession(w, r)
	if !ok {
		return
	}

	mixID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid mix ID")
		return
	}

	client := h.spotifyClient(r, session)
	playlistID, err := h.mixes.SaveToSpotify(r.Context(), client, session.UserID, mixID)
	switch {
	case errors.Is(err, mixes.ErrNoDatabase):
		respondError(w, http.StatusNotImplemented, mixes.ErrNoDatabase.Error())
		return
	case errors.Is(err, db.ErrNotFound), errors.Is(err, mixes.ErrNotOwner):
		respondError(w, http.StatusNotFound, "mix not found")
		return
	case errors.Is(err, mixes.ErrAlreadySaved):
		respondError(w, http.StatusConflict, "mix already saved")
		return
	case err != nil:
		h.logger.Error("saving mix failed", "mix", mixID, "err", err)
		respondError(w, http.StatusBadGateway, "failed to save mix")
		return
	}

	h.saveRefreshedToken(r.Context(), session, client)
	respondJSON(w, http.StatusOK, map[string]string{"playlistId": playlistID})
}

// MixDelete removes a persisted mix (DELETE /api/mixes/{id}).
func (h *Handlers) MixDelete(w http.ResponseWriter, r *http.Request) {
	session, ok := h.requireSession(w, r)
	if !ok {
		return
	}

	mixID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid mix ID")
		return
	}

	err = h.mixes.DeleteMix(r.Context(), session.UserID, mixID)
	switch {
	case errors.Is(err, mixes.ErrNoDatabase):
		respondError(w, http.StatusNotImplemented, mixes.ErrNoDatabase.Error())
		return
	case errors.Is(err, db.ErrNotFound), errors.Is(err, mixes.ErrNotOwner):
		respondError(w, http.StatusNotFound, "mix not found")
		return
	case err != nil:
		h.logger.Error("deleting mix failed", "mix", mixID, "err", err)
		respondError(w, http.StatusInternalServerError, "failed to delete mix")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ============================================================================
// Request/response shapes
// ============================================================================

type meResponse struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email,omitempty"`
	LastMixAt *time.Time `json:"lastMixAt,omitempty"`
}

type mixRequest struct {
	Name    string                        `json:"name"`
	Sources map[string]sourceRatioRequest `json:"sources"`
	Options mixOptionsRequest             `json:"options"`
}

type sourceRatioRequest struct {
	Min        int     `json:"min"`
	Max        int     `json:"max"`
	Weight     float64 `json:"weight"`
	WeightType string  `json:"weightType"`
}

type mixOptionsRequest struct {
	TotalSongs                int    `json:"totalSongs"`
	TargetDurationMinutes     int    `json:"targetDurationMinutes"`
	UseTimeLimit              bool   `json:"useTimeLimit"`
	UseAllSongs               bool   `json:"useAllSongs"`
	ShuffleWithinGroups       bool   `json:"shuffleWithinGroups"`
	PopularityStrategy        string `json:"popularityStrategy"`
	RecencyBoost              bool   `json:"recencyBoost"`
	ContinueWhenPlaylistEmpty bool   `json:"continueWhenPlaylistEmpty"`
}

type playlistResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Owner      string `json:"owner"`
	TrackCount int    `json:"trackCount"`
}

type trackResponse struct {
	ID               string `json:"id"`
	URI              string `json:"uri"`
	Name             string `json:"name"`
	Artist           string `json:"artist"`
	Album            string `json:"album"`
	DurationMs       int    `json:"durationMs"`
	Popularity       int    `json:"popularity"`
	SourcePlaylistID string `json:"sourcePlaylistId"`
}

type statsResponse struct {
	TotalTracks          int            `json:"totalTracks"`
	PerSourceCounts      map[string]int `json:"perSourceCounts"`
	RatioCompliance      float64        `json:"ratioCompliance"`
	AveragePopularity    float64        `json:"averagePopularity"`
	TotalDurationMinutes float64        `json:"totalDurationMinutes"`
}

type segmentResponse struct {
	Label         string  `json:"label"`
	Start         float64 `json:"start"`
	End           float64 `json:"end"`
	AvgPopularity float64 `json:"avgPopularity"`
	TrackCount    int     `json:"trackCount"`
}

type mixResponse struct {
	MixID      string            `json:"mixId,omitempty"`
	StopReason string            `json:"stopReason"`
	IsPreview  bool              `json:"isPreview"`
	Errors     []string          `json:"errors,omitempty"`
	Tracks     []trackResponse   `json:"tracks"`
	Stats      statsResponse     `json:"stats"`
	Segments   []segmentResponse `json:"segments,omitempty"`
}

type validationResponse struct {
	IsValid bool     `json:"isValid"`
	Errors  []string `json:"errors"`
}

type persistedMixResponse struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Strategy    string  `json:"strategy"`
	TotalTracks int     `json:"totalTracks"`
	DurationMs  int     `json:"durationMs"`
	StopReason  string  `json:"stopReason"`
	PlaylistID  *string `json:"playlistId"`
	CreatedAt   string  `json:"createdAt"`
}

func decodeMixRequest(w http.ResponseWriter, r *http.Request) (mixes.Request, bool) {
	var req mixRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return mixes.Request{}, false
	}

	ratios := make(map[string]mixer.SourceRatio, len(req.Sources))
	for id, src := range req.Sources {
		ratios[id] = mixer.SourceRatio{
			Min:        src.Min,
			Max:        src.Max,
			Weight:     src.Weight,
			WeightType: mixer.WeightType(src.WeightType),
		}
	}

	return mixes.Request{
		Name:   req.Name,
		Ratios: ratios,
		Options: mixer.Options{
			TotalSongs:                req.Options.TotalSongs,
			TargetDurationMinutes:     req.Options.TargetDurationMinutes,
			UseTimeLimit:              req.Options.UseTimeLimit,
			UseAllSongs:               req.Options.UseAllSongs,
			ShuffleWithinGroups:       req.Options.ShuffleWithinGroups,
			PopularityStrategy:        req.Options.PopularityStrategy,
			RecencyBoost:              req.Options.RecencyBoost,
			ContinueWhenPlaylistEmpty: req.Options.ContinueWhenPlaylistEmpty,
		},
	}, true
}

func toMixResponse(run *mixes.RunResult) mixResponse {
	tracks := make([]trackResponse, len(run.Result.Tracks))
	for i, t := range run.Result.Tracks {
		tracks[i] = trackResponse{
			ID:               t.ID,
			URI:              t.URI,
			Name:             t.Name,
			Artist:           t.Artist(),
			Album:            t.Album,
			DurationMs:       t.DurationMs,
			Popularity:       t.Popularity,
			SourcePlaylistID: t.SourcePlaylistID,
		}
	}

	segments := make([]segmentResponse, len(run.Segments))
	for i, s := range run.Segments {
		segments[i] = segmentResponse{
			Label:         s.Label,
			Start:         s.Start,
			End:           s.End,
			AvgPopularity: s.AvgPopularity,
			TrackCount:    len(s.TrackIDs),
		}
	}

	resp := mixResponse{
		StopReason: string(run.Result.Reason),
		IsPreview:  run.Result.IsPreview,
		Errors:     run.Result.Errors,
		Tracks:     tracks,
		Stats: statsResponse{
			TotalTracks:          run.Stats.TotalTracks,
			PerSourceCounts:      run.Stats.PerSourceCounts,
			RatioCompliance:      run.Stats.RatioCompliance,
			AveragePopularity:    run.Stats.AveragePopularity,
			TotalDurationMinutes: run.Stats.TotalDurationMinutes,
		},
		Segments: segments,
	}
	if run.Mix != nil {
		resp.MixID = run.Mix.ID.String()
	}
	return resp
}

func toPersistedMixResponse(m db.Mix) persistedMixResponse {
	return persistedMixResponse{
		ID:          m.ID.String(),
		Name:        m.Name,
		Strategy:    m.Strategy,
		TotalTracks: m.TotalTracks,
		DurationMs:  m.DurationMs,
		StopReason:  m.StopReason,
		PlaylistID:  m.PlaylistID,
		CreatedAt:   m.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

// ============================================================================
// Helpers
// ============================================================================

// requireSession resolves the request session or writes a 401.
func (h *Handlers) requireSession(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	session := h.sessions.GetFromRequest(r)
	if session == nil {
		respondError(w, http.StatusUnauthorized, "not authenticated")
		return nil, false
	}
	return session, true
}

// spotifyClient builds an API client bound to the session's token.
func (h *Handlers) spotifyClient(r *http.Request, session *Session) *spotify.Client {
	api := spotifyapi.New(h.auth.Client(r.Context(), session.Token), spotifyapi.WithRetry(true))
	return spotify.New(api)
}

// saveRefreshedToken writes the token back to the session store when the
// oauth2 transport refreshed it while serving the request, so later
// requests reuse the fresh token instead of refreshing again.
func (h *Handlers) saveRefreshedToken(ctx context.Context, session *Session, client *spotify.Client) {
	token, err := client.Token()
	if err != nil || token.AccessToken == session.Token.AccessToken {
		return
	}
	h.sessions.UpdateToken(ctx, session.ID, token)
}

func (h *Handlers) respondRunError(w http.ResponseWriter, userID string, err error) {
	if errors.Is(err, mixes.ErrNoSources) {
		respondError(w, http.StatusBadRequest, mixes.ErrNoSources.Error())
		return
	}
	h.logger.Error("mix run failed", "user", userID, "err", err)
	respondError(w, http.StatusBadGateway, "failed to fetch source playlists")
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	// Headers are already written; an encode failure here is unrecoverable.
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// generateOAuthState creates a random state string for OAuth.
func generateOAuthState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

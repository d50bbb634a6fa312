// Package api provides the HTTP clients for the Spotify Web API and the
// YouTube Data API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

const (
	spotifyBaseURL  = "https://api.spotify.com/v1"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	requestTimeout  = 30 * time.Second

	maxRetries       = 3
	retryWaitTime    = 500 * time.Millisecond
	retryMaxWaitTime = 5 * time.Second

	// Tokens are refreshed this long before they actually expire.
	tokenExpiryBuffer = 60 * time.Second

	DefaultMarket = "US"
)

// ErrMissingCredentials is returned when no client ID or secret is configured.
var ErrMissingCredentials = errors.New("spotify client credentials are not configured")

// APIError represents a Spotify API error response.
type APIError struct {
	ErrorInfo struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Spotify API error %d: %s", e.ErrorInfo.Status, e.ErrorInfo.Message)
}

// IsNotFound reports whether err is a Spotify 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorInfo.Status == http.StatusNotFound
	}
	return false
}

// SpotifyClient talks to the Spotify Web API using the client credentials flow.
// It is safe for concurrent use.
type SpotifyClient struct {
	client       *resty.Client
	tokenURL     string
	clientID     string
	clientSecret string
	market       string

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
	now         func() time.Time
}

// NewSpotifyClient creates a new Spotify API client with sensible defaults.
func NewSpotifyClient(clientID, clientSecret, market string) *SpotifyClient {
	return newSpotifyClient(spotifyBaseURL, spotifyTokenURL, clientID, clientSecret, market)
}

func newSpotifyClient(baseURL, tokenURL, clientID, clientSecret, market string) *SpotifyClient {
	if market == "" {
		market = DefaultMarket
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(requestTimeout).
		SetRetryCount(maxRetries).
		SetRetryWaitTime(retryWaitTime).
		SetRetryMaxWaitTime(retryMaxWaitTime).
		AddRetryCondition(shouldRetry)

	return &SpotifyClient{
		client:       client,
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		market:       market,
		now:          time.Now,
	}
}

func shouldRetry(r *resty.Response, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	if r == nil {
		return false
	}
	return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
}

// Market returns the country code used for market-dependent requests.
func (c *SpotifyClient) Market() string {
	return c.market
}

func (c *SpotifyClient) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && c.now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	if c.clientID == "" || c.clientSecret == "" {
		return "", ErrMissingCredentials
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetBasicAuth(c.clientID, c.clientSecret).
		SetFormData(map[string]string{"grant_type": "client_credentials"}).
		Post(c.tokenURL)
	if err != nil {
		return "", fmt.Errorf("failed to fetch access token: %w", err)
	}

	if !resp.IsSuccess() {
		return "", fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode(), resp.Status())
	}

	var tok tokenResponse
	if err := json.Unmarshal(resp.Body(), &tok); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", errors.New("token endpoint returned an empty access token")
	}

	lifetime := time.Duration(tok.ExpiresIn) * time.Second
	if lifetime > tokenExpiryBuffer {
		lifetime -= tokenExpiryBuffer
	}

	c.accessToken = tok.AccessToken
	c.tokenExpiry = c.now().Add(lifetime)
	log.Debug().Msgf("Obtained Spotify access token, valid for %v", lifetime)

	return c.accessToken, nil
}

func (c *SpotifyClient) invalidateToken() {
	c.mu.Lock()
	c.accessToken = ""
	c.tokenExpiry = time.Time{}
	c.mu.Unlock()
}

// get performs an authenticated GET and decodes the JSON body into out.
// A 401 invalidates the cached token and is retried once.
func (c *SpotifyClient) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	for attempt := 0; attempt < 2; attempt++ {
		token, err := c.token(ctx)
		if err != nil {
			return err
		}

		resp, err := c.client.R().
			SetContext(ctx).
			SetAuthToken(token).
			SetQueryParamsFromValues(params).
			Get(path)
		if err != nil {
			return fmt.Errorf("failed to fetch %s: %w", path, err)
		}

		if resp.StatusCode() == http.StatusUnauthorized && attempt == 0 {
			log.Debug().Msgf("Spotify token rejected for %s, refreshing", path)
			c.invalidateToken()
			continue
		}

		if !resp.IsSuccess() {
			var apiErr APIError
			if err := json.Unmarshal(resp.Body(), &apiErr); err == nil && apiErr.ErrorInfo.Message != "" {
				return &apiErr
			}
			return fmt.Errorf("api returned status %d: %s", resp.StatusCode(), resp.Status())
		}

		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return fmt.Errorf("failed to parse %s response: %w", path, err)
		}
		return nil
	}

	return fmt.Errorf("failed to fetch %s: unauthorized", path)
}

// GetTrack fetches a single track by ID.
func (c *SpotifyClient) GetTrack(ctx context.Context, trackID string) (*Track, error) {
	if trackID == "" {
		return nil, errors.New("track id is empty")
	}

	var t Track
	params := url.Values{"market": {c.market}}
	if err := c.get(ctx, "/tracks/"+url.PathEscape(trackID), params, &t); err != nil {
		return nil, fmt.Errorf("failed to get track %s: %w", trackID, err)
	}
	return &t, nil
}

// GetNewReleases fetches recently released albums.
func (c *SpotifyClient) GetNewReleases(ctx context.Context, limit int) ([]Album, error) {
	var response newReleasesResponse
	params := url.Values{
		"limit":   {strconv.Itoa(limit)},
		"country": {c.market},
	}
	if err := c.get(ctx, "/browse/new-releases", params, &response); err != nil {
		return nil, fmt.Errorf("failed to get new releases: %w", err)
	}
	return response.Albums.Items, nil
}

// GetCategories fetches browse categories.
func (c *SpotifyClient) GetCategories(ctx context.Context, limit int) ([]Category, error) {
	var response categoriesResponse
	params := url.Values{
		"limit":   {strconv.Itoa(limit)},
		"country": {c.market},
	}
	if err := c.get(ctx, "/browse/categories", params, &response); err != nil {
		return nil, fmt.Errorf("failed to get categories: %w", err)
	}
	return response.Categories.Items, nil
}

// SearchTracks runs a track search. The query uses Spotify's field filter
// syntax, e.g. `artist:"Daft Punk"`.
func (c *SpotifyClient) SearchTracks(ctx context.Context, query string, limit int) ([]Track, error) {
	if query == "" {
		return nil, nil
	}

	var response searchResponse
	params := url.Values{
		"q":      {query},
		"type":   {"track"},
		"limit":  {strconv.Itoa(limit)},
		"market": {c.market},
	}
	if err := c.get(ctx, "/search", params, &response); err != nil {
		return nil, fmt.Errorf("failed to search tracks: %w", err)
	}
	if response.Tracks == nil {
		return nil, nil
	}
	return response.Tracks.Items, nil
}

// GetPopularGenreTracks searches tracks tagged with the given genre.
func (c *SpotifyClient) GetPopularGenreTracks(ctx context.Context, genre string, limit int) ([]Track, error) {
	if genre == "" {
		genre = "pop"
	}
	return c.SearchTracks(ctx, "genre:"+genre, limit)
}

// GetArtistTopTracks fetches an artist's most popular tracks in the client's market.
func (c *SpotifyClient) GetArtistTopTracks(ctx context.Context, artistID string) ([]Track, error) {
	var response topTracksResponse
	params := url.Values{"market": {c.market}}
	if err := c.get(ctx, "/artists/"+url.PathEscape(artistID)+"/top-tracks", params, &response); err != nil {
		return nil, fmt.Errorf("failed to get top tracks for artist %s: %w", artistID, err)
	}
	return response.Tracks, nil
}

// GetAlbum fetches an album together with its track listing. The returned
// tracks carry a reference to the album since the listing omits it.
func (c *SpotifyClient) GetAlbum(ctx context.Context, albumID string) (*Album, error) {
	var album Album
	params := url.Values{"market": {c.market}}
	if err := c.get(ctx, "/albums/"+url.PathEscape(albumID), params, &album); err != nil {
		return nil, fmt.Errorf("failed to get album %s: %w", albumID, err)
	}

	if album.Tracks != nil {
		ref := album
		ref.Tracks = nil
		for i := range album.Tracks.Items {
			if album.Tracks.Items[i].Album == nil {
				album.Tracks.Items[i].Album = &ref
			}
		}
	}
	return &album, nil
}

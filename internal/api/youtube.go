package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

const youtubeBaseURL = "https://www.googleapis.com/youtube/v3"

// ErrLookupNotConfigured is returned by FindVideo when no API key is set.
var ErrLookupNotConfigured = errors.New("youtube api key is not configured")

// YouTubeClient finds a full-length video for a track via the YouTube Data API.
type YouTubeClient struct {
	client *resty.Client
	apiKey string
}

// NewYouTubeClient creates a client for the YouTube Data API.
func NewYouTubeClient(apiKey string) *YouTubeClient {
	return newYouTubeClient(youtubeBaseURL, apiKey)
}

func newYouTubeClient(baseURL, apiKey string) *YouTubeClient {
	return &YouTubeClient{
		client: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(requestTimeout),
		apiKey: apiKey,
	}
}

type youtubeSearchResponse struct {
	Items []struct {
		ID struct {
			Kind    string `json:"kind"`
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet struct {
			Title        string `json:"title"`
			ChannelTitle string `json:"channelTitle"`
		} `json:"snippet"`
	} `json:"items"`
}

// SearchQuery builds the lookup query for a track.
func SearchQuery(title, artist string) string {
	return strings.TrimSpace(strings.TrimSpace(title+" "+artist) + " official audio")
}

// FindVideo returns the ID of the best matching video for the track, or ""
// with a nil error when the search has no results.
func (c *YouTubeClient) FindVideo(ctx context.Context, title, artist string) (string, error) {
	if c.apiKey == "" {
		return "", ErrLookupNotConfigured
	}

	query := SearchQuery(title, artist)
	log.Debug().Str("query", query).Msg("Searching fallback video")

	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"part":       "snippet",
			"maxResults": "1",
			"q":          query,
			"type":       "video",
			"key":        c.apiKey,
		}).
		Get("/search")
	if err != nil {
		return "", fmt.Errorf("failed to search videos: %w", err)
	}

	if !resp.IsSuccess() {
		return "", fmt.Errorf("youtube api returned status %d: %s", resp.StatusCode(), resp.Status())
	}

	var response youtubeSearchResponse
	if err := json.Unmarshal(resp.Body(), &response); err != nil {
		return "", fmt.Errorf("failed to parse video search response: %w", err)
	}

	if len(response.Items) == 0 {
		return "", nil
	}

	return response.Items[0].ID.VideoID, nil
}

// WatchURL returns the canonical watch page URL for a video.
func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}

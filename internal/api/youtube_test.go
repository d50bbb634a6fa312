package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func setupYouTubeServer(handler http.HandlerFunc) (*httptest.Server, *YouTubeClient) {
	server := httptest.NewServer(handler)
	return server, newYouTubeClient(server.URL, "key")
}

func TestFindVideo(t *testing.T) {
	server, client := setupYouTubeServer(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("Expected path /search, got %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("q") != "Get Lucky Daft Punk official audio" {
			t.Errorf("q = %q", q.Get("q"))
		}
		if q.Get("maxResults") != "1" || q.Get("type") != "video" || q.Get("part") != "snippet" {
			t.Errorf("unexpected query %v", q)
		}
		if q.Get("key") != "key" {
			t.Errorf("key = %q, want %q", q.Get("key"), "key")
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items": [{"id": {"kind": "youtube#video", "videoId": "5NV6Rdv1a3I"}, "snippet": {"title": "Get Lucky"}}]}`))
	})
	defer server.Close()

	id, err := client.FindVideo(context.Background(), "Get Lucky", "Daft Punk")
	if err != nil {
		t.Fatalf("FindVideo() error = %v", err)
	}
	if id != "5NV6Rdv1a3I" {
		t.Errorf("FindVideo() = %q, want %q", id, "5NV6Rdv1a3I")
	}
}

func TestFindVideoNoResults(t *testing.T) {
	server, client := setupYouTubeServer(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items": []}`))
	})
	defer server.Close()

	id, err := client.FindVideo(context.Background(), "Nothing", "Nobody")
	if err != nil {
		t.Fatalf("FindVideo() error = %v", err)
	}
	if id != "" {
		t.Errorf("FindVideo() = %q, want empty", id)
	}
}

func TestFindVideoHTTPError(t *testing.T) {
	server, client := setupYouTubeServer(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	defer server.Close()

	if _, err := client.FindVideo(context.Background(), "a", "b"); err == nil {
		t.Error("FindVideo() should return error for 403")
	}
}

func TestFindVideoWithoutKey(t *testing.T) {
	client := NewYouTubeClient("")
	_, err := client.FindVideo(context.Background(), "a", "b")
	if !errors.Is(err, ErrLookupNotConfigured) {
		t.Errorf("FindVideo() error = %v, want ErrLookupNotConfigured", err)
	}
}

func TestSearchQuery(t *testing.T) {
	tests := []struct {
		title, artist, expected string
	}{
		{"Get Lucky", "Daft Punk", "Get Lucky Daft Punk official audio"},
		{"Get Lucky", "", "Get Lucky official audio"},
		{"", "", "official audio"},
	}

	for _, tt := range tests {
		if got := SearchQuery(tt.title, tt.artist); got != tt.expected {
			t.Errorf("SearchQuery(%q, %q) = %q, want %q", tt.title, tt.artist, got, tt.expected)
		}
	}
}

func TestWatchURL(t *testing.T) {
	if got := WatchURL("abc"); got != "https://www.youtube.com/watch?v=abc" {
		t.Errorf("WatchURL() = %q", got)
	}
}

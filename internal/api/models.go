package api

// Image represents an artwork rendition.
type Image struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// ExternalURLs contains external URLs for a resource.
type ExternalURLs struct {
	Spotify string `json:"spotify"`
}

// Artist represents a Spotify artist.
type Artist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Album represents a Spotify album. Tracks is only populated by GetAlbum.
type Album struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	AlbumType    string       `json:"album_type"`
	ReleaseDate  string       `json:"release_date"`
	TotalTracks  int          `json:"total_tracks"`
	Images       []Image      `json:"images"`
	Artists      []Artist     `json:"artists"`
	ExternalURLs ExternalURLs `json:"external_urls"`
	Tracks       *AlbumTracks `json:"tracks,omitempty"`
}

type AlbumTracks struct {
	Items []Track `json:"items"`
	Total int     `json:"total"`
}

// Track represents a Spotify track. PreviewURL is nullable upstream and
// decodes to "" when absent. Album is nil for album track listings.
type Track struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	URI          string       `json:"uri"`
	DurationMS   int          `json:"duration_ms"`
	Explicit     bool         `json:"explicit"`
	Popularity   int          `json:"popularity"`
	PreviewURL   string       `json:"preview_url"`
	Artists      []Artist     `json:"artists"`
	Album        *Album       `json:"album"`
	ExternalURLs ExternalURLs `json:"external_urls"`
}

// Category is a browse category, used as a genre.
type Category struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Icons []Image `json:"icons"`
}

type trackPage struct {
	Items  []Track `json:"items"`
	Total  int     `json:"total"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
}

type searchResponse struct {
	Tracks *trackPage `json:"tracks"`
}

type newReleasesResponse struct {
	Albums struct {
		Items []Album `json:"items"`
	} `json:"albums"`
}

type categoriesResponse struct {
	Categories struct {
		Items []Category `json:"items"`
	} `json:"categories"`
}

type topTracksResponse struct {
	Tracks []Track `json:"tracks"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

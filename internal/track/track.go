// Package track defines the data structures for playable tracks.
package track

import (
	"fmt"
	"strings"
	"time"
)

// Image is an artwork rendition.
type Image struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// Artist is a credited performer.
type Artist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Album is the release a track belongs to.
type Album struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Images []Image `json:"images"`
}

// Track is a resolved, playable catalog entry. A track handed out by the
// player is treated as immutable; changes are made on a copy.
type Track struct {
	ID          string
	Name        string
	Artists     []Artist
	Album       *Album
	ArtworkURL  string
	PreviewURL  string // Remote preview clip, or a file path for local tracks
	VideoID     string // Fallback video, filled in once found
	ExternalURL string
	Duration    time.Duration // Authoritative once a backend reports it
	Local       bool
	Index       int // Position in the local library; -1 for remote tracks
}

// Subtitle returns the artist names joined for display.
func (t *Track) Subtitle() string {
	if len(t.Artists) == 0 {
		return ""
	}
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		if a.Name != "" {
			names = append(names, a.Name)
		}
	}
	return strings.Join(names, ", ")
}

// PrimaryArtist returns the first credited artist, if any.
func (t *Track) PrimaryArtist() (Artist, bool) {
	if len(t.Artists) == 0 {
		return Artist{}, false
	}
	return t.Artists[0], true
}

// HasPreview reports whether a playable preview source exists.
func (t *Track) HasPreview() bool {
	return t.PreviewURL != ""
}

// Clone returns a copy that can be modified without affecting t.
func (t *Track) Clone() *Track {
	if t == nil {
		return nil
	}
	c := *t
	if t.Artists != nil {
		c.Artists = append([]Artist(nil), t.Artists...)
	}
	if t.Album != nil {
		album := *t.Album
		album.Images = append([]Image(nil), t.Album.Images...)
		c.Album = &album
	}
	return &c
}

// DisplayTitle returns "Artist - Name", or just the name when no artist is known.
func (t *Track) DisplayTitle() string {
	if sub := t.Subtitle(); sub != "" && t.Name != "" {
		return fmt.Sprintf("%s - %s", sub, t.Name)
	}
	return t.Name
}

// TimePair is a minutes/seconds split of a duration as shown on the seek bar.
type TimePair struct {
	Minutes int
	Seconds int
}

// SplitDuration floors d into whole minutes and seconds. Negative durations
// are treated as zero.
func SplitDuration(d time.Duration) TimePair {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return TimePair{Minutes: total / 60, Seconds: total % 60}
}

func (p TimePair) String() string {
	return fmt.Sprintf("%d:%02d", p.Minutes, p.Seconds)
}

// Duration converts the pair back to a time.Duration.
func (p TimePair) Duration() time.Duration {
	return time.Duration(p.Minutes)*time.Minute + time.Duration(p.Seconds)*time.Second
}

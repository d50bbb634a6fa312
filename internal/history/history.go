// Package history persists the listening history that personalizes recommendations.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/glebovdev/spotplay-cli/internal/cache"
	"github.com/glebovdev/spotplay-cli/internal/track"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

const (
	// Key names the persisted history; the file is <Key>.json.
	Key = "spotify_listen_history"
	// MaxEntries caps the number of remembered tracks.
	MaxEntries = 100

	recentWeight = 0.8
)

var unknownArtist = track.Artist{ID: "unknown", Name: "Unknown"}

// Entry is one remembered play, most recent first in the store.
type Entry struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Artists   []track.Artist `json:"artists"`
	Album     *track.Album   `json:"album"`
	Timestamp int64          `json:"timestamp"`
}

// Time returns the entry timestamp as a time.Time.
func (e Entry) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// ArtistScore is an artist with its recency-weighted play count.
type ArtistScore struct {
	ID    string
	Name  string
	Score float64
}

// Store is a bounded, most-recent-first listening history backed by a JSON file.
// It is safe for concurrent use.
type Store struct {
	path string
	now  func() time.Time

	mu       sync.RWMutex
	entries  []Entry
	lastData []byte

	subsMu  sync.Mutex
	subs    map[int]func()
	nextSub int
}

// DefaultPath returns the history file location inside the application cache directory.
func DefaultPath() (string, error) {
	dir, err := cache.GetCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, Key+".json"), nil
}

// NewStore opens the history stored at path. A missing or unreadable file
// yields an empty history.
func NewStore(path string) *Store {
	s := &Store{
		path: path,
		now:  time.Now,
		subs: make(map[int]func()),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Error().Err(err).Str("file", path).Msg("Failed to read listen history")
		}
		return s
	}

	entries, err := decode(data)
	if err != nil {
		log.Error().Err(err).Str("file", path).Msg("Failed to parse listen history")
		return s
	}

	s.entries = entries
	s.lastData = data
	return s
}

func decode(data []byte) ([]Entry, error) {
	var entries []Entry
	if len(data) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode history: %w", err)
	}
	if len(entries) > MaxEntries {
		entries = entries[:MaxEntries]
	}
	return entries, nil
}

// Record moves t to the front of the history, dropping the oldest entry when
// the history is full, persists it and notifies subscribers.
func (s *Store) Record(t track.Track) {
	if t.ID == "" {
		return
	}

	artists := append([]track.Artist(nil), t.Artists...)
	if len(artists) == 0 {
		artists = []track.Artist{unknownArtist}
	}

	var album *track.Album
	if t.Album != nil {
		a := *t.Album
		a.Images = append([]track.Image(nil), t.Album.Images...)
		album = &a
	}

	entry := Entry{
		ID:        t.ID,
		Name:      t.Name,
		Artists:   artists,
		Album:     album,
		Timestamp: s.now().UnixMilli(),
	}

	s.mu.Lock()
	rest := lo.Filter(s.entries, func(e Entry, _ int) bool {
		return e.ID != t.ID
	})
	entries := append([]Entry{entry}, rest...)
	if len(entries) > MaxEntries {
		entries = entries[:MaxEntries]
	}
	s.entries = entries
	err := s.saveLocked()
	s.mu.Unlock()

	if err != nil {
		log.Error().Err(err).Msg("Failed to save listen history")
	}

	log.Debug().Msgf("Recorded %q in listen history", t.Name)
	s.broadcast()
}

// Entries returns a copy of the history, most recent first.
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Entry(nil), s.entries...)
}

// Latest returns the most recent entry.
func (s *Store) Latest() (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.entries) == 0 {
		return Entry{}, false
	}
	return s.entries[0], true
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// TopArtists ranks artists by play count, where an entry at index i of n
// counts 1 - (i/n)*0.8. Ties keep first-seen order.
func (s *Store) TopArtists(limit int) []ArtistScore {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.entries)
	index := make(map[string]int)
	var scores []ArtistScore

	for i, e := range s.entries {
		weight := 1 - (float64(i)/float64(n))*recentWeight
		for _, a := range e.Artists {
			pos, ok := index[a.Name]
			if !ok {
				pos = len(scores)
				index[a.Name] = pos
				scores = append(scores, ArtistScore{ID: a.ID, Name: a.Name})
			}
			scores[pos].Score += weight
		}
	}

	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Score > scores[j].Score
	})

	if limit >= 0 && len(scores) > limit {
		scores = scores[:limit]
	}
	return scores
}

// Clear forgets every entry and removes the history file.
func (s *Store) Clear() error {
	s.mu.Lock()
	s.entries = nil
	s.lastData = nil
	err := os.Remove(s.path)
	s.mu.Unlock()

	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove history file: %w", err)
	}

	s.broadcast()
	return nil
}

// Subscribe registers fn to be called after every change. Callbacks run on
// the goroutine that made the change and must not block.
func (s *Store) Subscribe(fn func()) (cancel func()) {
	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subsMu.Unlock()

	return func() {
		s.subsMu.Lock()
		delete(s.subs, id)
		s.subsMu.Unlock()
	}
}

func (s *Store) broadcast() {
	s.subsMu.Lock()
	fns := lo.Values(s.subs)
	s.subsMu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// saveLocked writes the history atomically using temp file + rename.
func (s *Store) saveLocked() error {
	data, err := json.Marshal(s.entries)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".history-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("failed to rename history file: %w", err)
	}

	tmpPath = ""
	s.lastData = data
	return nil
}

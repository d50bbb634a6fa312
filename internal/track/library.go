package track

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const unknownArtist = "Unknown artist"

// ScanLibrary walks dir for MP3 files and returns them as local tracks,
// ordered by path. File names of the form "Artist - Title.mp3" are split into
// artist and title.
func ScanLibrary(dir string) ([]Track, error) {
	if dir == "" {
		return nil, nil
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open library directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("library path %s is not a directory", dir)
	}

	var paths []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".mp3") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan library: %w", err)
	}

	sort.Strings(paths)

	tracks := make([]Track, 0, len(paths))
	for i, path := range paths {
		artist, title := parseFileName(filepath.Base(path))
		tracks = append(tracks, Track{
			ID:         strconv.Itoa(i),
			Name:       title,
			Artists:    []Artist{{ID: "local", Name: artist}},
			PreviewURL: path,
			Local:      true,
			Index:      i,
		})
	}

	return tracks, nil
}

func parseFileName(name string) (artist, title string) {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	base = strings.TrimSpace(base)

	if parts := strings.SplitN(base, " - ", 2); len(parts) == 2 {
		artist = strings.TrimSpace(parts[0])
		title = strings.TrimSpace(parts[1])
		if artist != "" && title != "" {
			return artist, title
		}
	}

	return unknownArtist, base
}

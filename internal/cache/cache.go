// Package cache provides on-disk caching for album artwork and preview clips.
package cache

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultExpiry is how long cached entries are valid (7 days).
	DefaultExpiry = 7 * 24 * time.Hour
	// ArtworkSubdir holds decoded album covers re-encoded as PNG.
	ArtworkSubdir = "artwork"
	// ClipSubdir holds raw preview clip bytes.
	ClipSubdir = "previews"
	// AppName is used for the cache directory name.
	AppName = "spotplay"

	// Clips larger than this are not cached.
	maxClipSize = 4 << 20
)

// Cache manages disk-based caching of artwork and preview clips.
type Cache struct {
	baseDir string
	expiry  time.Duration
}

// NewCache creates a new Cache instance with the default expiry.
func NewCache() (*Cache, error) {
	cacheDir, err := GetCacheDir()
	if err != nil {
		return nil, err
	}

	return &Cache{
		baseDir: cacheDir,
		expiry:  DefaultExpiry,
	}, nil
}

// NewCacheAt creates a Cache rooted at dir.
func NewCacheAt(dir string, expiry time.Duration) *Cache {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &Cache{baseDir: dir, expiry: expiry}
}

// GetCacheDir returns the platform-specific cache directory for the application.
func GetCacheDir() (string, error) {
	userCacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user cache directory: %w", err)
	}

	cacheDir := filepath.Join(userCacheDir, AppName)
	return cacheDir, nil
}

// cacheKey hashes a URL without its query string, which for CDN links only
// carries tracking parameters.
func cacheKey(url string) string {
	if i := strings.IndexByte(url, '?'); i >= 0 {
		url = url[:i]
	}
	hash := md5.Sum([]byte(url))
	return hex.EncodeToString(hash[:])
}

func (c *Cache) entryPath(subdir, url, ext string) string {
	return filepath.Join(c.baseDir, subdir, cacheKey(url)+ext)
}

// fresh reports whether path exists and has not expired. Expired entries are removed.
func (c *Cache) fresh(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}

	if time.Since(info.ModTime()) > c.expiry {
		if err := os.Remove(path); err != nil {
			log.Debug().Err(err).Str("file", path).Msg("Failed to remove expired cache file")
		}
		return false
	}
	return true
}

// GetArtwork retrieves cached artwork by URL. Returns nil if not found or expired.
func (c *Cache) GetArtwork(url string) image.Image {
	path := c.entryPath(ArtworkSubdir, url, ".png")
	if !c.fresh(path) {
		return nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		log.Debug().Err(err).Str("file", path).Msg("Failed to decode cached artwork")
		return nil
	}

	return img
}

// SaveArtwork stores artwork in the cache, keyed by its URL.
func (c *Cache) SaveArtwork(url string, img image.Image) error {
	return c.writeAtomic(ArtworkSubdir, c.entryPath(ArtworkSubdir, url, ".png"), func(f *os.File) error {
		if err := png.Encode(f, img); err != nil {
			return fmt.Errorf("failed to encode image: %w", err)
		}
		return nil
	})
}

// GetClip returns the cached bytes of a preview clip.
func (c *Cache) GetClip(url string) ([]byte, bool) {
	path := c.entryPath(ClipSubdir, url, ".mp3")
	if !c.fresh(path) {
		return nil, false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	return data, true
}

// SaveClip stores the bytes of a preview clip.
func (c *Cache) SaveClip(url string, data []byte) error {
	if len(data) == 0 || len(data) > maxClipSize {
		return nil
	}
	return c.writeAtomic(ClipSubdir, c.entryPath(ClipSubdir, url, ".mp3"), func(f *os.File) error {
		_, err := f.Write(data)
		return err
	})
}

// writeAtomic writes through a temp file so readers never see partial entries.
func (c *Cache) writeAtomic(subdir, path string, write func(*os.File) error) error {
	dir := filepath.Join(c.baseDir, subdir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".entry-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if err := write(tmpFile); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return err
	}

	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close cache file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename cache file: %w", err)
	}

	return nil
}

// CleanExpired removes cache entries older than the expiry duration.
func (c *Cache) CleanExpired() error {
	var removed, failed int
	for _, subdir := range []string{ArtworkSubdir, ClipSubdir} {
		dir := filepath.Join(c.baseDir, subdir)

		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("failed to read cache directory: %w", err)
		}

		now := time.Now()
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}

			info, err := entry.Info()
			if err != nil {
				log.Debug().Err(err).Str("file", entry.Name()).Msg("Failed to get file info")
				continue
			}

			if now.Sub(info.ModTime()) > c.expiry {
				filePath := filepath.Join(dir, entry.Name())
				if err := os.Remove(filePath); err != nil {
					log.Debug().Err(err).Str("file", filePath).Msg("Failed to remove expired cache file")
					failed++
				} else {
					removed++
				}
			}
		}
	}

	if removed > 0 || failed > 0 {
		log.Debug().Int("removed", removed).Int("failed", failed).Msg("Cache cleanup completed")
	}

	return nil
}

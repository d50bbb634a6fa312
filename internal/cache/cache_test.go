package cache

import (
	"bytes"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCacheKey(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"simple URL", "http://example.com/image.png"},
		{"URL with query params", "https://p.scdn.co/mp3-preview/abc?cid=123"},
		{"empty string", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := cacheKey(tt.url)

			if len(result) != 32 {
				t.Errorf("cacheKey(%q) length = %d, want 32", tt.url, len(result))
			}

			for _, c := range result {
				if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
					t.Errorf("cacheKey(%q) contains non-hex character: %c", tt.url, c)
				}
			}
		})
	}
}

func TestCacheKeyIgnoresQuery(t *testing.T) {
	a := cacheKey("https://p.scdn.co/mp3-preview/abc?cid=1")
	b := cacheKey("https://p.scdn.co/mp3-preview/abc?cid=2")
	if a != b {
		t.Errorf("cacheKey differs by query string: %q != %q", a, b)
	}

	if cacheKey("http://example.com/1.png") == cacheKey("http://example.com/2.png") {
		t.Error("Different URLs produced same key")
	}
}

func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	return img
}

func TestSaveAndGetArtwork(t *testing.T) {
	cache := NewCacheAt(t.TempDir(), DefaultExpiry)

	testURL := "https://i.scdn.co/image/ab67616d0000b273"
	if err := cache.SaveArtwork(testURL, createTestImage(64, 64)); err != nil {
		t.Fatalf("SaveArtwork() error = %v", err)
	}

	img := cache.GetArtwork(testURL)
	if img == nil {
		t.Fatal("GetArtwork() returned nil, expected image")
	}

	bounds := img.Bounds()
	if bounds.Dx() != 64 || bounds.Dy() != 64 {
		t.Errorf("Retrieved image size = %dx%d, want 64x64", bounds.Dx(), bounds.Dy())
	}
}

func TestGetArtworkNonExistent(t *testing.T) {
	cache := NewCacheAt(t.TempDir(), DefaultExpiry)

	if cache.GetArtwork("http://example.com/nonexistent.png") != nil {
		t.Error("GetArtwork() for nonexistent URL should return nil")
	}
}

func TestGetArtworkExpired(t *testing.T) {
	tmpDir := t.TempDir()
	cache := NewCacheAt(tmpDir, time.Millisecond)

	testURL := "http://example.com/expired-image.png"
	if err := cache.SaveArtwork(testURL, createTestImage(8, 8)); err != nil {
		t.Fatalf("SaveArtwork() error = %v", err)
	}

	time.Sleep(10 * time.Millisecond)

	if cache.GetArtwork(testURL) != nil {
		t.Error("GetArtwork() for expired image should return nil")
	}

	path := filepath.Join(tmpDir, ArtworkSubdir, cacheKey(testURL)+".png")
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Expired artwork file should have been deleted")
	}
}

func TestSaveAndGetClip(t *testing.T) {
	cache := NewCacheAt(t.TempDir(), DefaultExpiry)

	data := []byte("ID3 fake mp3 payload")
	url := "https://p.scdn.co/mp3-preview/abc?cid=1"

	if _, ok := cache.GetClip(url); ok {
		t.Fatal("GetClip() before save should miss")
	}

	if err := cache.SaveClip(url, data); err != nil {
		t.Fatalf("SaveClip() error = %v", err)
	}

	got, ok := cache.GetClip("https://p.scdn.co/mp3-preview/abc?cid=2")
	if !ok {
		t.Fatal("GetClip() missed after save")
	}
	if !bytes.Equal(got, data) {
		t.Errorf("GetClip() = %q, want %q", got, data)
	}
}

func TestSaveClipSkipsEmptyAndOversized(t *testing.T) {
	tmpDir := t.TempDir()
	cache := NewCacheAt(tmpDir, DefaultExpiry)

	if err := cache.SaveClip("http://example.com/empty", nil); err != nil {
		t.Fatalf("SaveClip(nil) error = %v", err)
	}
	if err := cache.SaveClip("http://example.com/big", make([]byte, maxClipSize+1)); err != nil {
		t.Fatalf("SaveClip(oversized) error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(tmpDir, ClipSubdir)); !os.IsNotExist(err) {
		t.Error("SaveClip() should not create entries for empty or oversized clips")
	}
}

func TestCleanExpired(t *testing.T) {
	tmpDir := t.TempDir()
	cache := NewCacheAt(tmpDir, time.Millisecond)

	for _, url := range []string{"http://example.com/1.png", "http://example.com/2.png"} {
		if err := cache.SaveArtwork(url, createTestImage(4, 4)); err != nil {
			t.Fatalf("SaveArtwork(%q) error = %v", url, err)
		}
	}
	if err := cache.SaveClip("http://example.com/clip", []byte("abc")); err != nil {
		t.Fatalf("SaveClip() error = %v", err)
	}

	time.Sleep(10 * time.Millisecond)

	if err := cache.CleanExpired(); err != nil {
		t.Fatalf("CleanExpired() error = %v", err)
	}

	for _, subdir := range []string{ArtworkSubdir, ClipSubdir} {
		entries, err := os.ReadDir(filepath.Join(tmpDir, subdir))
		if err != nil {
			t.Fatalf("Failed to read %s directory: %v", subdir, err)
		}
		if len(entries) != 0 {
			t.Errorf("CleanExpired() left %d files in %s, want 0", len(entries), subdir)
		}
	}
}

func TestCleanExpiredKeepsValidFiles(t *testing.T) {
	cache := NewCacheAt(t.TempDir(), 24*time.Hour)

	testURL := "http://example.com/valid-image.png"
	if err := cache.SaveArtwork(testURL, createTestImage(4, 4)); err != nil {
		t.Fatalf("SaveArtwork() error = %v", err)
	}

	if err := cache.CleanExpired(); err != nil {
		t.Fatalf("CleanExpired() error = %v", err)
	}

	if cache.GetArtwork(testURL) == nil {
		t.Error("CleanExpired() should not remove valid (non-expired) artwork")
	}
}

func TestCleanExpiredNonExistentDirectory(t *testing.T) {
	cache := NewCacheAt(t.TempDir(), DefaultExpiry)

	if err := cache.CleanExpired(); err != nil {
		t.Errorf("CleanExpired() should not error on non-existent directory, got %v", err)
	}
}

func TestGetCacheDir(t *testing.T) {
	dir, err := GetCacheDir()
	if err != nil {
		t.Fatalf("GetCacheDir() error = %v", err)
	}

	if !filepath.IsAbs(dir) {
		t.Errorf("GetCacheDir() = %q, want absolute path", dir)
	}

	if filepath.Base(dir) != AppName {
		t.Errorf("GetCacheDir() directory name = %q, want %q", filepath.Base(dir), AppName)
	}
}

func TestNewCache(t *testing.T) {
	cache, err := NewCache()
	if err != nil {
		t.Fatalf("NewCache() error = %v", err)
	}

	if cache.baseDir == "" {
		t.Error("NewCache() cache.baseDir is empty")
	}
	if cache.expiry != DefaultExpiry {
		t.Errorf("NewCache() cache.expiry = %v, want %v", cache.expiry, DefaultExpiry)
	}
}

func TestNewCacheAtDefaultsExpiry(t *testing.T) {
	cache := NewCacheAt(t.TempDir(), 0)
	if cache.expiry != DefaultExpiry {
		t.Errorf("NewCacheAt(dir, 0).expiry = %v, want %v", cache.expiry, DefaultExpiry)
	}
}

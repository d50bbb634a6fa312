// Package service provides the business logic layer between the catalog API and the UI.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/glebovdev/spotplay-cli/internal/api"
	"github.com/glebovdev/spotplay-cli/internal/cache"
	"github.com/glebovdev/spotplay-cli/internal/config"
	"github.com/glebovdev/spotplay-cli/internal/track"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

const (
	imageLoadTimeout = 15 * time.Second
	requestTimeout   = 20 * time.Second

	HomeAlbumLimit   = 20
	HomeTrackLimit   = 20
	GenreLimit       = 30
	GenreTrackLimit  = 30
	SearchLimit      = 30
	DefaultGenreName = "pop"
)

// Catalog is the subset of the Spotify client the services use.
type Catalog interface {
	GetTrack(ctx context.Context, id string) (*api.Track, error)
	GetNewReleases(ctx context.Context, limit int) ([]api.Album, error)
	GetCategories(ctx context.Context, limit int) ([]api.Category, error)
	SearchTracks(ctx context.Context, query string, limit int) ([]api.Track, error)
	GetPopularGenreTracks(ctx context.Context, genre string, limit int) ([]api.Track, error)
	GetArtistTopTracks(ctx context.Context, artistID string) ([]api.Track, error)
	GetAlbum(ctx context.Context, albumID string) (*api.Album, error)
}

var errNoCatalog = errors.New("catalog is not configured")

// Album is a release as listed in the UI.
type Album struct {
	ID          string
	Name        string
	Artist      string
	ReleaseDate string
	ArtworkURL  string
	TotalTracks int
}

// Genre is a browse category.
type Genre struct {
	ID   string
	Name string
}

// HomeFeed is the landing view content.
type HomeFeed struct {
	Albums  []Album
	Popular []track.Track
}

// CatalogService fetches catalog data, converts it to playable tracks and
// keeps the home feed fresh.
type CatalogService struct {
	catalog     Catalog
	imageCache  *cache.Cache
	imageClient *resty.Client

	mu            sync.RWMutex
	home          HomeFeed
	refreshTicker *time.Ticker
	stopRefresh   chan struct{}
	onRefresh     func(HomeFeed)
}

// NewCatalogService creates a CatalogService. A nil catalog is allowed; every
// remote call then fails with an error.
func NewCatalogService(catalog Catalog) *CatalogService {
	imageCache, err := cache.NewCache()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize cache, artwork will not be cached")
	}

	if imageCache != nil {
		go func() {
			if err := imageCache.CleanExpired(); err != nil {
				log.Debug().Err(err).Msg("Failed to clean expired cache")
			}
		}()
	}

	return newCatalogService(catalog, imageCache)
}

func newCatalogService(catalog Catalog, imageCache *cache.Cache) *CatalogService {
	return &CatalogService{
		catalog:    catalog,
		imageCache: imageCache,
		imageClient: resty.New().
			SetTimeout(imageLoadTimeout).
			SetHeader("User-Agent", config.UserAgent()),
	}
}

// Available reports whether a catalog is configured.
func (s *CatalogService) Available() bool {
	return s.catalog != nil
}

// Cache returns the on-disk cache shared with the preview downloader, or nil.
func (s *CatalogService) Cache() *cache.Cache {
	return s.imageCache
}

func (s *CatalogService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, requestTimeout)
}

// GetHomeFeed fetches new releases and popular tracks.
func (s *CatalogService) GetHomeFeed(ctx context.Context) (HomeFeed, error) {
	home, err := s.fetchHome(ctx)
	if err != nil {
		return HomeFeed{}, err
	}

	s.mu.Lock()
	s.home = home
	s.mu.Unlock()

	return home, nil
}

func (s *CatalogService) fetchHome(ctx context.Context) (HomeFeed, error) {
	if s.catalog == nil {
		return HomeFeed{}, errNoCatalog
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var (
		wg                   sync.WaitGroup
		albums               []api.Album
		popular              []api.Track
		albumsErr, tracksErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		albums, albumsErr = s.catalog.GetNewReleases(ctx, HomeAlbumLimit)
	}()
	go func() {
		defer wg.Done()
		popular, tracksErr = s.catalog.GetPopularGenreTracks(ctx, DefaultGenreName, HomeTrackLimit)
	}()
	wg.Wait()

	if err := errors.Join(albumsErr, tracksErr); err != nil {
		return HomeFeed{}, fmt.Errorf("failed to load home feed: %w", err)
	}

	return HomeFeed{
		Albums:  lo.Map(albums, func(a api.Album, _ int) Album { return albumFromAPI(a) }),
		Popular: TracksFromAPI(popular),
	}, nil
}

// GetCachedHomeFeed returns the last successfully fetched home feed.
func (s *CatalogService) GetCachedHomeFeed() HomeFeed {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return HomeFeed{
		Albums:  append([]Album(nil), s.home.Albums...),
		Popular: append([]track.Track(nil), s.home.Popular...),
	}
}

// GetGenres lists browse categories.
func (s *CatalogService) GetGenres(ctx context.Context) ([]Genre, error) {
	if s.catalog == nil {
		return nil, errNoCatalog
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	categories, err := s.catalog.GetCategories(ctx, GenreLimit)
	if err != nil {
		return nil, err
	}
	return lo.Map(categories, func(c api.Category, _ int) Genre {
		return Genre{ID: c.ID, Name: c.Name}
	}), nil
}

// GetGenreTracks returns popular tracks for a genre.
func (s *CatalogService) GetGenreTracks(ctx context.Context, genre Genre) ([]track.Track, error) {
	if s.catalog == nil {
		return nil, errNoCatalog
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tracks, err := s.catalog.GetPopularGenreTracks(ctx, GenreQuery(genre.Name), GenreTrackLimit)
	if err != nil {
		return nil, err
	}
	return TracksFromAPI(tracks), nil
}

// GenreQuery normalizes a category name for a genre filter.
func GenreQuery(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return DefaultGenreName
	}
	return name
}

// GetAlbumTracks returns the tracks of an album.
func (s *CatalogService) GetAlbumTracks(ctx context.Context, albumID string) ([]track.Track, error) {
	if s.catalog == nil {
		return nil, errNoCatalog
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	album, err := s.catalog.GetAlbum(ctx, albumID)
	if err != nil {
		return nil, err
	}
	if album.Tracks == nil {
		return nil, nil
	}
	return TracksFromAPI(album.Tracks.Items), nil
}

// Search looks up tracks matching query. A blank query returns no results.
func (s *CatalogService) Search(ctx context.Context, query string) ([]track.Track, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if s.catalog == nil {
		return nil, errNoCatalog
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tracks, err := s.catalog.SearchTracks(ctx, query, SearchLimit)
	if err != nil {
		return nil, err
	}
	return TracksFromAPI(tracks), nil
}

// ResolveTrack fetches full metadata for a catalog track.
func (s *CatalogService) ResolveTrack(ctx context.Context, id string) (track.Track, error) {
	if s.catalog == nil {
		return track.Track{}, errNoCatalog
	}
	t, err := s.catalog.GetTrack(ctx, id)
	if err != nil {
		return track.Track{}, err
	}
	return TrackFromAPI(*t), nil
}

// LoadImage downloads artwork, consulting the disk cache first.
func (s *CatalogService) LoadImage(url string) (image.Image, error) {
	if s.imageCache != nil {
		if img := s.imageCache.GetArtwork(url); img != nil {
			log.Debug().Str("url", url).Msg("Artwork loaded from cache")
			return img, nil
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), imageLoadTimeout)
	defer cancel()

	resp, err := s.imageClient.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch artwork: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("artwork returned status %d", resp.StatusCode())
	}

	img, _, err := image.Decode(bytes.NewReader(resp.Body()))
	if err != nil {
		return nil, fmt.Errorf("failed to decode artwork: %w", err)
	}

	if s.imageCache != nil {
		go func() {
			if err := s.imageCache.SaveArtwork(url, img); err != nil {
				log.Debug().Err(err).Str("url", url).Msg("Failed to cache artwork")
			} else {
				log.Debug().Str("url", url).Msg("Artwork cached")
			}
		}()
	}

	return img, nil
}

// StartPeriodicRefresh refetches the home feed every interval and passes
// each successful result to callback.
func (s *CatalogService) StartPeriodicRefresh(interval time.Duration, callback func(HomeFeed)) {
	s.StopPeriodicRefresh()

	s.mu.Lock()
	s.onRefresh = callback
	s.stopRefresh = make(chan struct{})
	s.refreshTicker = time.NewTicker(interval)
	ticker := s.refreshTicker
	stopCh := s.stopRefresh
	s.mu.Unlock()

	go func() {
		for {
			select {
			case <-ticker.C:
				s.refreshInBackground()
			case <-stopCh:
				ticker.Stop()
				return
			}
		}
	}()

	log.Debug().Dur("interval", interval).Msg("Started periodic home feed refresh")
}

func (s *CatalogService) StopPeriodicRefresh() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopRefresh != nil {
		close(s.stopRefresh)
		s.stopRefresh = nil
	}
}

func (s *CatalogService) refreshInBackground() {
	home, err := s.fetchHome(context.Background())
	if err != nil {
		log.Warn().Err(err).Msg("Background refresh failed, keeping cached data")
		return
	}

	s.mu.Lock()
	s.home = home
	callback := s.onRefresh
	s.mu.Unlock()

	if callback != nil {
		callback(home)
	}

	log.Debug().Int("albums", len(home.Albums)).Int("tracks", len(home.Popular)).Msg("Home feed refreshed in background")
}

// TrackFromAPI converts a catalog track into a playable remote track.
func TrackFromAPI(t api.Track) track.Track {
	out := track.Track{
		ID:          t.ID,
		Name:        t.Name,
		Artists:     lo.Map(t.Artists, func(a api.Artist, _ int) track.Artist { return track.Artist{ID: a.ID, Name: a.Name} }),
		PreviewURL:  t.PreviewURL,
		ExternalURL: t.ExternalURLs.Spotify,
		Duration:    time.Duration(t.DurationMS) * time.Millisecond,
		Index:       -1,
	}

	if t.Album != nil {
		out.Album = &track.Album{
			ID:     t.Album.ID,
			Name:   t.Album.Name,
			Images: lo.Map(t.Album.Images, func(img api.Image, _ int) track.Image { return track.Image(img) }),
		}
		out.ArtworkURL = artworkURL(t.Album.Images)
	}
	return out
}

// TracksFromAPI converts a list of catalog tracks.
func TracksFromAPI(tracks []api.Track) []track.Track {
	return lo.Map(tracks, func(t api.Track, _ int) track.Track { return TrackFromAPI(t) })
}

func albumFromAPI(a api.Album) Album {
	return Album{
		ID:          a.ID,
		Name:        a.Name,
		Artist:      strings.Join(lo.Map(a.Artists, func(ar api.Artist, _ int) string { return ar.Name }), ", "),
		ReleaseDate: a.ReleaseDate,
		ArtworkURL:  artworkURL(a.Images),
		TotalTracks: a.TotalTracks,
	}
}

// artworkURL picks the smallest rendition that is still at least 200px
// wide, which is plenty for a terminal.
func artworkURL(images []api.Image) string {
	if len(images) == 0 {
		return ""
	}
	best := images[0]
	for _, img := range images[1:] {
		if img.Width >= 200 && img.Width < best.Width {
			best = img
		}
	}
	return best.URL
}

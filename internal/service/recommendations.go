package service

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/glebovdev/spotplay-cli/internal/api"
	"github.com/glebovdev/spotplay-cli/internal/history"
	"github.com/glebovdev/spotplay-cli/internal/track"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/samber/lo/mutable"
)

const (
	DefaultRecommendationLimit = 10
	recommendationTopArtists   = 3
	recommendationTimeout      = 20 * time.Second
)

// ListenHistory is the part of the history store the recommender reads.
type ListenHistory interface {
	Latest() (history.Entry, bool)
	TopArtists(limit int) []history.ArtistScore
	Subscribe(fn func()) (cancel func())
}

// Recommender builds the "made for you" list from the listening history.
// Lookup failures never surface; they produce an empty list.
type Recommender struct {
	catalog Catalog
	history ListenHistory
	limit   int
	shuffle func([]api.Track)

	mu     sync.RWMutex
	cached []track.Track
	cancel func()
	done   chan struct{}
}

// NewRecommender creates a Recommender returning up to limit tracks.
func NewRecommender(catalog Catalog, h ListenHistory, limit int) *Recommender {
	if limit <= 0 {
		limit = DefaultRecommendationLimit
	}
	return &Recommender{
		catalog: catalog,
		history: h,
		limit:   limit,
		shuffle: mutable.Shuffle[api.Track, []api.Track],
	}
}

// MadeForYou returns up to limit tracks personalized from the history. The
// latest played artist wins; otherwise the top weighted artists are searched
// and their results merged; with no history it falls back to popular tracks.
func (r *Recommender) MadeForYou(ctx context.Context, limit int) []track.Track {
	if r.catalog == nil {
		return nil
	}
	tracks, err := r.madeForYou(ctx, limit)
	if err != nil {
		log.Debug().Err(err).Msg("Failed to build recommendations")
		return nil
	}
	return TracksFromAPI(tracks)
}

func (r *Recommender) madeForYou(ctx context.Context, limit int) ([]api.Track, error) {
	if r.history != nil {
		if latest, ok := r.history.Latest(); ok && len(latest.Artists) > 0 {
			return r.artistTracks(ctx, latest.Artists[0], limit)
		}
	}

	var top []history.ArtistScore
	if r.history != nil {
		top = r.history.TopArtists(recommendationTopArtists)
	}
	if len(top) == 0 {
		return r.catalog.GetPopularGenreTracks(ctx, DefaultGenreName, limit)
	}

	var merged []api.Track
	for _, artist := range top {
		if len(merged) >= limit {
			break
		}
		per := int(math.Ceil(float64(limit-len(merged)) / float64(len(top))))
		found, err := r.catalog.SearchTracks(ctx, "artist:"+artist.Name, per)
		if err != nil {
			return nil, err
		}
		merged = append(merged, found...)
	}

	merged = lo.UniqBy(merged, func(t api.Track) string { return t.ID })
	r.shuffle(merged)
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

// artistTracks searches tracks credited to artist, falling back to the
// artist's top tracks when the search comes back empty.
func (r *Recommender) artistTracks(ctx context.Context, artist track.Artist, limit int) ([]api.Track, error) {
	found, err := r.catalog.SearchTracks(ctx, fmt.Sprintf("artist:%q", artist.Name), limit)
	if err != nil {
		return nil, err
	}
	if len(found) > 0 {
		return found, nil
	}
	if artist.ID == "" {
		return nil, nil
	}
	return r.catalog.GetArtistTopTracks(ctx, artist.ID)
}

// CurrentArtistName is the artist the feed is currently built around, if any.
func (r *Recommender) CurrentArtistName() string {
	if r.history == nil {
		return ""
	}
	latest, ok := r.history.Latest()
	if !ok || len(latest.Artists) == 0 {
		return ""
	}
	return latest.Artists[0].Name
}

// Cached returns the most recently computed list.
func (r *Recommender) Cached() []track.Track {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]track.Track(nil), r.cached...)
}

// Refresh recomputes the list and stores it.
func (r *Recommender) Refresh(ctx context.Context) []track.Track {
	ctx, cancel := context.WithTimeout(ctx, recommendationTimeout)
	defer cancel()

	tracks := r.MadeForYou(ctx, r.limit)

	r.mu.Lock()
	r.cached = tracks
	r.mu.Unlock()
	return tracks
}

// Start computes the list once and again after every history change,
// passing each result to onUpdate. Bursts of changes collapse into one
// refresh.
func (r *Recommender) Start(onUpdate func([]track.Track)) {
	r.Stop()

	refreshC := make(chan struct{}, 1)
	done := make(chan struct{})
	refreshC <- struct{}{}

	var cancel func()
	if r.history != nil {
		cancel = r.history.Subscribe(func() {
			select {
			case refreshC <- struct{}{}:
			default:
			}
		})
	}

	r.mu.Lock()
	r.cancel = cancel
	r.done = done
	r.mu.Unlock()

	go func() {
		for {
			select {
			case <-refreshC:
				tracks := r.Refresh(context.Background())
				log.Debug().Int("tracks", len(tracks)).Str("artist", r.CurrentArtistName()).Msg("Recommendations refreshed")
				if onUpdate != nil {
					onUpdate(tracks)
				}
			case <-done:
				return
			}
		}
	}()
}

// Stop ends the refresh loop started by Start.
func (r *Recommender) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	if r.done != nil {
		close(r.done)
		r.done = nil
	}
}

package player

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
)

const fallbackSearchStatus = "Searching for the full-length version..."

// startFallback looks up a full-length video for the current track and hands
// playback to the fallback backend. It runs at most once per request; later
// triggers while it is in flight, or after it failed, are ignored.
func (c *Controller) startFallback(req uint64, cause error) {
	if c.isStale(req) {
		return
	}
	if c.fallbackReq == req {
		log.Debug().Err(cause).Msg("Fallback already attempted for this request")
		return
	}
	c.fallbackReq = req

	log.Info().Err(cause).Str("request", c.requestID).Msg("Switching to full-length fallback")

	c.detachActive()
	c.state.Phase = PhaseLoading
	c.state.Status = fallbackSearchStatus

	t := c.state.Track
	if t == nil || t.Name == "" {
		id := ""
		if t != nil {
			id = t.ID
		}
		c.failRequest(&PlaybackError{Kind: ErrFallbackNotFound, TrackID: id, Err: cause})
		return
	}

	if c.deps.Fallback == nil {
		c.failRequest(&PlaybackError{Kind: ErrEmbedUnavailable, TrackID: t.ID, Err: cause})
		return
	}

	if t.VideoID != "" {
		c.onVideoFound(req, t.VideoID)
		return
	}

	finder := c.deps.Finder
	if finder == nil {
		c.failRequest(&PlaybackError{Kind: ErrFallbackLookup, TrackID: t.ID, Err: errors.New("no video search configured")})
		return
	}

	ctx := c.reqCtx
	timeout := c.opts.LookupTimeout
	trackID, title, artist := t.ID, t.Name, t.Subtitle()

	go func() {
		lctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		videoID, err := finder.FindVideo(lctx, title, artist)

		c.post(func() {
			if c.isStale(req) {
				return
			}
			if err != nil {
				c.failRequest(&PlaybackError{Kind: ErrFallbackLookup, TrackID: trackID, Err: err})
				return
			}
			if videoID == "" {
				c.failRequest(&PlaybackError{Kind: ErrFallbackNotFound, TrackID: trackID})
				return
			}
			c.onVideoFound(req, videoID)
		})
	}()
}

func (c *Controller) onVideoFound(req uint64, videoID string) {
	t := c.state.Track.Clone()
	t.VideoID = videoID
	c.state.Track = t
	c.videoCache.Add(t.ID, videoID)

	log.Debug().Str("request", c.requestID).Msgf("Fallback video %s for %s", videoID, t.DisplayTitle())

	fallback := c.deps.Fallback
	ctx := c.reqCtx
	go func() {
		err := fallback.Attach(ctx, videoID)
		c.post(func() {
			if c.isStale(req) {
				return
			}
			if err != nil {
				kind := ErrPlaybackStart
				if errors.Is(err, ErrEmbedUnavailable) {
					kind = ErrEmbedUnavailable
				}
				c.failRequest(&PlaybackError{Kind: kind, TrackID: t.ID, Err: err})
				return
			}
			c.startFallbackPlayback(req)
		})
	}()
}

func (c *Controller) startFallbackPlayback(req uint64) {
	fallback := c.deps.Fallback
	if c.deps.Preview != nil {
		c.deps.Preview.Detach()
	}

	c.active = fallback
	c.state.Active = BackendFallback
	c.unsubscribe = fallback.Subscribe(c.listenerFor(req, fallback))

	if err := fallback.Play(); err != nil {
		kind := ErrPlaybackStart
		if errors.Is(err, ErrEmbedUnavailable) {
			kind = ErrEmbedUnavailable
		}
		c.failRequest(&PlaybackError{Kind: kind, TrackID: c.state.Track.ID, Err: err})
		return
	}

	c.state.IsPlaying = true
	c.state.Phase = PhasePlayingFallback
	c.state.Status = ""
	c.clearError()
	c.resetProgress()
	c.startPoller(req, fallback)
	c.recordOnce(req)
}

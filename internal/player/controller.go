// Package player orchestrates playback across the preview and fallback
// backends and exposes a single observable PlaybackState.
package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/glebovdev/spotplay-cli/internal/track"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"
)

const (
	DefaultPreviewCeiling  = 31 * time.Second
	DefaultPollInterval    = time.Second
	DefaultErrorClearDelay = 10 * time.Second
	DefaultResolveTimeout  = 15 * time.Second
	DefaultLookupTimeout   = 15 * time.Second

	// videoCacheSize bounds the remembered track → video mappings, matching
	// the listening history capacity.
	videoCacheSize = 100
)

// TrackResolver turns a catalog ID into playable metadata.
type TrackResolver interface {
	ResolveTrack(ctx context.Context, id string) (track.Track, error)
}

// VideoFinder looks up a full-length video for a track. An empty ID with a
// nil error means nothing was found.
type VideoFinder interface {
	FindVideo(ctx context.Context, title, artist string) (string, error)
}

// HistoryRecorder remembers tracks that started playing.
type HistoryRecorder interface {
	Record(t track.Track)
}

// Deps are the collaborators a Controller drives. Any of them may be nil, in
// which case the operations needing it fail gracefully.
type Deps struct {
	Resolver TrackResolver
	Finder   VideoFinder
	Recorder HistoryRecorder
	Preview  Backend
	Fallback Backend
	Library  []track.Track
}

// Options tune controller timing. Zero values select the defaults.
type Options struct {
	PreviewCeiling  time.Duration
	PollInterval    time.Duration
	ErrorClearDelay time.Duration
	ResolveTimeout  time.Duration
	LookupTimeout   time.Duration
}

func (o Options) withDefaults() Options {
	if o.PreviewCeiling <= 0 {
		o.PreviewCeiling = DefaultPreviewCeiling
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.ErrorClearDelay <= 0 {
		o.ErrorClearDelay = DefaultErrorClearDelay
	}
	if o.ResolveTimeout <= 0 {
		o.ResolveTimeout = DefaultResolveTimeout
	}
	if o.LookupTimeout <= 0 {
		o.LookupTimeout = DefaultLookupTimeout
	}
	return o
}

type playRequest struct {
	hint *track.Track
}

// PlayOption customizes a PlayTrack call.
type PlayOption func(*playRequest)

// WithHint supplies listing metadata shown while the track resolves and used
// to search for a fallback if resolution fails.
func WithHint(t track.Track) PlayOption {
	return func(r *playRequest) {
		r.hint = t.Clone()
	}
}

// Controller owns the playback state machine. All state changes happen on a
// single event loop goroutine; public methods only enqueue work and never block.
type Controller struct {
	deps    Deps
	opts    Options
	library []track.Track

	queue     *taskQueue
	done      chan struct{}
	closeOnce sync.Once

	// History writes touch the disk, so they run in order off the loop.
	recordQ    *taskQueue
	recordDone chan struct{}

	stateMu   sync.RWMutex
	published PlaybackState

	subsMu  sync.Mutex
	subs    map[int]func(PlaybackState)
	nextSub int

	pollTimer  timerSlot
	errorTimer timerSlot

	// Owned by the event loop.
	state       PlaybackState
	requestSeq  uint64
	requestID   string
	reqCtx      context.Context
	reqCancel   context.CancelFunc
	remote      bool
	active      Backend
	unsubscribe func()
	fallbackReq uint64
	recordedReq uint64
	videoCache  *lru.Cache[string, string]
	closed      bool
}

// NewController starts a controller. Call Close to stop it.
func NewController(deps Deps, opts Options) *Controller {
	videos, _ := lru.New[string, string](videoCacheSize) // only fails for a non-positive size
	c := &Controller{
		deps:       deps,
		opts:       opts.withDefaults(),
		library:    append([]track.Track(nil), deps.Library...),
		queue:      newTaskQueue(),
		done:       make(chan struct{}),
		recordQ:    newTaskQueue(),
		recordDone: make(chan struct{}),
		subs:       make(map[int]func(PlaybackState)),
		videoCache: videos,
	}
	go c.run()
	go c.runRecords()
	return c
}

func (c *Controller) run() {
	defer close(c.done)
	for {
		task, ok := c.queue.pop()
		if !ok {
			return
		}
		task()
		c.publish()
	}
}

func (c *Controller) runRecords() {
	defer close(c.recordDone)
	for {
		task, ok := c.recordQ.pop()
		if !ok {
			return
		}
		task()
	}
}

func (c *Controller) post(fn func()) {
	if !c.queue.push(fn) {
		log.Debug().Msg("Controller closed, dropping task")
	}
}

// sync blocks until every task posted before it has run and been published,
// and the history writes they queued are done.
func (c *Controller) sync() {
	done := make(chan struct{})
	if !c.queue.push(func() { close(done) }) {
		return
	}
	<-done

	recorded := make(chan struct{})
	if c.recordQ.push(func() { close(recorded) }) {
		<-recorded
	}
}

func (c *Controller) publish() {
	c.stateMu.Lock()
	if c.published == c.state {
		c.stateMu.Unlock()
		return
	}
	c.published = c.state
	snapshot := c.state
	c.stateMu.Unlock()

	c.subsMu.Lock()
	fns := make([]func(PlaybackState), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.subsMu.Unlock()

	for _, fn := range fns {
		fn(snapshot)
	}
}

// State returns the latest published snapshot.
func (c *Controller) State() PlaybackState {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.published
}

// Subscribe registers fn to receive every published snapshot. fn runs on the
// controller goroutine and must not block; it may call controller methods.
func (c *Controller) Subscribe(fn func(PlaybackState)) (cancel func()) {
	c.subsMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.subsMu.Unlock()

	return func() {
		c.subsMu.Lock()
		delete(c.subs, id)
		c.subsMu.Unlock()
	}
}

// PlayTrack starts playing a track. Remote IDs are catalog IDs; local IDs
// are indexes into the library.
func (c *Controller) PlayTrack(id string, remote bool, opts ...PlayOption) {
	var req playRequest
	for _, opt := range opts {
		opt(&req)
	}
	c.post(func() { c.playTrack(id, remote, req.hint) })
}

// Play resumes the active backend.
func (c *Controller) Play() { c.post(c.play) }

// Pause pauses the active backend.
func (c *Controller) Pause() { c.post(c.pause) }

// TogglePause pauses when playing and resumes otherwise.
func (c *Controller) TogglePause() {
	c.post(func() {
		if c.state.IsPlaying {
			c.pause()
		} else {
			c.play()
		}
	})
}

// Seek moves to fraction (0..1) of the active backend's duration.
func (c *Controller) Seek(fraction float64) {
	c.post(func() { c.seek(fraction) })
}

// SeekBy moves by delta relative to the current position.
func (c *Controller) SeekBy(delta time.Duration) {
	c.post(func() {
		if c.active == nil {
			return
		}
		dur := c.active.Duration()
		if dur <= 0 {
			return
		}
		c.seek(float64(c.active.CurrentTime()+delta) / float64(dur))
	})
}

// Next plays the following local library track.
func (c *Controller) Next() { c.post(c.next) }

// Previous plays the preceding local library track.
func (c *Controller) Previous() { c.post(c.previous) }

// Stop unloads the current track.
func (c *Controller) Stop() { c.post(c.stop) }

// SetVolume forwards the volume to both backends.
func (c *Controller) SetVolume(percent int) {
	c.post(func() {
		for _, b := range []Backend{c.deps.Preview, c.deps.Fallback} {
			if b != nil {
				b.SetVolume(percent)
			}
		}
	})
}

// Close stops timers, detaches backends, closes those that hold external
// resources and ends the event loop.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.post(func() {
			c.closed = true
			if c.reqCancel != nil {
				c.reqCancel()
			}
			c.detachActive()
			c.errorTimer.clear()
			c.closeBackends()
		})
		c.queue.close()
		<-c.done
		c.recordQ.close()
		<-c.recordDone
		log.Debug().Msg("Playback controller closed")
	})
}

func (c *Controller) closeBackends() {
	for _, b := range []Backend{c.deps.Preview, c.deps.Fallback} {
		closer, ok := b.(io.Closer)
		if !ok {
			continue
		}
		if err := closer.Close(); err != nil {
			log.Warn().Err(err).Msgf("Failed to close %s backend", b.Kind())
		}
	}
}

// SeekFraction converts a click at offset on a bar of width cells into a
// position fraction clamped to [0, 1].
func SeekFraction(offset, width int) float64 {
	if width <= 0 {
		return 0
	}
	return clamp01(float64(offset) / float64(width))
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func (c *Controller) isStale(req uint64) bool {
	return c.closed || req != c.requestSeq
}

func (c *Controller) beginRequest() uint64 {
	if c.reqCancel != nil {
		c.reqCancel()
	}
	c.requestSeq++
	c.requestID = uuid.NewString()
	c.reqCtx, c.reqCancel = context.WithCancel(context.Background())
	c.pollTimer.clear()
	return c.requestSeq
}

func (c *Controller) playTrack(id string, remote bool, hint *track.Track) {
	if c.closed {
		return
	}
	req := c.beginRequest()
	c.detachActive()
	c.remote = remote

	placeholder := hint
	if placeholder == nil {
		placeholder = &track.Track{ID: id, Local: !remote, Index: -1}
	}

	c.state.Track = placeholder
	c.state.IsPlaying = true
	c.state.Phase = PhaseLoading
	c.state.Status = ""
	c.resetProgress()

	log.Debug().Str("request", c.requestID).Msgf("Play request %d: track %s (remote=%v)", req, id, remote)

	if !remote {
		t, err := c.localTrack(id)
		if err != nil {
			c.failRequest(&PlaybackError{Kind: ErrResolution, TrackID: id, Err: err})
			return
		}
		c.onResolved(req, t)
		return
	}

	resolver := c.deps.Resolver
	if resolver == nil {
		c.onResolveFailed(req, id, errors.New("no catalog configured"))
		return
	}

	ctx := c.reqCtx
	timeout := c.opts.ResolveTimeout
	go func() {
		rctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		t, err := resolver.ResolveTrack(rctx, id)

		c.post(func() {
			if c.isStale(req) {
				log.Debug().Msgf("Discarding stale resolution for track %s", id)
				return
			}
			if err != nil {
				c.onResolveFailed(req, id, err)
				return
			}
			c.onResolved(req, &t)
		})
	}()
}

func (c *Controller) localTrack(id string) (*track.Track, error) {
	idx, err := strconv.Atoi(id)
	if err != nil {
		return nil, fmt.Errorf("invalid local track id %q: %w", id, err)
	}
	if idx < 0 || idx >= len(c.library) {
		return nil, fmt.Errorf("local track index %d out of range", idx)
	}
	t := c.library[idx]
	t.Local = true
	t.Index = idx
	return t.Clone(), nil
}

// onResolveFailed degrades to the fallback search using whatever metadata the
// caller supplied.
func (c *Controller) onResolveFailed(req uint64, id string, err error) {
	log.Warn().Err(err).Str("request", c.requestID).Msgf("Failed to resolve track %s", id)
	c.startFallback(req, &PlaybackError{Kind: ErrResolution, TrackID: id, Err: err})
}

func (c *Controller) onResolved(req uint64, t *track.Track) {
	if videoID, ok := c.videoCache.Get(t.ID); ok && t.VideoID == "" && !t.Local {
		t.VideoID = videoID
	}
	c.state.Track = t

	if !t.HasPreview() {
		if t.Local {
			c.failRequest(&PlaybackError{Kind: ErrNoPreview, TrackID: t.ID})
			return
		}
		c.startFallback(req, &PlaybackError{Kind: ErrNoPreview, TrackID: t.ID})
		return
	}

	preview := c.deps.Preview
	if preview == nil {
		c.onPreviewFailed(req, errors.New("no audio output"))
		return
	}

	ctx := c.reqCtx
	source := t.PreviewURL
	go func() {
		err := preview.Attach(ctx, source)
		c.post(func() {
			if c.isStale(req) {
				return
			}
			if err != nil {
				c.onPreviewFailed(req, err)
				return
			}
			c.startPreview(req)
		})
	}()
}

func (c *Controller) startPreview(req uint64) {
	preview := c.deps.Preview
	if c.deps.Fallback != nil {
		c.deps.Fallback.Detach()
	}

	c.active = preview
	c.state.Active = BackendPreview
	c.unsubscribe = preview.Subscribe(c.listenerFor(req, preview))

	if err := preview.Play(); err != nil {
		c.onPreviewFailed(req, err)
		return
	}

	c.state.IsPlaying = true
	c.state.Phase = PhasePlayingPreview
	c.emitProgress(preview)
	c.recordOnce(req)
	log.Debug().Str("request", c.requestID).Msgf("Preview started: %s", c.state.Track.DisplayTitle())
}

// onPreviewFailed handles a preview that could not load or start. Remote
// tracks go to the fallback; local files have nothing to fall back to.
func (c *Controller) onPreviewFailed(req uint64, err error) {
	id := ""
	if c.state.Track != nil {
		id = c.state.Track.ID
	}
	perr := &PlaybackError{Kind: ErrPlaybackStart, TrackID: id, Err: err}

	if !c.remote {
		c.failRequest(perr)
		return
	}
	c.startFallback(req, perr)
}

func (c *Controller) listenerFor(req uint64, b Backend) Listener {
	return func(e Event) {
		c.post(func() { c.onBackendEvent(req, b, e) })
	}
}

// onBackendEvent applies a backend notification if that backend is still
// the authoritative one for the current request.
func (c *Controller) onBackendEvent(req uint64, b Backend, e Event) {
	if c.isStale(req) || c.active != b {
		return
	}

	switch e.Type {
	case EventTimeUpdate:
		if c.state.IsPlaying {
			c.applyProgress(e.Current, e.Duration)
		}
	case EventPlaying:
		c.state.IsPlaying = true
		c.state.Phase = playingPhase(b.Kind())
		if b.Kind() == BackendFallback && !c.pollTimer.active() {
			c.startPoller(req, b)
		}
	case EventPaused:
		c.pollTimer.clear()
		c.state.IsPlaying = false
		c.state.Phase = PhasePaused
	case EventEnded:
		c.onEnded(req, b, e)
	case EventError:
		log.Warn().Err(e.Err).Msgf("%s backend reported an error", b.Kind())
		if b.Kind() == BackendPreview {
			c.onPreviewFailed(req, e.Err)
			return
		}
		kind := ErrPlaybackStart
		if errors.Is(e.Err, ErrEmbedUnavailable) {
			kind = ErrEmbedUnavailable
		}
		c.failRequest(&PlaybackError{Kind: kind, TrackID: c.state.Track.ID, Err: e.Err})
	}
}

// onEnded distinguishes a clipped preview, which continues with the
// full-length fallback, from a track that simply finished.
func (c *Controller) onEnded(req uint64, b Backend, e Event) {
	c.pollTimer.clear()

	dur := e.Duration
	if dur <= 0 {
		dur = b.Duration()
	}
	c.applyProgress(dur, dur)

	if b.Kind() == BackendPreview && c.remote && dur > 0 && dur <= c.opts.PreviewCeiling {
		log.Debug().Msgf("Preview clip ended after %v, looking for the full track", dur)
		c.startFallback(req, &PlaybackError{
			Kind:    ErrNoPreview,
			TrackID: c.state.Track.ID,
			Err:     errors.New("preview clip ended"),
		})
		return
	}

	c.state.IsPlaying = false
	c.state.Phase = PhasePaused
	log.Debug().Msgf("Playback finished: %s", c.state.Track.DisplayTitle())
}

func playingPhase(k BackendKind) Phase {
	if k == BackendFallback {
		return PhasePlayingFallback
	}
	return PhasePlayingPreview
}

func (c *Controller) play() {
	if c.state.Track == nil || c.active == nil {
		return
	}

	b := c.active
	if err := b.Play(); err != nil {
		log.Warn().Err(err).Msgf("%s backend failed to play", b.Kind())
		if b.Kind() == BackendPreview {
			c.onPreviewFailed(c.requestSeq, err)
			return
		}
		c.failRequest(&PlaybackError{Kind: ErrPlaybackStart, TrackID: c.state.Track.ID, Err: err})
		return
	}

	c.state.IsPlaying = true
	c.state.Phase = playingPhase(b.Kind())
	if b.Kind() == BackendFallback {
		c.startPoller(c.requestSeq, b)
	}
}

func (c *Controller) pause() {
	if c.state.Track == nil || c.active == nil {
		return
	}

	if err := c.active.Pause(); err != nil {
		log.Debug().Err(err).Msgf("%s backend failed to pause", c.active.Kind())
	}
	c.pollTimer.clear()
	c.state.IsPlaying = false
	c.state.Phase = PhasePaused
}

func (c *Controller) seek(fraction float64) {
	if c.active == nil {
		return
	}
	dur := c.active.Duration()
	if dur <= 0 {
		return
	}

	pos := time.Duration(clamp01(fraction) * float64(dur)).Round(time.Millisecond)
	if err := c.active.SeekTo(pos); err != nil {
		log.Debug().Err(err).Msg("Seek failed")
		return
	}
	c.applyProgress(pos, dur)
}

func (c *Controller) next() {
	t := c.state.Track
	if t == nil || !t.Local || t.Index < 0 || t.Index >= len(c.library)-1 {
		return
	}
	c.playTrack(strconv.Itoa(t.Index+1), false, nil)
}

func (c *Controller) previous() {
	t := c.state.Track
	if t == nil || !t.Local || t.Index <= 0 || t.Index >= len(c.library) {
		return
	}
	c.playTrack(strconv.Itoa(t.Index-1), false, nil)
}

func (c *Controller) stop() {
	c.beginRequest()
	c.detachActive()
	lastError := c.state.LastError
	c.state = PlaybackState{LastError: lastError}
}

// detachActive silences and releases the authoritative backend.
func (c *Controller) detachActive() {
	c.pollTimer.clear()
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
	if c.active != nil {
		if err := c.active.Pause(); err != nil {
			log.Debug().Err(err).Msgf("Failed to pause %s backend", c.active.Kind())
		}
		c.active.Detach()
		c.active = nil
	}
	c.state.Active = BackendNone
}

func (c *Controller) startPoller(req uint64, b Backend) {
	c.pollTimer.every(c.opts.PollInterval, func(gen uint64) {
		cur, dur := b.CurrentTime(), b.Duration()
		c.post(func() {
			if c.isStale(req) || c.active != b || !c.state.IsPlaying || gen != c.pollTimer.current() {
				return
			}
			c.applyProgress(cur, dur)
		})
	})
}

func (c *Controller) emitProgress(b Backend) {
	c.applyProgress(b.CurrentTime(), b.Duration())
}

func (c *Controller) applyProgress(cur, dur time.Duration) {
	c.state.Elapsed, c.state.Total, c.state.Progress = progressFrom(cur, dur)

	if t := c.state.Track; t != nil && dur > 0 && t.Duration != dur {
		updated := t.Clone()
		updated.Duration = dur
		c.state.Track = updated
	}
}

func (c *Controller) resetProgress() {
	c.state.Elapsed = track.TimePair{}
	c.state.Total = track.TimePair{}
	c.state.Progress = 0
}

// recordOnce stores the current remote track in the history, at most once
// per play request.
func (c *Controller) recordOnce(req uint64) {
	if !c.remote || c.recordedReq == req || c.deps.Recorder == nil || c.state.Track == nil {
		return
	}
	c.recordedReq = req

	recorder, t := c.deps.Recorder, *c.state.Track
	c.recordQ.push(func() { recorder.Record(t) })
}

// failRequest ends the current request with a user-visible error.
func (c *Controller) failRequest(err error) {
	log.Error().Err(err).Str("request", c.requestID).Msg("Playback failed")
	c.detachActive()
	c.state.IsPlaying = false
	c.state.Phase = PhaseIdle
	c.state.Status = ""
	c.setError(userMessage(err))
}

// setError shows msg until the error clear delay elapses or another error replaces it.
func (c *Controller) setError(msg string) {
	c.state.LastError = msg
	c.errorTimer.after(c.opts.ErrorClearDelay, func(gen uint64) {
		c.post(func() {
			if gen != c.errorTimer.current() {
				return
			}
			c.errorTimer.clear()
			c.state.LastError = ""
		})
	})
}

func (c *Controller) clearError() {
	c.errorTimer.clear()
	c.state.LastError = ""
}

// taskQueue is an unbounded FIFO of closures feeding the event loop.
type taskQueue struct {
	mu     sync.Mutex
	tasks  []func()
	wake   chan struct{}
	closed bool
}

func newTaskQueue() *taskQueue {
	return &taskQueue{wake: make(chan struct{}, 1)}
}

func (q *taskQueue) push(fn func()) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.tasks = append(q.tasks, fn)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

func (q *taskQueue) pop() (func(), bool) {
	for {
		q.mu.Lock()
		if len(q.tasks) > 0 {
			fn := q.tasks[0]
			q.tasks[0] = nil
			q.tasks = q.tasks[1:]
			q.mu.Unlock()
			return fn, true
		}
		if q.closed {
			q.mu.Unlock()
			return nil, false
		}
		q.mu.Unlock()
		<-q.wake
	}
}

func (q *taskQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

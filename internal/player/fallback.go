package player

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/glebovdev/spotplay-cli/internal/config"
	"github.com/rs/zerolog/log"
)

const EmbedStartTimeout = 10 * time.Second

// EmbedState is a playback notification from the host player.
type EmbedState int

const (
	EmbedUnstarted EmbedState = iota
	EmbedPlaying
	EmbedPaused
	EmbedBuffering
	EmbedEnded
)

func (s EmbedState) String() string {
	switch s {
	case EmbedUnstarted:
		return "unstarted"
	case EmbedPlaying:
		return "playing"
	case EmbedPaused:
		return "paused"
	case EmbedBuffering:
		return "buffering"
	case EmbedEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Embed is the host player that streams full-length videos by ID.
type Embed interface {
	LoadByID(ctx context.Context, videoID string) error
	Play() error
	Pause() error
	Stop() error
	SeekTo(position time.Duration) error
	CurrentTime() (time.Duration, error)
	Duration() (time.Duration, error)
	SetVolume(percent int) error
	// OnStateChange registers the state callback. Callbacks are delivered in
	// order on a goroutine that may call back into the Embed.
	OnStateChange(fn func(EmbedState))
	Close() error
}

// EmbedFactory creates the host player. It is called at most once.
type EmbedFactory func(ctx context.Context) (Embed, error)

// FallbackBackend plays full-length videos through an Embed created on first
// use. Attach waits for the Embed; other calls made before it is ready are
// queued and replayed in order.
type FallbackBackend struct {
	factory   EmbedFactory
	listeners listeners
	initOnce  sync.Once
	readyC    chan struct{}

	mu            sync.Mutex
	embed         Embed
	ready         bool
	started       bool
	closed        bool
	initErr       error
	pending       []pendingCall
	volumePercent int
}

type pendingCall struct {
	name string
	fn   func(Embed) error
}

// NewFallbackBackend wraps factory. The factory runs on the first Attach or Play.
func NewFallbackBackend(factory EmbedFactory) *FallbackBackend {
	return &FallbackBackend{
		factory:       factory,
		readyC:        make(chan struct{}),
		volumePercent: config.DefaultVolume,
	}
}

func (b *FallbackBackend) Kind() BackendKind { return BackendFallback }

func (b *FallbackBackend) ensureInit() {
	b.initOnce.Do(func() {
		b.mu.Lock()
		b.started = true
		b.mu.Unlock()
		go b.initialize()
	})
}

func (b *FallbackBackend) initialize() {
	ctx, cancel := context.WithTimeout(context.Background(), EmbedStartTimeout)
	defer cancel()

	embed, err := b.factory(ctx)
	if err != nil {
		b.mu.Lock()
		b.initErr = err
		dropped := len(b.pending)
		b.pending = nil
		b.mu.Unlock()
		close(b.readyC)

		log.Error().Err(err).Msgf("Failed to start fallback player, dropped %d queued calls", dropped)
		b.listeners.emit(Event{Type: EventError, Err: fmt.Errorf("%w: %v", ErrEmbedUnavailable, err)})
		return
	}

	embed.OnStateChange(b.onEmbedState)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(b.readyC)
		if err := embed.Close(); err != nil {
			log.Debug().Err(err).Msg("Failed to close fallback player")
		}
		return
	}
	b.embed = embed
	volume := b.volumePercent
	b.mu.Unlock()

	if err := embed.SetVolume(volume); err != nil {
		log.Debug().Err(err).Msg("Failed to set fallback volume")
	}

	// Drain until no call is pending so that calls made during the replay
	// keep their order.
	for {
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			close(b.readyC)
			return
		}
		batch := b.pending
		b.pending = nil
		if len(batch) == 0 {
			b.ready = true
			b.mu.Unlock()
			close(b.readyC)
			break
		}
		b.mu.Unlock()

		// Callers already got nil and may be stale, so failures are only logged.
		for _, call := range batch {
			log.Debug().Msgf("Replaying queued fallback call: %s", call.name)
			if err := call.fn(embed); err != nil {
				log.Warn().Err(err).Msgf("Queued fallback call %s failed", call.name)
			}
		}
	}

	log.Debug().Msg("Fallback player ready")
}

// do runs fn against the embed, or queues it while the embed starts. When
// start is false and the embed was never requested, the call is skipped.
func (b *FallbackBackend) do(name string, start bool, fn func(Embed) error) error {
	if start {
		b.ensureInit()
	}

	b.mu.Lock()
	if b.initErr != nil {
		err := b.initErr
		b.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrEmbedUnavailable, err)
	}
	if !b.started || b.closed {
		b.mu.Unlock()
		return nil
	}
	if !b.ready {
		b.pending = append(b.pending, pendingCall{name: name, fn: fn})
		b.mu.Unlock()
		log.Debug().Msgf("Fallback player not ready, queued %s", name)
		return nil
	}
	embed := b.embed
	b.mu.Unlock()

	return fn(embed)
}

func (b *FallbackBackend) readyEmbed() Embed {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.ready {
		return nil
	}
	return b.embed
}

// Attach starts the embed if needed, waits until it is ready and loads
// videoID. Errors go to the caller only, so a superseded request cannot fail
// the one that replaced it.
func (b *FallbackBackend) Attach(ctx context.Context, videoID string) error {
	b.ensureInit()

	select {
	case <-b.readyC:
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	embed, initErr := b.embed, b.initErr
	b.mu.Unlock()

	if initErr != nil {
		return fmt.Errorf("%w: %v", ErrEmbedUnavailable, initErr)
	}
	if embed == nil {
		return fmt.Errorf("%w: fallback player closed", ErrEmbedUnavailable)
	}
	return embed.LoadByID(ctx, videoID)
}

func (b *FallbackBackend) Play() error {
	return b.do("play", true, func(e Embed) error { return e.Play() })
}

func (b *FallbackBackend) Pause() error {
	return b.do("pause", false, func(e Embed) error { return e.Pause() })
}

func (b *FallbackBackend) SeekTo(position time.Duration) error {
	return b.do("seek", false, func(e Embed) error { return e.SeekTo(position) })
}

func (b *FallbackBackend) CurrentTime() time.Duration {
	e := b.readyEmbed()
	if e == nil {
		return 0
	}
	cur, err := e.CurrentTime()
	if err != nil {
		return 0
	}
	return cur
}

func (b *FallbackBackend) Duration() time.Duration {
	e := b.readyEmbed()
	if e == nil {
		return 0
	}
	dur, err := e.Duration()
	if err != nil {
		return 0
	}
	return dur
}

func (b *FallbackBackend) Subscribe(l Listener) func() {
	return b.listeners.add(l)
}

func (b *FallbackBackend) Detach() {
	if err := b.do("stop", false, func(e Embed) error { return e.Stop() }); err != nil {
		log.Debug().Err(err).Msg("Failed to stop fallback player")
	}
}

func (b *FallbackBackend) SetVolume(percent int) {
	b.mu.Lock()
	b.volumePercent = percent
	b.mu.Unlock()

	if e := b.readyEmbed(); e != nil {
		if err := e.SetVolume(percent); err != nil {
			log.Debug().Err(err).Msg("Failed to set fallback volume")
		}
	}
}

// Close shuts the embed down if it was ever started. An embed still starting
// is closed as soon as the factory returns it.
func (b *FallbackBackend) Close() error {
	b.mu.Lock()
	embed := b.embed
	b.embed = nil
	b.ready = false
	b.closed = true
	b.pending = nil
	b.mu.Unlock()

	if embed == nil {
		return nil
	}
	return embed.Close()
}

func (b *FallbackBackend) onEmbedState(state EmbedState) {
	log.Debug().Msgf("Fallback player state: %s", state)

	switch state {
	case EmbedPlaying:
		b.listeners.emit(Event{Type: EventPlaying})
	case EmbedPaused:
		b.listeners.emit(Event{Type: EventPaused})
	case EmbedEnded:
		dur := b.Duration()
		b.listeners.emit(Event{Type: EventEnded, Current: dur, Duration: dur})
	}
}

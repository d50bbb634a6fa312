package player

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/glebovdev/spotplay-cli/internal/cache"
	"github.com/glebovdev/spotplay-cli/internal/config"
	"github.com/go-resty/resty/v2"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/rs/zerolog/log"
)

const (
	DefaultTickInterval = 250 * time.Millisecond
	FetchTimeout        = 20 * time.Second
)

var errNothingLoaded = errors.New("no preview loaded")

// Fetcher returns the encoded bytes of a preview source.
type Fetcher func(ctx context.Context, source string) ([]byte, error)

// Decoder turns encoded audio into a seekable stream.
type Decoder func(rc io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error)

// NewPreviewFetcher downloads http(s) sources through client, consulting
// clips when it is non-nil, and reads anything else from the filesystem.
func NewPreviewFetcher(client *resty.Client, clips *cache.Cache) Fetcher {
	if client == nil {
		client = resty.New().
			SetTimeout(FetchTimeout).
			SetHeader("User-Agent", config.UserAgent())
	}

	return func(ctx context.Context, source string) ([]byte, error) {
		if !strings.HasPrefix(source, "http://") && !strings.HasPrefix(source, "https://") {
			data, err := os.ReadFile(source)
			if err != nil {
				return nil, fmt.Errorf("failed to read local file: %w", err)
			}
			return data, nil
		}

		if clips != nil {
			if data, ok := clips.GetClip(source); ok {
				log.Debug().Msgf("Preview clip served from cache: %s", source)
				return data, nil
			}
		}

		resp, err := client.R().SetContext(ctx).Get(source)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch preview: %w", err)
		}
		if resp.StatusCode() != http.StatusOK {
			return nil, fmt.Errorf("preview returned status %d", resp.StatusCode())
		}

		data := resp.Body()
		if clips != nil {
			if err := clips.SaveClip(source, data); err != nil {
				log.Debug().Err(err).Msg("Failed to cache preview clip")
			}
		}
		return data, nil
	}
}

// PreviewBackend plays short clips and local files through an Output.
type PreviewBackend struct {
	out          Output
	fetch        Fetcher
	decode       Decoder
	tickInterval time.Duration
	listeners    listeners

	mu            sync.Mutex
	gen           uint64
	source        beep.StreamSeekCloser
	format        beep.Format
	ctrl          *beep.Ctrl
	volume        *effects.Volume
	volumePercent int
	queued        bool
	playing       bool
	ended         bool
	stopTicks     chan struct{}
}

// NewPreviewBackend creates a preview backend. A nil decode defaults to MP3.
func NewPreviewBackend(out Output, fetch Fetcher, decode Decoder) *PreviewBackend {
	if decode == nil {
		decode = mp3.Decode
	}
	return &PreviewBackend{
		out:           out,
		fetch:         fetch,
		decode:        decode,
		tickInterval:  DefaultTickInterval,
		volumePercent: config.DefaultVolume,
	}
}

func (b *PreviewBackend) Kind() BackendKind { return BackendPreview }

func (b *PreviewBackend) Attach(ctx context.Context, source string) error {
	data, err := b.fetch(ctx, source)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	streamer, format, err := b.decode(io.NopCloser(bytes.NewReader(data)))
	if err != nil {
		return fmt.Errorf("failed to decode preview: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := ctx.Err(); err != nil {
		streamer.Close()
		return err
	}

	b.detachLocked()
	b.gen++
	gen := b.gen

	b.source = streamer
	b.format = format
	b.buildChainLocked(gen)

	log.Debug().Msgf("Preview attached: %s (%v at %d Hz)", source, format.SampleRate.D(streamer.Len()), format.SampleRate)
	return nil
}

// Play starts or resumes the loaded clip. A clip that reached its end
// restarts from the beginning.
func (b *PreviewBackend) Play() error {
	b.mu.Lock()

	if b.source == nil {
		b.mu.Unlock()
		return errNothingLoaded
	}

	if err := b.out.Init(DefaultSampleRate); err != nil {
		b.mu.Unlock()
		return fmt.Errorf("failed to initialize audio output: %w", err)
	}

	if b.ended {
		if err := b.restartLocked(); err != nil {
			b.mu.Unlock()
			return err
		}
	}

	b.out.Lock()
	b.ctrl.Paused = false
	b.out.Unlock()

	if !b.queued {
		b.out.Play(b.ctrl)
		b.queued = true
	}

	b.playing = true
	b.startTicksLocked()
	cur, dur := b.positionLocked()
	b.mu.Unlock()

	b.listeners.emit(Event{Type: EventPlaying, Current: cur, Duration: dur})
	return nil
}

func (b *PreviewBackend) Pause() error {
	b.mu.Lock()

	if b.source == nil || !b.playing {
		b.mu.Unlock()
		return nil
	}

	b.out.Lock()
	b.ctrl.Paused = true
	b.out.Unlock()

	b.playing = false
	b.stopTicksLocked()
	cur, dur := b.positionLocked()
	b.mu.Unlock()

	b.listeners.emit(Event{Type: EventPaused, Current: cur, Duration: dur})
	return nil
}

func (b *PreviewBackend) SeekTo(position time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.source == nil {
		return errNothingLoaded
	}

	n := b.format.SampleRate.N(position)
	if n < 0 {
		n = 0
	}
	if last := b.source.Len() - 1; n > last {
		n = max(last, 0)
	}

	b.out.Lock()
	err := b.source.Seek(n)
	b.out.Unlock()
	if err != nil {
		return fmt.Errorf("failed to seek preview: %w", err)
	}

	return nil
}

func (b *PreviewBackend) CurrentTime() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	cur, _ := b.positionLocked()
	return cur
}

func (b *PreviewBackend) Duration() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, dur := b.positionLocked()
	return dur
}

func (b *PreviewBackend) Subscribe(l Listener) func() {
	return b.listeners.add(l)
}

func (b *PreviewBackend) Detach() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gen++
	b.detachLocked()
}

func (b *PreviewBackend) SetVolume(percent int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.volumePercent = percent
	if b.volume == nil {
		return
	}

	b.out.Lock()
	b.volume.Volume = percentToExponent(float64(percent))
	b.volume.Silent = percent == 0
	b.out.Unlock()
}

// buildChainLocked wraps the loaded source in resampling, end detection and
// volume. A finished chain cannot be replayed, so restarts build a new one.
func (b *PreviewBackend) buildChainLocked(gen uint64) {
	var s beep.Streamer = b.source
	if b.format.SampleRate != DefaultSampleRate {
		s = beep.Resample(ResampleQuality, b.format.SampleRate, DefaultSampleRate, b.source)
	}
	s = beep.Seq(s, beep.Callback(func() {
		// Runs on the speaker goroutine with the output locked.
		go b.finish(gen)
	}))

	b.volume = &effects.Volume{
		Streamer: s,
		Base:     2,
		Volume:   percentToExponent(float64(b.volumePercent)),
		Silent:   b.volumePercent == 0,
	}
	b.ctrl = &beep.Ctrl{Streamer: b.volume, Paused: true}
}

// restartLocked prepares a finished clip for another pass. The clip rewinds
// unless it was seeked back from the end in the meantime.
func (b *PreviewBackend) restartLocked() error {
	b.out.Lock()
	var err error
	if b.source.Position() >= b.source.Len()-1 {
		err = b.source.Seek(0)
	}
	b.out.Unlock()
	if err != nil {
		return fmt.Errorf("failed to rewind preview: %w", err)
	}

	b.gen++
	b.buildChainLocked(b.gen)
	b.ended = false
	return nil
}

func (b *PreviewBackend) detachLocked() {
	b.stopTicksLocked()

	if b.ctrl != nil {
		b.out.Lock()
		b.ctrl.Paused = true
		b.ctrl.Streamer = nil
		b.out.Unlock()
	}
	if b.source != nil {
		if err := b.source.Close(); err != nil {
			log.Debug().Err(err).Msg("Failed to close preview stream")
		}
	}

	b.source = nil
	b.ctrl = nil
	b.volume = nil
	b.queued = false
	b.playing = false
	b.ended = false
}

func (b *PreviewBackend) positionLocked() (time.Duration, time.Duration) {
	if b.source == nil {
		return 0, 0
	}
	b.out.Lock()
	pos, length := b.source.Position(), b.source.Len()
	b.out.Unlock()
	return b.format.SampleRate.D(pos), b.format.SampleRate.D(length)
}

// finish handles the end of the clip for attach generation gen.
func (b *PreviewBackend) finish(gen uint64) {
	b.mu.Lock()
	if gen != b.gen || b.source == nil {
		b.mu.Unlock()
		return
	}
	b.playing = false
	b.ended = true
	b.queued = false
	b.stopTicksLocked()
	_, dur := b.positionLocked()
	b.mu.Unlock()

	log.Debug().Msgf("Preview clip finished after %v", dur)
	b.listeners.emit(Event{Type: EventEnded, Current: dur, Duration: dur})
}

func (b *PreviewBackend) startTicksLocked() {
	b.stopTicksLocked()
	stop := make(chan struct{})
	b.stopTicks = stop
	interval := b.tickInterval

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				b.mu.Lock()
				select {
				case <-stop:
					b.mu.Unlock()
					return
				default:
				}
				cur, dur := b.positionLocked()
				b.mu.Unlock()
				b.listeners.emit(Event{Type: EventTimeUpdate, Current: cur, Duration: dur})
			case <-stop:
				return
			}
		}
	}()
}

func (b *PreviewBackend) stopTicksLocked() {
	if b.stopTicks != nil {
		close(b.stopTicks)
		b.stopTicks = nil
	}
}

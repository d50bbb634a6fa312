package player

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/glebovdev/spotplay-cli/internal/track"
)

func TestPercentToExponent(t *testing.T) {
	tests := []struct {
		percent  float64
		expected float64
	}{
		{0, MinVolumeDB},
		{100, 0},
		{-10, MinVolumeDB},
		{150, 0},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("percent_%v", tt.percent), func(t *testing.T) {
			result := percentToExponent(tt.percent)
			if result != tt.expected {
				t.Errorf("percentToExponent(%v) = %v, want %v", tt.percent, result, tt.expected)
			}
		})
	}
}

func TestPercentToExponentCurve(t *testing.T) {
	p25 := percentToExponent(25)
	p50 := percentToExponent(50)
	p75 := percentToExponent(75)

	if p25 >= p50 || p50 >= p75 {
		t.Error("Volume curve should be monotonically increasing")
	}

	if p25 <= MinVolumeDB || p75 >= 0 {
		t.Error("Mid-range volumes should be between min and max")
	}
}

func TestPhaseString(t *testing.T) {
	tests := []struct {
		phase    Phase
		expected string
	}{
		{PhaseIdle, "IDLE"},
		{PhaseLoading, "LOADING"},
		{PhasePlayingPreview, "PREVIEW"},
		{PhasePlayingFallback, "FULL TRACK"},
		{PhasePaused, "PAUSED"},
		{Phase(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.phase.String(); got != tt.expected {
				t.Errorf("Phase.String() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestBackendKindString(t *testing.T) {
	tests := []struct {
		kind     BackendKind
		expected string
	}{
		{BackendNone, "NONE"},
		{BackendPreview, "PREVIEW"},
		{BackendFallback, "FALLBACK"},
		{BackendKind(7), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.expected {
			t.Errorf("BackendKind(%d).String() = %q, want %q", tt.kind, got, tt.expected)
		}
	}
}

func TestProgressFrom(t *testing.T) {
	tests := []struct {
		name         string
		elapsed      time.Duration
		total        time.Duration
		wantElapsed  track.TimePair
		wantTotal    track.TimePair
		wantProgress float64
	}{
		{"halfway", 100 * time.Second, 200 * time.Second, track.TimePair{Minutes: 1, Seconds: 40}, track.TimePair{Minutes: 3, Seconds: 20}, 0.5},
		{"unknown total", 5 * time.Second, 0, track.TimePair{Seconds: 5}, track.TimePair{}, 0},
		{"elapsed past total", 40 * time.Second, 30 * time.Second, track.TimePair{Seconds: 30}, track.TimePair{Seconds: 30}, 1},
		{"negative elapsed", -time.Second, 30 * time.Second, track.TimePair{}, track.TimePair{Seconds: 30}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			el, tot, p := progressFrom(tt.elapsed, tt.total)
			if el != tt.wantElapsed || tot != tt.wantTotal || p != tt.wantProgress {
				t.Errorf("progressFrom(%v, %v) = %v, %v, %v; want %v, %v, %v",
					tt.elapsed, tt.total, el, tot, p, tt.wantElapsed, tt.wantTotal, tt.wantProgress)
			}
		})
	}
}

func TestSeekFraction(t *testing.T) {
	tests := []struct {
		offset, width int
		expected      float64
	}{
		{50, 100, 0.5},
		{0, 100, 0},
		{-10, 100, 0},
		{150, 100, 1},
		{10, 0, 0},
	}

	for _, tt := range tests {
		if got := SeekFraction(tt.offset, tt.width); got != tt.expected {
			t.Errorf("SeekFraction(%d, %d) = %v, want %v", tt.offset, tt.width, got, tt.expected)
		}
	}
}

func TestPlaybackErrorMatching(t *testing.T) {
	cause := errors.New("network down")
	err := &PlaybackError{Kind: ErrFallbackLookup, TrackID: "abc", Err: cause}

	if !errors.Is(err, ErrFallbackLookup) {
		t.Error("Expected error to match its kind")
	}
	if !errors.Is(err, cause) {
		t.Error("Expected error to match its cause")
	}
	if errors.Is(err, ErrNoPreview) {
		t.Error("Expected error not to match another kind")
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		err      error
		expected string
	}{
		{&PlaybackError{Kind: ErrFallbackNotFound}, "No full-length version found for this track"},
		{&PlaybackError{Kind: ErrFallbackLookup}, "Could not search for a full-length version"},
		{&PlaybackError{Kind: ErrEmbedUnavailable}, "Full-length player is unavailable"},
		{&PlaybackError{Kind: ErrResolution}, "Could not load this track"},
		{errors.New("other"), "Playback error"},
	}

	for _, tt := range tests {
		if got := userMessage(tt.err); got != tt.expected {
			t.Errorf("userMessage(%v) = %q, want %q", tt.err, got, tt.expected)
		}
	}
}

func TestTimerSlotReplacesPrevious(t *testing.T) {
	var slot timerSlot
	fired := make(chan uint64, 2)

	first := slot.after(time.Hour, func(gen uint64) { fired <- gen })
	second := slot.after(10*time.Millisecond, func(gen uint64) { fired <- gen })

	if first == second {
		t.Fatal("Expected a new generation for the replacement timer")
	}

	select {
	case gen := <-fired:
		if gen != second {
			t.Errorf("Fired generation %d, want %d", gen, second)
		}
	case <-time.After(time.Second):
		t.Fatal("Timer did not fire")
	}

	slot.clear()
	if slot.active() {
		t.Error("Expected slot to be inactive after clear")
	}
}

func TestTimerSlotEveryStops(t *testing.T) {
	var slot timerSlot
	ticks := make(chan struct{}, 100)

	slot.every(5*time.Millisecond, func(uint64) { ticks <- struct{}{} })

	select {
	case <-ticks:
	case <-time.After(time.Second):
		t.Fatal("Ticker did not tick")
	}

	slot.clear()
	time.Sleep(20 * time.Millisecond)
	for len(ticks) > 0 {
		<-ticks
	}
	time.Sleep(30 * time.Millisecond)

	if len(ticks) != 0 {
		t.Errorf("Got %d ticks after clear", len(ticks))
	}
}

func TestPlaybackStateUsingFallback(t *testing.T) {
	tests := []struct {
		active BackendKind
		want   bool
	}{
		{BackendNone, false},
		{BackendPreview, false},
		{BackendFallback, true},
	}
	for _, tt := range tests {
		if got := (PlaybackState{Active: tt.active}).UsingFallback(); got != tt.want {
			t.Errorf("UsingFallback() with %s = %v, want %v", tt.active, got, tt.want)
		}
	}
}

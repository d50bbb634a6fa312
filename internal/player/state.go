package player

import (
	"time"

	"github.com/glebovdev/spotplay-cli/internal/track"
)

// BackendKind identifies which media backend owns playback.
type BackendKind int

const (
	BackendNone BackendKind = iota
	BackendPreview
	BackendFallback
)

func (k BackendKind) String() string {
	switch k {
	case BackendNone:
		return "NONE"
	case BackendPreview:
		return "PREVIEW"
	case BackendFallback:
		return "FALLBACK"
	default:
		return "UNKNOWN"
	}
}

// Phase is the controller's position in its state machine.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhasePlayingPreview
	PhasePlayingFallback
	PhasePaused
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseLoading:
		return "LOADING"
	case PhasePlayingPreview:
		return "PREVIEW"
	case PhasePlayingFallback:
		return "FULL TRACK"
	case PhasePaused:
		return "PAUSED"
	default:
		return "UNKNOWN"
	}
}

// PlaybackState is a snapshot of the player as seen by the UI. Snapshots are
// values; the Track they point to is never modified after publication.
type PlaybackState struct {
	Track     *track.Track
	IsPlaying bool
	Phase     Phase
	Active    BackendKind
	Elapsed   track.TimePair
	Total     track.TimePair
	Progress  float64
	LastError string
	Status    string
}

// HasTrack reports whether a track is loaded.
func (s PlaybackState) HasTrack() bool {
	return s.Track != nil
}

// UsingFallback reports whether the full-length fallback is the active source.
func (s PlaybackState) UsingFallback() bool {
	return s.Active == BackendFallback
}

// progressFrom builds the elapsed/total pairs and seek-bar fraction from
// backend times, clamping elapsed to total when total is known.
func progressFrom(elapsed, total time.Duration) (track.TimePair, track.TimePair, float64) {
	if elapsed < 0 {
		elapsed = 0
	}
	if total <= 0 {
		return track.SplitDuration(elapsed), track.TimePair{}, 0
	}
	if elapsed > total {
		elapsed = total
	}
	return track.SplitDuration(elapsed), track.SplitDuration(total), float64(elapsed) / float64(total)
}

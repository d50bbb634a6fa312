package player

import (
	"errors"
	"fmt"
)

var (
	// ErrResolution means the track metadata could not be fetched.
	ErrResolution = errors.New("track resolution failed")
	// ErrNoPreview means the track resolved but has no preview source.
	ErrNoPreview = errors.New("no preview available")
	// ErrPlaybackStart means a backend refused to start playing.
	ErrPlaybackStart = errors.New("playback could not start")
	// ErrFallbackLookup means the fallback video search failed.
	ErrFallbackLookup = errors.New("fallback lookup failed")
	// ErrFallbackNotFound means the fallback video search had no result.
	ErrFallbackNotFound = errors.New("no fallback video found")
	// ErrEmbedUnavailable means the fallback host embed could not be created.
	ErrEmbedUnavailable = errors.New("fallback player unavailable")
)

// PlaybackError ties a failure category to the track it happened for.
type PlaybackError struct {
	Kind    error
	TrackID string
	Err     error
}

func (e *PlaybackError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v (track %s): %v", e.Kind, e.TrackID, e.Err)
	}
	return fmt.Sprintf("%v (track %s)", e.Kind, e.TrackID)
}

// Unwrap exposes both the category and the cause to errors.Is and errors.As.
func (e *PlaybackError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// userMessage maps an error to the text shown to the user.
func userMessage(err error) string {
	switch {
	case errors.Is(err, ErrFallbackNotFound):
		return "No full-length version found for this track"
	case errors.Is(err, ErrFallbackLookup):
		return "Could not search for a full-length version"
	case errors.Is(err, ErrEmbedUnavailable):
		return "Full-length player is unavailable"
	case errors.Is(err, ErrNoPreview):
		return "No preview available for this track"
	case errors.Is(err, ErrPlaybackStart):
		return "Could not play this track"
	case errors.Is(err, ErrResolution):
		return "Could not load this track"
	default:
		return "Playback error"
	}
}

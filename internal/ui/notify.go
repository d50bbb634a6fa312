package ui

import (
	"github.com/atotto/clipboard"
	"github.com/gen2brain/beeep"
	"github.com/glebovdev/spotplay-cli/internal/api"
	"github.com/glebovdev/spotplay-cli/internal/config"
	"github.com/glebovdev/spotplay-cli/internal/track"
	"github.com/rs/zerolog/log"
)

var (
	notify        = beeep.Notify
	clipboardCopy = clipboard.WriteAll
)

func notifyNowPlaying(t track.Track) {
	title, body := nowPlayingNotification(t)
	if err := notify(title, body, ""); err != nil {
		log.Debug().Err(err).Msg("Failed to send desktop notification")
	}
}

func nowPlayingNotification(t track.Track) (title, body string) {
	body = t.Name
	if sub := t.Subtitle(); sub != "" {
		body = sub + " - " + t.Name
	}
	return config.AppName + " · Now playing", body
}

// trackLink is the shareable URL for t: its Spotify page, else its video.
func trackLink(t track.Track) string {
	switch {
	case t.ExternalURL != "":
		return t.ExternalURL
	case t.VideoID != "":
		return api.WatchURL(t.VideoID)
	default:
		return ""
	}
}

func copyToClipboard(text string) error {
	return clipboardCopy(text)
}

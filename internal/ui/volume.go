package ui

import (
	"fmt"
	"strings"

	"github.com/glebovdev/spotplay-cli/internal/config"
	"github.com/rivo/tview"
	"github.com/rs/zerolog/log"
)

const volumeBarHeight = 10

// volumeLevel tracks the audible volume and the level to restore on unmute.
type volumeLevel struct {
	current int
	saved   int
	muted   bool
}

// adjust changes the volume by delta. Adjusting while muted only unmutes.
func (v *volumeLevel) adjust(delta int) {
	if v.muted {
		v.current = v.saved
		v.muted = false
		return
	}
	v.current = config.ClampVolume(v.current + delta)
}

func (v *volumeLevel) toggleMute() {
	if v.muted {
		v.current = v.saved
		v.muted = false
		return
	}
	v.saved = v.current
	if v.saved == 0 {
		v.saved = config.DefaultVolume
	}
	v.current = 0
	v.muted = true
}

// display is the level drawn on the bar; a muted bar shows the saved level.
func (v volumeLevel) display() int {
	if v.muted {
		return v.saved
	}
	return v.current
}

// renderVolumeBar draws a vertical bar of height rows, top row first.
func renderVolumeBar(percent, height int, fillColor, emptyColor string) string {
	filled := (config.ClampVolume(percent) * height) / 100

	var b strings.Builder
	b.WriteString("   max\n")
	for row := 0; row < height; row++ {
		if row < height-filled {
			fmt.Fprintf(&b, "    [%s]░░[-]\n", emptyColor)
			continue
		}
		prefix := "    "
		if row == height-filled {
			prefix = fmt.Sprintf("%3d%%", percent)
		}
		fmt.Fprintf(&b, "[%s]%s ██[-]\n", fillColor, prefix)
	}
	b.WriteString("   min")
	return b.String()
}

func (ui *UI) volume() volumeLevel {
	ui.mu.Lock()
	defer ui.mu.Unlock()
	return volumeLevel{current: ui.currentVolume, saved: ui.config.Volume, muted: ui.isMuted}
}

func (ui *UI) setVolume(v volumeLevel) {
	ui.mu.Lock()
	ui.currentVolume = v.current
	ui.isMuted = v.muted
	if v.muted {
		ui.config.Volume = v.saved
	}
	ui.statusRenderer.SetMuted(v.muted)
	ui.mu.Unlock()

	ui.controller.SetVolume(v.current)
	ui.updateVolumeDisplay()
	ui.SaveConfig()
}

func (ui *UI) createGraphicalVolumeBar() *tview.Flex {
	container := tview.NewFlex().SetDirection(tview.FlexRow)
	container.SetBackgroundColor(ui.colors.background)
	ui.buildVolumeBar(container)
	return container
}

func (ui *UI) buildVolumeBar(container *tview.Flex) {
	v := ui.volume()

	fillColor := ui.colors.highlight.String()
	if v.muted {
		fillColor = ui.config.Theme.MutedVolume
	}

	bar := tview.NewTextView()
	bar.SetDynamicColors(true)
	bar.SetTextAlign(tview.AlignRight)
	bar.SetTextColor(ui.colors.foreground)
	bar.SetBackgroundColor(ui.colors.background)
	bar.SetText(renderVolumeBar(v.display(), volumeBarHeight, fillColor, ui.colors.foreground.String()))

	container.AddItem(bar, volumeBarHeight+2, 0, false)
	container.AddItem(nil, 0, 1, false)
}

func (ui *UI) updateVolumeDisplay() {
	if ui.volumeView != nil {
		ui.volumeView.Clear()
		ui.buildVolumeBar(ui.volumeView)
	}
}

func (ui *UI) adjustVolume(delta int) {
	v := ui.volume()
	v.adjust(delta)
	ui.setVolume(v)
	log.Debug().Msgf("Volume adjusted to %d%%", v.current)
}

func (ui *UI) toggleMute() {
	v := ui.volume()
	v.toggleMute()
	ui.setVolume(v)
	if v.muted {
		log.Debug().Msgf("Muted, saved volume %d%%", v.saved)
	} else {
		log.Debug().Msgf("Unmuted, restored volume to %d%%", v.current)
	}
}

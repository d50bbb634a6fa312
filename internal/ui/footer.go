package ui

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/glebovdev/spotplay-cli/internal/player"
	"github.com/rivo/tview"
)

type StatusRenderer struct {
	isMuted       bool
	animFrame     int
	maxAnimFrame  int
	tickCount     int
	ticksPerFrame int

	primaryColor string
}

func NewStatusRenderer() *StatusRenderer {
	return &StatusRenderer{
		maxAnimFrame:  4,
		ticksPerFrame: 8, // Slow down animation (8 ticks per frame)
	}
}

func (s *StatusRenderer) SetMuted(muted bool) {
	s.isMuted = muted
}

func (s *StatusRenderer) SetPrimaryColor(color string) {
	s.primaryColor = color
}

func (s *StatusRenderer) AdvanceAnimation() {
	s.tickCount++
	if s.tickCount >= s.ticksPerFrame {
		s.tickCount = 0
		s.animFrame = (s.animFrame + 1) % s.maxAnimFrame
	}
}

// Render formats the one-line status shown in the footer.
func (s *StatusRenderer) Render(state player.PlaybackState) string {
	if state.LastError != "" {
		return s.renderError(state)
	}

	switch state.Phase {
	case player.PhaseLoading:
		return s.renderLoading(state)
	case player.PhasePlayingPreview, player.PhasePlayingFallback:
		return s.renderPlaying(state)
	case player.PhasePaused:
		return s.renderPaused(state)
	default:
		if state.Status != "" {
			return s.renderLoading(state)
		}
		return s.renderIdle()
	}
}

func (s *StatusRenderer) renderIdle() string {
	if s.isMuted {
		return "○ IDLE │ [red]MUTED[-] │ Select a track"
	}
	return "○ IDLE │ Select a track"
}

func (s *StatusRenderer) renderLoading(state player.PlaybackState) string {
	circles := []string{"◐", "◓", "◑", "◒"}
	label := "LOADING"
	if state.Status != "" {
		label = tview.Escape(state.Status)
	}
	return fmt.Sprintf("%s %s", circles[s.animFrame], label)
}

func (s *StatusRenderer) renderPlaying(state player.PlaybackState) string {
	dots := []string{"●", "◉", "○", "◉"}
	dot := dots[s.animFrame]

	if s.primaryColor != "" {
		dot = fmt.Sprintf("[%s]%s[-]", s.primaryColor, dot)
	}

	parts := []string{dot + " " + sourceLabel(state)}

	if s.isMuted {
		parts = append(parts, "[red]MUTED[-]")
	}

	parts = append(parts, formatPosition(state))

	return joinParts(parts)
}

func (s *StatusRenderer) renderPaused(state player.PlaybackState) string {
	parts := []string{PauseIcon + " PAUSED"}

	if s.isMuted {
		parts = append(parts, "[red]MUTED[-]")
	}

	if state.HasTrack() {
		parts = append(parts, sourceLabel(state), formatPosition(state))
	}

	return joinParts(parts)
}

func (s *StatusRenderer) renderError(state player.PlaybackState) string {
	return fmt.Sprintf("✗ %s", tview.Escape(state.LastError))
}

// sourceLabel names what is audible: a 30s clip, a local file or the full track.
func sourceLabel(state player.PlaybackState) string {
	switch {
	case state.UsingFallback():
		return "FULL TRACK"
	case state.Track != nil && state.Track.Local:
		return "LOCAL"
	case state.Active == player.BackendPreview:
		return "PREVIEW"
	default:
		return ""
	}
}

func formatPosition(state player.PlaybackState) string {
	if state.Total.Duration() <= 0 {
		return state.Elapsed.String()
	}
	return state.Elapsed.String() + " / " + state.Total.String()
}

func joinParts(parts []string) string {
	return strings.Join(parts, " │ ")
}

func (ui *UI) getPlaybackHint(keyColor string, state player.PlaybackState) string {
	switch {
	case state.Phase == player.PhasePaused:
		return fmt.Sprintf("[%s]Enter[-] play  [%s]Space[-] resume  [%s]←/→[-] seek", keyColor, keyColor, keyColor)
	case state.IsPlaying:
		return fmt.Sprintf("[%s]Enter[-] play  [%s]Space[-] pause  [%s]←/→[-] seek", keyColor, keyColor, keyColor)
	default:
		return fmt.Sprintf("[%s]Enter[-] play  [%s]/[-] search", keyColor, keyColor)
	}
}

func (ui *UI) getHelpText(state player.PlaybackState) string {
	keyColor := ui.colors.helpHotkey.String()
	playbackHint := ui.getPlaybackHint(keyColor, state)

	muteText := "mute"
	if ui.isMuted {
		muteText = "unmute"
	}

	return fmt.Sprintf(" %s  [%s]+/-[-] vol  [%s]m[-] %s  [%s]?[-] help  [%s]q[-] quit ",
		playbackHint, keyColor, keyColor, muteText, keyColor, keyColor)
}

func (ui *UI) handleFooterResize(width int) {
	isWide := width >= FooterBreakpoint
	wasWide := ui.lastFooterWidth >= FooterBreakpoint

	if ui.lastFooterWidth > 0 && isWide != wasWide && ui.contentLayout != nil {
		newHeight := FooterHeightWide
		if !isWide {
			newHeight = FooterHeightNarrow
		}
		ui.contentLayout.ResizeItem(ui.helpPanel, newHeight, 0)
	}
	ui.lastFooterWidth = width
}

func (ui *UI) drawWideFooter(screen tcell.Screen, x, y, width, height int, helpText, statusText string) {
	helpWidth := width / 2
	statusWidth := width - helpWidth

	for row := y; row < y+height; row++ {
		for col := x; col < x+helpWidth; col++ {
			screen.SetContent(col, row, ' ', nil, tcell.StyleDefault.Background(ui.colors.helpBackground))
		}
	}

	for row := y; row < y+height; row++ {
		for col := x + helpWidth; col < x+width; col++ {
			screen.SetContent(col, row, ' ', nil, tcell.StyleDefault.Background(ui.colors.background))
		}
	}

	centerY := y + height/2
	tview.Print(screen, helpText, x, centerY, helpWidth, tview.AlignCenter, ui.colors.helpForeground)
	tview.Print(screen, statusText, x+helpWidth, centerY, statusWidth-2, tview.AlignRight, ui.colors.foreground)
}

func (ui *UI) drawNarrowFooter(screen tcell.Screen, x, y, width, height int, helpText, statusText string) {
	helpHeight := height / 2
	if helpHeight < 1 {
		helpHeight = 1
	}
	statusHeight := height - helpHeight
	helpBoxEnd := y + helpHeight

	for row := y; row < helpBoxEnd; row++ {
		for col := x; col < x+width; col++ {
			screen.SetContent(col, row, ' ', nil, tcell.StyleDefault.Background(ui.colors.helpBackground))
		}
	}

	for row := helpBoxEnd; row < y+height; row++ {
		for col := x; col < x+width; col++ {
			screen.SetContent(col, row, ' ', nil, tcell.StyleDefault.Background(ui.colors.background))
		}
	}

	helpTextY := y + helpHeight/2
	tview.Print(screen, helpText, x, helpTextY, width, tview.AlignCenter, ui.colors.helpForeground)

	if statusHeight > 0 {
		statusTextY := helpBoxEnd + statusHeight/2
		tview.Print(screen, statusText, x, statusTextY, width-2, tview.AlignRight, ui.colors.foreground)
	}
}

func (ui *UI) createFooter() *tview.Box {
	box := tview.NewBox().SetBackgroundColor(ui.colors.background)

	box.SetDrawFunc(func(screen tcell.Screen, x, y, width, height int) (int, int, int, int) {
		ui.handleFooterResize(width)

		ui.mu.Lock()
		state := ui.shown
		ui.mu.Unlock()

		helpText := ui.getHelpText(state)
		statusText := " " + ui.statusRenderer.Render(state) + " "

		isWide := width >= FooterBreakpoint
		usedHeight := height
		if isWide && height > FooterHeightWide {
			usedHeight = FooterHeightWide
		}

		if isWide {
			ui.drawWideFooter(screen, x, y, width, usedHeight, helpText, statusText)
		} else {
			ui.drawNarrowFooter(screen, x, y, width, height, helpText, statusText)
		}

		return x, y, width, height
	})

	return box
}

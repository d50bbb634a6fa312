package ui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/glebovdev/spotplay-cli/internal/api"
	"github.com/glebovdev/spotplay-cli/internal/config"
	"github.com/rivo/tview"
)

var errNothingToPlay = errors.New("no Spotify credentials configured and the local library is empty")

func friendlyErrorMessage(err error) string {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorInfo.Message != "" {
		return fmt.Sprintf("Spotify: %s (%d).", apiErr.ErrorInfo.Message, apiErr.ErrorInfo.Status)
	}
	if errors.Is(err, errNothingToPlay) {
		return fmt.Sprintf("Nothing to play.\nSet %s and %s,\nor point library_dir at a folder of MP3s.",
			config.EnvSpotifyClientID, config.EnvSpotifyClientSecret)
	}

	errStr := err.Error()
	if strings.Contains(errStr, "no such host") {
		return "Unable to connect to server.\nPlease check your internet connection."
	}
	if strings.Contains(errStr, "connection refused") {
		return "Connection refused by server.\nThe service may be temporarily unavailable."
	}
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded") {
		return "Connection timed out.\nPlease check your internet connection."
	}
	if strings.Contains(errStr, "network is unreachable") {
		return "Network is unreachable.\nPlease check your internet connection."
	}
	if strings.Contains(errStr, "status 401") || strings.Contains(errStr, "invalid_client") {
		return "Spotify rejected the client credentials (401)."
	}
	if strings.Contains(errStr, "status 403") {
		return "Spotify access forbidden (403)."
	}
	if strings.Contains(errStr, "status 429") {
		return "Spotify rate limit reached (429).\nTry again in a minute."
	}

	if idx := strings.Index(errStr, ": dial"); idx > 0 {
		return errStr[:idx]
	}
	if len(errStr) > 100 {
		return errStr[:100] + "..."
	}
	return errStr
}

func (ui *UI) showError(err error) {
	ui.showErrorModal(friendlyErrorMessage(err))
}

func (ui *UI) showErrorModal(message string) {
	doDismiss := func() {
		ui.pages.RemovePage("error-modal")
		ui.app.SetFocus(ui.trackList)
	}

	messageView := tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetDynamicColors(true).
		SetText(fmt.Sprintf("\n[::b]Something went wrong[::-]\n\n%s", tview.Escape(message)))
	messageView.SetTextColor(ui.colors.foreground)
	messageView.SetBackgroundColor(ui.colors.modalBackground)

	hintView := tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetDynamicColors(true).
		SetText("[::d]Press [::b]Esc[::d] to dismiss[::-]")
	hintView.SetTextColor(tcell.ColorDarkGray)
	hintView.SetBackgroundColor(ui.colors.modalBackground)

	content := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(messageView, 0, 1, false).
		AddItem(hintView, 1, 0, false).
		AddItem(nil, 1, 0, false)
	content.SetBackgroundColor(ui.colors.modalBackground)

	frame := tview.NewFrame(content).
		SetBorders(0, 0, 1, 1, 1, 1)
	frame.SetBorder(true).
		SetBorderColor(ui.colors.errorText).
		SetBackgroundColor(ui.colors.modalBackground).
		SetTitle(" Error ").
		SetTitleColor(ui.colors.errorText).
		SetTitleAlign(tview.AlignCenter)

	modal := ui.centered(frame, 50, modalHeightFor(message, 10, 15))

	modal.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyEscape, tcell.KeyEnter:
			doDismiss()
			return nil
		}
		return event
	})

	ui.pages.AddPage("error-modal", modal, true, true)
	ui.app.SetFocus(modal)
}

// modalHeightFor grows base by the lines message adds beyond two, capped at max.
func modalHeightFor(message string, base, max int) int {
	height := base
	if lines := strings.Count(message, "\n") + 1; lines > 2 {
		height += lines - 2
	}
	if height > max {
		height = max
	}
	return height
}

func (ui *UI) centered(p tview.Primitive, width, height int) *tview.Flex {
	modal := tview.NewFlex().
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().SetDirection(tview.FlexRow).
			AddItem(nil, 0, 1, false).
			AddItem(p, height, 0, true).
			AddItem(nil, 0, 1, false),
			width, 0, true).
		AddItem(nil, 0, 1, false)
	modal.SetBackgroundColor(ui.colors.background)
	return modal
}

func (ui *UI) showSearchInput() {
	if !ui.catalog.Available() {
		return
	}

	doDismiss := func() {
		ui.pages.RemovePage("search")
		ui.app.SetFocus(ui.trackList)
	}

	input := tview.NewInputField().
		SetLabel(" Search: ").
		SetFieldWidth(0).
		SetLabelColor(ui.colors.highlight).
		SetFieldTextColor(ui.colors.foreground).
		SetFieldBackgroundColor(ui.colors.modalBackground)
	input.SetBackgroundColor(ui.colors.modalBackground)

	input.SetDoneFunc(func(key tcell.Key) {
		query := strings.TrimSpace(input.GetText())
		doDismiss()
		if key == tcell.KeyEnter && query != "" {
			ui.runSearch(query)
		}
	})

	frame := tview.NewFrame(input).
		SetBorders(1, 1, 0, 0, 1, 1)
	frame.SetBorder(true).
		SetBorderColor(ui.colors.highlight).
		SetBackgroundColor(ui.colors.modalBackground).
		SetTitle(" Search tracks ").
		SetTitleColor(ui.colors.highlight)

	ui.pages.AddPage("search", ui.centered(frame, 60, 5), true, true)
	ui.app.SetFocus(input)
}

func (ui *UI) showHelpModal() {
	keyColor := ui.colors.helpHotkey.String()

	configPath, _ := config.GetConfigPath()

	helpText := fmt.Sprintf(`[::b]KEYBOARD SHORTCUTS[::-]

[%[1]s]PLAYBACK[-]
  [%[1]s]Enter[-]      Play selected track
  [%[1]s]Space[-]      Pause / Resume
  [%[1]s]←[-] / [%[1]s]→[-]      Seek 5s back / forward
  [%[1]s]n[-] / [%[1]s]p[-]      Next / previous (library)
  [%[1]s]s[-]          Stop

[%[1]s]VOLUME[-]
  [%[1]s]+[-] / [%[1]s]-[-]      Volume up / down
  [%[1]s]m[-]          Mute / Unmute

[%[1]s]BROWSING[-]
  [%[1]s]Tab[-]        Switch sidebar / tracks
  [%[1]s]↑[-] / [%[1]s]↓[-]      Navigate list
  [%[1]s]/[-]          Search
  [%[1]s]f[-]          Toggle favorite
  [%[1]s]y[-]          Copy track link

[%[1]s]APPLICATION[-]
  [%[1]s]?[-]          Show this help
  [%[1]s]a[-]          About %[2]s
  [%[1]s]q[-] / [%[1]s]Esc[-]    Quit

Previews without audio fall back to the
full-length track when one is found.

[%[1]s]CONFIG[-]: %[3]s`,
		keyColor, config.AppName, configPath)

	ui.showInfoModal("Help", helpText)
}

func (ui *UI) showAboutModal() {
	linkColor := "skyblue"
	dimColor := "gray"

	aboutText := fmt.Sprintf(`[::b]%s[::-]
[%s]%s[-]

Version: %s
Author:  %s ([%s:::%s]%s[-:::-])
Project: [%s:::%s]%s[-:::-]
License: MIT

───────────────────────────────────────────

[%s]Catalog and previews from[-] [::b]Spotify[::-]
[%s]Full-length fallback via[-] [::b]YouTube[::-] + mpv`,
		config.AppName,
		dimColor, config.AppTagline,
		config.AppVersion,
		config.AppAuthor, linkColor, config.AppAuthorURL, config.AppAuthorURLShort,
		linkColor, config.AppProjectURL, config.AppProjectShort,
		dimColor,
		dimColor)

	ui.showInfoModal("About", aboutText)
}

func (ui *UI) showInfoModal(title, message string) {
	doDismiss := func() {
		ui.pages.RemovePage("modal")
		ui.app.SetFocus(ui.trackList)
	}

	messageView := tview.NewTextView().
		SetTextAlign(tview.AlignLeft).
		SetDynamicColors(true).
		SetWordWrap(true).
		SetText("\n" + message)
	messageView.SetTextColor(ui.colors.foreground)
	messageView.SetBackgroundColor(ui.colors.modalBackground)

	hintView := tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetDynamicColors(true).
		SetText("[::d]Press any key to close[::-]")
	hintView.SetTextColor(tcell.ColorDarkGray)
	hintView.SetBackgroundColor(ui.colors.modalBackground)

	content := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(messageView, 0, 1, false).
		AddItem(nil, 2, 0, false).
		AddItem(hintView, 1, 0, false).
		AddItem(nil, 1, 0, false)
	content.SetBackgroundColor(ui.colors.modalBackground)

	frame := tview.NewFrame(content).
		SetBorders(1, 0, 1, 1, 2, 2)
	frame.SetBorder(true).
		SetBorderColor(ui.colors.borders).
		SetBackgroundColor(ui.colors.modalBackground).
		SetTitle(" " + title + " ").
		SetTitleColor(ui.colors.highlight).
		SetTitleAlign(tview.AlignCenter)

	lines := strings.Count(message, "\n") + 1
	modalHeight := lines + 10
	if modalHeight > 40 {
		modalHeight = 40
	}

	modal := ui.centered(frame, 50, modalHeight)
	modal.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		doDismiss()
		return nil
	})

	ui.pages.AddPage("modal", modal, true, true)
	ui.app.SetFocus(modal)
}

func (ui *UI) showInitialErrorScreen(title, message string, onRetry, onQuit func()) {
	content := fmt.Sprintf("[::b]%s[::-]\n\n%s", title, tview.Escape(message))

	textView := tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetDynamicColors(true).
		SetText(content)
	textView.SetTextColor(ui.colors.foreground)
	textView.SetBackgroundColor(ui.colors.modalBackground)

	helpText := tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetDynamicColors(true).
		SetText("[::d]Press [::b]R[::d] to retry  •  Press [::b]Q[::d] to quit[::-]")
	helpText.SetTextColor(ui.colors.foreground)
	helpText.SetBackgroundColor(ui.colors.background)

	frame := tview.NewFrame(textView).
		SetBorders(2, 2, 2, 2, 2, 2)
	frame.SetBorder(true).
		SetBorderColor(ui.colors.highlight).
		SetBackgroundColor(ui.colors.modalBackground).
		SetTitle(" Connection Error ").
		SetTitleColor(ui.colors.highlight)

	layout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().
			AddItem(nil, 0, 1, false).
			AddItem(frame, 60, 1, true).
			AddItem(nil, 0, 1, false), 12, 1, true).
		AddItem(helpText, 2, 0, false).
		AddItem(nil, 0, 1, false)
	layout.SetBackgroundColor(ui.colors.background)

	layout.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyRune:
			switch event.Rune() {
			case 'r', 'R':
				if onRetry != nil {
					onRetry()
				}
				return nil
			case 'q', 'Q':
				if onQuit != nil {
					onQuit()
				}
				return nil
			}
		case tcell.KeyEscape:
			if onQuit != nil {
				onQuit()
			}
			return nil
		}
		return event
	})

	ui.app.SetRoot(layout, true)
	ui.app.SetFocus(layout)
}

func (ui *UI) handleInitialError(err error) {
	ui.showInitialErrorScreen(
		"Unable to Load Music",
		friendlyErrorMessage(err),
		func() { // onRetry
			ui.app.SetRoot(ui.loadingScreen, true)
			go ui.initAsync()
		},
		func() { // onQuit
			ui.app.Stop()
		},
	)
}

package ui

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/glebovdev/spotplay-cli/internal/config"
	"github.com/glebovdev/spotplay-cli/internal/player"
	"github.com/glebovdev/spotplay-cli/internal/service"
	"github.com/glebovdev/spotplay-cli/internal/track"
	"github.com/rivo/tview"
	"github.com/rs/zerolog/log"
)

const (
	VolumeStep            = 5
	SeekStep              = 5 * time.Second
	HeaderHeight          = 3
	FooterHeightWide      = 3 // Wide: 1 row with padding (top + text + bottom)
	FooterHeightNarrow    = 6 // Narrow: 2 rows × 3 lines each
	CoverWidth            = 26
	CoverHeight           = 12
	PlayerPanelHeight     = 12
	SidebarWidth          = 20
	FooterBreakpoint      = 130 // Width threshold for responsive footer
	HomeRefreshInterval   = 10 * time.Minute
	MinLoadingDisplayTime = 1200 * time.Millisecond
	MinStatusDisplayTime  = 300 * time.Millisecond
)

// PauseIcon uses platform-specific character (Windows renders ⏸ as emoji)
var PauseIcon = func() string {
	if runtime.GOOS == "windows" {
		return "❚❚"
	}
	return "⏸"
}()

// Deps are the components the UI drives.
type Deps struct {
	Controller  *player.Controller
	Catalog     *service.CatalogService
	Recommender *service.Recommender
	Library     []track.Track
	Config      *config.Config
}

type UI struct {
	app         *tview.Application
	controller  *player.Controller
	catalog     *service.CatalogService
	recommender *service.Recommender
	library     []track.Track
	config      *config.Config

	sidebar        *tview.List
	trackList      *tview.Table
	helpPanel      *tview.Box
	contentLayout  *tview.Flex
	playerPanel    *tview.Flex
	artworkPanel   *tview.Image
	titleView      *tview.TextView
	artistView     *tview.TextView
	albumView      *tview.TextView
	sourceView     *tview.TextView
	messageView    *tview.TextView
	seekBar        *tview.Box
	volumeView     *tview.Flex
	mainLayout     *tview.Flex
	loadingScreen  *tview.Flex
	loadingText    *tview.TextView
	progressBar    *tview.TextView
	pages          *tview.Pages
	statusRenderer *StatusRenderer
	playingSpinner *PlayingSpinner

	mu              sync.Mutex
	stopUpdates     chan struct{}
	stateC          chan struct{}
	latest          player.PlaybackState
	shown           player.PlaybackState
	artworkURL      string
	notifiedKey     string
	section         section
	listings        map[section]listing
	rows            []listRow
	listingTitle    string
	currentVolume   int
	isMuted         bool
	animationFrame  int
	lastFooterWidth int
	cancelState     func()
	homeErr         error

	colors struct {
		background                tcell.Color
		foreground                tcell.Color
		borders                   tcell.Color
		highlight                 tcell.Color
		headerBackground          tcell.Color
		trackListHeaderBackground tcell.Color
		trackListHeaderForeground tcell.Color
		helpBackground            tcell.Color
		helpForeground            tcell.Color
		helpHotkey                tcell.Color
		fallbackBadge             tcell.Color
		errorText                 tcell.Color
		modalBackground           tcell.Color
	}
}

func NewUI(deps Deps) *UI {
	cfg := deps.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	ui := &UI{
		app:           tview.NewApplication(),
		controller:    deps.Controller,
		catalog:       deps.Catalog,
		recommender:   deps.Recommender,
		library:       deps.Library,
		config:        cfg,
		stopUpdates:   make(chan struct{}),
		stateC:        make(chan struct{}, 1),
		listings:      make(map[section]listing),
		currentVolume: cfg.Volume,
	}

	ui.colors.background = config.GetColor(cfg.Theme.Background)
	ui.colors.foreground = config.GetColor(cfg.Theme.Foreground)
	ui.colors.borders = config.GetColor(cfg.Theme.Borders)
	ui.colors.highlight = config.GetColor(cfg.Theme.Highlight)
	ui.colors.headerBackground = config.GetColor(cfg.Theme.HeaderBackground)
	ui.colors.trackListHeaderBackground = config.GetColor(cfg.Theme.TrackListHeaderBackground)
	ui.colors.trackListHeaderForeground = config.GetColor(cfg.Theme.TrackListHeaderForeground)
	ui.colors.helpBackground = config.GetColor(cfg.Theme.HelpBackground)
	ui.colors.helpForeground = config.GetColor(cfg.Theme.HelpForeground)
	ui.colors.helpHotkey = config.GetColor(cfg.Theme.HelpHotkey)
	ui.colors.fallbackBadge = config.GetColor(cfg.Theme.FallbackBadge)
	ui.colors.errorText = config.GetColor(cfg.Theme.Error)
	ui.colors.modalBackground = config.GetColor(cfg.Theme.ModalBackground)

	ui.controller.SetVolume(cfg.Volume)
	log.Debug().Msgf("Loaded volume from config: %d%%", cfg.Volume)

	ui.statusRenderer = NewStatusRenderer()
	ui.statusRenderer.SetPrimaryColor(ui.colors.highlight.String())

	ui.listings[sectionLibrary] = trackListing("Library", ui.library)

	return ui
}

func (ui *UI) SaveConfig() {
	ui.mu.Lock()
	if !ui.isMuted {
		ui.config.Volume = ui.currentVolume
	}
	if t := ui.latest.Track; t != nil && !t.Local {
		ui.config.LastTrack = t.ID
	}
	ui.mu.Unlock()

	if err := ui.config.Save(); err != nil {
		log.Error().Err(err).Msg("Failed to save config")
	}
}

func (ui *UI) safeCloseChannel() {
	ui.mu.Lock()
	defer ui.mu.Unlock()

	if ui.stopUpdates != nil {
		select {
		case <-ui.stopUpdates:
			// Already closed
		default:
			close(ui.stopUpdates)
		}
		ui.stopUpdates = nil
	}
}

func (ui *UI) stop() {
	if ui.catalog != nil {
		ui.catalog.StopPeriodicRefresh()
	}
	if ui.recommender != nil {
		ui.recommender.Stop()
	}
	if ui.cancelState != nil {
		ui.cancelState()
	}
	ui.SaveConfig()
	ui.controller.Stop()
	ui.safeCloseChannel()
	ui.app.Stop()
}

// Shutdown stops the UI gracefully from external callers (e.g., signal handlers).
func (ui *UI) Shutdown() {
	ui.app.QueueUpdateDraw(func() {
		ui.stop()
	})
}

func (ui *UI) Run() error {
	ui.setupLoadingScreen()
	ui.app.SetRoot(ui.loadingScreen, true)
	ui.configureScreen()

	go ui.initAsync()

	return ui.app.Run()
}

func (ui *UI) configureScreen() {
	bgStyle := tcell.StyleDefault.Background(ui.colors.background)
	ui.app.SetBeforeDrawFunc(func(screen tcell.Screen) bool {
		screen.SetStyle(bgStyle)
		screen.Clear()
		return false
	})

	var titleSet sync.Once
	ui.app.SetAfterDrawFunc(func(screen tcell.Screen) {
		titleSet.Do(func() { screen.SetTitle(config.AppName) })
	})
}

func (ui *UI) initAsync() {
	if err := ui.loadAndInitUI(); err != nil {
		ui.app.QueueUpdateDraw(func() {
			ui.handleInitialError(err)
		})
	}
}

func (ui *UI) setupLoadingScreen() {
	ui.loadingText = tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetText("Connecting to Spotify... (1/3)")
	ui.loadingText.SetTextColor(ui.colors.foreground).
		SetBackgroundColor(ui.colors.background)

	ui.progressBar = tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetText(renderLoadingBar(0))
	ui.progressBar.SetTextColor(ui.colors.highlight).
		SetBackgroundColor(ui.colors.background)

	content := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(ui.loadingText, 1, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(ui.progressBar, 1, 0, false)
	content.SetBackgroundColor(ui.colors.background)

	ui.loadingScreen = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(nil, 0, 1, false).
		AddItem(content, 3, 0, false).
		AddItem(nil, 0, 1, false)

	ui.loadingScreen.SetBackgroundColor(ui.colors.background)
}

func renderLoadingBar(percent int) string {
	const width = 30
	filled := (percent * width) / 100
	empty := width - filled
	return strings.Repeat("█", filled) + strings.Repeat("░", empty)
}

func (ui *UI) animateProgress(fromPercent, toPercent int, duration time.Duration) {
	steps := toPercent - fromPercent
	if steps <= 0 {
		return
	}
	stepDuration := duration / time.Duration(steps)
	lastBar := renderLoadingBar(fromPercent)

	for p := fromPercent + 1; p <= toPercent; p++ {
		time.Sleep(stepDuration)
		if bar := renderLoadingBar(p); bar != lastBar {
			ui.app.QueueUpdateDraw(func() {
				ui.progressBar.SetText(bar)
			})
			lastBar = bar
		}
	}
}

// loadAndInitUI fetches the home feed and builds the interface. A failed
// fetch is fatal only when there is no local library to fall back to.
func (ui *UI) loadAndInitUI() error {
	const totalStages = 3
	stagePercent := func(stage int) int { return (stage * 100) / totalStages }

	startTime := time.Now()

	animDone := make(chan struct{})
	go func() {
		ui.animateProgress(stagePercent(0), stagePercent(1), MinStatusDisplayTime)
		close(animDone)
	}()

	ui.homeErr = nil
	if ui.catalog.Available() {
		home, err := ui.catalog.GetHomeFeed(context.Background())
		if err != nil {
			if len(ui.library) == 0 {
				<-animDone
				return err
			}
			log.Warn().Err(err).Msg("Failed to load home feed, using local library")
			ui.homeErr = err
		} else {
			ui.setHomeListings(home)
			log.Debug().Msgf("Loaded home feed (%d albums, %d tracks) in %v", len(home.Albums), len(home.Popular), time.Since(startTime))
		}
	} else if len(ui.library) == 0 {
		<-animDone
		return errNothingToPlay
	}

	<-animDone

	ui.app.QueueUpdateDraw(func() {
		ui.loadingText.SetText("Loading library... (2/3)")
	})

	ui.animateProgress(stagePercent(1), stagePercent(2), MinStatusDisplayTime)

	ui.app.QueueUpdateDraw(func() {
		ui.loadingText.SetText("Building interface... (3/3)")
	})

	ui.setupUI()

	ui.animateProgress(stagePercent(2), stagePercent(3), MinStatusDisplayTime)

	// Floor, not ceiling: wait only if real work finished early.
	if elapsed := time.Since(startTime); elapsed < MinLoadingDisplayTime {
		time.Sleep(MinLoadingDisplayTime - elapsed)
	}
	log.Debug().Msgf("Total loading time: %v", time.Since(startTime))

	ui.app.QueueUpdateDraw(func() {
		ui.app.SetRoot(ui.pages, true).EnableMouse(true)

		start := sectionHome
		if !ui.catalog.Available() || ui.homeErr != nil {
			start = sectionLibrary
		}
		ui.selectSection(start)
		ui.app.SetFocus(ui.trackList)

		if ui.homeErr != nil {
			ui.showError(ui.homeErr)
		}
		ui.autostart()
	})

	ui.startBackground()
	return nil
}

func (ui *UI) autostart() {
	if !ui.config.Autostart || ui.config.LastTrack == "" || !ui.catalog.Available() {
		return
	}
	log.Debug().Msgf("Autostart enabled, playing last track: %s", ui.config.LastTrack)
	ui.controller.PlayTrack(ui.config.LastTrack, true)
}

func (ui *UI) startBackground() {
	ui.cancelState = ui.controller.Subscribe(ui.onState)
	ui.onState(ui.controller.State())

	go ui.pumpState()
	ui.startPlayingAnimation()

	if ui.catalog.Available() {
		ui.catalog.StartPeriodicRefresh(HomeRefreshInterval, ui.onHomeRefreshed)
		if ui.recommender != nil {
			ui.recommender.Start(ui.onRecommendations)
		}
	}
}

func (ui *UI) setupUI() {
	header := ui.createHeader()

	ui.playerPanel = ui.createPlayerPanel()
	ui.sidebar = ui.createSidebar()
	ui.trackList = ui.createTrackTable()
	ui.helpPanel = ui.createFooter()

	body := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(ui.sidebar, SidebarWidth, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(ui.trackList, 0, 1, true)
	body.SetBackgroundColor(ui.colors.background)

	ui.contentLayout = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(header, HeaderHeight, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(ui.playerPanel, PlayerPanelHeight, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(body, 0, 1, true).
		AddItem(ui.helpPanel, FooterHeightWide, 0, false)
	ui.contentLayout.SetBackgroundColor(ui.colors.background)

	wrapper := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(nil, 3, 0, false).
		AddItem(ui.contentLayout, 0, 1, true).
		AddItem(nil, 3, 0, false)
	wrapper.SetBackgroundColor(ui.colors.background)

	ui.mainLayout = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(nil, 1, 0, false).
		AddItem(wrapper, 0, 1, true).
		AddItem(nil, 1, 0, false)
	ui.mainLayout.SetBackgroundColor(ui.colors.background)

	ui.pages = tview.NewPages().
		AddPage("main", ui.mainLayout, true, true)
	ui.pages.SetBackgroundColor(ui.colors.background)

	ui.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if ui.pages.HasPage("modal") || ui.pages.HasPage("error-modal") || ui.pages.HasPage("search") {
			return event
		}
		return ui.globalInputHandler(event)
	})
}

func (ui *UI) createHeader() tview.Primitive {
	titleView := tview.NewTextView()
	titleView.SetText(" " + config.AppName)
	titleView.SetTextAlign(tview.AlignLeft)
	titleView.SetTextColor(ui.colors.foreground)
	titleView.SetBackgroundColor(ui.colors.headerBackground)

	versionView := tview.NewTextView()
	versionView.SetText("v" + config.AppVersion + " ")
	versionView.SetTextAlign(tview.AlignRight)
	versionView.SetTextColor(ui.colors.foreground)
	versionView.SetBackgroundColor(ui.colors.headerBackground)

	textFlex := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(titleView, 0, 1, false).
		AddItem(versionView, 10, 0, false)
	textFlex.SetBackgroundColor(ui.colors.headerBackground)

	topSpacer := tview.NewBox().SetBackgroundColor(ui.colors.headerBackground)
	bottomSpacer := tview.NewBox().SetBackgroundColor(ui.colors.headerBackground)
	leftSpacer := tview.NewBox().SetBackgroundColor(ui.colors.headerBackground)
	rightSpacer := tview.NewBox().SetBackgroundColor(ui.colors.headerBackground)

	textWithPadding := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(leftSpacer, 1, 0, false).
		AddItem(textFlex, 0, 1, false).
		AddItem(rightSpacer, 1, 0, false)
	textWithPadding.SetBackgroundColor(ui.colors.headerBackground)

	headerFlex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(topSpacer, 1, 0, false).
		AddItem(textWithPadding, 1, 0, false).
		AddItem(bottomSpacer, 1, 0, false)
	headerFlex.SetBackgroundColor(ui.colors.headerBackground)

	return headerFlex
}

func (ui *UI) label(text string) *tview.TextView {
	tv := tview.NewTextView()
	tv.SetText(text)
	tv.SetTextColor(ui.colors.foreground)
	tv.SetBackgroundColor(ui.colors.background)
	tv.SetWrap(false)
	return tv
}

func (ui *UI) valueView() *tview.TextView {
	tv := tview.NewTextView()
	tv.SetDynamicColors(true)
	tv.SetTextColor(ui.colors.highlight)
	tv.SetBackgroundColor(ui.colors.background)
	tv.SetWrap(false)
	tv.SetTextStyle(tcell.StyleDefault.Background(ui.colors.background).Attributes(tcell.AttrBold))
	return tv
}

func (ui *UI) createPlayerPanel() *tview.Flex {
	ui.artworkPanel = tview.NewImage()
	ui.artworkPanel.SetBackgroundColor(ui.colors.background)
	ui.artworkPanel.SetAlign(tview.AlignLeft, tview.AlignTop)

	ui.titleView = ui.valueView()
	ui.artistView = ui.valueView()
	ui.albumView = ui.valueView()
	ui.albumView.SetTextColor(ui.colors.foreground)

	ui.sourceView = tview.NewTextView()
	ui.sourceView.SetDynamicColors(true)
	ui.sourceView.SetBackgroundColor(ui.colors.background)

	ui.messageView = tview.NewTextView()
	ui.messageView.SetDynamicColors(true)
	ui.messageView.SetTextColor(ui.colors.foreground)
	ui.messageView.SetBackgroundColor(ui.colors.background)

	ui.seekBar = ui.createSeekBar()

	infoContent := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(ui.label(" Track:"), 1, 0, false).
		AddItem(ui.titleView, 1, 0, false).
		AddItem(ui.label(" Artist:"), 1, 0, false).
		AddItem(ui.artistView, 1, 0, false).
		AddItem(ui.label(" Album:"), 1, 0, false).
		AddItem(ui.albumView, 1, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(ui.sourceView, 1, 0, false).
		AddItem(ui.messageView, 1, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(ui.seekBar, 1, 0, false).
		AddItem(nil, 0, 1, false)
	infoContent.SetBackgroundColor(ui.colors.background)

	ui.volumeView = ui.createGraphicalVolumeBar()

	// Wrap artwork in vertical flex to constrain height
	artworkWrapper := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(ui.artworkPanel, CoverHeight, 0, false).
		AddItem(nil, 0, 1, false)
	artworkWrapper.SetBackgroundColor(ui.colors.background)

	contentFlex := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(artworkWrapper, CoverWidth, 0, false).
		AddItem(infoContent, 0, 1, false).
		AddItem(ui.volumeView, 7, 0, false)
	contentFlex.SetBackgroundColor(ui.colors.background)

	contentWithPadding := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(nil, 4, 0, false).
		AddItem(contentFlex, 0, 1, false).
		AddItem(nil, 4, 0, false)
	contentWithPadding.SetBackgroundColor(ui.colors.background)

	ui.renderNowPlaying(player.PlaybackState{})
	return contentWithPadding
}

// createSeekBar draws elapsed/total around a bar. Clicking the bar seeks.
func (ui *UI) createSeekBar() *tview.Box {
	box := tview.NewBox().SetBackgroundColor(ui.colors.background)

	box.SetDrawFunc(func(screen tcell.Screen, x, y, width, height int) (int, int, int, int) {
		ui.mu.Lock()
		s := ui.shown
		ui.mu.Unlock()

		elapsed, total := " "+s.Elapsed.String(), s.Total.String()+" "
		barWidth := width - len(elapsed) - len(total) - 2
		if barWidth < 1 {
			return x, y, width, height
		}

		tview.Print(screen, elapsed, x, y, len(elapsed), tview.AlignLeft, ui.colors.foreground)
		tview.Print(screen, renderSeekBar(s.Progress, barWidth), x+len(elapsed)+1, y, barWidth, tview.AlignLeft, ui.colors.highlight)
		tview.Print(screen, total, x+width-len(total), y, len(total), tview.AlignRight, ui.colors.foreground)
		return x, y, width, height
	})

	box.SetMouseCapture(func(action tview.MouseAction, event *tcell.EventMouse) (tview.MouseAction, *tcell.EventMouse) {
		if action != tview.MouseLeftClick {
			return action, event
		}
		bx, _, bw, _ := box.GetInnerRect()
		mx, _ := event.Position()

		ui.mu.Lock()
		s := ui.shown
		ui.mu.Unlock()

		elapsedWidth := len(" "+s.Elapsed.String()) + 1
		barWidth := bw - elapsedWidth - len(s.Total.String()+" ") - 1
		if s.HasTrack() && barWidth > 0 {
			ui.controller.Seek(player.SeekFraction(mx-bx-elapsedWidth, barWidth))
		}
		return action, nil
	})

	return box
}

// renderSeekBar draws a width-cell bar filled to progress.
func renderSeekBar(progress float64, width int) string {
	if width <= 0 {
		return ""
	}
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	filled := int(progress * float64(width))
	return strings.Repeat("━", filled) + strings.Repeat("─", width-filled)
}

// onState runs on the controller goroutine, so it only stores the snapshot
// and wakes the pump.
func (ui *UI) onState(s player.PlaybackState) {
	ui.mu.Lock()
	ui.latest = s
	ui.mu.Unlock()

	select {
	case ui.stateC <- struct{}{}:
	default:
	}
}

func (ui *UI) pumpState() {
	ui.mu.Lock()
	stop := ui.stopUpdates
	ui.mu.Unlock()

	for {
		select {
		case <-stop:
			return
		case <-ui.stateC:
			ui.app.QueueUpdateDraw(func() {
				ui.mu.Lock()
				s := ui.latest
				ui.mu.Unlock()
				ui.renderState(s)
			})
		}
	}
}

func (ui *UI) renderState(s player.PlaybackState) {
	ui.mu.Lock()
	prev := ui.shown
	ui.shown = s
	ui.mu.Unlock()

	ui.renderNowPlaying(s)

	if trackKey(prev.Track) != trackKey(s.Track) || prev.IsPlaying != s.IsPlaying {
		ui.refreshPlayingRows()
	}

	if s.Track != nil && s.Track.ArtworkURL != ui.artworkURL {
		ui.artworkURL = s.Track.ArtworkURL
		ui.updateArtwork(s.Track.ArtworkURL)
	}

	if key := trackKey(s.Track); s.IsPlaying && key != "" && key != ui.notifiedKey {
		ui.notifiedKey = key
		if ui.config.Notifications {
			go notifyNowPlaying(*s.Track)
		}
		ui.SaveConfig()
	}
}

func (ui *UI) renderNowPlaying(s player.PlaybackState) {
	highlight := ui.colors.highlight.String()

	if s.Track == nil {
		ui.titleView.SetText(" -")
		ui.artistView.SetText(" -")
		ui.albumView.SetText(" -")
	} else {
		ui.titleView.SetText(fmt.Sprintf(" [%s]%s[-]", highlight, tview.Escape(s.Track.Name)))
		ui.artistView.SetText(fmt.Sprintf(" [%s]%s[-]", highlight, tview.Escape(s.Track.Subtitle())))
		album := "-"
		if s.Track.Album != nil && s.Track.Album.Name != "" {
			album = s.Track.Album.Name
		} else if s.Track.Local {
			album = "Local file"
		}
		ui.albumView.SetText(" " + tview.Escape(album))
	}

	ui.sourceView.SetText(" " + ui.sourceBadge(s))

	switch {
	case s.LastError != "":
		ui.messageView.SetText(fmt.Sprintf(" [%s]✗ %s[-]", ui.colors.errorText.String(), tview.Escape(s.LastError)))
	case s.Status != "":
		ui.messageView.SetText(" " + tview.Escape(s.Status))
	default:
		ui.messageView.SetText("")
	}
}

func (ui *UI) sourceBadge(s player.PlaybackState) string {
	switch {
	case s.UsingFallback():
		return fmt.Sprintf("[%s::b]FULL TRACK[-::-] via YouTube", ui.colors.fallbackBadge.String())
	case s.Active == player.BackendPreview:
		if s.Track != nil && s.Track.Local {
			return fmt.Sprintf("[%s::b]LOCAL[-::-]", ui.colors.highlight.String())
		}
		return fmt.Sprintf("[%s::b]PREVIEW[-::-] 30s clip", ui.colors.highlight.String())
	default:
		return ""
	}
}

func (ui *UI) updateArtwork(url string) {
	if url == "" {
		return
	}
	go func() {
		img, err := ui.catalog.LoadImage(url)
		if err != nil {
			log.Debug().Err(err).Str("url", url).Msg("Failed to load artwork")
			return
		}

		ui.app.QueueUpdateDraw(func() {
			if ui.artworkURL == url {
				ui.artworkPanel.SetImage(img)
			}
		})
	}()
}

// trackKey identifies a track across remote and local namespaces.
func trackKey(t *track.Track) string {
	if t == nil {
		return ""
	}
	if t.Local {
		return "local:" + t.ID
	}
	return t.ID
}

type PlayingSpinner struct {
	Frames []string
	FPS    time.Duration
}

func NewPlayingSpinner() *PlayingSpinner {
	return &PlayingSpinner{
		Frames: []string{"⣾ ", "⣽ ", "⣻ ", "⢿ ", "⡿ ", "⣟ ", "⣯ ", "⣷ "},
		FPS:    time.Second / 10,
	}
}

func (ui *UI) getPlayingIndicator() string {
	if ui.playingSpinner == nil {
		ui.playingSpinner = NewPlayingSpinner()
	}

	ui.mu.Lock()
	frame := ui.animationFrame
	ui.mu.Unlock()

	return ui.playingSpinner.Frames[frame%len(ui.playingSpinner.Frames)]
}

func (ui *UI) startPlayingAnimation() {
	if ui.playingSpinner == nil {
		ui.playingSpinner = NewPlayingSpinner()
	}

	ui.mu.Lock()
	stop := ui.stopUpdates
	ui.mu.Unlock()

	go func() {
		animationTicker := time.NewTicker(ui.playingSpinner.FPS)
		defer animationTicker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-animationTicker.C:
				ui.mu.Lock()
				ui.animationFrame++
				playing := ui.shown.IsPlaying || ui.shown.Phase == player.PhaseLoading
				ui.mu.Unlock()

				ui.statusRenderer.AdvanceAnimation()

				if playing {
					ui.app.QueueUpdateDraw(ui.updatePlayingIndicator)
				}
			}
		}
	}()
}

func (ui *UI) onHomeRefreshed(home service.HomeFeed) {
	ui.app.QueueUpdateDraw(func() {
		ui.setHomeListings(home)
		ui.refreshSection(sectionHome, sectionReleases)
	})
}

func (ui *UI) onRecommendations(tracks []track.Track) {
	ui.app.QueueUpdateDraw(func() {
		title := "Made for you"
		if artist := ui.recommender.CurrentArtistName(); artist != "" {
			title = fmt.Sprintf("Made for you · because you played %s", artist)
		}
		ui.mu.Lock()
		ui.listings[sectionForYou] = trackListing(title, tracks)
		ui.mu.Unlock()
		ui.refreshSection(sectionForYou)
	})
}

func (ui *UI) selectedRow() (listRow, bool) {
	row, _ := ui.trackList.GetSelection()
	ui.mu.Lock()
	defer ui.mu.Unlock()
	if row <= 0 || row > len(ui.rows) {
		return listRow{}, false
	}
	return ui.rows[row-1], true
}

func (ui *UI) globalInputHandler(event *tcell.EventKey) *tcell.EventKey {
	switch event.Key() {
	case tcell.KeyRune:
		switch event.Rune() {
		case 'q', 'Q':
			ui.stop()
			return nil
		case ' ':
			ui.togglePlayback()
			return nil
		case 'n', 'N', '>':
			ui.controller.Next()
			return nil
		case 'p', 'P', '<':
			ui.controller.Previous()
			return nil
		case 's', 'S':
			ui.controller.Stop()
			return nil
		case '/':
			ui.showSearchInput()
			return nil
		case 'y', 'Y':
			ui.copyTrackLink()
			return nil
		case 'f', 'F':
			ui.toggleFavorite()
			return nil
		case '+', '=':
			ui.adjustVolume(VolumeStep)
			return nil
		case '-', '_':
			ui.adjustVolume(-VolumeStep)
			return nil
		case 'm', 'M':
			ui.toggleMute()
			return nil
		case '?':
			ui.showHelpModal()
			return nil
		case 'a', 'A':
			ui.showAboutModal()
			return nil
		}
	case tcell.KeyEnter:
		if ui.app.GetFocus() == ui.sidebar {
			return event
		}
		if r, ok := ui.selectedRow(); ok {
			ui.activateRow(r)
		}
		return nil
	case tcell.KeyTab, tcell.KeyBacktab:
		if ui.app.GetFocus() == ui.sidebar {
			ui.app.SetFocus(ui.trackList)
		} else {
			ui.app.SetFocus(ui.sidebar)
		}
		return nil
	case tcell.KeyEscape:
		ui.stop()
		return nil
	case tcell.KeyRight:
		ui.seekRelative(SeekStep)
		return nil
	case tcell.KeyLeft:
		ui.seekRelative(-SeekStep)
		return nil
	}
	return event
}

func (ui *UI) togglePlayback() {
	ui.mu.Lock()
	hasTrack := ui.shown.HasTrack()
	ui.mu.Unlock()

	if hasTrack {
		ui.controller.TogglePause()
		return
	}
	if r, ok := ui.selectedRow(); ok && r.kind == rowTrack {
		ui.playRow(r)
	}
}

func (ui *UI) seekRelative(delta time.Duration) {
	ui.mu.Lock()
	s := ui.shown
	ui.mu.Unlock()

	if !s.HasTrack() {
		return
	}
	ui.controller.SeekBy(delta)
}

package ui

import (
	"context"
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/glebovdev/spotplay-cli/internal/player"
	"github.com/glebovdev/spotplay-cli/internal/service"
	"github.com/glebovdev/spotplay-cli/internal/track"
	"github.com/mattn/go-runewidth"
	"github.com/rivo/tview"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

type section int

const (
	sectionHome section = iota
	sectionForYou
	sectionReleases
	sectionGenres
	sectionLibrary
	sectionSearch
	sectionBrowse // album or genre tracks opened from another section
)

var sidebarSections = []struct {
	section section
	name    string
	remote  bool
}{
	{sectionHome, "Home", true},
	{sectionForYou, "Made for you", true},
	{sectionReleases, "New releases", true},
	{sectionGenres, "Genres", true},
	{sectionLibrary, "Library", false},
	{sectionSearch, "Search", true},
}

type rowKind int

const (
	rowTrack rowKind = iota
	rowAlbum
	rowGenre
)

type listRow struct {
	kind  rowKind
	track track.Track
	album service.Album
	genre service.Genre
}

type listing struct {
	title string
	rows  []listRow
}

func trackListing(title string, tracks []track.Track) listing {
	return listing{
		title: title,
		rows:  lo.Map(tracks, func(t track.Track, _ int) listRow { return listRow{kind: rowTrack, track: t} }),
	}
}

func albumListing(title string, albums []service.Album) listing {
	return listing{
		title: title,
		rows:  lo.Map(albums, func(a service.Album, _ int) listRow { return listRow{kind: rowAlbum, album: a} }),
	}
}

func genreListing(title string, genres []service.Genre) listing {
	return listing{
		title: title,
		rows:  lo.Map(genres, func(g service.Genre, _ int) listRow { return listRow{kind: rowGenre, genre: g} }),
	}
}

const (
	titleColumnWidth  = 40
	artistColumnWidth = 28
)

// truncate shortens s to at most width terminal cells.
func truncate(s string, width int) string {
	if runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}

// cellText truncates s and escapes it so brackets in titles are not read as
// color tags.
func cellText(s string, width int) string {
	return tview.Escape(truncate(s, width))
}

func formatLength(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	return track.SplitDuration(d).String()
}

func (ui *UI) setHomeListings(home service.HomeFeed) {
	ui.mu.Lock()
	defer ui.mu.Unlock()
	ui.listings[sectionHome] = trackListing("Popular right now", home.Popular)
	ui.listings[sectionReleases] = albumListing("New releases", home.Albums)
}

// restoreHomeListings fills the home sections from a previously fetched feed.
// An empty feed leaves them unloaded.
func (ui *UI) restoreHomeListings(home service.HomeFeed) bool {
	if len(home.Albums) == 0 && len(home.Popular) == 0 {
		return false
	}
	ui.setHomeListings(home)
	return true
}

func (ui *UI) createSidebar() *tview.List {
	list := tview.NewList().ShowSecondaryText(false)
	list.SetBorder(true).
		SetTitle("Browse").
		SetBorderColor(ui.colors.borders).
		SetTitleColor(ui.colors.foreground).
		SetBackgroundColor(ui.colors.background)
	list.SetMainTextColor(ui.colors.foreground).
		SetSelectedTextColor(ui.colors.background).
		SetSelectedBackgroundColor(ui.colors.highlight)

	for _, item := range sidebarSections {
		if item.remote && !ui.catalog.Available() {
			continue
		}
		s := item.section
		list.AddItem(item.name, "", 0, func() {
			if s == sectionSearch {
				ui.showSearchInput()
				return
			}
			ui.selectSection(s)
			ui.app.SetFocus(ui.trackList)
		})
	}

	return list
}

func (ui *UI) createTrackTable() *tview.Table {
	table := tview.NewTable().
		SetBorders(false).
		SetSeparator(' ').
		SetSelectable(true, false).
		SetFixed(1, 0)

	table.SetBorder(true).
		SetBorderColor(ui.colors.borders).
		SetTitleColor(ui.colors.foreground).
		SetBackgroundColor(ui.colors.background).
		SetBorderPadding(1, 0, 1, 1)

	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(ui.colors.background).
		Background(ui.colors.highlight))

	return table
}

func (ui *UI) headerCell(text string) *tview.TableCell {
	return tview.NewTableCell(text).
		SetTextColor(ui.colors.trackListHeaderForeground).
		SetBackgroundColor(ui.colors.trackListHeaderBackground).
		SetSelectable(false)
}

// selectSection shows the listing for s, loading it first when needed.
func (ui *UI) selectSection(s section) {
	ui.mu.Lock()
	ui.section = s
	_, loaded := ui.listings[s]
	ui.mu.Unlock()

	if !loaded {
		switch s {
		case sectionGenres:
			ui.loadListing(s, "Genres", func(ctx context.Context) (listing, error) {
				genres, err := ui.catalog.GetGenres(ctx)
				return genreListing("Genres", genres), err
			})
			return
		case sectionHome, sectionReleases:
			if ui.catalog.Available() && ui.restoreHomeListings(ui.catalog.GetCachedHomeFeed()) {
				log.Debug().Msg("Showing cached home feed")
			}
		case sectionForYou:
			if ui.recommender != nil {
				ui.mu.Lock()
				ui.listings[s] = trackListing("Made for you", ui.recommender.Cached())
				ui.mu.Unlock()
			}
		}
	}

	ui.refreshSection(s)
}

// loadListing fetches a listing in the background and shows it once ready,
// unless the user moved to another section meanwhile.
func (ui *UI) loadListing(s section, title string, fetch func(ctx context.Context) (listing, error)) {
	ui.mu.Lock()
	ui.section = s
	ui.mu.Unlock()

	ui.showListing(listing{title: title + " (loading...)"})

	go func() {
		l, err := fetch(context.Background())
		ui.app.QueueUpdateDraw(func() {
			if err != nil {
				log.Error().Err(err).Msgf("Failed to load %s", title)
				ui.showError(err)
				return
			}
			ui.mu.Lock()
			ui.listings[s] = l
			current := ui.section
			ui.mu.Unlock()
			if current == s {
				ui.showListing(l)
			}
		})
	}()
}

// refreshSection redraws the table when one of sections is on screen.
func (ui *UI) refreshSection(sections ...section) {
	ui.mu.Lock()
	current := ui.section
	l, ok := ui.listings[current]
	ui.mu.Unlock()

	if !ok || !lo.Contains(sections, current) {
		return
	}
	ui.showListing(l)
}

func (ui *UI) showListing(l listing) {
	ui.mu.Lock()
	ui.rows = l.rows
	sameListing := ui.listingTitle == l.title
	ui.listingTitle = l.title
	ui.mu.Unlock()

	selected, _ := ui.trackList.GetSelection()
	if !sameListing {
		selected = 1
	}

	ui.trackList.Clear()
	ui.trackList.SetTitle(fmt.Sprintf("%s (%d)", l.title, len(l.rows)))

	ui.trackList.SetCell(0, 0, ui.headerCell(" ").SetMaxWidth(2))
	ui.trackList.SetCell(0, 1, ui.headerCell(" ").SetMaxWidth(2))
	ui.trackList.SetCell(0, 2, ui.headerCell("Title").SetExpansion(2))
	ui.trackList.SetCell(0, 3, ui.headerCell("Artist").SetExpansion(1))
	ui.trackList.SetCell(0, 4, ui.headerCell("Length").SetAlign(tview.AlignRight))

	for i, r := range l.rows {
		ui.setRow(i+1, r)
	}

	if selected < 1 || selected > len(l.rows) {
		selected = 1
	}
	if !sameListing {
		ui.trackList.ScrollToBeginning()
	}
	ui.trackList.Select(selected, 0)
}

func (ui *UI) setRow(row int, r listRow) {
	var fav, icon, title, artist, length string

	switch r.kind {
	case rowTrack:
		if ui.config.IsFavorite(r.track.ID) {
			fav = "★"
		}
		icon = ui.playIcon(r.track)
		title = r.track.Name
		artist = r.track.Subtitle()
		length = formatLength(r.track.Duration)
	case rowAlbum:
		icon = "◎"
		title = r.album.Name
		artist = r.album.Artist
		if r.album.TotalTracks > 0 {
			length = fmt.Sprintf("%d tracks", r.album.TotalTracks)
		}
	case rowGenre:
		icon = "#"
		title = r.genre.Name
	}

	ui.trackList.SetCell(row, 0, tview.NewTableCell(fav).
		SetTextColor(ui.colors.foreground).
		SetMaxWidth(2))
	ui.trackList.SetCell(row, 1, tview.NewTableCell(icon).
		SetTextColor(ui.colors.foreground).
		SetMaxWidth(2))
	ui.trackList.SetCell(row, 2, tview.NewTableCell(cellText(title, titleColumnWidth)).
		SetTextColor(ui.colors.foreground).
		SetExpansion(2))
	ui.trackList.SetCell(row, 3, tview.NewTableCell(cellText(artist, artistColumnWidth)).
		SetTextColor(ui.colors.foreground).
		SetExpansion(1))
	ui.trackList.SetCell(row, 4, tview.NewTableCell(length).
		SetTextColor(ui.colors.foreground).
		SetAlign(tview.AlignRight))
}

func (ui *UI) playIcon(t track.Track) string {
	ui.mu.Lock()
	s := ui.shown
	ui.mu.Unlock()

	if trackKey(s.Track) != trackKey(&t) {
		return ""
	}
	if s.IsPlaying {
		return "➤"
	}
	return PauseIcon
}

func (ui *UI) refreshPlayingRows() {
	ui.mu.Lock()
	rows := ui.rows
	ui.mu.Unlock()

	for i, r := range rows {
		if r.kind != rowTrack {
			continue
		}
		if cell := ui.trackList.GetCell(i+1, 1); cell != nil {
			cell.SetText(ui.playIcon(r.track))
		}
		if cell := ui.trackList.GetCell(i+1, 2); cell != nil {
			cell.SetText(cellText(r.track.Name, titleColumnWidth))
		}
	}
}

// updatePlayingIndicator animates the spinner next to the playing row.
func (ui *UI) updatePlayingIndicator() {
	ui.mu.Lock()
	rows := ui.rows
	key := trackKey(ui.shown.Track)
	ui.mu.Unlock()

	if key == "" {
		return
	}

	indicator := ui.getPlayingIndicator()
	for i, r := range rows {
		if r.kind != rowTrack || trackKey(&r.track) != key {
			continue
		}
		if cell := ui.trackList.GetCell(i+1, 2); cell != nil {
			name := cellText(r.track.Name, titleColumnWidth-runewidth.StringWidth(indicator)-1)
			cell.SetText(name + " " + indicator)
		}
	}
}

func (ui *UI) activateRow(r listRow) {
	switch r.kind {
	case rowTrack:
		ui.playRow(r)
	case rowAlbum:
		album := r.album
		ui.loadListing(sectionBrowse, album.Name, func(ctx context.Context) (listing, error) {
			tracks, err := ui.catalog.GetAlbumTracks(ctx, album.ID)
			return trackListing(album.Name, tracks), err
		})
	case rowGenre:
		genre := r.genre
		ui.loadListing(sectionBrowse, genre.Name, func(ctx context.Context) (listing, error) {
			tracks, err := ui.catalog.GetGenreTracks(ctx, genre)
			return trackListing(genre.Name, tracks), err
		})
	}
}

func (ui *UI) playRow(r listRow) {
	t := r.track
	log.Info().Msgf("Starting playback for track: %s", t.DisplayTitle())
	ui.controller.PlayTrack(t.ID, !t.Local, player.WithHint(t))
}

func (ui *UI) runSearch(query string) {
	ui.loadListing(sectionSearch, fmt.Sprintf("Search: %s", query), func(ctx context.Context) (listing, error) {
		tracks, err := ui.catalog.Search(ctx, query)
		return trackListing(fmt.Sprintf("Search: %s", query), tracks), err
	})
}

func (ui *UI) toggleFavorite() {
	r, ok := ui.selectedRow()
	if !ok || r.kind != rowTrack || r.track.Local {
		return
	}

	ui.config.ToggleFavorite(r.track.ID)

	row, _ := ui.trackList.GetSelection()
	if favCell := ui.trackList.GetCell(row, 0); favCell != nil {
		if ui.config.IsFavorite(r.track.ID) {
			favCell.SetText("★")
		} else {
			favCell.SetText("")
		}
	}

	go func() {
		if err := ui.config.Save(); err != nil {
			log.Error().Err(err).Msg("Failed to save config")
		}
	}()

	log.Debug().Msgf("Toggled favorite for track: %s", r.track.DisplayTitle())
}

func (ui *UI) copyTrackLink() {
	ui.mu.Lock()
	t := ui.shown.Track
	ui.mu.Unlock()

	if t == nil {
		if r, ok := ui.selectedRow(); ok && r.kind == rowTrack {
			t = &r.track
		}
	}
	if t == nil {
		return
	}

	link := trackLink(*t)
	if link == "" {
		return
	}
	if err := copyToClipboard(link); err != nil {
		log.Warn().Err(err).Msg("Failed to copy track link")
		ui.showInfoModal("Clipboard", "Could not copy the link:\n"+link)
		return
	}
	log.Debug().Str("link", link).Msg("Copied track link")
}

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/glebovdev/spotplay-cli/internal/history"
	"github.com/glebovdev/spotplay-cli/internal/track"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/samber/lo"
)

const historyTimeFormat = "2006-01-02 15:04"

// printHistory writes the listening history as a table, most recent first.
func printHistory(w io.Writer, entries []history.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No listening history yet.")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "Played", "Track", "Artist", "Album"})

	for i, e := range entries {
		artists := lo.Map(e.Artists, func(a track.Artist, _ int) string { return a.Name })
		album := ""
		if e.Album != nil {
			album = e.Album.Name
		}
		t.AppendRow(table.Row{i + 1, e.Time().Format(historyTimeFormat), e.Name, strings.Join(artists, ", "), album})
	}

	t.AppendFooter(table.Row{"", "", fmt.Sprintf("%d tracks", len(entries))})
	t.Render()
}

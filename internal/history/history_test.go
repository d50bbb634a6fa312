package history

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebovdev/spotplay-cli/internal/track"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), Key+".json")
	return NewStore(path), path
}

func remoteTrack(id, name string, artists ...string) track.Track {
	tr := track.Track{ID: id, Name: name, Index: -1}
	for _, a := range artists {
		tr.Artists = append(tr.Artists, track.Artist{ID: "id-" + a, Name: a})
	}
	return tr
}

func TestRecordReinsertsAtFront(t *testing.T) {
	s, _ := newTestStore(t)

	s.Record(remoteTrack("a", "A", "X"))
	s.Record(remoteTrack("b", "B", "Y"))
	s.Record(remoteTrack("a", "A", "X"))

	entries := s.Entries()
	if len(entries) != 2 {
		t.Fatalf("Entries() has %d items, want 2", len(entries))
	}
	if entries[0].ID != "a" || entries[1].ID != "b" {
		t.Errorf("Entries() order = [%s %s], want [a b]", entries[0].ID, entries[1].ID)
	}
}

func TestRecordCapsHistory(t *testing.T) {
	s, _ := newTestStore(t)

	for i := 0; i < MaxEntries+5; i++ {
		s.Record(remoteTrack(fmt.Sprintf("t%d", i), "T", "X"))
	}

	entries := s.Entries()
	if len(entries) != MaxEntries {
		t.Fatalf("Entries() has %d items, want %d", len(entries), MaxEntries)
	}
	if entries[0].ID != fmt.Sprintf("t%d", MaxEntries+4) {
		t.Errorf("Entries()[0].ID = %q, want newest", entries[0].ID)
	}
	if entries[MaxEntries-1].ID != "t5" {
		t.Errorf("oldest kept entry = %q, want t5", entries[MaxEntries-1].ID)
	}
}

func TestRecordIgnoresEmptyID(t *testing.T) {
	s, _ := newTestStore(t)
	s.Record(track.Track{Name: "no id"})
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
}

func TestRecordUnknownArtist(t *testing.T) {
	s, _ := newTestStore(t)
	s.Record(track.Track{ID: "x", Name: "Mystery"})

	e, ok := s.Latest()
	if !ok {
		t.Fatal("Latest() returned no entry")
	}
	if len(e.Artists) != 1 || e.Artists[0].Name != "Unknown" {
		t.Errorf("Artists = %+v, want single Unknown artist", e.Artists)
	}
}

func TestRecordCopiesAlbum(t *testing.T) {
	s, _ := newTestStore(t)
	tr := remoteTrack("a", "A", "X")
	tr.Album = &track.Album{ID: "al", Name: "Album", Images: []track.Image{{URL: "http://img"}}}
	s.Record(tr)

	tr.Album.Images[0].URL = "changed"

	e, _ := s.Latest()
	if e.Album == nil || e.Album.Images[0].URL != "http://img" {
		t.Errorf("stored album shares memory with the recorded track: %+v", e.Album)
	}
}

func TestPersistence(t *testing.T) {
	s, path := newTestStore(t)
	s.Record(remoteTrack("a", "A", "X"))
	s.Record(remoteTrack("b", "B", "Y"))

	reopened := NewStore(path)
	entries := reopened.Entries()
	if len(entries) != 2 || entries[0].ID != "b" {
		t.Fatalf("reopened Entries() = %+v", entries)
	}
	if entries[0].Timestamp == 0 {
		t.Error("Timestamp was not persisted")
	}
}

func TestCorruptedFileYieldsEmptyHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), Key+".json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	s := NewStore(path)
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0 for corrupted file", s.Len())
	}

	s.Record(remoteTrack("a", "A", "X"))
	if NewStore(path).Len() != 1 {
		t.Error("Record() should overwrite a corrupted file")
	}
}

func TestTopArtistsWeights(t *testing.T) {
	s, _ := newTestStore(t)
	// Recorded oldest first, so the final order is c, b, a.
	s.Record(remoteTrack("a", "A", "X"))
	s.Record(remoteTrack("b", "B", "Y"))
	s.Record(remoteTrack("c", "C", "X", "Z"))

	top := s.TopArtists(5)
	if len(top) != 3 {
		t.Fatalf("TopArtists() returned %d artists, want 3", len(top))
	}

	// X: index 0 (1.0) + index 2 (1 - 2/3*0.8); Z: 1.0; Y: 1 - 1/3*0.8.
	wantX := 1.0 + (1 - 2.0/3.0*0.8)
	if top[0].Name != "X" || math.Abs(top[0].Score-wantX) > 1e-9 {
		t.Errorf("top[0] = %+v, want X with score %v", top[0], wantX)
	}
	if top[0].ID != "id-X" {
		t.Errorf("top[0].ID = %q, want id-X", top[0].ID)
	}
	if top[1].Name != "Z" || math.Abs(top[1].Score-1.0) > 1e-9 {
		t.Errorf("top[1] = %+v, want Z with score 1", top[1])
	}
	if top[2].Name != "Y" {
		t.Errorf("top[2] = %+v, want Y", top[2])
	}
}

func TestTopArtistsLimit(t *testing.T) {
	s, _ := newTestStore(t)
	for i := 0; i < 5; i++ {
		s.Record(remoteTrack(fmt.Sprintf("t%d", i), "T", fmt.Sprintf("artist%d", i)))
	}

	if got := len(s.TopArtists(3)); got != 3 {
		t.Errorf("len(TopArtists(3)) = %d, want 3", got)
	}

	empty, _ := newTestStore(t)
	if got := empty.TopArtists(3); len(got) != 0 {
		t.Errorf("TopArtists() on empty history = %+v, want none", got)
	}
}

func TestClear(t *testing.T) {
	s, path := newTestStore(t)
	s.Record(remoteTrack("a", "A", "X"))

	notified := 0
	s.Subscribe(func() { notified++ })

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}

	if s.Len() != 0 {
		t.Errorf("Len() after Clear() = %d, want 0", s.Len())
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Clear() should remove the history file")
	}
	if notified != 1 {
		t.Errorf("subscribers notified %d times, want 1", notified)
	}

	if err := s.Clear(); err != nil {
		t.Errorf("Clear() on empty history error = %v", err)
	}
}

func TestSubscribeAndCancel(t *testing.T) {
	s, _ := newTestStore(t)

	count := 0
	cancel := s.Subscribe(func() { count++ })

	s.Record(remoteTrack("a", "A", "X"))
	if count != 1 {
		t.Errorf("count = %d after first record, want 1", count)
	}

	cancel()
	s.Record(remoteTrack("b", "B", "Y"))
	if count != 1 {
		t.Errorf("count = %d after cancel, want 1", count)
	}
}

func TestWatchPicksUpExternalWrites(t *testing.T) {
	s, path := newTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.Watch(ctx); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	changed := make(chan struct{}, 8)
	s.Subscribe(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})

	other := NewStore(path)
	other.Record(remoteTrack("ext", "External", "Other"))

	select {
	case <-changed:
	case <-time.After(3 * time.Second):
		t.Fatal("Watch() did not notify about the external write")
	}

	e, ok := s.Latest()
	if !ok || e.ID != "ext" {
		t.Errorf("Latest() = %+v, want entry ext", e)
	}
}

func TestReloadIgnoresOwnWrites(t *testing.T) {
	s, _ := newTestStore(t)
	s.Record(remoteTrack("a", "A", "X"))

	count := 0
	s.Subscribe(func() { count++ })

	s.reload()
	if count != 0 {
		t.Errorf("reload() of unchanged file notified %d times, want 0", count)
	}
}

package player

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"
	"time"
)

// fakeMPV answers IPC commands on the server side of a pipe.
type fakeMPV struct {
	conn net.Conn

	writeMu sync.Mutex
	mu      sync.Mutex
	seen    [][]any
}

func newFakeMPV(t *testing.T, streams StreamResolver) (*MPVEmbed, *fakeMPV) {
	t.Helper()
	client, server := net.Pipe()
	f := &fakeMPV{conn: server}
	go f.serve()

	m := newMPVEmbed(client, streams)
	t.Cleanup(func() {
		m.Close()
		server.Close()
	})
	return m, f
}

func (f *fakeMPV) serve() {
	scanner := bufio.NewScanner(f.conn)
	for scanner.Scan() {
		var req mpvRequest
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			continue
		}
		f.mu.Lock()
		f.seen = append(f.seen, req.Command)
		f.mu.Unlock()

		resp := map[string]any{"request_id": req.RequestID, "error": "success"}
		switch req.Command[0] {
		case "get_property":
			switch req.Command[1] {
			case "time-pos":
				resp["data"] = 12.5
			case "duration":
				resp["data"] = 245.0
			default:
				resp["error"] = "property unavailable"
			}
		case "seek":
			if req.Command[1].(float64) < 0 {
				resp["error"] = "invalid parameter"
			}
		}
		f.send(resp)
	}
}

func (f *fakeMPV) send(msg map[string]any) {
	data, _ := json.Marshal(msg)
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	f.conn.Write(append(data, '\n'))
}

func (f *fakeMPV) commands() [][]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]any(nil), f.seen...)
}

type staticStreams struct {
	url string
	err error
}

func (s staticStreams) StreamURL(ctx context.Context, videoID string) (string, error) {
	return s.url, s.err
}

func TestMPVLoadByIDUsesWatchURL(t *testing.T) {
	m, f := newFakeMPV(t, nil)

	if err := m.LoadByID(context.Background(), "abc123"); err != nil {
		t.Fatalf("LoadByID() error = %v", err)
	}

	cmds := f.commands()
	if len(cmds) != 2 {
		t.Fatalf("Expected 2 commands, got %v", cmds)
	}
	if cmds[0][0] != "set_property" || cmds[0][1] != "pause" || cmds[0][2] != true {
		t.Errorf("Expected load to pause first, got %v", cmds[0])
	}
	if cmds[1][0] != "loadfile" || cmds[1][1] != "https://www.youtube.com/watch?v=abc123" {
		t.Errorf("Unexpected loadfile command %v", cmds[1])
	}
}

func TestMPVLoadByIDResolvesStreams(t *testing.T) {
	m, f := newFakeMPV(t, staticStreams{url: "https://cdn.example/audio"})

	if err := m.LoadByID(context.Background(), "abc123"); err != nil {
		t.Fatal(err)
	}
	cmds := f.commands()
	if cmds[len(cmds)-1][1] != "https://cdn.example/audio" {
		t.Errorf("Expected resolved stream URL, got %v", cmds[len(cmds)-1])
	}
}

func TestMPVLoadByIDFallsBackWhenResolutionFails(t *testing.T) {
	m, f := newFakeMPV(t, staticStreams{err: errors.New("login required")})

	if err := m.LoadByID(context.Background(), "abc123"); err != nil {
		t.Fatal(err)
	}
	cmds := f.commands()
	if cmds[len(cmds)-1][1] != "https://www.youtube.com/watch?v=abc123" {
		t.Errorf("Expected watch URL, got %v", cmds[len(cmds)-1])
	}
}

func TestMPVProperties(t *testing.T) {
	m, _ := newFakeMPV(t, nil)

	cur, err := m.CurrentTime()
	if err != nil || cur != 12500*time.Millisecond {
		t.Errorf("CurrentTime() = %v, %v", cur, err)
	}
	dur, err := m.Duration()
	if err != nil || dur != 245*time.Second {
		t.Errorf("Duration() = %v, %v", dur, err)
	}
}

func TestMPVCommandErrors(t *testing.T) {
	m, _ := newFakeMPV(t, nil)

	if err := m.SeekTo(-time.Second); err == nil {
		t.Error("Expected error reply to surface")
	}
	if err := m.SeekTo(30 * time.Second); err != nil {
		t.Errorf("SeekTo() error = %v", err)
	}
}

func TestMPVStateEvents(t *testing.T) {
	m, f := newFakeMPV(t, nil)

	states := make(chan EmbedState, 8)
	m.OnStateChange(func(s EmbedState) { states <- s })

	// Pause changes while idle are not reported.
	f.send(map[string]any{"event": "property-change", "id": mpvPauseObserverID, "name": "pause", "data": false})
	f.send(map[string]any{"event": "file-loaded"})
	f.send(map[string]any{"event": "property-change", "id": mpvPauseObserverID, "name": "pause", "data": true})
	f.send(map[string]any{"event": "end-file", "reason": "eof"})

	want := []EmbedState{EmbedPlaying, EmbedPaused, EmbedEnded}
	for _, w := range want {
		select {
		case got := <-states:
			if got != w {
				t.Errorf("State = %s, want %s", got, w)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("Timed out waiting for %s", w)
		}
	}
}

func TestMPVClosedConnection(t *testing.T) {
	m, f := newFakeMPV(t, nil)
	f.conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if err := m.Play(); errors.Is(err, errMPVClosed) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Expected commands to fail after the connection closed")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestMPVStateCallbackMayQueryWhileEventsFlood(t *testing.T) {
	m, f := newFakeMPV(t, nil)

	ended := make(chan time.Duration, 1)
	m.OnStateChange(func(s EmbedState) {
		dur, err := m.Duration()
		if err != nil {
			t.Errorf("Duration() from callback error = %v", err)
			return
		}
		if s == EmbedEnded {
			ended <- dur
		}
	})

	go func() {
		f.send(map[string]any{"event": "file-loaded"})
		for i := 0; i < 40; i++ {
			f.send(map[string]any{"event": "property-change", "id": mpvPauseObserverID, "name": "pause", "data": i%2 == 0})
		}
		f.send(map[string]any{"event": "end-file", "reason": "eof"})
	}()

	select {
	case dur := <-ended:
		if dur != 245*time.Second {
			t.Errorf("Duration at end = %v, want 4m5s", dur)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for the ended state")
	}
}

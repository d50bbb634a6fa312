package player

import (
	"context"
	"sync"
	"time"
)

// EventType is a notification emitted by a backend.
type EventType int

const (
	EventTimeUpdate EventType = iota
	EventPlaying
	EventPaused
	EventEnded
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventTimeUpdate:
		return "timeupdate"
	case EventPlaying:
		return "playing"
	case EventPaused:
		return "paused"
	case EventEnded:
		return "ended"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event carries the backend's position at the time it was emitted.
type Event struct {
	Type     EventType
	Current  time.Duration
	Duration time.Duration
	Err      error
}

// Listener receives backend events. It may be called from any goroutine and
// must not block.
type Listener func(Event)

// Backend is a media source the controller can make authoritative.
// Implementations are safe for concurrent use.
type Backend interface {
	Kind() BackendKind
	// Attach loads source, replacing whatever was loaded. It must not start
	// playback. The load is abandoned if ctx is done before it completes.
	Attach(ctx context.Context, source string) error
	Play() error
	Pause() error
	SeekTo(position time.Duration) error
	CurrentTime() time.Duration
	// Duration returns 0 while unknown.
	Duration() time.Duration
	Subscribe(l Listener) (unsubscribe func())
	// Detach stops playback and releases the loaded source.
	Detach()
	SetVolume(percent int)
}

// listeners is a small registry shared by the backend implementations.
type listeners struct {
	mu   sync.Mutex
	next int
	m    map[int]Listener
}

func (ls *listeners) add(l Listener) func() {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.m == nil {
		ls.m = make(map[int]Listener)
	}
	id := ls.next
	ls.next++
	ls.m[id] = l

	var once sync.Once
	return func() {
		once.Do(func() {
			ls.mu.Lock()
			delete(ls.m, id)
			ls.mu.Unlock()
		})
	}
}

func (ls *listeners) emit(e Event) {
	ls.mu.Lock()
	snapshot := make([]Listener, 0, len(ls.m))
	for _, l := range ls.m {
		snapshot = append(snapshot, l)
	}
	ls.mu.Unlock()

	for _, l := range snapshot {
		l(e)
	}
}

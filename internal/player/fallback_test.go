package player

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeEmbed struct {
	mu      sync.Mutex
	calls   []string
	onState func(EmbedState)
	current time.Duration
	total   time.Duration
	closed  bool
}

func (e *fakeEmbed) record(call string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, call)
}

func (e *fakeEmbed) callLog() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

func (e *fakeEmbed) LoadByID(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.record("load:" + id)
	return nil
}

func (e *fakeEmbed) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *fakeEmbed) Play() error                  { e.record("play"); return nil }
func (e *fakeEmbed) Pause() error                 { e.record("pause"); return nil }
func (e *fakeEmbed) Stop() error                  { e.record("stop"); return nil }
func (e *fakeEmbed) SeekTo(p time.Duration) error { e.record(fmt.Sprintf("seek:%v", p)); return nil }
func (e *fakeEmbed) SetVolume(percent int) error {
	e.record(fmt.Sprintf("volume:%d", percent))
	return nil
}
func (e *fakeEmbed) CurrentTime() (time.Duration, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current, nil
}

func (e *fakeEmbed) Duration() (time.Duration, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.total, nil
}

func (e *fakeEmbed) OnStateChange(fn func(EmbedState)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onState = fn
}

func (e *fakeEmbed) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func (e *fakeEmbed) fire(s EmbedState) {
	e.mu.Lock()
	fn := e.onState
	e.mu.Unlock()
	fn(s)
}

func waitReady(t *testing.T, b *FallbackBackend) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for b.readyEmbed() == nil {
		if time.Now().After(deadline) {
			t.Fatal("Timed out waiting for the embed")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestFallbackQueuesCallsUntilReady(t *testing.T) {
	embed := &fakeEmbed{}
	release := make(chan struct{})
	var created atomic.Int32

	b := NewFallbackBackend(func(ctx context.Context) (Embed, error) {
		created.Add(1)
		<-release
		return embed, nil
	})

	if err := b.Play(); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	if err := b.SeekTo(5 * time.Second); err != nil {
		t.Fatalf("SeekTo() error = %v", err)
	}
	if len(embed.callLog()) != 0 {
		t.Fatal("No call should reach the embed before it is ready")
	}

	close(release)
	waitReady(t, b)

	want := []string{"volume:70", "play", "seek:5s"}
	if got := embed.callLog(); !reflect.DeepEqual(got, want) {
		t.Errorf("Replayed calls = %v, want %v", got, want)
	}

	if err := b.Pause(); err != nil {
		t.Fatal(err)
	}
	want = append(want, "pause")
	if got := embed.callLog(); !reflect.DeepEqual(got, want) {
		t.Errorf("Calls after ready = %v, want %v", got, want)
	}
	if created.Load() != 1 {
		t.Errorf("Factory called %d times, want 1", created.Load())
	}
}

func TestFallbackAttachWaitsForEmbed(t *testing.T) {
	embed := &fakeEmbed{}
	release := make(chan struct{})
	b := NewFallbackBackend(func(ctx context.Context) (Embed, error) {
		<-release
		return embed, nil
	})

	done := make(chan error, 1)
	go func() { done <- b.Attach(context.Background(), "vid1") }()

	select {
	case err := <-done:
		t.Fatalf("Attach() returned %v before the embed was ready", err)
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Attach() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for Attach")
	}

	want := []string{"volume:70", "load:vid1"}
	if got := embed.callLog(); !reflect.DeepEqual(got, want) {
		t.Errorf("Calls = %v, want %v", got, want)
	}
}

func TestFallbackAttachCancelledWhileStarting(t *testing.T) {
	embed := &fakeEmbed{}
	release := make(chan struct{})
	b := NewFallbackBackend(func(ctx context.Context) (Embed, error) {
		<-release
		return embed, nil
	})

	var log eventLog
	b.Subscribe(log.listen)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Attach(ctx, "stale") }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Attach() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Cancelled Attach did not return")
	}

	close(release)
	waitReady(t, b)

	if err := b.Attach(context.Background(), "fresh"); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	want := []string{"volume:70", "load:fresh"}
	if got := embed.callLog(); !reflect.DeepEqual(got, want) {
		t.Errorf("Calls = %v, want %v", got, want)
	}
	if log.count(EventError) != 0 {
		t.Errorf("A cancelled Attach must not emit errors: %+v", log.events)
	}
}

func TestFallbackInitFailure(t *testing.T) {
	b := NewFallbackBackend(func(ctx context.Context) (Embed, error) {
		return nil, errors.New("mpv not installed")
	})

	errs := make(chan error, 1)
	b.Subscribe(func(e Event) {
		if e.Type == EventError {
			errs <- e.Err
		}
	})

	if err := b.Attach(context.Background(), "vid1"); !errors.Is(err, ErrEmbedUnavailable) {
		t.Fatalf("Attach() error = %v, want ErrEmbedUnavailable", err)
	}

	select {
	case err := <-errs:
		if !errors.Is(err, ErrEmbedUnavailable) {
			t.Errorf("Expected ErrEmbedUnavailable, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for init failure")
	}

	if err := b.Play(); !errors.Is(err, ErrEmbedUnavailable) {
		t.Errorf("Play() after failed init error = %v", err)
	}
}

func TestFallbackCloseWhileStarting(t *testing.T) {
	embed := &fakeEmbed{}
	release := make(chan struct{})
	b := NewFallbackBackend(func(ctx context.Context) (Embed, error) {
		<-release
		return embed, nil
	})

	done := make(chan error, 1)
	go func() { done <- b.Attach(context.Background(), "vid1") }()
	time.Sleep(10 * time.Millisecond)

	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	close(release)

	select {
	case err := <-done:
		if !errors.Is(err, ErrEmbedUnavailable) {
			t.Errorf("Attach() after Close error = %v, want ErrEmbedUnavailable", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Attach did not return after Close")
	}

	if !embed.isClosed() {
		t.Error("An embed that finished starting after Close must be closed")
	}
	for _, call := range embed.callLog() {
		if call == "load:vid1" {
			t.Error("No video should load after Close")
		}
	}
}

func TestFallbackNotStartedByPauseOrDetach(t *testing.T) {
	var created atomic.Int32
	b := NewFallbackBackend(func(ctx context.Context) (Embed, error) {
		created.Add(1)
		return &fakeEmbed{}, nil
	})

	if err := b.Pause(); err != nil {
		t.Fatal(err)
	}
	b.Detach()
	b.SetVolume(10)

	time.Sleep(10 * time.Millisecond)
	if created.Load() != 0 {
		t.Error("Pause and Detach must not start the embed")
	}
	if b.CurrentTime() != 0 || b.Duration() != 0 {
		t.Error("Expected zero times before the embed exists")
	}
}

func TestFallbackStateEvents(t *testing.T) {
	embed := &fakeEmbed{total: 3 * time.Minute}
	b := NewFallbackBackend(func(ctx context.Context) (Embed, error) { return embed, nil })

	var log eventLog
	b.Subscribe(log.listen)

	if err := b.Play(); err != nil {
		t.Fatal(err)
	}
	waitReady(t, b)

	embed.fire(EmbedPlaying)
	embed.fire(EmbedBuffering)
	embed.fire(EmbedPaused)
	embed.fire(EmbedEnded)

	if log.count(EventPlaying) != 1 || log.count(EventPaused) != 1 || log.count(EventEnded) != 1 {
		t.Errorf("Unexpected events: %+v", log.events)
	}

	log.mu.Lock()
	last := log.events[len(log.events)-1]
	log.mu.Unlock()
	if last.Duration != 3*time.Minute {
		t.Errorf("Ended event duration = %v, want 3m", last.Duration)
	}
	if b.Duration() != 3*time.Minute {
		t.Errorf("Duration() = %v", b.Duration())
	}
}

func TestFallbackVolumeAndClose(t *testing.T) {
	embed := &fakeEmbed{}
	b := NewFallbackBackend(func(ctx context.Context) (Embed, error) { return embed, nil })

	b.SetVolume(25)
	if err := b.Play(); err != nil {
		t.Fatal(err)
	}
	waitReady(t, b)

	b.SetVolume(40)
	got := embed.callLog()
	if got[0] != "volume:25" || got[len(got)-1] != "volume:40" {
		t.Errorf("Unexpected volume calls: %v", got)
	}

	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	if !embed.closed {
		t.Error("Expected embed to be closed")
	}
}

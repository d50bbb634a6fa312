package player

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/glebovdev/spotplay-cli/internal/api"
	"github.com/google/uuid"
	"github.com/kkdai/youtube/v2"
	"github.com/rs/zerolog/log"
)

const (
	DefaultMPVPath      = "mpv"
	mpvDialInterval     = 50 * time.Millisecond
	mpvCommandTimeout   = 5 * time.Second
	mpvShutdownTimeout  = 2 * time.Second
	mpvPauseObserverID  = 1
	mpvMaxMessageSize   = 1 << 20
	streamLookupTimeout = 15 * time.Second
)

var errMPVClosed = errors.New("mpv connection closed")

// StreamResolver turns a video ID into a direct audio stream URL.
type StreamResolver interface {
	StreamURL(ctx context.Context, videoID string) (string, error)
}

type youtubeStreams struct {
	client *youtube.Client
}

// NewYouTubeStreams resolves audio streams with the YouTube player API.
func NewYouTubeStreams() StreamResolver {
	return &youtubeStreams{
		client: &youtube.Client{
			HTTPClient: &http.Client{Timeout: streamLookupTimeout},
		},
	}
}

func (y *youtubeStreams) StreamURL(ctx context.Context, videoID string) (string, error) {
	video, err := y.client.GetVideoContext(ctx, videoID)
	if err != nil {
		return "", fmt.Errorf("failed to get video %s: %w", videoID, err)
	}

	formats := video.Formats.Type("audio")
	if len(formats) == 0 {
		return "", fmt.Errorf("no audio format found for video %s", videoID)
	}

	url, err := y.client.GetStreamURLContext(ctx, video, &formats[0])
	if err != nil {
		return "", fmt.Errorf("failed to get stream url: %w", err)
	}
	return url, nil
}

// MPVOptions configure the mpv host player.
type MPVOptions struct {
	Path string
	// Streams, when set, resolves direct audio URLs before loading. Otherwise
	// mpv receives the watch URL and resolves it itself.
	Streams StreamResolver
}

// NewMPVFactory returns an EmbedFactory that starts an mpv process.
func NewMPVFactory(opts MPVOptions) EmbedFactory {
	return func(ctx context.Context) (Embed, error) {
		return StartMPV(ctx, opts)
	}
}

type mpvResponse struct {
	RequestID int64           `json:"request_id"`
	Error     string          `json:"error"`
	Data      json.RawMessage `json:"data"`
	Event     string          `json:"event"`
	Name      string          `json:"name"`
	ID        int64           `json:"id"`
	Reason    string          `json:"reason"`
}

type mpvRequest struct {
	Command   []any `json:"command"`
	RequestID int64 `json:"request_id"`
}

// MPVEmbed drives an idle mpv process over its JSON IPC socket.
type MPVEmbed struct {
	conn    net.Conn
	cmd     *exec.Cmd
	socket  string
	streams StreamResolver

	writeMu sync.Mutex
	nextID  atomic.Int64

	mu      sync.Mutex
	waiting map[int64]chan mpvResponse
	onState func(EmbedState)
	loaded  bool
	paused  bool
	states  []EmbedState // Unbounded so readLoop never waits on a callback.
	wake    chan struct{}
	closed  chan struct{}
	once    sync.Once
}

// StartMPV launches mpv in idle mode and connects to its IPC socket.
func StartMPV(ctx context.Context, opts MPVOptions) (*MPVEmbed, error) {
	path := opts.Path
	if path == "" {
		path = DefaultMPVPath
	}
	bin, err := exec.LookPath(path)
	if err != nil {
		return nil, fmt.Errorf("failed to find mpv: %w", err)
	}

	socket := filepath.Join(os.TempDir(), "spotplay-mpv-"+uuid.NewString()+".sock")
	cmd := exec.Command(bin,
		"--idle=yes",
		"--no-video",
		"--no-terminal",
		"--pause",
		"--ytdl-format=bestaudio/best",
		"--input-ipc-server="+socket,
	)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start mpv: %w", err)
	}
	log.Debug().Msgf("Started mpv (pid %d), socket %s", cmd.Process.Pid, socket)

	conn, err := dialMPV(ctx, socket)
	if err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		_ = os.Remove(socket)
		return nil, err
	}

	m := newMPVEmbed(conn, opts.Streams)
	m.cmd = cmd
	m.socket = socket

	if _, err := m.command(ctx, "observe_property", mpvPauseObserverID, "pause"); err != nil {
		m.Close()
		return nil, fmt.Errorf("failed to observe mpv pause state: %w", err)
	}
	return m, nil
}

func dialMPV(ctx context.Context, socket string) (net.Conn, error) {
	ticker := time.NewTicker(mpvDialInterval)
	defer ticker.Stop()

	var d net.Dialer
	for {
		conn, err := d.DialContext(ctx, "unix", socket)
		if err == nil {
			return conn, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("failed to connect to mpv: %w", err)
		case <-ticker.C:
		}
	}
}

func newMPVEmbed(conn net.Conn, streams StreamResolver) *MPVEmbed {
	m := &MPVEmbed{
		conn:    conn,
		streams: streams,
		waiting: make(map[int64]chan mpvResponse),
		paused:  true,
		wake:    make(chan struct{}, 1),
		closed:  make(chan struct{}),
	}
	go m.readLoop()
	go m.dispatchStates()
	return m
}

func (m *MPVEmbed) readLoop() {
	defer m.shutdown()

	scanner := bufio.NewScanner(m.conn)
	scanner.Buffer(make([]byte, 0, 64*1024), mpvMaxMessageSize)

	for scanner.Scan() {
		var msg mpvResponse
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			log.Debug().Err(err).Msg("Ignoring malformed mpv message")
			continue
		}

		if msg.Event != "" {
			m.handleEvent(msg)
			continue
		}

		m.mu.Lock()
		ch, ok := m.waiting[msg.RequestID]
		delete(m.waiting, msg.RequestID)
		m.mu.Unlock()
		if ok {
			ch <- msg
		}
	}

	if err := scanner.Err(); err != nil {
		log.Debug().Err(err).Msg("mpv connection read failed")
	}
}

func (m *MPVEmbed) handleEvent(msg mpvResponse) {
	switch msg.Event {
	case "file-loaded":
		m.mu.Lock()
		m.loaded = true
		paused := m.paused
		m.mu.Unlock()
		if !paused {
			m.pushState(EmbedPlaying)
		}
	case "end-file":
		m.mu.Lock()
		m.loaded = false
		m.mu.Unlock()
		if msg.Reason == "eof" {
			m.pushState(EmbedEnded)
		}
	case "seek":
		m.pushState(EmbedBuffering)
	case "property-change":
		if msg.ID != mpvPauseObserverID {
			return
		}
		var paused bool
		if err := json.Unmarshal(msg.Data, &paused); err != nil {
			return
		}

		m.mu.Lock()
		changed := paused != m.paused
		m.paused = paused
		loaded := m.loaded
		m.mu.Unlock()

		if !changed || !loaded {
			return
		}
		if paused {
			m.pushState(EmbedPaused)
		} else {
			m.pushState(EmbedPlaying)
		}
	}
}

func (m *MPVEmbed) pushState(s EmbedState) {
	m.mu.Lock()
	m.states = append(m.states, s)
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// dispatchStates delivers queued states in order. Callbacks may issue
// commands, whose replies readLoop keeps reading meanwhile.
func (m *MPVEmbed) dispatchStates() {
	for {
		select {
		case <-m.wake:
		case <-m.closed:
			return
		}

		m.mu.Lock()
		batch := m.states
		m.states = nil
		fn := m.onState
		m.mu.Unlock()

		if fn == nil {
			continue
		}
		for _, s := range batch {
			fn(s)
		}
	}
}

// command sends one IPC command and waits for its reply.
func (m *MPVEmbed) command(ctx context.Context, args ...any) (json.RawMessage, error) {
	id := m.nextID.Add(1)
	ch := make(chan mpvResponse, 1)

	m.mu.Lock()
	select {
	case <-m.closed:
		m.mu.Unlock()
		return nil, errMPVClosed
	default:
	}
	m.waiting[id] = ch
	m.mu.Unlock()

	payload, err := json.Marshal(mpvRequest{Command: args, RequestID: id})
	if err != nil {
		m.forget(id)
		return nil, fmt.Errorf("failed to encode mpv command: %w", err)
	}

	m.writeMu.Lock()
	_, err = m.conn.Write(append(payload, '\n'))
	m.writeMu.Unlock()
	if err != nil {
		m.forget(id)
		return nil, fmt.Errorf("failed to send mpv command: %w", err)
	}

	timer := time.NewTimer(mpvCommandTimeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		if resp.Error != "" && resp.Error != "success" {
			return nil, fmt.Errorf("mpv %v: %s", args[0], resp.Error)
		}
		return resp.Data, nil
	case <-ctx.Done():
		m.forget(id)
		return nil, ctx.Err()
	case <-timer.C:
		m.forget(id)
		return nil, fmt.Errorf("mpv %v: timed out", args[0])
	case <-m.closed:
		return nil, errMPVClosed
	}
}

func (m *MPVEmbed) forget(id int64) {
	m.mu.Lock()
	delete(m.waiting, id)
	m.mu.Unlock()
}

func (m *MPVEmbed) setProperty(name string, value any) error {
	_, err := m.command(context.Background(), "set_property", name, value)
	return err
}

func (m *MPVEmbed) floatProperty(name string) (time.Duration, error) {
	data, err := m.command(context.Background(), "get_property", name)
	if err != nil {
		return 0, err
	}
	var seconds float64
	if err := json.Unmarshal(data, &seconds); err != nil {
		return 0, fmt.Errorf("failed to parse mpv %s: %w", name, err)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

// LoadByID loads the video paused. Play starts it.
func (m *MPVEmbed) LoadByID(ctx context.Context, videoID string) error {
	source := api.WatchURL(videoID)
	if m.streams != nil {
		if url, err := m.streams.StreamURL(ctx, videoID); err == nil {
			source = url
		} else {
			log.Warn().Err(err).Msg("Stream resolution failed, letting mpv resolve the watch URL")
		}
	}

	if err := m.setProperty("pause", true); err != nil {
		return err
	}
	if _, err := m.command(ctx, "loadfile", source, "replace"); err != nil {
		return fmt.Errorf("failed to load video %s: %w", videoID, err)
	}
	log.Debug().Msgf("mpv loading video %s", videoID)
	return nil
}

func (m *MPVEmbed) Play() error  { return m.setProperty("pause", false) }
func (m *MPVEmbed) Pause() error { return m.setProperty("pause", true) }

func (m *MPVEmbed) Stop() error {
	_, err := m.command(context.Background(), "stop")
	return err
}

func (m *MPVEmbed) SeekTo(position time.Duration) error {
	_, err := m.command(context.Background(), "seek", position.Seconds(), "absolute")
	return err
}

func (m *MPVEmbed) CurrentTime() (time.Duration, error) { return m.floatProperty("time-pos") }
func (m *MPVEmbed) Duration() (time.Duration, error)    { return m.floatProperty("duration") }

func (m *MPVEmbed) SetVolume(percent int) error {
	return m.setProperty("volume", percent)
}

func (m *MPVEmbed) OnStateChange(fn func(EmbedState)) {
	m.mu.Lock()
	m.onState = fn
	m.mu.Unlock()
}

// Close asks mpv to quit and waits briefly before killing it.
func (m *MPVEmbed) Close() error {
	select {
	case <-m.closed:
	default:
		ctx, cancel := context.WithTimeout(context.Background(), mpvShutdownTimeout)
		_, _ = m.command(ctx, "quit")
		cancel()
	}
	m.shutdown()

	if m.cmd != nil {
		done := make(chan error, 1)
		go func() { done <- m.cmd.Wait() }()
		select {
		case <-done:
		case <-time.After(mpvShutdownTimeout):
			_ = m.cmd.Process.Kill()
			<-done
		}
	}
	if m.socket != "" {
		_ = os.Remove(m.socket)
	}
	return nil
}

func (m *MPVEmbed) shutdown() {
	m.once.Do(func() {
		m.mu.Lock()
		close(m.closed)
		m.mu.Unlock()
		if err := m.conn.Close(); err != nil {
			log.Debug().Err(err).Msg("Failed to close mpv connection")
		}
	})
}

package history

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watch follows changes made to the history file by other processes and
// reloads the store when its content differs from what this store last saw.
// It returns once the watcher is installed; watching stops when ctx is done.
func (s *Store) Watch(ctx context.Context) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	// The file is replaced by rename on every save, so watch the directory.
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return fmt.Errorf("failed to watch history directory: %w", err)
	}

	go func() {
		defer fsw.Close()
		name := filepath.Base(s.path)

		for {
			select {
			case event, ok := <-fsw.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != name {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				s.reload()
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				log.Debug().Err(err).Msg("History watcher error")
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// reload re-reads the file and notifies subscribers if anything changed.
func (s *Store) reload() {
	data, err := os.ReadFile(s.path)
	if err != nil && !os.IsNotExist(err) {
		log.Debug().Err(err).Msg("Failed to re-read listen history")
		return
	}

	s.mu.Lock()
	if bytes.Equal(data, s.lastData) {
		s.mu.Unlock()
		return
	}

	entries, err := decode(data)
	if err != nil {
		s.mu.Unlock()
		log.Debug().Err(err).Msg("Ignoring unreadable listen history update")
		return
	}

	s.entries = entries
	s.lastData = data
	s.mu.Unlock()

	log.Debug().Msgf("Listen history changed on disk, %d entries", len(entries))
	s.broadcast()
}

package player

import (
	"sync"
	"time"
)

// timerSlot holds at most one live timer. Installing a new timer stops the
// previous one.
type timerSlot struct {
	mu    sync.Mutex
	timer *time.Timer
	stop  chan struct{}
	gen   uint64
}

// after runs fn once after d. It returns the generation of the new timer.
func (s *timerSlot) after(d time.Duration, fn func(gen uint64)) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
	s.gen++
	gen := s.gen
	s.timer = time.AfterFunc(d, func() { fn(gen) })
	return gen
}

// every runs fn on each tick of interval until the slot is cleared or replaced.
func (s *timerSlot) every(interval time.Duration, fn func(gen uint64)) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
	s.gen++
	gen := s.gen
	stop := make(chan struct{})
	s.stop = stop

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				fn(gen)
			case <-stop:
				return
			}
		}
	}()
	return gen
}

// current returns the generation of the installed timer, or 0 if none is live.
func (s *timerSlot) current() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer == nil && s.stop == nil {
		return 0
	}
	return s.gen
}

func (s *timerSlot) active() bool {
	return s.current() != 0
}

func (s *timerSlot) clear() {
	s.mu.Lock()
	s.clearLocked()
	s.mu.Unlock()
}

func (s *timerSlot) clearLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
}

package subsystem

import (
	"sync"
	"time"
)

type timerKey struct {
	placeID string
	key     string
}

// TimerScheduler fires wake-ups with time.AfterFunc.
type TimerScheduler struct {
	// fire delivers a fired wake-up.
	fire func(placeID, key string, deadline time.Time)
	// clock is the time source used to compute delays.
	clock func() time.Time

	mu     sync.Mutex
	timers map[timerKey]*time.Timer
}

// NewTimerScheduler creates a scheduler that calls fire for every wake-up.
func NewTimerScheduler(clock func() time.Time, fire func(placeID, key string, deadline time.Time)) *TimerScheduler {
	if clock == nil {
		clock = time.Now
	}

	return &TimerScheduler{
		fire:   fire,
		clock:  clock,
		timers: make(map[timerKey]*time.Timer),
	}
}

// Schedule implements Scheduler. A later call for the same key replaces the
// earlier one.
func (s *TimerScheduler) Schedule(placeID, key string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := timerKey{placeID, key}
	if t, ok := s.timers[k]; ok {
		t.Stop()
	}

	var timer *time.Timer

	timer = time.AfterFunc(max(at.Sub(s.clock()), 0), func() {
		s.mu.Lock()
		current := s.timers[k]

		if current == timer {
			delete(s.timers, k)
		}
		s.mu.Unlock()

		if current == timer {
			s.fire(placeID, key, at)
		}
	})
	s.timers[k] = timer
}

// Cancel implements Scheduler.
func (s *TimerScheduler) Cancel(placeID, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := timerKey{placeID, key}
	if t, ok := s.timers[k]; ok {
		t.Stop()
		delete(s.timers, k)
	}
}

// Pending returns the number of armed wake-ups.
func (s *TimerScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.timers)
}

// Stop cancels every wake-up.
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, t := range s.timers {
		t.Stop()
		delete(s.timers, k)
	}
}

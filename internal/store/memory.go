package store

import (
	"context"
	"sync"
	"time"

	"github.com/casaline/edge/internal/clock"
)

type memEntry struct {
	count     int64
	expiresAt time.Time
}

// Memory is a single-process Counter. Access is serialized under one mutex
// so concurrent increments on the same key cannot under-count.
type Memory struct {
	clk clock.Clock

	mu sync.Mutex
	m  map[string]*memEntry

	cleanup time.Duration
	stopCh  chan struct{}
	stopped sync.Once
}

func NewMemory(clk clock.Clock, cleanupEvery time.Duration) *Memory {
	if cleanupEvery <= 0 {
		cleanupEvery = time.Minute
	}
	ms := &Memory{
		clk:     clk,
		m:       make(map[string]*memEntry),
		cleanup: cleanupEvery,
		stopCh:  make(chan struct{}),
	}
	go ms.gcLoop()
	return ms
}

func (s *Memory) gcLoop() {
	t := time.NewTicker(s.cleanup)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			s.mu.Lock()
			now := s.clk.Now()
			for k, e := range s.m {
				if now.After(e.expiresAt) {
					delete(s.m, k)
				}
			}
			s.mu.Unlock()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Memory) Incr(_ context.Context, key string, ttl time.Duration) (int64, time.Duration, error) {
	now := s.clk.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.m[key]
	prev := time.Duration(-1)
	if e == nil || now.After(e.expiresAt) {
		e = &memEntry{}
		s.m[key] = e
	} else {
		prev = e.expiresAt.Sub(now)
	}
	e.count++
	e.expiresAt = now.Add(ttl)
	return e.count, prev, nil
}

func (s *Memory) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.m, key)
	s.mu.Unlock()
	return nil
}

func (s *Memory) Close() error {
	s.stopped.Do(func() { close(s.stopCh) })
	return nil
}

package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count   int64
	resetAt time.Time
}

// MemoryStore 进程内计数，仅适用于单实例部署
type MemoryStore struct {
	mu       sync.Mutex
	windows  map[string]*window
	nextScan time.Time
}

// NewMemoryStore 创建内存计数存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: make(map[string]*window)}
}

func (s *MemoryStore) Hit(_ context.Context, key string, size time.Duration, now time.Time) (int64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if now.After(s.nextScan) {
		for k, w := range s.windows {
			if !now.Before(w.resetAt) {
				delete(s.windows, k)
			}
		}
		s.nextScan = now.Add(size)
	}

	w, ok := s.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(size)}
		s.windows[key] = w
	}
	w.count++
	return w.count, w.resetAt, nil
}

func (s *MemoryStore) Undo(_ context.Context, key string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w, ok := s.windows[key]; ok && now.Before(w.resetAt) && w.count > 0 {
		w.count--
	}
	return nil
}

// Len 当前跟踪的窗口数
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

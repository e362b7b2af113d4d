package storage

import (
	"context"
	"sync"
	"time"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

// MemoryOTPStore keeps codes in process memory. Entries do not survive a
// restart and are not shared between instances; use RedisOTPStore for that.
type MemoryOTPStore struct {
	mu        sync.Mutex
	entries   map[string]*domain.OTPEntry
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewMemoryOTPStore starts a goroutine that drops expired entries every
// cleanupInterval. Call Close to stop it.
func NewMemoryOTPStore(cleanupInterval time.Duration) *MemoryOTPStore {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	s := &MemoryOTPStore{
		entries:  make(map[string]*domain.OTPEntry),
		stopChan: make(chan struct{}),
	}
	s.wg.Add(1)
	go s.cleanupLoop(cleanupInterval)
	return s
}

var _ port.OTPStore = (*MemoryOTPStore)(nil)

func (s *MemoryOTPStore) Save(_ context.Context, key string, entry domain.OTPEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = &entry
	return nil
}

func (s *MemoryOTPStore) Verify(_ context.Context, key, code string, now time.Time, maxAttempts int) (domain.OTPResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return domain.OTPResult{Outcome: domain.OTPNotFound}, nil
	}
	res, keep := e.Check(code, now, maxAttempts)
	if !keep {
		delete(s.entries, key)
	}
	return res, nil
}

// Len returns the number of stored entries, expired or not.
func (s *MemoryOTPStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (s *MemoryOTPStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
	})
	return nil
}

func (s *MemoryOTPStore) cleanupLoop(interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case now := <-ticker.C:
			s.removeExpired(now)
		}
	}
}

func (s *MemoryOTPStore) removeExpired(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, e := range s.entries {
		if now.After(e.ExpiresAt) {
			delete(s.entries, key)
		}
	}
}

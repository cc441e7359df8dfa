package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process memory. Suitable for single-instance
// deployments; use the Redis store when multiple instances serve the same
// clients.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*Session

	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger

	closeOnce sync.Once
	stopCh    chan struct{}
	done      chan struct{}
}

// NewMemoryStore creates an in-memory store and starts its expiry sweeper.
// Close stops the sweeper.
func NewMemoryStore(ttl, sweepInterval time.Duration, logger *slog.Logger) *MemoryStore {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}

	m := &MemoryStore{
		entries: make(map[string]*Session),
		ttl:     ttl,
		now:     time.Now,
		logger:  logger,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	go m.sweeper(sweepInterval)
	return m
}

// Put inserts or replaces the session. CreatedAt is stamped here when the
// caller left it zero.
func (m *MemoryStore) Put(_ context.Context, s *Session) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = m.now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[s.ID] = s
	return nil
}

// Take atomically removes and returns the session. Expired entries are
// removed and reported as missing.
func (m *MemoryStore) Take(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(m.entries, id)

	if m.now().Sub(s.CreatedAt) > m.ttl {
		return nil, ErrNotFound
	}
	return s, nil
}

// Len reports the number of stored sessions, expired or not.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Close stops the expiry sweeper. Stored sessions are dropped with the
// process.
func (m *MemoryStore) Close() error {
	m.closeOnce.Do(func() {
		close(m.stopCh)
		<-m.done
	})
	return nil
}

func (m *MemoryStore) sweeper(interval time.Duration) {
	defer close(m.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *MemoryStore) sweep() {
	cutoff := m.now().Add(-m.ttl)

	m.mu.Lock()
	var expired int
	for id, s := range m.entries {
		if s.CreatedAt.Before(cutoff) {
			delete(m.entries, id)
			expired++
		}
	}
	remaining := len(m.entries)
	m.mu.Unlock()

	if expired > 0 {
		m.logger.Info("Expired approval sessions removed",
			"expired", expired, "remaining", remaining)
	}
}

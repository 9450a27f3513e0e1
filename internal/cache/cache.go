package cache

import "time"

// Cache is a generic read-through cache. Implementations are safe for
// concurrent use.
type Cache[T any] interface {
	// Get returns the cached value for key, if present and fresh.
	Get(key string) (T, bool)

	// Set stores data under key, replacing any previous value.
	Set(key string, data T)

	// Delete drops key from the cache.
	Delete(key string)

	// Size reports how many entries the cache currently holds.
	Size() int
}

// Cleaner is implemented by caches whose expired entries the Manager
// can sweep out.
type Cleaner interface {
	CleanExpired() int
}

// Manager sweeps expired entries out of its registered caches on a
// fixed interval.
type Manager struct {
	caches      []Cleaner
	stopCleanup chan struct{}
	cleanupDone chan struct{}
}

func NewManager() *Manager {
	return &Manager{
		caches:      make([]Cleaner, 0),
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
}

// Register puts a cache under the manager's periodic sweep. Not safe to
// call after StartCleanup.
func (m *Manager) Register(cache Cleaner) {
	m.caches = append(m.caches, cache)
}

// StartCleanup launches the background sweep loop.
func (m *Manager) StartCleanup(interval time.Duration) {
	go m.cleanup(interval)
}

func (m *Manager) cleanup(interval time.Duration) {
	defer close(m.cleanupDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for _, cache := range m.caches {
				cache.CleanExpired()
			}
		case <-m.stopCleanup:
			return
		}
	}
}

// Stop ends the sweep loop and waits for it to exit.
func (m *Manager) Stop() {
	if m.stopCleanup != nil {
		close(m.stopCleanup)
		<-m.cleanupDone
	}
}

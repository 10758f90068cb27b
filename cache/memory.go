package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// memoryEntry is a single cached value with its expiry bookkeeping
type memoryEntry struct {
	key       string
	value     []byte
	createdAt time.Time
	ttl       time.Duration
}

// expired reports whether the entry's TTL has elapsed; a zero TTL never expires
func (e *memoryEntry) expired(now time.Time) bool {
	if e.ttl == 0 {
		return false
	}
	return now.Sub(e.createdAt) > e.ttl
}

// Memory is a thread-safe in-process LRU cache with per-entry TTL.
// Entries are immutable: an overwrite replaces the stored value
// wholesale, readers never observe a partial update.
type Memory struct {
	mu          sync.RWMutex
	capacity    int
	items       map[string]*list.Element
	lruList     *list.List
	stats       Stats
	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// Stats tracks cache effectiveness
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Size      int64 `json:"size"`
}

// NewMemory creates an in-memory cache holding up to capacity entries.
// Expired entries are also swept in the background every cleanupInterval.
func NewMemory(capacity int, cleanupInterval time.Duration) *Memory {
	if capacity <= 0 {
		capacity = 1024
	}
	m := &Memory{
		capacity:    capacity,
		items:       make(map[string]*list.Element),
		lruList:     list.New(),
		stopCleanup: make(chan struct{}),
	}

	if cleanupInterval > 0 {
		go m.cleanupLoop(cleanupInterval)
	}

	return m
}

// Get retrieves a value; ok is false on miss or expiry
func (m *Memory) Get(ctx context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, exists := m.items[key]
	if !exists {
		m.stats.Misses++
		return nil, false
	}

	entry := elem.Value.(*memoryEntry)
	if entry.expired(time.Now()) {
		m.removeLocked(elem)
		m.stats.Misses++
		return nil, false
	}

	m.lruList.MoveToFront(elem)
	m.stats.Hits++
	return entry.value, true
}

// Set stores a value under key for ttl, evicting the least recently
// used entry when the cache is full
func (m *Memory) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if elem, exists := m.items[key]; exists {
		elem.Value = &memoryEntry{key: key, value: value, createdAt: time.Now(), ttl: ttl}
		m.lruList.MoveToFront(elem)
		return nil
	}

	for m.lruList.Len() >= m.capacity {
		m.evictLocked()
	}

	entry := &memoryEntry{key: key, value: value, createdAt: time.Now(), ttl: ttl}
	m.items[key] = m.lruList.PushFront(entry)
	return nil
}

// Delete removes a key
func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if elem, exists := m.items[key]; exists {
		m.removeLocked(elem)
	}
	return nil
}

// GetStats returns a snapshot of cache statistics
func (m *Memory) GetStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := m.stats
	stats.Size = int64(m.lruList.Len())
	return stats
}

// Close stops the background cleanup goroutine
func (m *Memory) Close() {
	m.stopOnce.Do(func() { close(m.stopCleanup) })
}

func (m *Memory) evictLocked() {
	elem := m.lruList.Back()
	if elem == nil {
		return
	}
	m.removeLocked(elem)
	m.stats.Evictions++
}

func (m *Memory) removeLocked(elem *list.Element) {
	entry := elem.Value.(*memoryEntry)
	m.lruList.Remove(elem)
	delete(m.items, entry.key)
}

func (m *Memory) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.removeExpired()
		case <-m.stopCleanup:
			return
		}
	}
}

func (m *Memory) removeExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for elem := m.lruList.Back(); elem != nil; {
		prev := elem.Prev()
		if elem.Value.(*memoryEntry).expired(now) {
			m.removeLocked(elem)
		}
		elem = prev
	}
}

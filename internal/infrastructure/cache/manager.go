package cache

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	defaultMemoryCapacity = 2048
	defaultMemoryTTLCap   = 5 * time.Minute
	defaultSweepInterval  = time.Minute
	promotionHits         = 5
	evictionFraction      = 0.2
)

// Recorder receives cache activity counters. Implementations must be safe for
// concurrent use.
type Recorder interface {
	CacheHit(tier, namespace string)
	CacheMiss(namespace string)
	CacheEviction(tier string, count int)
}

type nopRecorder struct{}

func (nopRecorder) CacheHit(string, string)   {}
func (nopRecorder) CacheMiss(string)          {}
func (nopRecorder) CacheEviction(string, int) {}

// Config tunes the in-memory tiers. Zero values fall back to defaults.
type Config struct {
	// MemoryCapacity is the entry cap of the memory tier before pressure
	// eviction kicks in.
	MemoryCapacity int

	// MemoryTTLCap bounds memory-tier residency even when the logical TTL
	// of an entry is longer.
	MemoryTTLCap time.Duration

	SweepInterval time.Duration
}

type memoryEntry struct {
	value     []byte
	createdAt time.Time
	expiresAt time.Time
	hits      int
}

// Manager is the three-tier query cache: an unconditional hot map, a
// TTL-bounded memory map, and an optional persistent backend. Any tier being
// unavailable degrades to a miss; callers recompute and stay correct.
type Manager struct {
	mu     sync.Mutex
	hot    map[string][]byte
	memory map[string]*memoryEntry

	persistent PersistentBackend
	cfg        Config
	recorder   Recorder
	logger     *slog.Logger
	now        func() time.Time
}

// PersistentBackend mirrors the persistent-cache port without importing it,
// keeping this package free of core dependencies.
type PersistentBackend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Keys(ctx context.Context, pattern string) ([]string, error)
}

func NewManager(persistent PersistentBackend, cfg Config, recorder Recorder, logger *slog.Logger) *Manager {
	if cfg.MemoryCapacity <= 0 {
		cfg.MemoryCapacity = defaultMemoryCapacity
	}
	if cfg.MemoryTTLCap <= 0 {
		cfg.MemoryTTLCap = defaultMemoryTTLCap
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Manager{
		hot:        make(map[string][]byte),
		memory:     make(map[string]*memoryEntry),
		persistent: persistent,
		cfg:        cfg,
		recorder:   recorder,
		logger:     logger,
		now:        time.Now,
	}
}

// Get looks up hot, then memory, then persistent. A memory hit increments the
// entry's hit counter; at five hits the entry is promoted to the hot tier. A
// persistent hit is rehydrated into the memory tier.
func (m *Manager) Get(ctx context.Context, namespace, id string) ([]byte, bool) {
	key := cacheKey(namespace, id)

	m.mu.Lock()
	if value, ok := m.hot[key]; ok {
		m.mu.Unlock()
		m.recorder.CacheHit("hot", namespace)
		return value, true
	}
	if entry, ok := m.memory[key]; ok {
		if m.now().Before(entry.expiresAt) {
			entry.hits++
			if entry.hits >= promotionHits {
				m.hot[key] = entry.value
			}
			value := entry.value
			m.mu.Unlock()
			m.recorder.CacheHit("memory", namespace)
			return value, true
		}
		delete(m.memory, key)
	}
	m.mu.Unlock()

	if m.persistent != nil {
		value, found, err := m.persistent.Get(ctx, key)
		if err != nil {
			m.logger.Debug("persistent_cache_get_failed", "namespace", namespace, "error", err)
		} else if found {
			m.mu.Lock()
			m.storeMemory(key, value, m.cfg.MemoryTTLCap)
			m.mu.Unlock()
			m.recorder.CacheHit("persistent", namespace)
			return value, true
		}
	}

	m.recorder.CacheMiss(namespace)
	return nil, false
}

// Set writes the memory tier with a capped TTL and the persistent tier with
// the full TTL. The hot tier is written only when the caller marks the entry
// hot.
func (m *Manager) Set(ctx context.Context, namespace, id string, value []byte, ttl time.Duration, hot bool) {
	if ttl <= 0 {
		return
	}
	key := cacheKey(namespace, id)

	memoryTTL := ttl
	if memoryTTL > m.cfg.MemoryTTLCap {
		memoryTTL = m.cfg.MemoryTTLCap
	}

	m.mu.Lock()
	m.storeMemory(key, value, memoryTTL)
	if hot {
		m.hot[key] = value
	}
	m.mu.Unlock()

	if m.persistent != nil {
		if err := m.persistent.Set(ctx, key, value, ttl); err != nil {
			m.logger.Debug("persistent_cache_set_failed", "namespace", namespace, "error", err)
		}
	}
}

// Invalidate drops every entry of a namespace from all three tiers.
// Persistent-tier failures are logged, never escalated.
func (m *Manager) Invalidate(ctx context.Context, namespace string) {
	prefix := namespacePrefix(namespace)

	m.mu.Lock()
	for key := range m.hot {
		if strings.HasPrefix(key, prefix) {
			delete(m.hot, key)
		}
	}
	for key := range m.memory {
		if strings.HasPrefix(key, prefix) {
			delete(m.memory, key)
		}
	}
	m.mu.Unlock()

	if m.persistent == nil {
		return
	}
	keys, err := m.persistent.Keys(ctx, prefix+"*")
	if err != nil {
		m.logger.Warn("persistent_cache_keys_failed", "namespace", namespace, "error", err)
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := m.persistent.Delete(ctx, keys...); err != nil {
		m.logger.Warn("persistent_cache_delete_failed", "namespace", namespace, "error", err)
	}
}

// Run drives the periodic sweep until the context is done. Meant to be run
// in its own goroutine from bootstrap.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

// sweep removes expired memory entries and, when the tier is over capacity,
// evicts the lowest-scoring fifth where score = hitCount - ageMinutes.
func (m *Manager) sweep() {
	now := m.now()
	evicted := 0

	m.mu.Lock()
	defer m.mu.Unlock()

	for key, entry := range m.memory {
		if !now.Before(entry.expiresAt) {
			delete(m.memory, key)
			evicted++
		}
	}

	if len(m.memory) > m.cfg.MemoryCapacity {
		type scored struct {
			key   string
			score float64
		}
		entries := make([]scored, 0, len(m.memory))
		for key, entry := range m.memory {
			age := now.Sub(entry.createdAt).Minutes()
			entries = append(entries, scored{key: key, score: float64(entry.hits) - age})
		}
		sort.Slice(entries, func(i, j int) bool {
			if entries[i].score != entries[j].score {
				return entries[i].score < entries[j].score
			}
			return entries[i].key < entries[j].key
		})

		drop := int(float64(len(entries)) * evictionFraction)
		if drop < 1 {
			drop = 1
		}
		for _, e := range entries[:drop] {
			delete(m.memory, e.key)
			evicted++
		}
	}

	if evicted > 0 {
		m.recorder.CacheEviction("memory", evicted)
	}
}

// storeMemory must be called with the mutex held. A write over capacity
// triggers an immediate pressure eviction on the next sweep, not here, so the
// write path stays cheap.
func (m *Manager) storeMemory(key string, value []byte, ttl time.Duration) {
	now := m.now()
	m.memory[key] = &memoryEntry{
		value:     value,
		createdAt: now,
		expiresAt: now.Add(ttl),
	}
}

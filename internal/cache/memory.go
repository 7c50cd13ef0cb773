package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strconv"
	"sync"
	"time"
)

type entry struct {
	data      []byte
	expiresAt time.Time // zero means no expiry
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Memory is an in-process Cache with per-key TTLs. Expired entries are
// dropped lazily on access.
type Memory struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

var _ Cache = (*Memory)(nil)

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

func (m *Memory) Get(_ context.Context, key string, dest any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok || e.expired(m.now()) {
		delete(m.entries, key)
		return ErrMiss
	}

	if err := json.Unmarshal(e.data, dest); err != nil {
		return fmt.Errorf("decoding cached value for %q: %w", key, err)
	}
	return nil
}

func (m *Memory) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding value for %q: %w", key, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e := entry{data: data}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.entries[key] = e
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return false, nil
	}
	if e.expired(m.now()) {
		delete(m.entries, key)
		return false, nil
	}
	return true, nil
}

func (m *Memory) Increment(_ context.Context, key string, amount int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	if e, ok := m.entries[key]; ok && !e.expired(m.now()) {
		parsed, err := strconv.ParseInt(string(e.data), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("value at %q is not an integer: %w", key, err)
		}
		n = parsed
	}

	n += amount
	m.entries[key] = entry{data: []byte(strconv.FormatInt(n, 10))}
	return n, nil
}

func (m *Memory) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok || e.expired(m.now()) {
		delete(m.entries, key)
		return nil
	}

	e.expiresAt = m.now().Add(ttl)
	m.entries[key] = e
	return nil
}

// DeletePattern removes keys matching a glob-style pattern ("retrieval:u1:*").
func (m *Memory) DeletePattern(_ context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted int64
	for key := range m.entries {
		ok, err := path.Match(pattern, key)
		if err != nil {
			return deleted, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		if ok {
			delete(m.entries, key)
			deleted++
		}
	}
	return deleted, nil
}

package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

type memoryItem struct {
	data     []byte
	expireAt time.Time
}

func (it *memoryItem) expired() bool {
	return time.Now().After(it.expireAt)
}

// Memory is an in-process Store. Values are stored as JSON bytes so Get
// behaves the same as the Redis-backed Store. Expired entries are swept by a
// background ticker; a size cap evicts the entry closest to expiry.
type Memory struct {
	mu      sync.Mutex
	items   map[string]*memoryItem
	maxSize int
	ticker  *time.Ticker
	done    chan struct{}
}

// NewMemory creates an in-memory cache holding at most maxSize entries.
func NewMemory(maxSize int) *Memory {
	if maxSize <= 0 {
		maxSize = 1024
	}
	m := &Memory{
		items:   make(map[string]*memoryItem),
		maxSize: maxSize,
		ticker:  time.NewTicker(time.Minute),
		done:    make(chan struct{}),
	}
	go m.sweep()
	return m
}

func (m *Memory) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.items) >= m.maxSize {
		m.evictOne()
	}
	m.items[key] = &memoryItem{data: data, expireAt: time.Now().Add(ttl)}
	return nil
}

func (m *Memory) Get(_ context.Context, key string, dest any) error {
	m.mu.Lock()
	it, ok := m.items[key]
	if ok && it.expired() {
		delete(m.items, key)
		ok = false
	}
	m.mu.Unlock()

	if !ok {
		return ErrMiss
	}
	return json.Unmarshal(it.data, dest)
}

func (m *Memory) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.items, key)
	}
	return nil
}

func (m *Memory) Close() error {
	m.ticker.Stop()
	close(m.done)
	return nil
}

// evictOne drops the entry nearest to expiry. Caller holds the lock.
func (m *Memory) evictOne() {
	var victim string
	var soonest time.Time
	for key, it := range m.items {
		if victim == "" || it.expireAt.Before(soonest) {
			victim = key
			soonest = it.expireAt
		}
	}
	if victim != "" {
		delete(m.items, victim)
	}
}

func (m *Memory) sweep() {
	for {
		select {
		case <-m.done:
			return
		case <-m.ticker.C:
			m.mu.Lock()
			now := time.Now()
			for key, it := range m.items {
				if now.After(it.expireAt) {
					delete(m.items, key)
				}
			}
			m.mu.Unlock()
		}
	}
}

// Package local provides an in-process cache and pub/sub for
// single-node deployments where no Redis is configured. Guest sessions
// live here, so everything a guest does must survive until migration or
// explicit expiry.
package local

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("cache: key not found")

// Config holds LocalCache settings.
type Config struct {
	GCInterval time.Duration
}

type entry struct {
	data     string
	expireAt time.Time
}

// expireAt.IsZero() means the entry never expires.
func (e entry) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && now.After(e.expireAt)
}

// LocalCache implements the Cache interface with plain maps behind one
// lock. The workload is small per-device state, not a hot path; a
// single lock keeps SetNX and cross-structure Del trivially atomic.
type LocalCache struct {
	mu     sync.RWMutex
	kv     map[string]entry
	hashes map[string]map[string]string
	sets   map[string]map[string]struct{}
	lists  map[string][]string

	gcInterval time.Duration
	stopGC     chan struct{}
}

// NewCache creates a LocalCache and starts the expiry sweeper.
func NewCache(cfg Config) (*LocalCache, error) {
	interval := cfg.GCInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	c := &LocalCache{
		kv:         make(map[string]entry),
		hashes:     make(map[string]map[string]string),
		sets:       make(map[string]map[string]struct{}),
		lists:      make(map[string][]string),
		gcInterval: interval,
		stopGC:     make(chan struct{}),
	}
	go c.runGC()
	return c, nil
}

// Close stops the expiry sweeper.
func (c *LocalCache) Close() {
	close(c.stopGC)
}

func (c *LocalCache) runGC() {
	ticker := time.NewTicker(c.gcInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for k, e := range c.kv {
				if e.expired(now) {
					delete(c.kv, k)
				}
			}
			c.mu.Unlock()
		case <-c.stopGC:
			return
		}
	}
}

// ---- KV ----

func (c *LocalCache) Get(_ context.Context, key string) (string, error) {
	c.mu.RLock()
	e, ok := c.kv[key]
	c.mu.RUnlock()
	if !ok || e.expired(time.Now()) {
		return "", ErrNotFound
	}
	return e.data, nil
}

func (c *LocalCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	e := entry{data: value}
	if ttl > 0 {
		e.expireAt = time.Now().Add(ttl)
	}
	c.mu.Lock()
	c.kv[key] = e
	c.mu.Unlock()
	return nil
}

func (c *LocalCache) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	for _, k := range keys {
		delete(c.kv, k)
		delete(c.hashes, k)
		delete(c.sets, k)
		delete(c.lists, k)
	}
	c.mu.Unlock()
	return nil
}

func (c *LocalCache) Exists(_ context.Context, key string) (bool, error) {
	c.mu.RLock()
	e, ok := c.kv[key]
	c.mu.RUnlock()
	return ok && !e.expired(time.Now()), nil
}

func (c *LocalCache) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.kv[key]; ok && !e.expired(time.Now()) {
		return false, nil
	}
	e := entry{data: value}
	if ttl > 0 {
		e.expireAt = time.Now().Add(ttl)
	}
	c.kv[key] = e
	return true, nil
}

func (c *LocalCache) Expire(_ context.Context, key string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.kv[key]
	if !ok || e.expired(time.Now()) {
		delete(c.kv, key)
		return ErrNotFound
	}
	e.expireAt = time.Now().Add(ttl)
	c.kv[key] = e
	return nil
}

// ---- Hash ----

func (c *LocalCache) HSet(_ context.Context, key, field, value string) error {
	c.mu.Lock()
	h, ok := c.hashes[key]
	if !ok {
		h = make(map[string]string)
		c.hashes[key] = h
	}
	h[field] = value
	c.mu.Unlock()
	return nil
}

func (c *LocalCache) HGet(_ context.Context, key, field string) (string, error) {
	c.mu.RLock()
	v, ok := c.hashes[key][field]
	c.mu.RUnlock()
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (c *LocalCache) HGetAll(_ context.Context, key string) (map[string]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make(map[string]string, len(c.hashes[key]))
	for f, v := range c.hashes[key] {
		result[f] = v
	}
	return result, nil
}

func (c *LocalCache) HDel(_ context.Context, key string, fields ...string) error {
	c.mu.Lock()
	for _, f := range fields {
		delete(c.hashes[key], f)
	}
	c.mu.Unlock()
	return nil
}

// ---- Set ----

func (c *LocalCache) SAdd(_ context.Context, key string, members ...string) error {
	c.mu.Lock()
	s, ok := c.sets[key]
	if !ok {
		s = make(map[string]struct{})
		c.sets[key] = s
	}
	for _, m := range members {
		s[m] = struct{}{}
	}
	c.mu.Unlock()
	return nil
}

func (c *LocalCache) SRem(_ context.Context, key string, members ...string) error {
	c.mu.Lock()
	for _, m := range members {
		delete(c.sets[key], m)
	}
	c.mu.Unlock()
	return nil
}

func (c *LocalCache) SMembers(_ context.Context, key string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]string, 0, len(c.sets[key]))
	for m := range c.sets[key] {
		result = append(result, m)
	}
	return result, nil
}

func (c *LocalCache) SIsMember(_ context.Context, key, member string) (bool, error) {
	c.mu.RLock()
	_, ok := c.sets[key][member]
	c.mu.RUnlock()
	return ok, nil
}

// ---- List ----

func (c *LocalCache) LPush(_ context.Context, key string, values ...string) error {
	c.mu.Lock()
	// Each value is prepended in turn; the last one lands at index 0,
	// matching Redis LPUSH.
	list := c.lists[key]
	for _, v := range values {
		list = append([]string{v}, list...)
	}
	c.lists[key] = list
	c.mu.Unlock()
	return nil
}

func (c *LocalCache) LRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	list := c.lists[key]
	n := int64(len(list))
	if start < 0 {
		start = 0
	}
	if start >= n {
		return nil, nil
	}
	if stop < 0 || stop >= n {
		stop = n - 1
	}
	result := make([]string, stop-start+1)
	copy(result, list[start:stop+1])
	return result, nil
}

func (c *LocalCache) LTrim(_ context.Context, key string, start, stop int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := c.lists[key]
	n := int64(len(list))
	if start < 0 {
		start = 0
	}
	if start >= n {
		delete(c.lists, key)
		return nil
	}
	if stop < 0 || stop >= n {
		stop = n - 1
	}
	c.lists[key] = append([]string(nil), list[start:stop+1]...)
	return nil
}

// LSet replaces the whole list. An empty slice removes the key, so a
// fully filtered receipt queue does not linger as an empty list.
func (c *LocalCache) LSet(_ context.Context, key string, values []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(values) == 0 {
		delete(c.lists, key)
		return nil
	}
	c.lists[key] = append([]string(nil), values...)
	return nil
}

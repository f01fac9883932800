// Package shardmap provides a string-keyed concurrent map split into
// independently locked shards. Operations on different keys contend only
// when they hash to the same shard, so callers never serialise on one
// global lock.
package shardmap

import (
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// DefaultShards is the shard count used by New.
const DefaultShards = 32

type shard[V any] struct {
	mu sync.RWMutex
	m  map[string]V
}

// Map is a concurrent map from string keys to V. The zero value is not
// usable; create one with New or NewSize.
type Map[V any] struct {
	shards []*shard[V]
}

// New returns a map with DefaultShards shards.
func New[V any]() *Map[V] {
	return NewSize[V](DefaultShards)
}

// NewSize returns a map with n shards. n below 1 is treated as 1.
func NewSize[V any](n int) *Map[V] {
	if n < 1 {
		n = 1
	}
	m := &Map[V]{shards: make([]*shard[V], n)}
	for i := range m.shards {
		m.shards[i] = &shard[V]{m: make(map[string]V)}
	}
	return m
}

func (m *Map[V]) shard(key string) *shard[V] {
	return m.shards[xxhash.Sum64String(key)%uint64(len(m.shards))]
}

// Load returns the value stored under key.
func (m *Map[V]) Load(key string) (V, bool) {
	s := m.shard(key)
	s.mu.RLock()
	v, ok := s.m[key]
	s.mu.RUnlock()
	return v, ok
}

// Store sets the value for key, replacing any existing value.
func (m *Map[V]) Store(key string, v V) {
	s := m.shard(key)
	s.mu.Lock()
	s.m[key] = v
	s.mu.Unlock()
}

// LoadOrStore returns the existing value for key if present. Otherwise it
// stores v and returns it. loaded reports whether the value was present.
func (m *Map[V]) LoadOrStore(key string, v V) (actual V, loaded bool) {
	s := m.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.m[key]; ok {
		return existing, true
	}
	s.m[key] = v
	return v, false
}

// Delete removes key.
func (m *Map[V]) Delete(key string) {
	s := m.shard(key)
	s.mu.Lock()
	delete(s.m, key)
	s.mu.Unlock()
}

// LoadAndDelete removes key and returns the value it held.
func (m *Map[V]) LoadAndDelete(key string) (V, bool) {
	s := m.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	if ok {
		delete(s.m, key)
	}
	return v, ok
}

// Compute atomically replaces the entry for key with the result of fn.
// fn receives the current value (if any) and returns the new value and
// whether the entry should be kept. Returning keep=false deletes the key.
// fn runs under the shard lock and must not touch the map.
func (m *Map[V]) Compute(key string, fn func(old V, loaded bool) (v V, keep bool)) (V, bool) {
	s := m.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	old, loaded := s.m[key]
	v, keep := fn(old, loaded)
	if keep {
		s.m[key] = v
	} else {
		delete(s.m, key)
	}
	return v, keep
}

// Range calls fn for every entry until fn returns false. Each shard is
// snapshotted before fn runs, so fn may call back into the map. Entries
// added or removed concurrently may or may not be observed.
func (m *Map[V]) Range(fn func(key string, v V) bool) {
	type kv struct {
		k string
		v V
	}
	for _, s := range m.shards {
		s.mu.RLock()
		snap := make([]kv, 0, len(s.m))
		for k, v := range s.m {
			snap = append(snap, kv{k, v})
		}
		s.mu.RUnlock()
		for _, e := range snap {
			if !fn(e.k, e.v) {
				return
			}
		}
	}
}

// Len returns the number of entries across all shards.
func (m *Map[V]) Len() int {
	n := 0
	for _, s := range m.shards {
		s.mu.RLock()
		n += len(s.m)
		s.mu.RUnlock()
	}
	return n
}

// Keys returns all keys in ascending order.
func (m *Map[V]) Keys() []string {
	keys := make([]string, 0, m.Len())
	m.Range(func(k string, _ V) bool {
		keys = append(keys, k)
		return true
	})
	sort.Strings(keys)
	return keys
}

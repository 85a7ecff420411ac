package voxchunk

import (
	"sync"

	"github.com/dantero/vkvoxel/internal/voxpos"
)

// Map is the process-wide table of live chunks, keyed by chunk position.
// It mirrors the teacher's ChunkStore (map + RWMutex + generation
// counter) but drops the per-column secondary index: RENDER_DISTANCE is
// small enough that a full-map iteration per eviction tick is cheap, and
// original_source's chunks.rs does the same full-map scan.
type Map struct {
	mu       sync.RWMutex
	chunks   map[voxpos.ChunkPos]*Chunk
	modCount uint64
}

// NewMap creates an empty chunk map.
func NewMap() *Map {
	return &Map{chunks: make(map[voxpos.ChunkPos]*Chunk)}
}

// Get returns the chunk at pos, if loaded.
func (m *Map) Get(pos voxpos.ChunkPos) (*Chunk, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.chunks[pos]
	return c, ok
}

// LoadOrCreate returns the existing chunk at pos, or inserts and returns
// a freshly created one. The boolean result reports whether the chunk
// was newly created, which the streaming loop uses to decide whether to
// enqueue it for generation.
//
// The insert happens before the caller hands the chunk to a generator
// worker, matching original_source's invariant that a position is
// visible in the map before any worker is told about it — a worker that
// finishes generating a chunk no longer present in the map (evicted
// between enqueue and completion) knows to drop its result instead of
// reinserting a stale entry.
func (m *Map) LoadOrCreate(pos voxpos.ChunkPos) (chunk *Chunk, created bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.chunks[pos]; ok {
		return c, false
	}
	c := New(pos)
	m.chunks[pos] = c
	m.modCount++
	return c, true
}

// Delete removes pos from the map, returning the removed chunk if any.
func (m *Map) Delete(pos voxpos.ChunkPos) (*Chunk, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chunks[pos]
	if ok {
		delete(m.chunks, pos)
		m.modCount++
	}
	return c, ok
}

// Has reports whether pos is currently loaded.
func (m *Map) Has(pos voxpos.ChunkPos) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.chunks[pos]
	return ok
}

// Len returns the number of currently loaded chunks.
func (m *Map) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks)
}

// ModCount returns a counter incremented on every insert/delete, useful
// for tests that assert on eviction/load counts without races.
func (m *Map) ModCount() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.modCount
}

// EvictWhere removes every chunk for which keep returns false and calls
// onEvict with each one, still holding no lock (onEvict must not call
// back into the Map). This mirrors original_source's drain_filter: the
// caller uses it to both drop far chunks and queue their GPU buffers for
// deferred destruction in the same pass.
func (m *Map) EvictWhere(keep func(voxpos.ChunkPos) bool, onEvict func(*Chunk)) {
	m.mu.Lock()
	var evicted []*Chunk
	for pos, c := range m.chunks {
		if !keep(pos) {
			delete(m.chunks, pos)
			evicted = append(evicted, c)
		}
	}
	if len(evicted) > 0 {
		m.modCount++
	}
	m.mu.Unlock()

	for _, c := range evicted {
		onEvict(c)
	}
}

// Range calls fn for every loaded chunk. fn must not mutate the map.
func (m *Map) Range(fn func(voxpos.ChunkPos, *Chunk)) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for pos, c := range m.chunks {
		fn(pos, c)
	}
}

// InRegion calls fn for every chunk whose position falls within
// [min, max) — the bounding box of one render region — used by
// internal/regioncache to record a region's secondary command buffer.
func (m *Map) InRegion(min, max voxpos.ChunkPos, fn func(voxpos.ChunkPos, *Chunk)) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for pos, c := range m.chunks {
		if between(pos, min, max) {
			fn(pos, c)
		}
	}
}

func between(p, min, max voxpos.ChunkPos) bool {
	return p.X >= min.X && p.X < max.X &&
		p.Y >= min.Y && p.Y < max.Y &&
		p.Z >= min.Z && p.Z < max.Z
}

// Package regioncache groups chunk draws into per-region secondary
// command buffers so a frame with thousands of loaded chunks doesn't
// re-record a primary command buffer's worth of binds and draws every
// frame: only regions touched since their last recording are dirty.
//
// Translated from original_source's src/render/regions.rs.
package regioncache

import (
	"fmt"
	"sync"

	vk "github.com/vulkan-go/vulkan"

	"github.com/dantero/vkvoxel/internal/voxchunk"
	"github.com/dantero/vkvoxel/internal/voxpos"
)

// Pool is the narrow command-pool contract regioncache needs; satisfied
// by internal/vk's command pool wrapper.
type Pool interface {
	AllocBuffers(count int, secondary bool) ([]vk.CommandBuffer, error)
	ReallocBuffers(buffers []vk.CommandBuffer, newCount int, secondary bool) ([]vk.CommandBuffer, error)
}

// region holds one RegionPos's per-swapchain-image secondary command
// buffers, each independently dirty so recreating the swapchain doesn't
// force every region to re-record at once.
type region struct {
	pos     voxpos.RegionPos
	buffers []vk.CommandBuffer
	dirty   []bool

	minPos, maxPos voxpos.ChunkPos
}

func newRegion(pos voxpos.RegionPos, buffers []vk.CommandBuffer) *region {
	min := voxpos.ChunkPos{
		X: pos.X * voxpos.RegionSize,
		Y: pos.Y * voxpos.RegionSize,
		Z: pos.Z * voxpos.RegionSize,
	}
	max := voxpos.ChunkPos{
		X: (pos.X + 1) * voxpos.RegionSize,
		Y: (pos.Y + 1) * voxpos.RegionSize,
		Z: (pos.Z + 1) * voxpos.RegionSize,
	}
	dirty := make([]bool, len(buffers))
	for i := range dirty {
		dirty[i] = true
	}
	return &region{pos: pos, buffers: buffers, dirty: dirty, minPos: min, maxPos: max}
}

func (r *region) setDirty() {
	for i := range r.dirty {
		r.dirty[i] = true
	}
}

// RecordFunc records the draws for one region's command buffer, given
// the target buffer and every chunk whose position falls in the
// region's bounds and that has vertices to draw. It mirrors record_commands:
// bind pipeline and descriptor set once, then per chunk bind its vertex
// buffer, push its position, and draw.
type RecordFunc func(buf vk.CommandBuffer, chunks []RegionChunk) error

// RegionChunk is a chunk's position plus its current mesh, pre-filtered
// to one that actually has vertices to draw.
type RegionChunk struct {
	Pos    voxpos.ChunkPos
	Vertex *voxchunk.VertexBuffer
}

// Manager owns every region's command-buffer set and the pool that
// allocates them. Buffer count tracks the swapchain's image count, so
// a swapchain recreation calls Resize to reallocate every region.
type Manager struct {
	mu      sync.Mutex
	regions map[voxpos.RegionPos]*region
	chunks  *voxchunk.Map
	pool    Pool

	buffersCount int
}

// NewManager builds a Manager over chunks, allocating buffersCount
// secondary command buffers per region as regions are first touched.
func NewManager(chunks *voxchunk.Map, pool Pool, buffersCount int) *Manager {
	return &Manager{
		regions:      make(map[voxpos.RegionPos]*region),
		chunks:       chunks,
		pool:         pool,
		buffersCount: buffersCount,
	}
}

// SetDirty marks every one of pos's command buffers for re-recording,
// creating the region's buffer set on first touch. Called by the
// streaming loop whenever a chunk in that region is loaded, evicted, or
// remeshed.
func (m *Manager) SetDirty(pos voxpos.RegionPos) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.regions[pos]
	if !ok {
		buffers, err := m.pool.AllocBuffers(m.buffersCount, true)
		if err != nil {
			return fmt.Errorf("regioncache: allocating buffers for region %+v: %w", pos, err)
		}
		r = newRegion(pos, buffers)
		m.regions[pos] = r
	}
	r.setDirty()
	return nil
}

// FetchCommandBuffer returns region pos's command buffer for swapchain
// image index, re-recording it via record first if it is dirty.
func (m *Manager) FetchCommandBuffer(pos voxpos.RegionPos, index int, record RecordFunc) (vk.CommandBuffer, error) {
	m.mu.Lock()
	r, ok := m.regions[pos]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("regioncache: region %+v has no buffers allocated", pos)
	}

	if r.dirty[index] {
		var chunks []RegionChunk
		m.chunks.InRegion(r.minPos, r.maxPos, func(p voxpos.ChunkPos, c *voxchunk.Chunk) {
			vb := c.VertexBuffer()
			if vb == nil || vb.Vertices == 0 {
				return
			}
			chunks = append(chunks, RegionChunk{Pos: p, Vertex: vb})
		})
		if err := record(r.buffers[index], chunks); err != nil {
			return nil, fmt.Errorf("regioncache: recording region %+v buffer %d: %w", pos, index, err)
		}
		r.dirty[index] = false
	}
	return r.buffers[index], nil
}

// Positions returns every region currently holding an allocated buffer
// set, for the render loop to execute alongside the per-frame primary
// command buffer.
func (m *Manager) Positions() []voxpos.RegionPos {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]voxpos.RegionPos, 0, len(m.regions))
	for pos := range m.regions {
		out = append(out, pos)
	}
	return out
}

// RegionCount returns the number of regions with an allocated buffer
// set, for internal/bench's loaded-region reporting.
func (m *Manager) RegionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.regions)
}

// Resize reallocates every region's command buffers to newCount slots,
// for when the swapchain is recreated with a different image count.
func (m *Manager) Resize(newCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buffersCount = newCount
	for pos, r := range m.regions {
		buffers, err := m.pool.ReallocBuffers(r.buffers, newCount, true)
		if err != nil {
			return fmt.Errorf("regioncache: resizing region %+v to %d buffers: %w", pos, newCount, err)
		}
		r.buffers = buffers
		dirty := make([]bool, newCount)
		for i := range dirty {
			dirty[i] = true
		}
		r.dirty = dirty
	}
	return nil
}

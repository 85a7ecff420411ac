// Package streaming drives the per-tick load/evict loop around the
// camera's chunk position, and defers GPU vertex-buffer destruction
// until it is safe to do so, translating original_source's
// src/world/chunks.rs into Go.
package streaming

import (
	"log"
	"sync/atomic"

	"github.com/dantero/vkvoxel/internal/generation"
	"github.com/dantero/vkvoxel/internal/meshpipe"
	"github.com/dantero/vkvoxel/internal/regioncache"
	"github.com/dantero/vkvoxel/internal/voxchunk"
	"github.com/dantero/vkvoxel/internal/voxpos"
)

// RenderDistance is the Chebyshev cube radius, in chunks, that stays
// loaded around the camera.
const RenderDistance = 10

// DiscardDistance is the Chebyshev radius beyond which a chunk is
// evicted; it sits outside RenderDistance so a chunk isn't repeatedly
// reloaded and evicted as the camera jitters near the boundary.
const DiscardDistance = 12

// MaxLoadsPerTick bounds how many new chunks World.Tick enqueues for
// generation in a single call, so a large camera jump (teleport, first
// frame) can't blow the generator queue in one shot.
const MaxLoadsPerTick = 1000

// MaxFramesInFlight matches the swapchain's frame-in-flight count: a
// freed GPU buffer sits for this many ticks before its memory is
// actually returned, so it can't be destroyed while still referenced by
// an in-flight command buffer recorded on an earlier frame.
const MaxFramesInFlight = 2

// World owns every loaded chunk plus the generator and mesh-pipeline
// worker pools that populate them.
type World struct {
	chunks    *voxchunk.Map
	generator *generation.Generator
	mesher    *meshpipe.Pipeline
	regions   *regioncache.Manager

	pendingFree [MaxFramesInFlight][]*voxchunk.VertexBuffer
	freeIndex   int

	createdTotal int64 // atomic
}

// New builds a World. The generator and mesher are expected to already
// be constructed (they need the world's chunk map as their forwarder/
// resolver) and are started by the caller after wiring is complete.
func New(chunks *voxchunk.Map, generator *generation.Generator, mesher *meshpipe.Pipeline, regions *regioncache.Manager) *World {
	return &World{chunks: chunks, generator: generator, mesher: mesher, regions: regions}
}

// Chunks returns the world's chunk map, for neighbor resolution and
// render-time iteration.
func (w *World) Chunks() *voxchunk.Map { return w.chunks }

// Regions returns the region command-buffer manager, for render-time
// draw recording and bench's loaded-region reporting.
func (w *World) Regions() *regioncache.Manager { return w.regions }

// CreatedCount returns the number of chunks created (inserted into the
// map and enqueued for generation) since New, for internal/bench's
// throughput reporting.
func (w *World) CreatedCount() int64 {
	return atomic.LoadInt64(&w.createdTotal)
}

// Tick loads newly visible chunks and evicts ones beyond DiscardDistance
// around center, the camera's current chunk position. It should be
// called once per frame.
func (w *World) Tick(center voxpos.ChunkPos) {
	w.loadAround(center)
	w.advanceFreeRing()
	w.evictFarFrom(center)
}

// loadAround enqueues every unloaded chunk within RenderDistance of
// center for generation, in expanding-shell order so the nearest chunks
// finish first, up to MaxLoadsPerTick per call.
func (w *World) loadAround(center voxpos.ChunkPos) {
	loaded := 0
	for r := int64(0); r <= RenderDistance && loaded < MaxLoadsPerTick; r++ {
		for dx := -r; dx <= r; dx++ {
			for dy := -r; dy <= r; dy++ {
				for dz := -r; dz <= r; dz++ {
					if maxAbs3(dx, dy, dz) != r {
						continue // only the shell at exactly radius r
					}
					if loaded >= MaxLoadsPerTick {
						return
					}
					pos := voxpos.ChunkPos{X: center.X + dx, Y: center.Y + dy, Z: center.Z + dz}
					chunk, created := w.chunks.LoadOrCreate(pos)
					if !created {
						continue
					}
					if !w.generator.TryEnqueue(chunk) {
						// Queue full this tick; roll back so the position is
						// retried on a later tick instead of being silently lost.
						w.chunks.Delete(pos)
						return
					}
					atomic.AddInt64(&w.createdTotal, 1)
					loaded++
				}
			}
		}
	}
}

func maxAbs3(a, b, c int64) int64 {
	if a < 0 {
		a = -a
	}
	if b < 0 {
		b = -b
	}
	if c < 0 {
		c = -c
	}
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}

// evictFarFrom drops every chunk beyond DiscardDistance of center,
// marking its region dirty and queueing its vertex buffer (if any) for
// deferred destruction.
func (w *World) evictFarFrom(center voxpos.ChunkPos) {
	keep := func(pos voxpos.ChunkPos) bool {
		return pos.ChebyshevDistance(center) <= DiscardDistance
	}
	w.chunks.EvictWhere(keep, func(c *voxchunk.Chunk) {
		if err := w.regions.SetDirty(c.Pos.Region()); err != nil {
			log.Printf("streaming: marking region dirty for %+v: %v", c.Pos, err)
		}
		if vb := c.VertexBuffer(); vb != nil {
			w.pendingFree[w.freeIndex] = append(w.pendingFree[w.freeIndex], vb)
		}
	})
}

// advanceFreeRing advances the ring and destroys whatever GPU buffers
// were queued in the new slot MaxFramesInFlight ticks ago — by now the
// frame that could still be referencing them has long since presented.
// Tick calls it before evictFarFrom refills that slot.
func (w *World) advanceFreeRing() {
	w.freeIndex = (w.freeIndex + 1) % MaxFramesInFlight
	for _, vb := range w.pendingFree[w.freeIndex] {
		vb.Alloc.Free()
	}
	w.pendingFree[w.freeIndex] = w.pendingFree[w.freeIndex][:0]
}

// ChunkGenerated implements generation.Forwarder: it hands a freshly
// generated chunk to the mesh pipeline, matching original_source's
// chunk_generated forwarding a weak reference from the world lock. A
// chunk that is no longer the map's entry for its position (evicted
// while it was being generated) is dropped instead.
func (w *World) ChunkGenerated(c *voxchunk.Chunk) {
	if current, ok := w.chunks.Get(c.Pos); !ok || current != c {
		return
	}
	if !w.mesher.TryEnqueue(c) {
		log.Printf("streaming: mesh queue full, dropping remesh for %+v", c.Pos)
	}
}

// Neighbor implements meshpipe.Resolver: it resolves the block
// immediately across a chunk boundary from c at local offset (x, y, z).
func (w *World) Neighbor(c *voxchunk.Chunk, x, y, z int) (voxchunk.BlockId, bool) {
	dx, dy, dz := 0, 0, 0
	lx, ly, lz := x, y, z
	switch {
	case x < 0:
		dx, lx = -1, x+voxpos.ChunkSize
	case x >= voxpos.ChunkSize:
		dx, lx = 1, x-voxpos.ChunkSize
	case y < 0:
		dy, ly = -1, y+voxpos.ChunkSize
	case y >= voxpos.ChunkSize:
		dy, ly = 1, y-voxpos.ChunkSize
	case z < 0:
		dz, lz = -1, z+voxpos.ChunkSize
	case z >= voxpos.ChunkSize:
		dz, lz = 1, z-voxpos.ChunkSize
	default:
		lx, ly, lz = x, y, z
	}

	neighborPos := voxpos.ChunkPos{X: c.Pos.X + dx, Y: c.Pos.Y + dy, Z: c.Pos.Z + dz}
	neighbor, ok := w.chunks.Get(neighborPos)
	if !ok {
		return voxchunk.Air, false
	}
	blocks, ready := neighbor.Blocks()
	if !ready {
		return voxchunk.Air, false
	}
	p := voxpos.NewLocalBlockPos(uint8(lx), uint8(ly), uint8(lz))
	return blocks[p.ToIndex()], true
}

package voxchunk

import (
	"sync"
	"sync/atomic"

	"github.com/dantero/vkvoxel/internal/vkmem"
	"github.com/dantero/vkvoxel/internal/voxpos"
)

// Blocks is the flat, linearized block array backing a chunk.
type Blocks [voxpos.BlocksPerChunk]BlockId

// VertexBuffer is the GPU-resident mesh for one chunk: a device-local
// vkmem.Allocation (whose BoundBuffer is the vk.Buffer to bind when
// drawing) plus the vertex count the mesher wrote into it.
type VertexBuffer struct {
	Alloc    *vkmem.Allocation
	Vertices uint32
}

// Chunk is a single chunk's shared state: the generator writes Blocks
// exactly once, the mesher writes VertexBuffer any number of times
// thereafter (once per remesh), and both are read concurrently by the
// render thread and by neighbor chunks probing across a boundary.
type Chunk struct {
	Pos voxpos.ChunkPos

	refCount int32 // atomic; number of live streaming/mesh-pipe references

	blocksMu sync.RWMutex
	blocks   *Blocks

	// solidCount is written once, alongside blocks, under blocksMu, and
	// read through SolidCount. The generator skips handing an all-air
	// chunk to the mesher using its own count.
	solidCount int

	vertexMu     sync.Mutex
	vertexBuffer *VertexBuffer
}

// New creates an unpopulated chunk. Blocks() returns false until
// SetBlocks has been called by a generator worker.
func New(pos voxpos.ChunkPos) *Chunk {
	return &Chunk{Pos: pos, refCount: 1}
}

// Retain increments the chunk's reference count. Pair with Release.
func (c *Chunk) Retain() { atomic.AddInt32(&c.refCount, 1) }

// Release decrements the chunk's reference count and reports whether it
// reached zero, meaning the streaming loop's chunk map entry for it
// should be dropped and its GPU resources queued for deferred
// destruction.
func (c *Chunk) Release() bool {
	return atomic.AddInt32(&c.refCount, -1) == 0
}

// Blocks returns the chunk's block array and whether generation has
// completed yet.
func (c *Chunk) Blocks() (*Blocks, bool) {
	c.blocksMu.RLock()
	defer c.blocksMu.RUnlock()
	return c.blocks, c.blocks != nil
}

// SetBlocks installs the generated block array. Called exactly once, by
// the generator worker that produced it.
func (c *Chunk) SetBlocks(blocks *Blocks, solidCount int) {
	c.blocksMu.Lock()
	defer c.blocksMu.Unlock()
	c.blocks = blocks
	c.solidCount = solidCount
}

// SolidCount returns the number of non-air blocks recorded at generation
// time. Only meaningful once Blocks() reports ready.
func (c *Chunk) SolidCount() int {
	c.blocksMu.RLock()
	defer c.blocksMu.RUnlock()
	return c.solidCount
}

// BlockAt returns the block at local position p. Callers must have
// already confirmed Blocks() is ready.
func (c *Chunk) BlockAt(p voxpos.LocalBlockPos) BlockId {
	c.blocksMu.RLock()
	defer c.blocksMu.RUnlock()
	if c.blocks == nil {
		return Air
	}
	return c.blocks[p.ToIndex()]
}

// VertexBuffer returns the chunk's current mesh, or nil if it has not
// been meshed yet (or was meshed to zero faces).
func (c *Chunk) VertexBuffer() *VertexBuffer {
	c.vertexMu.Lock()
	defer c.vertexMu.Unlock()
	return c.vertexBuffer
}

// SetVertexBuffer installs a freshly meshed buffer, returning whatever
// buffer it replaces so the caller can queue it for deferred destruction
// rather than freeing GPU memory while it may still be in flight on the
// render thread.
func (c *Chunk) SetVertexBuffer(vb *VertexBuffer) *VertexBuffer {
	c.vertexMu.Lock()
	defer c.vertexMu.Unlock()
	old := c.vertexBuffer
	c.vertexBuffer = vb
	return old
}

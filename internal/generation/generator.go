// Package generation runs the fixed-size worker pool that turns a bare
// ChunkPos into a populated voxchunk.Blocks array: a seeded, multi-octave
// noise height field cached per (x, z) column, stamped into a flat block
// array and handed to the mesh pipeline.
package generation

import (
	"log"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/dantero/vkvoxel/internal/voxchunk"
	"github.com/dantero/vkvoxel/internal/voxpos"
)

const (
	// Threads matches original_source's generator thread count order of
	// magnitude; unlike the original's single thread, terrain generation
	// here is CPU-bound noise evaluation rather than a placeholder fill,
	// so a small pool keeps pace with the mesher's appetite.
	Threads = 2

	// HeightCacheSize bounds the per-column cache so long play sessions
	// that wander far from spawn don't grow it unbounded.
	HeightCacheSize = 4096

	noiseFrequency = 0.001
	baseHeight     = 50
	heightRange    = 100 // height in [baseHeight, baseHeight+heightRange] = [50, 150]
	octaves        = 4
	persistence    = 0.5
	lacunarity     = 2.0
)

// Forwarder is implemented by whatever hands freshly generated chunks to
// the mesh pipeline (internal/streaming, in production).
type Forwarder interface {
	ChunkGenerated(*voxchunk.Chunk)
}

// Generator owns the noise field, the height-map cache, and the job
// queue feeding Threads worker goroutines.
type Generator struct {
	noise  opensimplex.Noise
	cache  *lru.Cache[[2]int64, int]
	jobs   chan *voxchunk.Chunk
	done   chan struct{}
	fwd    Forwarder

	generatedTotal int64 // atomic
}

// New builds a Generator seeded with seed, forwarding finished chunks to
// fwd. Call Start to spin up its worker pool.
func New(seed int64, fwd Forwarder) *Generator {
	cache, err := lru.New[[2]int64, int](HeightCacheSize)
	if err != nil {
		// Only returns an error for a non-positive size, which HeightCacheSize
		// never is; a failure here would indicate a code-level mistake, not
		// a runtime condition.
		log.Fatalf("generation: building height cache: %v", err)
	}
	return &Generator{
		noise: opensimplex.NewNormalized(seed),
		cache: cache,
		jobs:  make(chan *voxchunk.Chunk, 4096),
		done:  make(chan struct{}),
		fwd:   fwd,
	}
}

// Start launches the worker pool. Call Stop to join it.
func (g *Generator) Start() {
	for i := 0; i < Threads; i++ {
		go g.worker()
	}
}

// Stop closes the job queue and waits for every worker to drain it.
func (g *Generator) Stop() {
	close(g.jobs)
	for i := 0; i < Threads; i++ {
		<-g.done
	}
}

// Enqueue schedules c for generation. Blocks if the queue is full, which
// is the back-pressure the streaming loop's MAX_LOADED_CHUNKS_PER_FRAME
// bound is designed to prevent.
func (g *Generator) Enqueue(c *voxchunk.Chunk) {
	g.jobs <- c
}

// TryEnqueue schedules c for generation without blocking, reporting
// whether the job queue had room.
func (g *Generator) TryEnqueue(c *voxchunk.Chunk) bool {
	select {
	case g.jobs <- c:
		return true
	default:
		return false
	}
}

func (g *Generator) worker() {
	for c := range g.jobs {
		g.generate(c)
	}
	g.done <- struct{}{}
}

func (g *Generator) generate(c *voxchunk.Chunk) {
	var blocks voxchunk.Blocks
	solid := 0

	base := c.Pos
	for lx := 0; lx < voxpos.ChunkSize; lx++ {
		worldX := base.X*voxpos.ChunkSize + int64(lx)
		for lz := 0; lz < voxpos.ChunkSize; lz++ {
			worldZ := base.Z*voxpos.ChunkSize + int64(lz)
			height := g.heightAt(worldX, worldZ)
			for ly := 0; ly < voxpos.ChunkSize; ly++ {
				worldY := base.Y*voxpos.ChunkSize + int64(ly)
				id := voxchunk.Air
				if worldY < int64(height) {
					id = voxchunk.Block
					solid++
				}
				p := voxpos.NewLocalBlockPos(uint8(lx), uint8(ly), uint8(lz))
				blocks[p.ToIndex()] = id
			}
		}
	}

	c.SetBlocks(&blocks, solid)
	atomic.AddInt64(&g.generatedTotal, 1)
	if solid > 0 {
		g.fwd.ChunkGenerated(c)
	}
}

// GeneratedCount returns the number of chunks generated since Start,
// for internal/bench's throughput reporting.
func (g *Generator) GeneratedCount() int64 {
	return atomic.LoadInt64(&g.generatedTotal)
}

// QueueLen returns the number of chunks currently queued for
// generation, for internal/bench's backlog reporting.
func (g *Generator) QueueLen() int {
	return len(g.jobs)
}

// heightAt returns the cached, or newly computed and cached, terrain
// height for the column at world-block coordinates (x, z).
func (g *Generator) heightAt(x, z int64) int {
	key := [2]int64{x, z}
	if h, ok := g.cache.Get(key); ok {
		return h
	}
	h := baseHeight + int(fbm(g.noise, float64(x), float64(z))*heightRange)
	g.cache.Add(key, h)
	return h
}

// fbm evaluates octaves octaves of noise at (x, z) scaled by
// noiseFrequency, normalized back into [0, 1].
func fbm(noise opensimplex.Noise, x, z float64) float64 {
	var sum, amplitude, frequency, max float64
	amplitude = 1
	frequency = noiseFrequency
	for o := 0; o < octaves; o++ {
		sum += noise.Eval2(x*frequency, z*frequency) * amplitude
		max += amplitude
		amplitude *= persistence
		frequency *= lacunarity
	}
	return sum / max
}

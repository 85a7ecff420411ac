package meshing

import (
	"testing"

	"github.com/dantero/vkvoxel/internal/voxchunk"
	"github.com/dantero/vkvoxel/internal/voxpos"
)

func solidChunk(set func(x, y, z int) bool) *voxchunk.Chunk {
	c := voxchunk.New(voxpos.ChunkPos{})
	var blocks voxchunk.Blocks
	solid := 0
	for x := 0; x < voxpos.ChunkSize; x++ {
		for y := 0; y < voxpos.ChunkSize; y++ {
			for z := 0; z < voxpos.ChunkSize; z++ {
				if set(x, y, z) {
					blocks[voxpos.NewLocalBlockPos(uint8(x), uint8(y), uint8(z)).ToIndex()] = voxchunk.Block
					solid++
				}
			}
		}
	}
	c.SetBlocks(&blocks, solid)
	return c
}

func allAir(x, y, z int) (voxchunk.BlockId, bool) { return voxchunk.Air, true }

func TestBuildSingleBlockMesh(t *testing.T) {
	c := solidChunk(func(x, y, z int) bool { return x == 0 && y == 0 && z == 0 })
	verts := Build(c, allAir)
	// A single exposed cube is 6 faces * 2 triangles * 3 vertices.
	want := 6 * VerticesPerQuad
	if len(verts) != want {
		t.Fatalf("single block: got %d vertices, want %d", len(verts), want)
	}
}

func TestBuildTwoBlocksSeparated(t *testing.T) {
	c := solidChunk(func(x, y, z int) bool {
		return (x == 0 && y == 0 && z == 0) || (x == 2 && y == 0 && z == 0)
	})
	verts := Build(c, allAir)
	want := 12 * VerticesPerQuad
	if len(verts) != want {
		t.Fatalf("two separated blocks: got %d vertices, want %d", len(verts), want)
	}
}

func TestBuildTwoBlocksTouchingMerge(t *testing.T) {
	c := solidChunk(func(x, y, z int) bool {
		return (x == 0 || x == 1) && y == 0 && z == 0
	})
	verts := Build(c, allAir)
	// The union is a 2x1x1 cuboid: greedy merging still yields 6 faces.
	want := 6 * VerticesPerQuad
	if len(verts) != want {
		t.Fatalf("two touching blocks: got %d vertices, want %d", len(verts), want)
	}
}

func TestBuildUnloadedNeighborTreatedEmpty(t *testing.T) {
	c := solidChunk(func(x, y, z int) bool { return x == voxpos.ChunkSize-1 && y == 0 && z == 0 })
	unloaded := func(x, y, z int) (voxchunk.BlockId, bool) { return voxchunk.Air, false }
	verts := Build(c, unloaded)
	// The block touches the +X, -Y and -Z boundaries; each unloaded
	// neighbor reads as empty, so all six faces are emitted.
	want := 6 * VerticesPerQuad
	if len(verts) != want {
		t.Fatalf("unloaded neighbor: got %d vertices, want %d", len(verts), want)
	}
}

func TestBuildEmptyChunkProducesNoVertices(t *testing.T) {
	c := solidChunk(func(x, y, z int) bool { return false })
	verts := Build(c, allAir)
	if len(verts) != 0 {
		t.Fatalf("empty chunk: got %d vertices, want 0", len(verts))
	}
}

func TestBuildUngeneratedChunkReturnsNil(t *testing.T) {
	c := voxchunk.New(voxpos.ChunkPos{})
	if verts := Build(c, allAir); verts != nil {
		t.Fatalf("ungenerated chunk: got %v, want nil", verts)
	}
}

func BenchmarkBuildFullSurface(b *testing.B) {
	c := solidChunk(func(x, y, z int) bool { return y == voxpos.ChunkSize-1 })
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Build(c, allAir)
	}
}

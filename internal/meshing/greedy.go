package meshing

import (
	"github.com/dantero/vkvoxel/internal/profiling"
	"github.com/dantero/vkvoxel/internal/voxchunk"
	"github.com/dantero/vkvoxel/internal/voxpos"
)

// VertexStride is the number of uint32 words per vertex.
const VertexStride = 1

// VerticesPerQuad is the number of vertices emitted per merged face: two
// triangles sharing an edge, unindexed.
const VerticesPerQuad = 6

// MaxVerticesPerChunk bounds how large a single chunk's mesh can get: at
// most half the blocks (a 3D checkerboard) can expose all six faces, at
// VerticesPerQuad vertices each, which is 18 vertices per block.
const MaxVerticesPerChunk = voxpos.BlocksPerChunk * 18

// lightModifiers assigns a per-face brightness tier matching the order
// [-X, +X, -Y, +Y, -Z, +Z]. The values are otherwise arbitrary shading
// tiers; the two X faces share one tier and the two Z faces another.
var lightModifiers = [6]uint32{1, 1, 0, 3, 2, 2}

// NeighborBlock resolves the block immediately across a chunk boundary
// at local coordinates (x, y, z), where exactly one of x, y, z lies
// outside [0, ChunkSize). It reports false when that neighbor chunk is
// not loaded or not generated; such a neighbor is treated as empty, so
// the boundary face is emitted.
type NeighborBlock func(x, y, z int) (voxchunk.BlockId, bool)

// Build runs greedy meshing over chunk, using neighbor to resolve
// visibility across chunk borders, and returns the packed vertex buffer.
// It returns nil if chunk has no generated blocks yet.
func Build(chunk *voxchunk.Chunk, neighbor NeighborBlock) []uint32 {
	defer profiling.Track("meshing.Build")()

	blocks, ready := chunk.Blocks()
	if !ready {
		return nil
	}

	vertices := make([]uint32, 0, 1024)

	vertices = append(vertices, buildGreedyForDirection(blocks, neighbor, +1, 0, 0)...)
	vertices = append(vertices, buildGreedyForDirection(blocks, neighbor, -1, 0, 0)...)
	vertices = append(vertices, buildGreedyForDirection(blocks, neighbor, 0, +1, 0)...)
	vertices = append(vertices, buildGreedyForDirection(blocks, neighbor, 0, -1, 0)...)
	vertices = append(vertices, buildGreedyForDirection(blocks, neighbor, 0, 0, +1)...)
	vertices = append(vertices, buildGreedyForDirection(blocks, neighbor, 0, 0, -1)...)

	return vertices
}

// faceIndex maps a face normal to its slot in lightModifiers.
func faceIndex(nx, ny, nz int) int {
	switch {
	case nx < 0:
		return 0
	case nx > 0:
		return 1
	case ny < 0:
		return 2
	case ny > 0:
		return 3
	case nz < 0:
		return 4
	default:
		return 5
	}
}

// blockAt returns the block at local coordinates that may stray one
// step outside [0, ChunkSize) on a single axis, resolving across the
// chunk boundary via neighbor when so.
func blockAt(blocks *voxchunk.Blocks, neighbor NeighborBlock, x, y, z int) voxchunk.BlockId {
	const n = voxpos.ChunkSize
	if x < 0 || x >= n || y < 0 || y >= n || z < 0 || z >= n {
		id, ok := neighbor(x, y, z)
		if !ok {
			return voxchunk.Air
		}
		return id
	}
	p := voxpos.NewLocalBlockPos(uint8(x), uint8(y), uint8(z))
	return blocks[p.ToIndex()]
}

// packVertex encodes a local-space vertex position and its face's light
// tier into one uint32: bits [0:6)=x, [6:12)=y, [12:18)=z, [18:32)=light.
func packVertex(x, y, z int, light uint32) uint32 {
	return uint32(x) | uint32(y)<<6 | uint32(z)<<12 | light<<18
}

// buildGreedyForDirection performs 2D greedy meshing for one face
// direction, where (nx, ny, nz) is a normal with exactly one nonzero
// component.
func buildGreedyForDirection(blocks *voxchunk.Blocks, neighbor NeighborBlock, nx, ny, nz int) []uint32 {
	defer profiling.Track("meshing.buildGreedyForDirection")()

	const s = voxpos.ChunkSize
	var vertices []uint32
	light := lightModifiers[faceIndex(nx, ny, nz)]

	emitQuad := func(x0, y0, z0, x1, y1, z1, x2, y2, z2, x3, y3, z3 int) {
		v0 := packVertex(x0, y0, z0, light)
		v1 := packVertex(x1, y1, z1, light)
		v2 := packVertex(x2, y2, z2, light)
		v3 := packVertex(x3, y3, z3, light)
		vertices = append(vertices, v0, v1, v2, v2, v3, v0)
	}

	if nx != 0 { // Faces perpendicular to X axis, plane is Y-Z
		for x := 0; x < s; x++ {
			mask := make([]bool, s*s)
			for y := 0; y < s; y++ {
				for z := 0; z < s; z++ {
					if blockAt(blocks, neighbor, x, y, z).IsAir() {
						continue
					}
					if blockAt(blocks, neighbor, x+nx, y, z).IsAir() {
						mask[y*s+z] = true
					}
				}
			}
			i := 0
			for i < s*s {
				if !mask[i] {
					i++
					continue
				}
				y0 := i / s
				z0 := i % s
				wWidth := 1
				for z1 := z0 + 1; z1 < s && mask[y0*s+z1]; z1++ {
					wWidth++
				}
				hHeight := 1
			outerYZ:
				for y1 := y0 + 1; y1 < s; y1++ {
					for z1 := z0; z1 < z0+wWidth; z1++ {
						if !mask[y1*s+z1] {
							break outerYZ
						}
					}
					hHeight++
				}

				fx := x
				if nx > 0 {
					fx = x + 1
				}
				if nx > 0 {
					emitQuad(fx, y0, z0, fx, y0+hHeight, z0, fx, y0+hHeight, z0+wWidth, fx, y0, z0+wWidth)
				} else {
					emitQuad(fx, y0, z0, fx, y0, z0+wWidth, fx, y0+hHeight, z0+wWidth, fx, y0+hHeight, z0)
				}

				for yy := y0; yy < y0+hHeight; yy++ {
					for zz := z0; zz < z0+wWidth; zz++ {
						mask[yy*s+zz] = false
					}
				}
			}
		}
		return vertices
	}

	if ny != 0 { // Faces perpendicular to Y axis, plane is X-Z
		for y := 0; y < s; y++ {
			mask := make([]bool, s*s)
			for x := 0; x < s; x++ {
				for z := 0; z < s; z++ {
					if blockAt(blocks, neighbor, x, y, z).IsAir() {
						continue
					}
					if blockAt(blocks, neighbor, x, y+ny, z).IsAir() {
						mask[x*s+z] = true
					}
				}
			}
			i := 0
			for i < s*s {
				if !mask[i] {
					i++
					continue
				}
				x0 := i / s
				z0 := i % s
				wWidth := 1
				for z1 := z0 + 1; z1 < s && mask[x0*s+z1]; z1++ {
					wWidth++
				}
				hHeight := 1
			outerXZ:
				for x1 := x0 + 1; x1 < s; x1++ {
					for z1 := z0; z1 < z0+wWidth; z1++ {
						if !mask[x1*s+z1] {
							break outerXZ
						}
					}
					hHeight++
				}

				fy := y
				if ny > 0 {
					fy = y + 1
				}
				if ny > 0 {
					emitQuad(x0, fy, z0, x0, fy, z0+wWidth, x0+hHeight, fy, z0+wWidth, x0+hHeight, fy, z0)
				} else {
					emitQuad(x0, fy, z0, x0+hHeight, fy, z0, x0+hHeight, fy, z0+wWidth, x0, fy, z0+wWidth)
				}

				for xx := x0; xx < x0+hHeight; xx++ {
					for zz := z0; zz < z0+wWidth; zz++ {
						mask[xx*s+zz] = false
					}
				}
			}
		}
		return vertices
	}

	// nz != 0: faces perpendicular to Z axis, plane is X-Y
	for z := 0; z < s; z++ {
		mask := make([]bool, s*s)
		for x := 0; x < s; x++ {
			for y := 0; y < s; y++ {
				if blockAt(blocks, neighbor, x, y, z).IsAir() {
					continue
				}
				if blockAt(blocks, neighbor, x, y, z+nz).IsAir() {
					mask[x*s+y] = true
				}
			}
		}
		i := 0
		for i < s*s {
			if !mask[i] {
				i++
				continue
			}
			x0 := i / s
			y0 := i % s
			wWidth := 1
			for y1 := y0 + 1; y1 < s && mask[x0*s+y1]; y1++ {
				wWidth++
			}
			hHeight := 1
		outerXY:
			for x1 := x0 + 1; x1 < s; x1++ {
				for y1 := y0; y1 < y0+wWidth; y1++ {
					if !mask[x1*s+y1] {
						break outerXY
					}
				}
				hHeight++
			}

			fz := z
			if nz > 0 {
				fz = z + 1
			}
			if nz > 0 {
				emitQuad(x0, y0, fz, x0+hHeight, y0, fz, x0+hHeight, y0+wWidth, fz, x0, y0+wWidth, fz)
			} else {
				emitQuad(x0, y0, fz, x0, y0+wWidth, fz, x0+hHeight, y0+wWidth, fz, x0+hHeight, y0, fz)
			}

			for xx := x0; xx < x0+hHeight; xx++ {
				for yy := y0; yy < y0+wWidth; yy++ {
					mask[xx*s+yy] = false
				}
			}
		}
	}
	return vertices
}

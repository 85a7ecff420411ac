// Package voxpos implements the position algebra shared by every other
// package in the pipeline: block-local coordinates, chunk coordinates,
// region coordinates, and the floating camera/entity position.
package voxpos

import (
	"encoding/binary"
	"math"
)

// ChunkSize is the number of blocks along one edge of a chunk.
const ChunkSize = 32

// BlocksPerChunk is the number of blocks in a chunk.
const BlocksPerChunk = ChunkSize * ChunkSize * ChunkSize

// RegionSize is the number of chunks along one edge of a region, used
// only to amortize command-buffer recording.
const RegionSize = 8

// LocalBlockPos is a block's position relative to its owning chunk, in
// [0, ChunkSize) on every axis.
type LocalBlockPos struct {
	X, Y, Z uint8
}

// NewLocalBlockPos builds a LocalBlockPos without bounds checking; callers
// must guarantee x, y, z are all within [0, ChunkSize).
func NewLocalBlockPos(x, y, z uint8) LocalBlockPos {
	return LocalBlockPos{X: x, Y: y, Z: z}
}

// ToIndex linearizes the position into [0, BlocksPerChunk).
func (p LocalBlockPos) ToIndex() int {
	return (int(p.X)*ChunkSize+int(p.Y))*ChunkSize + int(p.Z)
}

// LocalBlockPosFromIndex is the inverse of ToIndex.
func LocalBlockPosFromIndex(i int) LocalBlockPos {
	z := i % ChunkSize
	i /= ChunkSize
	y := i % ChunkSize
	x := i / ChunkSize
	return LocalBlockPos{X: uint8(x), Y: uint8(y), Z: uint8(z)}
}

// ChunkPos is a chunk's position in chunk-grid coordinates.
type ChunkPos struct {
	X, Y, Z int64
}

// Add returns the component-wise sum of p and q.
func (p ChunkPos) Add(q ChunkPos) ChunkPos {
	return ChunkPos{p.X + q.X, p.Y + q.Y, p.Z + q.Z}
}

// ChebyshevDistance returns max(|dx|, |dy|, |dz|) between p and q, used by
// the streaming loop's load/evict radii.
func (p ChunkPos) ChebyshevDistance(q ChunkPos) int64 {
	dx := abs64(p.X - q.X)
	dy := abs64(p.Y - q.Y)
	dz := abs64(p.Z - q.Z)
	return max64(dx, max64(dy, dz))
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// AsBytes packs p into 24 bytes, little-endian, suitable for use as a
// vertex-stage push-constant.
func (p ChunkPos) AsBytes() [24]byte {
	var out [24]byte
	binary.LittleEndian.PutUint64(out[0:8], uint64(p.X))
	binary.LittleEndian.PutUint64(out[8:16], uint64(p.Y))
	binary.LittleEndian.PutUint64(out[16:24], uint64(p.Z))
	return out
}

// ChunkPosFromBytes is the inverse of AsBytes.
func ChunkPosFromBytes(b [24]byte) ChunkPos {
	return ChunkPos{
		X: int64(binary.LittleEndian.Uint64(b[0:8])),
		Y: int64(binary.LittleEndian.Uint64(b[8:16])),
		Z: int64(binary.LittleEndian.Uint64(b[16:24])),
	}
}

// Region returns the RegionPos containing p.
func (p ChunkPos) Region() RegionPos {
	return RegionPos{
		X: floorDiv(p.X, RegionSize),
		Y: floorDiv(p.Y, RegionSize),
		Z: floorDiv(p.Z, RegionSize),
	}
}

// RegionPos is a region's position in region-grid coordinates (each region
// spans RegionSize^3 chunks). Used only to group command-buffer recording.
type RegionPos struct {
	X, Y, Z int64
}

// floorDiv is integer division that rounds towards negative infinity,
// matching Rust's div_euclid semantics used for negative chunk/region
// coordinates.
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// EntityPos is a floating-point camera/entity position plus look angles.
type EntityPos struct {
	X, Y, Z       float32
	Pitch, Yaw    float32
}

// NewEntityPos constructs an EntityPos.
func NewEntityPos(x, y, z, pitch, yaw float32) EntityPos {
	return EntityPos{X: x, Y: y, Z: z, Pitch: pitch, Yaw: yaw}
}

// Chunk returns the ChunkPos containing the entity, using floor division
// so negative coordinates resolve to the chunk below/behind the origin
// rather than truncating towards zero.
func (e EntityPos) Chunk() ChunkPos {
	return ChunkPos{
		X: floorDivFloat(e.X, ChunkSize),
		Y: floorDivFloat(e.Y, ChunkSize),
		Z: floorDivFloat(e.Z, ChunkSize),
	}
}

func floorDivFloat(v float32, size int64) int64 {
	return int64(math.Floor(float64(v) / float64(size)))
}

// Package vkmem implements a first-fit suballocator over vk.DeviceMemory,
// grouping allocations by memory type so a handful of large device
// allocations can back thousands of small chunk vertex buffers and
// staging copies without hitting the platform's maxMemoryAllocationCount.
package vkmem

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// MinChunkSize is the smallest device allocation a Pool will request when
// none of its existing chunks have room; larger requests allocate exactly
// their own size.
const MinChunkSize = 1024 * 1024 * 32

// Allocator owns one Pool per physical-device memory type and routes
// allocation requests to the pool matching the caller's required
// property flags.
type Allocator struct {
	device   vk.Device
	memProps vk.PhysicalDeviceMemoryProperties
	pools    []*Pool
}

// NewAllocator builds an Allocator backed by physicalDevice's memory
// properties, with one Pool per reported memory type.
func NewAllocator(instance vk.Instance, physicalDevice vk.PhysicalDevice, device vk.Device) *Allocator {
	var props vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(physicalDevice, &props)
	props.Deref()

	pools := make([]*Pool, props.MemoryTypeCount)
	for i := range pools {
		pools[i] = newPool(device, uint32(i))
	}
	return &Allocator{device: device, memProps: props, pools: pools}
}

// Alloc returns size bytes of memory satisfying requirements and
// properties, mapped into host address space if mapped is true.
func (a *Allocator) Alloc(properties vk.MemoryPropertyFlags, requirements vk.MemoryRequirements, mapped bool) (*Allocation, error) {
	requirements.Deref()
	idx, err := memoryTypeIndex(a.memProps, properties, requirements)
	if err != nil {
		return nil, err
	}
	pool := a.pools[idx]
	alloc, err := pool.alloc(int(requirements.Size), int(requirements.Alignment), mapped)
	if err != nil {
		return nil, fmt.Errorf("alloc failed: %w", err)
	}
	alloc.allocator = a
	return alloc, nil
}

func (a *Allocator) free(alloc *Allocation) {
	a.pools[alloc.memoryTypeIndex].free(alloc)
}

// Pool owns every device allocation ("Chunk", unrelated to a voxel
// chunk) for a single memory type.
type Pool struct {
	device          vk.Device
	memoryTypeIndex uint32

	chunksIDCounter uint32 // atomic

	mu     sync.RWMutex
	chunks []*memChunk // sorted by id
}

func newPool(device vk.Device, memoryTypeIndex uint32) *Pool {
	return &Pool{device: device, memoryTypeIndex: memoryTypeIndex}
}

func (p *Pool) alloc(size, alignment int, mapped bool) (*Allocation, error) {
	p.mu.RLock()
	for _, chunk := range p.chunks {
		freeSize := chunk.size - int(atomic.LoadInt64(&chunk.used))
		if (chunk.mappedPtr != nil) == mapped && freeSize >= size {
			if alloc, ok := chunk.tryAlloc(size, alignment); ok {
				p.mu.RUnlock()
				return alloc, nil
			}
		}
	}
	p.mu.RUnlock()

	chunkSize := size
	if MinChunkSize > chunkSize {
		chunkSize = MinChunkSize
	}
	allocatedSize, memory, err := p.allocateDeviceMemory(chunkSize, size)
	if err != nil {
		return nil, err
	}
	newChunk, err := newMemChunk(p.device, 0, allocatedSize, p.memoryTypeIndex, memory, mapped)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	// Assign the id only once the write lock is held, so a concurrently
	// inserted chunk never ends up out of id order in p.chunks.
	newChunk.id = atomic.AddUint32(&p.chunksIDCounter, 1) - 1
	alloc, ok := newChunk.tryAlloc(size, alignment)
	if !ok {
		p.mu.Unlock()
		return nil, fmt.Errorf("alloc from freshly created chunk unexpectedly failed")
	}
	p.chunks = append(p.chunks, newChunk)
	p.mu.Unlock()

	return alloc, nil
}

func (p *Pool) allocateDeviceMemory(chunkSize, fallbackSize int) (int, vk.DeviceMemory, error) {
	var memory vk.DeviceMemory
	info := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  vk.DeviceSize(chunkSize),
		MemoryTypeIndex: p.memoryTypeIndex,
	}
	result := vk.AllocateMemory(p.device, &info, nil, &memory)
	if result == vk.Success {
		return chunkSize, memory, nil
	}
	if result == vk.ErrorOutOfDeviceMemory || result == vk.ErrorOutOfHostMemory {
		info.AllocationSize = vk.DeviceSize(fallbackSize)
		if result := vk.AllocateMemory(p.device, &info, nil, &memory); result != vk.Success {
			return 0, nil, fmt.Errorf("device memory allocation failed: %v", result)
		}
		return fallbackSize, memory, nil
	}
	return 0, nil, fmt.Errorf("device memory allocation failed: %v", result)
}

func (p *Pool) free(alloc *Allocation) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	i := p.findChunk(alloc.chunkID)
	if i < 0 {
		panic("vkmem: invalid chunk id in allocation when freeing")
	}
	p.chunks[i].free(alloc)
}

func (p *Pool) findChunk(id uint32) int {
	lo, hi := 0, len(p.chunks)
	for lo < hi {
		mid := (lo + hi) / 2
		if p.chunks[mid].id < id {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(p.chunks) && p.chunks[lo].id == id {
		return lo
	}
	return -1
}

// memChunk is one device allocation subdivided into first-fit blocks.
type memChunk struct {
	id              uint32
	size            int
	used            int64 // atomic
	memoryTypeIndex uint32
	memory          vk.DeviceMemory
	device          vk.Device

	mu     sync.Mutex
	blocks []memBlock // sorted by offset

	mappedPtr []byte
}

func newMemChunk(device vk.Device, id uint32, size int, memoryTypeIndex uint32, memory vk.DeviceMemory, mapped bool) (*memChunk, error) {
	c := &memChunk{
		id:              id,
		size:            size,
		memoryTypeIndex: memoryTypeIndex,
		memory:          memory,
		device:          device,
		blocks:          []memBlock{{offset: 0, size: size, free: true}},
	}
	if mapped {
		var data unsafe.Pointer
		result := vk.MapMemory(device, memory, 0, vk.DeviceSize(vk.WholeSize), 0, &data)
		if result != vk.Success {
			return nil, fmt.Errorf("memory mapping failed: %v", result)
		}
		c.mappedPtr = unsafe.Slice((*byte)(data), size)
	}
	return c, nil
}

func (c *memChunk) tryAlloc(size, alignment int) (*Allocation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.blocks {
		b := &c.blocks[i]
		alignedSize := b.alignedSize(alignment)
		if !b.free || alignedSize < size {
			continue
		}

		var prev *memBlock
		if alignedSize != b.size {
			prev = &memBlock{offset: b.offset, size: b.size - alignedSize, free: true}
		}
		newBlock := memBlock{offset: b.offset + (b.size - alignedSize), size: size, free: false}

		prevSize := 0
		if prev != nil {
			prevSize = prev.size
		}
		nextSize := b.size - (prevSize + newBlock.size)
		var next *memBlock
		if nextSize > 0 {
			next = &memBlock{offset: newBlock.offset + newBlock.size, size: nextSize, free: true}
		}

		var tailA, tailB *memBlock
		if prev != nil {
			*b = *prev
			tailA, tailB = &newBlock, next
		} else {
			*b = newBlock
			tailA, tailB = next, nil
		}

		insert := make([]memBlock, 0, 2)
		if tailA != nil {
			insert = append(insert, *tailA)
		}
		if tailB != nil {
			insert = append(insert, *tailB)
		}
		if len(insert) > 0 {
			tail := append([]memBlock{}, c.blocks[i+1:]...)
			c.blocks = append(append(c.blocks[:i+1], insert...), tail...)
		}

		var ptr []byte
		if c.mappedPtr != nil {
			ptr = c.mappedPtr[newBlock.offset : newBlock.offset+newBlock.size]
		}
		atomic.AddInt64(&c.used, int64(size))
		return &Allocation{
			memoryTypeIndex: c.memoryTypeIndex,
			memory:          c.memory,
			chunkID:         c.id,
			size:            size,
			offset:          newBlock.offset,
			data:            ptr,
		}, true
	}
	return nil, false
}

func (c *memChunk) free(alloc *Allocation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	lo, hi := 0, len(c.blocks)
	for lo < hi {
		mid := (lo + hi) / 2
		if c.blocks[mid].offset < alloc.offset {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo >= len(c.blocks) || c.blocks[lo].offset != alloc.offset {
		panic("vkmem: invalid allocation offset when freeing")
	}
	c.blocks[lo].free = true
	atomic.AddInt64(&c.used, -int64(alloc.size))
}

type memBlock struct {
	offset int
	size   int
	free   bool
}

func (b memBlock) alignedSize(alignment int) int {
	pad := 0
	if alignment > 1 {
		pad = (alignment - b.offset%alignment) % alignment
	}
	if pad > b.size {
		return 0
	}
	return b.size - pad
}

// Allocation is a live suballocation returned by Allocator.Alloc. Callers
// must call Free exactly once when done with it.
type Allocation struct {
	memoryTypeIndex uint32
	memory          vk.DeviceMemory
	chunkID         uint32
	size            int
	offset          int
	data            []byte
	buffer          vk.Buffer

	allocator *Allocator
}

// Memory returns the backing vk.DeviceMemory handle.
func (a *Allocation) Memory() vk.DeviceMemory { return a.memory }

// Size returns the allocation size in bytes.
func (a *Allocation) Size() int { return a.size }

// Offset returns the allocation's byte offset within Memory().
func (a *Allocation) Offset() int { return a.offset }

// Data returns the mapped byte slice for this allocation, or nil if the
// owning chunk was not allocated with mapped=true.
func (a *Allocation) Data() []byte { return a.data }

// Flush issues vkFlushMappedMemoryRanges over this allocation's range, for
// host-visible-but-not-coherent memory.
func (a *Allocation) Flush(device vk.Device) error {
	ranges := []vk.MappedMemoryRange{{
		SType:  vk.StructureTypeMappedMemoryRange,
		Memory: a.memory,
		Offset: vk.DeviceSize(a.offset),
		Size:   vk.DeviceSize(a.size),
	}}
	if result := vk.FlushMappedMemoryRanges(device, 1, ranges); result != vk.Success {
		return fmt.Errorf("allocation flush failed: %v", result)
	}
	return nil
}

// Free returns the allocation's space to its owning pool. Safe to call at
// most once.
func (a *Allocation) Free() {
	if a.allocator != nil {
		a.allocator.free(a)
	}
}

func memoryTypeIndex(memory vk.PhysicalDeviceMemoryProperties, properties vk.MemoryPropertyFlags, requirements vk.MemoryRequirements) (uint32, error) {
	for i := uint32(0); i < memory.MemoryTypeCount; i++ {
		suitable := requirements.MemoryTypeBits&(1<<i) != 0
		memType := memory.MemoryTypes[i]
		memType.Deref()
		if suitable && memType.PropertyFlags&properties == properties {
			return i, nil
		}
	}
	return 0, fmt.Errorf("failed to find suitable memory type")
}

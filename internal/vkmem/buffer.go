package vkmem

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

// AllocBuffer creates a vk.Buffer of size bytes with the given usage,
// allocates memory satisfying properties from the pool matching its real
// memory-type requirements, binds the buffer to that memory, and returns
// the resulting Allocation with BoundBuffer() set. mapped requests a
// host-mapped chunk, for staging buffers the CPU writes into directly.
func (a *Allocator) AllocBuffer(size int, usage vk.BufferUsageFlags, properties vk.MemoryPropertyFlags, mapped bool) (*Allocation, error) {
	info := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}
	var buf vk.Buffer
	if result := vk.CreateBuffer(a.device, &info, nil, &buf); result != vk.Success {
		return nil, fmt.Errorf("buffer creation failed: %v", result)
	}

	var reqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(a.device, buf, &reqs)
	reqs.Deref()

	alloc, err := a.Alloc(properties, reqs, mapped)
	if err != nil {
		vk.DestroyBuffer(a.device, buf, nil)
		return nil, err
	}

	if result := vk.BindBufferMemory(a.device, buf, alloc.Memory(), vk.DeviceSize(alloc.Offset())); result != vk.Success {
		alloc.Free()
		vk.DestroyBuffer(a.device, buf, nil)
		return nil, fmt.Errorf("buffer memory bind failed: %v", result)
	}

	alloc.buffer = buf
	return alloc, nil
}

// BoundBuffer returns the vk.Buffer this allocation backs, if it was
// created through AllocBuffer rather than a bare Alloc.
func (a *Allocation) BoundBuffer() vk.Buffer {
	return a.buffer
}

// FreeBuffer destroys the bound vk.Buffer (if any) and returns the
// allocation's memory to its pool. Prefer this over Free for allocations
// made via AllocBuffer.
func (a *Allocation) FreeBuffer(device vk.Device) {
	if a.buffer != nil {
		vk.DestroyBuffer(device, a.buffer, nil)
	}
	a.Free()
}

// Package uniformring implements a per-swapchain-image ring of uniform
// buffer slots, one descriptor set per image so the camera UBO for frame
// N can be written while frame N-1's command buffer is still reading
// its own slot on the GPU. Translated from original_source's
// src/render/uniform.rs (Uniforms<T>/Uniform<T>) and
// src/render/descriptors.rs (the descriptor pool/layout/set wrappers it
// builds on).
package uniformring

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"github.com/dantero/vkvoxel/internal/vkmem"
)

// Ring owns one host-visible, persistently mapped buffer subdivided into
// count slots (one per swapchain image), each bound to its own
// descriptor set at binding 0.
type Ring struct {
	device vk.Device
	pool   vk.DescriptorPool
	layout vk.DescriptorSetLayout
	sets   []vk.DescriptorSet

	alloc  *vkmem.Allocation
	stride int
	count  int
}

// New builds a Ring with count slots, each entrySize bytes, rounded up
// to the device's minUniformBufferOffsetAlignment — matching uniform.rs's
// entry_align computation, since vkCmdBindDescriptorSets's dynamic
// offsets (and a couple of drivers' static ones) require every slot to
// start on that boundary.
func New(device vk.Device, physicalDevice vk.PhysicalDevice, allocator *vkmem.Allocator, count, entrySize int) (*Ring, error) {
	var props vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(physicalDevice, &props)
	props.Deref()
	props.Limits.Deref()

	alignment := int(props.Limits.MinUniformBufferOffsetAlignment)
	if alignment == 0 {
		alignment = 1
	}
	stride := alignUp(entrySize, alignment)

	alloc, err := allocator.AllocBuffer(
		stride*count,
		vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit)|vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit),
		true,
	)
	if err != nil {
		return nil, fmt.Errorf("uniformring: buffer allocation failed: %w", err)
	}

	layout, err := newDescriptorSetLayout(device)
	if err != nil {
		alloc.FreeBuffer(device)
		return nil, err
	}

	pool, err := newDescriptorPool(device, count)
	if err != nil {
		vk.DestroyDescriptorSetLayout(device, layout, nil)
		alloc.FreeBuffer(device)
		return nil, err
	}

	layouts := make([]vk.DescriptorSetLayout, count)
	for i := range layouts {
		layouts[i] = layout
	}
	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     pool,
		DescriptorSetCount: uint32(count),
		PSetLayouts:        layouts,
	}
	sets := make([]vk.DescriptorSet, count)
	if result := vk.AllocateDescriptorSets(device, &allocInfo, sets); result != vk.Success {
		vk.DestroyDescriptorPool(device, pool, nil)
		vk.DestroyDescriptorSetLayout(device, layout, nil)
		alloc.FreeBuffer(device)
		return nil, fmt.Errorf("uniformring: descriptor set allocation failed: %v", result)
	}

	for i, set := range sets {
		bufferInfo := vk.DescriptorBufferInfo{
			Buffer: alloc.BoundBuffer(),
			Offset: vk.DeviceSize(i * stride),
			Range:  vk.DeviceSize(entrySize),
		}
		write := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set,
			DstBinding:      0,
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorTypeUniformBuffer,
			PBufferInfo:     []vk.DescriptorBufferInfo{bufferInfo},
		}
		vk.UpdateDescriptorSets(device, 1, []vk.WriteDescriptorSet{write}, 0, nil)
	}

	return &Ring{
		device: device,
		pool:   pool,
		layout: layout,
		sets:   sets,
		alloc:  alloc,
		stride: stride,
		count:  count,
	}, nil
}

func newDescriptorSetLayout(device vk.Device) (vk.DescriptorSetLayout, error) {
	binding := vk.DescriptorSetLayoutBinding{
		Binding:         0,
		DescriptorType:  vk.DescriptorTypeUniformBuffer,
		DescriptorCount: 1,
		StageFlags:      vk.ShaderStageFlags(vk.ShaderStageVertexBit),
	}
	info := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: 1,
		PBindings:    []vk.DescriptorSetLayoutBinding{binding},
	}
	var layout vk.DescriptorSetLayout
	if result := vk.CreateDescriptorSetLayout(device, &info, nil, &layout); result != vk.Success {
		return nil, fmt.Errorf("uniformring: descriptor set layout creation failed: %v", result)
	}
	return layout, nil
}

func newDescriptorPool(device vk.Device, count int) (vk.DescriptorPool, error) {
	size := vk.DescriptorPoolSize{
		Type:            vk.DescriptorTypeUniformBuffer,
		DescriptorCount: uint32(count),
	}
	info := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       uint32(count),
		PoolSizeCount: 1,
		PPoolSizes:    []vk.DescriptorPoolSize{size},
	}
	var pool vk.DescriptorPool
	if result := vk.CreateDescriptorPool(device, &info, nil, &pool); result != vk.Success {
		return nil, fmt.Errorf("uniformring: descriptor pool creation failed: %v", result)
	}
	return pool, nil
}

func alignUp(size, alignment int) int {
	if alignment <= 1 {
		return size
	}
	return (size + alignment - 1) &^ (alignment - 1)
}

// Layout returns the descriptor set layout every slot's set was
// allocated from, for building the pipeline layout.
func (r *Ring) Layout() vk.DescriptorSetLayout { return r.layout }

// DescriptorSet returns the descriptor set bound to slot index.
func (r *Ring) DescriptorSet(index int) vk.DescriptorSet { return r.sets[index] }

// Write copies data into slot index's region of the mapped buffer. The
// caller packs whatever UBO layout the shader expects (internal/camera
// packs model/view/proj mat4s) before calling this.
func (r *Ring) Write(index int, data []byte) {
	off := index * r.stride
	copy(r.alloc.Data()[off:off+len(data)], data)
}

// Destroy releases the descriptor pool, layout, and backing buffer. The
// descriptor sets themselves are freed along with the pool.
func (r *Ring) Destroy() {
	vk.DestroyDescriptorPool(r.device, r.pool, nil)
	vk.DestroyDescriptorSetLayout(r.device, r.layout, nil)
	r.alloc.FreeBuffer(r.device)
}

// Package vk wraps the thin slice of the Vulkan instance/device/command
// lifecycle this renderer needs, translated from original_source's
// src/render/devices.rs, instance.rs, and commands.rs into the
// vulkan-go binding style.
package vk

import (
	"fmt"

	vkc "github.com/vulkan-go/vulkan"
)

// CommandPool wraps a vk.CommandPool sized for short-lived, resettable
// command buffers: transient allocation flags so the driver can pick a
// cheap backing allocation, reset-command-buffer so individual buffers
// can be re-recorded without resetting the whole pool.
type CommandPool struct {
	device vkc.Device
	pool   vkc.CommandPool
}

// NewCommandPool creates a CommandPool bound to queueFamily.
func NewCommandPool(device vkc.Device, queueFamily uint32) (*CommandPool, error) {
	info := vkc.CommandPoolCreateInfo{
		SType:            vkc.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: queueFamily,
		Flags: vkc.CommandPoolCreateFlags(vkc.CommandPoolCreateResetCommandBufferBit) |
			vkc.CommandPoolCreateFlags(vkc.CommandPoolCreateTransientBit),
	}
	var pool vkc.CommandPool
	if result := vkc.CreateCommandPool(device, &info, nil, &pool); result != vkc.Success {
		return nil, fmt.Errorf("command pool creation failed: %v", result)
	}
	return &CommandPool{device: device, pool: pool}, nil
}

// AllocBuffers allocates count command buffers from the pool, primary
// unless secondary is true.
func (p *CommandPool) AllocBuffers(count int, secondary bool) ([]vkc.CommandBuffer, error) {
	level := vkc.CommandBufferLevelPrimary
	if secondary {
		level = vkc.CommandBufferLevelSecondary
	}
	info := vkc.CommandBufferAllocateInfo{
		SType:              vkc.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        p.pool,
		Level:              level,
		CommandBufferCount: uint32(count),
	}
	buffers := make([]vkc.CommandBuffer, count)
	if result := vkc.AllocateCommandBuffers(p.device, &info, buffers); result != vkc.Success {
		return nil, fmt.Errorf("command buffer allocation failed: %v", result)
	}
	return buffers, nil
}

// ReallocBuffers grows or shrinks buffers to newCount entries, freeing
// the trimmed tail or allocating the extra buffers needed, matching
// original_source's realloc_buffers.
func (p *CommandPool) ReallocBuffers(buffers []vkc.CommandBuffer, newCount int, secondary bool) ([]vkc.CommandBuffer, error) {
	oldCount := len(buffers)
	if oldCount == newCount {
		return buffers, nil
	}
	if newCount < oldCount {
		trimmed := buffers[newCount:]
		vkc.FreeCommandBuffers(p.device, p.pool, uint32(len(trimmed)), trimmed)
		return buffers[:newCount], nil
	}
	extra, err := p.AllocBuffers(newCount-oldCount, secondary)
	if err != nil {
		return nil, err
	}
	return append(buffers, extra...), nil
}

// Reset recycles every command buffer allocated from the pool at once.
func (p *CommandPool) Reset() error {
	if result := vkc.ResetCommandPool(p.device, p.pool, vkc.CommandPoolResetFlags(0)); result != vkc.Success {
		return fmt.Errorf("command pool reset failed: %v", result)
	}
	return nil
}

// Destroy releases the pool and every command buffer allocated from it.
func (p *CommandPool) Destroy() {
	vkc.DestroyCommandPool(p.device, p.pool, nil)
}

// RunOnce allocates a single primary command buffer, records body into
// it, submits it to queue, and blocks until it completes — for one-shot
// setup work like the initial image-layout transitions and the first
// vertex-buffer copies before the mesh pipeline's own workers take over.
func RunOnce(device vkc.Device, pool *CommandPool, queue vkc.Queue, body func(cmd vkc.CommandBuffer)) error {
	bufs, err := pool.AllocBuffers(1, false)
	if err != nil {
		return err
	}
	cmd := bufs[0]
	defer vkc.FreeCommandBuffers(device, pool.pool, 1, []vkc.CommandBuffer{cmd})

	beginInfo := vkc.CommandBufferBeginInfo{
		SType: vkc.StructureTypeCommandBufferBeginInfo,
		Flags: vkc.CommandBufferUsageFlags(vkc.CommandBufferUsageOneTimeSubmitBit),
	}
	if result := vkc.BeginCommandBuffer(cmd, &beginInfo); result != vkc.Success {
		return fmt.Errorf("command buffer begin failed: %v", result)
	}
	body(cmd)
	if result := vkc.EndCommandBuffer(cmd); result != vkc.Success {
		return fmt.Errorf("command buffer end failed: %v", result)
	}

	fenceInfo := vkc.FenceCreateInfo{SType: vkc.StructureTypeFenceCreateInfo}
	var fence vkc.Fence
	if result := vkc.CreateFence(device, &fenceInfo, nil, &fence); result != vkc.Success {
		return fmt.Errorf("fence creation failed: %v", result)
	}
	defer vkc.DestroyFence(device, fence, nil)

	submit := vkc.SubmitInfo{
		SType:              vkc.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vkc.CommandBuffer{cmd},
	}
	if result := vkc.QueueSubmit(queue, 1, []vkc.SubmitInfo{submit}, fence); result != vkc.Success {
		return fmt.Errorf("queue submit failed: %v", result)
	}
	if result := vkc.WaitForFences(device, 1, []vkc.Fence{fence}, vkc.Bool32(vkc.True), ^uint64(0)); result != vkc.Success {
		return fmt.Errorf("wait for fence failed: %v", result)
	}
	return nil
}

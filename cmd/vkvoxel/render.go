package main

import (
	"fmt"

	vkc "github.com/vulkan-go/vulkan"

	"github.com/dantero/vkvoxel/internal/regioncache"
	"github.com/dantero/vkvoxel/internal/uniformring"
	"github.com/dantero/vkvoxel/internal/vk"
)

// recordPrimaryBuffer begins the render pass for swapchain image
// imageIndex, executes every loaded region's secondary command buffer
// inside it, and ends the pass. Matches original_source's
// src/render/renderer.rs record_frame: the primary buffer never binds a
// pipeline or draws itself, it only composes per-region secondaries.
func recordPrimaryBuffer(
	cmd vkc.CommandBuffer,
	imageIndex int,
	renderPass *vk.RenderPass,
	framebuffers *vk.Framebuffers,
	swapchain *vk.Swapchain,
	regions *regioncache.Manager,
	recordRegion func(imageIndex int) regioncache.RecordFunc,
) error {
	if result := vkc.ResetCommandBuffer(cmd, 0); result != vkc.Success {
		return fmt.Errorf("primary command buffer reset failed: %v", result)
	}

	beginInfo := vkc.CommandBufferBeginInfo{SType: vkc.StructureTypeCommandBufferBeginInfo}
	if result := vkc.BeginCommandBuffer(cmd, &beginInfo); result != vkc.Success {
		return fmt.Errorf("primary command buffer begin failed: %v", result)
	}

	clearColor := vkc.NewClearValue([]float32{0.53, 0.75, 0.93, 1.0})
	clearDepth := vkc.NewClearDepthStencil(1.0, 0)
	clearValues := []vkc.ClearValue{clearColor, clearDepth}

	rpBegin := vkc.RenderPassBeginInfo{
		SType:       vkc.StructureTypeRenderPassBeginInfo,
		RenderPass:  renderPass.Handle(),
		Framebuffer: framebuffers.Get(imageIndex),
		RenderArea: vkc.Rect2D{
			Offset: vkc.Offset2D{X: 0, Y: 0},
			Extent: swapchain.Extent,
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	vkc.CmdBeginRenderPass(cmd, &rpBegin, vkc.SubpassContentsSecondaryCommandBuffers)

	record := recordRegion(imageIndex)
	var secondaries []vkc.CommandBuffer
	for _, pos := range regions.Positions() {
		buf, err := regions.FetchCommandBuffer(pos, imageIndex, record)
		if err != nil {
			return fmt.Errorf("recording region %+v: %w", pos, err)
		}
		secondaries = append(secondaries, buf)
	}
	if len(secondaries) > 0 {
		vkc.CmdExecuteCommands(cmd, uint32(len(secondaries)), secondaries)
	}

	vkc.CmdEndRenderPass(cmd)
	if result := vkc.EndCommandBuffer(cmd); result != vkc.Success {
		return fmt.Errorf("primary command buffer end failed: %v", result)
	}
	return nil
}

// recordRegionCommands records one region's secondary command buffer:
// bind the pipeline and this frame's camera descriptor set once, then
// per chunk push its position and draw its vertex buffer. Matches
// regioncache.RecordFunc and original_source's record_commands.
func recordRegionCommands(
	buf vkc.CommandBuffer,
	pipeline *vk.Pipeline,
	ring *uniformring.Ring,
	imageIndex int,
	renderPass *vk.RenderPass,
	framebuffers *vk.Framebuffers,
	swapchain *vk.Swapchain,
	chunks []regioncache.RegionChunk,
) error {
	inheritance := vkc.CommandBufferInheritanceInfo{
		SType:      vkc.StructureTypeCommandBufferInheritanceInfo,
		RenderPass: renderPass.Handle(),
		Subpass:    0,
		Framebuffer: framebuffers.Get(imageIndex),
	}
	beginInfo := vkc.CommandBufferBeginInfo{
		SType:            vkc.StructureTypeCommandBufferBeginInfo,
		Flags:            vkc.CommandBufferUsageFlags(vkc.CommandBufferUsageRenderPassContinueBit),
		PInheritanceInfo: &inheritance,
	}
	if result := vkc.BeginCommandBuffer(buf, &beginInfo); result != vkc.Success {
		return fmt.Errorf("region command buffer begin failed: %v", result)
	}

	vkc.CmdBindPipeline(buf, vkc.PipelineBindPointGraphics, pipeline.Handle())
	descriptorSet := ring.DescriptorSet(imageIndex)
	vkc.CmdBindDescriptorSets(buf, vkc.PipelineBindPointGraphics, pipeline.Layout(), 0, 1, []vkc.DescriptorSet{descriptorSet}, 0, nil)

	for _, rc := range chunks {
		push := rc.Pos.AsBytes()
		vkc.CmdPushConstants(buf, pipeline.Layout(), vkc.ShaderStageFlags(vkc.ShaderStageVertexBit), 0, uint32(len(push)), push[:])

		vertexBuffer := rc.Vertex.Alloc.BoundBuffer()
		offsets := []vkc.DeviceSize{0}
		vkc.CmdBindVertexBuffers(buf, 0, 1, []vkc.Buffer{vertexBuffer}, offsets)
		vkc.CmdDraw(buf, rc.Vertex.Vertices, 1, 0, 0)
	}

	if result := vkc.EndCommandBuffer(buf); result != vkc.Success {
		return fmt.Errorf("region command buffer end failed: %v", result)
	}
	return nil
}

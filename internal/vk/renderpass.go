package vk

import (
	"fmt"

	vkc "github.com/vulkan-go/vulkan"
)

// DepthFormat is the depth-buffer format this renderer requests; picked
// for broad hardware support rather than probed per device, since every
// desktop Vulkan driver this renders on supports it.
const DepthFormat = vkc.FormatD32Sfloat

// RenderPass wraps a vk.RenderPass with one color attachment and an
// optional depth attachment, translated from original_source's
// src/render/render_pass.rs (RenderPassCreationOptions::default/
// with_depth).
type RenderPass struct {
	device  vkc.Device
	handle  vkc.RenderPass
	hasDepth bool
}

// NewRenderPass builds a render pass targeting swapchain's color format,
// with a depth attachment when withDepth is true.
func NewRenderPass(device *Device, swapchain *Swapchain, withDepth bool) (*RenderPass, error) {
	colorAttachment := vkc.AttachmentDescription{
		Format:         swapchain.Format,
		Samples:        vkc.SampleCount1Bit,
		LoadOp:         vkc.AttachmentLoadOpClear,
		StoreOp:        vkc.AttachmentStoreOpStore,
		StencilLoadOp:  vkc.AttachmentLoadOpDontCare,
		StencilStoreOp: vkc.AttachmentStoreOpDontCare,
		InitialLayout:  vkc.ImageLayoutUndefined,
		FinalLayout:    vkc.ImageLayoutPresentSrc,
	}
	colorRef := vkc.AttachmentReference{Attachment: 0, Layout: vkc.ImageLayoutColorAttachmentOptimal}

	attachments := []vkc.AttachmentDescription{colorAttachment}
	subpass := vkc.SubpassDescription{
		PipelineBindPoint:    vkc.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments:    []vkc.AttachmentReference{colorRef},
	}

	dependency := vkc.SubpassDependency{
		SrcSubpass:    vkc.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vkc.PipelineStageFlags(vkc.PipelineStageColorAttachmentOutputBit),
		SrcAccessMask: 0,
		DstStageMask:  vkc.PipelineStageFlags(vkc.PipelineStageColorAttachmentOutputBit),
		DstAccessMask: vkc.AccessFlags(vkc.AccessColorAttachmentWriteBit),
	}

	if withDepth {
		depthAttachment := vkc.AttachmentDescription{
			Format:         DepthFormat,
			Samples:        vkc.SampleCount1Bit,
			LoadOp:         vkc.AttachmentLoadOpClear,
			StoreOp:        vkc.AttachmentStoreOpDontCare,
			StencilLoadOp:  vkc.AttachmentLoadOpDontCare,
			StencilStoreOp: vkc.AttachmentStoreOpDontCare,
			InitialLayout:  vkc.ImageLayoutUndefined,
			FinalLayout:    vkc.ImageLayoutDepthStencilAttachmentOptimal,
		}
		depthRef := vkc.AttachmentReference{Attachment: 1, Layout: vkc.ImageLayoutDepthStencilAttachmentOptimal}
		attachments = append(attachments, depthAttachment)
		subpass.PDepthStencilAttachment = &depthRef

		dependency.SrcStageMask |= vkc.PipelineStageFlags(vkc.PipelineStageEarlyFragmentTestsBit)
		dependency.DstStageMask |= vkc.PipelineStageFlags(vkc.PipelineStageEarlyFragmentTestsBit)
		dependency.DstAccessMask |= vkc.AccessFlags(vkc.AccessDepthStencilAttachmentWriteBit)
	}

	info := vkc.RenderPassCreateInfo{
		SType:           vkc.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vkc.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vkc.SubpassDependency{dependency},
	}

	var handle vkc.RenderPass
	if result := vkc.CreateRenderPass(device.Handle(), &info, nil, &handle); result != vkc.Success {
		return nil, fmt.Errorf("render pass creation failed: %v", result)
	}
	return &RenderPass{device: device.Handle(), handle: handle, hasDepth: withDepth}, nil
}

// Handle returns the raw vk.RenderPass.
func (r *RenderPass) Handle() vkc.RenderPass { return r.handle }

// HasDepth reports whether this render pass carries a depth attachment.
func (r *RenderPass) HasDepth() bool { return r.hasDepth }

// Destroy releases the render pass.
func (r *RenderPass) Destroy() {
	vkc.DestroyRenderPass(r.device, r.handle, nil)
}

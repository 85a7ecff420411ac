package vk

import (
	"fmt"

	vkc "github.com/vulkan-go/vulkan"
)

// Framebuffers owns one vk.Framebuffer per swapchain image, translated
// from original_source's src/render/framebuffers.rs.
type Framebuffers struct {
	device       vkc.Device
	framebuffers []vkc.Framebuffer
}

// NewFramebuffers builds one framebuffer per swapchain image, each
// bound to renderPass and sized to swapchain's extent. depthView, if
// non-nil, is attached alongside each color view when renderPass was
// built with a depth attachment.
func NewFramebuffers(device *Device, swapchain *Swapchain, renderPass *RenderPass, depthView vkc.ImageView) (*Framebuffers, error) {
	fbs := &Framebuffers{device: device.Handle()}
	fbs.framebuffers = make([]vkc.Framebuffer, swapchain.ImageCount())

	for i := 0; i < swapchain.ImageCount(); i++ {
		attachments := []vkc.ImageView{swapchain.ImageView(i)}
		if renderPass.HasDepth() {
			attachments = append(attachments, depthView)
		}
		info := vkc.FramebufferCreateInfo{
			SType:           vkc.StructureTypeFramebufferCreateInfo,
			RenderPass:      renderPass.Handle(),
			AttachmentCount: uint32(len(attachments)),
			PAttachments:    attachments,
			Width:           swapchain.Extent.Width,
			Height:          swapchain.Extent.Height,
			Layers:          1,
		}
		var fb vkc.Framebuffer
		if result := vkc.CreateFramebuffer(device.Handle(), &info, nil, &fb); result != vkc.Success {
			fbs.Destroy()
			return nil, fmt.Errorf("framebuffer %d creation failed: %v", i, result)
		}
		fbs.framebuffers[i] = fb
	}
	return fbs, nil
}

// Count returns the number of framebuffers (one per swapchain image).
func (f *Framebuffers) Count() int { return len(f.framebuffers) }

// Get returns the framebuffer for swapchain image index i.
func (f *Framebuffers) Get(i int) vkc.Framebuffer { return f.framebuffers[i] }

// Destroy releases every framebuffer.
func (f *Framebuffers) Destroy() {
	for _, fb := range f.framebuffers {
		if fb != nil {
			vkc.DestroyFramebuffer(f.device, fb, nil)
		}
	}
}

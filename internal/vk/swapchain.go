package vk

import (
	"fmt"

	"github.com/go-gl/glfw/v3.3/glfw"
	vkc "github.com/vulkan-go/vulkan"
)

// swapchainSupport captures a physical device's presentation capabilities
// for one surface, translated from original_source's
// src/render/swapchain.rs's SwapchainSupport::get.
type swapchainSupport struct {
	capabilities vkc.SurfaceCapabilities
	formats      []vkc.SurfaceFormat
	presentModes []vkc.PresentMode
}

func getSwapchainSupport(physical vkc.PhysicalDevice, surface vkc.Surface) (swapchainSupport, error) {
	var s swapchainSupport

	if result := vkc.GetPhysicalDeviceSurfaceCapabilities(physical, surface, &s.capabilities); result != vkc.Success {
		return s, fmt.Errorf("querying surface capabilities failed: %v", result)
	}
	s.capabilities.Deref()
	s.capabilities.CurrentExtent.Deref()
	s.capabilities.MinImageExtent.Deref()
	s.capabilities.MaxImageExtent.Deref()

	var formatCount uint32
	vkc.GetPhysicalDeviceSurfaceFormats(physical, surface, &formatCount, nil)
	s.formats = make([]vkc.SurfaceFormat, formatCount)
	vkc.GetPhysicalDeviceSurfaceFormats(physical, surface, &formatCount, s.formats)
	for i := range s.formats {
		s.formats[i].Deref()
	}

	var modeCount uint32
	vkc.GetPhysicalDeviceSurfacePresentModes(physical, surface, &modeCount, nil)
	s.presentModes = make([]vkc.PresentMode, modeCount)
	vkc.GetPhysicalDeviceSurfacePresentModes(physical, surface, &modeCount, s.presentModes)

	return s, nil
}

// bestFormat prefers sRGB B8G8R8A8 with the standard non-linear color
// space, falling back to whatever the surface lists first.
func (s swapchainSupport) bestFormat() vkc.SurfaceFormat {
	for _, f := range s.formats {
		if f.Format == vkc.FormatB8g8r8a8Srgb && f.ColorSpace == vkc.ColorSpaceSrgbNonlinear {
			return f
		}
	}
	return s.formats[0]
}

// bestPresentMode prefers FIFO (guaranteed present, no tearing); a bench
// run swaps to mailbox so the fly-through isn't paced by vsync.
func (s swapchainSupport) bestPresentMode(preferMailbox bool) vkc.PresentMode {
	if preferMailbox {
		for _, m := range s.presentModes {
			if m == vkc.PresentModeMailbox {
				return m
			}
		}
	}
	return vkc.PresentModeFifo
}

func (s swapchainSupport) extent(window *glfw.Window) vkc.Extent2D {
	const u32Max = ^uint32(0)
	if s.capabilities.CurrentExtent.Width != u32Max {
		return s.capabilities.CurrentExtent
	}
	width, height := window.GetFramebufferSize()
	w := clampU32(uint32(width), s.capabilities.MinImageExtent.Width, s.capabilities.MaxImageExtent.Width)
	h := clampU32(uint32(height), s.capabilities.MinImageExtent.Height, s.capabilities.MaxImageExtent.Height)
	return vkc.Extent2D{Width: w, Height: h}
}

func clampU32(v, lo, hi uint32) uint32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Swapchain owns the presentable image chain plus one view per image,
// translated from swapchain.rs's Swapchain.
type Swapchain struct {
	device vkc.Device
	handle vkc.Swapchain

	Format vkc.Format
	Extent vkc.Extent2D

	images     []vkc.Image
	imageViews []vkc.ImageView
}

// NewSwapchain creates a swapchain for device/surface sized to window's
// current framebuffer, preferring mailbox presentation when bench is
// true. old, if non-nil, is passed as OldSwapchain so the driver can
// reuse resources during a resize-triggered recreation.
func NewSwapchain(device *Device, surface *Surface, window *glfw.Window, bench bool, old *Swapchain) (*Swapchain, error) {
	support, err := getSwapchainSupport(device.PhysicalHandle(), surface.Handle())
	if err != nil {
		return nil, err
	}
	format := support.bestFormat()
	presentMode := support.bestPresentMode(bench)
	extent := support.extent(window)

	imageCount := support.capabilities.MinImageCount + 1
	if support.capabilities.MaxImageCount > 0 && imageCount > support.capabilities.MaxImageCount {
		imageCount = support.capabilities.MaxImageCount
	}

	families := device.Families()
	sameFamily := families.Graphics == families.Present
	sharingMode := vkc.SharingModeExclusive
	var queueFamilyIndices []uint32
	if !sameFamily {
		sharingMode = vkc.SharingModeConcurrent
		queueFamilyIndices = []uint32{families.Graphics, families.Present}
	}

	var oldHandle vkc.Swapchain
	if old != nil {
		oldHandle = old.handle
	}

	createInfo := vkc.SwapchainCreateInfo{
		SType:                 vkc.StructureTypeSwapchainCreateInfo,
		Surface:               surface.Handle(),
		MinImageCount:         imageCount,
		ImageFormat:           format.Format,
		ImageColorSpace:       format.ColorSpace,
		ImageExtent:           extent,
		ImageArrayLayers:      1,
		ImageUsage:            vkc.ImageUsageFlags(vkc.ImageUsageColorAttachmentBit),
		ImageSharingMode:      sharingMode,
		QueueFamilyIndexCount: uint32(len(queueFamilyIndices)),
		PQueueFamilyIndices:   queueFamilyIndices,
		PreTransform:          support.capabilities.CurrentTransform,
		CompositeAlpha:        vkc.CompositeAlphaOpaqueBit,
		PresentMode:           presentMode,
		Clipped:               vkc.True,
		OldSwapchain:          oldHandle,
	}

	var handle vkc.Swapchain
	if result := vkc.CreateSwapchain(device.Handle(), &createInfo, nil, &handle); result != vkc.Success {
		return nil, fmt.Errorf("swapchain creation failed: %v", result)
	}

	sc := &Swapchain{device: device.Handle(), handle: handle, Format: format.Format, Extent: extent}
	var count uint32
	vkc.GetSwapchainImages(device.Handle(), handle, &count, nil)
	sc.images = make([]vkc.Image, count)
	vkc.GetSwapchainImages(device.Handle(), handle, &count, sc.images)

	sc.imageViews = make([]vkc.ImageView, count)
	for i, image := range sc.images {
		view, err := newImageView(device.Handle(), image, format.Format, vkc.ImageAspectFlags(vkc.ImageAspectColorBit))
		if err != nil {
			sc.destroyViews()
			vkc.DestroySwapchain(device.Handle(), handle, nil)
			return nil, err
		}
		sc.imageViews[i] = view
	}
	return sc, nil
}

func newImageView(device vkc.Device, image vkc.Image, format vkc.Format, aspect vkc.ImageAspectFlags) (vkc.ImageView, error) {
	info := vkc.ImageViewCreateInfo{
		SType:    vkc.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: vkc.ImageViewType2d,
		Format:   format,
		Components: vkc.ComponentMapping{
			R: vkc.ComponentSwizzleIdentity,
			G: vkc.ComponentSwizzleIdentity,
			B: vkc.ComponentSwizzleIdentity,
			A: vkc.ComponentSwizzleIdentity,
		},
		SubresourceRange: vkc.ImageSubresourceRange{
			AspectMask:     aspect,
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}
	var view vkc.ImageView
	if result := vkc.CreateImageView(device, &info, nil, &view); result != vkc.Success {
		return nil, fmt.Errorf("image view creation failed: %v", result)
	}
	return view, nil
}

// Handle returns the raw vk.Swapchain.
func (s *Swapchain) Handle() vkc.Swapchain { return s.handle }

// ImageCount returns the number of presentable images, which callers use
// to size per-image resources (uniform ring slots, regioncache buffers,
// primary command buffers, framebuffers).
func (s *Swapchain) ImageCount() int { return len(s.images) }

// ImageView returns the color image view for swapchain image index i.
func (s *Swapchain) ImageView(i int) vkc.ImageView { return s.imageViews[i] }

func (s *Swapchain) destroyViews() {
	for _, v := range s.imageViews {
		vkc.DestroyImageView(s.device, v, nil)
	}
}

// Destroy releases every image view and the swapchain itself. It does
// not destroy the images (owned by the swapchain) or the surface.
func (s *Swapchain) Destroy() {
	s.destroyViews()
	vkc.DestroySwapchain(s.device, s.handle, nil)
}

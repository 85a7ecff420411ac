package vk

import (
	"fmt"

	vkc "github.com/vulkan-go/vulkan"
)

// DepthImage is a single dedicated depth-attachment image, sized to the
// swapchain's extent and recreated alongside it. Unlike chunk vertex
// buffers it isn't suballocated through internal/vkmem: there's exactly
// one of these per swapchain, so a dedicated allocation costs nothing
// and keeps the render-target lifecycle independent of the chunk
// streaming allocator.
type DepthImage struct {
	device vkc.Device
	image  vkc.Image
	memory vkc.DeviceMemory
	view   vkc.ImageView
}

// NewDepthImage allocates a DepthFormat image matching swapchain's
// extent and a view onto it, for use as RenderPass's depth attachment.
func NewDepthImage(device *Device, swapchain *Swapchain) (*DepthImage, error) {
	info := vkc.ImageCreateInfo{
		SType:       vkc.StructureTypeImageCreateInfo,
		ImageType:   vkc.ImageType2d,
		Format:      DepthFormat,
		Extent:      vkc.Extent3D{Width: swapchain.Extent.Width, Height: swapchain.Extent.Height, Depth: 1},
		MipLevels:   1,
		ArrayLayers: 1,
		Samples:     vkc.SampleCount1Bit,
		Tiling:      vkc.ImageTilingOptimal,
		Usage:       vkc.ImageUsageFlags(vkc.ImageUsageDepthStencilAttachmentBit),
		SharingMode: vkc.SharingModeExclusive,
	}
	var image vkc.Image
	if result := vkc.CreateImage(device.Handle(), &info, nil, &image); result != vkc.Success {
		return nil, fmt.Errorf("depth image creation failed: %v", result)
	}

	var reqs vkc.MemoryRequirements
	vkc.GetImageMemoryRequirements(device.Handle(), image, &reqs)
	reqs.Deref()

	var memProps vkc.PhysicalDeviceMemoryProperties
	vkc.GetPhysicalDeviceMemoryProperties(device.PhysicalHandle(), &memProps)
	memProps.Deref()

	typeIndex, err := findDeviceLocalMemoryType(memProps, reqs)
	if err != nil {
		vkc.DestroyImage(device.Handle(), image, nil)
		return nil, err
	}

	allocInfo := vkc.MemoryAllocateInfo{
		SType:           vkc.StructureTypeMemoryAllocateInfo,
		AllocationSize:  reqs.Size,
		MemoryTypeIndex: typeIndex,
	}
	var memory vkc.DeviceMemory
	if result := vkc.AllocateMemory(device.Handle(), &allocInfo, nil, &memory); result != vkc.Success {
		vkc.DestroyImage(device.Handle(), image, nil)
		return nil, fmt.Errorf("depth image memory allocation failed: %v", result)
	}
	if result := vkc.BindImageMemory(device.Handle(), image, memory, 0); result != vkc.Success {
		vkc.FreeMemory(device.Handle(), memory, nil)
		vkc.DestroyImage(device.Handle(), image, nil)
		return nil, fmt.Errorf("depth image memory bind failed: %v", result)
	}

	view, err := newImageView(device.Handle(), image, DepthFormat, vkc.ImageAspectFlags(vkc.ImageAspectDepthBit))
	if err != nil {
		vkc.FreeMemory(device.Handle(), memory, nil)
		vkc.DestroyImage(device.Handle(), image, nil)
		return nil, err
	}

	return &DepthImage{device: device.Handle(), image: image, memory: memory, view: view}, nil
}

func findDeviceLocalMemoryType(props vkc.PhysicalDeviceMemoryProperties, reqs vkc.MemoryRequirements) (uint32, error) {
	for i := uint32(0); i < props.MemoryTypeCount; i++ {
		if reqs.MemoryTypeBits&(1<<i) == 0 {
			continue
		}
		props.MemoryTypes[i].Deref()
		if props.MemoryTypes[i].PropertyFlags&vkc.MemoryPropertyFlags(vkc.MemoryPropertyDeviceLocalBit) != 0 {
			return i, nil
		}
	}
	return 0, fmt.Errorf("no device-local memory type fits depth image requirements")
}

// View returns the depth image's view, for Framebuffers to attach.
func (d *DepthImage) View() vkc.ImageView { return d.view }

// Destroy releases the view, image, and its backing memory.
func (d *DepthImage) Destroy() {
	vkc.DestroyImageView(d.device, d.view, nil)
	vkc.DestroyImage(d.device, d.image, nil)
	vkc.FreeMemory(d.device, d.memory, nil)
}

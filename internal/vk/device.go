package vk

import (
	"fmt"

	vkc "github.com/vulkan-go/vulkan"
)

// requiredDeviceExtensions are the extensions every candidate physical
// device must report before it is even scored.
var requiredDeviceExtensions = []string{vkc.KhrSwapchainExtensionName + "\x00"}

// QueueFamilies records the family indices this renderer needs: a
// graphics-capable family, a family that can present to Surface, and a
// family used for the mesh pipeline's buffer uploads (dedicated transfer
// if the device offers one, the graphics family otherwise).
type QueueFamilies struct {
	Graphics uint32
	Present  uint32
	Transfer uint32
}

// unique returns the distinct family indices among the three queue
// roles; on most integrated GPUs that is a single family.
func (q QueueFamilies) unique() []uint32 {
	seen := map[uint32]bool{}
	var out []uint32
	for _, f := range []uint32{q.Graphics, q.Present, q.Transfer} {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}

// Device wraps a logical vk.Device plus the physical device it was
// created from and the queues resolved for it, translated from
// original_source's src/render/devices.rs (pick_physical/filter_device/
// score_device) and src/render/queues.rs (family selection).
type Device struct {
	physical vkc.PhysicalDevice
	handle   vkc.Device
	families QueueFamilies

	graphicsQueue vkc.Queue
	presentQueue  vkc.Queue
	transferQueue vkc.Queue
}

// NewDevice picks the best-scoring physical device that can present to
// surface and creates a logical device with graphics, present, and
// transfer queues.
func NewDevice(instance *Instance, surface *Surface) (*Device, error) {
	physical, families, err := pickPhysicalDevice(instance.Handle(), surface.Handle())
	if err != nil {
		return nil, err
	}

	families32 := families.unique()
	priority := []float32{1.0}
	queueInfos := make([]vkc.DeviceQueueCreateInfo, len(families32))
	for i, family := range families32 {
		queueInfos[i] = vkc.DeviceQueueCreateInfo{
			SType:            vkc.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: family,
			QueueCount:       1,
			PQueuePriorities: priority,
		}
	}

	var features vkc.PhysicalDeviceFeatures
	extensions := make([]string, len(requiredDeviceExtensions))
	copy(extensions, requiredDeviceExtensions)

	createInfo := vkc.DeviceCreateInfo{
		SType:                   vkc.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
		PEnabledFeatures:        &features,
	}

	var handle vkc.Device
	if result := vkc.CreateDevice(physical, &createInfo, nil, &handle); result != vkc.Success {
		return nil, fmt.Errorf("logical device creation failed: %v", result)
	}
	vkc.InitDevice(handle, physical, instance.Handle(), vkc.NilProcAddr)

	d := &Device{physical: physical, handle: handle, families: families}
	vkc.GetDeviceQueue(handle, families.Graphics, 0, &d.graphicsQueue)
	vkc.GetDeviceQueue(handle, families.Present, 0, &d.presentQueue)
	vkc.GetDeviceQueue(handle, families.Transfer, 0, &d.transferQueue)
	return d, nil
}

func pickPhysicalDevice(instance vkc.Instance, surface vkc.Surface) (vkc.PhysicalDevice, QueueFamilies, error) {
	var count uint32
	vkc.EnumeratePhysicalDevices(instance, &count, nil)
	if count == 0 {
		return nil, QueueFamilies{}, fmt.Errorf("no Vulkan-capable physical devices found")
	}
	candidates := make([]vkc.PhysicalDevice, count)
	vkc.EnumeratePhysicalDevices(instance, &count, candidates)

	var best vkc.PhysicalDevice
	var bestFamilies QueueFamilies
	bestScore := -1
	for _, candidate := range candidates {
		families, ok := filterDevice(candidate, surface)
		if !ok {
			continue
		}
		score := scoreDevice(candidate)
		if score > bestScore {
			bestScore = score
			best = candidate
			bestFamilies = families
		}
	}
	if best == nil {
		return nil, QueueFamilies{}, fmt.Errorf("no physical device satisfies graphics/present/swapchain requirements")
	}
	return best, bestFamilies, nil
}

// filterDevice reports whether candidate has a graphics-capable family,
// a family that can present to surface, and supports every required
// device extension, matching devices.rs's filter_device.
func filterDevice(candidate vkc.PhysicalDevice, surface vkc.Surface) (QueueFamilies, bool) {
	if !deviceSupportsExtensions(candidate) {
		return QueueFamilies{}, false
	}

	var count uint32
	vkc.GetPhysicalDeviceQueueFamilyProperties(candidate, &count, nil)
	props := make([]vkc.QueueFamilyProperties, count)
	vkc.GetPhysicalDeviceQueueFamilyProperties(candidate, &count, props)

	graphics, hasGraphics := uint32(0), false
	transfer, hasDedicatedTransfer := uint32(0), false
	present, hasPresent := uint32(0), false

	for i := uint32(0); i < count; i++ {
		props[i].Deref()
		flags := props[i].QueueFlags
		if flags&vkc.QueueFlags(vkc.QueueGraphicsBit) != 0 && !hasGraphics {
			graphics, hasGraphics = i, true
		}
		if flags&vkc.QueueFlags(vkc.QueueTransferBit) != 0 && flags&vkc.QueueFlags(vkc.QueueGraphicsBit) == 0 && !hasDedicatedTransfer {
			transfer, hasDedicatedTransfer = i, true
		}
		var presentSupport vkc.Bool32
		vkc.GetPhysicalDeviceSurfaceSupport(candidate, i, surface, &presentSupport)
		if presentSupport != 0 && !hasPresent {
			present, hasPresent = i, true
		}
	}
	if !hasGraphics || !hasPresent {
		return QueueFamilies{}, false
	}
	if !hasDedicatedTransfer {
		transfer = graphics
	}

	if !swapchainAdequate(candidate, surface) {
		return QueueFamilies{}, false
	}
	return QueueFamilies{Graphics: graphics, Present: present, Transfer: transfer}, true
}

func deviceSupportsExtensions(candidate vkc.PhysicalDevice) bool {
	var count uint32
	vkc.EnumerateDeviceExtensionProperties(candidate, "", &count, nil)
	available := make([]vkc.ExtensionProperties, count)
	vkc.EnumerateDeviceExtensionProperties(candidate, "", &count, available)

	have := map[string]bool{}
	for _, ext := range available {
		ext.Deref()
		have[vkc.ToString(ext.ExtensionName[:])] = true
	}
	for _, want := range requiredDeviceExtensions {
		name := want[:len(want)-1] // strip the added trailing NUL
		if !have[name] {
			return false
		}
	}
	return true
}

func swapchainAdequate(candidate vkc.PhysicalDevice, surface vkc.Surface) bool {
	var formatCount uint32
	vkc.GetPhysicalDeviceSurfaceFormats(candidate, surface, &formatCount, nil)
	var modeCount uint32
	vkc.GetPhysicalDeviceSurfacePresentModes(candidate, surface, &modeCount, nil)
	return formatCount > 0 && modeCount > 0
}

// scoreDevice favors discrete GPUs, matching devices.rs's score_device.
func scoreDevice(candidate vkc.PhysicalDevice) int {
	var props vkc.PhysicalDeviceProperties
	vkc.GetPhysicalDeviceProperties(candidate, &props)
	props.Deref()
	switch props.DeviceType {
	case vkc.PhysicalDeviceTypeDiscreteGpu:
		return 1000
	case vkc.PhysicalDeviceTypeIntegratedGpu:
		return 100
	case vkc.PhysicalDeviceTypeVirtualGpu:
		return 50
	default:
		return 10
	}
}

// Handle returns the raw vk.Device for packages that take unwrapped
// handles (internal/vkmem, internal/meshpipe, internal/vk.CommandPool).
func (d *Device) Handle() vkc.Device { return d.handle }

// PhysicalHandle returns the raw vk.PhysicalDevice, needed by
// vkmem.NewAllocator to read memory-type properties.
func (d *Device) PhysicalHandle() vkc.PhysicalDevice { return d.physical }

// Families returns the resolved queue family indices.
func (d *Device) Families() QueueFamilies { return d.families }

// GraphicsQueue returns the raw graphics queue.
func (d *Device) GraphicsQueue() vkc.Queue { return d.graphicsQueue }

// PresentQueue returns the raw present queue.
func (d *Device) PresentQueue() vkc.Queue { return d.presentQueue }

// TransferQueue returns the raw transfer queue meshpipe uploads through.
func (d *Device) TransferQueue() vkc.Queue { return d.transferQueue }

// WaitIdle blocks until every queue on the device is idle, for use before
// teardown or swapchain recreation.
func (d *Device) WaitIdle() error {
	if result := vkc.DeviceWaitIdle(d.handle); result != vkc.Success {
		return fmt.Errorf("device wait idle failed: %v", result)
	}
	return nil
}

// Destroy releases the logical device.
func (d *Device) Destroy() {
	vkc.DestroyDevice(d.handle, nil)
}

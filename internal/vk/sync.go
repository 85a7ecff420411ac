package vk

import (
	"fmt"

	vkc "github.com/vulkan-go/vulkan"
)

// Semaphores is a fixed-size group of binary semaphores, one per frame
// in flight, translated from original_source's src/render/sync.rs.
type Semaphores struct {
	device  vkc.Device
	handles []vkc.Semaphore
}

// NewSemaphores creates count semaphores.
func NewSemaphores(device *Device, count int) (*Semaphores, error) {
	s := &Semaphores{device: device.Handle(), handles: make([]vkc.Semaphore, count)}
	info := vkc.SemaphoreCreateInfo{SType: vkc.StructureTypeSemaphoreCreateInfo}
	for i := range s.handles {
		if result := vkc.CreateSemaphore(s.device, &info, nil, &s.handles[i]); result != vkc.Success {
			s.Destroy()
			return nil, fmt.Errorf("semaphore %d creation failed: %v", i, result)
		}
	}
	return s, nil
}

// Get returns semaphore i.
func (s *Semaphores) Get(i int) vkc.Semaphore { return s.handles[i] }

// Destroy releases every semaphore.
func (s *Semaphores) Destroy() {
	for _, h := range s.handles {
		if h != nil {
			vkc.DestroySemaphore(s.device, h, nil)
		}
	}
}

// Fences is a fixed-size group of fences, optionally created signaled so
// the first frame's wait doesn't block, translated from sync.rs.
type Fences struct {
	device  vkc.Device
	handles []vkc.Fence
}

// NewFences creates count fences, signaled initially when signaled is
// true.
func NewFences(device *Device, count int, signaled bool) (*Fences, error) {
	f := &Fences{device: device.Handle(), handles: make([]vkc.Fence, count)}
	var flags vkc.FenceCreateFlags
	if signaled {
		flags = vkc.FenceCreateFlags(vkc.FenceCreateSignaledBit)
	}
	info := vkc.FenceCreateInfo{SType: vkc.StructureTypeFenceCreateInfo, Flags: flags}
	for i := range f.handles {
		if result := vkc.CreateFence(f.device, &info, nil, &f.handles[i]); result != vkc.Success {
			f.Destroy()
			return nil, fmt.Errorf("fence %d creation failed: %v", i, result)
		}
	}
	return f, nil
}

// Get returns fence i.
func (f *Fences) Get(i int) vkc.Fence { return f.handles[i] }

// Wait blocks until fence i is signaled.
func (f *Fences) Wait(i int) error {
	if result := vkc.WaitForFences(f.device, 1, []vkc.Fence{f.handles[i]}, vkc.Bool32(vkc.True), ^uint64(0)); result != vkc.Success {
		return fmt.Errorf("fence %d wait failed: %v", i, result)
	}
	return nil
}

// Reset clears fence i back to unsignaled.
func (f *Fences) Reset(i int) error {
	if result := vkc.ResetFences(f.device, 1, f.handles[i:i+1]); result != vkc.Success {
		return fmt.Errorf("fence %d reset failed: %v", i, result)
	}
	return nil
}

// Destroy releases every fence.
func (f *Fences) Destroy() {
	for _, h := range f.handles {
		if h != nil {
			vkc.DestroyFence(f.device, h, nil)
		}
	}
}

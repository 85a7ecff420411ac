package vk

import (
	"fmt"

	"github.com/go-gl/glfw/v3.3/glfw"
	vkc "github.com/vulkan-go/vulkan"
)

// Surface wraps the GLFW-created vk.SurfaceKHR the swapchain presents to,
// translated from original_source's src/render/surface.rs — using GLFW's
// own window-surface glue instead of winit's, since this renderer's
// windowing comes from go-gl/glfw.
type Surface struct {
	instance vkc.Instance
	handle   vkc.Surface
}

// NewSurface creates a presentation surface for window.
func NewSurface(instance *Instance, window *glfw.Window) (*Surface, error) {
	surfacePtr, err := window.CreateWindowSurface(instance.Handle(), nil)
	if err != nil {
		return nil, fmt.Errorf("window surface creation failed: %w", err)
	}
	return &Surface{instance: instance.Handle(), handle: vkc.SurfaceFromPointer(surfacePtr)}, nil
}

// Handle returns the raw vk.Surface.
func (s *Surface) Handle() vkc.Surface { return s.handle }

// Destroy releases the surface.
func (s *Surface) Destroy() {
	vkc.DestroySurface(s.instance, s.handle, nil)
}

package vk

import (
	"fmt"
	"log"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vkc "github.com/vulkan-go/vulkan"
)

// ValidationLayer is the standard Khronos validation layer, enabled by
// Instance when Debug is true.
const ValidationLayer = "VK_LAYER_KHRONOS_validation"

// Instance wraps a vk.Instance plus its optional debug report callback,
// translated from original_source's src/render/instance.rs.
type Instance struct {
	handle   vkc.Instance
	debugCB  vkc.DebugReportCallback
	debug    bool
}

// NewInstance creates a vk.Instance with the extensions GLFW requires for
// window presentation, plus the validation layer and debug report
// extension when debug is true.
func NewInstance(appName string, debug bool) (*Instance, error) {
	vkc.SetGetInstanceProcAddr(glfw.GetVulkanGetInstanceProcAddress())
	if err := vkc.Init(); err != nil {
		return nil, fmt.Errorf("vulkan loader init failed: %w", err)
	}

	extensions := glfw.GetRequiredInstanceExtensions()
	if debug {
		extensions = append(extensions, vkc.ExtDebugReportExtensionName+"\x00")
	}
	cExtensions := make([]string, len(extensions))
	for i, e := range extensions {
		cExtensions[i] = nullTerminated(e)
	}

	var layers []string
	if debug {
		layers = []string{nullTerminated(ValidationLayer)}
	}

	appInfo := vkc.ApplicationInfo{
		SType:              vkc.StructureTypeApplicationInfo,
		PApplicationName:   nullTerminated(appName),
		ApplicationVersion: vkc.MakeVersion(1, 0, 0),
		PEngineName:        nullTerminated(appName),
		EngineVersion:      vkc.MakeVersion(1, 0, 0),
		ApiVersion:         vkc.ApiVersion11,
	}
	createInfo := vkc.InstanceCreateInfo{
		SType:                   vkc.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        &appInfo,
		EnabledExtensionCount:   uint32(len(cExtensions)),
		PpEnabledExtensionNames: cExtensions,
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     layers,
	}

	var handle vkc.Instance
	if result := vkc.CreateInstance(&createInfo, nil, &handle); result != vkc.Success {
		return nil, fmt.Errorf("instance creation failed: %v", result)
	}
	vkc.InitInstance(handle)

	inst := &Instance{handle: handle, debug: debug}
	if debug {
		if err := inst.installDebugCallback(); err != nil {
			// A failed debug hookup shouldn't prevent the instance from
			// being usable; validation messages just go unreported.
			log.Printf("vk: debug report callback install failed: %v", err)
		}
	}
	return inst, nil
}

func (i *Instance) installDebugCallback() error {
	info := vkc.DebugReportCallbackCreateInfo{
		SType: vkc.StructureTypeDebugReportCallbackCreateInfo,
		Flags: vkc.DebugReportFlags(
			vkc.DebugReportErrorBit | vkc.DebugReportWarningBit | vkc.DebugReportPerformanceWarningBit,
		),
		PfnCallback: debugCallback,
	}
	var cb vkc.DebugReportCallback
	if result := vkc.CreateDebugReportCallback(i.handle, &info, nil, &cb); result != vkc.Success {
		return fmt.Errorf("debug report callback creation failed: %v", result)
	}
	i.debugCB = cb
	return nil
}

func debugCallback(flags vkc.DebugReportFlags, objectType vkc.DebugReportObjectType, object uint64,
	location uint, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vkc.Bool32 {
	switch {
	case flags&vkc.DebugReportFlags(vkc.DebugReportErrorBit) != 0:
		log.Printf("vulkan [error] %s: %s", pLayerPrefix, pMessage)
	case flags&vkc.DebugReportFlags(vkc.DebugReportWarningBit) != 0:
		log.Printf("vulkan [warn] %s: %s", pLayerPrefix, pMessage)
	default:
		log.Printf("vulkan [debug] %s: %s", pLayerPrefix, pMessage)
	}
	return vkc.Bool32(vkc.False)
}

func nullTerminated(s string) string {
	if len(s) > 0 && s[len(s)-1] == 0 {
		return s
	}
	return s + "\x00"
}

// Handle returns the raw vk.Instance for packages that operate on
// unwrapped Vulkan handles (internal/vkmem, internal/vk's own device
// selection).
func (i *Instance) Handle() vkc.Instance { return i.handle }

// Destroy tears down the debug callback (if any) and the instance.
func (i *Instance) Destroy() {
	if i.debugCB != nil {
		vkc.DestroyDebugReportCallback(i.handle, i.debugCB, nil)
	}
	vkc.DestroyInstance(i.handle, nil)
}

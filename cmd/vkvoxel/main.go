// Command vkvoxel opens a window, boots a Vulkan device, and streams a
// procedurally generated voxel landscape around a free-fly camera,
// translated from original_source's src/main.rs top-level wiring.
package main

import (
	"flag"
	"log"
	"math"
	"time"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vkc "github.com/vulkan-go/vulkan"
	"github.com/xlab/closer"

	"github.com/dantero/vkvoxel/internal/bench"
	"github.com/dantero/vkvoxel/internal/camera"
	"github.com/dantero/vkvoxel/internal/config"
	"github.com/dantero/vkvoxel/internal/generation"
	"github.com/dantero/vkvoxel/internal/meshpipe"
	"github.com/dantero/vkvoxel/internal/profiling"
	"github.com/dantero/vkvoxel/internal/regioncache"
	"github.com/dantero/vkvoxel/internal/streaming"
	"github.com/dantero/vkvoxel/internal/uniformring"
	"github.com/dantero/vkvoxel/internal/vk"
	"github.com/dantero/vkvoxel/internal/vkmem"
	"github.com/dantero/vkvoxel/internal/voxchunk"
	"github.com/dantero/vkvoxel/internal/voxpos"
)

const (
	winW = 1280
	winH = 720
)

func main() {
	seed := flag.Int64("seed", config.GetWorldSeed(), "terrain generation seed")
	benchMode := flag.Bool("bench", false, "run a headless fly-through and export perf CSV")
	benchDir := flag.String("bench-dir", "bench-out", "directory bench CSV output is written to")
	debug := flag.Bool("debug", false, "enable Vulkan validation layers and debug report logging")
	flag.Parse()

	config.SetWorldSeed(*seed)
	config.SetBenchMode(*benchMode)

	if err := glfw.Init(); err != nil {
		log.Fatalf("vkvoxel: glfw init failed: %v", err)
	}
	defer glfw.Terminate()

	if !glfw.VulkanSupported() {
		log.Fatalf("vkvoxel: GLFW reports no Vulkan loader on this system")
	}

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	window, err := glfw.CreateWindow(winW, winH, "vkvoxel", nil, nil)
	if err != nil {
		log.Fatalf("vkvoxel: window creation failed: %v", err)
	}

	instance, err := vk.NewInstance("vkvoxel", *debug)
	if err != nil {
		log.Fatalf("vkvoxel: %v", err)
	}
	closer.Bind(instance.Destroy)

	surface, err := vk.NewSurface(instance, window)
	if err != nil {
		log.Fatalf("vkvoxel: %v", err)
	}
	closer.Bind(surface.Destroy)

	device, err := vk.NewDevice(instance, surface)
	if err != nil {
		log.Fatalf("vkvoxel: %v", err)
	}
	closer.Bind(func() {
		device.WaitIdle()
		device.Destroy()
	})

	swapchain, err := vk.NewSwapchain(device, surface, window, config.GetBenchMode(), nil)
	if err != nil {
		log.Fatalf("vkvoxel: %v", err)
	}
	closer.Bind(swapchain.Destroy)

	renderPass, err := vk.NewRenderPass(device, swapchain, true)
	if err != nil {
		log.Fatalf("vkvoxel: %v", err)
	}
	closer.Bind(renderPass.Destroy)

	depthImage, err := vk.NewDepthImage(device, swapchain)
	if err != nil {
		log.Fatalf("vkvoxel: %v", err)
	}
	closer.Bind(depthImage.Destroy)

	framebuffers, err := vk.NewFramebuffers(device, swapchain, renderPass, depthImage.View())
	if err != nil {
		log.Fatalf("vkvoxel: %v", err)
	}
	closer.Bind(framebuffers.Destroy)

	allocator := vkmem.NewAllocator(instance.Handle(), device.PhysicalHandle(), device.Handle())

	ring, err := uniformring.New(device.Handle(), device.PhysicalHandle(), allocator, swapchain.ImageCount(), int(unsafe.Sizeof(camera.UniformBufferObject{})))
	if err != nil {
		log.Fatalf("vkvoxel: %v", err)
	}
	closer.Bind(ring.Destroy)

	pipeline, err := vk.NewPipeline(device, swapchain, renderPass, ring.Layout())
	if err != nil {
		log.Fatalf("vkvoxel: %v", err)
	}
	closer.Bind(pipeline.Destroy)

	imageAvailable, err := vk.NewSemaphores(device, streaming.MaxFramesInFlight)
	if err != nil {
		log.Fatalf("vkvoxel: %v", err)
	}
	closer.Bind(imageAvailable.Destroy)

	renderFinished, err := vk.NewSemaphores(device, streaming.MaxFramesInFlight)
	if err != nil {
		log.Fatalf("vkvoxel: %v", err)
	}
	closer.Bind(renderFinished.Destroy)

	inFlightFences, err := vk.NewFences(device, streaming.MaxFramesInFlight, true)
	if err != nil {
		log.Fatalf("vkvoxel: %v", err)
	}
	closer.Bind(inFlightFences.Destroy)

	primaryPool, err := vk.NewCommandPool(device.Handle(), device.Families().Graphics)
	if err != nil {
		log.Fatalf("vkvoxel: %v", err)
	}
	closer.Bind(primaryPool.Destroy)
	primaryBuffers, err := primaryPool.AllocBuffers(swapchain.ImageCount(), false)
	if err != nil {
		log.Fatalf("vkvoxel: %v", err)
	}

	regionPool, err := vk.NewCommandPool(device.Handle(), device.Families().Graphics)
	if err != nil {
		log.Fatalf("vkvoxel: %v", err)
	}
	closer.Bind(regionPool.Destroy)

	// world is wired through an indirection (ref) because Generator and
	// Pipeline both need their forwarder/resolver at construction time,
	// but that forwarder is streaming.World, which in turn needs the
	// already-constructed generator and mesher.
	ref := &worldRef{}
	chunks := voxchunk.NewMap()
	generator := generation.New(config.GetWorldSeed(), ref)
	mesher := meshpipe.New(device.Handle(), device.TransferQueue(), device.Families().Transfer, allocator, ref)
	regions := regioncache.NewManager(chunks, regionPool, swapchain.ImageCount())
	world := streaming.New(chunks, generator, mesher, regions)
	ref.w = world

	generator.Start()
	closer.Bind(generator.Stop)
	mesher.Start()
	closer.Bind(mesher.Stop)

	cam := camera.New(voxpos.NewEntityPos(0, 96, 0, 0, -90))
	inputs := camera.NewInputs()

	window.SetInputMode(glfw.CursorMode, glfw.CursorDisabled)
	window.SetCursorPosCallback(func(_ *glfw.Window, x, y float64) {
		inputs.MouseMoved(x, y)
	})
	window.SetKeyCallback(func(w *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
		if key == glfw.KeyEscape && action == glfw.Press {
			w.SetShouldClose(true)
			return
		}
		inputs.KeyEvent(key, action)
	})

	var recorder *bench.Recorder
	if config.GetBenchMode() {
		recorder = bench.NewRecorder()
	}

	recordRegion := func(imageIndex int) regioncache.RecordFunc {
		return func(buf vkc.CommandBuffer, regionChunks []regioncache.RegionChunk) error {
			return recordRegionCommands(buf, pipeline, ring, imageIndex, renderPass, framebuffers, swapchain, regionChunks)
		}
	}

	frameIndex := 0
	lastTick := time.Now()

	for !window.ShouldClose() {
		glfw.PollEvents()
		profiling.ResetFrame()

		now := time.Now()
		dt := float32(now.Sub(lastTick).Seconds())
		lastTick = now

		if config.GetBenchMode() {
			flyThrough(cam, now)
		} else {
			cam.Update(dt, inputs)
		}

		world.Tick(cam.Position().Chunk())

		if err := inFlightFences.Wait(frameIndex); err != nil {
			log.Fatalf("vkvoxel: %v", err)
		}

		var imageIndex uint32
		acquireResult := vkc.AcquireNextImage(device.Handle(), swapchain.Handle(), ^uint64(0), imageAvailable.Get(frameIndex), nil, &imageIndex)
		if acquireResult == vkc.ErrorOutOfDate {
			continue // window resize recreation isn't wired up yet; retry next frame
		}
		if acquireResult != vkc.Success && acquireResult != vkc.Suboptimal {
			log.Fatalf("vkvoxel: acquiring swapchain image failed: %v", acquireResult)
		}

		if err := inFlightFences.Reset(frameIndex); err != nil {
			log.Fatalf("vkvoxel: %v", err)
		}

		ubo := cam.UBO(float32(swapchain.Extent.Width) / float32(swapchain.Extent.Height))
		ring.Write(int(imageIndex), ubo.Bytes())

		cmd := primaryBuffers[imageIndex]
		if err := recordPrimaryBuffer(cmd, int(imageIndex), renderPass, framebuffers, swapchain, regions, recordRegion); err != nil {
			log.Fatalf("vkvoxel: %v", err)
		}

		waitStages := []vkc.PipelineStageFlags{vkc.PipelineStageFlags(vkc.PipelineStageColorAttachmentOutputBit)}
		submit := vkc.SubmitInfo{
			SType:                vkc.StructureTypeSubmitInfo,
			WaitSemaphoreCount:   1,
			PWaitSemaphores:      []vkc.Semaphore{imageAvailable.Get(frameIndex)},
			PWaitDstStageMask:    waitStages,
			CommandBufferCount:   1,
			PCommandBuffers:      []vkc.CommandBuffer{cmd},
			SignalSemaphoreCount: 1,
			PSignalSemaphores:    []vkc.Semaphore{renderFinished.Get(frameIndex)},
		}
		if result := vkc.QueueSubmit(device.GraphicsQueue(), 1, []vkc.SubmitInfo{submit}, inFlightFences.Get(frameIndex)); result != vkc.Success {
			log.Fatalf("vkvoxel: queue submit failed: %v", result)
		}

		presentInfo := vkc.PresentInfo{
			SType:              vkc.StructureTypePresentInfo,
			WaitSemaphoreCount: 1,
			PWaitSemaphores:    []vkc.Semaphore{renderFinished.Get(frameIndex)},
			SwapchainCount:     1,
			PSwapchains:        []vkc.Swapchain{swapchain.Handle()},
			PImageIndices:      []uint32{imageIndex},
		}
		if result := vkc.QueuePresent(device.PresentQueue(), &presentInfo); result != vkc.Success && result != vkc.Suboptimal {
			log.Fatalf("vkvoxel: queue present failed: %v", result)
		}

		if recorder != nil {
			recorder.Append(
				int(world.CreatedCount()), int(generator.GeneratedCount()), int(mesher.MeshedCount()),
				generator.QueueLen(), mesher.QueueLen(),
				chunks.Len(), regions.RegionCount(),
				profiling.SumWithPrefix("meshing."),
			)
		}

		frameIndex = (frameIndex + 1) % streaming.MaxFramesInFlight
	}

	if recorder != nil {
		recorder.End(*benchDir)
	}

	closer.Close()
}

// worldRef breaks the construction cycle between generation.Generator
// (needs a Forwarder), meshpipe.Pipeline (needs a Resolver), and
// streaming.World (needs both already built): generator and mesher are
// handed ref instead of world directly, and ref.w is set once world
// exists.
type worldRef struct {
	w *streaming.World
}

func (r *worldRef) ChunkGenerated(c *voxchunk.Chunk) { r.w.ChunkGenerated(c) }

func (r *worldRef) Neighbor(c *voxchunk.Chunk, x, y, z int) (voxchunk.BlockId, bool) {
	return r.w.Neighbor(c, x, y, z)
}

// flyThrough advances the camera along a fixed orbit, standing in for
// interactive input during a headless bench run, matching
// original_source's bench.rs fly-through path.
func flyThrough(cam *camera.Camera, now time.Time) {
	const radius = 200.0
	const period = 30 * time.Second
	frac := float64(now.UnixNano()%int64(period)) / float64(period)
	angle := frac * 2 * math.Pi
	cam.Teleport(voxpos.NewEntityPos(
		float32(radius*math.Cos(angle)), 96, float32(radius*math.Sin(angle)),
		0, float32(angle*180/math.Pi),
	))
}

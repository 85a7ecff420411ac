// Package meshpipe runs the fixed-size mesher worker pool that turns a
// generated voxchunk.Chunk into an uploaded device-local vertex buffer.
//
// Each worker owns a small ring of IN_FLIGHT_COPIES staging buffers and
// fences so it can mesh the next chunk into a fresh host-visible buffer
// while an earlier copy is still in flight on the transfer queue,
// instead of stalling on every chunk. The ring algorithm is translated
// directly from original_source's src/world/meshing.rs.
package meshpipe

import (
	"fmt"
	"log"
	"sync/atomic"
	"time"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"

	"github.com/dantero/vkvoxel/internal/meshing"
	"github.com/dantero/vkvoxel/internal/vkmem"
	"github.com/dantero/vkvoxel/internal/voxchunk"
)

const (
	// Threads matches original_source's THREADS_COUNT for the mesher pool.
	Threads = 10
	// InFlightCopies matches original_source's IN_FLIGHT_COPIES: the
	// number of staging-buffer/fence/command-buffer slots each worker
	// cycles through.
	InFlightCopies = 4

	pollInterval = 100 * time.Millisecond
)

// Resolver is implemented by internal/streaming's chunk map view; kept
// as a narrow interface so this package never imports internal/streaming.
type Resolver interface {
	// Neighbor returns the block immediately across a boundary from
	// chunk c at local offset (x, y, z), which lies outside [0,
	// ChunkSize) on exactly one axis.
	Neighbor(c *voxchunk.Chunk, x, y, z int) (voxchunk.BlockId, bool)
}

// Pipeline owns the worker pool's shared GPU resources: the transfer
// queue (a dedicated one when the device offers it) and the allocator
// backing both staging and device-local vertex buffers. Each worker
// creates its own command pool.
type Pipeline struct {
	device    vk.Device
	queue     vk.Queue
	queueFam  uint32
	allocator *vkmem.Allocator
	resolver  Resolver

	jobs chan *voxchunk.Chunk
	done chan struct{}

	meshedTotal int64 // atomic
}

// New builds a Pipeline. Call Start to launch its worker pool.
func New(device vk.Device, queue vk.Queue, queueFamily uint32, allocator *vkmem.Allocator, resolver Resolver) *Pipeline {
	return &Pipeline{
		device:    device,
		queue:     queue,
		queueFam:  queueFamily,
		allocator: allocator,
		resolver:  resolver,
		jobs:      make(chan *voxchunk.Chunk, 4096),
		done:      make(chan struct{}),
	}
}

// Start launches Threads worker goroutines.
func (p *Pipeline) Start() {
	for i := 0; i < Threads; i++ {
		w, err := newWorker(p)
		if err != nil {
			log.Fatalf("meshpipe: worker %d init: %v", i, err)
		}
		go w.run()
	}
}

// Stop closes the job queue and waits for every worker to drain it.
func (p *Pipeline) Stop() {
	close(p.jobs)
	for i := 0; i < Threads; i++ {
		<-p.done
	}
}

// Enqueue schedules c to be (re)meshed. Blocks if the queue is full.
func (p *Pipeline) Enqueue(c *voxchunk.Chunk) {
	p.jobs <- c
}

// TryEnqueue schedules c without blocking, reporting whether the queue
// had room.
func (p *Pipeline) TryEnqueue(c *voxchunk.Chunk) bool {
	select {
	case p.jobs <- c:
		return true
	default:
		return false
	}
}

// MeshedCount returns the number of chunks meshed and uploaded since
// Start, for internal/bench's throughput reporting.
func (p *Pipeline) MeshedCount() int64 {
	return atomic.LoadInt64(&p.meshedTotal)
}

// QueueLen returns the number of chunks currently queued for meshing,
// for internal/bench's backlog reporting.
func (p *Pipeline) QueueLen() int {
	return len(p.jobs)
}

type inCopy struct {
	chunk *voxchunk.Chunk
	alloc *vkmem.Allocation
	count uint32
}

type worker struct {
	p *Pipeline

	fences      [InFlightCopies]vk.Fence
	staging     [InFlightCopies]*vkmem.Allocation
	commandPool vk.CommandPool
	commandBufs [InFlightCopies]vk.CommandBuffer
	inCopy      [InFlightCopies]*inCopy

	buffIdx          int
	currentCopyCount int
}

func newWorker(p *Pipeline) (*worker, error) {
	w := &worker{p: p}

	poolInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: p.queueFam,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit) | vk.CommandPoolCreateFlags(vk.CommandPoolCreateTransientBit),
	}
	if result := vk.CreateCommandPool(p.device, &poolInfo, nil, &w.commandPool); result != vk.Success {
		return nil, fmt.Errorf("command pool creation failed: %v", result)
	}

	allocInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        w.commandPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: InFlightCopies,
	}
	bufs := make([]vk.CommandBuffer, InFlightCopies)
	if result := vk.AllocateCommandBuffers(p.device, &allocInfo, bufs); result != vk.Success {
		return nil, fmt.Errorf("command buffer allocation failed: %v", result)
	}
	copy(w.commandBufs[:], bufs)

	stagingSize := meshing.MaxVerticesPerChunk * 4 // one uint32 per vertex
	for i := 0; i < InFlightCopies; i++ {
		fenceInfo := vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo, Flags: vk.FenceCreateFlags(vk.FenceCreateSignaledBit)}
		if result := vk.CreateFence(p.device, &fenceInfo, nil, &w.fences[i]); result != vk.Success {
			return nil, fmt.Errorf("fence creation failed: %v", result)
		}

		alloc, err := p.allocator.AllocBuffer(
			stagingSize,
			vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit),
			vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit)|vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit),
			true,
		)
		if err != nil {
			return nil, fmt.Errorf("staging buffer allocation failed: %w", err)
		}
		w.staging[i] = alloc
	}

	return w, nil
}

func (w *worker) run() {
	for {
		var c *voxchunk.Chunk
		var ok bool
		if w.currentCopyCount == 0 {
			c, ok = <-w.p.jobs
			if !ok {
				w.shutdown()
				return
			}
		} else {
			select {
			case c, ok = <-w.p.jobs:
				if !ok {
					w.shutdown()
					return
				}
			case <-time.After(pollInterval):
				c = nil
			}
		}

		idx, err := w.firstSignaledFence(w.buffIdx)
		if err != nil {
			log.Printf("meshpipe: fence status: %v", err)
			continue
		}
		if idx < 0 {
			if result := vk.WaitForFences(w.p.device, InFlightCopies, w.fences[:], vk.Bool32(vk.False), ^uint64(0)); result != vk.Success {
				log.Printf("meshpipe: wait for fences: %v", result)
				continue
			}
			idx, err = w.firstSignaledFence(w.buffIdx)
			if err != nil || idx < 0 {
				log.Printf("meshpipe: no fence signaled after wait")
				continue
			}
		}
		w.buffIdx = idx

		if done := w.inCopy[idx]; done != nil {
			vb := &voxchunk.VertexBuffer{Alloc: done.alloc, Vertices: done.count}
			if old := done.chunk.SetVertexBuffer(vb); old != nil {
				old.Alloc.FreeBuffer(w.p.device)
			}
			atomic.AddInt64(&w.p.meshedTotal, 1)
			w.inCopy[idx] = nil
			w.currentCopyCount--
		}

		if c != nil {
			w.meshAndUpload(c, idx)
		}
		w.buffIdx = (w.buffIdx + 1) % InFlightCopies
	}
}

func (w *worker) meshAndUpload(c *voxchunk.Chunk, idx int) {
	neighbor := func(x, y, z int) (voxchunk.BlockId, bool) {
		return w.p.resolver.Neighbor(c, x, y, z)
	}
	vertices := meshing.Build(c, neighbor)
	if len(vertices) == 0 {
		return
	}

	staging := w.staging[idx].Data()
	dst := unsafe.Slice((*uint32)(unsafe.Pointer(&staging[0])), len(vertices))
	copy(dst, vertices)

	size := len(vertices) * 4
	deviceLocal, err := w.p.allocator.AllocBuffer(
		size,
		vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit)|vk.BufferUsageFlags(vk.BufferUsageTransferDstBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit),
		false,
	)
	if err != nil {
		log.Printf("meshpipe: vertex buffer allocation failed: %v", err)
		return
	}

	if result := vk.ResetFences(w.p.device, 1, w.fences[w.buffIdx:w.buffIdx+1]); result != vk.Success {
		log.Printf("meshpipe: fence reset failed: %v", result)
		deviceLocal.FreeBuffer(w.p.device)
		return
	}

	cmd := w.commandBufs[idx]
	if err := w.recordCopy(cmd, w.staging[idx], deviceLocal, size); err != nil {
		log.Printf("meshpipe: copy record failed: %v", err)
		deviceLocal.FreeBuffer(w.p.device)
		return
	}

	submit := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{cmd},
	}
	if result := vk.QueueSubmit(w.p.queue, 1, []vk.SubmitInfo{submit}, w.fences[idx]); result != vk.Success {
		log.Printf("meshpipe: queue submit failed: %v", result)
		deviceLocal.FreeBuffer(w.p.device)
		return
	}

	w.inCopy[idx] = &inCopy{chunk: c, alloc: deviceLocal, count: uint32(len(vertices))}
	w.currentCopyCount++
}

func (w *worker) recordCopy(cmd vk.CommandBuffer, src, dst *vkmem.Allocation, size int) error {
	if result := vk.ResetCommandBuffer(cmd, vk.CommandBufferResetFlags(0)); result != vk.Success {
		return fmt.Errorf("command buffer reset failed: %v", result)
	}
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if result := vk.BeginCommandBuffer(cmd, &beginInfo); result != vk.Success {
		return fmt.Errorf("command buffer begin failed: %v", result)
	}
	// Each Allocation's BoundBuffer is its own vk.Buffer bound at the
	// allocation's suballocated offset, so the copy itself runs buffer-
	// relative at offset zero.
	region := vk.BufferCopy{SrcOffset: 0, DstOffset: 0, Size: vk.DeviceSize(size)}
	vk.CmdCopyBuffer(cmd, src.BoundBuffer(), dst.BoundBuffer(), 1, []vk.BufferCopy{region})
	if result := vk.EndCommandBuffer(cmd); result != vk.Success {
		return fmt.Errorf("command buffer end failed: %v", result)
	}
	return nil
}

// firstSignaledFence scans fences starting at startAt, wrapping around,
// and returns the index of the first one whose status is VK_SUCCESS, or
// -1 if none are signaled yet.
func (w *worker) firstSignaledFence(startAt int) (int, error) {
	i := startAt
	for checked := 0; checked < InFlightCopies; checked++ {
		result := vk.GetFenceStatus(w.p.device, w.fences[i])
		if result == vk.Success {
			return i, nil
		}
		if result != vk.NotReady {
			return -1, fmt.Errorf("fence status: %v", result)
		}
		i = (i + 1) % InFlightCopies
	}
	return -1, nil
}

func (w *worker) shutdown() {
	for i := 0; i < InFlightCopies; i++ {
		vk.DestroyFence(w.p.device, w.fences[i], nil)
		w.staging[i].FreeBuffer(w.p.device)
	}
	vk.FreeCommandBuffers(w.p.device, w.commandPool, InFlightCopies, w.commandBufs[:])
	vk.DestroyCommandPool(w.p.device, w.commandPool, nil)
	w.p.done <- struct{}{}
}

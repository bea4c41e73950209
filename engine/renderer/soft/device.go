// Package soft is a simulated GPU driver. It keeps every object in host
// memory, executes recorded commands when a submission retires and checks
// the usage rules a validation layer would. It backs the headless renderer
// and the renderer tests.
package soft

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/prism/engine/containers"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
)

const (
	graphicsQueue gpu.Queue = 1
	presentQueue  gpu.Queue = 2

	maxPendingSubmissions = 64
)

// Memory type indices exposed by the simulated device.
const (
	MemoryTypeDeviceLocal uint32 = iota
	MemoryTypeHostVisible
)

var _ gpu.Device = (*Device)(nil)

type Options struct {
	Name   string
	Width  uint32
	Height uint32
	// Swapchain image count limits reported by the surface.
	MinImageCount uint32
	MaxImageCount uint32
	PresentModes  []gpu.PresentMode
	Formats       []gpu.SurfaceFormat
	DepthFormat   gpu.Format
	// Manual keeps submissions pending until Complete is called. Otherwise
	// every submission retires as soon as it is queued.
	Manual bool
}

type Stats struct {
	Submissions uint64
	Acquires    uint64
	Presents    uint64
	Draws       uint64
	Vertices    uint64
	Dispatches  uint64
}

type surfaceState struct {
	extent     gpu.Extent2D
	generation uint64
	// one-shot result overrides
	acquireSuboptimal bool
	presentSuboptimal bool
}

type Device struct {
	mu   sync.Mutex
	cond *sync.Cond

	opts  Options
	props gpu.DeviceProperties

	memories        *containers.HandleTable[*memory]
	buffers         *containers.HandleTable[*buffer]
	images          *containers.HandleTable[*image]
	views           *containers.HandleTable[*imageView]
	samplers        *containers.HandleTable[gpu.SamplerInfo]
	shaders         *containers.HandleTable[[]byte]
	setLayouts      *containers.HandleTable[[]gpu.DescriptorBinding]
	descriptorPools *containers.HandleTable[*descriptorPool]
	descriptorSets  *containers.HandleTable[*descriptorSet]
	pipelineLayouts *containers.HandleTable[gpu.PipelineLayoutInfo]
	pipelines       *containers.HandleTable[*pipeline]
	renderPasses    *containers.HandleTable[gpu.RenderPassInfo]
	framebuffers    *containers.HandleTable[gpu.FramebufferInfo]
	commandPools    *containers.HandleTable[*commandPool]
	commandBuffers  *containers.HandleTable[*commandBuffer]
	fences          *containers.HandleTable[*fence]
	semaphores      *containers.HandleTable[*semaphore]
	swapchains      *containers.HandleTable[*swapchain]

	pending    *containers.RingQueue[*submission]
	surface    surfaceState
	stats      Stats
	violations []string
	destroyed  bool
}

func NewDevice(opts Options) *Device {
	if opts.Name == "" {
		opts.Name = "prism soft device"
	}
	if opts.MinImageCount == 0 {
		opts.MinImageCount = 2
	}
	if opts.MaxImageCount == 0 {
		opts.MaxImageCount = 3
	}
	if len(opts.PresentModes) == 0 {
		opts.PresentModes = []gpu.PresentMode{gpu.PresentModeFifo, gpu.PresentModeMailbox}
	}
	if len(opts.Formats) == 0 {
		opts.Formats = []gpu.SurfaceFormat{
			{Format: gpu.FormatB8G8R8A8Srgb, ColorSpace: gpu.ColorSpaceSrgbNonlinear},
			{Format: gpu.FormatB8G8R8A8Unorm, ColorSpace: gpu.ColorSpaceSrgbNonlinear},
		}
	}
	if opts.DepthFormat == gpu.FormatUndefined {
		opts.DepthFormat = gpu.FormatD32Sfloat
	}

	d := &Device{
		opts: opts,
		props: gpu.DeviceProperties{
			Name: opts.Name,
			MemoryTypes: []gpu.MemoryType{
				MemoryTypeDeviceLocal: {Properties: gpu.MemoryPropertyDeviceLocal, HeapIndex: 0},
				MemoryTypeHostVisible: {Properties: gpu.MemoryPropertyHostVisible | gpu.MemoryPropertyHostCoherent, HeapIndex: 1},
			},
			DepthFormat:                     opts.DepthFormat,
			MinUniformBufferOffsetAlignment: 256,
			MaxPushConstantsSize:            128,
			MaxSamplerAnisotropy:            16,
		},
		memories:        containers.NewHandleTable[*memory](),
		buffers:         containers.NewHandleTable[*buffer](),
		images:          containers.NewHandleTable[*image](),
		views:           containers.NewHandleTable[*imageView](),
		samplers:        containers.NewHandleTable[gpu.SamplerInfo](),
		shaders:         containers.NewHandleTable[[]byte](),
		setLayouts:      containers.NewHandleTable[[]gpu.DescriptorBinding](),
		descriptorPools: containers.NewHandleTable[*descriptorPool](),
		descriptorSets:  containers.NewHandleTable[*descriptorSet](),
		pipelineLayouts: containers.NewHandleTable[gpu.PipelineLayoutInfo](),
		pipelines:       containers.NewHandleTable[*pipeline](),
		renderPasses:    containers.NewHandleTable[gpu.RenderPassInfo](),
		framebuffers:    containers.NewHandleTable[gpu.FramebufferInfo](),
		commandPools:    containers.NewHandleTable[*commandPool](),
		commandBuffers:  containers.NewHandleTable[*commandBuffer](),
		fences:          containers.NewHandleTable[*fence](),
		semaphores:      containers.NewHandleTable[*semaphore](),
		swapchains:      containers.NewHandleTable[*swapchain](),
		pending:         containers.NewRingQueue[*submission](maxPendingSubmissions),
		surface: surfaceState{
			extent: gpu.Extent2D{Width: opts.Width, Height: opts.Height},
		},
	}
	d.cond = sync.NewCond(&d.mu)
	core.LogDebug("Soft device `%s` created (%dx%d).", opts.Name, opts.Width, opts.Height)
	return d
}

func (d *Device) Properties() gpu.DeviceProperties {
	return d.props
}

// violation records a usage error the way a validation layer reports it:
// the call goes on, the message is kept for inspection.
func (d *Device) violation(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	core.LogError("soft device validation: %s", msg)
	d.violations = append(d.violations, msg)
}

// Violations returns the usage errors recorded so far.
func (d *Device) Violations() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.violations))
	copy(out, d.violations)
	return out
}

func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// LiveAllocations counts device memory allocations not yet freed.
func (d *Device) LiveAllocations() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.memories.Len()
}

// LiveObjects counts every object not yet destroyed, memory included.
func (d *Device) LiveObjects() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.liveObjects()
}

func (d *Device) liveObjects() int {
	n := d.memories.Len() + d.buffers.Len() + d.views.Len() + d.samplers.Len() +
		d.shaders.Len() + d.setLayouts.Len() + d.descriptorPools.Len() + d.pipelineLayouts.Len() +
		d.pipelines.Len() + d.renderPasses.Len() + d.framebuffers.Len() + d.commandPools.Len() +
		d.fences.Len() + d.semaphores.Len() + d.swapchains.Len()
	// swapchain images belong to their swapchain
	d.images.Each(func(_ uint64, img *image) {
		if !img.swapchainOwned {
			n++
		}
	})
	return n
}

// Resize changes the surface extent. The current swapchain becomes out of date.
func (d *Device) Resize(width, height uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.surface.extent = gpu.Extent2D{Width: width, Height: height}
	d.surface.generation++
}

// ForceSuboptimalAcquire makes the next acquire report a suboptimal swapchain.
func (d *Device) ForceSuboptimalAcquire() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.surface.acquireSuboptimal = true
}

// ForceSuboptimalPresent makes the next present report a suboptimal swapchain.
func (d *Device) ForceSuboptimalPresent() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.surface.presentSuboptimal = true
}

func (d *Device) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return
	}
	d.retireAll()
	if n := d.liveObjects(); n > 0 {
		d.violation("device destroyed with %d live objects", n)
	}
	d.destroyed = true
	core.LogDebug("Soft device `%s` destroyed.", d.opts.Name)
}

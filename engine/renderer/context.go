package renderer

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
)

var (
	// ErrNoMemoryType means no memory type satisfies a resource's requirements.
	ErrNoMemoryType = errors.New("no compatible memory type")
	// ErrResourceLeak is returned when the context is destroyed with live resources.
	ErrResourceLeak = errors.New("resources still alive at context destruction")
)

type resourceKind string

const (
	kindBuffer              resourceKind = "buffer"
	kindImage               resourceKind = "image"
	kindSampler             resourceKind = "sampler"
	kindShaderModule        resourceKind = "shader module"
	kindDescriptorSetLayout resourceKind = "descriptor set layout"
	kindDescriptorPool      resourceKind = "descriptor pool"
	kindPipelineLayout      resourceKind = "pipeline layout"
	kindPipeline            resourceKind = "pipeline"
	kindRenderPass          resourceKind = "render pass"
)

type trackKey struct {
	kind   resourceKind
	handle uint64
}

// Context owns the device, its queues, the graphics command pool and the
// bookkeeping of every resource created through it.
type Context struct {
	Device        gpu.Device
	Properties    gpu.DeviceProperties
	GraphicsQueue gpu.Queue
	PresentQueue  gpu.Queue
	CommandPool   gpu.CommandPool

	mu   sync.Mutex
	live map[trackKey]string
}

func NewContext(device gpu.Device) (*Context, error) {
	ctx := &Context{
		Device:        device,
		Properties:    device.Properties(),
		GraphicsQueue: device.GraphicsQueue(),
		PresentQueue:  device.PresentQueue(),
		live:          make(map[trackKey]string),
	}
	pool, err := device.CreateCommandPool(ctx.GraphicsQueue, true)
	if err != nil {
		err = fmt.Errorf("failed to create graphics command pool: %w", err)
		core.LogError(err.Error())
		return nil, err
	}
	ctx.CommandPool = pool
	core.LogInfo("Renderer context created on `%s`.", ctx.Properties.Name)
	return ctx, nil
}

// Destroy releases the command pool and the device. It reports every
// resource still alive and returns ErrResourceLeak if there is any.
func (c *Context) Destroy() error {
	if c == nil || c.Device == nil {
		return nil
	}
	if err := c.Device.DeviceWaitIdle(); err != nil {
		core.LogWarn("device wait idle failed during context destruction: %s", err)
	}
	c.Device.DestroyCommandPool(c.CommandPool)
	c.CommandPool = 0

	var err error
	if leaks := c.liveNames(); len(leaks) > 0 {
		for _, l := range leaks {
			core.LogError("leaked %s", l)
		}
		err = fmt.Errorf("%w: %d objects", ErrResourceLeak, len(leaks))
	}
	c.Device.Destroy()
	c.Device = nil
	return err
}

// LiveResources returns the number of tracked resources not yet destroyed.
func (c *Context) LiveResources() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.live)
}

func (c *Context) liveNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.live))
	for k, name := range c.live {
		out = append(out, fmt.Sprintf("%s `%s` (%d)", k.kind, name, k.handle))
	}
	sort.Strings(out)
	return out
}

// track registers a live resource and returns its debug name.
func (c *Context) track(kind resourceKind, handle uint64, name string) string {
	if name == "" {
		name = uuid.NewString()
	}
	c.mu.Lock()
	c.live[trackKey{kind, handle}] = name
	c.mu.Unlock()
	return name
}

func (c *Context) untrack(kind resourceKind, handle uint64) {
	c.mu.Lock()
	delete(c.live, trackKey{kind, handle})
	c.mu.Unlock()
}

// FindMemoryType returns the first memory type allowed by typeBits that has
// every requested property.
func (c *Context) FindMemoryType(typeBits uint32, props gpu.MemoryProperty) (uint32, error) {
	for i, t := range c.Properties.MemoryTypes {
		if typeBits&(1<<uint(i)) != 0 && t.Properties&props == props {
			return uint32(i), nil
		}
	}
	err := fmt.Errorf("%w: type bits %#x, properties %#x", ErrNoMemoryType, typeBits, props)
	core.LogError(err.Error())
	return 0, err
}

// allocate finds a memory type for reqs and allocates it.
func (c *Context) allocate(reqs gpu.MemoryRequirements, props gpu.MemoryProperty) (gpu.DeviceMemory, error) {
	typeIndex, err := c.FindMemoryType(reqs.MemoryTypeBits, props)
	if err != nil {
		return 0, err
	}
	mem, err := c.Device.AllocateMemory(reqs.Size, typeIndex)
	if err != nil {
		err = fmt.Errorf("failed to allocate %d bytes: %w", reqs.Size, err)
		core.LogError(err.Error())
		return 0, err
	}
	return mem, nil
}

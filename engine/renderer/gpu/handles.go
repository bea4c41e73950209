// Package gpu describes the explicit GPU driver contract shared by the
// Vulkan driver and the simulated driver. Handles are opaque and the zero
// value of every handle type is the null handle.
package gpu

type (
	Queue               uint64
	Buffer              uint64
	DeviceMemory        uint64
	Image               uint64
	ImageView           uint64
	Sampler             uint64
	ShaderModule        uint64
	DescriptorSetLayout uint64
	DescriptorPool      uint64
	DescriptorSet       uint64
	PipelineLayout      uint64
	Pipeline            uint64
	RenderPass          uint64
	Framebuffer         uint64
	CommandPool         uint64
	CommandBuffer       uint64
	Fence               uint64
	Semaphore           uint64
	Swapchain           uint64
)

// WaitForever is the timeout for unbounded waits.
const WaitForever uint64 = ^uint64(0)

// WholeSize selects the remainder of a buffer or mapping.
const WholeSize uint64 = ^uint64(0)

package gpu

// ResourceDevice creates and destroys GPU objects. Destroy calls accept the
// null handle and do nothing with it.
type ResourceDevice interface {
	Properties() DeviceProperties

	CreateBuffer(info BufferInfo) (Buffer, MemoryRequirements, error)
	DestroyBuffer(buffer Buffer)
	AllocateMemory(size uint64, memoryTypeIndex uint32) (DeviceMemory, error)
	FreeMemory(memory DeviceMemory)
	BindBufferMemory(buffer Buffer, memory DeviceMemory, offset uint64) error
	// MapMemory returns a byte view of host visible memory, valid until UnmapMemory.
	MapMemory(memory DeviceMemory, offset, size uint64) ([]byte, error)
	UnmapMemory(memory DeviceMemory)

	CreateImage(info ImageInfo) (Image, MemoryRequirements, error)
	DestroyImage(image Image)
	BindImageMemory(image Image, memory DeviceMemory, offset uint64) error
	CreateImageView(info ImageViewInfo) (ImageView, error)
	DestroyImageView(view ImageView)
	CreateSampler(info SamplerInfo) (Sampler, error)
	DestroySampler(sampler Sampler)

	CreateShaderModule(code []byte) (ShaderModule, error)
	DestroyShaderModule(module ShaderModule)

	CreateDescriptorSetLayout(bindings []DescriptorBinding) (DescriptorSetLayout, error)
	DestroyDescriptorSetLayout(layout DescriptorSetLayout)
	CreateDescriptorPool(info DescriptorPoolInfo) (DescriptorPool, error)
	// ResetDescriptorPool frees every set allocated from the pool.
	ResetDescriptorPool(pool DescriptorPool) error
	DestroyDescriptorPool(pool DescriptorPool)
	AllocateDescriptorSets(pool DescriptorPool, layouts []DescriptorSetLayout) ([]DescriptorSet, error)
	UpdateDescriptorSets(writes []DescriptorWrite)

	CreatePipelineLayout(info PipelineLayoutInfo) (PipelineLayout, error)
	DestroyPipelineLayout(layout PipelineLayout)
	CreateGraphicsPipeline(info GraphicsPipelineInfo) (Pipeline, error)
	CreateComputePipeline(info ComputePipelineInfo) (Pipeline, error)
	DestroyPipeline(pipeline Pipeline)

	CreateRenderPass(info RenderPassInfo) (RenderPass, error)
	DestroyRenderPass(pass RenderPass)
	CreateFramebuffer(info FramebufferInfo) (Framebuffer, error)
	DestroyFramebuffer(framebuffer Framebuffer)
}

// CommandDevice allocates command buffers and records into them.
type CommandDevice interface {
	CreateCommandPool(queue Queue, resettable bool) (CommandPool, error)
	DestroyCommandPool(pool CommandPool)
	AllocateCommandBuffers(pool CommandPool, count uint32) ([]CommandBuffer, error)
	FreeCommandBuffers(pool CommandPool, buffers []CommandBuffer)
	BeginCommandBuffer(cb CommandBuffer, usage CommandBufferUsage) error
	EndCommandBuffer(cb CommandBuffer) error
	ResetCommandBuffer(cb CommandBuffer) error

	CmdCopyBuffer(cb CommandBuffer, src, dst Buffer, regions []BufferCopy)
	CmdCopyBufferToImage(cb CommandBuffer, src Buffer, dst Image, layout ImageLayout, regions []BufferImageCopy)
	CmdCopyImageToBuffer(cb CommandBuffer, src Image, layout ImageLayout, dst Buffer, regions []BufferImageCopy)
	CmdPipelineBarrier(cb CommandBuffer, srcStage, dstStage PipelineStage, barriers []ImageBarrier)
	CmdBeginRenderPass(cb CommandBuffer, info RenderPassBeginInfo)
	CmdEndRenderPass(cb CommandBuffer)
	CmdBindPipeline(cb CommandBuffer, bindPoint PipelineBindPoint, pipeline Pipeline)
	CmdBindVertexBuffers(cb CommandBuffer, firstBinding uint32, buffers []Buffer, offsets []uint64)
	CmdBindIndexBuffer(cb CommandBuffer, buffer Buffer, offset uint64, indexType IndexType)
	CmdBindDescriptorSets(cb CommandBuffer, bindPoint PipelineBindPoint, layout PipelineLayout, firstSet uint32, sets []DescriptorSet)
	CmdPushConstants(cb CommandBuffer, layout PipelineLayout, stages ShaderStage, offset uint32, data []byte)
	CmdSetViewport(cb CommandBuffer, viewport Viewport)
	CmdSetScissor(cb CommandBuffer, scissor Rect2D)
	CmdDraw(cb CommandBuffer, vertexCount, instanceCount, firstVertex, firstInstance uint32)
	CmdDrawIndexed(cb CommandBuffer, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)
	CmdDispatch(cb CommandBuffer, x, y, z uint32)
}

// SyncDevice owns fences, semaphores and queue submission.
type SyncDevice interface {
	CreateFence(signaled bool) (Fence, error)
	DestroyFence(fence Fence)
	// WaitForFences blocks until every fence is signaled or the timeout, in
	// nanoseconds, expires (ErrTimeout).
	WaitForFences(fences []Fence, timeout uint64) error
	ResetFences(fences []Fence) error
	FenceStatus(fence Fence) (bool, error)
	CreateSemaphore() (Semaphore, error)
	DestroySemaphore(semaphore Semaphore)

	GraphicsQueue() Queue
	PresentQueue() Queue
	QueueSubmit(queue Queue, submits []SubmitInfo, fence Fence) error
	QueueWaitIdle(queue Queue) error
	DeviceWaitIdle() error
}

// PresentDevice drives the swapchain of the surface the device was created for.
type PresentDevice interface {
	SurfaceCapabilities() (SurfaceCapabilities, error)
	CreateSwapchain(info SwapchainInfo) (Swapchain, error)
	DestroySwapchain(swapchain Swapchain)
	SwapchainImages(swapchain Swapchain) ([]Image, error)
	// AcquireNextImage signals the semaphore and/or fence once the image is
	// ready. A suboptimal acquire returns a usable index along with ErrSuboptimal.
	AcquireNextImage(swapchain Swapchain, timeout uint64, semaphore Semaphore, fence Fence) (uint32, error)
	QueuePresent(queue Queue, info PresentInfo) error
}

// Device is the full driver contract.
type Device interface {
	ResourceDevice
	CommandDevice
	SyncDevice
	PresentDevice

	// Destroy tears down the device. Every object created from it must have
	// been destroyed before.
	Destroy()
}

package gpu

type Extent2D struct {
	Width  uint32
	Height uint32
}

type Offset2D struct {
	X int32
	Y int32
}

type Rect2D struct {
	Offset Offset2D
	Extent Extent2D
}

type Viewport struct {
	X, Y          float32
	Width, Height float32
	MinDepth      float32
	MaxDepth      float32
}

type MemoryType struct {
	Properties MemoryProperty
	HeapIndex  uint32
}

type MemoryRequirements struct {
	Size           uint64
	Alignment      uint64
	MemoryTypeBits uint32
}

type DeviceProperties struct {
	Name        string
	MemoryTypes []MemoryType
	DepthFormat Format
	// Minimum alignment for uniform buffer offsets.
	MinUniformBufferOffsetAlignment uint64
	MaxPushConstantsSize            uint32
	MaxSamplerAnisotropy            float32
}

type BufferInfo struct {
	Size  uint64
	Usage BufferUsage
}

// ImageInfo describes a single level, single layer 2D image.
type ImageInfo struct {
	Width  uint32
	Height uint32
	Format Format
	Usage  ImageUsage
	// Linear tiling is only requested for host readable images.
	Linear bool
}

type ImageViewInfo struct {
	Image  Image
	Format Format
	Aspect ImageAspect
}

type SamplerInfo struct {
	MagFilter     Filter
	MinFilter     Filter
	AddressMode   SamplerAddressMode
	MaxAnisotropy float32
	MaxLod        float32
}

type DescriptorBinding struct {
	Binding uint32
	Type    DescriptorType
	Count   uint32
	Stages  ShaderStage
}

type DescriptorPoolSize struct {
	Type  DescriptorType
	Count uint32
}

type DescriptorPoolInfo struct {
	MaxSets uint32
	Sizes   []DescriptorPoolSize
}

type DescriptorBufferInfo struct {
	Buffer Buffer
	Offset uint64
	Range  uint64
}

type DescriptorImageInfo struct {
	Sampler Sampler
	View    ImageView
	Layout  ImageLayout
}

// DescriptorWrite updates one binding of a set. Exactly one of Buffers or
// Images is used, depending on Type.
type DescriptorWrite struct {
	Set          DescriptorSet
	Binding      uint32
	ArrayElement uint32
	Type         DescriptorType
	Buffers      []DescriptorBufferInfo
	Images       []DescriptorImageInfo
}

type PushConstantRange struct {
	Stages ShaderStage
	Offset uint32
	Size   uint32
}

type PipelineLayoutInfo struct {
	SetLayouts    []DescriptorSetLayout
	PushConstants []PushConstantRange
}

type ShaderStageInfo struct {
	Stage      ShaderStage
	Module     ShaderModule
	EntryPoint string
}

type VertexBinding struct {
	Binding   uint32
	Stride    uint32
	InputRate VertexInputRate
}

type VertexAttribute struct {
	Location uint32
	Binding  uint32
	Format   Format
	Offset   uint32
}

type GraphicsPipelineInfo struct {
	Stages           []ShaderStageInfo
	VertexBindings   []VertexBinding
	VertexAttributes []VertexAttribute
	Topology         PrimitiveTopology
	PolygonMode      PolygonMode
	CullMode         CullMode
	FrontFace        FrontFace
	DepthTest        bool
	DepthWrite       bool
	DepthCompare     CompareOp
	BlendEnable      bool
	Layout           PipelineLayout
	RenderPass       RenderPass
	Subpass          uint32
	Viewport         Viewport
	Scissor          Rect2D
	DynamicViewport  bool
}

type ComputePipelineInfo struct {
	Stage  ShaderStageInfo
	Layout PipelineLayout
}

type AttachmentInfo struct {
	Format        Format
	LoadOp        LoadOp
	StoreOp       StoreOp
	InitialLayout ImageLayout
	FinalLayout   ImageLayout
}

// RenderPassInfo describes a single subpass pass with optional depth.
type RenderPassInfo struct {
	Color []AttachmentInfo
	Depth *AttachmentInfo
}

type FramebufferInfo struct {
	RenderPass  RenderPass
	Attachments []ImageView
	Width       uint32
	Height      uint32
}

type ClearValue struct {
	Color   [4]float32
	Depth   float32
	Stencil uint32
}

type RenderPassBeginInfo struct {
	RenderPass  RenderPass
	Framebuffer Framebuffer
	Area        Rect2D
	ClearValues []ClearValue
}

type BufferCopy struct {
	SrcOffset uint64
	DstOffset uint64
	Size      uint64
}

type BufferImageCopy struct {
	BufferOffset uint64
	Aspect       ImageAspect
	Width        uint32
	Height       uint32
}

type ImageBarrier struct {
	Image     Image
	OldLayout ImageLayout
	NewLayout ImageLayout
	SrcAccess Access
	DstAccess Access
	Aspect    ImageAspect
}

type SubmitInfo struct {
	WaitSemaphores   []Semaphore
	WaitStages       []PipelineStage
	CommandBuffers   []CommandBuffer
	SignalSemaphores []Semaphore
}

type PresentInfo struct {
	WaitSemaphores []Semaphore
	Swapchain      Swapchain
	ImageIndex     uint32
}

type SurfaceFormat struct {
	Format     Format
	ColorSpace ColorSpace
}

// SurfaceCapabilities mirrors the surface query of the windowing system.
// CurrentExtent.Width == UndefinedExtent lets the swapchain pick its size.
type SurfaceCapabilities struct {
	MinImageCount uint32
	MaxImageCount uint32
	CurrentExtent Extent2D
	MinExtent     Extent2D
	MaxExtent     Extent2D
	Formats       []SurfaceFormat
	PresentModes  []PresentMode
}

const UndefinedExtent uint32 = 0xFFFFFFFF

type SwapchainInfo struct {
	MinImageCount uint32
	Format        SurfaceFormat
	Extent        Extent2D
	PresentMode   PresentMode
	// The previous swapchain, retired by the creation.
	OldSwapchain Swapchain
}

package gpu

// The numeric values below match the Vulkan ones so that the Vulkan driver
// converts with a plain cast.

type Format uint32

const (
	FormatUndefined          Format = 0
	FormatR8Unorm            Format = 9
	FormatR8G8B8A8Unorm      Format = 37
	FormatR8G8B8A8Srgb       Format = 43
	FormatB8G8R8A8Unorm      Format = 44
	FormatB8G8R8A8Srgb       Format = 50
	FormatR32Sfloat          Format = 100
	FormatR32G32Sfloat       Format = 103
	FormatR32G32B32Sfloat    Format = 106
	FormatR32G32B32A32Sfloat Format = 109
	FormatD32Sfloat          Format = 126
	FormatD24UnormS8Uint     Format = 129
	FormatD32SfloatS8Uint    Format = 130
)

// Size returns the size in bytes of one texel, 0 for unknown formats.
func (f Format) Size() uint64 {
	switch f {
	case FormatR8Unorm:
		return 1
	case FormatR8G8B8A8Unorm, FormatR8G8B8A8Srgb, FormatB8G8R8A8Unorm, FormatB8G8R8A8Srgb,
		FormatR32Sfloat, FormatD32Sfloat, FormatD24UnormS8Uint:
		return 4
	case FormatD32SfloatS8Uint, FormatR32G32Sfloat:
		return 8
	case FormatR32G32B32Sfloat:
		return 12
	case FormatR32G32B32A32Sfloat:
		return 16
	}
	return 0
}

func (f Format) IsDepth() bool {
	return f == FormatD32Sfloat || f == FormatD24UnormS8Uint || f == FormatD32SfloatS8Uint
}

func (f Format) HasStencil() bool {
	return f == FormatD24UnormS8Uint || f == FormatD32SfloatS8Uint
}

type ColorSpace uint32

const ColorSpaceSrgbNonlinear ColorSpace = 0

type PresentMode uint32

const (
	PresentModeImmediate   PresentMode = 0
	PresentModeMailbox     PresentMode = 1
	PresentModeFifo        PresentMode = 2
	PresentModeFifoRelaxed PresentMode = 3
)

type BufferUsage uint32

const (
	BufferUsageTransferSrc BufferUsage = 0x1
	BufferUsageTransferDst BufferUsage = 0x2
	BufferUsageUniform     BufferUsage = 0x10
	BufferUsageStorage     BufferUsage = 0x20
	BufferUsageIndex       BufferUsage = 0x40
	BufferUsageVertex      BufferUsage = 0x80
	BufferUsageIndirect    BufferUsage = 0x100
)

type ImageUsage uint32

const (
	ImageUsageTransferSrc            ImageUsage = 0x1
	ImageUsageTransferDst            ImageUsage = 0x2
	ImageUsageSampled                ImageUsage = 0x4
	ImageUsageStorage                ImageUsage = 0x8
	ImageUsageColorAttachment        ImageUsage = 0x10
	ImageUsageDepthStencilAttachment ImageUsage = 0x20
)

type MemoryProperty uint32

const (
	MemoryPropertyDeviceLocal  MemoryProperty = 0x1
	MemoryPropertyHostVisible  MemoryProperty = 0x2
	MemoryPropertyHostCoherent MemoryProperty = 0x4
	MemoryPropertyHostCached   MemoryProperty = 0x8
)

type ImageAspect uint32

const (
	ImageAspectColor   ImageAspect = 0x1
	ImageAspectDepth   ImageAspect = 0x2
	ImageAspectStencil ImageAspect = 0x4
)

type ImageLayout uint32

const (
	ImageLayoutUndefined                     ImageLayout = 0
	ImageLayoutGeneral                       ImageLayout = 1
	ImageLayoutColorAttachmentOptimal        ImageLayout = 2
	ImageLayoutDepthStencilAttachmentOptimal ImageLayout = 3
	ImageLayoutDepthStencilReadOnlyOptimal   ImageLayout = 4
	ImageLayoutShaderReadOnlyOptimal         ImageLayout = 5
	ImageLayoutTransferSrcOptimal            ImageLayout = 6
	ImageLayoutTransferDstOptimal            ImageLayout = 7
	ImageLayoutPresentSrc                    ImageLayout = 1000001002
)

type DescriptorType uint32

const (
	DescriptorTypeSampler              DescriptorType = 0
	DescriptorTypeCombinedImageSampler DescriptorType = 1
	DescriptorTypeSampledImage         DescriptorType = 2
	DescriptorTypeStorageImage         DescriptorType = 3
	DescriptorTypeUniformBuffer        DescriptorType = 6
	DescriptorTypeStorageBuffer        DescriptorType = 7
)

type ShaderStage uint32

const (
	ShaderStageVertex   ShaderStage = 0x1
	ShaderStageGeometry ShaderStage = 0x8
	ShaderStageFragment ShaderStage = 0x10
	ShaderStageCompute  ShaderStage = 0x20
)

type PipelineStage uint32

const (
	PipelineStageTopOfPipe             PipelineStage = 0x1
	PipelineStageVertexInput           PipelineStage = 0x4
	PipelineStageVertexShader          PipelineStage = 0x8
	PipelineStageFragmentShader        PipelineStage = 0x80
	PipelineStageEarlyFragmentTests    PipelineStage = 0x100
	PipelineStageLateFragmentTests     PipelineStage = 0x200
	PipelineStageColorAttachmentOutput PipelineStage = 0x400
	PipelineStageComputeShader         PipelineStage = 0x800
	PipelineStageTransfer              PipelineStage = 0x1000
	PipelineStageBottomOfPipe          PipelineStage = 0x2000
	PipelineStageHost                  PipelineStage = 0x4000
	PipelineStageAllCommands           PipelineStage = 0x10000
)

type Access uint32

const (
	AccessIndexRead                   Access = 0x2
	AccessVertexAttributeRead         Access = 0x4
	AccessUniformRead                 Access = 0x8
	AccessShaderRead                  Access = 0x20
	AccessShaderWrite                 Access = 0x40
	AccessColorAttachmentRead         Access = 0x80
	AccessColorAttachmentWrite        Access = 0x100
	AccessDepthStencilAttachmentRead  Access = 0x200
	AccessDepthStencilAttachmentWrite Access = 0x400
	AccessTransferRead                Access = 0x800
	AccessTransferWrite               Access = 0x1000
	AccessHostRead                    Access = 0x2000
	AccessHostWrite                   Access = 0x4000
)

type Filter uint32

const (
	FilterNearest Filter = 0
	FilterLinear  Filter = 1
)

type SamplerAddressMode uint32

const (
	SamplerAddressModeRepeat         SamplerAddressMode = 0
	SamplerAddressModeMirroredRepeat SamplerAddressMode = 1
	SamplerAddressModeClampToEdge    SamplerAddressMode = 2
	SamplerAddressModeClampToBorder  SamplerAddressMode = 3
)

type PrimitiveTopology uint32

const (
	PrimitiveTopologyPointList     PrimitiveTopology = 0
	PrimitiveTopologyLineList      PrimitiveTopology = 1
	PrimitiveTopologyLineStrip     PrimitiveTopology = 2
	PrimitiveTopologyTriangleList  PrimitiveTopology = 3
	PrimitiveTopologyTriangleStrip PrimitiveTopology = 4
)

type PolygonMode uint32

const (
	PolygonModeFill PolygonMode = 0
	PolygonModeLine PolygonMode = 1
)

type CullMode uint32

const (
	CullModeNone         CullMode = 0
	CullModeFront        CullMode = 1
	CullModeBack         CullMode = 2
	CullModeFrontAndBack CullMode = 3
)

type FrontFace uint32

const (
	FrontFaceCounterClockwise FrontFace = 0
	FrontFaceClockwise        FrontFace = 1
)

type CompareOp uint32

const (
	CompareOpNever       CompareOp = 0
	CompareOpLess        CompareOp = 1
	CompareOpLessOrEqual CompareOp = 3
	CompareOpAlways      CompareOp = 7
)

type VertexInputRate uint32

const (
	VertexInputRateVertex   VertexInputRate = 0
	VertexInputRateInstance VertexInputRate = 1
)

type IndexType uint32

const (
	IndexTypeUint16 IndexType = 0
	IndexTypeUint32 IndexType = 1
)

type PipelineBindPoint uint32

const (
	PipelineBindPointGraphics PipelineBindPoint = 0
	PipelineBindPointCompute  PipelineBindPoint = 1
)

type LoadOp uint32

const (
	LoadOpLoad     LoadOp = 0
	LoadOpClear    LoadOp = 1
	LoadOpDontCare LoadOp = 2
)

type StoreOp uint32

const (
	StoreOpStore    StoreOp = 0
	StoreOpDontCare StoreOp = 1
)

type CommandBufferUsage uint32

const (
	CommandBufferUsageOneTimeSubmit      CommandBufferUsage = 0x1
	CommandBufferUsageRenderPassContinue CommandBufferUsage = 0x2
	CommandBufferUsageSimultaneousUse    CommandBufferUsage = 0x4
)

package renderer

import (
	"fmt"

	"github.com/spaghettifunk/prism/engine/assets"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
)

type Sampler struct {
	Name   string
	Handle gpu.Sampler
	ctx    *Context
}

func (c *Context) CreateSampler(info gpu.SamplerInfo, name string) (*Sampler, error) {
	info.MaxAnisotropy = min(info.MaxAnisotropy, c.Properties.MaxSamplerAnisotropy)
	h, err := c.Device.CreateSampler(info)
	if err != nil {
		err = fmt.Errorf("failed to create sampler `%s`: %w", name, err)
		core.LogError(err.Error())
		return nil, err
	}
	return &Sampler{Name: c.track(kindSampler, uint64(h), name), Handle: h, ctx: c}, nil
}

func (s *Sampler) Destroy() {
	if s == nil || s.Handle == 0 {
		return
	}
	s.ctx.Device.DestroySampler(s.Handle)
	s.ctx.untrack(kindSampler, uint64(s.Handle))
	s.Handle = 0
}

type ShaderModule struct {
	Name   string
	Handle gpu.ShaderModule
	ctx    *Context
}

func (c *Context) CreateShaderModule(code []byte, name string) (*ShaderModule, error) {
	h, err := c.Device.CreateShaderModule(code)
	if err != nil {
		err = fmt.Errorf("failed to create shader module `%s`: %w", name, err)
		core.LogError(err.Error())
		return nil, err
	}
	return &ShaderModule{Name: c.track(kindShaderModule, uint64(h), name), Handle: h, ctx: c}, nil
}

// LoadShaderModule reads SPIR-V bytecode from disk and creates a module from it.
func (c *Context) LoadShaderModule(path string) (*ShaderModule, error) {
	code, err := assets.LoadShaderCode(path)
	if err != nil {
		return nil, err
	}
	return c.CreateShaderModule(code, path)
}

func (m *ShaderModule) Destroy() {
	if m == nil || m.Handle == 0 {
		return
	}
	m.ctx.Device.DestroyShaderModule(m.Handle)
	m.ctx.untrack(kindShaderModule, uint64(m.Handle))
	m.Handle = 0
}

// Stage describes the module as a pipeline stage with a `main` entry point.
func (m *ShaderModule) Stage(stage gpu.ShaderStage) gpu.ShaderStageInfo {
	return gpu.ShaderStageInfo{Stage: stage, Module: m.Handle, EntryPoint: "main"}
}

type DescriptorSetLayout struct {
	Name     string
	Handle   gpu.DescriptorSetLayout
	Bindings []gpu.DescriptorBinding
	ctx      *Context
}

func (c *Context) CreateDescriptorSetLayout(bindings []gpu.DescriptorBinding, name string) (*DescriptorSetLayout, error) {
	h, err := c.Device.CreateDescriptorSetLayout(bindings)
	if err != nil {
		err = fmt.Errorf("failed to create descriptor set layout `%s`: %w", name, err)
		core.LogError(err.Error())
		return nil, err
	}
	return &DescriptorSetLayout{
		Name:     c.track(kindDescriptorSetLayout, uint64(h), name),
		Handle:   h,
		Bindings: bindings,
		ctx:      c,
	}, nil
}

func (l *DescriptorSetLayout) Destroy() {
	if l == nil || l.Handle == 0 {
		return
	}
	l.ctx.Device.DestroyDescriptorSetLayout(l.Handle)
	l.ctx.untrack(kindDescriptorSetLayout, uint64(l.Handle))
	l.Handle = 0
}

// DescriptorPool is sized once. Sets allocated from it are freed together on
// Reset or Destroy.
type DescriptorPool struct {
	Name   string
	Handle gpu.DescriptorPool
	Info   gpu.DescriptorPoolInfo
	ctx    *Context
}

func (c *Context) CreateDescriptorPool(info gpu.DescriptorPoolInfo, name string) (*DescriptorPool, error) {
	h, err := c.Device.CreateDescriptorPool(info)
	if err != nil {
		err = fmt.Errorf("failed to create descriptor pool `%s`: %w", name, err)
		core.LogError(err.Error())
		return nil, err
	}
	return &DescriptorPool{Name: c.track(kindDescriptorPool, uint64(h), name), Handle: h, Info: info, ctx: c}, nil
}

// Allocate allocates count sets with the same layout.
func (p *DescriptorPool) Allocate(layout *DescriptorSetLayout, count int) ([]gpu.DescriptorSet, error) {
	layouts := make([]gpu.DescriptorSetLayout, count)
	for i := range layouts {
		layouts[i] = layout.Handle
	}
	sets, err := p.ctx.Device.AllocateDescriptorSets(p.Handle, layouts)
	if err != nil {
		err = fmt.Errorf("failed to allocate %d descriptor sets from `%s`: %w", count, p.Name, err)
		core.LogError(err.Error())
		return nil, err
	}
	return sets, nil
}

func (p *DescriptorPool) Reset() error {
	if err := p.ctx.Device.ResetDescriptorPool(p.Handle); err != nil {
		err = fmt.Errorf("failed to reset descriptor pool `%s`: %w", p.Name, err)
		core.LogError(err.Error())
		return err
	}
	return nil
}

func (p *DescriptorPool) Destroy() {
	if p == nil || p.Handle == 0 {
		return
	}
	p.ctx.Device.DestroyDescriptorPool(p.Handle)
	p.ctx.untrack(kindDescriptorPool, uint64(p.Handle))
	p.Handle = 0
}

func (c *Context) UpdateDescriptorSets(writes ...gpu.DescriptorWrite) {
	c.Device.UpdateDescriptorSets(writes)
}

// UniformBufferWrite binds a whole buffer to a uniform binding.
func UniformBufferWrite(set gpu.DescriptorSet, binding uint32, b *Buffer) gpu.DescriptorWrite {
	return gpu.DescriptorWrite{
		Set:     set,
		Binding: binding,
		Type:    gpu.DescriptorTypeUniformBuffer,
		Buffers: []gpu.DescriptorBufferInfo{{Buffer: b.Handle, Range: b.Size}},
	}
}

// StorageBufferWrite binds a whole buffer to a storage binding.
func StorageBufferWrite(set gpu.DescriptorSet, binding uint32, b *Buffer) gpu.DescriptorWrite {
	return gpu.DescriptorWrite{
		Set:     set,
		Binding: binding,
		Type:    gpu.DescriptorTypeStorageBuffer,
		Buffers: []gpu.DescriptorBufferInfo{{Buffer: b.Handle, Range: b.Size}},
	}
}

// ImageSamplerWrite binds an image view and sampler to a combined image sampler binding.
func ImageSamplerWrite(set gpu.DescriptorSet, binding uint32, img *Image, s *Sampler) gpu.DescriptorWrite {
	return gpu.DescriptorWrite{
		Set:     set,
		Binding: binding,
		Type:    gpu.DescriptorTypeCombinedImageSampler,
		Images:  []gpu.DescriptorImageInfo{{Sampler: s.Handle, View: img.View, Layout: img.Layout}},
	}
}

type PipelineLayout struct {
	Name   string
	Handle gpu.PipelineLayout
	ctx    *Context
}

func (c *Context) CreatePipelineLayout(setLayouts []*DescriptorSetLayout, pushConstants []gpu.PushConstantRange, name string) (*PipelineLayout, error) {
	info := gpu.PipelineLayoutInfo{PushConstants: pushConstants}
	for _, l := range setLayouts {
		info.SetLayouts = append(info.SetLayouts, l.Handle)
	}
	h, err := c.Device.CreatePipelineLayout(info)
	if err != nil {
		err = fmt.Errorf("failed to create pipeline layout `%s`: %w", name, err)
		core.LogError(err.Error())
		return nil, err
	}
	return &PipelineLayout{Name: c.track(kindPipelineLayout, uint64(h), name), Handle: h, ctx: c}, nil
}

func (l *PipelineLayout) Destroy() {
	if l == nil || l.Handle == 0 {
		return
	}
	l.ctx.Device.DestroyPipelineLayout(l.Handle)
	l.ctx.untrack(kindPipelineLayout, uint64(l.Handle))
	l.Handle = 0
}

type GraphicsPipelineConfig struct {
	Name             string
	Layout           *PipelineLayout
	RenderPass       *RenderPass
	Stages           []gpu.ShaderStageInfo
	VertexBindings   []gpu.VertexBinding
	VertexAttributes []gpu.VertexAttribute
	Topology         gpu.PrimitiveTopology
	IsWireframe      bool
	CullMode         gpu.CullMode
	FrontFace        gpu.FrontFace
	DepthTest        bool
	DepthWrite       bool
	BlendEnable      bool
}

// NewGraphicsPipelineConfig returns the default configuration: triangle
// list, filled, back face culling, depth test and write.
func NewGraphicsPipelineConfig(name string, layout *PipelineLayout, pass *RenderPass, stages ...gpu.ShaderStageInfo) GraphicsPipelineConfig {
	return GraphicsPipelineConfig{
		Name:       name,
		Layout:     layout,
		RenderPass: pass,
		Stages:     stages,
		Topology:   gpu.PrimitiveTopologyTriangleList,
		CullMode:   gpu.CullModeBack,
		FrontFace:  gpu.FrontFaceCounterClockwise,
		DepthTest:  true,
		DepthWrite: true,
	}
}

type Pipeline struct {
	Name      string
	Handle    gpu.Pipeline
	BindPoint gpu.PipelineBindPoint
	Layout    *PipelineLayout
	ctx       *Context
}

// CreateGraphicsPipeline builds a pipeline with dynamic viewport and scissor.
func (c *Context) CreateGraphicsPipeline(cfg GraphicsPipelineConfig) (*Pipeline, error) {
	polygonMode := gpu.PolygonModeFill
	if cfg.IsWireframe {
		polygonMode = gpu.PolygonModeLine
	}
	info := gpu.GraphicsPipelineInfo{
		Stages:           cfg.Stages,
		VertexBindings:   cfg.VertexBindings,
		VertexAttributes: cfg.VertexAttributes,
		Topology:         cfg.Topology,
		PolygonMode:      polygonMode,
		CullMode:         cfg.CullMode,
		FrontFace:        cfg.FrontFace,
		DepthTest:        cfg.DepthTest,
		DepthWrite:       cfg.DepthWrite,
		DepthCompare:     gpu.CompareOpLess,
		BlendEnable:      cfg.BlendEnable,
		Layout:           cfg.Layout.Handle,
		RenderPass:       cfg.RenderPass.Handle,
		DynamicViewport:  true,
	}
	h, err := c.Device.CreateGraphicsPipeline(info)
	if err != nil {
		err = fmt.Errorf("failed to create graphics pipeline `%s`: %w", cfg.Name, err)
		core.LogError(err.Error())
		return nil, err
	}
	return &Pipeline{
		Name:      c.track(kindPipeline, uint64(h), cfg.Name),
		Handle:    h,
		BindPoint: gpu.PipelineBindPointGraphics,
		Layout:    cfg.Layout,
		ctx:       c,
	}, nil
}

func (c *Context) CreateComputePipeline(layout *PipelineLayout, stage gpu.ShaderStageInfo, name string) (*Pipeline, error) {
	h, err := c.Device.CreateComputePipeline(gpu.ComputePipelineInfo{Stage: stage, Layout: layout.Handle})
	if err != nil {
		err = fmt.Errorf("failed to create compute pipeline `%s`: %w", name, err)
		core.LogError(err.Error())
		return nil, err
	}
	return &Pipeline{
		Name:      c.track(kindPipeline, uint64(h), name),
		Handle:    h,
		BindPoint: gpu.PipelineBindPointCompute,
		Layout:    layout,
		ctx:       c,
	}, nil
}

// Destroy releases the pipeline. The layout is owned separately.
func (p *Pipeline) Destroy() {
	if p == nil || p.Handle == 0 {
		return
	}
	p.ctx.Device.DestroyPipeline(p.Handle)
	p.ctx.untrack(kindPipeline, uint64(p.Handle))
	p.Handle = 0
}

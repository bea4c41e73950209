package testbed

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/spaghettifunk/prism/engine"
	"github.com/spaghettifunk/prism/engine/assets"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
)

const (
	vertexShaderName   = "quad.vert.spv"
	fragmentShaderName = "quad.frag.spv"
)

// Testbed draws the quad through the Vulkan renderer.
type Testbed struct {
	cfg   *core.Config
	r     *renderer.Renderer
	world *world

	vertexShader   *renderer.ShaderModule
	fragmentShader *renderer.ShaderModule
	vertices       *renderer.Buffer
	indices        *renderer.Buffer
	texture        *renderer.Image
	sampler        *renderer.Sampler

	setLayout      *renderer.DescriptorSetLayout
	pipelineLayout *renderer.PipelineLayout
	pipeline       *renderer.Pipeline
	pool           *renderer.DescriptorPool
	sets           []gpu.DescriptorSet
	// one per swapchain image
	uniforms []*renderer.Buffer
}

var (
	_ engine.VulkanApplication = (*Testbed)(nil)
	_ engine.PipelineStages    = (*Testbed)(nil)
)

func New(cfg *core.Config) *Testbed {
	return &Testbed{cfg: cfg}
}

func (t *Testbed) Init(r *renderer.Renderer) error {
	t.r = r
	w, err := newWorld()
	if err != nil {
		return err
	}
	t.world = w
	return nil
}

func (t *Testbed) Load() error {
	ctx := t.r.Context()
	var scope renderer.Scope
	defer scope.Release()

	code, err := assets.LoadShaders(context.Background(),
		filepath.Join(t.cfg.Assets.ShaderDir, vertexShaderName),
		filepath.Join(t.cfg.Assets.ShaderDir, fragmentShaderName))
	if err != nil {
		return err
	}
	if t.vertexShader, err = ctx.CreateShaderModule(code[0], vertexShaderName); err != nil {
		return err
	}
	scope.Defer(t.vertexShader.Destroy)
	if t.fragmentShader, err = ctx.CreateShaderModule(code[1], fragmentShaderName); err != nil {
		return err
	}
	scope.Defer(t.fragmentShader.Destroy)

	vb := vertexBytes()
	if t.vertices, err = ctx.CreateBuffer(gpu.BufferUsageVertex, gpu.MemoryPropertyDeviceLocal, uint64(len(vb)), vb, "quad vertices"); err != nil {
		return err
	}
	scope.Defer(t.vertices.Destroy)
	ib := indexBytes()
	if t.indices, err = ctx.CreateBuffer(gpu.BufferUsageIndex, gpu.MemoryPropertyDeviceLocal, uint64(len(ib)), ib, "quad indices"); err != nil {
		return err
	}
	scope.Defer(t.indices.Destroy)

	width, height, pixels, err := loadTexture(t.cfg.Assets.TextureDir, false)
	if err != nil {
		return err
	}
	t.texture, err = ctx.CreateImage(renderer.ImageConfig{
		Name:   textureName,
		Width:  width,
		Height: height,
		Format: gpu.FormatR8G8B8A8Srgb,
		Usage:  gpu.ImageUsageSampled,
		Pixels: pixels,
	})
	if err != nil {
		return err
	}
	scope.Defer(t.texture.Destroy)
	t.sampler, err = ctx.CreateSampler(gpu.SamplerInfo{
		MagFilter:     gpu.FilterLinear,
		MinFilter:     gpu.FilterLinear,
		AddressMode:   gpu.SamplerAddressModeRepeat,
		MaxAnisotropy: 1,
	}, "quad sampler")
	if err != nil {
		return err
	}

	scope.Commit()
	return nil
}

func (t *Testbed) CreateDescriptorSetLayout() error {
	var err error
	t.setLayout, err = t.r.Context().CreateDescriptorSetLayout([]gpu.DescriptorBinding{
		{Binding: 0, Type: gpu.DescriptorTypeUniformBuffer, Count: 1, Stages: gpu.ShaderStageVertex},
		{Binding: 1, Type: gpu.DescriptorTypeCombinedImageSampler, Count: 1, Stages: gpu.ShaderStageFragment},
	}, "quad set layout")
	return err
}

func (t *Testbed) CreatePipeline() error {
	ctx := t.r.Context()
	var err error
	t.pipelineLayout, err = ctx.CreatePipelineLayout([]*renderer.DescriptorSetLayout{t.setLayout}, nil, "quad pipeline layout")
	if err != nil {
		return err
	}
	cfg := renderer.NewGraphicsPipelineConfig("quad", t.pipelineLayout, t.r.RenderPass(),
		t.vertexShader.Stage(gpu.ShaderStageVertex),
		t.fragmentShader.Stage(gpu.ShaderStageFragment))
	cfg.VertexBindings = []gpu.VertexBinding{{Binding: 0, Stride: vertexStride, InputRate: gpu.VertexInputRateVertex}}
	cfg.VertexAttributes = []gpu.VertexAttribute{
		{Location: 0, Binding: 0, Format: gpu.FormatR32G32B32Sfloat, Offset: 0},
		{Location: 1, Binding: 0, Format: gpu.FormatR32G32Sfloat, Offset: 12},
	}
	// the quad is seen from both sides while it spins
	cfg.CullMode = gpu.CullModeNone
	t.pipeline, err = ctx.CreateGraphicsPipeline(cfg)
	return err
}

func (t *Testbed) CreateDescriptorPool() error {
	n := uint32(t.r.ImageCount())
	var err error
	t.pool, err = t.r.Context().CreateDescriptorPool(gpu.DescriptorPoolInfo{
		MaxSets: n,
		Sizes: []gpu.DescriptorPoolSize{
			{Type: gpu.DescriptorTypeUniformBuffer, Count: n},
			{Type: gpu.DescriptorTypeCombinedImageSampler, Count: n},
		},
	}, "quad descriptor pool")
	return err
}

func (t *Testbed) CreateDescriptorSets() error {
	ctx := t.r.Context()
	n := t.r.ImageCount()
	t.uniforms = make([]*renderer.Buffer, 0, n)
	for range n {
		b, err := ctx.CreateBuffer(gpu.BufferUsageUniform,
			gpu.MemoryPropertyHostVisible|gpu.MemoryPropertyHostCoherent,
			uniformSize, nil, "quad uniforms")
		if err != nil {
			return err
		}
		t.uniforms = append(t.uniforms, b)
	}
	sets, err := t.pool.Allocate(t.setLayout, n)
	if err != nil {
		return err
	}
	t.sets = sets
	writes := make([]gpu.DescriptorWrite, 0, 2*n)
	for i, set := range sets {
		writes = append(writes,
			renderer.UniformBufferWrite(set, 0, t.uniforms[i]),
			renderer.ImageSamplerWrite(set, 1, t.texture, t.sampler))
	}
	ctx.UpdateDescriptorSets(writes...)
	return nil
}

func (t *Testbed) destroyPerImage() {
	for _, b := range t.uniforms {
		b.Destroy()
	}
	t.uniforms = nil
	t.sets = nil
	if t.pool != nil {
		t.pool.Destroy()
		t.pool = nil
	}
}

func (t *Testbed) RecordCommandBuffers() error {
	extent := t.r.Extent()
	return t.r.RecordCommandBuffers(func(cb *renderer.CommandBuffer, i int) error {
		t.r.BeginRenderPass(cb, i)
		cb.SetViewport(extent)
		cb.BindPipeline(t.pipeline)
		cb.BindVertexBuffer(t.vertices, 0)
		cb.BindIndexBuffer(t.indices, 0, gpu.IndexTypeUint32)
		cb.BindDescriptorSets(t.pipeline, 0, t.sets[i])
		cb.DrawIndexed(uint32(len(quadIndices)), 1)
		t.r.EndRenderPass(cb)
		return nil
	})
}

func (t *Testbed) DrawFrame(delta float64) error {
	t.world.update(delta)
	return t.r.Frame(func(imageIndex uint32) error {
		if int(imageIndex) >= len(t.uniforms) {
			return errors.New("image index out of range of the uniform buffers")
		}
		extent := t.r.Extent()
		ubo := newUniforms(t.world.quadModel(), t.world.camera.View(), extent.Width, extent.Height, true)
		return t.uniforms[imageIndex].Write(0, ubo.bytes())
	})
}

func (t *Testbed) UnLoad() {
	t.destroyPerImage()
	for _, d := range []interface{ Destroy() }{
		t.pipeline, t.pipelineLayout, t.setLayout,
		t.sampler, t.texture, t.indices, t.vertices,
		t.fragmentShader, t.vertexShader,
	} {
		d.Destroy()
	}
}

func (t *Testbed) Exit() {
	if t.world != nil {
		t.world.destroy()
	}
}

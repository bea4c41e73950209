package soft

import (
	"encoding/binary"

	"github.com/spaghettifunk/prism/engine/renderer/gpu"
)

// SPIRVMagic is the first word of every SPIR-V module.
const SPIRVMagic uint32 = 0x07230203

type descriptorPool struct {
	info      gpu.DescriptorPoolInfo
	remaining map[gpu.DescriptorType]uint32
	sets      map[uint64]struct{}
}

type descriptorSet struct {
	pool     uint64
	layout   uint64
	bindings map[uint32]gpu.DescriptorWrite
}

type pipeline struct {
	bindPoint gpu.PipelineBindPoint
	layout    uint64
}

func (d *Device) CreateShaderModule(code []byte) (gpu.ShaderModule, error) {
	if len(code) < 20 || len(code)%4 != 0 || binary.LittleEndian.Uint32(code) != SPIRVMagic {
		return 0, fail("CreateShaderModule", gpu.ErrInvalidShader)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	c := make([]byte, len(code))
	copy(c, code)
	return gpu.ShaderModule(d.shaders.Acquire(c)), nil
}

func (d *Device) DestroyShaderModule(m gpu.ShaderModule) {
	if m == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.shaders.Release(uint64(m)); !ok {
		d.violation("DestroyShaderModule: unknown module %d", m)
	}
}

func (d *Device) CreateDescriptorSetLayout(bindings []gpu.DescriptorBinding) (gpu.DescriptorSetLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	seen := make(map[uint32]bool, len(bindings))
	for _, b := range bindings {
		if seen[b.Binding] || b.Count == 0 {
			return 0, fail("CreateDescriptorSetLayout", gpu.ErrInvalidUsage)
		}
		seen[b.Binding] = true
	}
	c := make([]gpu.DescriptorBinding, len(bindings))
	copy(c, bindings)
	return gpu.DescriptorSetLayout(d.setLayouts.Acquire(c)), nil
}

func (d *Device) DestroyDescriptorSetLayout(l gpu.DescriptorSetLayout) {
	if l == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.setLayouts.Release(uint64(l)); !ok {
		d.violation("DestroyDescriptorSetLayout: unknown layout %d", l)
	}
}

func (d *Device) CreateDescriptorPool(info gpu.DescriptorPoolInfo) (gpu.DescriptorPool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if info.MaxSets == 0 {
		return 0, fail("CreateDescriptorPool", gpu.ErrInvalidUsage)
	}
	p := &descriptorPool{info: info}
	p.reset()
	return gpu.DescriptorPool(d.descriptorPools.Acquire(p)), nil
}

func (p *descriptorPool) reset() {
	p.remaining = make(map[gpu.DescriptorType]uint32, len(p.info.Sizes))
	for _, s := range p.info.Sizes {
		p.remaining[s.Type] += s.Count
	}
	p.sets = make(map[uint64]struct{})
}

func (d *Device) ResetDescriptorPool(pool gpu.DescriptorPool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.descriptorPools.Get(uint64(pool))
	if !ok {
		return fail("ResetDescriptorPool", gpu.ErrInvalidHandle)
	}
	for id := range p.sets {
		d.descriptorSets.Release(id)
	}
	p.reset()
	return nil
}

func (d *Device) DestroyDescriptorPool(pool gpu.DescriptorPool) {
	if pool == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.descriptorPools.Release(uint64(pool))
	if !ok {
		d.violation("DestroyDescriptorPool: unknown pool %d", pool)
		return
	}
	for id := range p.sets {
		d.descriptorSets.Release(id)
	}
}

func (d *Device) AllocateDescriptorSets(pool gpu.DescriptorPool, layouts []gpu.DescriptorSetLayout) ([]gpu.DescriptorSet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.descriptorPools.Get(uint64(pool))
	if !ok {
		return nil, fail("AllocateDescriptorSets", gpu.ErrInvalidHandle)
	}
	if uint32(len(p.sets)+len(layouts)) > p.info.MaxSets {
		return nil, fail("AllocateDescriptorSets", gpu.ErrOutOfPoolMemory)
	}
	need := make(map[gpu.DescriptorType]uint32)
	for _, l := range layouts {
		bindings, ok := d.setLayouts.Get(uint64(l))
		if !ok {
			return nil, fail("AllocateDescriptorSets", gpu.ErrInvalidHandle)
		}
		for _, b := range bindings {
			need[b.Type] += b.Count
		}
	}
	for t, n := range need {
		if p.remaining[t] < n {
			return nil, fail("AllocateDescriptorSets", gpu.ErrOutOfPoolMemory)
		}
	}
	for t, n := range need {
		p.remaining[t] -= n
	}
	sets := make([]gpu.DescriptorSet, len(layouts))
	for i, l := range layouts {
		id := d.descriptorSets.Acquire(&descriptorSet{
			pool:     uint64(pool),
			layout:   uint64(l),
			bindings: make(map[uint32]gpu.DescriptorWrite),
		})
		p.sets[id] = struct{}{}
		sets[i] = gpu.DescriptorSet(id)
	}
	return sets, nil
}

func (d *Device) UpdateDescriptorSets(writes []gpu.DescriptorWrite) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, w := range writes {
		set, ok := d.descriptorSets.Get(uint64(w.Set))
		if !ok {
			d.violation("UpdateDescriptorSets: unknown set %d", w.Set)
			continue
		}
		bindings, _ := d.setLayouts.Get(set.layout)
		var binding *gpu.DescriptorBinding
		for i := range bindings {
			if bindings[i].Binding == w.Binding {
				binding = &bindings[i]
			}
		}
		switch {
		case binding == nil:
			d.violation("UpdateDescriptorSets: set %d has no binding %d", w.Set, w.Binding)
		case binding.Type != w.Type:
			d.violation("UpdateDescriptorSets: binding %d type mismatch", w.Binding)
		default:
			for _, b := range w.Buffers {
				if _, ok := d.buffers.Get(uint64(b.Buffer)); !ok {
					d.violation("UpdateDescriptorSets: unknown buffer %d", b.Buffer)
				}
			}
			for _, i := range w.Images {
				if _, ok := d.views.Get(uint64(i.View)); !ok && i.View != 0 {
					d.violation("UpdateDescriptorSets: unknown image view %d", i.View)
				}
			}
			set.bindings[w.Binding] = w
		}
	}
}

// DescriptorWriteOf returns the last write recorded for a binding.
func (d *Device) DescriptorWriteOf(set gpu.DescriptorSet, binding uint32) (gpu.DescriptorWrite, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.descriptorSets.Get(uint64(set))
	if !ok {
		return gpu.DescriptorWrite{}, false
	}
	w, ok := s.bindings[binding]
	return w, ok
}

func (d *Device) CreatePipelineLayout(info gpu.PipelineLayoutInfo) (gpu.PipelineLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, l := range info.SetLayouts {
		if _, ok := d.setLayouts.Get(uint64(l)); !ok {
			return 0, fail("CreatePipelineLayout", gpu.ErrInvalidHandle)
		}
	}
	for _, pc := range info.PushConstants {
		if pc.Offset+pc.Size > d.props.MaxPushConstantsSize || pc.Size%4 != 0 {
			return 0, fail("CreatePipelineLayout", gpu.ErrInvalidUsage)
		}
	}
	return gpu.PipelineLayout(d.pipelineLayouts.Acquire(info)), nil
}

func (d *Device) DestroyPipelineLayout(l gpu.PipelineLayout) {
	if l == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.pipelineLayouts.Release(uint64(l)); !ok {
		d.violation("DestroyPipelineLayout: unknown layout %d", l)
	}
}

func (d *Device) CreateGraphicsPipeline(info gpu.GraphicsPipelineInfo) (gpu.Pipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.pipelineLayouts.Get(uint64(info.Layout)); !ok {
		return 0, fail("CreateGraphicsPipeline", gpu.ErrInvalidHandle)
	}
	if _, ok := d.renderPasses.Get(uint64(info.RenderPass)); !ok {
		return 0, fail("CreateGraphicsPipeline", gpu.ErrInvalidHandle)
	}
	var hasVertex bool
	for _, s := range info.Stages {
		if _, ok := d.shaders.Get(uint64(s.Module)); !ok {
			return 0, fail("CreateGraphicsPipeline", gpu.ErrInvalidHandle)
		}
		if s.Stage == gpu.ShaderStageCompute {
			return 0, fail("CreateGraphicsPipeline", gpu.ErrInvalidUsage)
		}
		hasVertex = hasVertex || s.Stage == gpu.ShaderStageVertex
	}
	if !hasVertex {
		return 0, fail("CreateGraphicsPipeline", gpu.ErrInvalidUsage)
	}
	id := d.pipelines.Acquire(&pipeline{bindPoint: gpu.PipelineBindPointGraphics, layout: uint64(info.Layout)})
	return gpu.Pipeline(id), nil
}

func (d *Device) CreateComputePipeline(info gpu.ComputePipelineInfo) (gpu.Pipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.pipelineLayouts.Get(uint64(info.Layout)); !ok {
		return 0, fail("CreateComputePipeline", gpu.ErrInvalidHandle)
	}
	if _, ok := d.shaders.Get(uint64(info.Stage.Module)); !ok || info.Stage.Stage != gpu.ShaderStageCompute {
		return 0, fail("CreateComputePipeline", gpu.ErrInvalidUsage)
	}
	id := d.pipelines.Acquire(&pipeline{bindPoint: gpu.PipelineBindPointCompute, layout: uint64(info.Layout)})
	return gpu.Pipeline(id), nil
}

func (d *Device) DestroyPipeline(p gpu.Pipeline) {
	if p == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.pipelines.Release(uint64(p)); !ok {
		d.violation("DestroyPipeline: unknown pipeline %d", p)
	}
}

func (d *Device) CreateRenderPass(info gpu.RenderPassInfo) (gpu.RenderPass, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(info.Color) == 0 && info.Depth == nil {
		return 0, fail("CreateRenderPass", gpu.ErrInvalidUsage)
	}
	if info.Depth != nil && !info.Depth.Format.IsDepth() {
		return 0, fail("CreateRenderPass", gpu.ErrInvalidUsage)
	}
	return gpu.RenderPass(d.renderPasses.Acquire(info)), nil
}

func (d *Device) DestroyRenderPass(p gpu.RenderPass) {
	if p == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.renderPasses.Release(uint64(p)); !ok {
		d.violation("DestroyRenderPass: unknown render pass %d", p)
	}
}

func (d *Device) CreateFramebuffer(info gpu.FramebufferInfo) (gpu.Framebuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	pass, ok := d.renderPasses.Get(uint64(info.RenderPass))
	if !ok {
		return 0, fail("CreateFramebuffer", gpu.ErrInvalidHandle)
	}
	want := len(pass.Color)
	if pass.Depth != nil {
		want++
	}
	if len(info.Attachments) != want {
		return 0, fail("CreateFramebuffer", gpu.ErrInvalidUsage)
	}
	for _, a := range info.Attachments {
		v, ok := d.views.Get(uint64(a))
		if !ok {
			return 0, fail("CreateFramebuffer", gpu.ErrInvalidHandle)
		}
		img, _ := d.images.Get(v.image)
		if img == nil || img.info.Width < info.Width || img.info.Height < info.Height {
			return 0, fail("CreateFramebuffer", gpu.ErrInvalidUsage)
		}
	}
	c := info
	c.Attachments = append([]gpu.ImageView(nil), info.Attachments...)
	return gpu.Framebuffer(d.framebuffers.Acquire(c)), nil
}

func (d *Device) DestroyFramebuffer(f gpu.Framebuffer) {
	if f == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.framebuffers.Release(uint64(f)); !ok {
		d.violation("DestroyFramebuffer: unknown framebuffer %d", f)
	}
}

package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/prism/engine/assets/loaders"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
)

func (d *Device) CreateShaderModule(code []byte) (gpu.ShaderModule, error) {
	if err := loaders.ValidateSPIRV(code); err != nil {
		return 0, fmt.Errorf("%w: %v", gpu.ErrInvalidShader, err)
	}
	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(code)),
		PCode:    loaders.BytecodeWords(code),
	}
	var module vk.ShaderModule
	if err := check("vkCreateShaderModule", vk.CreateShaderModule(d.logical, &createInfo, nil, &module)); err != nil {
		return 0, err
	}
	return gpu.ShaderModule(d.modules.Acquire(module)), nil
}

func (d *Device) DestroyShaderModule(module gpu.ShaderModule) {
	if m, ok := d.modules.Release(uint64(module)); ok {
		vk.DestroyShaderModule(d.logical, m, nil)
	}
}

func (d *Device) CreateDescriptorSetLayout(bindings []gpu.DescriptorBinding) (gpu.DescriptorSetLayout, error) {
	vkBindings := make([]vk.DescriptorSetLayoutBinding, len(bindings))
	for i, b := range bindings {
		vkBindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  vk.DescriptorType(b.Type),
			DescriptorCount: b.Count,
			StageFlags:      vk.ShaderStageFlags(b.Stages),
		}
	}
	layoutInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(vkBindings)),
		PBindings:    vkBindings,
	}
	var layout vk.DescriptorSetLayout
	if err := check("vkCreateDescriptorSetLayout", vk.CreateDescriptorSetLayout(d.logical, &layoutInfo, nil, &layout)); err != nil {
		return 0, err
	}
	return gpu.DescriptorSetLayout(d.setLayouts.Acquire(layout)), nil
}

func (d *Device) DestroyDescriptorSetLayout(layout gpu.DescriptorSetLayout) {
	if l, ok := d.setLayouts.Release(uint64(layout)); ok {
		vk.DestroyDescriptorSetLayout(d.logical, l, nil)
	}
}

func (d *Device) CreateDescriptorPool(info gpu.DescriptorPoolInfo) (gpu.DescriptorPool, error) {
	sizes := make([]vk.DescriptorPoolSize, len(info.Sizes))
	for i, s := range info.Sizes {
		sizes[i] = vk.DescriptorPoolSize{
			Type:            vk.DescriptorType(s.Type),
			DescriptorCount: s.Count,
		}
	}
	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       info.MaxSets,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}
	var pool vk.DescriptorPool
	if err := check("vkCreateDescriptorPool", vk.CreateDescriptorPool(d.logical, &poolInfo, nil, &pool)); err != nil {
		return 0, err
	}
	return gpu.DescriptorPool(d.descriptorPools.Acquire(pool)), nil
}

func (d *Device) releaseSets(pool gpu.DescriptorPool) {
	var freed []uint64
	d.descriptorSets.Each(func(id uint64, s descriptorSet) {
		if s.pool == pool {
			freed = append(freed, id)
		}
	})
	for _, id := range freed {
		d.descriptorSets.Release(id)
	}
}

func (d *Device) ResetDescriptorPool(pool gpu.DescriptorPool) error {
	p, err := lookup(d.descriptorPools, uint64(pool))
	if err != nil {
		return err
	}
	if err := check("vkResetDescriptorPool", vk.ResetDescriptorPool(d.logical, p, 0)); err != nil {
		return err
	}
	d.releaseSets(pool)
	return nil
}

func (d *Device) DestroyDescriptorPool(pool gpu.DescriptorPool) {
	p, ok := d.descriptorPools.Release(uint64(pool))
	if !ok {
		return
	}
	vk.DestroyDescriptorPool(d.logical, p, nil)
	d.releaseSets(pool)
}

func (d *Device) AllocateDescriptorSets(pool gpu.DescriptorPool, layouts []gpu.DescriptorSetLayout) ([]gpu.DescriptorSet, error) {
	p, err := lookup(d.descriptorPools, uint64(pool))
	if err != nil {
		return nil, err
	}
	if len(layouts) == 0 {
		return nil, nil
	}
	vkLayouts := make([]vk.DescriptorSetLayout, len(layouts))
	for i, l := range layouts {
		if vkLayouts[i], err = lookup(d.setLayouts, uint64(l)); err != nil {
			return nil, err
		}
	}
	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     p,
		DescriptorSetCount: uint32(len(vkLayouts)),
		PSetLayouts:        vkLayouts,
	}
	sets := make([]vk.DescriptorSet, len(vkLayouts))
	if err := check("vkAllocateDescriptorSets", vk.AllocateDescriptorSets(d.logical, &allocInfo, &sets[0])); err != nil {
		return nil, err
	}
	out := make([]gpu.DescriptorSet, len(sets))
	for i, s := range sets {
		out[i] = gpu.DescriptorSet(d.descriptorSets.Acquire(descriptorSet{handle: s, pool: pool}))
	}
	return out, nil
}

// UpdateDescriptorSets skips writes that reference unknown handles.
func (d *Device) UpdateDescriptorSets(writes []gpu.DescriptorWrite) {
	vkWrites := make([]vk.WriteDescriptorSet, 0, len(writes))
	for _, w := range writes {
		set, ok := d.descriptorSets.Get(uint64(w.Set))
		if !ok {
			continue
		}
		write := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set.handle,
			DstBinding:      w.Binding,
			DstArrayElement: w.ArrayElement,
			DescriptorType:  vk.DescriptorType(w.Type),
		}
		if len(w.Buffers) > 0 {
			infos := make([]vk.DescriptorBufferInfo, len(w.Buffers))
			for i, b := range w.Buffers {
				buf, _ := d.buffers.Get(uint64(b.Buffer))
				rng := vk.DeviceSize(b.Range)
				if b.Range == gpu.WholeSize {
					rng = vk.DeviceSize(vk.WholeSize)
				}
				infos[i] = vk.DescriptorBufferInfo{Buffer: buf, Offset: vk.DeviceSize(b.Offset), Range: rng}
			}
			write.DescriptorCount = uint32(len(infos))
			write.PBufferInfo = infos
		} else {
			infos := make([]vk.DescriptorImageInfo, len(w.Images))
			for i, img := range w.Images {
				sampler, _ := d.samplers.Get(uint64(img.Sampler))
				view, _ := d.views.Get(uint64(img.View))
				infos[i] = vk.DescriptorImageInfo{Sampler: sampler, ImageView: view, ImageLayout: vk.ImageLayout(img.Layout)}
			}
			write.DescriptorCount = uint32(len(infos))
			write.PImageInfo = infos
		}
		vkWrites = append(vkWrites, write)
	}
	if len(vkWrites) == 0 {
		return
	}
	vk.UpdateDescriptorSets(d.logical, uint32(len(vkWrites)), vkWrites, 0, nil)
}

func (d *Device) CreatePipelineLayout(info gpu.PipelineLayoutInfo) (gpu.PipelineLayout, error) {
	setLayouts := make([]vk.DescriptorSetLayout, len(info.SetLayouts))
	for i, l := range info.SetLayouts {
		var err error
		if setLayouts[i], err = lookup(d.setLayouts, uint64(l)); err != nil {
			return 0, err
		}
	}
	ranges := make([]vk.PushConstantRange, len(info.PushConstants))
	for i, r := range info.PushConstants {
		ranges[i] = vk.PushConstantRange{
			StageFlags: vk.ShaderStageFlags(r.Stages),
			Offset:     r.Offset,
			Size:       r.Size,
		}
	}
	layoutInfo := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         uint32(len(setLayouts)),
		PSetLayouts:            setLayouts,
		PushConstantRangeCount: uint32(len(ranges)),
		PPushConstantRanges:    ranges,
	}
	var layout vk.PipelineLayout
	if err := check("vkCreatePipelineLayout", vk.CreatePipelineLayout(d.logical, &layoutInfo, nil, &layout)); err != nil {
		return 0, err
	}
	return gpu.PipelineLayout(d.pipelineLayouts.Acquire(layout)), nil
}

func (d *Device) DestroyPipelineLayout(layout gpu.PipelineLayout) {
	if l, ok := d.pipelineLayouts.Release(uint64(layout)); ok {
		vk.DestroyPipelineLayout(d.logical, l, nil)
	}
}

func (d *Device) shaderStage(s gpu.ShaderStageInfo) (vk.PipelineShaderStageCreateInfo, error) {
	module, err := lookup(d.modules, uint64(s.Module))
	if err != nil {
		return vk.PipelineShaderStageCreateInfo{}, err
	}
	entry := s.EntryPoint
	if entry == "" {
		entry = "main"
	}
	return vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  vk.ShaderStageFlagBits(s.Stage),
		Module: module,
		PName:  VulkanSafeString(entry),
	}, nil
}

func (d *Device) CreateGraphicsPipeline(info gpu.GraphicsPipelineInfo) (gpu.Pipeline, error) {
	layout, err := lookup(d.pipelineLayouts, uint64(info.Layout))
	if err != nil {
		return 0, err
	}
	pass, err := lookup(d.renderPasses, uint64(info.RenderPass))
	if err != nil {
		return 0, err
	}
	stages := make([]vk.PipelineShaderStageCreateInfo, len(info.Stages))
	for i, s := range info.Stages {
		if stages[i], err = d.shaderStage(s); err != nil {
			return 0, err
		}
	}

	bindings := make([]vk.VertexInputBindingDescription, len(info.VertexBindings))
	for i, b := range info.VertexBindings {
		bindings[i] = vk.VertexInputBindingDescription{
			Binding:   b.Binding,
			Stride:    b.Stride,
			InputRate: vk.VertexInputRate(b.InputRate),
		}
	}
	attributes := make([]vk.VertexInputAttributeDescription, len(info.VertexAttributes))
	for i, a := range info.VertexAttributes {
		attributes[i] = vk.VertexInputAttributeDescription{
			Location: a.Location,
			Binding:  a.Binding,
			Format:   vk.Format(a.Format),
			Offset:   a.Offset,
		}
	}
	vertexInputInfo := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   uint32(len(bindings)),
		PVertexBindingDescriptions:      bindings,
		VertexAttributeDescriptionCount: uint32(len(attributes)),
		PVertexAttributeDescriptions:    attributes,
	}

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               vk.PrimitiveTopology(info.Topology),
		PrimitiveRestartEnable: vk.False,
	}

	viewport := vk.Viewport{
		X:        info.Viewport.X,
		Y:        info.Viewport.Y,
		Width:    info.Viewport.Width,
		Height:   info.Viewport.Height,
		MinDepth: info.Viewport.MinDepth,
		MaxDepth: info.Viewport.MaxDepth,
	}
	scissor := vk.Rect2D{
		Offset: vk.Offset2D{X: info.Scissor.Offset.X, Y: info.Scissor.Offset.Y},
		Extent: vk.Extent2D{Width: info.Scissor.Extent.Width, Height: info.Scissor.Extent.Height},
	}
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		PViewports:    []vk.Viewport{viewport},
		ScissorCount:  1,
		PScissors:     []vk.Rect2D{scissor},
	}

	rasterizer := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             vk.PolygonMode(info.PolygonMode),
		LineWidth:               1.0,
		CullMode:                vk.CullModeFlags(info.CullMode),
		FrontFace:               vk.FrontFace(info.FrontFace),
		DepthBiasEnable:         vk.False,
	}

	multisampling := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		SampleShadingEnable:  vk.False,
		RasterizationSamples: vk.SampleCount1Bit,
		MinSampleShading:     1.0,
	}

	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:                 vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:       boolToVk(info.DepthTest),
		DepthWriteEnable:      boolToVk(info.DepthWrite),
		DepthCompareOp:        vk.CompareOp(info.DepthCompare),
		DepthBoundsTestEnable: vk.False,
		StencilTestEnable:     vk.False,
	}

	colorBlendAttachment := vk.PipelineColorBlendAttachmentState{
		ColorWriteMask: vk.ColorComponentFlags(
			vk.ColorComponentRBit | vk.ColorComponentGBit | vk.ColorComponentBBit | vk.ColorComponentABit,
		),
		BlendEnable:         boolToVk(info.BlendEnable),
		SrcColorBlendFactor: vk.BlendFactorSrcAlpha,
		DstColorBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
		ColorBlendOp:        vk.BlendOpAdd,
		SrcAlphaBlendFactor: vk.BlendFactorSrcAlpha,
		DstAlphaBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
		AlphaBlendOp:        vk.BlendOpAdd,
	}
	colorBlending := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: 1,
		PAttachments:    []vk.PipelineColorBlendAttachmentState{colorBlendAttachment},
	}

	pipelineInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInputInfo,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizer,
		PMultisampleState:   &multisampling,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlending,
		Layout:              layout,
		RenderPass:          pass.handle,
		Subpass:             info.Subpass,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}
	if info.DynamicViewport {
		dynamicStates := []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor}
		pipelineInfo.PDynamicState = &vk.PipelineDynamicStateCreateInfo{
			SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
			DynamicStateCount: uint32(len(dynamicStates)),
			PDynamicStates:    dynamicStates,
		}
	}

	pipelines := make([]vk.Pipeline, 1)
	if err := check("vkCreateGraphicsPipelines", vk.CreateGraphicsPipelines(
		d.logical,
		vk.NullPipelineCache,
		1,
		[]vk.GraphicsPipelineCreateInfo{pipelineInfo},
		nil,
		pipelines)); err != nil {
		return 0, err
	}
	return gpu.Pipeline(d.pipelines.Acquire(pipelines[0])), nil
}

func (d *Device) CreateComputePipeline(info gpu.ComputePipelineInfo) (gpu.Pipeline, error) {
	layout, err := lookup(d.pipelineLayouts, uint64(info.Layout))
	if err != nil {
		return 0, err
	}
	stage, err := d.shaderStage(info.Stage)
	if err != nil {
		return 0, err
	}
	pipelineInfo := vk.ComputePipelineCreateInfo{
		SType:              vk.StructureTypeComputePipelineCreateInfo,
		Stage:              stage,
		Layout:             layout,
		BasePipelineHandle: vk.NullPipeline,
		BasePipelineIndex:  -1,
	}
	pipelines := make([]vk.Pipeline, 1)
	if err := check("vkCreateComputePipelines", vk.CreateComputePipelines(
		d.logical,
		vk.NullPipelineCache,
		1,
		[]vk.ComputePipelineCreateInfo{pipelineInfo},
		nil,
		pipelines)); err != nil {
		return 0, err
	}
	return gpu.Pipeline(d.pipelines.Acquire(pipelines[0])), nil
}

func (d *Device) DestroyPipeline(pipeline gpu.Pipeline) {
	if p, ok := d.pipelines.Release(uint64(pipeline)); ok {
		vk.DestroyPipeline(d.logical, p, nil)
	}
}

package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
)

func (d *Device) queueFamily(queue gpu.Queue) (uint32, error) {
	switch queue {
	case d.graphicsQueue:
		return d.graphicsFamily, nil
	case d.presentQueue:
		return d.presentFamily, nil
	}
	return 0, gpu.ErrInvalidHandle
}

func (d *Device) CreateCommandPool(queue gpu.Queue, resettable bool) (gpu.CommandPool, error) {
	family, err := d.queueFamily(queue)
	if err != nil {
		return 0, err
	}
	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: family,
	}
	if resettable {
		poolCreateInfo.Flags = vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit)
	}
	var pool vk.CommandPool
	if err := check("vkCreateCommandPool", vk.CreateCommandPool(d.logical, &poolCreateInfo, nil, &pool)); err != nil {
		return 0, err
	}
	core.LogDebug("Command pool created for queue family %d.", family)
	return gpu.CommandPool(d.commandPools.Acquire(pool)), nil
}

// DestroyCommandPool also forgets the command buffers allocated from it.
func (d *Device) DestroyCommandPool(pool gpu.CommandPool) {
	p, ok := d.commandPools.Release(uint64(pool))
	if !ok {
		return
	}
	vk.DestroyCommandPool(d.logical, p, nil)
	var freed []uint64
	d.commandBuffers.Each(func(id uint64, cb commandBuffer) {
		if cb.pool == pool {
			freed = append(freed, id)
		}
	})
	for _, id := range freed {
		d.commandBuffers.Release(id)
	}
}

func (d *Device) AllocateCommandBuffers(pool gpu.CommandPool, count uint32) ([]gpu.CommandBuffer, error) {
	p, err := lookup(d.commandPools, uint64(pool))
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        p,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: count,
	}
	handles := make([]vk.CommandBuffer, count)
	if err := check("vkAllocateCommandBuffers", vk.AllocateCommandBuffers(d.logical, &allocateInfo, handles)); err != nil {
		return nil, err
	}
	out := make([]gpu.CommandBuffer, count)
	for i, h := range handles {
		out[i] = gpu.CommandBuffer(d.commandBuffers.Acquire(commandBuffer{handle: h, pool: pool}))
	}
	return out, nil
}

func (d *Device) FreeCommandBuffers(pool gpu.CommandPool, buffers []gpu.CommandBuffer) {
	p, ok := d.commandPools.Get(uint64(pool))
	if !ok {
		return
	}
	handles := make([]vk.CommandBuffer, 0, len(buffers))
	for _, b := range buffers {
		cb, ok := d.commandBuffers.Get(uint64(b))
		if !ok || cb.pool != pool {
			continue
		}
		d.commandBuffers.Release(uint64(b))
		handles = append(handles, cb.handle)
	}
	if len(handles) > 0 {
		vk.FreeCommandBuffers(d.logical, p, uint32(len(handles)), handles)
	}
}

func (d *Device) commandBuffer(cb gpu.CommandBuffer) (vk.CommandBuffer, bool) {
	c, ok := d.commandBuffers.Get(uint64(cb))
	if !ok {
		core.LogWarn("command recorded on unknown command buffer %d", cb)
	}
	return c.handle, ok
}

func (d *Device) BeginCommandBuffer(cb gpu.CommandBuffer, usage gpu.CommandBufferUsage) error {
	c, err := lookup(d.commandBuffers, uint64(cb))
	if err != nil {
		return err
	}
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(usage),
	}
	return check("vkBeginCommandBuffer", vk.BeginCommandBuffer(c.handle, &beginInfo))
}

func (d *Device) EndCommandBuffer(cb gpu.CommandBuffer) error {
	c, err := lookup(d.commandBuffers, uint64(cb))
	if err != nil {
		return err
	}
	return check("vkEndCommandBuffer", vk.EndCommandBuffer(c.handle))
}

func (d *Device) ResetCommandBuffer(cb gpu.CommandBuffer) error {
	c, err := lookup(d.commandBuffers, uint64(cb))
	if err != nil {
		return err
	}
	return check("vkResetCommandBuffer", vk.ResetCommandBuffer(c.handle, 0))
}

func (d *Device) CmdCopyBuffer(cb gpu.CommandBuffer, src, dst gpu.Buffer, regions []gpu.BufferCopy) {
	c, ok := d.commandBuffer(cb)
	if !ok || len(regions) == 0 {
		return
	}
	s, _ := d.buffers.Get(uint64(src))
	t, _ := d.buffers.Get(uint64(dst))
	copies := make([]vk.BufferCopy, len(regions))
	for i, r := range regions {
		copies[i] = vk.BufferCopy{
			SrcOffset: vk.DeviceSize(r.SrcOffset),
			DstOffset: vk.DeviceSize(r.DstOffset),
			Size:      vk.DeviceSize(r.Size),
		}
	}
	vk.CmdCopyBuffer(c, s, t, uint32(len(copies)), copies)
}

func toImageCopies(regions []gpu.BufferImageCopy) []vk.BufferImageCopy {
	copies := make([]vk.BufferImageCopy, len(regions))
	for i, r := range regions {
		copies[i] = vk.BufferImageCopy{
			BufferOffset:      vk.DeviceSize(r.BufferOffset),
			BufferRowLength:   0,
			BufferImageHeight: 0,
			ImageSubresource: vk.ImageSubresourceLayers{
				AspectMask:     vk.ImageAspectFlags(r.Aspect),
				MipLevel:       0,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
			ImageExtent: vk.Extent3D{
				Width:  r.Width,
				Height: r.Height,
				Depth:  1,
			},
		}
	}
	return copies
}

func (d *Device) CmdCopyBufferToImage(cb gpu.CommandBuffer, src gpu.Buffer, dst gpu.Image, layout gpu.ImageLayout, regions []gpu.BufferImageCopy) {
	c, ok := d.commandBuffer(cb)
	if !ok || len(regions) == 0 {
		return
	}
	s, _ := d.buffers.Get(uint64(src))
	img, _ := d.images.Get(uint64(dst))
	copies := toImageCopies(regions)
	vk.CmdCopyBufferToImage(c, s, img, vk.ImageLayout(layout), uint32(len(copies)), copies)
}

func (d *Device) CmdCopyImageToBuffer(cb gpu.CommandBuffer, src gpu.Image, layout gpu.ImageLayout, dst gpu.Buffer, regions []gpu.BufferImageCopy) {
	c, ok := d.commandBuffer(cb)
	if !ok || len(regions) == 0 {
		return
	}
	img, _ := d.images.Get(uint64(src))
	t, _ := d.buffers.Get(uint64(dst))
	copies := toImageCopies(regions)
	vk.CmdCopyImageToBuffer(c, img, vk.ImageLayout(layout), t, uint32(len(copies)), copies)
}

func (d *Device) CmdPipelineBarrier(cb gpu.CommandBuffer, srcStage, dstStage gpu.PipelineStage, barriers []gpu.ImageBarrier) {
	c, ok := d.commandBuffer(cb)
	if !ok {
		return
	}
	imageBarriers := make([]vk.ImageMemoryBarrier, len(barriers))
	for i, b := range barriers {
		img, _ := d.images.Get(uint64(b.Image))
		imageBarriers[i] = vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       vk.AccessFlags(b.SrcAccess),
			DstAccessMask:       vk.AccessFlags(b.DstAccess),
			OldLayout:           vk.ImageLayout(b.OldLayout),
			NewLayout:           vk.ImageLayout(b.NewLayout),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               img,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask:     vk.ImageAspectFlags(b.Aspect),
				BaseMipLevel:   0,
				LevelCount:     1,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
		}
	}
	vk.CmdPipelineBarrier(c,
		vk.PipelineStageFlags(srcStage),
		vk.PipelineStageFlags(dstStage),
		0,
		0, nil,
		0, nil,
		uint32(len(imageBarriers)), imageBarriers)
}

func (d *Device) CmdBeginRenderPass(cb gpu.CommandBuffer, info gpu.RenderPassBeginInfo) {
	c, ok := d.commandBuffer(cb)
	if !ok {
		return
	}
	pass, _ := d.renderPasses.Get(uint64(info.RenderPass))
	framebuffer, _ := d.framebuffers.Get(uint64(info.Framebuffer))

	clearValues := make([]vk.ClearValue, len(info.ClearValues))
	for i, v := range info.ClearValues {
		if i < pass.colors {
			clearValues[i].SetColor(v.Color[:])
		} else {
			clearValues[i].SetDepthStencil(v.Depth, v.Stencil)
		}
	}

	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  pass.handle,
		Framebuffer: framebuffer,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: info.Area.Offset.X, Y: info.Area.Offset.Y},
			Extent: vk.Extent2D{Width: info.Area.Extent.Width, Height: info.Area.Extent.Height},
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	vk.CmdBeginRenderPass(c, &beginInfo, vk.SubpassContentsInline)
}

func (d *Device) CmdEndRenderPass(cb gpu.CommandBuffer) {
	if c, ok := d.commandBuffer(cb); ok {
		vk.CmdEndRenderPass(c)
	}
}

func (d *Device) CmdBindPipeline(cb gpu.CommandBuffer, bindPoint gpu.PipelineBindPoint, pipeline gpu.Pipeline) {
	c, ok := d.commandBuffer(cb)
	if !ok {
		return
	}
	p, _ := d.pipelines.Get(uint64(pipeline))
	vk.CmdBindPipeline(c, vk.PipelineBindPoint(bindPoint), p)
}

func (d *Device) CmdBindVertexBuffers(cb gpu.CommandBuffer, firstBinding uint32, buffers []gpu.Buffer, offsets []uint64) {
	c, ok := d.commandBuffer(cb)
	if !ok || len(buffers) == 0 {
		return
	}
	handles := make([]vk.Buffer, len(buffers))
	sizes := make([]vk.DeviceSize, len(buffers))
	for i, b := range buffers {
		handles[i], _ = d.buffers.Get(uint64(b))
		if i < len(offsets) {
			sizes[i] = vk.DeviceSize(offsets[i])
		}
	}
	vk.CmdBindVertexBuffers(c, firstBinding, uint32(len(handles)), handles, sizes)
}

func (d *Device) CmdBindIndexBuffer(cb gpu.CommandBuffer, buffer gpu.Buffer, offset uint64, indexType gpu.IndexType) {
	c, ok := d.commandBuffer(cb)
	if !ok {
		return
	}
	b, _ := d.buffers.Get(uint64(buffer))
	vk.CmdBindIndexBuffer(c, b, vk.DeviceSize(offset), vk.IndexType(indexType))
}

func (d *Device) CmdBindDescriptorSets(cb gpu.CommandBuffer, bindPoint gpu.PipelineBindPoint, layout gpu.PipelineLayout, firstSet uint32, sets []gpu.DescriptorSet) {
	c, ok := d.commandBuffer(cb)
	if !ok || len(sets) == 0 {
		return
	}
	l, _ := d.pipelineLayouts.Get(uint64(layout))
	handles := make([]vk.DescriptorSet, len(sets))
	for i, s := range sets {
		set, _ := d.descriptorSets.Get(uint64(s))
		handles[i] = set.handle
	}
	vk.CmdBindDescriptorSets(c, vk.PipelineBindPoint(bindPoint), l, firstSet, uint32(len(handles)), handles, 0, nil)
}

func (d *Device) CmdPushConstants(cb gpu.CommandBuffer, layout gpu.PipelineLayout, stages gpu.ShaderStage, offset uint32, data []byte) {
	c, ok := d.commandBuffer(cb)
	if !ok || len(data) == 0 {
		return
	}
	l, _ := d.pipelineLayouts.Get(uint64(layout))
	vk.CmdPushConstants(c, l, vk.ShaderStageFlags(stages), offset, uint32(len(data)), unsafe.Pointer(&data[0]))
}

func (d *Device) CmdSetViewport(cb gpu.CommandBuffer, viewport gpu.Viewport) {
	c, ok := d.commandBuffer(cb)
	if !ok {
		return
	}
	vk.CmdSetViewport(c, 0, 1, []vk.Viewport{{
		X:        viewport.X,
		Y:        viewport.Y,
		Width:    viewport.Width,
		Height:   viewport.Height,
		MinDepth: viewport.MinDepth,
		MaxDepth: viewport.MaxDepth,
	}})
}

func (d *Device) CmdSetScissor(cb gpu.CommandBuffer, scissor gpu.Rect2D) {
	c, ok := d.commandBuffer(cb)
	if !ok {
		return
	}
	vk.CmdSetScissor(c, 0, 1, []vk.Rect2D{{
		Offset: vk.Offset2D{X: scissor.Offset.X, Y: scissor.Offset.Y},
		Extent: vk.Extent2D{Width: scissor.Extent.Width, Height: scissor.Extent.Height},
	}})
}

func (d *Device) CmdDraw(cb gpu.CommandBuffer, vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	if c, ok := d.commandBuffer(cb); ok {
		vk.CmdDraw(c, vertexCount, instanceCount, firstVertex, firstInstance)
	}
}

func (d *Device) CmdDrawIndexed(cb gpu.CommandBuffer, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	if c, ok := d.commandBuffer(cb); ok {
		vk.CmdDrawIndexed(c, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
	}
}

func (d *Device) CmdDispatch(cb gpu.CommandBuffer, x, y, z uint32) {
	if c, ok := d.commandBuffer(cb); ok {
		vk.CmdDispatch(c, x, y, z)
	}
}

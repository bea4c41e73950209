package soft

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/spaghettifunk/prism/engine/renderer/gpu"
)

type commandBufferState int

const (
	stateInitial commandBufferState = iota
	stateRecording
	stateExecutable
	stateInvalid
)

type commandPool struct {
	queue      gpu.Queue
	resettable bool
	buffers    map[uint64]struct{}
}

type commandBuffer struct {
	pool     uint64
	state    commandBufferState
	usage    gpu.CommandBufferUsage
	commands []func(d *Device)
	err      error
	// submissions not yet retired
	pending int

	activePass    *gpu.RenderPassBeginInfo
	graphicsBound bool
	computeBound  bool
	indexBound    bool
	submittedOnce bool
}

func (d *Device) CreateCommandPool(queue gpu.Queue, resettable bool) (gpu.CommandPool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if queue != graphicsQueue && queue != presentQueue {
		return 0, fail("CreateCommandPool", gpu.ErrInvalidHandle)
	}
	id := d.commandPools.Acquire(&commandPool{queue: queue, resettable: resettable, buffers: make(map[uint64]struct{})})
	return gpu.CommandPool(id), nil
}

func (d *Device) DestroyCommandPool(pool gpu.CommandPool) {
	if pool == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.commandPools.Release(uint64(pool))
	if !ok {
		d.violation("DestroyCommandPool: unknown pool %d", pool)
		return
	}
	for id := range p.buffers {
		if c, ok := d.commandBuffers.Release(id); ok && c.pending > 0 {
			d.violation("DestroyCommandPool: command buffer %d is still pending", id)
		}
	}
}

func (d *Device) AllocateCommandBuffers(pool gpu.CommandPool, count uint32) ([]gpu.CommandBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.commandPools.Get(uint64(pool))
	if !ok {
		return nil, fail("AllocateCommandBuffers", gpu.ErrInvalidHandle)
	}
	out := make([]gpu.CommandBuffer, count)
	for i := range out {
		id := d.commandBuffers.Acquire(&commandBuffer{pool: uint64(pool)})
		p.buffers[id] = struct{}{}
		out[i] = gpu.CommandBuffer(id)
	}
	return out, nil
}

func (d *Device) FreeCommandBuffers(pool gpu.CommandPool, buffers []gpu.CommandBuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.commandPools.Get(uint64(pool))
	if !ok {
		d.violation("FreeCommandBuffers: unknown pool %d", pool)
		return
	}
	for _, cb := range buffers {
		if cb == 0 {
			continue
		}
		if _, owned := p.buffers[uint64(cb)]; !owned {
			d.violation("FreeCommandBuffers: command buffer %d not allocated from pool %d", cb, pool)
			continue
		}
		c, _ := d.commandBuffers.Release(uint64(cb))
		delete(p.buffers, uint64(cb))
		if c != nil && c.pending > 0 {
			d.violation("FreeCommandBuffers: command buffer %d is still pending", cb)
		}
	}
}

func (d *Device) BeginCommandBuffer(cb gpu.CommandBuffer, usage gpu.CommandBufferUsage) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.commandBuffers.Get(uint64(cb))
	if !ok {
		return fail("BeginCommandBuffer", gpu.ErrInvalidHandle)
	}
	if c.state == stateRecording || c.pending > 0 {
		return fail("BeginCommandBuffer", gpu.ErrInvalidUsage)
	}
	if c.state != stateInitial {
		p, _ := d.commandPools.Get(c.pool)
		if p == nil || !p.resettable {
			return fail("BeginCommandBuffer", gpu.ErrInvalidUsage)
		}
	}
	*c = commandBuffer{pool: c.pool, state: stateRecording, usage: usage}
	return nil
}

func (d *Device) EndCommandBuffer(cb gpu.CommandBuffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.commandBuffers.Get(uint64(cb))
	if !ok {
		return fail("EndCommandBuffer", gpu.ErrInvalidHandle)
	}
	if c.state != stateRecording {
		return fail("EndCommandBuffer", gpu.ErrInvalidUsage)
	}
	if c.activePass != nil {
		c.state = stateInvalid
		return fail("EndCommandBuffer", fmt.Errorf("%w: render pass still active", gpu.ErrInvalidUsage))
	}
	if c.err != nil {
		c.state = stateInvalid
		return c.err
	}
	c.state = stateExecutable
	return nil
}

func (d *Device) ResetCommandBuffer(cb gpu.CommandBuffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.commandBuffers.Get(uint64(cb))
	if !ok {
		return fail("ResetCommandBuffer", gpu.ErrInvalidHandle)
	}
	p, _ := d.commandPools.Get(c.pool)
	if p == nil || !p.resettable || c.pending > 0 {
		return fail("ResetCommandBuffer", gpu.ErrInvalidUsage)
	}
	*c = commandBuffer{pool: c.pool}
	return nil
}

// recording returns the command buffer if it accepts commands. Failures
// poison the buffer: EndCommandBuffer reports the first one.
func (d *Device) recording(cb gpu.CommandBuffer, op string) *commandBuffer {
	c, ok := d.commandBuffers.Get(uint64(cb))
	if !ok {
		d.violation("%s: unknown command buffer %d", op, cb)
		return nil
	}
	if c.state != stateRecording {
		d.violation("%s: command buffer %d is not recording", op, cb)
		return nil
	}
	return c
}

func (d *Device) poison(c *commandBuffer, op string, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	d.violation("%s: %s", op, msg)
	if c.err == nil {
		c.err = &gpu.ResultError{Op: op, Text: msg, Err: gpu.ErrInvalidUsage}
	}
}

func (d *Device) CmdCopyBuffer(cb gpu.CommandBuffer, src, dst gpu.Buffer, regions []gpu.BufferCopy) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := d.recording(cb, "CmdCopyBuffer")
	if c == nil {
		return
	}
	s, sok := d.buffers.Get(uint64(src))
	t, tok := d.buffers.Get(uint64(dst))
	if !sok || !tok {
		d.poison(c, "CmdCopyBuffer", "unknown buffer")
		return
	}
	if s.info.Usage&gpu.BufferUsageTransferSrc == 0 || t.info.Usage&gpu.BufferUsageTransferDst == 0 {
		d.poison(c, "CmdCopyBuffer", "buffers lack transfer usage")
		return
	}
	for _, r := range regions {
		if r.SrcOffset+r.Size > s.info.Size || r.DstOffset+r.Size > t.info.Size {
			d.poison(c, "CmdCopyBuffer", "region out of bounds")
			return
		}
	}
	regions = append([]gpu.BufferCopy(nil), regions...)
	c.commands = append(c.commands, func(d *Device) {
		from, to := d.bufferBytes(uint64(src)), d.bufferBytes(uint64(dst))
		if from == nil || to == nil {
			d.violation("CmdCopyBuffer: buffer released before execution")
			return
		}
		for _, r := range regions {
			copy(to[r.DstOffset:r.DstOffset+r.Size], from[r.SrcOffset:r.SrcOffset+r.Size])
		}
	})
}

func (d *Device) CmdCopyBufferToImage(cb gpu.CommandBuffer, src gpu.Buffer, dst gpu.Image, layout gpu.ImageLayout, regions []gpu.BufferImageCopy) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := d.recording(cb, "CmdCopyBufferToImage")
	if c == nil {
		return
	}
	if layout != gpu.ImageLayoutTransferDstOptimal && layout != gpu.ImageLayoutGeneral {
		d.poison(c, "CmdCopyBufferToImage", "destination layout %d", layout)
		return
	}
	if !d.checkImageCopy(c, "CmdCopyBufferToImage", src, dst, gpu.BufferUsageTransferSrc, gpu.ImageUsageTransferDst, regions) {
		return
	}
	regions = append([]gpu.BufferImageCopy(nil), regions...)
	c.commands = append(c.commands, func(d *Device) {
		img, _ := d.images.Get(uint64(dst))
		if img == nil || img.layout != layout {
			d.violation("CmdCopyBufferToImage: image %d is not in layout %d", dst, layout)
			return
		}
		from, to := d.bufferBytes(uint64(src)), d.imageBytes(uint64(dst))
		if from == nil || to == nil {
			d.violation("CmdCopyBufferToImage: resource released before execution")
			return
		}
		for _, r := range regions {
			n := uint64(r.Width) * uint64(r.Height) * img.info.Format.Size()
			copy(to[:n], from[r.BufferOffset:r.BufferOffset+n])
		}
	})
}

func (d *Device) CmdCopyImageToBuffer(cb gpu.CommandBuffer, src gpu.Image, layout gpu.ImageLayout, dst gpu.Buffer, regions []gpu.BufferImageCopy) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := d.recording(cb, "CmdCopyImageToBuffer")
	if c == nil {
		return
	}
	if layout != gpu.ImageLayoutTransferSrcOptimal && layout != gpu.ImageLayoutGeneral {
		d.poison(c, "CmdCopyImageToBuffer", "source layout %d", layout)
		return
	}
	if !d.checkImageCopy(c, "CmdCopyImageToBuffer", dst, src, gpu.BufferUsageTransferDst, gpu.ImageUsageTransferSrc, regions) {
		return
	}
	regions = append([]gpu.BufferImageCopy(nil), regions...)
	c.commands = append(c.commands, func(d *Device) {
		img, _ := d.images.Get(uint64(src))
		if img == nil || img.layout != layout {
			d.violation("CmdCopyImageToBuffer: image %d is not in layout %d", src, layout)
			return
		}
		from, to := d.imageBytes(uint64(src)), d.bufferBytes(uint64(dst))
		if from == nil || to == nil {
			d.violation("CmdCopyImageToBuffer: resource released before execution")
			return
		}
		for _, r := range regions {
			n := uint64(r.Width) * uint64(r.Height) * img.info.Format.Size()
			copy(to[r.BufferOffset:r.BufferOffset+n], from[:n])
		}
	})
}

func (d *Device) checkImageCopy(c *commandBuffer, op string, b gpu.Buffer, i gpu.Image, bu gpu.BufferUsage, iu gpu.ImageUsage, regions []gpu.BufferImageCopy) bool {
	buf, bok := d.buffers.Get(uint64(b))
	img, iok := d.images.Get(uint64(i))
	if !bok || !iok {
		d.poison(c, op, "unknown buffer or image")
		return false
	}
	if buf.info.Usage&bu == 0 || img.info.Usage&iu == 0 {
		d.poison(c, op, "resources lack transfer usage")
		return false
	}
	for _, r := range regions {
		if r.Width > img.info.Width || r.Height > img.info.Height {
			d.poison(c, op, "region exceeds image extent")
			return false
		}
		if r.BufferOffset+uint64(r.Width)*uint64(r.Height)*img.info.Format.Size() > buf.info.Size {
			d.poison(c, op, "region exceeds buffer size")
			return false
		}
	}
	return true
}

func (d *Device) CmdPipelineBarrier(cb gpu.CommandBuffer, srcStage, dstStage gpu.PipelineStage, barriers []gpu.ImageBarrier) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := d.recording(cb, "CmdPipelineBarrier")
	if c == nil {
		return
	}
	if srcStage == 0 || dstStage == 0 {
		d.poison(c, "CmdPipelineBarrier", "empty stage mask")
		return
	}
	for _, b := range barriers {
		if _, ok := d.images.Get(uint64(b.Image)); !ok {
			d.poison(c, "CmdPipelineBarrier", "unknown image %d", b.Image)
			return
		}
		if b.NewLayout == gpu.ImageLayoutUndefined {
			d.poison(c, "CmdPipelineBarrier", "transition to undefined layout")
			return
		}
	}
	barriers = append([]gpu.ImageBarrier(nil), barriers...)
	c.commands = append(c.commands, func(d *Device) {
		for _, b := range barriers {
			img, ok := d.images.Get(uint64(b.Image))
			if !ok {
				d.violation("CmdPipelineBarrier: image %d released before execution", b.Image)
				continue
			}
			if b.OldLayout != gpu.ImageLayoutUndefined && img.layout != b.OldLayout {
				d.violation("CmdPipelineBarrier: image %d is in layout %d, barrier expects %d", b.Image, img.layout, b.OldLayout)
			}
			img.layout = b.NewLayout
		}
	})
}

func (d *Device) CmdBeginRenderPass(cb gpu.CommandBuffer, info gpu.RenderPassBeginInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := d.recording(cb, "CmdBeginRenderPass")
	if c == nil {
		return
	}
	if c.activePass != nil {
		d.poison(c, "CmdBeginRenderPass", "render pass already active")
		return
	}
	pass, pok := d.renderPasses.Get(uint64(info.RenderPass))
	fb, fok := d.framebuffers.Get(uint64(info.Framebuffer))
	if !pok || !fok {
		d.poison(c, "CmdBeginRenderPass", "unknown render pass or framebuffer")
		return
	}
	clears := len(pass.Color)
	if pass.Depth != nil {
		clears++
	}
	if len(info.ClearValues) < clears {
		d.poison(c, "CmdBeginRenderPass", "%d clear values for %d attachments", len(info.ClearValues), clears)
		return
	}
	begin := info
	begin.ClearValues = append([]gpu.ClearValue(nil), info.ClearValues...)
	c.activePass = &begin
	c.commands = append(c.commands, func(d *Device) {
		for i, view := range fb.Attachments {
			att := attachmentAt(pass, i)
			v, ok := d.views.Get(uint64(view))
			if !ok {
				d.violation("CmdBeginRenderPass: attachment view %d released before execution", view)
				continue
			}
			img, _ := d.images.Get(v.image)
			if img == nil {
				continue
			}
			if att.InitialLayout != gpu.ImageLayoutUndefined && img.layout != att.InitialLayout {
				d.violation("CmdBeginRenderPass: attachment %d is in layout %d, pass expects %d", i, img.layout, att.InitialLayout)
			}
			if att.LoadOp == gpu.LoadOpClear {
				fill(d.imageBytes(v.image), img.info.Format, begin.ClearValues[i])
			}
		}
	})
}

func (d *Device) CmdEndRenderPass(cb gpu.CommandBuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := d.recording(cb, "CmdEndRenderPass")
	if c == nil {
		return
	}
	if c.activePass == nil {
		d.poison(c, "CmdEndRenderPass", "no active render pass")
		return
	}
	begin := *c.activePass
	c.activePass = nil
	pass, _ := d.renderPasses.Get(uint64(begin.RenderPass))
	fb, _ := d.framebuffers.Get(uint64(begin.Framebuffer))
	c.commands = append(c.commands, func(d *Device) {
		for i, view := range fb.Attachments {
			v, ok := d.views.Get(uint64(view))
			if !ok {
				continue
			}
			if img, ok := d.images.Get(v.image); ok {
				img.layout = attachmentAt(pass, i).FinalLayout
			}
		}
	})
}

func attachmentAt(pass gpu.RenderPassInfo, i int) gpu.AttachmentInfo {
	if i < len(pass.Color) {
		return pass.Color[i]
	}
	return *pass.Depth
}

// fill writes a clear value over every texel of the given format.
func fill(dst []byte, format gpu.Format, v gpu.ClearValue) {
	var texel []byte
	unorm := func(f float32) byte { return byte(math.Round(float64(min(max(f, 0), 1)) * 255)) }
	switch format {
	case gpu.FormatB8G8R8A8Unorm, gpu.FormatB8G8R8A8Srgb:
		texel = []byte{unorm(v.Color[2]), unorm(v.Color[1]), unorm(v.Color[0]), unorm(v.Color[3])}
	case gpu.FormatR8G8B8A8Unorm, gpu.FormatR8G8B8A8Srgb:
		texel = []byte{unorm(v.Color[0]), unorm(v.Color[1]), unorm(v.Color[2]), unorm(v.Color[3])}
	case gpu.FormatD32Sfloat, gpu.FormatR32Sfloat:
		texel = binary.LittleEndian.AppendUint32(nil, math.Float32bits(v.Depth))
	default:
		return
	}
	for i := 0; i+len(texel) <= len(dst); i += len(texel) {
		copy(dst[i:], texel)
	}
}

func (d *Device) CmdBindPipeline(cb gpu.CommandBuffer, bindPoint gpu.PipelineBindPoint, p gpu.Pipeline) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := d.recording(cb, "CmdBindPipeline")
	if c == nil {
		return
	}
	pl, ok := d.pipelines.Get(uint64(p))
	if !ok || pl.bindPoint != bindPoint {
		d.poison(c, "CmdBindPipeline", "pipeline %d cannot bind to point %d", p, bindPoint)
		return
	}
	if bindPoint == gpu.PipelineBindPointGraphics {
		c.graphicsBound = true
	} else {
		c.computeBound = true
	}
}

func (d *Device) CmdBindVertexBuffers(cb gpu.CommandBuffer, firstBinding uint32, buffers []gpu.Buffer, offsets []uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := d.recording(cb, "CmdBindVertexBuffers")
	if c == nil {
		return
	}
	if len(buffers) != len(offsets) {
		d.poison(c, "CmdBindVertexBuffers", "%d buffers with %d offsets", len(buffers), len(offsets))
		return
	}
	for _, b := range buffers {
		buf, ok := d.buffers.Get(uint64(b))
		if !ok || buf.info.Usage&gpu.BufferUsageVertex == 0 {
			d.poison(c, "CmdBindVertexBuffers", "buffer %d is not a vertex buffer", b)
			return
		}
	}
}

func (d *Device) CmdBindIndexBuffer(cb gpu.CommandBuffer, b gpu.Buffer, offset uint64, indexType gpu.IndexType) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := d.recording(cb, "CmdBindIndexBuffer")
	if c == nil {
		return
	}
	buf, ok := d.buffers.Get(uint64(b))
	if !ok || buf.info.Usage&gpu.BufferUsageIndex == 0 || offset >= buf.info.Size {
		d.poison(c, "CmdBindIndexBuffer", "buffer %d is not an index buffer", b)
		return
	}
	c.indexBound = true
}

func (d *Device) CmdBindDescriptorSets(cb gpu.CommandBuffer, bindPoint gpu.PipelineBindPoint, layout gpu.PipelineLayout, firstSet uint32, sets []gpu.DescriptorSet) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := d.recording(cb, "CmdBindDescriptorSets")
	if c == nil {
		return
	}
	info, ok := d.pipelineLayouts.Get(uint64(layout))
	if !ok || int(firstSet)+len(sets) > len(info.SetLayouts) {
		d.poison(c, "CmdBindDescriptorSets", "sets do not fit pipeline layout %d", layout)
		return
	}
	for i, s := range sets {
		set, ok := d.descriptorSets.Get(uint64(s))
		if !ok {
			d.poison(c, "CmdBindDescriptorSets", "unknown set %d", s)
			return
		}
		if set.layout != uint64(info.SetLayouts[int(firstSet)+i]) {
			d.poison(c, "CmdBindDescriptorSets", "set %d layout mismatch", s)
			return
		}
	}
}

func (d *Device) CmdPushConstants(cb gpu.CommandBuffer, layout gpu.PipelineLayout, stages gpu.ShaderStage, offset uint32, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := d.recording(cb, "CmdPushConstants")
	if c == nil {
		return
	}
	info, ok := d.pipelineLayouts.Get(uint64(layout))
	if !ok {
		d.poison(c, "CmdPushConstants", "unknown layout %d", layout)
		return
	}
	end := offset + uint32(len(data))
	for _, r := range info.PushConstants {
		if r.Stages&stages == stages && offset >= r.Offset && end <= r.Offset+r.Size {
			return
		}
	}
	d.poison(c, "CmdPushConstants", "range [%d,%d) not declared for stages %#x", offset, end, stages)
}

func (d *Device) CmdSetViewport(cb gpu.CommandBuffer, viewport gpu.Viewport) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.recording(cb, "CmdSetViewport")
}

func (d *Device) CmdSetScissor(cb gpu.CommandBuffer, scissor gpu.Rect2D) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.recording(cb, "CmdSetScissor")
}

func (d *Device) CmdDraw(cb gpu.CommandBuffer, vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := d.recording(cb, "CmdDraw")
	if c == nil || !d.canDraw(c, "CmdDraw") {
		return
	}
	c.commands = append(c.commands, func(d *Device) {
		d.stats.Draws++
		d.stats.Vertices += uint64(vertexCount) * uint64(instanceCount)
	})
}

func (d *Device) CmdDrawIndexed(cb gpu.CommandBuffer, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := d.recording(cb, "CmdDrawIndexed")
	if c == nil || !d.canDraw(c, "CmdDrawIndexed") {
		return
	}
	if !c.indexBound {
		d.poison(c, "CmdDrawIndexed", "no index buffer bound")
		return
	}
	c.commands = append(c.commands, func(d *Device) {
		d.stats.Draws++
		d.stats.Vertices += uint64(indexCount) * uint64(instanceCount)
	})
}

func (d *Device) canDraw(c *commandBuffer, op string) bool {
	if c.activePass == nil {
		d.poison(c, op, "draw outside a render pass")
		return false
	}
	if !c.graphicsBound {
		d.poison(c, op, "no graphics pipeline bound")
		return false
	}
	return true
}

func (d *Device) CmdDispatch(cb gpu.CommandBuffer, x, y, z uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := d.recording(cb, "CmdDispatch")
	if c == nil {
		return
	}
	if c.activePass != nil || !c.computeBound {
		d.poison(c, "CmdDispatch", "dispatch needs a compute pipeline outside render passes")
		return
	}
	c.commands = append(c.commands, func(d *Device) {
		d.stats.Dispatches++
	})
}

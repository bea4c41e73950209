package renderer

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
)

type CommandBufferState int

const (
	COMMAND_BUFFER_STATE_READY CommandBufferState = iota
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_IN_RENDER_PASS
	COMMAND_BUFFER_STATE_RECORDING_ENDED
	COMMAND_BUFFER_STATE_SUBMITTED
	COMMAND_BUFFER_STATE_NOT_ALLOCATED
)

var ErrCommandBufferState = errors.New("command buffer in wrong state")

type CommandBuffer struct {
	Handle gpu.CommandBuffer
	// Command buffer state.
	State CommandBufferState

	device gpu.Device
	pool   gpu.CommandPool
}

// AllocateCommandBuffers allocates primary command buffers from the graphics pool.
func (c *Context) AllocateCommandBuffers(count uint32) ([]*CommandBuffer, error) {
	handles, err := c.Device.AllocateCommandBuffers(c.CommandPool, count)
	if err != nil {
		err = fmt.Errorf("failed to allocate %d command buffers: %w", count, err)
		core.LogError(err.Error())
		return nil, err
	}
	out := make([]*CommandBuffer, len(handles))
	for i, h := range handles {
		out[i] = &CommandBuffer{
			Handle: h,
			State:  COMMAND_BUFFER_STATE_READY,
			device: c.Device,
			pool:   c.CommandPool,
		}
	}
	return out, nil
}

// Free returns the buffer to its pool. Freeing twice is a no-op.
func (cb *CommandBuffer) Free() {
	if cb == nil || cb.Handle == 0 {
		return
	}
	cb.device.FreeCommandBuffers(cb.pool, []gpu.CommandBuffer{cb.Handle})
	cb.Handle = 0
	cb.State = COMMAND_BUFFER_STATE_NOT_ALLOCATED
}

func (cb *CommandBuffer) Begin(isSingleUse, isRenderpassContinue, isSimultaneousUse bool) error {
	switch cb.State {
	case COMMAND_BUFFER_STATE_READY, COMMAND_BUFFER_STATE_RECORDING_ENDED, COMMAND_BUFFER_STATE_SUBMITTED:
	default:
		return fmt.Errorf("%w: cannot begin from state %d", ErrCommandBufferState, cb.State)
	}
	var usage gpu.CommandBufferUsage
	if isSingleUse {
		usage |= gpu.CommandBufferUsageOneTimeSubmit
	}
	if isRenderpassContinue {
		usage |= gpu.CommandBufferUsageRenderPassContinue
	}
	if isSimultaneousUse {
		usage |= gpu.CommandBufferUsageSimultaneousUse
	}
	if err := cb.device.BeginCommandBuffer(cb.Handle, usage); err != nil {
		err = fmt.Errorf("failed to begin command buffer: %w", err)
		core.LogError(err.Error())
		return err
	}
	cb.State = COMMAND_BUFFER_STATE_RECORDING
	return nil
}

func (cb *CommandBuffer) End() error {
	if cb.State != COMMAND_BUFFER_STATE_RECORDING {
		return fmt.Errorf("%w: cannot end from state %d", ErrCommandBufferState, cb.State)
	}
	if err := cb.device.EndCommandBuffer(cb.Handle); err != nil {
		err = fmt.Errorf("failed to end command buffer: %w", err)
		core.LogError(err.Error())
		return err
	}
	cb.State = COMMAND_BUFFER_STATE_RECORDING_ENDED
	return nil
}

func (cb *CommandBuffer) Reset() error {
	if err := cb.device.ResetCommandBuffer(cb.Handle); err != nil {
		return err
	}
	cb.State = COMMAND_BUFFER_STATE_READY
	return nil
}

func (cb *CommandBuffer) UpdateSubmitted() {
	cb.State = COMMAND_BUFFER_STATE_SUBMITTED
}

func (cb *CommandBuffer) BeginRenderPass(info gpu.RenderPassBeginInfo) {
	cb.device.CmdBeginRenderPass(cb.Handle, info)
	cb.State = COMMAND_BUFFER_STATE_IN_RENDER_PASS
}

func (cb *CommandBuffer) EndRenderPass() {
	cb.device.CmdEndRenderPass(cb.Handle)
	cb.State = COMMAND_BUFFER_STATE_RECORDING
}

func (cb *CommandBuffer) BindPipeline(p *Pipeline) {
	cb.device.CmdBindPipeline(cb.Handle, p.BindPoint, p.Handle)
}

func (cb *CommandBuffer) BindVertexBuffer(b *Buffer, offset uint64) {
	cb.device.CmdBindVertexBuffers(cb.Handle, 0, []gpu.Buffer{b.Handle}, []uint64{offset})
}

func (cb *CommandBuffer) BindIndexBuffer(b *Buffer, offset uint64, indexType gpu.IndexType) {
	cb.device.CmdBindIndexBuffer(cb.Handle, b.Handle, offset, indexType)
}

func (cb *CommandBuffer) BindDescriptorSets(p *Pipeline, firstSet uint32, sets ...gpu.DescriptorSet) {
	cb.device.CmdBindDescriptorSets(cb.Handle, p.BindPoint, p.Layout.Handle, firstSet, sets)
}

func (cb *CommandBuffer) PushConstants(layout *PipelineLayout, stages gpu.ShaderStage, offset uint32, data []byte) {
	cb.device.CmdPushConstants(cb.Handle, layout.Handle, stages, offset, data)
}

// SetViewport sets a full viewport and scissor over the extent.
func (cb *CommandBuffer) SetViewport(extent gpu.Extent2D) {
	cb.device.CmdSetViewport(cb.Handle, gpu.Viewport{
		Width:    float32(extent.Width),
		Height:   float32(extent.Height),
		MinDepth: 0.0,
		MaxDepth: 1.0,
	})
	cb.device.CmdSetScissor(cb.Handle, gpu.Rect2D{Extent: extent})
}

func (cb *CommandBuffer) Draw(vertexCount, instanceCount uint32) {
	cb.device.CmdDraw(cb.Handle, vertexCount, instanceCount, 0, 0)
}

func (cb *CommandBuffer) DrawIndexed(indexCount, instanceCount uint32) {
	cb.device.CmdDrawIndexed(cb.Handle, indexCount, instanceCount, 0, 0, 0)
}

func (cb *CommandBuffer) Dispatch(x, y, z uint32) {
	cb.device.CmdDispatch(cb.Handle, x, y, z)
}

func (cb *CommandBuffer) CmdCopyBuffer(src, dst *Buffer, size uint64) {
	cb.device.CmdCopyBuffer(cb.Handle, src.Handle, dst.Handle, []gpu.BufferCopy{{Size: size}})
}

func (cb *CommandBuffer) CmdCopyBufferToImage(src *Buffer, dst *Image) {
	cb.device.CmdCopyBufferToImage(cb.Handle, src.Handle, dst.Handle, gpu.ImageLayoutTransferDstOptimal, []gpu.BufferImageCopy{{
		Aspect: dst.Aspect,
		Width:  dst.Width,
		Height: dst.Height,
	}})
}

func (cb *CommandBuffer) CmdCopyImageToBuffer(src gpu.Image, width, height uint32, dst *Buffer) {
	cb.device.CmdCopyImageToBuffer(cb.Handle, src, gpu.ImageLayoutTransferSrcOptimal, dst.Handle, []gpu.BufferImageCopy{{
		Aspect: gpu.ImageAspectColor,
		Width:  width,
		Height: height,
	}})
}

// BeginSingleTimeCommands allocates and begins a one-shot command buffer.
func (c *Context) BeginSingleTimeCommands() (*CommandBuffer, error) {
	cbs, err := c.AllocateCommandBuffers(1)
	if err != nil {
		return nil, err
	}
	cb := cbs[0]
	if err := cb.Begin(true, false, false); err != nil {
		cb.Free()
		return nil, err
	}
	return cb, nil
}

// EndSingleTimeCommands submits the buffer, blocks until the queue is idle
// and frees it. The buffer is freed on every path.
func (c *Context) EndSingleTimeCommands(cb *CommandBuffer) error {
	defer cb.Free()
	if err := cb.End(); err != nil {
		return err
	}
	submit := gpu.SubmitInfo{CommandBuffers: []gpu.CommandBuffer{cb.Handle}}
	if err := c.Device.QueueSubmit(c.GraphicsQueue, []gpu.SubmitInfo{submit}, 0); err != nil {
		err = fmt.Errorf("failed to submit single time commands: %w", err)
		core.LogError(err.Error())
		return err
	}
	cb.UpdateSubmitted()
	if err := c.Device.QueueWaitIdle(c.GraphicsQueue); err != nil {
		err = fmt.Errorf("failed to wait for single time commands: %w", err)
		core.LogError(err.Error())
		return err
	}
	return nil
}

// SingleTimeCommands records fn into a one-shot buffer and runs it to completion.
func (c *Context) SingleTimeCommands(fn func(cb *CommandBuffer) error) error {
	cb, err := c.BeginSingleTimeCommands()
	if err != nil {
		return err
	}
	if err := fn(cb); err != nil {
		cb.Free()
		return err
	}
	return c.EndSingleTimeCommands(cb)
}

type layoutTransition struct {
	srcAccess, dstAccess gpu.Access
	srcStage, dstStage   gpu.PipelineStage
}

var layoutTransitions = map[[2]gpu.ImageLayout]layoutTransition{
	{gpu.ImageLayoutUndefined, gpu.ImageLayoutTransferDstOptimal}: {
		0, gpu.AccessTransferWrite,
		gpu.PipelineStageTopOfPipe, gpu.PipelineStageTransfer,
	},
	{gpu.ImageLayoutTransferDstOptimal, gpu.ImageLayoutShaderReadOnlyOptimal}: {
		gpu.AccessTransferWrite, gpu.AccessShaderRead,
		gpu.PipelineStageTransfer, gpu.PipelineStageFragmentShader,
	},
	{gpu.ImageLayoutUndefined, gpu.ImageLayoutShaderReadOnlyOptimal}: {
		0, gpu.AccessShaderRead,
		gpu.PipelineStageTopOfPipe, gpu.PipelineStageFragmentShader,
	},
	{gpu.ImageLayoutUndefined, gpu.ImageLayoutDepthStencilAttachmentOptimal}: {
		0, gpu.AccessDepthStencilAttachmentRead | gpu.AccessDepthStencilAttachmentWrite,
		gpu.PipelineStageTopOfPipe, gpu.PipelineStageEarlyFragmentTests,
	},
	{gpu.ImageLayoutUndefined, gpu.ImageLayoutColorAttachmentOptimal}: {
		0, gpu.AccessColorAttachmentRead | gpu.AccessColorAttachmentWrite,
		gpu.PipelineStageTopOfPipe, gpu.PipelineStageColorAttachmentOutput,
	},
	{gpu.ImageLayoutUndefined, gpu.ImageLayoutGeneral}: {
		0, gpu.AccessShaderRead | gpu.AccessShaderWrite,
		gpu.PipelineStageTopOfPipe, gpu.PipelineStageComputeShader,
	},
	{gpu.ImageLayoutPresentSrc, gpu.ImageLayoutTransferSrcOptimal}: {
		0, gpu.AccessTransferRead,
		gpu.PipelineStageColorAttachmentOutput, gpu.PipelineStageTransfer,
	},
	{gpu.ImageLayoutTransferSrcOptimal, gpu.ImageLayoutPresentSrc}: {
		gpu.AccessTransferRead, 0,
		gpu.PipelineStageTransfer, gpu.PipelineStageBottomOfPipe,
	},
	{gpu.ImageLayoutShaderReadOnlyOptimal, gpu.ImageLayoutTransferSrcOptimal}: {
		gpu.AccessShaderRead, gpu.AccessTransferRead,
		gpu.PipelineStageFragmentShader, gpu.PipelineStageTransfer,
	},
	{gpu.ImageLayoutTransferSrcOptimal, gpu.ImageLayoutShaderReadOnlyOptimal}: {
		gpu.AccessTransferRead, gpu.AccessShaderRead,
		gpu.PipelineStageTransfer, gpu.PipelineStageFragmentShader,
	},
}

// TransitionImageLayout records a layout barrier. Access and stage masks are
// derived from the layout pair.
func (cb *CommandBuffer) TransitionImageLayout(image gpu.Image, aspect gpu.ImageAspect, oldLayout, newLayout gpu.ImageLayout) error {
	t, ok := layoutTransitions[[2]gpu.ImageLayout{oldLayout, newLayout}]
	if !ok {
		err := fmt.Errorf("unsupported layout transition %d -> %d", oldLayout, newLayout)
		core.LogError(err.Error())
		return err
	}
	cb.device.CmdPipelineBarrier(cb.Handle, t.srcStage, t.dstStage, []gpu.ImageBarrier{{
		Image:     image,
		OldLayout: oldLayout,
		NewLayout: newLayout,
		SrcAccess: t.srcAccess,
		DstAccess: t.dstAccess,
		Aspect:    aspect,
	}})
	return nil
}

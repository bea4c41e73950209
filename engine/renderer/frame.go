package renderer

import (
	"errors"
	"fmt"
	"math"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
)

// InvalidImageIndex is returned by PrepareNextFrame when the frame must be
// skipped: the swapchain was just recreated or the window is minimized.
const InvalidImageIndex uint32 = math.MaxUint32

type FrameState int

const (
	FrameIdle FrameState = iota
	FrameAcquiring
	FrameRecording
	FrameSubmitted
	FramePresented
)

// FrameSync is one in-flight slot.
type FrameSync struct {
	ImageAvailable gpu.Semaphore
	RenderFinished gpu.Semaphore
	// Created signaled so the first wait on the slot returns at once.
	InFlight gpu.Fence
	State    FrameState
}

func (f *FrameSync) create(device gpu.Device) error {
	if err := f.createSemaphores(device); err != nil {
		return err
	}
	fence, err := device.CreateFence(true)
	if err != nil {
		err = fmt.Errorf("failed to create in-flight fence: %w", err)
		core.LogError(err.Error())
		return err
	}
	f.InFlight = fence
	f.State = FrameIdle
	return nil
}

func (f *FrameSync) createSemaphores(device gpu.Device) error {
	var err error
	if f.ImageAvailable, err = device.CreateSemaphore(); err != nil {
		err = fmt.Errorf("failed to create image available semaphore: %w", err)
		core.LogError(err.Error())
		return err
	}
	if f.RenderFinished, err = device.CreateSemaphore(); err != nil {
		err = fmt.Errorf("failed to create render finished semaphore: %w", err)
		core.LogError(err.Error())
		return err
	}
	return nil
}

func (f *FrameSync) destroySemaphores(device gpu.Device) {
	device.DestroySemaphore(f.ImageAvailable)
	device.DestroySemaphore(f.RenderFinished)
	f.ImageAvailable = 0
	f.RenderFinished = 0
}

func (f *FrameSync) destroy(device gpu.Device) {
	f.destroySemaphores(device)
	device.DestroyFence(f.InFlight)
	f.InFlight = 0
	f.State = FrameIdle
}

func (r *Renderer) advanceFrame() {
	r.currentFrame = (r.currentFrame + 1) % uint32(len(r.frames))
}

func (r *Renderer) minimized() bool {
	return r.framebufferWidth == 0 || r.framebufferHeight == 0
}

// PrepareNextFrame waits for the current slot to be free and acquires the
// next swapchain image. It returns InvalidImageIndex when the frame has to be
// skipped; the slot still advances so every iteration moves the rotation by one.
func (r *Renderer) PrepareNextFrame() (uint32, error) {
	if r.minimized() {
		r.advanceFrame()
		return InvalidImageIndex, nil
	}
	if r.recreatePending || r.framebufferSizeGeneration != r.framebufferSizeLastGeneration {
		if err := r.recreateSwapchain(); err != nil {
			return InvalidImageIndex, err
		}
		r.advanceFrame()
		return InvalidImageIndex, nil
	}

	device := r.ctx.Device
	frame := &r.frames[r.currentFrame]
	frame.State = FrameAcquiring

	if err := device.WaitForFences([]gpu.Fence{frame.InFlight}, gpu.WaitForever); err != nil {
		err = fmt.Errorf("in-flight fence wait failure: %w", err)
		core.LogError(err.Error())
		return InvalidImageIndex, err
	}

	imageIndex, err := device.AcquireNextImage(r.swapchain.Handle, gpu.WaitForever, frame.ImageAvailable, 0)
	if gpu.IsSwapchainStale(err) {
		core.LogDebug("Swapchain stale on acquire (%s), recreating.", err)
		frame.State = FrameIdle
		if err := r.recreateSwapchain(); err != nil {
			return InvalidImageIndex, err
		}
		r.advanceFrame()
		return InvalidImageIndex, nil
	}
	if err != nil {
		err = fmt.Errorf("failed to acquire swapchain image: %w", err)
		core.LogError(err.Error())
		return InvalidImageIndex, err
	}

	// An image can come back before the frame that last rendered to it is done.
	if f := r.imagesInFlight[imageIndex]; f != 0 && f != frame.InFlight {
		if err := device.WaitForFences([]gpu.Fence{f}, gpu.WaitForever); err != nil {
			err = fmt.Errorf("image in-flight fence wait failure: %w", err)
			core.LogError(err.Error())
			return InvalidImageIndex, err
		}
	}
	r.imagesInFlight[imageIndex] = frame.InFlight
	frame.State = FrameRecording
	return imageIndex, nil
}

// Frame runs one acquire, update, submit cycle. update is called with the
// acquired image index and is skipped along with the frame when no image
// could be acquired.
func (r *Renderer) Frame(update func(imageIndex uint32) error) error {
	imageIndex, err := r.PrepareNextFrame()
	if err != nil || imageIndex == InvalidImageIndex {
		return err
	}
	if update != nil {
		if err := update(imageIndex); err != nil {
			return err
		}
	}
	return r.SubmitFrame(imageIndex)
}

// SubmitFrame submits the command buffer of the acquired image and presents
// it, then moves to the next slot.
func (r *Renderer) SubmitFrame(imageIndex uint32) error {
	if imageIndex == InvalidImageIndex || int(imageIndex) >= len(r.commandBuffers) {
		return fmt.Errorf("submit of invalid image index %d", imageIndex)
	}
	device := r.ctx.Device
	frame := &r.frames[r.currentFrame]
	cb := r.commandBuffers[imageIndex]

	if err := device.ResetFences([]gpu.Fence{frame.InFlight}); err != nil {
		err = fmt.Errorf("failed to reset in-flight fence: %w", err)
		core.LogError(err.Error())
		return err
	}
	submit := gpu.SubmitInfo{
		WaitSemaphores:   []gpu.Semaphore{frame.ImageAvailable},
		WaitStages:       []gpu.PipelineStage{gpu.PipelineStageColorAttachmentOutput},
		CommandBuffers:   []gpu.CommandBuffer{cb.Handle},
		SignalSemaphores: []gpu.Semaphore{frame.RenderFinished},
	}
	if err := device.QueueSubmit(r.ctx.GraphicsQueue, []gpu.SubmitInfo{submit}, frame.InFlight); err != nil {
		err = fmt.Errorf("failed to submit draw command buffer: %w", err)
		core.LogError(err.Error())
		return err
	}
	cb.UpdateSubmitted()
	frame.State = FrameSubmitted

	err := device.QueuePresent(r.ctx.PresentQueue, gpu.PresentInfo{
		WaitSemaphores: []gpu.Semaphore{frame.RenderFinished},
		Swapchain:      r.swapchain.Handle,
		ImageIndex:     imageIndex,
	})
	r.advanceFrame()

	switch {
	case gpu.IsSwapchainStale(err) || r.framebufferSizeGeneration != r.framebufferSizeLastGeneration:
		core.LogDebug("Swapchain stale on present, recreating.")
		frame.State = FrameIdle
		if err := r.recreateSwapchain(); err != nil && !errors.Is(err, core.ErrSwapchainBooting) {
			return err
		}
		return nil
	case err != nil:
		err = fmt.Errorf("failed to present swapchain image: %w", err)
		core.LogError(err.Error())
		return err
	}
	frame.State = FramePresented
	return nil
}

// recreateSwapchain rebuilds the swapchain and everything sized after it.
// It is deferred while the window is minimized.
func (r *Renderer) recreateSwapchain() error {
	if r.recreating {
		core.LogDebug("recreateSwapchain called while already recreating. Booting.")
		return core.ErrSwapchainBooting
	}
	if r.minimized() {
		core.LogDebug("recreateSwapchain called while minimized. Deferring.")
		r.recreatePending = true
		return nil
	}
	r.recreating = true
	defer func() { r.recreating = false }()

	ctx := r.ctx
	if err := r.WaitIdle(); err != nil {
		return err
	}
	// an interrupted recreation already tore the old swapchain down
	if r.handler != nil && r.swapchain.Handle != 0 {
		r.handler.OnSwapchainDestroy()
	}

	r.freeCommandBuffers()
	old := r.swapchain
	old.destroyAttachments(ctx)
	sc, err := createSwapchain(ctx, r.framebufferWidth, r.framebufferHeight, r.cfg.VSync, old.Handle)
	old.destroy(ctx)
	if err != nil {
		r.swapchain = old
		if errors.Is(err, core.ErrSwapchainBooting) {
			// the surface has no extent right now, retried on the next frame
			core.LogDebug("Surface has no extent. Swapchain recreation deferred.")
			r.recreatePending = true
			return nil
		}
		return err
	}
	r.swapchain = sc

	if sc.Format.Format != r.renderPass.ColorFormat {
		r.renderPass.Destroy()
		if r.renderPass, err = ctx.CreateRenderPass(sc.Format.Format, ctx.Properties.DepthFormat, r.cfg.ClearColor, r.cfg.ClearDepth, r.cfg.ClearStencil); err != nil {
			return err
		}
	}
	if err := sc.createFramebuffers(ctx, r.renderPass); err != nil {
		return err
	}
	if r.commandBuffers, err = ctx.AllocateCommandBuffers(uint32(len(sc.Images))); err != nil {
		return err
	}

	// an acquire that was never submitted leaves its semaphore signaled
	for i := range r.frames {
		r.frames[i].destroySemaphores(ctx.Device)
		if err := r.frames[i].createSemaphores(ctx.Device); err != nil {
			return err
		}
	}
	r.imagesInFlight = make([]gpu.Fence, len(sc.Images))
	r.framebufferSizeLastGeneration = r.framebufferSizeGeneration
	r.recreatePending = false

	if r.handler != nil {
		if err := r.handler.OnSwapchainCreate(); err != nil {
			return err
		}
	}
	core.LogDebug("Swapchain recreated: %dx%d.", sc.Extent.Width, sc.Extent.Height)
	return nil
}

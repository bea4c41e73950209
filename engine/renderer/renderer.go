// Package renderer holds the explicit-API frame lifecycle: resource creation
// on top of a gpu.Device, command recording, the default render pass and the
// swapchain/frame scheduler.
package renderer

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
)

// SwapchainHandler is told when the swapchain goes away and comes back.
// OnSwapchainCreate is where per-image command buffers get recorded again.
type SwapchainHandler interface {
	OnSwapchainDestroy()
	OnSwapchainCreate() error
}

type Renderer struct {
	ctx        *Context
	cfg        core.RendererConfig
	swapchain  *Swapchain
	renderPass *RenderPass
	// one per swapchain image
	commandBuffers []*CommandBuffer
	frames         []FrameSync
	// fence of the frame that last used each swapchain image
	imagesInFlight []gpu.Fence
	currentFrame   uint32

	// Framebuffer size as last reported by the window.
	framebufferWidth  uint32
	framebufferHeight uint32
	// Incremented on every resize; compared to the generation the swapchain was built for.
	framebufferSizeGeneration     uint64
	framebufferSizeLastGeneration uint64
	recreating                    bool
	// set while a recreation is owed, either deferred or interrupted
	// because the surface had no extent
	recreatePending bool

	handler SwapchainHandler
}

// New creates the context, swapchain, default render pass, per-image command
// buffers and the in-flight frame slots. On failure everything created so far
// is released, the device included.
func New(device gpu.Device, width, height uint32, cfg core.RendererConfig) (*Renderer, error) {
	if cfg.FramesInFlight == 0 {
		cfg.FramesInFlight = 2
	}
	if cfg.FramesInFlight > core.MaxFramesInFlight {
		err := fmt.Errorf("%w: %d frames in flight, max %d", core.ErrInvalidConfig, cfg.FramesInFlight, core.MaxFramesInFlight)
		core.LogError(err.Error())
		return nil, err
	}

	var scope Scope
	defer scope.Release()

	ctx, err := NewContext(device)
	if err != nil {
		device.Destroy()
		return nil, err
	}
	scope.Defer(func() { _ = ctx.Destroy() })

	r := &Renderer{
		ctx:               ctx,
		cfg:               cfg,
		framebufferWidth:  width,
		framebufferHeight: height,
	}

	if r.swapchain, err = createSwapchain(ctx, width, height, cfg.VSync, 0); err != nil {
		return nil, err
	}
	scope.Defer(func() { r.swapchain.destroy(ctx) })

	if r.renderPass, err = ctx.CreateRenderPass(r.swapchain.Format.Format, ctx.Properties.DepthFormat, cfg.ClearColor, cfg.ClearDepth, cfg.ClearStencil); err != nil {
		return nil, err
	}
	scope.Defer(r.renderPass.Destroy)

	if err := r.swapchain.createFramebuffers(ctx, r.renderPass); err != nil {
		return nil, err
	}
	if r.commandBuffers, err = ctx.AllocateCommandBuffers(uint32(len(r.swapchain.Images))); err != nil {
		return nil, err
	}
	scope.Defer(r.freeCommandBuffers)

	r.frames = make([]FrameSync, cfg.FramesInFlight)
	scope.Defer(r.destroyFrames)
	for i := range r.frames {
		if err := r.frames[i].create(device); err != nil {
			return nil, err
		}
	}
	r.imagesInFlight = make([]gpu.Fence, len(r.swapchain.Images))

	scope.Commit()
	core.LogInfo("Renderer initialized with %d frames in flight.", cfg.FramesInFlight)
	return r, nil
}

// SetSwapchainHandler registers the receiver of swapchain recreation events.
func (r *Renderer) SetSwapchainHandler(h SwapchainHandler) {
	r.handler = h
}

func (r *Renderer) Context() *Context { return r.ctx }

func (r *Renderer) Swapchain() *Swapchain { return r.swapchain }

func (r *Renderer) RenderPass() *RenderPass { return r.renderPass }

// CommandBuffers returns the per-image command buffers, valid until the next
// swapchain recreation.
func (r *Renderer) CommandBuffers() []*CommandBuffer { return r.commandBuffers }

func (r *Renderer) ImageCount() int { return len(r.swapchain.Images) }

func (r *Renderer) Extent() gpu.Extent2D { return r.swapchain.Extent }

func (r *Renderer) FramesInFlight() int { return len(r.frames) }

// CurrentFrame returns the in-flight slot used by the next frame.
func (r *Renderer) CurrentFrame() uint32 { return r.currentFrame }

// Resized records the new framebuffer size. The swapchain is rebuilt on the
// next frame.
func (r *Renderer) Resized(width, height uint32) {
	r.framebufferWidth = width
	r.framebufferHeight = height
	r.framebufferSizeGeneration++
	core.LogDebug("Renderer resized to %dx%d (generation %d).", width, height, r.framebufferSizeGeneration)
}

// BeginRenderPass starts the default render pass on the framebuffer of the
// given swapchain image, with a full viewport and scissor.
func (r *Renderer) BeginRenderPass(cb *CommandBuffer, imageIndex int) {
	r.renderPass.Begin(cb, r.swapchain.Framebuffers[imageIndex], r.swapchain.Extent)
	cb.SetViewport(r.swapchain.Extent)
}

func (r *Renderer) EndRenderPass(cb *CommandBuffer) {
	r.renderPass.End(cb)
}

// RecordCommandBuffers re-records every per-image command buffer with fn.
func (r *Renderer) RecordCommandBuffers(fn func(cb *CommandBuffer, imageIndex int) error) error {
	if err := r.ctx.Device.DeviceWaitIdle(); err != nil {
		return err
	}
	for i, cb := range r.commandBuffers {
		if err := cb.Begin(false, false, false); err != nil {
			return err
		}
		if err := fn(cb, i); err != nil {
			return err
		}
		if err := cb.End(); err != nil {
			return err
		}
	}
	return nil
}

func (r *Renderer) WaitIdle() error {
	if err := r.ctx.Device.DeviceWaitIdle(); err != nil {
		err = fmt.Errorf("failed to wait for device idle: %w", err)
		core.LogError(err.Error())
		return err
	}
	return nil
}

// Shutdown waits for the device and destroys everything the renderer owns,
// then the context. Resources the application created must be destroyed
// before, otherwise ErrResourceLeak is returned.
func (r *Renderer) Shutdown() error {
	if r.ctx == nil {
		return nil
	}
	waitErr := r.WaitIdle()
	r.destroyFrames()
	r.freeCommandBuffers()
	if r.swapchain != nil {
		r.swapchain.destroy(r.ctx)
	}
	r.renderPass.Destroy()
	err := r.ctx.Destroy()
	r.ctx = nil
	core.LogInfo("Renderer shut down.")
	return errors.Join(waitErr, err)
}

func (r *Renderer) freeCommandBuffers() {
	for _, cb := range r.commandBuffers {
		cb.Free()
	}
	r.commandBuffers = nil
}

func (r *Renderer) destroyFrames() {
	for i := range r.frames {
		r.frames[i].destroy(r.ctx.Device)
	}
}

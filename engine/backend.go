package engine

import (
	"errors"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer"
	"github.com/spaghettifunk/prism/engine/renderer/opengl"
)

// backend adapts one renderer flavour and its application to the run loop.
type backend interface {
	name() string
	load() error
	unload()
	drawFrame(delta float64) error
	resize(width, height int)
	waitIdle() error
	shutdown() error
}

type vulkanBackend struct {
	app      VulkanApplication
	renderer *renderer.Renderer
	loaded   bool
	// unloaded by a swapchain teardown, loaded again once it is rebuilt
	suspended bool
}

var _ renderer.SwapchainHandler = (*vulkanBackend)(nil)

func (b *vulkanBackend) name() string { return "vulkan" }

func (b *vulkanBackend) load() error {
	if err := b.app.Load(); err != nil {
		return err
	}
	b.loaded = true
	if err := runPipelineStages(b.app); err != nil {
		return err
	}
	return b.app.RecordCommandBuffers()
}

func (b *vulkanBackend) unload() {
	if !b.loaded {
		return
	}
	if err := b.renderer.WaitIdle(); err != nil {
		core.LogWarn("unloading on a busy device: %s", err)
	}
	b.app.UnLoad()
	b.loaded = false
}

func (b *vulkanBackend) drawFrame(delta float64) error {
	err := b.app.DrawFrame(delta)
	if errors.Is(err, core.ErrSwapchainBooting) {
		return nil
	}
	return err
}

func (b *vulkanBackend) resize(width, height int) {
	b.renderer.Resized(uint32(width), uint32(height))
}

func (b *vulkanBackend) waitIdle() error {
	return b.renderer.WaitIdle()
}

func (b *vulkanBackend) shutdown() error {
	return b.renderer.Shutdown()
}

// OnSwapchainDestroy unloads the application before its swapchain goes.
func (b *vulkanBackend) OnSwapchainDestroy() {
	if !b.loaded {
		return
	}
	b.unload()
	b.suspended = true
}

// OnSwapchainCreate loads the application again against the new swapchain
// and render pass, re-recording its command buffers.
func (b *vulkanBackend) OnSwapchainCreate() error {
	if !b.suspended {
		return nil
	}
	b.suspended = false
	core.LogDebug("Swapchain rebuilt, reloading application resources.")
	// a hot reload may have loaded it while the swapchain was gone
	b.unload()
	return b.load()
}

type openglBackend struct {
	app      OpenGLApplication
	renderer *opengl.Renderer
	loaded   bool
}

func (b *openglBackend) name() string { return "opengl" }

func (b *openglBackend) load() error {
	if err := b.app.Load(); err != nil {
		return err
	}
	b.loaded = true
	return nil
}

func (b *openglBackend) unload() {
	if !b.loaded {
		return
	}
	if err := b.renderer.WaitIdle(); err != nil {
		core.LogWarn("unloading on a busy context: %s", err)
	}
	b.app.UnLoad()
	b.loaded = false
}

func (b *openglBackend) drawFrame(delta float64) error {
	if err := b.renderer.BeginFrame(); err != nil {
		return err
	}
	if err := b.app.DrawFrame(delta); err != nil {
		return err
	}
	return b.renderer.EndFrame()
}

func (b *openglBackend) resize(width, height int) {
	b.renderer.Resize(width, height)
}

func (b *openglBackend) waitIdle() error {
	return b.renderer.WaitIdle()
}

func (b *openglBackend) shutdown() error {
	return b.renderer.Shutdown()
}

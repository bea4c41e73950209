// Package opengl is the OpenGL 4.1 core variant of the renderer. It draws on
// the context current on the calling thread, which the platform window makes
// current at creation.
package opengl

import (
	"errors"
	"fmt"

	"github.com/go-gl/gl/v4.1-core/gl"

	"github.com/spaghettifunk/prism/engine/core"
)

var ErrResourceLeak = errors.New("opengl objects still alive at shutdown")

// Swapper is the window side of the context.
type Swapper interface {
	SwapBuffers()
	Width() int
	Height() int
}

type Renderer struct {
	window Swapper
	ring   *frameRing

	width, height int32
	clearColor    [4]float32
	clearDepth    float32
	clearStencil  int32

	frame      uint64
	inFrame    bool
	live       int
	isShutdown bool
}

func New(window Swapper, cfg core.RendererConfig) (*Renderer, error) {
	if err := gl.Init(); err != nil {
		err = fmt.Errorf("failed to initialize OpenGL: %w", err)
		core.LogError(err.Error())
		return nil, err
	}
	core.LogInfo("OpenGL version %s", gl.GoStr(gl.GetString(gl.VERSION)))
	core.LogDebug("OpenGL renderer %s", gl.GoStr(gl.GetString(gl.RENDERER)))

	r := newRenderer(window, glFencer{}, cfg)
	gl.Enable(gl.DEPTH_TEST)
	gl.DepthFunc(gl.LESS)
	r.applyViewport()
	return r, nil
}

func newRenderer(window Swapper, f fencer, cfg core.RendererConfig) *Renderer {
	return &Renderer{
		window:       window,
		ring:         newFrameRing(f, cfg.FramesInFlight),
		width:        int32(window.Width()),
		height:       int32(window.Height()),
		clearColor:   cfg.ClearColor,
		clearDepth:   cfg.ClearDepth,
		clearStencil: int32(cfg.ClearStencil),
	}
}

func (r *Renderer) Width() int32  { return r.width }
func (r *Renderer) Height() int32 { return r.height }

func (r *Renderer) CurrentFrame() int {
	return r.ring.Current()
}

func (r *Renderer) FrameCount() uint64 {
	return r.frame
}

func (r *Renderer) SetClearColor(c [4]float32) {
	r.clearColor = c
}

// Resize takes effect at the start of the next frame.
func (r *Renderer) Resize(width, height int) {
	r.width = int32(width)
	r.height = int32(height)
}

func (r *Renderer) applyViewport() {
	if r.width > 0 && r.height > 0 {
		gl.Viewport(0, 0, r.width, r.height)
	}
}

// BeginFrame waits until the GPU is done with the frame slot, then clears the
// default framebuffer.
func (r *Renderer) BeginFrame() error {
	if r.isShutdown {
		return core.ErrNotInitialized
	}
	if r.inFrame {
		return errors.New("BeginFrame called twice without EndFrame")
	}
	if err := r.ring.Acquire(); err != nil {
		return err
	}
	r.inFrame = true
	r.applyViewport()
	gl.ClearColor(r.clearColor[0], r.clearColor[1], r.clearColor[2], r.clearColor[3])
	gl.ClearDepthf(r.clearDepth)
	gl.ClearStencil(r.clearStencil)
	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT | gl.STENCIL_BUFFER_BIT)
	return nil
}

// EndFrame fences the frame's commands, presents and rotates the slot.
func (r *Renderer) EndFrame() error {
	if !r.inFrame {
		return errors.New("EndFrame called without BeginFrame")
	}
	r.inFrame = false
	r.ring.Release()
	r.window.SwapBuffers()
	r.frame++
	if code := gl.GetError(); code != gl.NO_ERROR {
		err := fmt.Errorf("opengl error 0x%x at frame %d", code, r.frame)
		core.LogError(err.Error())
		return err
	}
	return nil
}

// WaitIdle blocks until every submitted frame has completed.
func (r *Renderer) WaitIdle() error {
	return r.ring.Drain()
}

func (r *Renderer) Shutdown() error {
	if r.isShutdown {
		return nil
	}
	r.isShutdown = true
	err := r.ring.Drain()
	if r.live > 0 {
		core.LogWarn("%d OpenGL objects were not destroyed", r.live)
		err = errors.Join(err, ErrResourceLeak)
	}
	core.LogInfo("OpenGL renderer shut down after %d frames", r.frame)
	return err
}

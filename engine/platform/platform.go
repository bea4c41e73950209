package platform

import (
	"errors"
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/spaghettifunk/prism/engine/core"
)

var ErrVulkanUnsupported = errors.New("vulkan is not supported by the windowing system")

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

type ClientAPI int

const (
	// ClientAPINone creates a window without a GL context, as Vulkan requires.
	ClientAPINone ClientAPI = iota
	ClientAPIOpenGL
)

type WindowConfig struct {
	Title  string
	X, Y   int
	Width  int
	Height int
	API    ClientAPI
	// Requested GL context version, ignored for ClientAPINone.
	GLMajor int
	GLMinor int
	// SwapInterval applies to GL contexts only.
	SwapInterval int
}

// WindowConfigFrom maps the application section of the engine config.
func WindowConfigFrom(cfg core.ApplicationConfig) WindowConfig {
	wc := WindowConfig{
		Title:  cfg.Name,
		X:      int(cfg.StartPosX),
		Y:      int(cfg.StartPosY),
		Width:  int(cfg.StartWidth),
		Height: int(cfg.StartHeight),
	}
	if cfg.Backend == core.BackendOpenGL {
		wc.API = ClientAPIOpenGL
		wc.GLMajor, wc.GLMinor = 4, 1
	}
	return wc
}

type Window struct {
	handle    *glfw.Window
	width     int
	height    int
	resized   bool
	destroyed bool
}

func NewWindow(cfg WindowConfig) (*Window, error) {
	if err := glfw.Init(); err != nil {
		core.LogError("failed to initialize glfw: %s", err)
		return nil, err
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	switch cfg.API {
	case ClientAPIOpenGL:
		glfw.WindowHint(glfw.ClientAPI, glfw.OpenGLAPI)
		glfw.WindowHint(glfw.ContextVersionMajor, cfg.GLMajor)
		glfw.WindowHint(glfw.ContextVersionMinor, cfg.GLMinor)
		glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
		glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)
	default:
		if !glfw.VulkanSupported() {
			glfw.Terminate()
			return nil, ErrVulkanUnsupported
		}
		glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.
	}

	handle, err := glfw.CreateWindow(cfg.Width, cfg.Height, cfg.Title, nil, nil)
	if err != nil {
		core.LogError("failed to create window: %s", err)
		glfw.Terminate()
		return nil, err
	}

	w := &Window{handle: handle}
	w.width, w.height = handle.GetFramebufferSize()

	if cfg.API == ClientAPIOpenGL {
		handle.MakeContextCurrent()
		glfw.SwapInterval(cfg.SwapInterval)
	}

	handle.SetKeyCallback(keyCallback)
	handle.SetMouseButtonCallback(mouseButtonCallback)
	handle.SetCursorPosCallback(cursorPosCallback)
	handle.SetScrollCallback(scrollCallback)
	handle.SetFramebufferSizeCallback(w.framebufferSizeCallback)
	handle.SetPos(cfg.X, cfg.Y)
	handle.Show()

	core.LogInfo("Window '%s' created (%dx%d).", cfg.Title, w.width, w.height)
	return w, nil
}

// Destroy closes the window and terminates glfw. Calling it twice is a no-op.
func (w *Window) Destroy() {
	if w == nil || w.destroyed {
		return
	}
	w.destroyed = true
	w.handle.Destroy()
	glfw.Terminate()
}

// Width and Height report the framebuffer size in pixels.
func (w *Window) Width() int  { return w.width }
func (w *Window) Height() int { return w.height }

// Resized reports whether the framebuffer changed size since the last call.
func (w *Window) Resized() bool {
	r := w.resized
	w.resized = false
	return r
}

func (w *Window) Minimized() bool {
	return w.width == 0 || w.height == 0 || w.handle.GetAttrib(glfw.Iconified) == glfw.True
}

func (w *Window) ShouldClose() bool {
	return w.handle.ShouldClose()
}

func (w *Window) SetShouldClose(v bool) {
	w.handle.SetShouldClose(v)
}

func (w *Window) PollEvents() {
	glfw.PollEvents()
}

// WaitEvents blocks until at least one event arrives. Used while minimized.
func (w *Window) WaitEvents() {
	glfw.WaitEvents()
}

func (w *Window) SwapBuffers() {
	w.handle.SwapBuffers()
}

// Time returns the seconds since glfw was initialized.
func (w *Window) Time() float64 {
	return glfw.GetTime()
}

func (w *Window) RequiredInstanceExtensions() []string {
	return w.handle.GetRequiredInstanceExtensions()
}

// CreateSurface creates a VkSurfaceKHR for the window on the given VkInstance.
func (w *Window) CreateSurface(instance interface{}) (uintptr, error) {
	surface, err := w.handle.CreateWindowSurface(instance, unsafe.Pointer(nil))
	if err != nil {
		core.LogError("failed to create window surface: %s", err)
		return 0, err
	}
	return surface, nil
}

func (w *Window) framebufferSizeCallback(_ *glfw.Window, width, height int) {
	if width == w.width && height == w.height {
		return
	}
	w.width, w.height = width, height
	w.resized = true
	core.EventFire(core.EventContext{
		Type: core.EVENT_CODE_RESIZED,
		Data: &core.SystemEvent{WindowWidth: uint32(width), WindowHeight: uint32(height)},
	})
}

func keyCallback(_ *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
	if action == glfw.Repeat {
		return
	}
	code, ok := translateKey(key)
	if !ok {
		return
	}
	core.InputProcessKey(code, action == glfw.Press)
}

func mouseButtonCallback(_ *glfw.Window, button glfw.MouseButton, action glfw.Action, _ glfw.ModifierKey) {
	b, ok := translateButton(button)
	if !ok {
		return
	}
	core.InputProcessButton(b, action == glfw.Press)
}

func cursorPosCallback(_ *glfw.Window, xpos, ypos float64) {
	core.InputProcessMouseMove(uint16(core.Clamp(xpos, 0, 65535)), uint16(core.Clamp(ypos, 0, 65535)))
}

func scrollCallback(_ *glfw.Window, _, yoff float64) {
	core.InputProcessMouseWheel(int8(core.Clamp(yoff, -127, 127)))
}

// Package engine runs applications: it owns the window, the renderer and
// the main loop, and calls into the application lifecycle.
package engine

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/prism/engine/assets"
	"github.com/spaghettifunk/prism/engine/assets/loaders"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/platform"
	"github.com/spaghettifunk/prism/engine/renderer"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
	"github.com/spaghettifunk/prism/engine/renderer/opengl"
	"github.com/spaghettifunk/prism/engine/renderer/soft"
	"github.com/spaghettifunk/prism/engine/renderer/vulkan"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

// Window is what the run loop needs from the OS window.
type Window interface {
	Width() int
	Height() int
	// Resized reports, once, that the framebuffer size changed.
	Resized() bool
	Minimized() bool
	ShouldClose() bool
	SetShouldClose(v bool)
	PollEvents()
	WaitEvents()
	Destroy()
}

type Engine struct {
	cfg          *core.Config
	currentStage Stage
	window       Window
	backend      backend
	app          Lifecycle
	assetManager *assets.AssetManager
	clock        *core.Clock
	pacer        *core.FramePacer
	metrics      *core.Metrics
	isRunning    bool
	isSuspended  bool
	lastTime     float64
	frameCount   uint64
}

func newEngine(cfg *core.Config, window Window, app Lifecycle) *Engine {
	return &Engine{
		cfg:          cfg,
		currentStage: EngineStageUninitialized,
		window:       window,
		app:          app,
		clock:        core.NewClock(),
		pacer:        core.NewFramePacer(cfg.TargetFrameSeconds(), cfg.Application.LimitFrames),
		metrics:      core.NewMetrics(),
	}
}

func prepareConfig(cfg *core.Config, backend core.Backend) (*core.Config, error) {
	if cfg == nil {
		var err error
		if cfg, err = core.DefaultConfig(); err != nil {
			return nil, err
		}
	}
	c := *cfg
	c.Application.Backend = backend
	if err := c.Validate(); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	if c.Log.Level != "" {
		if err := core.SetLogLevel(c.Log.Level); err != nil {
			core.LogWarn("ignoring log level: %s", err)
		}
	}
	return &c, nil
}

func windowConfig(cfg *core.Config) platform.WindowConfig {
	wc := platform.WindowConfigFrom(cfg.Application)
	if cfg.Renderer.VSync {
		wc.SwapInterval = 1
	}
	return wc
}

// RunVulkan opens a window, creates the Vulkan device and runs app until
// the window closes or Escape is pressed. A nil cfg uses the built-in defaults.
func RunVulkan(cfg *core.Config, app VulkanApplication) error {
	cfg, err := prepareConfig(cfg, core.BackendVulkan)
	if err != nil {
		return err
	}
	window, err := platform.NewWindow(windowConfig(cfg))
	if err != nil {
		return err
	}
	device, err := vulkan.New(window, vulkan.Options{
		ApplicationName: cfg.Application.Name,
		Validation:      cfg.Renderer.Validation,
	})
	if err != nil {
		window.Destroy()
		return err
	}
	return RunWith(cfg, app, device, window)
}

// RunWith runs app on an existing device and window. The engine takes
// ownership of both.
func RunWith(cfg *core.Config, app VulkanApplication, device gpu.Device, window Window) error {
	cfg, err := prepareConfig(cfg, core.BackendVulkan)
	if err != nil {
		device.Destroy()
		window.Destroy()
		return err
	}
	r, err := renderer.New(device, uint32(window.Width()), uint32(window.Height()), cfg.Renderer)
	if err != nil {
		window.Destroy()
		return err
	}
	b := &vulkanBackend{app: app, renderer: r}
	r.SetSwapchainHandler(b)

	e := newEngine(cfg, window, app)
	e.backend = b
	if err := app.Init(r); err != nil {
		err = errors.Join(err, r.Shutdown())
		window.Destroy()
		return err
	}
	return e.run()
}

// RunHeadless runs app for the given number of frames on the simulated
// device, without a window.
func RunHeadless(cfg *core.Config, app VulkanApplication, frames uint64) error {
	cfg, err := prepareConfig(cfg, core.BackendVulkan)
	if err != nil {
		return err
	}
	width, height := cfg.Application.StartWidth, cfg.Application.StartHeight
	device := soft.NewDevice(soft.Options{
		Name:   cfg.Application.Name,
		Width:  width,
		Height: height,
	})
	return RunWith(cfg, app, device, NewHeadlessWindow(int(width), int(height), frames))
}

// RunOpenGL opens a window with an OpenGL 4.1 core context and runs app.
func RunOpenGL(cfg *core.Config, app OpenGLApplication) error {
	cfg, err := prepareConfig(cfg, core.BackendOpenGL)
	if err != nil {
		return err
	}
	window, err := platform.NewWindow(windowConfig(cfg))
	if err != nil {
		return err
	}
	r, err := opengl.New(window, cfg.Renderer)
	if err != nil {
		window.Destroy()
		return err
	}
	e := newEngine(cfg, window, app)
	e.backend = &openglBackend{app: app, renderer: r}
	if err := app.Init(r); err != nil {
		err = errors.Join(err, r.Shutdown())
		window.Destroy()
		return err
	}
	return e.run()
}

func (e *Engine) initialize() error {
	e.currentStage = EngineStageInitializing

	if err := core.InputInitialize(); err != nil {
		return err
	}
	if !core.EventSystemInitialize() {
		return fmt.Errorf("failed to initialize the event system")
	}
	core.EventRegister(core.EVENT_CODE_APPLICATION_QUIT, e, e.onEvent)
	core.EventRegister(core.EVENT_CODE_KEY_PRESSED, e, e.onKey)

	if e.cfg.Assets.WatchShaders {
		am, err := assets.NewAssetManager()
		if err != nil {
			return err
		}
		e.assetManager = am
		if err := am.Initialize(e.cfg.Assets.ShaderDir); err != nil {
			core.LogWarn("shader hot reload disabled: %s", err)
		}
	}

	e.currentStage = EngineStageInitialized
	return nil
}

func (e *Engine) run() (err error) {
	defer func() {
		err = errors.Join(err, e.shutdown())
	}()

	if err := e.initialize(); err != nil {
		core.LogError("engine initialization failed: %s", err)
		return err
	}
	if err := e.backend.load(); err != nil {
		core.LogError("application load failed: %s", err)
		return err
	}

	core.LogInfo("Running on the %s backend.", e.backend.name())
	e.currentStage = EngineStageRunning
	e.isRunning = true
	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	for e.isRunning {
		e.window.PollEvents()
		if e.window.ShouldClose() {
			break
		}
		if e.window.Resized() {
			e.onResized(e.window.Width(), e.window.Height())
		}
		if e.window.Minimized() {
			if !e.isSuspended {
				core.LogInfo("Window minimized, suspending.")
				e.isSuspended = true
			}
			e.window.WaitEvents()
			continue
		}
		if e.isSuspended {
			core.LogInfo("Window restored, resuming.")
			e.isSuspended = false
		}

		if err := e.reloadChangedShaders(); err != nil {
			return err
		}

		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime
		e.lastTime = currentTime

		e.pacer.Begin()
		if err := e.backend.drawFrame(delta); err != nil {
			core.LogError("frame %d failed: %s", e.frameCount, err)
			return err
		}
		e.pacer.End()
		e.metrics.Update(e.pacer.MeasuredFrameTime().Seconds())
		e.frameCount++

		if err := core.InputUpdate(delta); err != nil {
			return err
		}
	}
	core.LogInfo("Main loop left after %d frames (%.1f fps).", e.frameCount, e.metrics.FPS())
	return nil
}

// reloadChangedShaders runs a full unload/load cycle when shader files
// changed since the previous frame.
func (e *Engine) reloadChangedShaders() error {
	if e.assetManager == nil {
		return nil
	}
	var changed []assets.AssetInfo
	for _, info := range e.assetManager.DrainChanges() {
		if info.Type == loaders.ResourceTypeShader {
			changed = append(changed, info)
		}
	}
	if len(changed) == 0 {
		return nil
	}
	for _, info := range changed {
		core.LogInfo("Shader `%s` changed, reloading.", info.Path)
		core.EventFire(core.EventContext{Type: core.EVENT_CODE_ASSET_CHANGED, Data: info})
	}
	return e.reload()
}

func (e *Engine) reload() error {
	e.backend.unload()
	if err := e.backend.load(); err != nil {
		core.LogError("application reload failed: %s", err)
		return err
	}
	return nil
}

// shutdown releases everything in the reverse order of creation. The
// application always gets UnLoad and Exit, even after a failed frame.
func (e *Engine) shutdown() error {
	e.currentStage = EngineStageShuttingDown
	e.isRunning = false

	var errs []error
	if err := e.backend.waitIdle(); err != nil {
		errs = append(errs, err)
	}
	e.backend.unload()
	e.app.Exit()
	if err := e.backend.shutdown(); err != nil {
		errs = append(errs, err)
	}
	if e.assetManager != nil {
		e.assetManager.Shutdown()
	}
	e.window.Destroy()

	core.EventUnregister(core.EVENT_CODE_APPLICATION_QUIT, e)
	core.EventUnregister(core.EVENT_CODE_KEY_PRESSED, e)
	if err := core.InputShutdown(); err != nil {
		errs = append(errs, fmt.Errorf("input shutdown: %w", err))
	}
	if err := core.EventSystemShutdown(); err != nil {
		errs = append(errs, fmt.Errorf("event system shutdown: %w", err))
	}
	e.currentStage = EngineStageUninitialized
	return errors.Join(errs...)
}

func (e *Engine) onResized(width, height int) {
	core.LogDebug("Window resize: %d, %d", width, height)
	e.backend.resize(width, height)
}

func (e *Engine) onEvent(context core.EventContext) bool {
	if context.Type == core.EVENT_CODE_APPLICATION_QUIT {
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.isRunning = false
		return true
	}
	return false
}

func (e *Engine) onKey(context core.EventContext) bool {
	ev, ok := context.Data.(*core.KeyEvent)
	if !ok {
		return false
	}
	if ev.KeyCode == core.KEY_ESCAPE {
		core.EventFire(core.EventContext{Type: core.EVENT_CODE_APPLICATION_QUIT})
		return true
	}
	return false
}

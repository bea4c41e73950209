package engine

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"testing"
	"time"

	"github.com/spaghettifunk/prism/engine/assets"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
	"github.com/spaghettifunk/prism/engine/renderer/soft"
)

type testApp struct {
	r       *renderer.Renderer
	vertex  *renderer.Buffer
	calls   []string
	frames  int
	loads   int
	unloads int
	records int
	onFrame func(app *testApp) error
	onExit  func()
}

func (a *testApp) Init(r *renderer.Renderer) error {
	a.r = r
	a.calls = append(a.calls, "init")
	return nil
}

func (a *testApp) Load() error {
	a.loads++
	a.calls = append(a.calls, "load")
	var err error
	a.vertex, err = a.r.Context().CreateBuffer(
		gpu.BufferUsageVertex,
		gpu.MemoryPropertyHostVisible|gpu.MemoryPropertyHostCoherent,
		64, make([]byte, 64), "test vertices")
	return err
}

func (a *testApp) CreateDescriptorSetLayout() error {
	a.calls = append(a.calls, "layout")
	return nil
}

func (a *testApp) CreatePipeline() error {
	a.calls = append(a.calls, "pipeline")
	return nil
}

func (a *testApp) CreateDescriptorPool() error {
	a.calls = append(a.calls, "pool")
	return nil
}

func (a *testApp) CreateDescriptorSets() error {
	a.calls = append(a.calls, "sets")
	return nil
}

func (a *testApp) RecordCommandBuffers() error {
	a.records++
	a.calls = append(a.calls, "record")
	return a.r.RecordCommandBuffers(func(cb *renderer.CommandBuffer, i int) error {
		a.r.BeginRenderPass(cb, i)
		cb.BindVertexBuffer(a.vertex, 0)
		a.r.EndRenderPass(cb)
		return nil
	})
}

func (a *testApp) DrawFrame(delta float64) error {
	a.frames++
	if a.onFrame != nil {
		if err := a.onFrame(a); err != nil {
			return err
		}
	}
	return a.r.Frame(func(imageIndex uint32) error {
		return a.vertex.Write(0, []byte{byte(a.frames)})
	})
}

func (a *testApp) UnLoad() {
	a.unloads++
	a.calls = append(a.calls, "unload")
	a.vertex.Destroy()
}

func (a *testApp) Exit() {
	a.calls = append(a.calls, "exit")
	if a.onExit != nil {
		a.onExit()
	}
}

func testConfig(t *testing.T) *core.Config {
	t.Helper()
	cfg, err := core.DefaultConfig()
	if err != nil {
		t.Fatal(err)
	}
	cfg.Application.StartWidth = 320
	cfg.Application.StartHeight = 240
	cfg.Assets.WatchShaders = false
	cfg.Log.Level = "warn"
	return cfg
}

func TestRunHeadless(t *testing.T) {
	app := &testApp{}
	if err := RunHeadless(testConfig(t), app, 10); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if app.frames != 10 {
		t.Errorf("drew %d frames, want 10", app.frames)
	}
	want := []string{"init", "load", "layout", "pipeline", "pool", "sets", "record", "unload", "exit"}
	if !reflect.DeepEqual(app.calls, want) {
		t.Errorf("calls = %v, want %v", app.calls, want)
	}
}

func runSoft(t *testing.T, cfg *core.Config, app *testApp, frames uint64) (*soft.Device, *HeadlessWindow, error) {
	t.Helper()
	w, h := cfg.Application.StartWidth, cfg.Application.StartHeight
	dev := soft.NewDevice(soft.Options{Width: w, Height: h})
	window := NewHeadlessWindow(int(w), int(h), frames)
	err := RunWith(cfg, app, dev, window)
	if !window.Destroyed() {
		t.Error("window was not destroyed")
	}
	return dev, window, err
}

func TestResizeRecordsAgain(t *testing.T) {
	var dev *soft.Device
	var window *HeadlessWindow
	app := &testApp{}
	app.onFrame = func(a *testApp) error {
		if a.frames == 3 {
			dev.Resize(640, 480)
			window.Resize(640, 480)
		}
		return nil
	}
	cfg := testConfig(t)
	dev = soft.NewDevice(soft.Options{Width: 320, Height: 240})
	window = NewHeadlessWindow(320, 240, 12)
	if err := RunWith(cfg, app, dev, window); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if app.loads < 2 || app.unloads != app.loads {
		t.Errorf("loads = %d, unloads = %d, want a reload around the recreation", app.loads, app.unloads)
	}
	if app.records != app.loads {
		t.Errorf("recorded %d times for %d loads", app.records, app.loads)
	}
	want := []string{"unload", "load", "layout", "pipeline", "pool", "sets", "record"}
	i := slices.Index(app.calls, "unload")
	if i < 0 || i+len(want) > len(app.calls) || !slices.Equal(app.calls[i:i+len(want)], want) {
		t.Errorf("calls = %v, want %v on recreation", app.calls, want)
	}
	if v := dev.Violations(); len(v) != 0 {
		t.Errorf("violations: %v", v)
	}
}

func TestMinimizedSuspendsDrawing(t *testing.T) {
	var window *HeadlessWindow
	app := &testApp{}
	app.onFrame = func(a *testApp) error {
		if a.frames == 2 {
			window.Resize(0, 0)
		}
		return nil
	}
	cfg := testConfig(t)
	dev := soft.NewDevice(soft.Options{Width: 320, Height: 240})
	window = NewHeadlessWindow(320, 240, 10)
	if err := RunWith(cfg, app, dev, window); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if app.frames != 2 {
		t.Errorf("drew %d frames while minimized, want 2", app.frames)
	}
	if window.Polls() <= 2 {
		t.Errorf("loop stopped polling after minimize")
	}
}

func TestEscapeQuits(t *testing.T) {
	app := &testApp{}
	app.onFrame = func(a *testApp) error {
		if a.frames == 3 {
			return core.InputProcessKey(core.KEY_ESCAPE, true)
		}
		return nil
	}
	if _, _, err := runSoft(t, testConfig(t), app, 100); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if app.frames != 3 {
		t.Errorf("drew %d frames, want 3", app.frames)
	}
}

func TestFrameErrorStillShutsDown(t *testing.T) {
	boom := errors.New("boom")
	app := &testApp{}
	app.onFrame = func(a *testApp) error {
		if a.frames == 2 {
			return boom
		}
		return nil
	}
	_, _, err := runSoft(t, testConfig(t), app, 10)
	if !errors.Is(err, boom) {
		t.Fatalf("run returned %v, want boom", err)
	}
	if app.unloads != 1 || app.calls[len(app.calls)-1] != "exit" {
		t.Errorf("calls = %v, want unload and exit after the failure", app.calls)
	}
}

func TestShutdownReportsSubsystemErrors(t *testing.T) {
	app := &testApp{}
	// an application tearing the event system down itself
	app.onExit = func() { core.EventSystemShutdown() }
	_, _, err := runSoft(t, testConfig(t), app, 3)
	if !errors.Is(err, core.ErrNotInitialized) {
		t.Fatalf("run returned %v, want the event system shutdown error", err)
	}
	if app.frames != 3 {
		t.Errorf("drew %d frames, want 3", app.frames)
	}
}

func TestInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Renderer.FramesInFlight = 7
	if err := RunHeadless(cfg, &testApp{}, 1); !errors.Is(err, core.ErrInvalidConfig) {
		t.Fatalf("got %v, want ErrInvalidConfig", err)
	}
}

func TestShaderChangeReloads(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t)
	cfg.Assets.WatchShaders = true
	cfg.Assets.ShaderDir = dir

	var window *HeadlessWindow
	var changed []string
	var deadline time.Time
	app := &testApp{}
	app.onFrame = func(a *testApp) error {
		switch {
		case a.frames == 1:
			core.EventRegister(core.EVENT_CODE_ASSET_CHANGED, a, func(ctx core.EventContext) bool {
				changed = append(changed, filepath.Base(ctx.Data.(assets.AssetInfo).Path))
				return false
			})
			deadline = time.Now().Add(5 * time.Second)
			return os.WriteFile(filepath.Join(dir, "quad.vert.spv"), []byte{0x03, 0x02, 0x23, 0x07}, 0o644)
		case a.loads >= 2 || time.Now().After(deadline):
			window.SetShouldClose(true)
		default:
			time.Sleep(5 * time.Millisecond)
		}
		return nil
	}
	dev := soft.NewDevice(soft.Options{Width: 320, Height: 240})
	window = NewHeadlessWindow(320, 240, 0)
	if err := RunWith(cfg, app, dev, window); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if app.loads < 2 || app.unloads != app.loads {
		t.Fatalf("loads = %d, unloads = %d, want a reload", app.loads, app.unloads)
	}
	if len(changed) == 0 || changed[0] != "quad.vert.spv" {
		t.Errorf("asset changed events = %v", changed)
	}
}

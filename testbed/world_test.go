package testbed

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/prism/engine"
	"github.com/spaghettifunk/prism/engine/assets/loaders"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/ecs"
)

func TestSpinAdvancesTransform(t *testing.T) {
	w, err := newWorld()
	if err != nil {
		t.Fatal(err)
	}
	w.update(1)
	tr, ok := ecs.GetComponent[Transform](w.registry, w.quad)
	if !ok {
		t.Fatal("quad has no transform")
	}
	if got, want := tr.Angle, mgl32.DegToRad(90); math.Abs(float64(got-want)) > 1e-5 {
		t.Errorf("angle after 1s = %f, want %f", got, want)
	}
	w.update(3)
	if tr.Angle < 0 || tr.Angle >= 2*math.Pi {
		t.Errorf("angle %f not wrapped", tr.Angle)
	}
}

func TestQuadModelIgnoresOtherEntities(t *testing.T) {
	w, err := newWorld()
	if err != nil {
		t.Fatal(err)
	}
	other := w.registry.CreateEntity()
	tr, err := ecs.AddComponent[Transform](w.registry, other)
	if err != nil {
		t.Fatal(err)
	}
	tr.Position = mgl32.Vec3{3, 0, 0}
	tr.Scale = 2
	w.update(0.5)

	quad, ok := ecs.GetComponent[Transform](w.registry, w.quad)
	if !ok {
		t.Fatal("quad has no transform")
	}
	if got := w.quadModel(); !got.ApproxEqual(quad.Model()) {
		t.Errorf("quad model = %v, want %v", got, quad.Model())
	}
	if w.quadModel().ApproxEqual(tr.Model()) {
		t.Error("quad model taken from another entity")
	}
}

func TestUniformsFlipY(t *testing.T) {
	model := mgl32.Ident4()
	gl := newUniforms(model, model, 800, 600, false)
	vk := newUniforms(model, model, 800, 600, true)
	if vk.Proj[5] != -gl.Proj[5] {
		t.Errorf("proj[5] = %f, want %f", vk.Proj[5], -gl.Proj[5])
	}
	b := vk.bytes()
	if len(b) != uniformSize {
		t.Fatalf("encoded %d bytes, want %d", len(b), uniformSize)
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(b[0:])); got != 1 {
		t.Errorf("model[0] = %f, want 1", got)
	}
	// zero height must not divide by zero
	if p := newUniforms(model, model, 800, 0, true).Proj; math.IsNaN(float64(p[0])) || math.IsInf(float64(p[0]), 0) {
		t.Errorf("projection of a zero height target is %v", p)
	}
}

func TestQuadGeometry(t *testing.T) {
	if got, want := len(vertexBytes()), len(quadVertices)*vertexStride; got != want {
		t.Errorf("vertex data is %d bytes, want %d", got, want)
	}
	if got, want := len(indexBytes()), len(quadIndices)*4; got != want {
		t.Errorf("index data is %d bytes, want %d", got, want)
	}
}

func TestTextureFallsBackToCheckerboard(t *testing.T) {
	w, h, px, err := loadTexture(t.TempDir(), false)
	if err != nil {
		t.Fatal(err)
	}
	if int(w*h*4) != len(px) {
		t.Fatalf("%dx%d texture with %d bytes", w, h, len(px))
	}
	if px[0] == px[8*4] {
		t.Error("first two cells share a color")
	}
}

// writeShaders writes header-only modules, enough for a device that never
// executes them.
func writeShaders(t *testing.T, dir string) {
	t.Helper()
	header := binary.LittleEndian.AppendUint32(nil, loaders.SPIRVMagic)
	header = append(header, make([]byte, 16)...)
	for _, name := range []string{vertexShaderName, fragmentShaderName} {
		if err := os.WriteFile(filepath.Join(dir, name), header, 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestTestbedRunsHeadless(t *testing.T) {
	cfg, err := core.DefaultConfig()
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	writeShaders(t, dir)
	cfg.Application.StartWidth = 320
	cfg.Application.StartHeight = 240
	cfg.Assets.ShaderDir = dir
	cfg.Assets.TextureDir = dir
	cfg.Assets.WatchShaders = false
	cfg.Log.Level = "warn"

	tb := New(cfg)
	if err := engine.RunHeadless(cfg, tb, 5); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if tb.world.registry.Len() != 0 {
		t.Errorf("%d entities left after exit", tb.world.registry.Len())
	}
}

func TestTestbedMissingShaders(t *testing.T) {
	cfg, err := core.DefaultConfig()
	if err != nil {
		t.Fatal(err)
	}
	cfg.Assets.ShaderDir = t.TempDir()
	cfg.Assets.WatchShaders = false
	cfg.Log.Level = "fatal"
	if err := engine.RunHeadless(cfg, New(cfg), 1); err == nil {
		t.Fatal("run without shaders succeeded")
	}
}

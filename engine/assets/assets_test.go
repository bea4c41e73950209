package assets

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spaghettifunk/prism/engine/assets/loaders"
)

func spirv(words int) []byte {
	b := make([]byte, 4*words)
	binary.LittleEndian.PutUint32(b, loaders.SPIRVMagic)
	return b
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDetermineAssetType(t *testing.T) {
	tests := []struct {
		path string
		want loaders.ResourceType
	}{
		{"shaders/quad.vert.spv", loaders.ResourceTypeShader},
		{"textures/wall.png", loaders.ResourceTypeTexture},
		{"textures/wall.jpeg", loaders.ResourceTypeTexture},
		{"textures/wall.webp", loaders.ResourceTypeTexture},
		{"shaders/quad.vert", loaders.ResourceTypeNone},
		{"README", loaders.ResourceTypeNone},
	}
	for _, tt := range tests {
		if got := determineAssetType(tt.path); got != tt.want {
			t.Errorf("determineAssetType(%q) = %s, want %s", tt.path, got, tt.want)
		}
	}
}

func TestLoadShaderCodeRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.spv")
	writeFile(t, bad, []byte("not a shader at all!"))

	if _, err := LoadShaderCode(bad); !errors.Is(err, loaders.ErrInvalidSPIRV) {
		t.Fatalf("expected ErrInvalidSPIRV, got %v", err)
	}
	if _, err := LoadShaderCode(filepath.Join(dir, "missing.spv")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
}

func TestLoadShadersKeepsOrder(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i := 5; i < 12; i++ {
		p := filepath.Join(dir, fmt.Sprintf("shader%d.spv", i))
		writeFile(t, p, spirv(i))
		paths = append(paths, p)
	}

	codes, err := LoadShaders(context.Background(), paths...)
	if err != nil {
		t.Fatal(err)
	}
	for i, code := range codes {
		if len(code) != 4*(i+5) {
			t.Errorf("shader %d: got %d bytes, want %d", i, len(code), 4*(i+5))
		}
	}

	paths = append(paths, filepath.Join(dir, "missing.spv"))
	if _, err := LoadShaders(context.Background(), paths...); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadTextureFlip(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})
	img.Set(0, 1, color.NRGBA{B: 255, A: 255})

	path := filepath.Join(t.TempDir(), "tex.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	f.Close()

	tex, err := LoadTexture(path, false)
	if err != nil {
		t.Fatal(err)
	}
	if tex.Width != 2 || tex.Height != 2 || len(tex.Pixels) != 16 {
		t.Fatalf("unexpected texture %dx%d (%d bytes)", tex.Width, tex.Height, len(tex.Pixels))
	}
	if tex.Pixels[0] != 255 || tex.Pixels[2] != 0 {
		t.Errorf("top-left texel = %v, want red", tex.Pixels[:4])
	}

	flipped, err := LoadTexture(path, true)
	if err != nil {
		t.Fatal(err)
	}
	if flipped.Pixels[0] != 0 || flipped.Pixels[2] != 255 {
		t.Errorf("flipped top-left texel = %v, want blue", flipped.Pixels[:4])
	}
}

func TestAssetManagerIndexesAndWatches(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.spv"), spirv(5))
	writeFile(t, filepath.Join(dir, "notes.txt"), []byte("ignored"))

	am, err := NewAssetManager()
	if err != nil {
		t.Fatal(err)
	}
	defer am.Shutdown()

	if err := am.Initialize(dir); err != nil {
		t.Fatal(err)
	}
	if am.Len() != 1 {
		t.Fatalf("indexed %d assets, want 1", am.Len())
	}

	created := filepath.Join(dir, "b.spv")
	writeFile(t, created, spirv(6))

	select {
	case c := <-am.Changes():
		if c.Path != created || c.Type != loaders.ResourceTypeShader {
			t.Fatalf("unexpected change %+v", c)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not report the new shader")
	}

	res, err := am.LoadAsset(created)
	if err != nil {
		t.Fatal(err)
	}
	if res.DataSize != 24 {
		t.Errorf("DataSize = %d, want 24", res.DataSize)
	}
	if info, ok := am.Lookup(created); !ok || info.LastLoaded.IsZero() {
		t.Errorf("lookup after load = %+v, %v", info, ok)
	}

	if _, err := am.LoadAsset(filepath.Join(dir, "notes.txt")); err == nil {
		t.Error("expected error for unknown asset type")
	}
}

func TestDrainChangesDeduplicates(t *testing.T) {
	am, err := NewAssetManager()
	if err != nil {
		t.Fatal(err)
	}
	defer am.Shutdown()

	am.publish(AssetInfo{Path: "x.spv"})
	am.publish(AssetInfo{Path: "x.spv"})
	am.publish(AssetInfo{Path: "y.spv"})

	got := am.DrainChanges()
	if len(got) != 2 || got[0].Path != "x.spv" || got[1].Path != "y.spv" {
		t.Fatalf("DrainChanges = %+v", got)
	}
	if len(am.DrainChanges()) != 0 {
		t.Fatal("second drain should be empty")
	}
}

func TestShutdownTwice(t *testing.T) {
	am, err := NewAssetManager()
	if err != nil {
		t.Fatal(err)
	}
	if err := am.Initialize(); err != nil {
		t.Fatal(err)
	}
	am.Shutdown()
	am.Shutdown()
	if err := am.addRecursive(t.TempDir()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

package platform

import (
	"testing"

	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/spaghettifunk/prism/engine/core"
)

func TestTranslateKey(t *testing.T) {
	tests := []struct {
		key  glfw.Key
		want core.KeyCode
		ok   bool
	}{
		{glfw.KeyEscape, core.KEY_ESCAPE, true},
		{glfw.KeyA, core.KEY_A, true},
		{glfw.KeyZ, core.KEY_Z, true},
		{glfw.Key7, core.KeyCode('7'), true},
		{glfw.KeyKP3, core.KEY_NUMPAD3, true},
		{glfw.KeyF12, core.KEY_F12, true},
		{glfw.KeyF24, core.KEY_F24, true},
		{glfw.KeyLeftShift, core.KEY_LSHIFT, true},
		{glfw.KeyUnknown, 0, false},
		{glfw.KeyWorld1, 0, false},
	}
	for _, tt := range tests {
		got, ok := translateKey(tt.key)
		if ok != tt.ok || got != tt.want {
			t.Errorf("translateKey(%d) = %#x, %v; want %#x, %v", tt.key, got, ok, tt.want, tt.ok)
		}
	}
}

func TestTranslateButton(t *testing.T) {
	if b, ok := translateButton(glfw.MouseButtonRight); !ok || b != core.BUTTON_RIGHT {
		t.Errorf("right button = %d, %v", b, ok)
	}
	if _, ok := translateButton(glfw.MouseButton4); ok {
		t.Error("button 4 should not map")
	}
}

func TestWindowConfigFrom(t *testing.T) {
	cfg, err := core.DefaultConfig()
	if err != nil {
		t.Fatal(err)
	}
	cfg.Application.Backend = core.BackendOpenGL
	wc := WindowConfigFrom(cfg.Application)
	if wc.API != ClientAPIOpenGL || wc.GLMajor != 4 || wc.GLMinor != 1 {
		t.Errorf("unexpected GL window config %+v", wc)
	}
	if wc.Width != int(cfg.Application.StartWidth) || wc.Title != cfg.Application.Name {
		t.Errorf("size/title not carried over: %+v", wc)
	}
}

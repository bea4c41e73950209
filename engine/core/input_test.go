package core_test

import (
	"errors"
	"testing"

	"github.com/spaghettifunk/prism/engine/core"
)

func setupInput(t *testing.T) {
	t.Helper()
	core.EventSystemInitialize()
	if err := core.InputInitialize(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		core.InputShutdown()
		core.EventSystemShutdown()
	})
}

func TestKeyTriggerAndRelease(t *testing.T) {
	setupInput(t)

	core.InputProcessKey(core.KEY_W, true)
	if !core.InputIsKeyDown(core.KEY_W) {
		t.Fatal("W should be down")
	}
	if !core.InputIsKeyTriggered(core.KEY_W) {
		t.Error("W should be triggered on the frame it went down")
	}

	core.InputUpdate(0.016)
	if core.InputIsKeyTriggered(core.KEY_W) {
		t.Error("W should not be triggered once the snapshot was taken")
	}
	if !core.InputIsKeyDown(core.KEY_W) || !core.InputWasKeyDown(core.KEY_W) {
		t.Error("W should be held")
	}

	core.InputProcessKey(core.KEY_W, false)
	if !core.InputIsKeyReleased(core.KEY_W) {
		t.Error("W should be released")
	}
	core.InputUpdate(0.016)
	if core.InputIsKeyReleased(core.KEY_W) || core.InputIsKeyDown(core.KEY_W) {
		t.Error("W should be idle")
	}
}

func TestKeyEventsFired(t *testing.T) {
	setupInput(t)

	var pressed, released []core.KeyCode
	listener := new(int)
	core.EventRegister(core.EVENT_CODE_KEY_PRESSED, listener, func(ctx core.EventContext) bool {
		pressed = append(pressed, ctx.Data.(*core.KeyEvent).KeyCode)
		return false
	})
	core.EventRegister(core.EVENT_CODE_KEY_RELEASED, listener, func(ctx core.EventContext) bool {
		released = append(released, ctx.Data.(*core.KeyEvent).KeyCode)
		return false
	})

	core.InputProcessKey(core.KEY_ESCAPE, true)
	// repeated state does not fire again
	core.InputProcessKey(core.KEY_ESCAPE, true)
	core.InputProcessKey(core.KEY_ESCAPE, false)

	if len(pressed) != 1 || pressed[0] != core.KEY_ESCAPE {
		t.Errorf("pressed = %v, want [ESCAPE]", pressed)
	}
	if len(released) != 1 || released[0] != core.KEY_ESCAPE {
		t.Errorf("released = %v, want [ESCAPE]", released)
	}
}

func TestMouseState(t *testing.T) {
	setupInput(t)

	core.InputProcessMouseMove(10, 20)
	core.InputProcessButton(core.BUTTON_LEFT, true)
	if x, y := core.InputGetMousePosition(); x != 10 || y != 20 {
		t.Errorf("mouse position = %d,%d, want 10,20", x, y)
	}
	if !core.InputIsButtonTriggered(core.BUTTON_LEFT) {
		t.Error("left button should be triggered")
	}
	core.InputUpdate(0)
	core.InputProcessMouseMove(11, 21)
	if x, y := core.InputGetPreviousMousePosition(); x != 10 || y != 20 {
		t.Errorf("previous mouse position = %d,%d, want 10,20", x, y)
	}
	core.InputProcessButton(core.BUTTON_LEFT, false)
	if !core.InputIsButtonReleased(core.BUTTON_LEFT) {
		t.Error("left button should be released")
	}
}

func TestInputUninitialized(t *testing.T) {
	if core.InputIsKeyDown(core.KEY_A) {
		t.Error("uninitialized input reports no key down")
	}
	if err := core.InputProcessKey(core.KEY_A, true); err == nil {
		t.Error("processing a key before initialization should fail")
	}
	if err := core.InputShutdown(); !errors.Is(err, core.ErrNotInitialized) {
		t.Errorf("shutdown before initialization = %v, want %v", err, core.ErrNotInitialized)
	}
}

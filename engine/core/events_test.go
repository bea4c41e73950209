package core_test

import (
	"errors"
	"testing"

	"github.com/spaghettifunk/prism/engine/core"
)

func TestEventHandledStopsPropagation(t *testing.T) {
	core.EventSystemInitialize()
	defer core.EventSystemShutdown()

	first, second := new(int), new(int)
	calls := 0
	core.EventRegister(core.EVENT_CODE_APPLICATION_QUIT, first, func(core.EventContext) bool {
		calls++
		return true
	})
	core.EventRegister(core.EVENT_CODE_APPLICATION_QUIT, second, func(core.EventContext) bool {
		calls++
		return false
	})

	if !core.EventFire(core.EventContext{Type: core.EVENT_CODE_APPLICATION_QUIT}) {
		t.Error("event should be reported as handled")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestEventRegisterTwiceAndUnregister(t *testing.T) {
	core.EventSystemInitialize()
	defer core.EventSystemShutdown()

	l := new(int)
	fn := func(core.EventContext) bool { return true }
	if !core.EventRegister(core.EVENT_CODE_RESIZED, l, fn) {
		t.Fatal("first registration should succeed")
	}
	if core.EventRegister(core.EVENT_CODE_RESIZED, l, fn) {
		t.Error("duplicate registration should fail")
	}
	if !core.EventUnregister(core.EVENT_CODE_RESIZED, l) {
		t.Error("unregister should succeed")
	}
	if core.EventFire(core.EventContext{Type: core.EVENT_CODE_RESIZED}) {
		t.Error("no listener left, event cannot be handled")
	}
}

func TestEventSystemNotInitialized(t *testing.T) {
	core.EventSystemShutdown()
	if err := core.EventSystemShutdown(); !errors.Is(err, core.ErrNotInitialized) {
		t.Errorf("second shutdown = %v, want %v", err, core.ErrNotInitialized)
	}
	if core.EventRegister(core.EVENT_CODE_RESIZED, nil, nil) {
		t.Error("register must fail before initialization")
	}
	if core.EventFire(core.EventContext{Type: core.EVENT_CODE_RESIZED}) {
		t.Error("fire must fail before initialization")
	}
}

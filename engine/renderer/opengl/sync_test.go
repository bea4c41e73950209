package opengl

import (
	"errors"
	"testing"
)

type fakeFencer struct {
	next    uintptr
	live    map[uintptr]bool
	waited  []uintptr
	failOn  uintptr
	deleted int
}

func newFakeFencer() *fakeFencer {
	return &fakeFencer{live: make(map[uintptr]bool)}
}

func (f *fakeFencer) Insert() uintptr {
	f.next++
	f.live[f.next] = true
	return f.next
}

func (f *fakeFencer) Wait(sync uintptr) error {
	f.waited = append(f.waited, sync)
	if sync == f.failOn {
		return ErrWaitFailed
	}
	return nil
}

func (f *fakeFencer) Delete(sync uintptr) {
	delete(f.live, sync)
	f.deleted++
}

func TestFrameRingRotates(t *testing.T) {
	f := newFakeFencer()
	ring := newFrameRing(f, 2)
	var slots []int
	for i := 0; i < 5; i++ {
		if err := ring.Acquire(); err != nil {
			t.Fatal(err)
		}
		slots = append(slots, ring.Current())
		ring.Release()
	}
	want := []int{0, 1, 0, 1, 0}
	for i := range want {
		if slots[i] != want[i] {
			t.Fatalf("slots = %v, want %v", slots, want)
		}
	}
	// The first two acquires found empty slots, the rest waited on the
	// fence inserted two frames before.
	wantWaits := []uintptr{1, 2, 3}
	if len(f.waited) != len(wantWaits) {
		t.Fatalf("waited on %v, want %v", f.waited, wantWaits)
	}
	for i := range wantWaits {
		if f.waited[i] != wantWaits[i] {
			t.Fatalf("waited on %v, want %v", f.waited, wantWaits)
		}
	}
	if len(f.live) != 2 {
		t.Errorf("%d fences alive, want 2", len(f.live))
	}
}

func TestFrameRingDrain(t *testing.T) {
	f := newFakeFencer()
	ring := newFrameRing(f, 3)
	for i := 0; i < 3; i++ {
		_ = ring.Acquire()
		ring.Release()
	}
	if err := ring.Drain(); err != nil {
		t.Fatal(err)
	}
	if len(f.live) != 0 {
		t.Errorf("%d fences alive after drain", len(f.live))
	}
	if err := ring.Drain(); err != nil {
		t.Errorf("second drain: %v", err)
	}
}

func TestFrameRingWaitFailure(t *testing.T) {
	f := newFakeFencer()
	f.failOn = 1
	ring := newFrameRing(f, 1)
	_ = ring.Acquire()
	ring.Release()
	if err := ring.Acquire(); !errors.Is(err, ErrWaitFailed) {
		t.Fatalf("Acquire = %v, want ErrWaitFailed", err)
	}
	// The failed fence is kept so a later drain still sees it.
	if !f.live[1] {
		t.Error("fence deleted after a failed wait")
	}
}

func TestFrameRingZeroSlots(t *testing.T) {
	ring := newFrameRing(newFakeFencer(), 0)
	if len(ring.fences) != 1 {
		t.Fatalf("got %d slots", len(ring.fences))
	}
}

package core

import (
	"testing"
	"time"
)

func TestClockStoppedDoesNotAdvance(t *testing.T) {
	c := NewClock()
	c.Update()
	if c.Elapsed() != 0 {
		t.Fatalf("Elapsed() = %v on a non-started clock", c.Elapsed())
	}
	c.Start()
	time.Sleep(2 * time.Millisecond)
	c.Update()
	first := c.Elapsed()
	if first <= 0 {
		t.Fatalf("Elapsed() = %v, want > 0", first)
	}
	c.Stop()
	time.Sleep(2 * time.Millisecond)
	c.Update()
	if c.Elapsed() != first {
		t.Errorf("stopped clock moved from %v to %v", first, c.Elapsed())
	}
}

func TestFramePacerSleepsRemainingBudget(t *testing.T) {
	fp := NewFramePacer(0.5, true)
	var slept time.Duration
	fp.sleep = func(d time.Duration) { slept = d }

	fp.Begin()
	fp.End()

	if slept <= 0 || slept > 500*time.Millisecond {
		t.Errorf("slept %v, want within (0, 500ms]", slept)
	}
	if fp.MeasuredFrameTime() > fp.TargetFrameTime() {
		t.Errorf("measured %v exceeds target %v", fp.MeasuredFrameTime(), fp.TargetFrameTime())
	}
}

func TestFramePacerUnlimited(t *testing.T) {
	fp := NewFramePacer(0.5, false)
	fp.sleep = func(time.Duration) { t.Fatal("unlimited pacer must not sleep") }
	fp.Begin()
	fp.End()
	if fp.ControlledFrameTime() < fp.MeasuredFrameTime() {
		t.Error("controlled frame time is never shorter than measured")
	}
}

func TestClamp(t *testing.T) {
	if got := Clamp[uint32](5, 10, 20); got != 10 {
		t.Errorf("Clamp below = %d", got)
	}
	if got := Clamp(25.0, 10.0, 20.0); got != 20.0 {
		t.Errorf("Clamp above = %v", got)
	}
	if got := Clamp(15, 10, 20); got != 15 {
		t.Errorf("Clamp inside = %d", got)
	}
}

func TestMetricsAverage(t *testing.T) {
	m := NewMetrics()
	// 1/64s is exact in binary, 15.625ms per frame
	for i := 0; i < int(AVG_COUNT); i++ {
		m.Update(1.0 / 64.0)
	}
	if ft := m.FrameTime(); ft != 15.625 {
		t.Errorf("FrameTime() = %v, want 15.625ms", ft)
	}
	if m.FPS() != 0 {
		t.Errorf("FPS() = %v before one second elapsed", m.FPS())
	}
	// the 65th frame crosses the one second boundary
	for i := 0; i < 35; i++ {
		m.Update(1.0 / 64.0)
	}
	if fps := m.FPS(); fps != 64 {
		t.Errorf("FPS() = %v, want 64", fps)
	}
}

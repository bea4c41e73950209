package core

import (
	"time"

	"golang.org/x/exp/constraints"
)

type Clock struct {
	startTime time.Time
	elapsed   float64
	running   bool
}

func NewClock() *Clock {
	return &Clock{}
}

// Updates the provided clock. Should be called just before checking elapsed time.
// Has no effect on non-started clocks.
func (c *Clock) Update() {
	if c.running {
		c.elapsed = time.Since(c.startTime).Seconds()
	}
}

// Starts the provided clock. Resets elapsed time.
func (c *Clock) Start() {
	c.startTime = time.Now()
	c.running = true
	c.elapsed = 0
}

// Stops the provided clock. Does not reset elapsed time.
func (c *Clock) Stop() {
	c.running = false
}

// Elapsed is expressed in seconds.
func (c *Clock) Elapsed() float64 {
	return c.elapsed
}

// FramePacer tracks how long a frame took (measured) and how long it was
// allowed to take once the remaining budget was slept away (controlled).
type FramePacer struct {
	target     time.Duration
	limit      bool
	frameStart time.Time
	measured   time.Duration
	controlled time.Duration
	sleep      func(time.Duration)
}

func NewFramePacer(targetFrameSeconds float64, limit bool) *FramePacer {
	return &FramePacer{
		target: time.Duration(targetFrameSeconds * float64(time.Second)),
		limit:  limit,
		sleep:  time.Sleep,
	}
}

func (fp *FramePacer) Begin() {
	fp.frameStart = time.Now()
}

// End closes the frame. If frame limiting is on and there is time left,
// it is given back to the OS.
func (fp *FramePacer) End() {
	fp.measured = time.Since(fp.frameStart)
	remaining := fp.target - fp.measured
	if fp.limit && remaining > time.Millisecond {
		fp.sleep(remaining - time.Millisecond)
	}
	fp.controlled = time.Since(fp.frameStart)
}

func (fp *FramePacer) MeasuredFrameTime() time.Duration {
	return fp.measured
}

func (fp *FramePacer) ControlledFrameTime() time.Duration {
	return fp.controlled
}

func (fp *FramePacer) TargetFrameTime() time.Duration {
	return fp.target
}

// Clamp returns the value `f` clamped to the range [low, high].
func Clamp[T constraints.Ordered](f, low, high T) T {
	if f < low {
		return low
	}
	if f > high {
		return high
	}
	return f
}

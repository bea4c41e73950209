package opengl

import (
	"errors"

	"github.com/go-gl/gl/v4.1-core/gl"

	"github.com/spaghettifunk/prism/engine/core"
)

var ErrWaitFailed = errors.New("glClientWaitSync failed")

// fencer is the slice of the GL sync API the frame ring depends on.
type fencer interface {
	Insert() uintptr
	// Wait blocks until the sync object is signaled.
	Wait(sync uintptr) error
	Delete(sync uintptr)
}

type glFencer struct{}

func (glFencer) Insert() uintptr {
	return gl.FenceSync(gl.SYNC_GPU_COMMANDS_COMPLETE, 0)
}

func (glFencer) Wait(sync uintptr) error {
	flags := uint32(gl.SYNC_FLUSH_COMMANDS_BIT)
	for {
		switch gl.ClientWaitSync(sync, flags, syncWaitSlice) {
		case gl.ALREADY_SIGNALED, gl.CONDITION_SATISFIED:
			return nil
		case gl.WAIT_FAILED:
			return ErrWaitFailed
		}
		// Timed out: the flush only needs to happen once.
		flags = 0
	}
}

func (glFencer) Delete(sync uintptr) {
	gl.DeleteSync(sync)
}

// 100ms per wait slice; the loop itself never gives up.
const syncWaitSlice = 100_000_000

// frameRing holds one fence per frame in flight. A slot is reused only once
// the commands of the frame that last used it have completed.
type frameRing struct {
	fencer  fencer
	fences  []uintptr
	current int
}

func newFrameRing(f fencer, slots uint32) *frameRing {
	if slots == 0 {
		slots = 1
	}
	return &frameRing{
		fencer: f,
		fences: make([]uintptr, slots),
	}
}

func (r *frameRing) Current() int {
	return r.current
}

// Acquire waits for the current slot's fence, if any, and releases it.
func (r *frameRing) Acquire() error {
	sync := r.fences[r.current]
	if sync == 0 {
		return nil
	}
	if err := r.fencer.Wait(sync); err != nil {
		core.LogError("frame slot %d: %s", r.current, err)
		return err
	}
	r.fencer.Delete(sync)
	r.fences[r.current] = 0
	return nil
}

// Release fences the commands issued for the current slot and moves to the next.
func (r *frameRing) Release() {
	if old := r.fences[r.current]; old != 0 {
		r.fencer.Delete(old)
	}
	r.fences[r.current] = r.fencer.Insert()
	r.current = (r.current + 1) % len(r.fences)
}

// Drain waits for every outstanding fence and deletes them.
func (r *frameRing) Drain() error {
	var firstErr error
	for i, sync := range r.fences {
		if sync == 0 {
			continue
		}
		if err := r.fencer.Wait(sync); err != nil && firstErr == nil {
			firstErr = err
		}
		r.fencer.Delete(sync)
		r.fences[i] = 0
	}
	return firstErr
}

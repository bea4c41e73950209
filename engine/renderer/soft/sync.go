package soft

import (
	"fmt"
	"time"

	"github.com/spaghettifunk/prism/engine/renderer/gpu"
)

type fence struct {
	signaled bool
	// a submission or acquire will signal it
	inUse bool
}

type semaphore struct {
	signaled bool
}

type submission struct {
	commandBuffers []uint64
	fence          uint64
}

func (d *Device) CreateFence(signaled bool) (gpu.Fence, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return gpu.Fence(d.fences.Acquire(&fence{signaled: signaled})), nil
}

func (d *Device) DestroyFence(f gpu.Fence) {
	if f == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	fe, ok := d.fences.Release(uint64(f))
	if !ok {
		d.violation("DestroyFence: unknown fence %d", f)
		return
	}
	if fe.inUse {
		d.violation("DestroyFence: fence %d is in use by a pending submission", f)
	}
	d.cond.Broadcast()
}

func (d *Device) WaitForFences(fences []gpu.Fence, timeout uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var expired bool
	if timeout != gpu.WaitForever && timeout > 0 {
		t := time.AfterFunc(time.Duration(timeout), func() {
			d.mu.Lock()
			expired = true
			d.mu.Unlock()
			d.cond.Broadcast()
		})
		defer t.Stop()
	}
	for {
		done := true
		for _, f := range fences {
			fe, ok := d.fences.Get(uint64(f))
			if !ok {
				return fail("WaitForFences", gpu.ErrInvalidHandle)
			}
			if !fe.signaled {
				done = false
				if !fe.inUse {
					// nothing will ever signal it
					d.violation("WaitForFences: fence %d is neither signaled nor pending", f)
					return fail("WaitForFences", gpu.ErrDeviceLost)
				}
			}
		}
		if done {
			return nil
		}
		if timeout == 0 || expired {
			return fail("WaitForFences", gpu.ErrTimeout)
		}
		d.cond.Wait()
	}
}

func (d *Device) ResetFences(fences []gpu.Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, f := range fences {
		fe, ok := d.fences.Get(uint64(f))
		if !ok {
			return fail("ResetFences", gpu.ErrInvalidHandle)
		}
		if fe.inUse {
			return fail("ResetFences", fmt.Errorf("%w: fence %d is pending", gpu.ErrInvalidUsage, f))
		}
		fe.signaled = false
	}
	return nil
}

func (d *Device) FenceStatus(f gpu.Fence) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fe, ok := d.fences.Get(uint64(f))
	if !ok {
		return false, fail("FenceStatus", gpu.ErrInvalidHandle)
	}
	return fe.signaled, nil
}

func (d *Device) CreateSemaphore() (gpu.Semaphore, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return gpu.Semaphore(d.semaphores.Acquire(&semaphore{})), nil
}

func (d *Device) DestroySemaphore(s gpu.Semaphore) {
	if s == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.semaphores.Release(uint64(s)); !ok {
		d.violation("DestroySemaphore: unknown semaphore %d", s)
	}
}

// SemaphoreSignaled reports whether a semaphore holds an unconsumed signal.
func (d *Device) SemaphoreSignaled(s gpu.Semaphore) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	sem, ok := d.semaphores.Get(uint64(s))
	return ok && sem.signaled
}

func (d *Device) GraphicsQueue() gpu.Queue { return graphicsQueue }

func (d *Device) PresentQueue() gpu.Queue { return presentQueue }

// QueueSubmit checks the submission, then queues it. The graphics and present
// queues share one timeline, so semaphores signal in submission order.
func (d *Device) QueueSubmit(queue gpu.Queue, submits []gpu.SubmitInfo, f gpu.Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if queue != graphicsQueue && queue != presentQueue {
		return fail("QueueSubmit", gpu.ErrInvalidHandle)
	}

	var fe *fence
	if f != 0 {
		var ok bool
		if fe, ok = d.fences.Get(uint64(f)); !ok {
			return fail("QueueSubmit", gpu.ErrInvalidHandle)
		}
		if fe.signaled || fe.inUse {
			return fail("QueueSubmit", fmt.Errorf("%w: fence %d must be unsignaled", gpu.ErrInvalidUsage, f))
		}
	}

	// validate everything before changing any state
	waits := make(map[uint64]bool)
	for _, s := range submits {
		if len(s.WaitSemaphores) != len(s.WaitStages) {
			return fail("QueueSubmit", fmt.Errorf("%w: wait semaphores and stages differ in length", gpu.ErrInvalidUsage))
		}
		for _, w := range s.WaitSemaphores {
			sem, ok := d.semaphores.Get(uint64(w))
			if !ok {
				return fail("QueueSubmit", gpu.ErrInvalidHandle)
			}
			if !sem.signaled || waits[uint64(w)] {
				return fail("QueueSubmit", fmt.Errorf("%w: wait on unsignaled semaphore %d", gpu.ErrInvalidUsage, w))
			}
			waits[uint64(w)] = true
		}
		for _, sig := range s.SignalSemaphores {
			sem, ok := d.semaphores.Get(uint64(sig))
			if !ok {
				return fail("QueueSubmit", gpu.ErrInvalidHandle)
			}
			if sem.signaled && !waits[uint64(sig)] {
				return fail("QueueSubmit", fmt.Errorf("%w: semaphore %d is already signaled", gpu.ErrInvalidUsage, sig))
			}
		}
		for _, cb := range s.CommandBuffers {
			c, ok := d.commandBuffers.Get(uint64(cb))
			if !ok {
				return fail("QueueSubmit", gpu.ErrInvalidHandle)
			}
			if c.state != stateExecutable {
				return fail("QueueSubmit", fmt.Errorf("%w: command buffer %d is not executable", gpu.ErrInvalidUsage, cb))
			}
			if c.pending > 0 && c.usage&gpu.CommandBufferUsageSimultaneousUse == 0 {
				return fail("QueueSubmit", fmt.Errorf("%w: command buffer %d is still pending", gpu.ErrInvalidUsage, cb))
			}
			if c.submittedOnce && c.usage&gpu.CommandBufferUsageOneTimeSubmit != 0 {
				return fail("QueueSubmit", fmt.Errorf("%w: one time command buffer %d submitted twice", gpu.ErrInvalidUsage, cb))
			}
		}
	}
	if d.pending.IsFull() {
		d.retireOne()
	}

	sub := &submission{fence: uint64(f)}
	for _, s := range submits {
		for _, w := range s.WaitSemaphores {
			sem, _ := d.semaphores.Get(uint64(w))
			sem.signaled = false
		}
		for _, sig := range s.SignalSemaphores {
			sem, _ := d.semaphores.Get(uint64(sig))
			sem.signaled = true
		}
		for _, cb := range s.CommandBuffers {
			c, _ := d.commandBuffers.Get(uint64(cb))
			c.pending++
			c.submittedOnce = true
			sub.commandBuffers = append(sub.commandBuffers, uint64(cb))
		}
	}
	if fe != nil {
		fe.inUse = true
	}
	d.stats.Submissions++
	if err := d.pending.Enqueue(sub); err != nil {
		return fail("QueueSubmit", err)
	}
	if !d.opts.Manual {
		d.retireAll()
	}
	return nil
}

// retireOne executes the oldest pending submission and signals its fence.
func (d *Device) retireOne() bool {
	sub, err := d.pending.Dequeue()
	if err != nil {
		return false
	}
	for _, id := range sub.commandBuffers {
		c, ok := d.commandBuffers.Get(id)
		if !ok {
			d.violation("command buffer %d freed while pending", id)
			continue
		}
		for _, cmd := range c.commands {
			cmd(d)
		}
		c.pending--
	}
	if fe, ok := d.fences.Get(sub.fence); ok {
		fe.inUse = false
		fe.signaled = true
	}
	d.cond.Broadcast()
	return true
}

func (d *Device) retireAll() {
	for d.retireOne() {
	}
}

// Complete retires the oldest pending submission. It reports false when
// nothing was pending.
func (d *Device) Complete() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.retireOne()
}

// CompleteAll retires every pending submission.
func (d *Device) CompleteAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.retireAll()
}

// Pending returns the number of submissions not yet retired.
func (d *Device) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending.Len()
}

func (d *Device) QueueWaitIdle(queue gpu.Queue) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if queue != graphicsQueue && queue != presentQueue {
		return fail("QueueWaitIdle", gpu.ErrInvalidHandle)
	}
	d.retireAll()
	return nil
}

func (d *Device) DeviceWaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.retireAll()
	return nil
}

package soft

import (
	"fmt"
	"slices"

	"github.com/spaghettifunk/prism/engine/renderer/gpu"
)

const maxSurfaceExtent uint32 = 16384

type swapchain struct {
	info       gpu.SwapchainInfo
	images     []uint64
	acquired   []bool
	next       uint32
	generation uint64
	retired    bool
}

func (d *Device) SurfaceCapabilities() (gpu.SurfaceCapabilities, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return gpu.SurfaceCapabilities{
		MinImageCount: d.opts.MinImageCount,
		MaxImageCount: d.opts.MaxImageCount,
		CurrentExtent: d.surface.extent,
		MinExtent:     gpu.Extent2D{Width: 1, Height: 1},
		MaxExtent:     gpu.Extent2D{Width: maxSurfaceExtent, Height: maxSurfaceExtent},
		Formats:       slices.Clone(d.opts.Formats),
		PresentModes:  slices.Clone(d.opts.PresentModes),
	}, nil
}

func (d *Device) CreateSwapchain(info gpu.SwapchainInfo) (gpu.Swapchain, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if info.Extent.Width == 0 || info.Extent.Height == 0 ||
		info.Extent.Width > maxSurfaceExtent || info.Extent.Height > maxSurfaceExtent {
		return 0, fail("CreateSwapchain", fmt.Errorf("%w: extent %dx%d", gpu.ErrInvalidUsage, info.Extent.Width, info.Extent.Height))
	}
	if !slices.Contains(d.opts.Formats, info.Format) {
		return 0, fail("CreateSwapchain", fmt.Errorf("%w: unsupported surface format", gpu.ErrInvalidUsage))
	}
	if !slices.Contains(d.opts.PresentModes, info.PresentMode) {
		return 0, fail("CreateSwapchain", fmt.Errorf("%w: unsupported present mode", gpu.ErrInvalidUsage))
	}
	if info.MinImageCount < d.opts.MinImageCount || info.MinImageCount > d.opts.MaxImageCount {
		return 0, fail("CreateSwapchain", fmt.Errorf("%w: image count %d", gpu.ErrInvalidUsage, info.MinImageCount))
	}
	if info.OldSwapchain != 0 {
		old, ok := d.swapchains.Get(uint64(info.OldSwapchain))
		if !ok {
			return 0, fail("CreateSwapchain", gpu.ErrInvalidHandle)
		}
		old.retired = true
	}

	sc := &swapchain{
		info:       info,
		images:     make([]uint64, info.MinImageCount),
		acquired:   make([]bool, info.MinImageCount),
		generation: d.surface.generation,
	}
	imgInfo := gpu.ImageInfo{
		Width:  info.Extent.Width,
		Height: info.Extent.Height,
		Format: info.Format.Format,
		Usage:  gpu.ImageUsageColorAttachment | gpu.ImageUsageTransferSrc,
	}
	for i := range sc.images {
		sc.images[i] = d.images.Acquire(&image{
			info:           imgInfo,
			layout:         gpu.ImageLayoutUndefined,
			swapchainOwned: true,
			pixels:         make([]byte, uint64(info.Extent.Width)*uint64(info.Extent.Height)*info.Format.Format.Size()),
		})
	}
	return gpu.Swapchain(d.swapchains.Acquire(sc)), nil
}

func (d *Device) DestroySwapchain(s gpu.Swapchain) {
	if s == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	sc, ok := d.swapchains.Release(uint64(s))
	if !ok {
		d.violation("DestroySwapchain: unknown swapchain %d", s)
		return
	}
	for _, img := range sc.images {
		d.images.Release(img)
	}
}

func (d *Device) SwapchainImages(s gpu.Swapchain) ([]gpu.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	sc, ok := d.swapchains.Get(uint64(s))
	if !ok {
		return nil, fail("SwapchainImages", gpu.ErrInvalidHandle)
	}
	out := make([]gpu.Image, len(sc.images))
	for i, img := range sc.images {
		out[i] = gpu.Image(img)
	}
	return out, nil
}

// AcquireNextImage hands out images round robin. The semaphore and fence are
// signaled at once since the simulated presentation engine never holds images.
func (d *Device) AcquireNextImage(s gpu.Swapchain, timeout uint64, sem gpu.Semaphore, f gpu.Fence) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	sc, ok := d.swapchains.Get(uint64(s))
	if !ok {
		return 0, fail("AcquireNextImage", gpu.ErrInvalidHandle)
	}
	if sem == 0 && f == 0 {
		return 0, fail("AcquireNextImage", fmt.Errorf("%w: neither semaphore nor fence", gpu.ErrInvalidUsage))
	}
	if sc.retired || sc.generation != d.surface.generation {
		return 0, fail("AcquireNextImage", gpu.ErrOutOfDate)
	}

	var acquired *semaphore
	if sem != 0 {
		if acquired, ok = d.semaphores.Get(uint64(sem)); !ok {
			return 0, fail("AcquireNextImage", gpu.ErrInvalidHandle)
		}
		if acquired.signaled {
			return 0, fail("AcquireNextImage", fmt.Errorf("%w: semaphore %d is already signaled", gpu.ErrInvalidUsage, sem))
		}
	}
	var fe *fence
	if f != 0 {
		if fe, ok = d.fences.Get(uint64(f)); !ok {
			return 0, fail("AcquireNextImage", gpu.ErrInvalidHandle)
		}
		if fe.signaled || fe.inUse {
			return 0, fail("AcquireNextImage", fmt.Errorf("%w: fence %d must be unsignaled", gpu.ErrInvalidUsage, f))
		}
	}

	n := uint32(len(sc.images))
	index := n
	for i := uint32(0); i < n; i++ {
		candidate := (sc.next + i) % n
		if !sc.acquired[candidate] {
			index = candidate
			break
		}
	}
	if index == n {
		if timeout == 0 {
			return 0, &gpu.ResultError{Op: "AcquireNextImage", Text: "not ready", Err: gpu.ErrTimeout}
		}
		return 0, fail("AcquireNextImage", fmt.Errorf("%w: every image is already acquired", gpu.ErrInvalidUsage))
	}

	sc.acquired[index] = true
	sc.next = (index + 1) % n
	if acquired != nil {
		acquired.signaled = true
	}
	if fe != nil {
		fe.signaled = true
		d.cond.Broadcast()
	}
	d.stats.Acquires++

	if d.surface.acquireSuboptimal {
		d.surface.acquireSuboptimal = false
		return index, fail("AcquireNextImage", gpu.ErrSuboptimal)
	}
	return index, nil
}

func (d *Device) QueuePresent(queue gpu.Queue, info gpu.PresentInfo) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if queue != presentQueue && queue != graphicsQueue {
		return fail("QueuePresent", gpu.ErrInvalidHandle)
	}
	sc, ok := d.swapchains.Get(uint64(info.Swapchain))
	if !ok {
		return fail("QueuePresent", gpu.ErrInvalidHandle)
	}
	if info.ImageIndex >= uint32(len(sc.images)) || !sc.acquired[info.ImageIndex] {
		return fail("QueuePresent", fmt.Errorf("%w: image %d was not acquired", gpu.ErrInvalidUsage, info.ImageIndex))
	}
	for _, w := range info.WaitSemaphores {
		sem, ok := d.semaphores.Get(uint64(w))
		if !ok {
			return fail("QueuePresent", gpu.ErrInvalidHandle)
		}
		if !sem.signaled {
			return fail("QueuePresent", fmt.Errorf("%w: wait on unsignaled semaphore %d", gpu.ErrInvalidUsage, w))
		}
	}
	for _, w := range info.WaitSemaphores {
		sem, _ := d.semaphores.Get(uint64(w))
		sem.signaled = false
	}
	sc.acquired[info.ImageIndex] = false

	// layouts are only settled once the queued work has run
	if img, ok := d.images.Get(sc.images[info.ImageIndex]); ok && d.pending.IsEmpty() && img.layout != gpu.ImageLayoutPresentSrc {
		d.violation("QueuePresent: image %d presented in layout %d", info.ImageIndex, img.layout)
	}
	if sc.retired || sc.generation != d.surface.generation {
		return fail("QueuePresent", gpu.ErrOutOfDate)
	}
	d.stats.Presents++
	if d.surface.presentSuboptimal {
		d.surface.presentSuboptimal = false
		return fail("QueuePresent", gpu.ErrSuboptimal)
	}
	return nil
}

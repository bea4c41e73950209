package renderer_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/spaghettifunk/prism/engine/renderer"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
	"github.com/spaghettifunk/prism/engine/renderer/soft"
)

func drawFrame(t *testing.T, r *renderer.Renderer) uint32 {
	t.Helper()
	idx, err := r.PrepareNextFrame()
	if err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	if idx == renderer.InvalidImageIndex {
		return idx
	}
	if err := r.SubmitFrame(idx); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	return idx
}

func TestPrepareBlocksOnInFlightFence(t *testing.T) {
	for n := uint32(1); n <= 3; n++ {
		t.Run(fmt.Sprintf("frames=%d", n), func(t *testing.T) {
			r, dev, _ := newRenderer(t, soft.Options{Manual: true}, n)

			for i := uint32(0); i < n; i++ {
				if idx := drawFrame(t, r); idx == renderer.InvalidImageIndex {
					t.Fatalf("frame %d was skipped", i)
				}
			}
			if dev.Pending() != int(n) {
				t.Fatalf("expected %d pending submissions, got %d", n, dev.Pending())
			}

			type result struct {
				idx uint32
				err error
			}
			done := make(chan result, 1)
			go func() {
				idx, err := r.PrepareNextFrame()
				done <- result{idx, err}
			}()
			select {
			case res := <-done:
				t.Fatalf("prepare returned %d (%v) while every slot was in flight", res.idx, res.err)
			case <-time.After(50 * time.Millisecond):
			}

			dev.Complete()
			var res result
			select {
			case res = <-done:
			case <-time.After(time.Second):
				t.Fatal("prepare still blocked after the first submission retired")
			}
			if res.err != nil || res.idx == renderer.InvalidImageIndex {
				t.Fatalf("unexpected prepare result %d (%v)", res.idx, res.err)
			}
			if err := r.SubmitFrame(res.idx); err != nil {
				t.Fatal(err)
			}
			shutdown(t, r, dev)
		})
	}
}

func TestAcquireOrderWithTwoFrames(t *testing.T) {
	r, dev, _ := newRenderer(t, soft.Options{Manual: true}, 2)

	if idx := drawFrame(t, r); idx != 0 {
		t.Fatalf("expected image 0, got %d", idx)
	}
	if idx := drawFrame(t, r); idx != 1 {
		t.Fatalf("expected image 1, got %d", idx)
	}
	dev.Complete()
	if idx := drawFrame(t, r); idx != 2 {
		t.Fatalf("expected image 2, got %d", idx)
	}
	dev.CompleteAll()
	shutdown(t, r, dev)
}

func TestFrameRotationSurvivesRecreation(t *testing.T) {
	r, dev, h := newRenderer(t, soft.Options{}, 2)

	var frames []uint32
	var skipped int
	for i := 0; i < 10; i++ {
		switch i {
		case 3:
			dev.Resize(1024, 768)
			r.Resized(1024, 768)
		case 6:
			dev.ForceSuboptimalAcquire()
		case 8:
			dev.ForceSuboptimalPresent()
		}
		frames = append(frames, r.CurrentFrame())
		if drawFrame(t, r) == renderer.InvalidImageIndex {
			skipped++
		}
	}
	for i, f := range frames {
		if f != uint32(i%2) {
			t.Fatalf("frame slots %v do not alternate", frames)
		}
	}
	if skipped != 2 {
		t.Fatalf("expected 2 skipped frames, got %d", skipped)
	}
	if h.created != 3 || h.destroyed != 3 {
		t.Fatalf("expected 3 recreations, got %d created and %d destroyed", h.created, h.destroyed)
	}
	if ext := r.Extent(); ext.Width != 1024 || ext.Height != 768 {
		t.Fatalf("unexpected extent %dx%d", ext.Width, ext.Height)
	}
	shutdown(t, r, dev)
}

func TestRecreationRebuildsEverySlice(t *testing.T) {
	r, dev, _ := newRenderer(t, soft.Options{}, 2)
	drawFrame(t, r)

	old := *r.Swapchain()
	oldDepth := old.Depth.Handle

	dev.Resize(640, 480)
	r.Resized(640, 480)
	if idx := drawFrame(t, r); idx != renderer.InvalidImageIndex {
		t.Fatalf("expected a skipped frame, got image %d", idx)
	}

	sc := r.Swapchain()
	if len(sc.Images) != len(sc.Views) || len(sc.Views) != len(sc.Framebuffers) {
		t.Fatalf("images %d, views %d, framebuffers %d", len(sc.Images), len(sc.Views), len(sc.Framebuffers))
	}
	if len(r.CommandBuffers()) != len(sc.Images) {
		t.Fatalf("expected %d command buffers, got %d", len(sc.Images), len(r.CommandBuffers()))
	}
	if sc.Handle == old.Handle || sc.Depth.Handle == oldDepth {
		t.Fatal("swapchain objects were not replaced")
	}
	if _, err := dev.SwapchainImages(old.Handle); !errors.Is(err, gpu.ErrInvalidHandle) {
		t.Fatalf("old swapchain still alive: %v", err)
	}
	if got := dev.ImageLayout(oldDepth); got != gpu.ImageLayoutUndefined {
		t.Fatal("old depth image still alive")
	}

	// the rebuilt swapchain renders
	for i := 0; i < 4; i++ {
		if idx := drawFrame(t, r); idx == renderer.InvalidImageIndex {
			t.Fatalf("frame %d skipped after recreation", i)
		}
	}
	if s := dev.Stats(); s.Presents != 5 {
		t.Fatalf("expected 5 presents, got %d", s.Presents)
	}
	shutdown(t, r, dev)
}

func TestMinimizedWindowDefersRecreation(t *testing.T) {
	r, dev, h := newRenderer(t, soft.Options{}, 2)

	dev.Resize(0, 0)
	r.Resized(0, 0)
	for i := 0; i < 3; i++ {
		if idx := drawFrame(t, r); idx != renderer.InvalidImageIndex {
			t.Fatalf("expected skipped frame while minimized, got %d", idx)
		}
	}
	if h.created != 0 {
		t.Fatal("swapchain recreated while minimized")
	}

	dev.Resize(800, 600)
	r.Resized(800, 600)
	drawFrame(t, r)
	if h.created != 1 {
		t.Fatalf("expected one recreation after restore, got %d", h.created)
	}
	if idx := drawFrame(t, r); idx == renderer.InvalidImageIndex {
		t.Fatal("frame skipped after restore")
	}
	shutdown(t, r, dev)
}

func TestSurfaceWithoutExtentRetriesRecreation(t *testing.T) {
	r, dev, h := newRenderer(t, soft.Options{}, 2)
	drawFrame(t, r)

	// the surface collapses before the window reports a resize
	dev.Resize(0, 0)
	if idx := drawFrame(t, r); idx != renderer.InvalidImageIndex {
		t.Fatalf("expected a skipped frame, got image %d", idx)
	}
	if r.Swapchain().Handle != 0 {
		t.Fatal("expected the stale swapchain to be gone")
	}
	// still no extent: keep skipping without errors
	for i := 0; i < 2; i++ {
		if idx := drawFrame(t, r); idx != renderer.InvalidImageIndex {
			t.Fatalf("expected a skipped frame, got image %d", idx)
		}
	}

	dev.Resize(800, 600)
	if idx := drawFrame(t, r); idx != renderer.InvalidImageIndex {
		t.Fatalf("expected the recreation frame to be skipped, got image %d", idx)
	}
	if r.Swapchain().Handle == 0 {
		t.Fatal("swapchain not recreated once the surface came back")
	}
	for i := 0; i < 3; i++ {
		if idx := drawFrame(t, r); idx == renderer.InvalidImageIndex {
			t.Fatalf("frame %d skipped after recovery", i)
		}
	}
	if h.destroyed != 1 || h.created != 1 {
		t.Fatalf("expected one destroy and one create, got %d and %d", h.destroyed, h.created)
	}
	shutdown(t, r, dev)
}

func TestRenderPassClearsSwapchainImage(t *testing.T) {
	r, dev, _ := newRenderer(t, soft.Options{Width: 4, Height: 4}, 2)
	idx := drawFrame(t, r)

	pixels := dev.ImagePixels(r.Swapchain().Images[idx])
	// B8G8R8A8 with clear color (0, 0, 0.2, 1)
	if pixels[0] != 51 || pixels[1] != 0 || pixels[2] != 0 || pixels[3] != 255 {
		t.Fatalf("unexpected clear texel %v", pixels[:4])
	}
	shutdown(t, r, dev)
}

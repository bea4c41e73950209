package soft

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/spaghettifunk/prism/engine/renderer/gpu"
)

func spirv(words int) []byte {
	code := make([]byte, 4*words)
	binary.LittleEndian.PutUint32(code, SPIRVMagic)
	return code
}

func hostBuffer(t *testing.T, d *Device, size uint64, usage gpu.BufferUsage) (gpu.Buffer, gpu.DeviceMemory) {
	t.Helper()
	buf, reqs, err := d.CreateBuffer(gpu.BufferInfo{Size: size, Usage: usage})
	if err != nil {
		t.Fatal(err)
	}
	mem, err := d.AllocateMemory(reqs.Size, MemoryTypeHostVisible)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.BindBufferMemory(buf, mem, 0); err != nil {
		t.Fatal(err)
	}
	return buf, mem
}

func oneShot(t *testing.T, d *Device, record func(cb gpu.CommandBuffer)) {
	t.Helper()
	pool, err := d.CreateCommandPool(d.GraphicsQueue(), false)
	if err != nil {
		t.Fatal(err)
	}
	defer d.DestroyCommandPool(pool)
	cbs, err := d.AllocateCommandBuffers(pool, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.BeginCommandBuffer(cbs[0], gpu.CommandBufferUsageOneTimeSubmit); err != nil {
		t.Fatal(err)
	}
	record(cbs[0])
	if err := d.EndCommandBuffer(cbs[0]); err != nil {
		t.Fatal(err)
	}
	if err := d.QueueSubmit(d.GraphicsQueue(), []gpu.SubmitInfo{{CommandBuffers: cbs}}, 0); err != nil {
		t.Fatal(err)
	}
	if err := d.QueueWaitIdle(d.GraphicsQueue()); err != nil {
		t.Fatal(err)
	}
	d.FreeCommandBuffers(pool, cbs)
}

func TestCopyBufferRoundTrip(t *testing.T) {
	d := NewDevice(Options{Width: 64, Height: 64})
	src, srcMem := hostBuffer(t, d, 8, gpu.BufferUsageTransferSrc)
	dst, dstMem := hostBuffer(t, d, 8, gpu.BufferUsageTransferDst)

	data, err := d.MapMemory(srcMem, 0, gpu.WholeSize)
	if err != nil {
		t.Fatal(err)
	}
	copy(data, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	d.UnmapMemory(srcMem)

	oneShot(t, d, func(cb gpu.CommandBuffer) {
		d.CmdCopyBuffer(cb, src, dst, []gpu.BufferCopy{{SrcOffset: 2, DstOffset: 0, Size: 4}})
	})

	out, err := d.MapMemory(dstMem, 0, 4)
	if err != nil {
		t.Fatal(err)
	}
	if got := out[:4]; got[0] != 3 || got[3] != 6 {
		t.Fatalf("unexpected copy result %v", got)
	}
	d.UnmapMemory(dstMem)

	d.DestroyBuffer(src)
	d.DestroyBuffer(dst)
	d.FreeMemory(srcMem)
	d.FreeMemory(dstMem)
	if n := d.LiveObjects(); n != 0 {
		t.Fatalf("expected no live objects, got %d", n)
	}
	if v := d.Violations(); len(v) != 0 {
		t.Fatalf("unexpected violations: %v", v)
	}
}

func TestDeviceLocalMemoryCannotBeMapped(t *testing.T) {
	d := NewDevice(Options{})
	mem, err := d.AllocateMemory(64, MemoryTypeDeviceLocal)
	if err != nil {
		t.Fatal(err)
	}
	defer d.FreeMemory(mem)
	if _, err := d.MapMemory(mem, 0, gpu.WholeSize); !errors.Is(err, gpu.ErrMemoryMapFailed) {
		t.Fatalf("expected ErrMemoryMapFailed, got %v", err)
	}
}

func TestShaderModuleValidation(t *testing.T) {
	d := NewDevice(Options{})
	if _, err := d.CreateShaderModule([]byte("not a shader at all!")); !errors.Is(err, gpu.ErrInvalidShader) {
		t.Fatalf("expected ErrInvalidShader, got %v", err)
	}
	if _, err := d.CreateShaderModule(spirv(5)[:19]); !errors.Is(err, gpu.ErrInvalidShader) {
		t.Fatalf("expected ErrInvalidShader for truncated code, got %v", err)
	}
	m, err := d.CreateShaderModule(spirv(5))
	if err != nil {
		t.Fatal(err)
	}
	d.DestroyShaderModule(m)
}

func TestDescriptorPoolExhaustion(t *testing.T) {
	d := NewDevice(Options{})
	layout, err := d.CreateDescriptorSetLayout([]gpu.DescriptorBinding{
		{Binding: 0, Type: gpu.DescriptorTypeUniformBuffer, Count: 1, Stages: gpu.ShaderStageVertex},
	})
	if err != nil {
		t.Fatal(err)
	}
	pool, err := d.CreateDescriptorPool(gpu.DescriptorPoolInfo{
		MaxSets: 2,
		Sizes:   []gpu.DescriptorPoolSize{{Type: gpu.DescriptorTypeUniformBuffer, Count: 2}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.AllocateDescriptorSets(pool, []gpu.DescriptorSetLayout{layout, layout}); err != nil {
		t.Fatal(err)
	}
	if _, err := d.AllocateDescriptorSets(pool, []gpu.DescriptorSetLayout{layout}); !errors.Is(err, gpu.ErrOutOfPoolMemory) {
		t.Fatalf("expected ErrOutOfPoolMemory, got %v", err)
	}
	if err := d.ResetDescriptorPool(pool); err != nil {
		t.Fatal(err)
	}
	if _, err := d.AllocateDescriptorSets(pool, []gpu.DescriptorSetLayout{layout}); err != nil {
		t.Fatalf("allocation after reset failed: %v", err)
	}
	d.DestroyDescriptorPool(pool)
	d.DestroyDescriptorSetLayout(layout)
}

func TestManualFenceWait(t *testing.T) {
	d := NewDevice(Options{Manual: true})
	f, err := d.CreateFence(false)
	if err != nil {
		t.Fatal(err)
	}
	pool, _ := d.CreateCommandPool(d.GraphicsQueue(), true)
	cbs, _ := d.AllocateCommandBuffers(pool, 1)
	_ = d.BeginCommandBuffer(cbs[0], 0)
	_ = d.EndCommandBuffer(cbs[0])
	if err := d.QueueSubmit(d.GraphicsQueue(), []gpu.SubmitInfo{{CommandBuffers: cbs}}, f); err != nil {
		t.Fatal(err)
	}

	if err := d.WaitForFences([]gpu.Fence{f}, uint64(10*time.Millisecond)); !errors.Is(err, gpu.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	// the same buffer is still pending
	if err := d.QueueSubmit(d.GraphicsQueue(), []gpu.SubmitInfo{{CommandBuffers: cbs}}, 0); !errors.Is(err, gpu.ErrInvalidUsage) {
		t.Fatalf("expected ErrInvalidUsage for pending resubmission, got %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- d.WaitForFences([]gpu.Fence{f}, gpu.WaitForever) }()
	select {
	case <-done:
		t.Fatal("wait returned before the submission retired")
	case <-time.After(20 * time.Millisecond):
	}
	if !d.Complete() {
		t.Fatal("expected a pending submission")
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(time.Second):
		t.Fatal("wait did not return after completion")
	}

	if err := d.QueueSubmit(d.GraphicsQueue(), []gpu.SubmitInfo{{CommandBuffers: cbs}}, f); !errors.Is(err, gpu.ErrInvalidUsage) {
		t.Fatalf("expected ErrInvalidUsage for a signaled fence, got %v", err)
	}
	d.FreeCommandBuffers(pool, cbs)
	d.DestroyCommandPool(pool)
	d.DestroyFence(f)
}

func TestSwapchainOutOfDateAfterResize(t *testing.T) {
	d := NewDevice(Options{Width: 800, Height: 600})
	caps, err := d.SurfaceCapabilities()
	if err != nil {
		t.Fatal(err)
	}
	sc, err := d.CreateSwapchain(gpu.SwapchainInfo{
		MinImageCount: caps.MinImageCount + 1,
		Format:        caps.Formats[0],
		Extent:        caps.CurrentExtent,
		PresentMode:   gpu.PresentModeFifo,
	})
	if err != nil {
		t.Fatal(err)
	}
	images, _ := d.SwapchainImages(sc)
	if len(images) != 3 {
		t.Fatalf("expected 3 images, got %d", len(images))
	}
	sem, _ := d.CreateSemaphore()

	idx, err := d.AcquireNextImage(sc, gpu.WaitForever, sem, 0)
	if err != nil || idx != 0 {
		t.Fatalf("expected image 0, got %d (%v)", idx, err)
	}
	if err := d.QueuePresent(d.PresentQueue(), gpu.PresentInfo{WaitSemaphores: []gpu.Semaphore{sem}, Swapchain: sc, ImageIndex: idx}); err != nil {
		t.Fatal(err)
	}

	d.ForceSuboptimalAcquire()
	idx, err = d.AcquireNextImage(sc, gpu.WaitForever, sem, 0)
	if !errors.Is(err, gpu.ErrSuboptimal) || idx != 1 {
		t.Fatalf("expected suboptimal image 1, got %d (%v)", idx, err)
	}
	if !d.SemaphoreSignaled(sem) {
		t.Fatal("suboptimal acquire must still signal the semaphore")
	}

	d.Resize(1024, 768)
	other, _ := d.CreateSemaphore()
	if _, err := d.AcquireNextImage(sc, gpu.WaitForever, other, 0); !errors.Is(err, gpu.ErrOutOfDate) {
		t.Fatalf("expected ErrOutOfDate, got %v", err)
	}

	d.DestroySwapchain(sc)
	d.DestroySemaphore(sem)
	d.DestroySemaphore(other)
	if n := d.LiveObjects(); n != 0 {
		t.Fatalf("expected no live objects, got %d", n)
	}
}

func TestDrawOutsideRenderPassPoisonsBuffer(t *testing.T) {
	d := NewDevice(Options{})
	pool, _ := d.CreateCommandPool(d.GraphicsQueue(), true)
	cbs, _ := d.AllocateCommandBuffers(pool, 1)
	if err := d.BeginCommandBuffer(cbs[0], 0); err != nil {
		t.Fatal(err)
	}
	d.CmdDraw(cbs[0], 3, 1, 0, 0)
	if err := d.EndCommandBuffer(cbs[0]); !errors.Is(err, gpu.ErrInvalidUsage) {
		t.Fatalf("expected ErrInvalidUsage, got %v", err)
	}
	if len(d.Violations()) == 0 {
		t.Fatal("expected a recorded violation")
	}
	d.DestroyCommandPool(pool)
}

func TestDestroyNullHandlesIsNoop(t *testing.T) {
	d := NewDevice(Options{})
	d.DestroyBuffer(0)
	d.FreeMemory(0)
	d.DestroyImage(0)
	d.DestroyImageView(0)
	d.DestroySampler(0)
	d.DestroyFence(0)
	d.DestroySemaphore(0)
	d.DestroySwapchain(0)
	d.DestroyPipeline(0)
	d.DestroyFramebuffer(0)
	d.DestroyRenderPass(0)
	if v := d.Violations(); len(v) != 0 {
		t.Fatalf("unexpected violations: %v", v)
	}
	d.Destroy()
	d.Destroy()
}

func TestFreeingBoundMemoryIsReported(t *testing.T) {
	d := NewDevice(Options{})
	buf, mem := hostBuffer(t, d, 16, gpu.BufferUsageVertex)
	d.FreeMemory(mem)
	d.DestroyBuffer(buf)
	if v := d.Violations(); len(v) != 1 {
		t.Fatalf("expected one violation, got %v", v)
	}

	// the right order is silent
	buf, mem = hostBuffer(t, d, 16, gpu.BufferUsageVertex)
	d.DestroyBuffer(buf)
	d.FreeMemory(mem)
	if v := d.Violations(); len(v) != 1 {
		t.Fatalf("unexpected violations: %v", v)
	}
	d.Destroy()
}

func TestImageMemoryCoversOneLevel(t *testing.T) {
	d := NewDevice(Options{})
	img, reqs, err := d.CreateImage(gpu.ImageInfo{
		Width:  64,
		Height: 48,
		Format: gpu.FormatR8G8B8A8Unorm,
		Usage:  gpu.ImageUsageSampled,
	})
	if err != nil {
		t.Fatal(err)
	}
	if reqs.Size != 64*48*4 {
		t.Errorf("image requires %d bytes, want %d", reqs.Size, 64*48*4)
	}
	d.DestroyImage(img)
	d.Destroy()
	if v := d.Violations(); len(v) != 0 {
		t.Fatalf("unexpected violations: %v", v)
	}
}

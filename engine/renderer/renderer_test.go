package renderer_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
	"github.com/spaghettifunk/prism/engine/renderer/soft"
)

type recorder struct {
	r                  *renderer.Renderer
	created, destroyed int
}

func (h *recorder) OnSwapchainDestroy() { h.destroyed++ }

func (h *recorder) OnSwapchainCreate() error {
	h.created++
	return h.record()
}

func (h *recorder) record() error {
	return h.r.RecordCommandBuffers(func(cb *renderer.CommandBuffer, i int) error {
		h.r.BeginRenderPass(cb, i)
		h.r.EndRenderPass(cb)
		return nil
	})
}

func newRenderer(t *testing.T, opts soft.Options, framesInFlight uint32) (*renderer.Renderer, *soft.Device, *recorder) {
	t.Helper()
	if opts.Width == 0 {
		opts.Width, opts.Height = 800, 600
	}
	dev := soft.NewDevice(opts)
	r, err := renderer.New(dev, opts.Width, opts.Height, core.RendererConfig{
		FramesInFlight: framesInFlight,
		ClearColor:     [4]float32{0, 0, 0.2, 1},
		ClearDepth:     1,
	})
	if err != nil {
		t.Fatalf("renderer init failed: %v", err)
	}
	h := &recorder{r: r}
	r.SetSwapchainHandler(h)
	if err := h.record(); err != nil {
		t.Fatal(err)
	}
	return r, dev, h
}

func shutdown(t *testing.T, r *renderer.Renderer, dev *soft.Device) {
	t.Helper()
	if err := r.Shutdown(); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
	if v := dev.Violations(); len(v) != 0 {
		t.Fatalf("device reported violations: %v", v)
	}
}

func TestStagedBufferReadback(t *testing.T) {
	r, dev, _ := newRenderer(t, soft.Options{}, 2)
	ctx := r.Context()

	data := make([]byte, 256)
	for i := range data {
		data[i] = byte(i * 7)
	}
	vertices, err := ctx.CreateBuffer(gpu.BufferUsageVertex|gpu.BufferUsageTransferSrc, gpu.MemoryPropertyDeviceLocal, uint64(len(data)), data, "vertices")
	if err != nil {
		t.Fatal(err)
	}
	readback, err := ctx.CreateBuffer(gpu.BufferUsageTransferDst, gpu.MemoryPropertyHostVisible|gpu.MemoryPropertyHostCoherent, uint64(len(data)), nil, "readback")
	if err != nil {
		t.Fatal(err)
	}
	if err := ctx.CopyBuffer(vertices, readback, uint64(len(data))); err != nil {
		t.Fatal(err)
	}
	got, err := readback.Read(0, uint64(len(data)))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("read back data differs from the uploaded data")
	}
	if _, err := vertices.Read(0, 4); !errors.Is(err, renderer.ErrNotHostVisible) {
		t.Fatalf("expected ErrNotHostVisible, got %v", err)
	}

	vertices.Destroy()
	readback.Destroy()
	shutdown(t, r, dev)
}

func TestCreateDestroyKeepsAllocationCount(t *testing.T) {
	r, dev, _ := newRenderer(t, soft.Options{}, 2)
	ctx := r.Context()
	allocations, tracked := dev.LiveAllocations(), ctx.LiveResources()

	b, err := ctx.CreateBuffer(gpu.BufferUsageUniform, gpu.MemoryPropertyDeviceLocal, 64, make([]byte, 64), "")
	if err != nil {
		t.Fatal(err)
	}
	if b.Name == "" {
		t.Fatal("expected a generated debug name")
	}
	if ctx.LiveResources() != tracked+1 {
		t.Fatalf("expected %d tracked resources, got %d", tracked+1, ctx.LiveResources())
	}
	b.Destroy()
	b.Destroy()

	if got := dev.LiveAllocations(); got != allocations {
		t.Fatalf("expected %d allocations, got %d", allocations, got)
	}
	if got := ctx.LiveResources(); got != tracked {
		t.Fatalf("expected %d tracked resources, got %d", tracked, got)
	}
	shutdown(t, r, dev)
}

func TestFailedCreationReleasesPartialWork(t *testing.T) {
	r, dev, _ := newRenderer(t, soft.Options{}, 2)
	ctx := r.Context()
	before := dev.LiveObjects()

	// the simulated device has no memory that is both device local and host visible
	_, err := ctx.CreateBuffer(gpu.BufferUsageVertex, gpu.MemoryPropertyDeviceLocal|gpu.MemoryPropertyHostVisible, 64, nil, "impossible")
	if !errors.Is(err, renderer.ErrNoMemoryType) {
		t.Fatalf("expected ErrNoMemoryType, got %v", err)
	}
	if got := dev.LiveObjects(); got != before {
		t.Fatalf("expected %d live objects after failure, got %d", before, got)
	}
	shutdown(t, r, dev)
}

// releaseOrderDevice records the order in which resources and memory are
// released and can fail selected calls.
type releaseOrderDevice struct {
	*soft.Device
	failView, failBind bool
	released           []string
}

func (d *releaseOrderDevice) CreateImageView(info gpu.ImageViewInfo) (gpu.ImageView, error) {
	if d.failView {
		return 0, gpu.ErrOutOfDeviceMemory
	}
	return d.Device.CreateImageView(info)
}

func (d *releaseOrderDevice) BindBufferMemory(b gpu.Buffer, m gpu.DeviceMemory, offset uint64) error {
	if d.failBind {
		return gpu.ErrOutOfDeviceMemory
	}
	return d.Device.BindBufferMemory(b, m, offset)
}

func (d *releaseOrderDevice) DestroyBuffer(b gpu.Buffer) {
	d.released = append(d.released, "buffer")
	d.Device.DestroyBuffer(b)
}

func (d *releaseOrderDevice) DestroyImage(i gpu.Image) {
	d.released = append(d.released, "image")
	d.Device.DestroyImage(i)
}

func (d *releaseOrderDevice) FreeMemory(m gpu.DeviceMemory) {
	d.released = append(d.released, "memory")
	d.Device.FreeMemory(m)
}

func TestFailedCreationReleasesResourceBeforeMemory(t *testing.T) {
	dev := &releaseOrderDevice{Device: soft.NewDevice(soft.Options{Width: 800, Height: 600})}
	r, err := renderer.New(dev, 800, 600, core.RendererConfig{FramesInFlight: 2})
	if err != nil {
		t.Fatal(err)
	}
	ctx := r.Context()
	before := dev.LiveObjects()

	tests := []struct {
		name   string
		create func() error
		want   []string
	}{
		{"image", func() error {
			dev.failView = true
			defer func() { dev.failView = false }()
			_, err := ctx.CreateImage(renderer.ImageConfig{Name: "broken", Width: 4, Height: 4, Format: gpu.FormatR8G8B8A8Srgb, Usage: gpu.ImageUsageSampled})
			return err
		}, []string{"image", "memory"}},
		{"buffer", func() error {
			dev.failBind = true
			defer func() { dev.failBind = false }()
			_, err := ctx.CreateBuffer(gpu.BufferUsageVertex, gpu.MemoryPropertyDeviceLocal, 64, nil, "broken")
			return err
		}, []string{"buffer", "memory"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev.released = nil
			if err := tt.create(); err == nil {
				t.Fatal("creation succeeded")
			}
			if len(dev.released) != len(tt.want) {
				t.Fatalf("release order %v, want %v", dev.released, tt.want)
			}
			for i := range tt.want {
				if dev.released[i] != tt.want[i] {
					t.Fatalf("release order %v, want %v", dev.released, tt.want)
				}
			}
			if got := dev.LiveObjects(); got != before {
				t.Fatalf("expected %d live objects after failure, got %d", before, got)
			}
		})
	}
	shutdown(t, r, dev.Device)
}

func TestImageUpload(t *testing.T) {
	r, dev, _ := newRenderer(t, soft.Options{}, 2)
	ctx := r.Context()

	pixels := make([]byte, 4*4*4)
	for i := range pixels {
		pixels[i] = byte(255 - i)
	}
	img, err := ctx.CreateImage(renderer.ImageConfig{
		Name:   "checker",
		Width:  4,
		Height: 4,
		Format: gpu.FormatR8G8B8A8Srgb,
		Usage:  gpu.ImageUsageSampled,
		Pixels: pixels,
	})
	if err != nil {
		t.Fatal(err)
	}
	if img.Layout != gpu.ImageLayoutShaderReadOnlyOptimal {
		t.Fatalf("expected shader read layout, got %d", img.Layout)
	}
	if got := dev.ImageLayout(img.Handle); got != gpu.ImageLayoutShaderReadOnlyOptimal {
		t.Fatalf("device reports layout %d", got)
	}
	if !bytes.Equal(dev.ImagePixels(img.Handle), pixels) {
		t.Fatal("image contents differ from the uploaded pixels")
	}

	if _, err := ctx.CreateImage(renderer.ImageConfig{Width: 4, Height: 4, Format: gpu.FormatR8G8B8A8Srgb, Pixels: pixels[:10]}); err == nil {
		t.Fatal("expected an error for short pixel data")
	}

	img.Destroy()
	img.Destroy()
	shutdown(t, r, dev)
}

func TestUnsupportedLayoutTransition(t *testing.T) {
	r, dev, _ := newRenderer(t, soft.Options{}, 2)
	ctx := r.Context()
	err := ctx.SingleTimeCommands(func(cb *renderer.CommandBuffer) error {
		return cb.TransitionImageLayout(r.Swapchain().Images[0], gpu.ImageAspectColor, gpu.ImageLayoutShaderReadOnlyOptimal, gpu.ImageLayoutDepthStencilAttachmentOptimal)
	})
	if err == nil {
		t.Fatal("expected an error")
	}
	shutdown(t, r, dev)
}

func TestDescriptorPoolLimits(t *testing.T) {
	r, dev, _ := newRenderer(t, soft.Options{}, 2)
	ctx := r.Context()

	layout, err := ctx.CreateDescriptorSetLayout([]gpu.DescriptorBinding{
		{Binding: 0, Type: gpu.DescriptorTypeUniformBuffer, Count: 1, Stages: gpu.ShaderStageVertex},
	}, "ubo")
	if err != nil {
		t.Fatal(err)
	}
	pool, err := ctx.CreateDescriptorPool(gpu.DescriptorPoolInfo{
		MaxSets: uint32(r.ImageCount()),
		Sizes:   []gpu.DescriptorPoolSize{{Type: gpu.DescriptorTypeUniformBuffer, Count: uint32(r.ImageCount())}},
	}, "ubo pool")
	if err != nil {
		t.Fatal(err)
	}
	ubo, err := ctx.CreateBuffer(gpu.BufferUsageUniform, gpu.MemoryPropertyHostVisible|gpu.MemoryPropertyHostCoherent, 64, nil, "ubo")
	if err != nil {
		t.Fatal(err)
	}

	sets, err := pool.Allocate(layout, r.ImageCount())
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range sets {
		ctx.UpdateDescriptorSets(renderer.UniformBufferWrite(s, 0, ubo))
	}
	if w, ok := dev.DescriptorWriteOf(sets[0], 0); !ok || w.Buffers[0].Buffer != ubo.Handle {
		t.Fatal("descriptor write was not recorded")
	}
	if _, err := pool.Allocate(layout, 1); !errors.Is(err, gpu.ErrOutOfPoolMemory) {
		t.Fatalf("expected ErrOutOfPoolMemory, got %v", err)
	}
	if err := pool.Reset(); err != nil {
		t.Fatal(err)
	}
	if _, err := pool.Allocate(layout, 1); err != nil {
		t.Fatalf("allocation after reset failed: %v", err)
	}

	ubo.Destroy()
	pool.Destroy()
	layout.Destroy()
	shutdown(t, r, dev)
}

func TestShutdownReportsLeaks(t *testing.T) {
	r, _, _ := newRenderer(t, soft.Options{}, 2)
	if _, err := r.Context().CreateSampler(gpu.SamplerInfo{MagFilter: gpu.FilterLinear, MinFilter: gpu.FilterLinear}, "leaked"); err != nil {
		t.Fatal(err)
	}
	if err := r.Shutdown(); !errors.Is(err, renderer.ErrResourceLeak) {
		t.Fatalf("expected ErrResourceLeak, got %v", err)
	}
}

func TestScopeReleasesInReverse(t *testing.T) {
	var order []int
	func() {
		var scope renderer.Scope
		defer scope.Release()
		for i := 1; i <= 3; i++ {
			scope.Defer(func() { order = append(order, i) })
		}
	}()
	if len(order) != 3 || order[0] != 3 || order[2] != 1 {
		t.Fatalf("unexpected release order %v", order)
	}

	released := false
	func() {
		var scope renderer.Scope
		defer scope.Release()
		scope.Defer(func() { released = true })
		scope.Commit()
	}()
	if released {
		t.Fatal("committed scope must not release")
	}
}

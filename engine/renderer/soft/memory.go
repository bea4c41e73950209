package soft

import (
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
)

type memory struct {
	data      []byte
	typeIndex uint32
	mapped    bool
	// buffers and images bound to it
	bound int
}

type buffer struct {
	info   gpu.BufferInfo
	memory uint64
	offset uint64
}

type image struct {
	info   gpu.ImageInfo
	memory uint64
	offset uint64
	layout gpu.ImageLayout
	// swapchain images own their pixels and are not bound to device memory
	swapchainOwned bool
	pixels         []byte
}

type imageView struct {
	image  uint64
	format gpu.Format
	aspect gpu.ImageAspect
}

func fail(op string, err error) error {
	return &gpu.ResultError{Op: op, Text: err.Error(), Err: err}
}

func (d *Device) CreateBuffer(info gpu.BufferInfo) (gpu.Buffer, gpu.MemoryRequirements, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if info.Size == 0 {
		return 0, gpu.MemoryRequirements{}, fail("CreateBuffer", gpu.ErrInvalidUsage)
	}
	id := d.buffers.Acquire(&buffer{info: info})
	reqs := gpu.MemoryRequirements{
		Size:           alignUp(info.Size, 16),
		Alignment:      16,
		MemoryTypeBits: 1<<MemoryTypeDeviceLocal | 1<<MemoryTypeHostVisible,
	}
	if info.Usage&gpu.BufferUsageUniform != 0 {
		reqs.Alignment = d.props.MinUniformBufferOffsetAlignment
		reqs.Size = alignUp(info.Size, reqs.Alignment)
	}
	return gpu.Buffer(id), reqs, nil
}

func (d *Device) DestroyBuffer(b gpu.Buffer) {
	if b == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	buf, ok := d.buffers.Release(uint64(b))
	if !ok {
		d.violation("DestroyBuffer: unknown buffer %d", b)
		return
	}
	d.unbind(buf.memory)
}

func (d *Device) unbind(m uint64) {
	if mem, ok := d.memories.Get(m); ok {
		mem.bound--
	}
}

func (d *Device) AllocateMemory(size uint64, memoryTypeIndex uint32) (gpu.DeviceMemory, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if int(memoryTypeIndex) >= len(d.props.MemoryTypes) {
		return 0, fail("AllocateMemory", gpu.ErrInvalidUsage)
	}
	if size == 0 {
		return 0, fail("AllocateMemory", gpu.ErrInvalidUsage)
	}
	id := d.memories.Acquire(&memory{data: make([]byte, size), typeIndex: memoryTypeIndex})
	return gpu.DeviceMemory(id), nil
}

func (d *Device) FreeMemory(m gpu.DeviceMemory) {
	if m == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	mem, ok := d.memories.Release(uint64(m))
	if !ok {
		d.violation("FreeMemory: unknown memory %d", m)
		return
	}
	if mem.bound > 0 {
		d.violation("FreeMemory: memory %d freed while %d resources are bound to it", m, mem.bound)
	}
}

func (d *Device) BindBufferMemory(b gpu.Buffer, m gpu.DeviceMemory, offset uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf, ok := d.buffers.Get(uint64(b))
	if !ok {
		return fail("BindBufferMemory", gpu.ErrInvalidHandle)
	}
	mem, ok := d.memories.Get(uint64(m))
	if !ok {
		return fail("BindBufferMemory", gpu.ErrInvalidHandle)
	}
	if buf.memory != 0 {
		return fail("BindBufferMemory", gpu.ErrInvalidUsage)
	}
	if offset+buf.info.Size > uint64(len(mem.data)) {
		return fail("BindBufferMemory", gpu.ErrOutOfDeviceMemory)
	}
	buf.memory = uint64(m)
	buf.offset = offset
	mem.bound++
	return nil
}

func (d *Device) MapMemory(m gpu.DeviceMemory, offset, size uint64) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	mem, ok := d.memories.Get(uint64(m))
	if !ok {
		return nil, fail("MapMemory", gpu.ErrInvalidHandle)
	}
	if d.props.MemoryTypes[mem.typeIndex].Properties&gpu.MemoryPropertyHostVisible == 0 {
		return nil, fail("MapMemory", gpu.ErrMemoryMapFailed)
	}
	if mem.mapped {
		return nil, fail("MapMemory", gpu.ErrMemoryMapFailed)
	}
	if size == gpu.WholeSize {
		size = uint64(len(mem.data)) - offset
	}
	if offset+size > uint64(len(mem.data)) {
		return nil, fail("MapMemory", gpu.ErrMemoryMapFailed)
	}
	mem.mapped = true
	return mem.data[offset : offset+size : offset+size], nil
}

func (d *Device) UnmapMemory(m gpu.DeviceMemory) {
	d.mu.Lock()
	defer d.mu.Unlock()
	mem, ok := d.memories.Get(uint64(m))
	if !ok {
		d.violation("UnmapMemory: unknown memory %d", m)
		return
	}
	if !mem.mapped {
		d.violation("UnmapMemory: memory %d is not mapped", m)
	}
	mem.mapped = false
}

func (d *Device) CreateImage(info gpu.ImageInfo) (gpu.Image, gpu.MemoryRequirements, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if info.Width == 0 || info.Height == 0 || info.Format.Size() == 0 {
		return 0, gpu.MemoryRequirements{}, fail("CreateImage", gpu.ErrInvalidUsage)
	}
	id := d.images.Acquire(&image{info: info, layout: gpu.ImageLayoutUndefined})
	reqs := gpu.MemoryRequirements{
		Size:           alignUp(imageSize(info), 256),
		Alignment:      256,
		MemoryTypeBits: 1 << MemoryTypeDeviceLocal,
	}
	if info.Linear {
		reqs.MemoryTypeBits |= 1 << MemoryTypeHostVisible
	}
	return gpu.Image(id), reqs, nil
}

func (d *Device) DestroyImage(i gpu.Image) {
	if i == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	img, ok := d.images.Get(uint64(i))
	if !ok {
		d.violation("DestroyImage: unknown image %d", i)
		return
	}
	if img.swapchainOwned {
		d.violation("DestroyImage: image %d belongs to a swapchain", i)
		return
	}
	d.images.Release(uint64(i))
	d.unbind(img.memory)
}

func (d *Device) BindImageMemory(i gpu.Image, m gpu.DeviceMemory, offset uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	img, ok := d.images.Get(uint64(i))
	if !ok || img.swapchainOwned {
		return fail("BindImageMemory", gpu.ErrInvalidHandle)
	}
	mem, ok := d.memories.Get(uint64(m))
	if !ok {
		return fail("BindImageMemory", gpu.ErrInvalidHandle)
	}
	if img.memory != 0 {
		return fail("BindImageMemory", gpu.ErrInvalidUsage)
	}
	if offset+imageSize(img.info) > uint64(len(mem.data)) {
		return fail("BindImageMemory", gpu.ErrOutOfDeviceMemory)
	}
	img.memory = uint64(m)
	img.offset = offset
	mem.bound++
	return nil
}

func (d *Device) CreateImageView(info gpu.ImageViewInfo) (gpu.ImageView, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.images.Get(uint64(info.Image)); !ok {
		return 0, fail("CreateImageView", gpu.ErrInvalidHandle)
	}
	id := d.views.Acquire(&imageView{image: uint64(info.Image), format: info.Format, aspect: info.Aspect})
	return gpu.ImageView(id), nil
}

func (d *Device) DestroyImageView(v gpu.ImageView) {
	if v == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.views.Release(uint64(v)); !ok {
		d.violation("DestroyImageView: unknown view %d", v)
	}
}

func (d *Device) CreateSampler(info gpu.SamplerInfo) (gpu.Sampler, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if info.MaxAnisotropy > d.props.MaxSamplerAnisotropy {
		return 0, fail("CreateSampler", gpu.ErrInvalidUsage)
	}
	return gpu.Sampler(d.samplers.Acquire(info)), nil
}

func (d *Device) DestroySampler(s gpu.Sampler) {
	if s == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.samplers.Release(uint64(s)); !ok {
		d.violation("DestroySampler: unknown sampler %d", s)
	}
}

// bufferBytes returns the bound range of a buffer, nil when unbound.
func (d *Device) bufferBytes(b uint64) []byte {
	buf, ok := d.buffers.Get(b)
	if !ok || buf.memory == 0 {
		return nil
	}
	mem, ok := d.memories.Get(buf.memory)
	if !ok {
		return nil
	}
	return mem.data[buf.offset : buf.offset+buf.info.Size]
}

// imageBytes returns the texels of an image, nil when unbound.
func (d *Device) imageBytes(i uint64) []byte {
	img, ok := d.images.Get(i)
	if !ok {
		return nil
	}
	if img.swapchainOwned {
		return img.pixels
	}
	if img.memory == 0 {
		return nil
	}
	mem, ok := d.memories.Get(img.memory)
	if !ok {
		return nil
	}
	return mem.data[img.offset : img.offset+uint64(img.info.Width)*uint64(img.info.Height)*img.info.Format.Size()]
}

// ImagePixels returns a copy of an image's texels.
func (d *Device) ImagePixels(i gpu.Image) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	src := d.imageBytes(uint64(i))
	if src == nil {
		return nil
	}
	out := make([]byte, len(src))
	copy(out, src)
	return out
}

// ImageLayout returns the layout the image is in after the retired work.
func (d *Device) ImageLayout(i gpu.Image) gpu.ImageLayout {
	d.mu.Lock()
	defer d.mu.Unlock()
	if img, ok := d.images.Get(uint64(i)); ok {
		return img.layout
	}
	return gpu.ImageLayoutUndefined
}

func imageSize(info gpu.ImageInfo) uint64 {
	return uint64(info.Width) * uint64(info.Height) * info.Format.Size()
}

func alignUp(v, align uint64) uint64 {
	if align == 0 {
		return v
	}
	return (v + align - 1) / align * align
}

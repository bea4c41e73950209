package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/prism/engine/renderer/gpu"
)

func (d *Device) CreateBuffer(info gpu.BufferInfo) (gpu.Buffer, gpu.MemoryRequirements, error) {
	createInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(info.Size),
		Usage:       vk.BufferUsageFlags(info.Usage),
		SharingMode: vk.SharingModeExclusive,
	}
	var buffer vk.Buffer
	if err := check("vkCreateBuffer", vk.CreateBuffer(d.logical, &createInfo, nil, &buffer)); err != nil {
		return 0, gpu.MemoryRequirements{}, err
	}
	var reqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.logical, buffer, &reqs)
	reqs.Deref()
	return gpu.Buffer(d.buffers.Acquire(buffer)), toRequirements(reqs), nil
}

func (d *Device) DestroyBuffer(buffer gpu.Buffer) {
	if b, ok := d.buffers.Release(uint64(buffer)); ok {
		vk.DestroyBuffer(d.logical, b, nil)
	}
}

func toRequirements(reqs vk.MemoryRequirements) gpu.MemoryRequirements {
	return gpu.MemoryRequirements{
		Size:           uint64(reqs.Size),
		Alignment:      uint64(reqs.Alignment),
		MemoryTypeBits: reqs.MemoryTypeBits,
	}
}

func (d *Device) AllocateMemory(size uint64, memoryTypeIndex uint32) (gpu.DeviceMemory, error) {
	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  vk.DeviceSize(size),
		MemoryTypeIndex: memoryTypeIndex,
	}
	var memory vk.DeviceMemory
	if err := check("vkAllocateMemory", vk.AllocateMemory(d.logical, &allocateInfo, nil, &memory)); err != nil {
		return 0, err
	}
	return gpu.DeviceMemory(d.memories.Acquire(&deviceMemory{handle: memory, size: size})), nil
}

func (d *Device) FreeMemory(memory gpu.DeviceMemory) {
	m, ok := d.memories.Release(uint64(memory))
	if !ok {
		return
	}
	if m.mapped {
		vk.UnmapMemory(d.logical, m.handle)
	}
	vk.FreeMemory(d.logical, m.handle, nil)
}

func (d *Device) BindBufferMemory(buffer gpu.Buffer, memory gpu.DeviceMemory, offset uint64) error {
	b, err := lookup(d.buffers, uint64(buffer))
	if err != nil {
		return err
	}
	m, err := lookup(d.memories, uint64(memory))
	if err != nil {
		return err
	}
	return check("vkBindBufferMemory", vk.BindBufferMemory(d.logical, b, m.handle, vk.DeviceSize(offset)))
}

func (d *Device) MapMemory(memory gpu.DeviceMemory, offset, size uint64) ([]byte, error) {
	m, err := lookup(d.memories, uint64(memory))
	if err != nil {
		return nil, err
	}
	if m.mapped {
		return nil, fmt.Errorf("%w: memory %d is already mapped", gpu.ErrMemoryMapFailed, memory)
	}
	if size == gpu.WholeSize {
		size = m.size - offset
	}
	var data unsafe.Pointer
	if err := check("vkMapMemory", vk.MapMemory(d.logical, m.handle, vk.DeviceSize(offset), vk.DeviceSize(size), 0, &data)); err != nil {
		return nil, err
	}
	m.mapped = true
	return unsafe.Slice((*byte)(data), size), nil
}

func (d *Device) UnmapMemory(memory gpu.DeviceMemory) {
	m, ok := d.memories.Get(uint64(memory))
	if !ok || !m.mapped {
		return
	}
	vk.UnmapMemory(d.logical, m.handle)
	m.mapped = false
}

func (d *Device) CreateImage(info gpu.ImageInfo) (gpu.Image, gpu.MemoryRequirements, error) {
	tiling := vk.ImageTilingOptimal
	if info.Linear {
		tiling = vk.ImageTilingLinear
	}
	createInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    vk.Format(info.Format),
		Extent: vk.Extent3D{
			Width:  info.Width,
			Height: info.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        tiling,
		Usage:         vk.ImageUsageFlags(info.Usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	var image vk.Image
	if err := check("vkCreateImage", vk.CreateImage(d.logical, &createInfo, nil, &image)); err != nil {
		return 0, gpu.MemoryRequirements{}, err
	}
	var reqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.logical, image, &reqs)
	reqs.Deref()
	return gpu.Image(d.images.Acquire(image)), toRequirements(reqs), nil
}

// DestroyImage ignores swapchain images; they belong to their swapchain.
func (d *Device) DestroyImage(image gpu.Image) {
	if d.isSwapchainImage(image) {
		return
	}
	if img, ok := d.images.Release(uint64(image)); ok {
		vk.DestroyImage(d.logical, img, nil)
	}
}

func (d *Device) isSwapchainImage(image gpu.Image) bool {
	owned := false
	d.swapchains.Each(func(_ uint64, sc *swapchain) {
		for _, img := range sc.images {
			if img == image {
				owned = true
			}
		}
	})
	return owned
}

func (d *Device) BindImageMemory(image gpu.Image, memory gpu.DeviceMemory, offset uint64) error {
	img, err := lookup(d.images, uint64(image))
	if err != nil {
		return err
	}
	m, err := lookup(d.memories, uint64(memory))
	if err != nil {
		return err
	}
	return check("vkBindImageMemory", vk.BindImageMemory(d.logical, img, m.handle, vk.DeviceSize(offset)))
}

func (d *Device) CreateImageView(info gpu.ImageViewInfo) (gpu.ImageView, error) {
	img, err := lookup(d.images, uint64(info.Image))
	if err != nil {
		return 0, err
	}
	viewCreateInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img,
		ViewType: vk.ImageViewType2d,
		Format:   vk.Format(info.Format),
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(info.Aspect),
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}
	var view vk.ImageView
	if err := check("vkCreateImageView", vk.CreateImageView(d.logical, &viewCreateInfo, nil, &view)); err != nil {
		return 0, err
	}
	return gpu.ImageView(d.views.Acquire(view)), nil
}

func (d *Device) DestroyImageView(view gpu.ImageView) {
	if v, ok := d.views.Release(uint64(view)); ok {
		vk.DestroyImageView(d.logical, v, nil)
	}
}

func (d *Device) CreateSampler(info gpu.SamplerInfo) (gpu.Sampler, error) {
	samplerInfo := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               vk.Filter(info.MagFilter),
		MinFilter:               vk.Filter(info.MinFilter),
		AddressModeU:            vk.SamplerAddressMode(info.AddressMode),
		AddressModeV:            vk.SamplerAddressMode(info.AddressMode),
		AddressModeW:            vk.SamplerAddressMode(info.AddressMode),
		AnisotropyEnable:        boolToVk(info.MaxAnisotropy > 1),
		MaxAnisotropy:           info.MaxAnisotropy,
		BorderColor:             vk.BorderColorIntOpaqueBlack,
		UnnormalizedCoordinates: vk.False,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
		MipmapMode:              vk.SamplerMipmapModeLinear,
		MaxLod:                  info.MaxLod,
	}
	var sampler vk.Sampler
	if err := check("vkCreateSampler", vk.CreateSampler(d.logical, &samplerInfo, nil, &sampler)); err != nil {
		return 0, err
	}
	return gpu.Sampler(d.samplers.Acquire(sampler)), nil
}

func (d *Device) DestroySampler(sampler gpu.Sampler) {
	if s, ok := d.samplers.Release(uint64(sampler)); ok {
		vk.DestroySampler(d.logical, s, nil)
	}
}

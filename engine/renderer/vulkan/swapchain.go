package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
)

func toExtent(e vk.Extent2D) gpu.Extent2D {
	e.Deref()
	return gpu.Extent2D{Width: e.Width, Height: e.Height}
}

func (d *Device) SurfaceCapabilities() (gpu.SurfaceCapabilities, error) {
	var caps vk.SurfaceCapabilities
	if err := check("vkGetPhysicalDeviceSurfaceCapabilitiesKHR",
		vk.GetPhysicalDeviceSurfaceCapabilities(d.physical, d.surface, &caps)); err != nil {
		return gpu.SurfaceCapabilities{}, err
	}
	caps.Deref()

	out := gpu.SurfaceCapabilities{
		MinImageCount: caps.MinImageCount,
		MaxImageCount: caps.MaxImageCount,
		CurrentExtent: toExtent(caps.CurrentExtent),
		MinExtent:     toExtent(caps.MinImageExtent),
		MaxExtent:     toExtent(caps.MaxImageExtent),
	}

	var formatCount uint32
	if err := check("vkGetPhysicalDeviceSurfaceFormatsKHR",
		vk.GetPhysicalDeviceSurfaceFormats(d.physical, d.surface, &formatCount, nil)); err != nil {
		return gpu.SurfaceCapabilities{}, err
	}
	if formatCount > 0 {
		formats := make([]vk.SurfaceFormat, formatCount)
		vk.GetPhysicalDeviceSurfaceFormats(d.physical, d.surface, &formatCount, formats)
		for _, f := range formats[:formatCount] {
			f.Deref()
			out.Formats = append(out.Formats, gpu.SurfaceFormat{
				Format:     gpu.Format(f.Format),
				ColorSpace: gpu.ColorSpace(f.ColorSpace),
			})
		}
	}

	var modeCount uint32
	if err := check("vkGetPhysicalDeviceSurfacePresentModesKHR",
		vk.GetPhysicalDeviceSurfacePresentModes(d.physical, d.surface, &modeCount, nil)); err != nil {
		return gpu.SurfaceCapabilities{}, err
	}
	if modeCount > 0 {
		modes := make([]vk.PresentMode, modeCount)
		vk.GetPhysicalDeviceSurfacePresentModes(d.physical, d.surface, &modeCount, modes)
		for _, m := range modes[:modeCount] {
			out.PresentModes = append(out.PresentModes, gpu.PresentMode(m))
		}
	}
	return out, nil
}

// CreateSwapchain retires info.OldSwapchain but does not destroy it; the
// caller still owns the old handle.
func (d *Device) CreateSwapchain(info gpu.SwapchainInfo) (gpu.Swapchain, error) {
	var caps vk.SurfaceCapabilities
	if err := check("vkGetPhysicalDeviceSurfaceCapabilitiesKHR",
		vk.GetPhysicalDeviceSurfaceCapabilities(d.physical, d.surface, &caps)); err != nil {
		return 0, err
	}
	caps.Deref()

	old := vk.NullSwapchain
	if info.OldSwapchain != 0 {
		sc, err := lookup(d.swapchains, uint64(info.OldSwapchain))
		if err != nil {
			return 0, err
		}
		old = sc.handle
	}

	swapchainCreateInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          d.surface,
		MinImageCount:    info.MinImageCount,
		ImageFormat:      vk.Format(info.Format.Format),
		ImageColorSpace:  vk.ColorSpace(info.Format.ColorSpace),
		ImageExtent:      vk.Extent2D{Width: info.Extent.Width, Height: info.Extent.Height},
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferSrcBit),
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      vk.PresentMode(info.PresentMode),
		Clipped:          vk.True,
		OldSwapchain:     old,
	}

	if d.graphicsFamily != d.presentFamily {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeConcurrent
		swapchainCreateInfo.QueueFamilyIndexCount = 2
		swapchainCreateInfo.PQueueFamilyIndices = []uint32{d.graphicsFamily, d.presentFamily}
	} else {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeExclusive
	}

	var handle vk.Swapchain
	if err := check("vkCreateSwapchainKHR", vk.CreateSwapchain(d.logical, &swapchainCreateInfo, nil, &handle)); err != nil {
		return 0, err
	}

	var imageCount uint32
	if err := check("vkGetSwapchainImagesKHR", vk.GetSwapchainImages(d.logical, handle, &imageCount, nil)); err != nil {
		vk.DestroySwapchain(d.logical, handle, nil)
		return 0, err
	}
	images := make([]vk.Image, imageCount)
	if err := check("vkGetSwapchainImagesKHR", vk.GetSwapchainImages(d.logical, handle, &imageCount, images)); err != nil {
		vk.DestroySwapchain(d.logical, handle, nil)
		return 0, err
	}

	sc := &swapchain{handle: handle, images: make([]gpu.Image, imageCount)}
	for i, img := range images[:imageCount] {
		sc.images[i] = gpu.Image(d.images.Acquire(img))
	}
	core.LogInfo("Swapchain created: %dx%d, %d images.", info.Extent.Width, info.Extent.Height, imageCount)
	return gpu.Swapchain(d.swapchains.Acquire(sc)), nil
}

// DestroySwapchain forgets the presentable images along with the swapchain.
func (d *Device) DestroySwapchain(handle gpu.Swapchain) {
	sc, ok := d.swapchains.Release(uint64(handle))
	if !ok {
		return
	}
	for _, img := range sc.images {
		d.images.Release(uint64(img))
	}
	vk.DestroySwapchain(d.logical, sc.handle, nil)
}

func (d *Device) SwapchainImages(handle gpu.Swapchain) ([]gpu.Image, error) {
	sc, err := lookup(d.swapchains, uint64(handle))
	if err != nil {
		return nil, err
	}
	return append([]gpu.Image(nil), sc.images...), nil
}

func (d *Device) AcquireNextImage(handle gpu.Swapchain, timeout uint64, semaphore gpu.Semaphore, fence gpu.Fence) (uint32, error) {
	sc, err := lookup(d.swapchains, uint64(handle))
	if err != nil {
		return 0, err
	}
	sem := vk.NullSemaphore
	if semaphore != 0 {
		if sem, err = lookup(d.semaphores, uint64(semaphore)); err != nil {
			return 0, err
		}
	}
	f := vk.NullFence
	if fence != 0 {
		if f, err = lookup(d.fences, uint64(fence)); err != nil {
			return 0, err
		}
	}

	var imageIndex uint32
	result := vk.AcquireNextImage(d.logical, sc.handle, timeout, sem, f, &imageIndex)
	switch result {
	case vk.Success:
		return imageIndex, nil
	case vk.Suboptimal:
		return imageIndex, check("vkAcquireNextImageKHR", result)
	default:
		return 0, check("vkAcquireNextImageKHR", result)
	}
}

func (d *Device) QueuePresent(queue gpu.Queue, info gpu.PresentInfo) error {
	q, err := lookup(d.queues, uint64(queue))
	if err != nil {
		return err
	}
	sc, err := lookup(d.swapchains, uint64(info.Swapchain))
	if err != nil {
		return err
	}
	waits, err := d.semaphoreHandles(info.WaitSemaphores)
	if err != nil {
		return err
	}
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: uint32(len(waits)),
		PWaitSemaphores:    waits,
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{sc.handle},
		PImageIndices:      []uint32{info.ImageIndex},
	}
	return check("vkQueuePresentKHR", vk.QueuePresent(q, &presentInfo))
}

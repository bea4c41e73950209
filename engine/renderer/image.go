package renderer

import (
	"fmt"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
)

type ImageConfig struct {
	Name       string
	Width      uint32
	Height     uint32
	Format     gpu.Format
	Usage      gpu.ImageUsage
	Properties gpu.MemoryProperty
	Aspect     gpu.ImageAspect
	// Layout the image is transitioned to once created. Undefined leaves it untouched.
	Layout gpu.ImageLayout
	// Pixels are uploaded through a staging buffer when present.
	Pixels []byte
}

type Image struct {
	Name   string
	Handle gpu.Image
	Memory gpu.DeviceMemory
	View   gpu.ImageView
	Width  uint32
	Height uint32
	Format gpu.Format
	Aspect gpu.ImageAspect
	Layout gpu.ImageLayout

	ctx *Context
}

// CreateImage creates an image, binds its memory and creates a view over it.
// Pixels, if any, are uploaded and the image ends up in cfg.Layout.
func (c *Context) CreateImage(cfg ImageConfig) (*Image, error) {
	if cfg.Properties == 0 {
		cfg.Properties = gpu.MemoryPropertyDeviceLocal
	}
	if cfg.Aspect == 0 {
		cfg.Aspect = gpu.ImageAspectColor
		if cfg.Format.IsDepth() {
			cfg.Aspect = gpu.ImageAspectDepth
		}
	}
	if len(cfg.Pixels) > 0 {
		if want := uint64(cfg.Width) * uint64(cfg.Height) * cfg.Format.Size(); uint64(len(cfg.Pixels)) != want {
			err := fmt.Errorf("image `%s`: %d bytes of pixels, expected %d", cfg.Name, len(cfg.Pixels), want)
			core.LogError(err.Error())
			return nil, err
		}
		cfg.Usage |= gpu.ImageUsageTransferDst
		if cfg.Layout == gpu.ImageLayoutUndefined {
			cfg.Layout = gpu.ImageLayoutShaderReadOnlyOptimal
		}
	}

	var scope Scope
	defer scope.Release()

	handle, reqs, err := c.Device.CreateImage(gpu.ImageInfo{
		Width:  cfg.Width,
		Height: cfg.Height,
		Format: cfg.Format,
		Usage:  cfg.Usage,
	})
	if err != nil {
		err = fmt.Errorf("failed to create image `%s`: %w", cfg.Name, err)
		core.LogError(err.Error())
		return nil, err
	}
	var mem gpu.DeviceMemory
	// the image goes before its memory
	scope.Defer(func() {
		c.Device.DestroyImage(handle)
		c.Device.FreeMemory(mem)
	})

	if mem, err = c.allocate(reqs, cfg.Properties); err != nil {
		return nil, err
	}

	if err := c.Device.BindImageMemory(handle, mem, 0); err != nil {
		err = fmt.Errorf("failed to bind memory of image `%s`: %w", cfg.Name, err)
		core.LogError(err.Error())
		return nil, err
	}

	view, err := c.Device.CreateImageView(gpu.ImageViewInfo{Image: handle, Format: cfg.Format, Aspect: cfg.Aspect})
	if err != nil {
		err = fmt.Errorf("failed to create view of image `%s`: %w", cfg.Name, err)
		core.LogError(err.Error())
		return nil, err
	}
	scope.Defer(func() { c.Device.DestroyImageView(view) })

	img := &Image{
		Name:   cfg.Name,
		Handle: handle,
		Memory: mem,
		View:   view,
		Width:  cfg.Width,
		Height: cfg.Height,
		Format: cfg.Format,
		Aspect: cfg.Aspect,
		Layout: gpu.ImageLayoutUndefined,
		ctx:    c,
	}

	if len(cfg.Pixels) > 0 {
		if err := c.uploadPixels(img, cfg.Pixels, cfg.Layout); err != nil {
			return nil, err
		}
	} else if cfg.Layout != gpu.ImageLayoutUndefined {
		if err := c.SingleTimeCommands(func(cb *CommandBuffer) error {
			return cb.TransitionImageLayout(img.Handle, img.Aspect, gpu.ImageLayoutUndefined, cfg.Layout)
		}); err != nil {
			return nil, err
		}
		img.Layout = cfg.Layout
	}

	img.Name = c.track(kindImage, uint64(handle), cfg.Name)
	scope.Commit()
	return img, nil
}

func (c *Context) uploadPixels(img *Image, pixels []byte, layout gpu.ImageLayout) error {
	staging, err := c.newBuffer(gpu.BufferUsageTransferSrc, gpu.MemoryPropertyHostVisible|gpu.MemoryPropertyHostCoherent, uint64(len(pixels)), img.Name+" staging")
	if err != nil {
		return err
	}
	defer staging.Destroy()
	if err := staging.Write(0, pixels); err != nil {
		return err
	}
	err = c.SingleTimeCommands(func(cb *CommandBuffer) error {
		if err := cb.TransitionImageLayout(img.Handle, img.Aspect, gpu.ImageLayoutUndefined, gpu.ImageLayoutTransferDstOptimal); err != nil {
			return err
		}
		cb.CmdCopyBufferToImage(staging, img)
		if layout == gpu.ImageLayoutTransferDstOptimal {
			return nil
		}
		return cb.TransitionImageLayout(img.Handle, img.Aspect, gpu.ImageLayoutTransferDstOptimal, layout)
	})
	if err != nil {
		return err
	}
	img.Layout = layout
	return nil
}

// Destroy releases the view, the image and its memory, in that order.
func (i *Image) Destroy() {
	if i == nil || i.Handle == 0 {
		return
	}
	i.ctx.Device.DestroyImageView(i.View)
	i.ctx.Device.DestroyImage(i.Handle)
	i.ctx.Device.FreeMemory(i.Memory)
	i.ctx.untrack(kindImage, uint64(i.Handle))
	i.View = 0
	i.Handle = 0
	i.Memory = 0
}

package renderer

import (
	"fmt"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
)

// Swapchain holds the presentable images with one view and one framebuffer
// each, plus the depth attachment they share.
type Swapchain struct {
	Handle       gpu.Swapchain
	Format       gpu.SurfaceFormat
	Extent       gpu.Extent2D
	PresentMode  gpu.PresentMode
	Images       []gpu.Image
	Views        []gpu.ImageView
	Framebuffers []gpu.Framebuffer
	Depth        *Image
}

func chooseSurfaceFormat(formats []gpu.SurfaceFormat) gpu.SurfaceFormat {
	for _, f := range formats {
		if f.Format == gpu.FormatB8G8R8A8Unorm && f.ColorSpace == gpu.ColorSpaceSrgbNonlinear {
			return f
		}
	}
	return formats[0]
}

func choosePresentMode(modes []gpu.PresentMode, vsync bool) gpu.PresentMode {
	if !vsync {
		for _, m := range modes {
			if m == gpu.PresentModeMailbox {
				return m
			}
		}
	}
	// FIFO is always supported
	return gpu.PresentModeFifo
}

func chooseExtent(caps gpu.SurfaceCapabilities, width, height uint32) gpu.Extent2D {
	if caps.CurrentExtent.Width != gpu.UndefinedExtent {
		return caps.CurrentExtent
	}
	return gpu.Extent2D{
		Width:  core.Clamp(width, caps.MinExtent.Width, caps.MaxExtent.Width),
		Height: core.Clamp(height, caps.MinExtent.Height, caps.MaxExtent.Height),
	}
}

// createSwapchain builds the swapchain, its views and the depth attachment.
// Framebuffers are created separately once the render pass is known.
func createSwapchain(ctx *Context, width, height uint32, vsync bool, old gpu.Swapchain) (*Swapchain, error) {
	caps, err := ctx.Device.SurfaceCapabilities()
	if err != nil {
		err = fmt.Errorf("failed to query surface capabilities: %w", err)
		core.LogError(err.Error())
		return nil, err
	}
	if len(caps.Formats) == 0 || len(caps.PresentModes) == 0 {
		err := fmt.Errorf("surface reports no formats or present modes")
		core.LogError(err.Error())
		return nil, err
	}
	extent := chooseExtent(caps, width, height)
	if extent.Width == 0 || extent.Height == 0 {
		return nil, core.ErrSwapchainBooting
	}

	imageCount := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && imageCount > caps.MaxImageCount {
		imageCount = caps.MaxImageCount
	}

	var scope Scope
	defer scope.Release()

	s := &Swapchain{
		Format:      chooseSurfaceFormat(caps.Formats),
		Extent:      extent,
		PresentMode: choosePresentMode(caps.PresentModes, vsync),
	}
	s.Handle, err = ctx.Device.CreateSwapchain(gpu.SwapchainInfo{
		MinImageCount: imageCount,
		Format:        s.Format,
		Extent:        extent,
		PresentMode:   s.PresentMode,
		OldSwapchain:  old,
	})
	if err != nil {
		err = fmt.Errorf("failed to create swapchain: %w", err)
		core.LogError(err.Error())
		return nil, err
	}
	scope.Defer(func() { s.destroy(ctx) })

	if s.Images, err = ctx.Device.SwapchainImages(s.Handle); err != nil {
		err = fmt.Errorf("failed to get swapchain images: %w", err)
		core.LogError(err.Error())
		return nil, err
	}
	s.Views = make([]gpu.ImageView, 0, len(s.Images))
	for i, img := range s.Images {
		view, err := ctx.Device.CreateImageView(gpu.ImageViewInfo{Image: img, Format: s.Format.Format, Aspect: gpu.ImageAspectColor})
		if err != nil {
			err = fmt.Errorf("failed to create swapchain image view %d: %w", i, err)
			core.LogError(err.Error())
			return nil, err
		}
		s.Views = append(s.Views, view)
	}

	if depthFormat := ctx.Properties.DepthFormat; depthFormat != gpu.FormatUndefined {
		s.Depth, err = ctx.CreateImage(ImageConfig{
			Name:   "swapchain depth",
			Width:  extent.Width,
			Height: extent.Height,
			Format: depthFormat,
			Usage:  gpu.ImageUsageDepthStencilAttachment,
		})
		if err != nil {
			return nil, err
		}
	}

	core.LogInfo("Swapchain created: %dx%d, %d images, present mode %d.", extent.Width, extent.Height, len(s.Images), s.PresentMode)
	scope.Commit()
	return s, nil
}

// destroy releases framebuffers, depth, views and the swapchain. The images
// belong to the swapchain. Calling it twice is a no-op.
func (s *Swapchain) destroy(ctx *Context) {
	s.destroyAttachments(ctx)
	ctx.Device.DestroySwapchain(s.Handle)
	s.Handle = 0
	s.Images = nil
}

func (s *Swapchain) destroyAttachments(ctx *Context) {
	for _, fb := range s.Framebuffers {
		ctx.Device.DestroyFramebuffer(fb)
	}
	s.Framebuffers = nil
	s.Depth.Destroy()
	s.Depth = nil
	for _, v := range s.Views {
		ctx.Device.DestroyImageView(v)
	}
	s.Views = nil
}

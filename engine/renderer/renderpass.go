package renderer

import (
	"fmt"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
)

// RenderPass is the default single subpass pass: one color attachment that
// ends up ready for presentation plus a depth attachment. Both are cleared.
type RenderPass struct {
	Handle       gpu.RenderPass
	ColorFormat  gpu.Format
	DepthFormat  gpu.Format
	ClearColor   [4]float32
	ClearDepth   float32
	ClearStencil uint32

	ctx *Context
}

func (c *Context) CreateRenderPass(colorFormat, depthFormat gpu.Format, clearColor [4]float32, depth float32, stencil uint32) (*RenderPass, error) {
	info := gpu.RenderPassInfo{
		Color: []gpu.AttachmentInfo{{
			Format:        colorFormat,
			LoadOp:        gpu.LoadOpClear,
			StoreOp:       gpu.StoreOpStore,
			InitialLayout: gpu.ImageLayoutUndefined,  // Do not expect any particular layout before render pass starts.
			FinalLayout:   gpu.ImageLayoutPresentSrc, // Transitioned to after the render pass
		}},
	}
	if depthFormat != gpu.FormatUndefined {
		info.Depth = &gpu.AttachmentInfo{
			Format:        depthFormat,
			LoadOp:        gpu.LoadOpClear,
			StoreOp:       gpu.StoreOpDontCare,
			InitialLayout: gpu.ImageLayoutUndefined,
			FinalLayout:   gpu.ImageLayoutDepthStencilAttachmentOptimal,
		}
	}
	h, err := c.Device.CreateRenderPass(info)
	if err != nil {
		err = fmt.Errorf("failed to create render pass: %w", err)
		core.LogError(err.Error())
		return nil, err
	}
	c.track(kindRenderPass, uint64(h), "default")
	return &RenderPass{
		Handle:       h,
		ColorFormat:  colorFormat,
		DepthFormat:  depthFormat,
		ClearColor:   clearColor,
		ClearDepth:   depth,
		ClearStencil: stencil,
		ctx:          c,
	}, nil
}

func (p *RenderPass) Destroy() {
	if p == nil || p.Handle == 0 {
		return
	}
	p.ctx.Device.DestroyRenderPass(p.Handle)
	p.ctx.untrack(kindRenderPass, uint64(p.Handle))
	p.Handle = 0
}

// Begin starts the pass on cb over the whole framebuffer.
func (p *RenderPass) Begin(cb *CommandBuffer, framebuffer gpu.Framebuffer, extent gpu.Extent2D) {
	clears := []gpu.ClearValue{{Color: p.ClearColor}}
	if p.DepthFormat != gpu.FormatUndefined {
		clears = append(clears, gpu.ClearValue{Depth: p.ClearDepth, Stencil: p.ClearStencil})
	}
	cb.BeginRenderPass(gpu.RenderPassBeginInfo{
		RenderPass:  p.Handle,
		Framebuffer: framebuffer,
		Area:        gpu.Rect2D{Extent: extent},
		ClearValues: clears,
	})
}

func (p *RenderPass) End(cb *CommandBuffer) {
	cb.EndRenderPass()
}

// createFramebuffers builds one framebuffer per swapchain image view, each
// sharing the depth attachment.
func (s *Swapchain) createFramebuffers(ctx *Context, pass *RenderPass) error {
	s.Framebuffers = make([]gpu.Framebuffer, 0, len(s.Views))
	for i, view := range s.Views {
		attachments := []gpu.ImageView{view}
		if s.Depth != nil {
			attachments = append(attachments, s.Depth.View)
		}
		fb, err := ctx.Device.CreateFramebuffer(gpu.FramebufferInfo{
			RenderPass:  pass.Handle,
			Attachments: attachments,
			Width:       s.Extent.Width,
			Height:      s.Extent.Height,
		})
		if err != nil {
			err = fmt.Errorf("failed to create framebuffer %d: %w", i, err)
			core.LogError(err.Error())
			return err
		}
		s.Framebuffers = append(s.Framebuffers, fb)
	}
	return nil
}

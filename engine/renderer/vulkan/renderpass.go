package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/prism/engine/renderer/gpu"
)

func attachmentDescription(a gpu.AttachmentInfo) vk.AttachmentDescription {
	desc := vk.AttachmentDescription{
		Format:         vk.Format(a.Format),
		Samples:        vk.SampleCount1Bit,
		LoadOp:         vk.AttachmentLoadOp(a.LoadOp),
		StoreOp:        vk.AttachmentStoreOp(a.StoreOp),
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayout(a.InitialLayout),
		FinalLayout:    vk.ImageLayout(a.FinalLayout),
	}
	desc.Deref()
	return desc
}

/**
 * @brief Creates a single-subpass render pass. Color attachments come first,
 * the optional depth attachment is appended after them.
 */
func (d *Device) CreateRenderPass(info gpu.RenderPassInfo) (gpu.RenderPass, error) {
	attachments := make([]vk.AttachmentDescription, 0, len(info.Color)+1)
	colorRefs := make([]vk.AttachmentReference, len(info.Color))
	for i, c := range info.Color {
		attachments = append(attachments, attachmentDescription(c))
		colorRefs[i] = vk.AttachmentReference{
			Attachment: uint32(i),
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		}
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: uint32(len(colorRefs)),
		PColorAttachments:    colorRefs,
	}

	srcStage := vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)
	dstAccess := vk.AccessFlags(vk.AccessColorAttachmentReadBit) | vk.AccessFlags(vk.AccessColorAttachmentWriteBit)

	if info.Depth != nil {
		attachments = append(attachments, attachmentDescription(*info.Depth))
		depthRef := vk.AttachmentReference{
			Attachment: uint32(len(info.Color)),
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
		subpass.PDepthStencilAttachment = &depthRef
		srcStage |= vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit)
		dstAccess |= vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit)
	}

	// Wait for the presentation engine to release the image before writing.
	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  srcStage,
		SrcAccessMask: 0,
		DstStageMask:  srcStage,
		DstAccessMask: dstAccess,
	}

	createInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}

	var pass vk.RenderPass
	if err := check("vkCreateRenderPass", vk.CreateRenderPass(d.logical, &createInfo, nil, &pass)); err != nil {
		return 0, err
	}
	return gpu.RenderPass(d.renderPasses.Acquire(renderPass{handle: pass, colors: len(info.Color)})), nil
}

func (d *Device) DestroyRenderPass(pass gpu.RenderPass) {
	if p, ok := d.renderPasses.Release(uint64(pass)); ok {
		vk.DestroyRenderPass(d.logical, p.handle, nil)
	}
}

func (d *Device) CreateFramebuffer(info gpu.FramebufferInfo) (gpu.Framebuffer, error) {
	pass, err := lookup(d.renderPasses, uint64(info.RenderPass))
	if err != nil {
		return 0, err
	}
	views := make([]vk.ImageView, len(info.Attachments))
	for i, v := range info.Attachments {
		if views[i], err = lookup(d.views, uint64(v)); err != nil {
			return 0, err
		}
	}
	createInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      pass.handle,
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           info.Width,
		Height:          info.Height,
		Layers:          1,
	}
	var framebuffer vk.Framebuffer
	if err := check("vkCreateFramebuffer", vk.CreateFramebuffer(d.logical, &createInfo, nil, &framebuffer)); err != nil {
		return 0, err
	}
	return gpu.Framebuffer(d.framebuffers.Acquire(framebuffer)), nil
}

func (d *Device) DestroyFramebuffer(framebuffer gpu.Framebuffer) {
	if f, ok := d.framebuffers.Release(uint64(framebuffer)); ok {
		vk.DestroyFramebuffer(d.logical, f, nil)
	}
}

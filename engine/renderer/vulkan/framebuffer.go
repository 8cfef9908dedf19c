package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vkquad/engine/core"
	"github.com/spaghettifunk/vkquad/engine/renderer/metadata"
)

type VulkanFramebuffer struct {
	context     *VulkanContext
	Handle      vk.Framebuffer
	Attachments []vk.ImageView
	Renderpass  *VulkanRenderpass
}

func (vc *VulkanContext) CreateFramebuffer(pass metadata.RenderPass, view metadata.ImageView, extent metadata.Extent2D) (metadata.Framebuffer, error) {
	renderpass, ok := pass.(*VulkanRenderpass)
	if !ok {
		return nil, fmt.Errorf("framebuffer needs a *VulkanRenderpass, got %T", pass)
	}
	imageView, ok := view.(*VulkanImageView)
	if !ok {
		return nil, fmt.Errorf("framebuffer needs a *VulkanImageView, got %T", view)
	}

	outFramebuffer := &VulkanFramebuffer{
		context:     vc,
		Attachments: []vk.ImageView{imageView.Handle},
		Renderpass:  renderpass,
	}

	framebufferCreateInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      renderpass.Handle,
		AttachmentCount: uint32(len(outFramebuffer.Attachments)),
		PAttachments:    outFramebuffer.Attachments,
		Width:           extent.Width,
		Height:          extent.Height,
		Layers:          1,
	}

	err := vc.lockPool.SafeCall(ImageManagement, func() error {
		var pFramebuffer vk.Framebuffer
		if res := vk.CreateFramebuffer(vc.Device.LogicalDevice, &framebufferCreateInfo, vc.Allocator, &pFramebuffer); res != vk.Success {
			return fmt.Errorf("vkCreateFramebuffer failed with %s", VulkanResultString(res, true))
		}
		outFramebuffer.Handle = pFramebuffer
		return nil
	})
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	return outFramebuffer, nil
}

func (vfb *VulkanFramebuffer) Destroy() {
	if vfb.Handle != vk.NullFramebuffer {
		vk.DestroyFramebuffer(vfb.context.Device.LogicalDevice, vfb.Handle, vfb.context.Allocator)
		vfb.Handle = vk.NullFramebuffer
	}
	vfb.Attachments = nil
	vfb.Renderpass = nil
}

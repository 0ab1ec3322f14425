package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

type VulkanFramebuffer struct {
	name        string
	extent      gpu.Extent2D
	renderPass  *VulkanRenderPass
	Handle      vk.Framebuffer
	Attachments []vk.ImageView
}

func (fb *VulkanFramebuffer) Name() string           { return fb.name }
func (fb *VulkanFramebuffer) Extent() gpu.Extent2D { return fb.extent }

func (d *Device) CreateFramebuffer(desc gpu.FramebufferDesc) (gpu.Framebuffer, error) {
	rp, ok := desc.RenderPass.(*VulkanRenderPass)
	if !ok || rp == nil {
		return nil, errors.Newf("framebuffer %q needs a render pass", desc.Name)
	}
	if desc.Extent.Empty() {
		return nil, errors.Newf("framebuffer %q has empty extent", desc.Name)
	}
	fb := &VulkanFramebuffer{
		name:        desc.Name,
		extent:      desc.Extent,
		renderPass:  rp,
		Attachments: make([]vk.ImageView, len(desc.Attachments)),
	}
	for i, a := range desc.Attachments {
		view, ok := a.(*VulkanImageView)
		if !ok || view == nil {
			return nil, errors.Newf("framebuffer %q: attachment %d is not an image view", desc.Name, i)
		}
		fb.Attachments[i] = view.Handle
	}

	info := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      rp.Handle,
		AttachmentCount: uint32(len(fb.Attachments)),
		PAttachments:    fb.Attachments,
		Width:           desc.Extent.Width,
		Height:          desc.Extent.Height,
		Layers:          1,
	}
	if err := check("vkCreateFramebuffer", vk.CreateFramebuffer(d.LogicalDevice, &info, d.ctx.Allocator, &fb.Handle)); err != nil {
		return nil, errors.Wrapf(err, "framebuffer %q", desc.Name)
	}
	return fb, nil
}

func (d *Device) DestroyFramebuffer(fb gpu.Framebuffer) {
	vfb, ok := fb.(*VulkanFramebuffer)
	if !ok || vfb == nil || vfb.Handle == vk.NullFramebuffer {
		return
	}
	vk.DestroyFramebuffer(d.LogicalDevice, vfb.Handle, d.ctx.Allocator)
	vfb.Handle = vk.NullFramebuffer
	vfb.Attachments = nil
	vfb.renderPass = nil
}

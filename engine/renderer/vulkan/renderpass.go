package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

// VulkanRenderPass is a single subpass render pass with an optional color
// attachment at index 0 and an optional depth attachment after it.
type VulkanRenderPass struct {
	name     string
	desc     gpu.RenderPassDesc
	Handle   vk.RenderPass
	hasColor bool
	hasDepth bool
}

func (rp *VulkanRenderPass) Name() string { return rp.name }

func (d *Device) CreateRenderPass(desc gpu.RenderPassDesc) (gpu.RenderPass, error) {
	rp := &VulkanRenderPass{
		name:     desc.Name,
		desc:     desc,
		hasColor: desc.ColorFormat != gpu.FormatUndefined,
		hasDepth: desc.DepthFormat != gpu.FormatUndefined,
	}
	if !rp.hasColor && !rp.hasDepth {
		return nil, errors.Newf("render pass %q has no attachments", desc.Name)
	}
	samples := vkSamples(desc.Samples)

	subpass := vk.SubpassDescription{
		PipelineBindPoint: vk.PipelineBindPointGraphics,
	}
	var attachments []vk.AttachmentDescription
	var srcStages, dstStages vk.PipelineStageFlags
	var dstAccess vk.AccessFlags

	if rp.hasColor {
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         vkFormat(desc.ColorFormat),
			Samples:        samples,
			LoadOp:         vkLoadOp(desc.ColorLoad),
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vkLayout(desc.ColorInitial),
			FinalLayout:    vkLayout(desc.ColorFinal),
		})
		subpass.ColorAttachmentCount = 1
		subpass.PColorAttachments = []vk.AttachmentReference{{
			Attachment: 0,
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		}}
		srcStages |= vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)
		dstStages |= vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)
		dstAccess |= vk.AccessFlags(vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit)
	}

	if rp.hasDepth {
		storeOp := vk.AttachmentStoreOpDontCare
		if desc.StoreDepth {
			storeOp = vk.AttachmentStoreOpStore
		}
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         vkFormat(desc.DepthFormat),
			Samples:        samples,
			LoadOp:         vkLoadOp(desc.DepthLoad),
			StoreOp:        storeOp,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vkLayout(desc.DepthInitial),
			FinalLayout:    vkLayout(desc.DepthFinal),
		})
		subpass.PDepthStencilAttachment = &vk.AttachmentReference{
			Attachment: uint32(len(attachments) - 1),
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
		depthStages := vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageLateFragmentTestsBit)
		srcStages |= depthStages
		dstStages |= depthStages
		dstAccess |= vk.AccessFlags(vk.AccessDepthStencilAttachmentReadBit | vk.AccessDepthStencilAttachmentWriteBit)
	}

	// Orders this pass after whatever last wrote the attachments.
	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  srcStages,
		SrcAccessMask: 0,
		DstStageMask:  dstStages,
		DstAccessMask: dstAccess,
	}

	info := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}
	if err := check("vkCreateRenderPass", vk.CreateRenderPass(d.LogicalDevice, &info, d.ctx.Allocator, &rp.Handle)); err != nil {
		return nil, errors.Wrapf(err, "render pass %q", desc.Name)
	}
	core.LogDebug("render pass %q created (color=%t depth=%t samples=%d)", desc.Name, rp.hasColor, rp.hasDepth, max(desc.Samples, 1))
	return rp, nil
}

func (d *Device) DestroyRenderPass(rp gpu.RenderPass) {
	vr, ok := rp.(*VulkanRenderPass)
	if !ok || vr == nil || vr.Handle == vk.NullRenderPass {
		return
	}
	vk.DestroyRenderPass(d.LogicalDevice, vr.Handle, d.ctx.Allocator)
	vr.Handle = vk.NullRenderPass
}

package vulkan

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

type VulkanCommandBufferState int

const (
	COMMAND_BUFFER_STATE_READY VulkanCommandBufferState = iota
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_IN_RENDER_PASS
	COMMAND_BUFFER_STATE_RECORDING_ENDED
	COMMAND_BUFFER_STATE_SUBMITTED
	COMMAND_BUFFER_STATE_NOT_ALLOCATED
)

// VulkanCommandBuffer is a primary command buffer from the graphics pool.
type VulkanCommandBuffer struct {
	name   string
	dev    *Device
	Handle vk.CommandBuffer
	State  VulkanCommandBufferState
}

var _ gpu.CommandBuffer = (*VulkanCommandBuffer)(nil)

func (c *VulkanCommandBuffer) Name() string { return c.name }

func (d *Device) CreateCommandBuffer(name string) (gpu.CommandBuffer, error) {
	cb := &VulkanCommandBuffer{name: name, dev: d, State: COMMAND_BUFFER_STATE_NOT_ALLOCATED}
	info := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.GraphicsCommandPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	buffers := make([]vk.CommandBuffer, 1)
	err := d.locks.SafeCall(CommandPoolManagement, func() error {
		return check("vkAllocateCommandBuffers", vk.AllocateCommandBuffers(d.LogicalDevice, &info, buffers))
	})
	if err != nil {
		return nil, errors.Wrapf(err, "command buffer %q", name)
	}
	cb.Handle = buffers[0]
	cb.State = COMMAND_BUFFER_STATE_READY
	return cb, nil
}

func (d *Device) DestroyCommandBuffer(cmd gpu.CommandBuffer) {
	cb, ok := cmd.(*VulkanCommandBuffer)
	if !ok || cb == nil || cb.Handle == nil {
		return
	}
	_ = d.locks.SafeCall(CommandPoolManagement, func() error {
		vk.FreeCommandBuffers(d.LogicalDevice, d.GraphicsCommandPool, 1, []vk.CommandBuffer{cb.Handle})
		return nil
	})
	cb.Handle = nil
	cb.State = COMMAND_BUFFER_STATE_NOT_ALLOCATED
}

func (c *VulkanCommandBuffer) Reset() error {
	if err := check("vkResetCommandBuffer", vk.ResetCommandBuffer(c.Handle, 0)); err != nil {
		return errors.Wrapf(err, "command buffer %q", c.name)
	}
	c.State = COMMAND_BUFFER_STATE_READY
	return nil
}

func (c *VulkanCommandBuffer) Begin(oneShot bool) error {
	info := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
	}
	if oneShot {
		info.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	if err := check("vkBeginCommandBuffer", vk.BeginCommandBuffer(c.Handle, &info)); err != nil {
		return errors.Wrapf(err, "command buffer %q", c.name)
	}
	c.State = COMMAND_BUFFER_STATE_RECORDING
	return nil
}

func (c *VulkanCommandBuffer) End() error {
	if c.State == COMMAND_BUFFER_STATE_IN_RENDER_PASS {
		return errors.Newf("command buffer %q ended inside a render pass", c.name)
	}
	if err := check("vkEndCommandBuffer", vk.EndCommandBuffer(c.Handle)); err != nil {
		return errors.Wrapf(err, "command buffer %q", c.name)
	}
	c.State = COMMAND_BUFFER_STATE_RECORDING_ENDED
	return nil
}

func (c *VulkanCommandBuffer) PipelineBarrier(b gpu.Barrier) {
	images := make([]vk.ImageMemoryBarrier, 0, len(b.Images))
	for _, ib := range b.Images {
		img := ib.Image.(*VulkanImage)
		images = append(images, vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       vkAccess(ib.SrcAccess),
			DstAccessMask:       vkAccess(ib.DstAccess),
			OldLayout:           vkLayout(ib.OldLayout),
			NewLayout:           vkLayout(ib.NewLayout),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               img.Handle,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask:     aspectOf(img.desc.Format),
				BaseMipLevel:   ib.BaseMip,
				LevelCount:     countOrRemaining(ib.MipCount),
				BaseArrayLayer: ib.BaseLayer,
				LayerCount:     countOrRemaining(ib.LayerCount),
			},
		})
	}
	buffers := make([]vk.BufferMemoryBarrier, 0, len(b.Buffers))
	for _, bb := range b.Buffers {
		size := vk.DeviceSize(bb.Size)
		if bb.Size == 0 {
			size = vk.DeviceSize(vk.WholeSize)
		}
		buffers = append(buffers, vk.BufferMemoryBarrier{
			SType:               vk.StructureTypeBufferMemoryBarrier,
			SrcAccessMask:       vkAccess(bb.SrcAccess),
			DstAccessMask:       vkAccess(bb.DstAccess),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Buffer:              bb.Buffer.(*VulkanBuffer).Handle,
			Offset:              vk.DeviceSize(bb.Offset),
			Size:                size,
		})
	}
	vk.CmdPipelineBarrier(c.Handle, vkStages(b.SrcStage), vkStages(b.DstStage), 0,
		0, nil,
		uint32(len(buffers)), buffers,
		uint32(len(images)), images)
}

func (c *VulkanCommandBuffer) CopyBuffer(src, dst gpu.Buffer, regions []gpu.BufferCopy) {
	if len(regions) == 0 {
		return
	}
	copies := make([]vk.BufferCopy, len(regions))
	for i, r := range regions {
		copies[i] = vk.BufferCopy{
			SrcOffset: vk.DeviceSize(r.SrcOffset),
			DstOffset: vk.DeviceSize(r.DstOffset),
			Size:      vk.DeviceSize(r.Size),
		}
	}
	vk.CmdCopyBuffer(c.Handle, src.(*VulkanBuffer).Handle, dst.(*VulkanBuffer).Handle, uint32(len(copies)), copies)
}

func (c *VulkanCommandBuffer) CopyBufferToImage(src gpu.Buffer, dst gpu.Image, layout gpu.ImageLayout, regions []gpu.BufferImageCopy) {
	if len(regions) == 0 {
		return
	}
	img := dst.(*VulkanImage)
	copies := make([]vk.BufferImageCopy, len(regions))
	for i, r := range regions {
		copies[i] = vk.BufferImageCopy{
			BufferOffset: vk.DeviceSize(r.BufferOffset),
			ImageSubresource: vk.ImageSubresourceLayers{
				AspectMask:     depthOnly(img.desc.Format),
				MipLevel:       r.Mip,
				BaseArrayLayer: r.BaseLayer,
				LayerCount:     max(r.LayerCount, 1),
			},
			ImageExtent: vk.Extent3D{Width: r.Extent.Width, Height: r.Extent.Height, Depth: 1},
		}
	}
	vk.CmdCopyBufferToImage(c.Handle, src.(*VulkanBuffer).Handle, img.Handle, vkLayout(layout), uint32(len(copies)), copies)
}

func (c *VulkanCommandBuffer) UpdateBuffer(dst gpu.Buffer, offset uint64, data []byte) {
	if len(data) == 0 {
		return
	}
	if len(data) > 65536 || len(data)%4 != 0 {
		core.LogError("inline update of %d bytes into %q is not allowed", len(data), dst.Name())
		return
	}
	vk.CmdUpdateBuffer(c.Handle, dst.(*VulkanBuffer).Handle, vk.DeviceSize(offset), vk.DeviceSize(len(data)), unsafe.Pointer(&data[0]))
}

func (c *VulkanCommandBuffer) ClearColorImage(img gpu.Image, layout gpu.ImageLayout, color [4]float32) {
	vi := img.(*VulkanImage)
	var value vk.ClearColorValue
	*(*[4]float32)(unsafe.Pointer(&value)) = color
	ranges := []vk.ImageSubresourceRange{{
		AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
		LevelCount: remaining,
		LayerCount: remaining,
	}}
	vk.CmdClearColorImage(c.Handle, vi.Handle, vkLayout(layout), &value, 1, ranges)
}

func (c *VulkanCommandBuffer) ResolveImage(src gpu.Image, srcLayout gpu.ImageLayout, dst gpu.Image, dstLayout gpu.ImageLayout, extent gpu.Extent2D) {
	layers := vk.ImageSubresourceLayers{
		AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
		LayerCount: 1,
	}
	region := vk.ImageResolve{
		SrcSubresource: layers,
		DstSubresource: layers,
		Extent:         vk.Extent3D{Width: extent.Width, Height: extent.Height, Depth: 1},
	}
	vk.CmdResolveImage(c.Handle,
		src.(*VulkanImage).Handle, vkLayout(srcLayout),
		dst.(*VulkanImage).Handle, vkLayout(dstLayout),
		1, []vk.ImageResolve{region})
}

// BlitImage scales the first mip and layer of src onto dst with linear filtering.
func (c *VulkanCommandBuffer) BlitImage(src gpu.Image, srcLayout gpu.ImageLayout, srcExtent gpu.Extent2D, dst gpu.Image, dstLayout gpu.ImageLayout, dstExtent gpu.Extent2D) {
	layers := vk.ImageSubresourceLayers{
		AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
		LayerCount: 1,
	}
	region := vk.ImageBlit{
		SrcSubresource: layers,
		SrcOffsets: [2]vk.Offset3D{
			{},
			{X: int32(srcExtent.Width), Y: int32(srcExtent.Height), Z: 1},
		},
		DstSubresource: layers,
		DstOffsets: [2]vk.Offset3D{
			{},
			{X: int32(dstExtent.Width), Y: int32(dstExtent.Height), Z: 1},
		},
	}
	vk.CmdBlitImage(c.Handle,
		src.(*VulkanImage).Handle, vkLayout(srcLayout),
		dst.(*VulkanImage).Handle, vkLayout(dstLayout),
		1, []vk.ImageBlit{region}, vk.FilterLinear)
}

func (c *VulkanCommandBuffer) BeginRenderPass(rp gpu.RenderPass, fb gpu.Framebuffer, clears []gpu.ClearValue) {
	vfb := fb.(*VulkanFramebuffer)
	clearValues := make([]vk.ClearValue, len(clears))
	for i, cv := range clears {
		if cv.IsDepth {
			clearValues[i].SetDepthStencil(cv.Depth, cv.Stencil)
		} else {
			clearValues[i].SetColor(cv.Color[:])
		}
	}
	info := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  rp.(*VulkanRenderPass).Handle,
		Framebuffer: vfb.Handle,
		RenderArea: vk.Rect2D{
			Extent: vk.Extent2D{Width: vfb.extent.Width, Height: vfb.extent.Height},
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	vk.CmdBeginRenderPass(c.Handle, &info, vk.SubpassContentsInline)
	c.State = COMMAND_BUFFER_STATE_IN_RENDER_PASS
}

func (c *VulkanCommandBuffer) EndRenderPass() {
	vk.CmdEndRenderPass(c.Handle)
	c.State = COMMAND_BUFFER_STATE_RECORDING
}

func (c *VulkanCommandBuffer) SetViewport(v gpu.Viewport) {
	vk.CmdSetViewport(c.Handle, 0, 1, []vk.Viewport{{
		X:        v.X,
		Y:        v.Y,
		Width:    v.Width,
		Height:   v.Height,
		MinDepth: v.MinDepth,
		MaxDepth: v.MaxDepth,
	}})
}

func (c *VulkanCommandBuffer) SetScissor(r gpu.Rect2D) {
	vk.CmdSetScissor(c.Handle, 0, 1, []vk.Rect2D{{
		Offset: vk.Offset2D{X: r.X, Y: r.Y},
		Extent: vk.Extent2D{Width: r.Extent.Width, Height: r.Extent.Height},
	}})
}

func (c *VulkanCommandBuffer) BindPipeline(p gpu.Pipeline) {
	vk.CmdBindPipeline(c.Handle, vk.PipelineBindPointGraphics, p.(*VulkanPipeline).Handle)
}

func (c *VulkanCommandBuffer) BindBindlessSet(layout gpu.PipelineLayout, set gpu.BindlessSet) {
	vk.CmdBindDescriptorSets(c.Handle, vk.PipelineBindPointGraphics,
		layout.(*VulkanPipelineLayout).Handle, 0,
		1, []vk.DescriptorSet{set.(*VulkanBindlessSet).Set},
		0, nil)
}

func (c *VulkanCommandBuffer) BindIndexBuffer(b gpu.Buffer, offset uint64) {
	vk.CmdBindIndexBuffer(c.Handle, b.(*VulkanBuffer).Handle, vk.DeviceSize(offset), vk.IndexTypeUint32)
}

func (c *VulkanCommandBuffer) PushConstants(layout gpu.PipelineLayout, stages gpu.ShaderStage, offset uint32, data []byte) {
	if len(data) == 0 {
		return
	}
	vk.CmdPushConstants(c.Handle, layout.(*VulkanPipelineLayout).Handle, vkShaderStages(stages),
		offset, uint32(len(data)), unsafe.Pointer(&data[0]))
}

func (c *VulkanCommandBuffer) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	vk.CmdDraw(c.Handle, vertexCount, instanceCount, firstVertex, firstInstance)
}

func (c *VulkanCommandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	vk.CmdDrawIndexed(c.Handle, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}

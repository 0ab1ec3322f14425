package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

var formats = map[gpu.Format]vk.Format{
	gpu.FormatUndefined:      vk.FormatUndefined,
	gpu.FormatRGBA8Unorm:     vk.FormatR8g8b8a8Unorm,
	gpu.FormatRGBA8Srgb:      vk.FormatR8g8b8a8Srgb,
	gpu.FormatBGRA8Unorm:     vk.FormatB8g8r8a8Unorm,
	gpu.FormatBGRA8Srgb:      vk.FormatB8g8r8a8Srgb,
	gpu.FormatRGBA16Float:    vk.FormatR16g16b16a16Sfloat,
	gpu.FormatD32Float:       vk.FormatD32Sfloat,
	gpu.FormatD24UnormS8Uint: vk.FormatD24UnormS8Uint,
	gpu.FormatBC1RGBASrgb:    vk.FormatBc1RgbaSrgbBlock,
	gpu.FormatBC3Srgb:        vk.FormatBc3SrgbBlock,
	gpu.FormatBC3Unorm:       vk.FormatBc3UnormBlock,
	gpu.FormatBC5Unorm:       vk.FormatBc5UnormBlock,
	gpu.FormatBC7Srgb:        vk.FormatBc7SrgbBlock,
	gpu.FormatBC7Unorm:       vk.FormatBc7UnormBlock,
}

func vkFormat(f gpu.Format) vk.Format {
	if vf, ok := formats[f]; ok {
		return vf
	}
	return vk.FormatUndefined
}

// gpuFormat maps a surface format back. Formats the HAL does not name come
// back undefined and are skipped by the swapchain chooser.
func gpuFormat(f vk.Format) gpu.Format {
	for gf, vf := range formats {
		if vf == f {
			return gf
		}
	}
	return gpu.FormatUndefined
}

func vkColorSpace(c gpu.ColorSpace) vk.ColorSpace {
	switch c {
	case gpu.ColorSpaceExtendedSRGBLinear:
		return vk.ColorSpaceExtendedSrgbLinear
	case gpu.ColorSpaceHDR10:
		return vk.ColorSpaceHdr10St2084
	}
	return vk.ColorSpaceSrgbNonlinear
}

func gpuColorSpace(c vk.ColorSpace) (gpu.ColorSpace, bool) {
	switch c {
	case vk.ColorSpaceSrgbNonlinear:
		return gpu.ColorSpaceSRGBNonlinear, true
	case vk.ColorSpaceExtendedSrgbLinear:
		return gpu.ColorSpaceExtendedSRGBLinear, true
	case vk.ColorSpaceHdr10St2084:
		return gpu.ColorSpaceHDR10, true
	}
	return 0, false
}

func vkPresentMode(m gpu.PresentMode) vk.PresentMode {
	switch m {
	case gpu.PresentModeImmediate:
		return vk.PresentModeImmediate
	case gpu.PresentModeMailbox:
		return vk.PresentModeMailbox
	case gpu.PresentModeFifoRelaxed:
		return vk.PresentModeFifoRelaxed
	}
	return vk.PresentModeFifo
}

func gpuPresentMode(m vk.PresentMode) (gpu.PresentMode, bool) {
	switch m {
	case vk.PresentModeImmediate:
		return gpu.PresentModeImmediate, true
	case vk.PresentModeMailbox:
		return gpu.PresentModeMailbox, true
	case vk.PresentModeFifo:
		return gpu.PresentModeFifo, true
	case vk.PresentModeFifoRelaxed:
		return gpu.PresentModeFifoRelaxed, true
	}
	return 0, false
}

func vkLayout(l gpu.ImageLayout) vk.ImageLayout {
	switch l {
	case gpu.LayoutGeneral:
		return vk.ImageLayoutGeneral
	case gpu.LayoutColorAttachment:
		return vk.ImageLayoutColorAttachmentOptimal
	case gpu.LayoutDepthAttachment:
		return vk.ImageLayoutDepthStencilAttachmentOptimal
	case gpu.LayoutDepthReadOnly:
		return vk.ImageLayoutDepthStencilReadOnlyOptimal
	case gpu.LayoutShaderReadOnly:
		return vk.ImageLayoutShaderReadOnlyOptimal
	case gpu.LayoutTransferSrc:
		return vk.ImageLayoutTransferSrcOptimal
	case gpu.LayoutTransferDst:
		return vk.ImageLayoutTransferDstOptimal
	case gpu.LayoutPresentSrc:
		return vk.ImageLayoutPresentSrc
	}
	return vk.ImageLayoutUndefined
}

func vkStages(s gpu.PipelineStage) vk.PipelineStageFlags {
	var out vk.PipelineStageFlagBits
	bits := []struct {
		from gpu.PipelineStage
		to   vk.PipelineStageFlagBits
	}{
		{gpu.StageTopOfPipe, vk.PipelineStageTopOfPipeBit},
		{gpu.StageVertexShader, vk.PipelineStageVertexShaderBit},
		{gpu.StageFragmentShader, vk.PipelineStageFragmentShaderBit},
		{gpu.StageEarlyFragmentTests, vk.PipelineStageEarlyFragmentTestsBit},
		{gpu.StageLateFragmentTests, vk.PipelineStageLateFragmentTestsBit},
		{gpu.StageColorAttachmentOutput, vk.PipelineStageColorAttachmentOutputBit},
		{gpu.StageTransfer, vk.PipelineStageTransferBit},
		{gpu.StageBottomOfPipe, vk.PipelineStageBottomOfPipeBit},
		{gpu.StageAllCommands, vk.PipelineStageAllCommandsBit},
	}
	for _, b := range bits {
		if s&b.from != 0 {
			out |= b.to
		}
	}
	if out == 0 {
		out = vk.PipelineStageTopOfPipeBit
	}
	return vk.PipelineStageFlags(out)
}

func vkAccess(a gpu.Access) vk.AccessFlags {
	var out vk.AccessFlagBits
	bits := []struct {
		from gpu.Access
		to   vk.AccessFlagBits
	}{
		{gpu.AccessShaderRead, vk.AccessShaderReadBit},
		{gpu.AccessShaderWrite, vk.AccessShaderWriteBit},
		{gpu.AccessColorAttachmentRead, vk.AccessColorAttachmentReadBit},
		{gpu.AccessColorAttachmentWrite, vk.AccessColorAttachmentWriteBit},
		{gpu.AccessDepthAttachmentRead, vk.AccessDepthStencilAttachmentReadBit},
		{gpu.AccessDepthAttachmentWrite, vk.AccessDepthStencilAttachmentWriteBit},
		{gpu.AccessTransferRead, vk.AccessTransferReadBit},
		{gpu.AccessTransferWrite, vk.AccessTransferWriteBit},
		{gpu.AccessHostWrite, vk.AccessHostWriteBit},
		{gpu.AccessMemoryRead, vk.AccessMemoryReadBit},
	}
	for _, b := range bits {
		if a&b.from != 0 {
			out |= b.to
		}
	}
	return vk.AccessFlags(out)
}

func vkImageUsage(u gpu.ImageUsage) vk.ImageUsageFlags {
	var out vk.ImageUsageFlagBits
	if u&gpu.ImageUsageTransferSrc != 0 {
		out |= vk.ImageUsageTransferSrcBit
	}
	if u&gpu.ImageUsageTransferDst != 0 {
		out |= vk.ImageUsageTransferDstBit
	}
	if u&gpu.ImageUsageSampled != 0 {
		out |= vk.ImageUsageSampledBit
	}
	if u&gpu.ImageUsageStorage != 0 {
		out |= vk.ImageUsageStorageBit
	}
	if u&gpu.ImageUsageColorAttachment != 0 {
		out |= vk.ImageUsageColorAttachmentBit
	}
	if u&gpu.ImageUsageDepthAttachment != 0 {
		out |= vk.ImageUsageDepthStencilAttachmentBit
	}
	return vk.ImageUsageFlags(out)
}

func vkBufferUsage(u gpu.BufferUsage) vk.BufferUsageFlags {
	var out vk.BufferUsageFlagBits
	if u&gpu.BufferUsageTransferSrc != 0 {
		out |= vk.BufferUsageTransferSrcBit
	}
	if u&gpu.BufferUsageTransferDst != 0 {
		out |= vk.BufferUsageTransferDstBit
	}
	if u&gpu.BufferUsageUniform != 0 {
		out |= vk.BufferUsageUniformBufferBit
	}
	if u&gpu.BufferUsageStorage != 0 {
		out |= vk.BufferUsageStorageBufferBit
	}
	if u&gpu.BufferUsageIndex != 0 {
		out |= vk.BufferUsageIndexBufferBit
	}
	if u&gpu.BufferUsageVertex != 0 {
		out |= vk.BufferUsageVertexBufferBit
	}
	if u&gpu.BufferUsageDeviceAddress != 0 {
		out |= vk.BufferUsageShaderDeviceAddressBit
	}
	return vk.BufferUsageFlags(out)
}

func vkShaderStages(s gpu.ShaderStage) vk.ShaderStageFlags {
	var out vk.ShaderStageFlagBits
	if s&gpu.ShaderStageVertex != 0 {
		out |= vk.ShaderStageVertexBit
	}
	if s&gpu.ShaderStageFragment != 0 {
		out |= vk.ShaderStageFragmentBit
	}
	return vk.ShaderStageFlags(out)
}

func vkShaderStage(s gpu.ShaderStage) vk.ShaderStageFlagBits {
	if s == gpu.ShaderStageFragment {
		return vk.ShaderStageFragmentBit
	}
	return vk.ShaderStageVertexBit
}

func vkSamples(n uint32) vk.SampleCountFlagBits {
	switch n {
	case 2:
		return vk.SampleCount2Bit
	case 4:
		return vk.SampleCount4Bit
	case 8:
		return vk.SampleCount8Bit
	case 16:
		return vk.SampleCount16Bit
	}
	return vk.SampleCount1Bit
}

// maxSamples returns the highest count present in both flag sets.
func maxSamples(color, depth vk.SampleCountFlags) uint32 {
	both := vk.SampleCountFlagBits(color & depth)
	for _, n := range []uint32{16, 8, 4, 2} {
		if both&vkSamples(n) != 0 {
			return n
		}
	}
	return 1
}

func vkCullMode(c gpu.CullMode) vk.CullModeFlags {
	switch c {
	case gpu.CullFront:
		return vk.CullModeFlags(vk.CullModeFrontBit)
	case gpu.CullBack:
		return vk.CullModeFlags(vk.CullModeBackBit)
	}
	return vk.CullModeFlags(vk.CullModeNone)
}

func vkFrontFace(f gpu.FrontFace) vk.FrontFace {
	if f == gpu.FrontFaceClockwise {
		return vk.FrontFaceClockwise
	}
	return vk.FrontFaceCounterClockwise
}

func vkCompareOp(c gpu.CompareOp) vk.CompareOp {
	switch c {
	case gpu.CompareNever:
		return vk.CompareOpNever
	case gpu.CompareLess:
		return vk.CompareOpLess
	case gpu.CompareLessOrEqual:
		return vk.CompareOpLessOrEqual
	case gpu.CompareGreater:
		return vk.CompareOpGreater
	case gpu.CompareGreaterOrEqual:
		return vk.CompareOpGreaterOrEqual
	}
	return vk.CompareOpAlways
}

func vkTopology(t gpu.Topology) vk.PrimitiveTopology {
	if t == gpu.TopologyLineList {
		return vk.PrimitiveTopologyLineList
	}
	return vk.PrimitiveTopologyTriangleList
}

func vkFilter(f gpu.Filter) vk.Filter {
	if f == gpu.FilterNearest {
		return vk.FilterNearest
	}
	return vk.FilterLinear
}

func vkMipmapMode(f gpu.Filter) vk.SamplerMipmapMode {
	if f == gpu.FilterNearest {
		return vk.SamplerMipmapModeNearest
	}
	return vk.SamplerMipmapModeLinear
}

func vkAddressMode(m gpu.AddressMode) vk.SamplerAddressMode {
	switch m {
	case gpu.AddressMirroredRepeat:
		return vk.SamplerAddressModeMirroredRepeat
	case gpu.AddressClampToEdge:
		return vk.SamplerAddressModeClampToEdge
	case gpu.AddressClampToBorder:
		return vk.SamplerAddressModeClampToBorder
	}
	return vk.SamplerAddressModeRepeat
}

func vkLoadOp(op gpu.LoadOp) vk.AttachmentLoadOp {
	switch op {
	case gpu.LoadOpClear:
		return vk.AttachmentLoadOpClear
	case gpu.LoadOpLoad:
		return vk.AttachmentLoadOpLoad
	}
	return vk.AttachmentLoadOpDontCare
}

func aspectOf(f gpu.Format) vk.ImageAspectFlags {
	switch f {
	case gpu.FormatD32Float:
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	case gpu.FormatD24UnormS8Uint:
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit | vk.ImageAspectStencilBit)
	}
	return vk.ImageAspectFlags(vk.ImageAspectColorBit)
}

// VK_REMAINING_MIP_LEVELS and VK_REMAINING_ARRAY_LAYERS
const remaining = ^uint32(0)

// countOrRemaining maps the HAL's zero-means-rest convention onto Vulkan's.
func countOrRemaining(n uint32) uint32 {
	if n == 0 {
		return remaining
	}
	return n
}

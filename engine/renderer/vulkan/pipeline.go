package vulkan

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

type VulkanShaderModule struct {
	name   string
	Handle vk.ShaderModule
}

func (m *VulkanShaderModule) Name() string { return m.name }

type VulkanPipelineLayout struct {
	name   string
	Handle vk.PipelineLayout
}

func (l *VulkanPipelineLayout) Name() string { return l.name }

// VulkanPipeline is a graphics pipeline. The layout is shared and owned by
// whoever created it.
type VulkanPipeline struct {
	name   string
	layout *VulkanPipelineLayout
	Handle vk.Pipeline
}

func (p *VulkanPipeline) Name() string               { return p.name }
func (p *VulkanPipeline) Layout() gpu.PipelineLayout { return p.layout }

// CreateShaderModule wraps SPIR-V bytecode, a stream of little endian words.
func (d *Device) CreateShaderModule(name string, code []byte) (gpu.ShaderModule, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return nil, errors.Newf("shader %q: bytecode size %d is not a multiple of 4", name, len(code))
	}
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[i*4:])
	}
	info := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    words,
	}
	m := &VulkanShaderModule{name: name}
	if err := check("vkCreateShaderModule", vk.CreateShaderModule(d.LogicalDevice, &info, d.ctx.Allocator, &m.Handle)); err != nil {
		return nil, errors.Wrapf(err, "shader %q", name)
	}
	return m, nil
}

func (d *Device) DestroyShaderModule(m gpu.ShaderModule) {
	vm, ok := m.(*VulkanShaderModule)
	if !ok || vm == nil || vm.Handle == vk.NullShaderModule {
		return
	}
	vk.DestroyShaderModule(d.LogicalDevice, vm.Handle, d.ctx.Allocator)
	vm.Handle = vk.NullShaderModule
}

// CreatePipelineLayout builds a layout of the bindless set, when given, and
// one push constant range starting at zero.
func (d *Device) CreatePipelineLayout(desc gpu.PipelineLayoutDesc) (gpu.PipelineLayout, error) {
	if desc.PushConstantSize > d.limits.MaxPushConstant {
		return nil, errors.Newf("layout %q: %d bytes of push constants exceed the device limit of %d",
			desc.Name, desc.PushConstantSize, d.limits.MaxPushConstant)
	}
	info := vk.PipelineLayoutCreateInfo{
		SType: vk.StructureTypePipelineLayoutCreateInfo,
	}
	if set, ok := desc.Set.(*VulkanBindlessSet); ok && set != nil {
		info.SetLayoutCount = 1
		info.PSetLayouts = []vk.DescriptorSetLayout{set.Layout}
	}
	if desc.PushConstantSize > 0 {
		info.PushConstantRangeCount = 1
		info.PPushConstantRanges = []vk.PushConstantRange{{
			StageFlags: vkShaderStages(desc.PushStages),
			Offset:     0,
			Size:       desc.PushConstantSize,
		}}
	}
	l := &VulkanPipelineLayout{name: desc.Name}
	if err := check("vkCreatePipelineLayout", vk.CreatePipelineLayout(d.LogicalDevice, &info, d.ctx.Allocator, &l.Handle)); err != nil {
		return nil, errors.Wrapf(err, "pipeline layout %q", desc.Name)
	}
	return l, nil
}

func (d *Device) DestroyPipelineLayout(l gpu.PipelineLayout) {
	vl, ok := l.(*VulkanPipelineLayout)
	if !ok || vl == nil || vl.Handle == vk.NullPipelineLayout {
		return
	}
	vk.DestroyPipelineLayout(d.LogicalDevice, vl.Handle, d.ctx.Allocator)
	vl.Handle = vk.NullPipelineLayout
}

// CreateGraphicsPipeline builds a pipeline without vertex input: shaders pull
// their vertices through buffer addresses. Viewport and scissor are dynamic.
func (d *Device) CreateGraphicsPipeline(desc gpu.GraphicsPipelineDesc) (gpu.Pipeline, error) {
	layout, ok := desc.Layout.(*VulkanPipelineLayout)
	if !ok || layout == nil {
		return nil, errors.Newf("pipeline %q needs a layout", desc.Name)
	}
	rp, ok := desc.RenderPass.(*VulkanRenderPass)
	if !ok || rp == nil {
		return nil, errors.Newf("pipeline %q needs a render pass", desc.Name)
	}
	if len(desc.Stages) == 0 {
		return nil, errors.Newf("pipeline %q has no shader stages", desc.Name)
	}

	stages := make([]vk.PipelineShaderStageCreateInfo, 0, len(desc.Stages))
	for _, s := range desc.Stages {
		module, ok := s.Module.(*VulkanShaderModule)
		if !ok || module == nil {
			return nil, errors.Newf("pipeline %q: %s stage has no module", desc.Name, s.Stage)
		}
		entry := s.EntryPoint
		if entry == "" {
			entry = "main"
		}
		stages = append(stages, vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vkShaderStage(s.Stage),
			Module: module.Handle,
			PName:  VulkanSafeString(entry),
		})
	}

	vertexInput := vk.PipelineVertexInputStateCreateInfo{
		SType: vk.StructureTypePipelineVertexInputStateCreateInfo,
	}
	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               vkTopology(desc.Topology),
		PrimitiveRestartEnable: vk.False,
	}
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	rasterizer := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             vk.PolygonModeFill,
		LineWidth:               1.0,
		CullMode:                vkCullMode(desc.CullMode),
		FrontFace:               vkFrontFace(desc.FrontFace),
		DepthBiasEnable:         vk.False,
	}
	if desc.DepthBias {
		rasterizer.DepthBiasEnable = vk.True
		rasterizer.DepthBiasConstantFactor = desc.DepthBiasConst
		rasterizer.DepthBiasSlopeFactor = desc.DepthBiasSlope
	}

	multisampling := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		SampleShadingEnable:  vk.False,
		RasterizationSamples: vkSamples(desc.Samples),
		MinSampleShading:     1.0,
	}

	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:             vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:   vk.False,
		DepthWriteEnable:  vk.False,
		StencilTestEnable: vk.False,
	}
	if desc.DepthTest {
		depthStencil.DepthTestEnable = vk.True
		depthStencil.DepthCompareOp = vkCompareOp(desc.DepthCompare)
	}
	if desc.DepthWrite {
		depthStencil.DepthWriteEnable = vk.True
	}

	colorBlend := vk.PipelineColorBlendStateCreateInfo{
		SType:         vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable: vk.False,
		LogicOp:       vk.LogicOpCopy,
	}
	if desc.HasColor {
		attachment := vk.PipelineColorBlendAttachmentState{
			BlendEnable: vk.False,
			ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit |
				vk.ColorComponentBBit | vk.ColorComponentABit),
		}
		if desc.Blend == gpu.BlendAlpha {
			attachment.BlendEnable = vk.True
			attachment.SrcColorBlendFactor = vk.BlendFactorSrcAlpha
			attachment.DstColorBlendFactor = vk.BlendFactorOneMinusSrcAlpha
			attachment.ColorBlendOp = vk.BlendOpAdd
			attachment.SrcAlphaBlendFactor = vk.BlendFactorOne
			attachment.DstAlphaBlendFactor = vk.BlendFactorOneMinusSrcAlpha
			attachment.AlphaBlendOp = vk.BlendOpAdd
		}
		colorBlend.AttachmentCount = 1
		colorBlend.PAttachments = []vk.PipelineColorBlendAttachmentState{attachment}
	}

	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
	}
	dynamicState := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	info := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInput,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizer,
		PMultisampleState:   &multisampling,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlend,
		PDynamicState:       &dynamicState,
		Layout:              layout.Handle,
		RenderPass:          rp.Handle,
		Subpass:             0,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}
	pipelines := make([]vk.Pipeline, 1)
	res := vk.CreateGraphicsPipelines(d.LogicalDevice, vk.NullPipelineCache, 1,
		[]vk.GraphicsPipelineCreateInfo{info}, d.ctx.Allocator, pipelines)
	if err := check("vkCreateGraphicsPipelines", res); err != nil {
		return nil, errors.Wrapf(err, "pipeline %q", desc.Name)
	}
	core.LogDebug("graphics pipeline %q created", desc.Name)
	return &VulkanPipeline{name: desc.Name, layout: layout, Handle: pipelines[0]}, nil
}

func (d *Device) DestroyPipeline(p gpu.Pipeline) {
	vp, ok := p.(*VulkanPipeline)
	if !ok || vp == nil || vp.Handle == vk.NullPipeline {
		return
	}
	vk.DestroyPipeline(d.LogicalDevice, vp.Handle, d.ctx.Allocator)
	vp.Handle = vk.NullPipeline
}

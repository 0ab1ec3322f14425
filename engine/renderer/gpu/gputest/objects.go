package gputest

import "github.com/spaghettifunk/lumen/engine/renderer/gpu"

type object struct {
	kind      string
	name      string
	destroyed bool
}

func (o *object) Name() string { return o.name }

type Buffer struct {
	object
	desc    gpu.BufferDesc
	address uint64
	Data    []byte
}

func (b *Buffer) Size() uint64    { return b.desc.Size }
func (b *Buffer) Address() uint64 { return b.address }

type Image struct {
	object
	desc   gpu.ImageDesc
	Layout gpu.ImageLayout
	// Set by the last write until a barrier from that stage and access
	// makes it visible.
	writeStage  gpu.PipelineStage
	writeAccess gpu.Access
}

func (i *Image) wrote(stage gpu.PipelineStage, access gpu.Access) {
	i.writeStage, i.writeAccess = stage, access
}

func (i *Image) flushedBy(b gpu.Barrier, ib gpu.ImageBarrier) bool {
	if i.writeStage == 0 {
		return true
	}
	stageOK := b.SrcStage&(i.writeStage|gpu.StageAllCommands) != 0
	return stageOK && ib.SrcAccess&i.writeAccess != 0
}

func (i *Image) Desc() gpu.ImageDesc { return i.desc }

type ImageView struct {
	object
	desc gpu.ImageViewDesc
}

func (v *ImageView) Image() gpu.Image { return v.desc.Image }

type Sampler struct {
	object
	Desc gpu.SamplerDesc
}

type ShaderModule struct {
	object
	Code []byte
}

type PipelineLayout struct {
	object
	Desc gpu.PipelineLayoutDesc
}

type Pipeline struct {
	object
	Desc gpu.GraphicsPipelineDesc
}

func (p *Pipeline) Layout() gpu.PipelineLayout { return p.Desc.Layout }

type RenderPass struct {
	object
	Desc gpu.RenderPassDesc
}

type Framebuffer struct {
	object
	Desc gpu.FramebufferDesc
}

func (f *Framebuffer) Extent() gpu.Extent2D { return f.Desc.Extent }

type Fence struct {
	object
	Signaled bool
	// Pending is set between a submission and the wait that observes it.
	Pending bool
}

type Semaphore struct {
	object
}

type BindlessSet struct {
	object
	Desc    gpu.BindlessSetDesc
	Written map[gpu.DescriptorKind]map[uint32]gpu.DescriptorWrite
}

type Swapchain struct {
	object
	desc   gpu.SwapchainDesc
	images []gpu.Image
}

func (s *Swapchain) Images() []gpu.Image          { return s.images }
func (s *Swapchain) Format() gpu.SurfaceFormat    { return s.desc.Format }
func (s *Swapchain) Extent() gpu.Extent2D         { return s.desc.Extent }
func (s *Swapchain) PresentMode() gpu.PresentMode { return s.desc.PresentMode }

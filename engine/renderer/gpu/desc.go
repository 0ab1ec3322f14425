package gpu

type BufferDesc struct {
	Name   string
	Size   uint64
	Usage  BufferUsage
	Memory MemoryKind
}

type ImageDesc struct {
	Name    string
	Format  Format
	Extent  Extent2D
	Mips    uint32
	Layers  uint32
	Samples uint32
	Usage   ImageUsage
}

type ImageViewDesc struct {
	Name      string
	Image     Image
	BaseLayer uint32
	// Zero selects every layer from BaseLayer, viewed as an array.
	LayerCount uint32
	BaseMip    uint32
	MipCount   uint32
}

type SamplerDesc struct {
	Name         string
	MagFilter    Filter
	MinFilter    Filter
	MipFilter    Filter
	AddressModeU AddressMode
	AddressModeV AddressMode
	Anisotropy   float32
	// Compare enables depth comparison with CompareOp.
	Compare   bool
	CompareOp CompareOp
	MaxLod    float32
}

type BindlessSetDesc struct {
	Name          string
	StorageImages uint32
	SampledImages uint32
	Samplers      uint32
}

type DescriptorKind uint32

const (
	DescriptorStorageImage DescriptorKind = iota
	DescriptorSampledImage
	DescriptorSampler
)

func (k DescriptorKind) String() string {
	switch k {
	case DescriptorStorageImage:
		return "storage-image"
	case DescriptorSampledImage:
		return "sampled-image"
	case DescriptorSampler:
		return "sampler"
	}
	return "unknown"
}

// DescriptorWrite stores one view or sampler at Index of the array selected
// by Kind.
type DescriptorWrite struct {
	Kind    DescriptorKind
	Index   uint32
	View    ImageView
	Layout  ImageLayout
	Sampler Sampler
}

type PipelineLayoutDesc struct {
	Name             string
	Set              BindlessSet
	PushConstantSize uint32
	PushStages       ShaderStage
}

type ShaderStageDesc struct {
	Stage      ShaderStage
	Module     ShaderModule
	EntryPoint string
}

type BlendMode uint32

const (
	BlendNone BlendMode = iota
	// Straight alpha: src*a + dst*(1-a).
	BlendAlpha
)

type GraphicsPipelineDesc struct {
	Name         string
	Layout       PipelineLayout
	RenderPass   RenderPass
	Stages       []ShaderStageDesc
	Topology     Topology
	CullMode     CullMode
	FrontFace    FrontFace
	DepthTest    bool
	DepthWrite   bool
	DepthCompare CompareOp
	// Constant and slope scaled depth bias, used by shadow casters.
	DepthBias      bool
	DepthBiasConst float32
	DepthBiasSlope float32
	Blend          BlendMode
	Samples        uint32
	// No color output when false, as in a depth-only pass.
	HasColor bool
}

type RenderPassDesc struct {
	Name string
	// FormatUndefined omits the attachment.
	ColorFormat  Format
	DepthFormat  Format
	Samples      uint32
	ColorLoad    LoadOp
	DepthLoad    LoadOp
	StoreDepth   bool
	ColorInitial ImageLayout
	ColorFinal   ImageLayout
	DepthInitial ImageLayout
	DepthFinal   ImageLayout
}

type FramebufferDesc struct {
	Name        string
	RenderPass  RenderPass
	Attachments []ImageView
	Extent      Extent2D
}

type SwapchainDesc struct {
	Name        string
	ImageCount  uint32
	Format      SurfaceFormat
	Extent      Extent2D
	PresentMode PresentMode
}

type SubmitInfo struct {
	Command CommandBuffer
	// Wait and Signal may be nil.
	Wait      Semaphore
	WaitStage PipelineStage
	Signal    Semaphore
	Fence     Fence
}

type ImageBarrier struct {
	Image     Image
	OldLayout ImageLayout
	NewLayout ImageLayout
	SrcAccess Access
	DstAccess Access
	BaseLayer uint32
	// Zero covers every layer or mip from the base.
	LayerCount uint32
	BaseMip    uint32
	MipCount   uint32
}

type BufferBarrier struct {
	Buffer    Buffer
	SrcAccess Access
	DstAccess Access
	Offset    uint64
	// Zero covers the rest of the buffer.
	Size uint64
}

type Barrier struct {
	SrcStage PipelineStage
	DstStage PipelineStage
	Images   []ImageBarrier
	Buffers  []BufferBarrier
}

type BufferCopy struct {
	SrcOffset uint64
	DstOffset uint64
	Size      uint64
}

type BufferImageCopy struct {
	BufferOffset uint64
	Mip          uint32
	BaseLayer    uint32
	LayerCount   uint32
	Extent       Extent2D
}

// TransitionImage is shorthand for a single image layout change.
func TransitionImage(img Image, from, to ImageLayout, srcStage, dstStage PipelineStage, srcAccess, dstAccess Access) Barrier {
	return Barrier{
		SrcStage: srcStage,
		DstStage: dstStage,
		Images: []ImageBarrier{{
			Image:     img,
			OldLayout: from,
			NewLayout: to,
			SrcAccess: srcAccess,
			DstAccess: dstAccess,
		}},
	}
}

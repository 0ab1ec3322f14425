package gpu

type Format uint32

const (
	FormatUndefined Format = iota
	FormatRGBA8Unorm
	FormatRGBA8Srgb
	FormatBGRA8Unorm
	FormatBGRA8Srgb
	FormatRGBA16Float
	FormatD32Float
	FormatD24UnormS8Uint
	FormatBC1RGBASrgb
	FormatBC3Srgb
	FormatBC3Unorm
	FormatBC5Unorm
	FormatBC7Srgb
	FormatBC7Unorm
)

// IsDepth reports whether the format carries a depth aspect.
func (f Format) IsDepth() bool {
	return f == FormatD32Float || f == FormatD24UnormS8Uint
}

// IsBlockCompressed reports whether texels are stored in 4x4 blocks.
func (f Format) IsBlockCompressed() bool {
	switch f {
	case FormatBC1RGBASrgb, FormatBC3Srgb, FormatBC3Unorm, FormatBC5Unorm, FormatBC7Srgb, FormatBC7Unorm:
		return true
	}
	return false
}

// BlockSize is the number of bytes for one 4x4 block, or one texel for
// uncompressed formats.
func (f Format) BlockSize() uint32 {
	switch f {
	case FormatBC1RGBASrgb:
		return 8
	case FormatBC3Srgb, FormatBC3Unorm, FormatBC5Unorm, FormatBC7Srgb, FormatBC7Unorm:
		return 16
	case FormatRGBA16Float:
		return 8
	case FormatRGBA8Unorm, FormatRGBA8Srgb, FormatBGRA8Unorm, FormatBGRA8Srgb, FormatD32Float, FormatD24UnormS8Uint:
		return 4
	}
	return 0
}

// MipSize returns the byte size of one mip level of a 2D image.
func (f Format) MipSize(width, height uint32) uint64 {
	if f.IsBlockCompressed() {
		bw := (max(width, 1) + 3) / 4
		bh := (max(height, 1) + 3) / 4
		return uint64(bw) * uint64(bh) * uint64(f.BlockSize())
	}
	return uint64(max(width, 1)) * uint64(max(height, 1)) * uint64(f.BlockSize())
}

type ColorSpace uint32

const (
	ColorSpaceSRGBNonlinear ColorSpace = iota
	ColorSpaceExtendedSRGBLinear
	ColorSpaceHDR10
)

type SurfaceFormat struct {
	Format     Format
	ColorSpace ColorSpace
}

type PresentMode uint32

const (
	PresentModeImmediate PresentMode = iota
	PresentModeMailbox
	PresentModeFifo
	PresentModeFifoRelaxed
)

func (m PresentMode) String() string {
	switch m {
	case PresentModeImmediate:
		return "immediate"
	case PresentModeMailbox:
		return "mailbox"
	case PresentModeFifo:
		return "fifo"
	case PresentModeFifoRelaxed:
		return "fifo-relaxed"
	}
	return "unknown"
}

type ImageLayout uint32

const (
	LayoutUndefined ImageLayout = iota
	LayoutGeneral
	LayoutColorAttachment
	LayoutDepthAttachment
	LayoutDepthReadOnly
	LayoutShaderReadOnly
	LayoutTransferSrc
	LayoutTransferDst
	LayoutPresentSrc
)

func (l ImageLayout) String() string {
	switch l {
	case LayoutUndefined:
		return "undefined"
	case LayoutGeneral:
		return "general"
	case LayoutColorAttachment:
		return "color-attachment"
	case LayoutDepthAttachment:
		return "depth-attachment"
	case LayoutDepthReadOnly:
		return "depth-read-only"
	case LayoutShaderReadOnly:
		return "shader-read-only"
	case LayoutTransferSrc:
		return "transfer-src"
	case LayoutTransferDst:
		return "transfer-dst"
	case LayoutPresentSrc:
		return "present-src"
	}
	return "unknown"
}

type PipelineStage uint32

const (
	StageTopOfPipe PipelineStage = 1 << iota
	StageVertexShader
	StageFragmentShader
	StageEarlyFragmentTests
	StageLateFragmentTests
	StageColorAttachmentOutput
	StageTransfer
	StageBottomOfPipe
	StageAllCommands
)

type Access uint32

const (
	AccessNone Access = 0
	AccessShaderRead Access = 1 << (iota - 1)
	AccessShaderWrite
	AccessColorAttachmentRead
	AccessColorAttachmentWrite
	AccessDepthAttachmentRead
	AccessDepthAttachmentWrite
	AccessTransferRead
	AccessTransferWrite
	AccessHostWrite
	AccessMemoryRead
)

type Aspect uint32

const (
	AspectColor Aspect = 1 << iota
	AspectDepth
)

type ImageUsage uint32

const (
	ImageUsageTransferSrc ImageUsage = 1 << iota
	ImageUsageTransferDst
	ImageUsageSampled
	ImageUsageStorage
	ImageUsageColorAttachment
	ImageUsageDepthAttachment
)

type BufferUsage uint32

const (
	BufferUsageTransferSrc BufferUsage = 1 << iota
	BufferUsageTransferDst
	BufferUsageUniform
	BufferUsageStorage
	BufferUsageIndex
	BufferUsageVertex
	// Exposes the buffer to shaders through a 64-bit device address.
	BufferUsageDeviceAddress
)

type MemoryKind uint32

const (
	MemoryDeviceLocal MemoryKind = iota
	MemoryHostVisible
)

type ShaderStage uint32

const (
	ShaderStageVertex ShaderStage = 1 << iota
	ShaderStageFragment

	ShaderStageAllGraphics = ShaderStageVertex | ShaderStageFragment
)

func (s ShaderStage) String() string {
	switch s {
	case ShaderStageVertex:
		return "vertex"
	case ShaderStageFragment:
		return "fragment"
	case ShaderStageAllGraphics:
		return "vertex+fragment"
	}
	return "unknown"
}

type CullMode uint32

const (
	CullNone CullMode = iota
	CullFront
	CullBack
)

type FrontFace uint32

const (
	FrontFaceCounterClockwise FrontFace = iota
	FrontFaceClockwise
)

type CompareOp uint32

const (
	CompareNever CompareOp = iota
	CompareLess
	CompareLessOrEqual
	CompareGreater
	CompareGreaterOrEqual
	CompareAlways
)

type Topology uint32

const (
	TopologyTriangleList Topology = iota
	TopologyLineList
)

type Filter uint32

const (
	FilterNearest Filter = iota
	FilterLinear
)

type AddressMode uint32

const (
	AddressRepeat AddressMode = iota
	AddressMirroredRepeat
	AddressClampToEdge
	AddressClampToBorder
)

type LoadOp uint32

const (
	LoadOpDontCare LoadOp = iota
	LoadOpClear
	LoadOpLoad
)

type Extent2D struct {
	Width  uint32
	Height uint32
}

// Empty reports whether the extent has no area, as with a minimized window.
func (e Extent2D) Empty() bool {
	return e.Width == 0 || e.Height == 0
}

// Scale multiplies both sides by s, keeping at least one texel per side.
func (e Extent2D) Scale(s float32) Extent2D {
	return Extent2D{
		Width:  max(uint32(float32(e.Width)*s), 1),
		Height: max(uint32(float32(e.Height)*s), 1),
	}
}

type Extent3D struct {
	Width  uint32
	Height uint32
	Depth  uint32
}

type Offset3D struct {
	X, Y, Z int32
}

type Viewport struct {
	X, Y, Width, Height float32
	MinDepth, MaxDepth  float32
}

type Rect2D struct {
	X, Y   int32
	Extent Extent2D
}

type ClearValue struct {
	Color   [4]float32
	Depth   float32
	Stencil uint32
	// IsDepth selects Depth/Stencil instead of Color.
	IsDepth bool
}

func ClearColor(r, g, b, a float32) ClearValue {
	return ClearValue{Color: [4]float32{r, g, b, a}}
}

func ClearDepth(depth float32) ClearValue {
	return ClearValue{Depth: depth, IsDepth: true}
}

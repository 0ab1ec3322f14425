// Package gpu describes the explicit graphics device the renderer drives:
// memory objects, command recording, synchronization and presentation. The
// Vulkan backend implements it; tests use the recording device in gputest.
package gpu

// Object is implemented by every device-owned handle.
type Object interface {
	Name() string
}

type Buffer interface {
	Object
	Size() uint64
	// Address is the device address when created with
	// BufferUsageDeviceAddress, zero otherwise.
	Address() uint64
}

type Image interface {
	Object
	Desc() ImageDesc
}

type ImageView interface {
	Object
	Image() Image
}

type Sampler interface {
	Object
}

type ShaderModule interface {
	Object
}

type PipelineLayout interface {
	Object
}

type Pipeline interface {
	Object
	Layout() PipelineLayout
}

type RenderPass interface {
	Object
}

type Framebuffer interface {
	Object
	Extent() Extent2D
}

type Fence interface {
	Object
}

type Semaphore interface {
	Object
}

// BindlessSet is one descriptor set holding the storage image, sampled image
// and sampler arrays at bindings 0, 1 and 2.
type BindlessSet interface {
	Object
}

type Swapchain interface {
	Object
	Images() []Image
	Format() SurfaceFormat
	Extent() Extent2D
	PresentMode() PresentMode
}

type Limits struct {
	MaxStorageImages uint32
	MaxSampledImages uint32
	MaxSamplers      uint32
	// Highest color+depth sample count supported by framebuffers.
	MaxSamples      uint32
	MaxPushConstant uint32
	DepthFormat     Format
}

type SurfaceCapabilities struct {
	MinImageCount uint32
	// Zero means there is no upper bound.
	MaxImageCount uint32
	// Width of 0xFFFFFFFF means the surface size follows the swapchain.
	CurrentExtent Extent2D
	MinExtent     Extent2D
	MaxExtent     Extent2D
	Formats       []SurfaceFormat
	PresentModes  []PresentMode
}

// Device creates and destroys GPU objects and talks to the graphics queue.
// Destroy methods accept nil and do nothing.
type Device interface {
	Limits() Limits

	CreateBuffer(desc BufferDesc) (Buffer, error)
	DestroyBuffer(b Buffer)
	// WriteBuffer copies data into a host-visible buffer.
	WriteBuffer(b Buffer, offset uint64, data []byte) error

	CreateImage(desc ImageDesc) (Image, error)
	DestroyImage(img Image)
	CreateImageView(desc ImageViewDesc) (ImageView, error)
	DestroyImageView(v ImageView)
	CreateSampler(desc SamplerDesc) (Sampler, error)
	DestroySampler(s Sampler)

	CreateBindlessSet(desc BindlessSetDesc) (BindlessSet, error)
	DestroyBindlessSet(set BindlessSet)
	WriteDescriptors(set BindlessSet, writes []DescriptorWrite)

	CreateShaderModule(name string, code []byte) (ShaderModule, error)
	DestroyShaderModule(m ShaderModule)
	CreatePipelineLayout(desc PipelineLayoutDesc) (PipelineLayout, error)
	DestroyPipelineLayout(l PipelineLayout)
	CreateGraphicsPipeline(desc GraphicsPipelineDesc) (Pipeline, error)
	DestroyPipeline(p Pipeline)

	CreateRenderPass(desc RenderPassDesc) (RenderPass, error)
	DestroyRenderPass(rp RenderPass)
	CreateFramebuffer(desc FramebufferDesc) (Framebuffer, error)
	DestroyFramebuffer(fb Framebuffer)

	CreateCommandBuffer(name string) (CommandBuffer, error)
	DestroyCommandBuffer(cmd CommandBuffer)

	CreateFence(name string, signaled bool) (Fence, error)
	DestroyFence(f Fence)
	// WaitFence blocks for at most timeout nanoseconds and returns
	// core.ErrFenceTimeout when the fence did not signal in time.
	WaitFence(f Fence, timeout uint64) error
	ResetFence(f Fence) error
	CreateSemaphore(name string) (Semaphore, error)
	DestroySemaphore(s Semaphore)

	Submit(info SubmitInfo) error
	WaitIdle() error

	SurfaceCapabilities() (SurfaceCapabilities, error)
	CreateSwapchain(desc SwapchainDesc) (Swapchain, error)
	DestroySwapchain(sc Swapchain)
	// AcquireNextImage returns core.ErrSwapchainOutOfDate when the surface
	// no longer matches the swapchain.
	AcquireNextImage(sc Swapchain, timeout uint64, signal Semaphore) (uint32, error)
	Present(sc Swapchain, imageIndex uint32, wait Semaphore) error
}

// CommandBuffer records work for later submission. Recording calls only
// fail at End.
type CommandBuffer interface {
	Object
	Reset() error
	Begin(oneShot bool) error
	End() error

	PipelineBarrier(b Barrier)
	CopyBuffer(src, dst Buffer, regions []BufferCopy)
	CopyBufferToImage(src Buffer, dst Image, layout ImageLayout, regions []BufferImageCopy)
	// UpdateBuffer writes at most 65536 bytes inline from the command stream.
	UpdateBuffer(dst Buffer, offset uint64, data []byte)
	ClearColorImage(img Image, layout ImageLayout, color [4]float32)
	ResolveImage(src Image, srcLayout ImageLayout, dst Image, dstLayout ImageLayout, extent Extent2D)
	BlitImage(src Image, srcLayout ImageLayout, srcExtent Extent2D, dst Image, dstLayout ImageLayout, dstExtent Extent2D)

	BeginRenderPass(rp RenderPass, fb Framebuffer, clears []ClearValue)
	EndRenderPass()
	SetViewport(v Viewport)
	SetScissor(r Rect2D)
	BindPipeline(p Pipeline)
	BindBindlessSet(layout PipelineLayout, set BindlessSet)
	BindIndexBuffer(b Buffer, offset uint64)
	PushConstants(layout PipelineLayout, stages ShaderStage, offset uint32, data []byte)
	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)
}

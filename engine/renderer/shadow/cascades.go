// Package shadow renders the directional light's depth into three cascades
// covering the near, middle and far slices of the camera frustum.
package shadow

import (
	"fmt"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/descriptor"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

const Layers = 3

// Frustum describes the camera whose view the cascades cover.
type Frustum struct {
	View   mgl32.Mat4
	FovY   float32
	Aspect float32
	Near   float32
	Far    float32
}

type Cascades struct {
	device      gpu.Device
	descriptors *descriptor.Manager
	size        uint32
	format      gpu.Format

	image        gpu.Image
	layerViews   [Layers]gpu.ImageView
	pass         gpu.RenderPass
	framebuffers [Layers]gpu.Framebuffer

	debugSampler   gpu.Sampler
	compareSampler gpu.Sampler

	layerSlots   [Layers]uint32
	slotsLive    int
	debugSlot    uint32
	compareSlot  uint32
	samplersLive int

	matrices [Layers]mgl32.Mat4
	splits   [Layers]float32
}

// New creates the depth array, a render target per layer and both samplers,
// and registers every layer and sampler with the bindless set. A failure
// releases whatever was created.
func New(device gpu.Device, descriptors *descriptor.Manager, size uint32, format gpu.Format) (*Cascades, error) {
	c := &Cascades{
		device:      device,
		descriptors: descriptors,
		size:        size,
		format:      format,
	}
	if err := c.create(); err != nil {
		if derr := c.Destroy(); derr != nil {
			core.LogError("shadow: releasing partial cascades: %s", derr)
		}
		return nil, err
	}
	return c, nil
}

func (c *Cascades) create() error {
	var err error
	c.image, err = c.device.CreateImage(gpu.ImageDesc{
		Name:    "shadow-cascades",
		Format:  c.format,
		Extent:  gpu.Extent2D{Width: c.size, Height: c.size},
		Mips:    1,
		Layers:  Layers,
		Samples: 1,
		Usage:   gpu.ImageUsageDepthAttachment | gpu.ImageUsageSampled,
	})
	if err != nil {
		return errors.Wrap(err, "creating shadow image")
	}

	c.pass, err = c.device.CreateRenderPass(gpu.RenderPassDesc{
		Name:         "shadow",
		DepthFormat:  c.format,
		Samples:      1,
		DepthLoad:    gpu.LoadOpClear,
		StoreDepth:   true,
		DepthInitial: gpu.LayoutDepthAttachment,
		DepthFinal:   gpu.LayoutDepthAttachment,
	})
	if err != nil {
		return errors.Wrap(err, "creating shadow render pass")
	}

	for i := 0; i < Layers; i++ {
		c.layerViews[i], err = c.device.CreateImageView(gpu.ImageViewDesc{
			Name:       fmt.Sprintf("shadow-layer-%d", i),
			Image:      c.image,
			BaseLayer:  uint32(i),
			LayerCount: 1,
			MipCount:   1,
		})
		if err != nil {
			return errors.Wrapf(err, "creating shadow layer view %d", i)
		}
		c.framebuffers[i], err = c.device.CreateFramebuffer(gpu.FramebufferDesc{
			Name:        fmt.Sprintf("shadow-layer-%d", i),
			RenderPass:  c.pass,
			Attachments: []gpu.ImageView{c.layerViews[i]},
			Extent:      gpu.Extent2D{Width: c.size, Height: c.size},
		})
		if err != nil {
			return errors.Wrapf(err, "creating shadow framebuffer %d", i)
		}
	}

	c.debugSampler, err = c.device.CreateSampler(gpu.SamplerDesc{
		Name:         "shadow-debug",
		MagFilter:    gpu.FilterLinear,
		MinFilter:    gpu.FilterLinear,
		AddressModeU: gpu.AddressClampToEdge,
		AddressModeV: gpu.AddressClampToEdge,
		MaxLod:       1,
	})
	if err != nil {
		return errors.Wrap(err, "creating shadow debug sampler")
	}
	c.compareSampler, err = c.device.CreateSampler(gpu.SamplerDesc{
		Name:         "shadow-compare",
		MagFilter:    gpu.FilterLinear,
		MinFilter:    gpu.FilterLinear,
		AddressModeU: gpu.AddressClampToBorder,
		AddressModeV: gpu.AddressClampToBorder,
		Compare:      true,
		CompareOp:    gpu.CompareLessOrEqual,
		MaxLod:       1,
	})
	if err != nil {
		return errors.Wrap(err, "creating shadow compare sampler")
	}

	for i := 0; i < Layers; i++ {
		if c.layerSlots[i], err = c.descriptors.AddSampledImage(c.layerViews[i]); err != nil {
			return errors.Wrapf(err, "registering shadow layer %d", i)
		}
		c.slotsLive++
	}
	if c.debugSlot, err = c.descriptors.AddSampler(c.debugSampler); err != nil {
		return errors.Wrap(err, "registering shadow debug sampler")
	}
	c.samplersLive++
	if c.compareSlot, err = c.descriptors.AddSampler(c.compareSampler); err != nil {
		return errors.Wrap(err, "registering shadow compare sampler")
	}
	c.samplersLive++
	return nil
}

// Destroy releases the descriptor slots and every GPU object. It may be
// called on a partially created instance. GPU objects are destroyed even
// when a slot release fails; the release errors are returned combined.
func (c *Cascades) Destroy() error {
	var errs error
	if c.samplersLive == 2 {
		if err := c.descriptors.ReleaseSampler(c.compareSlot); err != nil {
			errs = errors.CombineErrors(errs, errors.Wrap(err, "releasing shadow compare sampler"))
		}
	}
	if c.samplersLive >= 1 {
		if err := c.descriptors.ReleaseSampler(c.debugSlot); err != nil {
			errs = errors.CombineErrors(errs, errors.Wrap(err, "releasing shadow debug sampler"))
		}
	}
	c.samplersLive = 0
	for i := c.slotsLive - 1; i >= 0; i-- {
		if err := c.descriptors.ReleaseSampledImage(c.layerSlots[i]); err != nil {
			errs = errors.CombineErrors(errs, errors.Wrapf(err, "releasing shadow layer %d", i))
		}
	}
	c.slotsLive = 0

	c.device.DestroySampler(c.compareSampler)
	c.device.DestroySampler(c.debugSampler)
	c.compareSampler, c.debugSampler = nil, nil
	for i := Layers - 1; i >= 0; i-- {
		c.device.DestroyFramebuffer(c.framebuffers[i])
		c.device.DestroyImageView(c.layerViews[i])
		c.framebuffers[i], c.layerViews[i] = nil, nil
	}
	c.device.DestroyRenderPass(c.pass)
	c.device.DestroyImage(c.image)
	c.pass, c.image = nil, nil
	return errs
}

func (c *Cascades) RenderPass() gpu.RenderPass { return c.pass }
func (c *Cascades) Image() gpu.Image           { return c.image }
func (c *Cascades) Size() uint32               { return c.size }

// LayerSlots are the sampled image slots of the near, middle and far layers.
func (c *Cascades) LayerSlots() [Layers]uint32 { return c.layerSlots }

func (c *Cascades) DebugSamplerSlot() uint32   { return c.debugSlot }
func (c *Cascades) CompareSamplerSlot() uint32 { return c.compareSlot }

// Matrices returns the light view-projection of each layer from the last
// Update.
func (c *Cascades) Matrices() [Layers]mgl32.Mat4 { return c.matrices }

// Splits returns the far distance of each layer from the last Update.
func (c *Cascades) Splits() [Layers]float32 { return c.splits }

// Update fits an orthographic light projection around each slice of the
// camera frustum. splits are the far view-space distances of the near,
// middle and far slices; the last one is clamped to the camera far plane.
func (c *Cascades) Update(f Frustum, lightDir mgl32.Vec3, splits [Layers]float32) {
	prev := f.Near
	for i := 0; i < Layers; i++ {
		far := min(splits[i], f.Far)
		if i == Layers-1 {
			far = f.Far
		}
		c.matrices[i] = FitSlice(f, prev, far, lightDir, c.size)
		c.splits[i] = far
		prev = far
	}
}

// FitSlice returns the light view-projection covering the frustum slice
// between near and far. The projection is sized by the slice's bounding
// sphere and snapped to whole shadow map texels so it does not shimmer while
// the camera moves.
func FitSlice(f Frustum, near, far float32, lightDir mgl32.Vec3, size uint32) mgl32.Mat4 {
	corners := sliceCorners(f, near, far)
	var center mgl32.Vec3
	for _, p := range corners {
		center = center.Add(p)
	}
	center = center.Mul(1.0 / float32(len(corners)))

	var radius float32
	for _, p := range corners {
		radius = max(radius, p.Sub(center).Len())
	}
	radius = float32(math.Ceil(float64(radius)*16) / 16)

	dir := lightDir.Normalize()
	up := mgl32.Vec3{0, 1, 0}
	if math.Abs(float64(dir.Dot(up))) > 0.99 {
		up = mgl32.Vec3{0, 0, 1}
	}
	eye := center.Sub(dir.Mul(radius * 2))
	lightView := mgl32.LookAtV(eye, center, up)
	proj := gpu.ClipCorrection.Mul4(mgl32.Ortho(-radius, radius, -radius, radius, 0, radius*4))

	// snap the projected world origin onto the texel grid
	m := proj.Mul4(lightView)
	half := float32(size) / 2
	origin := m.Mul4x1(mgl32.Vec4{0, 0, 0, 1})
	ox, oy := origin.X()*half, origin.Y()*half
	dx := (float32(math.Round(float64(ox))) - ox) / half
	dy := (float32(math.Round(float64(oy))) - oy) / half
	proj[12] += dx
	proj[13] += dy
	return proj.Mul4(lightView)
}

// sliceCorners returns the world-space corners of the frustum between the
// view-space distances near and far.
func sliceCorners(f Frustum, near, far float32) [8]mgl32.Vec3 {
	tanY := float32(math.Tan(float64(f.FovY) / 2))
	tanX := tanY * f.Aspect
	inv := f.View.Inv()
	var out [8]mgl32.Vec3
	i := 0
	for _, d := range [2]float32{near, far} {
		for _, sy := range [2]float32{-1, 1} {
			for _, sx := range [2]float32{-1, 1} {
				// the camera looks down -z in view space
				p := inv.Mul4x1(mgl32.Vec4{sx * tanX * d, sy * tanY * d, -d, 1})
				out[i] = p.Vec3()
				i++
			}
		}
	}
	return out
}

// Record renders the three layers. The whole array is moved to the depth
// attachment layout, each layer is cleared and drawn by draw with its light
// matrix, and the array ends in the shader read-only layout for the main
// pass.
func (c *Cascades) Record(cmd gpu.CommandBuffer, draw func(layer int, lightViewProj mgl32.Mat4)) {
	cmd.PipelineBarrier(gpu.Barrier{
		SrcStage: gpu.StageFragmentShader,
		DstStage: gpu.StageEarlyFragmentTests | gpu.StageLateFragmentTests,
		Images: []gpu.ImageBarrier{{
			Image:     c.image,
			OldLayout: gpu.LayoutUndefined,
			NewLayout: gpu.LayoutDepthAttachment,
			SrcAccess: gpu.AccessShaderRead,
			DstAccess: gpu.AccessDepthAttachmentRead | gpu.AccessDepthAttachmentWrite,
		}},
	})

	extent := gpu.Extent2D{Width: c.size, Height: c.size}
	for i := 0; i < Layers; i++ {
		cmd.BeginRenderPass(c.pass, c.framebuffers[i], []gpu.ClearValue{gpu.ClearDepth(1)})
		cmd.SetViewport(gpu.Viewport{Width: float32(c.size), Height: float32(c.size), MaxDepth: 1})
		cmd.SetScissor(gpu.Rect2D{Extent: extent})
		draw(i, c.matrices[i])
		cmd.EndRenderPass()
	}

	cmd.PipelineBarrier(gpu.Barrier{
		SrcStage: gpu.StageLateFragmentTests,
		DstStage: gpu.StageFragmentShader,
		Images: []gpu.ImageBarrier{{
			Image:     c.image,
			OldLayout: gpu.LayoutDepthAttachment,
			NewLayout: gpu.LayoutShaderReadOnly,
			SrcAccess: gpu.AccessDepthAttachmentWrite,
			DstAccess: gpu.AccessShaderRead,
		}},
	})
}

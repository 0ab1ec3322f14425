package renderer

import (
	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

const drawFormat = gpu.FormatRGBA16Float

// targets are the images the main pass renders into: a color and depth pair
// at the MSAA level and the single-sampled draw image that is blitted to the
// swapchain. With MSAA off the draw image is the color attachment.
type targets struct {
	device  gpu.Device
	extent  gpu.Extent2D
	samples uint32

	color     gpu.Image
	colorView gpu.ImageView
	depth     gpu.Image
	depthView gpu.ImageView
	draw      gpu.Image
	drawView  gpu.ImageView

	pass        gpu.RenderPass
	framebuffer gpu.Framebuffer
}

func newTargets(device gpu.Device, extent gpu.Extent2D, samples uint32, depthFormat gpu.Format) (*targets, error) {
	if extent.Empty() {
		return nil, errors.Wrap(core.ErrSwapchainOutOfDate, "render targets with an empty extent")
	}
	t := &targets{device: device, extent: extent, samples: samples}
	if err := t.create(depthFormat); err != nil {
		t.destroy()
		return nil, err
	}
	core.LogDebug("render targets %dx%d, %dx MSAA", extent.Width, extent.Height, samples)
	return t, nil
}

func (t *targets) multisampled() bool { return t.samples > 1 }

func (t *targets) create(depthFormat gpu.Format) error {
	var err error
	t.draw, err = t.device.CreateImage(gpu.ImageDesc{
		Name:    "draw",
		Format:  drawFormat,
		Extent:  t.extent,
		Mips:    1,
		Layers:  1,
		Samples: 1,
		Usage:   gpu.ImageUsageColorAttachment | gpu.ImageUsageTransferSrc | gpu.ImageUsageTransferDst | gpu.ImageUsageSampled,
	})
	if err != nil {
		return errors.Wrap(err, "creating draw image")
	}
	if t.drawView, err = t.device.CreateImageView(gpu.ImageViewDesc{Name: "draw", Image: t.draw, LayerCount: 1, MipCount: 1}); err != nil {
		return errors.Wrap(err, "creating draw image view")
	}
	t.color, t.colorView = t.draw, t.drawView
	if t.multisampled() {
		t.color, t.colorView = nil, nil
		t.color, err = t.device.CreateImage(gpu.ImageDesc{
			Name:    "msaa-color",
			Format:  drawFormat,
			Extent:  t.extent,
			Mips:    1,
			Layers:  1,
			Samples: t.samples,
			Usage:   gpu.ImageUsageColorAttachment | gpu.ImageUsageTransferSrc | gpu.ImageUsageTransferDst,
		})
		if err != nil {
			return errors.Wrap(err, "creating multisampled color image")
		}
		if t.colorView, err = t.device.CreateImageView(gpu.ImageViewDesc{Name: "msaa-color", Image: t.color, LayerCount: 1, MipCount: 1}); err != nil {
			return errors.Wrap(err, "creating multisampled color view")
		}
	}
	t.depth, err = t.device.CreateImage(gpu.ImageDesc{
		Name:    "depth",
		Format:  depthFormat,
		Extent:  t.extent,
		Mips:    1,
		Layers:  1,
		Samples: t.samples,
		Usage:   gpu.ImageUsageDepthAttachment,
	})
	if err != nil {
		return errors.Wrap(err, "creating depth image")
	}
	if t.depthView, err = t.device.CreateImageView(gpu.ImageViewDesc{Name: "depth", Image: t.depth, LayerCount: 1, MipCount: 1}); err != nil {
		return errors.Wrap(err, "creating depth view")
	}

	// Color is cleared outside the pass and loaded; depth is cleared by the
	// pass and discarded after it.
	t.pass, err = t.device.CreateRenderPass(gpu.RenderPassDesc{
		Name:         "main",
		ColorFormat:  drawFormat,
		DepthFormat:  depthFormat,
		Samples:      t.samples,
		ColorLoad:    gpu.LoadOpLoad,
		DepthLoad:    gpu.LoadOpClear,
		StoreDepth:   false,
		ColorInitial: gpu.LayoutColorAttachment,
		ColorFinal:   gpu.LayoutTransferSrc,
		DepthInitial: gpu.LayoutUndefined,
		DepthFinal:   gpu.LayoutDepthAttachment,
	})
	if err != nil {
		return errors.Wrap(err, "creating main render pass")
	}
	t.framebuffer, err = t.device.CreateFramebuffer(gpu.FramebufferDesc{
		Name:        "main",
		RenderPass:  t.pass,
		Attachments: []gpu.ImageView{t.colorView, t.depthView},
		Extent:      t.extent,
	})
	if err != nil {
		return errors.Wrap(err, "creating main framebuffer")
	}
	return nil
}

// destroy releases everything created so far in reverse order.
func (t *targets) destroy() {
	t.device.DestroyFramebuffer(t.framebuffer)
	t.device.DestroyRenderPass(t.pass)
	t.device.DestroyImageView(t.depthView)
	t.device.DestroyImage(t.depth)
	if t.color != t.draw {
		t.device.DestroyImageView(t.colorView)
		t.device.DestroyImage(t.color)
	}
	t.device.DestroyImageView(t.drawView)
	t.device.DestroyImage(t.draw)
	*t = targets{device: t.device, extent: t.extent, samples: t.samples}
}

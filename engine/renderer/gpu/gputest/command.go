package gputest

import (
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

type CommandBuffer struct {
	object
	dev       *Device
	recording bool
	pass      *RenderPass
	fb        *Framebuffer
	pipeline  *Pipeline
	setBound  bool
	lastFence *Fence
	touched   map[*Buffer]struct{}
}

func (c *CommandBuffer) checkReuse(op string) {
	if c.lastFence != nil && c.lastFence.Pending {
		c.dev.violate("%s on %q before fence %q signaled", op, c.name, c.lastFence.name)
	}
}

func (c *CommandBuffer) Reset() error {
	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()
	c.checkReuse("Reset")
	if err := c.dev.fail("ResetCommandBuffer"); err != nil {
		return err
	}
	c.recording = false
	c.touched = nil
	c.dev.record(Call{Op: "ResetCommandBuffer", Target: c.name})
	return nil
}

func (c *CommandBuffer) Begin(oneShot bool) error {
	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()
	c.checkReuse("Begin")
	if err := c.dev.fail("BeginCommandBuffer"); err != nil {
		return err
	}
	c.recording = true
	c.pass = nil
	c.pipeline = nil
	c.setBound = false
	c.touched = map[*Buffer]struct{}{}
	c.dev.record(Call{Op: "BeginCommandBuffer", Target: c.name})
	return nil
}

func (c *CommandBuffer) End() error {
	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()
	if c.pass != nil {
		c.dev.violate("%q ended inside render pass %q", c.name, c.pass.name)
	}
	if err := c.dev.fail("EndCommandBuffer"); err != nil {
		return err
	}
	c.recording = false
	c.dev.record(Call{Op: "EndCommandBuffer", Target: c.name})
	return nil
}

func (c *CommandBuffer) requireRecording(op string) {
	if !c.recording {
		c.dev.violate("%s recorded on %q outside Begin/End", op, c.name)
	}
}

func (c *CommandBuffer) requireOutsidePass(op string) {
	if c.pass != nil {
		c.dev.violate("%s recorded inside render pass %q", op, c.pass.name)
	}
}

func (c *CommandBuffer) touch(b gpu.Buffer) {
	if fb, ok := b.(*Buffer); ok && c.touched != nil {
		c.touched[fb] = struct{}{}
	}
}

func (c *CommandBuffer) checkLayout(op string, img gpu.Image, layout gpu.ImageLayout) {
	fi := img.(*Image)
	if fi.Layout != layout {
		c.dev.violate("%s expects %q in %s, image is in %s", op, fi.name, layout, fi.Layout)
	}
}

// checkVisible reports a read of img that no barrier has ordered after the
// image's last write.
func (c *CommandBuffer) checkVisible(op string, img gpu.Image) {
	fi := img.(*Image)
	if fi.writeStage != 0 {
		c.dev.violate("%s reads %q before its last write was made visible", op, fi.name)
	}
}

func (c *CommandBuffer) PipelineBarrier(b gpu.Barrier) {
	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()
	c.requireRecording("PipelineBarrier")
	c.requireOutsidePass("PipelineBarrier")
	for _, ib := range b.Images {
		fi := ib.Image.(*Image)
		if ib.OldLayout != gpu.LayoutUndefined && fi.Layout != ib.OldLayout {
			c.dev.violate("barrier on %q from %s, image is in %s", fi.name, ib.OldLayout, fi.Layout)
		}
		fi.Layout = ib.NewLayout
		if fi.flushedBy(b, ib) {
			fi.wrote(0, gpu.AccessNone)
		}
		c.dev.record(Call{
			Op: "ImageBarrier", Target: fi.name,
			OldLayout: ib.OldLayout, NewLayout: ib.NewLayout,
			SrcStage: b.SrcStage, DstStage: b.DstStage,
			SrcAccess: ib.SrcAccess, DstAccess: ib.DstAccess,
		})
	}
	for _, bb := range b.Buffers {
		c.touch(bb.Buffer)
		c.dev.record(Call{Op: "BufferBarrier", Target: bb.Buffer.Name()})
	}
}

func (c *CommandBuffer) CopyBuffer(src, dst gpu.Buffer, regions []gpu.BufferCopy) {
	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()
	c.requireRecording("CopyBuffer")
	c.requireOutsidePass("CopyBuffer")
	for _, r := range regions {
		if r.SrcOffset+r.Size > src.Size() || r.DstOffset+r.Size > dst.Size() {
			c.dev.violate("copy %q->%q out of range", src.Name(), dst.Name())
		}
	}
	c.touch(src)
	c.touch(dst)
	c.dev.record(Call{Op: "CopyBuffer", Target: dst.Name(), Count: uint32(len(regions))})
}

func (c *CommandBuffer) CopyBufferToImage(src gpu.Buffer, dst gpu.Image, layout gpu.ImageLayout, regions []gpu.BufferImageCopy) {
	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()
	c.requireRecording("CopyBufferToImage")
	c.requireOutsidePass("CopyBufferToImage")
	c.checkLayout("CopyBufferToImage", dst, layout)
	c.touch(src)
	dst.(*Image).wrote(gpu.StageTransfer, gpu.AccessTransferWrite)
	c.dev.record(Call{Op: "CopyBufferToImage", Target: dst.Name(), Count: uint32(len(regions))})
}

func (c *CommandBuffer) UpdateBuffer(dst gpu.Buffer, offset uint64, data []byte) {
	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()
	c.requireRecording("UpdateBuffer")
	c.requireOutsidePass("UpdateBuffer")
	if len(data) > 65536 || len(data)%4 != 0 || offset%4 != 0 {
		c.dev.violate("UpdateBuffer of %d bytes at %d into %q", len(data), offset, dst.Name())
	}
	if offset+uint64(len(data)) > dst.Size() {
		c.dev.violate("UpdateBuffer overruns %q", dst.Name())
	}
	c.touch(dst)
	c.dev.record(Call{Op: "UpdateBuffer", Target: dst.Name(), Count: uint32(len(data))})
}

func (c *CommandBuffer) ClearColorImage(img gpu.Image, layout gpu.ImageLayout, color [4]float32) {
	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()
	c.requireRecording("ClearColorImage")
	c.requireOutsidePass("ClearColorImage")
	c.checkLayout("ClearColorImage", img, layout)
	img.(*Image).wrote(gpu.StageTransfer, gpu.AccessTransferWrite)
	c.dev.record(Call{Op: "ClearColorImage", Target: img.Name()})
}

func (c *CommandBuffer) ResolveImage(src gpu.Image, srcLayout gpu.ImageLayout, dst gpu.Image, dstLayout gpu.ImageLayout, extent gpu.Extent2D) {
	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()
	c.requireRecording("ResolveImage")
	c.requireOutsidePass("ResolveImage")
	c.checkLayout("ResolveImage", src, srcLayout)
	c.checkLayout("ResolveImage", dst, dstLayout)
	if src.Desc().Samples <= 1 {
		c.dev.violate("resolve source %q is single sampled", src.Name())
	}
	c.checkVisible("ResolveImage", src)
	dst.(*Image).wrote(gpu.StageTransfer, gpu.AccessTransferWrite)
	c.dev.record(Call{Op: "ResolveImage", Target: dst.Name(), Source: src.Name()})
}

func (c *CommandBuffer) BlitImage(src gpu.Image, srcLayout gpu.ImageLayout, srcExtent gpu.Extent2D, dst gpu.Image, dstLayout gpu.ImageLayout, dstExtent gpu.Extent2D) {
	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()
	c.requireRecording("BlitImage")
	c.requireOutsidePass("BlitImage")
	c.checkLayout("BlitImage", src, srcLayout)
	c.checkLayout("BlitImage", dst, dstLayout)
	if dstExtent != dst.Desc().Extent {
		c.dev.violate("blit into %q with extent %v, image is %v", dst.Name(), dstExtent, dst.Desc().Extent)
	}
	c.checkVisible("BlitImage", src)
	dst.(*Image).wrote(gpu.StageTransfer, gpu.AccessTransferWrite)
	c.dev.record(Call{Op: "BlitImage", Target: dst.Name(), Source: src.Name()})
}

func (c *CommandBuffer) BeginRenderPass(rp gpu.RenderPass, fb gpu.Framebuffer, clears []gpu.ClearValue) {
	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()
	c.requireRecording("BeginRenderPass")
	c.requireOutsidePass("BeginRenderPass")
	frp := rp.(*RenderPass)
	ffb := fb.(*Framebuffer)
	for i, img := range c.attachments(frp, ffb) {
		initial := frp.Desc.ColorInitial
		if img.desc.Format.IsDepth() {
			initial = frp.Desc.DepthInitial
		}
		if initial != gpu.LayoutUndefined && img.Layout != initial {
			c.dev.violate("render pass %q attachment %d %q is in %s, pass expects %s", frp.name, i, img.name, img.Layout, initial)
		}
		if !img.desc.Format.IsDepth() && frp.Desc.ColorLoad == gpu.LoadOpLoad {
			c.checkVisible("BeginRenderPass "+frp.name, img)
		}
	}
	c.pass = frp
	c.fb = ffb
	c.dev.record(Call{Op: "BeginRenderPass", Target: ffb.name, Pipeline: frp.name})
}

func (c *CommandBuffer) attachments(rp *RenderPass, fb *Framebuffer) []*Image {
	var out []*Image
	for _, v := range fb.Desc.Attachments {
		out = append(out, v.Image().(*Image))
	}
	return out
}

func (c *CommandBuffer) EndRenderPass() {
	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()
	if c.pass == nil {
		c.dev.violate("EndRenderPass on %q without a pass", c.name)
		return
	}
	for _, img := range c.attachments(c.pass, c.fb) {
		if img.desc.Format.IsDepth() {
			img.Layout = c.pass.Desc.DepthFinal
		} else {
			img.Layout = c.pass.Desc.ColorFinal
			img.wrote(gpu.StageColorAttachmentOutput, gpu.AccessColorAttachmentWrite)
		}
	}
	c.dev.record(Call{Op: "EndRenderPass", Target: c.pass.name})
	c.pass = nil
	c.fb = nil
}

func (c *CommandBuffer) SetViewport(v gpu.Viewport) {
	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()
	c.dev.record(Call{Op: "SetViewport"})
}

func (c *CommandBuffer) SetScissor(r gpu.Rect2D) {
	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()
	c.dev.record(Call{Op: "SetScissor"})
}

func (c *CommandBuffer) BindPipeline(p gpu.Pipeline) {
	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()
	fp := p.(*Pipeline)
	if fp.destroyed {
		c.dev.violate("binding destroyed pipeline %q", fp.name)
	}
	c.pipeline = fp
	c.dev.record(Call{Op: "BindPipeline", Target: fp.name})
}

func (c *CommandBuffer) BindBindlessSet(layout gpu.PipelineLayout, set gpu.BindlessSet) {
	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()
	c.setBound = true
	c.dev.record(Call{Op: "BindBindlessSet", Target: set.Name()})
}

func (c *CommandBuffer) BindIndexBuffer(b gpu.Buffer, offset uint64) {
	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()
	c.touch(b)
	c.dev.record(Call{Op: "BindIndexBuffer", Target: b.Name()})
}

func (c *CommandBuffer) PushConstants(layout gpu.PipelineLayout, stages gpu.ShaderStage, offset uint32, data []byte) {
	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()
	fl := layout.(*PipelineLayout)
	if offset+uint32(len(data)) > fl.Desc.PushConstantSize {
		c.dev.violate("push constants of %d bytes exceed layout range %d", len(data), fl.Desc.PushConstantSize)
	}
	c.dev.record(Call{Op: "PushConstants", Count: uint32(len(data))})
}

func (c *CommandBuffer) checkDraw(op string) string {
	if c.pass == nil {
		c.dev.violate("%s outside a render pass", op)
	}
	if c.pipeline == nil {
		c.dev.violate("%s without a pipeline", op)
		return ""
	}
	if !c.setBound {
		c.dev.violate("%s before the descriptor set was bound", op)
	}
	return c.pipeline.name
}

func (c *CommandBuffer) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()
	p := c.checkDraw("Draw")
	c.dev.record(Call{Op: "Draw", Target: c.name, Pipeline: p, Count: vertexCount})
}

func (c *CommandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()
	p := c.checkDraw("DrawIndexed")
	c.dev.record(Call{Op: "DrawIndexed", Target: c.name, Pipeline: p, Count: indexCount})
}

// Package upload moves CPU data into device-local buffers and images through
// a host-visible staging buffer and a blocking one-shot submission.
package upload

import (
	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

// Staging offsets are aligned so that every copy region satisfies the
// strictest texel block alignment.
const stagingAlignment = 16

type Uploader struct {
	device  gpu.Device
	cmd     gpu.CommandBuffer
	fence   gpu.Fence
	timeout uint64
}

// NewUploader creates the dedicated command buffer and fence. timeout bounds
// every wait, in nanoseconds.
func NewUploader(device gpu.Device, timeout uint64) (*Uploader, error) {
	cmd, err := device.CreateCommandBuffer("upload")
	if err != nil {
		return nil, errors.Wrap(err, "creating upload command buffer")
	}
	fence, err := device.CreateFence("upload", false)
	if err != nil {
		device.DestroyCommandBuffer(cmd)
		return nil, errors.Wrap(err, "creating upload fence")
	}
	return &Uploader{
		device:  device,
		cmd:     cmd,
		fence:   fence,
		timeout: timeout,
	}, nil
}

func (u *Uploader) Destroy() {
	u.device.DestroyFence(u.fence)
	u.device.DestroyCommandBuffer(u.cmd)
	u.fence = nil
	u.cmd = nil
}

// UploadBuffer copies data into dst at dstOffset.
func (u *Uploader) UploadBuffer(dst gpu.Buffer, dstOffset uint64, data []byte) error {
	return u.Submit(func(b *Batch) {
		b.Buffer(dst, dstOffset, data)
	})
}

// UploadImage copies one byte slice per mip level into layer 0 of dst and
// leaves the image in finalLayout.
func (u *Uploader) UploadImage(dst gpu.Image, mips [][]byte, finalLayout gpu.ImageLayout) error {
	return u.Submit(func(b *Batch) {
		b.Image(dst, mips, finalLayout)
	})
}

// Submit collects the copies added by fill into one staging buffer and one
// submission, then blocks until the GPU finished them. The staging buffer is
// released on every path.
func (u *Uploader) Submit(fill func(b *Batch)) error {
	b := &Batch{}
	fill(b)
	if b.err != nil {
		return b.err
	}
	if len(b.ops) == 0 {
		return nil
	}

	staging, err := u.device.CreateBuffer(gpu.BufferDesc{
		Name:   "staging",
		Size:   uint64(len(b.data)),
		Usage:  gpu.BufferUsageTransferSrc,
		Memory: gpu.MemoryHostVisible,
	})
	if err != nil {
		return errors.Wrap(err, "creating staging buffer")
	}
	defer u.device.DestroyBuffer(staging)

	if err := u.device.WriteBuffer(staging, 0, b.data); err != nil {
		return errors.Wrap(err, "writing staging buffer")
	}

	if err := u.cmd.Reset(); err != nil {
		return errors.Wrap(err, "resetting upload command buffer")
	}
	if err := u.cmd.Begin(true); err != nil {
		return errors.Wrap(err, "beginning upload command buffer")
	}
	b.record(u.cmd, staging)
	if err := u.cmd.End(); err != nil {
		return errors.Wrap(err, "ending upload command buffer")
	}

	if err := u.device.Submit(gpu.SubmitInfo{Command: u.cmd, Fence: u.fence}); err != nil {
		return errors.Wrap(err, "submitting upload")
	}
	if err := u.device.WaitFence(u.fence, u.timeout); err != nil {
		// The copy may still be reading the staging buffer.
		if ierr := u.device.WaitIdle(); ierr != nil {
			core.LogError("upload: wait idle after failed fence wait: %s", ierr)
			return errors.Wrap(err, "waiting for upload")
		}
		// Idle signaled the fence; the next submission needs it unsignaled.
		if rerr := u.device.ResetFence(u.fence); rerr != nil {
			core.LogError("upload: resetting fence after failed wait: %s", rerr)
			err = errors.CombineErrors(err, rerr)
		}
		return errors.Wrap(err, "waiting for upload")
	}
	if err := u.device.ResetFence(u.fence); err != nil {
		return errors.Wrap(err, "resetting upload fence")
	}
	core.LogDebug("upload: %d copies, %d bytes", len(b.ops), len(b.data))
	return nil
}

type bufferOp struct {
	dst       gpu.Buffer
	dstOffset uint64
	srcOffset uint64
	size      uint64
}

type imageOp struct {
	dst         gpu.Image
	regions     []gpu.BufferImageCopy
	finalLayout gpu.ImageLayout
}

// Batch accumulates copies for one submission. The first invalid copy
// poisons the batch.
type Batch struct {
	data    []byte
	ops     []interface{}
	buffers []gpu.Buffer
	err     error
}

func (b *Batch) stage(data []byte) uint64 {
	offset := (uint64(len(b.data)) + stagingAlignment - 1) &^ (stagingAlignment - 1)
	if pad := offset - uint64(len(b.data)); pad > 0 {
		b.data = append(b.data, make([]byte, pad)...)
	}
	b.data = append(b.data, data...)
	return offset
}

func (b *Batch) Buffer(dst gpu.Buffer, dstOffset uint64, data []byte) {
	if b.err != nil || len(data) == 0 {
		return
	}
	if dstOffset+uint64(len(data)) > dst.Size() {
		b.err = errors.Wrapf(core.ErrBufferOverflow, "upload of %d bytes at offset %d into %q (size %d)", len(data), dstOffset, dst.Name(), dst.Size())
		return
	}
	src := b.stage(data)
	b.ops = append(b.ops, bufferOp{dst: dst, dstOffset: dstOffset, srcOffset: src, size: uint64(len(data))})
	b.buffers = append(b.buffers, dst)
}

func (b *Batch) Image(dst gpu.Image, mips [][]byte, finalLayout gpu.ImageLayout) {
	if b.err != nil {
		return
	}
	desc := dst.Desc()
	if len(mips) == 0 || uint32(len(mips)) > desc.Mips {
		b.err = errors.Wrapf(core.ErrUnsupportedImage, "image %q: %d mip levels for an image with %d", dst.Name(), len(mips), desc.Mips)
		return
	}
	op := imageOp{dst: dst, finalLayout: finalLayout}
	w, h := desc.Extent.Width, desc.Extent.Height
	for level, data := range mips {
		if want := desc.Format.MipSize(w, h); uint64(len(data)) != want {
			b.err = errors.Wrapf(core.ErrUnsupportedImage, "image %q mip %d: %d bytes, want %d", dst.Name(), level, len(data), want)
			return
		}
		op.regions = append(op.regions, gpu.BufferImageCopy{
			BufferOffset: b.stage(data),
			Mip:          uint32(level),
			LayerCount:   1,
			Extent:       gpu.Extent2D{Width: w, Height: h},
		})
		w = max(w/2, 1)
		h = max(h/2, 1)
	}
	b.ops = append(b.ops, op)
}

func (b *Batch) record(cmd gpu.CommandBuffer, staging gpu.Buffer) {
	for _, o := range b.ops {
		switch op := o.(type) {
		case bufferOp:
			cmd.CopyBuffer(staging, op.dst, []gpu.BufferCopy{{
				SrcOffset: op.srcOffset,
				DstOffset: op.dstOffset,
				Size:      op.size,
			}})
		case imageOp:
			cmd.PipelineBarrier(gpu.TransitionImage(op.dst,
				gpu.LayoutUndefined, gpu.LayoutTransferDst,
				gpu.StageTopOfPipe, gpu.StageTransfer,
				gpu.AccessNone, gpu.AccessTransferWrite))
			cmd.CopyBufferToImage(staging, op.dst, gpu.LayoutTransferDst, op.regions)
			cmd.PipelineBarrier(gpu.TransitionImage(op.dst,
				gpu.LayoutTransferDst, op.finalLayout,
				gpu.StageTransfer, gpu.StageFragmentShader,
				gpu.AccessTransferWrite, gpu.AccessShaderRead))
		}
	}
	if len(b.buffers) == 0 {
		return
	}
	barrier := gpu.Barrier{
		SrcStage: gpu.StageTransfer,
		DstStage: gpu.StageAllCommands,
	}
	for _, buf := range b.buffers {
		barrier.Buffers = append(barrier.Buffers, gpu.BufferBarrier{
			Buffer:    buf,
			SrcAccess: gpu.AccessTransferWrite,
			DstAccess: gpu.AccessMemoryRead,
		})
	}
	cmd.PipelineBarrier(barrier)
}

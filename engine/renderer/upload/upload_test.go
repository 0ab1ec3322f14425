package upload

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu/gputest"
)

const timeout = 1_000_000_000

func newUploader(t *testing.T) (*gputest.Device, *Uploader) {
	t.Helper()
	dev := gputest.New()
	u, err := NewUploader(dev, timeout)
	if err != nil {
		t.Fatal(err)
	}
	return dev, u
}

func deviceBuffer(t *testing.T, dev *gputest.Device, name string, size uint64) gpu.Buffer {
	t.Helper()
	b, err := dev.CreateBuffer(gpu.BufferDesc{Name: name, Size: size, Usage: gpu.BufferUsageTransferDst | gpu.BufferUsageStorage})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func ops(calls []gputest.Call) []string {
	var out []string
	for _, c := range calls {
		out = append(out, c.Op)
	}
	return out
}

func indexOf(calls []gputest.Call, op string) int {
	for i, c := range calls {
		if c.Op == op {
			return i
		}
	}
	return -1
}

func TestUploadBufferStagesAndWaits(t *testing.T) {
	dev, u := newUploader(t)
	dst := deviceBuffer(t, dev, "vertices", 64)
	dev.ClearCalls()

	if err := u.UploadBuffer(dst, 16, make([]byte, 32)); err != nil {
		t.Fatalf("UploadBuffer() = %v", err)
	}
	calls := dev.Calls()
	order := []string{"CreateBuffer", "WriteBuffer", "BeginCommandBuffer", "CopyBuffer", "EndCommandBuffer", "Submit", "WaitFence", "ResetFence", "DestroyBuffer"}
	last := -1
	for _, op := range order {
		i := indexOf(calls[last+1:], op)
		if i < 0 {
			t.Fatalf("%s missing or out of order in %v", op, ops(calls))
		}
		last += i + 1
	}
	if n := dev.Live("Buffer"); n != 1 {
		t.Errorf("live buffers = %d, want only the destination", n)
	}
	if v := dev.Violations(); len(v) != 0 {
		t.Errorf("violations: %v", v)
	}
}

func TestUploadImageTransitions(t *testing.T) {
	dev, u := newUploader(t)
	img, err := dev.CreateImage(gpu.ImageDesc{
		Name:    "albedo",
		Format:  gpu.FormatBC7Srgb,
		Extent:  gpu.Extent2D{Width: 8, Height: 8},
		Mips:    2,
		Layers:  1,
		Samples: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	// 8x8 BC7 is 2x2 blocks, 4x4 is one block
	mips := [][]byte{make([]byte, 64), make([]byte, 16)}
	if err := u.UploadImage(img, mips, gpu.LayoutShaderReadOnly); err != nil {
		t.Fatalf("UploadImage() = %v", err)
	}
	barriers := dev.CallsOf("ImageBarrier")
	if len(barriers) != 2 {
		t.Fatalf("image barriers = %v", barriers)
	}
	if barriers[0].NewLayout != gpu.LayoutTransferDst || barriers[1].NewLayout != gpu.LayoutShaderReadOnly {
		t.Errorf("barriers = %v", barriers)
	}
	if got := img.(*gputest.Image).Layout; got != gpu.LayoutShaderReadOnly {
		t.Errorf("final layout = %s", got)
	}
	if v := dev.Violations(); len(v) != 0 {
		t.Errorf("violations: %v", v)
	}
}

func TestUploadImageRejectsWrongMipSize(t *testing.T) {
	dev, u := newUploader(t)
	img, _ := dev.CreateImage(gpu.ImageDesc{Name: "n", Format: gpu.FormatBC5Unorm, Extent: gpu.Extent2D{Width: 4, Height: 4}, Mips: 1, Layers: 1, Samples: 1})
	err := u.UploadImage(img, [][]byte{make([]byte, 10)}, gpu.LayoutShaderReadOnly)
	if !errors.Is(err, core.ErrUnsupportedImage) {
		t.Errorf("UploadImage() = %v, want ErrUnsupportedImage", err)
	}
	if len(dev.CallsOf("Submit")) != 0 {
		t.Error("invalid upload was submitted")
	}
}

func TestUploadOverflowAbortsBeforeStaging(t *testing.T) {
	dev, u := newUploader(t)
	dst := deviceBuffer(t, dev, "indices", 8)
	dev.ClearCalls()
	err := u.UploadBuffer(dst, 4, make([]byte, 8))
	if !errors.Is(err, core.ErrBufferOverflow) {
		t.Fatalf("UploadBuffer() = %v, want ErrBufferOverflow", err)
	}
	if len(dev.CallsOf("CreateBuffer")) != 0 {
		t.Error("staging buffer created for an invalid upload")
	}
}

func TestUploadFailuresReleaseStaging(t *testing.T) {
	for _, op := range []string{"WriteBuffer", "EndCommandBuffer", "Submit", "WaitFence"} {
		t.Run(op, func(t *testing.T) {
			dev, u := newUploader(t)
			dst := deviceBuffer(t, dev, "materials", 32)
			dev.FailOn(op, 1, errors.New("injected"))
			if err := u.UploadBuffer(dst, 0, make([]byte, 32)); err == nil {
				t.Fatal("UploadBuffer succeeded")
			}
			if n := dev.Live("Buffer"); n != 1 {
				t.Errorf("live buffers = %d, staging leaked", n)
			}
		})
	}
}

// A timed-out wait leaves the uploader usable: the fence is unsignaled again
// before the next submission.
func TestUploadRecoversAfterFenceTimeout(t *testing.T) {
	dev, u := newUploader(t)
	dst := deviceBuffer(t, dev, "vertices", 64)
	dev.FailOn("WaitFence", 1, core.ErrFenceTimeout)

	err := u.UploadBuffer(dst, 0, make([]byte, 32))
	if !errors.Is(err, core.ErrFenceTimeout) {
		t.Fatalf("first UploadBuffer() = %v, want a fence timeout", err)
	}
	if err := u.UploadBuffer(dst, 32, make([]byte, 32)); err != nil {
		t.Fatalf("second UploadBuffer() = %v", err)
	}
	if n := len(dev.CallsOf("Submit")); n != 2 {
		t.Errorf("submits = %d, want 2", n)
	}
	if n := dev.Live("Buffer"); n != 1 {
		t.Errorf("live buffers = %d, staging leaked", n)
	}
	if v := dev.Violations(); len(v) != 0 {
		t.Errorf("violations: %v", v)
	}
}

func TestBatchPacksOneSubmission(t *testing.T) {
	dev, u := newUploader(t)
	a := deviceBuffer(t, dev, "a", 24)
	b := deviceBuffer(t, dev, "b", 24)
	err := u.Submit(func(batch *Batch) {
		batch.Buffer(a, 0, make([]byte, 20))
		batch.Buffer(b, 4, make([]byte, 20))
	})
	if err != nil {
		t.Fatal(err)
	}
	if n := len(dev.CallsOf("Submit")); n != 1 {
		t.Errorf("submits = %d, want 1", n)
	}
	if n := len(dev.CallsOf("CopyBuffer")); n != 2 {
		t.Errorf("copies = %d, want 2", n)
	}
	if err := u.Submit(func(*Batch) {}); err != nil {
		t.Errorf("empty batch: %v", err)
	}
	u.Destroy()
	if n := dev.Live("Fence") + dev.Live("CommandBuffer"); n != 0 {
		t.Errorf("uploader left %d objects", n)
	}
}

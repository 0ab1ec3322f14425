// Package frame rotates the per-frame command buffers, synchronization
// objects and dynamic buffers between frames in flight.
package frame

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

const MaxFramesInFlight = 3

// maxInlineUpdate is the largest payload of a single inline buffer update.
const maxInlineUpdate = 65536

type State uint8

const (
	// Fence signaled, the CPU owns the slot.
	StateIdle State = iota
	StateRecording
	// Waiting on the GPU.
	StateSubmitted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateSubmitted:
		return "submitted"
	}
	return "unknown"
}

type Slot struct {
	Index          uint32
	Command        gpu.CommandBuffer
	ImageAvailable gpu.Semaphore
	RenderFinished gpu.Semaphore
	InFlight       gpu.Fence
	// Device-local buffers read by shaders through their device address.
	Scene      gpu.Buffer
	Transforms gpu.Buffer

	state State
	// submitted and not yet observed through the fence
	pending bool
	// the fence was reset and nothing was submitted with it since
	fenceReset  bool
	primed      bool
	submissions uint64
	observed    uint64
}

func (s *Slot) State() State { return s.state }

// Submissions counts submissions made with this slot.
func (s *Slot) Submissions() uint64 { return s.submissions }

// Observed counts submissions whose completion was seen on the fence.
func (s *Slot) Observed() uint64 { return s.observed }

// Primed reports whether the dynamic buffers hold data written by an earlier
// frame.
func (s *Slot) Primed() bool { return s.primed }

type Ring struct {
	device  gpu.Device
	slots   []*Slot
	current uint32
	frame   uint64
}

// NewRing creates count slots, each with its own scene buffer of sceneSize
// bytes and transform buffer of transformSize bytes.
func NewRing(device gpu.Device, count uint32, sceneSize, transformSize uint64) (*Ring, error) {
	if count < 1 || count > MaxFramesInFlight {
		return nil, errors.Newf("frames in flight must be within 1..%d, got %d", MaxFramesInFlight, count)
	}
	r := &Ring{device: device}
	for i := uint32(0); i < count; i++ {
		s, err := r.createSlot(i, sceneSize, transformSize)
		if err != nil {
			r.Destroy()
			return nil, errors.Wrapf(err, "creating frame slot %d", i)
		}
		r.slots = append(r.slots, s)
	}
	core.LogDebug("frame ring: %d slots", count)
	return r, nil
}

func (r *Ring) createSlot(i uint32, sceneSize, transformSize uint64) (*Slot, error) {
	s := &Slot{Index: i}
	var err error
	// partially created slots are released here since they never reach the
	// ring
	defer func() {
		if err != nil {
			r.destroySlot(s)
		}
	}()
	if s.Command, err = r.device.CreateCommandBuffer(fmt.Sprintf("frame-%d", i)); err != nil {
		return nil, err
	}
	if s.ImageAvailable, err = r.device.CreateSemaphore(fmt.Sprintf("image-available-%d", i)); err != nil {
		return nil, err
	}
	if s.RenderFinished, err = r.device.CreateSemaphore(fmt.Sprintf("render-finished-%d", i)); err != nil {
		return nil, err
	}
	// Signaled so the very first wait returns at once.
	if s.InFlight, err = r.device.CreateFence(fmt.Sprintf("in-flight-%d", i), true); err != nil {
		return nil, err
	}
	usage := gpu.BufferUsageStorage | gpu.BufferUsageTransferDst | gpu.BufferUsageDeviceAddress
	if s.Scene, err = r.device.CreateBuffer(gpu.BufferDesc{Name: fmt.Sprintf("scene-%d", i), Size: sceneSize, Usage: usage}); err != nil {
		return nil, err
	}
	if s.Transforms, err = r.device.CreateBuffer(gpu.BufferDesc{Name: fmt.Sprintf("transforms-%d", i), Size: transformSize, Usage: usage}); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *Ring) destroySlot(s *Slot) {
	r.device.DestroyBuffer(s.Transforms)
	r.device.DestroyBuffer(s.Scene)
	r.device.DestroyFence(s.InFlight)
	r.device.DestroySemaphore(s.RenderFinished)
	r.device.DestroySemaphore(s.ImageAvailable)
	r.device.DestroyCommandBuffer(s.Command)
	*s = Slot{Index: s.Index}
}

// Destroy releases every slot. The caller waits for the device first.
func (r *Ring) Destroy() {
	for i := len(r.slots) - 1; i >= 0; i-- {
		r.destroySlot(r.slots[i])
	}
	r.slots = nil
}

func (r *Ring) Count() uint32    { return uint32(len(r.slots)) }
func (r *Ring) Frame() uint64    { return r.frame }
func (r *Ring) Current() *Slot   { return r.slots[r.current] }
func (r *Ring) Slot(i int) *Slot { return r.slots[i] }

// Next is the slot recorded after the current one. Its dynamic buffers are
// written one frame ahead.
func (r *Ring) Next() *Slot {
	return r.slots[(r.current+1)%uint32(len(r.slots))]
}

// Wait blocks until the current slot's last submission completed, for at
// most timeout nanoseconds. A timeout ends the frame; it is never retried
// here.
func (r *Ring) Wait(timeout uint64) (*Slot, error) {
	s := r.Current()
	if !s.pending && s.fenceReset {
		// an aborted frame reset the fence without submitting
		return s, nil
	}
	if err := r.device.WaitFence(s.InFlight, timeout); err != nil {
		return nil, core.NewFrameError("fence wait", err)
	}
	if s.pending {
		s.pending = false
		s.observed = s.submissions
	}
	s.state = StateIdle
	return s, nil
}

// Begin resets the current slot's fence and command buffer and starts
// recording.
func (r *Ring) Begin() (*Slot, error) {
	s := r.Current()
	if s.pending {
		return nil, core.NewFrameError("reset", errors.Newf("frame slot %d reused before its fence signaled", s.Index))
	}
	if !s.fenceReset {
		if err := r.device.ResetFence(s.InFlight); err != nil {
			return nil, core.NewFrameError("reset", err)
		}
		s.fenceReset = true
	}
	if err := s.Command.Reset(); err != nil {
		return nil, core.NewFrameError("reset", err)
	}
	if err := s.Command.Begin(false); err != nil {
		return nil, core.NewFrameError("record", err)
	}
	s.state = StateRecording
	return s, nil
}

// MarkSubmitted records that the current slot was handed to the queue with
// its fence.
func (r *Ring) MarkSubmitted() {
	s := r.Current()
	s.state = StateSubmitted
	s.pending = true
	s.fenceReset = false
	s.submissions++
}

// Abort returns the current slot to idle after a failed frame. Nothing was
// submitted, so the next wait on it returns immediately. Dynamic writes the
// frame recorded never ran, so the slots they targeted are unprimed.
func (r *Ring) Abort() {
	s := r.Current()
	if s.state == StateRecording {
		s.state = StateIdle
		s.primed = false
		r.Next().primed = false
	}
}

// ReplaceImageAvailable swaps the current slot's acquire semaphore for a
// fresh one. A frame that failed between acquire and submit leaves the old
// one signaled with no wait to consume it.
func (r *Ring) ReplaceImageAvailable() error {
	s := r.Current()
	sem, err := r.device.CreateSemaphore(fmt.Sprintf("image-available-%d", s.Index))
	if err != nil {
		return errors.Wrapf(err, "replacing acquire semaphore of slot %d", s.Index)
	}
	r.device.DestroySemaphore(s.ImageAvailable)
	s.ImageAvailable = sem
	return nil
}

// Advance moves to the next slot.
func (r *Ring) Advance() {
	r.current = (r.current + 1) % uint32(len(r.slots))
	r.frame++
}

// Settle marks every slot idle after the device was drained.
func (r *Ring) Settle() {
	for _, s := range r.slots {
		if s.pending {
			s.pending = false
			s.observed = s.submissions
		}
		if s.state == StateSubmitted {
			s.state = StateIdle
		}
	}
}

// RecordDynamicWrites records inline updates of dst's scene and transform
// buffers into cmd. dst may still be read by a frame in flight, so the writes
// wait behind the earlier shader reads and later reads of this frame wait for
// the writes.
func (r *Ring) RecordDynamicWrites(cmd gpu.CommandBuffer, dst *Slot, scene, transforms []byte) error {
	if uint64(len(scene)) > dst.Scene.Size() {
		return errors.Wrapf(core.ErrBufferOverflow, "scene data of %d bytes for a %d byte buffer", len(scene), dst.Scene.Size())
	}
	if uint64(len(transforms)) > dst.Transforms.Size() {
		return errors.Wrapf(core.ErrBufferOverflow, "%d bytes of transforms for a %d byte buffer", len(transforms), dst.Transforms.Size())
	}
	// Inline updates move whole words only.
	if len(scene)%4 != 0 {
		return errors.Newf("scene data of %d bytes is not a multiple of 4", len(scene))
	}
	if len(transforms)%4 != 0 {
		return errors.Newf("%d bytes of transforms is not a multiple of 4", len(transforms))
	}
	targets := []gpu.Buffer{dst.Scene}
	if len(transforms) > 0 {
		targets = append(targets, dst.Transforms)
	}

	before := gpu.Barrier{SrcStage: gpu.StageVertexShader | gpu.StageFragmentShader, DstStage: gpu.StageTransfer}
	after := gpu.Barrier{SrcStage: gpu.StageTransfer, DstStage: gpu.StageVertexShader | gpu.StageFragmentShader}
	for _, b := range targets {
		before.Buffers = append(before.Buffers, gpu.BufferBarrier{Buffer: b, SrcAccess: gpu.AccessShaderRead, DstAccess: gpu.AccessTransferWrite})
		after.Buffers = append(after.Buffers, gpu.BufferBarrier{Buffer: b, SrcAccess: gpu.AccessTransferWrite, DstAccess: gpu.AccessShaderRead})
	}

	cmd.PipelineBarrier(before)
	updateInline(cmd, dst.Scene, scene)
	updateInline(cmd, dst.Transforms, transforms)
	cmd.PipelineBarrier(after)
	dst.primed = true
	return nil
}

func updateInline(cmd gpu.CommandBuffer, dst gpu.Buffer, data []byte) {
	for offset := 0; offset < len(data); offset += maxInlineUpdate {
		end := min(offset+maxInlineUpdate, len(data))
		cmd.UpdateBuffer(dst, uint64(offset), data[offset:end])
	}
}

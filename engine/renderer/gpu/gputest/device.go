// Package gputest provides a recording gpu.Device for tests. Every create,
// destroy, barrier and draw is appended to an ordered call log; misuse that a
// real driver would only flag through validation layers is collected as a
// violation instead.
package gputest

import (
	"fmt"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

// Call is one entry of the device log.
type Call struct {
	Op     string
	Target string
	// Pipeline is the bound pipeline for draws and the render pass for
	// BeginRenderPass.
	Pipeline  string
	Count     uint32
	OldLayout gpu.ImageLayout
	NewLayout gpu.ImageLayout
	// Source is the image read by ResolveImage and BlitImage.
	Source    string
	SrcStage  gpu.PipelineStage
	DstStage  gpu.PipelineStage
	SrcAccess gpu.Access
	DstAccess gpu.Access
}

func (c Call) String() string {
	switch c.Op {
	case "ImageBarrier":
		return fmt.Sprintf("%s %s %s->%s", c.Op, c.Target, c.OldLayout, c.NewLayout)
	case "DrawIndexed", "Draw":
		return fmt.Sprintf("%s %s count=%d", c.Op, c.Pipeline, c.Count)
	}
	return c.Op + " " + c.Target
}

type failure struct {
	nth int
	err error
}

type Device struct {
	mu sync.Mutex

	calls      []Call
	live       map[string]int
	counts     map[string]int
	failures   map[string][]failure
	failCreate int
	creates    int
	violations []string
	cmds       []*CommandBuffer
	fences     []*Fence
	acquired   map[*Swapchain]uint32
	address    uint64

	DeviceLimits gpu.Limits
	Caps         gpu.SurfaceCapabilities
}

func New() *Device {
	return &Device{
		live:       map[string]int{},
		counts:     map[string]int{},
		failures:   map[string][]failure{},
		failCreate: -1,
		acquired:   map[*Swapchain]uint32{},
		address:    0x10000,
		DeviceLimits: gpu.Limits{
			MaxStorageImages: 256,
			MaxSampledImages: 4096,
			MaxSamplers:      128,
			MaxSamples:       8,
			MaxPushConstant:  128,
			DepthFormat:      gpu.FormatD32Float,
		},
		Caps: gpu.SurfaceCapabilities{
			MinImageCount: 2,
			MaxImageCount: 8,
			CurrentExtent: gpu.Extent2D{Width: 1280, Height: 720},
			MinExtent:     gpu.Extent2D{Width: 1, Height: 1},
			MaxExtent:     gpu.Extent2D{Width: 8192, Height: 8192},
			Formats: []gpu.SurfaceFormat{
				{Format: gpu.FormatBGRA8Unorm, ColorSpace: gpu.ColorSpaceSRGBNonlinear},
				{Format: gpu.FormatBGRA8Srgb, ColorSpace: gpu.ColorSpaceSRGBNonlinear},
			},
			PresentModes: []gpu.PresentMode{gpu.PresentModeFifo, gpu.PresentModeMailbox},
		},
	}
}

// FailOn makes the nth call (1-based, counted from device creation) of op
// return err.
func (d *Device) FailOn(op string, nth int, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[op] = append(d.failures[op], failure{nth: nth, err: err})
}

// FailAfterCreates lets n Create calls of any kind succeed and fails the
// next one.
func (d *Device) FailAfterCreates(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failCreate = n
}

// Creates returns the number of successful Create calls.
func (d *Device) Creates() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.creates
}

func (d *Device) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Call(nil), d.calls...)
}

// CallsOf returns the calls matching op in log order.
func (d *Device) CallsOf(op string) []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Call
	for _, c := range d.calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// ClearCalls drops the log but keeps object state.
func (d *Device) ClearCalls() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = nil
}

// Live returns the number of live objects of kind, e.g. "Image".
func (d *Device) Live(kind string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.live[kind]
}

// LiveTotal returns the number of live objects of every kind.
func (d *Device) LiveTotal() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.live {
		n += c
	}
	return n
}

func (d *Device) LiveSummary() map[string]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := map[string]int{}
	for k, v := range d.live {
		if v != 0 {
			out[k] = v
		}
	}
	return out
}

func (d *Device) Violations() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.violations...)
}

func (d *Device) violate(format string, args ...interface{}) {
	d.violations = append(d.violations, fmt.Sprintf(format, args...))
}

func (d *Device) record(c Call) {
	d.calls = append(d.calls, c)
}

func (d *Device) fail(op string) error {
	d.counts[op]++
	for _, f := range d.failures[op] {
		if f.nth == d.counts[op] {
			return f.err
		}
	}
	return nil
}

func (d *Device) create(kind, name string) error {
	op := "Create" + kind
	if err := d.fail(op); err != nil {
		return err
	}
	if d.failCreate >= 0 && d.creates >= d.failCreate {
		return errors.Newf("injected failure creating %s %q", kind, name)
	}
	d.creates++
	d.live[kind]++
	d.record(Call{Op: op, Target: name})
	return nil
}

func (d *Device) destroy(o *object) {
	if o.destroyed {
		d.violate("double destroy of %s %q", o.kind, o.name)
		return
	}
	o.destroyed = true
	d.live[o.kind]--
	d.record(Call{Op: "Destroy" + o.kind, Target: o.name})
}

func (d *Device) Limits() gpu.Limits { return d.DeviceLimits }

func (d *Device) CreateBuffer(desc gpu.BufferDesc) (gpu.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if desc.Size == 0 {
		return nil, errors.Newf("buffer %q has zero size", desc.Name)
	}
	if err := d.create("Buffer", desc.Name); err != nil {
		return nil, err
	}
	b := &Buffer{object: object{kind: "Buffer", name: desc.Name}, desc: desc}
	if desc.Usage&gpu.BufferUsageDeviceAddress != 0 {
		b.address = d.address
		d.address += (desc.Size + 255) &^ 255
	}
	if desc.Memory == gpu.MemoryHostVisible {
		b.Data = make([]byte, desc.Size)
	}
	return b, nil
}

func (d *Device) DestroyBuffer(b gpu.Buffer) {
	if fb, ok := b.(*Buffer); ok && fb != nil {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.destroy(&fb.object)
	}
}

func (d *Device) WriteBuffer(b gpu.Buffer, offset uint64, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	fb := b.(*Buffer)
	if err := d.fail("WriteBuffer"); err != nil {
		return err
	}
	if fb.Data == nil {
		return errors.Newf("buffer %q is not host visible", fb.name)
	}
	if offset+uint64(len(data)) > fb.desc.Size {
		return errors.Wrapf(core.ErrBufferOverflow, "write of %d bytes at %d into %q", len(data), offset, fb.name)
	}
	for _, cmd := range d.cmds {
		if cmd.lastFence != nil && cmd.lastFence.Pending {
			if _, ok := cmd.touched[fb]; ok {
				d.violate("host write to %q while %q is in flight", fb.name, cmd.name)
			}
		}
	}
	copy(fb.Data[offset:], data)
	d.record(Call{Op: "WriteBuffer", Target: fb.name, Count: uint32(len(data))})
	return nil
}

func (d *Device) CreateImage(desc gpu.ImageDesc) (gpu.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if desc.Extent.Empty() {
		return nil, errors.Newf("image %q has empty extent", desc.Name)
	}
	if err := d.create("Image", desc.Name); err != nil {
		return nil, err
	}
	return &Image{object: object{kind: "Image", name: desc.Name}, desc: desc}, nil
}

func (d *Device) DestroyImage(img gpu.Image) {
	if fi, ok := img.(*Image); ok && fi != nil {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.destroy(&fi.object)
	}
}

func (d *Device) CreateImageView(desc gpu.ImageViewDesc) (gpu.ImageView, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	img, ok := desc.Image.(*Image)
	if !ok || img.destroyed {
		d.violate("view %q created over a destroyed image", desc.Name)
	}
	if err := d.create("ImageView", desc.Name); err != nil {
		return nil, err
	}
	return &ImageView{object: object{kind: "ImageView", name: desc.Name}, desc: desc}, nil
}

func (d *Device) DestroyImageView(v gpu.ImageView) {
	if fv, ok := v.(*ImageView); ok && fv != nil {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.destroy(&fv.object)
	}
}

func (d *Device) CreateSampler(desc gpu.SamplerDesc) (gpu.Sampler, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.create("Sampler", desc.Name); err != nil {
		return nil, err
	}
	return &Sampler{object: object{kind: "Sampler", name: desc.Name}, Desc: desc}, nil
}

func (d *Device) DestroySampler(s gpu.Sampler) {
	if fs, ok := s.(*Sampler); ok && fs != nil {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.destroy(&fs.object)
	}
}

func (d *Device) CreateBindlessSet(desc gpu.BindlessSetDesc) (gpu.BindlessSet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.create("BindlessSet", desc.Name); err != nil {
		return nil, err
	}
	return &BindlessSet{
		object:  object{kind: "BindlessSet", name: desc.Name},
		Desc:    desc,
		Written: map[gpu.DescriptorKind]map[uint32]gpu.DescriptorWrite{},
	}, nil
}

func (d *Device) DestroyBindlessSet(set gpu.BindlessSet) {
	if fs, ok := set.(*BindlessSet); ok && fs != nil {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.destroy(&fs.object)
	}
}

func (d *Device) WriteDescriptors(set gpu.BindlessSet, writes []gpu.DescriptorWrite) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fs := set.(*BindlessSet)
	for _, w := range writes {
		var capacity uint32
		switch w.Kind {
		case gpu.DescriptorStorageImage:
			capacity = fs.Desc.StorageImages
		case gpu.DescriptorSampledImage:
			capacity = fs.Desc.SampledImages
		case gpu.DescriptorSampler:
			capacity = fs.Desc.Samplers
		}
		if w.Index >= capacity {
			d.violate("%s descriptor %d out of range (capacity %d)", w.Kind, w.Index, capacity)
			continue
		}
		if fs.Written[w.Kind] == nil {
			fs.Written[w.Kind] = map[uint32]gpu.DescriptorWrite{}
		}
		fs.Written[w.Kind][w.Index] = w
		d.record(Call{Op: "WriteDescriptor", Target: w.Kind.String(), Count: w.Index})
	}
}

func (d *Device) CreateShaderModule(name string, code []byte) (gpu.ShaderModule, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(code) == 0 || len(code)%4 != 0 {
		return nil, errors.Newf("shader %q: bytecode size %d is not a multiple of 4", name, len(code))
	}
	if err := d.create("ShaderModule", name); err != nil {
		return nil, err
	}
	return &ShaderModule{object: object{kind: "ShaderModule", name: name}, Code: code}, nil
}

func (d *Device) DestroyShaderModule(m gpu.ShaderModule) {
	if fm, ok := m.(*ShaderModule); ok && fm != nil {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.destroy(&fm.object)
	}
}

func (d *Device) CreatePipelineLayout(desc gpu.PipelineLayoutDesc) (gpu.PipelineLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if desc.PushConstantSize > d.DeviceLimits.MaxPushConstant {
		return nil, errors.Newf("push constant range %d exceeds device limit %d", desc.PushConstantSize, d.DeviceLimits.MaxPushConstant)
	}
	if err := d.create("PipelineLayout", desc.Name); err != nil {
		return nil, err
	}
	return &PipelineLayout{object: object{kind: "PipelineLayout", name: desc.Name}, Desc: desc}, nil
}

func (d *Device) DestroyPipelineLayout(l gpu.PipelineLayout) {
	if fl, ok := l.(*PipelineLayout); ok && fl != nil {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.destroy(&fl.object)
	}
}

func (d *Device) CreateGraphicsPipeline(desc gpu.GraphicsPipelineDesc) (gpu.Pipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.create("Pipeline", desc.Name); err != nil {
		return nil, err
	}
	return &Pipeline{object: object{kind: "Pipeline", name: desc.Name}, Desc: desc}, nil
}

func (d *Device) DestroyPipeline(p gpu.Pipeline) {
	if fp, ok := p.(*Pipeline); ok && fp != nil {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.destroy(&fp.object)
	}
}

func (d *Device) CreateRenderPass(desc gpu.RenderPassDesc) (gpu.RenderPass, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.create("RenderPass", desc.Name); err != nil {
		return nil, err
	}
	return &RenderPass{object: object{kind: "RenderPass", name: desc.Name}, Desc: desc}, nil
}

func (d *Device) DestroyRenderPass(rp gpu.RenderPass) {
	if fr, ok := rp.(*RenderPass); ok && fr != nil {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.destroy(&fr.object)
	}
}

func (d *Device) CreateFramebuffer(desc gpu.FramebufferDesc) (gpu.Framebuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, a := range desc.Attachments {
		if fv, ok := a.(*ImageView); !ok || fv.destroyed {
			d.violate("framebuffer %q references a destroyed view", desc.Name)
		}
	}
	if err := d.create("Framebuffer", desc.Name); err != nil {
		return nil, err
	}
	return &Framebuffer{object: object{kind: "Framebuffer", name: desc.Name}, Desc: desc}, nil
}

func (d *Device) DestroyFramebuffer(fb gpu.Framebuffer) {
	if ff, ok := fb.(*Framebuffer); ok && ff != nil {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.destroy(&ff.object)
	}
}

func (d *Device) CreateCommandBuffer(name string) (gpu.CommandBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.create("CommandBuffer", name); err != nil {
		return nil, err
	}
	cmd := &CommandBuffer{object: object{kind: "CommandBuffer", name: name}, dev: d}
	d.cmds = append(d.cmds, cmd)
	return cmd, nil
}

func (d *Device) DestroyCommandBuffer(cmd gpu.CommandBuffer) {
	if fc, ok := cmd.(*CommandBuffer); ok && fc != nil {
		d.mu.Lock()
		defer d.mu.Unlock()
		if fc.lastFence != nil && fc.lastFence.Pending {
			d.violate("command buffer %q destroyed while in flight", fc.name)
		}
		d.destroy(&fc.object)
	}
}

func (d *Device) CreateFence(name string, signaled bool) (gpu.Fence, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.create("Fence", name); err != nil {
		return nil, err
	}
	f := &Fence{object: object{kind: "Fence", name: name}, Signaled: signaled}
	d.fences = append(d.fences, f)
	return f, nil
}

func (d *Device) DestroyFence(f gpu.Fence) {
	if ff, ok := f.(*Fence); ok && ff != nil {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.destroy(&ff.object)
	}
}

// WaitFence completes pending work instantly. Waiting on a fence that was
// reset and never submitted would block forever on a real device, so it
// reports a timeout.
func (d *Device) WaitFence(f gpu.Fence, timeout uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	ff := f.(*Fence)
	d.record(Call{Op: "WaitFence", Target: ff.name})
	if err := d.fail("WaitFence"); err != nil {
		return err
	}
	switch {
	case ff.Pending:
		ff.Pending = false
		ff.Signaled = true
	case ff.Signaled:
	default:
		return core.ErrFenceTimeout
	}
	return nil
}

func (d *Device) ResetFence(f gpu.Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	ff := f.(*Fence)
	if err := d.fail("ResetFence"); err != nil {
		return err
	}
	if ff.Pending {
		d.violate("fence %q reset while in flight", ff.name)
	}
	ff.Signaled = false
	d.record(Call{Op: "ResetFence", Target: ff.name})
	return nil
}

func (d *Device) CreateSemaphore(name string) (gpu.Semaphore, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.create("Semaphore", name); err != nil {
		return nil, err
	}
	return &Semaphore{object: object{kind: "Semaphore", name: name}}, nil
}

func (d *Device) DestroySemaphore(s gpu.Semaphore) {
	if fs, ok := s.(*Semaphore); ok && fs != nil {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.destroy(&fs.object)
	}
}

func (d *Device) Submit(info gpu.SubmitInfo) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cmd := info.Command.(*CommandBuffer)
	if err := d.fail("Submit"); err != nil {
		return err
	}
	if cmd.recording {
		d.violate("command buffer %q submitted while recording", cmd.name)
	}
	if info.Fence != nil {
		f := info.Fence.(*Fence)
		if f.Signaled || f.Pending {
			d.violate("fence %q submitted without reset", f.name)
		}
		f.Signaled = false
		f.Pending = true
		cmd.lastFence = f
	}
	d.record(Call{Op: "Submit", Target: cmd.name})
	return nil
}

func (d *Device) WaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("WaitIdle"); err != nil {
		return err
	}
	for _, f := range d.fences {
		if f.Pending {
			f.Pending = false
			f.Signaled = true
		}
	}
	d.record(Call{Op: "WaitIdle"})
	return nil
}

func (d *Device) SurfaceCapabilities() (gpu.SurfaceCapabilities, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("SurfaceCapabilities"); err != nil {
		return gpu.SurfaceCapabilities{}, err
	}
	return d.Caps, nil
}

func (d *Device) CreateSwapchain(desc gpu.SwapchainDesc) (gpu.Swapchain, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.create("Swapchain", desc.Name); err != nil {
		return nil, err
	}
	sc := &Swapchain{object: object{kind: "Swapchain", name: desc.Name}, desc: desc}
	for i := uint32(0); i < desc.ImageCount; i++ {
		// presentable images belong to the swapchain and are never destroyed
		// on their own
		sc.images = append(sc.images, &Image{
			object: object{kind: "SwapchainImage", name: fmt.Sprintf("%s-image-%d", desc.Name, i)},
			desc: gpu.ImageDesc{
				Name:    fmt.Sprintf("%s-image-%d", desc.Name, i),
				Format:  desc.Format.Format,
				Extent:  desc.Extent,
				Mips:    1,
				Layers:  1,
				Samples: 1,
				Usage:   gpu.ImageUsageColorAttachment | gpu.ImageUsageTransferDst,
			},
		})
	}
	return sc, nil
}

func (d *Device) DestroySwapchain(sc gpu.Swapchain) {
	if fs, ok := sc.(*Swapchain); ok && fs != nil {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.acquired, fs)
		d.destroy(&fs.object)
	}
}

func (d *Device) AcquireNextImage(sc gpu.Swapchain, timeout uint64, signal gpu.Semaphore) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fs := sc.(*Swapchain)
	if err := d.fail("AcquireNextImage"); err != nil {
		return 0, err
	}
	if fs.destroyed {
		d.violate("acquire from destroyed swapchain %q", fs.name)
	}
	idx := d.acquired[fs] % uint32(len(fs.images))
	d.acquired[fs]++
	d.record(Call{Op: "AcquireNextImage", Target: fs.name, Count: idx})
	return idx, nil
}

func (d *Device) Present(sc gpu.Swapchain, imageIndex uint32, wait gpu.Semaphore) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	fs := sc.(*Swapchain)
	if err := d.fail("Present"); err != nil {
		return err
	}
	img := fs.images[imageIndex].(*Image)
	if img.Layout != gpu.LayoutPresentSrc {
		d.violate("presenting %q in layout %s", img.name, img.Layout)
	}
	d.record(Call{Op: "Present", Target: fs.name, Count: imageIndex})
	return nil
}

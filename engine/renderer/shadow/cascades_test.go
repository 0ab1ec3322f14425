package shadow

import (
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/lumen/engine/renderer/descriptor"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu/gputest"
)

func newCascades(t *testing.T) (*gputest.Device, *descriptor.Manager, *Cascades) {
	t.Helper()
	dev := gputest.New()
	dm, err := descriptor.NewManager(dev, descriptor.Capacities{StorageImages: 4, SampledImages: 16, Samplers: 8})
	if err != nil {
		t.Fatal(err)
	}
	c, err := New(dev, dm, 1024, gpu.FormatD32Float)
	if err != nil {
		t.Fatal(err)
	}
	return dev, dm, c
}

func testFrustum() Frustum {
	return Frustum{
		View:   mgl32.LookAtV(mgl32.Vec3{0, 2, 5}, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 1, 0}),
		FovY:   mgl32.DegToRad(60),
		Aspect: 16.0 / 9.0,
		Near:   0.1,
		Far:    100,
	}
}

func TestEveryLayerOwnsASlot(t *testing.T) {
	_, dm, c := newCascades(t)
	slots := c.LayerSlots()
	seen := map[uint32]bool{}
	for i, s := range slots {
		if seen[s] {
			t.Errorf("layer %d shares slot %d", i, s)
		}
		seen[s] = true
	}
	if got := dm.Live(); got.SampledImages != Layers || got.Samplers != 2 {
		t.Errorf("Live() = %+v, want 3 sampled images and 2 samplers", got)
	}
	if c.DebugSamplerSlot() == c.CompareSamplerSlot() {
		t.Error("debug and compare samplers share a slot")
	}
}

func TestRecordTransitionsAroundLayerPasses(t *testing.T) {
	dev, _, c := newCascades(t)
	cmd, _ := dev.CreateCommandBuffer("test")
	_ = cmd.Begin(false)
	dev.ClearCalls()

	var layers []int
	c.Record(cmd, func(layer int, m mgl32.Mat4) { layers = append(layers, layer) })

	calls := dev.Calls()
	first, last := calls[0], calls[len(calls)-1]
	if first.Op != "ImageBarrier" || first.NewLayout != gpu.LayoutDepthAttachment {
		t.Errorf("first call = %v, want barrier to depth attachment", first)
	}
	if last.Op != "ImageBarrier" || last.NewLayout != gpu.LayoutShaderReadOnly {
		t.Errorf("last call = %v, want barrier to shader read-only", last)
	}
	if n := len(dev.CallsOf("BeginRenderPass")); n != Layers {
		t.Errorf("render passes = %d, want %d", n, Layers)
	}
	if len(layers) != Layers || layers[0] != 0 || layers[2] != 2 {
		t.Errorf("layers drawn = %v", layers)
	}
	if got := c.Image().(*gputest.Image).Layout; got != gpu.LayoutShaderReadOnly {
		t.Errorf("image layout = %s", got)
	}
	if v := dev.Violations(); len(v) != 0 {
		t.Errorf("violations: %v", v)
	}

	// the next frame starts again from the read-only layout
	c.Record(cmd, func(int, mgl32.Mat4) {})
	if v := dev.Violations(); len(v) != 0 {
		t.Errorf("violations on second frame: %v", v)
	}
}

// Every corner of a slice lands inside the light clip volume.
func TestFitSliceContainsSlice(t *testing.T) {
	f := testFrustum()
	light := mgl32.Vec3{-0.3, -1, -0.2}
	for _, r := range [][2]float32{{0.1, 10}, {10, 40}, {40, 100}} {
		m := FitSlice(f, r[0], r[1], light, 2048)
		for _, p := range sliceCorners(f, r[0], r[1]) {
			clip := m.Mul4x1(p.Vec4(1))
			x, y, z := clip.X()/clip.W(), clip.Y()/clip.W(), clip.Z()/clip.W()
			if x < -1.001 || x > 1.001 || y < -1.001 || y > 1.001 {
				t.Errorf("slice %v: corner %v at xy (%f, %f)", r, p, x, y)
			}
			if z < 0 || z > 1 {
				t.Errorf("slice %v: corner %v at depth %f", r, p, z)
			}
		}
	}
}

func TestUpdateClampsLastSplit(t *testing.T) {
	_, _, c := newCascades(t)
	f := testFrustum()
	f.Far = 60
	c.Update(f, mgl32.Vec3{0, -1, 0}, [Layers]float32{10, 40, 150})
	if got := c.Splits(); got != [Layers]float32{10, 40, 60} {
		t.Errorf("Splits() = %v", got)
	}
	m := c.Matrices()
	if m[0] == m[1] || m[1] == m[2] {
		t.Error("cascade matrices are not distinct")
	}
}

func TestDestroyReleasesEverything(t *testing.T) {
	dev, dm, c := newCascades(t)
	if err := c.Destroy(); err != nil {
		t.Fatalf("Destroy() = %v", err)
	}
	if err := c.Destroy(); err != nil {
		t.Errorf("second Destroy() = %v", err)
	}
	if got := dm.Live(); got.Total() != 0 {
		t.Errorf("descriptor slots still live: %+v", got)
	}
	dm.Destroy()
	if live := dev.LiveTotal(); live != 0 {
		t.Errorf("leaked %v", dev.LiveSummary())
	}
	if v := dev.Violations(); len(v) != 0 {
		t.Errorf("violations: %v", v)
	}
}

// Slots freed behind the cascades' back are reported, and the GPU objects
// are still destroyed.
func TestDestroyReportsSlotErrors(t *testing.T) {
	dev, dm, c := newCascades(t)
	dm.ReleaseAll()
	err := c.Destroy()
	if err == nil {
		t.Fatal("Destroy() after the slots were freed elsewhere succeeded")
	}
	if !strings.Contains(err.Error(), "shadow") {
		t.Errorf("Destroy() = %v", err)
	}
	dm.Destroy()
	if live := dev.LiveTotal(); live != 0 {
		t.Errorf("leaked %v", dev.LiveSummary())
	}
}

func TestPartialCreationReleasesEverything(t *testing.T) {
	// image, pass, 3 views, 3 framebuffers, 2 samplers
	for n := 0; n < 10; n++ {
		dev := gputest.New()
		dm, _ := descriptor.NewManager(dev, descriptor.Capacities{StorageImages: 4, SampledImages: 16, Samplers: 8})
		dev.FailAfterCreates(n + 1)
		if _, err := New(dev, dm, 512, gpu.FormatD32Float); err == nil {
			t.Fatalf("New succeeded with failure after %d creates", n)
		}
		dm.Destroy()
		if live := dev.LiveTotal(); live != 0 {
			t.Errorf("failure after %d creates leaked %v", n, dev.LiveSummary())
		}
	}
}

func TestSlotOverflowReleasesEverything(t *testing.T) {
	dev := gputest.New()
	dm, _ := descriptor.NewManager(dev, descriptor.Capacities{StorageImages: 1, SampledImages: 2, Samplers: 8})
	if _, err := New(dev, dm, 512, gpu.FormatD32Float); err == nil {
		t.Fatal("New succeeded with two sampled image slots")
	}
	if got := dm.Live(); got.Total() != 0 {
		t.Errorf("slots leaked: %+v", got)
	}
}

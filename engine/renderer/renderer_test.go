package renderer

import (
	"fmt"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/lumen/engine/assets"
	"github.com/spaghettifunk/lumen/engine/assets/assettest"
	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu/gputest"
)

var window = gpu.Extent2D{Width: 1280, Height: 720}

type testScene struct {
	camera     Camera
	light      Light
	transforms []mgl32.Mat4
	lines      []DebugLine
	ui         bool
}

func newTestScene() *testScene {
	return &testScene{
		camera: LookAt(mgl32.Vec3{0, 3, 8}, mgl32.Vec3{}, mgl32.DegToRad(60), 0.1, 200),
		light:  DefaultLight(),
	}
}

func (s *testScene) Camera() Camera           { return s.camera }
func (s *testScene) Light() Light             { return s.light }
func (s *testScene) Transforms() []mgl32.Mat4 { return s.transforms }
func (s *testScene) DebugLines() []DebugLine  { return s.lines }
func (s *testScene) UIEnabled() bool          { return s.ui }

type testEditor struct {
	commands []EditorCommand
}

func (e *testEditor) PushCommand(cmd EditorCommand) { e.commands = append(e.commands, cmd) }
func (e *testEditor) SetLight(Light)                {}
func (e *testEditor) SetCamera(Camera)              {}

type testOverlay struct {
	calls int
	last  UI
}

func (o *testOverlay) Record(cmd gpu.CommandBuffer, ui UI) {
	o.calls++
	o.last = ui
}

func newTestRenderer(t *testing.T, dev *gputest.Device, cfg *config.Config, opts Options) *Renderer {
	t.Helper()
	if opts.Window.Empty() {
		opts.Window = window
	}
	r, err := New(dev, cfg, opts)
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	return r
}

func render(t *testing.T, r *Renderer, scene *testScene) Stats {
	t.Helper()
	if err := r.Render(scene, &testEditor{}); err != nil {
		t.Fatalf("Render() = %v", err)
	}
	return r.Stats()
}

func noViolations(t *testing.T, dev *gputest.Device) {
	t.Helper()
	if v := dev.Violations(); len(v) != 0 {
		t.Errorf("violations:\n%s", strings.Join(v, "\n"))
	}
}

func indexOf(calls []gputest.Call, from int, match func(gputest.Call) bool) int {
	for i := from; i < len(calls); i++ {
		if match(calls[i]) {
			return i
		}
	}
	return -1
}

// A failure at any create during setup leaves nothing alive.
func TestSetupFailureReleasesEverything(t *testing.T) {
	dev := gputest.New()
	r := newTestRenderer(t, dev, config.Default(), Options{})
	total := dev.Creates()
	if err := r.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if total == 0 {
		t.Fatal("setup created nothing")
	}

	for n := 0; n < total; n++ {
		dev := gputest.New()
		dev.FailAfterCreates(n)
		r, err := New(dev, config.Default(), Options{Window: window})
		if err == nil {
			t.Fatalf("New() with %d creates allowed succeeded", n)
		}
		if r != nil {
			t.Errorf("New() with %d creates allowed returned a renderer", n)
		}
		var se *core.SetupError
		if !errors.As(err, &se) {
			t.Errorf("New() error %T is not a SetupError", err)
		}
		if live := dev.LiveTotal(); live != 0 {
			t.Errorf("failure after %d creates (%v) leaked %v", n, err, dev.LiveSummary())
		}
		noViolations(t, dev)
	}
}

func TestRenderDrawsScene(t *testing.T) {
	dev := gputest.New()
	r := newTestRenderer(t, dev, config.Default(), Options{})
	if err := r.LoadAsset(assettest.Scene("courtyard")); err != nil {
		t.Fatal(err)
	}
	dev.ClearCalls()

	stats := render(t, r, newTestScene())
	if stats.DrawCalls != 3 || stats.Triangles != 290 {
		t.Errorf("stats = %s, want 3 draws and 290 triangles", stats)
	}
	if stats.ShadowDrawCalls != 3*3 {
		t.Errorf("shadow draws = %d, want 9", stats.ShadowDrawCalls)
	}
	if stats.Asset != "courtyard" || stats.Generation != 1 || stats.Frame != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if n := len(dev.CallsOf("Present")); n != 1 {
		t.Errorf("presents = %d", n)
	}
	noViolations(t, dev)
}

// Shadow layers are written and transitioned for sampling before the main
// pass draws anything.
func TestShadowPassPrecedesMainPass(t *testing.T) {
	dev := gputest.New()
	r := newTestRenderer(t, dev, config.Default(), Options{})
	if err := r.LoadAsset(assettest.Scene("courtyard")); err != nil {
		t.Fatal(err)
	}
	dev.ClearCalls()
	render(t, r, newTestScene())
	calls := dev.Calls()

	readable := indexOf(calls, 0, func(c gputest.Call) bool {
		return c.Op == "ImageBarrier" && c.Target == "shadow-cascades" && c.NewLayout == gpu.LayoutShaderReadOnly
	})
	mainPass := indexOf(calls, 0, func(c gputest.Call) bool {
		return c.Op == "BeginRenderPass" && c.Pipeline == "main"
	})
	firstMesh := indexOf(calls, 0, func(c gputest.Call) bool {
		return c.Op == "DrawIndexed" && strings.HasPrefix(c.Pipeline, "mesh")
	})
	if readable < 0 || mainPass < 0 || firstMesh < 0 {
		t.Fatalf("missing calls: readable %d, main %d, first mesh draw %d", readable, mainPass, firstMesh)
	}
	if !(readable < mainPass && mainPass < firstMesh) {
		t.Errorf("order: shadow read-only at %d, main pass at %d, first mesh draw at %d", readable, mainPass, firstMesh)
	}
	if last := indexOf(calls, mainPass, func(c gputest.Call) bool {
		return c.Op == "BeginRenderPass" && c.Pipeline == "shadow"
	}); last >= 0 {
		t.Errorf("shadow pass begun at %d, after the main pass", last)
	}
	for _, c := range dev.CallsOf("DrawIndexed") {
		if strings.HasPrefix(c.Pipeline, "shadow") {
			continue
		}
		if !strings.HasPrefix(c.Pipeline, "mesh") {
			t.Errorf("draw with unexpected pipeline %s", c)
		}
	}

	// opaque draws first, the blended window last
	var mesh []gputest.Call
	for _, c := range dev.CallsOf("DrawIndexed") {
		if strings.HasPrefix(c.Pipeline, "mesh") {
			mesh = append(mesh, c)
		}
	}
	if len(mesh) != 3 {
		t.Fatalf("mesh draws = %d", len(mesh))
	}
	if last := mesh[2]; !strings.HasSuffix(last.Pipeline, "-blend") || last.Count != 120 {
		t.Errorf("last mesh draw = %s, want the blended window", last)
	}
	if strings.HasSuffix(mesh[0].Pipeline, "-blend") {
		t.Errorf("first mesh draw %s is blended", mesh[0])
	}

	resolve := indexOf(calls, 0, func(c gputest.Call) bool { return c.Op == "ResolveImage" })
	blit := indexOf(calls, 0, func(c gputest.Call) bool { return c.Op == "BlitImage" })
	if resolve < firstMesh || blit < resolve {
		t.Errorf("resolve at %d, blit at %d", resolve, blit)
	}
}

// The main pass's color writes are made visible to the transfer stage before
// the resolve or blit reads the color target, and the next frame's clear
// waits for those reads.
func TestColorTargetBarriersAroundTransfers(t *testing.T) {
	for _, samples := range []uint32{1, 4} {
		t.Run(fmt.Sprintf("msaa%d", samples), func(t *testing.T) {
			cfg := config.Default()
			cfg.Render.MSAA = samples
			dev := gputest.New()
			r := newTestRenderer(t, dev, cfg, Options{})
			if err := r.LoadAsset(assettest.Scene("courtyard")); err != nil {
				t.Fatal(err)
			}
			render(t, r, newTestScene())
			dev.ClearCalls()
			render(t, r, newTestScene())
			calls := dev.Calls()

			color := "draw"
			readOp := "BlitImage"
			if samples > 1 {
				color, readOp = "msaa-color", "ResolveImage"
			}
			end := indexOf(calls, 0, func(c gputest.Call) bool {
				return c.Op == "EndRenderPass" && c.Target == "main"
			})
			read := indexOf(calls, end, func(c gputest.Call) bool {
				return c.Op == readOp && c.Source == color
			})
			if end < 0 || read < 0 {
				t.Fatalf("missing calls: end of main pass %d, %s of %q %d", end, readOp, color, read)
			}
			covered := false
			for _, c := range calls[end:read] {
				if c.Op == "ImageBarrier" && c.Target == color &&
					c.SrcStage&gpu.StageColorAttachmentOutput != 0 && c.SrcAccess&gpu.AccessColorAttachmentWrite != 0 &&
					c.DstStage&gpu.StageTransfer != 0 && c.DstAccess&gpu.AccessTransferRead != 0 {
					covered = true
				}
			}
			if !covered {
				t.Errorf("no barrier on %q between the main pass and %s:\n%v", color, readOp, calls[end:read+1])
			}

			clear := indexOf(calls, 0, func(c gputest.Call) bool {
				return c.Op == "ClearColorImage" && c.Target == color
			})
			pre := -1
			for i := 0; i < clear; i++ {
				if c := calls[i]; c.Op == "ImageBarrier" && c.Target == color {
					pre = i
				}
			}
			if clear < 0 || pre < 0 {
				t.Fatalf("clear at %d, barrier before it at %d", clear, pre)
			}
			if b := calls[pre]; b.SrcStage&gpu.StageTransfer == 0 || b.SrcAccess&gpu.AccessTransferRead == 0 {
				t.Errorf("clear of %q does not wait for the previous frame's transfer read: %+v", color, b)
			}
			noViolations(t, dev)
		})
	}
}

func TestFramesNeverReuseInFlightSlots(t *testing.T) {
	dev := gputest.New()
	r := newTestRenderer(t, dev, config.Default(), Options{})
	if err := r.LoadAsset(assettest.Scene("courtyard")); err != nil {
		t.Fatal(err)
	}
	scene := newTestScene()
	for i := 0; i < 20; i++ {
		scene.transforms = []mgl32.Mat4{mgl32.HomogRotate3DY(float32(i) * 0.1)}
		render(t, r, scene)
	}
	var submitted uint64
	for i := 0; i < int(r.ring.Count()); i++ {
		s := r.ring.Slot(i)
		submitted += s.Submissions()
		if s.Submissions()-s.Observed() > 1 {
			t.Errorf("slot %d has %d submissions, %d observed", i, s.Submissions(), s.Observed())
		}
	}
	if submitted != 20 {
		t.Errorf("submissions = %d, want 20", submitted)
	}
	if got := r.Stats().Frame; got != 20 {
		t.Errorf("frame = %d", got)
	}
	noViolations(t, dev)
}

func TestAssetSwapReleasesPreviousAsset(t *testing.T) {
	dev := gputest.New()
	r := newTestRenderer(t, dev, config.Default(), Options{})
	baseSlots := r.descriptors.Live()
	baseLive := dev.LiveTotal()

	if err := r.LoadAsset(assettest.Scene("a")); err != nil {
		t.Fatal(err)
	}
	render(t, r, newTestScene())
	withA := r.descriptors.Live()
	if withA.SampledImages != baseSlots.SampledImages+2 || withA.Samplers != baseSlots.Samplers+1 {
		t.Errorf("slots with a = %+v, base %+v", withA, baseSlots)
	}
	liveA := dev.LiveTotal()

	if err := r.LoadAsset(assettest.Scene("b")); err != nil {
		t.Fatal(err)
	}
	if got := r.descriptors.Live(); got != withA {
		t.Errorf("slots with b = %+v, want %+v", got, withA)
	}
	if got := dev.LiveTotal(); got != liveA {
		t.Errorf("live objects with b = %d, with a %d", got, liveA)
	}
	if r.Generation() != 2 {
		t.Errorf("generation = %d, want 2", r.Generation())
	}
	if stats := render(t, r, newTestScene()); stats.Asset != "b" || stats.DrawCalls != 3 {
		t.Errorf("stats after swap = %+v", stats)
	}

	if err := r.UnloadAsset(); err != nil {
		t.Fatal(err)
	}
	if got := r.descriptors.Live(); got != baseSlots {
		t.Errorf("slots after unload = %+v, want %+v", got, baseSlots)
	}
	if got := dev.LiveTotal(); got != baseLive {
		t.Errorf("live objects after unload = %d, want %d", got, baseLive)
	}
	noViolations(t, dev)
}

func TestRejectedAssetKeepsPrevious(t *testing.T) {
	missing := assettest.Scene("no-mesh-frag")
	var kept []assets.ShaderBlob
	for _, s := range missing.Shaders {
		if s.Name != "mesh.frag" {
			kept = append(kept, s)
		}
	}
	missing.Shaders = kept

	unsupported := assettest.Scene("bc5-color")
	unsupported.Images[0].Format = assets.TextureFormatBC5

	for _, tt := range []struct {
		asset *assets.Asset
		want  error
	}{
		{missing, core.ErrMissingShader},
		{unsupported, core.ErrUnsupportedImage},
	} {
		t.Run(tt.asset.Name, func(t *testing.T) {
			dev := gputest.New()
			r := newTestRenderer(t, dev, config.Default(), Options{})
			if err := r.LoadAsset(assettest.Scene("a")); err != nil {
				t.Fatal(err)
			}
			live := dev.LiveTotal()

			err := r.LoadAsset(tt.asset)
			if !errors.Is(err, tt.want) {
				t.Fatalf("LoadAsset() = %v, want %v", err, tt.want)
			}
			var ae *core.AssetError
			if !errors.As(err, &ae) || ae.Stage != "validate" {
				t.Errorf("LoadAsset() error = %#v", err)
			}
			if r.Generation() != 1 || dev.LiveTotal() != live {
				t.Errorf("generation %d, live %d (was %d)", r.Generation(), dev.LiveTotal(), live)
			}
			if stats := render(t, r, newTestScene()); stats.Asset != "a" || stats.DrawCalls != 3 {
				t.Errorf("stats = %+v", stats)
			}
			noViolations(t, dev)
		})
	}
}

func TestSlotOverflowRejectsAsset(t *testing.T) {
	cfg := config.Default()
	// fallback texture and three cascade layers leave one slot
	cfg.Render.MaxSampledImages = 5
	dev := gputest.New()
	r := newTestRenderer(t, dev, cfg, Options{})
	live := dev.LiveTotal()

	err := r.LoadAsset(assettest.Scene("a"))
	if !errors.Is(err, core.ErrDescriptorOverflow) {
		t.Fatalf("LoadAsset() = %v, want ErrDescriptorOverflow", err)
	}
	var oe *core.OverflowError
	if !errors.As(err, &oe) || oe.Capacity != 5 {
		t.Errorf("overflow error = %#v", err)
	}
	if dev.LiveTotal() != live {
		t.Errorf("rejected asset left %d objects, want %d", dev.LiveTotal(), live)
	}
}

// A failure once the previous asset is gone leaves no asset loaded, and
// frames keep presenting.
func TestFailedLoadAfterTeardownRendersEmpty(t *testing.T) {
	dev := gputest.New()
	r := newTestRenderer(t, dev, config.Default(), Options{})
	base := dev.LiveTotal()
	if err := r.LoadAsset(assettest.Scene("a")); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("out of device memory")
	dev.FailOn("CreateShaderModule", len(dev.CallsOf("CreateShaderModule"))+1, boom)
	err := r.LoadAsset(assettest.Scene("b"))
	if !errors.Is(err, boom) {
		t.Fatalf("LoadAsset() = %v", err)
	}
	var ae *core.AssetError
	if !errors.As(err, &ae) || ae.Stage != "shaders" || ae.Asset != "b" {
		t.Errorf("LoadAsset() error = %#v", err)
	}
	if got := dev.LiveTotal(); got != base {
		t.Errorf("live objects = %d, want %d: %v", got, base, dev.LiveSummary())
	}

	dev.ClearCalls()
	stats := render(t, r, newTestScene())
	if stats.DrawCalls != 0 || stats.ShadowDrawCalls != 0 || stats.Asset != "<none>" {
		t.Errorf("empty frame stats = %+v", stats)
	}
	if n := len(dev.CallsOf("Present")); n != 1 {
		t.Errorf("presents = %d", n)
	}
	noViolations(t, dev)

	if err := r.LoadAsset(assettest.Scene("c")); err != nil {
		t.Fatal(err)
	}
	if stats := render(t, r, newTestScene()); stats.DrawCalls != 3 {
		t.Errorf("draws after reload = %d", stats.DrawCalls)
	}
}

func TestResize(t *testing.T) {
	dev := gputest.New()
	r := newTestRenderer(t, dev, config.Default(), Options{})
	if err := r.LoadAsset(assettest.Scene("a")); err != nil {
		t.Fatal(err)
	}
	render(t, r, newTestScene())

	dev.Caps.CurrentExtent = gpu.Extent2D{Width: 800, Height: 600}
	if err := r.Resize(gpu.Extent2D{Width: 800, Height: 600}); err != nil {
		t.Fatal(err)
	}
	if got := r.targets.extent; got != (gpu.Extent2D{Width: 800, Height: 600}) {
		t.Errorf("draw extent = %v", got)
	}
	if stats := render(t, r, newTestScene()); stats.DrawCalls != 3 {
		t.Errorf("draws after resize = %d", stats.DrawCalls)
	}
	noViolations(t, dev)
}

func TestRenderScaleShrinksDrawImage(t *testing.T) {
	cfg := config.Default()
	cfg.Render.RenderScale = 0.5
	dev := gputest.New()
	r := newTestRenderer(t, dev, cfg, Options{})
	if got := r.targets.extent; got != (gpu.Extent2D{Width: 640, Height: 360}) {
		t.Errorf("draw extent = %v", got)
	}
	render(t, r, newTestScene())
	noViolations(t, dev)
}

// The MSAA level changes only when the targets are rebuilt; the mesh and
// debug variants built for the old targets go with them.
func TestMSAAChangeAppliesAtResize(t *testing.T) {
	dev := gputest.New()
	r := newTestRenderer(t, dev, config.Default(), Options{})
	if err := r.LoadAsset(assettest.Scene("a")); err != nil {
		t.Fatal(err)
	}
	if r.Settings().Samples != 4 {
		t.Fatalf("samples = %d, want 4", r.Settings().Samples)
	}
	if n := r.pipelines.len(); n != 4 {
		t.Fatalf("prewarmed variants = %d, want 4", n)
	}

	if !r.Apply(EditorCommand{Kind: CmdSetMSAA, Samples: 1}) {
		t.Fatal("Apply(set-msaa) not handled")
	}
	if s := r.Settings(); s.Samples != 4 || s.RequestedSamples != 1 {
		t.Errorf("settings before resize = %+v", s)
	}
	if err := r.Resize(window); err != nil {
		t.Fatal(err)
	}
	if n := r.pipelines.len(); n != 1 {
		t.Errorf("variants after resize = %d, want the shadow variant only", n)
	}

	dev.ClearCalls()
	render(t, r, newTestScene())
	if r.Settings().Samples != 1 || r.targets.multisampled() {
		t.Errorf("samples after resize = %d", r.Settings().Samples)
	}
	if n := len(dev.CallsOf("ResolveImage")); n != 0 {
		t.Errorf("resolves without MSAA = %d", n)
	}
	for _, c := range dev.CallsOf("CreatePipeline") {
		p := c.Target
		if strings.HasPrefix(p, "shadow") {
			t.Errorf("shadow variant %s rebuilt", p)
		}
	}
	noViolations(t, dev)
}

func TestMinimizedWindowRecovers(t *testing.T) {
	dev := gputest.New()
	r := newTestRenderer(t, dev, config.Default(), Options{})
	if err := r.LoadAsset(assettest.Scene("a")); err != nil {
		t.Fatal(err)
	}

	dev.Caps.CurrentExtent = gpu.Extent2D{}
	err := r.Resize(gpu.Extent2D{})
	if !core.NeedsSwapchainRebuild(err) {
		t.Fatalf("Resize(0x0) = %v", err)
	}
	if err := r.Render(newTestScene(), &testEditor{}); !core.NeedsSwapchainRebuild(err) {
		t.Fatalf("Render() while minimized = %v", err)
	}

	dev.Caps.CurrentExtent = window
	if stats := render(t, r, newTestScene()); stats.DrawCalls != 3 {
		t.Errorf("draws after restore = %d", stats.DrawCalls)
	}
	noViolations(t, dev)
}

func TestAcquireOutOfDate(t *testing.T) {
	dev := gputest.New()
	r := newTestRenderer(t, dev, config.Default(), Options{})
	render(t, r, newTestScene())

	dev.FailOn("AcquireNextImage", len(dev.CallsOf("AcquireNextImage"))+1, errors.Wrap(core.ErrSwapchainOutOfDate, "acquire"))
	err := r.Render(newTestScene(), &testEditor{})
	if !core.NeedsSwapchainRebuild(err) {
		t.Fatalf("Render() = %v, want a swapchain rebuild", err)
	}
	if !core.IsFrameRecoverable(err) {
		t.Errorf("Render() error %v is not recoverable", err)
	}
	if err := r.Resize(window); err != nil {
		t.Fatal(err)
	}
	render(t, r, newTestScene())
	noViolations(t, dev)
}

// A frame that fails between acquire and submit gives its slot back and
// the next frame renders normally.
func TestAbortedFrameRecovers(t *testing.T) {
	for _, op := range []string{"Submit", "EndCommandBuffer"} {
		t.Run(op, func(t *testing.T) {
			dev := gputest.New()
			r := newTestRenderer(t, dev, config.Default(), Options{})
			if err := r.LoadAsset(assettest.Scene("a")); err != nil {
				t.Fatal(err)
			}
			render(t, r, newTestScene())
			render(t, r, newTestScene())
			semaphores := dev.Live("Semaphore")

			boom := errors.New("queue lost the batch")
			dev.FailOn(op, len(dev.CallsOf(op))+1, boom)
			err := r.Render(newTestScene(), &testEditor{})
			if !errors.Is(err, boom) {
				t.Fatalf("Render() = %v", err)
			}
			if !core.IsFrameRecoverable(err) {
				t.Errorf("Render() error %v is not recoverable", err)
			}
			if got := dev.Live("Semaphore"); got != semaphores {
				t.Errorf("live semaphores = %d, want %d", got, semaphores)
			}

			for i := 0; i < 4; i++ {
				if stats := render(t, r, newTestScene()); stats.DrawCalls != 3 {
					t.Errorf("frame %d after abort: %d draws", i, stats.DrawCalls)
				}
			}
			noViolations(t, dev)
		})
	}
}

func TestDebugLinesTruncateToCapacity(t *testing.T) {
	cfg := config.Default()
	cfg.Render.DebugVertices = 8
	dev := gputest.New()
	r := newTestRenderer(t, dev, cfg, Options{})
	if err := r.LoadAsset(assettest.Scene("a")); err != nil {
		t.Fatal(err)
	}
	scene := newTestScene()
	for i := 0; i < 10; i++ {
		scene.lines = append(scene.lines, DebugLine{To: mgl32.Vec3{float32(i), 1, 0}, Color: mgl32.Vec4{1, 0, 0, 1}})
	}

	dev.ClearCalls()
	stats := render(t, r, scene)
	if stats.Lines != 4 {
		t.Errorf("lines = %d, want 4", stats.Lines)
	}
	if stats.DrawCalls != 3 {
		t.Errorf("debug lines counted as mesh draws: %d", stats.DrawCalls)
	}
	draws := dev.CallsOf("Draw")
	if len(draws) != 1 || draws[0].Count != 8 || !strings.HasPrefix(draws[0].Pipeline, "debug") {
		t.Errorf("debug draws = %v", draws)
	}
	// the second slot writes its own region
	render(t, r, scene)
	noViolations(t, dev)
}

func TestEditorCommands(t *testing.T) {
	dev := gputest.New()
	r := newTestRenderer(t, dev, config.Default(), Options{})
	if err := r.LoadAsset(assettest.Scene("a")); err != nil {
		t.Fatal(err)
	}
	if r.Apply(EditorCommand{Kind: CmdReloadAsset}) {
		t.Error("renderer claimed reload-asset")
	}

	r.Apply(EditorCommand{Kind: CmdToggleShadows})
	if stats := render(t, r, newTestScene()); stats.ShadowDrawCalls != 0 || stats.DrawCalls != 3 {
		t.Errorf("stats with shadows off = %+v", stats)
	}
	r.Apply(EditorCommand{Kind: CmdToggleShadows})
	if stats := render(t, r, newTestScene()); stats.ShadowDrawCalls != 9 {
		t.Errorf("shadow draws with shadows on = %d", stats.ShadowDrawCalls)
	}

	r.Apply(EditorCommand{Kind: CmdSetCullMode, Cull: gpu.CullNone})
	r.Apply(EditorCommand{Kind: CmdToggleDebug})
	if s := r.Settings(); s.Cull != gpu.CullNone || !s.DebugCascades {
		t.Errorf("settings = %+v", s)
	}
	dev.ClearCalls()
	render(t, r, newTestScene())
	if n := len(dev.CallsOf("CreatePipeline")); n != 1 {
		t.Errorf("cull change built %d pipelines, want 1", n)
	}
	noViolations(t, dev)
}

func TestOverlayRecordsInsideMainPass(t *testing.T) {
	dev := gputest.New()
	overlay := &testOverlay{}
	r := newTestRenderer(t, dev, config.Default(), Options{Overlay: overlay})
	scene := newTestScene()

	render(t, r, scene)
	if overlay.calls != 0 {
		t.Errorf("overlay recorded with the UI hidden")
	}
	scene.ui = true
	render(t, r, scene)
	if overlay.calls != 1 {
		t.Fatalf("overlay calls = %d", overlay.calls)
	}
	if overlay.last.Samples != 4 || overlay.last.Extent != window || overlay.last.Pass == nil {
		t.Errorf("overlay saw %+v", overlay.last)
	}
	if overlay.last.Scene != SceneView(scene) {
		t.Error("overlay did not get the frame's scene")
	}
}

func TestShutdownReleasesEverything(t *testing.T) {
	dev := gputest.New()
	r := newTestRenderer(t, dev, config.Default(), Options{})
	if err := r.LoadAsset(assettest.Scene("a")); err != nil {
		t.Fatal(err)
	}
	render(t, r, newTestScene())
	render(t, r, newTestScene())

	if err := r.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if live := dev.LiveTotal(); live != 0 {
		t.Errorf("live after shutdown: %v", dev.LiveSummary())
	}
	noViolations(t, dev)

	if err := r.Shutdown(); err != nil {
		t.Errorf("second Shutdown() = %v", err)
	}
	if err := r.Render(newTestScene(), &testEditor{}); !errors.Is(err, core.ErrNotInitialized) {
		t.Errorf("Render() after shutdown = %v", err)
	}
	if err := r.LoadAsset(assettest.Scene("b")); !errors.Is(err, core.ErrNotInitialized) {
		t.Errorf("LoadAsset() after shutdown = %v", err)
	}
}

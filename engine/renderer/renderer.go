// Package renderer records and presents frames: a shadow pass over three
// cascades, a multisampled main pass with opaque, blended and debug draws,
// and a resolve and blit into the swapchain.
package renderer

import (
	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/loov/hrtime"
	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/descriptor"
	"github.com/spaghettifunk/lumen/engine/renderer/frame"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/renderer/lifetime"
	"github.com/spaghettifunk/lumen/engine/renderer/shadow"
	"github.com/spaghettifunk/lumen/engine/renderer/swapchain"
	"github.com/spaghettifunk/lumen/engine/renderer/upload"
)

const (
	flagDescriptors lifetime.Flag = iota
	flagPipelineLayout
	flagUploader
	flagFallback
	flagFrames
	flagDebugBuffer
	flagSwapchain
	flagTargets
	flagShadows

	flagAssetGeometry
	flagAssetImages
	flagAssetSamplers
	flagAssetMaterials
	flagAssetShaders
	flagAssetPipelines
)

// teardownOrder lists resources in creation order; teardown runs it
// backwards, so the asset goes before the device objects it references.
var teardownOrder = []lifetime.Entry{
	{Flag: flagDescriptors, Name: "bindless descriptors", Scope: lifetime.ScopeDevice},
	{Flag: flagPipelineLayout, Name: "pipeline layout", Scope: lifetime.ScopeDevice},
	{Flag: flagUploader, Name: "upload pipeline", Scope: lifetime.ScopeDevice},
	{Flag: flagFallback, Name: "fallback texture", Scope: lifetime.ScopeDevice},
	{Flag: flagFrames, Name: "frame ring", Scope: lifetime.ScopeDevice},
	{Flag: flagDebugBuffer, Name: "debug vertices", Scope: lifetime.ScopeDevice},
	{Flag: flagSwapchain, Name: "swapchain", Scope: lifetime.ScopeDevice},
	{Flag: flagTargets, Name: "render targets", Scope: lifetime.ScopeDevice},
	{Flag: flagShadows, Name: "shadow cascades", Scope: lifetime.ScopeDevice},
	{Flag: flagAssetGeometry, Name: "asset geometry", Scope: lifetime.ScopeAsset},
	{Flag: flagAssetImages, Name: "asset images", Scope: lifetime.ScopeAsset},
	{Flag: flagAssetSamplers, Name: "asset samplers", Scope: lifetime.ScopeAsset},
	{Flag: flagAssetMaterials, Name: "asset materials", Scope: lifetime.ScopeAsset},
	{Flag: flagAssetShaders, Name: "asset shaders", Scope: lifetime.ScopeAsset},
	{Flag: flagAssetPipelines, Name: "asset pipelines", Scope: lifetime.ScopeAsset},
}

var clearColor = [4]float32{0.02, 0.02, 0.03, 1}

type Options struct {
	// Window is the framebuffer size at startup.
	Window  gpu.Extent2D
	Overlay Overlay
}

type fallback struct {
	image       gpu.Image
	view        gpu.ImageView
	imageSlot   uint32
	sampler     gpu.Sampler
	samplerSlot uint32
}

type Renderer struct {
	device  gpu.Device
	cfg     *config.Config
	timeout uint64
	window  gpu.Extent2D
	overlay Overlay

	tracker     *lifetime.Tracker
	descriptors *descriptor.Manager
	layout      gpu.PipelineLayout
	pipelines   *pipelineCache
	uploader    *upload.Uploader
	fallback    fallback
	ring        *frame.Ring
	debug       gpu.Buffer
	swapchain   *swapchain.Manager
	targets     *targets
	shadows     *shadow.Cascades

	settings   Settings
	asset      *gpuAsset
	generation uint64
	stats      Stats
	// light matrices written into each slot's scene block
	slotMatrices [frame.MaxFramesInFlight][shadow.Layers]mgl32.Mat4
}

// New creates every device-scoped resource. A failure releases whatever was
// created and returns a core.SetupError naming the step.
func New(device gpu.Device, cfg *config.Config, opts Options) (*Renderer, error) {
	settings, err := settingsFromConfig(cfg.Render, device.Limits())
	if err != nil {
		return nil, core.NewSetupError("settings", err)
	}
	r := &Renderer{
		device:   device,
		cfg:      cfg,
		timeout:  cfg.Timeout(),
		window:   opts.Window,
		overlay:  opts.Overlay,
		tracker:  lifetime.NewTracker("renderer", teardownOrder),
		settings: settings,
	}
	steps := []struct {
		name string
		flag lifetime.Flag
		fn   func() (func() error, error)
	}{
		{"descriptors", flagDescriptors, r.createDescriptors},
		{"pipeline layout", flagPipelineLayout, r.createPipelineLayout},
		{"upload pipeline", flagUploader, r.createUploader},
		{"fallback texture", flagFallback, r.createFallback},
		{"frame ring", flagFrames, r.createFrames},
		{"debug vertices", flagDebugBuffer, r.createDebugBuffer},
		{"swapchain", flagSwapchain, r.createSwapchain},
		{"render targets", flagTargets, r.createTargets},
		{"shadow cascades", flagShadows, r.createShadows},
	}
	for _, s := range steps {
		if err := r.tracker.Create(s.flag, s.fn); err != nil {
			if terr := r.tracker.Teardown(); terr != nil {
				core.LogError("renderer setup cleanup: %s", terr)
			}
			return nil, core.NewSetupError(s.name, err)
		}
	}
	r.pipelines.setTarget(PermutationShadow, r.shadows.RenderPass(), 1)
	r.retarget()
	core.LogInfo("renderer ready: %d frames in flight, %dx MSAA, draw extent %dx%d",
		r.ring.Count(), r.settings.Samples, r.targets.extent.Width, r.targets.extent.Height)
	return r, nil
}

func (r *Renderer) createDescriptors() (func() error, error) {
	var err error
	r.descriptors, err = descriptor.NewManager(r.device, descriptor.Capacities{
		StorageImages: r.cfg.Render.MaxStorageImages,
		SampledImages: r.cfg.Render.MaxSampledImages,
		Samplers:      r.cfg.Render.MaxSamplers,
	})
	if err != nil {
		return nil, err
	}
	return func() error {
		r.descriptors.Destroy()
		return nil
	}, nil
}

func (r *Renderer) createPipelineLayout() (func() error, error) {
	var err error
	r.layout, err = r.device.CreatePipelineLayout(gpu.PipelineLayoutDesc{
		Name:             "bindless",
		Set:              r.descriptors.Set(),
		PushConstantSize: PushConstantSize,
		PushStages:       gpu.ShaderStageAllGraphics,
	})
	if err != nil {
		return nil, err
	}
	r.pipelines = newPipelineCache(r.device, r.layout)
	return func() error {
		r.pipelines.destroy()
		r.device.DestroyPipelineLayout(r.layout)
		r.layout = nil
		return nil
	}, nil
}

func (r *Renderer) createUploader() (func() error, error) {
	var err error
	if r.uploader, err = upload.NewUploader(r.device, r.timeout); err != nil {
		return nil, err
	}
	return func() error {
		r.uploader.Destroy()
		return nil
	}, nil
}

// createFallback uploads the 1x1 white texture and default sampler that
// stand in for missing material references.
func (r *Renderer) createFallback() (func() error, error) {
	f := &r.fallback
	var slots int
	destroy := func() error {
		var errs error
		if slots > 1 {
			errs = errors.CombineErrors(errs, r.descriptors.ReleaseSampler(f.samplerSlot))
		}
		if slots > 0 {
			errs = errors.CombineErrors(errs, r.descriptors.ReleaseSampledImage(f.imageSlot))
		}
		r.device.DestroySampler(f.sampler)
		r.device.DestroyImageView(f.view)
		r.device.DestroyImage(f.image)
		*f = fallback{}
		return errs
	}
	fail := func(err error) (func() error, error) {
		destroy()
		return nil, err
	}

	var err error
	f.image, err = r.device.CreateImage(gpu.ImageDesc{
		Name:    "fallback-white",
		Format:  gpu.FormatRGBA8Unorm,
		Extent:  gpu.Extent2D{Width: 1, Height: 1},
		Mips:    1,
		Layers:  1,
		Samples: 1,
		Usage:   gpu.ImageUsageSampled | gpu.ImageUsageTransferDst,
	})
	if err != nil {
		return fail(err)
	}
	if f.view, err = r.device.CreateImageView(gpu.ImageViewDesc{Name: "fallback-white", Image: f.image, LayerCount: 1, MipCount: 1}); err != nil {
		return fail(err)
	}
	f.sampler, err = r.device.CreateSampler(gpu.SamplerDesc{
		Name:      "default",
		MagFilter: gpu.FilterLinear,
		MinFilter: gpu.FilterLinear,
		MipFilter: gpu.FilterLinear,
		MaxLod:    16,
	})
	if err != nil {
		return fail(err)
	}
	if err := r.uploader.UploadImage(f.image, [][]byte{{255, 255, 255, 255}}, gpu.LayoutShaderReadOnly); err != nil {
		return fail(err)
	}
	if f.imageSlot, err = r.descriptors.AddSampledImage(f.view); err != nil {
		return fail(err)
	}
	slots++
	if f.samplerSlot, err = r.descriptors.AddSampler(f.sampler); err != nil {
		return fail(err)
	}
	slots++
	return destroy, nil
}

func (r *Renderer) createFrames() (func() error, error) {
	var err error
	r.ring, err = frame.NewRing(r.device, r.cfg.Device.FramesInFlight, SceneUniformSize, MaxObjects*transformStride)
	if err != nil {
		return nil, err
	}
	return func() error {
		r.ring.Destroy()
		return nil
	}, nil
}

// createDebugBuffer reserves one region of debug vertices per frame slot.
// The CPU writes a region only after that slot's fence signaled.
func (r *Renderer) createDebugBuffer() (func() error, error) {
	var err error
	r.debug, err = r.device.CreateBuffer(gpu.BufferDesc{
		Name:   "debug-vertices",
		Size:   uint64(max(r.cfg.Render.DebugVertices, 2)) * debugVertexStride * uint64(r.ring.Count()),
		Usage:  gpu.BufferUsageStorage | gpu.BufferUsageDeviceAddress,
		Memory: gpu.MemoryHostVisible,
	})
	if err != nil {
		return nil, err
	}
	return func() error {
		r.device.DestroyBuffer(r.debug)
		r.debug = nil
		return nil
	}, nil
}

func (r *Renderer) createSwapchain() (func() error, error) {
	r.swapchain = swapchain.NewManager(r.device, r.ring.Count()+1, r.cfg.Render.VSync)
	if err := r.swapchain.Create(r.window); err != nil {
		return nil, err
	}
	return func() error {
		r.swapchain.Destroy()
		return nil
	}, nil
}

func (r *Renderer) createTargets() (func() error, error) {
	extent := r.swapchain.Extent().Scale(r.settings.RenderScale)
	t, err := newTargets(r.device, extent, r.settings.Samples, r.device.Limits().DepthFormat)
	if err != nil {
		return nil, err
	}
	r.targets = t
	return func() error {
		r.targets.destroy()
		return nil
	}, nil
}

func (r *Renderer) createShadows() (func() error, error) {
	var err error
	r.shadows, err = shadow.New(r.device, r.descriptors, r.cfg.Render.ShadowMapSize, r.device.Limits().DepthFormat)
	if err != nil {
		return nil, err
	}
	return func() error {
		return r.shadows.Destroy()
	}, nil
}

// retarget points the main pass permutations at the current render targets.
func (r *Renderer) retarget() {
	r.pipelines.setTarget(PermutationMesh, r.targets.pass, r.targets.samples)
	r.pipelines.setTarget(PermutationDebug, r.targets.pass, r.targets.samples)
}

// Settings returns the current fixed-function state.
func (r *Renderer) Settings() Settings { return r.settings }

func (r *Renderer) Stats() Stats { return r.stats }

// Generation increases with every successful LoadAsset.
func (r *Renderer) Generation() uint64 { return r.generation }

// Apply changes a setting from the editor. It reports false for commands the
// renderer does not handle.
func (r *Renderer) Apply(cmd EditorCommand) bool {
	switch cmd.Kind {
	case CmdToggleShadows:
		r.settings.Shadows = !r.settings.Shadows
	case CmdToggleDebug:
		r.settings.DebugCascades = !r.settings.DebugCascades
	case CmdSetCullMode:
		r.settings.Cull = cmd.Cull
	case CmdSetMSAA:
		r.settings.RequestedSamples = clampSamples(cmd.Samples, r.device.Limits())
	default:
		return false
	}
	core.LogDebug("editor: %s applied", cmd.Kind)
	return true
}

// Resize rebuilds the swapchain and the render targets for a new window
// size. The GPU is drained first. A zero-area window leaves the renderer
// without a swapchain until the next resize.
func (r *Renderer) Resize(window gpu.Extent2D) error {
	r.window = window
	return r.rebuild()
}

func (r *Renderer) rebuild() error {
	if err := r.swapchain.Resize(r.window); err != nil {
		r.ring.Settle()
		return err
	}
	r.ring.Settle()
	r.settings.Samples = r.settings.RequestedSamples
	if err := r.tracker.Release(flagTargets); err != nil {
		core.LogWarn("releasing render targets: %s", err)
	}
	if err := r.tracker.Create(flagTargets, r.createTargets); err != nil {
		return err
	}
	r.retarget()
	core.LogInfo("resized: swapchain %dx%d, draw extent %dx%d, %dx MSAA",
		r.swapchain.Extent().Width, r.swapchain.Extent().Height, r.targets.extent.Width, r.targets.extent.Height, r.targets.samples)
	return nil
}

// framePipelines are the variants one frame draws with.
type framePipelines struct {
	opaque, blended, shadow, debug gpu.Pipeline
}

func (r *Renderer) framePipelines() (*framePipelines, error) {
	if r.asset == nil {
		return nil, nil
	}
	var p framePipelines
	var err error
	if p.opaque, err = r.pipelines.get(opaqueKey(r.settings)); err != nil {
		return nil, err
	}
	if p.blended, err = r.pipelines.get(blendedKey(r.settings)); err != nil {
		return nil, err
	}
	if p.shadow, err = r.pipelines.get(shadowKey(r.settings)); err != nil {
		return nil, err
	}
	if p.debug, err = r.pipelines.get(debugKey(r.settings)); err != nil {
		return nil, err
	}
	return &p, nil
}

// Render records, submits and presents one frame. Errors are per-frame: the
// frame is dropped and the caller retries next tick, rebuilding the
// swapchain when core.NeedsSwapchainRebuild says so. With no asset loaded
// the frame is cleared and presented without draws.
func (r *Renderer) Render(scene SceneView, editor EditorSink) error {
	if r.tracker == nil || !r.tracker.Has(flagFrames) {
		return core.NewFrameError("render", core.ErrNotInitialized)
	}
	start := hrtime.Now()
	if !r.swapchain.Valid() || !r.tracker.Has(flagTargets) {
		if err := r.rebuild(); err != nil {
			return core.NewFrameError("swapchain", err)
		}
	}

	// pipeline variants are resolved before an image is acquired so a
	// failure here holds nothing
	pipes, err := r.framePipelines()
	if err != nil {
		return core.NewFrameError("pipelines", err)
	}

	slot, err := r.ring.Wait(r.timeout)
	if err != nil {
		return err
	}
	image, err := r.device.AcquireNextImage(r.swapchain.Swapchain(), r.timeout, slot.ImageAvailable)
	if err != nil {
		return core.NewFrameError("acquire", err)
	}
	if _, err := r.ring.Begin(); err != nil {
		r.abandon()
		return err
	}

	stats, err := r.record(slot, image, scene, editor, pipes)
	if err != nil {
		r.abandon()
		return err
	}
	if err := slot.Command.End(); err != nil {
		r.abandon()
		return core.NewFrameError("record", err)
	}
	err = r.device.Submit(gpu.SubmitInfo{
		Command:   slot.Command,
		Wait:      slot.ImageAvailable,
		WaitStage: gpu.StageTransfer,
		Signal:    slot.RenderFinished,
		Fence:     slot.InFlight,
	})
	if err != nil {
		r.abandon()
		return core.NewFrameError("submit", err)
	}
	r.ring.MarkSubmitted()
	presentErr := r.device.Present(r.swapchain.Swapchain(), image, slot.RenderFinished)
	r.ring.Advance()

	stats.Frame = r.ring.Frame()
	stats.Generation = r.generation
	stats.Asset = r.assetName()
	stats.Slots = r.descriptors.Live()
	stats.DrawTime = hrtime.Since(start)
	r.stats = stats
	if presentErr != nil {
		return core.NewFrameError("present", presentErr)
	}
	return nil
}

// abandon returns the current slot after a failure between acquire and
// submit. The acquire semaphore was signaled and nothing will wait on it,
// so it is replaced.
func (r *Renderer) abandon() {
	r.ring.Abort()
	if err := r.device.WaitIdle(); err != nil {
		core.LogError("abandoning frame: %s", err)
	}
	if err := r.ring.ReplaceImageAvailable(); err != nil {
		core.LogError("abandoning frame: %s", err)
	}
}

func (r *Renderer) transforms(scene SceneView) []mgl32.Mat4 {
	if r.asset == nil {
		return nil
	}
	out := append([]mgl32.Mat4(nil), r.asset.transforms...)
	copy(out, scene.Transforms())
	return out
}

func (r *Renderer) record(slot *frame.Slot, image uint32, scene SceneView, editor EditorSink, pipes *framePipelines) (Stats, error) {
	var stats Stats
	cmd := slot.Command
	t := r.targets
	set := r.descriptors.Set()

	// scene block and transforms, one frame ahead
	cam := scene.Camera()
	cam.Aspect = float32(t.extent.Width) / float32(t.extent.Height)
	light := scene.Light()
	r.shadows.Update(cam.frustum(), light.Direction, r.cfg.Render.CascadeSplits)
	matrices := r.shadows.Matrices()
	var flags uint32
	if r.settings.Shadows {
		flags |= sceneFlagShadows
	}
	if r.settings.DebugCascades {
		flags |= sceneFlagDebugCascades
	}
	sceneData := encodeScene(cam, light, sceneSlots{
		layers:   r.shadows.LayerSlots(),
		compare:  r.shadows.CompareSamplerSlot(),
		debug:    r.shadows.DebugSamplerSlot(),
		matrices: matrices,
		splits:   r.shadows.Splits(),
		fallback: r.fallback.imageSlot,
		flags:    flags,
	})
	transformData := packTransforms(r.transforms(scene))
	if !slot.Primed() {
		if err := r.ring.RecordDynamicWrites(cmd, slot, sceneData, transformData); err != nil {
			return stats, core.NewFrameError("dynamic writes", err)
		}
		r.slotMatrices[slot.Index] = matrices
	}
	if next := r.ring.Next(); next != slot {
		if err := r.ring.RecordDynamicWrites(cmd, next, sceneData, transformData); err != nil {
			return stats, core.NewFrameError("dynamic writes", err)
		}
		r.slotMatrices[next.Index] = matrices
	}
	// the shadow pass must use the matrices the main pass will sample with
	shadowMatrices := r.slotMatrices[slot.Index]

	// debug lines go straight into this slot's host-visible region
	lines := scene.DebugLines()
	region := uint64(max(r.cfg.Render.DebugVertices, 2))
	lineData, lineCount := packDebugLines(lines, uint32(region))
	if dropped := len(lines) - int(lineCount); dropped > 0 {
		core.LogWarn("debug draw: %d lines over capacity dropped", dropped)
	}
	if lineCount > 0 {
		if err := r.device.WriteBuffer(r.debug, uint64(slot.Index)*region*debugVertexStride, lineData); err != nil {
			return stats, core.NewFrameError("debug draw", err)
		}
	}

	a := r.asset
	r.shadows.Record(cmd, func(layer int, _ mgl32.Mat4) {
		if pipes == nil || !r.settings.Shadows {
			return
		}
		cmd.BindPipeline(pipes.shadow)
		cmd.BindBindlessSet(r.layout, set)
		cmd.BindIndexBuffer(a.indices, 0)
		for _, d := range a.draws.Shadow {
			push(cmd, r.layout, ShadowPush{
				LightViewProj:    shadowMatrices[layer],
				TransformAddress: slot.Transforms.Address(),
				VertexAddress:    a.vertices.Address(),
				ObjectIndex:      d.Object,
			})
			cmd.DrawIndexed(d.IndexCount, 1, d.FirstIndex, d.VertexOffset, 0)
			stats.ShadowDrawCalls++
		}
	})

	// The previous frame last wrote the color target in the main pass and
	// read it in the resolve or blit.
	cmd.PipelineBarrier(gpu.TransitionImage(t.color,
		gpu.LayoutUndefined, gpu.LayoutTransferDst,
		gpu.StageColorAttachmentOutput|gpu.StageTransfer, gpu.StageTransfer,
		gpu.AccessColorAttachmentWrite|gpu.AccessTransferRead, gpu.AccessTransferWrite))
	cmd.ClearColorImage(t.color, gpu.LayoutTransferDst, clearColor)
	cmd.PipelineBarrier(gpu.TransitionImage(t.color,
		gpu.LayoutTransferDst, gpu.LayoutColorAttachment,
		gpu.StageTransfer, gpu.StageColorAttachmentOutput,
		gpu.AccessTransferWrite, gpu.AccessColorAttachmentRead|gpu.AccessColorAttachmentWrite))

	cmd.BeginRenderPass(t.pass, t.framebuffer, []gpu.ClearValue{gpu.ClearColor(clearColor[0], clearColor[1], clearColor[2], clearColor[3]), gpu.ClearDepth(1)})
	cmd.SetViewport(gpu.Viewport{Width: float32(t.extent.Width), Height: float32(t.extent.Height), MaxDepth: 1})
	cmd.SetScissor(gpu.Rect2D{Extent: t.extent})
	cmd.BindBindlessSet(r.layout, set)
	if pipes != nil {
		cmd.BindIndexBuffer(a.indices, 0)
		draw := func(p gpu.Pipeline, list []DrawRecord) {
			cmd.BindPipeline(p)
			for _, d := range list {
				push(cmd, r.layout, MeshPush{
					SceneAddress:     slot.Scene.Address(),
					TransformAddress: slot.Transforms.Address(),
					VertexAddress:    a.vertices.Address(),
					MaterialAddress:  a.materials.Address(),
					ObjectIndex:      d.Object,
					MaterialIndex:    d.Material,
				})
				cmd.DrawIndexed(d.IndexCount, 1, d.FirstIndex, d.VertexOffset, 0)
				stats.DrawCalls++
				stats.Triangles += d.Triangles()
			}
		}
		draw(pipes.opaque, a.draws.Opaque)
		draw(pipes.blended, a.draws.Blended)
		if lineCount > 0 {
			cmd.BindPipeline(pipes.debug)
			push(cmd, r.layout, DebugPush{
				SceneAddress:  slot.Scene.Address(),
				VertexAddress: r.debug.Address(),
				FirstVertex:   slot.Index * uint32(region),
			})
			cmd.Draw(lineCount*2, 1, 0, 0)
			stats.Lines = lineCount
		}
	}
	if r.overlay != nil && scene.UIEnabled() {
		r.overlay.Record(cmd, UI{
			Pass:     t.pass,
			Samples:  t.samples,
			Extent:   t.extent,
			Stats:    r.stats,
			Settings: r.settings,
			Scene:    scene,
			Editor:   editor,
		})
	}
	cmd.EndRenderPass()

	// Attachment writes must land before the resolve or blit reads them.
	cmd.PipelineBarrier(gpu.TransitionImage(t.color,
		gpu.LayoutTransferSrc, gpu.LayoutTransferSrc,
		gpu.StageColorAttachmentOutput, gpu.StageTransfer,
		gpu.AccessColorAttachmentWrite, gpu.AccessTransferRead))

	if t.multisampled() {
		cmd.PipelineBarrier(gpu.TransitionImage(t.draw,
			gpu.LayoutUndefined, gpu.LayoutTransferDst,
			gpu.StageTransfer, gpu.StageTransfer,
			gpu.AccessTransferRead, gpu.AccessTransferWrite))
		cmd.ResolveImage(t.color, gpu.LayoutTransferSrc, t.draw, gpu.LayoutTransferDst, t.extent)
		cmd.PipelineBarrier(gpu.TransitionImage(t.draw,
			gpu.LayoutTransferDst, gpu.LayoutTransferSrc,
			gpu.StageTransfer, gpu.StageTransfer,
			gpu.AccessTransferWrite, gpu.AccessTransferRead))
	}
	target := r.swapchain.Image(image)
	cmd.PipelineBarrier(gpu.TransitionImage(target,
		gpu.LayoutUndefined, gpu.LayoutTransferDst,
		gpu.StageTransfer, gpu.StageTransfer,
		gpu.AccessNone, gpu.AccessTransferWrite))
	cmd.BlitImage(t.draw, gpu.LayoutTransferSrc, t.extent, target, gpu.LayoutTransferDst, r.swapchain.Extent())
	cmd.PipelineBarrier(gpu.TransitionImage(target,
		gpu.LayoutTransferDst, gpu.LayoutPresentSrc,
		gpu.StageTransfer, gpu.StageBottomOfPipe,
		gpu.AccessTransferWrite, gpu.AccessNone))
	return stats, nil
}

// Shutdown drains the GPU and destroys everything in reverse creation
// order.
func (r *Renderer) Shutdown() error {
	if r.tracker == nil {
		return nil
	}
	werr := r.device.WaitIdle()
	if r.tracker.Has(flagFrames) {
		r.ring.Settle()
	}
	r.asset = nil
	terr := r.tracker.Teardown()
	r.tracker = nil
	core.LogInfo("renderer shut down")
	return errors.CombineErrors(werr, terr)
}

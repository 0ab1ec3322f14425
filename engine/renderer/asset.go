package renderer

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"github.com/spaghettifunk/lumen/engine/assets"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/renderer/lifetime"
	"github.com/spaghettifunk/lumen/engine/renderer/upload"
)

// RequiredShaders are the blobs every asset must carry, keyed by permutation.
var RequiredShaders = map[Permutation][2]string{
	PermutationMesh:   {"mesh.vert", "mesh.frag"},
	PermutationShadow: {"shadow.vert", ""},
	PermutationDebug:  {"debug.vert", "debug.frag"},
}

// gpuAsset is everything uploaded for the loaded asset.
type gpuAsset struct {
	id         uuid.UUID
	name       string
	generation uint64

	vertices  gpu.Buffer
	indices   gpu.Buffer
	materials gpu.Buffer

	images       []gpu.Image
	views        []gpu.ImageView
	imageSlots   []uint32
	samplers     []gpu.Sampler
	samplerSlots []uint32
	modules      map[string]gpu.ShaderModule

	meshes     []MeshRecord
	draws      DrawLists
	transforms []mgl32.Mat4
}

// LoadAsset replaces the loaded asset. Validation and packing run before
// anything is destroyed, so those failures keep the previous asset. Once the
// previous asset is torn down a failure leaves no asset loaded; Render then
// draws empty frames.
func (r *Renderer) LoadAsset(a *assets.Asset) error {
	if a == nil {
		return core.NewAssetError("", "validate", errors.Wrap(core.ErrInvalidAsset, "nil asset"))
	}
	if r.tracker == nil {
		return core.NewAssetError(a.Name, "validate", core.ErrNotInitialized)
	}
	if err := r.checkAsset(a); err != nil {
		return core.NewAssetError(a.Name, "validate", err)
	}
	vertices, indices, meshes, err := packMeshes(a)
	if err != nil {
		return core.NewAssetError(a.Name, "pack", err)
	}

	if err := r.device.WaitIdle(); err != nil {
		return core.NewAssetError(a.Name, "wait idle", err)
	}
	r.ring.Settle()
	if err := r.unloadAsset(); err != nil {
		core.LogWarn("unloading %s: %s", r.assetName(), err)
	}

	g := &gpuAsset{
		id:      a.ID,
		name:    a.Name,
		meshes:  meshes,
		draws:   buildDrawLists(a, meshes),
		modules: map[string]gpu.ShaderModule{},
	}
	for _, o := range a.Objects {
		g.transforms = append(g.transforms, o.Transform)
	}
	steps := []struct {
		stage string
		flag  lifetime.Flag
		fn    func() (func() error, error)
	}{
		{"geometry", flagAssetGeometry, func() (func() error, error) { return r.createGeometry(g, vertices, indices) }},
		{"images", flagAssetImages, func() (func() error, error) { return r.createImages(g, a.Images) }},
		{"samplers", flagAssetSamplers, func() (func() error, error) { return r.createSamplers(g, a.Samplers) }},
		{"materials", flagAssetMaterials, func() (func() error, error) { return r.createMaterials(g, a.Materials) }},
		{"shaders", flagAssetShaders, func() (func() error, error) { return r.createShaders(g, a) }},
		{"pipelines", flagAssetPipelines, r.createPipelines},
	}
	for _, s := range steps {
		if err := r.tracker.Create(s.flag, s.fn); err != nil {
			if uerr := r.unloadAsset(); uerr != nil {
				core.LogError("releasing partial asset %s: %s", a.Name, uerr)
			}
			return core.NewAssetError(a.Name, s.stage, err)
		}
	}

	r.generation++
	g.generation = r.generation
	r.asset = g
	core.LogInfo("asset %s loaded: %d meshes, %d surfaces (%d opaque, %d blended), %d images, generation %d",
		a.Name, len(a.Meshes), len(g.draws.Shadow), len(g.draws.Opaque), len(g.draws.Blended), len(a.Images), g.generation)
	return nil
}

// UnloadAsset waits for the GPU and releases the loaded asset.
func (r *Renderer) UnloadAsset() error {
	if err := r.device.WaitIdle(); err != nil {
		return err
	}
	r.ring.Settle()
	return r.unloadAsset()
}

func (r *Renderer) unloadAsset() error {
	r.asset = nil
	return r.tracker.TeardownScope(lifetime.ScopeAsset)
}

func (r *Renderer) assetName() string {
	if r.asset == nil {
		return "<none>"
	}
	return r.asset.name
}

func (r *Renderer) checkAsset(a *assets.Asset) error {
	if err := a.Validate(); err != nil {
		return err
	}
	for _, names := range RequiredShaders {
		for _, n := range names {
			if n == "" {
				continue
			}
			if _, ok := a.Shader(n); !ok {
				return errors.Wrapf(core.ErrMissingShader, "%s", n)
			}
		}
	}
	for _, img := range a.Images {
		if _, err := textureFormat(img); err != nil {
			return err
		}
	}
	if len(a.Objects) > MaxObjects {
		return errors.Wrapf(core.ErrBufferOverflow, "%d objects, at most %d", len(a.Objects), MaxObjects)
	}
	// slots held by the current asset come back before the new one allocates
	caps := r.descriptors.Capacities()
	live := r.descriptors.Live()
	var held, heldSamplers uint32
	if r.asset != nil {
		held = uint32(len(r.asset.imageSlots))
		heldSamplers = uint32(len(r.asset.samplerSlots))
	}
	if free := caps.SampledImages - live.SampledImages + held; uint32(len(a.Images)) > free {
		return &core.OverflowError{Pool: "sampled-image", Capacity: caps.SampledImages}
	}
	if free := caps.Samplers - live.Samplers + heldSamplers; uint32(len(a.Samplers)) > free {
		return &core.OverflowError{Pool: "sampler", Capacity: caps.Samplers}
	}
	return nil
}

func (r *Renderer) createGeometry(g *gpuAsset, vertices, indices []byte) (func() error, error) {
	var err error
	destroy := func() error {
		r.device.DestroyBuffer(g.indices)
		r.device.DestroyBuffer(g.vertices)
		g.indices, g.vertices = nil, nil
		return nil
	}
	g.vertices, err = r.device.CreateBuffer(gpu.BufferDesc{
		Name:  g.name + "-vertices",
		Size:  uint64(max(len(vertices), vertexStride)),
		Usage: gpu.BufferUsageStorage | gpu.BufferUsageTransferDst | gpu.BufferUsageDeviceAddress,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating vertex buffer")
	}
	g.indices, err = r.device.CreateBuffer(gpu.BufferDesc{
		Name:  g.name + "-indices",
		Size:  uint64(max(len(indices), 4)),
		Usage: gpu.BufferUsageIndex | gpu.BufferUsageTransferDst,
	})
	if err != nil {
		destroy()
		return nil, errors.Wrap(err, "creating index buffer")
	}
	err = r.uploader.Submit(func(b *upload.Batch) {
		b.Buffer(g.vertices, 0, vertices)
		b.Buffer(g.indices, 0, indices)
	})
	if err != nil {
		destroy()
		return nil, err
	}
	return destroy, nil
}

// textureFormat maps an asset image to the device format it is sampled as.
// Color data is sRGB encoded; everything else is linear.
func textureFormat(img assets.Image) (gpu.Format, error) {
	color := img.Kind == assets.ImageKindColor
	switch img.Format {
	case assets.TextureFormatRGBA8:
		if color {
			return gpu.FormatRGBA8Srgb, nil
		}
		return gpu.FormatRGBA8Unorm, nil
	case assets.TextureFormatBC1:
		if color {
			return gpu.FormatBC1RGBASrgb, nil
		}
	case assets.TextureFormatBC3:
		if color {
			return gpu.FormatBC3Srgb, nil
		}
		return gpu.FormatBC3Unorm, nil
	case assets.TextureFormatBC5:
		if img.Kind == assets.ImageKindNormal {
			return gpu.FormatBC5Unorm, nil
		}
	case assets.TextureFormatBC7:
		if color {
			return gpu.FormatBC7Srgb, nil
		}
		return gpu.FormatBC7Unorm, nil
	}
	return gpu.FormatUndefined, errors.Wrapf(core.ErrUnsupportedImage, "image %q: %s data in format %d", img.Name, img.Kind, img.Format)
}

func (r *Renderer) createImages(g *gpuAsset, images []assets.Image) (func() error, error) {
	destroy := func() error {
		var errs error
		for i := len(g.imageSlots) - 1; i >= 0; i-- {
			errs = errors.CombineErrors(errs, r.descriptors.ReleaseSampledImage(g.imageSlots[i]))
		}
		for i := len(g.views) - 1; i >= 0; i-- {
			r.device.DestroyImageView(g.views[i])
		}
		for i := len(g.images) - 1; i >= 0; i-- {
			r.device.DestroyImage(g.images[i])
		}
		g.imageSlots, g.views, g.images = nil, nil, nil
		return errs
	}
	fail := func(err error) (func() error, error) {
		if derr := destroy(); derr != nil {
			core.LogError("releasing images of %s: %s", g.name, derr)
		}
		return nil, err
	}

	for i, src := range images {
		format, err := textureFormat(src)
		if err != nil {
			return fail(err)
		}
		img, err := r.device.CreateImage(gpu.ImageDesc{
			Name:    src.Name,
			Format:  format,
			Extent:  gpu.Extent2D{Width: src.Width, Height: src.Height},
			Mips:    uint32(len(src.Mips)),
			Layers:  1,
			Samples: 1,
			Usage:   gpu.ImageUsageSampled | gpu.ImageUsageTransferDst,
		})
		if err != nil {
			return fail(errors.Wrapf(err, "creating image %d", i))
		}
		g.images = append(g.images, img)
		view, err := r.device.CreateImageView(gpu.ImageViewDesc{
			Name:       src.Name,
			Image:      img,
			LayerCount: 1,
			MipCount:   uint32(len(src.Mips)),
		})
		if err != nil {
			return fail(errors.Wrapf(err, "creating view of image %d", i))
		}
		g.views = append(g.views, view)
	}

	err := r.uploader.Submit(func(b *upload.Batch) {
		for i, src := range images {
			b.Image(g.images[i], src.Mips, gpu.LayoutShaderReadOnly)
		}
	})
	if err != nil {
		return fail(err)
	}
	for _, v := range g.views {
		slot, err := r.descriptors.AddSampledImage(v)
		if err != nil {
			return fail(err)
		}
		g.imageSlots = append(g.imageSlots, slot)
	}
	return destroy, nil
}

func samplerDesc(s assets.Sampler) gpu.SamplerDesc {
	filter := func(linear bool) gpu.Filter {
		if linear {
			return gpu.FilterLinear
		}
		return gpu.FilterNearest
	}
	address := gpu.AddressRepeat
	switch s.Wrap {
	case assets.WrapMirror:
		address = gpu.AddressMirroredRepeat
	case assets.WrapClamp:
		address = gpu.AddressClampToEdge
	}
	return gpu.SamplerDesc{
		Name:         s.Name,
		MagFilter:    filter(s.MagLinear),
		MinFilter:    filter(s.MinLinear),
		MipFilter:    filter(s.MipLinear),
		AddressModeU: address,
		AddressModeV: address,
		Anisotropy:   8,
		MaxLod:       16,
	}
}

func (r *Renderer) createSamplers(g *gpuAsset, samplers []assets.Sampler) (func() error, error) {
	destroy := func() error {
		var errs error
		for i := len(g.samplerSlots) - 1; i >= 0; i-- {
			errs = errors.CombineErrors(errs, r.descriptors.ReleaseSampler(g.samplerSlots[i]))
		}
		for i := len(g.samplers) - 1; i >= 0; i-- {
			r.device.DestroySampler(g.samplers[i])
		}
		g.samplerSlots, g.samplers = nil, nil
		return errs
	}
	for i, src := range samplers {
		s, err := r.device.CreateSampler(samplerDesc(src))
		if err == nil {
			g.samplers = append(g.samplers, s)
			var slot uint32
			if slot, err = r.descriptors.AddSampler(s); err == nil {
				g.samplerSlots = append(g.samplerSlots, slot)
				continue
			}
		}
		if derr := destroy(); derr != nil {
			core.LogError("releasing samplers of %s: %s", g.name, derr)
		}
		return nil, errors.Wrapf(err, "sampler %d", i)
	}
	return destroy, nil
}

func (r *Renderer) createMaterials(g *gpuAsset, materials []assets.Material) (func() error, error) {
	data := make([]byte, 0, len(materials)*materialStride)
	for _, m := range materials {
		data = packMaterial(data, m, r.resolveSlots(g, m))
	}
	var err error
	g.materials, err = r.device.CreateBuffer(gpu.BufferDesc{
		Name:  g.name + "-materials",
		Size:  uint64(max(len(data), materialStride)),
		Usage: gpu.BufferUsageStorage | gpu.BufferUsageTransferDst | gpu.BufferUsageDeviceAddress,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating material buffer")
	}
	destroy := func() error {
		r.device.DestroyBuffer(g.materials)
		g.materials = nil
		return nil
	}
	if err := r.uploader.UploadBuffer(g.materials, 0, data); err != nil {
		destroy()
		return nil, err
	}
	return destroy, nil
}

// resolveSlots maps a material's image and sampler references to bindless
// slots. Missing images read the white fallback texture.
func (r *Renderer) resolveSlots(g *gpuAsset, m assets.Material) materialSlots {
	image := func(i int) uint32 {
		if i == assets.NoImage {
			return r.fallback.imageSlot
		}
		return g.imageSlots[i]
	}
	s := materialSlots{
		color:             image(m.ColorImage),
		normal:            image(m.NormalImage),
		metallicRoughness: image(m.MetallicRoughnessImage),
		mix:               image(m.MixImage),
		sampler:           r.fallback.samplerSlot,
	}
	if m.Sampler >= 0 {
		s.sampler = g.samplerSlots[m.Sampler]
	}
	return s
}

func (r *Renderer) createShaders(g *gpuAsset, a *assets.Asset) (func() error, error) {
	destroy := func() error {
		r.pipelines.destroy()
		for name, m := range g.modules {
			r.device.DestroyShaderModule(m)
			delete(g.modules, name)
		}
		return nil
	}
	module := func(name string) (gpu.ShaderModule, string, error) {
		if name == "" {
			return nil, "", nil
		}
		blob, _ := a.Shader(name)
		if m, ok := g.modules[name]; ok {
			return m, entryPoint(blob), nil
		}
		m, err := r.device.CreateShaderModule(fmt.Sprintf("%s/%s", a.Name, name), blob.Code)
		if err != nil {
			return nil, "", errors.Wrapf(err, "shader %s", name)
		}
		g.modules[name] = m
		return m, entryPoint(blob), nil
	}
	for _, p := range []Permutation{PermutationMesh, PermutationShadow, PermutationDebug} {
		names := RequiredShaders[p]
		vs, ventry, err := module(names[0])
		if err != nil {
			destroy()
			return nil, err
		}
		fs, fentry, err := module(names[1])
		if err != nil {
			destroy()
			return nil, err
		}
		r.pipelines.setShaders(p, shaderSet{vertex: vs, fragment: fs, vertexEntry: ventry, fragmentEntry: fentry})
	}
	return destroy, nil
}

func entryPoint(b assets.ShaderBlob) string {
	if b.EntryPoint == "" {
		return "main"
	}
	return b.EntryPoint
}

// createPipelines builds the variants of the current settings up front so
// the first frame does not stall on pipeline creation.
func (r *Renderer) createPipelines() (func() error, error) {
	destroy := func() error {
		r.pipelines.flush(func(PipelineKey) bool { return true })
		return nil
	}
	for _, k := range []PipelineKey{opaqueKey(r.settings), blendedKey(r.settings), shadowKey(r.settings), debugKey(r.settings)} {
		if _, err := r.pipelines.get(k); err != nil {
			destroy()
			return nil, err
		}
	}
	return destroy, nil
}

package assets

import (
	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"github.com/spaghettifunk/lumen/engine/core"
)

// NoImage marks an unused texture reference in a material.
const NoImage = -1

type ImageKind uint8

const (
	ImageKindColor ImageKind = iota
	ImageKindNormal
	ImageKindMetallicRoughness
	// Packed blend weights for layered materials.
	ImageKindMixmap
)

func (k ImageKind) String() string {
	switch k {
	case ImageKindColor:
		return "color"
	case ImageKindNormal:
		return "normal"
	case ImageKindMetallicRoughness:
		return "metallic-roughness"
	case ImageKindMixmap:
		return "mixmap"
	}
	return "unknown"
}

type TextureFormat uint8

const (
	TextureFormatUnknown TextureFormat = iota
	TextureFormatRGBA8
	TextureFormatBC1
	TextureFormatBC3
	TextureFormatBC5
	TextureFormatBC7
)

// blockBytes is the size of one 4x4 block, or of one texel for RGBA8.
func (f TextureFormat) blockBytes() uint64 {
	switch f {
	case TextureFormatRGBA8:
		return 4
	case TextureFormatBC1:
		return 8
	case TextureFormatBC3, TextureFormatBC5, TextureFormatBC7:
		return 16
	}
	return 0
}

// MipSize returns the expected byte size of a width x height level.
func (f TextureFormat) MipSize(width, height uint32) uint64 {
	w, h := uint64(max(width, 1)), uint64(max(height, 1))
	if f == TextureFormatRGBA8 {
		return w * h * 4
	}
	return ((w + 3) / 4) * ((h + 3) / 4) * f.blockBytes()
}

type Vertex struct {
	Position mgl32.Vec3
	Normal   mgl32.Vec3
	UV       mgl32.Vec2
	Tangent  mgl32.Vec4
	Color    mgl32.Vec4
}

// Surface is a contiguous index range of one mesh drawn with one material.
type Surface struct {
	Start    uint32
	Count    uint32
	Material int
}

type Mesh struct {
	Name     string
	Vertices []Vertex
	Indices  []uint32
	Surfaces []Surface
}

type Material struct {
	Name      string
	BaseColor mgl32.Vec4
	Metallic  float32
	Roughness float32
	// Blended materials are drawn after opaque ones with alpha blending.
	Blended bool
	// Indices into Asset.Images, or NoImage.
	ColorImage             int
	NormalImage            int
	MetallicRoughnessImage int
	MixImage               int
	// Index into Asset.Samplers, or -1 for the default sampler.
	Sampler int
}

type Image struct {
	Name   string
	Kind   ImageKind
	Format TextureFormat
	Width  uint32
	Height uint32
	// One entry per mip level, largest first.
	Mips [][]byte
}

type WrapMode uint8

const (
	WrapRepeat WrapMode = iota
	WrapMirror
	WrapClamp
)

type Sampler struct {
	Name      string
	MagLinear bool
	MinLinear bool
	MipLinear bool
	Wrap      WrapMode
}

type ShaderStage uint8

const (
	ShaderStageVertex ShaderStage = iota
	ShaderStageFragment
)

type ShaderBlob struct {
	Name       string
	Stage      ShaderStage
	EntryPoint string
	// SPIR-V words in little-endian byte order.
	Code []byte
}

// Object places a mesh in the scene. Its index is the graphics object index
// used for per-object transforms.
type Object struct {
	Name      string
	Mesh      int
	Transform mgl32.Mat4
}

// Asset is the decoded, immutable description the renderer uploads. It is
// never modified after Validate succeeds.
type Asset struct {
	ID        uuid.UUID
	Name      string
	Meshes    []Mesh
	Materials []Material
	Images    []Image
	Samplers  []Sampler
	Objects   []Object
	Shaders   []ShaderBlob
}

func New(name string) *Asset {
	return &Asset{
		ID:   uuid.New(),
		Name: name,
	}
}

func (a *Asset) Shader(name string) (ShaderBlob, bool) {
	for _, s := range a.Shaders {
		if s.Name == name {
			return s, true
		}
	}
	return ShaderBlob{}, false
}

// SurfaceCount returns the number of surfaces drawn, one per object surface.
func (a *Asset) SurfaceCount() int {
	n := 0
	for _, o := range a.Objects {
		n += len(a.Meshes[o.Mesh].Surfaces)
	}
	return n
}

// Validate checks every cross reference and image payload.
func (a *Asset) Validate() error {
	if len(a.Objects) == 0 {
		return errors.Wrapf(core.ErrInvalidAsset, "%s: no objects", a.Name)
	}
	for i, m := range a.Meshes {
		for _, idx := range m.Indices {
			if int(idx) >= len(m.Vertices) {
				return errors.Wrapf(core.ErrInvalidAsset, "%s: mesh %q index %d out of %d vertices", a.Name, m.Name, idx, len(m.Vertices))
			}
		}
		for j, s := range m.Surfaces {
			if s.Count == 0 || s.Count%3 != 0 {
				return errors.Wrapf(core.ErrInvalidAsset, "%s: mesh %d surface %d has %d indices", a.Name, i, j, s.Count)
			}
			if uint64(s.Start)+uint64(s.Count) > uint64(len(m.Indices)) {
				return errors.Wrapf(core.ErrInvalidAsset, "%s: mesh %d surface %d overruns its index range", a.Name, i, j)
			}
			if s.Material < 0 || s.Material >= len(a.Materials) {
				return errors.Wrapf(core.ErrInvalidAsset, "%s: mesh %d surface %d uses material %d", a.Name, i, j, s.Material)
			}
		}
	}
	for _, mat := range a.Materials {
		refs := []struct {
			index int
			kind  ImageKind
		}{
			{mat.ColorImage, ImageKindColor},
			{mat.NormalImage, ImageKindNormal},
			{mat.MetallicRoughnessImage, ImageKindMetallicRoughness},
			{mat.MixImage, ImageKindMixmap},
		}
		for _, r := range refs {
			if r.index == NoImage {
				continue
			}
			if r.index < 0 || r.index >= len(a.Images) {
				return errors.Wrapf(core.ErrInvalidAsset, "%s: material %q references image %d", a.Name, mat.Name, r.index)
			}
			if got := a.Images[r.index].Kind; got != r.kind {
				return errors.Wrapf(core.ErrUnsupportedImage, "%s: material %q uses %s image %q as %s", a.Name, mat.Name, got, a.Images[r.index].Name, r.kind)
			}
		}
		if mat.Sampler < -1 || mat.Sampler >= len(a.Samplers) {
			return errors.Wrapf(core.ErrInvalidAsset, "%s: material %q references sampler %d", a.Name, mat.Name, mat.Sampler)
		}
	}
	for _, img := range a.Images {
		if img.Format.blockBytes() == 0 {
			return errors.Wrapf(core.ErrUnsupportedImage, "%s: image %q has format %d", a.Name, img.Name, img.Format)
		}
		if img.Width == 0 || img.Height == 0 || len(img.Mips) == 0 {
			return errors.Wrapf(core.ErrUnsupportedImage, "%s: image %q is empty", a.Name, img.Name)
		}
		w, h := img.Width, img.Height
		for level, data := range img.Mips {
			if want := img.Format.MipSize(w, h); uint64(len(data)) != want {
				return errors.Wrapf(core.ErrUnsupportedImage, "%s: image %q mip %d has %d bytes, want %d", a.Name, img.Name, level, len(data), want)
			}
			w, h = max(w/2, 1), max(h/2, 1)
		}
	}
	for _, o := range a.Objects {
		if o.Mesh < 0 || o.Mesh >= len(a.Meshes) {
			return errors.Wrapf(core.ErrInvalidAsset, "%s: object %q references mesh %d", a.Name, o.Name, o.Mesh)
		}
	}
	for _, s := range a.Shaders {
		if len(s.Code) == 0 || len(s.Code)%4 != 0 {
			return errors.Wrapf(core.ErrInvalidAsset, "%s: shader %q bytecode size %d", a.Name, s.Name, len(s.Code))
		}
	}
	return nil
}

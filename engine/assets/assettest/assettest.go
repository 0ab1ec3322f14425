// Package assettest builds small in-memory assets for tests.
package assettest

import (
	"encoding/binary"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/lumen/engine/assets"
)

// ShaderNames are the blobs every renderer asset carries.
var ShaderNames = []string{"mesh.vert", "mesh.frag", "shadow.vert", "debug.vert", "debug.frag"}

// FakeSPIRV returns a module header followed by padding, enough to pass
// bytecode checks.
func FakeSPIRV() []byte {
	code := make([]byte, 32)
	binary.LittleEndian.PutUint32(code, 0x07230203)
	return code
}

func Shaders() []assets.ShaderBlob {
	var out []assets.ShaderBlob
	for _, n := range ShaderNames {
		stage := assets.ShaderStageVertex
		if n[len(n)-4:] == "frag" {
			stage = assets.ShaderStageFragment
		}
		out = append(out, assets.ShaderBlob{Name: n, Stage: stage, EntryPoint: "main", Code: FakeSPIRV()})
	}
	return out
}

// Mesh returns a triangle soup with vertex count vertices and the given
// surfaces, indices running 0, 1, 2, ...
func Mesh(name string, surfaces ...assets.Surface) assets.Mesh {
	var count uint32
	for _, s := range surfaces {
		count = max(count, s.Start+s.Count)
	}
	m := assets.Mesh{Name: name, Surfaces: surfaces}
	for i := uint32(0); i < count; i++ {
		m.Vertices = append(m.Vertices, assets.Vertex{
			Position: mgl32.Vec3{float32(i % 7), float32(i % 5), float32(i % 3)},
			Normal:   mgl32.Vec3{0, 1, 0},
			Color:    mgl32.Vec4{1, 1, 1, 1},
		})
		m.Indices = append(m.Indices, i)
	}
	return m
}

// Image returns a zero-filled BC7 image of the given kind with a full mip
// chain.
func Image(name string, kind assets.ImageKind, size uint32) assets.Image {
	img := assets.Image{Name: name, Kind: kind, Format: assets.TextureFormatBC7, Width: size, Height: size}
	for w := size; ; w /= 2 {
		img.Mips = append(img.Mips, make([]byte, assets.TextureFormatBC7.MipSize(w, w)))
		if w == 1 {
			break
		}
	}
	return img
}

func material(name string, blended bool, color int) assets.Material {
	return assets.Material{
		Name:                   name,
		BaseColor:              mgl32.Vec4{1, 1, 1, 1},
		Roughness:              0.5,
		Blended:                blended,
		ColorImage:             color,
		NormalImage:            assets.NoImage,
		MetallicRoughnessImage: assets.NoImage,
		MixImage:               assets.NoImage,
		Sampler:                0,
	}
}

// Scene has two opaque surfaces of 300 and 450 indices and one blended
// surface of 120 indices, with two color images and one sampler.
func Scene(name string) *assets.Asset {
	a := assets.New(name)
	a.Images = []assets.Image{
		Image(name+"-stone", assets.ImageKindColor, 8),
		Image(name+"-glass", assets.ImageKindColor, 4),
	}
	a.Samplers = []assets.Sampler{{Name: "linear", MagLinear: true, MinLinear: true, MipLinear: true}}
	a.Materials = []assets.Material{
		material("stone", false, 0),
		material("glass", true, 1),
	}
	a.Meshes = []assets.Mesh{
		Mesh("walls", assets.Surface{Start: 0, Count: 300, Material: 0}, assets.Surface{Start: 300, Count: 450, Material: 0}),
		Mesh("window", assets.Surface{Start: 0, Count: 120, Material: 1}),
	}
	a.Objects = []assets.Object{
		{Name: "walls", Mesh: 0, Transform: mgl32.Ident4()},
		{Name: "window", Mesh: 1, Transform: mgl32.Translate3D(0, 1, 0)},
	}
	a.Shaders = Shaders()
	return a
}

package testbed

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/lumen/engine/assets"
	"github.com/spaghettifunk/lumen/engine/renderer"
)

type face struct {
	normal, u, v mgl32.Vec3
}

// Faces wind counter-clockwise seen from outside.
var boxFaces = []face{
	{normal: mgl32.Vec3{1, 0, 0}, u: mgl32.Vec3{0, 0, -1}, v: mgl32.Vec3{0, 1, 0}},
	{normal: mgl32.Vec3{-1, 0, 0}, u: mgl32.Vec3{0, 0, 1}, v: mgl32.Vec3{0, 1, 0}},
	{normal: mgl32.Vec3{0, 1, 0}, u: mgl32.Vec3{1, 0, 0}, v: mgl32.Vec3{0, 0, -1}},
	{normal: mgl32.Vec3{0, -1, 0}, u: mgl32.Vec3{1, 0, 0}, v: mgl32.Vec3{0, 0, 1}},
	{normal: mgl32.Vec3{0, 0, 1}, u: mgl32.Vec3{1, 0, 0}, v: mgl32.Vec3{0, 1, 0}},
	{normal: mgl32.Vec3{0, 0, -1}, u: mgl32.Vec3{-1, 0, 0}, v: mgl32.Vec3{0, 1, 0}},
}

// box builds an axis-aligned box centered on the origin, four vertices per
// face so each face gets its own normal and UVs. tile repeats the texture.
func box(name string, size mgl32.Vec3, tile float32, material int) assets.Mesh {
	half := size.Mul(0.5)
	m := assets.Mesh{Name: name}
	for _, f := range boxFaces {
		base := uint32(len(m.Vertices))
		center := mul(f.normal, half)
		du := mul(f.u, half)
		dv := mul(f.v, half)
		corners := [4]struct {
			su, sv float32
		}{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}}
		for _, c := range corners {
			m.Vertices = append(m.Vertices, assets.Vertex{
				Position: center.Add(du.Mul(c.su)).Add(dv.Mul(c.sv)),
				Normal:   f.normal,
				UV:       mgl32.Vec2{(c.su + 1) * 0.5 * tile, (1 - c.sv) * 0.5 * tile},
				Tangent:  f.u.Vec4(1),
				Color:    mgl32.Vec4{1, 1, 1, 1},
			})
		}
		m.Indices = append(m.Indices, base, base+1, base+2, base, base+2, base+3)
	}
	m.Surfaces = []assets.Surface{{Start: 0, Count: uint32(len(m.Indices)), Material: material}}
	return m
}

func mul(a, b mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{a[0] * b[0], a[1] * b[1], a[2] * b[2]}
}

// axisLines returns the world axes as debug lines of the given length.
func axisLines(length float32) []renderer.DebugLine {
	return []renderer.DebugLine{
		{To: mgl32.Vec3{length, 0, 0}, Color: mgl32.Vec4{1, 0.2, 0.2, 1}},
		{To: mgl32.Vec3{0, length, 0}, Color: mgl32.Vec4{0.2, 1, 0.2, 1}},
		{To: mgl32.Vec3{0, 0, length}, Color: mgl32.Vec4{0.2, 0.4, 1, 1}},
	}
}

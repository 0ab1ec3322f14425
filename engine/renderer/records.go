package renderer

import (
	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/lumen/engine/assets"
	"github.com/spaghettifunk/lumen/engine/core"
)

const (
	// position.xyz uv.x, normal.xyz uv.y, tangent, color
	vertexStride = 64
	// baseColor, metallic roughness, five slots, flags
	materialStride    = 48
	transformStride   = 64
	debugVertexStride = 32

	// MaxObjects bounds the per-frame transform buffer.
	MaxObjects = 4096
)

const (
	materialHasColor uint32 = 1 << iota
	materialHasNormal
	materialHasMetallicRoughness
	materialHasMix
	materialBlended
)

// MeshRecord locates one mesh inside the asset-wide vertex and index
// buffers.
type MeshRecord struct {
	VertexOffset uint32
	IndexOffset  uint32
	IndexCount   uint32
}

// DrawRecord is one surface of one object, ready to record.
type DrawRecord struct {
	Object       uint32
	Mesh         uint32
	Material     uint32
	FirstIndex   uint32
	IndexCount   uint32
	VertexOffset int32
	Blended      bool
}

func (d DrawRecord) Triangles() uint32 { return d.IndexCount / 3 }

// DrawLists buckets every surface. Every surface casts a shadow; blended
// surfaces keep their insertion order and are not depth sorted.
type DrawLists struct {
	Shadow  []DrawRecord
	Opaque  []DrawRecord
	Blended []DrawRecord
}

// packMeshes concatenates every mesh into one vertex and one index stream.
// Indices stay mesh-local; draws add the mesh's vertex offset.
func packMeshes(a *assets.Asset) (vertices, indices []byte, records []MeshRecord, err error) {
	var vcount, icount uint64
	for _, m := range a.Meshes {
		vcount += uint64(len(m.Vertices))
		icount += uint64(len(m.Indices))
	}
	if vcount > 1<<31 || icount > 1<<31 {
		return nil, nil, nil, errors.Wrapf(core.ErrBufferOverflow, "%d vertices and %d indices", vcount, icount)
	}
	vertices = make([]byte, 0, vcount*vertexStride)
	indices = make([]byte, 0, icount*4)
	for _, m := range a.Meshes {
		records = append(records, MeshRecord{
			VertexOffset: uint32(len(vertices) / vertexStride),
			IndexOffset:  uint32(len(indices) / 4),
			IndexCount:   uint32(len(m.Indices)),
		})
		for _, v := range m.Vertices {
			vertices = appendVec4(vertices, v.Position.Vec4(v.UV.X()))
			vertices = appendVec4(vertices, v.Normal.Vec4(v.UV.Y()))
			vertices = appendVec4(vertices, v.Tangent)
			vertices = appendVec4(vertices, v.Color)
		}
		for _, idx := range m.Indices {
			indices = appendUint(indices, idx)
		}
	}
	return vertices, indices, records, nil
}

func buildDrawLists(a *assets.Asset, meshes []MeshRecord) DrawLists {
	var lists DrawLists
	for oi, o := range a.Objects {
		mesh := a.Meshes[o.Mesh]
		rec := meshes[o.Mesh]
		for _, s := range mesh.Surfaces {
			d := DrawRecord{
				Object:       uint32(oi),
				Mesh:         uint32(o.Mesh),
				Material:     uint32(s.Material),
				FirstIndex:   rec.IndexOffset + s.Start,
				IndexCount:   s.Count,
				VertexOffset: int32(rec.VertexOffset),
				Blended:      a.Materials[s.Material].Blended,
			}
			lists.Shadow = append(lists.Shadow, d)
			if d.Blended {
				lists.Blended = append(lists.Blended, d)
			} else {
				lists.Opaque = append(lists.Opaque, d)
			}
		}
	}
	return lists
}

// materialSlots are the bindless indices a material resolves to.
type materialSlots struct {
	color, normal, metallicRoughness, mix uint32
	sampler                               uint32
}

func packMaterial(b []byte, m assets.Material, slots materialSlots) []byte {
	var flags uint32
	for _, f := range []struct {
		image int
		bit   uint32
	}{
		{m.ColorImage, materialHasColor},
		{m.NormalImage, materialHasNormal},
		{m.MetallicRoughnessImage, materialHasMetallicRoughness},
		{m.MixImage, materialHasMix},
	} {
		if f.image != assets.NoImage {
			flags |= f.bit
		}
	}
	if m.Blended {
		flags |= materialBlended
	}
	b = appendVec4(b, m.BaseColor)
	b = appendFloat(b, m.Metallic)
	b = appendFloat(b, m.Roughness)
	b = appendUint(b, slots.color)
	b = appendUint(b, slots.normal)
	b = appendUint(b, slots.metallicRoughness)
	b = appendUint(b, slots.mix)
	b = appendUint(b, slots.sampler)
	return appendUint(b, flags)
}

func packTransforms(ts []mgl32.Mat4) []byte {
	b := make([]byte, 0, len(ts)*transformStride)
	for _, m := range ts {
		b = appendMat4(b, m)
	}
	return b
}

// packDebugLines encodes at most capacity/2 lines as pairs of vertices.
func packDebugLines(lines []DebugLine, capacity uint32) ([]byte, uint32) {
	n := min(uint32(len(lines)), capacity/2)
	b := make([]byte, 0, n*2*debugVertexStride)
	for _, l := range lines[:n] {
		b = appendVec4(b, l.From.Vec4(1))
		b = appendVec4(b, l.Color)
		b = appendVec4(b, l.To.Vec4(1))
		b = appendVec4(b, l.Color)
	}
	return b, n
}

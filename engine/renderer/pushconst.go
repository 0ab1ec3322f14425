package renderer

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

// PushConstantSize is the single push constant range shared by every
// pipeline permutation.
const PushConstantSize = 128

// PushConstants is the per-draw payload of one pipeline permutation. All
// variants share the same range, so a draw only pushes its own variant.
type PushConstants interface {
	Permutation() Permutation
	// Bytes is the little-endian std430 encoding, never longer than
	// PushConstantSize.
	Bytes() []byte
}

// MeshPush feeds the mesh permutation. Vertices are pulled from the asset's
// vertex buffer through its device address.
type MeshPush struct {
	SceneAddress     uint64
	TransformAddress uint64
	VertexAddress    uint64
	MaterialAddress  uint64
	ObjectIndex      uint32
	MaterialIndex    uint32
}

func (MeshPush) Permutation() Permutation { return PermutationMesh }

func (p MeshPush) Bytes() []byte {
	b := make([]byte, 0, 40)
	b = binary.LittleEndian.AppendUint64(b, p.SceneAddress)
	b = binary.LittleEndian.AppendUint64(b, p.TransformAddress)
	b = binary.LittleEndian.AppendUint64(b, p.VertexAddress)
	b = binary.LittleEndian.AppendUint64(b, p.MaterialAddress)
	b = binary.LittleEndian.AppendUint32(b, p.ObjectIndex)
	b = binary.LittleEndian.AppendUint32(b, p.MaterialIndex)
	return b
}

// ShadowPush feeds the depth-only permutation of one cascade layer.
type ShadowPush struct {
	LightViewProj    mgl32.Mat4
	TransformAddress uint64
	VertexAddress    uint64
	ObjectIndex      uint32
}

func (ShadowPush) Permutation() Permutation { return PermutationShadow }

func (p ShadowPush) Bytes() []byte {
	b := make([]byte, 0, 88)
	b = appendMat4(b, p.LightViewProj)
	b = binary.LittleEndian.AppendUint64(b, p.TransformAddress)
	b = binary.LittleEndian.AppendUint64(b, p.VertexAddress)
	b = binary.LittleEndian.AppendUint32(b, p.ObjectIndex)
	// pad to the 8 byte alignment of the block
	return binary.LittleEndian.AppendUint32(b, 0)
}

// DebugPush feeds the line permutation. FirstVertex selects this frame's
// region of the debug vertex buffer.
type DebugPush struct {
	SceneAddress  uint64
	VertexAddress uint64
	FirstVertex   uint32
}

func (DebugPush) Permutation() Permutation { return PermutationDebug }

func (p DebugPush) Bytes() []byte {
	b := make([]byte, 0, 24)
	b = binary.LittleEndian.AppendUint64(b, p.SceneAddress)
	b = binary.LittleEndian.AppendUint64(b, p.VertexAddress)
	b = binary.LittleEndian.AppendUint32(b, p.FirstVertex)
	return binary.LittleEndian.AppendUint32(b, 0)
}

// push records p into cmd. The range is declared for every graphics stage,
// so every variant is pushed with the same stage flags.
func push(cmd gpu.CommandBuffer, layout gpu.PipelineLayout, p PushConstants) {
	cmd.PushConstants(layout, gpu.ShaderStageAllGraphics, 0, p.Bytes())
}

func appendFloat(b []byte, f float32) []byte {
	return binary.LittleEndian.AppendUint32(b, math.Float32bits(f))
}

// appendMat4 writes m column by column, the order GLSL expects.
func appendMat4(b []byte, m mgl32.Mat4) []byte {
	for _, f := range m {
		b = appendFloat(b, f)
	}
	return b
}

func appendVec4(b []byte, v mgl32.Vec4) []byte {
	for _, f := range v {
		b = appendFloat(b, f)
	}
	return b
}

package renderer

import (
	"encoding/binary"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/renderer/shadow"
)

// SceneUniformSize is the byte size reserved for the per-frame scene block.
const SceneUniformSize = 512

const (
	sceneFlagShadows uint32 = 1 << iota
	sceneFlagDebugCascades
)

type Camera struct {
	Position mgl32.Vec3
	View     mgl32.Mat4
	// Vertical field of view in radians.
	FovY float32
	// Width over height. The renderer replaces it with the draw extent ratio.
	Aspect float32
	Near   float32
	Far    float32
}

// LookAt returns a perspective camera at eye looking at target.
func LookAt(eye, target mgl32.Vec3, fovY, near, far float32) Camera {
	return Camera{
		Position: eye,
		View:     mgl32.LookAtV(eye, target, mgl32.Vec3{0, 1, 0}),
		FovY:     fovY,
		Aspect:   16.0 / 9.0,
		Near:     near,
		Far:      far,
	}
}

// Projection maps view space into the device's clip space.
func (c Camera) Projection() mgl32.Mat4 {
	return gpu.ClipCorrection.Mul4(mgl32.Perspective(c.FovY, c.Aspect, c.Near, c.Far))
}

func (c Camera) frustum() shadow.Frustum {
	return shadow.Frustum{View: c.View, FovY: c.FovY, Aspect: c.Aspect, Near: c.Near, Far: c.Far}
}

// Light is the single directional light.
type Light struct {
	// Direction the light travels in, world space.
	Direction mgl32.Vec3
	Color     mgl32.Vec3
	Intensity float32
	Ambient   mgl32.Vec3
}

func DefaultLight() Light {
	return Light{
		Direction: mgl32.Vec3{-0.3, -1, -0.4}.Normalize(),
		Color:     mgl32.Vec3{1, 1, 1},
		Intensity: 3,
		Ambient:   mgl32.Vec3{0.05, 0.05, 0.06},
	}
}

type DebugLine struct {
	From  mgl32.Vec3
	To    mgl32.Vec3
	Color mgl32.Vec4
}

// SceneView is the read-only state of one frame.
type SceneView interface {
	Camera() Camera
	Light() Light
	// Transforms returns per-object overrides indexed like Asset.Objects.
	// Objects past the end keep their asset transform.
	Transforms() []mgl32.Mat4
	DebugLines() []DebugLine
	UIEnabled() bool
}

// EditorSink is the write-back side handed to the editor UI.
type EditorSink interface {
	PushCommand(cmd EditorCommand)
	SetLight(l Light)
	SetCamera(c Camera)
}

type CommandKind uint8

const (
	// Handled by the engine, which owns the asset source.
	CmdReloadAsset CommandKind = iota
	CmdToggleShadows
	CmdToggleDebug
	CmdSetCullMode
	// Takes effect at the next resize.
	CmdSetMSAA
)

func (k CommandKind) String() string {
	switch k {
	case CmdReloadAsset:
		return "reload-asset"
	case CmdToggleShadows:
		return "toggle-shadows"
	case CmdToggleDebug:
		return "toggle-debug"
	case CmdSetCullMode:
		return "set-cull-mode"
	case CmdSetMSAA:
		return "set-msaa"
	}
	return "unknown"
}

type EditorCommand struct {
	Kind    CommandKind
	Cull    gpu.CullMode
	Samples uint32
}

// UI is what an overlay sees while it records.
type UI struct {
	Pass     gpu.RenderPass
	Samples  uint32
	Extent   gpu.Extent2D
	Stats    Stats
	Settings Settings
	Scene    SceneView
	Editor   EditorSink
}

// Overlay records UI draws at the end of the main pass.
type Overlay interface {
	Record(cmd gpu.CommandBuffer, ui UI)
}

type sceneSlots struct {
	layers   [shadow.Layers]uint32
	compare  uint32
	debug    uint32
	matrices [shadow.Layers]mgl32.Mat4
	splits   [shadow.Layers]float32
	fallback uint32
	flags    uint32
}

// encodeScene lays out the scene block read by every permutation:
//
//	view, proj, viewProj       3 x mat4
//	lightViewProj[3]           3 x mat4
//	cameraPos, lightDir        vec4
//	lightColor, ambient        vec4
//	cascadeSplits              vec4
//	shadowLayers + compare     uvec4
//	flags, debugSampler, fallbackImage, 0
func encodeScene(cam Camera, light Light, s sceneSlots) []byte {
	proj := cam.Projection()
	b := make([]byte, 0, SceneUniformSize)
	b = appendMat4(b, cam.View)
	b = appendMat4(b, proj)
	b = appendMat4(b, proj.Mul4(cam.View))
	for _, m := range s.matrices {
		b = appendMat4(b, m)
	}
	b = appendVec4(b, cam.Position.Vec4(1))
	b = appendVec4(b, light.Direction.Normalize().Vec4(0))
	b = appendVec4(b, light.Color.Mul(light.Intensity).Vec4(light.Intensity))
	b = appendVec4(b, light.Ambient.Vec4(1))
	b = appendVec4(b, mgl32.Vec4{s.splits[0], s.splits[1], s.splits[2], cam.Far})
	for _, slot := range s.layers {
		b = appendUint(b, slot)
	}
	b = appendUint(b, s.compare)
	b = appendUint(b, s.flags)
	b = appendUint(b, s.debug)
	b = appendUint(b, s.fallback)
	b = appendUint(b, 0)
	// pad to the full block so every slot's buffer is rewritten whole
	return append(b, make([]byte, SceneUniformSize-len(b))...)
}

func appendUint(b []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(b, v)
}

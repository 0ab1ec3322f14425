package testbed

import (
	"math"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/lumen/engine"
	"github.com/spaghettifunk/lumen/engine/assets"
	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/platform"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

// Object order in the demo asset; transforms are indexed the same way.
const (
	objectGround = iota
	objectCrate
	objectGlass
	objectPillar
)

var (
	cullModes = []gpu.CullMode{gpu.CullBack, gpu.CullNone, gpu.CullFront}
	msaaSteps = []uint32{1, 2, 4, 8}
)

type TestGame struct {
	*engine.Game
}

type gameState struct {
	elapsed float64
	orbit   float64
	paused  bool

	cull int
	msaa int

	transforms []mgl32.Mat4
}

func NewTestGame(cfg *config.Config) (*TestGame, error) {
	cull, err := renderer.ParseCullMode(cfg.Render.CullMode)
	if err != nil {
		return nil, err
	}
	state := &gameState{transforms: make([]mgl32.Mat4, 4)}
	for i, c := range cullModes {
		if c == cull {
			state.cull = i
		}
	}
	for i, s := range msaaSteps {
		if s == cfg.Render.MSAA {
			state.msaa = i
		}
	}

	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: &engine.ApplicationConfig{
				Name:   cfg.Window.Title,
				Config: cfg,
			},
			State: state,
		},
	}
	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnBuildAsset = tg.BuildAsset
	tg.FnOnKey = tg.OnKey
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown
	return tg, nil
}

func (g *TestGame) state() *gameState { return g.State.(*gameState) }

func (g *TestGame) Initialize(scene *engine.Scene) error {
	core.LogInfo("initializing testbed...")
	scene.SetLight(renderer.DefaultLight())
	scene.SetDebugLines(axisLines(2))
	return g.Update(0, scene)
}

func (g *TestGame) Update(deltaTime float64, scene *engine.Scene) error {
	s := g.state()
	s.elapsed += deltaTime
	if !s.paused {
		s.orbit += deltaTime * 0.25
	}

	eye := mgl32.Vec3{
		float32(9 * math.Cos(s.orbit)),
		4,
		float32(9 * math.Sin(s.orbit)),
	}
	scene.SetCamera(renderer.LookAt(eye, mgl32.Vec3{0, 0.5, 0}, mgl32.DegToRad(60), 0.1, 200))

	// a fresh slice each tick; the scene keeps the one it is given
	t := make([]mgl32.Mat4, len(s.transforms))
	t[objectGround] = mgl32.Translate3D(0, -0.1, 0)
	t[objectCrate] = mgl32.Translate3D(-1.5, 0.5, 0).Mul4(mgl32.HomogRotate3DY(float32(s.elapsed)))
	t[objectGlass] = mgl32.Translate3D(1.5, 0.75+0.25*float32(math.Sin(s.elapsed*1.5)), 0.5)
	t[objectPillar] = mgl32.Translate3D(0, 1.5, -2.5)
	s.transforms = t
	scene.SetTransforms(t)
	return nil
}

// BuildAsset assembles the demo scene around the shaders read from disk.
func (g *TestGame) BuildAsset(shaders []assets.ShaderBlob) (*assets.Asset, error) {
	a := demoAsset()
	a.Shaders = shaders
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

func demoAsset() *assets.Asset {
	a := assets.New("testbed")
	a.Images = []assets.Image{
		checker("ground-checker", 256, 8, rgba{200, 200, 200, 255}, rgba{60, 60, 70, 255}),
		checker("crate-checker", 128, 4, rgba{170, 110, 50, 255}, rgba{120, 70, 30, 255}),
		flat("glass-tint", assets.ImageKindColor, rgba{120, 200, 255, 110}),
		flat("flat-normal", assets.ImageKindNormal, rgba{128, 128, 255, 255}),
		flat("rough-dielectric", assets.ImageKindMetallicRoughness, rgba{0, 200, 0, 255}),
	}
	a.Samplers = []assets.Sampler{
		{Name: "linear-repeat", MagLinear: true, MinLinear: true, MipLinear: true, Wrap: assets.WrapRepeat},
		{Name: "nearest-clamp", Wrap: assets.WrapClamp},
	}
	a.Materials = []assets.Material{
		{
			Name: "ground", BaseColor: mgl32.Vec4{1, 1, 1, 1}, Roughness: 0.9,
			ColorImage: 0, NormalImage: 3, MetallicRoughnessImage: 4, MixImage: assets.NoImage, Sampler: 0,
		},
		{
			Name: "crate", BaseColor: mgl32.Vec4{1, 1, 1, 1}, Roughness: 0.6,
			ColorImage: 1, NormalImage: 3, MetallicRoughnessImage: assets.NoImage, MixImage: assets.NoImage, Sampler: 1,
		},
		{
			Name: "glass", BaseColor: mgl32.Vec4{1, 1, 1, 0.4}, Roughness: 0.05, Blended: true,
			ColorImage: 2, NormalImage: assets.NoImage, MetallicRoughnessImage: assets.NoImage, MixImage: assets.NoImage, Sampler: -1,
		},
		{
			Name: "marble", BaseColor: mgl32.Vec4{0.9, 0.9, 0.85, 1}, Metallic: 0.1, Roughness: 0.3,
			ColorImage: assets.NoImage, NormalImage: assets.NoImage, MetallicRoughnessImage: assets.NoImage, MixImage: assets.NoImage, Sampler: -1,
		},
	}
	a.Meshes = []assets.Mesh{
		box("ground", mgl32.Vec3{20, 0.2, 20}, 8, 0),
		box("crate", mgl32.Vec3{1, 1, 1}, 1, 1),
		box("glass", mgl32.Vec3{1, 1.5, 1}, 1, 2),
		box("pillar", mgl32.Vec3{0.6, 3, 0.6}, 1, 3),
	}
	a.Objects = []assets.Object{
		{Name: "ground", Mesh: objectGround, Transform: mgl32.Ident4()},
		{Name: "crate", Mesh: objectCrate, Transform: mgl32.Ident4()},
		{Name: "glass", Mesh: objectGlass, Transform: mgl32.Ident4()},
		{Name: "pillar", Mesh: objectPillar, Transform: mgl32.Ident4()},
	}
	return a
}

// OnKey maps function keys to editor commands.
func (g *TestGame) OnKey(ev platform.KeyEvent, scene *engine.Scene) bool {
	if ev.Action != platform.ActionPress {
		return false
	}
	s := g.state()
	switch ev.Key {
	case glfw.KeyF1:
		scene.PushCommand(renderer.EditorCommand{Kind: renderer.CmdToggleShadows})
	case glfw.KeyF2:
		scene.PushCommand(renderer.EditorCommand{Kind: renderer.CmdToggleDebug})
	case glfw.KeyF3:
		s.cull = (s.cull + 1) % len(cullModes)
		scene.PushCommand(renderer.EditorCommand{Kind: renderer.CmdSetCullMode, Cull: cullModes[s.cull]})
	case glfw.KeyF4:
		s.msaa = (s.msaa + 1) % len(msaaSteps)
		scene.PushCommand(renderer.EditorCommand{Kind: renderer.CmdSetMSAA, Samples: msaaSteps[s.msaa]})
		core.LogInfo("MSAA %dx requested, applied at the next resize", msaaSteps[s.msaa])
	case glfw.KeyF5:
		scene.PushCommand(renderer.EditorCommand{Kind: renderer.CmdReloadAsset})
	case glfw.KeyF6:
		scene.SetUIEnabled(!scene.UIEnabled())
	case glfw.KeySpace:
		s.paused = !s.paused
	default:
		return false
	}
	return true
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	core.LogDebug("testbed resized to %dx%d", width, height)
	return nil
}

func (g *TestGame) Shutdown() error {
	core.LogInfo("shutting down testbed...")
	return nil
}

package engine

import (
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/lumen/engine/containers"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer"
)

// MaxPendingCommands bounds the editor queue between two frames.
const MaxPendingCommands = 64

// Scene is the frame state the game writes and the renderer reads. It also
// queues editor commands until the engine drains them at the frame boundary.
type Scene struct {
	mu         sync.Mutex
	camera     renderer.Camera
	light      renderer.Light
	transforms []mgl32.Mat4
	lines      []renderer.DebugLine
	ui         bool
	commands   *containers.RingQueue[renderer.EditorCommand]
}

var (
	_ renderer.SceneView  = (*Scene)(nil)
	_ renderer.EditorSink = (*Scene)(nil)
)

func NewScene() *Scene {
	return &Scene{
		camera:   renderer.LookAt(mgl32.Vec3{0, 2, 6}, mgl32.Vec3{}, mgl32.DegToRad(60), 0.1, 200),
		light:    renderer.DefaultLight(),
		commands: containers.NewRingQueue[renderer.EditorCommand](MaxPendingCommands),
	}
}

func (s *Scene) Camera() renderer.Camera {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.camera
}

func (s *Scene) Light() renderer.Light {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.light
}

func (s *Scene) Transforms() []mgl32.Mat4 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transforms
}

func (s *Scene) DebugLines() []renderer.DebugLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lines
}

func (s *Scene) UIEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ui
}

func (s *Scene) SetCamera(c renderer.Camera) {
	s.mu.Lock()
	s.camera = c
	s.mu.Unlock()
}

func (s *Scene) SetLight(l renderer.Light) {
	s.mu.Lock()
	s.light = l
	s.mu.Unlock()
}

// SetTransforms replaces the per-object overrides. The slice is kept, not
// copied; callers hand over a fresh one each update.
func (s *Scene) SetTransforms(t []mgl32.Mat4) {
	s.mu.Lock()
	s.transforms = t
	s.mu.Unlock()
}

// SetDebugLines replaces the lines drawn this frame.
func (s *Scene) SetDebugLines(lines []renderer.DebugLine) {
	s.mu.Lock()
	s.lines = lines
	s.mu.Unlock()
}

func (s *Scene) SetUIEnabled(on bool) {
	s.mu.Lock()
	s.ui = on
	s.mu.Unlock()
}

// PushCommand queues cmd for the next frame. Commands past
// MaxPendingCommands are dropped.
func (s *Scene) PushCommand(cmd renderer.EditorCommand) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.commands.Enqueue(cmd); err != nil {
		core.LogWarn("editor command %s dropped: %s", cmd.Kind, err)
	}
}

// DrainCommands returns the queued commands in push order and empties the
// queue.
func (s *Scene) DrainCommands() []renderer.EditorCommand {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commands.Drain()
}

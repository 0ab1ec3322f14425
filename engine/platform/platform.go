package platform

import (
	"runtime"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

type Action uint8

const (
	ActionPress Action = iota
	ActionRelease
	ActionRepeat
)

// KeyEvent is a key press forwarded from the window.
type KeyEvent struct {
	Key    glfw.Key
	Action Action
	Mods   glfw.ModifierKey
}

type KeyHandler func(ev KeyEvent)

// Platform owns the window. Resizes arrive coalesced on Resized.
type Platform struct {
	Window *glfw.Window

	onKey   KeyHandler
	resized chan gpu.Extent2D
	open    atomic.Bool
}

func New() (*Platform, error) {
	return &Platform{
		Window:  nil,
		resized: make(chan gpu.Extent2D, 1),
	}, nil
}

func (p *Platform) Startup(cfg config.WindowConfig) error {
	if err := glfw.Init(); err != nil {
		core.LogError("failed to initialize glfw: %s", err)
		return errors.Wrap(err, "initializing glfw")
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		return errors.New("glfw reports no Vulkan loader")
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	window, err := glfw.CreateWindow(int(cfg.Width), int(cfg.Height), cfg.Title, nil, nil)
	if err != nil {
		glfw.Terminate()
		core.LogError("failed to create window: %s", err)
		return errors.Wrap(err, "creating window")
	}
	p.Window = window

	p.Window.SetSizeLimits(sizeLimit(cfg.MinWidth), sizeLimit(cfg.MinHeight), sizeLimit(cfg.MaxWidth), sizeLimit(cfg.MaxHeight))
	p.Window.SetKeyCallback(p.keyCallback)
	p.Window.SetFramebufferSizeCallback(p.framebufferSizeCallback)
	p.Window.SetPos(int(cfg.PosX), int(cfg.PosY))
	p.Window.Show()
	p.open.Store(true)
	return nil
}

func sizeLimit(v uint32) int {
	if v == 0 {
		return glfw.DontCare
	}
	return int(v)
}

func (p *Platform) Shutdown() error {
	p.open.Store(false)
	if p.Window != nil {
		p.Window.Destroy()
		p.Window = nil
	}
	glfw.Terminate()
	return nil
}

func (p *Platform) SetKeyHandler(h KeyHandler) { p.onKey = h }

func (p *Platform) PollEvents() { glfw.PollEvents() }

// WaitEvents blocks until an event arrives. Used while minimized.
func (p *Platform) WaitEvents() { glfw.WaitEvents() }

func (p *Platform) ShouldClose() bool { return p.Window.ShouldClose() }

// Resized delivers the latest framebuffer size; older sizes that were not
// read yet are dropped.
func (p *Platform) Resized() <-chan gpu.Extent2D { return p.resized }

func (p *Platform) Extent() gpu.Extent2D {
	w, h := p.FramebufferExtent()
	return gpu.Extent2D{Width: w, Height: h}
}

func (p *Platform) RequiredInstanceExtensions() []string {
	return p.Window.GetRequiredInstanceExtensions()
}

func (p *Platform) CreateSurface(instance interface{}) (uintptr, error) {
	surface, err := p.Window.CreateWindowSurface(instance, nil)
	if err != nil {
		return 0, errors.Wrap(err, "creating window surface")
	}
	return surface, nil
}

func (p *Platform) FramebufferExtent() (uint32, uint32) {
	w, h := p.Window.GetFramebufferSize()
	return uint32(max(w, 0)), uint32(max(h, 0))
}

func (p *Platform) keyCallback(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	if p.onKey == nil {
		return
	}
	ev := KeyEvent{Key: key, Mods: mods}
	switch action {
	case glfw.Press:
		ev.Action = ActionPress
	case glfw.Release:
		ev.Action = ActionRelease
	case glfw.Repeat:
		ev.Action = ActionRepeat
	}
	p.onKey(ev)
}

func (p *Platform) framebufferSizeCallback(w *glfw.Window, width, height int) {
	ext := gpu.Extent2D{Width: uint32(max(width, 0)), Height: uint32(max(height, 0))}
	select {
	case <-p.resized:
	default:
	}
	p.resized <- ext
}

// Wake unblocks a WaitEvents call. Safe from any goroutine.
func (p *Platform) Wake() {
	if p.open.Load() {
		glfw.PostEmptyEvent()
	}
}

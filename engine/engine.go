package engine

import (
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/spaghettifunk/lumen/engine/assets"
	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/platform"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/renderer/vulkan"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently booting up
	EngineStageBooting
	// Engine completed boot process and is ready to be initialized
	EngineStageBootComplete
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

const (
	reloadDebounce = 150 * time.Millisecond
	statsInterval  = 5.0
)

// frameRenderer is the part of renderer.Renderer the run loop drives.
type frameRenderer interface {
	Render(scene renderer.SceneView, editor renderer.EditorSink) error
	Resize(window gpu.Extent2D) error
	Apply(cmd renderer.EditorCommand) bool
	LoadAsset(a *assets.Asset) error
	Stats() renderer.Stats
	Shutdown() error
}

type Engine struct {
	currentStage Stage
	gameInstance *Game
	cfg          *config.Config
	platform     *platform.Platform
	device       *vulkan.Device
	renderer     frameRenderer
	scene        *Scene
	watcher      *assets.Watcher
	window       gpu.Extent2D
	isSuspended  bool
	quit         atomic.Bool
	clock        *core.Clock
	metrics      *core.FrameMetrics
	lastTime     float64
	lastStats    float64
}

func New(g *Game) (*Engine, error) {
	if g == nil || g.ApplicationConfig == nil {
		return nil, errors.New("engine needs a game with an application config")
	}
	if g.FnBuildAsset == nil {
		return nil, errors.New("game has no asset builder")
	}
	cfg := g.ApplicationConfig.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p, err := platform.New()
	if err != nil {
		return nil, err
	}
	return &Engine{
		currentStage: EngineStageBootComplete,
		gameInstance: g,
		cfg:          cfg,
		platform:     p,
		scene:        NewScene(),
		clock:        core.NewClock(),
		metrics:      core.NewFrameMetrics(),
	}, nil
}

// Initialize opens the window, creates the device and the renderer, then
// loads the game's asset. An asset that fails to load is logged; the engine
// still runs and draws empty frames until a reload succeeds.
func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing
	if err := e.platform.Startup(e.cfg.Window); err != nil {
		return err
	}
	e.platform.SetKeyHandler(e.onKey)
	e.window = e.platform.Extent()

	device, err := vulkan.New(e.platform, vulkan.Options{
		AppName:    e.gameInstance.ApplicationConfig.Name,
		Validation: e.cfg.Device.Validation,
		VendorHint: e.cfg.Device.VendorHint,
	})
	if err != nil {
		return core.NewSetupError("device", err)
	}
	e.device = device

	r, err := renderer.New(device, e.cfg, renderer.Options{Window: e.window})
	if err != nil {
		return err
	}
	e.renderer = r

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(e.scene); err != nil {
			return err
		}
	}
	if err := e.reloadAsset(); err != nil {
		core.LogError("initial asset load: %s", err)
	}

	if e.cfg.Assets.HotReload {
		w, err := assets.NewWatcher(e.cfg.Assets.ShaderDir, reloadDebounce)
		if err != nil {
			core.LogWarn("shader hot reload disabled: %s", err)
		} else {
			e.watcher = w
			core.LogInfo("watching %s for shader changes", e.cfg.Assets.ShaderDir)
		}
	}
	e.currentStage = EngineStageInitialized
	return nil
}

// Run drives frames until the window closes or Quit is called. It returns
// the error that stopped the loop, if any.
func (e *Engine) Run() error {
	e.currentStage = EngineStageRunning
	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	for !e.quit.Load() && !e.platform.ShouldClose() {
		if e.isSuspended {
			e.platform.WaitEvents()
		} else {
			e.platform.PollEvents()
		}
		select {
		case ext := <-e.platform.Resized():
			e.onResized(ext)
		default:
		}
		if e.isSuspended {
			continue
		}

		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime
		e.lastTime = currentTime

		e.pollWatcher()
		if err := e.frame(delta); err != nil {
			core.LogError("stopping: %s", err)
			return err
		}
		e.metrics.Update(delta)
		if currentTime-e.lastStats >= statsInterval {
			e.lastStats = currentTime
			core.LogDebug("%.1f fps (%.2f ms), %s", e.metrics.FPS(), e.metrics.FrameTime(), e.renderer.Stats())
		}
	}
	return nil
}

// Quit asks Run to return after the current frame. Safe from any goroutine.
func (e *Engine) Quit() {
	e.quit.Store(true)
	if p := e.platform; p != nil {
		p.Wake()
	}
}

// frame runs one tick: game update, editor commands, render.
func (e *Engine) frame(delta float64) error {
	if e.gameInstance.FnUpdate != nil {
		if err := e.gameInstance.FnUpdate(delta, e.scene); err != nil {
			return errors.Wrap(err, "game update")
		}
	}
	e.applyCommands()
	return e.handleFrameError(e.renderer.Render(e.scene, e.scene))
}

// applyCommands drains the editor queue. Several reload requests in one
// drain collapse into a single reload.
func (e *Engine) applyCommands() {
	reload := false
	for _, cmd := range e.scene.DrainCommands() {
		if cmd.Kind == renderer.CmdReloadAsset {
			reload = true
			continue
		}
		if !e.renderer.Apply(cmd) {
			core.LogWarn("editor command %s ignored", cmd.Kind)
		}
	}
	if reload {
		if err := e.reloadAsset(); err != nil {
			core.LogError("reloading asset: %s", err)
		}
	}
}

// handleFrameError logs a dropped frame and rebuilds the swapchain when
// asked to. Only setup failures and a lost device end the loop.
func (e *Engine) handleFrameError(err error) error {
	if err == nil {
		return nil
	}
	var setup *core.SetupError
	if errors.As(err, &setup) || errors.Is(err, core.ErrDeviceLost) {
		return err
	}
	if !core.NeedsSwapchainRebuild(err) {
		core.LogWarn("frame dropped: %s", err)
		return nil
	}
	core.LogDebug("frame dropped, rebuilding swapchain: %s", err)
	if rerr := e.renderer.Resize(e.window); rerr != nil {
		if errors.Is(rerr, core.ErrDeviceLost) {
			return rerr
		}
		if !core.NeedsSwapchainRebuild(rerr) {
			core.LogError("rebuilding swapchain: %s", rerr)
		}
	}
	return nil
}

func (e *Engine) reloadAsset() error {
	blobs, err := assets.LoadShaders(e.cfg.Assets.ShaderDir)
	if err != nil {
		return err
	}
	a, err := e.gameInstance.FnBuildAsset(blobs)
	if err != nil {
		return errors.Wrap(err, "building asset")
	}
	if err := e.renderer.LoadAsset(a); err != nil {
		return err
	}
	core.LogInfo("asset %q loaded", a.Name)
	return nil
}

func (e *Engine) pollWatcher() {
	if e.watcher == nil {
		return
	}
	select {
	case path, ok := <-e.watcher.Changes():
		if !ok {
			e.watcher = nil
			return
		}
		core.LogInfo("shader %s changed, reloading", path)
		e.scene.PushCommand(renderer.EditorCommand{Kind: renderer.CmdReloadAsset})
	default:
	}
}

func (e *Engine) onKey(ev platform.KeyEvent) {
	if ev.Action == platform.ActionPress && ev.Key == glfw.KeyEscape {
		e.Quit()
		return
	}
	if e.gameInstance.FnOnKey != nil {
		e.gameInstance.FnOnKey(ev, e.scene)
	}
}

func (e *Engine) onResized(ext gpu.Extent2D) {
	if ext == e.window {
		return
	}
	e.window = ext
	core.LogDebug("Window resize: %d, %d", ext.Width, ext.Height)

	// Handle minimization
	if ext.Empty() {
		core.LogInfo("Window minimized, suspending application.")
		e.isSuspended = true
		return
	}
	if e.isSuspended {
		core.LogInfo("Window restored, resuming application.")
		e.isSuspended = false
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(ext.Width, ext.Height); err != nil {
			core.LogError("game resize: %s", err)
		}
	}
	if err := e.renderer.Resize(ext); err != nil && !core.NeedsSwapchainRebuild(err) {
		core.LogError("resize: %s", err)
	}
}

// Shutdown releases everything Initialize created, in reverse. It keeps
// going past failures and returns them combined.
func (e *Engine) Shutdown() error {
	e.currentStage = EngineStageShuttingDown
	var errs error
	if e.watcher != nil {
		errs = errors.CombineErrors(errs, e.watcher.Close())
		e.watcher = nil
	}
	if e.gameInstance.FnShutdown != nil {
		errs = errors.CombineErrors(errs, e.gameInstance.FnShutdown())
	}
	if e.renderer != nil {
		errs = errors.CombineErrors(errs, e.renderer.Shutdown())
		e.renderer = nil
	}
	if e.device != nil {
		errs = errors.CombineErrors(errs, e.device.Close())
		e.device = nil
	}
	if e.platform != nil {
		errs = errors.CombineErrors(errs, e.platform.Shutdown())
	}
	e.currentStage = EngineStageUninitialized
	return errs
}

func (e *Engine) Stage() Stage { return e.currentStage }

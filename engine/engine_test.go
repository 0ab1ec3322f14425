package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/lumen/engine/assets"
	"github.com/spaghettifunk/lumen/engine/assets/assettest"
	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

type fakeRenderer struct {
	renderErr error
	resizeErr error
	loadErr   error

	renders int
	resizes []gpu.Extent2D
	applied []renderer.EditorCommand
	loaded  []*assets.Asset
}

func (f *fakeRenderer) Render(renderer.SceneView, renderer.EditorSink) error {
	f.renders++
	return f.renderErr
}

func (f *fakeRenderer) Resize(w gpu.Extent2D) error {
	f.resizes = append(f.resizes, w)
	return f.resizeErr
}

func (f *fakeRenderer) Apply(cmd renderer.EditorCommand) bool {
	f.applied = append(f.applied, cmd)
	return cmd.Kind != renderer.CmdReloadAsset
}

func (f *fakeRenderer) LoadAsset(a *assets.Asset) error {
	f.loaded = append(f.loaded, a)
	return f.loadErr
}

func (f *fakeRenderer) Stats() renderer.Stats { return renderer.Stats{} }
func (f *fakeRenderer) Shutdown() error       { return nil }

func shaderDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	manifest := ""
	for _, blob := range assettest.Shaders() {
		file := blob.Name + ".spv"
		if err := os.WriteFile(filepath.Join(dir, file), assettest.FakeSPIRV(), 0o644); err != nil {
			t.Fatal(err)
		}
		stage := "vertex"
		if blob.Stage == assets.ShaderStageFragment {
			stage = "fragment"
		}
		manifest += "[[shader]]\nname = \"" + blob.Name + "\"\nstage = \"" + stage + "\"\nfile = \"" + file + "\"\n\n"
	}
	if err := os.WriteFile(filepath.Join(dir, assets.ManifestName), []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func testEngine(t *testing.T, r *fakeRenderer) (*Engine, *int) {
	t.Helper()
	cfg := config.Default()
	cfg.Assets.ShaderDir = shaderDir(t)
	builds := 0
	g := &Game{
		ApplicationConfig: &ApplicationConfig{Name: "test", Config: cfg},
		FnBuildAsset: func(shaders []assets.ShaderBlob) (*assets.Asset, error) {
			builds++
			a := assets.New("test")
			a.Shaders = shaders
			return a, nil
		},
	}
	return &Engine{
		gameInstance: g,
		cfg:          cfg,
		renderer:     r,
		scene:        NewScene(),
		window:       gpu.Extent2D{Width: 800, Height: 600},
		clock:        core.NewClock(),
		metrics:      core.NewFrameMetrics(),
	}, &builds
}

func TestFrameAppliesCommandsInOrder(t *testing.T) {
	r := &fakeRenderer{}
	e, builds := testEngine(t, r)
	e.scene.PushCommand(renderer.EditorCommand{Kind: renderer.CmdToggleShadows})
	e.scene.PushCommand(renderer.EditorCommand{Kind: renderer.CmdReloadAsset})
	e.scene.PushCommand(renderer.EditorCommand{Kind: renderer.CmdSetMSAA, Samples: 2})
	e.scene.PushCommand(renderer.EditorCommand{Kind: renderer.CmdReloadAsset})

	if err := e.frame(0.016); err != nil {
		t.Fatalf("frame() = %v", err)
	}
	if len(r.applied) != 2 || r.applied[0].Kind != renderer.CmdToggleShadows || r.applied[1].Kind != renderer.CmdSetMSAA {
		t.Errorf("applied = %+v", r.applied)
	}
	if *builds != 1 || len(r.loaded) != 1 {
		t.Errorf("reload ran %d builds and %d loads, want one of each", *builds, len(r.loaded))
	}
	if len(r.loaded[0].Shaders) != len(assettest.ShaderNames) {
		t.Errorf("loaded asset carries %d shaders", len(r.loaded[0].Shaders))
	}
	if r.renders != 1 {
		t.Errorf("renders = %d", r.renders)
	}
	if cmds := e.scene.DrainCommands(); len(cmds) != 0 {
		t.Errorf("queue not drained: %+v", cmds)
	}
}

func TestFailedReloadKeepsRunning(t *testing.T) {
	r := &fakeRenderer{loadErr: core.NewAssetError("test", "validate", core.ErrInvalidAsset)}
	e, _ := testEngine(t, r)
	e.scene.PushCommand(renderer.EditorCommand{Kind: renderer.CmdReloadAsset})
	if err := e.frame(0.016); err != nil {
		t.Fatalf("frame() = %v", err)
	}
	if r.renders != 1 {
		t.Error("frame skipped after a failed reload")
	}
}

func TestReloadWithoutManifest(t *testing.T) {
	r := &fakeRenderer{}
	e, builds := testEngine(t, r)
	e.cfg.Assets.ShaderDir = t.TempDir()
	if err := e.reloadAsset(); err == nil {
		t.Fatal("expected an error without a manifest")
	}
	if *builds != 0 || len(r.loaded) != 0 {
		t.Error("asset built without shaders")
	}
}

func TestHandleFrameError(t *testing.T) {
	outOfDate := core.NewFrameError("acquire", errors.Wrap(core.ErrSwapchainOutOfDate, "vkAcquireNextImage"))
	tests := []struct {
		name      string
		err       error
		resizeErr error
		fatal     bool
		resizes   int
	}{
		{name: "nil", err: nil},
		{name: "timeout drops the frame", err: core.NewFrameError("wait", core.ErrFenceTimeout)},
		{name: "out of date rebuilds", err: outOfDate, resizes: 1},
		{name: "rebuild on minimized window", err: outOfDate, resizeErr: errors.Wrap(core.ErrSwapchainOutOfDate, "no area"), resizes: 1},
		{name: "device lost stops", err: core.NewFrameError("submit", core.ErrDeviceLost), fatal: true},
		{name: "device lost during rebuild stops", err: outOfDate, resizeErr: core.ErrDeviceLost, fatal: true, resizes: 1},
		{name: "setup error stops", err: core.NewSetupError("render targets", errors.New("oom")), fatal: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeRenderer{resizeErr: tt.resizeErr}
			e, _ := testEngine(t, r)
			err := e.handleFrameError(tt.err)
			if (err != nil) != tt.fatal {
				t.Errorf("handleFrameError() = %v, fatal %v", err, tt.fatal)
			}
			if len(r.resizes) != tt.resizes {
				t.Errorf("resizes = %d, want %d", len(r.resizes), tt.resizes)
			}
			if tt.resizes > 0 && r.resizes[0] != e.window {
				t.Errorf("rebuilt for %v, want %v", r.resizes[0], e.window)
			}
		})
	}
}

func TestGameUpdateErrorStopsFrame(t *testing.T) {
	r := &fakeRenderer{}
	e, _ := testEngine(t, r)
	e.gameInstance.FnUpdate = func(float64, *Scene) error { return errors.New("boom") }
	if err := e.frame(0.016); err == nil {
		t.Fatal("expected the update error")
	}
	if r.renders != 0 {
		t.Error("rendered after a failed update")
	}
}

func TestResizeSuspendsWhenMinimized(t *testing.T) {
	r := &fakeRenderer{}
	e, _ := testEngine(t, r)
	var resized []uint32
	e.gameInstance.FnOnResize = func(w, h uint32) error {
		resized = append(resized, w, h)
		return nil
	}

	e.onResized(gpu.Extent2D{})
	if !e.isSuspended || len(r.resizes) != 0 {
		t.Fatalf("minimize: suspended %v, resizes %d", e.isSuspended, len(r.resizes))
	}
	e.onResized(gpu.Extent2D{Width: 1024, Height: 768})
	if e.isSuspended {
		t.Error("still suspended after restore")
	}
	if len(r.resizes) != 1 || r.resizes[0] != (gpu.Extent2D{Width: 1024, Height: 768}) {
		t.Errorf("renderer resizes = %v", r.resizes)
	}
	if len(resized) != 2 || resized[0] != 1024 {
		t.Errorf("game resize = %v", resized)
	}
	e.onResized(gpu.Extent2D{Width: 1024, Height: 768})
	if len(r.resizes) != 1 {
		t.Error("same size triggered another resize")
	}
}

func TestNewRequiresAssetBuilder(t *testing.T) {
	if _, err := New(&Game{ApplicationConfig: &ApplicationConfig{Name: "x"}}); err == nil {
		t.Fatal("expected an error without FnBuildAsset")
	}
	if _, err := New(nil); err == nil {
		t.Fatal("expected an error without a game")
	}
}

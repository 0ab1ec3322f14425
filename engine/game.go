package engine

import (
	"github.com/spaghettifunk/lumen/engine/assets"
	"github.com/spaghettifunk/lumen/engine/platform"
)

// Game is the set of hooks the engine drives. Nil hooks are skipped, except
// FnBuildAsset which is needed to load anything.
type Game struct {
	ApplicationConfig *ApplicationConfig
	State             interface{}
	FnInitialize      Initialize
	FnUpdate          Update
	FnBuildAsset      BuildAsset
	FnOnKey           OnKey
	FnOnResize        OnResize
	FnShutdown        Shutdown
}

type Initialize func(scene *Scene) error
type Update func(deltaTime float64, scene *Scene) error

// BuildAsset assembles the asset to load from the freshly read shader blobs.
type BuildAsset func(shaders []assets.ShaderBlob) (*assets.Asset, error)

// OnKey reports true when it consumed the key.
type OnKey func(ev platform.KeyEvent, scene *Scene) bool
type OnResize func(width uint32, height uint32) error
type Shutdown func() error

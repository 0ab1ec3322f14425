package core

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	ErrSwapchainOutOfDate = errors.New("swapchain out of date or suboptimal")
	ErrFenceTimeout       = errors.New("timed out waiting on fence")
	ErrDeviceLost         = errors.New("device lost")
	ErrDescriptorOverflow = errors.New("descriptor slot pool exhausted")
	ErrBufferOverflow     = errors.New("buffer capacity exceeded")
	ErrUnsupportedImage   = errors.New("unsupported image type")
	ErrMissingShader      = errors.New("missing shader")
	ErrInvalidAsset       = errors.New("invalid asset")
	ErrNoAssetLoaded      = errors.New("no asset loaded")
	ErrNotInitialized     = errors.New("not initialized")
	ErrUnknown            = errors.New("unknown")
)

// SetupError is returned when building device-scoped state fails. The engine
// never exposes a partially built renderer after one of these.
type SetupError struct {
	Step string
	Err  error
}

func NewSetupError(step string, err error) error {
	return &SetupError{Step: step, Err: err}
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("setup failed at %s: %v", e.Step, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

// FrameError aborts the current frame only. The caller decides whether to
// retry on the next tick or to rebuild the swapchain first.
type FrameError struct {
	Stage string
	Err   error
}

func NewFrameError(stage string, err error) error {
	return &FrameError{Stage: stage, Err: err}
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("frame aborted during %s: %v", e.Stage, e.Err)
}

func (e *FrameError) Unwrap() error { return e.Err }

// AssetError aborts an asset load.
type AssetError struct {
	Asset string
	Stage string
	Err   error
}

func NewAssetError(asset, stage string, err error) error {
	return &AssetError{Asset: asset, Stage: stage, Err: err}
}

func (e *AssetError) Error() string {
	return fmt.Sprintf("asset %q failed to load at %s: %v", e.Asset, e.Stage, e.Err)
}

func (e *AssetError) Unwrap() error { return e.Err }

// OverflowError reports exhaustion of a fixed-capacity descriptor pool.
type OverflowError struct {
	Pool     string
	Capacity uint32
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("%s: all %d slots are live", e.Pool, e.Capacity)
}

func (e *OverflowError) Unwrap() error { return ErrDescriptorOverflow }

// NeedsSwapchainRebuild reports whether err asks the caller to recreate the
// swapchain before the next frame.
func NeedsSwapchainRebuild(err error) bool {
	return errors.Is(err, ErrSwapchainOutOfDate)
}

// IsFrameRecoverable reports whether err only cost the current frame.
func IsFrameRecoverable(err error) bool {
	var fe *FrameError
	if !errors.As(err, &fe) {
		return false
	}
	return !errors.Is(err, ErrDeviceLost)
}

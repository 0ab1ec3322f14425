package renderer

import (
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/renderer/descriptor"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

// Stats describes the last recorded frame.
type Stats struct {
	Frame uint64
	// Main pass mesh draws. Shadow draws are counted apart.
	DrawCalls       uint32
	ShadowDrawCalls uint32
	Triangles       uint32
	Lines           uint32
	// CPU time spent in Render.
	DrawTime   time.Duration
	Generation uint64
	Asset      string
	Slots      descriptor.Counts
}

func (s Stats) String() string {
	return fmt.Sprintf("frame %d: %d draws, %d tris, %d lines, %s", s.Frame, s.DrawCalls, s.Triangles, s.Lines, s.DrawTime)
}

// Settings is the editable fixed-function state.
type Settings struct {
	Cull          gpu.CullMode
	FrontFace     gpu.FrontFace
	DepthTest     bool
	Shadows       bool
	DebugCascades bool
	// Samples is the active MSAA level; RequestedSamples is applied at the
	// next resize.
	Samples          uint32
	RequestedSamples uint32
	RenderScale      float32
}

func settingsFromConfig(c config.RenderConfig, limits gpu.Limits) (Settings, error) {
	cull, err := ParseCullMode(c.CullMode)
	if err != nil {
		return Settings{}, err
	}
	face, err := ParseFrontFace(c.FrontFace)
	if err != nil {
		return Settings{}, err
	}
	samples := clampSamples(c.MSAA, limits)
	return Settings{
		Cull:             cull,
		FrontFace:        face,
		DepthTest:        c.DepthTest,
		Shadows:          true,
		Samples:          samples,
		RequestedSamples: samples,
		RenderScale:      c.RenderScale,
	}, nil
}

// clampSamples rounds n down to a power of two the device supports.
func clampSamples(n uint32, limits gpu.Limits) uint32 {
	s := uint32(1)
	for s*2 <= n && s*2 <= max(limits.MaxSamples, 1) {
		s *= 2
	}
	return s
}

func ParseCullMode(s string) (gpu.CullMode, error) {
	switch strings.ToLower(s) {
	case "none":
		return gpu.CullNone, nil
	case "front":
		return gpu.CullFront, nil
	case "back":
		return gpu.CullBack, nil
	}
	return 0, errors.Newf("unknown cull mode %q", s)
}

func ParseFrontFace(s string) (gpu.FrontFace, error) {
	switch strings.ToLower(s) {
	case "ccw":
		return gpu.FrontFaceCounterClockwise, nil
	case "cw":
		return gpu.FrontFaceClockwise, nil
	}
	return 0, errors.Newf("unknown front face %q", s)
}

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	Window WindowConfig `toml:"window"`
	Device DeviceConfig `toml:"device"`
	Render RenderConfig `toml:"render"`
	Assets AssetsConfig `toml:"assets"`
	Log    LogConfig    `toml:"log"`
}

type WindowConfig struct {
	// The application name used in windowing.
	Title string `toml:"title"`
	// Window starting position x axis, if applicable.
	PosX int `toml:"pos_x"`
	// Window starting position y axis, if applicable.
	PosY int `toml:"pos_y"`
	// Window starting width.
	Width uint32 `toml:"width"`
	// Window starting height.
	Height uint32 `toml:"height"`
	// Size limits enforced by the windowing layer. Zero means unbounded.
	MinWidth  uint32 `toml:"min_width"`
	MinHeight uint32 `toml:"min_height"`
	MaxWidth  uint32 `toml:"max_width"`
	MaxHeight uint32 `toml:"max_height"`
}

type DeviceConfig struct {
	// Preferred adapter vendor: nvidia, amd, intel or empty for the first
	// discrete device.
	VendorHint string `toml:"vendor_hint"`
	// Enables the validation layers and the debug messenger.
	Validation bool `toml:"validation"`
	// Number of frames the CPU may record ahead of the GPU.
	FramesInFlight uint32 `toml:"frames_in_flight"`
	// Upper bound for waiting on fences and acquiring images, in milliseconds.
	TimeoutMS uint64 `toml:"timeout_ms"`
}

type RenderConfig struct {
	// Requested sample count. Clamped to what the device supports.
	MSAA uint32 `toml:"msaa"`
	// Scale of the internal draw image relative to the swapchain extent.
	RenderScale float32 `toml:"render_scale"`
	// none, front or back
	CullMode string `toml:"cull_mode"`
	// ccw or cw
	FrontFace string `toml:"front_face"`
	DepthTest bool   `toml:"depth_test"`
	VSync     bool   `toml:"vsync"`
	// Edge length of each shadow cascade layer in texels.
	ShadowMapSize uint32 `toml:"shadow_map_size"`
	// View-space distances splitting the camera frustum into the near,
	// middle and far cascades.
	CascadeSplits [3]float32 `toml:"cascade_splits"`
	// Vertex capacity reserved per frame for debug lines.
	DebugVertices uint32 `toml:"debug_vertices"`
	// Ceilings for the bindless arrays. The device limit wins when lower.
	MaxStorageImages uint32 `toml:"max_storage_images"`
	MaxSampledImages uint32 `toml:"max_sampled_images"`
	MaxSamplers      uint32 `toml:"max_samplers"`
}

type AssetsConfig struct {
	ShaderDir string `toml:"shader_dir"`
	HotReload bool   `toml:"hot_reload"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

func Default() *Config {
	return &Config{
		Window: WindowConfig{
			Title:     "Lumen",
			PosX:      100,
			PosY:      100,
			Width:     1280,
			Height:    720,
			MinWidth:  320,
			MinHeight: 240,
		},
		Device: DeviceConfig{
			Validation:     false,
			FramesInFlight: 2,
			TimeoutMS:      1000,
		},
		Render: RenderConfig{
			MSAA:             4,
			RenderScale:      1.0,
			CullMode:         "back",
			FrontFace:        "ccw",
			DepthTest:        true,
			VSync:            false,
			ShadowMapSize:    2048,
			CascadeSplits:    [3]float32{10, 40, 150},
			DebugVertices:    8192,
			MaxStorageImages: 64,
			MaxSampledImages: 1024,
			MaxSamplers:      64,
		},
		Assets: AssetsConfig{
			ShaderDir: "assets/shaders",
			HotReload: false,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads a TOML file on top of the defaults. A missing file yields the
// defaults unchanged.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, errors.Wrapf(err, "reading config %s", path)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return nil, errors.Newf("config: %s (line %d, column %d)", derr.Error(), row, col)
		}
		return nil, errors.Wrap(err, "config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []string
	if c.Window.Width == 0 || c.Window.Height == 0 {
		errs = append(errs, "window.width and window.height must be positive")
	}
	if c.Window.MaxWidth != 0 && c.Window.MaxWidth < c.Window.MinWidth {
		errs = append(errs, "window.max_width is below window.min_width")
	}
	if c.Window.MaxHeight != 0 && c.Window.MaxHeight < c.Window.MinHeight {
		errs = append(errs, "window.max_height is below window.min_height")
	}
	switch strings.ToLower(c.Device.VendorHint) {
	case "", "nvidia", "amd", "intel":
	default:
		errs = append(errs, fmt.Sprintf("device.vendor_hint %q is not one of nvidia, amd, intel", c.Device.VendorHint))
	}
	if c.Device.FramesInFlight < 1 || c.Device.FramesInFlight > 3 {
		errs = append(errs, fmt.Sprintf("device.frames_in_flight %d is outside 1..3", c.Device.FramesInFlight))
	}
	if c.Device.TimeoutMS == 0 {
		errs = append(errs, "device.timeout_ms must be positive")
	}
	switch c.Render.MSAA {
	case 1, 2, 4, 8:
	default:
		errs = append(errs, fmt.Sprintf("render.msaa %d is not one of 1, 2, 4, 8", c.Render.MSAA))
	}
	if c.Render.RenderScale < 0.25 || c.Render.RenderScale > 2.0 {
		errs = append(errs, fmt.Sprintf("render.render_scale %.2f is outside 0.25..2.0", c.Render.RenderScale))
	}
	switch c.Render.CullMode {
	case "none", "front", "back":
	default:
		errs = append(errs, fmt.Sprintf("render.cull_mode %q is not one of none, front, back", c.Render.CullMode))
	}
	switch c.Render.FrontFace {
	case "ccw", "cw":
	default:
		errs = append(errs, fmt.Sprintf("render.front_face %q is not one of ccw, cw", c.Render.FrontFace))
	}
	if c.Render.ShadowMapSize == 0 {
		errs = append(errs, "render.shadow_map_size must be positive")
	}
	s := c.Render.CascadeSplits
	if !(s[0] > 0 && s[0] < s[1] && s[1] < s[2]) {
		errs = append(errs, "render.cascade_splits must be positive and increasing")
	}
	if c.Render.MaxStorageImages == 0 || c.Render.MaxSampledImages == 0 || c.Render.MaxSamplers == 0 {
		errs = append(errs, "render.max_* descriptor capacities must be positive")
	}
	if len(errs) > 0 {
		return errors.Newf("invalid config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Timeout returns the bounded wait used for fences and image acquisition in
// nanoseconds.
func (c *Config) Timeout() uint64 {
	return c.Device.TimeoutMS * 1_000_000
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
}

func TestParseOverridesDefaults(t *testing.T) {
	data := []byte(`
[window]
title = "sponza"
width = 1920
height = 1080

[device]
vendor_hint = "nvidia"
validation = true
frames_in_flight = 3

[render]
msaa = 8
render_scale = 0.5
cull_mode = "none"
`)
	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Window.Title != "sponza" || cfg.Window.Width != 1920 {
		t.Errorf("window = %+v", cfg.Window)
	}
	if !cfg.Device.Validation || cfg.Device.FramesInFlight != 3 {
		t.Errorf("device = %+v", cfg.Device)
	}
	if cfg.Render.MSAA != 8 || cfg.Render.RenderScale != 0.5 || cfg.Render.CullMode != "none" {
		t.Errorf("render = %+v", cfg.Render)
	}
	// untouched keys keep their defaults
	if cfg.Render.ShadowMapSize != Default().Render.ShadowMapSize {
		t.Errorf("ShadowMapSize = %d, want default", cfg.Render.ShadowMapSize)
	}
}

func TestParseRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		data string
		key  string
	}{
		{"msaa", "[render]\nmsaa = 3\n", "render.msaa"},
		{"scale", "[render]\nrender_scale = 4.0\n", "render.render_scale"},
		{"frames", "[device]\nframes_in_flight = 4\n", "device.frames_in_flight"},
		{"vendor", "[device]\nvendor_hint = \"matrox\"\n", "device.vendor_hint"},
		{"splits", "[render]\ncascade_splits = [10.0, 5.0, 20.0]\n", "render.cascade_splits"},
		{"bounds", "[window]\nmin_width = 800\nmax_width = 640\n", "window.max_width"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			if err == nil {
				t.Fatalf("Parse(%q) succeeded, want error", tt.data)
			}
			if !strings.Contains(err.Error(), tt.key) {
				t.Errorf("error %q does not name %s", err, tt.key)
			}
		})
	}
}

func TestParseSyntaxError(t *testing.T) {
	if _, err := Parse([]byte("[window\nwidth = 1")); err == nil {
		t.Fatal("Parse succeeded on malformed toml")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Window.Width != Default().Window.Width {
		t.Errorf("Width = %d, want default", cfg.Window.Width)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[log]\nlevel = \"debug\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Level = %q, want debug", cfg.Log.Level)
	}
	if got := cfg.Timeout(); got != 1000*1_000_000 {
		t.Errorf("Timeout() = %d", got)
	}
}

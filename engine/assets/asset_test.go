package assets_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/lumen/engine/assets"
	"github.com/spaghettifunk/lumen/engine/assets/assettest"
	"github.com/spaghettifunk/lumen/engine/core"
)

func TestSceneIsValid(t *testing.T) {
	a := assettest.Scene("scene")
	if err := a.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
	if got := a.SurfaceCount(); got != 3 {
		t.Errorf("SurfaceCount() = %d, want 3", got)
	}
	if _, ok := a.Shader("mesh.frag"); !ok {
		t.Error("mesh.frag missing")
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(a *assets.Asset)
		want   error
	}{
		{"no objects", func(a *assets.Asset) { a.Objects = nil }, core.ErrInvalidAsset},
		{"index out of range", func(a *assets.Asset) { a.Meshes[0].Indices[5] = 100000 }, core.ErrInvalidAsset},
		{"surface overrun", func(a *assets.Asset) { a.Meshes[1].Surfaces[0].Start = 3 }, core.ErrInvalidAsset},
		{"partial triangle", func(a *assets.Asset) { a.Meshes[1].Surfaces[0].Count = 119 }, core.ErrInvalidAsset},
		{"material ref", func(a *assets.Asset) { a.Meshes[0].Surfaces[0].Material = 9 }, core.ErrInvalidAsset},
		{"image kind", func(a *assets.Asset) { a.Materials[0].NormalImage = 0 }, core.ErrUnsupportedImage},
		{"image format", func(a *assets.Asset) { a.Images[0].Format = assets.TextureFormatUnknown }, core.ErrUnsupportedImage},
		{"mip size", func(a *assets.Asset) { a.Images[1].Mips[0] = a.Images[1].Mips[0][:3] }, core.ErrUnsupportedImage},
		{"sampler ref", func(a *assets.Asset) { a.Materials[1].Sampler = 4 }, core.ErrInvalidAsset},
		{"object mesh", func(a *assets.Asset) { a.Objects[0].Mesh = 2 }, core.ErrInvalidAsset},
		{"shader size", func(a *assets.Asset) { a.Shaders[0].Code = a.Shaders[0].Code[:6] }, core.ErrInvalidAsset},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := assettest.Scene("scene")
			tt.mutate(a)
			if err := a.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestMipSize(t *testing.T) {
	tests := []struct {
		format assets.TextureFormat
		w, h   uint32
		want   uint64
	}{
		{assets.TextureFormatRGBA8, 4, 2, 32},
		{assets.TextureFormatBC1, 8, 8, 32},
		{assets.TextureFormatBC7, 1, 1, 16},
		{assets.TextureFormatBC5, 5, 4, 32},
	}
	for _, tt := range tests {
		if got := tt.format.MipSize(tt.w, tt.h); got != tt.want {
			t.Errorf("MipSize(%d, %d) of format %d = %d, want %d", tt.w, tt.h, tt.format, got, tt.want)
		}
	}
}

func TestAssetsGetDistinctIDs(t *testing.T) {
	if assets.New("a").ID == assets.New("a").ID {
		t.Error("two assets share an ID")
	}
}

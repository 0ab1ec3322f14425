package vulkan

import (
	"testing"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

func usableAdapter(name string, vendor uint32, discrete bool) adapter {
	return adapter{
		name:          name,
		vendorID:      vendor,
		discrete:      discrete,
		graphics:      0,
		present:       0,
		extensions:    true,
		bindless:      true,
		anisotropy:    true,
		swapchainOkay: true,
	}
}

func TestPickAdapter(t *testing.T) {
	integrated := usableAdapter("intel", 0x8086, false)
	discrete := usableAdapter("nvidia", 0x10DE, true)
	noBindless := usableAdapter("old", 0x1002, true)
	noBindless.bindless = false

	tests := []struct {
		name     string
		adapters []adapter
		hint     string
		want     int
	}{
		{"discrete beats integrated", []adapter{integrated, discrete}, "", 1},
		{"hint beats discrete", []adapter{integrated, discrete}, "intel", 0},
		{"hint is case insensitive", []adapter{discrete, integrated}, "INTEL", 1},
		{"unknown hint falls back", []adapter{integrated, discrete}, "acme", 1},
		{"unusable skipped", []adapter{noBindless, integrated}, "amd", 1},
		{"first of equals wins", []adapter{integrated, integrated}, "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := pickAdapter(tt.adapters, tt.hint)
			if err != nil {
				t.Fatalf("pickAdapter: %v", err)
			}
			if got != tt.want {
				t.Errorf("pickAdapter = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPickAdapterNoneUsable(t *testing.T) {
	a := usableAdapter("headless", 0x10DE, true)
	a.present = -1
	if _, err := pickAdapter([]adapter{a}, ""); err == nil {
		t.Fatal("expected an error without a present queue")
	}
	if _, err := pickAdapter(nil, ""); err == nil {
		t.Fatal("expected an error without adapters")
	}
}

func TestResultErrorUnwrap(t *testing.T) {
	tests := []struct {
		res  vk.Result
		want error
	}{
		{vk.ErrorOutOfDate, core.ErrSwapchainOutOfDate},
		{vk.Suboptimal, core.ErrSwapchainOutOfDate},
		{vk.Timeout, core.ErrFenceTimeout},
		{vk.ErrorDeviceLost, core.ErrDeviceLost},
	}
	for _, tt := range tests {
		err := errors.Wrap(check("vkOp", tt.res), "context")
		if !errors.Is(err, tt.want) {
			t.Errorf("%s: %v does not match %v", VulkanResultString(tt.res, false), err, tt.want)
		}
	}
	if err := check("vkOp", vk.Success); err != nil {
		t.Errorf("success produced %v", err)
	}
	err := check("vkOp", vk.ErrorOutOfDeviceMemory)
	if errors.Is(err, core.ErrSwapchainOutOfDate) || errors.Is(err, core.ErrDeviceLost) {
		t.Errorf("out of memory matched a sentinel: %v", err)
	}
	var re *ResultError
	if !errors.As(err, &re) || re.Op != "vkOp" {
		t.Errorf("ResultError not reachable from %v", err)
	}
}

func TestCString(t *testing.T) {
	if got := cString([]byte{'a', 'b', 0, 'c'}); got != "ab" {
		t.Errorf("cString = %q", got)
	}
	if got := cString([]byte("full")); got != "full" {
		t.Errorf("cString without terminator = %q", got)
	}
	if got := FindFirstZeroInByteArray([]byte{0}); got != 0 {
		t.Errorf("FindFirstZeroInByteArray = %d", got)
	}
}

func TestFormatRoundTrip(t *testing.T) {
	for gf := range formats {
		if got := gpuFormat(vkFormat(gf)); got != gf {
			t.Errorf("format %d came back as %d", gf, got)
		}
	}
	if got := gpuFormat(vk.FormatR5g6b5UnormPack16); got != gpu.FormatUndefined {
		t.Errorf("unnamed format mapped to %d", got)
	}
}

func TestMaxSamples(t *testing.T) {
	color := vk.SampleCountFlags(vk.SampleCount1Bit | vk.SampleCount2Bit | vk.SampleCount4Bit | vk.SampleCount8Bit)
	depth := vk.SampleCountFlags(vk.SampleCount1Bit | vk.SampleCount4Bit)
	if got := maxSamples(color, depth); got != 4 {
		t.Errorf("maxSamples = %d, want 4", got)
	}
	if got := maxSamples(vk.SampleCountFlags(vk.SampleCount1Bit), 0); got != 1 {
		t.Errorf("maxSamples without overlap = %d, want 1", got)
	}
}

func TestAspects(t *testing.T) {
	if aspectOf(gpu.FormatD24UnormS8Uint) != vk.ImageAspectFlags(vk.ImageAspectDepthBit|vk.ImageAspectStencilBit) {
		t.Error("D24S8 barrier should cover depth and stencil")
	}
	if depthOnly(gpu.FormatD24UnormS8Uint) != vk.ImageAspectFlags(vk.ImageAspectDepthBit) {
		t.Error("D24S8 view should read depth only")
	}
	if aspectOf(gpu.FormatRGBA8Unorm) != vk.ImageAspectFlags(vk.ImageAspectColorBit) {
		t.Error("color format should use the color aspect")
	}
	if countOrRemaining(0) != remaining || countOrRemaining(3) != 3 {
		t.Error("countOrRemaining")
	}
}

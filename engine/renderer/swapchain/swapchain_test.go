package swapchain

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu/gputest"
)

func TestChooseImageCount(t *testing.T) {
	tests := []struct {
		min, max, desired, want uint32
	}{
		{2, 8, 3, 3},
		{2, 8, 5, 3},
		{1, 2, 3, 2},
		{2, 0, 4, 3},
		{1, 8, 1, 2},
	}
	for _, tt := range tests {
		caps := gpu.SurfaceCapabilities{MinImageCount: tt.min, MaxImageCount: tt.max}
		if got := ChooseImageCount(caps, tt.desired); got != tt.want {
			t.Errorf("ChooseImageCount(min=%d max=%d desired=%d) = %d, want %d", tt.min, tt.max, tt.desired, got, tt.want)
		}
	}
}

func TestChooseSurfaceFormat(t *testing.T) {
	srgb := gpu.SurfaceFormat{Format: gpu.FormatBGRA8Srgb, ColorSpace: gpu.ColorSpaceSRGBNonlinear}
	unorm := gpu.SurfaceFormat{Format: gpu.FormatBGRA8Unorm, ColorSpace: gpu.ColorSpaceSRGBNonlinear}
	hdr := gpu.SurfaceFormat{Format: gpu.FormatBGRA8Srgb, ColorSpace: gpu.ColorSpaceHDR10}

	if got, _ := ChooseSurfaceFormat([]gpu.SurfaceFormat{unorm, hdr, srgb}); got != srgb {
		t.Errorf("preferred format not chosen: %+v", got)
	}
	if got, _ := ChooseSurfaceFormat([]gpu.SurfaceFormat{hdr, unorm}); got != hdr {
		t.Errorf("fallback = %+v, want first advertised", got)
	}
	if _, err := ChooseSurfaceFormat(nil); err == nil {
		t.Error("no formats accepted")
	}
}

func TestChoosePresentMode(t *testing.T) {
	all := []gpu.PresentMode{gpu.PresentModeImmediate, gpu.PresentModeFifo, gpu.PresentModeMailbox}
	if got := ChoosePresentMode(all, false); got != gpu.PresentModeMailbox {
		t.Errorf("got %s, want mailbox", got)
	}
	if got := ChoosePresentMode([]gpu.PresentMode{gpu.PresentModeImmediate, gpu.PresentModeFifo}, false); got != gpu.PresentModeFifo {
		t.Errorf("got %s, want fifo", got)
	}
	if got := ChoosePresentMode(all, true); got != gpu.PresentModeFifo {
		t.Errorf("vsync got %s, want fifo", got)
	}
}

func TestChooseExtent(t *testing.T) {
	caps := gpu.SurfaceCapabilities{
		CurrentExtent: gpu.Extent2D{Width: undefinedExtent, Height: undefinedExtent},
		MinExtent:     gpu.Extent2D{Width: 64, Height: 64},
		MaxExtent:     gpu.Extent2D{Width: 4096, Height: 2160},
	}
	if got := ChooseExtent(caps, gpu.Extent2D{Width: 8000, Height: 10}); got != (gpu.Extent2D{Width: 4096, Height: 64}) {
		t.Errorf("clamped extent = %+v", got)
	}
	caps.CurrentExtent = gpu.Extent2D{Width: 800, Height: 600}
	if got := ChooseExtent(caps, gpu.Extent2D{Width: 1, Height: 1}); got != caps.CurrentExtent {
		t.Errorf("extent = %+v, want current", got)
	}
}

func TestResizeRecreatesViews(t *testing.T) {
	dev := gputest.New()
	m := NewManager(dev, 3, false)
	if err := m.Create(gpu.Extent2D{Width: 1280, Height: 720}); err != nil {
		t.Fatal(err)
	}
	if n := len(m.Views()); n != 3 {
		t.Fatalf("views = %d, want 3", n)
	}
	if m.Swapchain().PresentMode() != gpu.PresentModeMailbox {
		t.Errorf("present mode = %s", m.Swapchain().PresentMode())
	}
	old := m.Views()[0]

	dev.Caps.CurrentExtent = gpu.Extent2D{Width: 1920, Height: 1080}
	dev.ClearCalls()
	if err := m.Resize(gpu.Extent2D{Width: 1920, Height: 1080}); err != nil {
		t.Fatal(err)
	}
	calls := dev.Calls()
	if calls[0].Op != "WaitIdle" {
		t.Errorf("first call during resize = %v, want WaitIdle", calls[0])
	}
	if m.Extent() != (gpu.Extent2D{Width: 1920, Height: 1080}) {
		t.Errorf("Extent() = %+v", m.Extent())
	}
	if m.Views()[0] == old {
		t.Error("views were not recreated")
	}
	for _, v := range m.Views() {
		if v.Image().Desc().Extent != m.Extent() {
			t.Errorf("view over %+v image, want %+v", v.Image().Desc().Extent, m.Extent())
		}
	}
	if dev.Live("ImageView") != 3 || dev.Live("Swapchain") != 1 {
		t.Errorf("live = %v", dev.LiveSummary())
	}
	if m.Generation() != 2 {
		t.Errorf("Generation() = %d, want 2", m.Generation())
	}
	m.Destroy()
	if dev.LiveTotal() != 0 {
		t.Errorf("leaked %v", dev.LiveSummary())
	}
}

func TestMinimizedWindowIsOutOfDate(t *testing.T) {
	dev := gputest.New()
	dev.Caps.CurrentExtent = gpu.Extent2D{}
	m := NewManager(dev, 3, false)
	err := m.Create(gpu.Extent2D{})
	if !errors.Is(err, core.ErrSwapchainOutOfDate) {
		t.Fatalf("Create() = %v, want out of date", err)
	}
	if m.Valid() || dev.LiveTotal() != 0 {
		t.Errorf("swapchain created for empty surface: %v", dev.LiveSummary())
	}
}

func TestFailedViewReleasesSwapchain(t *testing.T) {
	dev := gputest.New()
	dev.FailOn("CreateImageView", 2, errors.New("injected"))
	m := NewManager(dev, 3, false)
	if err := m.Create(gpu.Extent2D{Width: 640, Height: 480}); err == nil {
		t.Fatal("Create succeeded")
	}
	if dev.LiveTotal() != 0 || m.Valid() {
		t.Errorf("leaked %v", dev.LiveSummary())
	}
}

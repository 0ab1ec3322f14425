// Package swapchain owns the presentable image chain and rebuilds it when the
// window changes size.
package swapchain

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

const (
	MinImageCount uint32 = 2
	MaxImageCount uint32 = 3
)

// undefinedExtent marks a surface whose size is decided by the swapchain.
const undefinedExtent = 0xFFFFFFFF

type Manager struct {
	device     gpu.Device
	desired    uint32
	vsync      bool
	swapchain  gpu.Swapchain
	views      []gpu.ImageView
	generation uint64
}

func NewManager(device gpu.Device, desiredImages uint32, vsync bool) *Manager {
	return &Manager{
		device:  device,
		desired: desiredImages,
		vsync:   vsync,
	}
}

// Create builds the swapchain and one view per image for a window of the
// given size. A zero-area window yields core.ErrSwapchainOutOfDate and no
// swapchain; the caller retries once the window has a size again.
func (m *Manager) Create(window gpu.Extent2D) error {
	if m.swapchain != nil {
		return errors.New("swapchain already created")
	}
	caps, err := m.device.SurfaceCapabilities()
	if err != nil {
		return errors.Wrap(err, "querying surface capabilities")
	}
	extent := ChooseExtent(caps, window)
	if extent.Empty() {
		return errors.Wrap(core.ErrSwapchainOutOfDate, "surface has no area")
	}
	format, err := ChooseSurfaceFormat(caps.Formats)
	if err != nil {
		return err
	}
	desc := gpu.SwapchainDesc{
		Name:        "swapchain",
		ImageCount:  ChooseImageCount(caps, m.desired),
		Format:      format,
		Extent:      extent,
		PresentMode: ChoosePresentMode(caps.PresentModes, m.vsync),
	}
	sc, err := m.device.CreateSwapchain(desc)
	if err != nil {
		return errors.Wrap(err, "creating swapchain")
	}
	m.swapchain = sc

	for i, img := range sc.Images() {
		view, err := m.device.CreateImageView(gpu.ImageViewDesc{
			Name:       fmt.Sprintf("swapchain-view-%d", i),
			Image:      img,
			LayerCount: 1,
			MipCount:   1,
		})
		if err != nil {
			m.Destroy()
			return errors.Wrapf(err, "creating swapchain image view %d", i)
		}
		m.views = append(m.views, view)
	}
	m.generation++
	core.LogInfo("swapchain created: %dx%d, %d images, %s", extent.Width, extent.Height, len(sc.Images()), desc.PresentMode)
	return nil
}

// Destroy releases the views and the swapchain. The caller makes sure the
// GPU no longer uses them.
func (m *Manager) Destroy() {
	for i := len(m.views) - 1; i >= 0; i-- {
		m.device.DestroyImageView(m.views[i])
	}
	m.views = nil
	if m.swapchain != nil {
		m.device.DestroySwapchain(m.swapchain)
		m.swapchain = nil
	}
}

// Resize stalls the GPU, destroys the current chain and builds a new one.
func (m *Manager) Resize(window gpu.Extent2D) error {
	if err := m.device.WaitIdle(); err != nil {
		return errors.Wrap(err, "waiting for idle before resize")
	}
	m.Destroy()
	return m.Create(window)
}

func (m *Manager) Swapchain() gpu.Swapchain { return m.swapchain }
func (m *Manager) Views() []gpu.ImageView   { return m.views }
func (m *Manager) Valid() bool              { return m.swapchain != nil }

// Generation increases every time a new chain is created.
func (m *Manager) Generation() uint64 { return m.generation }

func (m *Manager) Extent() gpu.Extent2D {
	if m.swapchain == nil {
		return gpu.Extent2D{}
	}
	return m.swapchain.Extent()
}

func (m *Manager) Image(index uint32) gpu.Image {
	return m.swapchain.Images()[index]
}

// ChooseImageCount returns clamp(min(max, desired), 2, 3), raised to the
// surface minimum when a driver insists on more.
func ChooseImageCount(caps gpu.SurfaceCapabilities, desired uint32) uint32 {
	n := desired
	if caps.MaxImageCount > 0 {
		n = min(caps.MaxImageCount, desired)
	}
	n = core.Clamp(n, MinImageCount, MaxImageCount)
	if n < caps.MinImageCount {
		core.LogWarn("surface needs at least %d images, using that instead of %d", caps.MinImageCount, n)
		n = caps.MinImageCount
	}
	return n
}

// ChooseSurfaceFormat prefers 8-bit BGRA sRGB with the sRGB nonlinear color
// space and falls back to the first advertised format.
func ChooseSurfaceFormat(formats []gpu.SurfaceFormat) (gpu.SurfaceFormat, error) {
	if len(formats) == 0 {
		return gpu.SurfaceFormat{}, errors.New("surface advertises no formats")
	}
	for _, f := range formats {
		if f.Format == gpu.FormatBGRA8Srgb && f.ColorSpace == gpu.ColorSpaceSRGBNonlinear {
			return f, nil
		}
	}
	return formats[0], nil
}

// ChoosePresentMode prefers mailbox and falls back to FIFO, which every
// surface supports. vsync forces FIFO.
func ChoosePresentMode(modes []gpu.PresentMode, vsync bool) gpu.PresentMode {
	if vsync {
		return gpu.PresentModeFifo
	}
	for _, m := range modes {
		if m == gpu.PresentModeMailbox {
			return m
		}
	}
	return gpu.PresentModeFifo
}

// ChooseExtent uses the surface's current extent when it has one and
// otherwise the window size clamped to the supported range.
func ChooseExtent(caps gpu.SurfaceCapabilities, window gpu.Extent2D) gpu.Extent2D {
	if caps.CurrentExtent.Width != undefinedExtent {
		return caps.CurrentExtent
	}
	return gpu.Extent2D{
		Width:  core.Clamp(window.Width, caps.MinExtent.Width, caps.MaxExtent.Width),
		Height: core.Clamp(window.Height, caps.MinExtent.Height, caps.MaxExtent.Height),
	}
}

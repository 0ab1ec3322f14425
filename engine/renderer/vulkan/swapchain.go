package vulkan

import (
	"fmt"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

type VulkanSwapchain struct {
	name   string
	desc   gpu.SwapchainDesc
	Handle vk.Swapchain
	images []gpu.Image
}

func (s *VulkanSwapchain) Name() string                 { return s.name }
func (s *VulkanSwapchain) Images() []gpu.Image          { return s.images }
func (s *VulkanSwapchain) Format() gpu.SurfaceFormat    { return s.desc.Format }
func (s *VulkanSwapchain) Extent() gpu.Extent2D         { return s.desc.Extent }
func (s *VulkanSwapchain) PresentMode() gpu.PresentMode { return s.desc.PresentMode }

// SurfaceCapabilities queries the surface as it is now. Formats and present
// modes the renderer has no name for are left out.
func (d *Device) SurfaceCapabilities() (gpu.SurfaceCapabilities, error) {
	var out gpu.SurfaceCapabilities
	surface := d.ctx.Surface

	var caps vk.SurfaceCapabilities
	if err := check("vkGetPhysicalDeviceSurfaceCapabilities", vk.GetPhysicalDeviceSurfaceCapabilities(d.PhysicalDevice, surface, &caps)); err != nil {
		return out, err
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()
	out.MinImageCount = caps.MinImageCount
	out.MaxImageCount = caps.MaxImageCount
	out.CurrentExtent = gpu.Extent2D{Width: caps.CurrentExtent.Width, Height: caps.CurrentExtent.Height}
	out.MinExtent = gpu.Extent2D{Width: caps.MinImageExtent.Width, Height: caps.MinImageExtent.Height}
	out.MaxExtent = gpu.Extent2D{Width: caps.MaxImageExtent.Width, Height: caps.MaxImageExtent.Height}

	var formatCount uint32
	if err := check("vkGetPhysicalDeviceSurfaceFormats", vk.GetPhysicalDeviceSurfaceFormats(d.PhysicalDevice, surface, &formatCount, nil)); err != nil {
		return out, err
	}
	formats := make([]vk.SurfaceFormat, formatCount)
	if formatCount > 0 {
		if err := check("vkGetPhysicalDeviceSurfaceFormats", vk.GetPhysicalDeviceSurfaceFormats(d.PhysicalDevice, surface, &formatCount, formats)); err != nil {
			return out, err
		}
	}
	for i := range formats[:formatCount] {
		formats[i].Deref()
		f := gpuFormat(formats[i].Format)
		cs, ok := gpuColorSpace(formats[i].ColorSpace)
		if f == gpu.FormatUndefined || !ok {
			continue
		}
		out.Formats = append(out.Formats, gpu.SurfaceFormat{Format: f, ColorSpace: cs})
	}

	var modeCount uint32
	if err := check("vkGetPhysicalDeviceSurfacePresentModes", vk.GetPhysicalDeviceSurfacePresentModes(d.PhysicalDevice, surface, &modeCount, nil)); err != nil {
		return out, err
	}
	modes := make([]vk.PresentMode, modeCount)
	if modeCount > 0 {
		if err := check("vkGetPhysicalDeviceSurfacePresentModes", vk.GetPhysicalDeviceSurfacePresentModes(d.PhysicalDevice, surface, &modeCount, modes)); err != nil {
			return out, err
		}
	}
	for _, m := range modes[:modeCount] {
		if pm, ok := gpuPresentMode(m); ok {
			out.PresentModes = append(out.PresentModes, pm)
		}
	}
	return out, nil
}

// CreateSwapchain builds a swapchain exactly as described; choosing the
// format, mode, count and extent is up to the caller.
func (d *Device) CreateSwapchain(desc gpu.SwapchainDesc) (gpu.Swapchain, error) {
	if desc.Extent.Empty() {
		return nil, errors.Newf("swapchain %q has empty extent", desc.Name)
	}
	var caps vk.SurfaceCapabilities
	if err := check("vkGetPhysicalDeviceSurfaceCapabilities", vk.GetPhysicalDeviceSurfaceCapabilities(d.PhysicalDevice, d.ctx.Surface, &caps)); err != nil {
		return nil, errors.Wrapf(err, "swapchain %q", desc.Name)
	}
	caps.Deref()

	info := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          d.ctx.Surface,
		MinImageCount:    desc.ImageCount,
		ImageFormat:      vkFormat(desc.Format.Format),
		ImageColorSpace:  vkColorSpace(desc.Format.ColorSpace),
		ImageExtent:      vk.Extent2D{Width: desc.Extent.Width, Height: desc.Extent.Height},
		ImageArrayLayers: 1,
		ImageUsage:       vkImageUsage(gpu.ImageUsageColorAttachment | gpu.ImageUsageTransferDst),
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      vkPresentMode(desc.PresentMode),
		Clipped:          vk.True,
		OldSwapchain:     vk.NullSwapchain,
	}
	if d.GraphicsQueueIndex != d.PresentQueueIndex {
		info.ImageSharingMode = vk.SharingModeConcurrent
		info.QueueFamilyIndexCount = 2
		info.PQueueFamilyIndices = []uint32{uint32(d.GraphicsQueueIndex), uint32(d.PresentQueueIndex)}
	} else {
		info.ImageSharingMode = vk.SharingModeExclusive
	}

	sc := &VulkanSwapchain{name: desc.Name, desc: desc}
	if err := check("vkCreateSwapchain", vk.CreateSwapchain(d.LogicalDevice, &info, d.ctx.Allocator, &sc.Handle)); err != nil {
		return nil, errors.Wrapf(err, "swapchain %q", desc.Name)
	}

	var count uint32
	if err := check("vkGetSwapchainImages", vk.GetSwapchainImages(d.LogicalDevice, sc.Handle, &count, nil)); err != nil {
		d.DestroySwapchain(sc)
		return nil, errors.Wrapf(err, "swapchain %q", desc.Name)
	}
	handles := make([]vk.Image, count)
	if err := check("vkGetSwapchainImages", vk.GetSwapchainImages(d.LogicalDevice, sc.Handle, &count, handles)); err != nil {
		d.DestroySwapchain(sc)
		return nil, errors.Wrapf(err, "swapchain %q", desc.Name)
	}
	// The driver may hand back more images than asked for.
	sc.desc.ImageCount = count
	for i, h := range handles[:count] {
		name := fmt.Sprintf("%s-image-%d", desc.Name, i)
		sc.images = append(sc.images, &VulkanImage{
			name: name,
			desc: gpu.ImageDesc{
				Name:    name,
				Format:  desc.Format.Format,
				Extent:  desc.Extent,
				Mips:    1,
				Layers:  1,
				Samples: 1,
				Usage:   gpu.ImageUsageColorAttachment | gpu.ImageUsageTransferDst,
			},
			Handle:   h,
			borrowed: true,
		})
	}
	core.LogDebug("swapchain %q created: %dx%d, %d images, %s", desc.Name,
		desc.Extent.Width, desc.Extent.Height, count, desc.PresentMode)
	return sc, nil
}

// DestroySwapchain releases the swapchain and with it every image it handed
// out. The caller waits for the device to go idle first.
func (d *Device) DestroySwapchain(sc gpu.Swapchain) {
	vs, ok := sc.(*VulkanSwapchain)
	if !ok || vs == nil || vs.Handle == vk.NullSwapchain {
		return
	}
	vk.DestroySwapchain(d.LogicalDevice, vs.Handle, d.ctx.Allocator)
	vs.Handle = vk.NullSwapchain
	vs.images = nil
}

func (d *Device) AcquireNextImage(sc gpu.Swapchain, timeout uint64, signal gpu.Semaphore) (uint32, error) {
	vs := sc.(*VulkanSwapchain)
	semaphore := vk.NullSemaphore
	if s, ok := signal.(*VulkanSemaphore); ok && s != nil {
		semaphore = s.Handle
	}
	var index uint32
	res := vk.AcquireNextImage(d.LogicalDevice, vs.Handle, timeout, semaphore, vk.NullFence, &index)
	if res == vk.Suboptimal {
		// The image is acquired and the semaphore will signal, so it is used.
		// Present reports the mismatch.
		return index, nil
	}
	if err := check("vkAcquireNextImage", res); err != nil {
		return index, errors.Wrapf(err, "swapchain %q", vs.name)
	}
	return index, nil
}

func (d *Device) Present(sc gpu.Swapchain, imageIndex uint32, wait gpu.Semaphore) error {
	vs := sc.(*VulkanSwapchain)
	info := vk.PresentInfo{
		SType:          vk.StructureTypePresentInfo,
		SwapchainCount: 1,
		PSwapchains:    []vk.Swapchain{vs.Handle},
		PImageIndices:  []uint32{imageIndex},
	}
	if s, ok := wait.(*VulkanSemaphore); ok && s != nil {
		info.WaitSemaphoreCount = 1
		info.PWaitSemaphores = []vk.Semaphore{s.Handle}
	}
	err := d.locks.SafeCall(QueueManagement, func() error {
		return check("vkQueuePresent", vk.QueuePresent(d.PresentQueue, &info))
	})
	if err != nil {
		return errors.Wrapf(err, "presenting %q image %d", vs.name, imageIndex)
	}
	return nil
}

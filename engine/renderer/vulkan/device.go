// Package vulkan implements gpu.Device on top of goki/vulkan. It targets
// Vulkan 1.2 with descriptor indexing and buffer device addresses.
package vulkan

import (
	"strings"
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

var vendorIDs = map[string]uint32{
	"nvidia": 0x10DE,
	"amd":    0x1002,
	"intel":  0x8086,
}

// Device owns the logical device, its queues and the graphics command pool.
type Device struct {
	ctx    *VulkanContext
	window Window

	PhysicalDevice vk.PhysicalDevice
	LogicalDevice  vk.Device
	Properties     vk.PhysicalDeviceProperties
	Memory         vk.PhysicalDeviceMemoryProperties

	GraphicsQueueIndex uint32
	PresentQueueIndex  uint32
	GraphicsQueue      vk.Queue
	PresentQueue       vk.Queue

	GraphicsCommandPool vk.CommandPool

	limits      gpu.Limits
	locks       *VulkanLockPool
	portability bool
}

var _ gpu.Device = (*Device)(nil)

// New creates the instance, picks an adapter and creates the logical device.
func New(window Window, opts Options) (*Device, error) {
	ctx, err := newContext(window, opts)
	if err != nil {
		return nil, err
	}
	d := &Device{ctx: ctx, window: window, locks: NewVulkanLockPool()}
	if err := d.selectPhysicalDevice(opts.VendorHint); err != nil {
		ctx.destroy()
		return nil, err
	}
	if err := d.createLogicalDevice(); err != nil {
		ctx.destroy()
		return nil, err
	}
	return d, nil
}

// adapter is what device selection looks at for each physical device.
type adapter struct {
	name          string
	vendorID      uint32
	discrete      bool
	graphics      int
	present       int
	extensions    bool
	bindless      bool
	anisotropy    bool
	portability   bool
	swapchainOkay bool
}

func (a adapter) usable() bool {
	return a.graphics >= 0 && a.present >= 0 && a.extensions && a.bindless && a.anisotropy && a.swapchainOkay
}

// pickAdapter returns the index of the best usable adapter. A vendor hint
// outranks a discrete GPU; otherwise the first discrete GPU wins over the
// first integrated one.
func pickAdapter(adapters []adapter, hint string) (int, error) {
	wanted, hinted := vendorIDs[strings.ToLower(hint)]
	best, bestScore := -1, -1
	for i, a := range adapters {
		if !a.usable() {
			core.LogInfo("Skipping device '%s': missing required support.", a.name)
			continue
		}
		score := 0
		if hinted && a.vendorID == wanted {
			score += 2
		}
		if a.discrete {
			score++
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return -1, errors.New("no physical device supports Vulkan 1.2 bindless rendering on this surface")
	}
	if hinted && adapters[best].vendorID != wanted {
		core.LogWarn("No %s device found, falling back to '%s'.", hint, adapters[best].name)
	}
	return best, nil
}

func (d *Device) selectPhysicalDevice(hint string) error {
	var count uint32
	if err := check("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(d.ctx.Instance, &count, nil)); err != nil {
		return err
	}
	if count == 0 {
		return errors.New("no devices which support Vulkan were found")
	}
	devices := make([]vk.PhysicalDevice, count)
	if err := check("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(d.ctx.Instance, &count, devices)); err != nil {
		return err
	}

	adapters := make([]adapter, len(devices))
	for i, pd := range devices {
		a, err := d.describe(pd)
		if err != nil {
			return err
		}
		adapters[i] = a
	}
	idx, err := pickAdapter(adapters, hint)
	if err != nil {
		return err
	}

	pd := devices[idx]
	d.PhysicalDevice = pd
	d.GraphicsQueueIndex = uint32(adapters[idx].graphics)
	d.PresentQueueIndex = uint32(adapters[idx].present)
	d.portability = adapters[idx].portability
	vk.GetPhysicalDeviceProperties(pd, &d.Properties)
	d.Properties.Deref()
	d.Properties.Limits.Deref()
	vk.GetPhysicalDeviceMemoryProperties(pd, &d.Memory)
	d.Memory.Deref()

	props := d.Properties
	core.LogInfo("Selected device: '%s'.", cString(props.DeviceName[:]))
	switch props.DeviceType {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		core.LogInfo("GPU type is Integrated.")
	case vk.PhysicalDeviceTypeDiscreteGpu:
		core.LogInfo("GPU type is Discrete.")
	case vk.PhysicalDeviceTypeVirtualGpu:
		core.LogInfo("GPU type is Virtual.")
	case vk.PhysicalDeviceTypeCpu:
		core.LogInfo("GPU type is CPU.")
	default:
		core.LogInfo("GPU type is Unknown.")
	}
	core.LogInfo(
		"Vulkan API version: %d.%d.%d",
		vk.Version(props.ApiVersion).Major(),
		vk.Version(props.ApiVersion).Minor(),
		vk.Version(props.ApiVersion).Patch(),
	)
	for j := uint32(0); j < d.Memory.MemoryHeapCount; j++ {
		heap := d.Memory.MemoryHeaps[j]
		heap.Deref()
		gib := float64(heap.Size) / 1024.0 / 1024.0 / 1024.0
		if vk.MemoryHeapFlagBits(heap.Flags)&vk.MemoryHeapDeviceLocalBit != 0 {
			core.LogInfo("Local GPU memory: %.2f GiB", gib)
		} else {
			core.LogInfo("Shared System memory: %.2f GiB", gib)
		}
	}

	limits := props.Limits
	d.limits = gpu.Limits{
		MaxStorageImages: limits.MaxPerStageDescriptorStorageImages,
		MaxSampledImages: limits.MaxPerStageDescriptorSampledImages,
		MaxSamplers:      limits.MaxPerStageDescriptorSamplers,
		MaxSamples:       maxSamples(limits.FramebufferColorSampleCounts, limits.FramebufferDepthSampleCounts),
		MaxPushConstant:  limits.MaxPushConstantsSize,
		DepthFormat:      d.detectDepthFormat(),
	}
	if d.limits.DepthFormat == gpu.FormatUndefined {
		return errors.New("no supported depth format")
	}
	return nil
}

func (d *Device) describe(pd vk.PhysicalDevice) (adapter, error) {
	var props vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(pd, &props)
	props.Deref()
	var features vk.PhysicalDeviceFeatures
	vk.GetPhysicalDeviceFeatures(pd, &features)
	features.Deref()

	a := adapter{
		name:       cString(props.DeviceName[:]),
		vendorID:   props.VendorID,
		discrete:   props.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu,
		anisotropy: features.SamplerAnisotropy == vk.True,
		graphics:   -1,
		present:    -1,
	}

	var familyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &familyCount, nil)
	families := make([]vk.QueueFamilyProperties, familyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &familyCount, families)
	for i := range families {
		families[i].Deref()
		graphics := vk.QueueFlagBits(families[i].QueueFlags)&vk.QueueGraphicsBit != 0
		var supportsPresent vk.Bool32
		if err := check("vkGetPhysicalDeviceSurfaceSupport", vk.GetPhysicalDeviceSurfaceSupport(pd, uint32(i), d.ctx.Surface, &supportsPresent)); err != nil {
			return a, err
		}
		present := supportsPresent == vk.True
		// prefer one family doing both
		if graphics && present {
			a.graphics, a.present = i, i
			break
		}
		if graphics && a.graphics < 0 {
			a.graphics = i
		}
		if present && a.present < 0 {
			a.present = i
		}
	}

	var extCount uint32
	if err := check("vkEnumerateDeviceExtensionProperties", vk.EnumerateDeviceExtensionProperties(pd, "", &extCount, nil)); err != nil {
		return a, err
	}
	exts := make([]vk.ExtensionProperties, extCount)
	if err := check("vkEnumerateDeviceExtensionProperties", vk.EnumerateDeviceExtensionProperties(pd, "", &extCount, exts)); err != nil {
		return a, err
	}
	for i := range exts {
		exts[i].Deref()
		switch cString(exts[i].ExtensionName[:]) {
		case "VK_KHR_swapchain":
			a.extensions = true
		case "VK_KHR_portability_subset":
			a.portability = true
		}
	}

	var f12 vk.PhysicalDeviceVulkan12Features
	f12.SType = vk.StructureTypePhysicalDeviceVulkan12Features
	f12Ref, _ := f12.PassRef()
	f2 := vk.PhysicalDeviceFeatures2{
		SType: vk.StructureTypePhysicalDeviceFeatures2,
		PNext: unsafe.Pointer(f12Ref),
	}
	vk.GetPhysicalDeviceFeatures2(pd, &f2)
	f12.Deref()
	a.bindless = f12.DescriptorIndexing == vk.True &&
		f12.RuntimeDescriptorArray == vk.True &&
		f12.DescriptorBindingPartiallyBound == vk.True &&
		f12.DescriptorBindingSampledImageUpdateAfterBind == vk.True &&
		f12.ShaderSampledImageArrayNonUniformIndexing == vk.True &&
		f12.BufferDeviceAddress == vk.True

	var formatCount, modeCount uint32
	vk.GetPhysicalDeviceSurfaceFormats(pd, d.ctx.Surface, &formatCount, nil)
	vk.GetPhysicalDeviceSurfacePresentModes(pd, d.ctx.Surface, &modeCount, nil)
	a.swapchainOkay = formatCount > 0 && modeCount > 0
	return a, nil
}

func (d *Device) createLogicalDevice() error {
	core.LogInfo("Creating logical device...")

	priorities := []float32{1.0}
	queueInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: d.GraphicsQueueIndex,
		QueueCount:       1,
		PQueuePriorities: priorities,
	}}
	// NOTE: Do not create additional queues for shared indices.
	if d.PresentQueueIndex != d.GraphicsQueueIndex {
		queueInfos = append(queueInfos, vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: d.PresentQueueIndex,
			QueueCount:       1,
			PQueuePriorities: priorities,
		})
	}

	extensions := []string{vk.KhrSwapchainExtensionName}
	if d.portability {
		core.LogInfo("Adding required extension 'VK_KHR_portability_subset'.")
		extensions = append(extensions, "VK_KHR_portability_subset")
	}

	features := vk.PhysicalDeviceFeatures{SamplerAnisotropy: vk.True}
	f12 := vk.PhysicalDeviceVulkan12Features{
		SType:                                        vk.StructureTypePhysicalDeviceVulkan12Features,
		DescriptorIndexing:                           vk.True,
		RuntimeDescriptorArray:                       vk.True,
		DescriptorBindingPartiallyBound:              vk.True,
		DescriptorBindingSampledImageUpdateAfterBind: vk.True,
		DescriptorBindingStorageImageUpdateAfterBind: vk.True,
		DescriptorBindingUpdateUnusedWhilePending:    vk.True,
		ShaderSampledImageArrayNonUniformIndexing:    vk.True,
		BufferDeviceAddress:                          vk.True,
		ScalarBlockLayout:                            vk.True,
	}
	f12Ref, _ := f12.PassRef()

	createInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		PNext:                   unsafe.Pointer(f12Ref),
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{features},
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensions),
	}
	var device vk.Device
	if err := check("vkCreateDevice", vk.CreateDevice(d.PhysicalDevice, &createInfo, d.ctx.Allocator, &device)); err != nil {
		return err
	}
	d.LogicalDevice = device
	core.LogInfo("Logical device created.")

	var graphics, present vk.Queue
	vk.GetDeviceQueue(device, d.GraphicsQueueIndex, 0, &graphics)
	vk.GetDeviceQueue(device, d.PresentQueueIndex, 0, &present)
	d.GraphicsQueue, d.PresentQueue = graphics, present
	core.LogInfo("Queues obtained.")

	poolInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: d.GraphicsQueueIndex,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	var pool vk.CommandPool
	if err := check("vkCreateCommandPool", vk.CreateCommandPool(device, &poolInfo, d.ctx.Allocator, &pool)); err != nil {
		vk.DestroyDevice(device, d.ctx.Allocator)
		d.LogicalDevice = nil
		return err
	}
	d.GraphicsCommandPool = pool
	core.LogInfo("Graphics command pool created.")
	return nil
}

func (d *Device) detectDepthFormat() gpu.Format {
	candidates := []gpu.Format{gpu.FormatD32Float, gpu.FormatD24UnormS8Uint}
	flags := vk.FormatFeatureDepthStencilAttachmentBit | vk.FormatFeatureSampledImageBit
	for _, f := range candidates {
		var properties vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(d.PhysicalDevice, vkFormat(f), &properties)
		properties.Deref()
		if vk.FormatFeatureFlagBits(properties.OptimalTilingFeatures)&flags == flags {
			return f
		}
	}
	return gpu.FormatUndefined
}

// FindMemoryIndex returns the first memory type allowed by typeFilter that
// has every property flag, or -1.
func (d *Device) FindMemoryIndex(typeFilter uint32, propertyFlags vk.MemoryPropertyFlags) int32 {
	for i := uint32(0); i < d.Memory.MemoryTypeCount; i++ {
		memType := d.Memory.MemoryTypes[i]
		memType.Deref()
		if typeFilter&(1<<i) != 0 && memType.PropertyFlags&propertyFlags == propertyFlags {
			return int32(i)
		}
	}
	core.LogWarn("Unable to find suitable memory type!")
	return -1
}

func (d *Device) Limits() gpu.Limits { return d.limits }

func (d *Device) WaitIdle() error {
	return d.locks.SafeCall(QueueManagement, func() error {
		return check("vkDeviceWaitIdle", vk.DeviceWaitIdle(d.LogicalDevice))
	})
}

// Close destroys the logical device and the instance. Every object created
// from the device must already be destroyed.
func (d *Device) Close() error {
	if d.LogicalDevice != nil {
		if err := d.WaitIdle(); err != nil {
			core.LogWarn("device wait idle before close: %s", err)
		}
		core.LogInfo("Destroying command pools...")
		vk.DestroyCommandPool(d.LogicalDevice, d.GraphicsCommandPool, d.ctx.Allocator)
		core.LogInfo("Destroying logical device...")
		vk.DestroyDevice(d.LogicalDevice, d.ctx.Allocator)
		d.LogicalDevice = nil
	}
	d.GraphicsQueue = nil
	d.PresentQueue = nil
	d.PhysicalDevice = nil
	d.ctx.destroy()
	return nil
}

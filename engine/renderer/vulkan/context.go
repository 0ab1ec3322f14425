package vulkan

import (
	"runtime"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
)

const validationLayer = "VK_LAYER_KHRONOS_validation"

// Window is the part of the platform layer the backend needs.
type Window interface {
	RequiredInstanceExtensions() []string
	CreateSurface(instance interface{}) (uintptr, error)
	FramebufferExtent() (uint32, uint32)
}

// Options selects the instance and adapter.
type Options struct {
	AppName    string
	Validation bool
	// nvidia, amd, intel or empty
	VendorHint string
}

// VulkanContext holds the instance-level state shared by every device object.
type VulkanContext struct {
	Instance  vk.Instance
	Allocator *vk.AllocationCallbacks
	Surface   vk.Surface

	debugMessenger vk.DebugReportCallback
	validation     bool
}

func newContext(window Window, opts Options) (*VulkanContext, error) {
	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		return nil, errors.New("GetInstanceProcAddress is nil")
	}
	vk.SetGetInstanceProcAddr(procAddr)
	if err := vk.Init(); err != nil {
		return nil, errors.Wrap(err, "initializing vulkan loader")
	}

	ctx := &VulkanContext{validation: opts.Validation}

	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 2, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(opts.AppName),
		PEngineName:        VulkanSafeString("Lumen"),
	}
	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	requiredExtensions := []string{"VK_KHR_surface"}
	requiredExtensions = append(requiredExtensions, window.RequiredInstanceExtensions()...)
	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}

	var layers []string
	if opts.Validation {
		requiredExtensions = append(requiredExtensions, vk.ExtDebugReportExtensionName)
		ok, err := layerAvailable(validationLayer)
		if err != nil {
			return nil, err
		}
		if ok {
			layers = append(layers, validationLayer)
			core.LogInfo("Validation layers enabled.")
		} else {
			core.LogWarn("Validation requested but %s is not installed.", validationLayer)
		}
	}
	core.LogDebug("Required instance extensions: %v", requiredExtensions)

	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	if err := check("vkCreateInstance", vk.CreateInstance(&createInfo, ctx.Allocator, &ctx.Instance)); err != nil {
		return nil, err
	}
	if err := vk.InitInstance(ctx.Instance); err != nil {
		vk.DestroyInstance(ctx.Instance, ctx.Allocator)
		return nil, errors.Wrap(err, "loading instance functions")
	}
	core.LogInfo("Vulkan instance created.")

	if len(layers) > 0 {
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		var dbg vk.DebugReportCallback
		if err := check("vkCreateDebugReportCallback", vk.CreateDebugReportCallback(ctx.Instance, &debugCreateInfo, ctx.Allocator, &dbg)); err != nil {
			ctx.destroy()
			return nil, err
		}
		ctx.debugMessenger = dbg
		core.LogDebug("Vulkan debugger created.")
	}

	surface, err := window.CreateSurface(ctx.Instance)
	if err != nil {
		ctx.destroy()
		return nil, errors.Wrap(err, "creating window surface")
	}
	if surface == 0 {
		ctx.destroy()
		return nil, errors.New("window returned a null surface")
	}
	ctx.Surface = vk.SurfaceFromPointer(surface)
	core.LogDebug("Vulkan surface created.")
	return ctx, nil
}

func layerAvailable(name string) (bool, error) {
	var count uint32
	if err := check("vkEnumerateInstanceLayerProperties", vk.EnumerateInstanceLayerProperties(&count, nil)); err != nil {
		return false, err
	}
	available := make([]vk.LayerProperties, count)
	if err := check("vkEnumerateInstanceLayerProperties", vk.EnumerateInstanceLayerProperties(&count, available)); err != nil {
		return false, err
	}
	for i := range available {
		available[i].Deref()
		if cString(available[i].LayerName[:]) == name {
			return true, nil
		}
	}
	return false, nil
}

// destroy releases the surface, the debugger and the instance. Zero handles
// are skipped so a partially built context can be torn down.
func (vc *VulkanContext) destroy() {
	if vc.Surface != vk.NullSurface {
		vk.DestroySurface(vc.Instance, vc.Surface, vc.Allocator)
		vc.Surface = vk.NullSurface
	}
	if vc.debugMessenger != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(vc.Instance, vc.debugMessenger, vc.Allocator)
		vc.debugMessenger = vk.NullDebugReportCallback
	}
	if vc.Instance != nil {
		vk.DestroyInstance(vc.Instance, vc.Allocator)
		vc.Instance = nil
	}
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}

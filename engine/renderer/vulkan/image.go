package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

type VulkanImage struct {
	name   string
	desc   gpu.ImageDesc
	Handle vk.Image
	Memory vk.DeviceMemory
	// swapchain images are owned by the swapchain
	borrowed bool
}

func (i *VulkanImage) Name() string        { return i.name }
func (i *VulkanImage) Desc() gpu.ImageDesc { return i.desc }

type VulkanImageView struct {
	name   string
	image  *VulkanImage
	Handle vk.ImageView
}

func (v *VulkanImageView) Name() string     { return v.name }
func (v *VulkanImageView) Image() gpu.Image { return v.image }

type VulkanSampler struct {
	name   string
	Handle vk.Sampler
}

func (s *VulkanSampler) Name() string { return s.name }

func (d *Device) CreateImage(desc gpu.ImageDesc) (gpu.Image, error) {
	if desc.Extent.Empty() {
		return nil, errors.Newf("image %q has empty extent", desc.Name)
	}
	img := &VulkanImage{name: desc.Name, desc: desc}
	info := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    vkFormat(desc.Format),
		Extent: vk.Extent3D{
			Width:  desc.Extent.Width,
			Height: desc.Extent.Height,
			Depth:  1,
		},
		MipLevels:     max(desc.Mips, 1),
		ArrayLayers:   max(desc.Layers, 1),
		Samples:       vkSamples(desc.Samples),
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vkImageUsage(desc.Usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	if err := check("vkCreateImage", vk.CreateImage(d.LogicalDevice, &info, d.ctx.Allocator, &img.Handle)); err != nil {
		return nil, errors.Wrapf(err, "image %q", desc.Name)
	}

	var reqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.LogicalDevice, img.Handle, &reqs)
	memory, err := d.allocate(reqs, gpu.MemoryDeviceLocal, false)
	if err != nil {
		d.DestroyImage(img)
		return nil, errors.Wrapf(err, "image %q", desc.Name)
	}
	img.Memory = memory
	if err := check("vkBindImageMemory", vk.BindImageMemory(d.LogicalDevice, img.Handle, img.Memory, 0)); err != nil {
		d.DestroyImage(img)
		return nil, errors.Wrapf(err, "image %q", desc.Name)
	}
	return img, nil
}

func (d *Device) DestroyImage(img gpu.Image) {
	vi, ok := img.(*VulkanImage)
	if !ok || vi == nil || vi.borrowed {
		return
	}
	if vi.Handle != vk.NullImage {
		vk.DestroyImage(d.LogicalDevice, vi.Handle, d.ctx.Allocator)
		vi.Handle = vk.NullImage
	}
	if vi.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(d.LogicalDevice, vi.Memory, d.ctx.Allocator)
		vi.Memory = vk.NullDeviceMemory
	}
}

func (d *Device) CreateImageView(desc gpu.ImageViewDesc) (gpu.ImageView, error) {
	img, ok := desc.Image.(*VulkanImage)
	if !ok || img == nil {
		return nil, errors.Newf("view %q needs an image", desc.Name)
	}
	layers := max(img.desc.Layers, 1)
	layerCount := desc.LayerCount
	if layerCount == 0 {
		layerCount = layers - desc.BaseLayer
	}
	viewType := vk.ImageViewType2d
	if layerCount > 1 {
		viewType = vk.ImageViewType2dArray
	}
	info := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img.Handle,
		ViewType: viewType,
		Format:   vkFormat(img.desc.Format),
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     depthOnly(img.desc.Format),
			BaseMipLevel:   desc.BaseMip,
			LevelCount:     countOrRemaining(desc.MipCount),
			BaseArrayLayer: desc.BaseLayer,
			LayerCount:     layerCount,
		},
	}
	v := &VulkanImageView{name: desc.Name, image: img}
	if err := check("vkCreateImageView", vk.CreateImageView(d.LogicalDevice, &info, d.ctx.Allocator, &v.Handle)); err != nil {
		return nil, errors.Wrapf(err, "image view %q", desc.Name)
	}
	return v, nil
}

// depthOnly is the view aspect: sampling a depth-stencil image reads depth.
func depthOnly(f gpu.Format) vk.ImageAspectFlags {
	if f.IsDepth() {
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	return vk.ImageAspectFlags(vk.ImageAspectColorBit)
}

func (d *Device) DestroyImageView(v gpu.ImageView) {
	vv, ok := v.(*VulkanImageView)
	if !ok || vv == nil || vv.Handle == vk.NullImageView {
		return
	}
	vk.DestroyImageView(d.LogicalDevice, vv.Handle, d.ctx.Allocator)
	vv.Handle = vk.NullImageView
}

func (d *Device) CreateSampler(desc gpu.SamplerDesc) (gpu.Sampler, error) {
	info := vk.SamplerCreateInfo{
		SType:        vk.StructureTypeSamplerCreateInfo,
		MagFilter:    vkFilter(desc.MagFilter),
		MinFilter:    vkFilter(desc.MinFilter),
		MipmapMode:   vkMipmapMode(desc.MipFilter),
		AddressModeU: vkAddressMode(desc.AddressModeU),
		AddressModeV: vkAddressMode(desc.AddressModeV),
		AddressModeW: vkAddressMode(desc.AddressModeU),
		MaxLod:       desc.MaxLod,
		BorderColor:  vk.BorderColorFloatOpaqueWhite,
	}
	if desc.MaxLod == 0 {
		// VK_LOD_CLAMP_NONE
		info.MaxLod = 1000
	}
	if desc.Anisotropy > 1 {
		info.AnisotropyEnable = vk.True
		info.MaxAnisotropy = min(desc.Anisotropy, d.Properties.Limits.MaxSamplerAnisotropy)
	}
	if desc.Compare {
		info.CompareEnable = vk.True
		info.CompareOp = vkCompareOp(desc.CompareOp)
	}
	s := &VulkanSampler{name: desc.Name}
	if err := check("vkCreateSampler", vk.CreateSampler(d.LogicalDevice, &info, d.ctx.Allocator, &s.Handle)); err != nil {
		return nil, errors.Wrapf(err, "sampler %q", desc.Name)
	}
	return s, nil
}

func (d *Device) DestroySampler(s gpu.Sampler) {
	vs, ok := s.(*VulkanSampler)
	if !ok || vs == nil || vs.Handle == vk.NullSampler {
		return
	}
	vk.DestroySampler(d.LogicalDevice, vs.Handle, d.ctx.Allocator)
	vs.Handle = vk.NullSampler
}

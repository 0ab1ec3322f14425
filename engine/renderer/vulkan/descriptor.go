package vulkan

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

// Bindings of the single bindless set, in DescriptorKind order.
const (
	bindingStorageImages uint32 = iota
	bindingSampledImages
	bindingSamplers
)

// VulkanBindlessSet is one layout, one pool and the one set allocated from it.
// Every binding is partially bound and updatable after bind.
type VulkanBindlessSet struct {
	name   string
	desc   gpu.BindlessSetDesc
	Layout vk.DescriptorSetLayout
	Pool   vk.DescriptorPool
	Set    vk.DescriptorSet
}

func (s *VulkanBindlessSet) Name() string { return s.name }

func (d *Device) CreateBindlessSet(desc gpu.BindlessSetDesc) (gpu.BindlessSet, error) {
	counts := []uint32{desc.StorageImages, desc.SampledImages, desc.Samplers}
	types := []vk.DescriptorType{
		vk.DescriptorTypeStorageImage,
		vk.DescriptorTypeSampledImage,
		vk.DescriptorTypeSampler,
	}
	bindings := make([]vk.DescriptorSetLayoutBinding, len(counts))
	bindingFlags := make([]vk.DescriptorBindingFlags, len(counts))
	poolSizes := make([]vk.DescriptorPoolSize, len(counts))
	for i := range counts {
		n := max(counts[i], 1)
		bindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         uint32(i),
			DescriptorType:  types[i],
			DescriptorCount: n,
			StageFlags:      vkShaderStages(gpu.ShaderStageAllGraphics),
		}
		bindingFlags[i] = vk.DescriptorBindingFlags(vk.DescriptorBindingPartiallyBoundBit | vk.DescriptorBindingUpdateAfterBindBit)
		poolSizes[i] = vk.DescriptorPoolSize{Type: types[i], DescriptorCount: n}
	}

	flagsInfo := vk.DescriptorSetLayoutBindingFlagsCreateInfo{
		SType:         vk.StructureTypeDescriptorSetLayoutBindingFlagsCreateInfo,
		BindingCount:  uint32(len(bindingFlags)),
		PBindingFlags: bindingFlags,
	}
	flagsRef, _ := flagsInfo.PassRef()
	layoutInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		PNext:        unsafe.Pointer(flagsRef),
		Flags:        vk.DescriptorSetLayoutCreateFlags(vk.DescriptorSetLayoutCreateUpdateAfterBindPoolBit),
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}
	s := &VulkanBindlessSet{name: desc.Name, desc: desc}
	if err := check("vkCreateDescriptorSetLayout", vk.CreateDescriptorSetLayout(d.LogicalDevice, &layoutInfo, d.ctx.Allocator, &s.Layout)); err != nil {
		return nil, errors.Wrapf(err, "bindless set %q", desc.Name)
	}

	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateUpdateAfterBindBit),
		MaxSets:       1,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}
	if err := check("vkCreateDescriptorPool", vk.CreateDescriptorPool(d.LogicalDevice, &poolInfo, d.ctx.Allocator, &s.Pool)); err != nil {
		d.DestroyBindlessSet(s)
		return nil, errors.Wrapf(err, "bindless set %q", desc.Name)
	}

	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     s.Pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{s.Layout},
	}
	sets := make([]vk.DescriptorSet, 1)
	if err := check("vkAllocateDescriptorSets", vk.AllocateDescriptorSets(d.LogicalDevice, &allocInfo, &sets[0])); err != nil {
		d.DestroyBindlessSet(s)
		return nil, errors.Wrapf(err, "bindless set %q", desc.Name)
	}
	s.Set = sets[0]
	core.LogDebug("bindless set %q: %d storage images, %d sampled images, %d samplers",
		desc.Name, desc.StorageImages, desc.SampledImages, desc.Samplers)
	return s, nil
}

// DestroyBindlessSet frees the pool, which releases the set with it.
func (d *Device) DestroyBindlessSet(set gpu.BindlessSet) {
	s, ok := set.(*VulkanBindlessSet)
	if !ok || s == nil {
		return
	}
	if s.Pool != vk.NullDescriptorPool {
		vk.DestroyDescriptorPool(d.LogicalDevice, s.Pool, d.ctx.Allocator)
		s.Pool = vk.NullDescriptorPool
		s.Set = vk.NullDescriptorSet
	}
	if s.Layout != vk.NullDescriptorSetLayout {
		vk.DestroyDescriptorSetLayout(d.LogicalDevice, s.Layout, d.ctx.Allocator)
		s.Layout = vk.NullDescriptorSetLayout
	}
}

func (d *Device) WriteDescriptors(set gpu.BindlessSet, writes []gpu.DescriptorWrite) {
	s := set.(*VulkanBindlessSet)
	if len(writes) == 0 {
		return
	}
	out := make([]vk.WriteDescriptorSet, 0, len(writes))
	for _, w := range writes {
		info := vk.DescriptorImageInfo{ImageLayout: vkLayout(w.Layout)}
		write := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          s.Set,
			DstArrayElement: w.Index,
			DescriptorCount: 1,
		}
		switch w.Kind {
		case gpu.DescriptorStorageImage:
			write.DstBinding = bindingStorageImages
			write.DescriptorType = vk.DescriptorTypeStorageImage
			info.ImageView = w.View.(*VulkanImageView).Handle
		case gpu.DescriptorSampledImage:
			write.DstBinding = bindingSampledImages
			write.DescriptorType = vk.DescriptorTypeSampledImage
			info.ImageView = w.View.(*VulkanImageView).Handle
		case gpu.DescriptorSampler:
			write.DstBinding = bindingSamplers
			write.DescriptorType = vk.DescriptorTypeSampler
			info.Sampler = w.Sampler.(*VulkanSampler).Handle
		default:
			core.LogWarn("skipping descriptor write of kind %s", w.Kind)
			continue
		}
		write.PImageInfo = []vk.DescriptorImageInfo{info}
		out = append(out, write)
	}
	_ = d.locks.SafeCall(DescriptorManagement, func() error {
		vk.UpdateDescriptorSets(d.LogicalDevice, uint32(len(out)), out, 0, nil)
		return nil
	})
}

package vulkan

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

type VulkanBuffer struct {
	name    string
	desc    gpu.BufferDesc
	Handle  vk.Buffer
	Memory  vk.DeviceMemory
	address uint64
	// non-nil for host visible buffers, mapped for their whole life
	mapped unsafe.Pointer
}

func (b *VulkanBuffer) Name() string    { return b.name }
func (b *VulkanBuffer) Size() uint64    { return b.desc.Size }
func (b *VulkanBuffer) Address() uint64 { return b.address }

func memoryFlags(kind gpu.MemoryKind) vk.MemoryPropertyFlags {
	if kind == gpu.MemoryHostVisible {
		return vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
	}
	return vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
}

// allocate finds a memory type for reqs and allocates it. Device address
// buffers need the allocation flag chained in.
func (d *Device) allocate(reqs vk.MemoryRequirements, kind gpu.MemoryKind, deviceAddress bool) (vk.DeviceMemory, error) {
	reqs.Deref()
	index := d.FindMemoryIndex(reqs.MemoryTypeBits, memoryFlags(kind))
	if index < 0 {
		return nil, errors.Newf("no memory type for %d bytes", reqs.Size)
	}
	info := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  reqs.Size,
		MemoryTypeIndex: uint32(index),
	}
	if deviceAddress {
		flags := vk.MemoryAllocateFlagsInfo{
			SType: vk.StructureTypeMemoryAllocateFlagsInfo,
			Flags: vk.MemoryAllocateFlags(vk.MemoryAllocateDeviceAddressBit),
		}
		ref, _ := flags.PassRef()
		info.PNext = unsafe.Pointer(ref)
	}
	var memory vk.DeviceMemory
	if err := check("vkAllocateMemory", vk.AllocateMemory(d.LogicalDevice, &info, d.ctx.Allocator, &memory)); err != nil {
		return nil, err
	}
	return memory, nil
}

func (d *Device) CreateBuffer(desc gpu.BufferDesc) (gpu.Buffer, error) {
	if desc.Size == 0 {
		return nil, errors.Newf("buffer %q has zero size", desc.Name)
	}
	b := &VulkanBuffer{name: desc.Name, desc: desc}
	info := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(desc.Size),
		Usage:       vkBufferUsage(desc.Usage),
		SharingMode: vk.SharingModeExclusive,
	}
	if err := check("vkCreateBuffer", vk.CreateBuffer(d.LogicalDevice, &info, d.ctx.Allocator, &b.Handle)); err != nil {
		return nil, errors.Wrapf(err, "buffer %q", desc.Name)
	}

	var reqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.LogicalDevice, b.Handle, &reqs)
	deviceAddress := desc.Usage&gpu.BufferUsageDeviceAddress != 0
	memory, err := d.allocate(reqs, desc.Memory, deviceAddress)
	if err != nil {
		d.DestroyBuffer(b)
		return nil, errors.Wrapf(err, "buffer %q", desc.Name)
	}
	b.Memory = memory
	if err := check("vkBindBufferMemory", vk.BindBufferMemory(d.LogicalDevice, b.Handle, b.Memory, 0)); err != nil {
		d.DestroyBuffer(b)
		return nil, errors.Wrapf(err, "buffer %q", desc.Name)
	}

	if desc.Memory == gpu.MemoryHostVisible {
		var data unsafe.Pointer
		if err := check("vkMapMemory", vk.MapMemory(d.LogicalDevice, b.Memory, 0, vk.DeviceSize(desc.Size), 0, &data)); err != nil {
			d.DestroyBuffer(b)
			return nil, errors.Wrapf(err, "buffer %q", desc.Name)
		}
		b.mapped = data
	}
	if deviceAddress {
		b.address = uint64(vk.GetBufferDeviceAddress(d.LogicalDevice, &vk.BufferDeviceAddressInfo{
			SType:  vk.StructureTypeBufferDeviceAddressInfo,
			Buffer: b.Handle,
		}))
	}
	core.LogDebug("buffer %q created (%d bytes)", desc.Name, desc.Size)
	return b, nil
}

func (d *Device) DestroyBuffer(b gpu.Buffer) {
	vb, ok := b.(*VulkanBuffer)
	if !ok || vb == nil {
		return
	}
	if vb.mapped != nil {
		vk.UnmapMemory(d.LogicalDevice, vb.Memory)
		vb.mapped = nil
	}
	if vb.Handle != vk.NullBuffer {
		vk.DestroyBuffer(d.LogicalDevice, vb.Handle, d.ctx.Allocator)
		vb.Handle = vk.NullBuffer
	}
	if vb.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(d.LogicalDevice, vb.Memory, d.ctx.Allocator)
		vb.Memory = vk.NullDeviceMemory
	}
}

// WriteBuffer copies into a host visible buffer through its persistent mapping.
func (d *Device) WriteBuffer(b gpu.Buffer, offset uint64, data []byte) error {
	vb := b.(*VulkanBuffer)
	if vb.mapped == nil {
		return errors.Newf("buffer %q is not host visible", vb.name)
	}
	if offset+uint64(len(data)) > vb.desc.Size {
		return errors.Wrapf(core.ErrBufferOverflow, "write of %d bytes at %d into %q", len(data), offset, vb.name)
	}
	if len(data) == 0 {
		return nil
	}
	vk.Memcopy(unsafe.Add(vb.mapped, offset), data)
	return nil
}

package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

type VulkanFence struct {
	name   string
	Handle vk.Fence
}

func (f *VulkanFence) Name() string { return f.name }

type VulkanSemaphore struct {
	name   string
	Handle vk.Semaphore
}

func (s *VulkanSemaphore) Name() string { return s.name }

func (d *Device) CreateFence(name string, signaled bool) (gpu.Fence, error) {
	info := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if signaled {
		info.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	f := &VulkanFence{name: name}
	if err := check("vkCreateFence", vk.CreateFence(d.LogicalDevice, &info, d.ctx.Allocator, &f.Handle)); err != nil {
		return nil, errors.Wrapf(err, "fence %q", name)
	}
	return f, nil
}

func (d *Device) DestroyFence(f gpu.Fence) {
	vf, ok := f.(*VulkanFence)
	if !ok || vf == nil || vf.Handle == vk.NullFence {
		return
	}
	vk.DestroyFence(d.LogicalDevice, vf.Handle, d.ctx.Allocator)
	vf.Handle = vk.NullFence
}

func (d *Device) WaitFence(f gpu.Fence, timeout uint64) error {
	vf := f.(*VulkanFence)
	res := vk.WaitForFences(d.LogicalDevice, 1, []vk.Fence{vf.Handle}, vk.True, timeout)
	switch res {
	case vk.Success:
		return nil
	case vk.Timeout:
		core.LogWarn("fence %q timed out after %dns", vf.name, timeout)
	case vk.ErrorDeviceLost:
		core.LogError("fence %q: device lost", vf.name)
	}
	return errors.Wrapf(check("vkWaitForFences", res), "fence %q", vf.name)
}

func (d *Device) ResetFence(f gpu.Fence) error {
	vf := f.(*VulkanFence)
	if err := check("vkResetFences", vk.ResetFences(d.LogicalDevice, 1, []vk.Fence{vf.Handle})); err != nil {
		return errors.Wrapf(err, "fence %q", vf.name)
	}
	return nil
}

func (d *Device) CreateSemaphore(name string) (gpu.Semaphore, error) {
	info := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	s := &VulkanSemaphore{name: name}
	if err := check("vkCreateSemaphore", vk.CreateSemaphore(d.LogicalDevice, &info, d.ctx.Allocator, &s.Handle)); err != nil {
		return nil, errors.Wrapf(err, "semaphore %q", name)
	}
	return s, nil
}

func (d *Device) DestroySemaphore(s gpu.Semaphore) {
	vs, ok := s.(*VulkanSemaphore)
	if !ok || vs == nil || vs.Handle == vk.NullSemaphore {
		return
	}
	vk.DestroySemaphore(d.LogicalDevice, vs.Handle, d.ctx.Allocator)
	vs.Handle = vk.NullSemaphore
}

// Submit queues one command buffer on the graphics queue.
func (d *Device) Submit(info gpu.SubmitInfo) error {
	cb := info.Command.(*VulkanCommandBuffer)
	submit := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{cb.Handle},
	}
	if wait, ok := info.Wait.(*VulkanSemaphore); ok && wait != nil {
		submit.WaitSemaphoreCount = 1
		submit.PWaitSemaphores = []vk.Semaphore{wait.Handle}
		submit.PWaitDstStageMask = []vk.PipelineStageFlags{vkStages(info.WaitStage)}
	}
	if signal, ok := info.Signal.(*VulkanSemaphore); ok && signal != nil {
		submit.SignalSemaphoreCount = 1
		submit.PSignalSemaphores = []vk.Semaphore{signal.Handle}
	}
	fence := vk.NullFence
	if f, ok := info.Fence.(*VulkanFence); ok && f != nil {
		fence = f.Handle
	}
	err := d.locks.SafeCall(QueueManagement, func() error {
		return check("vkQueueSubmit", vk.QueueSubmit(d.GraphicsQueue, 1, []vk.SubmitInfo{submit}, fence))
	})
	if err != nil {
		return errors.Wrapf(err, "submitting %q", cb.name)
	}
	cb.State = COMMAND_BUFFER_STATE_SUBMITTED
	return nil
}

package vulkan

import "sync"

type LockGroup string

const (
	// Queues are externally synchronized: submit, present and wait idle must
	// not overlap.
	QueueManagement LockGroup = "queue_management"
	// vkUpdateDescriptorSets on one set must not race with another update.
	DescriptorManagement LockGroup = "descriptor_management"
	// Command pools are externally synchronized too.
	CommandPoolManagement LockGroup = "command_pool_management"
)

// VulkanLockPool hands out one mutex per group.
type VulkanLockPool struct {
	locks map[LockGroup]*sync.Mutex
	mu    sync.Mutex
}

func NewVulkanLockPool() *VulkanLockPool {
	return &VulkanLockPool{locks: make(map[LockGroup]*sync.Mutex)}
}

func (vs *VulkanLockPool) lock(group LockGroup) *sync.Mutex {
	vs.mu.Lock()
	l, ok := vs.locks[group]
	if !ok {
		l = &sync.Mutex{}
		vs.locks[group] = l
	}
	vs.mu.Unlock()
	l.Lock()
	return l
}

// SafeCall runs fn while holding the group's mutex.
func (vs *VulkanLockPool) SafeCall(group LockGroup, fn func() error) error {
	l := vs.lock(group)
	defer l.Unlock()
	return fn()
}

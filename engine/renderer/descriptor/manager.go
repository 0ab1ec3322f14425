package descriptor

import (
	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

// Bindings of the bindless set. Shaders index these arrays with the slots
// embedded in materials and push constants.
const (
	BindingStorageImages uint32 = 0
	BindingSampledImages uint32 = 1
	BindingSamplers      uint32 = 2
)

type Capacities struct {
	StorageImages uint32
	SampledImages uint32
	Samplers      uint32
}

// Counts is the number of live slots per array.
type Counts struct {
	StorageImages uint32
	SampledImages uint32
	Samplers      uint32
}

func (c Counts) Total() uint32 {
	return c.StorageImages + c.SampledImages + c.Samplers
}

// Manager owns the bindless descriptor set and one slot allocator per
// binding.
type Manager struct {
	device   gpu.Device
	set      gpu.BindlessSet
	storage  *SlotAllocator
	sampled  *SlotAllocator
	samplers *SlotAllocator
}

// NewManager creates the set with the requested capacities, each clamped to
// the device limit.
func NewManager(device gpu.Device, requested Capacities) (*Manager, error) {
	limits := device.Limits()
	caps := Capacities{
		StorageImages: min(requested.StorageImages, limits.MaxStorageImages),
		SampledImages: min(requested.SampledImages, limits.MaxSampledImages),
		Samplers:      min(requested.Samplers, limits.MaxSamplers),
	}
	if caps.StorageImages == 0 || caps.SampledImages == 0 || caps.Samplers == 0 {
		return nil, errors.Newf("bindless capacities %+v leave an empty array", caps)
	}

	set, err := device.CreateBindlessSet(gpu.BindlessSetDesc{
		Name:          "bindless",
		StorageImages: caps.StorageImages,
		SampledImages: caps.SampledImages,
		Samplers:      caps.Samplers,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating bindless descriptor set")
	}
	core.LogDebug("bindless set: %d storage images, %d sampled images, %d samplers", caps.StorageImages, caps.SampledImages, caps.Samplers)

	return &Manager{
		device:   device,
		set:      set,
		storage:  NewSlotAllocator("storage images", caps.StorageImages),
		sampled:  NewSlotAllocator("sampled images", caps.SampledImages),
		samplers: NewSlotAllocator("samplers", caps.Samplers),
	}, nil
}

func (m *Manager) Set() gpu.BindlessSet { return m.set }

func (m *Manager) Capacities() Capacities {
	return Capacities{
		StorageImages: m.storage.Capacity(),
		SampledImages: m.sampled.Capacity(),
		Samplers:      m.samplers.Capacity(),
	}
}

// AddStorageImage stores view at a fresh slot of binding 0. The image must be
// in the general layout whenever a shader touches it.
func (m *Manager) AddStorageImage(view gpu.ImageView) (uint32, error) {
	idx, err := m.storage.Allocate()
	if err != nil {
		return 0, err
	}
	m.device.WriteDescriptors(m.set, []gpu.DescriptorWrite{{
		Kind:   gpu.DescriptorStorageImage,
		Index:  idx,
		View:   view,
		Layout: gpu.LayoutGeneral,
	}})
	return idx, nil
}

// AddSampledImage stores view at a fresh slot of binding 1, read in the
// shader read-only layout.
func (m *Manager) AddSampledImage(view gpu.ImageView) (uint32, error) {
	idx, err := m.sampled.Allocate()
	if err != nil {
		return 0, err
	}
	m.device.WriteDescriptors(m.set, []gpu.DescriptorWrite{{
		Kind:   gpu.DescriptorSampledImage,
		Index:  idx,
		View:   view,
		Layout: gpu.LayoutShaderReadOnly,
	}})
	return idx, nil
}

func (m *Manager) AddSampler(s gpu.Sampler) (uint32, error) {
	idx, err := m.samplers.Allocate()
	if err != nil {
		return 0, err
	}
	m.device.WriteDescriptors(m.set, []gpu.DescriptorWrite{{
		Kind:    gpu.DescriptorSampler,
		Index:   idx,
		Sampler: s,
	}})
	return idx, nil
}

// The Release methods only free the slot. The stale descriptor stays in the
// set until the slot is reused, which partially bound arrays allow.

func (m *Manager) ReleaseStorageImage(idx uint32) error { return m.storage.Free(idx) }
func (m *Manager) ReleaseSampledImage(idx uint32) error { return m.sampled.Free(idx) }
func (m *Manager) ReleaseSampler(idx uint32) error      { return m.samplers.Free(idx) }

func (m *Manager) Live() Counts {
	return Counts{
		StorageImages: m.storage.Live(),
		SampledImages: m.sampled.Live(),
		Samplers:      m.samplers.Live(),
	}
}

// IsLive reports whether idx is allocated in the array of the given kind.
func (m *Manager) IsLive(kind gpu.DescriptorKind, idx uint32) bool {
	switch kind {
	case gpu.DescriptorStorageImage:
		return m.storage.IsLive(idx)
	case gpu.DescriptorSampledImage:
		return m.sampled.IsLive(idx)
	case gpu.DescriptorSampler:
		return m.samplers.IsLive(idx)
	}
	return false
}

// ReleaseAll frees every slot of every array. The descriptors are left
// stale.
func (m *Manager) ReleaseAll() {
	m.storage.Reset()
	m.sampled.Reset()
	m.samplers.Reset()
}

func (m *Manager) Destroy() {
	if m.set != nil {
		m.device.DestroyBindlessSet(m.set)
		m.set = nil
	}
	m.ReleaseAll()
}

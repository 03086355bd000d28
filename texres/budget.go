package texres

import "github.com/vkngwrapper/restex/mipmem"

// HeapBudget is one device memory heap's budget snapshot, consumed read-only
// during mip-skip recomputation.
type HeapBudget struct {
	// DeviceLocal is true for heaps backed by video memory
	DeviceLocal bool
	// Budget is the process's usable byte budget for the heap, as estimated by
	// the driver or the reporter
	Budget int
	// Allocated is the number of bytes the process currently has allocated
	// from the heap
	Allocated int
}

// MemoryReporter supplies the memory measurements the budget policy runs on.
type MemoryReporter interface {
	// HeapBudgets returns a budget snapshot for every device memory heap
	HeapBudgets() []HeapBudget

	// AvailableSystemMemory returns the available system physical memory in
	// bytes. The second return is false when the platform cannot report it,
	// in which case system memory does not constrain the budget.
	AvailableSystemMemory() (int, bool)
}

const (
	// maxMipSkipLevels bounds the global mip-skip throttle- skipping more than
	// two top levels degrades assets past the point of usefulness
	maxMipSkipLevels = 2

	mibibyte = 1024 * 1024
)

// UpdateMipSkipLevel recomputes the global number of top mip levels to skip
// for subsequently scheduled textures, from current device and system memory
// headroom. The caller drives recomputation- once per significant interval,
// not per frame.
//
// resourcesReady indicates whether the renderer's non-texture GPU resources
// have been created yet; until they are, their configured reservation is
// subtracted from device headroom.
//
// The result is monotone under pressure: less headroom never yields a smaller
// skip level. It is bounded to [0, maxMipSkipLevels].
func (m *Manager) UpdateMipSkipLevel(resourcesReady bool) int {
	m.logger.Debug("Manager::UpdateMipSkipLevel")

	if m.memory == nil {
		return m.MinMipLevel()
	}

	var availableMib int
	for _, heap := range m.memory.HeapBudgets() {
		if !heap.DeviceLocal {
			continue
		}

		headroomMib := (heap.Budget - heap.Allocated) / mibibyte
		if headroomMib > availableMib {
			availableMib = headroomMib
		}
	}

	if !resourcesReady {
		availableMib -= m.pipelineReservationMib
		if availableMib < 0 {
			availableMib = 0
		}
	}

	// The host side may be the tighter constraint, especially early in a load
	// when the application has not claimed its working set yet.
	if systemBytes, ok := m.memory.AvailableSystemMemory(); ok {
		systemMib := systemBytes/mibibyte - m.hostReservationMib
		if systemMib < 0 {
			systemMib = 0
		}
		if systemMib < availableMib {
			availableMib = systemMib
		}
	}

	assetMib := m.estimatedAssetSizeMib
	skipLevel := 0
	for skipLevel < maxMipSkipLevels && mipmem.FootprintAfterSkip(assetMib, skipLevel) > availableMib {
		skipLevel++
	}

	m.minimumMipLevel.Store(uint32(skipLevel))
	return skipLevel
}

// MinMipLevel returns the mip-skip level computed by the last
// UpdateMipSkipLevel call. It gates the largest mip level materialized by
// subsequent preloads.
func (m *Manager) MinMipLevel() int {
	return int(m.minimumMipLevel.Load())
}

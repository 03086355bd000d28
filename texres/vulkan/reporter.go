package vulkan

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/core/v2/core1_1"
	"github.com/vkngwrapper/extensions/v2/ext_memory_budget"
	"github.com/vkngwrapper/restex/texres"
	"github.com/vkngwrapper/restex/texres/internal/sysmem"
)

// MemoryReporter implements texres.MemoryReporter on a Vulkan physical
// device. When ext_memory_budget is usable it reports the driver's live
// budget and usage per heap; otherwise it falls back to a fixed fraction of
// each heap's size with usage unknown.
type MemoryReporter struct {
	physicalDevice   core1_0.PhysicalDevice
	memoryProperties *core1_0.PhysicalDeviceMemoryProperties

	// instanceScopedDevice is non-nil when core 1.1 is active on the
	// instance, which is required to chain the budget query
	instanceScopedDevice core1_1.InstanceScopedPhysicalDevice
	useMemoryBudget      bool
}

// NewMemoryReporter creates a reporter for the given physical device. device
// is consulted for ext_memory_budget support and may be nil, in which case
// the fallback heuristic is always used.
func NewMemoryReporter(physicalDevice core1_0.PhysicalDevice, device core1_0.Device) (*MemoryReporter, error) {
	if physicalDevice == nil {
		return nil, errors.New("vulkan.NewMemoryReporter requires a physical device")
	}

	reporter := &MemoryReporter{
		physicalDevice:   physicalDevice,
		memoryProperties: physicalDevice.MemoryProperties(),
	}

	reporter.instanceScopedDevice = core1_1.PromoteInstanceScopedPhysicalDevice(physicalDevice)
	if reporter.instanceScopedDevice != nil && device != nil &&
		device.IsDeviceExtensionActive(ext_memory_budget.ExtensionName) {
		reporter.useMemoryBudget = true
	}

	return reporter, nil
}

// fallbackBudgetNumerator/Denominator estimate the usable fraction of a heap
// when the driver cannot report a budget.
const (
	fallbackBudgetNumerator   = 8
	fallbackBudgetDenominator = 10
)

func (r *MemoryReporter) HeapBudgets() []texres.HeapBudget {
	heapCount := len(r.memoryProperties.MemoryHeaps)
	budgets := make([]texres.HeapBudget, heapCount)

	var budgetProperties ext_memory_budget.PhysicalDeviceMemoryBudgetProperties
	haveDriverBudget := false
	if r.useMemoryBudget {
		memoryProperties := core1_1.PhysicalDeviceMemoryProperties2{
			NextOutData: common.NextOutData{Next: &budgetProperties},
		}
		err := r.instanceScopedDevice.MemoryProperties2(&memoryProperties)
		haveDriverBudget = err == nil
	}

	for i := 0; i < heapCount; i++ {
		heap := r.memoryProperties.MemoryHeaps[i]
		budgets[i].DeviceLocal = heap.Flags&core1_0.MemoryHeapDeviceLocal != 0

		if haveDriverBudget {
			budgets[i].Budget = budgetProperties.HeapBudget[i]
			budgets[i].Allocated = budgetProperties.HeapUsage[i]
		} else {
			budgets[i].Budget = heap.Size * fallbackBudgetNumerator / fallbackBudgetDenominator
		}
	}

	return budgets
}

func (r *MemoryReporter) AvailableSystemMemory() (int, bool) {
	return sysmem.Available()
}

package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
)

type physicalDeviceRequirements struct {
	Graphics             bool
	Present              bool
	DeviceExtensionNames []string
	SamplerAnisotropy    bool
}

type queueFamilyInfo struct {
	graphics int
	present  int
}

func (d *Device) selectPhysicalDevice() error {
	var count uint32
	if err := check("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(d.instance, &count, nil)); err != nil {
		return err
	}
	if count == 0 {
		err := fmt.Errorf("%w: no devices which support Vulkan were found", gpu.ErrInitializationFail)
		core.LogError(err.Error())
		return err
	}
	physicalDevices := make([]vk.PhysicalDevice, count)
	if err := check("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(d.instance, &count, physicalDevices)); err != nil {
		return err
	}

	requirements := physicalDeviceRequirements{
		Graphics:             true,
		Present:              true,
		SamplerAnisotropy:    true,
		DeviceExtensionNames: []string{vk.KhrSwapchainExtensionName},
	}

	// Discrete GPUs win over everything else that qualifies.
	best, bestScore := -1, 0
	var bestQueues queueFamilyInfo
	for i, pd := range physicalDevices {
		var properties vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(pd, &properties)
		properties.Deref()

		queues, ok := d.meetsRequirements(pd, &properties, &requirements)
		if !ok {
			continue
		}
		score := 1
		if properties.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu {
			score = 1000
		}
		if score > bestScore {
			best, bestScore, bestQueues = i, score, queues
		}
	}
	if best < 0 {
		err := fmt.Errorf("%w: no physical devices were found which meet the requirements", gpu.ErrInitializationFail)
		core.LogError(err.Error())
		return err
	}

	d.physical = physicalDevices[best]
	d.graphicsFamily = uint32(bestQueues.graphics)
	d.presentFamily = uint32(bestQueues.present)
	d.loadProperties()
	core.LogInfo("Physical device selected.")
	return nil
}

func (d *Device) meetsRequirements(device vk.PhysicalDevice, properties *vk.PhysicalDeviceProperties, requirements *physicalDeviceRequirements) (queueFamilyInfo, bool) {
	name := vk.ToString(properties.DeviceName[:])
	info := queueFamilyInfo{graphics: -1, present: -1}

	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, nil)
	queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, queueFamilies)

	for i := range queueFamilies {
		queueFamilies[i].Deref()
		if queueFamilies[i].QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0 && info.graphics < 0 {
			info.graphics = i
		}
		var supportsPresent vk.Bool32
		if res := vk.GetPhysicalDeviceSurfaceSupport(device, uint32(i), d.surface, &supportsPresent); res != vk.Success {
			continue
		}
		// Prefer a family that does both.
		if supportsPresent == vk.True && (info.present < 0 || i == info.graphics) {
			info.present = i
		}
	}

	core.LogDebug("%s: graphics family %d, present family %d", name, info.graphics, info.present)
	if (requirements.Graphics && info.graphics < 0) || (requirements.Present && info.present < 0) {
		core.LogInfo("Device '%s' does not meet queue requirements, skipping.", name)
		return info, false
	}

	var formatCount, modeCount uint32
	vk.GetPhysicalDeviceSurfaceFormats(device, d.surface, &formatCount, nil)
	vk.GetPhysicalDeviceSurfacePresentModes(device, d.surface, &modeCount, nil)
	if formatCount == 0 || modeCount == 0 {
		core.LogInfo("Required swapchain support not present, skipping device '%s'.", name)
		return info, false
	}

	var extensionCount uint32
	if res := vk.EnumerateDeviceExtensionProperties(device, "", &extensionCount, nil); res != vk.Success {
		return info, false
	}
	available := make([]vk.ExtensionProperties, extensionCount)
	if res := vk.EnumerateDeviceExtensionProperties(device, "", &extensionCount, available); res != vk.Success {
		return info, false
	}
	for _, required := range requirements.DeviceExtensionNames {
		found := false
		for j := range available {
			available[j].Deref()
			if vk.ToString(available[j].ExtensionName[:]) == required {
				found = true
				break
			}
		}
		if !found {
			core.LogInfo("Required extension not found: '%s', skipping device '%s'.", required, name)
			return info, false
		}
	}

	if requirements.SamplerAnisotropy {
		var features vk.PhysicalDeviceFeatures
		vk.GetPhysicalDeviceFeatures(device, &features)
		features.Deref()
		if features.SamplerAnisotropy == vk.False {
			core.LogInfo("Device '%s' does not support samplerAnisotropy, skipping.", name)
			return info, false
		}
	}
	return info, true
}

func (d *Device) loadProperties() {
	var properties vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(d.physical, &properties)
	properties.Deref()
	properties.Limits.Deref()

	var memory vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(d.physical, &memory)
	memory.Deref()

	props := gpu.DeviceProperties{
		Name:                            vk.ToString(properties.DeviceName[:]),
		MinUniformBufferOffsetAlignment: uint64(properties.Limits.MinUniformBufferOffsetAlignment),
		MaxPushConstantsSize:            properties.Limits.MaxPushConstantsSize,
		MaxSamplerAnisotropy:            properties.Limits.MaxSamplerAnisotropy,
	}
	for i := uint32(0); i < memory.MemoryTypeCount; i++ {
		memory.MemoryTypes[i].Deref()
		props.MemoryTypes = append(props.MemoryTypes, gpu.MemoryType{
			Properties: gpu.MemoryProperty(memory.MemoryTypes[i].PropertyFlags),
			HeapIndex:  memory.MemoryTypes[i].HeapIndex,
		})
	}
	for i := uint32(0); i < memory.MemoryHeapCount; i++ {
		memory.MemoryHeaps[i].Deref()
		sizeGib := float64(memory.MemoryHeaps[i].Size) / (1 << 30)
		if vk.MemoryHeapFlagBits(memory.MemoryHeaps[i].Flags)&vk.MemoryHeapDeviceLocalBit != 0 {
			core.LogInfo("Local GPU memory: %.2f GiB", sizeGib)
		} else {
			core.LogInfo("Shared System memory: %.2f GiB", sizeGib)
		}
	}
	props.DepthFormat = d.detectDepthFormat()
	d.properties = props

	core.LogInfo("Selected device: '%s'.", props.Name)
	core.LogInfo(
		"Vulkan API version: %d.%d.%d",
		vk.Version(properties.ApiVersion).Major(),
		vk.Version(properties.ApiVersion).Minor(),
		vk.Version(properties.ApiVersion).Patch(),
	)
}

func (d *Device) detectDepthFormat() gpu.Format {
	candidates := []vk.Format{
		vk.FormatD32Sfloat,
		vk.FormatD32SfloatS8Uint,
		vk.FormatD24UnormS8Uint,
	}
	flags := vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit)
	for _, candidate := range candidates {
		var properties vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(d.physical, candidate, &properties)
		properties.Deref()
		if properties.OptimalTilingFeatures&flags == flags {
			return gpu.Format(candidate)
		}
	}
	return gpu.FormatUndefined
}

func (d *Device) createLogicalDevice() error {
	core.LogInfo("Creating logical device...")

	// NOTE: Do not create additional queues for shared indices.
	families := []uint32{d.graphicsFamily}
	if d.presentFamily != d.graphicsFamily {
		families = append(families, d.presentFamily)
	}
	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(families))
	for i, family := range families {
		queueCreateInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: family,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
	}

	deviceFeatures := vk.PhysicalDeviceFeatures{
		SamplerAnisotropy: vk.True,
	}

	extensionNames := []string{vk.KhrSwapchainExtensionName}
	if d.hasDeviceExtension("VK_KHR_portability_subset") {
		core.LogInfo("Adding required extension 'VK_KHR_portability_subset'.")
		extensionNames = append(extensionNames, "VK_KHR_portability_subset")
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{deviceFeatures},
		EnabledExtensionCount:   uint32(len(extensionNames)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensionNames),
	}
	var logical vk.Device
	if err := check("vkCreateDevice", vk.CreateDevice(d.physical, &deviceCreateInfo, nil, &logical)); err != nil {
		return err
	}
	d.logical = logical
	core.LogInfo("Logical device created.")

	var graphics, present vk.Queue
	vk.GetDeviceQueue(d.logical, d.graphicsFamily, 0, &graphics)
	vk.GetDeviceQueue(d.logical, d.presentFamily, 0, &present)
	d.graphicsQueue = gpu.Queue(d.queues.Acquire(graphics))
	if d.presentFamily == d.graphicsFamily {
		d.presentQueue = d.graphicsQueue
	} else {
		d.presentQueue = gpu.Queue(d.queues.Acquire(present))
	}
	core.LogInfo("Queues obtained.")
	return nil
}

func (d *Device) hasDeviceExtension(name string) bool {
	var count uint32
	if res := vk.EnumerateDeviceExtensionProperties(d.physical, "", &count, nil); res != vk.Success {
		return false
	}
	available := make([]vk.ExtensionProperties, count)
	if res := vk.EnumerateDeviceExtensionProperties(d.physical, "", &count, available); res != vk.Success {
		return false
	}
	for i := range available {
		available[i].Deref()
		if vk.ToString(available[i].ExtensionName[:]) == name {
			return true
		}
	}
	return false
}

func (d *Device) GraphicsQueue() gpu.Queue { return d.graphicsQueue }
func (d *Device) PresentQueue() gpu.Queue  { return d.presentQueue }

func (d *Device) DeviceWaitIdle() error {
	return check("vkDeviceWaitIdle", vk.DeviceWaitIdle(d.logical))
}

func (d *Device) QueueWaitIdle(queue gpu.Queue) error {
	q, err := lookup(d.queues, uint64(queue))
	if err != nil {
		return err
	}
	return check("vkQueueWaitIdle", vk.QueueWaitIdle(q))
}

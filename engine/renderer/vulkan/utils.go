package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
)

type resultInfo struct {
	name string
	err  error
}

// From: https://www.khronos.org/registry/vulkan/specs/1.3-extensions/man/html/VkResult.html
var results = map[vk.Result]resultInfo{
	vk.NotReady:                   {"VK_NOT_READY", gpu.ErrTimeout},
	vk.Timeout:                    {"VK_TIMEOUT", gpu.ErrTimeout},
	vk.Incomplete:                 {"VK_INCOMPLETE", nil},
	vk.Suboptimal:                 {"VK_SUBOPTIMAL_KHR", gpu.ErrSuboptimal},
	vk.ErrorOutOfHostMemory:       {"VK_ERROR_OUT_OF_HOST_MEMORY", gpu.ErrOutOfHostMemory},
	vk.ErrorOutOfDeviceMemory:     {"VK_ERROR_OUT_OF_DEVICE_MEMORY", gpu.ErrOutOfDeviceMemory},
	vk.ErrorInitializationFailed:  {"VK_ERROR_INITIALIZATION_FAILED", gpu.ErrInitializationFail},
	vk.ErrorDeviceLost:            {"VK_ERROR_DEVICE_LOST", gpu.ErrDeviceLost},
	vk.ErrorMemoryMapFailed:       {"VK_ERROR_MEMORY_MAP_FAILED", gpu.ErrMemoryMapFailed},
	vk.ErrorLayerNotPresent:       {"VK_ERROR_LAYER_NOT_PRESENT", gpu.ErrInitializationFail},
	vk.ErrorExtensionNotPresent:   {"VK_ERROR_EXTENSION_NOT_PRESENT", gpu.ErrInitializationFail},
	vk.ErrorFeatureNotPresent:     {"VK_ERROR_FEATURE_NOT_PRESENT", gpu.ErrInitializationFail},
	vk.ErrorIncompatibleDriver:    {"VK_ERROR_INCOMPATIBLE_DRIVER", gpu.ErrInitializationFail},
	vk.ErrorTooManyObjects:        {"VK_ERROR_TOO_MANY_OBJECTS", gpu.ErrOutOfDeviceMemory},
	vk.ErrorFormatNotSupported:    {"VK_ERROR_FORMAT_NOT_SUPPORTED", gpu.ErrInvalidUsage},
	vk.ErrorFragmentedPool:        {"VK_ERROR_FRAGMENTED_POOL", gpu.ErrOutOfPoolMemory},
	vk.ErrorSurfaceLost:           {"VK_ERROR_SURFACE_LOST_KHR", gpu.ErrDeviceLost},
	vk.ErrorNativeWindowInUse:     {"VK_ERROR_NATIVE_WINDOW_IN_USE_KHR", gpu.ErrInitializationFail},
	vk.ErrorOutOfDate:             {"VK_ERROR_OUT_OF_DATE_KHR", gpu.ErrOutOfDate},
	vk.ErrorIncompatibleDisplay:   {"VK_ERROR_INCOMPATIBLE_DISPLAY_KHR", gpu.ErrInitializationFail},
	vk.ErrorInvalidShaderNv:       {"VK_ERROR_INVALID_SHADER_NV", gpu.ErrInvalidShader},
	vk.ErrorOutOfPoolMemory:       {"VK_ERROR_OUT_OF_POOL_MEMORY", gpu.ErrOutOfPoolMemory},
	vk.ErrorInvalidExternalHandle: {"VK_ERROR_INVALID_EXTERNAL_HANDLE", gpu.ErrInvalidHandle},
	vk.ErrorFragmentation:         {"VK_ERROR_FRAGMENTATION", gpu.ErrOutOfPoolMemory},
	vk.ErrorUnknown:               {"VK_ERROR_UNKNOWN", gpu.ErrDeviceLost},
}

func VulkanResultString(result vk.Result) string {
	if result == vk.Success {
		return "VK_SUCCESS"
	}
	if info, ok := results[result]; ok {
		return info.name
	}
	return "VK_ERROR_UNKNOWN"
}

// check converts a result into a gpu.ResultError. Swapchain staleness and
// timeouts are expected outcomes and are not logged.
func check(op string, result vk.Result) error {
	if result == vk.Success {
		return nil
	}
	info, ok := results[result]
	if !ok {
		info = results[vk.ErrorUnknown]
	}
	err := &gpu.ResultError{Op: op, Code: int32(result), Text: info.name, Err: info.err}
	switch info.err {
	case gpu.ErrOutOfDate, gpu.ErrSuboptimal, gpu.ErrTimeout, nil:
	default:
		core.LogError(err.Error())
	}
	return err
}

var end = "\x00"
var endChar byte = '\x00'

func VulkanSafeString(s string) string {
	if len(s) == 0 {
		return end
	}
	if s[len(s)-1] != endChar {
		return s + end
	}
	return s
}

func VulkanSafeStrings(list []string) []string {
	out := make([]string, len(list))
	for i := range list {
		out[i] = VulkanSafeString(list[i])
	}
	return out
}

func boolToVk(b bool) vk.Bool32 {
	if b {
		return vk.True
	}
	return vk.False
}

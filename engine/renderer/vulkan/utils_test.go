package vulkan

import (
	"errors"
	"testing"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/prism/engine/renderer/gpu"
)

func TestCheckMapsResults(t *testing.T) {
	tests := []struct {
		result vk.Result
		want   error
	}{
		{vk.ErrorOutOfDate, gpu.ErrOutOfDate},
		{vk.Suboptimal, gpu.ErrSuboptimal},
		{vk.Timeout, gpu.ErrTimeout},
		{vk.ErrorDeviceLost, gpu.ErrDeviceLost},
		{vk.ErrorOutOfPoolMemory, gpu.ErrOutOfPoolMemory},
		{vk.ErrorMemoryMapFailed, gpu.ErrMemoryMapFailed},
		{vk.Result(-424242), gpu.ErrDeviceLost},
	}
	for _, tt := range tests {
		err := check("op", tt.result)
		if !errors.Is(err, tt.want) {
			t.Errorf("check(%d) = %v, want %v", tt.result, err, tt.want)
		}
		var re *gpu.ResultError
		if !errors.As(err, &re) || re.Code != int32(tt.result) {
			t.Errorf("check(%d) did not carry the result code: %v", tt.result, err)
		}
	}
	if err := check("op", vk.Success); err != nil {
		t.Errorf("check(Success) = %v", err)
	}
	if !gpu.IsSwapchainStale(check("acquire", vk.ErrorOutOfDate)) {
		t.Error("out of date result should be stale")
	}
}

func TestVulkanResultString(t *testing.T) {
	if got := VulkanResultString(vk.Success); got != "VK_SUCCESS" {
		t.Errorf("got %q", got)
	}
	if got := VulkanResultString(vk.ErrorOutOfDate); got != "VK_ERROR_OUT_OF_DATE_KHR" {
		t.Errorf("got %q", got)
	}
	if got := VulkanResultString(vk.Result(-424242)); got != "VK_ERROR_UNKNOWN" {
		t.Errorf("got %q", got)
	}
}

func TestVulkanSafeString(t *testing.T) {
	if got := VulkanSafeString(""); got != "\x00" {
		t.Errorf("empty: got %q", got)
	}
	if got := VulkanSafeString("main"); got != "main\x00" {
		t.Errorf("got %q", got)
	}
	if got := VulkanSafeString("main\x00"); got != "main\x00" {
		t.Errorf("terminated twice: %q", got)
	}
	in := []string{"a", "b\x00"}
	out := VulkanSafeStrings(in)
	if out[0] != "a\x00" || out[1] != "b\x00" || in[0] != "a" {
		t.Errorf("got %q from %q", out, in)
	}
}

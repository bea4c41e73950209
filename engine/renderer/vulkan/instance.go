// Package vulkan implements the gpu driver contract on top of goki/vulkan.
// Vulkan objects never leave the package: callers get opaque gpu handles that
// index the tables below.
package vulkan

import (
	"errors"
	"fmt"
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/prism/engine/containers"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
)

var _ gpu.Device = (*Device)(nil)

const validationLayer = "VK_LAYER_KHRONOS_validation"

// Surface is the window the device presents to.
type Surface interface {
	RequiredInstanceExtensions() []string
	CreateSurface(instance interface{}) (uintptr, error)
}

type Options struct {
	ApplicationName string
	// Validation enables the Khronos validation layer and routes its
	// reports into the engine log.
	Validation bool
}

type deviceMemory struct {
	handle vk.DeviceMemory
	size   uint64
	mapped bool
}

type descriptorSet struct {
	handle vk.DescriptorSet
	pool   gpu.DescriptorPool
}

type commandBuffer struct {
	handle vk.CommandBuffer
	pool   gpu.CommandPool
}

type renderPass struct {
	handle vk.RenderPass
	colors int
}

type swapchain struct {
	handle vk.Swapchain
	images []gpu.Image
}

type Device struct {
	instance vk.Instance
	surface  vk.Surface
	debug    vk.DebugReportCallback

	physical       vk.PhysicalDevice
	logical        vk.Device
	graphicsFamily uint32
	presentFamily  uint32
	graphicsQueue  gpu.Queue
	presentQueue   gpu.Queue
	properties     gpu.DeviceProperties

	queues          *containers.HandleTable[vk.Queue]
	buffers         *containers.HandleTable[vk.Buffer]
	memories        *containers.HandleTable[*deviceMemory]
	images          *containers.HandleTable[vk.Image]
	views           *containers.HandleTable[vk.ImageView]
	samplers        *containers.HandleTable[vk.Sampler]
	modules         *containers.HandleTable[vk.ShaderModule]
	setLayouts      *containers.HandleTable[vk.DescriptorSetLayout]
	descriptorPools *containers.HandleTable[vk.DescriptorPool]
	descriptorSets  *containers.HandleTable[descriptorSet]
	pipelineLayouts *containers.HandleTable[vk.PipelineLayout]
	pipelines       *containers.HandleTable[vk.Pipeline]
	renderPasses    *containers.HandleTable[renderPass]
	framebuffers    *containers.HandleTable[vk.Framebuffer]
	commandPools    *containers.HandleTable[vk.CommandPool]
	commandBuffers  *containers.HandleTable[commandBuffer]
	fences          *containers.HandleTable[vk.Fence]
	semaphores      *containers.HandleTable[vk.Semaphore]
	swapchains      *containers.HandleTable[*swapchain]

	destroyed bool
}

// New creates the instance, the window surface and the logical device.
func New(window Surface, opts Options) (*Device, error) {
	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		err := errors.New("GetInstanceProcAddress is nil")
		core.LogError(err.Error())
		return nil, err
	}
	vk.SetGetInstanceProcAddr(procAddr)

	if err := vk.Init(); err != nil {
		core.LogError("failed to initialize vk: %s", err)
		return nil, err
	}

	d := &Device{
		queues:          containers.NewHandleTable[vk.Queue](),
		buffers:         containers.NewHandleTable[vk.Buffer](),
		memories:        containers.NewHandleTable[*deviceMemory](),
		images:          containers.NewHandleTable[vk.Image](),
		views:           containers.NewHandleTable[vk.ImageView](),
		samplers:        containers.NewHandleTable[vk.Sampler](),
		modules:         containers.NewHandleTable[vk.ShaderModule](),
		setLayouts:      containers.NewHandleTable[vk.DescriptorSetLayout](),
		descriptorPools: containers.NewHandleTable[vk.DescriptorPool](),
		descriptorSets:  containers.NewHandleTable[descriptorSet](),
		pipelineLayouts: containers.NewHandleTable[vk.PipelineLayout](),
		pipelines:       containers.NewHandleTable[vk.Pipeline](),
		renderPasses:    containers.NewHandleTable[renderPass](),
		framebuffers:    containers.NewHandleTable[vk.Framebuffer](),
		commandPools:    containers.NewHandleTable[vk.CommandPool](),
		commandBuffers:  containers.NewHandleTable[commandBuffer](),
		fences:          containers.NewHandleTable[vk.Fence](),
		semaphores:      containers.NewHandleTable[vk.Semaphore](),
		swapchains:      containers.NewHandleTable[*swapchain](),
	}

	if err := d.createInstance(window, opts); err != nil {
		return nil, err
	}

	// Surface
	core.LogDebug("Creating Vulkan surface...")
	surface, err := window.CreateSurface(d.instance)
	if err != nil {
		d.Destroy()
		return nil, err
	}
	d.surface = vk.SurfaceFromPointer(surface)
	core.LogDebug("Vulkan surface created.")

	if err := d.selectPhysicalDevice(); err != nil {
		d.Destroy()
		return nil, err
	}
	if err := d.createLogicalDevice(); err != nil {
		d.Destroy()
		return nil, err
	}

	core.LogInfo("Vulkan device initialized successfully.")
	return d, nil
}

func (d *Device) createInstance(window Surface, opts Options) error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 1, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(opts.ApplicationName),
		PEngineName:        VulkanSafeString("Prism Engine"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	// Obtain a list of required extensions
	requiredExtensions := window.RequiredInstanceExtensions()
	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		createInfo.Flags |= 1 // VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
	}

	var layers []string
	if opts.Validation {
		if hasInstanceLayer(validationLayer) {
			requiredExtensions = append(requiredExtensions, vk.ExtDebugReportExtensionName)
			layers = append(layers, validationLayer)
			core.LogInfo("Validation layer enabled.")
		} else {
			core.LogWarn("Validation requested but %s is not installed.", validationLayer)
		}
	}
	for _, e := range requiredExtensions {
		core.LogDebug("Required extension: %s", e)
	}

	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	if err := check("vkCreateInstance", vk.CreateInstance(&createInfo, nil, &d.instance)); err != nil {
		return err
	}
	if err := vk.InitInstance(d.instance); err != nil {
		core.LogError(err.Error())
		return err
	}
	core.LogInfo("Vulkan Instance created.")

	if len(layers) > 0 {
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		if err := check("vkCreateDebugReportCallback", vk.CreateDebugReportCallback(d.instance, &debugCreateInfo, nil, &d.debug)); err != nil {
			return err
		}
		core.LogDebug("Vulkan debugger created.")
	}
	return nil
}

func hasInstanceLayer(name string) bool {
	var count uint32
	if res := vk.EnumerateInstanceLayerProperties(&count, nil); res != vk.Success {
		return false
	}
	available := make([]vk.LayerProperties, count)
	if res := vk.EnumerateInstanceLayerProperties(&count, available); res != vk.Success {
		return false
	}
	for i := range available {
		available[i].Deref()
		if vk.ToString(available[i].LayerName[:]) == name {
			return true
		}
	}
	return false
}

// Destroy tears down the device, the surface and the instance. Objects still
// alive in the handle tables are reported and left to the driver.
func (d *Device) Destroy() {
	if d == nil || d.destroyed {
		return
	}
	d.destroyed = true

	if d.logical != nil {
		vk.DeviceWaitIdle(d.logical)
		if live := d.liveObjects(); live > 0 {
			core.LogWarn("destroying Vulkan device with %d live objects", live)
		}
		core.LogInfo("Destroying logical device...")
		vk.DestroyDevice(d.logical, nil)
		d.logical = nil
	}
	if d.surface != vk.NullSurface {
		vk.DestroySurface(d.instance, d.surface, nil)
		d.surface = vk.NullSurface
	}
	if d.debug != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(d.instance, d.debug, nil)
		d.debug = vk.NullDebugReportCallback
	}
	if d.instance != nil {
		vk.DestroyInstance(d.instance, nil)
		d.instance = nil
	}
	core.LogInfo("Vulkan device destroyed.")
}

func (d *Device) liveObjects() int {
	return d.buffers.Len() + d.memories.Len() + d.views.Len() + d.samplers.Len() +
		d.modules.Len() + d.setLayouts.Len() + d.descriptorPools.Len() + d.pipelineLayouts.Len() +
		d.pipelines.Len() + d.renderPasses.Len() + d.framebuffers.Len() + d.commandPools.Len() +
		d.fences.Len() + d.semaphores.Len() + d.swapchains.Len()
}

func (d *Device) Properties() gpu.DeviceProperties {
	return d.properties
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}

func lookup[T any](table *containers.HandleTable[T], id uint64) (T, error) {
	v, ok := table.Get(id)
	if !ok {
		return v, fmt.Errorf("%w: %d", gpu.ErrInvalidHandle, id)
	}
	return v, nil
}

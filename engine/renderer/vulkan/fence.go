package vulkan

import (
	"errors"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
)

func (d *Device) CreateFence(signaled bool) (gpu.Fence, error) {
	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if signaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var fence vk.Fence
	if err := check("vkCreateFence", vk.CreateFence(d.logical, &fenceCreateInfo, nil, &fence)); err != nil {
		return 0, err
	}
	return gpu.Fence(d.fences.Acquire(fence)), nil
}

func (d *Device) DestroyFence(fence gpu.Fence) {
	if f, ok := d.fences.Release(uint64(fence)); ok {
		vk.DestroyFence(d.logical, f, nil)
	}
}

func (d *Device) fenceHandles(fences []gpu.Fence) ([]vk.Fence, error) {
	handles := make([]vk.Fence, len(fences))
	for i, f := range fences {
		var err error
		if handles[i], err = lookup(d.fences, uint64(f)); err != nil {
			return nil, err
		}
	}
	return handles, nil
}

func (d *Device) WaitForFences(fences []gpu.Fence, timeout uint64) error {
	if len(fences) == 0 {
		return nil
	}
	handles, err := d.fenceHandles(fences)
	if err != nil {
		return err
	}
	err = check("vkWaitForFences", vk.WaitForFences(d.logical, uint32(len(handles)), handles, vk.True, timeout))
	if errors.Is(err, gpu.ErrTimeout) {
		core.LogWarn("vkWaitForFences timed out after %dns", timeout)
	}
	return err
}

func (d *Device) ResetFences(fences []gpu.Fence) error {
	if len(fences) == 0 {
		return nil
	}
	handles, err := d.fenceHandles(fences)
	if err != nil {
		return err
	}
	return check("vkResetFences", vk.ResetFences(d.logical, uint32(len(handles)), handles))
}

func (d *Device) FenceStatus(fence gpu.Fence) (bool, error) {
	f, err := lookup(d.fences, uint64(fence))
	if err != nil {
		return false, err
	}
	switch res := vk.GetFenceStatus(d.logical, f); res {
	case vk.Success:
		return true, nil
	case vk.NotReady:
		return false, nil
	default:
		return false, check("vkGetFenceStatus", res)
	}
}

func (d *Device) CreateSemaphore() (gpu.Semaphore, error) {
	semaphoreCreateInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var semaphore vk.Semaphore
	if err := check("vkCreateSemaphore", vk.CreateSemaphore(d.logical, &semaphoreCreateInfo, nil, &semaphore)); err != nil {
		return 0, err
	}
	return gpu.Semaphore(d.semaphores.Acquire(semaphore)), nil
}

func (d *Device) DestroySemaphore(semaphore gpu.Semaphore) {
	if s, ok := d.semaphores.Release(uint64(semaphore)); ok {
		vk.DestroySemaphore(d.logical, s, nil)
	}
}

func (d *Device) semaphoreHandles(semaphores []gpu.Semaphore) ([]vk.Semaphore, error) {
	handles := make([]vk.Semaphore, len(semaphores))
	for i, s := range semaphores {
		var err error
		if handles[i], err = lookup(d.semaphores, uint64(s)); err != nil {
			return nil, err
		}
	}
	return handles, nil
}

func (d *Device) QueueSubmit(queue gpu.Queue, submits []gpu.SubmitInfo, fence gpu.Fence) error {
	q, err := lookup(d.queues, uint64(queue))
	if err != nil {
		return err
	}
	f := vk.NullFence
	if fence != 0 {
		if f, err = lookup(d.fences, uint64(fence)); err != nil {
			return err
		}
	}

	infos := make([]vk.SubmitInfo, len(submits))
	for i, s := range submits {
		if len(s.WaitStages) != len(s.WaitSemaphores) {
			return gpu.ErrInvalidUsage
		}
		waits, err := d.semaphoreHandles(s.WaitSemaphores)
		if err != nil {
			return err
		}
		signals, err := d.semaphoreHandles(s.SignalSemaphores)
		if err != nil {
			return err
		}
		stages := make([]vk.PipelineStageFlags, len(s.WaitStages))
		for j, st := range s.WaitStages {
			stages[j] = vk.PipelineStageFlags(st)
		}
		buffers := make([]vk.CommandBuffer, len(s.CommandBuffers))
		for j, cb := range s.CommandBuffers {
			c, err := lookup(d.commandBuffers, uint64(cb))
			if err != nil {
				return err
			}
			buffers[j] = c.handle
		}
		infos[i] = vk.SubmitInfo{
			SType:                vk.StructureTypeSubmitInfo,
			WaitSemaphoreCount:   uint32(len(waits)),
			PWaitSemaphores:      waits,
			PWaitDstStageMask:    stages,
			CommandBufferCount:   uint32(len(buffers)),
			PCommandBuffers:      buffers,
			SignalSemaphoreCount: uint32(len(signals)),
			PSignalSemaphores:    signals,
		}
	}
	return check("vkQueueSubmit", vk.QueueSubmit(q, uint32(len(infos)), infos, f))
}

package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vkquad/engine/core"
	"github.com/spaghettifunk/vkquad/engine/renderer/metadata"
)

type VulkanFence struct {
	context    *VulkanContext
	Handle     vk.Fence
	IsSignaled bool
}

type VulkanSemaphore struct {
	context *VulkanContext
	Handle  vk.Semaphore
}

func (vc *VulkanContext) CreateFence(createSignaled bool) (metadata.Fence, error) {
	fence := &VulkanFence{
		context: vc,
		// Make sure to signal the fence if required.
		IsSignaled: createSignaled,
	}

	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if fence.IsSignaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}

	err := vc.lockPool.SafeCall(SynchronizationManagement, func() error {
		var pFence vk.Fence
		if res := vk.CreateFence(vc.Device.LogicalDevice, &fenceCreateInfo, vc.Allocator, &pFence); res != vk.Success {
			return fmt.Errorf("vkCreateFence failed with %s", VulkanResultString(res, true))
		}
		fence.Handle = pFence
		return nil
	})
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	return fence, nil
}

func (vf *VulkanFence) Destroy() {
	if vf.Handle != vk.NullFence {
		vk.DestroyFence(vf.context.Device.LogicalDevice, vf.Handle, vf.context.Allocator)
		vf.Handle = vk.NullFence
	}
	vf.IsSignaled = false
}

// Wait returns immediately for a fence known to be signaled; otherwise it
// blocks in vkWaitForFences for at most timeoutNs.
func (vf *VulkanFence) Wait(timeoutNs uint64) error {
	if vf.IsSignaled {
		return nil
	}
	result := vk.WaitForFences(vf.context.Device.LogicalDevice, 1, []vk.Fence{vf.Handle}, vk.True, timeoutNs)
	switch result {
	case vk.Success:
		vf.IsSignaled = true
		return nil
	case vk.Timeout:
		core.LogWarn("vk_fence_wait - Timed out")
	case vk.ErrorDeviceLost:
		core.LogError("vk_fence_wait - VK_ERROR_DEVICE_LOST.")
	case vk.ErrorOutOfHostMemory:
		core.LogError("vk_fence_wait - VK_ERROR_OUT_OF_HOST_MEMORY.")
	case vk.ErrorOutOfDeviceMemory:
		core.LogError("vk_fence_wait - VK_ERROR_OUT_OF_DEVICE_MEMORY.")
	default:
		core.LogError("vk_fence_wait - An unknown error has occurred.")
	}
	return resultError("vkWaitForFences", result)
}

func (vf *VulkanFence) Reset() error {
	if !vf.IsSignaled {
		return nil
	}
	if res := vk.ResetFences(vf.context.Device.LogicalDevice, 1, []vk.Fence{vf.Handle}); res != vk.Success {
		err := resultError("vkResetFences", res)
		core.LogError(err.Error())
		return err
	}
	vf.IsSignaled = false
	return nil
}

func (vc *VulkanContext) CreateSemaphore() (metadata.Semaphore, error) {
	semaphore := &VulkanSemaphore{context: vc}
	semaphoreCreateInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	err := vc.lockPool.SafeCall(SynchronizationManagement, func() error {
		var pSemaphore vk.Semaphore
		if res := vk.CreateSemaphore(vc.Device.LogicalDevice, &semaphoreCreateInfo, vc.Allocator, &pSemaphore); res != vk.Success {
			return fmt.Errorf("vkCreateSemaphore failed with %s", VulkanResultString(res, true))
		}
		semaphore.Handle = pSemaphore
		return nil
	})
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	return semaphore, nil
}

func (vs *VulkanSemaphore) Destroy() {
	if vs.Handle != vk.NullSemaphore {
		vk.DestroySemaphore(vs.context.Device.LogicalDevice, vs.Handle, vs.context.Allocator)
		vs.Handle = vk.NullSemaphore
	}
}

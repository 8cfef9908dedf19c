package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vkquad/engine/renderer/metadata"
)

// Submit hands one recorded command buffer to the graphics queue. The fence
// is signaled when the GPU has finished with it.
func (vc *VulkanContext) Submit(info metadata.SubmitInfo) error {
	cb, ok := info.CommandBuffer.(*VulkanCommandBuffer)
	if !ok {
		return fmt.Errorf("submit needs a *VulkanCommandBuffer, got %T", info.CommandBuffer)
	}
	wait, ok := info.WaitSemaphore.(*VulkanSemaphore)
	if !ok {
		return fmt.Errorf("submit needs a *VulkanSemaphore to wait on, got %T", info.WaitSemaphore)
	}
	signal, ok := info.SignalSemaphore.(*VulkanSemaphore)
	if !ok {
		return fmt.Errorf("submit needs a *VulkanSemaphore to signal, got %T", info.SignalSemaphore)
	}
	fence, ok := info.Fence.(*VulkanFence)
	if !ok {
		return fmt.Errorf("submit needs a *VulkanFence, got %T", info.Fence)
	}

	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   1,
		PWaitSemaphores:      []vk.Semaphore{wait.Handle},
		PWaitDstStageMask:    []vk.PipelineStageFlags{vk.PipelineStageFlags(info.WaitStage)},
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{cb.Handle},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{signal.Handle},
	}

	return vc.lockPool.SafeQueueCall(vc.Device.GraphicsQueueIndex, func() error {
		if res := vk.QueueSubmit(vc.Device.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, fence.Handle); res != vk.Success {
			return resultError("vkQueueSubmit", res)
		}
		cb.UpdateSubmitted()
		fence.IsSignaled = false
		return nil
	})
}

func (vc *VulkanContext) Present(info metadata.PresentInfo) error {
	swapchain, ok := info.Swapchain.(*VulkanSwapchain)
	if !ok {
		return fmt.Errorf("present needs a *VulkanSwapchain, got %T", info.Swapchain)
	}
	wait, ok := info.WaitSemaphore.(*VulkanSemaphore)
	if !ok {
		return fmt.Errorf("present needs a *VulkanSemaphore to wait on, got %T", info.WaitSemaphore)
	}

	// Return the image to the swapchain for presentation.
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{wait.Handle},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{swapchain.Handle},
		PImageIndices:      []uint32{info.ImageIndex},
		PResults:           nil,
	}

	return vc.lockPool.SafeQueueCall(vc.Device.PresentQueueIndex, func() error {
		return resultError("vkQueuePresentKHR", vk.QueuePresent(vc.Device.PresentQueue, &presentInfo))
	})
}

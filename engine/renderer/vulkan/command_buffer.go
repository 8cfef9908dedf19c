package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vkquad/engine/core"
	"github.com/spaghettifunk/vkquad/engine/renderer/metadata"
)

type VulkanCommandBufferState int

const (
	COMMAND_BUFFER_STATE_READY VulkanCommandBufferState = iota
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_IN_RENDER_PASS
	COMMAND_BUFFER_STATE_RECORDING_ENDED
	COMMAND_BUFFER_STATE_SUBMITTED
	COMMAND_BUFFER_STATE_NOT_ALLOCATED
)

type VulkanCommandBuffer struct {
	context *VulkanContext
	Handle  vk.CommandBuffer
	// Command buffer state.
	State VulkanCommandBufferState
}

// AllocateCommandBuffers allocates primary buffers from the graphics pool,
// which was created with the reset-command-buffer flag.
func (vc *VulkanContext) AllocateCommandBuffers(count uint32) ([]metadata.CommandBuffer, error) {
	handles, err := vc.allocateHandles(count)
	if err != nil {
		return nil, err
	}
	out := make([]metadata.CommandBuffer, count)
	for i, h := range handles {
		out[i] = &VulkanCommandBuffer{context: vc, Handle: h, State: COMMAND_BUFFER_STATE_READY}
	}
	return out, nil
}

func (vc *VulkanContext) allocateHandles(count uint32) ([]vk.CommandBuffer, error) {
	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        vc.Device.GraphicsCommandPool,
		CommandBufferCount: count,
		Level:              vk.CommandBufferLevelPrimary,
	}

	handles := make([]vk.CommandBuffer, count)
	err := vc.lockPool.SafeCall(CommandBufferManagement, func() error {
		if res := vk.AllocateCommandBuffers(vc.Device.LogicalDevice, &allocateInfo, handles); res != vk.Success {
			return fmt.Errorf("vkAllocateCommandBuffers failed with %s", VulkanResultString(res, true))
		}
		return nil
	})
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	return handles, nil
}

func (vc *VulkanContext) FreeCommandBuffers(buffers []metadata.CommandBuffer) {
	handles := make([]vk.CommandBuffer, 0, len(buffers))
	for _, b := range buffers {
		cb, ok := b.(*VulkanCommandBuffer)
		if !ok || cb.State == COMMAND_BUFFER_STATE_NOT_ALLOCATED {
			continue
		}
		handles = append(handles, cb.Handle)
		cb.Handle = nil
		cb.State = COMMAND_BUFFER_STATE_NOT_ALLOCATED
	}
	if len(handles) == 0 {
		return
	}
	_ = vc.lockPool.SafeCall(CommandBufferManagement, func() error {
		vk.FreeCommandBuffers(vc.Device.LogicalDevice, vc.Device.GraphicsCommandPool, uint32(len(handles)), handles)
		return nil
	})
}

func (v *VulkanCommandBuffer) Reset() error {
	if v.State == COMMAND_BUFFER_STATE_NOT_ALLOCATED {
		return fmt.Errorf("command buffer is not allocated")
	}
	if res := vk.ResetCommandBuffer(v.Handle, 0); res != vk.Success {
		return resultError("vkResetCommandBuffer", res)
	}
	v.State = COMMAND_BUFFER_STATE_READY
	return nil
}

func (v *VulkanCommandBuffer) Begin(isSingleUse bool) error {
	beginInfo := &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: 0,
	}
	if isSingleUse {
		beginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}

	if res := vk.BeginCommandBuffer(v.Handle, beginInfo); res != vk.Success {
		err := resultError("vkBeginCommandBuffer", res)
		core.LogError(err.Error())
		return err
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING
	return nil
}

func (v *VulkanCommandBuffer) BeginRenderPass(info metadata.RenderPassBegin) {
	renderpass := info.RenderPass.(*VulkanRenderpass)
	framebuffer := info.Framebuffer.(*VulkanFramebuffer)

	c := info.ClearColor
	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  renderpass.Handle,
		Framebuffer: framebuffer.Handle,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: fromExtent(info.Extent),
		},
		ClearValueCount: 1,
		PClearValues:    []vk.ClearValue{vk.NewClearValue([]float32{c[0], c[1], c[2], c[3]})},
	}

	vk.CmdBeginRenderPass(v.Handle, &beginInfo, vk.SubpassContentsInline)
	v.State = COMMAND_BUFFER_STATE_IN_RENDER_PASS
}

func (v *VulkanCommandBuffer) BindPipeline(pipeline metadata.Pipeline) {
	vk.CmdBindPipeline(v.Handle, vk.PipelineBindPointGraphics, pipeline.(*VulkanPipeline).Handle)
}

func (v *VulkanCommandBuffer) BindVertexBuffer(buffer metadata.Buffer, offset uint64) {
	b := buffer.(*VulkanBuffer)
	vk.CmdBindVertexBuffers(v.Handle, 0, 1, []vk.Buffer{b.Handle}, []vk.DeviceSize{vk.DeviceSize(offset)})
}

func (v *VulkanCommandBuffer) BindIndexBuffer(buffer metadata.Buffer, offset uint64, indexType metadata.IndexType) {
	b := buffer.(*VulkanBuffer)
	vk.CmdBindIndexBuffer(v.Handle, b.Handle, vk.DeviceSize(offset), vk.IndexType(indexType))
}

func (v *VulkanCommandBuffer) DrawIndexed(indexCount, instanceCount uint32) {
	vk.CmdDrawIndexed(v.Handle, indexCount, instanceCount, 0, 0, 0)
}

func (v *VulkanCommandBuffer) EndRenderPass() {
	vk.CmdEndRenderPass(v.Handle)
	v.State = COMMAND_BUFFER_STATE_RECORDING
}

func (v *VulkanCommandBuffer) End() error {
	if res := vk.EndCommandBuffer(v.Handle); res != vk.Success {
		err := resultError("vkEndCommandBuffer", res)
		core.LogError(err.Error())
		return err
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING_ENDED
	return nil
}

func (v *VulkanCommandBuffer) UpdateSubmitted() {
	v.State = COMMAND_BUFFER_STATE_SUBMITTED
}

// AllocateAndBeginSingleUse allocates a transient buffer and starts
// recording into it.
func AllocateAndBeginSingleUse(context *VulkanContext) (*VulkanCommandBuffer, error) {
	handles, err := context.allocateHandles(1)
	if err != nil {
		return nil, err
	}
	cb := &VulkanCommandBuffer{context: context, Handle: handles[0], State: COMMAND_BUFFER_STATE_READY}
	if err := cb.Begin(true); err != nil {
		context.FreeCommandBuffers([]metadata.CommandBuffer{cb})
		return nil, err
	}
	return cb, nil
}

// EndSingleUse ends recording, submits to the graphics queue, waits for the
// queue to drain and frees the buffer.
func (v *VulkanCommandBuffer) EndSingleUse() error {
	context := v.context
	defer context.FreeCommandBuffers([]metadata.CommandBuffer{v})

	if err := v.End(); err != nil {
		return err
	}

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{v.Handle},
	}

	return context.lockPool.SafeQueueCall(context.Device.GraphicsQueueIndex, func() error {
		if res := vk.QueueSubmit(context.Device.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, vk.NullFence); res != vk.Success {
			err := resultError("vkQueueSubmit", res)
			core.LogError(err.Error())
			return err
		}
		v.UpdateSubmitted()

		// Wait for it to finish
		if res := vk.QueueWaitIdle(context.Device.GraphicsQueue); res != vk.Success {
			err := resultError("vkQueueWaitIdle", res)
			core.LogError(err.Error())
			return err
		}
		return nil
	})
}

package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vkquad/engine/core"
	"github.com/spaghettifunk/vkquad/engine/renderer/metadata"
)

type VulkanBuffer struct {
	context *VulkanContext
	Handle  vk.Buffer
	Memory  vk.DeviceMemory
	Size    vk.DeviceSize
	Usage   vk.BufferUsageFlags
}

func NewBuffer(context *VulkanContext, size vk.DeviceSize, usage vk.BufferUsageFlags, properties vk.MemoryPropertyFlags) (*VulkanBuffer, error) {
	buffer := &VulkanBuffer{context: context, Size: size, Usage: usage}

	bufferInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        size,
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive, // NOTE: Only used in one queue.
	}

	err := context.lockPool.SafeCall(BufferManagement, func() error {
		var handle vk.Buffer
		if res := vk.CreateBuffer(context.Device.LogicalDevice, &bufferInfo, context.Allocator, &handle); res != vk.Success {
			return resultError("vkCreateBuffer", res)
		}
		buffer.Handle = handle

		var memRequirements vk.MemoryRequirements
		vk.GetBufferMemoryRequirements(context.Device.LogicalDevice, handle, &memRequirements)
		memRequirements.Deref()

		memoryIndex := context.FindMemoryIndex(memRequirements.MemoryTypeBits, uint32(properties))
		if memoryIndex < 0 {
			return fmt.Errorf("unable to create buffer: required memory type index not found")
		}

		allocInfo := vk.MemoryAllocateInfo{
			SType:           vk.StructureTypeMemoryAllocateInfo,
			AllocationSize:  memRequirements.Size,
			MemoryTypeIndex: uint32(memoryIndex),
		}
		var memory vk.DeviceMemory
		if res := vk.AllocateMemory(context.Device.LogicalDevice, &allocInfo, context.Allocator, &memory); res != vk.Success {
			return resultError("vkAllocateMemory", res)
		}
		buffer.Memory = memory

		if res := vk.BindBufferMemory(context.Device.LogicalDevice, handle, memory, 0); res != vk.Success {
			return resultError("vkBindBufferMemory", res)
		}
		return nil
	})
	if err != nil {
		core.LogError(err.Error())
		buffer.Destroy()
		return nil, err
	}
	return buffer, nil
}

// LoadData copies data into a host visible buffer.
func (b *VulkanBuffer) LoadData(data []byte) error {
	if vk.DeviceSize(len(data)) > b.Size {
		return fmt.Errorf("buffer of size %d cannot hold %d bytes", b.Size, len(data))
	}
	var pData unsafe.Pointer
	if res := vk.MapMemory(b.context.Device.LogicalDevice, b.Memory, 0, vk.DeviceSize(len(data)), 0, &pData); res != vk.Success {
		return resultError("vkMapMemory", res)
	}
	vk.Memcopy(pData, data)
	vk.UnmapMemory(b.context.Device.LogicalDevice, b.Memory)
	return nil
}

// CopyTo records a one-time copy into dst and waits for the graphics queue
// to finish it.
func (b *VulkanBuffer) CopyTo(dst *VulkanBuffer, size vk.DeviceSize) error {
	cmd, err := AllocateAndBeginSingleUse(b.context)
	if err != nil {
		return err
	}
	vk.CmdCopyBuffer(cmd.Handle, b.Handle, dst.Handle, 1, []vk.BufferCopy{{SrcOffset: 0, DstOffset: 0, Size: size}})
	return cmd.EndSingleUse()
}

func (b *VulkanBuffer) Destroy() {
	if b.Handle != vk.NullBuffer {
		vk.DestroyBuffer(b.context.Device.LogicalDevice, b.Handle, b.context.Allocator)
		b.Handle = vk.NullBuffer
	}
	if b.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(b.context.Device.LogicalDevice, b.Memory, b.context.Allocator)
		b.Memory = vk.NullDeviceMemory
	}
	b.Size = 0
}

// CreateMeshBuffers uploads the vertex and index data through host visible
// staging buffers into device local ones.
func (vc *VulkanContext) CreateMeshBuffers(mesh *metadata.Mesh) (metadata.Buffer, metadata.Buffer, error) {
	if err := mesh.Validate(); err != nil {
		return nil, nil, err
	}

	vertices, err := vc.uploadDeviceLocal(mesh.VertexBytes(), vk.BufferUsageVertexBufferBit)
	if err != nil {
		return nil, nil, fmt.Errorf("vertex buffer: %w", err)
	}
	indices, err := vc.uploadDeviceLocal(mesh.IndexBytes(), vk.BufferUsageIndexBufferBit)
	if err != nil {
		vertices.Destroy()
		return nil, nil, fmt.Errorf("index buffer: %w", err)
	}

	core.LogDebug("Mesh uploaded: %d vertices, %d indices.", len(mesh.Vertices), len(mesh.Indices))
	return vertices, indices, nil
}

func (vc *VulkanContext) uploadDeviceLocal(data []byte, usage vk.BufferUsageFlagBits) (*VulkanBuffer, error) {
	size := vk.DeviceSize(len(data))

	staging, err := NewBuffer(vc, size,
		vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit)|vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit))
	if err != nil {
		return nil, err
	}
	defer staging.Destroy()

	if err := staging.LoadData(data); err != nil {
		return nil, err
	}

	buffer, err := NewBuffer(vc, size,
		vk.BufferUsageFlags(vk.BufferUsageTransferDstBit)|vk.BufferUsageFlags(usage),
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		return nil, err
	}

	if err := staging.CopyTo(buffer, size); err != nil {
		buffer.Destroy()
		return nil, err
	}
	return buffer, nil
}

package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vkquad/engine/core"
	"github.com/spaghettifunk/vkquad/engine/renderer/metadata"
)

type VulkanSwapchain struct {
	context     *VulkanContext
	Handle      vk.Swapchain
	ImageFormat vk.SurfaceFormat
	Extent      vk.Extent2D
	images      []vk.Image
}

type VulkanImageView struct {
	context *VulkanContext
	Handle  vk.ImageView
}

// CreateSwapchain builds a swapchain from choices already made by the
// caller. The surface transform is read fresh since it may have rotated.
func (vc *VulkanContext) CreateSwapchain(config metadata.SwapchainCreateConfig) (metadata.Swapchain, error) {
	support, err := DeviceQuerySwapchainSupport(vc.Device.PhysicalDevice, vc.Surface)
	if err != nil {
		return nil, err
	}

	swapchain := &VulkanSwapchain{
		context: vc,
		ImageFormat: vk.SurfaceFormat{
			Format:     vk.Format(config.SurfaceFormat.Format),
			ColorSpace: vk.ColorSpace(config.SurfaceFormat.ColorSpace),
		},
		Extent: fromExtent(config.Extent),
	}

	swapchainCreateInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          vc.Surface,
		MinImageCount:    config.MinImageCount,
		ImageFormat:      swapchain.ImageFormat.Format,
		ImageColorSpace:  swapchain.ImageFormat.ColorSpace,
		ImageExtent:      swapchain.Extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		PreTransform:     support.Capabilities.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      vk.PresentMode(config.PresentMode),
		Clipped:          vk.True,
		OldSwapchain:     vk.NullSwapchain,
	}

	// Setup the queue family indices
	if !vc.Device.SharesQueueFamily() {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeConcurrent
		swapchainCreateInfo.QueueFamilyIndexCount = 2
		swapchainCreateInfo.PQueueFamilyIndices = []uint32{
			vc.Device.GraphicsQueueIndex,
			vc.Device.PresentQueueIndex,
		}
	} else {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeExclusive
	}

	err = vc.lockPool.SafeCall(SwapchainManagement, func() error {
		var handle vk.Swapchain
		if res := vk.CreateSwapchain(vc.Device.LogicalDevice, &swapchainCreateInfo, vc.Allocator, &handle); res != vk.Success {
			return resultError("vkCreateSwapchainKHR", res)
		}
		swapchain.Handle = handle

		var imageCount uint32
		if res := vk.GetSwapchainImages(vc.Device.LogicalDevice, handle, &imageCount, nil); res != vk.Success {
			return resultError("vkGetSwapchainImagesKHR", res)
		}
		swapchain.images = make([]vk.Image, imageCount)
		if res := vk.GetSwapchainImages(vc.Device.LogicalDevice, handle, &imageCount, swapchain.images); res != vk.Success {
			return resultError("vkGetSwapchainImagesKHR", res)
		}
		return nil
	})
	if err != nil {
		core.LogError(err.Error())
		swapchain.Destroy()
		return nil, err
	}

	core.LogDebug("Swapchain handle created with %d images.", len(swapchain.images))
	return swapchain, nil
}

func (vs *VulkanSwapchain) Images() ([]metadata.Image, error) {
	if vs.Handle == vk.NullSwapchain {
		return nil, fmt.Errorf("swapchain already destroyed")
	}
	out := make([]metadata.Image, len(vs.images))
	for i, img := range vs.images {
		out[i] = img
	}
	return out, nil
}

func (vs *VulkanSwapchain) AcquireNextImage(timeoutNs uint64, signal metadata.Semaphore) (uint32, error) {
	semaphore, ok := signal.(*VulkanSemaphore)
	if !ok {
		return 0, fmt.Errorf("acquire needs a *VulkanSemaphore, got %T", signal)
	}

	var imageIndex uint32
	err := vs.context.lockPool.SafeCall(SwapchainManagement, func() error {
		res := vk.AcquireNextImage(vs.context.Device.LogicalDevice, vs.Handle, timeoutNs, semaphore.Handle, vk.NullFence, &imageIndex)
		return resultError("vkAcquireNextImageKHR", res)
	})
	return imageIndex, err
}

// Destroy releases the swapchain handle. The images belong to it and go
// away with it.
func (vs *VulkanSwapchain) Destroy() {
	if vs.Handle != vk.NullSwapchain {
		vk.DestroySwapchain(vs.context.Device.LogicalDevice, vs.Handle, vs.context.Allocator)
		vs.Handle = vk.NullSwapchain
	}
	vs.images = nil
}

func (vc *VulkanContext) CreateImageView(image metadata.Image, format metadata.Format) (metadata.ImageView, error) {
	img, ok := image.(vk.Image)
	if !ok {
		return nil, fmt.Errorf("image view needs a vk.Image, got %T", image)
	}

	viewInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img,
		ViewType: vk.ImageViewType2d,
		Format:   vk.Format(format),
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleIdentity,
			G: vk.ComponentSwizzleIdentity,
			B: vk.ComponentSwizzleIdentity,
			A: vk.ComponentSwizzleIdentity,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}

	view := &VulkanImageView{context: vc}
	err := vc.lockPool.SafeCall(ImageManagement, func() error {
		var handle vk.ImageView
		if res := vk.CreateImageView(vc.Device.LogicalDevice, &viewInfo, vc.Allocator, &handle); res != vk.Success {
			return resultError("vkCreateImageView", res)
		}
		view.Handle = handle
		return nil
	})
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	return view, nil
}

func (v *VulkanImageView) Destroy() {
	if v.Handle != vk.NullImageView {
		vk.DestroyImageView(v.context.Device.LogicalDevice, v.Handle, v.context.Allocator)
		v.Handle = vk.NullImageView
	}
}

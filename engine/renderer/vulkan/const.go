package vulkan

// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR, not exported by the bindings.
const instanceCreateEnumeratePortabilityBit = 0x00000001

var validationLayers = []string{
	"VK_LAYER_KHRONOS_validation",
}

var deviceExtensions = []string{
	"VK_KHR_swapchain",
}

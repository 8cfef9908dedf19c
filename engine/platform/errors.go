package platform

import "errors"

var errVulkanUnsupported = errors.New("vulkan loader or ICD not found")

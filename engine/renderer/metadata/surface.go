package metadata

import "math"

// UndefinedExtent is the sentinel a surface reports in its current extent
// when the swapchain decides the size itself.
const UndefinedExtent uint32 = math.MaxUint32

type Extent2D struct {
	Width  uint32
	Height uint32
}

func (e Extent2D) IsZero() bool {
	return e.Width == 0 || e.Height == 0
}

// Format values mirror VkFormat so backends can convert them directly.
type Format uint32

const (
	FormatUndefined       Format = 0
	FormatR8g8b8a8Unorm   Format = 37
	FormatR8g8b8a8Srgb    Format = 43
	FormatB8g8r8a8Unorm   Format = 44
	FormatB8g8r8a8Srgb    Format = 50
	FormatR32g32Sfloat    Format = 103
	FormatR32g32b32Sfloat Format = 106
)

// ColorSpace values mirror VkColorSpaceKHR.
type ColorSpace uint32

const (
	ColorSpaceSrgbNonlinear ColorSpace = 0
)

type SurfaceFormat struct {
	Format     Format
	ColorSpace ColorSpace
}

// PresentMode values mirror VkPresentModeKHR.
type PresentMode uint32

const (
	PresentModeImmediate   PresentMode = 0
	PresentModeMailbox     PresentMode = 1
	PresentModeFifo        PresentMode = 2
	PresentModeFifoRelaxed PresentMode = 3
)

func (p PresentMode) String() string {
	switch p {
	case PresentModeImmediate:
		return "immediate"
	case PresentModeMailbox:
		return "mailbox"
	case PresentModeFifo:
		return "fifo"
	case PresentModeFifoRelaxed:
		return "fifo_relaxed"
	default:
		return "unknown"
	}
}

type SurfaceCapabilities struct {
	MinImageCount uint32
	// Zero means there is no upper bound.
	MaxImageCount  uint32
	CurrentExtent  Extent2D
	MinImageExtent Extent2D
	MaxImageExtent Extent2D
}

type SwapchainSupport struct {
	Capabilities SurfaceCapabilities
	Formats      []SurfaceFormat
	PresentModes []PresentMode
}

type ClearColor [4]float32

// IndexType values mirror VkIndexType.
type IndexType uint32

const (
	IndexTypeUint16 IndexType = 0
	IndexTypeUint32 IndexType = 1
)

type PipelineStage uint32

const (
	PipelineStageColorAttachmentOutput PipelineStage = 0x00000400
)

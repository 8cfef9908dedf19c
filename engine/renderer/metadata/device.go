package metadata

// Every wrapper around a native handle releases it through Destroy. Calling
// Destroy twice is a no-op.
type Destroyer interface {
	Destroy()
}

// Image is a presentable image owned by its swapchain; it is never destroyed
// on its own.
type Image interface{}

type ImageView interface {
	Destroyer
}

type RenderPass interface {
	Destroyer
}

type Pipeline interface {
	Destroyer
}

type Framebuffer interface {
	Destroyer
}

type Buffer interface {
	Destroyer
}

// Semaphore orders queue operations on the GPU only.
type Semaphore interface {
	Destroyer
}

// Fence is the host visible completion signal of a submission.
type Fence interface {
	Destroyer
	// Wait blocks until the fence is signaled or timeoutNs elapses, in which
	// case it returns core.ErrFenceTimeout.
	Wait(timeoutNs uint64) error
	Reset() error
}

type Swapchain interface {
	Destroyer
	Images() ([]Image, error)
	// AcquireNextImage returns core.ErrSwapchainOutOfDate or
	// core.ErrSwapchainSuboptimal when the surface changed underneath.
	AcquireNextImage(timeoutNs uint64, signal Semaphore) (uint32, error)
}

type RenderPassBegin struct {
	RenderPass  RenderPass
	Framebuffer Framebuffer
	Extent      Extent2D
	ClearColor  ClearColor
}

type CommandBuffer interface {
	Reset() error
	Begin(singleUse bool) error
	BeginRenderPass(info RenderPassBegin)
	BindPipeline(pipeline Pipeline)
	BindVertexBuffer(buffer Buffer, offset uint64)
	BindIndexBuffer(buffer Buffer, offset uint64, indexType IndexType)
	DrawIndexed(indexCount, instanceCount uint32)
	EndRenderPass()
	End() error
}

type SwapchainCreateConfig struct {
	MinImageCount uint32
	SurfaceFormat SurfaceFormat
	Extent        Extent2D
	PresentMode   PresentMode
}

type VertexAttribute struct {
	Location uint32
	Format   Format
	Offset   uint32
}

type PipelineConfig struct {
	RenderPass     RenderPass
	Extent         Extent2D
	VertexShader   string
	FragmentShader string
	VertexStride   uint32
	Attributes     []VertexAttribute
}

type SubmitInfo struct {
	CommandBuffer   CommandBuffer
	WaitSemaphore   Semaphore
	WaitStage       PipelineStage
	SignalSemaphore Semaphore
	Fence           Fence
}

type PresentInfo struct {
	Swapchain     Swapchain
	ImageIndex    uint32
	WaitSemaphore Semaphore
}

// Device is the logical device together with its graphics/present queues and
// the surface it presents to.
type Device interface {
	SwapchainSupport() (*SwapchainSupport, error)
	CreateSwapchain(config SwapchainCreateConfig) (Swapchain, error)
	CreateImageView(image Image, format Format) (ImageView, error)
	CreateRenderPass(format Format) (RenderPass, error)
	CreatePipeline(config PipelineConfig) (Pipeline, error)
	CreateFramebuffer(pass RenderPass, view ImageView, extent Extent2D) (Framebuffer, error)
	CreateSemaphore() (Semaphore, error)
	CreateFence(signaled bool) (Fence, error)
	AllocateCommandBuffers(count uint32) ([]CommandBuffer, error)
	FreeCommandBuffers(buffers []CommandBuffer)
	// CreateMeshBuffers uploads the mesh into device local memory.
	CreateMeshBuffers(mesh *Mesh) (vertices Buffer, indices Buffer, err error)
	Submit(info SubmitInfo) error
	// Present returns core.ErrSwapchainOutOfDate or core.ErrSwapchainSuboptimal
	// for a stale swapchain.
	Present(info PresentInfo) error
	WaitIdle() error
}

// Window is the drawable the device presents to.
type Window interface {
	FramebufferSize() (width, height int)
	// WaitEvents blocks until the windowing system delivers at least one event.
	WaitEvents()
	// ShouldClose reports whether the window was asked to close.
	ShouldClose() bool
}

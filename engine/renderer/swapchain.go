package renderer

import (
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/exp/slices"

	"github.com/spaghettifunk/vkquad/engine/core"
	"github.com/spaghettifunk/vkquad/engine/math"
	"github.com/spaghettifunk/vkquad/engine/renderer/metadata"
)

// PreferredSurfaceFormat is picked whenever the surface offers it.
var PreferredSurfaceFormat = metadata.SurfaceFormat{
	Format:     metadata.FormatB8g8r8a8Srgb,
	ColorSpace: metadata.ColorSpaceSrgbNonlinear,
}

// SwapchainImage keeps a presentable image together with the view and
// framebuffer built on top of it, so the three can never drift apart.
type SwapchainImage struct {
	Image       metadata.Image
	View        metadata.ImageView
	Framebuffer metadata.Framebuffer
}

// Swapchain is one generation of the presentable image chain and everything
// whose layout depends on its format and extent.
type Swapchain struct {
	ID          uuid.UUID
	Generation  uint64
	Handle      metadata.Swapchain
	Format      metadata.SurfaceFormat
	PresentMode metadata.PresentMode
	Extent      metadata.Extent2D
	RenderPass  metadata.RenderPass
	Pipeline    metadata.Pipeline
	Images      []*SwapchainImage
}

func (sc *Swapchain) ImageCount() int {
	return len(sc.Images)
}

// destroy releases resources in reverse creation order. Works on partially
// built swapchains.
func (sc *Swapchain) destroy() {
	for _, img := range sc.Images {
		if img.Framebuffer != nil {
			img.Framebuffer.Destroy()
			img.Framebuffer = nil
		}
	}
	if sc.Pipeline != nil {
		sc.Pipeline.Destroy()
		sc.Pipeline = nil
	}
	if sc.RenderPass != nil {
		sc.RenderPass.Destroy()
		sc.RenderPass = nil
	}
	for _, img := range sc.Images {
		if img.View != nil {
			img.View.Destroy()
			img.View = nil
		}
	}
	sc.Images = nil
	if sc.Handle != nil {
		sc.Handle.Destroy()
		sc.Handle = nil
	}
}

type PipelineShaders struct {
	Vertex   string
	Fragment string
}

type SwapchainManager struct {
	device     metadata.Device
	shaders    PipelineShaders
	generation uint64
	current    *Swapchain
}

func NewSwapchainManager(device metadata.Device, shaders PipelineShaders) *SwapchainManager {
	return &SwapchainManager{
		device:  device,
		shaders: shaders,
	}
}

func (sm *SwapchainManager) Current() *Swapchain {
	return sm.current
}

// ID identifies the current build, or is the zero UUID when none exists.
func (sm *SwapchainManager) ID() uuid.UUID {
	if sm.current == nil {
		return uuid.Nil
	}
	return sm.current.ID
}

// Generation counts successful builds.
func (sm *SwapchainManager) Generation() uint64 {
	return sm.generation
}

// Build creates the swapchain, one view and one framebuffer per image, and the
// render pass and pipeline matching the chosen format and extent. width and
// height are the drawable size in pixels.
func (sm *SwapchainManager) Build(width, height uint32) error {
	if sm.current != nil {
		return core.NewInvariant("swapchain build", fmt.Errorf("previous swapchain generation %d was not torn down", sm.current.Generation))
	}

	support, err := sm.device.SwapchainSupport()
	if err != nil {
		core.LogError("failed to query swapchain support: %s", err)
		return core.NewFatal("swapchain support", err)
	}

	imageCount, err := ChooseImageCount(support.Capabilities)
	if err != nil {
		return core.NewFatal("swapchain image count", err)
	}
	format, err := ChooseSurfaceFormat(support.Formats)
	if err != nil {
		return core.NewFatal("swapchain format", err)
	}
	presentMode, err := ChoosePresentMode(support.PresentModes)
	if err != nil {
		return core.NewFatal("swapchain present mode", err)
	}
	extent := ChooseExtent(support.Capabilities, width, height)

	sc := &Swapchain{
		ID:          uuid.New(),
		Generation:  sm.generation + 1,
		Format:      format,
		PresentMode: presentMode,
		Extent:      extent,
	}
	if err := sm.populate(sc, imageCount); err != nil {
		sc.destroy()
		return err
	}

	sm.generation = sc.Generation
	sm.current = sc
	core.LogInfo("Swapchain %s (generation %d) created: %d images, %dx%d, %s.",
		sc.ID, sc.Generation, len(sc.Images), extent.Width, extent.Height, presentMode)
	return nil
}

func (sm *SwapchainManager) populate(sc *Swapchain, imageCount uint32) error {
	handle, err := sm.device.CreateSwapchain(metadata.SwapchainCreateConfig{
		MinImageCount: imageCount,
		SurfaceFormat: sc.Format,
		Extent:        sc.Extent,
		PresentMode:   sc.PresentMode,
	})
	if err != nil {
		core.LogError("failed to create swapchain: %s", err)
		return core.NewFatal("create swapchain", err)
	}
	sc.Handle = handle

	images, err := handle.Images()
	if err != nil {
		core.LogError("failed to get swapchain images: %s", err)
		return core.NewFatal("swapchain images", err)
	}
	if len(images) == 0 {
		return core.NewFatal("swapchain images", core.ErrNoImageCount)
	}

	sc.Images = make([]*SwapchainImage, 0, len(images))
	for i, image := range images {
		view, err := sm.device.CreateImageView(image, sc.Format.Format)
		if err != nil {
			core.LogError("failed to create image view %d: %s", i, err)
			return core.NewFatal("create image view", err)
		}
		sc.Images = append(sc.Images, &SwapchainImage{Image: image, View: view})
	}

	pass, err := sm.device.CreateRenderPass(sc.Format.Format)
	if err != nil {
		core.LogError("failed to create render pass: %s", err)
		return core.NewFatal("create render pass", err)
	}
	sc.RenderPass = pass

	pipeline, err := sm.device.CreatePipeline(metadata.PipelineConfig{
		RenderPass:     pass,
		Extent:         sc.Extent,
		VertexShader:   sm.shaders.Vertex,
		FragmentShader: sm.shaders.Fragment,
		VertexStride:   metadata.VertexStride,
		Attributes:     metadata.VertexAttributes(),
	})
	if err != nil {
		core.LogError("failed to create graphics pipeline: %s", err)
		return core.NewFatal("create pipeline", err)
	}
	sc.Pipeline = pipeline

	for i, img := range sc.Images {
		fb, err := sm.device.CreateFramebuffer(pass, img.View, sc.Extent)
		if err != nil {
			core.LogError("failed to create framebuffer %d: %s", i, err)
			return core.NewFatal("create framebuffer", err)
		}
		img.Framebuffer = fb
	}
	return nil
}

// Teardown destroys framebuffers, pipeline, render pass, views and finally the
// swapchain. The caller guarantees the GPU no longer references any of them.
func (sm *SwapchainManager) Teardown() {
	if sm.current == nil {
		return
	}
	core.LogDebug("Destroying swapchain %s (generation %d).", sm.current.ID, sm.current.Generation)
	sm.current.destroy()
	sm.current = nil
}

// ChooseImageCount asks for one image more than the minimum so the driver
// never blocks the acquire on its own internal work, capped by the maximum.
func ChooseImageCount(caps metadata.SurfaceCapabilities) (uint32, error) {
	if caps.MinImageCount == 0 && caps.MaxImageCount == 0 {
		return 0, core.ErrNoImageCount
	}
	if caps.MaxImageCount > 0 && caps.MaxImageCount < caps.MinImageCount {
		return 0, fmt.Errorf("%w: min %d > max %d", core.ErrNoImageCount, caps.MinImageCount, caps.MaxImageCount)
	}
	imageCount := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && imageCount > caps.MaxImageCount {
		imageCount = caps.MaxImageCount
	}
	return imageCount, nil
}

func ChooseSurfaceFormat(formats []metadata.SurfaceFormat) (metadata.SurfaceFormat, error) {
	if len(formats) == 0 {
		return metadata.SurfaceFormat{}, core.ErrNoSurfaceFormat
	}
	if i := slices.Index(formats, PreferredSurfaceFormat); i >= 0 {
		return formats[i], nil
	}
	return formats[0], nil
}

// ChoosePresentMode prefers mailbox and falls back to FIFO, which every
// surface supports.
func ChoosePresentMode(modes []metadata.PresentMode) (metadata.PresentMode, error) {
	if len(modes) == 0 {
		return 0, core.ErrNoPresentMode
	}
	if slices.Contains(modes, metadata.PresentModeMailbox) {
		return metadata.PresentModeMailbox, nil
	}
	return metadata.PresentModeFifo, nil
}

// ChooseExtent uses the surface's current extent when it dictates one,
// otherwise the drawable size clamped to what the surface allows.
func ChooseExtent(caps metadata.SurfaceCapabilities, width, height uint32) metadata.Extent2D {
	if caps.CurrentExtent.Width != metadata.UndefinedExtent {
		return caps.CurrentExtent
	}
	return metadata.Extent2D{
		Width:  math.Clamp(width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
		Height: math.Clamp(height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
	}
}

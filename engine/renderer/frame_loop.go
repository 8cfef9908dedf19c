package renderer

import (
	"errors"
	"fmt"
	gomath "math"
	"sync/atomic"

	"github.com/spaghettifunk/vkquad/engine/core"
	"github.com/spaghettifunk/vkquad/engine/renderer/metadata"
)

type FrameState uint8

const (
	FrameStateIdle FrameState = iota
	FrameStateAcquiring
	FrameStateRecording
	FrameStateSubmitting
	FrameStatePresenting
)

func (s FrameState) String() string {
	switch s {
	case FrameStateAcquiring:
		return "acquiring"
	case FrameStateRecording:
		return "recording"
	case FrameStateSubmitting:
		return "submitting"
	case FrameStatePresenting:
		return "presenting"
	default:
		return "idle"
	}
}

type FrameOutcome uint8

const (
	// FrameRendered means the frame was submitted and handed to presentation.
	FrameRendered FrameOutcome = iota
	// FrameSkipped means the iteration was abandoned, usually to rebuild the
	// swapchain.
	FrameSkipped
)

// FrameLoop drives acquire, record, submit and present for one window. It
// must be used from a single goroutine; only NotifyResized and
// RequestRecreate may be called from elsewhere.
type FrameLoop struct {
	device metadata.Device
	window metadata.Window
	config Config

	swapchains *SwapchainManager
	sync       *FrameSyncSet
	recorder   *CommandRecorder

	vertexBuffer metadata.Buffer
	indexBuffer  metadata.Buffer

	frameCounter uint64
	state        FrameState

	resized           atomic.Bool
	recreateRequested atomic.Bool
	shutdown          bool
}

// New uploads the mesh, builds the first swapchain for the window's current
// drawable size and allocates the frame slots.
func New(device metadata.Device, window metadata.Window, config Config) (*FrameLoop, error) {
	if err := config.Validate(); err != nil {
		return nil, core.NewFatal("renderer config", err)
	}

	fl := &FrameLoop{
		device: device,
		window: window,
		config: config,
		swapchains: NewSwapchainManager(device, PipelineShaders{
			Vertex:   config.VertexShader,
			Fragment: config.FragmentShader,
		}),
	}

	vb, ib, err := device.CreateMeshBuffers(config.Mesh)
	if err != nil {
		core.LogError("failed to upload mesh: %s", err)
		return nil, core.NewFatal("create mesh buffers", err)
	}
	fl.vertexBuffer, fl.indexBuffer = vb, ib

	width, height, err := fl.waitForDrawable()
	if err != nil {
		fl.release()
		return nil, err
	}
	if err := fl.swapchains.Build(width, height); err != nil {
		fl.release()
		return nil, err
	}

	fl.sync, err = NewFrameSyncSet(device, config.MaxFramesInFlight, config.FenceTimeout)
	if err != nil {
		fl.release()
		return nil, err
	}

	fl.recorder = NewCommandRecorder(vb, ib, config.Mesh.IndexCount(), config.ClearColor)
	core.LogInfo("Renderer initialized with %d frames in flight.", config.MaxFramesInFlight)
	return fl, nil
}

// NotifyResized marks the drawable as resized. The next DrawFrame rebuilds
// the swapchain instead of rendering.
func (fl *FrameLoop) NotifyResized() {
	fl.resized.Store(true)
}

// RequestRecreate asks for a swapchain and pipeline rebuild on the next
// frame, for example after the shaders changed on disk.
func (fl *FrameLoop) RequestRecreate() {
	fl.recreateRequested.Store(true)
}

func (fl *FrameLoop) FrameCounter() uint64 {
	return fl.frameCounter
}

func (fl *FrameLoop) State() FrameState {
	return fl.state
}

func (fl *FrameLoop) Swapchain() *Swapchain {
	return fl.swapchains.Current()
}

func (fl *FrameLoop) Swapchains() *SwapchainManager {
	return fl.swapchains
}

func (fl *FrameLoop) Sync() *FrameSyncSet {
	return fl.sync
}

// DrawFrame runs one iteration of the frame loop on slot
// FrameCounter() % MaxFramesInFlight.
func (fl *FrameLoop) DrawFrame() (FrameOutcome, error) {
	if fl.shutdown {
		return FrameSkipped, core.NewInvariant("draw frame", fmt.Errorf("renderer is shut down"))
	}
	defer func() { fl.state = FrameStateIdle }()

	i := int(fl.frameCounter % uint64(fl.sync.Len()))
	slot := fl.sync.Slot(i)
	sc := fl.swapchains.Current()
	if sc == nil {
		return FrameSkipped, core.NewInvariant("draw frame", fmt.Errorf("no swapchain"))
	}

	fl.state = FrameStateAcquiring
	if err := fl.sync.Wait(i); err != nil {
		core.LogError("failed waiting for frame slot %d: %s", i, err)
		return FrameSkipped, err
	}

	imageIndex, acquireErr := sc.Handle.AcquireNextImage(gomath.MaxUint64, slot.ImageAvailable)
	resized := fl.resized.Swap(false)
	requested := fl.recreateRequested.Swap(false)
	if acquireErr != nil && !core.IsStale(acquireErr) {
		core.LogError("failed to acquire swapchain image: %s", acquireErr)
		return FrameSkipped, core.NewFatal("acquire image", acquireErr)
	}
	if acquireErr != nil || resized || requested {
		switch {
		case acquireErr != nil:
			core.LogInfo("Swapchain %s reported %s, recreating.", sc.ID, acquireErr)
		case resized:
			core.LogInfo("Window resized, recreating swapchain %s.", sc.ID)
		default:
			core.LogInfo("Recreation requested for swapchain %s.", sc.ID)
		}
		// An out-of-date acquire never signals; every other path got an image.
		acquired := !errors.Is(acquireErr, core.ErrSwapchainOutOfDate)
		if err := fl.Recreate(); errors.Is(err, core.ErrWindowClosed) {
			// The old swapchain is intact; the caller sees the close request.
			core.LogInfo("Window closed while minimized, skipping recreation.")
			return FrameSkipped, nil
		} else if err != nil {
			return FrameSkipped, err
		}
		if acquired {
			if err := fl.sync.renewImageAvailable(i); err != nil {
				return FrameSkipped, err
			}
		}
		return FrameSkipped, nil
	}

	if err := fl.sync.WaitAndReset(i); err != nil {
		return FrameSkipped, err
	}

	fl.state = FrameStateRecording
	if err := fl.recorder.Record(slot.CommandBuffer, sc, imageIndex); err != nil {
		return FrameSkipped, err
	}

	fl.state = FrameStateSubmitting
	if err := fl.device.Submit(metadata.SubmitInfo{
		CommandBuffer:   slot.CommandBuffer,
		WaitSemaphore:   slot.ImageAvailable,
		WaitStage:       metadata.PipelineStageColorAttachmentOutput,
		SignalSemaphore: slot.RenderFinished,
		Fence:           slot.InFlight,
	}); err != nil {
		core.LogError("failed to submit draw command buffer: %s", err)
		return FrameSkipped, core.NewFatal("submit", err)
	}

	fl.state = FrameStatePresenting
	var presentErr error
	if err := fl.device.Present(metadata.PresentInfo{
		Swapchain:     sc.Handle,
		ImageIndex:    imageIndex,
		WaitSemaphore: slot.RenderFinished,
	}); err != nil {
		if core.IsStale(err) {
			core.LogDebug("Present reported %s, deferring to next acquire.", err)
		} else {
			core.LogWarn("failed to present image %d: %s", imageIndex, err)
			presentErr = core.NewPresent("present", err)
		}
	}

	fl.frameCounter++
	return FrameRendered, presentErr
}

// Recreate waits until the drawable has a non-zero size and the device is
// idle, then replaces the swapchain and everything derived from it. It returns
// core.ErrWindowClosed without touching the swapchain if the window is closed
// during the wait.
func (fl *FrameLoop) Recreate() error {
	width, height, err := fl.waitForDrawable()
	if err != nil {
		return err
	}
	// Restoring a minimized window reports a resize from inside WaitEvents;
	// the build below already uses that size.
	fl.resized.Store(false)

	if err := fl.device.WaitIdle(); err != nil {
		core.LogError("failed to wait for device idle: %s", err)
		return core.NewFatal("wait idle", err)
	}

	previous := fl.swapchains.ID()
	fl.swapchains.Teardown()
	if err := fl.swapchains.Build(width, height); err != nil {
		return err
	}
	core.LogInfo("Swapchain %s replaced by %s for drawable %dx%d.", previous, fl.swapchains.ID(), width, height)
	return nil
}

// waitForDrawable pumps window events until neither dimension is zero, which
// is what a minimized window reports. A close request ends the wait with
// core.ErrWindowClosed.
func (fl *FrameLoop) waitForDrawable() (uint32, uint32, error) {
	width, height := fl.window.FramebufferSize()
	if width <= 0 || height <= 0 {
		core.LogInfo("Drawable size is %dx%d, waiting for the window to be restored.", width, height)
	}
	for width <= 0 || height <= 0 {
		if fl.window.ShouldClose() {
			return 0, 0, core.ErrWindowClosed
		}
		fl.window.WaitEvents()
		width, height = fl.window.FramebufferSize()
	}
	return uint32(width), uint32(height), nil
}

// Shutdown drains the GPU and releases every resource the loop owns. If the
// device cannot be drained nothing is destroyed.
func (fl *FrameLoop) Shutdown() error {
	if fl.shutdown {
		return nil
	}
	if err := fl.device.WaitIdle(); err != nil {
		core.LogError("failed to wait for device idle on shutdown: %s", err)
		return core.NewFatal("wait idle", err)
	}
	fl.release()
	fl.shutdown = true
	core.LogInfo("Renderer shut down after %d frames.", fl.frameCounter)
	return nil
}

func (fl *FrameLoop) release() {
	fl.swapchains.Teardown()
	if fl.sync != nil {
		fl.sync.Destroy()
		fl.sync = nil
	}
	if fl.indexBuffer != nil {
		fl.indexBuffer.Destroy()
		fl.indexBuffer = nil
	}
	if fl.vertexBuffer != nil {
		fl.vertexBuffer.Destroy()
		fl.vertexBuffer = nil
	}
}

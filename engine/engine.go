package engine

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/spaghettifunk/vkquad/engine/assets"
	"github.com/spaghettifunk/vkquad/engine/core"
	"github.com/spaghettifunk/vkquad/engine/platform"
	"github.com/spaghettifunk/vkquad/engine/renderer"
	"github.com/spaghettifunk/vkquad/engine/renderer/vulkan"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
	// Everything has been released
	EngineStageShutdown
)

// FrameRenderer is the part of the frame loop the engine drives.
type FrameRenderer interface {
	DrawFrame() (renderer.FrameOutcome, error)
	NotifyResized()
	RequestRecreate()
	FrameCounter() uint64
	Shutdown() error
}

type Engine struct {
	currentStage Stage
	config       *Config
	isRunning    atomic.Bool

	platform     *platform.Platform
	device       *vulkan.VulkanContext
	frameLoop    FrameRenderer
	assetManager *assets.AssetManager

	clock          *core.Clock
	metrics        *core.FrameMetrics
	lastMetricsLog float64
}

func New(config *Config) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	level, err := core.ParseLogLevel(config.Application.LogLevel)
	if err != nil {
		return nil, err
	}
	core.SetLogLevel(level)

	return &Engine{
		currentStage: EngineStageUninitialized,
		config:       config,
		platform:     platform.New(),
		clock:        core.NewClock(),
		metrics:      core.NewFrameMetrics(),
	}, nil
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing

	// initialize events
	if !core.EventSystemInitialize() {
		return fmt.Errorf("failed to initialize the event system")
	}

	// register some events
	core.EventRegister(core.EVENT_CODE_APPLICATION_QUIT, e.onEvent)
	core.EventRegister(core.EVENT_CODE_KEY_PRESSED, e.onKey)
	core.EventRegister(core.EVENT_CODE_RESIZED, e.onResized)
	core.EventRegister(core.EVENT_CODE_ASSET_CHANGED, e.onAssetChanged)

	app := e.config.Application
	if err := e.platform.Startup(app.Name, app.StartPosX, app.StartPosY, app.StartWidth, app.StartHeight); err != nil {
		return err
	}

	device, err := vulkan.New(vulkan.Config{
		ApplicationName:  app.Name,
		EnableValidation: e.config.Renderer.EnableValidation,
	}, e.platform.Window)
	if err != nil {
		return core.NewFatal("create device", err)
	}
	e.device = device

	rendererConfig, err := e.config.RendererConfig()
	if err != nil {
		return core.NewFatal("renderer config", err)
	}
	frameLoop, err := renderer.New(device, e.platform, rendererConfig)
	if errors.Is(err, core.ErrWindowClosed) {
		// Run sees the close request on its first pump and returns.
		core.LogInfo("Window closed before it was ever drawable.")
		e.currentStage = EngineStageInitialized
		return nil
	}
	if err != nil {
		return err
	}
	e.frameLoop = frameLoop

	if e.config.Renderer.WatchShaders {
		am, err := assets.NewAssetManager()
		if err != nil {
			return err
		}
		e.assetManager = am
		if err := am.Watch(rendererConfig.VertexShader, rendererConfig.FragmentShader); err != nil {
			return err
		}
		core.LogInfo("Shader hot reload enabled.")
	}

	e.currentStage = EngineStageInitialized
	return nil
}

// Run renders until the window closes, Stop is called or the renderer
// reports an error it cannot continue from.
func (e *Engine) Run() error {
	e.currentStage = EngineStageRunning
	e.isRunning.Store(true)

	e.clock.Start()
	e.clock.Update()
	lastTime := e.clock.Elapsed()

	for e.isRunning.Load() {
		if !e.platform.PumpMessages() {
			core.LogInfo("Window close requested, shutting down.")
			e.isRunning.Store(false)
			break
		}

		if err := e.drawFrame(); err != nil {
			e.isRunning.Store(false)
			return err
		}

		e.clock.Update()
		currentTime := e.clock.Elapsed()
		e.recordFrame(currentTime, currentTime-lastTime)
		lastTime = currentTime
	}
	return nil
}

// drawFrame decides abort versus continue: present failures are logged and
// the loop keeps going, anything fatal ends the run.
func (e *Engine) drawFrame() error {
	_, err := e.frameLoop.DrawFrame()
	if err == nil {
		return nil
	}
	if core.KindOf(err) == core.ErrorKindPresent {
		core.LogWarn("frame %d: %s", e.frameLoop.FrameCounter(), err)
		return nil
	}
	core.LogError("renderer failed on frame %d: %s", e.frameLoop.FrameCounter(), err)
	return err
}

func (e *Engine) recordFrame(now, delta float64) {
	e.metrics.Update(delta)
	if now-e.lastMetricsLog >= 1.0 {
		fps, frameTime := e.metrics.Frame()
		core.LogDebug("FPS: %.0f, frame time: %.3f ms, frames: %d", fps, frameTime, e.frameLoop.FrameCounter())
		e.lastMetricsLog = now
	}
}

// Stop asks Run to return after the current frame. Safe to call from any
// goroutine.
func (e *Engine) Stop() {
	e.isRunning.Store(false)
	if e.platform.Window != nil {
		e.platform.RequestClose()
	}
}

// Shutdown releases everything in reverse creation order. When the GPU cannot
// be drained the device is left alive rather than destroyed under work.
func (e *Engine) Shutdown() error {
	if e.currentStage == EngineStageShutdown {
		return nil
	}
	e.currentStage = EngineStageShuttingDown

	var result error
	if e.assetManager != nil {
		if err := e.assetManager.Close(); err != nil {
			core.LogWarn("failed to stop the asset watcher: %s", err)
		}
		e.assetManager = nil
	}

	drained := true
	if e.frameLoop != nil {
		if err := e.frameLoop.Shutdown(); err != nil {
			result = err
			drained = false
		}
	}
	if e.device != nil && drained {
		e.device.Destroy()
		e.device = nil
	}
	if err := e.platform.Shutdown(); err != nil && result == nil {
		result = err
	}
	if err := core.EventSystemShutdown(); err != nil && result == nil {
		result = err
	}

	e.currentStage = EngineStageShutdown
	return result
}

func (e *Engine) onEvent(context core.EventContext) {
	switch context.Type {
	case core.EVENT_CODE_APPLICATION_QUIT:
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.isRunning.Store(false)
	}
}

func (e *Engine) onKey(context core.EventContext) {
	ke, ok := context.Data.(*core.KeyEvent)
	if !ok {
		core.LogError("wrong event associated with the event type `%d`", context.Type)
		return
	}

	switch ke.KeyCode {
	case core.KEY_ESCAPE:
		// NOTE: Technically firing an event to itself, but there may be other listeners.
		core.EventFire(core.EventContext{
			Type: core.EVENT_CODE_APPLICATION_QUIT,
		})
	case core.KEY_R:
		if e.frameLoop != nil {
			core.LogInfo("Manual swapchain recreation requested.")
			e.frameLoop.RequestRecreate()
		}
	}
}

func (e *Engine) onResized(context core.EventContext) {
	se, ok := context.Data.(*core.SystemEvent)
	if !ok {
		core.LogError("wrong event associated with the event type `%d`", context.Type)
		return
	}
	core.LogDebug("Window resize: %d, %d", se.WindowWidth, se.WindowHeight)
	if e.frameLoop != nil {
		e.frameLoop.NotifyResized()
	}
}

func (e *Engine) onAssetChanged(context core.EventContext) {
	ae, ok := context.Data.(*core.AssetEvent)
	if !ok {
		core.LogError("wrong event associated with the event type `%d`", context.Type)
		return
	}
	// A module that does not load would turn the rebuild into a fatal error.
	if _, err := vulkan.LoadSPIRV(ae.Path); err != nil {
		core.LogWarn("Ignoring change to %s, keeping the current pipeline: %s", ae.Path, err)
		return
	}
	core.LogInfo("Shader %s changed, rebuilding the pipeline.", ae.Path)
	if e.frameLoop != nil {
		e.frameLoop.RequestRecreate()
	}
}

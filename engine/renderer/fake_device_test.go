package renderer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"testing"

	"github.com/spaghettifunk/vkquad/engine/core"
	"github.com/spaghettifunk/vkquad/engine/renderer/metadata"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

// fakeHandle models a native object. refs counts live objects created on top
// of it; destroying a handle that is still referenced fails the test.
type fakeHandle struct {
	dev       *fakeDevice
	kind      string
	id        int
	deps      []*fakeHandle
	refs      int
	destroyed bool
}

func (h *fakeHandle) Destroy() {
	if h.destroyed {
		return
	}
	d := h.dev
	if h.refs > 0 {
		d.t.Errorf("destroying %s#%d while %d objects still reference it", h.kind, h.id, h.refs)
	}
	if d.pendingCount() > 0 {
		d.t.Errorf("destroying %s#%d while %d submissions are still executing", h.kind, h.id, d.pendingCount())
	}
	for _, dep := range h.deps {
		dep.refs--
	}
	h.destroyed = true
	delete(d.live, h)
	d.log("destroy " + h.kind)
}

type fakeSemaphore struct {
	*fakeHandle
	signaled bool
}

type fakeFence struct {
	*fakeHandle
	signaled bool
	pending  *fakeCommandBuffer
}

func (f *fakeFence) Wait(timeoutNs uint64) error {
	f.dev.fenceTimeouts = append(f.dev.fenceTimeouts, timeoutNs)
	if f.pending != nil {
		f.dev.retire(f)
	}
	if !f.signaled {
		return core.ErrFenceTimeout
	}
	return nil
}

func (f *fakeFence) Reset() error {
	if f.pending != nil {
		return fmt.Errorf("reset of fence#%d with pending work", f.id)
	}
	f.signaled = false
	return nil
}

type fakeCommand struct {
	name string
	args []any
}

type fakeCommandBuffer struct {
	dev       *fakeDevice
	id        int
	recording bool
	recorded  bool
	pending   bool
	singleUse bool
	commands  []fakeCommand
}

func (c *fakeCommandBuffer) push(name string, args ...any) {
	if !c.recording {
		c.dev.t.Errorf("%s on command buffer#%d outside of a recording scope", name, c.id)
	}
	c.commands = append(c.commands, fakeCommand{name: name, args: args})
}

func (c *fakeCommandBuffer) Reset() error {
	if c.pending {
		return core.NewInvariant("reset command buffer", fmt.Errorf("command buffer#%d is pending", c.id))
	}
	c.recording = false
	c.recorded = false
	c.commands = nil
	return nil
}

func (c *fakeCommandBuffer) Begin(singleUse bool) error {
	if c.pending {
		return fmt.Errorf("begin on pending command buffer#%d", c.id)
	}
	if c.recording || c.recorded {
		return fmt.Errorf("begin on command buffer#%d that was not reset", c.id)
	}
	c.recording = true
	c.singleUse = singleUse
	return nil
}

func (c *fakeCommandBuffer) BeginRenderPass(info metadata.RenderPassBegin) {
	c.push("begin render pass", info)
}

func (c *fakeCommandBuffer) BindPipeline(pipeline metadata.Pipeline) {
	c.push("bind pipeline", pipeline)
}

func (c *fakeCommandBuffer) BindVertexBuffer(buffer metadata.Buffer, offset uint64) {
	c.push("bind vertex buffer", buffer, offset)
}

func (c *fakeCommandBuffer) BindIndexBuffer(buffer metadata.Buffer, offset uint64, indexType metadata.IndexType) {
	c.push("bind index buffer", buffer, offset, indexType)
}

func (c *fakeCommandBuffer) DrawIndexed(indexCount, instanceCount uint32) {
	c.push("draw indexed", indexCount, instanceCount)
}

func (c *fakeCommandBuffer) EndRenderPass() {
	c.push("end render pass")
}

func (c *fakeCommandBuffer) End() error {
	if !c.recording {
		return fmt.Errorf("end on command buffer#%d outside of a recording scope", c.id)
	}
	c.recording = false
	c.recorded = true
	return nil
}

type fakeSwapchain struct {
	*fakeHandle
	config metadata.SwapchainCreateConfig
	images []metadata.Image
	next   uint32
}

func (s *fakeSwapchain) Images() ([]metadata.Image, error) {
	return s.images, nil
}

func (s *fakeSwapchain) AcquireNextImage(timeoutNs uint64, signal metadata.Semaphore) (uint32, error) {
	d := s.dev
	d.acquires++
	var err error
	if len(d.acquireResults) > 0 {
		err = d.acquireResults[0]
		d.acquireResults = d.acquireResults[1:]
	}
	if err != nil && !errors.Is(err, core.ErrSwapchainSuboptimal) {
		return 0, err
	}
	sem := signal.(*fakeSemaphore)
	if sem.signaled {
		d.t.Errorf("acquire signals semaphore#%d which is already signaled", sem.id)
	}
	sem.signaled = true
	index := s.next
	s.next = (s.next + 1) % uint32(len(s.images))
	return index, err
}

type fakeSubmit struct {
	buffer *fakeCommandBuffer
	fence  *fakeFence
	commands []fakeCommand
}

type fakePresent struct {
	swapchain  *fakeSwapchain
	imageIndex uint32
}

// fakeDevice implements metadata.Device. GPU work submitted to it completes
// lazily, the moment its fence is waited on or the device is drained.
type fakeDevice struct {
	t *testing.T

	support metadata.SwapchainSupport
	nextID  int
	live    map[*fakeHandle]bool
	events  []string

	acquireResults []error
	presentResults []error
	createErrors   map[string]error
	waitIdleErr    error

	pending       []*fakeFence
	maxPending    int
	submits       []fakeSubmit
	presents      []fakePresent
	acquires      int
	waitIdles     int
	fenceTimeouts []uint64
	swapchains    []metadata.SwapchainCreateConfig

	onSubmit func()
}

func newFakeDevice(t *testing.T) *fakeDevice {
	return &fakeDevice{
		t: t,
		support: metadata.SwapchainSupport{
			Capabilities: metadata.SurfaceCapabilities{
				MinImageCount:  2,
				MaxImageCount:  3,
				CurrentExtent:  metadata.Extent2D{Width: metadata.UndefinedExtent, Height: metadata.UndefinedExtent},
				MinImageExtent: metadata.Extent2D{Width: 1, Height: 1},
				MaxImageExtent: metadata.Extent2D{Width: 4096, Height: 4096},
			},
			Formats: []metadata.SurfaceFormat{
				{Format: metadata.FormatB8g8r8a8Unorm, ColorSpace: metadata.ColorSpaceSrgbNonlinear},
				{Format: metadata.FormatB8g8r8a8Srgb, ColorSpace: metadata.ColorSpaceSrgbNonlinear},
			},
			PresentModes: []metadata.PresentMode{metadata.PresentModeFifo, metadata.PresentModeMailbox},
		},
		live:         make(map[*fakeHandle]bool),
		createErrors: make(map[string]error),
	}
}

func (d *fakeDevice) log(event string) {
	d.events = append(d.events, event)
}

func (d *fakeDevice) handle(kind string, deps ...*fakeHandle) (*fakeHandle, error) {
	if err := d.createErrors[kind]; err != nil {
		return nil, err
	}
	d.nextID++
	h := &fakeHandle{dev: d, kind: kind, id: d.nextID, deps: deps}
	for _, dep := range deps {
		if dep.destroyed {
			d.t.Errorf("creating %s on top of destroyed %s#%d", kind, dep.kind, dep.id)
		}
		dep.refs++
	}
	d.live[h] = true
	d.log("create " + kind)
	return h, nil
}

func (d *fakeDevice) liveCount(kind string) int {
	n := 0
	for h := range d.live {
		if h.kind == kind {
			n++
		}
	}
	return n
}

func (d *fakeDevice) pendingCount() int {
	return len(d.pending)
}

func (d *fakeDevice) retire(f *fakeFence) {
	f.pending.pending = false
	f.pending = nil
	f.signaled = true
	for i, p := range d.pending {
		if p == f {
			d.pending = append(d.pending[:i], d.pending[i+1:]...)
			break
		}
	}
}

func (d *fakeDevice) SwapchainSupport() (*metadata.SwapchainSupport, error) {
	if err := d.createErrors["support"]; err != nil {
		return nil, err
	}
	support := d.support
	return &support, nil
}

func (d *fakeDevice) CreateSwapchain(config metadata.SwapchainCreateConfig) (metadata.Swapchain, error) {
	if config.Extent.IsZero() {
		d.t.Errorf("swapchain created with zero extent %+v", config.Extent)
	}
	h, err := d.handle("swapchain")
	if err != nil {
		return nil, err
	}
	d.swapchains = append(d.swapchains, config)
	sc := &fakeSwapchain{fakeHandle: h, config: config}
	for i := uint32(0); i < config.MinImageCount; i++ {
		sc.images = append(sc.images, h)
	}
	return sc, nil
}

func (d *fakeDevice) CreateImageView(image metadata.Image, format metadata.Format) (metadata.ImageView, error) {
	return d.handle("image view", image.(*fakeHandle))
}

func (d *fakeDevice) CreateRenderPass(format metadata.Format) (metadata.RenderPass, error) {
	return d.handle("render pass")
}

func (d *fakeDevice) CreatePipeline(config metadata.PipelineConfig) (metadata.Pipeline, error) {
	if config.VertexStride != metadata.VertexStride || len(config.Attributes) != 2 {
		d.t.Errorf("unexpected vertex layout %+v", config)
	}
	return d.handle("pipeline", config.RenderPass.(*fakeHandle))
}

func (d *fakeDevice) CreateFramebuffer(pass metadata.RenderPass, view metadata.ImageView, extent metadata.Extent2D) (metadata.Framebuffer, error) {
	return d.handle("framebuffer", pass.(*fakeHandle), view.(*fakeHandle))
}

func (d *fakeDevice) CreateSemaphore() (metadata.Semaphore, error) {
	h, err := d.handle("semaphore")
	if err != nil {
		return nil, err
	}
	return &fakeSemaphore{fakeHandle: h}, nil
}

func (d *fakeDevice) CreateFence(signaled bool) (metadata.Fence, error) {
	h, err := d.handle("fence")
	if err != nil {
		return nil, err
	}
	return &fakeFence{fakeHandle: h, signaled: signaled}, nil
}

func (d *fakeDevice) AllocateCommandBuffers(count uint32) ([]metadata.CommandBuffer, error) {
	if err := d.createErrors["command buffer"]; err != nil {
		return nil, err
	}
	buffers := make([]metadata.CommandBuffer, count)
	for i := range buffers {
		d.nextID++
		buffers[i] = &fakeCommandBuffer{dev: d, id: d.nextID}
	}
	d.log("allocate command buffers")
	return buffers, nil
}

func (d *fakeDevice) FreeCommandBuffers(buffers []metadata.CommandBuffer) {
	for _, b := range buffers {
		if b.(*fakeCommandBuffer).pending {
			d.t.Errorf("freeing pending command buffer#%d", b.(*fakeCommandBuffer).id)
		}
	}
	d.log("free command buffers")
}

func (d *fakeDevice) CreateMeshBuffers(mesh *metadata.Mesh) (metadata.Buffer, metadata.Buffer, error) {
	vb, err := d.handle("buffer")
	if err != nil {
		return nil, nil, err
	}
	ib, err := d.handle("buffer")
	if err != nil {
		vb.Destroy()
		return nil, nil, err
	}
	return vb, ib, nil
}

func (d *fakeDevice) Submit(info metadata.SubmitInfo) error {
	if d.onSubmit != nil {
		d.onSubmit()
	}
	if err := d.createErrors["submit"]; err != nil {
		return err
	}
	cmd := info.CommandBuffer.(*fakeCommandBuffer)
	fence := info.Fence.(*fakeFence)
	wait := info.WaitSemaphore.(*fakeSemaphore)
	signal := info.SignalSemaphore.(*fakeSemaphore)

	if !cmd.recorded || cmd.pending {
		d.t.Errorf("submitting command buffer#%d that is not in the executable state", cmd.id)
	}
	if fence.signaled || fence.pending != nil {
		d.t.Errorf("submitting with fence#%d that was not reset", fence.id)
	}
	if !wait.signaled {
		d.t.Errorf("submit waits on semaphore#%d that nothing signals", wait.id)
	}
	if info.WaitStage != metadata.PipelineStageColorAttachmentOutput {
		d.t.Errorf("unexpected wait stage %#x", info.WaitStage)
	}
	wait.signaled = false
	signal.signaled = true

	cmd.pending = true
	fence.pending = cmd
	d.pending = append(d.pending, fence)
	if len(d.pending) > d.maxPending {
		d.maxPending = len(d.pending)
	}
	d.submits = append(d.submits, fakeSubmit{buffer: cmd, fence: fence, commands: cmd.commands})
	d.log("submit")
	return nil
}

func (d *fakeDevice) Present(info metadata.PresentInfo) error {
	wait := info.WaitSemaphore.(*fakeSemaphore)
	if !wait.signaled {
		d.t.Errorf("present waits on semaphore#%d that nothing signals", wait.id)
	}
	wait.signaled = false
	d.presents = append(d.presents, fakePresent{swapchain: info.Swapchain.(*fakeSwapchain), imageIndex: info.ImageIndex})
	d.log("present")
	if len(d.presentResults) > 0 {
		err := d.presentResults[0]
		d.presentResults = d.presentResults[1:]
		return err
	}
	return nil
}

func (d *fakeDevice) WaitIdle() error {
	d.waitIdles++
	d.log("wait idle")
	if d.waitIdleErr != nil {
		return d.waitIdleErr
	}
	for len(d.pending) > 0 {
		d.retire(d.pending[0])
	}
	return nil
}

// fakeWindow reports width x height; every WaitEvents call applies the next
// queued size and then runs onWait, the way glfw runs callbacks from inside
// its event pump.
type fakeWindow struct {
	t      *testing.T
	width  int
	height int
	queued [][2]int
	waits  int
	closed bool
	onWait func(w *fakeWindow)
}

func (w *fakeWindow) FramebufferSize() (int, int) {
	return w.width, w.height
}

func (w *fakeWindow) WaitEvents() {
	w.waits++
	if len(w.queued) == 0 && w.onWait == nil {
		w.t.Fatalf("WaitEvents called with no pending window events")
	}
	if len(w.queued) > 0 {
		w.width, w.height = w.queued[0][0], w.queued[0][1]
		w.queued = w.queued[1:]
	}
	if w.onWait != nil {
		w.onWait(w)
	}
}

func (w *fakeWindow) ShouldClose() bool {
	return w.closed
}

func newTestLoop(t *testing.T) (*FrameLoop, *fakeDevice, *fakeWindow) {
	t.Helper()
	dev := newFakeDevice(t)
	win := &fakeWindow{t: t, width: 800, height: 600}
	fl, err := New(dev, win, DefaultConfig())
	if err != nil {
		t.Fatalf("New() failed: %s", err)
	}
	return fl, dev, win
}

func drawFrames(t *testing.T, fl *FrameLoop, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		outcome, err := fl.DrawFrame()
		if err != nil {
			t.Fatalf("frame %d: %s", i, err)
		}
		if outcome != FrameRendered {
			t.Fatalf("frame %d: expected a rendered frame", i)
		}
	}
}

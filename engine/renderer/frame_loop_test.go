package renderer

import (
	"errors"
	"testing"

	"github.com/spaghettifunk/vkquad/engine/core"
	"github.com/spaghettifunk/vkquad/engine/renderer/metadata"
)

func TestTenFramesEndToEnd(t *testing.T) {
	fl, dev, _ := newTestLoop(t)
	start := fl.FrameCounter()

	for i := 0; i < 10; i++ {
		drawFrames(t, fl, 1)
		if dev.liveCount("fence") != int(DefaultMaxFramesInFlight) || dev.liveCount("semaphore") != 2*int(DefaultMaxFramesInFlight) {
			t.Fatalf("frame %d: expected %d sync triples, got %d fences and %d semaphores",
				i, DefaultMaxFramesInFlight, dev.liveCount("fence"), dev.liveCount("semaphore"))
		}
	}

	if fl.FrameCounter()-start != 10 {
		t.Errorf("expected the frame counter to advance by 10, got %d", fl.FrameCounter()-start)
	}
	if len(dev.submits) != 10 || len(dev.presents) != 10 {
		t.Errorf("expected 10 submits and presents, got %d and %d", len(dev.submits), len(dev.presents))
	}
	if fl.Sync().Len() != int(DefaultMaxFramesInFlight) {
		t.Errorf("expected %d frame slots, got %d", DefaultMaxFramesInFlight, fl.Sync().Len())
	}
	if fl.State() != FrameStateIdle {
		t.Errorf("expected idle between frames, got %s", fl.State())
	}
}

func TestSlotRotation(t *testing.T) {
	fl, dev, _ := newTestLoop(t)
	drawFrames(t, fl, 7)

	n := fl.Sync().Len()
	for f, submit := range dev.submits {
		slot := fl.Sync().Slot(f % n)
		if submit.fence != slot.InFlight.(*fakeFence) {
			t.Errorf("frame %d did not use slot %d's fence", f, f%n)
		}
		if submit.buffer != slot.CommandBuffer.(*fakeCommandBuffer) {
			t.Errorf("frame %d did not use slot %d's command buffer", f, f%n)
		}
	}
	if dev.maxPending > n {
		t.Errorf("%d frames were unretired at once, limit is %d", dev.maxPending, n)
	}
}

func TestSingleFrameInFlight(t *testing.T) {
	dev := newFakeDevice(t)
	win := &fakeWindow{t: t, width: 800, height: 600}
	cfg := DefaultConfig()
	cfg.MaxFramesInFlight = 1
	fl, err := New(dev, win, cfg)
	if err != nil {
		t.Fatalf("New() failed: %s", err)
	}
	drawFrames(t, fl, 5)
	if dev.maxPending != 1 {
		t.Errorf("expected exactly one frame in flight, got %d", dev.maxPending)
	}
}

func TestStateDuringSubmit(t *testing.T) {
	fl, dev, _ := newTestLoop(t)
	var states []FrameState
	dev.onSubmit = func() { states = append(states, fl.State()) }
	drawFrames(t, fl, 2)
	for _, s := range states {
		if s != FrameStateSubmitting {
			t.Errorf("expected submitting state, got %s", s)
		}
	}
}

func TestResizeSkipsFrameAndRebuilds(t *testing.T) {
	fl, dev, win := newTestLoop(t)
	drawFrames(t, fl, 3)
	first := fl.Swapchain()

	win.width, win.height = 1024, 768
	fl.NotifyResized()

	submits, presents := len(dev.submits), len(dev.presents)
	outcome, err := fl.DrawFrame()
	if err != nil {
		t.Fatalf("DrawFrame() failed: %s", err)
	}
	if outcome != FrameSkipped {
		t.Errorf("expected the resize frame to be skipped")
	}
	if len(dev.submits) != submits || len(dev.presents) != presents {
		t.Errorf("resize frame must not submit or present")
	}
	if fl.FrameCounter() != 3 {
		t.Errorf("skipped frame advanced the counter to %d", fl.FrameCounter())
	}

	sc := fl.Swapchain()
	if sc == first || sc.ID == first.ID {
		t.Errorf("swapchain was not rebuilt")
	}
	if sc.Extent != (metadata.Extent2D{Width: 1024, Height: 768}) {
		t.Errorf("expected 1024x768, got %+v", sc.Extent)
	}
	if fl.Swapchains().Generation() != 2 {
		t.Errorf("expected generation 2, got %d", fl.Swapchains().Generation())
	}

	// The flag is consumed once, normal frames resume.
	drawFrames(t, fl, 4)
	if fl.Swapchains().Generation() != 2 {
		t.Errorf("unexpected extra recreation")
	}
	if dev.liveCount("semaphore") != 4 {
		t.Errorf("expected 4 semaphores, got %d", dev.liveCount("semaphore"))
	}
	last := dev.presents[len(dev.presents)-1]
	if last.swapchain.config.Extent != sc.Extent {
		t.Errorf("frames after resize present to a stale swapchain")
	}
}

func TestRequestRecreate(t *testing.T) {
	fl, dev, _ := newTestLoop(t)
	drawFrames(t, fl, 1)
	fl.RequestRecreate()
	outcome, err := fl.DrawFrame()
	if err != nil || outcome != FrameSkipped {
		t.Fatalf("expected a skipped frame, got %v (%v)", outcome, err)
	}
	if fl.Swapchains().Generation() != 2 {
		t.Errorf("expected generation 2, got %d", fl.Swapchains().Generation())
	}
	drawFrames(t, fl, 3)
	if len(dev.submits) != 4 {
		t.Errorf("expected 4 submits, got %d", len(dev.submits))
	}
}

func TestRecreationWaitsForNonZeroSize(t *testing.T) {
	fl, dev, win := newTestLoop(t)
	drawFrames(t, fl, 2)

	win.width, win.height = 0, 0
	win.queued = [][2]int{{0, 600}, {800, 0}, {640, 360}}
	fl.NotifyResized()

	builds := len(dev.swapchains)
	if _, err := fl.DrawFrame(); err != nil {
		t.Fatalf("DrawFrame() failed: %s", err)
	}
	if win.waits != 3 {
		t.Errorf("expected 3 event waits, got %d", win.waits)
	}
	if len(dev.swapchains) != builds+1 {
		t.Errorf("expected exactly one rebuild, got %d", len(dev.swapchains)-builds)
	}
	if got := fl.Swapchain().Extent; got != (metadata.Extent2D{Width: 640, Height: 360}) {
		t.Errorf("expected 640x360, got %+v", got)
	}
}

func TestRestoreResizeDoesNotRebuildTwice(t *testing.T) {
	fl, dev, win := newTestLoop(t)
	drawFrames(t, fl, 2)

	win.width, win.height = 0, 0
	win.queued = [][2]int{{1024, 768}}
	win.onWait = func(*fakeWindow) { fl.NotifyResized() }
	fl.NotifyResized()

	builds := len(dev.swapchains)
	if outcome, err := fl.DrawFrame(); err != nil || outcome != FrameSkipped {
		t.Fatalf("DrawFrame() = %v, %v; want a skipped frame", outcome, err)
	}
	if fl.Swapchains().Generation() != 2 || len(dev.swapchains) != builds+1 {
		t.Fatalf("expected one rebuild after restoring, generation %d", fl.Swapchains().Generation())
	}
	drawFrames(t, fl, 2)
	if fl.Swapchains().Generation() != 2 {
		t.Errorf("the resize reported while restoring caused another rebuild, generation %d", fl.Swapchains().Generation())
	}
}

func TestCloseWhileMinimizedEndsWait(t *testing.T) {
	fl, dev, win := newTestLoop(t)
	drawFrames(t, fl, 2)
	before := fl.Swapchain()

	win.width, win.height = 0, 0
	win.onWait = func(w *fakeWindow) { w.closed = true }
	fl.NotifyResized()

	outcome, err := fl.DrawFrame()
	if err != nil || outcome != FrameSkipped {
		t.Fatalf("DrawFrame() = %v, %v; want a skipped frame without error", outcome, err)
	}
	if win.waits != 1 {
		t.Errorf("expected the wait to end after the close request, got %d waits", win.waits)
	}
	if fl.Swapchain() != before || fl.Swapchains().Generation() != 1 {
		t.Errorf("swapchain was rebuilt or torn down after the window closed")
	}
	if err := fl.Recreate(); !errors.Is(err, core.ErrWindowClosed) {
		t.Errorf("Recreate() = %v, want ErrWindowClosed", err)
	}
	if err := fl.Shutdown(); err != nil {
		t.Fatalf("Shutdown() failed: %s", err)
	}
	if len(dev.live) != 0 {
		t.Errorf("%d objects leaked", len(dev.live))
	}
}

func TestNewStopsWaitingWhenClosed(t *testing.T) {
	dev := newFakeDevice(t)
	win := &fakeWindow{t: t, closed: true}
	if _, err := New(dev, win, DefaultConfig()); !errors.Is(err, core.ErrWindowClosed) {
		t.Fatalf("New() = %v, want ErrWindowClosed", err)
	}
	if win.waits != 0 {
		t.Errorf("waited %d times on a closed window", win.waits)
	}
	if len(dev.live) != 0 {
		t.Errorf("%d objects leaked", len(dev.live))
	}
}

func TestNewWaitsForNonZeroSize(t *testing.T) {
	dev := newFakeDevice(t)
	win := &fakeWindow{t: t, queued: [][2]int{{320, 200}}}
	fl, err := New(dev, win, DefaultConfig())
	if err != nil {
		t.Fatalf("New() failed: %s", err)
	}
	if win.waits != 1 || fl.Swapchain().Extent.Width != 320 {
		t.Errorf("expected the first build to wait for a drawable, waits=%d extent=%+v", win.waits, fl.Swapchain().Extent)
	}
}

func TestRecreateIsIdempotent(t *testing.T) {
	fl, _, _ := newTestLoop(t)
	if err := fl.Recreate(); err != nil {
		t.Fatalf("Recreate() failed: %s", err)
	}
	a := fl.Swapchain()
	countA, extentA := a.ImageCount(), a.Extent
	if err := fl.Recreate(); err != nil {
		t.Fatalf("Recreate() failed: %s", err)
	}
	b := fl.Swapchain()
	if b.ImageCount() != countA || b.Extent != extentA {
		t.Errorf("recreating with the same size changed the swapchain: %d/%+v vs %d/%+v",
			countA, extentA, b.ImageCount(), b.Extent)
	}
	if a.ID == b.ID {
		t.Errorf("each build must get its own id")
	}
}

func TestRecreateDrainsDeviceFirst(t *testing.T) {
	fl, dev, _ := newTestLoop(t)
	drawFrames(t, fl, 2)
	dev.events = nil
	if err := fl.Recreate(); err != nil {
		t.Fatalf("Recreate() failed: %s", err)
	}
	if len(dev.events) == 0 || dev.events[0] != "wait idle" {
		t.Errorf("expected wait idle before any teardown, got %v", dev.events)
	}
}

func TestOutOfDateAcquireRecreates(t *testing.T) {
	fl, dev, _ := newTestLoop(t)
	drawFrames(t, fl, 1)
	dev.acquireResults = []error{core.ErrSwapchainOutOfDate}

	outcome, err := fl.DrawFrame()
	if err != nil {
		t.Fatalf("stale acquire must not surface: %s", err)
	}
	if outcome != FrameSkipped || len(dev.submits) != 1 {
		t.Errorf("stale acquire must abandon the frame")
	}
	if fl.Swapchains().Generation() != 2 {
		t.Errorf("expected recreation, generation %d", fl.Swapchains().Generation())
	}
	drawFrames(t, fl, 3)
}

func TestSuboptimalAcquireRecreates(t *testing.T) {
	fl, dev, _ := newTestLoop(t)
	dev.acquireResults = []error{nil, core.ErrSwapchainSuboptimal}
	drawFrames(t, fl, 1)

	outcome, err := fl.DrawFrame()
	if err != nil || outcome != FrameSkipped {
		t.Fatalf("expected a skipped frame, got %v (%v)", outcome, err)
	}
	if fl.Swapchains().Generation() != 2 {
		t.Errorf("expected recreation, generation %d", fl.Swapchains().Generation())
	}
	// The slot's semaphore was signaled by the abandoned acquire; the fake
	// fails the test if it is signaled again without being replaced.
	drawFrames(t, fl, 4)
	if dev.liveCount("semaphore") != 4 {
		t.Errorf("expected 4 semaphores, got %d", dev.liveCount("semaphore"))
	}
}

func TestAcquireFailureIsFatal(t *testing.T) {
	fl, dev, _ := newTestLoop(t)
	dev.acquireResults = []error{core.ErrDeviceLost}
	_, err := fl.DrawFrame()
	if !core.IsFatal(err) || !errors.Is(err, core.ErrDeviceLost) {
		t.Errorf("expected fatal device lost, got %v", err)
	}
}

func TestSubmitFailureIsFatal(t *testing.T) {
	fl, dev, _ := newTestLoop(t)
	dev.createErrors["submit"] = errors.New("queue rejected")
	_, err := fl.DrawFrame()
	if core.KindOf(err) != core.ErrorKindFatal {
		t.Errorf("expected fatal error, got %v", err)
	}
	if fl.FrameCounter() != 0 {
		t.Errorf("failed frame advanced the counter")
	}
}

func TestPresentErrorIsNotFatal(t *testing.T) {
	fl, dev, _ := newTestLoop(t)
	dev.presentResults = []error{errors.New("surface lost")}

	outcome, err := fl.DrawFrame()
	if outcome != FrameRendered {
		t.Errorf("expected the frame to count as rendered")
	}
	if core.KindOf(err) != core.ErrorKindPresent || core.IsFatal(err) {
		t.Errorf("expected a non-fatal present error, got %v", err)
	}
	if fl.FrameCounter() != 1 {
		t.Errorf("expected counter 1, got %d", fl.FrameCounter())
	}
	drawFrames(t, fl, 2)
}

func TestStalePresentIsTolerated(t *testing.T) {
	fl, dev, _ := newTestLoop(t)
	dev.presentResults = []error{core.ErrSwapchainSuboptimal, core.ErrSwapchainOutOfDate}
	drawFrames(t, fl, 3)
	if fl.Swapchains().Generation() != 1 {
		t.Errorf("stale present alone must not rebuild, generation %d", fl.Swapchains().Generation())
	}
}

func TestShutdownWaitsIdleBeforeDestroying(t *testing.T) {
	fl, dev, _ := newTestLoop(t)
	drawFrames(t, fl, 3)
	dev.events = nil

	if err := fl.Shutdown(); err != nil {
		t.Fatalf("Shutdown() failed: %s", err)
	}
	if len(dev.events) == 0 || dev.events[0] != "wait idle" {
		t.Errorf("expected wait idle first, got %v", dev.events)
	}
	if len(dev.live) != 0 {
		t.Errorf("%d objects leaked after shutdown", len(dev.live))
	}
	if err := fl.Shutdown(); err != nil {
		t.Errorf("second Shutdown() must be a no-op: %s", err)
	}
	if _, err := fl.DrawFrame(); core.KindOf(err) != core.ErrorKindInvariant {
		t.Errorf("expected invariant error after shutdown, got %v", err)
	}
}

func TestShutdownKeepsResourcesWhenDeviceIsBusy(t *testing.T) {
	fl, dev, _ := newTestLoop(t)
	drawFrames(t, fl, 2)
	dev.waitIdleErr = core.ErrDeviceLost
	live := len(dev.live)

	if err := fl.Shutdown(); !core.IsFatal(err) {
		t.Errorf("expected fatal error, got %v", err)
	}
	if len(dev.live) != live {
		t.Errorf("resources destroyed without an idle device")
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	dev := newFakeDevice(t)
	win := &fakeWindow{t: t, width: 800, height: 600}
	cfg := DefaultConfig()
	cfg.MaxFramesInFlight = 0
	if _, err := New(dev, win, cfg); !core.IsFatal(err) {
		t.Errorf("expected fatal config error, got %v", err)
	}
	if len(dev.live) != 0 {
		t.Errorf("nothing should be created for an invalid config")
	}
}

func TestNewReleasesOnFailure(t *testing.T) {
	dev := newFakeDevice(t)
	dev.createErrors["semaphore"] = errors.New("out of memory")
	win := &fakeWindow{t: t, width: 800, height: 600}
	if _, err := New(dev, win, DefaultConfig()); !core.IsFatal(err) {
		t.Errorf("expected fatal error, got %v", err)
	}
	if len(dev.live) != 0 {
		t.Errorf("%d objects leaked", len(dev.live))
	}
}

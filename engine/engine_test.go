package engine

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spaghettifunk/vkquad/engine/core"
	"github.com/spaghettifunk/vkquad/engine/renderer"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

// spirvHeader is the little-endian SPIR-V magic word followed by a version.
var spirvHeader = []byte{0x03, 0x02, 0x23, 0x07, 0x00, 0x00, 0x01, 0x00}

type fakeFrameRenderer struct {
	drawErr     error
	draws       int
	resizes     int
	recreations int
	shutdowns   int
}

func (f *fakeFrameRenderer) DrawFrame() (renderer.FrameOutcome, error) {
	f.draws++
	if f.drawErr != nil {
		return renderer.FrameSkipped, f.drawErr
	}
	return renderer.FrameRendered, nil
}

func (f *fakeFrameRenderer) NotifyResized()       { f.resizes++ }
func (f *fakeFrameRenderer) RequestRecreate()     { f.recreations++ }
func (f *fakeFrameRenderer) FrameCounter() uint64 { return uint64(f.draws) }
func (f *fakeFrameRenderer) Shutdown() error      { f.shutdowns++; return nil }

func newTestEngine(t *testing.T) (*Engine, *fakeFrameRenderer) {
	t.Helper()
	e, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	core.SetLogOutput(io.Discard)
	fr := &fakeFrameRenderer{}
	e.frameLoop = fr

	if !core.EventSystemInitialize() {
		t.Fatal("event system already initialized")
	}
	t.Cleanup(func() { core.EventSystemShutdown() })
	core.EventRegister(core.EVENT_CODE_APPLICATION_QUIT, e.onEvent)
	core.EventRegister(core.EVENT_CODE_KEY_PRESSED, e.onKey)
	core.EventRegister(core.EVENT_CODE_RESIZED, e.onResized)
	core.EventRegister(core.EVENT_CODE_ASSET_CHANGED, e.onAssetChanged)
	return e, fr
}

func TestDrawFrameKeepsGoingOnPresentErrors(t *testing.T) {
	e, fr := newTestEngine(t)
	fr.drawErr = core.NewPresent("present", errors.New("surface lost"))
	if err := e.drawFrame(); err != nil {
		t.Fatalf("drawFrame() = %v, want nil for a present error", err)
	}
}

func TestDrawFrameStopsOnFatalAndInvariant(t *testing.T) {
	e, fr := newTestEngine(t)
	for _, err := range []error{
		core.NewFatal("submit", errors.New("device lost")),
		core.NewInvariant("record", errors.New("pending command buffer")),
		errors.New("unclassified"),
	} {
		fr.drawErr = err
		if got := e.drawFrame(); !errors.Is(got, err) {
			t.Errorf("drawFrame() = %v, want %v", got, err)
		}
	}
}

func TestEscapeQuits(t *testing.T) {
	e, _ := newTestEngine(t)
	e.isRunning.Store(true)

	core.EventFire(core.EventContext{Type: core.EVENT_CODE_KEY_PRESSED, Data: &core.KeyEvent{KeyCode: core.KEY_ESCAPE}})
	if e.isRunning.Load() {
		t.Fatal("engine still running after Escape")
	}
}

func TestEventsReachTheFrameLoop(t *testing.T) {
	e, fr := newTestEngine(t)

	core.EventFire(core.EventContext{Type: core.EVENT_CODE_RESIZED, Data: &core.SystemEvent{WindowWidth: 1024, WindowHeight: 768}})
	core.EventFire(core.EventContext{Type: core.EVENT_CODE_RESIZED, Data: &core.SystemEvent{WindowWidth: 0, WindowHeight: 0}})
	if fr.resizes != 2 {
		t.Errorf("NotifyResized called %d times, want 2", fr.resizes)
	}

	core.EventFire(core.EventContext{Type: core.EVENT_CODE_KEY_PRESSED, Data: &core.KeyEvent{KeyCode: core.KEY_R}})
	shader := filepath.Join(t.TempDir(), "frag.spv")
	if err := os.WriteFile(shader, spirvHeader, 0o644); err != nil {
		t.Fatal(err)
	}
	core.EventFire(core.EventContext{Type: core.EVENT_CODE_ASSET_CHANGED, Data: &core.AssetEvent{Path: shader}})
	if fr.recreations != 2 {
		t.Errorf("RequestRecreate called %d times, want 2", fr.recreations)
	}

	// Wrong payloads are logged and ignored.
	core.EventFire(core.EventContext{Type: core.EVENT_CODE_RESIZED, Data: "800x600"})
	if fr.resizes != 2 {
		t.Errorf("bad resize payload reached the frame loop")
	}
	_ = e
}

func TestUnloadableShaderKeepsPipeline(t *testing.T) {
	_, fr := newTestEngine(t)
	dir := t.TempDir()

	empty := filepath.Join(dir, "vert.spv")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	partial := filepath.Join(dir, "frag.spv")
	if err := os.WriteFile(partial, spirvHeader[:6], 0o644); err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{empty, partial, filepath.Join(dir, "missing.spv")} {
		core.EventFire(core.EventContext{Type: core.EVENT_CODE_ASSET_CHANGED, Data: &core.AssetEvent{Path: path}})
	}
	if fr.recreations != 0 {
		t.Fatalf("RequestRecreate called %d times for shaders that do not load", fr.recreations)
	}

	if err := os.WriteFile(partial, spirvHeader, 0o644); err != nil {
		t.Fatal(err)
	}
	core.EventFire(core.EventContext{Type: core.EVENT_CODE_ASSET_CHANGED, Data: &core.AssetEvent{Path: partial}})
	if fr.recreations != 1 {
		t.Fatalf("RequestRecreate called %d times after the shader was completed, want 1", fr.recreations)
	}
}

func TestRecordFrameLogsOncePerSecond(t *testing.T) {
	e, _ := newTestEngine(t)
	for i := 0; i < 64; i++ {
		now := float64(i+1) * 0.015625
		e.recordFrame(now, 0.015625)
	}
	if e.lastMetricsLog != 1.0 {
		t.Errorf("last metrics log at %v, want 1.0", e.lastMetricsLog)
	}
}

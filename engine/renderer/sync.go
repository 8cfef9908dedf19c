package renderer

import (
	"errors"
	"fmt"
	gomath "math"

	"github.com/spaghettifunk/vkquad/engine/core"
	"github.com/spaghettifunk/vkquad/engine/renderer/metadata"
)

// FrameSlot holds the per-frame-in-flight objects. Slot i is reused every
// len(slots) frames and is only touched again once its fence has signaled.
type FrameSlot struct {
	ImageAvailable metadata.Semaphore
	RenderFinished metadata.Semaphore
	InFlight       metadata.Fence
	CommandBuffer  metadata.CommandBuffer
}

type FrameSyncSet struct {
	device  metadata.Device
	slots   []*FrameSlot
	buffers []metadata.CommandBuffer
	timeout uint64
}

// NewFrameSyncSet creates count triples of two semaphores and one fence, the
// fences starting signaled so the first wait on each slot returns at once.
// It also allocates one command buffer per slot. timeoutNs of zero waits
// without limit.
func NewFrameSyncSet(device metadata.Device, count uint32, timeoutNs uint64) (*FrameSyncSet, error) {
	if count == 0 {
		return nil, core.NewInvariant("frame sync", fmt.Errorf("frame slot count must be at least 1"))
	}
	if timeoutNs == 0 {
		timeoutNs = gomath.MaxUint64
	}
	fs := &FrameSyncSet{
		device:  device,
		slots:   make([]*FrameSlot, 0, count),
		timeout: timeoutNs,
	}

	buffers, err := device.AllocateCommandBuffers(count)
	if err != nil {
		core.LogError("failed to allocate command buffers: %s", err)
		return nil, core.NewFatal("allocate command buffers", err)
	}
	if uint32(len(buffers)) != count {
		device.FreeCommandBuffers(buffers)
		return nil, core.NewInvariant("allocate command buffers", fmt.Errorf("expected %d command buffers, got %d", count, len(buffers)))
	}
	fs.buffers = buffers

	for i := uint32(0); i < count; i++ {
		slot := &FrameSlot{CommandBuffer: buffers[i]}
		fs.slots = append(fs.slots, slot)
		if slot.ImageAvailable, err = device.CreateSemaphore(); err != nil {
			break
		}
		if slot.RenderFinished, err = device.CreateSemaphore(); err != nil {
			break
		}
		if slot.InFlight, err = device.CreateFence(true); err != nil {
			break
		}
	}
	if err != nil {
		core.LogError("failed to create frame synchronization objects: %s", err)
		fs.Destroy()
		return nil, core.NewFatal("create sync objects", err)
	}
	core.LogDebug("Created %d frame slots.", count)
	return fs, nil
}

func (fs *FrameSyncSet) Len() int {
	return len(fs.slots)
}

func (fs *FrameSyncSet) Slot(i int) *FrameSlot {
	return fs.slots[i]
}

// Wait blocks until slot i's previous submission has retired. The fence stays
// signaled.
func (fs *FrameSyncSet) Wait(i int) error {
	if err := fs.slots[i].InFlight.Wait(fs.timeout); err != nil {
		return fs.classify("fence wait", err)
	}
	return nil
}

// WaitAndReset waits for slot i and then unsignals its fence. Only call it
// once the frame is certain to be submitted, otherwise the next wait on the
// slot never returns.
func (fs *FrameSyncSet) WaitAndReset(i int) error {
	if err := fs.Wait(i); err != nil {
		return err
	}
	if err := fs.slots[i].InFlight.Reset(); err != nil {
		return core.NewFatal("fence reset", err)
	}
	return nil
}

// renewImageAvailable replaces slot i's image-available semaphore. After an
// acquire whose frame was abandoned the old one may still be signaled, and
// nothing would ever wait on it.
func (fs *FrameSyncSet) renewImageAvailable(i int) error {
	slot := fs.slots[i]
	sem, err := fs.device.CreateSemaphore()
	if err != nil {
		return core.NewFatal("create semaphore", err)
	}
	if slot.ImageAvailable != nil {
		slot.ImageAvailable.Destroy()
	}
	slot.ImageAvailable = sem
	return nil
}

// classify wraps device errors that carry no kind yet as fatal.
func (fs *FrameSyncSet) classify(op string, err error) error {
	var re *core.RendererError
	if errors.As(err, &re) {
		return err
	}
	return core.NewFatal(op, err)
}

// Destroy releases every triple and the command buffers. The device must be
// idle.
func (fs *FrameSyncSet) Destroy() {
	for _, slot := range fs.slots {
		if slot.ImageAvailable != nil {
			slot.ImageAvailable.Destroy()
			slot.ImageAvailable = nil
		}
		if slot.RenderFinished != nil {
			slot.RenderFinished.Destroy()
			slot.RenderFinished = nil
		}
		if slot.InFlight != nil {
			slot.InFlight.Destroy()
			slot.InFlight = nil
		}
		slot.CommandBuffer = nil
	}
	fs.slots = nil
	if fs.buffers != nil {
		fs.device.FreeCommandBuffers(fs.buffers)
		fs.buffers = nil
	}
}

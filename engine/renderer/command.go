package renderer

import (
	"fmt"

	"github.com/spaghettifunk/vkquad/engine/core"
	"github.com/spaghettifunk/vkquad/engine/renderer/metadata"
)

// CommandRecorder writes the per-frame draw: clear, bind the mesh, one
// indexed draw.
type CommandRecorder struct {
	vertexBuffer metadata.Buffer
	indexBuffer  metadata.Buffer
	indexCount   uint32
	clearColor   metadata.ClearColor
}

func NewCommandRecorder(vertexBuffer, indexBuffer metadata.Buffer, indexCount uint32, clearColor metadata.ClearColor) *CommandRecorder {
	return &CommandRecorder{
		vertexBuffer: vertexBuffer,
		indexBuffer:  indexBuffer,
		indexCount:   indexCount,
		clearColor:   clearColor,
	}
}

// Record resets cmd and fills it with the commands that draw into
// sc.Images[imageIndex]. cmd must not be pending on the GPU.
func (cr *CommandRecorder) Record(cmd metadata.CommandBuffer, sc *Swapchain, imageIndex uint32) error {
	if sc == nil {
		return core.NewInvariant("record", fmt.Errorf("no swapchain"))
	}
	if int(imageIndex) >= len(sc.Images) {
		return core.NewInvariant("record", fmt.Errorf("image index %d out of range for %d images", imageIndex, len(sc.Images)))
	}
	target := sc.Images[imageIndex]

	if err := cmd.Reset(); err != nil {
		return cr.wrap("reset command buffer", err)
	}
	if err := cmd.Begin(true); err != nil {
		return cr.wrap("begin command buffer", err)
	}

	cmd.BeginRenderPass(metadata.RenderPassBegin{
		RenderPass:  sc.RenderPass,
		Framebuffer: target.Framebuffer,
		Extent:      sc.Extent,
		ClearColor:  cr.clearColor,
	})
	cmd.BindPipeline(sc.Pipeline)
	cmd.BindVertexBuffer(cr.vertexBuffer, 0)
	cmd.BindIndexBuffer(cr.indexBuffer, 0, metadata.IndexTypeUint16)
	cmd.DrawIndexed(cr.indexCount, 1)
	cmd.EndRenderPass()

	if err := cmd.End(); err != nil {
		return cr.wrap("end command buffer", err)
	}
	return nil
}

func (cr *CommandRecorder) wrap(op string, err error) error {
	core.LogError("failed to %s: %s", op, err)
	if core.KindOf(err) == core.ErrorKindInvariant {
		return err
	}
	return core.NewFatal(op, err)
}

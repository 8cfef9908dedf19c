package renderer

import (
	"fmt"

	"github.com/spaghettifunk/vkquad/engine/renderer/metadata"
)

const DefaultMaxFramesInFlight uint32 = 2

// Config is everything the rendering subsystem needs that is not a live GPU
// object.
type Config struct {
	// Number of frames that may have unretired GPU work at the same time.
	MaxFramesInFlight uint32
	ClearColor        metadata.ClearColor
	// Fence wait limit in nanoseconds. Zero waits until the GPU is done.
	FenceTimeout   uint64
	Mesh           *metadata.Mesh
	VertexShader   string
	FragmentShader string
}

func DefaultConfig() Config {
	return Config{
		MaxFramesInFlight: DefaultMaxFramesInFlight,
		ClearColor:        metadata.ClearColor{0.0, 0.0, 0.0, 1.0},
		Mesh:              metadata.DefaultQuad(),
		VertexShader:      "shaders/vert.spv",
		FragmentShader:    "shaders/frag.spv",
	}
}

func (c *Config) Validate() error {
	if c.MaxFramesInFlight == 0 {
		return fmt.Errorf("max frames in flight must be at least 1")
	}
	if c.Mesh == nil {
		return fmt.Errorf("no mesh configured")
	}
	if err := c.Mesh.Validate(); err != nil {
		return fmt.Errorf("invalid mesh: %w", err)
	}
	if c.VertexShader == "" || c.FragmentShader == "" {
		return fmt.Errorf("both vertex and fragment shaders are required")
	}
	return nil
}

package engine

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/spaghettifunk/vkquad/engine/core"
	"github.com/spaghettifunk/vkquad/engine/renderer"
	"github.com/spaghettifunk/vkquad/engine/renderer/metadata"
)

// Config is the layout of the TOML configuration file.
type Config struct {
	Application ApplicationConfig `toml:"application"`
	Renderer    RendererConfig    `toml:"renderer"`
	Mesh        MeshConfig        `toml:"mesh"`
}

type ApplicationConfig struct {
	// Window starting position x axis, if applicable.
	StartPosX uint32 `toml:"start_pos_x"`
	// Window starting position y axis, if applicable.
	StartPosY uint32 `toml:"start_pos_y"`
	// Window starting width, if applicable.
	StartWidth uint32 `toml:"start_width"`
	// Window starting height, if applicable.
	StartHeight uint32 `toml:"start_height"`
	// The application name used in windowing, if applicable.
	Name     string `toml:"name"`
	LogLevel string `toml:"log_level"`
}

type RendererConfig struct {
	EnableValidation  bool      `toml:"enable_validation"`
	MaxFramesInFlight uint32    `toml:"max_frames_in_flight"`
	VertexShader      string    `toml:"vertex_shader"`
	FragmentShader    string    `toml:"fragment_shader"`
	ClearColor        []float32 `toml:"clear_color"`
	// Zero waits for the GPU without a limit.
	FenceTimeoutNs uint64 `toml:"fence_timeout_ns"`
	WatchShaders   bool   `toml:"watch_shaders"`
}

type VertexConfig struct {
	Position []float32 `toml:"position"`
	Color    []float32 `toml:"color"`
}

type MeshConfig struct {
	Vertices []VertexConfig `toml:"vertices"`
	Indices  []uint16       `toml:"indices"`
}

func DefaultConfig() *Config {
	rc := renderer.DefaultConfig()
	quad := metadata.DefaultQuad()

	mesh := MeshConfig{Indices: append([]uint16(nil), quad.Indices...)}
	for _, v := range quad.Vertices {
		mesh.Vertices = append(mesh.Vertices, VertexConfig{
			Position: []float32{v.Position[0], v.Position[1]},
			Color:    []float32{v.Color[0], v.Color[1], v.Color[2]},
		})
	}

	return &Config{
		Application: ApplicationConfig{
			StartPosX:   100,
			StartPosY:   100,
			StartWidth:  800,
			StartHeight: 600,
			Name:        "vkquad",
			LogLevel:    string(core.LogLevelInfo),
		},
		Renderer: RendererConfig{
			EnableValidation:  false,
			MaxFramesInFlight: rc.MaxFramesInFlight,
			VertexShader:      rc.VertexShader,
			FragmentShader:    rc.FragmentShader,
			ClearColor:        rc.ClearColor[:],
			FenceTimeoutNs:    rc.FenceTimeout,
			WatchShaders:      false,
		},
		Mesh: mesh,
	}
}

// LoadConfig reads the TOML file at path over the defaults. A missing file
// is not an error. List values in the file replace the defaults as a whole.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()
	defaults := DefaultConfig()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		core.LogWarn("Config file %s not found, using defaults.", path)
		return config, nil
	}
	if err != nil {
		return nil, err
	}

	config.Renderer.ClearColor = nil
	config.Mesh = MeshConfig{}
	if err := toml.Unmarshal(data, config); err != nil {
		var decodeErr *toml.DecodeError
		if errors.As(err, &decodeErr) {
			row, col := decodeErr.Position()
			return nil, fmt.Errorf("config %s:%d:%d: %w", path, row, col, err)
		}
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if config.Renderer.ClearColor == nil {
		config.Renderer.ClearColor = defaults.Renderer.ClearColor
	}
	if len(config.Mesh.Vertices) == 0 && len(config.Mesh.Indices) == 0 {
		config.Mesh = defaults.Mesh
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return config, nil
}

func (c *Config) Validate() error {
	if c.Application.StartWidth == 0 || c.Application.StartHeight == 0 {
		return fmt.Errorf("application start size must be non-zero, got %dx%d", c.Application.StartWidth, c.Application.StartHeight)
	}
	if _, err := core.ParseLogLevel(c.Application.LogLevel); err != nil {
		return err
	}
	_, err := c.RendererConfig()
	return err
}

// RendererConfig converts the file layout into the renderer's own config and
// validates it.
func (c *Config) RendererConfig() (renderer.Config, error) {
	if len(c.Renderer.ClearColor) != 4 {
		return renderer.Config{}, fmt.Errorf("renderer.clear_color needs 4 components, got %d", len(c.Renderer.ClearColor))
	}

	mesh := &metadata.Mesh{Indices: c.Mesh.Indices}
	for i, v := range c.Mesh.Vertices {
		if len(v.Position) != 2 || len(v.Color) != 3 {
			return renderer.Config{}, fmt.Errorf("mesh vertex %d needs a 2 component position and a 3 component color", i)
		}
		mesh.Vertices = append(mesh.Vertices, metadata.Vertex{
			Position: [2]float32{v.Position[0], v.Position[1]},
			Color:    [3]float32{v.Color[0], v.Color[1], v.Color[2]},
		})
	}

	rc := renderer.Config{
		MaxFramesInFlight: c.Renderer.MaxFramesInFlight,
		ClearColor:        metadata.ClearColor([4]float32(c.Renderer.ClearColor)),
		FenceTimeout:      c.Renderer.FenceTimeoutNs,
		Mesh:              mesh,
		VertexShader:      c.Renderer.VertexShader,
		FragmentShader:    c.Renderer.FragmentShader,
	}
	if err := rc.Validate(); err != nil {
		return renderer.Config{}, err
	}
	return rc, nil
}

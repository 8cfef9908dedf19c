package metadata

import (
	"encoding/binary"
	"fmt"
	"math"
)

type Vertex struct {
	Position [2]float32
	Color    [3]float32
}

const (
	VertexStride         uint32 = 5 * 4
	vertexPositionOffset uint32 = 0
	vertexColorOffset    uint32 = 2 * 4
	indexSize            uint32 = 2
)

// Mesh is the single static, indexed geometry drawn every frame.
type Mesh struct {
	Vertices []Vertex
	Indices  []uint16
}

// DefaultQuad is two triangles forming a quad with one colour per corner.
func DefaultQuad() *Mesh {
	return &Mesh{
		Vertices: []Vertex{
			{Position: [2]float32{-0.5, -0.5}, Color: [3]float32{1.0, 0.0, 0.0}},
			{Position: [2]float32{0.5, -0.5}, Color: [3]float32{0.0, 1.0, 0.0}},
			{Position: [2]float32{0.5, 0.5}, Color: [3]float32{0.0, 0.0, 1.0}},
			{Position: [2]float32{-0.5, 0.5}, Color: [3]float32{1.0, 1.0, 1.0}},
		},
		Indices: []uint16{0, 1, 2, 2, 3, 0},
	}
}

func (m *Mesh) Validate() error {
	if len(m.Vertices) == 0 {
		return fmt.Errorf("mesh has no vertices")
	}
	if len(m.Indices) < 3 || len(m.Indices)%3 != 0 {
		return fmt.Errorf("mesh index count %d is not a positive multiple of 3", len(m.Indices))
	}
	if len(m.Vertices) > math.MaxUint16+1 {
		return fmt.Errorf("mesh has %d vertices, 16-bit indices address at most %d", len(m.Vertices), math.MaxUint16+1)
	}
	for i, idx := range m.Indices {
		if int(idx) >= len(m.Vertices) {
			return fmt.Errorf("index %d at position %d is out of range (vertex count %d)", idx, i, len(m.Vertices))
		}
	}
	return nil
}

func (m *Mesh) IndexCount() uint32 {
	return uint32(len(m.Indices))
}

func (m *Mesh) VertexBufferSize() uint64 {
	return uint64(len(m.Vertices)) * uint64(VertexStride)
}

func (m *Mesh) IndexBufferSize() uint64 {
	return uint64(len(m.Indices)) * uint64(indexSize)
}

// VertexBytes packs the vertices the way the vertex shader reads them:
// tightly packed little-endian float32 position then colour.
func (m *Mesh) VertexBytes() []byte {
	out := make([]byte, 0, m.VertexBufferSize())
	for _, v := range m.Vertices {
		for _, f := range v.Position {
			out = binary.LittleEndian.AppendUint32(out, math.Float32bits(f))
		}
		for _, f := range v.Color {
			out = binary.LittleEndian.AppendUint32(out, math.Float32bits(f))
		}
	}
	return out
}

func (m *Mesh) IndexBytes() []byte {
	out := make([]byte, 0, m.IndexBufferSize())
	for _, idx := range m.Indices {
		out = binary.LittleEndian.AppendUint16(out, idx)
	}
	return out
}

// VertexAttributes describes Vertex for the pipeline's vertex input state.
func VertexAttributes() []VertexAttribute {
	return []VertexAttribute{
		{Location: 0, Format: FormatR32g32Sfloat, Offset: vertexPositionOffset},
		{Location: 1, Format: FormatR32g32b32Sfloat, Offset: vertexColorOffset},
	}
}

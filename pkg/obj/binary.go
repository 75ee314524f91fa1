package obj

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// VertexBytes returns the vertex buffer as little-endian float32 bytes.
func (m *Model) VertexBytes() []byte {
	out := make([]byte, len(m.Vertices)*floatSize)
	for i, v := range m.Vertices {
		binary.LittleEndian.PutUint32(out[i*floatSize:], math.Float32bits(v))
	}
	return out
}

// IndexBytes returns the index buffer as little-endian uint16 bytes.
func (m *Model) IndexBytes() []byte {
	out := make([]byte, len(m.Indices)*2)
	for i, idx := range m.Indices {
		binary.LittleEndian.PutUint16(out[i*2:], idx)
	}
	return out
}

// WriteBinary writes the vertex buffer to vw and, for indexed models, the
// index buffer to iw. iw may be nil for non-indexed models.
func (m *Model) WriteBinary(vw, iw io.Writer) error {
	if err := binary.Write(vw, binary.LittleEndian, m.Vertices); err != nil {
		return fmt.Errorf("writing vertices: %w", err)
	}
	if !m.Indexed() {
		return nil
	}
	if iw == nil {
		return fmt.Errorf("writing indices: no index writer")
	}
	if err := binary.Write(iw, binary.LittleEndian, m.Indices); err != nil {
		return fmt.Errorf("writing indices: %w", err)
	}
	return nil
}

// ReadVertices decodes little-endian float32 bytes as written by
// VertexBytes.
func ReadVertices(data []byte) ([]float32, error) {
	if len(data)%floatSize != 0 {
		return nil, fmt.Errorf("vertex data length %d is not a multiple of %d", len(data), floatSize)
	}
	out := make([]float32, len(data)/floatSize)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*floatSize:]))
	}
	return out, nil
}

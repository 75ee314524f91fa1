// Package obj parses Wavefront OBJ text into interleaved, GPU-ready vertex
// buffers with per-face tangent space.
package obj

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// OBJ parse errors.
var (
	ErrTooFewCorners    = errors.New("face has fewer than 3 corners")
	ErrMalformedCorner  = errors.New("malformed face corner")
	ErrIndexOutOfRange  = errors.New("face index out of range")
	ErrMissingComponent = errors.New("record has too few components")
	ErrNonFinite        = errors.New("non-finite or non-numeric value")
	ErrDegenerateUV     = errors.New("degenerate texture coordinates")
	ErrTooManyVertices  = errors.New("too many unique vertices for 16-bit indices")
	ErrUndecodableText  = errors.New("source is not decodable as text")
)

// MaxIndexedVertices is the largest number of unique vertices an indexed
// model can hold; indices are 16-bit.
const MaxIndexedVertices = math.MaxUint16 + 1

// ParseError reports a failure while parsing OBJ text.
// Line is 1-based; it is 0 when the failure is not tied to a line.
type ParseError struct {
	Line int
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("obj: line %d %q: %v", e.Line, e.Text, e.Err)
	}
	return fmt.Sprintf("obj: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Options control the layout of the emitted buffers.
type Options struct {
	// WithNormalsAndTangents selects the 14-float layout (position, texcoord,
	// normal, tangent, bitangent). When false the 5-float flat layout
	// (position, texcoord) is emitted and face normal indices are optional.
	WithNormalsAndTangents bool

	// Deduplicate shares one vertex between all corners with the same
	// "pos/tex/norm" reference and emits a 16-bit index buffer. When false
	// every face corner becomes its own vertex and no index buffer is built.
	Deduplicate bool

	// AllowDegenerateUV emits zero tangent and bitangent for faces whose UV
	// triangle has no area instead of failing the parse.
	AllowDegenerateUV bool
}

// DefaultOptions returns the full indexed layout used for normal mapping.
func DefaultOptions() Options {
	return Options{
		WithNormalsAndTangents: true,
		Deduplicate:            true,
	}
}

// Layout returns the vertex layout these options produce.
func (o Options) Layout() Layout {
	if o.WithNormalsAndTangents {
		return FullLayout
	}
	return FlatLayout
}

const floatSize = 4

// Layout describes how to reinterpret an interleaved vertex buffer.
// Offsets and Stride are in bytes; an absent attribute has offset -1.
type Layout struct {
	Floats    int // float32 values per vertex
	Stride    int
	Position  int
	TexCoord  int
	Normal    int
	Tangent   int
	Bitangent int
}

// FullLayout is position(3) texcoord(2) normal(3) tangent(3) bitangent(3).
var FullLayout = Layout{
	Floats:    14,
	Stride:    14 * floatSize,
	Position:  0,
	TexCoord:  3 * floatSize,
	Normal:    5 * floatSize,
	Tangent:   8 * floatSize,
	Bitangent: 11 * floatSize,
}

// FlatLayout is position(3) texcoord(2).
var FlatLayout = Layout{
	Floats:    5,
	Stride:    5 * floatSize,
	Position:  0,
	TexCoord:  3 * floatSize,
	Normal:    -1,
	Tangent:   -1,
	Bitangent: -1,
}

// Attribute is one vertex attribute inside a Layout.
type Attribute struct {
	Name   string
	Size   int // component count
	Offset int // byte offset within a vertex
}

// Attributes returns the attributes present in the layout in buffer order.
func (l Layout) Attributes() []Attribute {
	all := []Attribute{
		{"position", 3, l.Position},
		{"texcoord", 2, l.TexCoord},
		{"normal", 3, l.Normal},
		{"tangent", 3, l.Tangent},
		{"bitangent", 3, l.Bitangent},
	}
	attrs := all[:0]
	for _, a := range all {
		if a.Offset >= 0 {
			attrs = append(attrs, a)
		}
	}
	return attrs
}

// Vertex is one vertex read back from an interleaved buffer.
// Attributes absent from the layout are zero.
type Vertex struct {
	Position  mgl32.Vec3
	TexCoord  mgl32.Vec2
	Normal    mgl32.Vec3
	Tangent   mgl32.Vec3
	Bitangent mgl32.Vec3
}

// Model is a loaded mesh ready for GPU upload.
type Model struct {
	Vertices []float32
	// Indices is nil for non-indexed models (draw arrays).
	Indices []uint16
	Layout  Layout
	// Transform starts as identity and belongs to the caller.
	Transform mgl32.Mat4
}

// Indexed reports whether the model carries an index buffer.
func (m *Model) Indexed() bool {
	return m.Indices != nil
}

// VertexCount returns the number of emitted vertices.
func (m *Model) VertexCount() int {
	if m.Layout.Floats == 0 {
		return 0
	}
	return len(m.Vertices) / m.Layout.Floats
}

// IndexCount returns the number of indices.
func (m *Model) IndexCount() int {
	return len(m.Indices)
}

// DrawCount returns the element count for a triangle draw call.
func (m *Model) DrawCount() int {
	if m.Indexed() {
		return m.IndexCount()
	}
	return m.VertexCount()
}

// TriangleCount returns the number of triangles drawn.
func (m *Model) TriangleCount() int {
	return m.DrawCount() / 3
}

// Vertex reads vertex i back through the layout.
func (m *Model) Vertex(i int) Vertex {
	base := i * m.Layout.Floats
	at := func(offset int) int { return base + offset/floatSize }

	var v Vertex
	p := at(m.Layout.Position)
	v.Position = mgl32.Vec3{m.Vertices[p], m.Vertices[p+1], m.Vertices[p+2]}
	t := at(m.Layout.TexCoord)
	v.TexCoord = mgl32.Vec2{m.Vertices[t], m.Vertices[t+1]}

	vec3 := func(offset int) mgl32.Vec3 {
		if offset < 0 {
			return mgl32.Vec3{}
		}
		j := at(offset)
		return mgl32.Vec3{m.Vertices[j], m.Vertices[j+1], m.Vertices[j+2]}
	}
	v.Normal = vec3(m.Layout.Normal)
	v.Tangent = vec3(m.Layout.Tangent)
	v.Bitangent = vec3(m.Layout.Bitangent)
	return v
}

// Bounds returns the axis-aligned bounding box of all vertex positions.
// Both corners are zero for an empty model.
func (m *Model) Bounds() (lo, hi mgl32.Vec3) {
	n := m.VertexCount()
	if n == 0 {
		return lo, hi
	}
	lo = m.Vertex(0).Position
	hi = lo
	for i := 1; i < n; i++ {
		p := m.Vertex(i).Position
		for k := 0; k < 3; k++ {
			lo[k] = min(lo[k], p[k])
			hi[k] = max(hi[k], p[k])
		}
	}
	return lo, hi
}

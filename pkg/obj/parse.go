package obj

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"
)

// maxLineSize bounds a single OBJ line.
const maxLineSize = 16 << 20

// Parse parses OBJ text into a Model.
func Parse(text string, opts Options) (*Model, error) {
	return ParseReader(strings.NewReader(text), opts)
}

// ParseReader parses OBJ text read from r into a Model.
//
// Only v, vn, vt and f records are interpreted; other record types are
// skipped. Faces with more than three corners are fan-triangulated.
func ParseReader(r io.Reader, opts Options) (*Model, error) {
	p := newParser(opts)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		p.line++
		p.text = scanner.Text()
		if err := p.parseLine(); err != nil {
			return nil, &ParseError{Line: p.line, Text: p.text, Err: err}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &ParseError{Line: p.line + 1, Err: fmt.Errorf("reading source: %w", err)}
	}

	return p.model, nil
}

// corner is one resolved face corner. Indices are 0-based; norm is -1 when
// the layout carries no normals.
type corner struct {
	key  string
	pos  int
	tex  int
	norm int
}

type parser struct {
	opts      Options
	positions []mgl64.Vec3
	normals   []mgl64.Vec3
	texCoords []mgl64.Vec2

	seen  map[string]uint16
	model *Model

	line int
	text string
}

func newParser(opts Options) *parser {
	p := &parser{
		opts: opts,
		model: &Model{
			Vertices:  []float32{},
			Layout:    opts.Layout(),
			Transform: mgl32.Ident4(),
		},
	}
	if opts.Deduplicate {
		p.seen = make(map[string]uint16)
		p.model.Indices = []uint16{}
	}
	return p
}

func (p *parser) parseLine() error {
	if !utf8.ValidString(p.text) {
		return ErrUndecodableText
	}
	if strings.HasPrefix(p.text, "#") {
		return nil
	}

	fields := strings.Fields(p.text)
	if len(fields) == 0 {
		return nil
	}

	switch fields[0] {
	case "v":
		v, err := parseFloats(fields[1:], 3)
		if err != nil {
			return err
		}
		p.positions = append(p.positions, mgl64.Vec3{v[0], v[1], v[2]})
	case "vn":
		v, err := parseFloats(fields[1:], 3)
		if err != nil {
			return err
		}
		p.normals = append(p.normals, mgl64.Vec3{v[0], v[1], v[2]})
	case "vt":
		v, err := parseFloats(fields[1:], 2)
		if err != nil {
			return err
		}
		p.texCoords = append(p.texCoords, mgl64.Vec2{v[0], v[1]})
	case "f":
		return p.parseFace(fields[1:])
	}
	return nil
}

// parseFloats parses the first n tokens. Extra tokens (such as the optional
// w component) are ignored.
func parseFloats(tokens []string, n int) ([]float64, error) {
	if len(tokens) < n {
		return nil, fmt.Errorf("%w: want %d, got %d", ErrMissingComponent, n, len(tokens))
	}
	vals := make([]float64, n)
	for i := 0; i < n; i++ {
		v, err := strconv.ParseFloat(tokens[i], 64)
		if err != nil || !finite32(v) {
			return nil, fmt.Errorf("%w: %q", ErrNonFinite, tokens[i])
		}
		vals[i] = v
	}
	return vals, nil
}

func (p *parser) parseFace(tokens []string) error {
	if len(tokens) < 3 {
		return fmt.Errorf("%w: got %d", ErrTooFewCorners, len(tokens))
	}

	corners := make([]corner, len(tokens))
	for i, tok := range tokens {
		c, err := p.resolveCorner(tok)
		if err != nil {
			return err
		}
		corners[i] = c
	}

	for i := 1; i+1 < len(corners); i++ {
		if err := p.addTriangle(corners[0], corners[i], corners[i+1]); err != nil {
			return err
		}
	}
	return nil
}

// resolveCorner parses a "pos/tex/norm" token and checks every index
// against the records declared so far. The normal slot may be omitted in the
// flat layout.
func (p *parser) resolveCorner(tok string) (corner, error) {
	parts := strings.Split(tok, "/")
	switch {
	case len(parts) == 3:
	case len(parts) == 2 && !p.opts.WithNormalsAndTangents:
	default:
		return corner{}, fmt.Errorf("%w: %q", ErrMalformedCorner, tok)
	}

	c := corner{key: tok, norm: -1}
	var err error
	if c.pos, err = resolveIndex(parts[0], len(p.positions), "position"); err != nil {
		return corner{}, err
	}
	if c.tex, err = resolveIndex(parts[1], len(p.texCoords), "texcoord"); err != nil {
		return corner{}, err
	}
	if p.opts.WithNormalsAndTangents {
		if c.norm, err = resolveIndex(parts[2], len(p.normals), "normal"); err != nil {
			return corner{}, err
		}
	}
	return c, nil
}

// resolveIndex converts a 1-based reference into a 0-based index.
func resolveIndex(s string, count int, kind string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("%w: missing %s index", ErrMalformedCorner, kind)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s index %q", ErrMalformedCorner, kind, s)
	}
	if n < 1 || n > count {
		return 0, fmt.Errorf("%w: %s %d of %d", ErrIndexOutOfRange, kind, n, count)
	}
	return n - 1, nil
}

func (p *parser) addTriangle(a, b, c corner) error {
	var tangent, bitangent mgl64.Vec3
	if p.opts.WithNormalsAndTangents {
		var ok bool
		tangent, bitangent, ok = TangentSpace(
			p.positions[a.pos], p.positions[b.pos], p.positions[c.pos],
			p.texCoords[a.tex], p.texCoords[b.tex], p.texCoords[c.tex],
		)
		if !ok && !p.opts.AllowDegenerateUV {
			return ErrDegenerateUV
		}
	}

	for _, cn := range [3]corner{a, b, c} {
		if err := p.emit(cn, tangent, bitangent); err != nil {
			return err
		}
	}
	return nil
}

// emit appends the corner to the buffers. With deduplication a corner whose
// key was seen before only adds its existing index; the vertex keeps the
// tangent frame of the face that introduced it.
func (p *parser) emit(c corner, tangent, bitangent mgl64.Vec3) error {
	m := p.model
	if p.opts.Deduplicate {
		if idx, ok := p.seen[c.key]; ok {
			m.Indices = append(m.Indices, idx)
			return nil
		}
		n := m.VertexCount()
		if n >= MaxIndexedVertices {
			return fmt.Errorf("%w: limit %d", ErrTooManyVertices, MaxIndexedVertices)
		}
		idx := uint16(n)
		p.seen[c.key] = idx
		m.Indices = append(m.Indices, idx)
	}

	pos := p.positions[c.pos]
	tex := p.texCoords[c.tex]
	m.Vertices = appendVec(m.Vertices, pos[:]...)
	m.Vertices = appendVec(m.Vertices, tex[:]...)
	if p.opts.WithNormalsAndTangents {
		norm := p.normals[c.norm]
		m.Vertices = appendVec(m.Vertices, norm[:]...)
		m.Vertices = appendVec(m.Vertices, tangent[:]...)
		m.Vertices = appendVec(m.Vertices, bitangent[:]...)
	}
	return nil
}

func appendVec(dst []float32, vals ...float64) []float32 {
	for _, v := range vals {
		dst = append(dst, float32(v))
	}
	return dst
}

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/Faultbox/objmodel/internal/loader"
	"github.com/Faultbox/objmodel/internal/watch"
	"github.com/Faultbox/objmodel/pkg/obj"
	"github.com/Faultbox/objmodel/pkg/texture"
)

func (a *app) cmdInfo(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("%w: objtool info <src>", errUsage)
	}

	m, err := a.loader.LoadModel(ctx, args[0])
	if err != nil {
		return err
	}
	printInfo(a.out, args[0], m)
	return nil
}

func printInfo(w io.Writer, src string, m *obj.Model) {
	lo, hi := m.Bounds()

	fmt.Fprintf(w, "Model:     %s\n", src)
	fmt.Fprintf(w, "Vertices:  %d\n", m.VertexCount())
	if m.Indexed() {
		fmt.Fprintf(w, "Indices:   %d\n", m.IndexCount())
	} else {
		fmt.Fprintln(w, "Indices:   (none, draw arrays)")
	}
	fmt.Fprintf(w, "Triangles: %d\n", m.TriangleCount())
	fmt.Fprintf(w, "Stride:    %d bytes (%d floats)\n", m.Layout.Stride, m.Layout.Floats)
	fmt.Fprintf(w, "Bounds:    (%g, %g, %g) - (%g, %g, %g)\n", lo[0], lo[1], lo[2], hi[0], hi[1], hi[2])
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Attributes:")
	for _, attr := range m.Layout.Attributes() {
		fmt.Fprintf(w, "  %-10s size %d  offset %d\n", attr.Name, attr.Size, attr.Offset)
	}
}

func (a *app) cmdDump(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("dump", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	limit := fs.Int("n", 0, "Limit output to N vertices (0 = all)")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("%w: objtool dump [-n N] <src>", errUsage)
	}

	m, err := a.loader.LoadModel(ctx, fs.Arg(0))
	if err != nil {
		return err
	}

	n := m.VertexCount()
	if *limit > 0 && *limit < n {
		n = *limit
	}
	for i := 0; i < n; i++ {
		v := m.Vertex(i)
		fmt.Fprintf(a.out, "%d: pos %v uv %v", i, v.Position, v.TexCoord)
		if m.Layout.Normal >= 0 {
			fmt.Fprintf(a.out, " n %v t %v b %v", v.Normal, v.Tangent, v.Bitangent)
		}
		fmt.Fprintln(a.out)
	}

	if m.Indexed() {
		fmt.Fprintf(a.out, "indices: %v\n", limitIndices(m.Indices, *limit))
	}
	return nil
}

func limitIndices(idx []uint16, limit int) []uint16 {
	if limit > 0 && limit < len(idx) {
		return idx[:limit]
	}
	return idx
}

func (a *app) cmdValidate(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("%w: objtool validate <src...>", errUsage)
	}

	reqs := make([]loader.Request, len(args))
	for i, src := range args {
		reqs[i] = loader.Request{Model: src}
	}

	failed := 0
	for _, res := range a.loader.LoadAll(ctx, reqs) {
		if res.Err != nil {
			fmt.Fprintf(a.out, "FAIL %s: %v\n", res.Request.Model, res.Err)
			failed++
			continue
		}
		fmt.Fprintf(a.out, "ok   %s (%d triangles)\n", res.Request.Model, res.Asset.Model.TriangleCount())
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d sources failed", failed, len(args))
	}
	return nil
}

func (a *app) cmdExport(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("%w: objtool export <src> <out-prefix>", errUsage)
	}
	src, prefix := args[0], args[1]

	m, err := a.loader.LoadModel(ctx, src)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(prefix), 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	vboPath := prefix + ".vbo"
	iboPath := prefix + ".ibo"
	if err := exportModel(m, vboPath, iboPath); err != nil {
		return err
	}

	if m.Indexed() {
		fmt.Fprintf(a.out, "Exported: %s (%d vertices), %s (%d indices)\n", vboPath, m.VertexCount(), iboPath, m.IndexCount())
	} else {
		fmt.Fprintf(a.out, "Exported: %s (%d vertices)\n", vboPath, m.VertexCount())
	}
	return nil
}

// exportModel writes the vertex buffer, and the index buffer for indexed
// models, as little-endian binary files. Files are written under temporary
// names and renamed into place, so a failed export leaves earlier output
// intact. A stale index buffer is removed for non-indexed models.
func exportModel(m *obj.Model, vboPath, iboPath string) error {
	vbo, err := createPending(vboPath)
	if err != nil {
		return err
	}
	defer vbo.discard()

	var ibo *pendingFile
	var iw io.Writer
	if m.Indexed() {
		if ibo, err = createPending(iboPath); err != nil {
			return err
		}
		defer ibo.discard()
		iw = ibo.w
	}

	if err := m.WriteBinary(vbo.w, iw); err != nil {
		return err
	}

	// Finish every file before renaming any, so a write failure never
	// pairs a new vertex buffer with an old index buffer.
	pending := []*pendingFile{vbo}
	if ibo != nil {
		pending = append(pending, ibo)
	}
	for _, p := range pending {
		if err := p.finish(); err != nil {
			return err
		}
	}
	for _, p := range pending {
		if err := p.rename(); err != nil {
			return err
		}
	}
	if ibo != nil {
		return nil
	}
	if err := os.Remove(iboPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing stale %s: %w", iboPath, err)
	}
	return nil
}

// pendingFile is an output file written under a temporary name until
// rename moves it to path.
type pendingFile struct {
	path string
	f    *os.File
	w    *bufio.Writer
}

func createPending(path string) (*pendingFile, error) {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", path, err)
	}
	return &pendingFile{path: path, f: f, w: bufio.NewWriter(f)}, nil
}

// finish flushes and closes the temporary file.
func (p *pendingFile) finish() error {
	if err := p.w.Flush(); err != nil {
		return fmt.Errorf("writing %s: %w", p.path, err)
	}
	if err := p.f.Chmod(0644); err != nil {
		return fmt.Errorf("writing %s: %w", p.path, err)
	}
	if err := p.f.Close(); err != nil {
		return fmt.Errorf("writing %s: %w", p.path, err)
	}
	return nil
}

// rename moves the finished file into place.
func (p *pendingFile) rename() error {
	if err := os.Rename(p.f.Name(), p.path); err != nil {
		return fmt.Errorf("writing %s: %w", p.path, err)
	}
	return nil
}

// discard removes the temporary file. It is a no-op after rename.
func (p *pendingFile) discard() {
	_ = p.f.Close()
	_ = os.Remove(p.f.Name())
}

func (a *app) cmdLoad(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("%w: objtool load <manifest.yaml>", errUsage)
	}

	scene, err := a.loader.LoadScene(ctx, args[0])
	if err != nil {
		return err
	}

	l := scene.Light
	fmt.Fprintf(a.out, "Light:  direction %v color %v shadow %d\n", l.Direction, l.Color, l.ShadowResolution)
	fmt.Fprintf(a.out, "Models: %d loaded, %d failed\n", len(scene.Assets), len(scene.Failures))
	for _, asset := range scene.Assets {
		fmt.Fprintf(a.out, "  %-20s %6d vertices %6d triangles  textures: %s\n",
			asset.Name, asset.Model.VertexCount(), asset.Model.TriangleCount(),
			textureSummary(asset.Diffuse, asset.Specular, asset.Normal))
	}
	for _, f := range scene.Failures {
		fmt.Fprintf(a.out, "  FAIL %s: %v\n", f.Request.Model, f.Err)
	}

	if err := scene.Err(); err != nil {
		return fmt.Errorf("%d models failed: %w", len(scene.Failures), err)
	}
	return nil
}

func textureSummary(texs ...*texture.Texture) string {
	parts := make([]string, len(texs))
	for i, t := range texs {
		if t.IsPlaceholder() {
			parts[i] = "-"
			continue
		}
		parts[i] = fmt.Sprintf("%dx%d", t.Width, t.Height)
	}
	return strings.Join(parts, " ")
}

func (a *app) cmdWatch(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("%w: objtool watch <file>", errUsage)
	}

	path, err := a.loader.Assets().Resolve(args[0])
	if err != nil {
		return fmt.Errorf("watching %s: %w", args[0], err)
	}
	w, err := watch.New(path, watch.DefaultDebounce, a.log.Named("watch"))
	if err != nil {
		return err
	}
	defer w.Close()

	reload := func(path string) {
		a.loader.Assets().Invalidate(path)
		m, err := a.loader.LoadModel(ctx, path)
		if err != nil {
			var perr *obj.ParseError
			if errors.As(err, &perr) {
				a.log.Error("parse failed", zap.String("path", path), zap.Int("line", perr.Line), zap.Error(perr.Err))
			} else {
				a.log.Error("reload failed", zap.String("path", path), zap.Error(err))
			}
			return
		}
		printInfo(a.out, path, m)
		fmt.Fprintln(a.out)
	}

	reload(w.Path())
	a.log.Info("watching", zap.String("path", w.Path()))
	return w.Run(ctx, reload)
}

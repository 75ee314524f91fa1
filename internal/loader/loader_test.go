package loader

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/objmodel/internal/assets"
	"github.com/Faultbox/objmodel/internal/config"
	"github.com/Faultbox/objmodel/pkg/encoding"
	"github.com/Faultbox/objmodel/pkg/obj"
)

const triangleOBJ = `v 0 0 0
v 1 0 0
v 0 1 0
vt 0 0
vt 1 0
vt 0 1
vn 0 0 1
f 1/1/1 2/2/1 3/3/1
`

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	img.SetNRGBA(0, 0, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode failed: %v", err)
	}
	return buf.Bytes()
}

func newTestLoader(t *testing.T, dir string, opts ...Option) *Loader {
	t.Helper()
	mgr := assets.NewManager(nil)
	if err := mgr.AddRoot(dir); err != nil {
		t.Fatalf("AddRoot failed: %v", err)
	}
	return New(mgr, opts...)
}

func TestLoadModel(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "models/tri.obj", []byte(triangleOBJ))

	l := newTestLoader(t, dir)
	m, err := l.LoadModel(context.Background(), "models/tri.obj")
	if err != nil {
		t.Fatalf("LoadModel failed: %v", err)
	}
	if m.VertexCount() != 3 || m.IndexCount() != 3 {
		t.Errorf("expected 3 vertices and 3 indices, got %d/%d", m.VertexCount(), m.IndexCount())
	}
}

func TestLoadModel_Errors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "latin1.obj", []byte("# caf\xe9\n"+triangleOBJ))
	writeFile(t, dir, "binary.obj", []byte{0x89, 'P', 'N', 'G', 0, 0})
	writeFile(t, dir, "broken.obj", []byte(triangleOBJ+"f 1/1/1 2/2/1\n"))

	l := newTestLoader(t, dir)
	ctx := context.Background()

	t.Run("missing source", func(t *testing.T) {
		_, err := l.LoadModel(ctx, "nope.obj")
		var ferr *assets.FetchError
		if !errors.As(err, &ferr) {
			t.Errorf("expected *assets.FetchError, got %T (%v)", err, err)
		}
	})

	t.Run("undecodable text", func(t *testing.T) {
		for _, src := range []string{"latin1.obj", "binary.obj"} {
			_, err := l.LoadModel(ctx, src)
			var perr *obj.ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("%s: expected *obj.ParseError, got %T (%v)", src, err, err)
			}
			if !errors.Is(err, obj.ErrUndecodableText) || !errors.Is(err, encoding.ErrUndecodable) {
				t.Errorf("%s: expected undecodable error, got %v", src, err)
			}
		}
	})

	t.Run("parse error", func(t *testing.T) {
		_, err := l.LoadModel(ctx, "broken.obj")
		var perr *obj.ParseError
		if !errors.As(err, &perr) {
			t.Fatalf("expected *obj.ParseError, got %T (%v)", err, err)
		}
		if perr.Line != 9 {
			t.Errorf("expected line 9, got %d", perr.Line)
		}
		if !errors.Is(err, obj.ErrTooFewCorners) {
			t.Errorf("expected ErrTooFewCorners, got %v", err)
		}
	})
}

func TestLoadModel_Charset(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "latin1.obj", []byte("# caf\xe9\n"+triangleOBJ))

	l := newTestLoader(t, dir, WithCharset("windows-1252"))
	if _, err := l.LoadModel(context.Background(), "latin1.obj"); err != nil {
		t.Fatalf("LoadModel failed: %v", err)
	}
}

func TestLoadModel_UnknownCharset(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "latin1.obj", []byte("# caf\xe9\n"+triangleOBJ))

	l := newTestLoader(t, dir, WithCharset("no-such-charset"))
	_, err := l.LoadModel(context.Background(), "latin1.obj")
	if err == nil {
		t.Fatal("expected error for unknown charset")
	}
	var perr *obj.ParseError
	if errors.As(err, &perr) {
		t.Errorf("unknown charset should not be a parse error, got %v", err)
	}
	if errors.Is(err, obj.ErrUndecodableText) || errors.Is(err, encoding.ErrUndecodable) {
		t.Errorf("unknown charset should not be reported as undecodable text, got %v", err)
	}
}

func TestLoadModel_FlatOptions(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "tri.obj", []byte(triangleOBJ))

	l := newTestLoader(t, dir, WithOptions(obj.Options{}))
	m, err := l.LoadModel(context.Background(), "tri.obj")
	if err != nil {
		t.Fatalf("LoadModel failed: %v", err)
	}
	if m.Indexed() || m.Layout != obj.FlatLayout {
		t.Errorf("expected flat non-indexed model, got layout %+v indexed=%v", m.Layout, m.Indexed())
	}
}

func TestLoad_Textures(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "floor.obj", []byte(triangleOBJ))
	writeFile(t, dir, "grid.png", pngBytes(t, 4, 4))
	writeFile(t, dir, "bad.png", []byte("not a png"))

	l := newTestLoader(t, dir)
	asset, err := l.Load(context.Background(), Request{
		Model:     "floor.obj",
		Diffuse:   "grid.png",
		Specular:  "missing.png",
		Normal:    "bad.png",
		Translate: [3]float32{0, -0.5, 0},
	})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if asset.Name != "floor.obj" {
		t.Errorf("expected name to default to the model source, got %q", asset.Name)
	}
	if asset.Diffuse.Width != 4 || asset.Diffuse.IsPlaceholder() {
		t.Errorf("expected decoded 4x4 diffuse, got %dx%d", asset.Diffuse.Width, asset.Diffuse.Height)
	}
	if !asset.Specular.IsPlaceholder() {
		t.Error("expected placeholder for missing specular texture")
	}
	if !asset.Normal.IsPlaceholder() {
		t.Error("expected placeholder for undecodable normal texture")
	}

	want := mgl32.Vec4{0, -0.5, 0, 1}
	if got := asset.Model.Transform.Col(3); got != want {
		t.Errorf("translation column = %v, want %v", got, want)
	}
}

func TestLoad_NoTextures(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "tri.obj", []byte(triangleOBJ))

	l := newTestLoader(t, dir)
	asset, err := l.Load(context.Background(), Request{Name: "tri", Model: "tri.obj"})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !asset.Diffuse.IsPlaceholder() || !asset.Specular.IsPlaceholder() || !asset.Normal.IsPlaceholder() {
		t.Error("expected placeholder textures when none are given")
	}
	if asset.Model.Transform != mgl32.Ident4() {
		t.Errorf("expected identity transform, got %v", asset.Model.Transform)
	}
}

func TestLoadAll_IsolatesFailures(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.obj", []byte(triangleOBJ))
	writeFile(t, dir, "b.obj", []byte("f 1/1/1 2/2/2 3/3/3\n"))
	writeFile(t, dir, "c.obj", []byte(triangleOBJ+triangleOBJ))

	l := newTestLoader(t, dir, WithConcurrency(2))
	results := l.LoadAll(context.Background(), []Request{
		{Model: "a.obj"},
		{Model: "b.obj"},
		{Model: "c.obj"},
	})

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Err != nil || results[0].Asset == nil {
		t.Errorf("a.obj: unexpected error %v", results[0].Err)
	}
	if !errors.Is(results[1].Err, obj.ErrIndexOutOfRange) {
		t.Errorf("b.obj: expected ErrIndexOutOfRange, got %v", results[1].Err)
	}
	if results[1].Asset != nil {
		t.Error("b.obj: expected no asset")
	}
	if results[2].Err != nil {
		t.Fatalf("c.obj: unexpected error %v", results[2].Err)
	}
	if got := results[2].Asset.Model.VertexCount(); got != 6 {
		t.Errorf("c.obj: expected 6 vertices, got %d", got)
	}
	for i, want := range []string{"a.obj", "b.obj", "c.obj"} {
		if results[i].Request.Model != want {
			t.Errorf("result %d is for %s, want %s", i, results[i].Request.Model, want)
		}
	}
}

func TestLoadAll_ConcurrencyLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		w.Write([]byte(triangleOBJ))
	}))
	defer srv.Close()

	l := New(assets.NewManager(srv.Client()), WithConcurrency(2))

	var reqs []Request
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		reqs = append(reqs, Request{Model: srv.URL + "/" + name + ".obj"})
	}

	for i, res := range l.LoadAll(context.Background(), reqs) {
		if res.Err != nil {
			t.Errorf("request %d failed: %v", i, res.Err)
		}
	}
	if p := peak.Load(); p > 2 {
		t.Errorf("expected at most 2 concurrent fetches, saw %d", p)
	}
}

func TestLoadAll_Cancelled(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.obj", []byte(triangleOBJ))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l := newTestLoader(t, dir)
	for _, res := range l.LoadAll(ctx, []Request{{Model: "a.obj"}, {Model: "a.obj"}}) {
		if !errors.Is(res.Err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", res.Err)
		}
	}
}

func TestLoad_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	l := New(assets.NewManager(srv.Client()), WithTimeout(50*time.Millisecond))
	_, err := l.LoadModel(context.Background(), srv.URL+"/slow.obj")

	var ferr *assets.FetchError
	if !errors.As(err, &ferr) {
		t.Fatalf("expected *assets.FetchError, got %T (%v)", err, err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestFromConfig(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "tri.obj", []byte(triangleOBJ))

	cfg := config.Default()
	cfg.Loader.Roots = []string{dir}
	cfg.Loader.NormalsAndTangents = false

	l, err := FromConfig(cfg, nil)
	if err != nil {
		t.Fatalf("FromConfig failed: %v", err)
	}
	m, err := l.LoadModel(context.Background(), "tri.obj")
	if err != nil {
		t.Fatalf("LoadModel failed: %v", err)
	}
	if m.Layout != obj.FlatLayout {
		t.Errorf("expected flat layout from config, got %+v", m.Layout)
	}

	cfg.Loader.Roots = []string{filepath.Join(dir, "missing")}
	if _, err := FromConfig(cfg, nil); err == nil {
		t.Error("expected error for missing root")
	}
}

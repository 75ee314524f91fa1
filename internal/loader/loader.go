// Package loader turns model and texture sources into GPU-ready assets.
package loader

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/objmodel/internal/assets"
	"github.com/Faultbox/objmodel/internal/config"
	"github.com/Faultbox/objmodel/pkg/encoding"
	"github.com/Faultbox/objmodel/pkg/obj"
	"github.com/Faultbox/objmodel/pkg/texture"
)

// Request names the sources of one model. Texture sources are optional.
type Request struct {
	Name      string     `yaml:"name"`
	Model     string     `yaml:"model"`
	Diffuse   string     `yaml:"diffuse"`
	Specular  string     `yaml:"specular"`
	Normal    string     `yaml:"normal"`
	Translate [3]float32 `yaml:"translate"`
}

// Asset is a loaded model with its textures.
type Asset struct {
	Name     string
	Model    *obj.Model
	Diffuse  *texture.Texture
	Specular *texture.Texture
	Normal   *texture.Texture
}

// Result is the outcome of loading one Request.
type Result struct {
	Request Request
	Asset   *Asset
	Err     error
}

// Loader fetches, decodes and parses models.
type Loader struct {
	assets      *assets.Manager
	opts        obj.Options
	charset     string
	timeout     time.Duration
	concurrency int
	log         *zap.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithOptions sets the parser options.
func WithOptions(opts obj.Options) Option {
	return func(l *Loader) { l.opts = opts }
}

// WithCharset sets the fallback charset for non-UTF-8 model sources.
func WithCharset(charset string) Option {
	return func(l *Loader) { l.charset = charset }
}

// WithTimeout bounds each fetch. Zero disables the timeout.
func WithTimeout(d time.Duration) Option {
	return func(l *Loader) { l.timeout = d }
}

// WithConcurrency limits parallel model loads in LoadAll.
func WithConcurrency(n int) Option {
	return func(l *Loader) { l.concurrency = n }
}

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(log *zap.Logger) Option {
	return func(l *Loader) {
		if log != nil {
			l.log = log
		}
	}
}

// New creates a Loader reading sources through mgr.
func New(mgr *assets.Manager, opts ...Option) *Loader {
	l := &Loader{
		assets:      mgr,
		opts:        obj.DefaultOptions(),
		concurrency: 4,
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.concurrency < 1 {
		l.concurrency = 1
	}
	return l
}

// FromConfig creates a Loader and its asset manager from cfg.
func FromConfig(cfg *config.Config, log *zap.Logger) (*Loader, error) {
	mgr := assets.NewManager(&http.Client{Timeout: cfg.Fetch.Timeout})
	for _, root := range cfg.Loader.Roots {
		if err := mgr.AddRoot(root); err != nil {
			return nil, err
		}
	}

	return New(mgr,
		WithOptions(cfg.Loader.Options()),
		WithCharset(cfg.Loader.Charset),
		WithTimeout(cfg.Fetch.Timeout),
		WithConcurrency(cfg.Fetch.Concurrency),
		WithLogger(log),
	), nil
}

// Assets returns the underlying asset manager.
func (l *Loader) Assets() *assets.Manager {
	return l.assets
}

func (l *Loader) fetch(ctx context.Context, src string) ([]byte, error) {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	return l.assets.Fetch(ctx, src)
}

// LoadModel fetches and parses one OBJ source. Fetch failures are
// *assets.FetchError and bad source text is *obj.ParseError. An unknown
// fallback charset is returned as is.
func (l *Loader) LoadModel(ctx context.Context, src string) (*obj.Model, error) {
	start := time.Now()

	data, err := l.fetch(ctx, src)
	if err != nil {
		return nil, err
	}

	text, err := encoding.Decode(data, l.charset)
	if errors.Is(err, encoding.ErrUndecodable) {
		return nil, fmt.Errorf("loading %s: %w", src, &obj.ParseError{
			Err: fmt.Errorf("%w: %w", obj.ErrUndecodableText, err),
		})
	}
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", src, err)
	}

	model, err := obj.Parse(text, l.opts)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", src, err)
	}

	l.log.Debug("model parsed",
		zap.String("source", src),
		zap.Int("vertices", model.VertexCount()),
		zap.Int("indices", model.IndexCount()),
		zap.Duration("elapsed", time.Since(start)))
	return model, nil
}

// LoadTexture fetches and decodes a texture. An empty source, or one that
// fails to load, yields the placeholder texture; failures are logged.
func (l *Loader) LoadTexture(ctx context.Context, src string) *texture.Texture {
	if src == "" {
		return texture.Placeholder()
	}

	data, err := l.fetch(ctx, src)
	if err != nil {
		l.log.Warn("texture unavailable, using placeholder", zap.String("source", src), zap.Error(err))
		return texture.Placeholder()
	}

	tex, err := texture.Decode(data, src)
	if err != nil {
		l.log.Warn("texture undecodable, using placeholder", zap.String("source", src), zap.Error(err))
		return texture.Placeholder()
	}
	return tex
}

// Load loads the model and its textures concurrently.
func (l *Loader) Load(ctx context.Context, req Request) (*Asset, error) {
	asset := &Asset{Name: req.Name}
	if asset.Name == "" {
		asset.Name = req.Model
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		model, err := l.LoadModel(gctx, req.Model)
		if err != nil {
			return err
		}
		if req.Translate != ([3]float32{}) {
			model.Transform = model.Transform.Mul4(mgl32.Translate3D(req.Translate[0], req.Translate[1], req.Translate[2]))
		}
		asset.Model = model
		return nil
	})
	g.Go(func() error {
		asset.Diffuse = l.LoadTexture(gctx, req.Diffuse)
		return nil
	})
	g.Go(func() error {
		asset.Specular = l.LoadTexture(gctx, req.Specular)
		return nil
	})
	g.Go(func() error {
		asset.Normal = l.LoadTexture(gctx, req.Normal)
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	l.log.Info("model loaded",
		zap.String("name", asset.Name),
		zap.Int("vertices", asset.Model.VertexCount()),
		zap.Int("triangles", asset.Model.TriangleCount()))
	return asset, nil
}

// LoadAll loads every request with bounded concurrency. A failed request
// only sets its own Result.Err; results keep the order of reqs.
func (l *Loader) LoadAll(ctx context.Context, reqs []Request) []Result {
	results := make([]Result, len(reqs))

	var g errgroup.Group
	g.SetLimit(l.concurrency)
	for i, req := range reqs {
		results[i].Request = req
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			asset, err := l.Load(ctx, req)
			if err != nil {
				l.log.Error("model failed", zap.String("source", req.Model), zap.Error(err))
				results[i].Err = err
				return nil
			}
			results[i].Asset = asset
			return nil
		})
	}
	_ = g.Wait()

	return results
}

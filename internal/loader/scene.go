package loader

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Manifest lists the models and light of a scene.
type Manifest struct {
	Light  LightSpec `yaml:"light"`
	Models []Request `yaml:"models"`
}

// Scene holds everything loaded from a manifest. Assets keep manifest
// order; a model that failed is listed in Failures instead.
type Scene struct {
	Light    Light
	Assets   []*Asset
	Failures []Result
}

// Bounds returns the world-space bounding box of all loaded models, with
// each model's Transform applied. ok is false when nothing was loaded.
func (s *Scene) Bounds() (lo, hi mgl32.Vec3, ok bool) {
	for _, asset := range s.Assets {
		if asset.Model.VertexCount() == 0 {
			continue
		}
		mlo, mhi := asset.Model.Bounds()
		for _, c := range boxCorners(mlo, mhi) {
			p := asset.Model.Transform.Mul4x1(c.Vec4(1)).Vec3()
			if !ok {
				lo, hi, ok = p, p, true
				continue
			}
			for k := 0; k < 3; k++ {
				lo[k] = min(lo[k], p[k])
				hi[k] = max(hi[k], p[k])
			}
		}
	}
	return lo, hi, ok
}

// Err joins the errors of all failed models.
func (s *Scene) Err() error {
	errs := make([]error, 0, len(s.Failures))
	for _, f := range s.Failures {
		errs = append(errs, f.Err)
	}
	return errors.Join(errs...)
}

// ParseManifest decodes a YAML scene manifest.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	if m.Light.Direction == ([3]float32{}) {
		m.Light.Direction = defaultLight.Direction
	}
	if m.Light.Color == ([3]float32{}) {
		m.Light.Color = defaultLight.Color
	}
	if m.Light.ShadowResolution <= 0 {
		m.Light.ShadowResolution = defaultLight.ShadowResolution
	}
	for i, req := range m.Models {
		if req.Model == "" {
			return nil, fmt.Errorf("parsing manifest: model %d has no source", i)
		}
	}
	return &m, nil
}

// LoadScene fetches a manifest and loads all of its models. A failed model
// does not stop the others.
func (l *Loader) LoadScene(ctx context.Context, src string) (*Scene, error) {
	data, err := l.fetch(ctx, src)
	if err != nil {
		return nil, err
	}
	manifest, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("loading scene %s: %w", src, err)
	}

	scene := &Scene{Light: NewLight(manifest.Light)}
	for _, res := range l.LoadAll(ctx, manifest.Models) {
		if res.Err != nil {
			scene.Failures = append(scene.Failures, res)
			continue
		}
		scene.Assets = append(scene.Assets, res.Asset)
	}

	if lo, hi, ok := scene.Bounds(); ok {
		scene.Light.FitShadow(lo, hi)
	}
	l.log.Info("scene loaded",
		zap.String("source", src),
		zap.Int("models", len(scene.Assets)),
		zap.Int("failed", len(scene.Failures)))
	return scene, nil
}

package loader

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// lightDistance places the light's eye along its direction.
const lightDistance = 5

// shadowPadding widens the fitted shadow volume to avoid edge artifacts.
const shadowPadding = 0.1

// defaultLight fills in what a manifest leaves out.
var defaultLight = LightSpec{
	Direction:        [3]float32{0, 1, 1},
	Color:            [3]float32{1, 1, 1},
	ShadowResolution: 1024,
}

// LightSpec describes a directional light.
type LightSpec struct {
	Direction        [3]float32 `yaml:"direction"`
	Color            [3]float32 `yaml:"color"`
	ShadowResolution int        `yaml:"shadow_resolution"`
}

// Light is a directional light with its shadow-pass matrices.
type Light struct {
	Direction        mgl32.Vec3
	Color            mgl32.Vec3
	ShadowResolution int
	View             mgl32.Mat4
	// Projection is identity until FitShadow sizes it to the scene.
	Projection mgl32.Mat4
}

// NewLight builds a Light looking at the origin from Direction scaled out
// to a fixed distance.
func NewLight(spec LightSpec) Light {
	dir := mgl32.Vec3(spec.Direction)
	eye := dir.Mul(lightDistance)

	// A light straight above or below is parallel to +Y; pick another up.
	up := mgl32.Vec3{0, 1, 0}
	if n := dir.Len(); n > 0 && abs32(dir.Y()/n) > 0.99 {
		up = mgl32.Vec3{0, 0, 1}
	}

	return Light{
		Direction:        dir,
		Color:            mgl32.Vec3(spec.Color),
		ShadowResolution: spec.ShadowResolution,
		View:             mgl32.LookAtV(eye, mgl32.Vec3{}, up),
		Projection:       mgl32.Ident4(),
	}
}

// FitShadow sets Projection to an orthographic volume that encloses the
// world-space box lo-hi as seen from the light.
func (l *Light) FitShadow(lo, hi mgl32.Vec3) {
	vlo := mgl32.Vec3{math.MaxFloat32, math.MaxFloat32, math.MaxFloat32}
	vhi := vlo.Mul(-1)
	for _, c := range boxCorners(lo, hi) {
		p := l.View.Mul4x1(c.Vec4(1)).Vec3()
		for k := 0; k < 3; k++ {
			vlo[k] = min(vlo[k], p[k])
			vhi[k] = max(vhi[k], p[k])
		}
	}

	pad := vhi.Sub(vlo).Len() * shadowPadding
	// View space looks down -Z, so the nearest point has the largest z.
	near := -vhi.Z() - pad
	far := -vlo.Z() + pad
	l.Projection = mgl32.Ortho(vlo.X()-pad, vhi.X()+pad, vlo.Y()-pad, vhi.Y()+pad, near, far)
}

// LightSpace returns Projection * View, the matrix the shadow pass renders
// with.
func (l *Light) LightSpace() mgl32.Mat4 {
	return l.Projection.Mul4(l.View)
}

func boxCorners(lo, hi mgl32.Vec3) [8]mgl32.Vec3 {
	var out [8]mgl32.Vec3
	for i := range out {
		for k := 0; k < 3; k++ {
			if i&(1<<k) != 0 {
				out[i][k] = hi[k]
			} else {
				out[i][k] = lo[k]
			}
		}
	}
	return out
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

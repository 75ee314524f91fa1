package obj

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// TangentSpace computes the flat tangent and bitangent of triangle ABC from
// its positions and texture coordinates. ok is false when the UV triangle
// has no area or the result does not fit in float32.
func TangentSpace(pa, pb, pc mgl64.Vec3, ta, tb, tc mgl64.Vec2) (tangent, bitangent mgl64.Vec3, ok bool) {
	edge1 := pb.Sub(pa)
	edge2 := pc.Sub(pa)
	uv1 := tb.Sub(ta)
	uv2 := tc.Sub(ta)

	det := uv1.X()*uv2.Y() - uv2.X()*uv1.Y()
	if det == 0 {
		return tangent, bitangent, false
	}
	f := 1.0 / det

	tangent = edge1.Mul(uv2.Y()).Sub(edge2.Mul(uv1.Y())).Mul(f)
	bitangent = edge2.Mul(uv1.X()).Sub(edge1.Mul(uv2.X())).Mul(f)

	if !finite32(tangent[:]...) || !finite32(bitangent[:]...) {
		return mgl64.Vec3{}, mgl64.Vec3{}, false
	}
	return tangent, bitangent, true
}

// finite32 reports whether every value survives conversion to float32.
func finite32(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) > math.MaxFloat32 {
			return false
		}
	}
	return true
}

package geo

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Ray is a half-line in world space. Direction must be normalized.
// Rays are built fresh each frame from the camera corners and never retained.
type Ray struct {
	Origin    mgl64.Vec3
	Direction mgl64.Vec3
}

// NewRay constructs a ray, normalizing the direction.
func NewRay(origin, direction mgl64.Vec3) Ray {
	return Ray{Origin: origin, Direction: direction.Normalize()}
}

// At returns the point at parameter t along the ray.
func (r Ray) At(t float64) mgl64.Vec3 {
	return r.Origin.Add(r.Direction.Mul(t))
}

// Sphere is the globe surface: a center and radius in world units.
type Sphere struct {
	Center mgl64.Vec3
	Radius float64
}

// NewGlobe returns the default globe sphere centered at the origin.
func NewGlobe() Sphere {
	return Sphere{Radius: WGS84SemiMajorKm}
}

// Intersect solves the ray-sphere quadratic and returns the surface point
// hit by the ray, or ok=false if the ray misses the sphere entirely.
//
// With the camera outside the sphere the nearer positive root is taken;
// with the origin inside the sphere the farther root is the only one in
// front of the ray. A tangent ray (single root) counts as one hit.
func (s Sphere) Intersect(r Ray) (point mgl64.Vec3, ok bool) {
	oc := r.Origin.Sub(s.Center)
	a := r.Direction.Dot(r.Direction)
	b := 2.0 * oc.Dot(r.Direction)
	c := oc.Dot(oc) - s.Radius*s.Radius

	discriminant := b*b - 4*a*c
	if discriminant < 0 {
		return mgl64.Vec3{}, false
	}

	sqrtD := math.Sqrt(discriminant)
	t1 := (-b - sqrtD) / (2 * a)
	t2 := (-b + sqrtD) / (2 * a)

	var t float64
	if t1 > 0 && (t2 < 0 || t1 < t2) {
		t = t1
	} else {
		t = t2
	}
	if t < 0 {
		// Both roots behind the origin: the sphere is behind the ray.
		return mgl64.Vec3{}, false
	}

	return r.At(t), true
}

// IntersectCoordinate intersects the ray with the sphere and converts the
// hit point to a geographic coordinate. ok=false means the ray missed the
// globe, which is a valid empty result rather than an error.
func (s Sphere) IntersectCoordinate(r Ray) (Coordinate, bool) {
	point, ok := s.Intersect(r)
	if !ok {
		return Coordinate{}, false
	}
	return CartesianToCoordinate(point, s.Center), true
}

// SurfaceDistance returns the distance from a world-space point to the
// nearest point of the sphere surface, clamped to zero for points inside.
func (s Sphere) SurfaceDistance(point mgl64.Vec3) float64 {
	d := point.Sub(s.Center).Len() - s.Radius
	if d < 0 {
		return 0
	}
	return d
}

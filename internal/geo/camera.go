package geo

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Camera is a pinhole camera supplying the per-frame corner rays. The
// renderer owns the real camera; this mirrors just enough of it to produce
// the four corner rays and the surface distance the engine consumes.
type Camera struct {
	Position mgl64.Vec3
	Forward  mgl64.Vec3
	Right    mgl64.Vec3
	Up       mgl64.Vec3

	FovYDeg float64
	Aspect  float64
}

// LookAtGlobe builds a camera at a geodetic position looking at the globe
// center. altitude is the height above the surface in world units.
func LookAtGlobe(sphere Sphere, lat, lon, altitude, fovYDeg, aspect float64) Camera {
	pos := Coordinate{Lat: lat, Lon: lon}.ToCartesian(sphere.Radius + altitude).Add(sphere.Center)

	forward := sphere.Center.Sub(pos).Normalize()
	globalUp := mgl64.Vec3{0, 1, 0}
	right := forward.Cross(globalUp)
	if right.Len() < 1e-9 {
		// Looking straight down a pole; any horizontal axis works.
		right = mgl64.Vec3{1, 0, 0}
	}
	right = right.Normalize()
	up := right.Cross(forward).Normalize()

	return Camera{
		Position: pos,
		Forward:  forward,
		Right:    right,
		Up:       up,
		FovYDeg:  fovYDeg,
		Aspect:   aspect,
	}
}

// CornerRays returns the four rays through the corners of the view frustum,
// ordered top-left, top-right, bottom-left, bottom-right.
func (c Camera) CornerRays() [4]Ray {
	tanHalfY := math.Tan(c.FovYDeg * math.Pi / 360.0)
	tanHalfX := tanHalfY * c.Aspect

	var rays [4]Ray
	i := 0
	for _, sy := range []float64{1, -1} {
		for _, sx := range []float64{-1, 1} {
			dir := c.Forward.
				Add(c.Right.Mul(sx * tanHalfX)).
				Add(c.Up.Mul(sy * tanHalfY))
			rays[i] = NewRay(c.Position, dir)
			i++
		}
	}
	return rays
}

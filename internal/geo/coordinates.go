package geo

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// WGS84SemiMajorKm is the equatorial radius of the Earth in kilometers.
// The globe is modeled as a sphere of this radius.
const WGS84SemiMajorKm = 6378.0

// Coordinate is a geographic position in degrees.
// Latitude is in [-90, 90], longitude in (-180, 180].
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// NormalizeLon wraps a longitude into (-180, 180].
func NormalizeLon(lon float64) float64 {
	lon = math.Mod(lon, 360)
	if lon <= -180 {
		lon += 360
	} else if lon > 180 {
		lon -= 360
	}
	return lon
}

// Validate checks that the coordinate is within geographic range.
func (c Coordinate) Validate() error {
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("latitude %f out of range [-90, 90]", c.Lat)
	}
	if c.Lon <= -180 || c.Lon > 180 {
		return fmt.Errorf("longitude %f out of range (-180, 180]", c.Lon)
	}
	return nil
}

// ToCartesian converts the coordinate to a point on a sphere of the given
// radius centered at the origin. Axis convention: +Y through the north pole,
// longitude measured in the XZ plane from +X toward +Z.
func (c Coordinate) ToCartesian(radius float64) mgl64.Vec3 {
	latRad := c.Lat * math.Pi / 180.0
	lonRad := c.Lon * math.Pi / 180.0

	x := radius * math.Cos(latRad) * math.Cos(lonRad)
	y := radius * math.Sin(latRad)
	z := radius * math.Cos(latRad) * math.Sin(lonRad)

	return mgl64.Vec3{x, y, z}
}

// CartesianToCoordinate converts a world-space point on (or near) a sphere
// centered at center to a geographic coordinate. The point is normalized
// relative to the sphere center, so points off the exact surface still map
// to the coordinate under them.
func CartesianToCoordinate(point, center mgl64.Vec3) Coordinate {
	p := point.Sub(center).Normalize()

	lat := math.Asin(clamp(p.Y(), -1, 1)) * 180.0 / math.Pi
	lon := math.Atan2(p.Z(), p.X()) * 180.0 / math.Pi

	return Coordinate{Lat: lat, Lon: NormalizeLon(lon)}
}

// LonDistance returns the cyclic angular distance between two longitudes,
// always in [0, 180].
func LonDistance(a, b float64) float64 {
	d := math.Abs(NormalizeLon(a) - NormalizeLon(b))
	if d > 180 {
		d = 360 - d
	}
	return d
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

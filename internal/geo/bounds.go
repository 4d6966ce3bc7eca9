package geo

import (
	"fmt"
	"math"
	"sort"
)

// BoundingBox is a geographic extent. When Wrap is set the longitude range
// crosses the antimeridian and runs West -> +180 / -180 -> East. When
// FullGlobe is set the box covers the whole globe and the numeric fields
// hold the fixed full range.
type BoundingBox struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`

	Wrap      bool `json:"wrap,omitempty"`
	FullGlobe bool `json:"fullGlobe,omitempty"`
}

// WholeGlobe returns the fixed whole-globe bounding box.
func WholeGlobe() BoundingBox {
	return BoundingBox{
		South:     -90,
		West:      -180,
		North:     90,
		East:      180,
		FullGlobe: true,
	}
}

// LonSpan returns the longitude extent of the box in degrees.
func (b BoundingBox) LonSpan() float64 {
	if b.FullGlobe {
		return 360
	}
	if b.Wrap {
		return (180 - b.West) + (b.East + 180)
	}
	return b.East - b.West
}

// Center returns the geographic center of the box.
func (b BoundingBox) Center() Coordinate {
	lat := (b.South + b.North) / 2
	lon := NormalizeLon(b.West + b.LonSpan()/2)
	if b.FullGlobe {
		lon = 0
	}
	return Coordinate{Lat: lat, Lon: lon}
}

// ContainsLon reports whether a longitude falls inside the box's arc.
func (b BoundingBox) ContainsLon(lon float64) bool {
	if b.FullGlobe {
		return true
	}
	lon = NormalizeLon(lon)
	if b.Wrap {
		return lon >= b.West || lon <= b.East
	}
	return lon >= b.West && lon <= b.East
}

// Contains reports whether a coordinate falls inside the box.
func (b BoundingBox) Contains(c Coordinate) bool {
	if b.FullGlobe {
		return true
	}
	if c.Lat < b.South || c.Lat > b.North {
		return false
	}
	return b.ContainsLon(c.Lon)
}

// Validate checks internal consistency of the box.
func (b BoundingBox) Validate() error {
	if b.South > b.North {
		return fmt.Errorf("south (%f) must not exceed north (%f)", b.South, b.North)
	}
	if b.South < -90 || b.North > 90 {
		return fmt.Errorf("latitude out of range [-90, 90]: south=%f north=%f", b.South, b.North)
	}
	return nil
}

// Accumulator folds visible-surface coordinates into a bounding box for the
// frame. The fold is commutative and associative: the resulting box depends
// only on the set of coordinates added, not their order. With no coordinates
// the accumulator falls back to the whole-globe box.
type Accumulator struct {
	coords []Coordinate
}

// Add folds one coordinate into the accumulator.
func (a *Accumulator) Add(c Coordinate) {
	a.coords = append(a.coords, c)
}

// Count returns the number of coordinates folded so far.
func (a *Accumulator) Count() int {
	return len(a.coords)
}

// Bounds computes the bounding box of the accumulated coordinates.
//
// Latitude is a plain min/max fold. Longitude is cyclic: the covering arc is
// the complement of the largest gap between the sorted longitudes, which is
// the shortest arc containing all of them. A box never wraps "the long way"
// around the globe.
func (a *Accumulator) Bounds() BoundingBox {
	if len(a.coords) == 0 {
		return WholeGlobe()
	}

	south, north := a.coords[0].Lat, a.coords[0].Lat
	for _, c := range a.coords[1:] {
		south = math.Min(south, c.Lat)
		north = math.Max(north, c.Lat)
	}

	lons := make([]float64, len(a.coords))
	for i, c := range a.coords {
		lons[i] = NormalizeLon(c.Lon)
	}
	sort.Float64s(lons)

	// Find the largest gap between consecutive longitudes, including the
	// gap that crosses the antimeridian between the last and first.
	gapStart := len(lons) - 1
	largestGap := (lons[0] + 360) - lons[len(lons)-1]
	for i := 1; i < len(lons); i++ {
		if gap := lons[i] - lons[i-1]; gap > largestGap {
			largestGap = gap
			gapStart = i - 1
		}
	}

	west := lons[(gapStart+1)%len(lons)]
	east := lons[gapStart]

	return BoundingBox{
		South: south,
		West:  west,
		North: north,
		East:  east,
		Wrap:  west > east,
	}
}

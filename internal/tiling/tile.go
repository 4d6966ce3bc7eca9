package tiling

import (
	"fmt"

	"globe-viewer/internal/geo"
)

// MaxLevel is the finest detail level the grid supports.
const MaxLevel = 23

// TileID identifies one tile of the geographic quad-tree pyramid. Its
// footprint is a pure function of the ID alone.
//
// Grid convention: at level L there are 2^L columns spanning longitude and
// max(1, 2^(L-1)) rows spanning latitude, so tiles are square in degrees
// for L >= 1 and each level doubles the grid of the previous one. Row 0
// borders the north pole, column 0 borders longitude -180.
type TileID struct {
	Level int `json:"level"`
	Row   int `json:"row"`
	Col   int `json:"col"`
}

// Cols returns the number of columns at a level.
func Cols(level int) int {
	return 1 << level
}

// Rows returns the number of rows at a level.
func Rows(level int) int {
	if level == 0 {
		return 1
	}
	return 1 << (level - 1)
}

// NewTileID creates a tile ID, validating it against the grid.
func NewTileID(level, row, col int) (TileID, error) {
	if level < 0 || level > MaxLevel {
		return TileID{}, fmt.Errorf("level %d out of range [0, %d]", level, MaxLevel)
	}
	if row < 0 || row >= Rows(level) {
		return TileID{}, fmt.Errorf("row %d out of range [0, %d) for level %d", row, Rows(level), level)
	}
	if col < 0 || col >= Cols(level) {
		return TileID{}, fmt.Errorf("col %d out of range [0, %d) for level %d", col, Cols(level), level)
	}
	return TileID{Level: level, Row: row, Col: col}, nil
}

func (t TileID) String() string {
	return fmt.Sprintf("%d/%d/%d", t.Level, t.Row, t.Col)
}

// LonWidth returns the longitude extent of one tile at a level, in degrees.
func LonWidth(level int) float64 {
	return 360.0 / float64(Cols(level))
}

// LatHeight returns the latitude extent of one tile at a level, in degrees.
func LatHeight(level int) float64 {
	return 180.0 / float64(Rows(level))
}

// Bounds returns the tile's geographic footprint. Tiles never cross the
// antimeridian: column 0 starts exactly at longitude -180.
func (t TileID) Bounds() geo.BoundingBox {
	lonW := LonWidth(t.Level)
	latH := LatHeight(t.Level)

	west := -180.0 + float64(t.Col)*lonW
	north := 90.0 - float64(t.Row)*latH

	return geo.BoundingBox{
		South: north - latH,
		West:  west,
		North: north,
		East:  west + lonW,
	}
}

// Center returns the geographic center of the tile.
func (t TileID) Center() geo.Coordinate {
	b := t.Bounds()
	return geo.Coordinate{
		Lat: (b.South + b.North) / 2,
		Lon: (b.West + b.East) / 2,
	}
}

// Parent returns the tile one level coarser containing this tile.
// Level 0 has no parent; ok is false there.
func (t TileID) Parent() (TileID, bool) {
	if t.Level == 0 {
		return TileID{}, false
	}
	parent := TileID{Level: t.Level - 1, Col: t.Col / 2}
	if t.Level > 1 {
		parent.Row = t.Row / 2
	}
	return parent, true
}

// ColAt returns the column containing a longitude at a level.
func ColAt(lon float64, level int) int {
	col := int((geo.NormalizeLon(lon) + 180.0) / LonWidth(level))
	return clamp(col, 0, Cols(level)-1)
}

// RowAt returns the row containing a latitude at a level.
func RowAt(lat float64, level int) int {
	row := int((90.0 - lat) / LatHeight(level))
	return clamp(row, 0, Rows(level)-1)
}

// TileAt returns the tile containing a coordinate at a level.
func TileAt(c geo.Coordinate, level int) TileID {
	return TileID{Level: level, Row: RowAt(c.Lat, level), Col: ColAt(c.Lon, level)}
}

func clamp(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}

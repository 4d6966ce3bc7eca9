package tiling

import (
	"sort"

	"globe-viewer/internal/geo"
)

// Cover enumerates the tiles covering a bounding box at a detail level,
// ordered nearest-to-box-center first. The result is deduplicated and
// capped at maxTiles, dropping the farthest (lowest-priority) tiles; a cap
// of zero or less means no cap. Enumeration is a pure function of its
// inputs: the same box and level always yield the same tile set.
func Cover(box geo.BoundingBox, level int, maxTiles int) []TileID {
	rowMin, rowMax := 0, Rows(level)-1
	if !box.FullGlobe {
		rowMin = RowAt(box.North, level)
		rowMax = RowAt(box.South, level)
	}

	// An antimeridian-spanning box produces two column ranges.
	type colRange struct{ min, max int }
	var colRanges []colRange
	switch {
	case box.FullGlobe:
		colRanges = []colRange{{0, Cols(level) - 1}}
	case box.Wrap:
		colRanges = []colRange{
			{ColAt(box.West, level), Cols(level) - 1},
			{0, ColAt(box.East, level)},
		}
	default:
		colRanges = []colRange{{ColAt(box.West, level), ColAt(box.East, level)}}
	}

	seen := make(map[TileID]struct{})
	var tiles []TileID
	for row := rowMin; row <= rowMax; row++ {
		for _, cr := range colRanges {
			for col := cr.min; col <= cr.max; col++ {
				id := TileID{Level: level, Row: row, Col: col}
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
				tiles = append(tiles, id)
			}
		}
	}

	sortByDistanceToCenter(tiles, box.Center())

	if maxTiles > 0 && len(tiles) > maxTiles {
		tiles = tiles[:maxTiles]
	}
	return tiles
}

// sortByDistanceToCenter orders tiles by angular distance between their
// center and the box center, with a deterministic row/col tie-break so the
// priority order is stable across frames.
func sortByDistanceToCenter(tiles []TileID, center geo.Coordinate) {
	target := center.ToCartesian(1)

	dist := make(map[TileID]float64, len(tiles))
	for _, t := range tiles {
		// Squared chord distance between unit vectors is monotone in the
		// angle, so it sorts identically to great-circle distance.
		d := t.Center().ToCartesian(1).Sub(target)
		dist[t] = d.Dot(d)
	}

	sort.SliceStable(tiles, func(i, j int) bool {
		di, dj := dist[tiles[i]], dist[tiles[j]]
		if di != dj {
			return di < dj
		}
		if tiles[i].Row != tiles[j].Row {
			return tiles[i].Row < tiles[j].Row
		}
		return tiles[i].Col < tiles[j].Col
	})
}

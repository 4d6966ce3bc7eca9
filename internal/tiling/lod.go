package tiling

import (
	"fmt"
	"sort"
)

// LODThreshold pairs a camera-to-surface distance with the detail level
// used once the camera comes closer than that distance.
type LODThreshold struct {
	Distance float64 `json:"distance"`
	Level    int     `json:"level"`
}

// LODSelector maps camera-to-surface distance to a detail level via a
// monotonically decreasing step function: closer camera, finer level.
type LODSelector struct {
	thresholds []LODThreshold
	maxLevel   int
}

// NewLODSelector builds a selector from (distance, level) pairs. The pairs
// are sorted by distance descending; levels must then be non-decreasing
// toward smaller distances, otherwise selection would flicker as the
// camera moves.
func NewLODSelector(thresholds []LODThreshold, maxLevel int) (*LODSelector, error) {
	if maxLevel < 0 || maxLevel > MaxLevel {
		return nil, fmt.Errorf("max level %d out of range [0, %d]", maxLevel, MaxLevel)
	}
	if len(thresholds) == 0 {
		return nil, fmt.Errorf("at least one LOD threshold is required")
	}

	sorted := make([]LODThreshold, len(thresholds))
	copy(sorted, thresholds)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Distance > sorted[j].Distance
	})

	for i, th := range sorted {
		if th.Distance <= 0 {
			return nil, fmt.Errorf("LOD threshold distance must be positive, got %f", th.Distance)
		}
		if th.Level < 0 || th.Level > maxLevel {
			return nil, fmt.Errorf("LOD level %d out of range [0, %d]", th.Level, maxLevel)
		}
		if i > 0 {
			if th.Distance == sorted[i-1].Distance {
				return nil, fmt.Errorf("duplicate LOD threshold distance %f", th.Distance)
			}
			if th.Level < sorted[i-1].Level {
				return nil, fmt.Errorf("LOD levels must not decrease as distance shrinks: %d after %d",
					th.Level, sorted[i-1].Level)
			}
		}
	}

	return &LODSelector{thresholds: sorted, maxLevel: maxLevel}, nil
}

// Select returns the detail level for a camera-to-surface distance.
// A threshold counts as crossed only when the camera is strictly closer
// than it, so a distance exactly on a threshold resolves to the coarser
// level and biases against over-fetching.
func (s *LODSelector) Select(distance float64) int {
	if distance < 0 {
		distance = 0
	}

	level := 0
	for _, th := range s.thresholds {
		if distance < th.Distance {
			level = th.Level
		}
	}

	return clamp(level, 0, s.maxLevel)
}

// MaxLevelLimit returns the configured level cap.
func (s *LODSelector) MaxLevelLimit() int {
	return s.maxLevel
}

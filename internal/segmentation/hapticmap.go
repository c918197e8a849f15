package segmentation

// HapticMap is a per-pixel table of haptic density values derived from a
// clustering fit. It is created wholesale by Fit and replaced wholesale on
// retrain, never mutated cell by cell. A nil map reports zero density
// everywhere so callers need no special untrained-state handling.
type HapticMap struct {
	Width  int
	Height int

	densities []uint8 // row-major
}

// Contains reports whether (x, y) falls inside the map bounds.
func (m *HapticMap) Contains(x, y int) bool {
	if m == nil {
		return false
	}
	return x >= 0 && x < m.Width && y >= 0 && y < m.Height
}

// At returns the density at integer coordinates. Out-of-range coordinates are
// clamped into the map rather than rejected: cursor positions routinely stray
// outside the scan.
func (m *HapticMap) At(x, y int) uint8 {
	if m == nil || m.Width <= 0 || m.Height <= 0 {
		return 0
	}
	x = clamp(x, 0, m.Width-1)
	y = clamp(y, 0, m.Height-1)
	return m.densities[y*m.Width+x]
}

// AtNormalized returns the density for normalized coordinates in [0,1].
// Coordinates are scaled by the map dimensions, truncated toward zero, then
// clamped, so AtNormalized(1, 1) lands on the far corner cell.
func (m *HapticMap) AtNormalized(xn, yn float64) uint8 {
	if m == nil {
		return 0
	}
	return m.At(int(xn*float64(m.Width)), int(yn*float64(m.Height)))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

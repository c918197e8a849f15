package segmentation

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	// DefaultClusterCount separates scans into fluid, soft tissue and dense
	// tissue bands.
	DefaultClusterCount = 3
	// DefaultRounds is the fixed number of refinement rounds. The fit always
	// runs the full round count rather than early-stopping on convergence, so
	// fit cost is deterministic.
	DefaultRounds = 10
)

// FitParams configures a segmentation fit.
type FitParams struct {
	// ClusterCount is the number of intensity clusters. Must be at least 2:
	// with a single cluster the initial centroid spacing is undefined.
	ClusterCount int
	// Rounds is the number of refinement rounds; zero selects DefaultRounds.
	Rounds int
	// DensityBands maps ascending cluster rank to haptic density. Length must
	// equal ClusterCount; nil selects DefaultDensityBands(ClusterCount).
	DensityBands []uint8
}

// DefaultFitParams returns the parameters used by the shipped demonstrator.
func DefaultFitParams() FitParams {
	return FitParams{
		ClusterCount: DefaultClusterCount,
		Rounds:       DefaultRounds,
	}
}

// DefaultDensityBands returns the density table for a given cluster count.
// Three clusters use the motor-calibrated bands (none / moderate / maximum
// resistance); other counts spread evenly across the actuation range.
func DefaultDensityBands(clusterCount int) []uint8 {
	if clusterCount == 3 {
		return []uint8{0, 80, 255}
	}
	bands := make([]uint8, clusterCount)
	for i := range bands {
		bands[i] = uint8(i * 255 / (clusterCount - 1))
	}
	return bands
}

// ClusterModel is the result of an intensity clustering fit. Centroids are
// sorted ascending, so index 0 is always the darkest cluster.
type ClusterModel struct {
	Centroids []float64
}

// Fit runs a deterministic k-means over the image's intensity distribution and
// builds the haptic map at the image's (working) resolution. Centroids are
// initialised evenly across the observed intensity range, refined for a fixed
// number of rounds, then sorted ascending and mapped rank-by-rank onto the
// density table.
func Fit(img *Grayscale, p FitParams) (*ClusterModel, *HapticMap, error) {
	if img == nil || img.Width <= 0 || img.Height <= 0 || len(img.Pixels) == 0 {
		return nil, nil, fmt.Errorf("%w: no image samples", ErrImageDecode)
	}
	if p.ClusterCount < 2 {
		return nil, nil, fmt.Errorf("%w: cluster count %d (minimum 2)", ErrInvalidConfiguration, p.ClusterCount)
	}
	if p.Rounds <= 0 {
		p.Rounds = DefaultRounds
	}
	bands := p.DensityBands
	if bands == nil {
		bands = DefaultDensityBands(p.ClusterCount)
	}
	if len(bands) != p.ClusterCount {
		return nil, nil, fmt.Errorf("%w: %d density bands for %d clusters", ErrInvalidConfiguration, len(bands), p.ClusterCount)
	}

	samples := make([]float64, len(img.Pixels))
	for i, v := range img.Pixels {
		samples[i] = float64(v)
	}

	// Even spacing across the observed range. A zero-range image (min == max)
	// yields step 0 and all centroids equal; the iteration still runs and the
	// empty-partition rule keeps every centroid finite.
	lo, hi := floats.Min(samples), floats.Max(samples)
	step := (hi - lo) / float64(p.ClusterCount-1)
	centroids := make([]float64, p.ClusterCount)
	for i := range centroids {
		centroids[i] = lo + step*float64(i)
	}

	partitions := make([][]float64, p.ClusterCount)
	for round := 0; round < p.Rounds; round++ {
		for i := range partitions {
			partitions[i] = partitions[i][:0]
		}
		for _, v := range samples {
			c := nearestCentroid(centroids, v)
			partitions[c] = append(partitions[c], v)
		}
		for i, part := range partitions {
			if len(part) == 0 {
				continue // empty partition: centroid unchanged, never NaN
			}
			centroids[i] = stat.Mean(part, nil)
		}
	}

	sort.Float64s(centroids)
	model := &ClusterModel{Centroids: centroids}

	hm := &HapticMap{
		Width:     img.Width,
		Height:    img.Height,
		densities: make([]uint8, len(img.Pixels)),
	}
	for i, v := range samples {
		hm.densities[i] = bands[nearestCentroid(centroids, v)]
	}
	return model, hm, nil
}

// nearestCentroid returns the index of the centroid closest to v by absolute
// intensity difference. Ties go to the lower index.
func nearestCentroid(centroids []float64, v float64) int {
	best := 0
	bestDist := math.Abs(centroids[0] - v)
	for i := 1; i < len(centroids); i++ {
		if d := math.Abs(centroids[i] - v); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

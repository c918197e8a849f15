package segmentation

import (
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeGrayscale builds a test grid whose intensity at (x, y) comes from fill.
func makeGrayscale(w, h int, fill func(x, y int) uint8) *Grayscale {
	g := &Grayscale{Width: w, Height: h, Pixels: make([]uint8, w*h)}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			g.Pixels[y*w+x] = fill(x, y)
		}
	}
	return g
}

// threeBands returns an image with equal horizontal bands at the given
// intensities.
func threeBands(w, h int, low, mid, high uint8) *Grayscale {
	return makeGrayscale(w, h, func(x, y int) uint8 {
		switch {
		case y < h/3:
			return low
		case y < 2*h/3:
			return mid
		default:
			return high
		}
	})
}

func TestFitRejectsDegenerateClusterCount(t *testing.T) {
	t.Parallel()
	img := makeGrayscale(10, 10, func(x, y int) uint8 { return uint8(x * 20) })

	for _, k := range []int{-1, 0, 1} {
		_, _, err := Fit(img, FitParams{ClusterCount: k})
		assert.ErrorIs(t, err, ErrInvalidConfiguration, "clusterCount=%d", k)
	}
}

func TestFitRejectsMissingImage(t *testing.T) {
	t.Parallel()
	_, _, err := Fit(nil, DefaultFitParams())
	assert.ErrorIs(t, err, ErrImageDecode)

	_, _, err = Fit(&Grayscale{}, DefaultFitParams())
	assert.ErrorIs(t, err, ErrImageDecode)
}

func TestFitRejectsBandTableMismatch(t *testing.T) {
	t.Parallel()
	img := makeGrayscale(10, 10, func(x, y int) uint8 { return uint8(x * 20) })
	_, _, err := Fit(img, FitParams{ClusterCount: 3, DensityBands: []uint8{0, 255}})
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestFitCentroidsSorted(t *testing.T) {
	t.Parallel()
	img := makeGrayscale(64, 64, func(x, y int) uint8 {
		return uint8((x*7 + y*13) % 256) // spread over the full range
	})

	for _, k := range []int{2, 3, 4, 5} {
		model, _, err := Fit(img, FitParams{ClusterCount: k})
		require.NoError(t, err, "clusterCount=%d", k)
		require.Len(t, model.Centroids, k)
		assert.True(t, sort.Float64sAreSorted(model.Centroids),
			"centroids not sorted for k=%d: %v", k, model.Centroids)
	}
}

func TestFitUniformIntensity(t *testing.T) {
	t.Parallel()
	// Zero intensity range: the initial step is 0 and all centroids start
	// equal. The fit must stay finite and never divide by zero.
	img := makeGrayscale(50, 50, func(x, y int) uint8 { return 80 })

	model, hm, err := Fit(img, FitParams{ClusterCount: 3})
	require.NoError(t, err)
	for i, c := range model.Centroids {
		assert.False(t, math.IsNaN(c) || math.IsInf(c, 0), "centroid %d not finite: %v", i, c)
		assert.InDelta(t, 80.0, c, 1e-9)
	}
	// All samples land in the first (lowest-rank) cluster.
	assert.Equal(t, uint8(0), hm.At(25, 25))
}

func TestFitThreeBandConvergence(t *testing.T) {
	t.Parallel()
	img := threeBands(60, 60, 20, 150, 240)

	model, hm, err := Fit(img, FitParams{ClusterCount: 3})
	require.NoError(t, err)

	require.Len(t, model.Centroids, 3)
	assert.InDelta(t, 20, model.Centroids[0], 1.0)
	assert.InDelta(t, 150, model.Centroids[1], 1.0)
	assert.InDelta(t, 240, model.Centroids[2], 1.0)

	// Each band maps to its configured density rank.
	assert.Equal(t, uint8(0), hm.At(30, 5), "low band")
	assert.Equal(t, uint8(80), hm.At(30, 30), "mid band")
	assert.Equal(t, uint8(255), hm.At(30, 55), "high band")
}

func TestFitCustomBands(t *testing.T) {
	t.Parallel()
	img := threeBands(30, 30, 10, 120, 250)
	_, hm, err := Fit(img, FitParams{ClusterCount: 3, DensityBands: []uint8{5, 100, 200}})
	require.NoError(t, err)
	assert.Equal(t, uint8(5), hm.At(15, 2))
	assert.Equal(t, uint8(100), hm.At(15, 15))
	assert.Equal(t, uint8(200), hm.At(15, 28))
}

func TestFitAlwaysRunsConfiguredRounds(t *testing.T) {
	t.Parallel()
	// A two-band image converges immediately; extra rounds must leave the
	// centroids stable rather than perturbing or emptying them.
	img := makeGrayscale(40, 40, func(x, y int) uint8 {
		if x < 20 {
			return 40
		}
		return 200
	})

	few, _, err := Fit(img, FitParams{ClusterCount: 2, Rounds: 2})
	require.NoError(t, err)
	many, _, err := Fit(img, FitParams{ClusterCount: 2, Rounds: 50})
	require.NoError(t, err)
	assert.InDeltaSlice(t, few.Centroids, many.Centroids, 1e-9)
}

func TestDefaultDensityBands(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []uint8{0, 80, 255}, DefaultDensityBands(3))
	assert.Equal(t, []uint8{0, 255}, DefaultDensityBands(2))
	assert.Equal(t, []uint8{0, 63, 127, 191, 255}, DefaultDensityBands(5))
}

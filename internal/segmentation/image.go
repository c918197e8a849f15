package segmentation

import (
	"fmt"
	"image"

	xdraw "golang.org/x/image/draw"
)

// DefaultWorkingSize is the square working resolution images are downscaled to
// before fitting. Fitting cost is bounded by this, not by the source or display
// resolution.
const DefaultWorkingSize = 400

// Grayscale is an immutable 2D grid of intensity samples (0-255).
type Grayscale struct {
	Width  int
	Height int
	Pixels []uint8 // row-major, len == Width*Height
}

// FromImage converts an already-decoded image to a Grayscale grid at the given
// square working resolution. Colour images are collapsed through the grayscale
// colour model during scaling.
func FromImage(src image.Image, workingSize int) (*Grayscale, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: nil image", ErrImageDecode)
	}
	b := src.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("%w: empty bounds %v", ErrImageDecode, b)
	}
	if workingSize <= 0 {
		workingSize = DefaultWorkingSize
	}

	dst := image.NewGray(image.Rect(0, 0, workingSize, workingSize))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, xdraw.Src, nil)

	g := &Grayscale{
		Width:  workingSize,
		Height: workingSize,
		Pixels: make([]uint8, workingSize*workingSize),
	}
	copy(g.Pixels, dst.Pix)
	return g, nil
}

// At returns the intensity at (x, y). Coordinates are assumed in bounds.
func (g *Grayscale) At(x, y int) uint8 {
	return g.Pixels[y*g.Width+x]
}

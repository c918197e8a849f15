package segmentation

import "errors"

// ErrImageDecode indicates the source image could not be decoded or prepared
// for fitting (nil image, empty bounds, failed resize).
var ErrImageDecode = errors.New("image could not be decoded")

// ErrInvalidConfiguration indicates a degenerate fit configuration, such as a
// cluster count below two or a density table that does not match it.
var ErrInvalidConfiguration = errors.New("invalid configuration")

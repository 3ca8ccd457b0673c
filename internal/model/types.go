package model

// Layout is the memory order of an image tensor
type Layout string

const (
	LayoutNHWC Layout = "nhwc"
	LayoutNCHW Layout = "nchw"
)

// PixelScale is the value range a model expects for its pixels
type PixelScale string

const (
	// ScaleUnit maps 0..255 to 0..1
	ScaleUnit PixelScale = "unit"
	// ScaleRaw keeps 0..255
	ScaleRaw PixelScale = "raw"
)

// Factor is the multiplier applied to a 0..1 channel value
func (p PixelScale) Factor() float32 {
	if p == ScaleRaw {
		return 255
	}
	return 1
}

// ImageShape is the batch-of-one tensor shape for a square RGB input
func ImageShape(size int, layout Layout) []int64 {
	s := int64(size)
	if layout == LayoutNCHW {
		return []int64{1, 3, s, s}
	}
	return []int64{1, s, s, 3}
}

// NumElements multiplies the dimensions of shape
func NumElements(shape []int64) int {
	n := 1
	for _, d := range shape {
		n *= int(d)
	}
	return n
}

package model

import (
	"image"
	"image/color"
	"math"

	"github.com/nfnt/resize"
	"golang.org/x/image/draw"
)

// letterboxFill is the grey the detector was trained to see as padding
var letterboxFill = color.RGBA{R: 114, G: 114, B: 114, A: 255}

// Resize scales img to a size x size square, ignoring aspect ratio
func Resize(img image.Image, size int) image.Image {
	return resize.Resize(uint(size), uint(size), img, resize.Lanczos3)
}

// ToTensor flattens the RGB channels of img into layout order, scaled by
// scale. Alpha is dropped.
func ToTensor(img image.Image, layout Layout, scale PixelScale) []float32 {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	plane := width * height
	factor := scale.Factor()

	data := make([]float32, 3*plane)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()

			rNorm := float32(r) / 65535.0 * factor
			gNorm := float32(g) / 65535.0 * factor
			bNorm := float32(b) / 65535.0 * factor

			pixelIndex := y*width + x
			if layout == LayoutNCHW {
				data[pixelIndex] = rNorm
				data[plane+pixelIndex] = gNorm
				data[2*plane+pixelIndex] = bNorm
				continue
			}
			data[3*pixelIndex] = rNorm
			data[3*pixelIndex+1] = gNorm
			data[3*pixelIndex+2] = bNorm
		}
	}
	return data
}

// LetterboxInfo records how a source image was fitted into the model input
type LetterboxInfo struct {
	Scale      float64
	PadX, PadY int
	SrcW, SrcH int
}

// Letterbox fits img into a size x size square keeping its aspect ratio and
// pads the rest with grey
func Letterbox(img image.Image, size int) (image.Image, LetterboxInfo) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	scale := math.Min(float64(size)/float64(w), float64(size)/float64(h))

	nw := max(1, int(math.Round(float64(w)*scale)))
	nh := max(1, int(math.Round(float64(h)*scale)))

	canvas := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: letterboxFill}, image.Point{}, draw.Src)

	padX, padY := (size-nw)/2, (size-nh)/2
	draw.ApproxBiLinear.Scale(canvas, image.Rect(padX, padY, padX+nw, padY+nh), img, bounds, draw.Src, nil)

	return canvas, LetterboxInfo{Scale: scale, PadX: padX, PadY: padY, SrcW: w, SrcH: h}
}

// Unmap converts a point in letterboxed coordinates back to the source image,
// clamped to its bounds
func (l LetterboxInfo) Unmap(x, y float32) (int, int) {
	ox := (float64(x) - float64(l.PadX)) / l.Scale
	oy := (float64(y) - float64(l.PadY)) / l.Scale
	return clamp(int(ox), 0, l.SrcW), clamp(int(oy), 0, l.SrcH)
}

// Crop returns the part of img inside r (relative to img's origin)
func Crop(img image.Image, r image.Rectangle) image.Image {
	r = r.Add(img.Bounds().Min).Intersect(img.Bounds())
	if sub, ok := img.(interface {
		SubImage(image.Rectangle) image.Image
	}); ok {
		return sub.SubImage(r)
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	return dst
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

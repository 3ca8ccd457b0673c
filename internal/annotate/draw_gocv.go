//go:build gocv
// +build gocv

package annotate

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/Brownie44l1/waste-api/internal/detector"
)

// Draw returns a copy of img with every detection boxed and labelled using
// OpenCV drawing primitives.
func Draw(img image.Image, dets []detector.Detection, caption Caption) (image.Image, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("image to mat: %w", err)
	}
	defer mat.Close()

	if mat.Empty() {
		return nil, fmt.Errorf("empty image")
	}

	c := caption.Color()
	for _, d := range dets {
		r := d.Rect()
		gocv.Rectangle(&mat, r, c, thickness)

		label := BoxLabel(d)
		size := gocv.GetTextSize(label, gocv.FontHersheySimplex, 0.5, 1)
		y := r.Min.Y
		if y < size.Y+4 {
			y = size.Y + 4
		}
		bg := image.Rect(r.Min.X, y-size.Y-4, r.Min.X+size.X, y)
		gocv.Rectangle(&mat, bg, c, -1)
		gocv.PutText(&mat, label, image.Pt(r.Min.X, y-2), gocv.FontHersheySimplex, 0.5, white, 1)
	}

	if t := caption.Text(); t != "" {
		gocv.PutText(&mat, t, image.Pt(10, 30), gocv.FontHersheySimplex, 1, c, 2)
	}

	return mat.ToImage()
}

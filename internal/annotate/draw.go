//go:build !gocv
// +build !gocv

package annotate

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/Brownie44l1/waste-api/internal/detector"
)

var face = basicfont.Face7x13

// Draw returns a copy of img with every detection boxed and labelled. The
// source image is left untouched.
func Draw(img image.Image, dets []detector.Detection, caption Caption) (image.Image, error) {
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)

	c := caption.Color()
	for _, d := range dets {
		r := d.Rect().Intersect(out.Bounds())
		if r.Empty() {
			continue
		}
		box(out, r, c)
		text(out, BoxLabel(d), r.Min, c)
	}

	if t := caption.Text(); t != "" {
		text(out, t, image.Pt(0, face.Height+2), c)
	}
	return out, nil
}

func box(dst *image.RGBA, r image.Rectangle, c color.Color) {
	src := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+thickness),
		image.Rect(r.Min.X, r.Max.Y-thickness, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+thickness, r.Max.Y),
		image.Rect(r.Max.X-thickness, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(r), src, image.Point{}, draw.Src)
	}
}

// text draws s on a filled background whose bottom left corner is at,
// moving it inside the image when there is no room above
func text(dst *image.RGBA, s string, at image.Point, bg color.Color) {
	w := font.MeasureString(face, s).Ceil() + 4
	h := face.Height + 2
	top := at.Y - h
	if top < 0 {
		top = 0
	}
	area := image.Rect(at.X, top, at.X+w, top+h).Intersect(dst.Bounds())
	draw.Draw(dst, area, image.NewUniform(bg), image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(white),
		Face: face,
		Dot:  fixed.P(area.Min.X+2, area.Min.Y+face.Ascent),
	}
	d.DrawString(s)
}

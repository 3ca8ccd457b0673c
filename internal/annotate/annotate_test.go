//go:build !gocv

package annotate

import (
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/waste-api/internal/detector"
	"github.com/Brownie44l1/waste-api/internal/disposal"
	"github.com/Brownie44l1/waste-api/internal/model"
)

func blank(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{A: 255})
		}
	}
	return img
}

func TestDraw_BoxesInCategoryColour(t *testing.T) {
	src := blank(60, 60)
	dets := []detector.Detection{{BBox: [4]int{2, 30, 40, 50}, Confidence: 0.91, ClassName: "waste"}}

	out, err := Draw(src, dets, Caption{Category: disposal.Organic, Confidence: 0.8})
	require.NoError(t, err)

	rgba := out.(*image.RGBA)
	require.Equal(t, orange, rgba.RGBAAt(2, 45))
	require.Equal(t, orange, rgba.RGBAAt(39, 45))
	require.Equal(t, color.RGBA{A: 255}, rgba.RGBAAt(20, 40))
	require.Equal(t, color.RGBA{A: 255}, rgba.RGBAAt(55, 55))

	// source untouched
	require.Equal(t, color.RGBA{A: 255}, src.RGBAAt(2, 45))
}

func TestDraw_AnomalyIsMagenta(t *testing.T) {
	dets := []detector.Detection{{BBox: [4]int{5, 20, 25, 40}, Confidence: 0.5}}
	out, err := Draw(blank(40, 40), dets, Caption{Category: disposal.Recyclable, Anomaly: true})
	require.NoError(t, err)
	require.Equal(t, magenta, out.(*image.RGBA).RGBAAt(5, 35))
}

func TestDraw_OffsetBoundsAndOutOfRangeBoxes(t *testing.T) {
	src := blank(80, 80).SubImage(image.Rect(20, 20, 60, 60))
	dets := []detector.Detection{
		{BBox: [4]int{100, 100, 120, 120}, Confidence: 0.9},
		{BBox: [4]int{0, 20, 10, 30}, Confidence: 0.9},
	}
	out, err := Draw(src, dets, Caption{})
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 40, 40), out.Bounds())
	require.Equal(t, green, out.(*image.RGBA).RGBAAt(0, 25))
}

func TestCaption(t *testing.T) {
	require.Equal(t, "E-Waste: 87.5%", Caption{Category: disposal.EWaste, Confidence: 0.875}.Text())
	require.Equal(t, "Anomaly", Caption{Category: disposal.General, Anomaly: true}.Text())
	require.Empty(t, Caption{}.Text())
}

func TestColorFor(t *testing.T) {
	require.Equal(t, green, ColorFor(disposal.Recyclable))
	require.Equal(t, red, ColorFor("E-WASTE"))
	require.Equal(t, grey, ColorFor(disposal.General))
	require.Equal(t, green, ColorFor("styrofoam"))
}

func TestBoxLabel(t *testing.T) {
	require.Equal(t, "waste: 0.73", BoxLabel(detector.Detection{Confidence: 0.734}))
	require.Equal(t, "bottle: 0.50", BoxLabel(detector.Detection{Confidence: 0.5, ClassName: "bottle"}))
}

func TestSaveAndName(t *testing.T) {
	require.Equal(t, "ab12cd34_can_annotated.jpg", AnnotatedName("ab12cd34_can.png"))

	path := filepath.Join(t.TempDir(), AnnotatedName("x.webp"))
	require.NoError(t, Save(path, blank(8, 8)))

	img, format, err := model.DecodeFile(path)
	require.NoError(t, err)
	require.Equal(t, "jpeg", format)
	require.Equal(t, 8, img.Bounds().Dx())
}

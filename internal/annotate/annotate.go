// Package annotate draws detection boxes and the verdict onto an image.
//
// The default build draws with image/draw and a bitmap font. Building with
// -tags gocv switches to OpenCV drawing primitives.
package annotate

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/Brownie44l1/waste-api/internal/detector"
	"github.com/Brownie44l1/waste-api/internal/disposal"
)

const thickness = 2

var (
	green   = color.RGBA{G: 255, A: 255}
	orange  = color.RGBA{R: 255, G: 165, A: 255}
	red     = color.RGBA{R: 255, A: 255}
	grey    = color.RGBA{R: 128, G: 128, B: 128, A: 255}
	magenta = color.RGBA{R: 255, B: 255, A: 255}
	white   = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

var title = cases.Title(language.English)

// Caption is the verdict printed in the top left corner. A zero Caption
// draws boxes only.
type Caption struct {
	Category   string
	Confidence float32
	Anomaly    bool
}

// Text is "Organic: 87.0%" or "Anomaly"
func (c Caption) Text() string {
	if c.Anomaly {
		return "Anomaly"
	}
	if c.Category == "" {
		return ""
	}
	return fmt.Sprintf("%s: %.1f%%", title.String(c.Category), c.Confidence*100)
}

// Color is the box colour for the caption's category
func (c Caption) Color() color.RGBA {
	if c.Anomaly {
		return magenta
	}
	return ColorFor(c.Category)
}

// ColorFor maps a category to its drawing colour, green when unknown
func ColorFor(category string) color.RGBA {
	switch strings.ToLower(category) {
	case disposal.Recyclable:
		return green
	case disposal.Organic:
		return orange
	case disposal.EWaste:
		return red
	case disposal.General:
		return grey
	case "anomaly":
		return magenta
	default:
		return green
	}
}

// BoxLabel is the text drawn above one detection
func BoxLabel(d detector.Detection) string {
	name := d.ClassName
	if name == "" {
		name = "waste"
	}
	return fmt.Sprintf("%s: %.2f", name, d.Confidence)
}

// AnnotatedName derives the stored name of the annotated copy of an upload
func AnnotatedName(upload string) string {
	base := strings.TrimSuffix(upload, filepath.Ext(upload))
	return base + "_annotated.jpg"
}

// Save writes img as a JPEG
func Save(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 90}); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}

// Package detector locates waste objects with a pretrained single-stage
// detector exported with its own non-max suppression.
package detector

import (
	"fmt"
	"image"
	"sort"

	"github.com/Brownie44l1/waste-api/internal/model"
)

// rowSize is x1, y1, x2, y2, score, class
const rowSize = 6

type Options struct {
	InputSize  int
	MaxBoxes   int
	Confidence float32
	// IoU is the overlap threshold baked into the exported NMS
	IoU   float32
	Names []string
}

// InputShape is NCHW, the layout the detector was exported with
func (o Options) InputShape() []int64 { return model.ImageShape(o.InputSize, model.LayoutNCHW) }

// OutputShape is one row per candidate box
func (o Options) OutputShape() []int64 { return []int64{1, int64(o.MaxBoxes), rowSize} }

// Detection is a box in source image pixels
type Detection struct {
	BBox       [4]int  `json:"bbox"`
	Confidence float32 `json:"confidence"`
	ClassID    int     `json:"class_id"`
	ClassName  string  `json:"class_name"`
}

// Rect returns the box as an image.Rectangle
func (d Detection) Rect() image.Rectangle {
	return image.Rect(d.BBox[0], d.BBox[1], d.BBox[2], d.BBox[3])
}

// Crop is a detection with the region it covers
type Crop struct {
	Image     image.Image
	Detection Detection
}

type Detector struct {
	inferer model.Inferer
	opts    Options
}

func New(inferer model.Inferer, opts Options) *Detector {
	return &Detector{inferer: inferer, opts: opts}
}

// Detect returns zero or more boxes at or above the confidence threshold,
// highest confidence first
func (d *Detector) Detect(img image.Image) ([]Detection, error) {
	boxed, info := model.Letterbox(img, d.opts.InputSize)
	input := model.ToTensor(boxed, model.LayoutNCHW, model.ScaleUnit)

	output, err := d.inferer.Infer(input)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}
	if len(output)%rowSize != 0 {
		return nil, fmt.Errorf("detect: output length %d is not a multiple of %d", len(output), rowSize)
	}
	return d.decode(output, info), nil
}

// DetectAndCrop pairs every detection with its sub-image
func (d *Detector) DetectAndCrop(img image.Image) ([]Crop, error) {
	dets, err := d.Detect(img)
	if err != nil {
		return nil, err
	}
	crops := make([]Crop, 0, len(dets))
	for _, det := range dets {
		crops = append(crops, Crop{Image: model.Crop(img, det.Rect()), Detection: det})
	}
	return crops, nil
}

// DetectBatch runs Detect on each image in order
func (d *Detector) DetectBatch(imgs []image.Image) ([][]Detection, error) {
	out := make([][]Detection, 0, len(imgs))
	for i, img := range imgs {
		dets, err := d.Detect(img)
		if err != nil {
			return nil, fmt.Errorf("image %d: %w", i, err)
		}
		out = append(out, dets)
	}
	return out, nil
}

func (d *Detector) decode(output []float32, info model.LetterboxInfo) []Detection {
	var dets []Detection
	for off := 0; off+rowSize <= len(output); off += rowSize {
		row := output[off : off+rowSize]
		score := row[4]
		if score < d.opts.Confidence {
			continue
		}

		x1, y1 := info.Unmap(row[0], row[1])
		x2, y2 := info.Unmap(row[2], row[3])
		if x2 <= x1 || y2 <= y1 {
			continue
		}

		cls := int(row[5])
		dets = append(dets, Detection{
			BBox:       [4]int{x1, y1, x2, y2},
			Confidence: score,
			ClassID:    cls,
			ClassName:  d.className(cls),
		})
	}

	sort.SliceStable(dets, func(i, j int) bool { return dets[i].Confidence > dets[j].Confidence })
	return dets
}

func (d *Detector) className(cls int) string {
	if cls >= 0 && cls < len(d.opts.Names) {
		return d.opts.Names[cls]
	}
	return fmt.Sprintf("class_%d", cls)
}

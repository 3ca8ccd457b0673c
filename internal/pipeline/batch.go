package pipeline

import (
	"fmt"
	"image"

	"github.com/Brownie44l1/waste-api/internal/anomaly"
	"github.com/Brownie44l1/waste-api/internal/classifier"
	"github.com/Brownie44l1/waste-api/internal/detector"
	perr "github.com/Brownie44l1/waste-api/internal/errors"
	"github.com/Brownie44l1/waste-api/internal/model"
)

type batchDetector interface {
	DetectBatch(imgs []image.Image) ([][]detector.Detection, error)
}

type batchClassifier interface {
	ClassifyBatch(imgs []image.Image) ([]*classifier.Result, error)
}

type batchScorer interface {
	DetectBatch(imgs []image.Image) ([]*anomaly.Result, error)
}

type cropper interface {
	DetectAndCrop(img image.Image) ([]detector.Crop, error)
}

// DetectAndCrop runs only the detector and returns each box with the part of
// img it covers
func (p *Pipeline) DetectAndCrop(img image.Image) ([]detector.Crop, error) {
	if c, ok := p.detector.(cropper); ok {
		return c.DetectAndCrop(img)
	}
	dets, err := p.Detect(img)
	if err != nil {
		return nil, err
	}
	crops := make([]detector.Crop, 0, len(dets))
	for _, d := range dets {
		crops = append(crops, detector.Crop{Image: model.Crop(img, d.Rect()), Detection: d})
	}
	return crops, nil
}

// AnalyzeBatch runs each loaded stage over the whole set before the next
// stage starts. Results are in input order; the first failure aborts.
func (p *Pipeline) AnalyzeBatch(imgs []image.Image) ([]*Result, error) {
	results := make([]*Result, len(imgs))
	now := p.now()
	for i := range results {
		results[i] = &Result{Timestamp: now}
	}

	if p.detector != nil {
		dets, err := p.detectBatch(imgs)
		if err != nil {
			return nil, perr.Wrap(err, perr.ErrorCodeInference, "detection failed")
		}
		for i, d := range dets {
			results[i].Detection = summarize(d)
		}
	}

	if p.classifier != nil {
		cls, err := p.classifyBatch(imgs)
		if err != nil {
			return nil, perr.Wrap(err, perr.ErrorCodeInference, "classification failed")
		}
		for i, c := range cls {
			results[i].Classification = c
		}
	}

	if p.anomaly != nil {
		scores, err := p.scoreBatch(imgs)
		if err != nil {
			return nil, perr.Wrap(err, perr.ErrorCodeInference, "anomaly detection failed")
		}
		for i, a := range scores {
			results[i].Anomaly = a
		}
	}

	for _, r := range results {
		r.Disposal = Compose(r.Classification, r.Anomaly)
	}
	return results, nil
}

func (p *Pipeline) detectBatch(imgs []image.Image) ([][]detector.Detection, error) {
	if b, ok := p.detector.(batchDetector); ok {
		return b.DetectBatch(imgs)
	}
	out := make([][]detector.Detection, len(imgs))
	for i, img := range imgs {
		dets, err := p.detector.Detect(img)
		if err != nil {
			return nil, fmt.Errorf("image %d: %w", i, err)
		}
		out[i] = dets
	}
	return out, nil
}

func (p *Pipeline) classifyBatch(imgs []image.Image) ([]*classifier.Result, error) {
	if b, ok := p.classifier.(batchClassifier); ok {
		return b.ClassifyBatch(imgs)
	}
	out := make([]*classifier.Result, len(imgs))
	for i, img := range imgs {
		c, err := p.classifier.Classify(img)
		if err != nil {
			return nil, fmt.Errorf("image %d: %w", i, err)
		}
		out[i] = c
	}
	return out, nil
}

func (p *Pipeline) scoreBatch(imgs []image.Image) ([]*anomaly.Result, error) {
	if b, ok := p.anomaly.(batchScorer); ok {
		return b.DetectBatch(imgs)
	}
	out := make([]*anomaly.Result, len(imgs))
	for i, img := range imgs {
		a, err := p.anomaly.Detect(img)
		if err != nil {
			return nil, fmt.Errorf("image %d: %w", i, err)
		}
		out[i] = a
	}
	return out, nil
}

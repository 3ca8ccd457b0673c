// Package anomaly flags images an autoencoder cannot reconstruct well.
package anomaly

import (
	"fmt"
	"image"

	"github.com/Brownie44l1/waste-api/internal/model"
)

// DefaultThreshold applies when no anomaly config is shipped with the model
const DefaultThreshold = 0.035641

type Options struct {
	InputSize int
	Layout    model.Layout
	Threshold float64
}

// InputShape is also the output shape: the autoencoder reproduces its input
func (o Options) InputShape() []int64 { return model.ImageShape(o.InputSize, o.Layout) }

type Result struct {
	IsAnomaly           bool    `json:"is_anomaly"`
	ReconstructionError float64 `json:"reconstruction_error"`
	Threshold           float64 `json:"threshold"`
	Score               float64 `json:"score"`
}

// Evaluate compares a reconstruction error against threshold. Only errors
// strictly above the threshold are anomalies; Score is error/threshold.
func Evaluate(reconstructionError, threshold float64) Result {
	return Result{
		IsAnomaly:           reconstructionError > threshold,
		ReconstructionError: reconstructionError,
		Threshold:           threshold,
		Score:               reconstructionError / threshold,
	}
}

// MSE is the mean squared difference between two equally sized tensors
func MSE(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("reconstruction has %d values, input has %d", len(b), len(a))
	}
	if len(a) == 0 {
		return 0, fmt.Errorf("empty tensor")
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum / float64(len(a)), nil
}

type Detector struct {
	inferer model.Inferer
	opts    Options
}

func New(inferer model.Inferer, opts Options) *Detector {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	return &Detector{inferer: inferer, opts: opts}
}

// Threshold is the fixed reconstruction error limit
func (d *Detector) Threshold() float64 { return d.opts.Threshold }

// ReconstructionError resizes img, scales it to [0,1], reconstructs it and
// returns the MSE between the two
func (d *Detector) ReconstructionError(img image.Image) (float64, error) {
	input := model.ToTensor(model.Resize(img, d.opts.InputSize), d.opts.Layout, model.ScaleUnit)

	recon, err := d.inferer.Infer(input)
	if err != nil {
		return 0, fmt.Errorf("reconstruct: %w", err)
	}
	return MSE(input, recon)
}

// Detect scores img against the threshold
func (d *Detector) Detect(img image.Image) (*Result, error) {
	mse, err := d.ReconstructionError(img)
	if err != nil {
		return nil, err
	}
	res := Evaluate(mse, d.opts.Threshold)
	return &res, nil
}

// DetectBatch scores each image in order
func (d *Detector) DetectBatch(imgs []image.Image) ([]*Result, error) {
	results := make([]*Result, 0, len(imgs))
	for i, img := range imgs {
		res, err := d.Detect(img)
		if err != nil {
			return nil, fmt.Errorf("image %d: %w", i, err)
		}
		results = append(results, res)
	}
	return results, nil
}

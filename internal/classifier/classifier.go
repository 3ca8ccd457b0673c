// Package classifier maps an image onto one of a closed set of waste
// categories using a pretrained image classifier.
package classifier

import (
	"fmt"
	"image"
	"math"

	"github.com/Brownie44l1/waste-api/internal/model"
)

// Options describes the classifier's input and label set
type Options struct {
	Classes    []string
	InputSize  int
	Layout     model.Layout
	PixelScale model.PixelScale
	// Softmax turns raw logits into a distribution; leave off for models that
	// already end in a softmax layer
	Softmax bool
}

// InputShape is the tensor shape the session must be created with
func (o Options) InputShape() []int64 { return model.ImageShape(o.InputSize, o.Layout) }

// OutputShape is one score per class
func (o Options) OutputShape() []int64 { return []int64{1, int64(len(o.Classes))} }

// Result is the arg-max category plus the full distribution
type Result struct {
	Category      string             `json:"waste_type"`
	ClassID       int                `json:"class_id"`
	Confidence    float32            `json:"confidence"`
	Probabilities map[string]float32 `json:"all_probabilities"`
}

type Classifier struct {
	inferer model.Inferer
	opts    Options
}

func New(inferer model.Inferer, opts Options) *Classifier {
	return &Classifier{inferer: inferer, opts: opts}
}

// Classes returns the label set in model output order
func (c *Classifier) Classes() []string { return c.opts.Classes }

// Classify resizes and scales img, runs one forward pass and returns the
// arg-max label
func (c *Classifier) Classify(img image.Image) (*Result, error) {
	input := model.ToTensor(model.Resize(img, c.opts.InputSize), c.opts.Layout, c.opts.PixelScale)

	output, err := c.inferer.Infer(input)
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}
	return c.Predict(output)
}

// ClassifyBatch classifies each image in order
func (c *Classifier) ClassifyBatch(imgs []image.Image) ([]*Result, error) {
	results := make([]*Result, 0, len(imgs))
	for i, img := range imgs {
		res, err := c.Classify(img)
		if err != nil {
			return nil, fmt.Errorf("image %d: %w", i, err)
		}
		results = append(results, res)
	}
	return results, nil
}

// Predict turns raw model output into a Result. Ties go to the lowest index.
func (c *Classifier) Predict(output []float32) (*Result, error) {
	classes := c.opts.Classes
	if len(classes) == 0 {
		return nil, fmt.Errorf("classifier has no classes")
	}
	if len(output) < len(classes) {
		return nil, fmt.Errorf("model returned %d scores for %d classes", len(output), len(classes))
	}
	scores := output[:len(classes)]
	if c.opts.Softmax {
		scores = softmax(scores)
	}

	maxIdx := 0
	maxVal := scores[0]
	predictions := make(map[string]float32, len(classes))

	for i, val := range scores {
		predictions[classes[i]] = val
		if val > maxVal {
			maxVal = val
			maxIdx = i
		}
	}

	return &Result{
		Category:      classes[maxIdx],
		ClassID:       maxIdx,
		Confidence:    maxVal,
		Probabilities: predictions,
	}, nil
}

func softmax(logits []float32) []float32 {
	maxLogit := logits[0]
	for _, v := range logits[1:] {
		if v > maxLogit {
			maxLogit = v
		}
	}

	out := make([]float32, len(logits))
	var sum float64
	for i, v := range logits {
		e := math.Exp(float64(v - maxLogit))
		out[i] = float32(e)
		sum += e
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / sum)
	}
	return out
}

// Package pipeline runs detection, classification and anomaly scoring on one
// image and merges the outputs into a single disposal recommendation.
package pipeline

import (
	"image"
	"time"

	"github.com/Brownie44l1/waste-api/internal/anomaly"
	"github.com/Brownie44l1/waste-api/internal/classifier"
	"github.com/Brownie44l1/waste-api/internal/detector"
	"github.com/Brownie44l1/waste-api/internal/disposal"
	perr "github.com/Brownie44l1/waste-api/internal/errors"
	"github.com/Brownie44l1/waste-api/internal/model"
)

// Detector finds objects in an image
type Detector interface {
	Detect(img image.Image) ([]detector.Detection, error)
}

// Classifier assigns a waste category
type Classifier interface {
	Classify(img image.Image) (*classifier.Result, error)
}

// AnomalyScorer decides whether an image is unlike the training data
type AnomalyScorer interface {
	Detect(img image.Image) (*anomaly.Result, error)
}

// DetectionSummary is the top box plus every box found
type DetectionSummary struct {
	Detected   bool                 `json:"detected"`
	Confidence float32              `json:"confidence"`
	BBox       []int                `json:"bbox,omitempty"`
	Objects    []detector.Detection `json:"objects"`
}

// Result is the merged output for one image; a nil section means its stage
// is not loaded
type Result struct {
	Detection      *DetectionSummary  `json:"detection"`
	Classification *classifier.Result `json:"classification"`
	Anomaly        *anomaly.Result    `json:"anomaly"`
	Disposal       *disposal.Info     `json:"disposal"`
	Timestamp      time.Time          `json:"timestamp"`
}

// Status reports which stages are loaded
type Status struct {
	Detector   bool `json:"detector"`
	Classifier bool `json:"classifier"`
	Anomaly    bool `json:"anomaly"`
}

type Pipeline struct {
	detector   Detector
	classifier Classifier
	anomaly    AnomalyScorer
	closers    []func()
	now        func() time.Time
}

type Option func(*Pipeline)

func WithDetector(d Detector) Option { return func(p *Pipeline) { p.detector = d } }
func WithClassifier(c Classifier) Option { return func(p *Pipeline) { p.classifier = c } }
func WithAnomalyScorer(a AnomalyScorer) Option { return func(p *Pipeline) { p.anomaly = a } }

// WithClock overrides the timestamp source
func WithClock(now func() time.Time) Option { return func(p *Pipeline) { p.now = now } }

// New builds a pipeline from already constructed stages; any may be absent
func New(opts ...Option) *Pipeline {
	p := &Pipeline{now: time.Now}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Status reports the loaded stages
func (p *Pipeline) Status() Status {
	return Status{
		Detector:   p.detector != nil,
		Classifier: p.classifier != nil,
		Anomaly:    p.anomaly != nil,
	}
}

// Classes is the label set of the loaded classifier, nil when there is none
func (p *Pipeline) Classes() []string {
	if c, ok := p.classifier.(interface{ Classes() []string }); ok {
		return c.Classes()
	}
	return nil
}

// Analyze runs detection, classification and anomaly scoring in that order.
// Detection is reported but never changes the disposal decision.
func (p *Pipeline) Analyze(img image.Image) (*Result, error) {
	res := &Result{Timestamp: p.now()}

	if p.detector != nil {
		dets, err := p.detector.Detect(img)
		if err != nil {
			return nil, perr.Wrap(err, perr.ErrorCodeInference, "detection failed")
		}
		res.Detection = summarize(dets)
	}

	if p.classifier != nil {
		c, err := p.classifier.Classify(img)
		if err != nil {
			return nil, perr.Wrap(err, perr.ErrorCodeInference, "classification failed")
		}
		res.Classification = c
	}

	if p.anomaly != nil {
		a, err := p.anomaly.Detect(img)
		if err != nil {
			return nil, perr.Wrap(err, perr.ErrorCodeInference, "anomaly detection failed")
		}
		res.Anomaly = a
	}

	res.Disposal = Compose(res.Classification, res.Anomaly)
	return res, nil
}

// AnalyzeFile decodes path and analyzes it
func (p *Pipeline) AnalyzeFile(path string) (*Result, error) {
	img, _, err := model.DecodeFile(path)
	if err != nil {
		return nil, err
	}
	return p.Analyze(img)
}

// Detect runs only the detector
func (p *Pipeline) Detect(img image.Image) ([]detector.Detection, error) {
	if p.detector == nil {
		return nil, perr.New(perr.ErrorCodeUnavailable, "detector model not loaded")
	}
	return p.detector.Detect(img)
}

// Compose applies the recommendation policy: an anomaly always yields the
// unknown entry, otherwise the classified category is looked up. Without
// either result there is no recommendation.
func Compose(c *classifier.Result, a *anomaly.Result) *disposal.Info {
	if a != nil && a.IsAnomaly {
		info := disposal.Unknown
		return &info
	}
	if c == nil {
		return nil
	}
	info := disposal.Lookup(c.Category)
	return &info
}

func summarize(dets []detector.Detection) *DetectionSummary {
	if len(dets) == 0 {
		return &DetectionSummary{Detected: false, Objects: []detector.Detection{}}
	}
	top := dets[0]
	return &DetectionSummary{
		Detected:   true,
		Confidence: top.Confidence,
		BBox:       top.BBox[:],
		Objects:    dets,
	}
}

// Close releases every session the pipeline loaded
func (p *Pipeline) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		p.closers[i]()
	}
	p.closers = nil
}

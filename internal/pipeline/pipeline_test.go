package pipeline

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/waste-api/internal/anomaly"
	"github.com/Brownie44l1/waste-api/internal/classifier"
	"github.com/Brownie44l1/waste-api/internal/config"
	"github.com/Brownie44l1/waste-api/internal/detector"
	"github.com/Brownie44l1/waste-api/internal/disposal"
	perr "github.com/Brownie44l1/waste-api/internal/errors"
	"github.com/Brownie44l1/waste-api/internal/logger"
	"github.com/Brownie44l1/waste-api/internal/model"
)

type stubClassifier struct {
	category string
	err      error
}

func (s stubClassifier) Classify(image.Image) (*classifier.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &classifier.Result{Category: s.category, Confidence: 0.9,
		Probabilities: map[string]float32{s.category: 0.9}}, nil
}

type stubAnomaly struct {
	mse float64
	err error
}

func (s stubAnomaly) Detect(image.Image) (*anomaly.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	r := anomaly.Evaluate(s.mse, anomaly.DefaultThreshold)
	return &r, nil
}

type stubDetector struct {
	dets []detector.Detection
	err  error
}

func (s stubDetector) Detect(image.Image) ([]detector.Detection, error) { return s.dets, s.err }

var fixed = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func testImage() image.Image { return image.NewRGBA(image.Rect(0, 0, 4, 4)) }

func TestAnalyze_OrganicBelowThreshold(t *testing.T) {
	p := New(
		WithDetector(stubDetector{dets: []detector.Detection{{BBox: [4]int{1, 2, 3, 4}, Confidence: 0.8, ClassName: "waste"}}}),
		WithClassifier(stubClassifier{category: disposal.Organic}),
		WithAnomalyScorer(stubAnomaly{mse: 0.01}),
		WithClock(func() time.Time { return fixed }),
	)

	res, err := p.Analyze(testImage())
	require.NoError(t, err)
	require.Equal(t, "Green Bin (Organic)", res.Disposal.Bin)
	require.False(t, res.Anomaly.IsAnomaly)
	require.Equal(t, fixed, res.Timestamp)

	require.True(t, res.Detection.Detected)
	require.Equal(t, []int{1, 2, 3, 4}, res.Detection.BBox)
	require.Equal(t, float32(0.8), res.Detection.Confidence)
}

func TestAnalyze_AnomalyOverridesEveryCategory(t *testing.T) {
	for _, c := range disposal.Categories() {
		p := New(WithClassifier(stubClassifier{category: c}), WithAnomalyScorer(stubAnomaly{mse: 1}))
		res, err := p.Analyze(testImage())
		require.NoError(t, err)
		require.True(t, res.Anomaly.IsAnomaly, c)
		require.Equal(t, disposal.Unknown, *res.Disposal, c)
	}
}

func TestAnalyze_DetectionDoesNotChangeDisposal(t *testing.T) {
	base := New(WithClassifier(stubClassifier{category: disposal.EWaste}), WithAnomalyScorer(stubAnomaly{mse: 0}))
	withDet := New(
		WithDetector(stubDetector{}),
		WithClassifier(stubClassifier{category: disposal.EWaste}),
		WithAnomalyScorer(stubAnomaly{mse: 0}),
	)

	a, err := base.Analyze(testImage())
	require.NoError(t, err)
	b, err := withDet.Analyze(testImage())
	require.NoError(t, err)
	require.Equal(t, a.Disposal, b.Disposal)
	require.Nil(t, a.Detection)
	require.False(t, b.Detection.Detected)
	require.NotNil(t, b.Detection.Objects)
}

func TestAnalyze_Degraded(t *testing.T) {
	res, err := New().Analyze(testImage())
	require.NoError(t, err)
	require.Nil(t, res.Detection)
	require.Nil(t, res.Classification)
	require.Nil(t, res.Anomaly)
	require.Nil(t, res.Disposal)

	res, err = New(WithAnomalyScorer(stubAnomaly{mse: 1})).Analyze(testImage())
	require.NoError(t, err)
	require.Equal(t, disposal.Unknown, *res.Disposal)

	res, err = New(WithClassifier(stubClassifier{category: "mystery"})).Analyze(testImage())
	require.NoError(t, err)
	require.Equal(t, "Black Bin (General Waste)", res.Disposal.Bin)
}

func TestAnalyze_StageErrors(t *testing.T) {
	boom := errors.New("boom")
	for _, p := range []*Pipeline{
		New(WithDetector(stubDetector{err: boom})),
		New(WithClassifier(stubClassifier{err: boom})),
		New(WithAnomalyScorer(stubAnomaly{err: boom})),
	} {
		_, err := p.Analyze(testImage())
		require.ErrorIs(t, err, boom)
		require.Equal(t, perr.ErrorCodeInference, perr.Code(err))
	}
}

func TestCompose_ThresholdBoundary(t *testing.T) {
	c := &classifier.Result{Category: disposal.Recyclable}
	at := anomaly.Evaluate(0.02, 0.02)
	require.Equal(t, "Blue Bin (Recyclables)", Compose(c, &at).Bin)

	above := anomaly.Evaluate(0.0200001, 0.02)
	require.Equal(t, disposal.Unknown.Bin, Compose(c, &above).Bin)
	require.Nil(t, Compose(nil, nil))
}

func TestDetect_Unavailable(t *testing.T) {
	_, err := New().Detect(testImage())
	require.Equal(t, perr.ErrorCodeUnavailable, perr.Code(err))
}

func TestAnalyzeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "item.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	src := image.NewRGBA(image.Rect(0, 0, 3, 3))
	src.Set(1, 1, color.White)
	require.NoError(t, png.Encode(f, src))
	require.NoError(t, f.Close())

	p := New(WithClassifier(stubClassifier{category: disposal.Organic}))
	res, err := p.AnalyzeFile(path)
	require.NoError(t, err)
	require.Equal(t, disposal.Organic, res.Classification.Category)

	_, err = p.AnalyzeFile(filepath.Join(t.TempDir(), "missing.png"))
	require.Equal(t, perr.ErrorCodeNotFound, perr.Code(err))
}

type echoInferer struct{ n int }

func (e echoInferer) Infer(input []float32) ([]float32, error) {
	out := make([]float32, e.n)
	if e.n == len(input) {
		copy(out, input)
	} else if e.n > 0 {
		out[0] = 1
	}
	return out, nil
}

func TestLoad_DegradedWhenFilesMissing(t *testing.T) {
	t.Cleanup(func() { runtimeInit = model.InitRuntime })
	runtimeInit = func(string) error { return nil }

	cfg := config.Default().Models
	cfg.Dir = t.TempDir()
	l := logger.New(logger.Options{Level: "disabled"})

	p := Load(cfg, &l)
	require.Equal(t, Status{}, p.Status())
	p.Close()
}

func TestLoad_PresentFilesAreOpened(t *testing.T) {
	t.Cleanup(func() {
		runtimeInit = model.InitRuntime
		sessionFactory = defaultSessionFactory
	})
	runtimeInit = func(string) error { return nil }

	var opened []string
	closed := 0
	sessionFactory = func(sc model.SessionConfig) (model.Inferer, func(), error) {
		opened = append(opened, filepath.Base(sc.ModelPath))
		if filepath.Base(sc.ModelPath) == "waste_detector_best.onnx" {
			return nil, nil, errors.New("corrupt")
		}
		return echoInferer{n: model.NumElements(sc.OutputShape)}, func() { closed++ }, nil
	}

	cfg := config.Default().Models
	cfg.Dir = t.TempDir()
	for _, p := range []string{cfg.Detector.Path, cfg.Classifier.Path, cfg.Anomaly.Path} {
		full := cfg.Resolve(p)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte("onnx"), 0o644))
	}
	l := logger.New(logger.Options{Level: "disabled"})

	p := Load(cfg, &l)
	require.Equal(t, Status{Detector: false, Classifier: true, Anomaly: true}, p.Status())
	require.Len(t, opened, 3)

	res, err := p.Analyze(image.NewRGBA(image.Rect(0, 0, 16, 16)))
	require.NoError(t, err)
	require.Equal(t, disposal.Recyclable, res.Classification.Category)
	require.Equal(t, 0.0, res.Anomaly.ReconstructionError)
	require.Equal(t, "Blue Bin (Recyclables)", res.Disposal.Bin)

	p.Close()
	require.Equal(t, 2, closed)
}

func TestLoad_RuntimeFailureDisablesEverything(t *testing.T) {
	t.Cleanup(func() { runtimeInit = model.InitRuntime })
	runtimeInit = func(string) error { return errors.New("no libonnxruntime") }

	l := logger.New(logger.Options{Level: "disabled"})
	p := Load(config.Default().Models, &l)
	require.Equal(t, Status{}, p.Status())
}

type namedInferer struct {
	echoInferer
	cfg model.SessionConfig
}

func (n namedInferer) Config() model.SessionConfig { return n.cfg }

func TestLoad_LogsResolvedModelSettings(t *testing.T) {
	t.Cleanup(func() {
		runtimeInit = model.InitRuntime
		sessionFactory = defaultSessionFactory
	})
	runtimeInit = func(string) error { return nil }
	sessionFactory = func(sc model.SessionConfig) (model.Inferer, func(), error) {
		sc.InputName, sc.OutputName = "images", "output0"
		return namedInferer{echoInferer: echoInferer{n: model.NumElements(sc.OutputShape)}, cfg: sc}, func() {}, nil
	}

	cfg := config.Default().Models
	cfg.Dir = t.TempDir()
	full := cfg.Resolve(cfg.Detector.Path)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte("onnx"), 0o644))

	var buf bytes.Buffer
	l := logger.New(logger.Options{Level: "info", Format: "json", Writer: &buf})
	p := Load(cfg, &l)
	defer p.Close()

	out := buf.String()
	require.Contains(t, out, `"input":"images"`)
	require.Contains(t, out, `"output":"output0"`)
	require.Contains(t, out, `"iou":0.45`)
	require.Contains(t, out, `"confidence":0.5`)
}

func TestClasses(t *testing.T) {
	require.Nil(t, New().Classes())
	require.Nil(t, New(WithClassifier(stubClassifier{category: disposal.Organic})).Classes())

	c := classifier.New(echoInferer{n: 4}, classifier.Options{Classes: disposal.Categories()})
	require.Equal(t, disposal.Categories(), New(WithClassifier(c)).Classes())
}

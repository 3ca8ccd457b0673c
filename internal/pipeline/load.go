package pipeline

import (
	"errors"
	"io/fs"
	"os"

	"github.com/Brownie44l1/waste-api/internal/anomaly"
	"github.com/Brownie44l1/waste-api/internal/classifier"
	"github.com/Brownie44l1/waste-api/internal/config"
	"github.com/Brownie44l1/waste-api/internal/detector"
	"github.com/Brownie44l1/waste-api/internal/logger"
	"github.com/Brownie44l1/waste-api/internal/model"
)

func defaultSessionFactory(cfg model.SessionConfig) (model.Inferer, func(), error) {
	s, err := model.NewSession(cfg)
	if err != nil {
		return nil, nil, err
	}
	return s, s.Close, nil
}

// sessionFactory is swapped out in tests
var sessionFactory = defaultSessionFactory

// runtimeInit is swapped out in tests
var runtimeInit = model.InitRuntime

// Load builds a pipeline from the model files in cfg. A missing or broken
// model file only disables its stage; the pipeline is still returned.
func Load(cfg config.ModelsConfig, log *logger.Logger) *Pipeline {
	p := New()

	if err := runtimeInit(cfg.RuntimeLibrary); err != nil {
		log.Error().Err(err).Msg("onnx runtime unavailable, every stage disabled")
		return p
	}
	p.closers = append(p.closers, func() { _ = model.DestroyRuntime() })

	det := cfg.Detector
	detOpts := detector.Options{
		InputSize:  det.InputSize,
		MaxBoxes:   det.MaxBoxes,
		Confidence: det.Confidence,
		IoU:        det.IoU,
		Names:      det.Names,
	}
	if inf := p.open(log, "detector", model.SessionConfig{
		ModelPath:   cfg.Resolve(det.Path),
		InputName:   det.InputName,
		OutputName:  det.OutputName,
		InputShape:  detOpts.InputShape(),
		OutputShape: detOpts.OutputShape(),
	}); inf != nil {
		p.detector = detector.New(inf, detOpts)
	}

	cls := cfg.Classifier
	clsOpts := classifier.Options{
		Classes:    cls.Classes,
		InputSize:  cls.InputSize,
		Layout:     model.Layout(cls.Layout),
		PixelScale: model.PixelScale(cls.PixelScale),
		Softmax:    cls.Softmax,
	}
	if inf := p.open(log, "classifier", model.SessionConfig{
		ModelPath:   cfg.Resolve(cls.Path),
		InputName:   cls.InputName,
		OutputName:  cls.OutputName,
		InputShape:  clsOpts.InputShape(),
		OutputShape: clsOpts.OutputShape(),
	}); inf != nil {
		p.classifier = classifier.New(inf, clsOpts)
	}

	an := cfg.Anomaly
	anOpts := anomaly.Options{
		InputSize: an.InputSize,
		Layout:    model.Layout(an.Layout),
		Threshold: an.Threshold,
	}
	if inf := p.open(log, "autoencoder", model.SessionConfig{
		ModelPath:   cfg.Resolve(an.Path),
		InputName:   an.InputName,
		OutputName:  an.OutputName,
		InputShape:  anOpts.InputShape(),
		OutputShape: anOpts.InputShape(),
	}); inf != nil {
		p.anomaly = anomaly.New(inf, anOpts)
	}

	log.Info().
		Bool("detector", p.detector != nil).
		Bool("classifier", p.classifier != nil).
		Bool("autoencoder", p.anomaly != nil).
		Float32("confidence", detOpts.Confidence).
		Float32("iou", detOpts.IoU).
		Float64("anomaly_threshold", anOpts.Threshold).
		Strs("classes", clsOpts.Classes).
		Msg("models loaded")
	return p
}

func (p *Pipeline) open(log *logger.Logger, name string, sc model.SessionConfig) model.Inferer {
	if _, err := os.Stat(sc.ModelPath); errors.Is(err, fs.ErrNotExist) {
		log.Warn().Str("model", name).Str("path", sc.ModelPath).Msg("model not found, stage disabled")
		return nil
	}

	inf, closeFn, err := sessionFactory(sc)
	if err != nil {
		log.Error().Err(err).Str("model", name).Str("path", sc.ModelPath).Msg("model failed to load, stage disabled")
		return nil
	}
	// sessions close before the runtime is destroyed
	p.closers = append(p.closers, closeFn)

	evt := log.Info().Str("model", name).Str("path", sc.ModelPath)
	if s, ok := inf.(interface{ Config() model.SessionConfig }); ok {
		resolved := s.Config()
		evt = evt.Str("input", resolved.InputName).Str("output", resolved.OutputName)
	}
	evt.Msg("model loaded")
	return inf
}

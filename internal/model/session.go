package model

import (
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// Inferer runs one forward pass over a flat input tensor and returns the flat
// output tensor
type Inferer interface {
	Infer(input []float32) ([]float32, error)
}

// SessionConfig describes a single ONNX model with one input and one output
type SessionConfig struct {
	ModelPath   string
	InputName   string
	OutputName  string
	InputShape  []int64
	OutputShape []int64
}

// Session owns an ONNX session bound to fixed input/output tensors. Run is
// serialised because the tensors are shared between calls.
type Session struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	cfg          SessionConfig
}

// NewSession loads cfg.ModelPath. Empty tensor names are discovered from the
// model; the runtime must already be initialised (see InitRuntime).
func NewSession(cfg SessionConfig) (*Session, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("model file: %w", err)
	}

	if cfg.InputName == "" || cfg.OutputName == "" {
		inputs, outputs, err := ort.GetInputOutputInfo(cfg.ModelPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read model io info: %w", err)
		}
		if len(inputs) == 0 || len(outputs) == 0 {
			return nil, fmt.Errorf("model %s has no inputs or outputs", cfg.ModelPath)
		}
		if cfg.InputName == "" {
			cfg.InputName = inputs[0].Name
		}
		if cfg.OutputName == "" {
			cfg.OutputName = outputs[0].Name
		}
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(cfg.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(cfg.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(cfg.ModelPath,
		[]string{cfg.InputName}, []string{cfg.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &Session{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		cfg:          cfg,
	}, nil
}

// Infer copies input into the bound tensor, runs the model and returns a copy
// of the output
func (s *Session) Infer(input []float32) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dst := s.inputTensor.GetData()
	if len(input) != len(dst) {
		return nil, fmt.Errorf("expected %d input values, got %d", len(dst), len(input))
	}
	copy(dst, input)

	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	out := s.outputTensor.GetData()
	res := make([]float32, len(out))
	copy(res, out)
	return res, nil
}

// Config returns the resolved session configuration
func (s *Session) Config() SessionConfig { return s.cfg }

func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inputTensor != nil {
		s.inputTensor.Destroy()
		s.inputTensor = nil
	}
	if s.outputTensor != nil {
		s.outputTensor.Destroy()
		s.outputTensor = nil
	}
	if s.session != nil {
		s.session.Destroy()
		s.session = nil
	}
}

var _ Inferer = (*Session)(nil)

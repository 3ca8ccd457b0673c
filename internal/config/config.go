// Package config loads the service configuration from YAML, .env and the
// process environment, in that order of precedence (env wins).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is used when neither -config nor WASTE_CONFIG is set
const DefaultPath = "config/config.yaml"

// Config is the root configuration
type Config struct {
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
	Models ModelsConfig `yaml:"models"`
}

type ServerConfig struct {
	Port        string   `yaml:"port" validate:"required,numeric"`
	UploadDir   string   `yaml:"upload_dir" validate:"required"`
	MaxUploadMB int      `yaml:"max_upload_mb" validate:"gt=0"`
	CORSOrigins []string `yaml:"cors_origins"`
	Annotate    bool     `yaml:"annotate"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=trace debug info warn warning error disabled off"`
	Format string `yaml:"format" validate:"omitempty,oneof=console json"`
}

// ModelsConfig holds one block per model; relative paths resolve against Dir
type ModelsConfig struct {
	Dir            string           `yaml:"dir" validate:"required"`
	RuntimeLibrary string           `yaml:"runtime_library"`
	Detector       DetectorConfig   `yaml:"detector"`
	Classifier     ClassifierConfig `yaml:"classifier"`
	Anomaly        AnomalyConfig    `yaml:"anomaly"`
}

type DetectorConfig struct {
	Path       string   `yaml:"path" validate:"required"`
	InputName  string   `yaml:"input_name"`
	OutputName string   `yaml:"output_name"`
	InputSize  int      `yaml:"input_size" validate:"gt=0"`
	MaxBoxes   int      `yaml:"max_boxes" validate:"gt=0"`
	Confidence float32  `yaml:"confidence" validate:"gt=0,lte=1"`
	IoU        float32  `yaml:"iou" validate:"gt=0,lte=1"`
	Names      []string `yaml:"names" validate:"min=1,dive,required"`
}

type ClassifierConfig struct {
	Path        string   `yaml:"path" validate:"required"`
	MappingPath string   `yaml:"class_mapping"`
	InputName   string   `yaml:"input_name"`
	OutputName  string   `yaml:"output_name"`
	InputSize   int      `yaml:"input_size" validate:"gt=0"`
	Layout      string   `yaml:"layout" validate:"oneof=nhwc nchw"`
	PixelScale  string   `yaml:"pixel_scale" validate:"oneof=unit raw"`
	Softmax     bool     `yaml:"softmax"`
	Classes     []string `yaml:"classes" validate:"min=1,dive,required"`
}

type AnomalyConfig struct {
	Path       string  `yaml:"path" validate:"required"`
	ConfigPath string  `yaml:"anomaly_config"`
	InputName  string  `yaml:"input_name"`
	OutputName string  `yaml:"output_name"`
	InputSize  int     `yaml:"input_size" validate:"gt=0"`
	Layout     string  `yaml:"layout" validate:"oneof=nhwc nchw"`
	Threshold  float64 `yaml:"threshold" validate:"gt=0"`
}

// Default returns the configuration used when no file is present
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        "5000",
			UploadDir:   filepath.Join("static", "uploads"),
			MaxUploadMB: 16,
			CORSOrigins: []string{"*"},
			Annotate:    true,
		},
		Log: LogConfig{Level: "info", Format: "console"},
		Models: ModelsConfig{
			Dir: "models",
			Detector: DetectorConfig{
				Path:       filepath.Join("yolo", "waste_detector_best.onnx"),
				InputSize:  640,
				MaxBoxes:   300,
				Confidence: 0.5,
				IoU:        0.45,
				Names:      []string{"waste"},
			},
			Classifier: ClassifierConfig{
				Path:        filepath.Join("mobilenet", "waste_classifier_final.onnx"),
				MappingPath: filepath.Join("mobilenet", "class_mapping.yaml"),
				InputSize:   224,
				Layout:      "nhwc",
				PixelScale:  "unit",
				Classes:     []string{"recyclable", "organic", "e-waste", "general"},
			},
			Anomaly: AnomalyConfig{
				Path:       filepath.Join("autoencoder", "autoencoder_final.onnx"),
				ConfigPath: filepath.Join("autoencoder", "anomaly_config.yaml"),
				InputSize:  128,
				Layout:     "nhwc",
				Threshold:  0.035641,
			},
		},
	}
}

// Addr is the listen address for net/http
func (s ServerConfig) Addr() string { return ":" + s.Port }

// MaxUploadBytes is MaxUploadMB in bytes
func (s ServerConfig) MaxUploadBytes() int64 { return int64(s.MaxUploadMB) << 20 }

// Resolve joins a model-relative path onto Dir; absolute paths pass through
func (m ModelsConfig) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}

// Load reads path (or WASTE_CONFIG, or DefaultPath) over the defaults, applies
// the model sidecar files and the environment, then validates. A missing
// config file is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	if path == "" {
		path = getEnv("WASTE_CONFIG", DefaultPath)
	}

	cfg := Default()
	thresholdSet := false
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		var ts thresholdSetting
		if err := yaml.Unmarshal(data, &ts); err == nil {
			thresholdSet = ts.Models.Anomaly.Threshold != nil
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	applyEnv(cfg)

	if err := applySidecars(cfg, thresholdSet); err != nil {
		return nil, err
	}

	// env beats the sidecar for the threshold
	if v, ok := getEnvFloat("WASTE_ANOMALY_THRESHOLD"); ok {
		cfg.Models.Anomaly.Threshold = v
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	cfg.Server.UploadDir = getEnv("WASTE_UPLOAD_DIR", cfg.Server.UploadDir)
	cfg.Models.Dir = getEnv("WASTE_MODELS_DIR", cfg.Models.Dir)
	cfg.Models.RuntimeLibrary = getEnv("ONNXRUNTIME_LIB", cfg.Models.RuntimeLibrary)
	cfg.Log.Level = strings.ToLower(getEnv("LOG_LEVEL", cfg.Log.Level))
	cfg.Log.Format = strings.ToLower(getEnv("LOG_FORMAT", cfg.Log.Format))
}

type classMappingFile struct {
	Classes []string `yaml:"classes"`
}

// thresholdSetting tells an explicit models.anomaly.threshold apart from the
// default
type thresholdSetting struct {
	Models struct {
		Anomaly struct {
			Threshold *float64 `yaml:"threshold"`
		} `yaml:"anomaly"`
	} `yaml:"models"`
}

type anomalyFile struct {
	Threshold *float64 `yaml:"threshold"`
	ImageSize []int    `yaml:"image_size"`
}

// applySidecars reads class_mapping.yaml and anomaly_config.yaml shipped next
// to the models, when present. The sidecar threshold only applies when the
// config file did not set one.
func applySidecars(cfg *Config, keepThreshold bool) error {
	if p := cfg.Models.Resolve(cfg.Models.Classifier.MappingPath); p != "" {
		classes, err := readClassMapping(p)
		if err != nil {
			return err
		}
		if len(classes) > 0 {
			cfg.Models.Classifier.Classes = classes
		}
	}

	if p := cfg.Models.Resolve(cfg.Models.Anomaly.ConfigPath); p != "" {
		data, err := readOptional(p)
		if err != nil || data == nil {
			return err
		}
		var af anomalyFile
		if err := yaml.Unmarshal(data, &af); err != nil {
			return fmt.Errorf("parse %s: %w", p, err)
		}
		if af.Threshold != nil && !keepThreshold {
			cfg.Models.Anomaly.Threshold = *af.Threshold
		}
		if len(af.ImageSize) > 0 && af.ImageSize[0] > 0 {
			cfg.Models.Anomaly.InputSize = af.ImageSize[0]
		}
	}
	return nil
}

// readClassMapping accepts either {classes: [..]} or {0: name, 1: name}
func readClassMapping(p string) ([]string, error) {
	data, err := readOptional(p)
	if err != nil || data == nil {
		return nil, err
	}

	var list classMappingFile
	if err := yaml.Unmarshal(data, &list); err == nil && len(list.Classes) > 0 {
		return list.Classes, nil
	}

	var byIndex map[int]string
	if err := yaml.Unmarshal(data, &byIndex); err != nil {
		return nil, fmt.Errorf("parse %s: %w", p, err)
	}
	idx := make([]int, 0, len(byIndex))
	for i := range byIndex {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	out := make([]string, 0, len(idx))
	for n, i := range idx {
		if i != n {
			return nil, fmt.Errorf("parse %s: class indices must be contiguous from 0", p)
		}
		out = append(out, byIndex[i])
	}
	return out, nil
}

func readOptional(p string) ([]byte, error) {
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	return data, nil
}

func getEnv(key string, defaultVal string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultVal
}

func getEnvFloat(key string) (float64, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

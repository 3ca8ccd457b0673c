package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"PORT", "WASTE_CONFIG", "WASTE_UPLOAD_DIR", "WASTE_MODELS_DIR",
		"WASTE_ANOMALY_THRESHOLD", "ONNXRUNTIME_LIB", "LOG_LEVEL", "LOG_FORMAT"} {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv("WASTE_MODELS_DIR", filepath.Join(dir, "models"))

	cfg, err := Load(filepath.Join(dir, "nope.yaml"))
	require.NoError(t, err)
	require.Equal(t, "5000", cfg.Server.Port)
	require.Equal(t, 16, cfg.Server.MaxUploadMB)
	require.Equal(t, int64(16<<20), cfg.Server.MaxUploadBytes())
	require.InDelta(t, 0.035641, cfg.Models.Anomaly.Threshold, 1e-12)
	require.Equal(t, []string{"recyclable", "organic", "e-waste", "general"}, cfg.Models.Classifier.Classes)
	require.Equal(t, 224, cfg.Models.Classifier.InputSize)
	require.Equal(t, 128, cfg.Models.Anomaly.InputSize)
	require.Equal(t, float32(0.5), cfg.Models.Detector.Confidence)
	require.Equal(t, float32(0.45), cfg.Models.Detector.IoU)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, `
server:
  port: "8080"
  max_upload_mb: 4
models:
  dir: `+filepath.Join(dir, "models")+`
  anomaly:
    threshold: 0.05
  classifier:
    pixel_scale: raw
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Server.Addr())
	require.Equal(t, 4, cfg.Server.MaxUploadMB)
	require.Equal(t, 0.05, cfg.Models.Anomaly.Threshold)
	require.Equal(t, "raw", cfg.Models.Classifier.PixelScale)
	// untouched fields keep their defaults
	require.Equal(t, 224, cfg.Models.Classifier.InputSize)
}

func TestLoad_SidecarsAndEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	models := filepath.Join(dir, "models")
	writeFile(t, filepath.Join(models, "mobilenet", "class_mapping.yaml"), "classes: [a, b, c]\n")
	writeFile(t, filepath.Join(models, "autoencoder", "anomaly_config.yaml"), "threshold: 0.02\nimage_size: [96, 96]\n")
	t.Setenv("WASTE_MODELS_DIR", models)
	t.Setenv("PORT", "9000")

	cfg, err := Load(filepath.Join(dir, "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, cfg.Models.Classifier.Classes)
	require.Equal(t, 0.02, cfg.Models.Anomaly.Threshold)
	require.Equal(t, 96, cfg.Models.Anomaly.InputSize)
	require.Equal(t, "9000", cfg.Server.Port)

	t.Setenv("WASTE_ANOMALY_THRESHOLD", "0.5")
	cfg, err = Load(filepath.Join(dir, "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, 0.5, cfg.Models.Anomaly.Threshold)
}

func TestLoad_ConfiguredThresholdBeatsSidecar(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	models := filepath.Join(dir, "models")
	writeFile(t, filepath.Join(models, "autoencoder", "anomaly_config.yaml"), "threshold: 0.02\nimage_size: [96, 96]\n")
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, "models:\n  dir: "+models+"\n  anomaly:\n    threshold: 0.05\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 0.05, cfg.Models.Anomaly.Threshold)
	// the rest of the sidecar still applies
	require.Equal(t, 96, cfg.Models.Anomaly.InputSize)

	// a config file without a threshold leaves it to the sidecar
	writeFile(t, path, "models:\n  dir: "+models+"\n")
	cfg, err = Load(path)
	require.NoError(t, err)
	require.Equal(t, 0.02, cfg.Models.Anomaly.Threshold)
}

func TestLoad_RejectsNonPositiveThreshold(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, "models:\n  dir: "+filepath.Join(dir, "models")+"\n  anomaly:\n    threshold: -0.01\n")

	_, err := Load(path)
	require.Error(t, err)

	writeFile(t, path, "models:\n  dir: "+filepath.Join(dir, "models")+"\n")
	t.Setenv("WASTE_ANOMALY_THRESHOLD", "0")
	_, err = Load(path)
	require.Error(t, err)
}

func TestReadClassMapping_IndexForm(t *testing.T) {
	p := filepath.Join(t.TempDir(), "m.yaml")
	writeFile(t, p, "0: recyclable\n1: organic\n")
	classes, err := readClassMapping(p)
	require.NoError(t, err)
	require.Equal(t, []string{"recyclable", "organic"}, classes)

	writeFile(t, p, "0: recyclable\n2: organic\n")
	_, err = readClassMapping(p)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, Validate(cfg))

	bad := Default()
	bad.Models.Anomaly.Threshold = 0
	require.Error(t, Validate(bad))

	bad = Default()
	bad.Models.Classifier.Layout = "hwc"
	require.Error(t, Validate(bad))

	bad = Default()
	bad.Models.Detector.Confidence = 1.5
	require.Error(t, Validate(bad))

	bad = Default()
	bad.Models.Classifier.Classes = nil
	require.Error(t, Validate(bad))
}

func TestResolve(t *testing.T) {
	m := ModelsConfig{Dir: "models"}
	require.Equal(t, filepath.Join("models", "yolo", "x.onnx"), m.Resolve(filepath.Join("yolo", "x.onnx")))
	require.Equal(t, "/abs/x.onnx", m.Resolve("/abs/x.onnx"))
	require.Equal(t, "", m.Resolve(""))
}

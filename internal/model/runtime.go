// Package model holds the ONNX runtime plumbing shared by the three model
// adapters: environment bootstrap, sessions and image preprocessing.
package model

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
)

// InitRuntime points the bindings at libPath (when set) and initialises the
// ONNX environment once per process
func InitRuntime(libPath string) error {
	if ort.IsInitialized() {
		return nil
	}
	if libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}
	return nil
}

// DestroyRuntime tears the environment down after all sessions are closed
func DestroyRuntime() error {
	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}

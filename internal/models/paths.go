// Package models resolves default locations of the detector, recognizer and
// label files.
package models

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Default file names inside the models directory.
const (
	DetectorFile   = "EasyOCR_EasyOCRDetector.onnx"
	RecognizerFile = "EasyOCR_EasyOCRRecognizer.onnx"
	LabelsFile     = "labels.txt"
)

// DefaultModelsDir is used relative to the project root when nothing else is configured.
const DefaultModelsDir = "models"

// EnvModelsDir overrides the models directory.
const EnvModelsDir = "CRAFTOCR_MODELS_DIR"

func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("could not find project root (go.mod not found)")
		}
		dir = parent
	}
}

// GetModelsDir picks, in order: the explicit dir, $CRAFTOCR_MODELS_DIR,
// <project root>/models, ./models.
func GetModelsDir(modelsDir string) string {
	if modelsDir != "" {
		return modelsDir
	}
	if env := os.Getenv(EnvModelsDir); env != "" {
		return env
	}
	if root, err := findProjectRoot(); err == nil {
		return filepath.Join(root, DefaultModelsDir)
	}
	return DefaultModelsDir
}

// DetectorPath returns the default detector model path.
func DetectorPath(modelsDir string) string {
	return filepath.Join(GetModelsDir(modelsDir), DetectorFile)
}

// RecognizerPath returns the default recognizer model path.
func RecognizerPath(modelsDir string) string {
	return filepath.Join(GetModelsDir(modelsDir), RecognizerFile)
}

// LabelsPath returns the default label file path.
func LabelsPath(modelsDir string) string {
	return filepath.Join(GetModelsDir(modelsDir), LabelsFile)
}

// ValidateExists reports a descriptive error when path is not a regular file.
func ValidateExists(kind, path string) error {
	st, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%s not found: %s", kind, path)
	}
	if st.IsDir() {
		return fmt.Errorf("%s path is a directory: %s", kind, path)
	}
	return nil
}

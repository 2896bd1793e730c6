// Package classifier loads pre-trained malware models from disk.
package classifier

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"

	"github.com/shashankrm11/malscan/internal/domain"
	"github.com/shashankrm11/malscan/internal/domain/feature"
)

// Format identifies a model artifact encoding.
type Format string

// Supported artifact formats.
const (
	FormatONNX   Format = "onnx"
	FormatLinear Format = "linear"
)

// Valid reports whether f is a supported format.
func (f Format) Valid() bool {
	return f == FormatONNX || f == FormatLinear
}

// Options configures Load.
type Options struct {
	Path   string
	Format Format
	// Schema is the feature order the model was trained on.
	Schema feature.Schema
	ONNX   ONNXOptions
}

// Model is a loaded classifier. Close releases native resources.
type Model interface {
	domain.Classifier
	domain.HealthChecker
	io.Closer
}

// Load reads the artifact at opts.Path. The returned model is immutable and safe
// for concurrent use.
func Load(opts Options) (Model, error) {
	if opts.Path == "" {
		return nil, errors.New("model path is empty")
	}
	if opts.Schema.Len() == 0 {
		opts.Schema = feature.DefaultSchema()
	}
	if _, err := os.Stat(opts.Path); err != nil {
		return nil, fmt.Errorf("model file %s: %w", opts.Path, err)
	}

	switch opts.Format {
	case FormatLinear, "":
		return LoadLinear(opts.Path, opts.Schema)
	case FormatONNX:
		return LoadONNX(opts.Path, opts.Schema.Len(), opts.ONNX)
	default:
		return nil, fmt.Errorf("unsupported model format %q", opts.Format)
	}
}

func checkInput(v feature.Vector, n int) error {
	if len(v) != n {
		return &feature.SchemaViolationError{Expected: n, Got: len(v)}
	}
	return nil
}

// Fingerprint identifies a model artifact by the XXH64 digest of its bytes, so
// caches keyed on it never outlive a model swap.
func Fingerprint(path string) (string, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("open model: %w", err)
	}
	defer f.Close()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash model: %w", err)
	}
	return fmt.Sprintf("%016x", h.Sum64()), nil
}

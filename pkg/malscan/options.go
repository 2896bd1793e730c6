package malscan

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Format identifies a model artifact encoding.
type Format string

// Supported model formats.
const (
	FormatONNX   Format = "onnx"
	FormatLinear Format = "linear"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	modelPath   string
	format      Format
	onnxLibrary string
	classifier  Classifier

	features     []string
	threshold    float64
	modelLabels  bool
	maxFileBytes int64

	cacheAddrs    []string
	cachePassword string
	cacheTTL      time.Duration

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// WithModel loads a trained model artifact from disk.
func WithModel(path string, format Format) Option {
	return optionFunc(func(c *clientConfig) {
		c.modelPath = path
		c.format = format
	})
}

// WithONNXLibrary sets the onnxruntime shared library path.
// Defaults to ONNXRUNTIME_SHARED_LIBRARY_PATH or common install locations.
func WithONNXLibrary(path string) Option {
	return optionFunc(func(c *clientConfig) {
		c.onnxLibrary = path
	})
}

// WithClassifier uses an in-process classifier instead of a model file.
func WithClassifier(cl Classifier) Option {
	return optionFunc(func(c *clientConfig) {
		c.classifier = cl
	})
}

// WithFeatures overrides the ordered feature list the model was trained on.
// Defaults to the 14 PE header features.
func WithFeatures(names ...string) Option {
	return optionFunc(func(c *clientConfig) {
		c.features = append([]string(nil), names...)
	})
}

// WithThreshold sets the malicious-probability cutoff. Default: 0.5.
func WithThreshold(t float64) Option {
	return optionFunc(func(c *clientConfig) {
		c.threshold = t
	})
}

// WithModelLabels takes the label from the model's own prediction instead of the threshold.
func WithModelLabels() Option {
	return optionFunc(func(c *clientConfig) {
		c.modelLabels = true
	})
}

// WithMaxFileSize bounds the artifacts AnalyzeFile will read. Default: 64 MiB.
func WithMaxFileSize(n int64) Option {
	return optionFunc(func(c *clientConfig) {
		c.maxFileBytes = n
	})
}

// WithRedisCache memoizes verdicts in Valkey or Redis.
func WithRedisCache(addr, password string, ttl time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.cacheAddrs = []string{addr}
		c.cachePassword = password
		c.cacheTTL = ttl
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}

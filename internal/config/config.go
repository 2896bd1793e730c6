package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the malscan API configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Schema     SchemaConfig     `yaml:"schema"`
	Cache      CacheConfig      `yaml:"cache"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
	MaxUploadMB     int `yaml:"max_upload_mb"`
}

// MaxUploadBytes returns the /analyze body limit in bytes.
func (h HTTPConfig) MaxUploadBytes() int64 {
	return int64(h.MaxUploadMB) << 20
}

// ClassifierConfig points at the trained model artifact.
type ClassifierConfig struct {
	Path        string     `yaml:"path"`
	Format      string     `yaml:"format"`       // onnx, linear (default: onnx)
	Threshold   float64    `yaml:"threshold"`    // default: 0.5
	LabelSource string     `yaml:"label_source"` // threshold, model (default: threshold)
	ONNX        ONNXConfig `yaml:"onnx"`
}

// ONNXConfig holds onnxruntime settings. Empty tensor names use the skl2onnx defaults.
type ONNXConfig struct {
	LibraryPath       string `yaml:"library_path"`
	InputName         string `yaml:"input_name"`
	LabelOutput       string `yaml:"label_output"`
	ProbabilityOutput string `yaml:"probability_output"`
}

// SchemaConfig overrides the ordered feature list the model was trained on.
type SchemaConfig struct {
	Features []string `yaml:"features"`
}

// CacheConfig holds the optional Valkey/Redis verdict cache settings.
type CacheConfig struct {
	Enabled          bool     `yaml:"enabled"`
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	TTLSec           int      `yaml:"ttl_sec"`
	StatsTTLDays     int      `yaml:"stats_ttl_days"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse decodes YAML bytes, expands ${VAR} references, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.HTTP.MaxUploadMB <= 0 {
		c.HTTP.MaxUploadMB = 32
	}
	if c.Classifier.Format == "" {
		c.Classifier.Format = "onnx"
	}
	if c.Classifier.Threshold == 0 {
		c.Classifier.Threshold = 0.5
	}
	if c.Classifier.LabelSource == "" {
		c.Classifier.LabelSource = "threshold"
	}
	if c.Cache.TTLSec <= 0 {
		c.Cache.TTLSec = 24 * 60 * 60
	}
	if c.Cache.StatsTTLDays <= 0 {
		c.Cache.StatsTTLDays = 31
	}
	if c.Cache.ReadinessTimeout <= 0 {
		c.Cache.ReadinessTimeout = 10
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Classifier.Format {
	case "onnx", "linear":
	default:
		return fmt.Errorf("classifier.format must be \"onnx\" or \"linear\", got %q", c.Classifier.Format)
	}
	if c.Classifier.Threshold <= 0 || c.Classifier.Threshold >= 1 {
		return fmt.Errorf("classifier.threshold must be in (0, 1), got %v", c.Classifier.Threshold)
	}
	switch c.Classifier.LabelSource {
	case "threshold", "model":
	default:
		return fmt.Errorf(
			"classifier.label_source must be \"threshold\" or \"model\", got %q",
			c.Classifier.LabelSource,
		)
	}
	seen := make(map[string]struct{}, len(c.Schema.Features))
	for i, name := range c.Schema.Features {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("schema.features[%d] is empty", i)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("schema.features has duplicate %q", name)
		}
		seen[name] = struct{}{}
	}
	if c.Cache.Enabled && len(c.Cache.Addrs) == 0 {
		return fmt.Errorf("cache.addrs is required when cache.enabled is true")
	}
	for i, addr := range c.Cache.Addrs {
		if c.Cache.Enabled && strings.TrimSpace(addr) == "" {
			return fmt.Errorf("cache.addrs[%d] is empty", i)
		}
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}

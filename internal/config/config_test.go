package config

import "testing"

func validConfig() Config {
	cfg := Config{HTTP: HTTPConfig{Port: 8080}}
	cfg.ApplyDefaults()
	return cfg
}

func TestValidate_InvalidFormat(t *testing.T) {
	cfg := validConfig()
	cfg.Classifier.Format = "pickle"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for invalid format")
	}

	expected := `classifier.format must be "onnx" or "linear", got "pickle"`
	if err.Error() != expected {
		t.Errorf("unexpected error message:\ngot:  %q\nwant: %q", err.Error(), expected)
	}
}

func TestValidate_ValidLabelSources(t *testing.T) {
	for _, src := range []string{"threshold", "model"} {
		t.Run("label_source="+src, func(t *testing.T) {
			cfg := validConfig()
			cfg.Classifier.LabelSource = src
			if err := cfg.Validate(); err != nil {
				t.Fatalf("unexpected error for %q: %v", src, err)
			}
		})
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := map[string]func(*Config){
		"port zero":          func(c *Config) { c.HTTP.Port = 0 },
		"port too large":     func(c *Config) { c.HTTP.Port = 70000 },
		"threshold one":      func(c *Config) { c.Classifier.Threshold = 1 },
		"threshold negative": func(c *Config) { c.Classifier.Threshold = -0.1 },
		"label source":       func(c *Config) { c.Classifier.LabelSource = "vote" },
		"empty feature":      func(c *Config) { c.Schema.Features = []string{"A", " "} },
		"duplicate feature":  func(c *Config) { c.Schema.Features = []string{"A", "A"} },
		"cache without addr": func(c *Config) { c.Cache.Enabled = true },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 10 {
		t.Errorf("expected ReadTimeoutSec=10, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.HTTP.WriteTimeoutSec != 30 {
		t.Errorf("expected WriteTimeoutSec=30, got %d", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.HTTP.MaxUploadBytes() != 32<<20 {
		t.Errorf("expected 32 MiB upload limit, got %d", cfg.HTTP.MaxUploadBytes())
	}
	if cfg.Classifier.Format != "onnx" {
		t.Errorf("expected Format=onnx, got %q", cfg.Classifier.Format)
	}
	if cfg.Classifier.Threshold != 0.5 {
		t.Errorf("expected Threshold=0.5, got %v", cfg.Classifier.Threshold)
	}
	if cfg.Classifier.LabelSource != "threshold" {
		t.Errorf("expected LabelSource=threshold, got %q", cfg.Classifier.LabelSource)
	}
	if cfg.Cache.TTLSec != 86400 {
		t.Errorf("expected TTLSec=86400, got %d", cfg.Cache.TTLSec)
	}
	if cfg.Cache.StatsTTLDays != 31 {
		t.Errorf("expected StatsTTLDays=31, got %d", cfg.Cache.StatsTTLDays)
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	cfg := Config{
		HTTP:       HTTPConfig{ReadTimeoutSec: 30, MaxUploadMB: 4},
		Classifier: ClassifierConfig{Format: "linear", Threshold: 0.7},
		Cache:      CacheConfig{TTLSec: 60},
	}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 30 {
		t.Errorf("expected ReadTimeoutSec=30, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.HTTP.MaxUploadMB != 4 {
		t.Errorf("expected MaxUploadMB=4, got %d", cfg.HTTP.MaxUploadMB)
	}
	if cfg.Classifier.Format != "linear" || cfg.Classifier.Threshold != 0.7 {
		t.Errorf("classifier overridden: %+v", cfg.Classifier)
	}
	if cfg.Cache.TTLSec != 60 {
		t.Errorf("expected TTLSec=60, got %d", cfg.Cache.TTLSec)
	}
}

func TestParse_ExpandsEnv(t *testing.T) {
	t.Setenv("MALSCAN_TEST_PORT", "9090")
	data := []byte(`
http:
  port: ${MALSCAN_TEST_PORT}
classifier:
  path: ${MALSCAN_TEST_MODEL:-models/model.json}
  format: linear
schema:
  features: [A, B]
`)
	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.HTTP.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.HTTP.Port)
	}
	if cfg.Classifier.Path != "models/model.json" {
		t.Errorf("path = %q, want default", cfg.Classifier.Path)
	}
	if len(cfg.Schema.Features) != 2 {
		t.Errorf("features = %v", cfg.Schema.Features)
	}
}

func TestParse_Invalid(t *testing.T) {
	if _, err := Parse([]byte("http: [")); err == nil {
		t.Error("expected YAML error")
	}
	if _, err := Parse([]byte("http: {port: 0}")); err == nil {
		t.Error("expected validation error")
	}
}

package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/shashankrm11/malscan/internal/domain"
	"github.com/shashankrm11/malscan/internal/domain/feature"
	"github.com/shashankrm11/malscan/internal/domain/verdict"
)

// linearArtifact is the JSON export of a standardized logistic-regression model.
type linearArtifact struct {
	Features []string  `json:"features"`
	Weights  []float64 `json:"weights"`
	Bias     float64   `json:"bias"`
	Mean     []float64 `json:"mean"`
	Scale    []float64 `json:"scale"`
}

// Linear is a logistic model over standardized features:
// p = sigmoid(bias + sum(w[i] * (x[i] - mean[i]) / scale[i])).
type Linear struct {
	weights []float64
	bias    float64
	mean    []float64
	scale   []float64
}

// LoadLinear reads a JSON model. When the artifact names its features they must
// match schema exactly, order included.
func LoadLinear(path string, schema feature.Schema) (*Linear, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read linear model: %w", err)
	}
	var a linearArtifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode linear model: %w", err)
	}

	if len(a.Features) > 0 {
		trained, err := feature.NewSchema(a.Features)
		if err != nil {
			return nil, fmt.Errorf("linear model features: %w", err)
		}
		if !trained.Equal(schema) {
			return nil, fmt.Errorf("linear model was trained on %v, configured schema is %v", a.Features, schema.Names())
		}
	}
	if len(a.Weights) != schema.Len() {
		return nil, fmt.Errorf("linear model has %d weights, schema has %d features", len(a.Weights), schema.Len())
	}
	return NewLinear(a.Weights, a.Bias, a.Mean, a.Scale)
}

// NewLinear builds a model from raw coefficients. Empty mean and scale disable
// standardization; a zero scale is treated as 1.
func NewLinear(weights []float64, bias float64, mean, scale []float64) (*Linear, error) {
	n := len(weights)
	if n == 0 {
		return nil, errors.New("linear model has no weights")
	}
	if len(mean) == 0 {
		mean = make([]float64, n)
	}
	if len(scale) == 0 {
		scale = make([]float64, n)
	}
	if len(mean) != n || len(scale) != n {
		return nil, fmt.Errorf("linear model: %d weights, %d means, %d scales", n, len(mean), len(scale))
	}

	l := &Linear{
		weights: append([]float64(nil), weights...),
		bias:    bias,
		mean:    append([]float64(nil), mean...),
		scale:   make([]float64, n),
	}
	for i := range scale {
		s := scale[i]
		if s == 0 {
			s = 1
		}
		l.scale[i] = s
	}
	if !allFinite([]float64{bias}, l.weights, l.mean, l.scale) {
		return nil, errors.New("linear model has non-finite coefficients")
	}
	return l, nil
}

// PredictProbability returns the malicious-class posterior.
func (l *Linear) PredictProbability(ctx context.Context, v feature.Vector) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := checkInput(v, len(l.weights)); err != nil {
		return 0, err
	}
	z := l.bias
	for i, x := range v {
		z += l.weights[i] * (x - l.mean[i]) / l.scale[i]
	}
	p := sigmoid(z)
	if math.IsNaN(p) {
		return 0, fmt.Errorf("%w: linear score is NaN", domain.ErrClassifierFailure)
	}
	return p, nil
}

// Predict applies the model's own 0.5 decision boundary.
func (l *Linear) Predict(ctx context.Context, v feature.Vector) (verdict.Label, error) {
	p, err := l.PredictProbability(ctx, v)
	if err != nil {
		return verdict.Legitimate, err
	}
	if p >= 0.5 {
		return verdict.Malicious, nil
	}
	return verdict.Legitimate, nil
}

// HealthCheck always succeeds; the model lives in memory.
func (l *Linear) HealthCheck(context.Context) error { return nil }

// Close is a no-op.
func (l *Linear) Close() error { return nil }

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

func allFinite(groups ...[]float64) bool {
	for _, g := range groups {
		for _, f := range g {
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return false
			}
		}
	}
	return true
}

package malscan

import "context"

// Kind is the detected artifact family.
type Kind string

// Artifact kinds.
const (
	KindPE      Kind = "pe"
	KindPDF     Kind = "pdf"
	KindImage   Kind = "image"
	KindGeneric Kind = "generic"
)

// Verdict is a classification outcome.
type Verdict struct {
	Label       int // 0 legitimate, 1 malicious
	Malicious   bool
	Probability float64
}

// Report is the outcome of analyzing one artifact.
type Report struct {
	ScanID   string
	Name     string
	Kind     Kind
	Size     int
	Features map[string]any // numbers as float64, metadata as string
	Verdict  *Verdict       // nil for kinds the model does not cover
}

// Classifier is a user-supplied model. features follow the configured feature order.
type Classifier interface {
	PredictProbability(ctx context.Context, features []float64) (float64, error)
}

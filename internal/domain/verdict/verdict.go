package verdict

import (
	"fmt"
	"math"
)

// Label is the classifier's class id.
type Label int

const (
	// Legitimate is class 0.
	Legitimate Label = 0
	// Malicious is class 1.
	Malicious Label = 1
)

func (l Label) String() string {
	switch l {
	case Legitimate:
		return "legitimate"
	case Malicious:
		return "malicious"
	default:
		return fmt.Sprintf("label(%d)", int(l))
	}
}

// Valid reports whether l is one of the two known classes.
func (l Label) Valid() bool { return l == Legitimate || l == Malicious }

// Verdict is the classification outcome for one artifact.
type Verdict struct {
	label       Label
	probability float64
}

// New validates and creates a Verdict. Probability must lie in [0,1].
func New(label Label, probability float64) (Verdict, error) {
	if !label.Valid() {
		return Verdict{}, fmt.Errorf("invalid label %d", int(label))
	}
	if math.IsNaN(probability) || probability < 0 || probability > 1 {
		return Verdict{}, fmt.Errorf("probability %v outside [0,1]", probability)
	}
	return Verdict{label: label, probability: probability}, nil
}

// FromProbability thresholds a malicious probability into a Verdict.
func FromProbability(probability, threshold float64) (Verdict, error) {
	label := Legitimate
	if probability >= threshold {
		label = Malicious
	}
	return New(label, probability)
}

// Label returns the class id.
func (v Verdict) Label() Label { return v.label }

// Probability returns the malicious posterior.
func (v Verdict) Probability() float64 { return v.probability }

// Malicious reports whether the verdict is class 1.
func (v Verdict) Malicious() bool { return v.label == Malicious }

package domain

// KeyPrefix namespaces every key malscan writes to the shared cache.
const KeyPrefix = "malscan:"

// DefaultThreshold is the malicious-probability cutoff used when none is configured.
// It is a serving policy, not a property of the trained model.
const DefaultThreshold = 0.5

// ServingConfig holds classification policy shared by the server, the CLI and the SDK.
type ServingConfig struct {
	Threshold   float64
	LabelSource LabelSource
}

// LabelSource selects where the verdict label comes from.
type LabelSource string

const (
	// LabelFromThreshold derives the label by comparing the probability with the threshold.
	LabelFromThreshold LabelSource = "threshold"
	// LabelFromModel uses the classifier's own predicted label.
	LabelFromModel LabelSource = "model"
)

// DefaultServingConfig returns the policy the classifier was validated with.
func DefaultServingConfig() ServingConfig {
	return ServingConfig{
		Threshold:   DefaultThreshold,
		LabelSource: LabelFromThreshold,
	}
}

package feature

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	// ErrSchemaViolation signals a feature map or vector that does not fit the schema.
	ErrSchemaViolation = errors.New("schema violation")
	// ErrInvalidSchema signals an invalid schema definition.
	ErrInvalidSchema = errors.New("invalid schema")
)

// PE feature names, in the order the malware classifier was trained on.
const (
	ImageBase                   = "ImageBase"
	VersionInformationSize      = "VersionInformationSize"
	SectionsMaxEntropy          = "SectionsMaxEntropy"
	MajorOperatingSystemVersion = "MajorOperatingSystemVersion"
	ResourcesMinSize            = "ResourcesMinSize"
	SizeOfStackReserve          = "SizeOfStackReserve"
	Characteristics             = "Characteristics"
	SizeOfInitializedData       = "SizeOfInitializedData"
	MajorSubsystemVersion       = "MajorSubsystemVersion"
	ResourcesNb                 = "ResourcesNb"
	Subsystem                   = "Subsystem"
	ResourcesMinEntropy         = "ResourcesMinEntropy"
	BaseOfData                  = "BaseOfData"
	SizeOfImage                 = "SizeOfImage"
)

// PENames returns the trained feature order. Reordering it changes model semantics.
func PENames() []string {
	return []string{
		ImageBase, VersionInformationSize, SectionsMaxEntropy,
		MajorOperatingSystemVersion, ResourcesMinSize, SizeOfStackReserve,
		Characteristics, SizeOfInitializedData, MajorSubsystemVersion,
		ResourcesNb, Subsystem, ResourcesMinEntropy, BaseOfData,
		SizeOfImage,
	}
}

// Vector is a fixed-length numeric vector positionally aligned to a Schema.
type Vector []float64

// Schema is an immutable, ordered list of required feature names.
type Schema struct {
	names []string
	index map[string]int
}

// NewSchema validates and creates a Schema. Names must be non-empty and unique.
func NewSchema(names []string) (Schema, error) {
	if len(names) == 0 {
		return Schema{}, fmt.Errorf("%w: no feature names", ErrInvalidSchema)
	}
	s := Schema{
		names: make([]string, len(names)),
		index: make(map[string]int, len(names)),
	}
	for i, n := range names {
		if strings.TrimSpace(n) == "" {
			return Schema{}, fmt.Errorf("%w: empty feature name at position %d", ErrInvalidSchema, i)
		}
		if _, dup := s.index[n]; dup {
			return Schema{}, fmt.Errorf("%w: duplicate feature name %q", ErrInvalidSchema, n)
		}
		s.names[i] = n
		s.index[n] = i
	}
	return s, nil
}

// DefaultSchema returns the 14-feature PE schema.
func DefaultSchema() Schema {
	s, err := NewSchema(PENames())
	if err != nil {
		panic(err)
	}
	return s
}

// Names returns a copy of the feature names in schema order.
func (s Schema) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Len returns the number of required features.
func (s Schema) Len() int { return len(s.names) }

// Equal reports whether two schemas have the same names in the same order.
func (s Schema) Equal(other Schema) bool {
	if len(s.names) != len(other.names) {
		return false
	}
	for i := range s.names {
		if s.names[i] != other.names[i] {
			return false
		}
	}
	return true
}

// Enforce projects m onto the schema. The vector follows schema order regardless of
// the map's order, extra keys are dropped, and every missing or non-numeric required
// feature is reported in a single *SchemaViolationError.
func (s Schema) Enforce(m *Map) (Vector, error) {
	vec := make(Vector, len(s.names))
	var missing, invalid []string
	for i, name := range s.names {
		v, ok := m.Get(name)
		if !ok {
			missing = append(missing, name)
			continue
		}
		f, ok := v.Float()
		if !ok {
			invalid = append(invalid, name)
			continue
		}
		vec[i] = f
	}
	if len(missing) > 0 || len(invalid) > 0 {
		return nil, &SchemaViolationError{Missing: missing, Invalid: invalid}
	}
	return vec, nil
}

// Check verifies that v has the schema's length and only finite elements.
func (s Schema) Check(v Vector) error {
	if len(v) != len(s.names) {
		return &SchemaViolationError{Expected: len(s.names), Got: len(v)}
	}
	var invalid []string
	for i, f := range v {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			invalid = append(invalid, s.names[i])
		}
	}
	if len(invalid) > 0 {
		return &SchemaViolationError{Invalid: invalid}
	}
	return nil
}

// SchemaViolationError lists every way an input failed the schema.
type SchemaViolationError struct {
	Missing  []string
	Invalid  []string
	Expected int
	Got      int
}

func (e *SchemaViolationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required features: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "non-numeric or non-finite features: "+strings.Join(e.Invalid, ", "))
	}
	if e.Expected != e.Got {
		parts = append(parts, fmt.Sprintf("vector has %d elements, schema expects %d", e.Got, e.Expected))
	}
	if len(parts) == 0 {
		return ErrSchemaViolation.Error()
	}
	return ErrSchemaViolation.Error() + ": " + strings.Join(parts, "; ")
}

func (e *SchemaViolationError) Unwrap() error { return ErrSchemaViolation }

// Package generator produces synthetic feature files for exercising /predict
// without real binaries.
package generator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"

	"github.com/shashankrm11/malscan/internal/domain/feature"
)

// Type is a synthetic artifact profile.
type Type string

// Supported profiles.
const (
	TypeEXE Type = "exe"
	TypePDF Type = "pdf"
	TypeTXT Type = "txt"
)

// Types returns every supported profile in generation order.
func Types() []Type { return []Type{TypeEXE, TypePDF, TypeTXT} }

// ParseTypes parses a comma-separated profile list such as "exe,pdf".
func ParseTypes(s string) ([]Type, error) {
	var out []Type
	for _, part := range strings.Split(s, ",") {
		t := Type(strings.ToLower(strings.TrimSpace(part)))
		if t == "" {
			continue
		}
		if _, ok := profiles[t]; !ok {
			return nil, fmt.Errorf("unsupported file type %q", part)
		}
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no file types in %q", s)
	}
	return out, nil
}

// span is an inclusive value range. Integer spans draw whole numbers; float spans
// draw uniformly and round to two decimals.
type span struct {
	lo, hi float64
	float  bool
}

func ints(lo, hi float64) span   { return span{lo: lo, hi: hi} }
func floats(lo, hi float64) span { return span{lo: lo, hi: hi, float: true} }
func fixed(v float64) span       { return span{lo: v, hi: v} }

var profiles = map[Type]map[string]span{
	TypeEXE: {
		feature.ImageBase:                   ints(2_000_000_000, 4_000_000_000),
		feature.VersionInformationSize:      ints(500, 5000),
		feature.SectionsMaxEntropy:          floats(5.0, 8.0),
		feature.MajorOperatingSystemVersion: ints(6, 10),
		feature.ResourcesMinSize:            ints(100, 1000),
		feature.SizeOfStackReserve:          ints(2000, 10000),
		feature.Characteristics:             ints(1000, 5000),
		feature.SizeOfInitializedData:       ints(1000, 5000),
		feature.MajorSubsystemVersion:       ints(4, 6),
		feature.ResourcesNb:                 ints(1, 5),
		feature.Subsystem:                   ints(1, 3),
		feature.ResourcesMinEntropy:         floats(3.0, 7.0),
		feature.BaseOfData:                  ints(100, 1000),
		feature.SizeOfImage:                 ints(100_000, 2_000_000),
	},
	TypePDF: {
		feature.ImageBase:                   fixed(0),
		feature.VersionInformationSize:      ints(1000, 3000),
		feature.SectionsMaxEntropy:          floats(4.0, 7.0),
		feature.MajorOperatingSystemVersion: ints(6, 9),
		feature.ResourcesMinSize:            ints(500, 1500),
		feature.SizeOfStackReserve:          ints(4000, 10000),
		feature.Characteristics:             ints(100, 500),
		feature.SizeOfInitializedData:       ints(500, 2000),
		feature.MajorSubsystemVersion:       ints(3, 5),
		feature.ResourcesNb:                 ints(1, 3),
		feature.Subsystem:                   ints(1, 2),
		feature.ResourcesMinEntropy:         floats(2.0, 6.0),
		feature.BaseOfData:                  ints(50, 500),
		feature.SizeOfImage:                 ints(50_000, 1_000_000),
	},
	TypeTXT: {
		feature.ImageBase:                   fixed(0),
		feature.VersionInformationSize:      fixed(0),
		feature.SectionsMaxEntropy:          floats(2.0, 4.0),
		feature.MajorOperatingSystemVersion: ints(6, 10),
		feature.ResourcesMinSize:            fixed(0),
		feature.SizeOfStackReserve:          ints(1000, 5000),
		feature.Characteristics:             ints(500, 2000),
		feature.SizeOfInitializedData:       ints(100, 500),
		feature.MajorSubsystemVersion:       ints(3, 5),
		feature.ResourcesNb:                 ints(0, 2),
		feature.Subsystem:                   ints(1, 3),
		feature.ResourcesMinEntropy:         floats(1.0, 3.0),
		feature.BaseOfData:                  fixed(0),
		feature.SizeOfImage:                 ints(10_000, 100_000),
	},
}

// Generator draws feature maps from a seeded source. Equal seeds produce equal
// sequences. A Generator is not safe for concurrent use.
type Generator struct {
	rng *rand.Rand
}

// New creates a generator seeded with seed.
func New(seed uint64) *Generator {
	return &Generator{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Generate returns one feature map for t with exactly the PE schema keys in
// schema order.
func (g *Generator) Generate(t Type) (*feature.Map, error) {
	profile, ok := profiles[t]
	if !ok {
		return nil, fmt.Errorf("unsupported file type %q", t)
	}
	names := feature.PENames()
	m := feature.NewMap(len(names))
	for _, name := range names {
		m.Set(name, feature.Number(g.draw(profile[name])))
	}
	return m, nil
}

func (g *Generator) draw(s span) float64 {
	if s.lo == s.hi {
		return s.lo
	}
	if s.float {
		return math.Round((s.lo+g.rng.Float64()*(s.hi-s.lo))*100) / 100
	}
	return s.lo + float64(g.rng.Int64N(int64(s.hi-s.lo)+1))
}

// FileName returns the conventional name of the i-th (1-based) file of type t.
func FileName(t Type, i int) string {
	return fmt.Sprintf("%s_test_%d.json", t, i)
}

// WriteFiles writes perType files for each type into dir, creating it if needed,
// and returns the written paths in order.
func (g *Generator) WriteFiles(dir string, types []Type, perType int) ([]string, error) {
	if perType <= 0 {
		return nil, fmt.Errorf("files per type must be positive, got %d", perType)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}

	paths := make([]string, 0, len(types)*perType)
	for _, t := range types {
		for i := 1; i <= perType; i++ {
			m, err := g.Generate(t)
			if err != nil {
				return paths, err
			}
			data, err := MarshalIndent(m)
			if err != nil {
				return paths, err
			}
			path := filepath.Join(dir, FileName(t, i))
			if err := os.WriteFile(path, data, 0o600); err != nil {
				return paths, fmt.Errorf("write %s: %w", path, err)
			}
			paths = append(paths, path)
		}
	}
	return paths, nil
}

// MarshalIndent encodes m with four-space indentation.
func MarshalIndent(m *feature.Map) ([]byte, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode features: %w", err)
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "    "); err != nil {
		return nil, fmt.Errorf("indent features: %w", err)
	}
	return buf.Bytes(), nil
}

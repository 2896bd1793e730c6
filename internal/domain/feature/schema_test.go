package feature

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func fullPEMap(reverse bool) *Map {
	names := PENames()
	m := NewMap(len(names) + 2)
	m.Set("MD5", String("d41d8cd98f00b204e9800998ecf8427e"))
	if reverse {
		for i := len(names) - 1; i >= 0; i-- {
			m.Set(names[i], Number(float64(i+1)))
		}
	} else {
		for i, n := range names {
			m.Set(n, Number(float64(i+1)))
		}
	}
	m.Set("Extra", Number(42))
	return m
}

func TestEnforce_OrderIndependentOfInsertion(t *testing.T) {
	s := DefaultSchema()
	for _, reverse := range []bool{false, true} {
		vec, err := s.Enforce(fullPEMap(reverse))
		if err != nil {
			t.Fatalf("reverse=%v: unexpected error: %v", reverse, err)
		}
		if len(vec) != s.Len() {
			t.Fatalf("len = %d, want %d", len(vec), s.Len())
		}
		for i, v := range vec {
			if v != float64(i+1) {
				t.Errorf("reverse=%v: vec[%d] = %v, want %v", reverse, i, v, float64(i+1))
			}
		}
	}
}

func TestEnforce_ExtrasDropped(t *testing.T) {
	s, err := NewSchema([]string{"b", "a"})
	if err != nil {
		t.Fatalf("NewSchema: %v", err)
	}
	m := NewMap(3)
	m.Set("a", Number(1))
	m.Set("z", Number(99))
	m.Set("b", Number(2))

	vec, err := s.Enforce(m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 2 || vec[0] != 2 || vec[1] != 1 {
		t.Errorf("vec = %v, want [2 1]", vec)
	}
}

func TestEnforce_NamesEveryMissingKey(t *testing.T) {
	s := DefaultSchema()
	m := fullPEMap(false)
	partial := NewMap(m.Len())
	m.Each(func(name string, v Value) {
		if name == Subsystem || name == ImageBase || name == SizeOfImage {
			return
		}
		partial.Set(name, v)
	})

	_, err := s.Enforce(partial)
	if err == nil {
		t.Fatal("expected schema violation")
	}
	if !errors.Is(err, ErrSchemaViolation) {
		t.Fatalf("expected ErrSchemaViolation, got %v", err)
	}
	var sv *SchemaViolationError
	if !errors.As(err, &sv) {
		t.Fatalf("expected *SchemaViolationError, got %T", err)
	}
	want := []string{ImageBase, Subsystem, SizeOfImage}
	if strings.Join(sv.Missing, ",") != strings.Join(want, ",") {
		t.Errorf("missing = %v, want %v (schema order)", sv.Missing, want)
	}
	for _, n := range want {
		if !strings.Contains(err.Error(), n) {
			t.Errorf("error %q does not name %s", err.Error(), n)
		}
	}
}

func TestEnforce_SingleMissing(t *testing.T) {
	s := DefaultSchema()
	m := NewMap(14)
	for _, n := range PENames() {
		if n != Subsystem {
			m.Set(n, Number(1))
		}
	}
	_, err := s.Enforce(m)
	if err == nil || !strings.Contains(err.Error(), "Subsystem") {
		t.Fatalf("expected error naming Subsystem, got %v", err)
	}
}

func TestEnforce_InvalidValues(t *testing.T) {
	s, _ := NewSchema([]string{"a", "b", "c", "d"})
	m := NewMap(4)
	m.Set("a", String("12.5"))
	m.Set("b", String("not-a-number"))
	m.Set("c", Value{})
	m.Set("d", Number(math.Inf(1)))

	_, err := s.Enforce(m)
	var sv *SchemaViolationError
	if !errors.As(err, &sv) {
		t.Fatalf("expected *SchemaViolationError, got %v", err)
	}
	if strings.Join(sv.Invalid, ",") != "b,c,d" {
		t.Errorf("invalid = %v, want [b c d]", sv.Invalid)
	}
	if len(sv.Missing) != 0 {
		t.Errorf("missing = %v, want none", sv.Missing)
	}
}

func TestCheck(t *testing.T) {
	s := DefaultSchema()

	if err := s.Check(make(Vector, 14)); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	err := s.Check(make(Vector, 13))
	if !errors.Is(err, ErrSchemaViolation) {
		t.Errorf("short vector: expected ErrSchemaViolation, got %v", err)
	}

	v := make(Vector, 14)
	v[2] = math.NaN()
	err = s.Check(v)
	if err == nil || !strings.Contains(err.Error(), SectionsMaxEntropy) {
		t.Errorf("NaN element: expected error naming %s, got %v", SectionsMaxEntropy, err)
	}
}

func TestNewSchema_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		names []string
	}{
		{"empty", nil},
		{"blank name", []string{"a", " "}},
		{"duplicate", []string{"a", "b", "a"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewSchema(tc.names); !errors.Is(err, ErrInvalidSchema) {
				t.Errorf("expected ErrInvalidSchema, got %v", err)
			}
		})
	}
}

func TestSchema_NamesIsCopy(t *testing.T) {
	s := DefaultSchema()
	names := s.Names()
	names[0] = "tampered"
	if s.Names()[0] != ImageBase {
		t.Error("schema was mutated through Names()")
	}
}

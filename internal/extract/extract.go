// Package extract turns raw artifacts into named structural features.
//
// Extractors are pure and never return errors: unreadable or malformed input
// degrades to an empty or partially defaulted feature map.
package extract

import "github.com/shashankrm11/malscan/internal/domain/feature"

// Extract sniffs the artifact and runs the matching extractor.
func Extract(a Artifact) (Kind, *feature.Map) {
	kind := SniffBytes(a.Data)
	return kind, ExtractKind(kind, a.Data)
}

// ExtractKind runs the extractor for an already known kind.
func ExtractKind(kind Kind, data []byte) *feature.Map {
	switch kind {
	case KindPE:
		return ExtractPE(data)
	case KindPDF:
		return ExtractPDF(data)
	case KindImage:
		return ExtractImage(data)
	default:
		return ExtractHashes(data)
	}
}

// ExtractFile reads and extracts the file at path. limit <= 0 means unbounded.
func ExtractFile(path string, limit int64) (Kind, *feature.Map, error) {
	a, err := ReadArtifact(path, limit)
	if err != nil {
		return KindGeneric, feature.NewMap(0), err
	}
	kind, m := Extract(a)
	return kind, m, nil
}

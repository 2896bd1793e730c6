package extract

import (
	"bytes"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/shashankrm11/malscan/internal/domain/feature"
)

// PDF feature names.
const (
	PDFNumberOfPages = "NumberOfPages"
	PDFTitle         = "Title"
	PDFAuthor        = "Author"
	PDFProducer      = "Producer"
)

const unknownMetadata = "Unknown"

// ExtractPDF reads the page count and document information dictionary.
// Undecodable documents yield an empty map.
func ExtractPDF(data []byte) (m *feature.Map) {
	// The decoder panics on some malformed cross-reference tables.
	defer func() {
		if recover() != nil {
			m = feature.NewMap(0)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return feature.NewMap(0)
	}

	info := r.Trailer().Key("Info")
	m = feature.NewMap(4)
	m.Set(PDFNumberOfPages, feature.Int(r.NumPage()))
	m.Set(PDFTitle, feature.String(infoText(info, "Title")))
	m.Set(PDFAuthor, feature.String(infoText(info, "Author")))
	m.Set(PDFProducer, feature.String(infoText(info, "Producer")))
	return m
}

func infoText(info pdf.Value, key string) string {
	if info.IsNull() {
		return unknownMetadata
	}
	v := info.Key(key)
	if v.Kind() != pdf.String {
		return unknownMetadata
	}
	s := strings.TrimSpace(v.Text())
	if s == "" {
		return unknownMetadata
	}
	return s
}

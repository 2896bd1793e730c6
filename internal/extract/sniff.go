package extract

import (
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Kind is the artifact class that selects an extractor.
type Kind string

// Artifact kinds.
const (
	KindPE      Kind = "pe"
	KindPDF     Kind = "pdf"
	KindImage   Kind = "image"
	KindGeneric Kind = "generic"
)

// sniffLen covers the DOS header plus the usual e_lfanew range.
const sniffLen = 4096

// Sniff classifies the file at path. Unreadable or truncated files are KindGeneric.
func Sniff(path string) Kind {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return KindGeneric
	}
	defer f.Close()

	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return KindGeneric
	}
	return sniff(buf[:n], n == sniffLen)
}

// SniffBytes classifies a complete in-memory artifact.
func SniffBytes(data []byte) Kind {
	return sniff(data, false)
}

// sniff classifies data. prefix reports that data is only the head of a longer
// file, so a PE signature beyond its end may still exist.
func sniff(data []byte, prefix bool) Kind {
	if len(data) == 0 {
		return KindGeneric
	}
	if looksPE(data, prefix) {
		return KindPE
	}

	mt := mimetype.Detect(data)
	switch {
	case mt.Is("application/pdf"):
		return KindPDF
	case strings.HasPrefix(mt.String(), "image/"):
		return KindImage
	default:
		return KindGeneric
	}
}

// isMZ reports the DOS executable magic.
func isMZ(data []byte) bool {
	return len(data) >= 2 && data[0] == 'M' && data[1] == 'Z'
}

// looksPE requires a full DOS header whose e_lfanew points at "PE\0\0". When data
// is a prefix, an e_lfanew beyond it is accepted and the extractor decides.
// Short or signature-less MZ inputs fall through to the generic path.
func looksPE(data []byte, prefix bool) bool {
	if hasPESignature(data) {
		return true
	}
	if !prefix || !isMZ(data) || len(data) < dosHeaderSize {
		return false
	}
	off := int64(binary.LittleEndian.Uint32(data[0x3c:]))
	return off+int64(len(peSignature)) > int64(len(data))
}

// hasPESignature reports whether data carries "PE\0\0" at e_lfanew.
func hasPESignature(data []byte) bool {
	if !isMZ(data) || len(data) < dosHeaderSize {
		return false
	}
	off := int64(binary.LittleEndian.Uint32(data[0x3c:]))
	if off <= 0 || off+4 > int64(len(data)) {
		return false
	}
	return string(data[off:off+4]) == peSignature
}

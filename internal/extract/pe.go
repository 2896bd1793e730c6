package extract

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/shashankrm11/malscan/internal/domain/feature"
)

const (
	dosHeaderSize     = 64
	peSignature       = "PE\x00\x00"
	fileHeaderSize    = 20
	sectionHeaderSize = 40
	// maxSections is the Windows loader limit.
	maxSections = 96

	optMagicPE32     = 0x10b
	optMagicPE32Plus = 0x20b
)

var (
	errNotPE             = errors.New("missing DOS header or PE signature")
	errNoOptionalHeader  = errors.New("optional header missing")
	errFieldOutOfRange   = errors.New("field outside optional header")
	errDirectoryAbsent   = errors.New("data directory not present")
	errRVAUnmapped       = errors.New("rva not mapped by any section")
	errNotAvailablePE32p = errors.New("field does not exist in PE32+ headers")
)

// optField locates a field in the PE32 and PE32+ optional headers.
// off64 < 0 means the field does not exist in PE32+.
type optField struct {
	off32, size32 int
	off64, size64 int
}

var (
	optSizeOfInitializedData       = optField{8, 4, 8, 4}
	optBaseOfData                  = optField{24, 4, -1, 0}
	optImageBase                   = optField{28, 4, 24, 8}
	optMajorOperatingSystemVersion = optField{40, 2, 40, 2}
	optMajorSubsystemVersion       = optField{48, 2, 48, 2}
	optSizeOfImage                 = optField{56, 4, 56, 4}
	optSizeOfHeaders               = optField{60, 4, 60, 4}
	optSubsystem                   = optField{68, 2, 68, 2}
	optSizeOfStackReserve          = optField{72, 4, 72, 8}
	optNumberOfRvaAndSizes         = optField{92, 4, 108, 4}
)

const (
	dataDirOffset32 = 96
	dataDirOffset64 = 112
)

// peImage is a lazily validated view over a PE container. Only the DOS header,
// the signature and the COFF file header are required; everything after them is
// read on demand so one broken structure cannot hide the others.
type peImage struct {
	data     []byte
	file     pe.FileHeader
	opt      []byte
	optErr   error
	pe32Plus bool
	sections []pe.SectionHeader32
	sectErr  error
}

func parsePE(data []byte) (*peImage, error) {
	if !hasPESignature(data) {
		return nil, errNotPE
	}
	off := int64(binary.LittleEndian.Uint32(data[0x3c:])) + int64(len(peSignature))
	if off+fileHeaderSize > int64(len(data)) {
		return nil, fmt.Errorf("truncated COFF file header at %#x", off)
	}

	img := &peImage{data: data}
	if err := binary.Read(bytes.NewReader(data[off:off+fileHeaderSize]), binary.LittleEndian, &img.file); err != nil {
		return nil, fmt.Errorf("read COFF file header: %w", err)
	}

	optOff := off + fileHeaderSize
	img.readOptionalHeader(optOff)
	img.readSections(optOff + int64(img.file.SizeOfOptionalHeader))
	return img, nil
}

func (img *peImage) readOptionalHeader(off int64) {
	size := int64(img.file.SizeOfOptionalHeader)
	if size < 2 || off+2 > int64(len(img.data)) {
		img.optErr = errNoOptionalHeader
		return
	}
	end := off + size
	if end > int64(len(img.data)) {
		end = int64(len(img.data))
	}
	img.opt = img.data[off:end]

	switch magic := binary.LittleEndian.Uint16(img.opt); magic {
	case optMagicPE32:
	case optMagicPE32Plus:
		img.pe32Plus = true
	default:
		img.optErr = fmt.Errorf("unknown optional header magic %#x", magic)
	}
}

func (img *peImage) readSections(off int64) {
	n := int(img.file.NumberOfSections)
	if n > maxSections {
		img.sectErr = fmt.Errorf("%d sections exceeds loader limit", n)
		n = maxSections
	}
	for i := 0; i < n; i++ {
		start := off + int64(i)*sectionHeaderSize
		if start < 0 || start+sectionHeaderSize > int64(len(img.data)) {
			img.sectErr = fmt.Errorf("section table truncated at entry %d", i)
			return
		}
		var sh pe.SectionHeader32
		r := bytes.NewReader(img.data[start : start+sectionHeaderSize])
		if err := binary.Read(r, binary.LittleEndian, &sh); err != nil {
			img.sectErr = fmt.Errorf("read section %d: %w", i, err)
			return
		}
		img.sections = append(img.sections, sh)
	}
}

// optional reads one optional-header field, honoring the header's declared size.
func (img *peImage) optional(f optField) (uint64, error) {
	if img.optErr != nil {
		return 0, img.optErr
	}
	off, size := f.off32, f.size32
	if img.pe32Plus {
		if f.off64 < 0 {
			return 0, errNotAvailablePE32p
		}
		off, size = f.off64, f.size64
	}
	if off+size > len(img.opt) {
		return 0, errFieldOutOfRange
	}
	b := img.opt[off : off+size]
	switch size {
	case 2:
		return uint64(binary.LittleEndian.Uint16(b)), nil
	case 4:
		return uint64(binary.LittleEndian.Uint32(b)), nil
	case 8:
		return binary.LittleEndian.Uint64(b), nil
	default:
		return 0, fmt.Errorf("unsupported field size %d", size)
	}
}

func (img *peImage) optionalFeature(f optField) func() (float64, error) {
	return func() (float64, error) {
		v, err := img.optional(f)
		if err != nil {
			return 0, err
		}
		return float64(v), nil
	}
}

func (img *peImage) dataDirectory(idx int) (pe.DataDirectory, error) {
	count, err := img.optional(optNumberOfRvaAndSizes)
	if err != nil {
		return pe.DataDirectory{}, err
	}
	if uint64(idx) >= count {
		return pe.DataDirectory{}, errDirectoryAbsent
	}
	base := dataDirOffset32
	if img.pe32Plus {
		base = dataDirOffset64
	}
	off := base + idx*8
	if off+8 > len(img.opt) {
		return pe.DataDirectory{}, errFieldOutOfRange
	}
	return pe.DataDirectory{
		VirtualAddress: binary.LittleEndian.Uint32(img.opt[off:]),
		Size:           binary.LittleEndian.Uint32(img.opt[off+4:]),
	}, nil
}

// rvaToOffset maps a relative virtual address to a file offset.
func (img *peImage) rvaToOffset(rva uint32) (int64, error) {
	for _, s := range img.sections {
		span := uint64(s.VirtualSize)
		if uint64(s.SizeOfRawData) > span {
			span = uint64(s.SizeOfRawData)
		}
		if uint64(rva) >= uint64(s.VirtualAddress) && uint64(rva) < uint64(s.VirtualAddress)+span {
			off := int64(rva-s.VirtualAddress) + int64(s.PointerToRawData)
			if off >= int64(len(img.data)) {
				return 0, fmt.Errorf("rva %#x maps past end of file", rva)
			}
			return off, nil
		}
	}
	if headers, err := img.optional(optSizeOfHeaders); err == nil && uint64(rva) < headers && int64(rva) < int64(len(img.data)) {
		return int64(rva), nil
	}
	return 0, errRVAUnmapped
}

// sectionData returns the section's raw bytes clamped to the file.
func (img *peImage) sectionData(s pe.SectionHeader32) []byte {
	return clampSlice(img.data, int64(s.PointerToRawData), int64(s.SizeOfRawData))
}

func clampSlice(data []byte, off, size int64) []byte {
	if off < 0 || size <= 0 || off >= int64(len(data)) {
		return nil
	}
	end := off + size
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	return data[off:end]
}

func (img *peImage) sectionsMaxEntropy() (float64, error) {
	if len(img.sections) == 0 {
		if img.sectErr != nil {
			return 0, img.sectErr
		}
		return 0, nil
	}
	var maxH float64
	for _, s := range img.sections {
		if h := Entropy(img.sectionData(s)); h > maxH {
			maxH = h
		}
	}
	return maxH, nil
}

// ExtractPE derives the classifier's PE features. An input without a DOS header,
// PE signature and COFF file header yields an empty map; otherwise every schema
// feature is present, falling back to 0 where its structure is absent or broken.
// BaseOfData is 0 for PE32+ images.
func ExtractPE(data []byte) *feature.Map {
	img, err := parsePE(data)
	if err != nil {
		return feature.NewMap(0)
	}

	res := guardResources(img)

	derivations := []struct {
		name string
		fn   func() (float64, error)
	}{
		{feature.ImageBase, img.optionalFeature(optImageBase)},
		{feature.VersionInformationSize, res.versionInfoSize},
		{feature.SectionsMaxEntropy, img.sectionsMaxEntropy},
		{feature.MajorOperatingSystemVersion, img.optionalFeature(optMajorOperatingSystemVersion)},
		{feature.ResourcesMinSize, res.minSize},
		{feature.SizeOfStackReserve, img.optionalFeature(optSizeOfStackReserve)},
		{feature.Characteristics, func() (float64, error) { return float64(img.file.Characteristics), nil }},
		{feature.SizeOfInitializedData, img.optionalFeature(optSizeOfInitializedData)},
		{feature.MajorSubsystemVersion, img.optionalFeature(optMajorSubsystemVersion)},
		{feature.ResourcesNb, res.count},
		{feature.Subsystem, img.optionalFeature(optSubsystem)},
		{feature.ResourcesMinEntropy, res.minEntropy},
		{feature.BaseOfData, img.optionalFeature(optBaseOfData)},
		{feature.SizeOfImage, img.optionalFeature(optSizeOfImage)},
	}

	m := feature.NewMap(len(derivations))
	for _, d := range derivations {
		m.Set(d.name, feature.Number(guard(d.fn)))
	}
	return m
}

// guard runs one feature derivation. Errors, panics on malformed offsets and
// non-finite results all produce the fallback value 0.
func guard(fn func() (float64, error)) (v float64) {
	defer func() {
		if recover() != nil {
			v = 0
		}
	}()
	f, err := fn()
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

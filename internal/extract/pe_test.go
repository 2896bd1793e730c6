package extract

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
	"math"
	"math/rand"
	"testing"

	"github.com/shashankrm11/malscan/internal/domain/feature"
)

const (
	testFileAlign   = 0x200
	testSectAlign   = 0x1000
	testImageBase32 = 0x400000
	testImageBase64 = 0x140000000
	testCharacter   = pe.IMAGE_FILE_EXECUTABLE_IMAGE | pe.IMAGE_FILE_32BIT_MACHINE
)

type testSection struct {
	name string
	data []byte
}

type testResource struct {
	typeID uint32
	data   []byte
}

// testImage describes a synthetic PE laid out the way a linker would.
// Resources, when present, land in a trailing .rsrc section.
type testImage struct {
	plus      bool
	sections  []testSection
	resources []testResource
}

func alignUp(v, a int) int {
	return (v + a - 1) / a * a
}

func (ti testImage) build(t *testing.T) []byte {
	t.Helper()

	sections := append([]testSection(nil), ti.sections...)
	optSize := binary.Size(pe.OptionalHeader32{})
	if ti.plus {
		optSize = binary.Size(pe.OptionalHeader64{})
	}
	nsect := len(sections)
	if len(ti.resources) > 0 {
		nsect++
	}
	headers := alignUp(dosHeaderSize+len(peSignature)+fileHeaderSize+optSize+sectionHeaderSize*nsect, testFileAlign)

	var dirs [16]pe.DataDirectory
	var hdrs []pe.SectionHeader32
	raw, va := headers, testSectAlign
	place := func(name string, data []byte) {
		var h pe.SectionHeader32
		copy(h.Name[:], name)
		h.VirtualSize = uint32(len(data))
		h.VirtualAddress = uint32(va)
		h.SizeOfRawData = uint32(alignUp(len(data), testFileAlign))
		h.PointerToRawData = uint32(raw)
		hdrs = append(hdrs, h)
		raw += int(h.SizeOfRawData)
		va += alignUp(max(len(data), 1), testSectAlign)
	}
	for _, s := range sections {
		place(s.name, s.data)
	}
	if len(ti.resources) > 0 {
		rsrc := buildResourceSection(uint32(va), ti.resources)
		dirs[pe.IMAGE_DIRECTORY_ENTRY_RESOURCE] = pe.DataDirectory{VirtualAddress: uint32(va), Size: uint32(len(rsrc))}
		sections = append(sections, testSection{name: ".rsrc", data: rsrc})
		place(".rsrc", rsrc)
	}

	var buf bytes.Buffer
	dos := make([]byte, dosHeaderSize)
	dos[0], dos[1] = 'M', 'Z'
	binary.LittleEndian.PutUint32(dos[0x3c:], dosHeaderSize)
	buf.Write(dos)
	buf.WriteString(peSignature)

	fh := pe.FileHeader{
		Machine:              pe.IMAGE_FILE_MACHINE_I386,
		NumberOfSections:     uint16(nsect),
		SizeOfOptionalHeader: uint16(optSize),
		Characteristics:      testCharacter,
	}
	if ti.plus {
		fh.Machine = pe.IMAGE_FILE_MACHINE_AMD64
	}
	mustWrite(t, &buf, fh)

	if ti.plus {
		mustWrite(t, &buf, pe.OptionalHeader64{
			Magic:                       optMagicPE32Plus,
			SizeOfInitializedData:       0x1000,
			ImageBase:                   testImageBase64,
			SectionAlignment:            testSectAlign,
			FileAlignment:               testFileAlign,
			MajorOperatingSystemVersion: 6,
			MajorSubsystemVersion:       6,
			SizeOfImage:                 uint32(va),
			SizeOfHeaders:               uint32(headers),
			Subsystem:                   pe.IMAGE_SUBSYSTEM_WINDOWS_GUI,
			SizeOfStackReserve:          0x100000,
			NumberOfRvaAndSizes:         16,
			DataDirectory:               dirs,
		})
	} else {
		mustWrite(t, &buf, pe.OptionalHeader32{
			Magic:                       optMagicPE32,
			SizeOfInitializedData:       0x1000,
			BaseOfData:                  0x2000,
			ImageBase:                   testImageBase32,
			SectionAlignment:            testSectAlign,
			FileAlignment:               testFileAlign,
			MajorOperatingSystemVersion: 6,
			MajorSubsystemVersion:       6,
			SizeOfImage:                 uint32(va),
			SizeOfHeaders:               uint32(headers),
			Subsystem:                   pe.IMAGE_SUBSYSTEM_WINDOWS_GUI,
			SizeOfStackReserve:          0x100000,
			NumberOfRvaAndSizes:         16,
			DataDirectory:               dirs,
		})
	}
	for _, h := range hdrs {
		mustWrite(t, &buf, h)
	}
	buf.Write(make([]byte, headers-buf.Len()))

	for i, s := range sections {
		buf.Write(s.data)
		buf.Write(make([]byte, int(hdrs[i].SizeOfRawData)-len(s.data)))
	}
	return buf.Bytes()
}

func mustWrite(t *testing.T, buf *bytes.Buffer, v any) {
	t.Helper()
	if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
		t.Fatalf("binary.Write: %v", err)
	}
}

// buildResourceSection lays out one type -> name -> language chain per resource,
// followed by the resource bytes.
func buildResourceSection(va uint32, leaves []testResource) []byte {
	const chain = 2*(resourceDirHeaderSize+resourceEntrySize) + resourceDataEntrySize
	rootSize := resourceDirHeaderSize + resourceEntrySize*len(leaves)
	dataOff := rootSize + chain*len(leaves)

	out := make([]byte, dataOff)
	binary.LittleEndian.PutUint16(out[14:], uint16(len(leaves)))
	for i, l := range leaves {
		nameDir := rootSize + chain*i
		langDir := nameDir + resourceDirHeaderSize + resourceEntrySize
		entry := langDir + resourceDirHeaderSize + resourceEntrySize

		e := resourceDirHeaderSize + resourceEntrySize*i
		binary.LittleEndian.PutUint32(out[e:], l.typeID)
		binary.LittleEndian.PutUint32(out[e+4:], subdirectoryBit|uint32(nameDir))

		binary.LittleEndian.PutUint16(out[nameDir+14:], 1)
		binary.LittleEndian.PutUint32(out[nameDir+16:], 1)
		binary.LittleEndian.PutUint32(out[nameDir+20:], subdirectoryBit|uint32(langDir))

		binary.LittleEndian.PutUint16(out[langDir+14:], 1)
		binary.LittleEndian.PutUint32(out[langDir+16:], 0x409)
		binary.LittleEndian.PutUint32(out[langDir+20:], uint32(entry))

		binary.LittleEndian.PutUint32(out[entry:], va+uint32(dataOff))
		binary.LittleEndian.PutUint32(out[entry+4:], uint32(len(l.data)))

		out = append(out, l.data...)
		dataOff += len(l.data)
	}
	return out
}

func versionInfoBlob(length int) []byte {
	b := make([]byte, 6, length)
	binary.LittleEndian.PutUint16(b, uint16(length))
	binary.LittleEndian.PutUint16(b[2:], 52)
	for _, r := range versionInfoKey {
		b = append(b, byte(r), 0)
	}
	b = append(b, 0, 0)
	return append(b, make([]byte, length-len(b))...)
}

func allBytes() []byte {
	b := make([]byte, 256)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}

func featureValue(t *testing.T, m *feature.Map, name string) float64 {
	t.Helper()
	v, ok := m.Get(name)
	if !ok {
		t.Fatalf("feature %s missing", name)
	}
	f, ok := v.Float()
	if !ok {
		t.Fatalf("feature %s is not numeric: %+v", name, v)
	}
	return f
}

func assertFeatures(t *testing.T, m *feature.Map, want map[string]float64) {
	t.Helper()
	for name, w := range want {
		if got := featureValue(t, m, name); got != w {
			t.Errorf("%s = %v, want %v", name, got, w)
		}
	}
}

func TestExtractPE_MinimalPE32(t *testing.T) {
	data := testImage{sections: []testSection{{".text", make([]byte, 512)}}}.build(t)

	m := ExtractPE(data)

	if m.Len() != len(feature.PENames()) {
		t.Fatalf("got %d features, want %d: %v", m.Len(), len(feature.PENames()), m.Keys())
	}
	if _, err := feature.DefaultSchema().Enforce(m); err != nil {
		t.Fatalf("map does not satisfy schema: %v", err)
	}
	assertFeatures(t, m, map[string]float64{
		feature.ImageBase:                   testImageBase32,
		feature.SectionsMaxEntropy:          0,
		feature.ResourcesNb:                 0,
		feature.ResourcesMinSize:            0,
		feature.ResourcesMinEntropy:         0,
		feature.VersionInformationSize:      0,
		feature.BaseOfData:                  0x2000,
		feature.Characteristics:             testCharacter,
		feature.Subsystem:                   pe.IMAGE_SUBSYSTEM_WINDOWS_GUI,
		feature.SizeOfStackReserve:          0x100000,
		feature.SizeOfInitializedData:       0x1000,
		feature.MajorOperatingSystemVersion: 6,
		feature.MajorSubsystemVersion:       6,
		feature.SizeOfImage:                 0x2000,
	})
}

func TestExtractPE_SchemaOrder(t *testing.T) {
	data := testImage{sections: []testSection{{".text", allBytes()}}}.build(t)

	keys := ExtractPE(data).Keys()
	want := feature.PENames()
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("key %d = %s, want %s", i, keys[i], want[i])
		}
	}
}

func TestExtractPE_SectionsMaxEntropy(t *testing.T) {
	data := testImage{sections: []testSection{
		{".text", make([]byte, 64)},
		{".data", allBytes()},
		{".rdata", []byte("abababab")},
	}}.build(t)

	// Raw data is padded to the file alignment, so the uniform section is
	// diluted by zero bytes; it still dominates.
	got := featureValue(t, ExtractPE(data), feature.SectionsMaxEntropy)
	want := Entropy(append(allBytes(), make([]byte, testFileAlign-256)...))
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("SectionsMaxEntropy = %v, want %v", got, want)
	}
}

func TestExtractPE_Resources(t *testing.T) {
	manifest := bytes.Repeat([]byte("a"), 100)
	data := testImage{
		sections: []testSection{{".text", make([]byte, 16)}},
		resources: []testResource{
			{typeID: 3, data: allBytes()},
			{typeID: rtVersion, data: versionInfoBlob(740)},
			{typeID: 24, data: manifest},
		},
	}.build(t)

	m := ExtractPE(data)
	assertFeatures(t, m, map[string]float64{
		feature.ResourcesNb:            3,
		feature.ResourcesMinSize:       100,
		feature.ResourcesMinEntropy:    0,
		feature.VersionInformationSize: 740,
	})

	minEntropy := featureValue(t, m, feature.ResourcesMinEntropy)
	for _, leaf := range [][]byte{allBytes(), versionInfoBlob(740), manifest} {
		if minEntropy > Entropy(leaf) {
			t.Errorf("ResourcesMinEntropy %v exceeds leaf entropy %v", minEntropy, Entropy(leaf))
		}
	}
}

func TestExtractPE_VersionResourceWithBadKey(t *testing.T) {
	blob := versionInfoBlob(128)
	blob[6] = 'X'
	data := testImage{resources: []testResource{{typeID: rtVersion, data: blob}}}.build(t)

	m := ExtractPE(data)
	assertFeatures(t, m, map[string]float64{
		feature.VersionInformationSize: 0,
		feature.ResourcesNb:            1,
		feature.ResourcesMinSize:       128,
	})
}

func TestExtractPE_PE32Plus(t *testing.T) {
	data := testImage{plus: true, sections: []testSection{{".text", make([]byte, 32)}}}.build(t)

	m := ExtractPE(data)
	if m.Len() != len(feature.PENames()) {
		t.Fatalf("got %d features", m.Len())
	}
	assertFeatures(t, m, map[string]float64{
		feature.BaseOfData:         0,
		feature.ImageBase:          testImageBase64,
		feature.SizeOfStackReserve: 0x100000,
		feature.Subsystem:          pe.IMAGE_SUBSYSTEM_WINDOWS_GUI,
	})
}

func TestExtractPE_NotAContainer(t *testing.T) {
	valid := testImage{sections: []testSection{{".text", make([]byte, 16)}}}.build(t)
	badSig := append([]byte(nil), valid...)
	copy(badSig[dosHeaderSize:], "NE\x00\x00")
	badLfanew := append([]byte(nil), valid...)
	binary.LittleEndian.PutUint32(badLfanew[0x3c:], 0xfffffff0)

	tests := map[string][]byte{
		"empty":             nil,
		"text":              []byte("hello, world"),
		"MZ only":           []byte("MZ"),
		"DOS stub":          append([]byte("MZ"), make([]byte, 100)...),
		"bad signature":     badSig,
		"e_lfanew past end": badLfanew,
		"truncated COFF":    valid[:dosHeaderSize+len(peSignature)+10],
	}
	for name, data := range tests {
		if m := ExtractPE(data); m.Len() != 0 {
			t.Errorf("%s: got %d features, want empty map", name, m.Len())
		}
	}
}

func TestExtractPE_TruncatedOptionalHeader(t *testing.T) {
	data := testImage{sections: []testSection{{".text", make([]byte, 16)}}}.build(t)
	optStart := dosHeaderSize + len(peSignature) + fileHeaderSize
	data = data[:optStart+30]

	m := ExtractPE(data)
	if m.Len() != len(feature.PENames()) {
		t.Fatalf("got %d features, want a schema-complete map", m.Len())
	}
	assertFeatures(t, m, map[string]float64{
		feature.Characteristics:       testCharacter,
		feature.SizeOfInitializedData: 0x1000,
		feature.ImageBase:             0,
		feature.SizeOfImage:           0,
		feature.SectionsMaxEntropy:    0,
		feature.ResourcesNb:           0,
	})
}

func TestExtractPE_ResourceCycleTerminates(t *testing.T) {
	data := testImage{resources: []testResource{{typeID: 3, data: allBytes()}}}.build(t)

	img, err := parsePE(data)
	if err != nil {
		t.Fatalf("parsePE: %v", err)
	}
	dir, err := img.dataDirectory(pe.IMAGE_DIRECTORY_ENTRY_RESOURCE)
	if err != nil {
		t.Fatalf("dataDirectory: %v", err)
	}
	base, err := img.rvaToOffset(dir.VirtualAddress)
	if err != nil {
		t.Fatalf("rvaToOffset: %v", err)
	}
	// Point the name directory's only entry back at the root directory.
	nameDir := resourceDirHeaderSize + resourceEntrySize
	binary.LittleEndian.PutUint32(data[int(base)+nameDir+20:], subdirectoryBit)

	m := ExtractPE(data)
	assertFeatures(t, m, map[string]float64{
		feature.ResourcesNb:      0,
		feature.ResourcesMinSize: 0,
	})
}

func TestExtractPE_ResourceRootOutsideFile(t *testing.T) {
	data := testImage{resources: []testResource{{typeID: 3, data: allBytes()}}}.build(t)
	img, err := parsePE(data)
	if err != nil {
		t.Fatalf("parsePE: %v", err)
	}
	rsrc := img.sections[len(img.sections)-1]
	data = data[:rsrc.PointerToRawData+4]

	m := ExtractPE(data)
	if m.Len() != len(feature.PENames()) {
		t.Fatalf("got %d features", m.Len())
	}
	assertFeatures(t, m, map[string]float64{
		feature.ResourcesNb:         0,
		feature.ResourcesMinSize:    0,
		feature.ResourcesMinEntropy: 0,
		feature.ImageBase:           testImageBase32,
	})
}

func TestExtractPE_MutatedInputNeverPanics(t *testing.T) {
	valid := testImage{
		sections:  []testSection{{".text", allBytes()}},
		resources: []testResource{{typeID: 3, data: allBytes()}, {typeID: rtVersion, data: versionInfoBlob(92)}},
	}.build(t)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		data := append([]byte(nil), valid...)
		for j := 0; j < 1+rng.Intn(16); j++ {
			data[rng.Intn(len(data))] = byte(rng.Intn(256))
		}
		if rng.Intn(4) == 0 {
			data = data[:rng.Intn(len(data))]
		}

		m := ExtractPE(data)
		if m.Len() != 0 && m.Len() != len(feature.PENames()) {
			t.Fatalf("iteration %d: partial map with %d keys", i, m.Len())
		}
		m.Each(func(name string, v feature.Value) {
			f, ok := v.Float()
			if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
				t.Fatalf("iteration %d: %s is not finite: %+v", i, name, v)
			}
		})
	}
}

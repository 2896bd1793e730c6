package extract

import (
	"debug/pe"
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf16"
)

const (
	resourceDirHeaderSize = 16
	resourceEntrySize     = 8
	resourceDataEntrySize = 16

	// Type, name and language levels.
	maxResourceDepth   = 3
	maxResourceEntries = 4096

	rtVersion       = 16
	subdirectoryBit = 0x80000000
	versionInfoKey  = "VS_VERSION_INFO"
)

var errNoVersionInfo = errors.New("no VS_VERSION_INFO resource")

type resourceLeaf struct {
	typeID uint32
	named  bool
	size   uint32
	data   []byte
}

type resourceSummary struct {
	leaves []resourceLeaf
	err    error
}

// guardResources walks the resource tree once. A walk that panics is treated like
// an unreadable resource root.
func guardResources(img *peImage) (res resourceSummary) {
	defer func() {
		if r := recover(); r != nil {
			res = resourceSummary{err: fmt.Errorf("resource walk: %v", r)}
		}
	}()
	leaves, err := img.resources()
	return resourceSummary{leaves: leaves, err: err}
}

func (r resourceSummary) count() (float64, error) {
	if r.err != nil {
		return 0, r.err
	}
	return float64(len(r.leaves)), nil
}

func (r resourceSummary) minSize() (float64, error) {
	if r.err != nil || len(r.leaves) == 0 {
		return 0, r.err
	}
	minSize := r.leaves[0].size
	for _, l := range r.leaves[1:] {
		if l.size < minSize {
			minSize = l.size
		}
	}
	return float64(minSize), nil
}

func (r resourceSummary) minEntropy() (float64, error) {
	if r.err != nil || len(r.leaves) == 0 {
		return 0, r.err
	}
	minH := Entropy(r.leaves[0].data)
	for _, l := range r.leaves[1:] {
		if h := Entropy(l.data); h < minH {
			minH = h
		}
	}
	return minH, nil
}

// versionInfoSize reports wLength of the VS_VERSIONINFO block in the first
// RT_VERSION resource.
func (r resourceSummary) versionInfoSize() (float64, error) {
	if r.err != nil {
		return 0, r.err
	}
	for _, l := range r.leaves {
		if l.named || l.typeID != rtVersion {
			continue
		}
		return parseVersionInfoLength(l.data)
	}
	return 0, errNoVersionInfo
}

// parseVersionInfoLength validates the VS_VERSIONINFO header:
// wLength, wValueLength, wType, then the UTF-16 key.
func parseVersionInfoLength(b []byte) (float64, error) {
	const keyOffset = 6
	if len(b) < keyOffset+2*len(versionInfoKey)+2 {
		return 0, fmt.Errorf("version resource too short: %d bytes", len(b))
	}
	length := binary.LittleEndian.Uint16(b)
	var units []uint16
	for off := keyOffset; off+1 < len(b); off += 2 {
		u := binary.LittleEndian.Uint16(b[off:])
		if u == 0 {
			break
		}
		units = append(units, u)
		if len(units) > len(versionInfoKey) {
			break
		}
	}
	if key := string(utf16.Decode(units)); key != versionInfoKey {
		return 0, fmt.Errorf("unexpected version resource key %q", key)
	}
	return float64(length), nil
}

type resourceWalker struct {
	img     *peImage
	base    int64
	visited map[uint32]bool
	entries int
	leaves  []resourceLeaf
}

// resources collects the data leaves of the resource tree. An absent resource
// directory yields no leaves; an unreadable root is an error. Malformed subtrees
// and data entries are skipped.
func (img *peImage) resources() ([]resourceLeaf, error) {
	dir, err := img.dataDirectory(pe.IMAGE_DIRECTORY_ENTRY_RESOURCE)
	if errors.Is(err, errDirectoryAbsent) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if dir.VirtualAddress == 0 || dir.Size == 0 {
		return nil, nil
	}
	base, err := img.rvaToOffset(dir.VirtualAddress)
	if err != nil {
		return nil, fmt.Errorf("resource root: %w", err)
	}

	w := &resourceWalker{img: img, base: base, visited: make(map[uint32]bool)}
	if err := w.walk(0, 0, 0, false); err != nil {
		return nil, fmt.Errorf("resource root: %w", err)
	}
	return w.leaves, nil
}

func (w *resourceWalker) walk(rel uint32, depth int, typeID uint32, named bool) error {
	if w.visited[rel] {
		return nil
	}
	w.visited[rel] = true

	data := w.img.data
	hdr := w.base + int64(rel)
	if hdr+resourceDirHeaderSize > int64(len(data)) {
		return fmt.Errorf("directory at %#x past end of file", rel)
	}
	n := int(binary.LittleEndian.Uint16(data[hdr+12:])) + int(binary.LittleEndian.Uint16(data[hdr+14:]))

	for i := 0; i < n; i++ {
		if w.entries >= maxResourceEntries {
			return nil
		}
		w.entries++

		off := hdr + resourceDirHeaderSize + int64(i)*resourceEntrySize
		if off+resourceEntrySize > int64(len(data)) {
			return nil
		}
		name := binary.LittleEndian.Uint32(data[off:])
		target := binary.LittleEndian.Uint32(data[off+4:])

		entryType, entryNamed := typeID, named
		if depth == 0 {
			entryNamed = name&subdirectoryBit != 0
			entryType = 0
			if !entryNamed {
				entryType = name
			}
		}

		if target&subdirectoryBit != 0 {
			if depth+1 >= maxResourceDepth {
				continue
			}
			_ = w.walk(target&^subdirectoryBit, depth+1, entryType, entryNamed)
			continue
		}
		if leaf, ok := w.dataEntry(target); ok {
			leaf.typeID, leaf.named = entryType, entryNamed
			w.leaves = append(w.leaves, leaf)
		}
	}
	return nil
}

// dataEntry reads IMAGE_RESOURCE_DATA_ENTRY. The leaf counts even when its data
// lies outside the file; its bytes are then empty.
func (w *resourceWalker) dataEntry(rel uint32) (resourceLeaf, bool) {
	data := w.img.data
	off := w.base + int64(rel)
	if off+resourceDataEntrySize > int64(len(data)) {
		return resourceLeaf{}, false
	}
	rva := binary.LittleEndian.Uint32(data[off:])
	size := binary.LittleEndian.Uint32(data[off+4:])

	leaf := resourceLeaf{size: size}
	if start, err := w.img.rvaToOffset(rva); err == nil {
		leaf.data = clampSlice(data, start, int64(size))
	}
	return leaf, true
}

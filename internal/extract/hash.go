package extract

import (
	"crypto/md5"  //nolint:gosec // identification digest
	"crypto/sha1" //nolint:gosec // identification digest
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/shashankrm11/malscan/internal/domain/feature"
)

// Hash feature names.
const (
	HashMD5    = "MD5"
	HashSHA1   = "SHA-1"
	HashSHA256 = "SHA-256"
	HashXXH64  = "XXH64"
)

// ExtractHashes returns hex digests of the whole artifact.
func ExtractHashes(data []byte) *feature.Map {
	md5Sum := md5.Sum(data)
	sha1Sum := sha1.Sum(data)
	sha256Sum := sha256.Sum256(data)

	m := feature.NewMap(4)
	m.Set(HashMD5, feature.String(hex.EncodeToString(md5Sum[:])))
	m.Set(HashSHA1, feature.String(hex.EncodeToString(sha1Sum[:])))
	m.Set(HashSHA256, feature.String(hex.EncodeToString(sha256Sum[:])))
	m.Set(HashXXH64, feature.String(fmt.Sprintf("%016x", xxhash.Sum64(data))))
	return m
}

// HashFile digests the file at path. I/O failures yield an empty map.
func HashFile(path string) *feature.Map {
	a, err := ReadArtifact(path, 0)
	if err != nil {
		return feature.NewMap(0)
	}
	return ExtractHashes(a.Data)
}

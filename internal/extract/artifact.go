package extract

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/shashankrm11/malscan/internal/domain"
)

// Artifact is an immutable byte sequence plus the location it came from.
type Artifact struct {
	Path string
	Data []byte
}

// ReadArtifact loads the file at path. limit <= 0 means unbounded.
func ReadArtifact(path string, limit int64) (Artifact, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return Artifact{}, fmt.Errorf("%w: %w", domain.ErrUnreadableArtifact, err)
	}
	defer f.Close()

	var r io.Reader = f
	if limit > 0 {
		r = io.LimitReader(f, limit+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return Artifact{}, fmt.Errorf("%w: %w", domain.ErrUnreadableArtifact, err)
	}
	if limit > 0 && int64(len(data)) > limit {
		return Artifact{}, fmt.Errorf("%w: %s exceeds %d bytes", domain.ErrUnreadableArtifact, path, limit)
	}
	return Artifact{Path: path, Data: data}, nil
}

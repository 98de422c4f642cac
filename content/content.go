// Package content implements the Content Store: a flat, content-addressed
// directory holding the opaque serialized payload of every Resource whose
// value must survive across runs. One file per resource id, named after
// the id with no extension.
package content

import (
	"os"
	"path/filepath"

	"rmscore.evalgo.org/rmserrors"
)

// Store is implemented by every Content Store backend. The kernel only
// ever stores and loads whole byte payloads keyed by resource id; it
// never needs partial reads, so the interface stays deliberately small.
type Store interface {
	Store(rid string, payload []byte) error
	Load(rid string) ([]byte, error)
	Exists(rid string) bool
}

// DirStore is the default Store: one file per resource under a root
// directory. This is the primary, always-available backend; Postgres
// never holds resource bytes itself.
type DirStore struct {
	dir string
}

// NewDirStore creates (if necessary) and returns a directory-backed
// Content Store rooted at dir.
func NewDirStore(dir string) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &DirStore{dir: dir}, nil
}

func (s *DirStore) path(rid string) string {
	return filepath.Join(s.dir, rid)
}

// Store writes payload to {dir}/{rid}, replacing any prior content.
func (s *DirStore) Store(rid string, payload []byte) error {
	tmp := s.path(rid) + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path(rid))
}

// Load reads {dir}/{rid}, failing with rmserrors.ContentMissing if absent.
func (s *DirStore) Load(rid string) ([]byte, error) {
	b, err := os.ReadFile(s.path(rid))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &rmserrors.ContentMissing{ResourceID: rid}
		}
		return nil, err
	}
	return b, nil
}

// Exists reports whether a payload for rid is present, via a stat check.
func (s *DirStore) Exists(rid string) bool {
	_, err := os.Stat(s.path(rid))
	return err == nil
}
